package remote

// CollectionResponse is one page of GET /users/{owner}/collection.
type CollectionResponse struct {
	Pagination Pagination `json:"pagination"`
	Releases   []Release  `json:"releases"`
}

type Pagination struct {
	Page    int `json:"page"`
	Pages   int `json:"pages"`
	PerPage int `json:"per_page"`
	Items   int `json:"items"`
}

// Release is one collection instance.
type Release struct {
	InstanceID int64            `json:"instance_id"`
	DateAdded  string           `json:"date_added"`
	Rating     int              `json:"rating"`
	Basic      BasicInformation `json:"basic_information"`
}

type BasicInformation struct {
	Title   string   `json:"title"`
	Year    int      `json:"year"`
	Artists []Named  `json:"artists"`
	Formats []Format `json:"formats"`
	Labels  []Named  `json:"labels"`
}

type Named struct {
	Name string `json:"name"`
}

type Format struct {
	Name string `json:"name"`
	Qty  string `json:"qty,omitempty"`
}

// AlbumInfoResponse is the scrobble service's album.getinfo answer.
// Counts arrive as strings.
type AlbumInfoResponse struct {
	Album *struct {
		PlayCount     string `json:"playcount"`
		UserPlayCount any    `json:"userplaycount"`
	} `json:"album"`
	Error   int    `json:"error"`
	Message string `json:"message"`
}
