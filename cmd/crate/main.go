package main

import "github.com/mmcdole/crate/internal/app"

// Version is set at build time via -ldflags
var Version = "dev"

func main() {
	app.Execute(Version)
}
