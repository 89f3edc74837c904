package query

import (
	"fmt"
	"sync"

	"github.com/mmcdole/crate/internal/domain"
)

const defaultRevealBatch = 50

// Session is the transient query state of one view: the current snapshot,
// the current query and its result. It is safe for concurrent use.
type Session struct {
	engine *Engine
	batch  int

	mu    sync.Mutex
	items []domain.CatalogItem
	state domain.QueryState
	view  *View
}

// NewSession creates a session that reveals revealBatch items at a time.
func NewSession(engine *Engine, revealBatch int) *Session {
	if revealBatch <= 0 {
		revealBatch = defaultRevealBatch
	}
	state, _ := Normalize(domain.QueryState{WindowSize: revealBatch})
	return &Session{
		engine: engine,
		batch:  revealBatch,
		state:  state,
		view:   &View{State: state},
	}
}

// Apply switches to a new query. An invalid state is rejected and the
// previous view stays current.
func (s *Session) Apply(state domain.QueryState) (*View, error) {
	state, err := Normalize(state)
	if err != nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.engine.logger.Debug("query rejected", "error", err)
		return s.view, err
	}
	if state.WindowSize == 0 {
		state.WindowSize = s.batch
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	s.view = s.recompute()
	return s.view, nil
}

// Refresh replaces the snapshot, typically after a sync finished, and
// re-runs the current query over it.
func (s *Session) Refresh(items []domain.CatalogItem) *View {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = items
	s.view = s.recompute()
	return s.view
}

// More grows the reveal window by one batch.
func (s *Session) More() Window {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.WindowSize < s.view.Total() {
		s.state.WindowSize += s.batch
	}
	return s.view.Reveal(s.state.WindowSize)
}

// Window returns the current reveal window.
func (s *Session) Window() Window {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view.Reveal(s.state.WindowSize)
}

// Page returns the 1-based page of one batch in size.
func (s *Session) Page(page int) Window {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view.Page(page, s.batch)
}

// Batch returns the reveal batch size.
func (s *Session) Batch() int {
	return s.batch
}

// View returns the current result.
func (s *Session) View() *View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view
}

// State returns the current query.
func (s *Session) State() domain.QueryState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// recompute runs the engine for the current snapshot and state. An
// unexpected failure yields an empty view flagged as failed. Callers hold mu.
func (s *Session) recompute() (view *View) {
	defer func() {
		if r := recover(); r != nil {
			s.engine.logger.Error("query recompute panicked", "error", fmt.Sprint(r))
			view = &View{State: s.state, Failed: true}
		}
	}()

	v, err := s.engine.Recompute(s.items, s.state)
	if err != nil {
		s.engine.logger.Error("query recompute failed", "error", err)
		return &View{State: s.state, Failed: true}
	}
	return v
}
