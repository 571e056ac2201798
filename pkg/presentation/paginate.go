package presentation

import "sync"

// DefaultPageSize applies when Paginate gets a non-positive page size.
const DefaultPageSize = 50

// PageInfo describes the page returned by Paginate. Start and End are the
// zero-based half-open row range of the page.
type PageInfo struct {
	Total    int `json:"total"`
	Pages    int `json:"pages"`
	Current  int `json:"current"`
	Start    int `json:"start"`
	End      int `json:"end"`
	PageSize int `json:"page_size"`
}

// SessionStore holds per-user state across dashboard reruns.
type SessionStore interface {
	Get(key string) (any, bool)
	Set(key string, value any)
}

// Session is an in-memory SessionStore safe for concurrent use.
type Session struct {
	mu     sync.RWMutex
	values map[string]any
}

// NewSession creates an empty Session.
func NewSession() *Session {
	return &Session{values: make(map[string]any)}
}

func (s *Session) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

func (s *Session) Set(key string, value any) {
	s.mu.Lock()
	s.values[key] = value
	s.mu.Unlock()
}

// SetPage stores the requested page for pageKey. A nil session is ignored.
func SetPage(session SessionStore, pageKey string, page int) {
	if session != nil {
		session.Set(pageKey, page)
	}
}

// Paginate returns the page of items selected in session under pageKey.
// The stored page defaults to 1, is clamped into the valid range and written
// back. A nil session always yields the first page.
func Paginate[T any](items []T, pageSize int, pageKey string, session SessionStore) ([]T, PageInfo) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	total := len(items)
	pages := (total + pageSize - 1) / pageSize
	if pages < 1 {
		pages = 1
	}

	current := 1
	if session != nil {
		if v, ok := session.Get(pageKey); ok {
			if p, ok := v.(int); ok {
				current = p
			}
		}
	}
	if current < 1 {
		current = 1
	}
	if current > pages {
		current = pages
	}
	SetPage(session, pageKey, current)

	start := (current - 1) * pageSize
	end := start + pageSize
	if end > total {
		end = total
	}

	info := PageInfo{
		Total:    total,
		Pages:    pages,
		Current:  current,
		Start:    start,
		End:      end,
		PageSize: pageSize,
	}
	if total == 0 {
		return []T{}, info
	}
	return items[start:end], info
}
