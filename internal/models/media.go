package models

import "strings"

// DefaultMaxMedia is the observed cap on media references per record
const DefaultMaxMedia = 5

// MediaSet accumulates unique media references in discovery order up to a limit
type MediaSet struct {
	limit int
	seen  map[string]struct{}
	urls  []string
}

// NewMediaSet creates a set capped at limit (DefaultMaxMedia when limit <= 0)
func NewMediaSet(limit int, initial ...string) *MediaSet {
	if limit <= 0 {
		limit = DefaultMaxMedia
	}
	s := &MediaSet{
		limit: limit,
		seen:  make(map[string]struct{}, limit),
	}
	for _, url := range initial {
		s.Add(url)
	}
	return s
}

// Add inserts url if it is new and the set is not full. Returns true if added.
func (s *MediaSet) Add(url string) bool {
	url = strings.TrimSpace(url)
	if url == "" || s.Full() {
		return false
	}
	if _, exists := s.seen[url]; exists {
		return false
	}
	s.seen[url] = struct{}{}
	s.urls = append(s.urls, url)
	return true
}

// Full reports whether the cap has been reached
func (s *MediaSet) Full() bool {
	return len(s.urls) >= s.limit
}

// Len returns the number of references held
func (s *MediaSet) Len() int {
	return len(s.urls)
}

// Limit returns the cap
func (s *MediaSet) Limit() int {
	return s.limit
}

// URLs returns a copy of the references in discovery order
func (s *MediaSet) URLs() []string {
	return append([]string(nil), s.urls...)
}
