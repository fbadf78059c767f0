package resume

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Record is a parsed resume kept for follow-up chat.
type Record struct {
	Data      *Data
	FullText  string
	Source    string
	CreatedAt time.Time
}

// Store holds parsed resumes by session id. It is bounded in both size and
// age; the oldest entries are evicted first.
type Store struct {
	lru *expirable.LRU[string, *Record]
}

func NewStore(size int, ttl time.Duration) *Store {
	if size <= 0 {
		size = 1000
	}
	return &Store{lru: expirable.NewLRU[string, *Record](size, nil, ttl)}
}

func (s *Store) Put(id string, r *Record) {
	s.lru.Add(id, r)
}

func (s *Store) Get(id string) (*Record, bool) {
	if id == "" {
		return nil, false
	}
	return s.lru.Get(id)
}

// Len returns the number of live records.
func (s *Store) Len() int {
	return s.lru.Len()
}
