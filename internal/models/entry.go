package models

import (
	"time"
)

// Entry represents a cache entry held by one tier.
type Entry struct {
	Value     any       `json:"value"`
	CreatedAt time.Time `json:"created_at"`
}

// NewEntry creates a new Entry.
func NewEntry(value any, createdAt time.Time) *Entry {
	return &Entry{
		Value:     value,
		CreatedAt: createdAt,
	}
}

// Age returns how long the entry has been in its tier at now.
func (e *Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.CreatedAt)
}

// FreshFor reports whether the entry is still valid for a tier with the given TTL.
func (e *Entry) FreshFor(ttl time.Duration, now time.Time) bool {
	return e.Age(now) < ttl
}

// Clone returns a copy sharing the same value and creation time.
func (e *Entry) Clone() *Entry {
	return &Entry{Value: e.Value, CreatedAt: e.CreatedAt}
}
