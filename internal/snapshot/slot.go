package snapshot

import (
	"sync/atomic"
	"time"

	"strata-netmon/internal/model"
)

// ErrorInfo describes the most recent failed poll of a domain.
type ErrorInfo struct {
	Kind    string    `json:"kind"`
	Code    int       `json:"code,omitempty"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Snapshot is the immutable last-known value of one domain plus fetch metadata.
// Populated is false until the first successful poll commits.
type Snapshot[T any] struct {
	Value       T
	Populated   bool
	FetchedAt   time.Time
	AttemptedAt time.Time
	LastError   *ErrorInfo
}

// Slot holds the current snapshot for one domain. Readers load a pointer to an
// immutable snapshot; the owning poller is the only writer and replaces it whole.
type Slot[T any] struct {
	domain model.Domain
	ptr    atomic.Pointer[Snapshot[T]]
}

// NewSlot returns an unpopulated slot.
func NewSlot[T any](domain model.Domain) *Slot[T] {
	s := &Slot[T]{domain: domain}
	s.ptr.Store(&Snapshot[T]{})
	return s
}

// Domain returns the domain this slot caches.
func (s *Slot[T]) Domain() model.Domain {
	return s.domain
}

// Read returns the most recently committed snapshot. It never blocks.
func (s *Slot[T]) Read() Snapshot[T] {
	return *s.ptr.Load()
}

// Write commits a new value and clears any recorded error.
// Committed values must not be mutated afterwards.
func (s *Slot[T]) Write(value T, at time.Time) {
	s.ptr.Store(&Snapshot[T]{
		Value:       value,
		Populated:   true,
		FetchedAt:   at,
		AttemptedAt: at,
	})
}

// RecordError keeps the previous value and marks the failed attempt.
func (s *Slot[T]) RecordError(info ErrorInfo) {
	prev := s.ptr.Load()
	next := *prev
	next.LastError = &info
	next.AttemptedAt = info.At
	s.ptr.Store(&next)
}

// Report summarises the slot without its value.
func (s *Slot[T]) Report() Report {
	snap := s.ptr.Load()
	return Report{
		Domain:      s.domain,
		Populated:   snap.Populated,
		FetchedAt:   snap.FetchedAt,
		AttemptedAt: snap.AttemptedAt,
		LastError:   snap.LastError,
	}
}

// Report is the value-free freshness view of a slot.
type Report struct {
	Domain      model.Domain
	Populated   bool
	FetchedAt   time.Time
	AttemptedAt time.Time
	LastError   *ErrorInfo
}
