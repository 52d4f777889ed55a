package schemaguard

import (
	"sync"
	"sync/atomic"

	"github.com/Mujanati13/Qabalan-sub007/internal/order/domain"
	"golang.org/x/sync/singleflight"
)

// Status is the process-wide verification state. It is owned by the fx graph
// rather than a package variable so tests can build or reset their own.
type Status struct {
	verified atomic.Bool
	flight   singleflight.Group

	mu      sync.RWMutex
	columns domain.Columns
}

func NewStatus() *Status {
	return &Status{}
}

func (s *Status) Verified() bool {
	return s.verified.Load()
}

// Columns returns the optional order columns seen by the last check.
func (s *Status) Columns() domain.Columns {
	if s.verified.Load() {
		return domain.AllColumns()
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.columns
}

func (s *Status) Reset() {
	s.verified.Store(false)
	s.mu.Lock()
	s.columns = domain.Columns{}
	s.mu.Unlock()
}

func (s *Status) setColumns(cols domain.Columns) {
	s.mu.Lock()
	s.columns = cols
	s.mu.Unlock()
}
