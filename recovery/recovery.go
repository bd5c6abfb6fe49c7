// Package recovery decides how the scanner and parser react to malformed
// input. Damaged files are common in archives of scanned correspondence, so
// the default parse path is lenient and records what it repaired.
package recovery

import (
	"fmt"
	"sync"
)

// Strategy is consulted whenever a recoverable syntax problem is found.
type Strategy interface {
	OnError(err error, location Location) Action
}

// Location pinpoints where a problem was found.
type Location struct {
	ByteOffset int64
	ObjectNum  int
	ObjectGen  int
	Component  string
}

func (l Location) String() string {
	if l.ObjectNum > 0 {
		return fmt.Sprintf("%s at offset %d (object %d %d)", l.Component, l.ByteOffset, l.ObjectNum, l.ObjectGen)
	}
	return fmt.Sprintf("%s at offset %d", l.Component, l.ByteOffset)
}

type Action int

const (
	ActionFail Action = iota
	ActionFix
)

// StrictStrategy fails on the first problem.
type StrictStrategy struct{}

func NewStrictStrategy() *StrictStrategy { return &StrictStrategy{} }

func (s *StrictStrategy) OnError(err error, location Location) Action { return ActionFail }

// LenientStrategy repairs what it can and keeps a list of the repairs.
type LenientStrategy struct {
	mu     sync.Mutex
	issues []string
}

func NewLenientStrategy() *LenientStrategy { return &LenientStrategy{} }

func (s *LenientStrategy) OnError(err error, location Location) Action {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issues = append(s.issues, fmt.Sprintf("%s: %v", location, err))
	return ActionFix
}

// Issues returns the repairs made so far.
func (s *LenientStrategy) Issues() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.issues...)
}
