// Package clock abstracts "now" so time-gated rules (bidding window,
// re-sign deadlines, blackout expiry) can be tested at arbitrary instants.
package clock

import "time"

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

// Real returns a clock backed by the system time, in UTC.
func Real() Clock { return realClock{} }

// Fake is a settable clock for tests.
type Fake struct {
	T time.Time
}

// NewFake returns a fake clock pinned at t.
func NewFake(t time.Time) *Fake { return &Fake{T: t} }

func (f *Fake) Now() time.Time { return f.T }

// Advance moves the fake clock forward by d.
func (f *Fake) Advance(d time.Duration) { f.T = f.T.Add(d) }

// Set pins the fake clock at t.
func (f *Fake) Set(t time.Time) { f.T = t }
