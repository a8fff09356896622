// Package system provides a real clock implementation.
package system

import (
	"fmt"
	"time"
)

// Clock reports wall-clock time in a fixed location.
type Clock struct {
	loc *time.Location
}

// New creates a Clock that reports UTC.
func New() *Clock {
	return &Clock{loc: time.UTC}
}

// NewInZone creates a Clock for the named IANA zone, e.g. "Europe/Kyiv".
// An empty name selects UTC.
func NewInZone(name string) (*Clock, error) {
	if name == "" {
		return New(), nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", name, err)
	}
	return &Clock{loc: loc}, nil
}

// Now returns the current time in the clock's location.
func (c *Clock) Now() time.Time {
	return time.Now().In(c.Location())
}

// Location returns the zone the clock reports in.
func (c *Clock) Location() *time.Location {
	if c == nil || c.loc == nil {
		return time.UTC
	}
	return c.loc
}
