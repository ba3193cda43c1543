// Package tick implements millisecond timer ticks with a reserved
// "eternity" value meaning no deadline. Ticks wrap around the uint32
// space, so comparisons use signed distance instead of plain ordering.
package tick

import "time"

// Tick is a point in time expressed in milliseconds. The zero value is
// Eternity and never expires.
type Tick uint32

const Eternity Tick = 0

// Now converts a wall-clock time to a tick. The result is guaranteed to
// never collide with Eternity.
func Now(t time.Time) Tick {
	ms := Tick(uint32(t.UnixMilli()))
	if ms == Eternity {
		ms++
	}
	return ms
}

// IsSet reports whether t carries a real deadline.
func (t Tick) IsSet() bool {
	return t != Eternity
}

// Add returns now shifted by d. A zero or negative d yields a deadline
// that expires immediately rather than Eternity.
func Add(now Tick, d time.Duration) Tick {
	t := now + Tick(uint32(d.Milliseconds()))
	if t == Eternity {
		t++
	}
	return t
}

// AddIfSet behaves like Add but propagates an unset duration: a zero d
// means "no timeout configured" and returns Eternity.
func AddIfSet(now Tick, d time.Duration) Tick {
	if d == 0 {
		return Eternity
	}
	return Add(now, d)
}

// Expired reports whether deadline t has passed at time now. Eternity
// never expires. Wrap-safe for deadlines within ~24 days of now.
func (t Tick) Expired(now Tick) bool {
	if t == Eternity {
		return false
	}
	return int32(now-t) >= 0
}

// First returns the earlier of two deadlines, treating Eternity as the
// latest possible value.
func First(a, b Tick) Tick {
	switch {
	case a == Eternity:
		return b
	case b == Eternity:
		return a
	case int32(a-b) <= 0:
		return a
	default:
		return b
	}
}

// Remaining returns the time left until deadline t, or -1 if t is
// Eternity, for use as a poll wait hint.
func Remaining(t, now Tick) int {
	if t == Eternity {
		return -1
	}
	d := int32(t - now)
	if d < 0 {
		return 0
	}
	return int(d)
}
