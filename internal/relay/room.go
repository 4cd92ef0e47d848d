package relay

import "time"

// Room pairs a host and at most one guest under a human-shareable code.
// A room expires at a fixed deadline set at creation; activity does not
// refresh it, so negotiation must finish within the window.
type Room struct {
	Code      string
	Host      *Client
	Guest     *Client
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the room has outlived its fixed deadline.
func (r *Room) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// Other returns the occupant opposite to c, or nil if that slot is empty.
func (r *Room) Other(c *Client) *Client {
	if c == r.Host {
		return r.Guest
	}
	return r.Host
}
