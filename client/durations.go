package client

import (
	"fmt"
	"strings"
	"time"
)

// Duration is one entry of the reservation length menu.
type Duration struct {
	Label   string `json:"label"`
	Seconds int64  `json:"seconds"`
}

// Durations is the menu offered to users. Seconds 0 means until cleared.
var Durations = []Duration{
	{Label: "30 minutes", Seconds: 1800},
	{Label: "1 hour", Seconds: 3600},
	{Label: "2 hours", Seconds: 7200},
	{Label: "4 hours", Seconds: 14400},
	{Label: "1 day", Seconds: 86400},
	{Label: "1 week", Seconds: 604800},
	{Label: "Until cleared", Seconds: 0},
}

// ParseDuration accepts a menu label ("1 hour"), "forever" or a Go duration ("90m") and
// returns whole seconds. Any non-negative length is allowed, not only menu entries.
func ParseDuration(s string) (int64, error) {
	var value = strings.TrimSpace(s)
	for _, d := range Durations {
		if strings.EqualFold(d.Label, value) {
			return d.Seconds, nil
		}
	}

	switch strings.ToLower(value) {
	case "", "0", "forever", "indefinite":
		return 0, nil
	}

	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("unknown duration %q (use a label such as %q or a value such as 90m)", s, Durations[1].Label)
	}
	if parsed < time.Second {
		return 0, fmt.Errorf("duration %q must be at least one second", s)
	}
	return int64(parsed / time.Second), nil
}

// UntilFor converts a length in seconds into the absolute reserved_until sent to the server.
func UntilFor(now time.Time, seconds int64) int64 {
	if seconds == 0 {
		return 0
	}
	return now.Unix() + seconds
}
