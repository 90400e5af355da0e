package leasekeeper

import (
	"time"
)

// Indefinite is the ReservedUntil sentinel for a lease that holds until explicitly cleared.
const Indefinite int64 = 0

// Lease is the reservation state attached to a resource.
type Lease struct {
	ReservedBy    string `json:"reserved_by"`
	ReservedUntil int64  `json:"reserved_until"` // Unix seconds, 0 = indefinite
}

// Resource is a named, reservable thing. Description and OtherFields are opaque to the lease logic.
type Resource struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	OtherFields map[string]string `json:"other_fields"`
	Lease
}

// State is the logical reservation state of a lease.
type State int

const (
	StateFree State = iota
	StateReserved
)

func (s State) String() string {
	if s == StateReserved {
		return "reserved"
	}
	return "free"
}

// IsIndefinite reports whether the lease is held until explicitly cleared.
func (l Lease) IsIndefinite() bool {
	return l.ReservedBy != "" && l.ReservedUntil == Indefinite
}

// Expired reports whether a held lease has lapsed at now. Free and indefinite leases never expire.
func (l Lease) Expired(now time.Time) bool {
	if l.ReservedBy == "" || l.ReservedUntil == Indefinite {
		return false
	}
	return now.Unix() >= l.ReservedUntil
}

// StateAt applies lazy expiry: a lapsed lease is Free even though its holder is still stored.
func (l Lease) StateAt(now time.Time) State {
	if l.ReservedBy == "" || l.Expired(now) {
		return StateFree
	}
	return StateReserved
}

// HeldBy reports whether who is the effective holder at now.
func (l Lease) HeldBy(who string, now time.Time) bool {
	return l.StateAt(now) == StateReserved && l.ReservedBy == who
}

// Until returns the expiry as a time, or the zero time for an indefinite or free lease.
func (l Lease) Until() time.Time {
	if l.ReservedBy == "" || l.ReservedUntil == Indefinite {
		return time.Time{}
	}
	return time.Unix(l.ReservedUntil, 0)
}

// Clone returns a copy that shares no maps with r.
func (r Resource) Clone() Resource {
	var out = r
	if r.OtherFields != nil {
		out.OtherFields = make(map[string]string, len(r.OtherFields))
		for k, v := range r.OtherFields {
			out.OtherFields[k] = v
		}
	}
	return out
}
