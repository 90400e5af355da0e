package database

// ResourceRecord represents a resource row in the database.
type ResourceRecord struct {
	Name          string
	Description   string
	OtherFields   map[string]string
	ReservedBy    string
	ReservedUntil int64
}

// LeaseFields is the part of a row compared and replaced by CompareAndSetLease.
type LeaseFields struct {
	ReservedBy    string
	ReservedUntil int64
}
