package model

// AccessType is the capability a permission entry grants on matching topics.
type AccessType string

const (
	// AccessPublisher grants publishing only.
	AccessPublisher AccessType = "publisher"

	// AccessSubscriber grants subscribing only.
	AccessSubscriber AccessType = "subscriber"

	// AccessPublisherSubscriber grants both capabilities.
	AccessPublisherSubscriber AccessType = "publisher-subscriber"
)

// PermissionEntry is one access-control pattern bound to a principal.
//
// A principal may hold many entries; the authorization decision over a set of
// entries lives in the match package. The broker only reads entries, it never
// mutates them.
type PermissionEntry struct {
	ID      int64      `json:"id"`
	Pattern string     `json:"pattern"`                 // Topic name or wildcard pattern
	Access  AccessType `json:"access" db:"access_type"` // Capability granted by this entry
}

// TableName returns the database table name for PermissionEntry.
func (p PermissionEntry) TableName() string {
	return tablePrefix + "permission"
}

// Allows reports whether this entry grants the requested capability.
// The combined publisher-subscriber access includes both.
func (p PermissionEntry) Allows(access AccessType) bool {
	return p.Access == access || p.Access == AccessPublisherSubscriber
}
