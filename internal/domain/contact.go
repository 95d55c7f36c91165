package domain

import "time"

// PropertyType classifies a contact's service address.
type PropertyType string

const (
	PropertyResidential PropertyType = "residential"
	PropertyCommercial  PropertyType = "commercial"
	PropertyIndustrial  PropertyType = "industrial"
)

// Address is a street-level postal address with a 5-digit postal code.
type Address struct {
	Street     string
	Number     string
	PostalCode string
	City       string
}

// Contact is a caller/customer. Never hard-deleted — see SoftDeletedAt.
type Contact struct {
	ID           string
	TenantID     string
	Name         string
	Phone        string // E.164
	Email        string
	Address      Address
	Geo          GeoPoint
	PropertyType PropertyType
	CreatedAt    time.Time
	UpdatedAt    time.Time
	SoftDeletedAt *time.Time
}

// IsDeleted reports whether the contact has been soft-deleted.
func (c *Contact) IsDeleted() bool { return c.SoftDeletedAt != nil }

// Anonymize scrubs PII in place while retaining the identifier for
// referential integrity in audit rows, per the right-to-erasure scenario
// in §8.
func (c *Contact) Anonymize() {
	c.Name = "[erased]"
	c.Phone = ""
	c.Email = ""
	c.Address = Address{}
	c.Geo = GeoPoint{}
}

// ConsentKind enumerates the consent categories tracked per contact.
type ConsentKind string

const (
	ConsentDataProcessing ConsentKind = "data_processing"
	ConsentCallRecording  ConsentKind = "call_recording"
	ConsentReminders      ConsentKind = "reminders"
	ConsentMarketing      ConsentKind = "marketing"
)

// ConsentMethod is how a consent was captured.
type ConsentMethod string

const (
	ConsentMethodVerbal  ConsentMethod = "verbal"
	ConsentMethodWritten ConsentMethod = "written"
	ConsentMethodDigital ConsentMethod = "digital"
)

// ConsentRecord grants or revokes one consent kind for one contact.
// Append-only: a revocation is a new row, never a mutation of a prior one.
type ConsentRecord struct {
	ID              string
	TenantID        string
	ContactID       string
	Kind            ConsentKind
	GrantedAt       *time.Time
	RevokedAt       *time.Time
	Method          ConsentMethod
	OriginatingCall string
	ExpiresAt       *time.Time
}

// Active reports whether this record currently grants consent at instant t.
func (c *ConsentRecord) Active(t time.Time) bool {
	if c.GrantedAt == nil || c.GrantedAt.After(t) {
		return false
	}
	if c.RevokedAt != nil && !c.RevokedAt.After(t) {
		return false
	}
	if c.ExpiresAt != nil && !c.ExpiresAt.After(t) {
		return false
	}
	return true
}
