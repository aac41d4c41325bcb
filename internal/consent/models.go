package consent

import (
	"time"

	"medihub/pkg/domain"
)

// ConsentStatus is the stored lifecycle state. Expiry is evaluated lazily
// against the consent window; an ACTIVE consent whose window has passed is
// treated as expired without a write-back.
type ConsentStatus string

const (
	StatusActive  ConsentStatus = "ACTIVE"
	StatusRevoked ConsentStatus = "REVOKED"
)

// Consent is a patient's grant of scoped access to one doctor for a bounded
// window, optionally capped to a number of views.
type Consent struct {
	ID          domain.ConsentID
	PatientID   domain.PatientID
	DoctorID    domain.DoctorID
	Scopes      domain.ScopeSet
	Purpose     domain.ConsentPurpose
	WindowStart time.Time
	WindowEnd   time.Time
	MaxViews    *int
	UsedViews   int
	Status      ConsentStatus
	CreatedAt   time.Time
	RevokedAt   *time.Time
}

// ActiveAt reports whether the consent can grant access at the given time:
// stored status ACTIVE and the window contains t.
func (c Consent) ActiveAt(t time.Time) bool {
	if c.Status != StatusActive {
		return false
	}
	return !t.Before(c.WindowStart) && !t.After(c.WindowEnd)
}

// Exhausted reports whether the view cap has been reached. Consents without
// a cap are never exhausted.
func (c Consent) Exhausted() bool {
	return c.MaxViews != nil && c.UsedViews >= *c.MaxViews
}

// Overlaps reports whether two consent windows for the same parties share
// any instant.
func (c Consent) Overlaps(start, end time.Time) bool {
	return !c.WindowEnd.Before(start) && !c.WindowStart.After(end)
}

// LinkStatus is the doctor-patient relationship state.
type LinkStatus string

const (
	LinkRequested LinkStatus = "REQUESTED"
	LinkApproved  LinkStatus = "APPROVED"
	LinkRevoked   LinkStatus = "REVOKED"
)

// Link is the relationship a doctor requests and a patient controls. Only an
// APPROVED link lets consents take effect; revoking the link cuts access
// without touching the consents themselves.
type Link struct {
	ID          domain.LinkID
	PatientID   domain.PatientID
	DoctorID    domain.DoctorID
	Status      LinkStatus
	RequestedAt time.Time
	RespondedAt *time.Time
}
