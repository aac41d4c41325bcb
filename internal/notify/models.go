package notify

import (
	"time"

	"medihub/pkg/domain"
)

// Kind names the lifecycle transition a notification describes.
type Kind string

const (
	KindLinkRequested      Kind = "LINK_REQUESTED"
	KindLinkApproved       Kind = "LINK_APPROVED"
	KindLinkRevoked        Kind = "LINK_REVOKED"
	KindConsentGranted     Kind = "CONSENT_GRANTED"
	KindConsentRevoked     Kind = "CONSENT_REVOKED"
	KindRecordAssigned     Kind = "RECORD_ASSIGNED"
	KindAssignmentRevoked  Kind = "ASSIGNMENT_REVOKED"
	KindAccountDeleted     Kind = "ACCOUNT_DELETED"
	KindAccountDeleteError Kind = "ACCOUNT_DELETE_FAILED"
)

// Notification is one user-facing event produced by a lifecycle transition.
// Delivery is best-effort; the producing operation never fails on a sink
// error.
type Notification struct {
	ID        string
	Recipient domain.UserID
	Kind      Kind
	Message   string
	CreatedAt time.Time
}
