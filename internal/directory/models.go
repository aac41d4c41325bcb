package directory

import (
	"time"

	"medihub/pkg/domain"
)

// User is an authenticated account. Role decides which profile rows exist
// alongside it: patients own a Patient row, doctors a Doctor row, admins
// neither.
type User struct {
	ID        domain.UserID
	Email     string
	FullName  string
	Role      domain.Role
	CreatedAt time.Time
}

// Patient is the clinical subject profile attached to a PATIENT user.
type Patient struct {
	ID          domain.PatientID
	UserID      domain.UserID
	DateOfBirth time.Time
	Sex         string
	CreatedAt   time.Time
}

// Doctor is the practitioner profile attached to a DOCTOR user.
type Doctor struct {
	ID             domain.DoctorID
	UserID         domain.UserID
	RegistrationNo string
	Organization   string
	CreatedAt      time.Time
}
