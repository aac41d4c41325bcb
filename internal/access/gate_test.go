package access

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"medihub/internal/audit"
	"medihub/internal/consent"
	"medihub/internal/directory"
	"medihub/internal/notify"
	"medihub/pkg/domain"
	dErrors "medihub/pkg/domain-errors"
	"medihub/pkg/requestcontext"
)

// fakeResolver maps records to owners without a record store.
type fakeResolver struct {
	owners map[domain.RecordID]domain.PatientID
}

func (f *fakeResolver) PatientOf(ctx context.Context, recordID domain.RecordID) (domain.PatientID, error) {
	owner, ok := f.owners[recordID]
	if !ok {
		return domain.PatientID{}, dErrors.New(dErrors.CodeNotFound, "record not found")
	}
	return owner, nil
}

type GateSuite struct {
	suite.Suite
	assignments *MemoryAssignmentStore
	ledgerStore *audit.MemoryStore
	ledger      *audit.Ledger
	engine      *consent.Engine
	dir         *directory.Service
	resolver    *fakeResolver
	sink        *notify.MemorySink
	gate        *Gate

	patient      *directory.Patient
	doctor       *directory.Doctor
	patientActor domain.Actor
	doctorActor  domain.Actor
	adminActor   domain.Actor
	recordID     domain.RecordID
	now          time.Time
}

func TestGateSuite(t *testing.T) {
	suite.Run(t, new(GateSuite))
}

func (s *GateSuite) SetupTest() {
	ctx := context.Background()

	s.assignments = NewMemoryAssignmentStore()
	s.ledgerStore = audit.NewMemoryStore()
	s.ledger = audit.NewLedger(s.ledgerStore)
	s.dir = directory.NewService(directory.NewMemoryStore())
	s.sink = notify.NewMemorySink()

	consents := consent.NewMemoryConsentStore()
	links := consent.NewMemoryLinkStore()
	s.engine = consent.NewEngine(consents, links, s.ledger, s.dir, consent.WithSink(s.sink))

	s.resolver = &fakeResolver{owners: make(map[domain.RecordID]domain.PatientID)}
	s.gate = NewGate(s.assignments, s.engine, s.dir, s.ledger, s.resolver, WithSink(s.sink))

	var err error
	s.patient, err = s.dir.RegisterPatient(ctx, "patient@example.com", "Pat Example",
		time.Date(1975, 8, 9, 0, 0, 0, 0, time.UTC), "M")
	s.Require().NoError(err)
	s.doctor, err = s.dir.RegisterDoctor(ctx, "doctor@example.com", "Dr. Example", "CRM-7", "Hospital")
	s.Require().NoError(err)

	s.patientActor = domain.Actor{UserID: s.patient.UserID, Role: domain.RolePatient}
	s.doctorActor = domain.Actor{UserID: s.doctor.UserID, Role: domain.RoleDoctor}
	s.adminActor = domain.Actor{UserID: domain.NewUserID(), Role: domain.RoleAdmin}

	s.recordID = domain.NewRecordID()
	s.resolver.owners[s.recordID] = s.patient.ID

	s.now = time.Date(2026, 4, 10, 9, 0, 0, 0, time.UTC)
}

func (s *GateSuite) ctx() context.Context {
	return requestcontext.WithTime(context.Background(), s.now)
}

// linkAndConsent sets up an approved link and an active consent for the
// given scopes.
func (s *GateSuite) linkAndConsent(scopes []string, maxViews *int) {
	ctx := s.ctx()
	link, err := s.engine.RequestLink(ctx, s.doctorActor, s.patient.ID)
	s.Require().NoError(err)
	_, err = s.engine.RespondLink(ctx, s.patientActor, link.ID, true)
	s.Require().NoError(err)
	_, err = s.engine.Grant(ctx, s.patientActor, consent.GrantRequest{
		DoctorID:    s.doctor.ID,
		Scopes:      scopes,
		Purpose:     "TREATMENT",
		WindowStart: s.now.Add(-time.Hour),
		WindowEnd:   s.now.Add(time.Hour),
		MaxViews:    maxViews,
	})
	s.Require().NoError(err)
}

func (s *GateSuite) scopes(names ...string) domain.ScopeSet {
	set, err := domain.ParseScopeSet(names)
	s.Require().NoError(err)
	return set
}

func (s *GateSuite) TestDecide_PatientOwnRecordsOnly() {
	ctx := s.ctx()

	s.Run("own data allowed", func() {
		d, err := s.gate.Decide(ctx, s.patientActor, ActionView, Target{Patient: s.patient.ID}, nil)
		s.Require().NoError(err)
		s.True(d.Allowed)
		s.NotEmpty(d.AuditHash)
	})

	s.Run("another patient's data denied", func() {
		other, err := s.dir.RegisterPatient(ctx, "other@example.com", "Other",
			time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC), "F")
		s.Require().NoError(err)

		d, err := s.gate.Decide(ctx, s.patientActor, ActionView, Target{Patient: other.ID}, nil)
		s.Require().NoError(err)
		s.False(d.Allowed)
		s.Empty(d.AuditHash)
	})
}

func (s *GateSuite) TestDecide_AdminAlwaysAllowed() {
	d, err := s.gate.Decide(s.ctx(), s.adminActor, ActionDelete, Target{Patient: s.patient.ID}, nil)
	s.Require().NoError(err)
	s.True(d.Allowed)
	s.Equal("admin", d.Reason)
}

func (s *GateSuite) TestDecide_DoctorViaConsent() {
	ctx := s.ctx()

	s.Run("denied without consent", func() {
		d, err := s.gate.Decide(ctx, s.doctorActor, ActionView, Target{Patient: s.patient.ID}, s.scopes("LABS"))
		s.Require().NoError(err)
		s.False(d.Allowed)
	})

	s.linkAndConsent([]string{"LABS", "NOTES"}, nil)

	s.Run("allowed within granted scopes", func() {
		d, err := s.gate.Decide(ctx, s.doctorActor, ActionView, Target{Patient: s.patient.ID}, s.scopes("LABS"))
		s.Require().NoError(err)
		s.True(d.Allowed)
		s.Equal("consent", d.Reason)
	})

	s.Run("denied beyond granted scopes", func() {
		d, err := s.gate.Decide(ctx, s.doctorActor, ActionView, Target{Patient: s.patient.ID}, s.scopes("LABS", "DOCUMENTS"))
		s.Require().NoError(err)
		s.False(d.Allowed)
	})
}

func (s *GateSuite) TestDecide_AssignmentBypass() {
	ctx := s.ctx()

	// Approved link but no consent: only the assignment can grant access.
	link, err := s.engine.RequestLink(ctx, s.doctorActor, s.patient.ID)
	s.Require().NoError(err)
	_, err = s.engine.RespondLink(ctx, s.patientActor, link.ID, true)
	s.Require().NoError(err)

	assignment, err := s.gate.Assign(ctx, s.patientActor, s.recordID, s.doctor.ID)
	s.Require().NoError(err)

	s.Run("read of the assigned record allowed without scopes", func() {
		d, err := s.gate.Decide(ctx, s.doctorActor, ActionView, Target{Patient: s.patient.ID, Record: &s.recordID}, nil)
		s.Require().NoError(err)
		s.True(d.Allowed)
		s.Equal("assignment", d.Reason)
	})

	s.Run("write to the assigned record denied", func() {
		d, err := s.gate.Decide(ctx, s.doctorActor, ActionUpdate, Target{Patient: s.patient.ID, Record: &s.recordID}, s.scopes("LABS"))
		s.Require().NoError(err)
		s.False(d.Allowed)
	})

	s.Run("other records of the same patient denied", func() {
		otherRecord := domain.NewRecordID()
		s.resolver.owners[otherRecord] = s.patient.ID
		d, err := s.gate.Decide(ctx, s.doctorActor, ActionView, Target{Patient: s.patient.ID, Record: &otherRecord}, nil)
		s.Require().NoError(err)
		s.False(d.Allowed)
	})

	s.Run("revoking the assignment removes the bypass", func() {
		s.Require().NoError(s.gate.RevokeAssignment(ctx, s.patientActor, assignment.ID))
		d, err := s.gate.Decide(ctx, s.doctorActor, ActionView, Target{Patient: s.patient.ID, Record: &s.recordID}, nil)
		s.Require().NoError(err)
		s.False(d.Allowed)
	})
}

func (s *GateSuite) TestDecide_EveryAllowIsAudited() {
	ctx := s.ctx()

	before, err := s.ledger.Count(ctx)
	s.Require().NoError(err)

	d, err := s.gate.Decide(ctx, s.patientActor, ActionView, Target{Patient: s.patient.ID}, nil)
	s.Require().NoError(err)
	s.True(d.Allowed)

	afterAllow, err := s.ledger.Count(ctx)
	s.Require().NoError(err)
	s.Equal(before+1, afterAllow, "exactly one entry per allow")

	tail, err := s.ledger.TailHash(ctx)
	s.Require().NoError(err)
	s.Equal(tail, d.AuditHash)

	// Deny leaves no trace.
	stranger := domain.Actor{UserID: domain.NewUserID(), Role: domain.RolePatient}
	d, err = s.gate.Decide(ctx, stranger, ActionView, Target{Patient: s.patient.ID}, nil)
	s.Require().NoError(err)
	s.False(d.Allowed)

	afterDeny, err := s.ledger.Count(ctx)
	s.Require().NoError(err)
	s.Equal(afterAllow, afterDeny)
}

func (s *GateSuite) TestDecide_Validation() {
	ctx := s.ctx()

	s.Run("unknown action", func() {
		_, err := s.gate.Decide(ctx, s.patientActor, Action("BROWSE"), Target{Patient: s.patient.ID}, nil)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	s.Run("record target must match its patient", func() {
		other, err := s.dir.RegisterPatient(ctx, "mismatch@example.com", "Mismatch",
			time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC), "F")
		s.Require().NoError(err)

		_, err = s.gate.Decide(ctx, s.patientActor, ActionView, Target{Patient: other.ID, Record: &s.recordID}, nil)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})
}

func (s *GateSuite) TestAssign_Lifecycle() {
	ctx := s.ctx()

	s.Run("assignment requires an approved link", func() {
		_, err := s.gate.Assign(ctx, s.patientActor, s.recordID, s.doctor.ID)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	link, err := s.engine.RequestLink(ctx, s.doctorActor, s.patient.ID)
	s.Require().NoError(err)
	_, err = s.engine.RespondLink(ctx, s.patientActor, link.ID, true)
	s.Require().NoError(err)

	s.Run("only the owner may assign", func() {
		other, err := s.dir.RegisterPatient(ctx, "notmine@example.com", "Not Mine",
			time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC), "M")
		s.Require().NoError(err)
		otherActor := domain.Actor{UserID: other.UserID, Role: domain.RolePatient}

		_, err = s.gate.Assign(ctx, otherActor, s.recordID, s.doctor.ID)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	_, err = s.gate.Assign(ctx, s.patientActor, s.recordID, s.doctor.ID)
	s.Require().NoError(err)

	s.Run("duplicate assignment conflicts", func() {
		_, err := s.gate.Assign(ctx, s.patientActor, s.recordID, s.doctor.ID)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("doctor is notified", func() {
		s.NotEmpty(s.sink.ForRecipient(s.doctor.UserID))
	})
}
