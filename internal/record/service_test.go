package record

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"medihub/internal/access"
	"medihub/internal/audit"
	"medihub/internal/consent"
	"medihub/internal/directory"
	"medihub/pkg/domain"
	dErrors "medihub/pkg/domain-errors"
	"medihub/pkg/requestcontext"
)

type ServiceSuite struct {
	suite.Suite
	store   *MemoryStore
	docs    *MemoryDocumentStore
	blobs   *FSBlobStore
	ledger  *audit.Ledger
	engine  *consent.Engine
	dir     *directory.Service
	gate    *access.Gate
	service *Service

	patient      *directory.Patient
	doctor       *directory.Doctor
	patientActor domain.Actor
	doctorActor  domain.Actor
	now          time.Time
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	ctx := context.Background()

	s.store = NewMemoryStore()
	s.docs = NewMemoryDocumentStore()
	var err error
	s.blobs, err = NewFSBlobStore(s.T().TempDir())
	s.Require().NoError(err)

	s.ledger = audit.NewLedger(audit.NewMemoryStore())
	s.dir = directory.NewService(directory.NewMemoryStore())
	s.engine = consent.NewEngine(consent.NewMemoryConsentStore(), consent.NewMemoryLinkStore(), s.ledger, s.dir)
	s.gate = access.NewGate(access.NewMemoryAssignmentStore(), s.engine, s.dir, s.ledger, NewResolver(s.store))
	s.service = NewService(s.store, s.docs, s.blobs, s.gate)

	s.patient, err = s.dir.RegisterPatient(ctx, "patient@example.com", "Pat Example",
		time.Date(1970, 3, 3, 0, 0, 0, 0, time.UTC), "F")
	s.Require().NoError(err)
	s.doctor, err = s.dir.RegisterDoctor(ctx, "doctor@example.com", "Dr. Example", "CRM-4", "Clinic")
	s.Require().NoError(err)

	s.patientActor = domain.Actor{UserID: s.patient.UserID, Role: domain.RolePatient}
	s.doctorActor = domain.Actor{UserID: s.doctor.UserID, Role: domain.RoleDoctor}
	s.now = time.Date(2026, 5, 20, 15, 0, 0, 0, time.UTC)
}

func (s *ServiceSuite) ctx() context.Context {
	return requestcontext.WithTime(context.Background(), s.now)
}

func (s *ServiceSuite) consentDoctor(scopes ...string) {
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
	})
	s.Require().NoError(err)
}

func (s *ServiceSuite) TestCreate_SchemaValidation() {
	ctx := s.ctx()

	cases := []struct {
		name    string
		typ     string
		content map[string]any
	}{
		{"unknown type", "XRAY", map[string]any{"anything": "x"}},
		{"empty content", "NOTE", nil},
		{"missing field", "ENCOUNTER", map[string]any{"chief_complaint": "headache"}},
		{"empty field", "LAB", map[string]any{"test_name": "CBC", "result": ""}},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			before, err := s.ledger.Count(ctx)
			s.Require().NoError(err)

			_, err = s.service.Create(ctx, s.patientActor, s.patient.ID, tc.typ, tc.content)
			s.Require().Error(err)
			s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))

			after, err := s.ledger.Count(ctx)
			s.Require().NoError(err)
			s.Equal(before, after, "rejected input must not reach the ledger")
		})
	}
}

func (s *ServiceSuite) TestCreate_HashesContent() {
	ctx := s.ctx()

	r, err := s.service.Create(ctx, s.patientActor, s.patient.ID, "LAB",
		map[string]any{"test_name": "CBC", "result": "normal"})
	s.Require().NoError(err)
	s.NotEmpty(r.ContentHash)

	expected, err := domain.HashContent(r.Content)
	s.Require().NoError(err)
	s.Equal(expected, r.ContentHash)
}

func (s *ServiceSuite) TestGet_DoctorNeedsConsentScope() {
	ctx := s.ctx()
	r, err := s.service.Create(ctx, s.patientActor, s.patient.ID, "LAB",
		map[string]any{"test_name": "CBC", "result": "normal"})
	s.Require().NoError(err)

	s.Run("denied without consent", func() {
		_, err := s.service.Get(ctx, s.doctorActor, r.ID)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("wrong scope still denies", func() {
		s.consentDoctor("NOTES")
		_, err := s.service.Get(ctx, s.doctorActor, r.ID)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("matching scope allows", func() {
		// Widen access with a later window to avoid overlapping the first.
		_, err := s.engine.Grant(ctx, s.patientActor, consent.GrantRequest{
			DoctorID:    s.doctor.ID,
			Scopes:      []string{"LABS"},
			Purpose:     "TREATMENT",
			WindowStart: s.now.Add(2 * time.Hour),
			WindowEnd:   s.now.Add(3 * time.Hour),
		})
		s.Require().NoError(err)

		later := requestcontext.WithTime(context.Background(), s.now.Add(150*time.Minute))
		got, err := s.service.Get(later, s.doctorActor, r.ID)
		s.Require().NoError(err)
		s.Equal(r.ID, got.ID)
	})
}

func (s *ServiceSuite) TestList_FiltersByScope() {
	ctx := s.ctx()

	_, err := s.service.Create(ctx, s.patientActor, s.patient.ID, "LAB",
		map[string]any{"test_name": "CBC", "result": "normal"})
	s.Require().NoError(err)
	_, err = s.service.Create(ctx, s.patientActor, s.patient.ID, "NOTE",
		map[string]any{"note": "follow up in two weeks"})
	s.Require().NoError(err)

	labs, err := domain.ParseScopeSet([]string{"LABS"})
	s.Require().NoError(err)
	records, err := s.service.List(ctx, s.patientActor, s.patient.ID, labs)
	s.Require().NoError(err)
	s.Require().Len(records, 1)
	s.Equal(domain.RecordLab, records[0].Type)

	all, err := s.service.List(ctx, s.patientActor, s.patient.ID, nil)
	s.Require().NoError(err)
	s.Len(all, 2)
}

func (s *ServiceSuite) TestUpdate_RevalidatesContent() {
	ctx := s.ctx()
	r, err := s.service.Create(ctx, s.patientActor, s.patient.ID, "PRESCRIPTION",
		map[string]any{"medication": "amoxicillin", "dosage": "500mg"})
	s.Require().NoError(err)

	_, err = s.service.Update(ctx, s.patientActor, r.ID, map[string]any{"medication": "amoxicillin"})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))

	updated, err := s.service.Update(ctx, s.patientActor, r.ID,
		map[string]any{"medication": "amoxicillin", "dosage": "250mg"})
	s.Require().NoError(err)
	s.NotEqual(r.ContentHash, updated.ContentHash)
}

func (s *ServiceSuite) TestSoftDelete_HidesButKeepsRow() {
	ctx := s.ctx()
	r, err := s.service.Create(ctx, s.patientActor, s.patient.ID, "NOTE",
		map[string]any{"note": "to be removed"})
	s.Require().NoError(err)

	s.Require().NoError(s.service.SoftDelete(ctx, s.patientActor, r.ID))

	_, err = s.service.Get(ctx, s.patientActor, r.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	records, documents, err := s.service.Counts(ctx, s.patient.ID)
	s.Require().NoError(err)
	s.Equal(int64(1), records, "soft-deleted rows still count for the purge receipt")
	s.Zero(documents)
}

func (s *ServiceSuite) TestDocuments_RoundTripAndPurge() {
	ctx := s.ctx()
	payload := []byte("%PDF-1.4 discharge summary")

	doc, err := s.service.AttachDocument(ctx, s.patientActor, s.patient.ID,
		"discharge.pdf", "application/pdf", payload)
	s.Require().NoError(err)
	s.Equal(int64(len(payload)), doc.Size)

	got, data, err := s.service.GetDocument(ctx, s.patientActor, doc.ID)
	s.Require().NoError(err)
	s.Equal(doc.BlobKey, got.BlobKey)
	s.Equal(payload, data)

	s.Run("doctor denied without DOCUMENTS scope", func() {
		_, _, err := s.service.GetDocument(ctx, s.doctorActor, doc.ID)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	purged, err := s.service.PurgeDocuments(ctx, s.patient.ID)
	s.Require().NoError(err)
	s.Equal(int64(1), purged)

	_, _, err = s.service.GetDocument(ctx, s.patientActor, doc.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestPurgeRecords() {
	ctx := s.ctx()
	for i := 0; i < 3; i++ {
		_, err := s.service.Create(ctx, s.patientActor, s.patient.ID, "NOTE",
			map[string]any{"note": "entry"})
		s.Require().NoError(err)
	}

	purged, err := s.service.PurgeRecords(ctx, s.patient.ID)
	s.Require().NoError(err)
	s.Equal(int64(3), purged)

	records, err := s.service.List(ctx, s.patientActor, s.patient.ID, nil)
	s.Require().NoError(err)
	s.Empty(records)
}
