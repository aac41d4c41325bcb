package deletion

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"medihub/internal/access"
	"medihub/internal/audit"
	"medihub/internal/consent"
	"medihub/internal/directory"
	"medihub/internal/notify"
	"medihub/internal/record"
	"medihub/internal/session"
	"medihub/internal/token"
	"medihub/pkg/domain"
	dErrors "medihub/pkg/domain-errors"
	"medihub/pkg/platform/sentinel"
	"medihub/pkg/requestcontext"
)

// failingRecordStore breaks the hard-delete step to drive the saga into its
// FAILED path.
type failingRecordStore struct {
	record.Store
}

func (f *failingRecordStore) HardDeleteByPatient(ctx context.Context, patientID domain.PatientID) (int64, error) {
	return 0, errors.New("disk on fire")
}

// failingAuditStore rejects every append; reads still work.
type failingAuditStore struct {
	audit.Store
}

func (f *failingAuditStore) Append(ctx context.Context, build func(prevHash string) (audit.Entry, error)) (audit.Entry, error) {
	return audit.Entry{}, errors.New("ledger unavailable")
}

type WorkflowSuite struct {
	suite.Suite
	jobs        *MemoryStore
	recordStore *record.MemoryStore
	docStore    *record.MemoryDocumentStore
	consents    *consent.MemoryConsentStore
	links       *consent.MemoryLinkStore
	assignments *access.MemoryAssignmentStore
	ledger      *audit.Ledger
	dir         *directory.Service
	engine      *consent.Engine
	gate        *access.Gate
	records     *record.Service
	sessions    *session.MemoryRevocationStore
	tokens      *token.Service
	sink        *notify.MemorySink
	workflow    *Workflow

	patient      *directory.Patient
	doctor       *directory.Doctor
	patientActor domain.Actor
	adminActor   domain.Actor
	now          time.Time
}

func TestWorkflowSuite(t *testing.T) {
	suite.Run(t, new(WorkflowSuite))
}

func (s *WorkflowSuite) SetupTest() {
	s.jobs = NewMemoryStore()
	s.recordStore = record.NewMemoryStore()
	s.docStore = record.NewMemoryDocumentStore()
	s.consents = consent.NewMemoryConsentStore()
	s.links = consent.NewMemoryLinkStore()
	s.assignments = access.NewMemoryAssignmentStore()
	s.ledger = audit.NewLedger(audit.NewMemoryStore())
	s.dir = directory.NewService(directory.NewMemoryStore())
	s.sink = notify.NewMemorySink()
	s.sessions = session.NewMemoryRevocationStore()
	s.tokens = token.NewService("workflow-suite-signing-key", "medihub-test")

	blobs, err := record.NewFSBlobStore(s.T().TempDir())
	s.Require().NoError(err)

	s.engine = consent.NewEngine(s.consents, s.links, s.ledger, s.dir, consent.WithSink(s.sink))
	resolver := record.NewResolver(s.recordStore)
	s.gate = access.NewGate(s.assignments, s.engine, s.dir, s.ledger, resolver, access.WithSink(s.sink))
	s.records = record.NewService(s.recordStore, s.docStore, blobs, s.gate)

	s.workflow = NewWorkflow(s.jobs, s.records, s.engine, s.gate, s.dir, s.ledger,
		s.sessions, s.tokens, WithSink(s.sink))

	ctx := context.Background()
	s.patient, err = s.dir.RegisterPatient(ctx, "patient@example.com", "Pat Example",
		time.Date(1975, 8, 9, 0, 0, 0, 0, time.UTC), "M")
	s.Require().NoError(err)
	s.doctor, err = s.dir.RegisterDoctor(ctx, "doctor@example.com", "Dr. Example", "CRM-7", "Hospital")
	s.Require().NoError(err)

	s.patientActor = domain.Actor{UserID: s.patient.UserID, Role: domain.RolePatient}
	s.adminActor = domain.Actor{UserID: domain.NewUserID(), Role: domain.RoleAdmin}
	s.now = time.Date(2026, 4, 20, 10, 0, 0, 0, time.UTC)
}

func (s *WorkflowSuite) ctx() context.Context {
	return requestcontext.WithTime(context.Background(), s.now)
}

// seedAccount fills the patient's account with records (one soft-deleted), a
// document, a link, a consent and an assignment.
func (s *WorkflowSuite) seedAccount() {
	ctx := s.ctx()

	r1, err := s.records.Create(ctx, s.patientActor, s.patient.ID, "NOTE",
		map[string]any{"note": "first visit"})
	s.Require().NoError(err)
	_, err = s.records.Create(ctx, s.patientActor, s.patient.ID, "LAB",
		map[string]any{"test_name": "CBC", "result": "normal"})
	s.Require().NoError(err)
	s.Require().NoError(s.records.SoftDelete(ctx, s.patientActor, r1.ID))

	_, err = s.records.AttachDocument(ctx, s.patientActor, s.patient.ID,
		"scan.pdf", "application/pdf", []byte("%PDF-1.4 data"))
	s.Require().NoError(err)

	doctorActor := domain.Actor{UserID: s.doctor.UserID, Role: domain.RoleDoctor}
	link, err := s.engine.RequestLink(ctx, doctorActor, s.patient.ID)
	s.Require().NoError(err)
	_, err = s.engine.RespondLink(ctx, s.patientActor, link.ID, true)
	s.Require().NoError(err)
	_, err = s.engine.Grant(ctx, s.patientActor, consent.GrantRequest{
		DoctorID:    s.doctor.ID,
		Scopes:      []string{"LABS"},
		Purpose:     "TREATMENT",
		WindowStart: s.now.Add(-time.Hour),
		WindowEnd:   s.now.Add(time.Hour),
	})
	s.Require().NoError(err)

	lab, err := s.records.Create(ctx, s.patientActor, s.patient.ID, "LAB",
		map[string]any{"test_name": "A1C", "result": "5.4"})
	s.Require().NoError(err)
	_, err = s.gate.Assign(ctx, s.patientActor, lab.ID, s.doctor.ID)
	s.Require().NoError(err)
}

func (s *WorkflowSuite) TestStart_CompleteRun() {
	ctx := s.ctx()
	s.seedAccount()

	jobID, receiptToken, err := s.workflow.Start(ctx, s.patientActor, s.patient.ID)
	s.Require().NoError(err)
	s.NotEmpty(receiptToken)

	job, err := s.jobs.Find(ctx, jobID)
	s.Require().NoError(err)
	s.Equal(StatusComplete, job.Status)
	s.NotNil(job.CompletedAt)
	s.NotEmpty(job.Steps)

	s.Run("receipt hash recomputes from the stored JSON", func() {
		sum := sha256.Sum256(job.ReceiptJSON)
		s.Equal(hex.EncodeToString(sum[:]), job.ReceiptHash)
	})

	s.Run("counts include the soft-deleted record", func() {
		result, err := s.workflow.GetReceipt(ctx, s.patient.ID, receiptToken)
		s.Require().NoError(err)
		s.Equal(int64(3), result.Receipt.RecordsPurged)
		s.Equal(int64(1), result.Receipt.DocsPurged)
		s.Equal(s.patient.ID.String(), result.Receipt.PatientID)
		s.NotEmpty(result.Receipt.AuditLastHash)
		s.Equal(job.ReceiptHash, result.ReceiptHash)
	})

	s.Run("records, consents, links and assignments are gone", func() {
		n, err := s.recordStore.CountByPatient(ctx, s.patient.ID)
		s.Require().NoError(err)
		s.Zero(n)

		docs, err := s.docStore.ListByPatient(ctx, s.patient.ID)
		s.Require().NoError(err)
		s.Empty(docs)

		consents, err := s.consents.ListByPatient(ctx, s.patient.ID)
		s.Require().NoError(err)
		s.Empty(consents)

		links, err := s.links.ListByPatient(ctx, s.patient.ID)
		s.Require().NoError(err)
		s.Empty(links)
	})

	s.Run("user account and patient profile are gone", func() {
		_, err := s.dir.GetPatient(ctx, s.patient.ID)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("the actor's sessions are revoked", func() {
		revoked, err := s.sessions.IsRevoked(ctx, s.patient.UserID)
		s.Require().NoError(err)
		s.True(revoked)
	})

	s.Run("the final ledger entry records the deletion", func() {
		entries, err := s.ledger.ListByPatient(ctx, s.patient.ID)
		s.Require().NoError(err)
		s.Require().NotEmpty(entries)
		last := entries[len(entries)-1]
		s.Equal(audit.ActionPatientDelete, last.Action)
		s.Contains(last.Details, job.ReceiptHash)
	})
}

func (s *WorkflowSuite) TestStart_Authorization() {
	ctx := s.ctx()

	s.Run("another patient may not start the deletion", func() {
		other, err := s.dir.RegisterPatient(ctx, "other@example.com", "Other",
			time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC), "F")
		s.Require().NoError(err)
		otherActor := domain.Actor{UserID: other.UserID, Role: domain.RolePatient}

		_, _, err = s.workflow.Start(ctx, otherActor, s.patient.ID)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("unknown patient", func() {
		_, _, err := s.workflow.Start(ctx, s.adminActor, domain.NewPatientID())
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("an admin may start it", func() {
		_, _, err := s.workflow.Start(ctx, s.adminActor, s.patient.ID)
		s.Require().NoError(err)
	})
}

func (s *WorkflowSuite) TestStart_ExistingJobBlocks() {
	ctx := s.ctx()

	s.Run("a pending job blocks a new start", func() {
		s.Require().NoError(s.jobs.CreateIfNone(ctx, Job{
			ID:        domain.NewJobID(),
			PatientID: s.patient.ID,
			Status:    StatusPending,
			CreatedAt: s.now,
			UpdatedAt: s.now,
		}))

		_, _, err := s.workflow.Start(ctx, s.patientActor, s.patient.ID)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})
}

func (s *WorkflowSuite) TestStart_FailedJobDoesNotBlock() {
	ctx := s.ctx()

	failed := Job{
		ID:        domain.NewJobID(),
		PatientID: s.patient.ID,
		Status:    StatusPending,
		CreatedAt: s.now.Add(-time.Hour),
		UpdatedAt: s.now.Add(-time.Hour),
	}
	s.Require().NoError(s.jobs.CreateIfNone(ctx, failed))
	s.Require().NoError(s.jobs.SetStatus(ctx, failed.ID, StatusFailed))

	_, _, err := s.workflow.Start(ctx, s.patientActor, s.patient.ID)
	s.Require().NoError(err)
}

func (s *WorkflowSuite) TestStart_FailureIsTerminal() {
	ctx := s.ctx()
	s.seedAccount()

	// Rebuild the record pipeline around a store whose hard delete fails.
	broken := &failingRecordStore{Store: s.recordStore}
	blobs, err := record.NewFSBlobStore(s.T().TempDir())
	s.Require().NoError(err)
	resolver := record.NewResolver(broken)
	gate := access.NewGate(s.assignments, s.engine, s.dir, s.ledger, resolver)
	records := record.NewService(broken, s.docStore, blobs, gate)
	workflow := NewWorkflow(s.jobs, records, s.engine, gate, s.dir, s.ledger,
		s.sessions, s.tokens)

	jobID, _, err := workflow.Start(ctx, s.patientActor, s.patient.ID)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))

	job, err := s.jobs.Find(ctx, jobID)
	s.Require().NoError(err)
	s.Equal(StatusFailed, job.Status)
	s.Nil(job.CompletedAt)

	s.Run("partial steps plus an error step are recorded", func() {
		s.Require().NotEmpty(job.Steps)
		s.Contains(job.Steps[len(job.Steps)-1], "FAILED at purge records")
	})

	s.Run("the failure is audited", func() {
		entries, err := s.ledger.ListByPatient(ctx, s.patient.ID)
		s.Require().NoError(err)
		s.Require().NotEmpty(entries)
		s.Equal(audit.ActionDeleteFailed, entries[len(entries)-1].Action)
	})

	s.Run("no receipt exists for a failed job", func() {
		s.Empty(job.ReceiptJSON)
		s.Empty(job.ReceiptHash)
	})

	s.Run("the account survives", func() {
		_, err := s.dir.GetPatient(ctx, s.patient.ID)
		s.Require().NoError(err)
	})

	s.Run("a fresh start succeeds once the fault is gone", func() {
		_, _, err := s.workflow.Start(ctx, s.patientActor, s.patient.ID)
		s.Require().NoError(err)
	})
}

func (s *WorkflowSuite) TestStart_CompleteIsNeverReverted() {
	ctx := s.ctx()

	// A ledger that cannot take the completion entry. The account is empty,
	// so the saga's only append is that final one.
	ledger := audit.NewLedger(&failingAuditStore{Store: audit.NewMemoryStore()})
	workflow := NewWorkflow(s.jobs, s.records, s.engine, s.gate, s.dir, ledger,
		s.sessions, s.tokens)

	jobID, _, err := workflow.Start(ctx, s.patientActor, s.patient.ID)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))

	job, err := s.jobs.Find(ctx, jobID)
	s.Require().NoError(err)
	s.Equal(StatusFailed, job.Status, "the job must never have turned COMPLETE")
	s.Empty(job.ReceiptHash)
	s.Nil(job.CompletedAt)

	s.Run("no receipt is served", func() {
		receiptToken, err := s.tokens.GenerateReceiptToken(s.patient.ID, jobID, time.Hour)
		s.Require().NoError(err)

		_, err = workflow.GetReceipt(ctx, s.patient.ID, receiptToken)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})
}

func (s *WorkflowSuite) TestJobStore_TerminalStatusIsFinal() {
	ctx := s.ctx()

	job := Job{
		ID:        domain.NewJobID(),
		PatientID: s.patient.ID,
		Status:    StatusInProgress,
		CreatedAt: s.now,
		UpdatedAt: s.now,
	}
	s.Require().NoError(s.jobs.CreateIfNone(ctx, job))
	s.Require().NoError(s.jobs.Complete(ctx, job.ID, []byte(`{}`), "abc123"))

	s.Run("a completed job cannot be flipped to failed", func() {
		err := s.jobs.SetStatus(ctx, job.ID, StatusFailed)
		s.Require().ErrorIs(err, sentinel.ErrInvalidState)

		got, err := s.jobs.Find(ctx, job.ID)
		s.Require().NoError(err)
		s.Equal(StatusComplete, got.Status)
		s.Equal("abc123", got.ReceiptHash)
	})

	s.Run("a completed job cannot be completed again", func() {
		err := s.jobs.Complete(ctx, job.ID, []byte(`{}`), "other")
		s.Require().ErrorIs(err, sentinel.ErrInvalidState)
	})

	s.Run("a failed job cannot be restarted in place", func() {
		failed := Job{
			ID:        domain.NewJobID(),
			PatientID: domain.NewPatientID(),
			Status:    StatusPending,
			CreatedAt: s.now,
			UpdatedAt: s.now,
		}
		s.Require().NoError(s.jobs.CreateIfNone(ctx, failed))
		s.Require().NoError(s.jobs.SetStatus(ctx, failed.ID, StatusFailed))

		err := s.jobs.SetStatus(ctx, failed.ID, StatusInProgress)
		s.Require().ErrorIs(err, sentinel.ErrInvalidState)
	})
}

func (s *WorkflowSuite) TestGetReceipt_TokenValidation() {
	ctx := s.ctx()
	s.seedAccount()

	_, receiptToken, err := s.workflow.Start(ctx, s.patientActor, s.patient.ID)
	s.Require().NoError(err)

	s.Run("garbage token rejected", func() {
		_, err := s.workflow.GetReceipt(ctx, s.patient.ID, "not-a-token")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("token does not transfer to another patient", func() {
		_, err := s.workflow.GetReceipt(ctx, domain.NewPatientID(), receiptToken)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("an access token is not a receipt token", func() {
		accessToken, err := s.tokens.GenerateAccessToken(s.patient.UserID, domain.RolePatient, time.Hour)
		s.Require().NoError(err)

		_, err = s.workflow.GetReceipt(ctx, s.patient.ID, accessToken)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("the right token returns the receipt", func() {
		result, err := s.workflow.GetReceipt(ctx, s.patient.ID, receiptToken)
		s.Require().NoError(err)
		s.Equal(s.patient.ID.String(), result.Receipt.PatientID)
	})
}

func (s *WorkflowSuite) TestGetReceipt_IncompleteJob() {
	ctx := s.ctx()

	job := Job{
		ID:        domain.NewJobID(),
		PatientID: s.patient.ID,
		Status:    StatusInProgress,
		CreatedAt: s.now,
		UpdatedAt: s.now,
	}
	s.Require().NoError(s.jobs.CreateIfNone(ctx, job))

	receiptToken, err := s.tokens.GenerateReceiptToken(s.patient.ID, job.ID, time.Hour)
	s.Require().NoError(err)

	_, err = s.workflow.GetReceipt(ctx, s.patient.ID, receiptToken)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}
