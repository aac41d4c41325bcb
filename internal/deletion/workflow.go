package deletion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"medihub/internal/access"
	"medihub/internal/audit"
	"medihub/internal/consent"
	"medihub/internal/directory"
	"medihub/internal/notify"
	"medihub/internal/platform/metrics"
	"medihub/internal/record"
	"medihub/internal/session"
	"medihub/internal/token"
	"medihub/pkg/domain"
	dErrors "medihub/pkg/domain-errors"
	"medihub/pkg/platform/sentinel"
	"medihub/pkg/requestcontext"
)

// sessionRevocationTTL must outlive any issued access token so a deleted
// account's surviving tokens are dead for their whole lifetime.
const sessionRevocationTTL = 24 * time.Hour

// Workflow purges a patient's account: records, documents, consents, links,
// assignments and finally the user itself, as a saga of checkpointed steps.
// A failed run goes to FAILED and stays there; partial work is visible in
// the job's steps, and the failed job blocks no future run.
type Workflow struct {
	jobs       Store
	records    *record.Service
	engine     *consent.Engine
	gate       *access.Gate
	directory  *directory.Service
	ledger     *audit.Ledger
	sessions   session.RevocationStore
	tokens     *token.Service
	sink       notify.Sink
	logger     *slog.Logger
	metrics    *metrics.Metrics
	receiptTTL time.Duration
}

type WorkflowOption func(*Workflow)

func WithLogger(logger *slog.Logger) WorkflowOption {
	return func(w *Workflow) { w.logger = logger }
}

func WithSink(sink notify.Sink) WorkflowOption {
	return func(w *Workflow) { w.sink = sink }
}

func WithMetrics(m *metrics.Metrics) WorkflowOption {
	return func(w *Workflow) { w.metrics = m }
}

func WithReceiptTTL(ttl time.Duration) WorkflowOption {
	return func(w *Workflow) {
		if ttl > 0 {
			w.receiptTTL = ttl
		}
	}
}

func NewWorkflow(
	jobs Store,
	records *record.Service,
	engine *consent.Engine,
	gate *access.Gate,
	dir *directory.Service,
	ledger *audit.Ledger,
	sessions session.RevocationStore,
	tokens *token.Service,
	opts ...WorkflowOption,
) *Workflow {
	w := &Workflow{
		jobs:       jobs,
		records:    records,
		engine:     engine,
		gate:       gate,
		directory:  dir,
		ledger:     ledger,
		sessions:   sessions,
		tokens:     tokens,
		logger:     slog.Default(),
		receiptTTL: 72 * time.Hour,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start begins and runs the deletion for a patient. Only the owning patient
// or an admin may start it. The returned receipt token is the sole
// credential for fetching the receipt later: the account it belonged to is
// gone when this returns.
func (w *Workflow) Start(ctx context.Context, actor domain.Actor, patientID domain.PatientID) (domain.JobID, string, error) {
	patient, err := w.directory.GetPatient(ctx, patientID)
	if err != nil {
		return domain.JobID{}, "", err
	}

	if actor.Role != domain.RoleAdmin {
		owns, err := w.directory.OwnsPatient(ctx, actor, patientID)
		if err != nil {
			return domain.JobID{}, "", err
		}
		if !owns {
			return domain.JobID{}, "", dErrors.New(dErrors.CodeForbidden, "only the account owner or an admin may delete a patient")
		}
	}

	now := requestcontext.Now(ctx)
	job := Job{
		ID:          domain.NewJobID(),
		PatientID:   patientID,
		RequestedBy: actor.UserID,
		Status:      StatusPending,
		Steps:       []string{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := w.jobs.CreateIfNone(ctx, job); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return domain.JobID{}, "", dErrors.New(dErrors.CodeConflict, "a deletion job already exists for this patient")
		}
		return domain.JobID{}, "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to create deletion job")
	}

	receiptToken, err := w.tokens.GenerateReceiptToken(patientID, job.ID, w.receiptTTL)
	if err != nil {
		return domain.JobID{}, "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue receipt token")
	}

	if err := w.run(ctx, actor, job.ID, patient); err != nil {
		return job.ID, receiptToken, err
	}
	return job.ID, receiptToken, nil
}

// run executes the saga. Each step checkpoints through the job store before
// the next begins.
func (w *Workflow) run(ctx context.Context, actor domain.Actor, jobID domain.JobID, patient *directory.Patient) error {
	patientID := patient.ID

	if err := w.jobs.SetStatus(ctx, jobID, StatusInProgress); err != nil {
		return w.fail(ctx, actor, jobID, patientID, "start", err)
	}

	records, docs, err := w.records.Counts(ctx, patientID)
	if err != nil {
		return w.fail(ctx, actor, jobID, patientID, "enumerate data", err)
	}
	if err := w.step(ctx, jobID, fmt.Sprintf("Found %d EHR records to delete", records)); err != nil {
		return w.fail(ctx, actor, jobID, patientID, "checkpoint", err)
	}
	if err := w.step(ctx, jobID, fmt.Sprintf("Found %d documents to delete", docs)); err != nil {
		return w.fail(ctx, actor, jobID, patientID, "checkpoint", err)
	}

	docsPurged, err := w.records.PurgeDocuments(ctx, patientID)
	if err != nil {
		return w.fail(ctx, actor, jobID, patientID, "purge documents", err)
	}
	if err := w.step(ctx, jobID, fmt.Sprintf("Deleted %d documents and their stored files", docsPurged)); err != nil {
		return w.fail(ctx, actor, jobID, patientID, "checkpoint", err)
	}

	recordsPurged, err := w.records.PurgeRecords(ctx, patientID)
	if err != nil {
		return w.fail(ctx, actor, jobID, patientID, "purge records", err)
	}
	if err := w.step(ctx, jobID, fmt.Sprintf("Deleted %d EHR records", recordsPurged)); err != nil {
		return w.fail(ctx, actor, jobID, patientID, "checkpoint", err)
	}

	consents, links, err := w.engine.PurgeForPatient(ctx, patientID)
	if err != nil {
		return w.fail(ctx, actor, jobID, patientID, "purge consents", err)
	}
	if err := w.step(ctx, jobID, fmt.Sprintf("Deleted %d consents and %d access links", consents, links)); err != nil {
		return w.fail(ctx, actor, jobID, patientID, "checkpoint", err)
	}

	assignments, err := w.gate.PurgeForPatient(ctx, patientID)
	if err != nil {
		return w.fail(ctx, actor, jobID, patientID, "purge assignments", err)
	}
	if err := w.step(ctx, jobID, fmt.Sprintf("Deleted %d record assignments", assignments)); err != nil {
		return w.fail(ctx, actor, jobID, patientID, "checkpoint", err)
	}

	if err := w.directory.RemoveUser(ctx, patient.UserID); err != nil {
		return w.fail(ctx, actor, jobID, patientID, "delete user account", err)
	}
	// The patient profile should cascade with the user row. Verify, and
	// compensate with a direct delete when it did not.
	if _, err := w.directory.GetPatient(ctx, patientID); err == nil {
		w.logger.WarnContext(ctx, "patient profile survived user deletion, compensating",
			"patient_id", patientID.String(),
		)
		if err := w.directory.RemovePatient(ctx, patientID); err != nil {
			return w.fail(ctx, actor, jobID, patientID, "delete patient profile", err)
		}
	} else if !dErrors.HasCode(err, dErrors.CodeNotFound) {
		return w.fail(ctx, actor, jobID, patientID, "verify patient removal", err)
	}
	if err := w.step(ctx, jobID, "Deleted user account and patient profile"); err != nil {
		return w.fail(ctx, actor, jobID, patientID, "checkpoint", err)
	}

	auditLastHash, err := w.ledger.TailHash(ctx)
	if err != nil {
		return w.fail(ctx, actor, jobID, patientID, "capture audit tail", err)
	}

	job, err := w.jobs.Find(ctx, jobID)
	if err != nil {
		return w.fail(ctx, actor, jobID, patientID, "load job", err)
	}

	deletedAt := requestcontext.Now(ctx).UTC()
	receipt := Receipt{
		PatientID:     patientID.String(),
		DeletedAt:     deletedAt.Format(time.RFC3339),
		RecordsPurged: recordsPurged,
		DocsPurged:    docsPurged,
		AuditLastHash: auditLastHash,
		Steps:         job.Steps,
	}
	receiptJSON, receiptHash, err := receipt.Encode()
	if err != nil {
		return w.fail(ctx, actor, jobID, patientID, "build receipt", err)
	}

	// The completion entry goes to the ledger before the job turns COMPLETE:
	// terminal statuses never revert, so everything that can still fail the
	// run must happen first.
	details := fmt.Sprintf("records=%d docs=%d receipt=%s", recordsPurged, docsPurged, receiptHash)
	if _, err := w.ledger.Append(ctx, actor.UserID, patientID, audit.ActionPatientDelete, details); err != nil {
		return w.fail(ctx, actor, jobID, patientID, "audit completion", err)
	}

	if err := w.jobs.Complete(ctx, jobID, receiptJSON, receiptHash); err != nil {
		return w.fail(ctx, actor, jobID, patientID, "persist receipt", err)
	}

	if err := w.sessions.Revoke(ctx, patient.UserID, sessionRevocationTTL); err != nil {
		// The account is gone; a missed revocation only shortens nothing.
		w.logger.ErrorContext(ctx, "session revocation failed after deletion",
			"user_id", patient.UserID.String(),
			"error", err,
		)
	}

	w.metrics.ObserveDeletionJob(string(StatusComplete))
	notify.Emit(ctx, w.sink, w.logger, actor.UserID, notify.KindAccountDeleted,
		fmt.Sprintf("Patient account purged: %d records, %d documents", recordsPurged, docsPurged))

	w.logger.InfoContext(ctx, "deletion job complete",
		"job_id", jobID.String(),
		"patient_id", patientID.String(),
		"records_purged", recordsPurged,
		"docs_purged", docsPurged,
	)
	return nil
}

func (w *Workflow) step(ctx context.Context, jobID domain.JobID, text string) error {
	return w.jobs.AppendStep(ctx, jobID, text)
}

// fail moves the job to its terminal FAILED state, recording where it broke.
func (w *Workflow) fail(ctx context.Context, actor domain.Actor, jobID domain.JobID, patientID domain.PatientID, stage string, cause error) error {
	w.logger.ErrorContext(ctx, "deletion job failed",
		"job_id", jobID.String(),
		"patient_id", patientID.String(),
		"stage", stage,
		"error", cause,
	)

	if err := w.jobs.AppendStep(ctx, jobID, fmt.Sprintf("FAILED at %s: %v", stage, cause)); err != nil {
		w.logger.ErrorContext(ctx, "failed to record failure step", "job_id", jobID.String(), "error", err)
	}
	if err := w.jobs.SetStatus(ctx, jobID, StatusFailed); err != nil {
		w.logger.ErrorContext(ctx, "failed to mark job failed", "job_id", jobID.String(), "error", err)
	}

	if _, err := w.ledger.Append(ctx, actor.UserID, patientID, audit.ActionDeleteFailed, fmt.Sprintf("stage=%s", stage)); err != nil {
		w.logger.ErrorContext(ctx, "failed to audit deletion failure", "job_id", jobID.String(), "error", err)
	}

	w.metrics.ObserveDeletionJob(string(StatusFailed))
	return dErrors.Wrap(cause, dErrors.CodeInternal, "deletion failed at "+stage)
}

// ReceiptResult is what a receipt-token holder gets back.
type ReceiptResult struct {
	JobID       domain.JobID
	Receipt     Receipt
	ReceiptHash string
	CompletedAt time.Time
}

// GetReceipt returns the receipt for a completed deletion. The token issued
// at Start is the authorization; sessions of the deleted account no longer
// exist.
func (w *Workflow) GetReceipt(ctx context.Context, patientID domain.PatientID, receiptToken string) (*ReceiptResult, error) {
	tokenPatient, tokenJob, err := w.tokens.ValidateReceiptToken(receiptToken)
	if err != nil {
		return nil, err
	}
	if tokenPatient != patientID {
		return nil, dErrors.New(dErrors.CodeForbidden, "receipt token does not match this patient")
	}

	job, err := w.jobs.Find(ctx, tokenJob)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "deletion job not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load deletion job")
	}
	if job.PatientID != patientID {
		return nil, dErrors.New(dErrors.CodeForbidden, "receipt token does not match this patient")
	}
	if job.Status != StatusComplete {
		return nil, dErrors.New(dErrors.CodeConflict, "deletion has not completed")
	}

	var receipt Receipt
	if err := json.Unmarshal(job.ReceiptJSON, &receipt); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "stored receipt is unreadable")
	}

	return &ReceiptResult{
		JobID:       job.ID,
		Receipt:     receipt,
		ReceiptHash: job.ReceiptHash,
		CompletedAt: *job.CompletedAt,
	}, nil
}

// Status returns a job's current state for the admin surface.
func (w *Workflow) Status(ctx context.Context, jobID domain.JobID) (*Job, error) {
	job, err := w.jobs.Find(ctx, jobID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "deletion job not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load deletion job")
	}
	return job, nil
}
