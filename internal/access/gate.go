package access

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"medihub/internal/audit"
	"medihub/internal/consent"
	"medihub/internal/directory"
	"medihub/internal/notify"
	"medihub/internal/platform/metrics"
	"medihub/pkg/domain"
	dErrors "medihub/pkg/domain-errors"
	"medihub/pkg/platform/sentinel"
	"medihub/pkg/requestcontext"
)

// RecordResolver maps a record to its owning patient. The record feature
// provides the implementation; the gate only needs ownership.
type RecordResolver interface {
	PatientOf(ctx context.Context, recordID domain.RecordID) (domain.PatientID, error)
}

// Gate is the single authorization choke point. Every clinical data
// operation asks it first; every Allow leaves exactly one ledger entry, and
// a ledger failure turns the Allow into an error so unaudited access cannot
// happen.
type Gate struct {
	assignments AssignmentStore
	engine      *consent.Engine
	directory   *directory.Service
	ledger      *audit.Ledger
	records     RecordResolver
	sink        notify.Sink
	logger      *slog.Logger
	metrics     *metrics.Metrics
	tracer      trace.Tracer
}

type GateOption func(*Gate)

func WithLogger(logger *slog.Logger) GateOption {
	return func(g *Gate) { g.logger = logger }
}

func WithSink(sink notify.Sink) GateOption {
	return func(g *Gate) { g.sink = sink }
}

func WithMetrics(m *metrics.Metrics) GateOption {
	return func(g *Gate) { g.metrics = m }
}

func NewGate(assignments AssignmentStore, engine *consent.Engine, dir *directory.Service, ledger *audit.Ledger, records RecordResolver, opts ...GateOption) *Gate {
	g := &Gate{
		assignments: assignments,
		engine:      engine,
		directory:   dir,
		ledger:      ledger,
		records:     records,
		logger:      slog.Default(),
		tracer:      otel.Tracer("medihub/access"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Decide authorizes an action against a target. Patients reach only their
// own data, admins everything, doctors whatever consent grants — or, for
// reads of one exact record, an active assignment. The gate holds no state
// between calls; every decision re-derives from current stores.
func (g *Gate) Decide(ctx context.Context, actor domain.Actor, action Action, target Target, requiredScopes domain.ScopeSet) (Decision, error) {
	start := time.Now()
	ctx, span := g.tracer.Start(ctx, "gate.Decide",
		trace.WithAttributes(
			attribute.String("access.action", string(action)),
			attribute.String("access.role", actor.Role.String()),
		),
	)
	defer span.End()
	defer func() {
		g.metrics.ObserveDecideDuration(float64(time.Since(start).Milliseconds()))
	}()

	if !action.IsValid() {
		return Decision{}, dErrors.New(dErrors.CodeBadRequest, "unknown action")
	}
	if target.Patient.IsNil() {
		return Decision{}, dErrors.New(dErrors.CodeBadRequest, "target patient is required")
	}
	if target.Record != nil {
		owner, err := g.records.PatientOf(ctx, *target.Record)
		if err != nil {
			return Decision{}, err
		}
		if owner != target.Patient {
			return Decision{}, dErrors.New(dErrors.CodeBadRequest, "record does not belong to target patient")
		}
	}

	allowed, reason, err := g.decide(ctx, actor, action, target, requiredScopes)
	if err != nil {
		return Decision{}, err
	}
	if !allowed {
		g.metrics.ObserveDecision("deny")
		span.SetAttributes(attribute.Bool("access.allowed", false))
		return Decision{Allowed: false, Reason: reason}, nil
	}

	hash, err := g.ledger.Append(ctx, actor.UserID, target.Patient, auditAction(action), decisionDetails(action, target, requiredScopes))
	if err != nil {
		g.metrics.ObserveDecision("error")
		return Decision{}, err
	}

	g.metrics.ObserveDecision("allow")
	span.SetAttributes(attribute.Bool("access.allowed", true))
	return Decision{Allowed: true, Reason: reason, AuditHash: hash}, nil
}

func (g *Gate) decide(ctx context.Context, actor domain.Actor, action Action, target Target, requiredScopes domain.ScopeSet) (bool, string, error) {
	switch actor.Role {
	case domain.RoleAdmin:
		return true, "admin", nil

	case domain.RolePatient:
		owns, err := g.directory.OwnsPatient(ctx, actor, target.Patient)
		if err != nil {
			return false, "", err
		}
		if !owns {
			return false, "patients reach only their own records", nil
		}
		return true, "owner", nil

	case domain.RoleDoctor:
		doctor, err := g.directory.DoctorForActor(ctx, actor)
		if err != nil {
			if dErrors.HasCode(err, dErrors.CodeNotFound) {
				return false, "no practitioner profile", nil
			}
			return false, "", err
		}

		if action == ActionView && target.Record != nil {
			_, err := g.assignments.FindActive(ctx, *target.Record, doctor.ID)
			if err == nil {
				return true, "assignment", nil
			}
			if !errors.Is(err, sentinel.ErrNotFound) {
				return false, "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to check assignment")
			}
		}

		if len(requiredScopes) == 0 {
			return false, "no scopes requested", nil
		}
		granted, err := g.engine.Evaluate(ctx, target.Patient, doctor.ID, requiredScopes)
		if err != nil {
			return false, "", err
		}
		if !granted {
			return false, "no usable consent", nil
		}
		return true, "consent", nil

	default:
		return false, "unknown role", nil
	}
}

// Assign grants a doctor standing read access to one record. Only the owning
// patient may assign, and only to a doctor holding an approved link.
func (g *Gate) Assign(ctx context.Context, actor domain.Actor, recordID domain.RecordID, doctorID domain.DoctorID) (*Assignment, error) {
	patient, err := g.directory.PatientForActor(ctx, actor)
	if err != nil {
		return nil, err
	}

	owner, err := g.records.PatientOf(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if owner != patient.ID {
		return nil, dErrors.New(dErrors.CodeForbidden, "not your record")
	}

	doctor, err := g.directory.GetDoctor(ctx, doctorID)
	if err != nil {
		return nil, err
	}

	linked, err := g.engine.HasApprovedLink(ctx, patient.ID, doctor.ID)
	if err != nil {
		return nil, err
	}
	if !linked {
		return nil, dErrors.New(dErrors.CodeForbidden, "doctor has no approved link to this patient")
	}

	assignment := Assignment{
		ID:        domain.NewAssignmentID(),
		RecordID:  recordID,
		PatientID: patient.ID,
		DoctorID:  doctor.ID,
		Status:    AssignmentActive,
		CreatedAt: requestcontext.Now(ctx),
	}
	if err := g.assignments.Create(ctx, assignment); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "record is already assigned to this doctor")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create assignment")
	}

	details := fmt.Sprintf("assignment=%s record=%s doctor=%s", assignment.ID, recordID, doctor.ID)
	if _, err := g.ledger.Append(ctx, actor.UserID, patient.ID, audit.ActionRecordAssigned, details); err != nil {
		return nil, err
	}

	notify.Emit(ctx, g.sink, g.logger, doctor.UserID, notify.KindRecordAssigned, "A patient assigned a record to you")
	return &assignment, nil
}

// RevokeAssignment withdraws an assignment. Only the owning patient.
func (g *Gate) RevokeAssignment(ctx context.Context, actor domain.Actor, assignmentID domain.AssignmentID) error {
	patient, err := g.directory.PatientForActor(ctx, actor)
	if err != nil {
		return err
	}

	assignment, err := g.assignments.Find(ctx, assignmentID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "assignment not found")
	}
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load assignment")
	}
	if assignment.PatientID != patient.ID {
		return dErrors.New(dErrors.CodeForbidden, "not your assignment")
	}
	if assignment.Status != AssignmentActive {
		return dErrors.New(dErrors.CodeConflict, "assignment is not active")
	}

	if err := g.assignments.UpdateStatus(ctx, assignmentID, AssignmentRevoked); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to revoke assignment")
	}

	details := fmt.Sprintf("assignment=%s", assignmentID)
	if _, err := g.ledger.Append(ctx, actor.UserID, patient.ID, audit.ActionAssignRevoked, details); err != nil {
		return err
	}

	if doctor, derr := g.directory.GetDoctor(ctx, assignment.DoctorID); derr == nil {
		notify.Emit(ctx, g.sink, g.logger, doctor.UserID, notify.KindAssignmentRevoked, "A record assignment was revoked")
	}
	return nil
}

// PurgeForPatient removes every assignment for a patient. Deletion workflow
// only.
func (g *Gate) PurgeForPatient(ctx context.Context, patientID domain.PatientID) (int64, error) {
	n, err := g.assignments.DeleteByPatient(ctx, patientID)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to purge assignments")
	}
	return n, nil
}

func auditAction(a Action) audit.Action {
	switch a {
	case ActionCreate:
		return audit.ActionRecordCreate
	case ActionUpdate:
		return audit.ActionRecordUpdate
	case ActionDelete:
		return audit.ActionRecordDelete
	default:
		return audit.ActionRecordView
	}
}

func decisionDetails(action Action, target Target, scopes domain.ScopeSet) string {
	var b strings.Builder
	fmt.Fprintf(&b, "action=%s", action)
	if target.Record != nil {
		fmt.Fprintf(&b, " record=%s", target.Record)
	}
	if len(scopes) > 0 {
		fmt.Fprintf(&b, " scopes=%s", strings.Join(scopes.Strings(), ","))
	}
	return b.String()
}
