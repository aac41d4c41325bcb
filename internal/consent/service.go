package consent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"medihub/internal/audit"
	"medihub/internal/directory"
	"medihub/internal/notify"
	"medihub/internal/platform/metrics"
	"medihub/pkg/domain"
	dErrors "medihub/pkg/domain-errors"
	"medihub/pkg/platform/sentinel"
	"medihub/pkg/requestcontext"
)

// Engine answers the single question the access gate asks: may this doctor
// see these scopes of this patient's data right now? It also owns the
// consent and link lifecycles that feed that answer.
type Engine struct {
	consents  ConsentStore
	links     LinkStore
	ledger    *audit.Ledger
	directory *directory.Service
	sink      notify.Sink
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

type EngineOption func(*Engine)

func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) { e.logger = logger }
}

func WithSink(sink notify.Sink) EngineOption {
	return func(e *Engine) { e.sink = sink }
}

func WithMetrics(m *metrics.Metrics) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

func NewEngine(consents ConsentStore, links LinkStore, ledger *audit.Ledger, dir *directory.Service, opts ...EngineOption) *Engine {
	e := &Engine{
		consents:  consents,
		links:     links,
		ledger:    ledger,
		directory: dir,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate decides whether the doctor may access the requested scopes of the
// patient's data right now. The decision is all-or-nothing: every requested
// scope must be covered by a single usable consent. A grant spends one view
// of the consent that covered it; a denial changes nothing.
func (e *Engine) Evaluate(ctx context.Context, patientID domain.PatientID, doctorID domain.DoctorID, requested domain.ScopeSet) (bool, error) {
	if len(requested) == 0 {
		return false, dErrors.New(dErrors.CodeBadRequest, "requested scopes cannot be empty")
	}

	link, err := e.links.FindByParties(ctx, patientID, doctorID)
	if errors.Is(err, sentinel.ErrNotFound) {
		e.metrics.ObserveEvaluation(false)
		return false, nil
	}
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load link")
	}
	if link.Status != LinkApproved {
		e.metrics.ObserveEvaluation(false)
		return false, nil
	}

	consents, err := e.consents.ListByParties(ctx, patientID, doctorID)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load consents")
	}

	now := requestcontext.Now(ctx)
	for _, c := range consents {
		if !c.ActiveAt(now) {
			continue
		}
		if !requested.SubsetOf(c.Scopes) {
			continue
		}
		err := e.consents.ConsumeView(ctx, c.ID)
		if errors.Is(err, sentinel.ErrExhausted) {
			continue
		}
		if err != nil {
			return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to consume consent view")
		}
		e.metrics.ObserveEvaluation(true)
		return true, nil
	}

	e.metrics.ObserveEvaluation(false)
	return false, nil
}

// GrantRequest carries the parameters of a new consent.
type GrantRequest struct {
	DoctorID    domain.DoctorID
	Scopes      []string
	Purpose     string
	WindowStart time.Time
	WindowEnd   time.Time
	MaxViews    *int
}

// Grant creates a consent from the patient actor to a doctor. Overlapping
// windows between the same parties conflict regardless of scopes.
func (e *Engine) Grant(ctx context.Context, actor domain.Actor, req GrantRequest) (*Consent, error) {
	patient, err := e.directory.PatientForActor(ctx, actor)
	if err != nil {
		return nil, err
	}

	scopes, err := domain.ParseScopeSet(req.Scopes)
	if err != nil {
		return nil, err
	}
	purpose, err := domain.ParseConsentPurpose(req.Purpose)
	if err != nil {
		return nil, err
	}
	if req.DoctorID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "doctor id is required")
	}
	if !req.WindowEnd.After(req.WindowStart) {
		return nil, dErrors.New(dErrors.CodeBadRequest, "consent window end must be after start")
	}
	if req.MaxViews != nil && *req.MaxViews < 1 {
		return nil, dErrors.New(dErrors.CodeBadRequest, "max views must be positive")
	}

	doctor, err := e.directory.GetDoctor(ctx, req.DoctorID)
	if err != nil {
		return nil, err
	}

	existing, err := e.consents.ListByParties(ctx, patient.ID, doctor.ID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load consents")
	}
	for _, c := range existing {
		if c.Status == StatusActive && c.Overlaps(req.WindowStart, req.WindowEnd) {
			return nil, dErrors.New(dErrors.CodeConflict, "an active consent already covers part of this window")
		}
	}

	consent := Consent{
		ID:          domain.NewConsentID(),
		PatientID:   patient.ID,
		DoctorID:    doctor.ID,
		Scopes:      scopes,
		Purpose:     purpose,
		WindowStart: req.WindowStart,
		WindowEnd:   req.WindowEnd,
		MaxViews:    req.MaxViews,
		Status:      StatusActive,
		CreatedAt:   requestcontext.Now(ctx),
	}
	if err := e.consents.Create(ctx, consent); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create consent")
	}

	details := fmt.Sprintf("consent=%s doctor=%s purpose=%s", consent.ID, doctor.ID, purpose)
	if _, err := e.ledger.Append(ctx, actor.UserID, patient.ID, audit.ActionConsentCreated, details); err != nil {
		return nil, err
	}

	notify.Emit(ctx, e.sink, e.logger, doctor.UserID, notify.KindConsentGranted,
		fmt.Sprintf("Patient granted consent for %v until %s", scopes.Strings(), consent.WindowEnd.Format(time.RFC3339)))
	return &consent, nil
}

// Revoke ends an ACTIVE consent. Either party may revoke: the patient who
// granted it or the doctor it was granted to.
func (e *Engine) Revoke(ctx context.Context, actor domain.Actor, consentID domain.ConsentID) error {
	consent, err := e.consents.Find(ctx, consentID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "consent not found")
	}
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load consent")
	}

	party, err := e.isParty(ctx, actor, consent.PatientID, consent.DoctorID)
	if err != nil {
		return err
	}
	if !party {
		return dErrors.New(dErrors.CodeForbidden, "only the granting patient or the granted doctor may revoke")
	}
	if consent.Status != StatusActive {
		return dErrors.New(dErrors.CodeConflict, "consent is not active")
	}

	if err := e.consents.UpdateStatus(ctx, consentID, StatusRevoked); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to revoke consent")
	}

	details := fmt.Sprintf("consent=%s", consentID)
	if _, err := e.ledger.Append(ctx, actor.UserID, consent.PatientID, audit.ActionConsentRevoked, details); err != nil {
		return err
	}

	if doctor, derr := e.directory.GetDoctor(ctx, consent.DoctorID); derr == nil {
		notify.Emit(ctx, e.sink, e.logger, doctor.UserID, notify.KindConsentRevoked, "A consent covering your access was revoked")
	}
	return nil
}

// ListForPatient returns a patient's consents: the patient themselves or an
// admin.
func (e *Engine) ListForPatient(ctx context.Context, actor domain.Actor, patientID domain.PatientID) ([]Consent, error) {
	if actor.Role != domain.RoleAdmin {
		owns, err := e.directory.OwnsPatient(ctx, actor, patientID)
		if err != nil {
			return nil, err
		}
		if !owns {
			return nil, dErrors.New(dErrors.CodeForbidden, "not your consents")
		}
	}
	consents, err := e.consents.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list consents")
	}
	return consents, nil
}

// RequestLink creates a REQUESTED link from the doctor actor to a patient.
func (e *Engine) RequestLink(ctx context.Context, actor domain.Actor, patientID domain.PatientID) (*Link, error) {
	doctor, err := e.directory.DoctorForActor(ctx, actor)
	if err != nil {
		return nil, err
	}
	patient, err := e.directory.GetPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}

	link := Link{
		ID:          domain.NewLinkID(),
		PatientID:   patient.ID,
		DoctorID:    doctor.ID,
		Status:      LinkRequested,
		RequestedAt: requestcontext.Now(ctx),
	}
	if err := e.links.Create(ctx, link); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "a link between these parties already exists")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create link")
	}

	details := fmt.Sprintf("link=%s doctor=%s", link.ID, doctor.ID)
	if _, err := e.ledger.Append(ctx, actor.UserID, patient.ID, audit.ActionAccessRequest, details); err != nil {
		return nil, err
	}

	notify.Emit(ctx, e.sink, e.logger, patient.UserID, notify.KindLinkRequested, "A doctor requested access to your records")
	return &link, nil
}

// RespondLink lets the owning patient approve a REQUESTED link or revoke a
// REQUESTED/APPROVED one. Revoking cuts the doctor's access immediately;
// consents stay in place and resume if the link is later re-approved.
func (e *Engine) RespondLink(ctx context.Context, actor domain.Actor, linkID domain.LinkID, approve bool) (*Link, error) {
	patient, err := e.directory.PatientForActor(ctx, actor)
	if err != nil {
		return nil, err
	}

	link, err := e.links.Find(ctx, linkID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "link not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load link")
	}
	if link.PatientID != patient.ID {
		return nil, dErrors.New(dErrors.CodeForbidden, "not your link")
	}

	var next LinkStatus
	var kind notify.Kind
	switch {
	case approve && link.Status == LinkRequested:
		next, kind = LinkApproved, notify.KindLinkApproved
	case !approve && link.Status != LinkRevoked:
		next, kind = LinkRevoked, notify.KindLinkRevoked
	default:
		return nil, dErrors.New(dErrors.CodeConflict, "link cannot transition from its current status")
	}

	if err := e.links.UpdateStatus(ctx, linkID, next); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update link")
	}

	details := fmt.Sprintf("link=%s status=%s", linkID, next)
	if _, err := e.ledger.Append(ctx, actor.UserID, patient.ID, audit.ActionAccessResponse, details); err != nil {
		return nil, err
	}

	if doctor, derr := e.directory.GetDoctor(ctx, link.DoctorID); derr == nil {
		notify.Emit(ctx, e.sink, e.logger, doctor.UserID, kind, fmt.Sprintf("Your access link is now %s", next))
	}

	updated := *link
	updated.Status = next
	now := requestcontext.Now(ctx)
	updated.RespondedAt = &now
	return &updated, nil
}

// ListLinks returns the links the actor is a party to.
func (e *Engine) ListLinks(ctx context.Context, actor domain.Actor) ([]Link, error) {
	switch actor.Role {
	case domain.RolePatient:
		patient, err := e.directory.PatientForActor(ctx, actor)
		if err != nil {
			return nil, err
		}
		links, err := e.links.ListByPatient(ctx, patient.ID)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list links")
		}
		return links, nil
	case domain.RoleDoctor:
		doctor, err := e.directory.DoctorForActor(ctx, actor)
		if err != nil {
			return nil, err
		}
		links, err := e.links.ListByDoctor(ctx, doctor.ID)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list links")
		}
		return links, nil
	default:
		return nil, dErrors.New(dErrors.CodeForbidden, "admins have no links")
	}
}

// HasApprovedLink reports whether the doctor currently holds an APPROVED
// link to the patient. Used by the access gate's assignment path.
func (e *Engine) HasApprovedLink(ctx context.Context, patientID domain.PatientID, doctorID domain.DoctorID) (bool, error) {
	link, err := e.links.FindByParties(ctx, patientID, doctorID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load link")
	}
	return link.Status == LinkApproved, nil
}

// PurgeForPatient removes every consent and link for a patient. Deletion
// workflow only.
func (e *Engine) PurgeForPatient(ctx context.Context, patientID domain.PatientID) (consents, links int64, err error) {
	consents, err = e.consents.DeleteByPatient(ctx, patientID)
	if err != nil {
		return 0, 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to purge consents")
	}
	links, err = e.links.DeleteByPatient(ctx, patientID)
	if err != nil {
		return consents, 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to purge links")
	}
	return consents, links, nil
}

func (e *Engine) isParty(ctx context.Context, actor domain.Actor, patientID domain.PatientID, doctorID domain.DoctorID) (bool, error) {
	switch actor.Role {
	case domain.RolePatient:
		return e.directory.OwnsPatient(ctx, actor, patientID)
	case domain.RoleDoctor:
		doctor, err := e.directory.DoctorForActor(ctx, actor)
		if err != nil {
			if dErrors.HasCode(err, dErrors.CodeNotFound) {
				return false, nil
			}
			return false, err
		}
		return doctor.ID == doctorID, nil
	default:
		return false, nil
	}
}
