package record

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"medihub/internal/access"
	"medihub/pkg/domain"
	dErrors "medihub/pkg/domain-errors"
	"medihub/pkg/platform/sentinel"
	"medihub/pkg/requestcontext"
)

// Service is the clinical chart: records and uploaded documents. Every read
// and write goes through the access gate first; the service itself never
// re-implements policy.
type Service struct {
	store     Store
	documents DocumentStore
	blobs     BlobStore
	gate      *access.Gate
	logger    *slog.Logger
}

type ServiceOption func(*Service)

func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) { s.logger = logger }
}

func NewService(store Store, documents DocumentStore, blobs BlobStore, gate *access.Gate, opts ...ServiceOption) *Service {
	s := &Service{
		store:     store,
		documents: documents,
		blobs:     blobs,
		gate:      gate,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Resolver adapts the record store to the gate's resolver interface. It is
// built straight on the store so the gate and the service can both exist
// without a construction cycle.
type Resolver struct {
	store Store
}

func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

// PatientOf returns the patient owning a record.
func (r *Resolver) PatientOf(ctx context.Context, recordID domain.RecordID) (domain.PatientID, error) {
	rec, err := r.store.Find(ctx, recordID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return domain.PatientID{}, dErrors.New(dErrors.CodeNotFound, "record not found")
	}
	if err != nil {
		return domain.PatientID{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load record")
	}
	return rec.PatientID, nil
}

// Create validates the typed content, authorizes, and persists a new record.
// Validation runs before the gate so malformed input never reaches the
// ledger.
func (s *Service) Create(ctx context.Context, actor domain.Actor, patientID domain.PatientID, typeName string, content map[string]any) (*Record, error) {
	recordType, err := domain.ParseRecordType(typeName)
	if err != nil {
		return nil, err
	}
	if err := domain.ValidateContent(recordType, content); err != nil {
		return nil, err
	}
	hash, err := domain.HashContent(content)
	if err != nil {
		return nil, err
	}

	decision, err := s.gate.Decide(ctx, actor, access.ActionCreate,
		access.Target{Patient: patientID}, domain.ScopeSet{ScopeFor(recordType)})
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		return nil, dErrors.New(dErrors.CodeForbidden, decision.Reason)
	}

	now := requestcontext.Now(ctx)
	r := Record{
		ID:          domain.NewRecordID(),
		PatientID:   patientID,
		Type:        recordType,
		Content:     content,
		ContentHash: hash,
		CreatedBy:   actor.UserID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.Create(ctx, r); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create record")
	}
	return &r, nil
}

// Get returns one record after a gate decision scoped to its type.
func (s *Service) Get(ctx context.Context, actor domain.Actor, recordID domain.RecordID) (*Record, error) {
	r, err := s.store.Find(ctx, recordID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "record not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load record")
	}

	decision, err := s.gate.Decide(ctx, actor, access.ActionView,
		access.Target{Patient: r.PatientID, Record: &r.ID}, domain.ScopeSet{ScopeFor(r.Type)})
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		return nil, dErrors.New(dErrors.CodeForbidden, decision.Reason)
	}
	return r, nil
}

// List returns a patient's records filtered to the scopes the caller was
// granted for this request.
func (s *Service) List(ctx context.Context, actor domain.Actor, patientID domain.PatientID, scopes domain.ScopeSet) ([]Record, error) {
	if len(scopes) == 0 {
		scopes = domain.AllScopes()
	}

	decision, err := s.gate.Decide(ctx, actor, access.ActionView,
		access.Target{Patient: patientID}, scopes)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		return nil, dErrors.New(dErrors.CodeForbidden, decision.Reason)
	}

	records, err := s.store.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list records")
	}

	filtered := records[:0]
	for _, r := range records {
		if scopes.Contains(ScopeFor(r.Type)) {
			filtered = append(filtered, r)
		}
	}
	return filtered, nil
}

// Update replaces a record's content after re-validating it against the
// record's type.
func (s *Service) Update(ctx context.Context, actor domain.Actor, recordID domain.RecordID, content map[string]any) (*Record, error) {
	r, err := s.store.Find(ctx, recordID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "record not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load record")
	}

	if err := domain.ValidateContent(r.Type, content); err != nil {
		return nil, err
	}
	hash, err := domain.HashContent(content)
	if err != nil {
		return nil, err
	}

	decision, err := s.gate.Decide(ctx, actor, access.ActionUpdate,
		access.Target{Patient: r.PatientID, Record: &r.ID}, domain.ScopeSet{ScopeFor(r.Type)})
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		return nil, dErrors.New(dErrors.CodeForbidden, decision.Reason)
	}

	r.Content = content
	r.ContentHash = hash
	r.UpdatedAt = requestcontext.Now(ctx)
	if err := s.store.Update(ctx, *r); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update record")
	}
	return r, nil
}

// SoftDelete hides a record from reads. The row survives until the owning
// patient's account is purged.
func (s *Service) SoftDelete(ctx context.Context, actor domain.Actor, recordID domain.RecordID) error {
	r, err := s.store.Find(ctx, recordID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "record not found")
	}
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load record")
	}

	decision, err := s.gate.Decide(ctx, actor, access.ActionDelete,
		access.Target{Patient: r.PatientID, Record: &r.ID}, domain.ScopeSet{ScopeFor(r.Type)})
	if err != nil {
		return err
	}
	if !decision.Allowed {
		return dErrors.New(dErrors.CodeForbidden, decision.Reason)
	}

	if err := s.store.SoftDelete(ctx, recordID); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete record")
	}
	return nil
}

// AttachDocument uploads a file into blob storage and registers its
// metadata under the DOCUMENTS scope.
func (s *Service) AttachDocument(ctx context.Context, actor domain.Actor, patientID domain.PatientID, fileName, contentType string, data []byte) (*Document, error) {
	if fileName == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "file name is required")
	}
	if len(data) == 0 {
		return nil, dErrors.New(dErrors.CodeBadRequest, "document is empty")
	}

	decision, err := s.gate.Decide(ctx, actor, access.ActionCreate,
		access.Target{Patient: patientID}, domain.ScopeSet{domain.ScopeDocuments})
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		return nil, dErrors.New(dErrors.CodeForbidden, decision.Reason)
	}

	key := uuid.NewString()
	if err := s.blobs.Put(ctx, key, contentType, data); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store document")
	}

	doc := Document{
		ID:          domain.NewDocumentID(),
		PatientID:   patientID,
		FileName:    fileName,
		ContentType: contentType,
		Size:        int64(len(data)),
		BlobKey:     key,
		UploadedBy:  actor.UserID,
		CreatedAt:   requestcontext.Now(ctx),
	}
	if err := s.documents.Create(ctx, doc); err != nil {
		// Metadata failed; drop the orphaned blob.
		if derr := s.blobs.Delete(ctx, key); derr != nil {
			s.logger.WarnContext(ctx, "orphaned blob cleanup failed", "key", key, "error", derr)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to register document")
	}
	return &doc, nil
}

// GetDocument returns a document's metadata and bytes.
func (s *Service) GetDocument(ctx context.Context, actor domain.Actor, documentID domain.DocumentID) (*Document, []byte, error) {
	doc, err := s.documents.Find(ctx, documentID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, nil, dErrors.New(dErrors.CodeNotFound, "document not found")
	}
	if err != nil {
		return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load document")
	}

	decision, err := s.gate.Decide(ctx, actor, access.ActionView,
		access.Target{Patient: doc.PatientID}, domain.ScopeSet{domain.ScopeDocuments})
	if err != nil {
		return nil, nil, err
	}
	if !decision.Allowed {
		return nil, nil, dErrors.New(dErrors.CodeForbidden, decision.Reason)
	}

	data, err := s.blobs.Get(ctx, doc.BlobKey)
	if err != nil {
		return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read document")
	}
	return doc, data, nil
}

// ListDocuments returns a patient's document metadata.
func (s *Service) ListDocuments(ctx context.Context, actor domain.Actor, patientID domain.PatientID) ([]Document, error) {
	decision, err := s.gate.Decide(ctx, actor, access.ActionView,
		access.Target{Patient: patientID}, domain.ScopeSet{domain.ScopeDocuments})
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		return nil, dErrors.New(dErrors.CodeForbidden, decision.Reason)
	}

	docs, err := s.documents.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list documents")
	}
	return docs, nil
}

// Counts returns how many record and document rows a patient has, including
// soft-deleted records. Deletion workflow only.
func (s *Service) Counts(ctx context.Context, patientID domain.PatientID) (records, documents int64, err error) {
	records, err = s.store.CountByPatient(ctx, patientID)
	if err != nil {
		return 0, 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count records")
	}
	documents, err = s.documents.CountByPatient(ctx, patientID)
	if err != nil {
		return records, 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count documents")
	}
	return records, documents, nil
}

// PurgeDocuments removes a patient's document rows and their blobs. Blob
// deletion failures are logged, not fatal: the metadata is already gone and
// the receipt counts rows.
func (s *Service) PurgeDocuments(ctx context.Context, patientID domain.PatientID) (int64, error) {
	docs, err := s.documents.DeleteByPatient(ctx, patientID)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to purge documents")
	}
	for _, doc := range docs {
		if err := s.blobs.Delete(ctx, doc.BlobKey); err != nil {
			s.logger.WarnContext(ctx, "blob deletion failed during purge",
				"key", doc.BlobKey,
				"patient_id", patientID.String(),
				"error", err,
			)
		}
	}
	return int64(len(docs)), nil
}

// PurgeRecords hard-deletes every record row for a patient. Deletion
// workflow only.
func (s *Service) PurgeRecords(ctx context.Context, patientID domain.PatientID) (int64, error) {
	n, err := s.store.HardDeleteByPatient(ctx, patientID)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to purge records")
	}
	return n, nil
}
