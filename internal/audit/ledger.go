package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"medihub/internal/platform/metrics"
	"medihub/pkg/domain"
	dErrors "medihub/pkg/domain-errors"
	"medihub/pkg/requestcontext"
)

// Ledger is the append-only, hash-chained log of privacy-relevant actions.
// It is correctness-critical: callers must abort their state-changing
// operation when Append fails, never continue best-effort.
type Ledger struct {
	store   Store
	metrics *metrics.Metrics
}

type Option func(*Ledger)

func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Ledger) { l.metrics = m }
}

func NewLedger(store Store, opts ...Option) *Ledger {
	l := &Ledger{store: store}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Append writes one entry and returns its hash. The timestamp is captured at
// append time; the previous hash is read under the store's serialization so
// concurrent appends always chain linearly.
func (l *Ledger) Append(ctx context.Context, actor domain.UserID, patient domain.PatientID, action Action, details string) (string, error) {
	now := requestcontext.Now(ctx)

	entry, err := l.store.Append(ctx, func(prevHash string) (Entry, error) {
		e := Entry{
			Timestamp: now,
			Actor:     actor,
			Patient:   patient,
			Action:    action,
			Details:   details,
			PrevHash:  prevHash,
		}
		curr, err := hashEntry(e)
		if err != nil {
			return Entry{}, err
		}
		e.CurrHash = curr
		return e, nil
	})
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "audit ledger append failed")
	}

	l.metrics.ObserveLedgerAppend()
	return entry.CurrHash, nil
}

// TailHash returns the hash of the newest entry, or the empty string when
// the ledger is empty.
func (l *Ledger) TailHash(ctx context.Context) (string, error) {
	tail, err := l.store.TailHash(ctx)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "audit ledger tail read failed")
	}
	return tail, nil
}

// List returns a page of entries in sequence order for the admin audit view.
func (l *Ledger) List(ctx context.Context, limit, offset int) ([]Entry, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return l.store.List(ctx, limit, offset)
}

// ListByPatient returns all entries whose subject is the given patient.
func (l *Ledger) ListByPatient(ctx context.Context, patientID domain.PatientID) ([]Entry, error) {
	return l.store.ListByPatient(ctx, patientID)
}

// Count returns the total number of entries.
func (l *Ledger) Count(ctx context.Context) (int64, error) {
	return l.store.Count(ctx)
}

// Verify walks the whole chain and recomputes every hash. It returns the
// sequence number of the first broken entry, or 0 when the chain is intact.
func (l *Ledger) Verify(ctx context.Context) (int64, error) {
	const page = 500
	prev := ""
	offset := 0
	for {
		entries, err := l.store.List(ctx, page, offset)
		if err != nil {
			return 0, dErrors.Wrap(err, dErrors.CodeInternal, "audit ledger read failed")
		}
		if len(entries) == 0 {
			return 0, nil
		}
		for _, e := range entries {
			if e.PrevHash != prev {
				return e.Seq, nil
			}
			recomputed, err := hashEntry(e)
			if err != nil {
				return 0, err
			}
			if recomputed != e.CurrHash {
				return e.Seq, nil
			}
			prev = e.CurrHash
		}
		offset += len(entries)
	}
}

// hashEntry computes the hex SHA-256 of the entry's canonical payload.
func hashEntry(e Entry) (string, error) {
	raw, err := json.Marshal(payload{
		Actor:   e.Actor.String(),
		Patient: e.Patient.String(),
		Action:  string(e.Action),
		TS:      e.Timestamp.Unix(),
		Details: e.Details,
		Prev:    e.PrevHash,
	})
	if err != nil {
		return "", fmt.Errorf("marshal audit payload: %w", err)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}
