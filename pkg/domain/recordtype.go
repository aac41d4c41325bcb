package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	dErrors "medihub/pkg/domain-errors"
)

// RecordType tags a health record's content. Content is a JSON object whose
// required fields depend on the type; ValidateContent enforces the per-type
// schema before anything is persisted.
type RecordType string

const (
	RecordEncounter    RecordType = "ENCOUNTER"
	RecordLab          RecordType = "LAB"
	RecordPrescription RecordType = "PRESCRIPTION"
	RecordNote         RecordType = "NOTE"
	RecordVital        RecordType = "VITAL"
	RecordAllergy      RecordType = "ALLERGY"
	RecordImaging      RecordType = "IMAGING"
)

// requiredContentFields is the single source of truth for the per-type
// content schema.
var requiredContentFields = map[RecordType][]string{
	RecordEncounter:    {"chief_complaint", "diagnosis"},
	RecordLab:          {"test_name", "result"},
	RecordPrescription: {"medication", "dosage"},
	RecordNote:         {"note"},
	RecordVital:        {"vital_type", "value"},
	RecordAllergy:      {"allergen", "severity"},
	RecordImaging:      {"study_type", "findings"},
}

func ParseRecordType(s string) (RecordType, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeBadRequest, "record type cannot be empty")
	}
	t := RecordType(s)
	if !t.IsValid() {
		return "", dErrors.New(dErrors.CodeBadRequest, "invalid record type")
	}
	return t, nil
}

func (t RecordType) IsValid() bool {
	_, ok := requiredContentFields[t]
	return ok
}

func (t RecordType) String() string { return string(t) }

// ValidateContent checks the tagged-union content schema: every required
// field for the type must be present and non-empty.
func ValidateContent(t RecordType, content map[string]any) error {
	fields, ok := requiredContentFields[t]
	if !ok {
		return dErrors.New(dErrors.CodeBadRequest, "invalid record type")
	}
	if len(content) == 0 {
		return dErrors.New(dErrors.CodeBadRequest, "content cannot be empty")
	}
	for _, f := range fields {
		v, present := content[f]
		if !present || v == nil || v == "" {
			return dErrors.New(dErrors.CodeBadRequest, "content missing required field: "+f)
		}
	}
	return nil
}

// HashContent returns the hex SHA-256 of the canonical JSON encoding of the
// content. encoding/json sorts map keys, so the encoding is deterministic.
func HashContent(content map[string]any) (string, error) {
	raw, err := json.Marshal(content)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeBadRequest, "content is not serializable")
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}
