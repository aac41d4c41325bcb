package domain

import dErrors "medihub/pkg/domain-errors"

// ConsentPurpose identifies why a patient is sharing data with a doctor.
//
// Usage: construct via ParseConsentPurpose at trust boundaries to enforce the
// allowlist; direct casting bypasses validation.
type ConsentPurpose string

const (
	PurposeTreatment ConsentPurpose = "TREATMENT"
	PurposeResearch  ConsentPurpose = "RESEARCH"
	PurposeEmergency ConsentPurpose = "EMERGENCY"
)

var validPurposes = map[ConsentPurpose]bool{
	PurposeTreatment: true,
	PurposeResearch:  true,
	PurposeEmergency: true,
}

func ParseConsentPurpose(s string) (ConsentPurpose, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeBadRequest, "purpose cannot be empty")
	}
	p := ConsentPurpose(s)
	if !p.IsValid() {
		return "", dErrors.New(dErrors.CodeBadRequest, "invalid purpose")
	}
	return p, nil
}

func (p ConsentPurpose) IsValid() bool  { return validPurposes[p] }
func (p ConsentPurpose) String() string { return string(p) }
