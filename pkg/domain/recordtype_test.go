package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "medihub/pkg/domain-errors"
)

func TestValidateContent(t *testing.T) {
	cases := []struct {
		name    string
		typ     RecordType
		content map[string]any
		wantErr bool
	}{
		{"lab with all fields", RecordLab, map[string]any{"test_name": "CBC", "result": "normal"}, false},
		{"lab missing result", RecordLab, map[string]any{"test_name": "CBC"}, true},
		{"note", RecordNote, map[string]any{"note": "stable"}, false},
		{"empty required field", RecordNote, map[string]any{"note": ""}, true},
		{"nil required field", RecordVital, map[string]any{"vital_type": "BP", "value": nil}, true},
		{"empty content", RecordEncounter, map[string]any{}, true},
		{"extra fields allowed", RecordAllergy, map[string]any{"allergen": "penicillin", "severity": "high", "noted_by": "intake"}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateContent(tc.typ, tc.content)
			if tc.wantErr {
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestParseRecordType(t *testing.T) {
	_, err := ParseRecordType("")
	require.Error(t, err)

	_, err = ParseRecordType("SELFIE")
	require.Error(t, err)

	typ, err := ParseRecordType("PRESCRIPTION")
	require.NoError(t, err)
	assert.Equal(t, RecordPrescription, typ)
}

func TestHashContent(t *testing.T) {
	a, err := HashContent(map[string]any{"note": "x", "extra": 1})
	require.NoError(t, err)
	b, err := HashContent(map[string]any{"extra": 1, "note": "x"})
	require.NoError(t, err)
	assert.Equal(t, a, b, "map key order must not change the hash")

	c, err := HashContent(map[string]any{"note": "y", "extra": 1})
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}
