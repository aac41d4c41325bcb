package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "medihub/pkg/domain-errors"
)

func TestParseIDs(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		id := NewPatientID()
		parsed, err := ParsePatientID(id.String())
		require.NoError(t, err)
		assert.Equal(t, id, parsed)
	})

	t.Run("rejections", func(t *testing.T) {
		for name, raw := range map[string]string{
			"empty":     "",
			"not uuid":  "not-a-uuid",
			"nil uuid":  "00000000-0000-0000-0000-000000000000",
			"truncated": "123e4567-e89b-12d3-a456",
		} {
			t.Run(name, func(t *testing.T) {
				_, err := ParseUserID(raw)
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
			})
		}
	})
}
