package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "litgraph/pkg/domain-errors"
)

func TestParsePersonID(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParsePersonID("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	t.Run("rejects non-numeric input", func(t *testing.T) {
		_, err := ParsePersonID("abc")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	t.Run("rejects zero and negatives", func(t *testing.T) {
		for _, in := range []string{"0", "-4"} {
			_, err := ParsePersonID(in)
			assert.Error(t, err, in)
		}
	})

	t.Run("accepts padded positive id", func(t *testing.T) {
		id, err := ParsePersonID(" 42 ")
		require.NoError(t, err)
		assert.Equal(t, PersonID(42), id)
		assert.Equal(t, "42", id.String())
	})
}

func TestParseOverflow(t *testing.T) {
	_, err := ParsePaperID("99999999999999999999")
	assert.Error(t, err)
}

func TestValid(t *testing.T) {
	assert.False(t, Valid(PaperID(0)))
	assert.True(t, Valid(PaperID(7)))
}
