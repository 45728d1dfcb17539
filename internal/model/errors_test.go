package model

import (
	"errors"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIncompleteExtractionError(t *testing.T) {
	t.Parallel()

	err := &IncompleteExtractionError{Missing: []string{"well_id"}}
	assert.Contains(t, err.Error(), "well_id")

	var target *IncompleteExtractionError
	wrapped := eris.Wrap(err, "normalize")
	require.True(t, errors.As(wrapped, &target))
	assert.Equal(t, []string{"well_id"}, target.Missing)
}

func TestConversionError(t *testing.T) {
	t.Parallel()

	err := &ConversionError{Field: "depth", Raw: "abc", Reason: "no numeric token"}
	assert.Contains(t, err.Error(), "depth")
	assert.Contains(t, err.Error(), "abc")
}

func TestDetectorFailureUnwrap(t *testing.T) {
	t.Parallel()

	cause := errors.New("boom")
	err := &DetectorFailureError{WellID: "W1", Err: cause}
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "W1")
}

func TestSentinelErrorsDistinct(t *testing.T) {
	t.Parallel()

	assert.NotErrorIs(t, ErrUnmappable, ErrCapabilityUnavailable)
	assert.ErrorIs(t, eris.Wrap(ErrUnmappable, "translate"), ErrUnmappable)
}

func TestAnswerHasFlag(t *testing.T) {
	t.Parallel()

	a := &Answer{Flags: []AnswerFlag{FlagPartialIndex}}
	assert.True(t, a.HasFlag(FlagPartialIndex))
	assert.False(t, a.HasFlag(FlagBranchTimeout))
}
