package schederr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOf_ClassifiesWrappedError(t *testing.T) {
	cause := errors.New("connection reset")
	err := TransientIO("fetch jobs", cause)

	assert.Equal(t, KindTransientIO, KindOf(err))
	assert.True(t, Is(err, KindTransientIO))
	assert.False(t, Is(err, KindInputValidation))
}

func TestKindOf_UnclassifiedErrorIsInternal(t *testing.T) {
	err := errors.New("plain error")
	assert.Equal(t, KindInternal, KindOf(err))
}

func TestWrap_NilErrorReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(KindInternal, "noop", nil))
}

func TestError_UnwrapPreservesCause(t *testing.T) {
	cause := errors.New("boom")
	err := Internal("something broke", cause)

	var unwrapped error
	require.True(t, errors.As(err, new(*Error)))
	unwrapped = errors.Unwrap(err)
	assert.Equal(t, cause, unwrapped)
}

func TestInputValidation_FormatsMessage(t *testing.T) {
	err := InputValidation("bad location index %d", 7)
	assert.Contains(t, err.Error(), "bad location index 7")
	assert.True(t, Is(err, KindInputValidation))
}
