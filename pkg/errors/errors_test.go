package errors

import (
	stdErrors "errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadataFor(t *testing.T) {
	meta := MetadataFor(CodeInsufficientBalance)
	assert.Equal(t, http.StatusUnprocessableEntity, meta.HTTPStatus)
	assert.False(t, meta.Retryable)

	unknown := MetadataFor(Code("NOPE"))
	assert.Equal(t, http.StatusInternalServerError, unknown.HTTPStatus)
}

func TestWrapPreservesCause(t *testing.T) {
	cause := stdErrors.New("row missing")
	err := Wrap(CodeNotFound, cause, "job not found")

	require.ErrorIs(t, err, cause)
	typed := As(err)
	require.NotNil(t, typed)
	assert.Equal(t, CodeNotFound, typed.Code())
	assert.Equal(t, "job not found", typed.Message())
}

func TestHasCode(t *testing.T) {
	err := New(CodeDuplicatePayment, "already settled").WithDetails(map[string]any{"payment_id": "pay_1"})
	assert.True(t, HasCode(err, CodeDuplicatePayment))
	assert.False(t, HasCode(err, CodeConflict))
	assert.False(t, HasCode(nil, CodeConflict))
}

func TestDump(t *testing.T) {
	inner := stdErrors.New("conn refused")
	err := Wrap(CodeDependency, inner, "load wallet")

	dump := Dump(err)
	assert.Equal(t, string(CodeDependency), dump.Code)
	require.Len(t, dump.Chain, 2)
	assert.Contains(t, dump.Chain[1], "conn refused")
}
