package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStageErrors(t *testing.T) {
	t.Parallel()

	cause := errors.New("NoSuchKey: the specified key does not exist")

	tests := []struct {
		name  string
		err   error
		code  string
		stage Stage
		is    func(error) bool
	}{
		{"invalid request", InvalidRequest(cause), CodeInvalidRequest, StageValidate, IsInvalidRequest},
		{"repackaging", RepackagingFailed(cause), CodeRepackagingFailed, StageRepackage, IsRepackagingFailed},
		{"dispatch", DispatchFailed(cause), CodeDispatchFailed, StageDispatch, IsDispatchFailed},
		{"verification", VerificationFailed(cause), CodeVerificationFailed, StageVerification, IsVerificationFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.code, Code(tt.err))
			assert.True(t, tt.is(tt.err))
			assert.ErrorIs(t, tt.err, cause)
			assert.Contains(t, tt.err.Error(), string(tt.stage))
			assert.Contains(t, tt.err.Error(), "NoSuchKey")

			stage, ok := StageOf(tt.err)
			require.True(t, ok)
			assert.Equal(t, tt.stage, stage)
		})
	}
}

func TestCodeThroughWrapping(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("lambda invocation: %w", DispatchFailed(errors.New("boom")))
	assert.Equal(t, CodeDispatchFailed, Code(err))
	assert.False(t, IsRepackagingFailed(err))
}

func TestCodeOfPlainError(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "", Code(errors.New("plain")))
	assert.Equal(t, "", Code(nil))

	_, ok := StageOf(errors.New("plain"))
	assert.False(t, ok)
}

func TestStageErrorWithoutCause(t *testing.T) {
	t.Parallel()

	err := &StageError{Stage: StageVerification}
	assert.Equal(t, "verify image failed", err.Error())
}
