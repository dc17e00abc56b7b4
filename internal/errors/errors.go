package errors

import (
	"errors"
	"fmt"
)

const (
	CodeInvalidRequest     = "INVALID_REQUEST"
	CodeRepackagingFailed  = "REPACKAGING_FAILED"
	CodeDispatchFailed     = "DISPATCH_FAILED"
	CodeVerificationFailed = "VERIFICATION_FAILED"
)

// Stage names the step of the build workflow an error came from.
type Stage string

const (
	StageValidate     Stage = "validate request"
	StageRepackage    Stage = "repackage source"
	StageDispatch     Stage = "dispatch build task"
	StageVerification Stage = "verify image"
)

// Types ////////////////////////////////////////

type CodedError interface {
	Code() string
}

// StageError is a fatal workflow error. It names the failing stage and keeps
// the underlying cause reachable through errors.Is and errors.As.
type StageError struct {
	Stage Stage
	code  string
	Err   error
}

func (e *StageError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s failed", e.Stage)
	}
	return fmt.Sprintf("%s failed: %s", e.Stage, e.Err)
}

func (e *StageError) Code() string {
	return e.code
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Error Creators ///////////////////////////////

// The build request is missing fields or is otherwise malformed
func InvalidRequest(err error) error {
	return &StageError{Stage: StageValidate, code: CodeInvalidRequest, Err: err}
}

// The source archive could not be fetched, transcoded or uploaded
func RepackagingFailed(err error) error {
	return &StageError{Stage: StageRepackage, code: CodeRepackagingFailed, Err: err}
}

// The build task could not be submitted
func DispatchFailed(err error) error {
	return &StageError{Stage: StageDispatch, code: CodeDispatchFailed, Err: err}
}

// The image was not observable in the registry after the build
func VerificationFailed(err error) error {
	return &StageError{Stage: StageVerification, code: CodeVerificationFailed, Err: err}
}

// Helpers //////////////////////////////////////

func IsInvalidRequest(err error) bool {
	return Code(err) == CodeInvalidRequest
}

func IsRepackagingFailed(err error) bool {
	return Code(err) == CodeRepackagingFailed
}

func IsDispatchFailed(err error) bool {
	return Code(err) == CodeDispatchFailed
}

func IsVerificationFailed(err error) bool {
	return Code(err) == CodeVerificationFailed
}

// Return the error code, or the empty string
func Code(err error) string {
	var cerr CodedError
	if errors.As(err, &cerr) {
		return cerr.Code()
	}

	return ""
}

// StageOf returns the stage of the first StageError in err's chain.
func StageOf(err error) (Stage, bool) {
	var serr *StageError
	if errors.As(err, &serr) {
		return serr.Stage, true
	}
	return "", false
}
