package model

import (
	"errors"
	"fmt"
)

var ErrorValidation = errors.New("validation failed")
var ErrorStorageUnavailable = errors.New("storage unavailable")
var ErrorUnrecognizedPayload = errors.New("unrecognized payload")

// UnrecognizedPayloadError carries the classification diagnostic back to
// the webhook caller. It unwraps to ErrorUnrecognizedPayload.
type UnrecognizedPayloadError struct {
	Reason string
}

func (e *UnrecognizedPayloadError) Error() string {
	return fmt.Sprintf("unrecognized payload: %s", e.Reason)
}

func (e *UnrecognizedPayloadError) Unwrap() error {
	return ErrorUnrecognizedPayload
}
