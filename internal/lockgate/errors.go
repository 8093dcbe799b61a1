package lockgate

import (
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/imagelock/internal/passcode"
	"github.com/iliyamo/imagelock/internal/sequence"
)

// Denials the gate reports. Handlers map each one to a generic message;
// none of them says whether the resource exists or how close an attempt was.
var (
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidSequence    = sequence.ErrInvalidSequence
	ErrInvalidCategory    = errors.New("invalid category")
	ErrNoPasscodeSet      = passcode.ErrNoPasscodeSet
	ErrVerificationFailed = errors.New("incorrect sequence")
	ErrTooManyAttempts    = errors.New("too many attempts")
	ErrLocked             = errors.New("resource is locked")
)

// LockedOutError is returned while further attempts are refused.
type LockedOutError struct {
	RetryAfter time.Duration
}

func (e *LockedOutError) Error() string {
	return fmt.Sprintf("%v: retry after %s", ErrTooManyAttempts, e.RetryAfter)
}

func (e *LockedOutError) Unwrap() error { return ErrTooManyAttempts }
