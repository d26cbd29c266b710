package schedule

import (
	"errors"
	"fmt"
)

// Sentinels matched by errors.Is against a *MoveError of the same code.
var (
	ErrMoveRejected = errors.New("move rejected by store")
	ErrMoveInFlight = errors.New("move already in flight")
	ErrUnknownStay  = errors.New("unknown stay")
	ErrInvalidMove  = errors.New("invalid move")
)

// MoveErrorCode categorizes move failures.
type MoveErrorCode string

const (
	// ErrCodeMoveRejected means the store refused the mutation and the
	// optimistic patch was rolled back.
	ErrCodeMoveRejected MoveErrorCode = "MOVE_REJECTED"

	// ErrCodeMoveInFlight means another move on the same stay is pending.
	ErrCodeMoveInFlight MoveErrorCode = "MOVE_IN_FLIGHT"

	// ErrCodeUnknownStay means the stay is not in any cached view.
	ErrCodeUnknownStay MoveErrorCode = "UNKNOWN_STAY"

	// ErrCodeInvalidMove means the derived dates are not a valid stay.
	ErrCodeInvalidMove MoveErrorCode = "INVALID_MOVE"
)

// MoveError is returned by Protocol.ProposeMove.
type MoveError struct {
	Code    MoveErrorCode
	StayID  string
	MoveID  string
	Message string
	// Err is the store error for MOVE_REJECTED.
	Err error
}

// Error implements the error interface.
func (e *MoveError) Error() string {
	msg := fmt.Sprintf("%s: stay %s: %s", e.Code, e.StayID, e.Message)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes the code's sentinel and the underlying store error.
func (e *MoveError) Unwrap() []error {
	errs := []error{sentinel(e.Code)}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func sentinel(code MoveErrorCode) error {
	switch code {
	case ErrCodeMoveRejected:
		return ErrMoveRejected
	case ErrCodeMoveInFlight:
		return ErrMoveInFlight
	case ErrCodeUnknownStay:
		return ErrUnknownStay
	}
	return ErrInvalidMove
}

// IsRecoverable reports whether err leaves the session usable and the move
// can be retried: a store rejection (already rolled back) or a move that
// lost the race to another one in flight.
func IsRecoverable(err error) bool {
	var me *MoveError
	if !errors.As(err, &me) {
		return false
	}
	return me.Code == ErrCodeMoveRejected || me.Code == ErrCodeMoveInFlight
}

// NewInvalidMoveError creates a MoveError for a move with bad dates.
func NewInvalidMoveError(stayID, message string) *MoveError {
	return &MoveError{Code: ErrCodeInvalidMove, StayID: stayID, Message: message}
}
