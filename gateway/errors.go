package gateway

import (
	"fmt"

	"github.com/filecoin-project/go-state-types/exitcode"
)

// Kind classifies a gateway error the way spec section 7 names them in the
// abstract: IllegalArgument, IllegalState, NotFound, SerializationError. The
// VM boundary never sees a Go error directly - every actor method translates
// a Kind into an exitcode via rt.Abortf/builtin.RequireNoErr - but library
// code below the actor boundary (state.go, cross.go, checkpoint.go, cron.go)
// returns plain errors carrying a Kind so the actor layer has one place to
// do that translation.
type Kind int

const (
	// KindIllegalArgument: malformed input, destination equals self, unsorted
	// cron nonces, unknown subnet, missing funds, already-submitted vote,
	// already-committed checkpoint, no fee.
	KindIllegalArgument Kind = iota
	// KindIllegalState: invariant violated (inactive subnet, insufficient
	// balance for mint, non-subsequent nonce, missing previous checkpoint,
	// kill with circ-supply, postbox ownership mismatch).
	KindIllegalState
	// KindNotFound: postbox key, subnet, checkpoint.
	KindNotFound
	// KindSerialization: encoding/decoding of persisted records.
	KindSerialization
)

// Error is a gateway error carrying a Kind alongside the message.
type Error struct {
	Kind Kind
	msg  string
}

func (e *Error) Error() string { return e.msg }

func newErr(kind Kind, msg string) *Error {
	return &Error{Kind: kind, msg: msg}
}

func illegalArgument(format string, args ...interface{}) *Error {
	return newErr(KindIllegalArgument, fmt.Sprintf(format, args...))
}

func illegalState(format string, args ...interface{}) *Error {
	return newErr(KindIllegalState, fmt.Sprintf(format, args...))
}

func notFound(format string, args ...interface{}) *Error {
	return newErr(KindNotFound, fmt.Sprintf(format, args...))
}

func serializationError(format string, args ...interface{}) *Error {
	return newErr(KindSerialization, fmt.Sprintf(format, args...))
}

// ExitCode maps a Kind to the exitcode an actor method aborts with.
func (k Kind) ExitCode() exitcode.ExitCode {
	switch k {
	case KindIllegalArgument:
		return exitcode.ErrIllegalArgument
	case KindIllegalState:
		return exitcode.ErrIllegalState
	case KindNotFound:
		return exitcode.ErrNotFound
	case KindSerialization:
		return exitcode.ErrSerialization
	default:
		return exitcode.ErrIllegalState
	}
}
