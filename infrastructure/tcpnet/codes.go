package tcpnet

import (
	stderrors "errors"
	"fmt"

	"transfer-lab/domain"
	"transfer-lab/errors"
)

var codeBySentinel = []struct {
	sentinel error
	code     domain.ErrorCode
}{
	{errors.ErrInvalidPayload, domain.CodeInvalidRequest},
	{errors.ErrUnknownSession, domain.CodeUnknownSession},
	{errors.ErrNotBound, domain.CodeNotBound},
	{errors.ErrBadTicket, domain.CodeBadTicket},
	{errors.ErrUnknownObject, domain.CodeUnknownObject},
	{errors.ErrUnknownChannel, domain.CodeUnknownChannel},
	{errors.ErrStagedPartMissing, domain.CodeStagedPartMissing},
	{errors.ErrChecksumMismatch, domain.CodeChecksumMismatch},
	{errors.ErrScreeningRejected, domain.CodeScreeningRejected},
}

// ErrorFrom flattens a node-side error into its wire form.
func ErrorFrom(err error) domain.RPCError {
	for _, entry := range codeBySentinel {
		if stderrors.Is(err, entry.sentinel) {
			return domain.RPCError{Code: entry.code, Message: err.Error()}
		}
	}
	return domain.RPCError{Code: domain.CodeInternal, Message: err.Error()}
}

// AsError rebuilds the sentinel wrapping on the client side, so callers can
// errors.Is against the same taxonomy on both ends of the wire.
func AsError(e domain.RPCError) error {
	for _, entry := range codeBySentinel {
		if entry.code == e.Code {
			return fmt.Errorf("%w: %s", entry.sentinel, e.Message)
		}
	}
	return fmt.Errorf("remote error %d: %s", e.Code, e.Message)
}
