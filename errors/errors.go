package errors

import "fmt"

var (
	// Transfer taxonomy. Every failed transfer surfaces exactly one of
	// ErrSetup, ErrTransfer or ErrIO to the caller.
	ErrSetup           = fmt.Errorf("transfer setup failed")
	ErrTransfer        = fmt.Errorf("part transfer failed")
	ErrIO              = fmt.Errorf("local i/o failed")
	ErrObjectTooLarge  = fmt.Errorf("object exceeds the maximum transferable size")
	ErrConnectionLimit = fmt.Errorf("connection count out of bounds")
	ErrNegativeSize    = fmt.Errorf("object size is negative")

	ErrUnexpectedResponse = fmt.Errorf("unexpected rpc response type")
	ErrPartRejected       = fmt.Errorf("remote rejected the part")

	// Cluster side.
	ErrUnknownSession    = fmt.Errorf("unknown session")
	ErrUnknownDC         = fmt.Errorf("unknown data-center")
	ErrUnknownObject     = fmt.Errorf("unknown object")
	ErrUnknownChannel    = fmt.Errorf("unknown channel")
	ErrStagedPartMissing = fmt.Errorf("staged part missing")
	ErrChecksumMismatch  = fmt.Errorf("content checksum mismatch")
	ErrScreeningRejected = fmt.Errorf("content rejected by signature screening")
	ErrNotBound          = fmt.Errorf("connection is not bound to a session")
	ErrBadTicket         = fmt.Errorf("authorization ticket rejected")
	ErrConnClosed        = fmt.Errorf("connection closed")

	ErrWorkerPanic    = fmt.Errorf("worker panic")
	ErrInvalidPayload = fmt.Errorf("invalid event payload")
	ErrEmptyPatterns  = fmt.Errorf("no screening patterns have been found")
)
