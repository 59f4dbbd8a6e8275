package proto

import "errors"

var (
	// ErrTruncated is returned for frames that end early or are malformed.
	ErrTruncated = errors.New("proto: truncated or malformed frame")

	// ErrUnknownOp is returned for operation tags outside the closed set.
	ErrUnknownOp = errors.New("proto: unknown operation tag")

	// ErrUnencodable is returned when a request cannot be represented on the
	// wire. No traffic must be generated for it.
	ErrUnencodable = errors.New("proto: request cannot be encoded")
)

// AppError is an application level error signaled by the server as a bare
// string instead of a structured result.
type AppError struct {
	Op  Op
	Msg string
}

func (e *AppError) Error() string {
	return "server: " + e.Op.String() + ": " + e.Msg
}
