package usecases

import "errors"

var (
	// ErrUnknownTarget means the id names neither a device nor a group.
	ErrUnknownTarget       = errors.New("unknown target")
	ErrInvalidCommandType  = errors.New("invalid command type")
	ErrInvalidCommandValue = errors.New("invalid command value")
	ErrInvalidContent      = errors.New("invalid content descriptor")
	ErrInvalidDevice       = errors.New("invalid device")
	ErrInvalidGroup        = errors.New("invalid group")
)

// Enqueuer is woken with the devices that have new work.
type Enqueuer interface {
	Enqueue(deviceIDs ...string)
}

// Waker is woken with devices that became reachable. Wake must not block.
type Waker interface {
	Wake(deviceIDs ...string)
}
