package entities

import (
	"sync/atomic"
	"time"
)

// State is the delivery lifecycle shared by commands and push jobs.
type State string

const (
	StateQueued     State = "queued"
	StateDelivering State = "delivering"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// Terminal reports whether no further transitions can happen.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// OpenStates are the states a lane still has work for.
var OpenStates = []State{StateQueued, StateDelivering}

// Failure reasons persisted on failed records.
const (
	ReasonDeliveryTimeout    = "delivery_timeout"
	ReasonExecutionFailed    = "execution_failed"
	ReasonTransferTimeout    = "transfer_timeout"
	ReasonContentUnavailable = "content_unavailable"
	ReasonIncompleteTransfer = "incomplete_transfer"
)

var lastSeq atomic.Int64

// SeedSeq raises the floor of NextSeq to the largest stored key, so keys issued after a
// restart sort after older records even when the wall clock stepped back.
func SeedSeq(floor int64) {
	for {
		prev := lastSeq.Load()
		if prev >= floor || lastSeq.CompareAndSwap(prev, floor) {
			return
		}
	}
}

// NextSeq returns a strictly increasing ordering key. It follows the wall clock but
// never drops below the last key issued or seeded.
func NextSeq() int64 {
	for {
		prev := lastSeq.Load()
		next := time.Now().UnixNano()
		if next <= prev {
			next = prev + 1
		}
		if lastSeq.CompareAndSwap(prev, next) {
			return next
		}
	}
}
