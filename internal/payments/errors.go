package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
)

var (
	ErrPaymentRejected  = errors.New("payment rejected")
	ErrPaymentTimeout   = errors.New("payment confirmation timed out")
	// ErrChainUnavailable is a submission that failed before anything was
	// broadcast for a reason other than the contract refusing it.
	ErrChainUnavailable = errors.New("chain unavailable")
)

// RejectedError is a settlement the chain refused. Reason is the node's
// revert text, passed through as is.
type RejectedError struct {
	TxHash string
	Reason string
	Err    error
}

func (e *RejectedError) Error() string {
	if e.TxHash != "" {
		return fmt.Sprintf("payment rejected: %s (tx %s)", e.Reason, e.TxHash)
	}
	return "payment rejected: " + e.Reason
}

func (e *RejectedError) Unwrap() error { return e.Err }

func (e *RejectedError) Is(target error) bool { return target == ErrPaymentRejected }

// TimeoutError means the outcome of TxHash is unknown. It may still be mined.
type TimeoutError struct {
	TxHash string
	Waited time.Duration
	Err    error
}

func (e *TimeoutError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("payment outcome unknown for tx %s: %s", e.TxHash, e.Err)
	}
	return fmt.Sprintf("payment confirmation timed out after %s (tx %s)", e.Waited, e.TxHash)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

func (e *TimeoutError) Is(target error) bool { return target == ErrPaymentTimeout }

// revertMarkers are the node messages for a call the EVM refused. bind wraps
// estimation errors with %v, so the text is all that survives.
var revertMarkers = []string{
	"execution reverted",
	"insufficient funds",
	"gas required exceeds allowance",
	"invalid opcode",
}

// isRevert reports whether err is the chain refusing the call rather than the
// call not reaching a node.
func isRevert(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, m := range revertMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}
