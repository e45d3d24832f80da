package blockchain

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

// revertErrorCode is the JSON-RPC code geth-compatible nodes use for execution reverts
const revertErrorCode = 3

// TransportError reports that the node could not be reached or answered with garbage
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("transport failure: %v", e.Err) }
func (e *TransportError) Unwrap() error { return e.Err }

// RevertError reports that a call inside the batch reverted, failing the whole aggregate
type RevertError struct {
	Reason string
	Err    error
}

func (e *RevertError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("execution reverted: %s", e.Reason)
	}
	return fmt.Sprintf("execution reverted: %v", e.Err)
}

func (e *RevertError) Unwrap() error { return e.Err }

// EncodingError reports a call that could not be packed, usually a malformed address
type EncodingError struct {
	Index  int
	Method string
	Err    error
}

func (e *EncodingError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("encoding calls: %v", e.Err)
	}
	return fmt.Sprintf("encoding call %d (%s): %v", e.Index, e.Method, e.Err)
}

func (e *EncodingError) Unwrap() error { return e.Err }

// DecodeError reports a result list or payload that does not match the calls sent
type DecodeError struct {
	Index  int
	Method string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("decoding results: %v", e.Err)
	}
	return fmt.Sprintf("decoding result %d (%s): %v", e.Index, e.Method, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// IsRetryable reports whether err is worth retrying against the same chain state.
// Only transport failures qualify: reverts and encoding errors are deterministic.
func IsRetryable(err error) bool {
	var transportErr *TransportError
	return errors.As(err, &transportErr) && !errors.Is(err, context.Canceled)
}

// classifyCallError turns an eth_call failure into a TransportError or a RevertError
func classifyCallError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &TransportError{Err: err}
	}

	var rpcErr rpc.Error
	isRevert := errors.As(err, &rpcErr) && rpcErr.ErrorCode() == revertErrorCode
	if !isRevert && strings.Contains(strings.ToLower(err.Error()), "execution reverted") {
		isRevert = true
	}
	if !isRevert {
		return &TransportError{Err: err}
	}

	revertErr := &RevertError{Err: err}
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		if hexData, ok := dataErr.ErrorData().(string); ok {
			if data, decodeErr := hexutil.Decode(hexData); decodeErr == nil {
				if reason, unpackErr := abi.UnpackRevert(data); unpackErr == nil {
					revertErr.Reason = reason
				}
			}
		}
	}
	return revertErr
}
