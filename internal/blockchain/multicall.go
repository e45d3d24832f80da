package blockchain

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// DefaultMulticallAddress is the Multicall3 deployment shared by most EVM chains
var DefaultMulticallAddress = common.HexToAddress("0xcA11bde05977b3631167028862bE2a173976CA11")

var errEmptyResponse = errors.New("empty response from multicall contract")

// ContractCaller executes a read-only contract call, typically through eth_call
type ContractCaller interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

type pendingCall struct {
	target common.Address
	abi    *abi.ABI
	method string
	args   []any
}

// Batch is an ordered list of read calls sent in one aggregate.
// Results come back in the order calls were added.
type Batch struct {
	calls []pendingCall
}

// NewBatch creates an empty batch with room for size calls
func NewBatch(size int) *Batch {
	return &Batch{calls: make([]pendingCall, 0, size)}
}

// Add appends a call of method on target, decoded later with contractABI
func (b *Batch) Add(target common.Address, contractABI *abi.ABI, method string, args ...any) *Batch {
	b.calls = append(b.calls, pendingCall{
		target: target,
		abi:    contractABI,
		method: method,
		args:   args,
	})
	return b
}

// Len returns the number of calls in the batch
func (b *Batch) Len() int {
	return len(b.calls)
}

// aggregateCall mirrors the (address target, bytes callData) tuple of aggregate
type aggregateCall struct {
	Target   common.Address
	CallData []byte
}

func (b *Batch) encode() ([]aggregateCall, error) {
	calls := make([]aggregateCall, 0, len(b.calls))
	for i, c := range b.calls {
		data, err := c.abi.Pack(c.method, c.args...)
		if err != nil {
			return nil, &EncodingError{Index: i, Method: c.method, Err: err}
		}
		calls = append(calls, aggregateCall{Target: c.target, CallData: data})
	}
	return calls, nil
}

// AggregateResult holds the decoded outputs of every call, in batch order
type AggregateResult struct {
	BlockNumber uint64
	Values      [][]any
}

// Multicall submits batches to a Multicall contract in a single eth_call
type Multicall struct {
	address common.Address
	abi     *abi.ABI
	caller  ContractCaller
}

// NewMulticall binds the aggregate entry point at address
func NewMulticall(caller ContractCaller, address common.Address, multicallABI *abi.ABI) *Multicall {
	return &Multicall{
		address: address,
		abi:     multicallABI,
		caller:  caller,
	}
}

// Address returns the Multicall contract address
func (m *Multicall) Address() common.Address {
	return m.address
}

// Aggregate executes every call of batch in one round-trip.
// The aggregate is all-or-nothing: one reverting call fails the whole batch.
func (m *Multicall) Aggregate(ctx context.Context, batch *Batch) (AggregateResult, error) {
	calls, err := batch.encode()
	if err != nil {
		return AggregateResult{}, err
	}

	input, err := m.abi.Pack("aggregate", calls)
	if err != nil {
		return AggregateResult{}, &EncodingError{Index: -1, Err: err}
	}

	to := m.address
	output, err := m.caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: input}, nil)
	if err != nil {
		return AggregateResult{}, classifyCallError(err)
	}
	if len(output) == 0 {
		return AggregateResult{}, &TransportError{Err: errEmptyResponse}
	}

	unpacked, err := m.abi.Unpack("aggregate", output)
	if err != nil {
		return AggregateResult{}, &TransportError{Err: fmt.Errorf("malformed aggregate response: %w", err)}
	}
	if len(unpacked) != 2 {
		return AggregateResult{}, &TransportError{Err: fmt.Errorf("aggregate returned %d values, want 2", len(unpacked))}
	}
	blockNumber, ok := unpacked[0].(*big.Int)
	if !ok {
		return AggregateResult{}, &TransportError{Err: fmt.Errorf("unexpected block number type %T", unpacked[0])}
	}
	returnData, ok := unpacked[1].([][]byte)
	if !ok {
		return AggregateResult{}, &TransportError{Err: fmt.Errorf("unexpected return data type %T", unpacked[1])}
	}

	if len(returnData) != len(batch.calls) {
		return AggregateResult{}, &DecodeError{
			Index: -1,
			Err:   fmt.Errorf("got %d results for %d calls", len(returnData), len(batch.calls)),
		}
	}

	result := AggregateResult{
		BlockNumber: blockNumber.Uint64(),
		Values:      make([][]any, len(returnData)),
	}
	for i, data := range returnData {
		c := batch.calls[i]
		values, err := c.abi.Unpack(c.method, data)
		if err != nil {
			return AggregateResult{}, &DecodeError{Index: i, Method: c.method, Err: err}
		}
		result.Values[i] = values
	}

	return result, nil
}

func decodeBigInt(values []any) (*big.Int, error) {
	if len(values) != 1 {
		return nil, fmt.Errorf("expected 1 value, got %d", len(values))
	}
	v, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("expected *big.Int, got %T", values[0])
	}
	return v, nil
}

func decodeString(values []any) (string, error) {
	if len(values) != 1 {
		return "", fmt.Errorf("expected 1 value, got %d", len(values))
	}
	v, ok := values[0].(string)
	if !ok {
		return "", fmt.Errorf("expected string, got %T", values[0])
	}
	return v, nil
}

func decodeUint8(values []any) (uint8, error) {
	if len(values) != 1 {
		return 0, fmt.Errorf("expected 1 value, got %d", len(values))
	}
	v, ok := values[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("expected uint8, got %T", values[0])
	}
	return v, nil
}

func decodeAddress(values []any) (common.Address, error) {
	if len(values) != 1 {
		return common.Address{}, fmt.Errorf("expected 1 value, got %d", len(values))
	}
	v, ok := values[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("expected address, got %T", values[0])
	}
	return v, nil
}
