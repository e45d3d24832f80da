package blockchain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/require"
)

var (
	testOwner         = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	testExchangeProxy = common.HexToAddress("0x00000000000000000000000000000000000000e9")
	testProxyRegistry = common.HexToAddress("0x4678f0a6958e4d2bc4f1baf7bc52e8f3564f3fe4")
	testTokenA        = common.HexToAddress("0x6b175474e89094c44da98b954eedeac495271d0f")
	testTokenB        = common.HexToAddress("0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48")
	testTokenC        = common.HexToAddress("0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2")
)

type recordedCall struct {
	target common.Address
	method string
	args   []any
}

type tokenInfo struct {
	name     string
	symbol   string
	decimals uint8
}

// rpcError mimics the JSON-RPC error returned by geth for a reverted eth_call
type rpcError struct {
	code int
	msg  string
	data string
}

func (e *rpcError) Error() string          { return e.msg }
func (e *rpcError) ErrorCode() int         { return e.code }
func (e *rpcError) ErrorData() interface{} { return e.data }

func revertData(t *testing.T, reason string) string {
	t.Helper()
	stringType, err := abi.NewType("string", "", nil)
	require.NoError(t, err)
	packed, err := abi.Arguments{{Type: stringType}}.Pack(reason)
	require.NoError(t, err)
	selector := []byte{0x08, 0xc3, 0x79, 0xa0}
	return hexutil.Encode(append(selector, packed...))
}

// fakeChain is an in-memory Multicall: it decodes aggregate calldata, records
// every sub-call in order and answers from its own state.
type fakeChain struct {
	t             *testing.T
	abis          ABIs
	multicall     common.Address
	proxyRegistry common.Address
	block         uint64

	balances   map[common.Address]map[common.Address]*big.Int
	allowances map[common.Address]map[common.Address]*big.Int
	ether      map[common.Address]*big.Int
	proxies    map[common.Address]common.Address
	tokens     map[common.Address]tokenInfo

	revertTarget *common.Address
	revertReason string
	transportErr error
	dropResult   bool
	blockUntil   bool

	mu       sync.Mutex
	requests int
	calls    []recordedCall
}

func newFakeChain(t *testing.T) *fakeChain {
	abis, err := ParseABIs()
	require.NoError(t, err)
	return &fakeChain{
		t:             t,
		abis:          abis,
		multicall:     DefaultMulticallAddress,
		proxyRegistry: testProxyRegistry,
		block:         19000000,
		balances:      map[common.Address]map[common.Address]*big.Int{},
		allowances:    map[common.Address]map[common.Address]*big.Int{},
		ether:         map[common.Address]*big.Int{},
		proxies:       map[common.Address]common.Address{},
		tokens:        map[common.Address]tokenInfo{},
	}
}

func (f *fakeChain) setBalance(token, owner common.Address, amount *big.Int) {
	if f.balances[token] == nil {
		f.balances[token] = map[common.Address]*big.Int{}
	}
	f.balances[token][owner] = amount
}

// setAllowance records an allowance of owner towards the exchange proxy
func (f *fakeChain) setAllowance(token, owner common.Address, amount *big.Int) {
	if f.allowances[token] == nil {
		f.allowances[token] = map[common.Address]*big.Int{}
	}
	f.allowances[token][owner] = amount
}

func (f *fakeChain) recorded() []recordedCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedCall(nil), f.calls...)
}

func (f *fakeChain) requestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests
}

func (f *fakeChain) CallContract(ctx context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.mu.Lock()
	f.requests++
	f.mu.Unlock()

	if f.blockUntil {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.transportErr != nil {
		return nil, f.transportErr
	}
	if msg.To == nil || *msg.To != f.multicall {
		return nil, errors.New("call not sent to the multicall contract")
	}

	method, err := f.abis.Multicall.MethodById(msg.Data[:4])
	if err != nil || method.Name != "aggregate" {
		return nil, fmt.Errorf("unexpected multicall method: %v", err)
	}
	inputs, err := method.Inputs.Unpack(msg.Data[4:])
	if err != nil {
		return nil, err
	}
	calls := *abi.ConvertType(inputs[0], new([]aggregateCall)).(*[]aggregateCall)

	returnData := make([][]byte, 0, len(calls))
	for _, call := range calls {
		contractABI := &f.abis.ERC20
		switch call.Target {
		case f.multicall:
			contractABI = &f.abis.Multicall
		case f.proxyRegistry:
			contractABI = &f.abis.DSProxyRegistry
		}

		sub, err := contractABI.MethodById(call.CallData[:4])
		if err != nil {
			return nil, err
		}
		args, err := sub.Inputs.Unpack(call.CallData[4:])
		if err != nil {
			return nil, err
		}

		f.mu.Lock()
		f.calls = append(f.calls, recordedCall{target: call.Target, method: sub.Name, args: args})
		f.mu.Unlock()

		if f.revertTarget != nil && *f.revertTarget == call.Target {
			return nil, &rpcError{code: revertErrorCode, msg: "execution reverted: " + f.revertReason, data: revertData(f.t, f.revertReason)}
		}

		data, err := f.answer(call.Target, sub, args)
		if err != nil {
			return nil, err
		}
		returnData = append(returnData, data)
	}

	if f.dropResult && len(returnData) > 0 {
		returnData = returnData[:len(returnData)-1]
	}

	return method.Outputs.Pack(new(big.Int).SetUint64(f.block), returnData)
}

func (f *fakeChain) answer(target common.Address, method *abi.Method, args []any) ([]byte, error) {
	zero := big.NewInt(0)
	orZero := func(v *big.Int) *big.Int {
		if v == nil {
			return zero
		}
		return v
	}

	switch method.Name {
	case "balanceOf":
		return method.Outputs.Pack(orZero(f.balances[target][args[0].(common.Address)]))
	case "allowance":
		if args[1].(common.Address) != testExchangeProxy {
			return method.Outputs.Pack(zero)
		}
		return method.Outputs.Pack(orZero(f.allowances[target][args[0].(common.Address)]))
	case "getEthBalance":
		return method.Outputs.Pack(orZero(f.ether[args[0].(common.Address)]))
	case "proxies":
		return method.Outputs.Pack(f.proxies[args[0].(common.Address)])
	case "name", "symbol", "decimals":
		info, ok := f.tokens[target]
		if !ok {
			// Calls to accounts without code succeed with no return data
			return []byte{}, nil
		}
		switch method.Name {
		case "name":
			return method.Outputs.Pack(info.name)
		case "symbol":
			return method.Outputs.Pack(info.symbol)
		default:
			return method.Outputs.Pack(info.decimals)
		}
	}
	return nil, fmt.Errorf("unsupported method %s", method.Name)
}

func newTestReader(t *testing.T, chain *fakeChain) *Reader {
	t.Helper()
	reader, err := NewReader(chain, ReaderConfig{
		ABIs:          chain.abis,
		Multicall:     chain.multicall,
		ExchangeProxy: testExchangeProxy,
		ProxyRegistry: chain.proxyRegistry,
	})
	require.NoError(t, err)
	return reader
}
