package blockchain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// EtherKey is the asset identifier standing for the chain's native currency
const EtherKey = "ether"

// Calls appended per asset. Decoding relies on these strides, so the order in
// which FetchAccountState and FetchTokenMetadata append calls must not change.
const (
	accountStride  = 2 // balanceOf, allowance
	metadataStride = 3 // name, symbol, decimals
)

// AccountState is the on-chain state of one account
type AccountState struct {
	// Allowances maps spender -> token -> amount. The spender key is the
	// checksummed exchange proxy (Reader.ExchangeProxy().Hex()), whatever the
	// case it was configured with; token keys are the assets as passed in.
	Allowances map[string]map[string]string `json:"allowances"`
	// Balances maps token (or EtherKey) -> amount
	Balances map[string]string `json:"balances"`
	// Proxy is the DSProxy registered for the account, the zero address when none
	Proxy       string `json:"proxy"`
	BlockNumber uint64 `json:"blockNumber"`
}

// HasProxy reports whether a proxy is registered for the account
func (s AccountState) HasProxy() bool {
	return common.HexToAddress(s.Proxy) != (common.Address{})
}

// TokenMetadata describes an ERC20 token
type TokenMetadata struct {
	Address  string `json:"address"`
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
	LogoURL  string `json:"logoUrl"`
}

// ReaderConfig holds the contracts and collaborators a Reader is built with
type ReaderConfig struct {
	ABIs          ABIs
	Multicall     common.Address
	ExchangeProxy common.Address
	ProxyRegistry common.Address
	Timeout       time.Duration
	LogoURL       func(common.Address) string
	Logger        *slog.Logger
}

// Reader fetches account state and token metadata, one aggregate per operation
type Reader struct {
	abis          ABIs
	multicall     *Multicall
	exchangeProxy common.Address
	proxyRegistry common.Address
	timeout       time.Duration
	logoURL       func(common.Address) string
	logger        *slog.Logger

	mu   sync.Mutex
	last AggregateStatus
}

// AggregateStatus is the outcome of the latest aggregates sent by a Reader
type AggregateStatus struct {
	// Block and At describe the last successful aggregate
	Block uint64
	At    time.Time
	// Err and FailedAt describe the last failed one
	Err      error
	FailedAt time.Time
}

// Failing reports whether the latest aggregate failed
func (s AggregateStatus) Failing() bool {
	return s.Err != nil && s.FailedAt.After(s.At)
}

// NewReader creates a reader sending its batches through caller
func NewReader(caller ContractCaller, cfg ReaderConfig) (*Reader, error) {
	if caller == nil {
		return nil, errors.New("contract caller is required")
	}
	if cfg.ExchangeProxy == (common.Address{}) {
		return nil, errors.New("exchange proxy address is required")
	}
	if cfg.ProxyRegistry == (common.Address{}) {
		return nil, errors.New("proxy registry address is required")
	}

	abis := cfg.ABIs
	if len(abis.ERC20.Methods) == 0 || len(abis.DSProxyRegistry.Methods) == 0 || len(abis.Multicall.Methods) == 0 {
		parsed, err := ParseABIs()
		if err != nil {
			return nil, err
		}
		abis = parsed
	}

	multicallAddr := cfg.Multicall
	if multicallAddr == (common.Address{}) {
		multicallAddr = DefaultMulticallAddress
	}
	logoURL := cfg.LogoURL
	if logoURL == nil {
		logoURL = TrustWalletLogoURL
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := &Reader{
		abis:          abis,
		exchangeProxy: cfg.ExchangeProxy,
		proxyRegistry: cfg.ProxyRegistry,
		timeout:       cfg.Timeout,
		logoURL:       logoURL,
		logger:        logger,
	}
	r.multicall = NewMulticall(caller, multicallAddr, &r.abis.Multicall)
	return r, nil
}

// ExchangeProxy returns the spender allowances are read for
func (r *Reader) ExchangeProxy() common.Address {
	return r.exchangeProxy
}

// FetchAccountState reads token balances, exchange proxy allowances, the ether
// balance and the registered proxy of address in a single aggregate.
// EtherKey entries in assets are skipped for token calls; the ether balance is
// always returned under EtherKey.
func (r *Reader) FetchAccountState(ctx context.Context, address string, assets []string) (AccountState, error) {
	owner, err := parseAddress(address)
	if err != nil {
		return AccountState{}, err
	}

	tokens := make([]string, 0, len(assets))
	tokenAddrs := make([]common.Address, 0, len(assets))
	for _, asset := range assets {
		if asset == EtherKey {
			continue
		}
		addr, err := parseAddress(asset)
		if err != nil {
			return AccountState{}, err
		}
		tokens = append(tokens, asset)
		tokenAddrs = append(tokenAddrs, addr)
	}

	batch := NewBatch(accountStride*len(tokens) + 2)
	for _, token := range tokenAddrs {
		batch.Add(token, &r.abis.ERC20, "balanceOf", owner)
		batch.Add(token, &r.abis.ERC20, "allowance", owner, r.exchangeProxy)
	}
	batch.Add(r.multicall.Address(), &r.abis.Multicall, "getEthBalance", owner)
	batch.Add(r.proxyRegistry, &r.abis.DSProxyRegistry, "proxies", owner)

	result, err := r.aggregate(ctx, batch)
	if err != nil {
		r.logger.Debug("Account state aggregate failed", "account", owner.Hex(), "calls", batch.Len(), "error", err)
		return AccountState{}, fmt.Errorf("fetching account state of %s: %w", owner.Hex(), err)
	}

	spender := r.exchangeProxy.Hex()
	state := AccountState{
		Allowances:  map[string]map[string]string{spender: make(map[string]string, len(tokens))},
		Balances:    make(map[string]string, len(tokens)+1),
		BlockNumber: result.BlockNumber,
	}

	for i, token := range tokens {
		balance, err := decodeBigInt(result.Values[accountStride*i])
		if err != nil {
			return AccountState{}, &DecodeError{Index: accountStride * i, Method: "balanceOf", Err: err}
		}
		allowance, err := decodeBigInt(result.Values[accountStride*i+1])
		if err != nil {
			return AccountState{}, &DecodeError{Index: accountStride*i + 1, Method: "allowance", Err: err}
		}
		state.Balances[token] = balance.String()
		state.Allowances[spender][token] = allowance.String()
	}

	ethIndex := accountStride * len(tokens)
	ethBalance, err := decodeBigInt(result.Values[ethIndex])
	if err != nil {
		return AccountState{}, &DecodeError{Index: ethIndex, Method: "getEthBalance", Err: err}
	}
	state.Balances[EtherKey] = ethBalance.String()

	proxy, err := decodeAddress(result.Values[ethIndex+1])
	if err != nil {
		return AccountState{}, &DecodeError{Index: ethIndex + 1, Method: "proxies", Err: err}
	}
	state.Proxy = proxy.Hex()

	r.logger.Debug("Account state fetched",
		"account", owner.Hex(),
		"tokens", len(tokens),
		"block", result.BlockNumber,
	)
	return state, nil
}

// FetchTokenMetadata reads name, symbol and decimals of every asset in a single
// aggregate. Every entry is treated as a token contract.
func (r *Reader) FetchTokenMetadata(ctx context.Context, assets []string) (map[string]TokenMetadata, error) {
	metadata := make(map[string]TokenMetadata, len(assets))
	if len(assets) == 0 {
		return metadata, nil
	}

	tokenAddrs := make([]common.Address, 0, len(assets))
	for _, asset := range assets {
		addr, err := parseAddress(asset)
		if err != nil {
			return nil, err
		}
		tokenAddrs = append(tokenAddrs, addr)
	}

	batch := NewBatch(metadataStride * len(assets))
	for _, token := range tokenAddrs {
		batch.Add(token, &r.abis.ERC20, "name")
		batch.Add(token, &r.abis.ERC20, "symbol")
		batch.Add(token, &r.abis.ERC20, "decimals")
	}

	result, err := r.aggregate(ctx, batch)
	if err != nil {
		r.logger.Debug("Token metadata aggregate failed", "tokens", len(assets), "error", err)
		return nil, fmt.Errorf("fetching token metadata: %w", err)
	}

	for i, asset := range assets {
		base := metadataStride * i
		name, err := decodeString(result.Values[base])
		if err != nil {
			return nil, &DecodeError{Index: base, Method: "name", Err: err}
		}
		symbol, err := decodeString(result.Values[base+1])
		if err != nil {
			return nil, &DecodeError{Index: base + 1, Method: "symbol", Err: err}
		}
		decimals, err := decodeUint8(result.Values[base+2])
		if err != nil {
			return nil, &DecodeError{Index: base + 2, Method: "decimals", Err: err}
		}

		metadata[asset] = TokenMetadata{
			Address:  asset,
			Name:     name,
			Symbol:   symbol,
			Decimals: decimals,
			LogoURL:  r.logoURL(tokenAddrs[i]),
		}
	}

	r.logger.Debug("Token metadata fetched", "tokens", len(assets), "block", result.BlockNumber)
	return metadata, nil
}

// LastAggregate returns the outcome of the latest aggregates
func (r *Reader) LastAggregate() AggregateStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

// aggregate sends batch within the reader timeout and records the outcome.
// Encoding errors never reach the node and are not recorded.
func (r *Reader) aggregate(ctx context.Context, batch *Batch) (AggregateResult, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	result, err := r.multicall.Aggregate(ctx, batch)

	var encodingErr *EncodingError
	if errors.As(err, &encodingErr) {
		return result, err
	}

	r.mu.Lock()
	if err != nil {
		r.last.Err = err
		r.last.FailedAt = time.Now()
	} else {
		r.last.Block = result.BlockNumber
		r.last.At = time.Now()
	}
	r.mu.Unlock()

	return result, err
}

func (r *Reader) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.timeout)
}

func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, &EncodingError{Index: -1, Err: fmt.Errorf("invalid address %q", s)}
	}
	return common.HexToAddress(s), nil
}
