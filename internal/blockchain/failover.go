package blockchain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
)

const (
	unhealthyDuration  = 5 * time.Minute // Cooldown before retry
	healthCheckTimeout = 5 * time.Second
)

var errNoHealthyEndpoint = errors.New("no healthy RPC endpoints available")

// Endpoint is a connected RPC node
type Endpoint interface {
	ContractCaller
	ChainID(ctx context.Context) (*big.Int, error)
	Close()
}

// DialFunc connects to the node at url
type DialFunc func(ctx context.Context, url string) (Endpoint, error)

func dialEthClient(ctx context.Context, url string) (Endpoint, error) {
	return ethclient.DialContext(ctx, url)
}

type endpointStatus struct {
	url           string
	client        Endpoint
	healthy       bool
	lastError     error
	lastErrorTime time.Time
	mu            sync.RWMutex
}

// FailoverClient manages multiple RPC endpoints with automatic failover
type FailoverClient struct {
	endpoints    []*endpointStatus
	currentIndex int
	dial         DialFunc
	now          func() time.Time
	mu           sync.RWMutex
}

// NewFailoverClient creates a new failover client with multiple endpoints
func NewFailoverClient(urls []string) (*FailoverClient, error) {
	return newFailoverClient(urls, dialEthClient)
}

func newFailoverClient(urls []string, dial DialFunc) (*FailoverClient, error) {
	if len(urls) == 0 {
		return nil, fmt.Errorf("at least one RPC URL is required")
	}

	fc := &FailoverClient{
		endpoints: make([]*endpointStatus, 0, len(urls)),
		dial:      dial,
		now:       time.Now,
	}

	healthyCount := 0
	for _, url := range urls {
		client, err := fc.connect(url)

		fc.endpoints = append(fc.endpoints, &endpointStatus{
			url:           url,
			client:        client,
			healthy:       err == nil,
			lastError:     err,
			lastErrorTime: fc.now(),
		})

		if err == nil {
			healthyCount++
			slog.Info("Connected to RPC endpoint", "url", url)
		} else {
			slog.Warn("Failed to connect to RPC endpoint, will retry later", "url", url, "error", err)
		}
	}

	if healthyCount == 0 {
		return nil, errNoHealthyEndpoint
	}

	return fc, nil
}

// connect dials url and verifies the node answers eth_chainId
func (fc *FailoverClient) connect(url string) (Endpoint, error) {
	ctx, cancel := context.WithTimeout(context.Background(), healthCheckTimeout)
	defer cancel()

	client, err := fc.dial(ctx, url)
	if err != nil {
		return nil, err
	}
	if _, err := client.ChainID(ctx); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

// GetClient returns a healthy endpoint, failing over in round-robin order.
// Unhealthy endpoints are redialed once their cooldown has expired. When every
// endpoint is cooling down, the one that failed longest ago is handed out.
func (fc *FailoverClient) GetClient() (Endpoint, string, error) {
	fc.mu.Lock()
	defer fc.mu.Unlock()

	startIndex := fc.currentIndex

	for i := 0; i < len(fc.endpoints); i++ {
		idx := (startIndex + i) % len(fc.endpoints)
		ep := fc.endpoints[idx]

		ep.mu.RLock()
		healthy := ep.healthy
		client := ep.client
		canRetry := fc.now().Sub(ep.lastErrorTime) > unhealthyDuration
		ep.mu.RUnlock()

		if healthy && client != nil {
			fc.currentIndex = idx
			return client, ep.url, nil
		}

		if !healthy && canRetry {
			newClient, err := fc.redial(ep)
			if err != nil {
				continue
			}
			fc.currentIndex = idx
			return newClient, ep.url, nil
		}
	}

	return fc.leastRecentlyFailed()
}

// redial replaces the connection of ep. The previous connection is closed: it
// has been out of rotation for at least the cooldown.
func (fc *FailoverClient) redial(ep *endpointStatus) (Endpoint, error) {
	newClient, err := fc.connect(ep.url)

	ep.mu.Lock()
	defer ep.mu.Unlock()

	if err != nil {
		ep.lastError = err
		ep.lastErrorTime = fc.now()
		return nil, err
	}

	if ep.client != nil {
		ep.client.Close()
	}
	ep.client = newClient
	ep.healthy = true
	ep.lastError = nil

	slog.Info("Reconnected to RPC endpoint", "url", ep.url)
	return newClient, nil
}

// leastRecentlyFailed returns the endpoint whose last failure is the oldest,
// keeping its connection if it still has one. Callers hold fc.mu.
func (fc *FailoverClient) leastRecentlyFailed() (Endpoint, string, error) {
	var (
		oldest     *endpointStatus
		oldestIdx  int
		oldestTime time.Time
	)
	for idx, ep := range fc.endpoints {
		ep.mu.RLock()
		failedAt := ep.lastErrorTime
		ep.mu.RUnlock()

		if oldest == nil || failedAt.Before(oldestTime) {
			oldest, oldestIdx, oldestTime = ep, idx, failedAt
		}
	}

	oldest.mu.RLock()
	client := oldest.client
	oldest.mu.RUnlock()

	if client == nil {
		newClient, err := fc.redial(oldest)
		if err != nil {
			return nil, "", fmt.Errorf("%w: %v", errNoHealthyEndpoint, err)
		}
		client = newClient
	}

	fc.currentIndex = oldestIdx
	slog.Debug("All RPC endpoints unhealthy, trying least recently failed", "url", oldest.url)
	return client, oldest.url, nil
}

// MarkUnhealthy takes an endpoint out of rotation for the cooldown. Its
// connection stays open for calls already in flight.
func (fc *FailoverClient) MarkUnhealthy(url string, err error) {
	fc.mu.RLock()
	defer fc.mu.RUnlock()

	for _, ep := range fc.endpoints {
		if ep.url != url {
			continue
		}

		ep.mu.Lock()
		ep.healthy = false
		ep.lastError = err
		ep.lastErrorTime = fc.now()
		ep.mu.Unlock()

		slog.Warn("Marked RPC endpoint as unhealthy, will retry after cooldown",
			"url", url,
			"error", err,
			"retry_after", unhealthyDuration)
		return
	}
}

// MarkHealthy puts an endpoint back into rotation after a successful call
func (fc *FailoverClient) MarkHealthy(url string) {
	fc.mu.RLock()
	defer fc.mu.RUnlock()

	for _, ep := range fc.endpoints {
		if ep.url != url {
			continue
		}

		ep.mu.Lock()
		recovered := !ep.healthy
		ep.healthy = true
		ep.lastError = nil
		ep.mu.Unlock()

		if recovered {
			slog.Info("RPC endpoint recovered", "url", url)
		}
		return
	}
}

// Health returns the health flag of every endpoint keyed by URL
func (fc *FailoverClient) Health() map[string]bool {
	fc.mu.RLock()
	defer fc.mu.RUnlock()

	status := make(map[string]bool, len(fc.endpoints))
	for _, ep := range fc.endpoints {
		ep.mu.RLock()
		status[ep.url] = ep.healthy
		ep.mu.RUnlock()
	}
	return status
}

// Close closes all endpoint connections
func (fc *FailoverClient) Close() {
	fc.mu.Lock()
	defer fc.mu.Unlock()

	for _, ep := range fc.endpoints {
		ep.mu.Lock()
		if ep.client != nil {
			ep.client.Close()
			ep.client = nil
		}
		ep.mu.Unlock()
	}
}
