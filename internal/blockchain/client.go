package blockchain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
)

const retryInterval = 500 * time.Millisecond

// Client is a ContractCaller backed by several RPC endpoints with failover
type Client struct {
	failoverClient *FailoverClient
}

// NewClient creates a new blockchain client with failover support
func NewClient(rpcURLs []string) (*Client, error) {
	failoverClient, err := NewFailoverClient(rpcURLs)
	if err != nil {
		return nil, err
	}
	return &Client{failoverClient: failoverClient}, nil
}

// Close closes all RPC client connections
func (c *Client) Close() {
	c.failoverClient.Close()
}

// CallContract runs eth_call on the current healthy endpoint.
// A transport failure marks the endpoint unhealthy so the next call fails over,
// a success puts it back into rotation. The call itself is not retried.
func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	endpoint, url, err := c.failoverClient.GetClient()
	if err != nil {
		return nil, &TransportError{Err: err}
	}

	output, err := endpoint.CallContract(ctx, msg, blockNumber)
	if err != nil {
		var transportErr *TransportError
		if !errors.As(classifyCallError(err), &transportErr) {
			// A revert still proves the node answered
			c.failoverClient.MarkHealthy(url)
		} else if ctx.Err() == nil {
			c.failoverClient.MarkUnhealthy(url, err)
		}
		return nil, err
	}

	c.failoverClient.MarkHealthy(url)
	return output, nil
}

// GetHealthyEndpoint returns the endpoint calls are currently routed to
func (c *Client) GetHealthyEndpoint() (Endpoint, string, error) {
	return c.failoverClient.GetClient()
}

// GetEndpointsHealth returns the health flag of every configured endpoint
func (c *Client) GetEndpointsHealth() map[string]bool {
	return c.failoverClient.Health()
}

// Retry runs fn up to attempts times with exponential backoff.
// Only transport failures are retried; any other error is returned at once.
func Retry(ctx context.Context, attempts int, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := range attempts {
		if attempt > 0 {
			backoff := retryInterval * time.Duration(1<<uint(attempt-1))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !IsRetryable(lastErr) {
			return lastErr
		}
	}

	if attempts == 1 {
		return lastErr
	}
	return fmt.Errorf("failed after %d attempts: %w", attempts, lastErr)
}
