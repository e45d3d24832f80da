package health

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/matrixise/chain-reader/internal/blockchain"
)

const (
	databaseTimeout = 2 * time.Second
	rpcTimeout      = 3 * time.Second
)

// Pinger is implemented by storage.Store
type Pinger interface {
	Ping(ctx context.Context) error
}

// EndpointPool is implemented by blockchain.Client
type EndpointPool interface {
	GetHealthyEndpoint() (blockchain.Endpoint, string, error)
	GetEndpointsHealth() map[string]bool
}

// AggregateReporter is implemented by blockchain.Reader
type AggregateReporter interface {
	LastAggregate() blockchain.AggregateStatus
}

// Schedule is implemented by scheduler.Scheduler
type Schedule interface {
	NextRun() (time.Time, error)
}

// Config lists the components to check. Only RPC is required.
type Config struct {
	Store    Pinger
	RPC      EndpointPool
	Reader   AggregateReporter
	Schedule Schedule
	// Interval is the expected time between tracker runs, zero outside daemon mode
	Interval time.Duration
}

// Checker reports the health of the node connection, the reader's own
// aggregates and, when configured, the database and the snapshot daemon.
type Checker struct {
	cfg Config

	mu             sync.RWMutex
	lastRunTime    time.Time
	lastRunSuccess bool
}

// NewChecker creates a new health checker
func NewChecker(cfg Config) *Checker {
	return &Checker{cfg: cfg}
}

// UpdateLastRun records the outcome of a tracker run
func (c *Checker) UpdateLastRun(success bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastRunTime = time.Now()
	c.lastRunSuccess = success
}

// CheckStatus represents the health status of a component
type CheckStatus string

const (
	StatusOK       CheckStatus = "ok"
	StatusDegraded CheckStatus = "degraded"
	StatusError    CheckStatus = "error"
)

// severity orders statuses so the worst one wins
func (s CheckStatus) severity() int {
	switch s {
	case StatusError:
		return 2
	case StatusDegraded:
		return 1
	default:
		return 0
	}
}

// HealthResponse is the JSON response structure
type HealthResponse struct {
	Status    CheckStatus            `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckDetail `json:"checks"`
	Uptime    string                 `json:"uptime,omitempty"`
}

// CheckDetail contains details about a specific health check
type CheckDetail struct {
	Status  CheckStatus `json:"status"`
	Message string      `json:"message,omitempty"`
	// Block is the last block read by the reader
	Block uint64 `json:"block,omitempty"`
}

// check is one named health check. When capped, an error only degrades the
// overall status.
type check struct {
	name   string
	run    func(ctx context.Context) CheckDetail
	capped bool
}

var startTime = time.Now()

func (c *Checker) checks() []check {
	checks := make([]check, 0, 4)
	if c.cfg.Store != nil {
		checks = append(checks, check{name: "database", run: c.checkDatabase})
	}
	checks = append(checks, check{name: "rpc_endpoints", run: c.checkRPC})
	if c.cfg.Reader != nil {
		checks = append(checks, check{name: "aggregates", run: c.checkAggregates, capped: true})
	}
	if c.cfg.Interval > 0 {
		checks = append(checks, check{name: "daemon", run: c.checkDaemon, capped: true})
	}
	return checks
}

// Check performs all health checks and returns the aggregated status
func (c *Checker) Check(ctx context.Context) HealthResponse {
	resp := HealthResponse{
		Status: StatusOK,
		Checks: make(map[string]CheckDetail),
	}

	for _, chk := range c.checks() {
		detail := chk.run(ctx)
		resp.Checks[chk.name] = detail

		status := detail.Status
		if chk.capped && status == StatusError {
			status = StatusDegraded
		}
		if status.severity() > resp.Status.severity() {
			resp.Status = status
		}
	}

	resp.Timestamp = time.Now()
	resp.Uptime = time.Since(startTime).Round(time.Second).String()
	return resp
}

// checkDatabase verifies PostgreSQL connectivity
func (c *Checker) checkDatabase(ctx context.Context) CheckDetail {
	ctx, cancel := context.WithTimeout(ctx, databaseTimeout)
	defer cancel()

	if err := c.cfg.Store.Ping(ctx); err != nil {
		slog.Error("Health check: database ping failed", "error", err)
		return CheckDetail{Status: StatusError, Message: "database unreachable: " + err.Error()}
	}
	return CheckDetail{Status: StatusOK, Message: "database connection healthy"}
}

// checkRPC asks the routed endpoint for its chain ID and counts healthy endpoints
func (c *Checker) checkRPC(ctx context.Context) CheckDetail {
	ctx, cancel := context.WithTimeout(ctx, rpcTimeout)
	defer cancel()

	endpoint, url, err := c.cfg.RPC.GetHealthyEndpoint()
	if err != nil {
		slog.Error("Health check: no healthy RPC endpoints", "error", err)
		return CheckDetail{Status: StatusError, Message: "no healthy RPC endpoints available"}
	}

	chainID, err := endpoint.ChainID(ctx)
	if err != nil {
		slog.Error("Health check: RPC endpoint failed", "url", url, "error", err)
		return CheckDetail{Status: StatusError, Message: "RPC endpoint not responding: " + err.Error()}
	}

	healthy, total := 0, 0
	for _, ok := range c.cfg.RPC.GetEndpointsHealth() {
		total++
		if ok {
			healthy++
		}
	}

	detail := CheckDetail{
		Status:  StatusOK,
		Message: fmt.Sprintf("chain %s, %d/%d RPC endpoints healthy", chainID, healthy, total),
	}
	if healthy < total {
		detail.Status = StatusDegraded
	}
	return detail
}

// checkAggregates reports the reader's latest multicall outcome
func (c *Checker) checkAggregates(context.Context) CheckDetail {
	last := c.cfg.Reader.LastAggregate()

	switch {
	case last.Failing():
		return CheckDetail{
			Status:  StatusDegraded,
			Message: fmt.Sprintf("last aggregate failed %s ago: %v", time.Since(last.FailedAt).Round(time.Second), last.Err),
			Block:   last.Block,
		}
	case last.At.IsZero():
		return CheckDetail{Status: StatusOK, Message: "no aggregate sent yet"}
	default:
		return CheckDetail{
			Status:  StatusOK,
			Message: fmt.Sprintf("block %d read %s ago", last.Block, time.Since(last.At).Round(time.Second)),
			Block:   last.Block,
		}
	}
}

// checkDaemon verifies the tracker runs on schedule, with a 2x interval grace period
func (c *Checker) checkDaemon(context.Context) CheckDetail {
	c.mu.RLock()
	lastRun, success := c.lastRunTime, c.lastRunSuccess
	c.mu.RUnlock()

	if lastRun.IsZero() {
		msg := "daemon not yet executed (startup)"
		if c.cfg.Schedule != nil {
			if next, err := c.cfg.Schedule.NextRun(); err == nil {
				msg = fmt.Sprintf("%s, next run at %s", msg, next.Format(time.RFC3339))
			}
		}
		return CheckDetail{Status: StatusOK, Message: msg}
	}

	if !success {
		return CheckDetail{Status: StatusDegraded, Message: "last execution failed"}
	}

	sinceLastRun := time.Since(lastRun)
	if sinceLastRun > 2*c.cfg.Interval {
		return CheckDetail{
			Status:  StatusDegraded,
			Message: fmt.Sprintf("no execution in %s (expected every %s)", sinceLastRun.Round(time.Second), c.cfg.Interval),
		}
	}

	return CheckDetail{
		Status:  StatusOK,
		Message: fmt.Sprintf("last executed %s ago", sinceLastRun.Round(time.Second)),
	}
}

// Handler returns an http.HandlerFunc for the health endpoint
func (c *Checker) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		status := c.Check(r.Context())

		statusCode := http.StatusOK
		if status.Status == StatusError {
			statusCode = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode)

		if err := json.NewEncoder(w).Encode(status); err != nil {
			slog.Error("Failed to encode health response", "error", err)
		}
	}
}
