package rpc

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/mod/semver"

	"github.com/coordinatordb/coord/internal/lockfile"
)

func rpcDebugEnabled() bool {
	val := os.Getenv("COORD_RPC_DEBUG")
	return val == "1" || val == "true"
}

func rpcDebugLog(format string, args ...interface{}) {
	if rpcDebugEnabled() {
		fmt.Fprintf(os.Stderr, "[rpc] "+format+"\n", args...)
	}
}

// ClientVersion is overridden by cmd/coord at build time so the daemon can
// reject a stale client.
var ClientVersion = "0.0.0"

// Client is a connection to a running coordinator daemon.
type Client struct {
	conn       net.Conn
	socketPath string
	timeout    time.Duration
}

func endpointExists(socketPath string) bool {
	info, err := os.Stat(socketPath)
	return err == nil && info.Mode()&os.ModeSocket != 0
}

func dialRPC(socketPath string, timeout time.Duration) (net.Conn, error) {
	return net.DialTimeout("unix", socketPath, timeout)
}

// TryConnect attempts to connect to a coordinator listening on socketPath,
// returning (nil, nil) if none is running or it's unhealthy.
func TryConnect(socketPath string) (*Client, error) {
	return TryConnectWithTimeout(socketPath, 200*time.Millisecond)
}

// TryConnectWithTimeout is TryConnect with an explicit dial timeout. It
// probes the daemon lock before dialing when the socket file is missing, so
// a crashed daemon's stale socket doesn't cause a hanging dial, and so a
// daemon mid-startup (lock held, socket not yet created) gets a short
// re-check instead of being reported absent.
func TryConnectWithTimeout(socketPath string, dialTimeout time.Duration) (*Client, error) {
	rpcDebugLog("connecting to %s", socketPath)

	dataDir := filepath.Dir(socketPath)
	if !endpointExists(socketPath) {
		running, _ := lockfile.TryDaemonLock(dataDir)
		if !running {
			rpcDebugLog("no daemon lock held, no daemon running")
			return nil, nil
		}
		// Lock held but socket missing: daemon is starting up. Re-check once.
		if !endpointExists(socketPath) {
			rpcDebugLog("daemon lock held but socket still missing (startup race)")
			return nil, nil
		}
	}

	if dialTimeout <= 0 {
		dialTimeout = 200 * time.Millisecond
	}
	conn, err := dialRPC(socketPath, dialTimeout)
	if err != nil {
		rpcDebugLog("dial failed: %v", err)
		running, _ := lockfile.TryDaemonLock(dataDir)
		if !running {
			_ = os.Remove(socketPath)
		}
		return nil, nil
	}

	client := &Client{conn: conn, socketPath: socketPath, timeout: 30 * time.Second}

	health, err := client.Health()
	if err != nil {
		rpcDebugLog("health check failed: %v", err)
		_ = conn.Close()
		return nil, nil
	}
	if health.Status != "healthy" {
		rpcDebugLog("daemon unhealthy: %s", health.Error)
		_ = conn.Close()
		return nil, nil
	}

	rpcDebugLog("connected (uptime %.1fs)", health.Uptime)

	if status, err := client.Status(); err == nil {
		if mismatch := versionMismatch(ClientVersion, status.Version); mismatch != "" {
			rpcDebugLog("version check: %s", mismatch)
		}
	}
	return client, nil
}

// versionMismatch reports a human-readable warning when client and server
// major versions disagree, leaving the caller to decide whether to carry
// on regardless — a stale-but-compatible minor/patch skew is expected
// during a rolling upgrade. Empty return means no concern.
func versionMismatch(clientVersion, serverVersion string) string {
	cv, sv := normalizeSemver(clientVersion), normalizeSemver(serverVersion)
	if !semver.IsValid(cv) || !semver.IsValid(sv) {
		return ""
	}
	if semver.Major(cv) != semver.Major(sv) {
		return fmt.Sprintf("client %s and daemon %s are on different major versions", clientVersion, serverVersion)
	}
	return ""
}

func normalizeSemver(v string) string {
	if v == "" {
		return ""
	}
	if v[0] != 'v' {
		return "v" + v
	}
	return v
}

// Close closes the connection to the daemon.
func (c *Client) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// SetTimeout sets the per-request deadline.
func (c *Client) SetTimeout(timeout time.Duration) { c.timeout = timeout }

// Execute sends a request and waits for the matching response.
func (c *Client) Execute(operation string, args interface{}) (*Response, error) {
	argsJSON, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("marshal args: %w", err)
	}

	req := Request{Operation: operation, Args: argsJSON, RequestID: uuid.NewString()}
	reqJSON, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	if c.timeout > 0 {
		if err := c.conn.SetDeadline(time.Now().Add(c.timeout)); err != nil {
			return nil, fmt.Errorf("set deadline: %w", err)
		}
	}

	writer := bufio.NewWriter(c.conn)
	if _, err := writer.Write(reqJSON); err != nil {
		return nil, fmt.Errorf("write request: %w", err)
	}
	if err := writer.WriteByte('\n'); err != nil {
		return nil, fmt.Errorf("write newline: %w", err)
	}
	if err := writer.Flush(); err != nil {
		return nil, fmt.Errorf("flush: %w", err)
	}

	reader := bufio.NewReader(c.conn)
	respLine, err := reader.ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var resp Response
	if err := json.Unmarshal(respLine, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if !resp.Success {
		return &resp, fmt.Errorf("operation failed: %s", resp.Error)
	}
	return &resp, nil
}

// Health checks daemon liveness.
func (c *Client) Health() (*HealthReply, error) {
	resp, err := c.Execute(OpHealth, nil)
	if err != nil {
		return nil, err
	}
	var health HealthReply
	if err := json.Unmarshal(resp.Data, &health); err != nil {
		return nil, fmt.Errorf("unmarshal health reply: %w", err)
	}
	return &health, nil
}

// Status retrieves daemon identity metadata.
func (c *Client) Status() (*StatusReply, error) {
	resp, err := c.Execute(OpStatus, nil)
	if err != nil {
		return nil, err
	}
	var status StatusReply
	if err := json.Unmarshal(resp.Data, &status); err != nil {
		return nil, fmt.Errorf("unmarshal status reply: %w", err)
	}
	return &status, nil
}

// Shutdown asks the daemon to stop gracefully.
func (c *Client) Shutdown() error {
	_, err := c.Execute(OpShutdown, nil)
	return err
}

// CreateTable submits a CREATE TABLE plan.
func (c *Client) CreateTable(args *CreateTableArgs) (*Response, error) {
	return c.Execute(OpCreateTable, args)
}

// CreateSource submits a CREATE SOURCE plan.
func (c *Client) CreateSource(args *CreateSourceArgs) (*Response, error) {
	return c.Execute(OpCreateSource, args)
}

// CreateView submits a CREATE VIEW/MATERIALIZED VIEW plan.
func (c *Client) CreateView(args *CreateViewArgs) (*Response, error) {
	return c.Execute(OpCreateView, args)
}

// CreateIndex submits a CREATE INDEX plan.
func (c *Client) CreateIndex(args *CreateIndexArgs) (*Response, error) {
	return c.Execute(OpCreateIndex, args)
}

// CreateSink submits a CREATE SINK plan.
func (c *Client) CreateSink(args *CreateSinkArgs) (*Response, error) {
	return c.Execute(OpCreateSink, args)
}

// Drop submits a DROP plan.
func (c *Client) Drop(args *DropArgs) (*Response, error) {
	return c.Execute(OpDrop, args)
}

// Peek issues a point-in-time read and waits for its result.
func (c *Client) Peek(args *PeekArgs) (*PeekReply, error) {
	resp, err := c.Execute(OpPeek, args)
	if err != nil {
		return nil, err
	}
	var reply PeekReply
	if err := json.Unmarshal(resp.Data, &reply); err != nil {
		return nil, fmt.Errorf("unmarshal peek reply: %w", err)
	}
	return &reply, nil
}

// Cancel requests cancellation of an in-flight peek for a connection.
func (c *Client) Cancel(args *CancelArgs) (*Response, error) {
	return c.Execute(OpCancel, args)
}

// Describe reports a catalog entry's static definition and live frontier
// state, for `coord explain`.
func (c *Client) Describe(args *DescribeArgs) (*DescribeReply, error) {
	resp, err := c.Execute(OpDescribe, args)
	if err != nil {
		return nil, err
	}
	var reply DescribeReply
	if err := json.Unmarshal(resp.Data, &reply); err != nil {
		return nil, fmt.Errorf("unmarshal describe reply: %w", err)
	}
	return &reply, nil
}
