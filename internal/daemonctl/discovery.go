package daemonctl

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/coordinatordb/coord/internal/lockfile"
	"github.com/coordinatordb/coord/internal/rpc"
)

// DaemonInfo describes a discovered coordinator process.
type DaemonInfo struct {
	DataDir       string
	SocketPath    string
	PID           int
	Version       string
	UptimeSeconds float64
	Alive         bool
	Error         string
}

// DiscoverDaemons lists coordinators from the registry. Unlike the
// workspace-scanning discovery a multi-repo issue tracker needs, a
// coordinator owns exactly one data directory, so the registry is the only
// source of truth.
func DiscoverDaemons() ([]DaemonInfo, error) {
	registry, err := NewRegistry()
	if err != nil {
		return nil, fmt.Errorf("open registry: %w", err)
	}
	return registry.List()
}

// discoverDaemon probes socketPath and returns what it learns about the
// coordinator behind it, without failing the caller if none is there.
func discoverDaemon(socketPath string) DaemonInfo {
	info := DaemonInfo{SocketPath: socketPath}

	if _, err := os.Stat(socketPath); err != nil {
		dataDir := filepath.Dir(socketPath)
		running, _ := lockfile.TryDaemonLock(dataDir)
		if !running {
			info.Error = "daemon lock not held and socket missing"
			return info
		}
	}

	client, err := rpc.TryConnectWithTimeout(socketPath, 500*time.Millisecond)
	if err != nil {
		info.Error = fmt.Sprintf("connect: %v", err)
		return info
	}
	if client == nil {
		info.Error = "daemon not responding or unhealthy"
		return info
	}
	defer func() { _ = client.Close() }()

	status, err := client.Status()
	if err != nil {
		info.Error = fmt.Sprintf("status: %v", err)
		return info
	}

	info.Alive = true
	info.DataDir = status.DataDir
	info.PID = status.PID
	info.Version = status.Version
	info.UptimeSeconds = status.UptimeSeconds
	return info
}

// FindDaemonByDataDir finds the coordinator registered against dataDir.
func FindDaemonByDataDir(dataDir string) (*DaemonInfo, error) {
	socketPath := rpc.ShortSocketPath(dataDir)
	if _, err := os.Stat(socketPath); err == nil {
		info := discoverDaemon(socketPath)
		if info.Alive {
			return &info, nil
		}
	}

	daemons, err := DiscoverDaemons()
	if err != nil {
		return nil, err
	}
	for _, d := range daemons {
		if d.Alive && d.DataDir == dataDir {
			return &d, nil
		}
	}
	return nil, fmt.Errorf("no coordinator found for data dir: %s", dataDir)
}

// CleanupStaleSockets removes the socket file for daemons the caller has
// already determined are dead. Lock files are left in place.
func CleanupStaleSockets(daemons []DaemonInfo) (int, error) {
	cleaned := 0
	for _, d := range daemons {
		if d.Alive || d.SocketPath == "" {
			continue
		}
		if err := os.Remove(d.SocketPath); err != nil {
			if !os.IsNotExist(err) {
				return cleaned, fmt.Errorf("remove stale socket %s: %w", d.SocketPath, err)
			}
			continue
		}
		cleaned++
	}
	return cleaned, nil
}

// StopDaemon asks a coordinator to shut down gracefully over RPC, falling
// back to SIGTERM if the RPC attempt fails.
func StopDaemon(d DaemonInfo) error {
	if !d.Alive {
		return fmt.Errorf("daemon is not running")
	}

	client, err := rpc.TryConnectWithTimeout(d.SocketPath, 500*time.Millisecond)
	if err == nil && client != nil {
		defer func() { _ = client.Close() }()
		if err := client.Shutdown(); err == nil {
			time.Sleep(200 * time.Millisecond)
			return nil
		}
	}

	return killProcess(d.PID)
}

// KillFailure records one coordinator that could not be stopped.
type KillFailure struct {
	DataDir string `json:"data_dir"`
	PID     int    `json:"pid"`
	Error   string `json:"error"`
}

// KillAllResults summarizes a KillAllDaemons run.
type KillAllResults struct {
	Stopped  int           `json:"stopped"`
	Failed   int           `json:"failed"`
	Failures []KillFailure `json:"failures,omitempty"`
}

// KillAllDaemons stops every daemon in the list, escalating to a force kill
// when force is set and graceful shutdown fails.
func KillAllDaemons(daemons []DaemonInfo, force bool) KillAllResults {
	results := KillAllResults{Failures: []KillFailure{}}

	for _, d := range daemons {
		if !d.Alive {
			continue
		}
		if err := stopDaemonWithTimeout(d); err != nil {
			if force {
				if err := forceKillProcess(d.PID); err != nil {
					results.Failed++
					results.Failures = append(results.Failures, KillFailure{DataDir: d.DataDir, PID: d.PID, Error: err.Error()})
					continue
				}
			} else {
				results.Failed++
				results.Failures = append(results.Failures, KillFailure{DataDir: d.DataDir, PID: d.PID, Error: err.Error()})
				continue
			}
		}
		results.Stopped++
	}

	return results
}

// stopDaemonWithTimeout escalates RPC shutdown -> SIGTERM -> SIGKILL, waiting
// for the process to actually exit between steps.
func stopDaemonWithTimeout(d DaemonInfo) error {
	client, err := rpc.TryConnectWithTimeout(d.SocketPath, 2*time.Second)
	if err == nil && client != nil {
		defer func() { _ = client.Close() }()
		if err := client.Shutdown(); err == nil {
			time.Sleep(500 * time.Millisecond)
			if !isProcessAlive(d.PID) {
				return nil
			}
		}
	}

	if err := killProcess(d.PID); err != nil {
		return fmt.Errorf("kill process: %w", err)
	}
	for i := 0; i < 30; i++ {
		time.Sleep(100 * time.Millisecond)
		if !isProcessAlive(d.PID) {
			return nil
		}
	}

	if err := forceKillProcess(d.PID); err != nil {
		return fmt.Errorf("force kill: %w", err)
	}
	for i := 0; i < 10; i++ {
		time.Sleep(100 * time.Millisecond)
		if !isProcessAlive(d.PID) {
			return nil
		}
	}

	return fmt.Errorf("process %d did not die after force kill", d.PID)
}
