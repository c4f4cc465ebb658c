// internal/ports/scout.go
package ports

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/kishoresukumaran/reactflow-containerlab/internal/remote"
)

const (
	MinPort = 1024
	MaxPort = 65535

	DefaultScanTimeout = 10 * time.Second
)

// listBoundPorts prints the local port of every TCP socket, one per line.
// The port is the text after the last ':' so IPv6 addresses work too.
const listBoundPorts = `ss -Htan | awk '{print $4}' | awk -F: '{print $NF}'`

// ScanError means the bound ports of a host could not be determined.
type ScanError struct {
	Host string
	Err  error
}

func (e *ScanError) Error() string {
	return fmt.Sprintf("port scan on %s failed: %v", e.Host, e.Err)
}

func (e *ScanError) Unwrap() error { return e.Err }

// Scout finds unbound TCP ports on lab hosts.
type Scout struct {
	dialer  remote.Dialer
	timeout time.Duration
}

// NewScout returns a Scout whose scans, connect included, are bounded by timeout.
func NewScout(dialer remote.Dialer, timeout time.Duration) *Scout {
	if timeout <= 0 {
		timeout = DefaultScanTimeout
	}
	return &Scout{dialer: dialer, timeout: timeout}
}

// FindFreePorts returns every port in [MinPort, MaxPort] with no TCP socket
// bound on the target, ascending. The full range is scanned on every call.
func (s *Scout) FindFreePorts(ctx context.Context, target remote.Target) ([]int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if target.Timeout <= 0 || target.Timeout > s.timeout {
		target.Timeout = s.timeout
	}

	sess, err := s.dialer.Dial(ctx, target)
	if err != nil {
		return nil, &ScanError{Host: target.Host, Err: err}
	}
	defer sess.Close()

	start := time.Now()
	res, err := sess.Run(ctx, remote.Command{Args: []string{"sh", "-c", listBoundPorts}}, nil)
	if err != nil {
		return nil, &ScanError{Host: target.Host, Err: err}
	}
	if !res.Success() {
		return nil, &ScanError{
			Host: target.Host,
			Err:  fmt.Errorf("exit status %d: %s", res.ExitCode, strings.TrimSpace(res.Stderr)),
		}
	}

	bound := ParseBoundPorts(res.Stdout)
	free := FreeInRange(bound, MinPort, MaxPort)
	log.Debug("Port scan complete",
		"host", target.Host,
		"bound", len(bound),
		"free", len(free),
		"duration", time.Since(start),
	)
	return free, nil
}

// ParseBoundPorts reads whitespace-separated port numbers in output order.
// Tokens that are not a valid port number are dropped.
func ParseBoundPorts(output string) []int {
	fields := strings.Fields(output)
	ports := make([]int, 0, len(fields))
	for _, f := range fields {
		p, err := strconv.Atoi(f)
		if err != nil || p < 0 || p > MaxPort {
			continue
		}
		ports = append(ports, p)
	}
	return ports
}

// FreeInRange returns [lo, hi] minus bound, ascending.
func FreeInRange(bound []int, lo, hi int) []int {
	if hi < lo {
		return []int{}
	}
	taken := make([]bool, hi-lo+1)
	for _, p := range bound {
		if p >= lo && p <= hi {
			taken[p-lo] = true
		}
	}
	free := make([]int, 0, len(taken))
	for i, t := range taken {
		if !t {
			free = append(free, lo+i)
		}
	}
	return free
}
