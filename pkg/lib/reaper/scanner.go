package reaper

import (
	"context"
	"errors"
	"fmt"

	psnet "github.com/shirou/gopsutil/v3/net"
	"github.com/shirou/gopsutil/v3/process"
)

const statusListen = "LISTEN"

type connectionLister func(ctx context.Context, kind string) ([]psnet.ConnectionStat, error)

type connScanner struct {
	list connectionLister
}

// NewScanner returns a Scanner over the system TCP socket table (v4 and v6).
func NewScanner() Scanner {
	return connScanner{list: psnet.ConnectionsWithContext}
}

func (s connScanner) ListeningPIDs(ctx context.Context, port int) ([]int, error) {
	conns, err := s.list(ctx, "tcp")
	if err != nil {
		return nil, fmt.Errorf("list tcp sockets: %w", err)
	}
	return listeningPIDs(conns, port), nil
}

// listeningPIDs keeps owners of listening sockets bound to port. Sockets whose owner
// is not visible to us report pid 0 and are skipped.
func listeningPIDs(conns []psnet.ConnectionStat, port int) []int {
	var pids []int
	for _, c := range conns {
		if c.Status != statusListen || int(c.Laddr.Port) != port || c.Pid <= 0 {
			continue
		}
		pids = append(pids, int(c.Pid))
	}
	return pids
}

// killPID sends the platform's hard kill. A process that is already gone is not an error.
func killPID(ctx context.Context, pid int) error {
	p, err := process.NewProcessWithContext(ctx, int32(pid))
	if errors.Is(err, process.ErrorProcessNotRunning) {
		return nil
	}
	if err != nil {
		return err
	}
	return p.KillWithContext(ctx)
}
