//go:build !windows

package runner

import (
	"errors"
	"path/filepath"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/SanjoDeundiak/ocr-supervisor/pkg/lib"
)

// ShellCommand is the command that runs a launch script.
func ShellCommand(script string) lib.Command {
	return lib.Command{Command: "/bin/sh", Args: []string{filepath.Base(script)}}
}

func fallbackSysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}

// interrupt sends SIGTERM to the whole process group; the launcher shell and the
// server it started share it because of Setpgid.
func (p *Process) interrupt() error {
	return signalGroup(p.pid, unix.SIGTERM)
}

func (p *Process) forceKill() error {
	if p.cgroup {
		killed, err := KillCgroup(p.id)
		if killed {
			return nil
		}
		p.logger.Debug("cgroup kill failed, falling back to group kill", zap.Error(err))
	}
	return signalGroup(p.pid, unix.SIGKILL)
}

func signalGroup(pid int, sig unix.Signal) error {
	err := unix.Kill(-pid, sig)
	if errors.Is(err, unix.ESRCH) {
		// group leader gone; signal the pid directly in case it was re-parented
		err = unix.Kill(pid, sig)
		if errors.Is(err, unix.ESRCH) {
			return nil
		}
	}
	return err
}
