//go:build windows

package runner

import (
	"os/exec"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/SanjoDeundiak/ocr-supervisor/pkg/lib"
)

// ShellCommand is the command that runs a launch script.
func ShellCommand(script string) lib.Command {
	return lib.Command{Command: "cmd.exe", Args: []string{"/c", filepath.Base(script)}}
}

func GetSysProcAttr(id string, memoryHigh int64) (*SysProcAttr, error) {
	return &SysProcAttr{Raw: fallbackSysProcAttr()}, nil
}

func fallbackSysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP}
}

func KillCgroup(id string) (bool, error) {
	return false, nil
}

func CleanupCgroup(id string) error {
	return nil
}

// interrupt asks the tree to close without /F, the console equivalent of closing the main window.
func (p *Process) interrupt() error {
	return exec.Command("taskkill", "/T", "/PID", strconv.Itoa(p.pid)).Run()
}

func (p *Process) forceKill() error {
	if err := exec.Command("taskkill", "/F", "/T", "/PID", strconv.Itoa(p.pid)).Run(); err != nil {
		return p.cmd.Process.Kill()
	}
	return nil
}
