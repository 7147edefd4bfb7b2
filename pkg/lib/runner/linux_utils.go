//go:build linux

package runner

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
)

// cgroupRoot groups every backend this supervisor spawns. A backend placed in its own
// cgroup can be reclaimed in one write to cgroup.kill, grandchildren included.
const cgroupRoot = "/sys/fs/cgroup/ocr-supervisor"

var (
	cgroupInitOnce sync.Once
	cgroupInitErr  error
)

// initCgroups prepares the cgroup root once. As non-root it is a no-op.
func initCgroups() error {
	cgroupInitOnce.Do(func() {
		cgroupInitErr = initCgroupsImpl()
	})
	return cgroupInitErr
}

func initCgroupsImpl() error {
	if os.Geteuid() != 0 {
		return nil
	}

	if err := os.MkdirAll(cgroupRoot, 0755); err != nil {
		return err
	}

	available, err := readControllerSet(filepath.Join(cgroupRoot, "cgroup.controllers"))
	if err != nil {
		return err
	}
	enabled, err := readControllerSet(filepath.Join(cgroupRoot, "cgroup.subtree_control"))
	if err != nil {
		return err
	}
	if available["memory"] && !enabled["memory"] {
		return writeString(filepath.Join(cgroupRoot, "cgroup.subtree_control"), "+memory")
	}
	return nil
}

func readControllerSet(path string) (map[string]bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool)
	for _, f := range strings.Fields(string(data)) {
		// subtree_control may present names without "+" prefix when read
		set[strings.TrimPrefix(f, "+")] = true
	}
	return set, nil
}

// GetSysProcAttr puts the child in its own process group and, as root, in its own cgroup.
func GetSysProcAttr(id string, memoryHigh int64) (*SysProcAttr, error) {
	if os.Geteuid() != 0 {
		return &SysProcAttr{
			Raw: &syscall.SysProcAttr{Setpgid: true},
		}, nil
	}

	if err := initCgroups(); err != nil {
		// cgroup v2 may be absent (containers, v1 hosts); process groups still work
		return &SysProcAttr{
			Raw: &syscall.SysProcAttr{Setpgid: true},
		}, nil
	}

	cgPath, err := setupCgroupFor(id, memoryHigh)
	if err != nil {
		return nil, err
	}

	cGroupFile, err := os.Open(cgPath)
	if err != nil {
		return nil, err
	}

	return &SysProcAttr{
		File: cGroupFile,
		Raw: &syscall.SysProcAttr{
			Setpgid:     true,
			UseCgroupFD: true,
			CgroupFD:    int(cGroupFile.Fd()),
		},
	}, nil
}

func KillCgroup(id string) (bool, error) {
	err := writeString(filepath.Join(cgroupRoot, id, "cgroup.kill"), "1")
	return err == nil, err
}

func CleanupCgroup(id string) error {
	return os.Remove(filepath.Join(cgroupRoot, id))
}

func setupCgroupFor(id string, memoryHigh int64) (string, error) {
	dir := filepath.Join(cgroupRoot, id)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}

	if memoryHigh > 0 && controllerEnabled(cgroupRoot, "memory") {
		if err := writeString(filepath.Join(dir, "memory.high"), fmt.Sprint(memoryHigh)); err != nil {
			return "", err
		}
	}

	return dir, nil
}

func controllerEnabled(cgPath, controller string) bool {
	enabled, err := readControllerSet(filepath.Join(cgPath, "cgroup.subtree_control"))
	if err != nil {
		return false
	}
	return enabled[controller]
}

func writeString(path, val string) error {
	return os.WriteFile(path, []byte(val), 0644)
}
