package runner

import (
	"os"
	"syscall"
)

// SysProcAttr carries the platform process attributes plus, on Linux as root, the
// open cgroup directory the child is placed into. File must be closed after Start.
type SysProcAttr struct {
	File *os.File
	Raw  *syscall.SysProcAttr
}
