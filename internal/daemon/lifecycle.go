package daemon

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// ErrAlreadyRunning is returned when another live process owns the PID file
var ErrAlreadyRunning = errors.New("service is already running")

// PIDFile records the process id of a running service under the data directory
type PIDFile struct {
	path string
}

// NewPIDFile returns the PID file for a named service, e.g. <dataDir>/serve.pid
func NewPIDFile(dataDir, name string) *PIDFile {
	return &PIDFile{path: filepath.Join(dataDir, name+".pid")}
}

// Path returns the file location
func (p *PIDFile) Path() string {
	return p.path
}

// Write stores the current process id. A stale file left by a dead process
// is overwritten.
func (p *PIDFile) Write() error {
	if err := os.MkdirAll(filepath.Dir(p.path), 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	if pid, err := p.PID(); err == nil && pid != os.Getpid() && processAlive(pid) {
		return fmt.Errorf("%w (pid %d, %s)", ErrAlreadyRunning, pid, p.path)
	}

	return os.WriteFile(p.path, []byte(strconv.Itoa(os.Getpid())), 0644)
}

// Remove deletes the file; a missing file is not an error
func (p *PIDFile) Remove() error {
	if err := os.Remove(p.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove PID file: %w", err)
	}
	return nil
}

// PID reads the recorded process id
func (p *PIDFile) PID() (int, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return 0, err
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID file: %w", err)
	}
	return pid, nil
}

// IsRunning reports whether the recorded process is alive
func (p *PIDFile) IsRunning() bool {
	pid, err := p.PID()
	if err != nil {
		return false
	}
	return processAlive(pid)
}

// Uptime is the time since the file was written
func (p *PIDFile) Uptime() (time.Duration, error) {
	info, err := os.Stat(p.path)
	if err != nil {
		return 0, err
	}
	return time.Since(info.ModTime()), nil
}

// Signal sends sig to the recorded process
func (p *PIDFile) Signal(sig os.Signal) error {
	pid, err := p.PID()
	if err != nil {
		return err
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("failed to find process: %w", err)
	}
	if err := process.Signal(sig); err != nil {
		return fmt.Errorf("failed to signal process %d: %w", pid, err)
	}
	return nil
}

func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// On Unix FindProcess always succeeds; signal 0 probes for existence
	return process.Signal(syscall.Signal(0)) == nil
}
