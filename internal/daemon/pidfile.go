package daemon

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

const pidFilename = "genrelay.pid"

// ErrAlreadyRunning is returned by AcquirePID when a live daemon owns the
// PID file.
var ErrAlreadyRunning = errors.New("genrelay is already running")

// AcquirePID claims dataDir for this process. A PID file left by a dead
// process is replaced; one held by a live process is an error.
func AcquirePID(dataDir string) error {
	if pid, err := ReadPID(dataDir); err == nil {
		if pid != os.Getpid() && isProcessAlive(pid) {
			return fmt.Errorf("%w (PID %d, file %s)", ErrAlreadyRunning, pid, pidPath(dataDir))
		}
	}
	return WritePID(dataDir)
}

// WritePID atomically writes the current process ID to dataDir/genrelay.pid.
func WritePID(dataDir string) error {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("creating data directory for PID file: %w", err)
	}

	path := pidPath(dataDir)
	tmp, err := os.CreateTemp(dataDir, pidFilename+".*")
	if err != nil {
		return fmt.Errorf("writing PID file %s: %w", path, err)
	}
	_, werr := tmp.WriteString(strconv.Itoa(os.Getpid()))
	cerr := tmp.Close()
	if err := errors.Join(werr, cerr); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("writing PID file %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("writing PID file %s: %w", path, err)
	}
	return nil
}

// ReadPID reads the PID from dataDir/genrelay.pid.
func ReadPID(dataDir string) (int, error) {
	path := pidPath(dataDir)
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("reading PID file %s: %w", path, err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("parsing PID from %s: invalid content %q", path, strings.TrimSpace(string(data)))
	}
	return pid, nil
}

// RemovePID removes the PID file. A missing file is not an error.
func RemovePID(dataDir string) error {
	path := pidPath(dataDir)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing PID file %s: %w", path, err)
	}
	return nil
}

// IsRunning reports whether the PID file names a live process.
func IsRunning(dataDir string) bool {
	pid, err := ReadPID(dataDir)
	if err != nil {
		return false
	}
	return isProcessAlive(pid)
}

// isProcessAlive sends signal 0, which checks existence without
// delivering anything.
func isProcessAlive(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}

func pidPath(dataDir string) string {
	return filepath.Join(dataDir, pidFilename)
}
