package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"syscall"
)

// processLock is an advisory flock on a file next to the socket. The
// lock holds for the life of the process; a second daemon fails fast
// instead of fighting over the socket.
type processLock struct {
	f    *os.File
	path string
}

// acquireLock takes the exclusive lock and records our pid in the file
// for supervisors that need to escalate.
func acquireLock(path string) (*processLock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("daemon: lock dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("daemon: open lock file: %w", err)
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		pid, _ := os.ReadFile(path)
		f.Close()
		return nil, fmt.Errorf("%w (pid %s)", ErrAlreadyRunning, string(pid))
	}
	if err := f.Truncate(0); err == nil {
		f.WriteAt([]byte(strconv.Itoa(os.Getpid())), 0)
		f.Sync()
	}
	return &processLock{f: f, path: path}, nil
}

func (l *processLock) release() {
	syscall.Flock(int(l.f.Fd()), syscall.LOCK_UN)
	l.f.Close()
	os.Remove(l.path)
}

// ReadLockedPID returns the pid recorded in the lock file for the
// socket, or 0 when no daemon has written one.
func ReadLockedPID(socketPath string) int {
	b, err := os.ReadFile(lockPath(socketPath))
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(string(b))
	if err != nil {
		return 0
	}
	return pid
}
