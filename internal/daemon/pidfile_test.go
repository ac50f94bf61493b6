package daemon

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"
)

func TestWritePID_ReadPID(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "dir")

	if err := WritePID(dir); err != nil {
		t.Fatalf("WritePID: %v", err)
	}
	pid, err := ReadPID(dir)
	if err != nil {
		t.Fatalf("ReadPID: %v", err)
	}
	if pid != os.Getpid() {
		t.Errorf("ReadPID got %d, want %d", pid, os.Getpid())
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("expected only the PID file in %s, found %d entries", dir, len(entries))
	}
}

func TestReadPID_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		write   bool
	}{
		{"missing file", "", false},
		{"not a number", "not-a-number", true},
		{"zero", "0", true},
		{"negative", "-12", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			if tt.write {
				if err := os.WriteFile(filepath.Join(dir, pidFilename), []byte(tt.content), 0o644); err != nil {
					t.Fatalf("WriteFile: %v", err)
				}
			}
			if _, err := ReadPID(dir); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestRemovePID(t *testing.T) {
	dir := t.TempDir()
	if err := WritePID(dir); err != nil {
		t.Fatalf("WritePID: %v", err)
	}
	if err := RemovePID(dir); err != nil {
		t.Fatalf("RemovePID: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, pidFilename)); !os.IsNotExist(err) {
		t.Error("PID file still exists after RemovePID")
	}
	if err := RemovePID(dir); err != nil {
		t.Errorf("second RemovePID: %v", err)
	}
}

func TestIsRunning(t *testing.T) {
	dir := t.TempDir()
	if IsRunning(dir) {
		t.Error("IsRunning returned true with no PID file")
	}
	if err := WritePID(dir); err != nil {
		t.Fatalf("WritePID: %v", err)
	}
	if !IsRunning(dir) {
		t.Error("IsRunning returned false for our own PID")
	}
}

func TestAcquirePID(t *testing.T) {
	t.Run("stale file is replaced", func(t *testing.T) {
		dir := t.TempDir()
		// PID 99999 is almost certainly not running.
		if err := os.WriteFile(filepath.Join(dir, pidFilename), []byte(strconv.Itoa(99999)), 0o644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
		if isProcessAlive(99999) {
			t.Skip("PID 99999 is alive on this host")
		}
		if err := AcquirePID(dir); err != nil {
			t.Fatalf("AcquirePID: %v", err)
		}
		if pid, _ := ReadPID(dir); pid != os.Getpid() {
			t.Errorf("PID file holds %d, want %d", pid, os.Getpid())
		}
	})

	t.Run("live owner blocks", func(t *testing.T) {
		dir := t.TempDir()
		// The parent process (the test runner) is alive and is not us.
		if err := os.WriteFile(filepath.Join(dir, pidFilename), []byte(strconv.Itoa(os.Getppid())), 0o644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
		err := AcquirePID(dir)
		if !errors.Is(err, ErrAlreadyRunning) {
			t.Fatalf("AcquirePID: got %v, want ErrAlreadyRunning", err)
		}
	})
}
