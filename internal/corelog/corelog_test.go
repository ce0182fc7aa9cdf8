package corelog

import (
	"os"
	"path/filepath"
	"testing"
)

func TestInitWritesToResourceRoot(t *testing.T) {
	dir := t.TempDir()
	closer, err := Init(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer closer()

	L().Info("test message", KeyComponent, "test")

	data, err := os.ReadFile(filepath.Join(dir, "svrcore.log"))
	if err != nil {
		t.Fatal(err)
	}
	if len(data) == 0 {
		t.Fatal("expected log file to contain data")
	}
}

func TestRotatingFileRotatesPastMaxBytes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "small.log")
	rf, err := newRotatingFile(path, 16)
	if err != nil {
		t.Fatal(err)
	}
	defer rf.Close()

	if _, err := rf.Write([]byte("0123456789")); err != nil {
		t.Fatal(err)
	}
	if _, err := rf.Write([]byte("0123456789")); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(path + ".1"); err != nil {
		t.Fatalf("expected rotated file %s.1 to exist: %v", path, err)
	}
}
