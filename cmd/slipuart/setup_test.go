package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/bigbag/slipuart/internal/transfer"
)

func TestOutputFile_AnnouncedName(t *testing.T) {
	t.Chdir(t.TempDir())

	out := &outputFile{}
	if err := out.announce(transfer.FileInfo{Name: "../../etc/fw.bin", Size: 3, Mode: 0o600}); err != nil {
		t.Fatalf("announce: %v", err)
	}
	if out.path != "fw.bin" {
		t.Errorf("path = %q, want fw.bin", out.path)
	}

	if _, err := out.Write([]byte("abc")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := out.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile("fw.bin")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "abc" {
		t.Errorf("data = %q", data)
	}
}

func TestOutputFile_ExplicitPathWins(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.bin")

	out := &outputFile{path: path}
	if err := out.announce(transfer.FileInfo{Name: "other.bin"}); err != nil {
		t.Fatalf("announce: %v", err)
	}
	if out.path != path {
		t.Errorf("path = %q, want %q", out.path, path)
	}
}

func TestOutputFile_EmptyTransferCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.bin")

	out := &outputFile{path: path}
	if err := out.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if fi, err := os.Stat(path); err != nil || fi.Size() != 0 {
		t.Errorf("Stat = %v, %v", fi, err)
	}
}

func TestOutputFile_NoName(t *testing.T) {
	out := &outputFile{}
	if _, err := out.Write([]byte{1}); err == nil {
		t.Error("expected error without a file name")
	}
	if err := out.announce(transfer.FileInfo{Name: "/"}); err == nil {
		t.Error("expected error for root name")
	}
}
