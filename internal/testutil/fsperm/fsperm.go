// Package fsperm asserts the permissions of persisted client state in tests.
package fsperm

import (
	"io/fs"
	"os"
	"runtime"
	"testing"
)

// AssertPrivateDirPerm fails t unless dir is a directory only its owner can enter.
func AssertPrivateDirPerm(t testing.TB, dir string) {
	t.Helper()
	assertPerm(t, dir, true, 0o700)
}

// AssertPrivateFilePerm fails t unless path is a file only its owner can read.
func AssertPrivateFilePerm(t testing.TB, path string) {
	t.Helper()
	assertPerm(t, path, false, 0o600)
}

func assertPerm(t testing.TB, path string, wantDir bool, want fs.FileMode) {
	t.Helper()
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat %s: %v", path, err)
	}
	if info.IsDir() != wantDir {
		t.Fatalf("%s: dir=%v, want dir=%v", path, info.IsDir(), wantDir)
	}
	// Windows reports synthetic modes.
	if runtime.GOOS == "windows" {
		return
	}
	if perm := info.Mode().Perm(); perm != want {
		t.Fatalf("%s: perm %04o, want %04o", path, perm, want)
	}
}
