// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

// Script writes body to an executable /bin/sh script in a fresh test
// temp directory and returns its path. The test is skipped when
// /bin/sh is unavailable.
//
//	path := testutil.Script(t, `echo "Hello world"`)
func Script(t *testing.T, body string) string {
	t.Helper()
	if _, err := exec.LookPath("/bin/sh"); err != nil {
		t.Skipf("/bin/sh not available: %v", err)
	}
	path := filepath.Join(t.TempDir(), "child.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("writing script %s: %v", path, err)
	}
	return path
}
