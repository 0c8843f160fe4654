//go:build cgo

package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetArgs(args)
	rootCmd.SetOut(&out)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetOut(nil)
	})
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestJobsPrune(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", dir)
	t.Setenv("LONGDOC_DB_PATH", filepath.Join(dir, "jobs.db"))

	out, err := runCLI(t, "jobs", "prune", "--older-than", "1h")
	if err != nil {
		t.Fatalf("jobs prune: %v", err)
	}
	if out != "Removed 0 jobs\n" {
		t.Errorf("output = %q, want %q", out, "Removed 0 jobs\n")
	}
}

func TestJobsPruneRejectsNonPositiveAge(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", dir)
	t.Setenv("LONGDOC_DB_PATH", filepath.Join(dir, "jobs.db"))

	_, err := runCLI(t, "jobs", "prune", "--older-than", "0s")
	if err == nil || !strings.Contains(err.Error(), "--older-than must be positive") {
		t.Errorf("err = %v, want --older-than validation error", err)
	}
}
