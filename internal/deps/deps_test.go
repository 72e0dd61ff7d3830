package deps

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writeStub(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	return path
}

func TestCheckBinaries(t *testing.T) {
	binDir := t.TempDir()
	ffmpeg := writeStub(t, binDir, "ffmpeg", `echo "ffmpeg version 7.1 Copyright (c)"; echo "built with gcc"`)
	silent := writeStub(t, binDir, "silent", "exit 3")

	results := CheckBinaries(context.Background(), []Requirement{
		{Name: "FFmpeg", Command: ffmpeg, VersionArg: "-version"},
		{Name: "Silent", Command: silent, VersionArg: "-version"},
		{Name: "Missing", Command: "clearly-not-present-binary"},
		{Name: "Blank", Command: "  ", Optional: true},
	})
	if len(results) != 4 {
		t.Fatalf("expected 4 results, got %d", len(results))
	}
	if !results[0].Available || results[0].Path != ffmpeg {
		t.Fatalf("expected ffmpeg available, got %#v", results[0])
	}
	if results[0].Version != "ffmpeg version 7.1 Copyright (c)" {
		t.Fatalf("unexpected version %q", results[0].Version)
	}
	if !results[1].Available || results[1].Version != "" {
		t.Fatalf("failing version probe should stay available without version, got %#v", results[1])
	}
	if results[2].Available || results[2].Detail == "" {
		t.Fatalf("expected missing binary to be unavailable with detail, got %#v", results[2])
	}
	if results[3].Detail != "command not configured" {
		t.Fatalf("unexpected detail for blank command: %q", results[3].Detail)
	}

	missing := MissingRequired(results)
	if len(missing) != 1 || missing[0] != "Missing" {
		t.Fatalf("expected only Missing to be reported, got %v", missing)
	}
}
