// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"os"
	"path/filepath"
	"testing"
)

// =============================================================================
// ATOMIC WRITE TESTS
// =============================================================================

func TestAtomicWriteFile_CreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "subdir", "deep", "test.txt")

	if err := AtomicWriteFile(path, []byte("test data"), 0o644); err != nil {
		t.Fatalf("AtomicWriteFile: %v", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(content) != "test data" {
		t.Errorf("content = %q, want %q", content, "test data")
	}
}

func TestAtomicWriteFile_Overwrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.txt")

	for _, data := range []string{"initial", "updated"} {
		if err := AtomicWriteFile(path, []byte(data), 0o644); err != nil {
			t.Fatalf("AtomicWriteFile(%q): %v", data, err)
		}
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(content) != "updated" {
		t.Errorf("content = %q, want %q", content, "updated")
	}

	// No temp files left behind.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("directory has %d entries, want 1", len(entries))
	}
}

func TestAtomicWriteFile_EmptyData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.txt")
	if err := AtomicWriteFile(path, nil, 0o600); err != nil {
		t.Fatalf("AtomicWriteFile: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Size() != 0 {
		t.Errorf("size = %d, want 0", info.Size())
	}
}

// =============================================================================
// DISPLAY WIDTH TESTS
// =============================================================================

func TestTruncateWidth(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		width int
		want  string
	}{
		{"fits", "main.go", 10, "main.go"},
		{"exact", "main.go", 7, "main.go"},
		{"ascii cut", "internal/filetree/cache.go", 12, "internal/..."},
		{"wide cut", "你好世界", 6, "你..."},
		{"tiny width", "abcdef", 2, "ab"},
		{"zero", "abc", 0, ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := TruncateWidth(tc.in, tc.width)
			if got != tc.want {
				t.Errorf("TruncateWidth(%q, %d) = %q, want %q", tc.in, tc.width, got, tc.want)
			}
			if w := StringWidth(got); w > tc.width {
				t.Errorf("width %d exceeds %d", w, tc.width)
			}
		})
	}
}

func TestStringWidth(t *testing.T) {
	tests := map[string]int{"hello": 5, "你好": 4, "": 0}
	for in, want := range tests {
		if got := StringWidth(in); got != want {
			t.Errorf("StringWidth(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestPadRight(t *testing.T) {
	if got := PadRight("ab", 5); got != "ab   " {
		t.Errorf("PadRight(ab, 5) = %q", got)
	}
	if got := PadRight("你", 3); got != "你 " {
		t.Errorf("PadRight(你, 3) = %q", got)
	}
	if got := StringWidth(PadRight("a very long name", 8)); got != 8 {
		t.Errorf("long name padded to width %d, want 8", got)
	}
}

func TestIndent(t *testing.T) {
	tests := map[int]string{0: "", -1: "", 2: "    "}
	for depth, want := range tests {
		if got := Indent(depth); got != want {
			t.Errorf("Indent(%d) = %q, want %q", depth, got, want)
		}
	}
}

func TestFormatSize(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1536, "1.5 KB"},
		{1024 * 1024, "1.0 MB"},
		{5 * 1024 * 1024 * 1024, "5.0 GB"},
	}
	for _, tc := range tests {
		if got := FormatSize(tc.in); got != tc.want {
			t.Errorf("FormatSize(%d) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
