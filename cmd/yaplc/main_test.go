package main

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/chazu/yapl/manifest"
)

func TestParseLines(t *testing.T) {
	tests := []struct {
		in      string
		want    []int
		wantErr bool
	}{
		{"3", []int{3}, false},
		{"3, 7,12", []int{3, 7, 12}, false},
		{"4,,5", []int{4, 5}, false},
		{"0", nil, true},
		{"x", nil, true},
	}

	for _, tt := range tests {
		got, err := parseLines(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseLines(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && !reflect.DeepEqual(got, tt.want) {
			t.Errorf("parseLines(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestMajorVersion(t *testing.T) {
	tests := []struct {
		in      int
		want    uint16
		wantErr bool
	}{
		{58, 58, false},
		{65535, 65535, false},
		{49, 0, true},
		{65536 + 58, 0, true},
	}

	for _, tt := range tests {
		got, err := majorVersion(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("majorVersion(%d) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("majorVersion(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestResolveProjectDir(t *testing.T) {
	dir := t.TempDir()
	content := `[project]
name = "demo"
program = "demo.yir"

[profile]
enabled = true
watch-all = true
`
	if err := os.WriteFile(filepath.Join(dir, manifest.FileName), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	path, s, err := resolve(dir, false)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if !strings.HasSuffix(path, "demo.yir") || !filepath.IsAbs(path) {
		t.Errorf("program path = %q", path)
	}
	if !s.Profile.WatchAll {
		t.Error("profile section not applied")
	}
	if s.OutputDir != filepath.Join(filepath.Dir(path), "classes") {
		t.Errorf("output dir = %q", s.OutputDir)
	}

	if _, s, _ = resolve(dir, true); s.Profile.Enabled() {
		t.Error("-no-profile kept the profile section")
	}
}

func TestResolveWithoutManifest(t *testing.T) {
	dir := t.TempDir()
	if _, _, err := resolve(dir, false); err == nil {
		t.Error("expected error for a directory without yapl.toml")
	}

	file := filepath.Join(dir, "p.yir")
	if err := os.WriteFile(file, nil, 0644); err != nil {
		t.Fatal(err)
	}
	path, s, err := resolve(file, false)
	if err != nil {
		t.Fatal(err)
	}
	if path != file || s.OutputDir != manifest.DefaultOutputDir {
		t.Errorf("resolve(%q) = %q, %+v", file, path, s)
	}
}
