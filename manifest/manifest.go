// Package manifest handles yapl.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// FileName is the manifest file looked up in project directories.
const FileName = "yapl.toml"

// Defaults applied by Load.
const (
	DefaultOutputDir    = "classes"
	DefaultMajorVersion = 58
)

// Manifest represents a yapl.toml project configuration.
type Manifest struct {
	Project Project       `toml:"project"`
	Output  OutputConfig  `toml:"output"`
	Profile ProfileConfig `toml:"profile"`

	// Dir is the directory containing the yapl.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name string `toml:"name"`
	// Program is the analyzed program (.yir) to compile, relative to Dir.
	Program string `toml:"program"`
}

// OutputConfig configures class file output.
type OutputConfig struct {
	Dir          string `toml:"dir"`
	MajorVersion int    `toml:"major-version"`
}

// ProfileConfig configures run-time instrumentation.
type ProfileConfig struct {
	Enabled   bool     `toml:"enabled"`
	Vardump   []int    `toml:"vardump"`
	Watch     []int    `toml:"watch"`
	WatchAll  bool     `toml:"watch-all"`
	CallTrace []string `toml:"calltrace"`
}

// Load parses a yapl.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	// Defaults
	if m.Output.Dir == "" {
		m.Output.Dir = DefaultOutputDir
	}
	if m.Output.MajorVersion == 0 {
		m.Output.MajorVersion = DefaultMajorVersion
	}

	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &m, nil
}

// FindAndLoad walks up from startDir to find a yapl.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// Validate checks values the toml decoder cannot.
func (m *Manifest) Validate() error {
	if err := CheckMajorVersion(m.Output.MajorVersion); err != nil {
		return fmt.Errorf("output.major-version: %w", err)
	}
	for _, line := range append(append([]int(nil), m.Profile.Vardump...), m.Profile.Watch...) {
		if line <= 0 {
			return fmt.Errorf("profile: line %d is not a source line", line)
		}
	}
	return nil
}

// CheckMajorVersion rejects class file versions without StackMapTable
// support and values that do not fit the u2 header field.
func CheckMajorVersion(v int) error {
	switch {
	case v < 50:
		return fmt.Errorf("%d: StackMapTable needs class files of version 50 or later", v)
	case v > 0xFFFF:
		return fmt.Errorf("%d: exceeds the largest class file version %d", v, 0xFFFF)
	}
	return nil
}

// ProgramPath returns the absolute path of the program to compile, or ""
// when none is configured.
func (m *Manifest) ProgramPath() string {
	if m.Project.Program == "" {
		return ""
	}
	return m.resolve(m.Project.Program)
}

// OutputDir returns the absolute output directory.
func (m *Manifest) OutputDir() string {
	return m.resolve(m.Output.Dir)
}

func (m *Manifest) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(m.Dir, p)
}
