package compiler

import (
	"github.com/chazu/yapl/classfile"
	"github.com/chazu/yapl/codegen"
	"github.com/chazu/yapl/manifest"
)

// Settings control one compilation.
type Settings struct {
	// OutputDir receives the .class files.
	OutputDir string
	// Major is the class-file major version; 0 selects classfile.DefaultMajor.
	Major   uint16
	Profile codegen.ProfileOptions
}

// DefaultSettings writes version 58 classes into "classes" without
// instrumentation.
func DefaultSettings() Settings {
	return Settings{OutputDir: manifest.DefaultOutputDir, Major: classfile.DefaultMajor}
}

// SettingsFromManifest converts a project manifest. The profile section
// only applies when it is enabled.
func SettingsFromManifest(m *manifest.Manifest) Settings {
	s := Settings{
		OutputDir: m.OutputDir(),
		Major:     uint16(m.Output.MajorVersion),
	}
	if m.Profile.Enabled {
		s.Profile = codegen.ProfileOptions{
			Vardump:   m.Profile.Vardump,
			Watch:     m.Profile.Watch,
			WatchAll:  m.Profile.WatchAll,
			CallTrace: m.Profile.CallTrace,
		}
	}
	return s
}
