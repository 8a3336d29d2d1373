// Package config implements the .reskit.yaml configuration file.
//
// The file lives in the root of the source tree. Every field is optional;
// a missing file yields the defaults.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/minios-linux/reskit/culture"
	"github.com/minios-linux/reskit/resource"
	"github.com/minios-linux/reskit/rules"
	"github.com/minios-linux/reskit/table"
	"github.com/minios-linux/reskit/tracker"
)

// ---------------------------------------------------------------------------
// YAML schema
// ---------------------------------------------------------------------------

// File is the top-level .reskit.yaml structure.
type File struct {
	// NeutralCulture is the language of the neutral files (default "en").
	NeutralCulture string `yaml:"neutral_culture,omitempty"`
	// SaveImmediately writes every edit as soon as it is committed.
	SaveImmediately bool `yaml:"save_immediately,omitempty"`
	// DuplicateKeys is the duplicate key policy: reject, rename or overwrite.
	DuplicateKeys string `yaml:"duplicate_keys,omitempty"`
	// RemoveEmptyEntries drops culture entries without content on save.
	RemoveEmptyEntries bool `yaml:"remove_empty_entries,omitempty"`
	// ExportMode is the spreadsheet layout: single or per-entity.
	ExportMode string `yaml:"export_mode,omitempty"`
	// Rules lists the enabled consistency rules (default: all).
	Rules []string `yaml:"rules,omitempty"`
	// Extensions lists the resource file extensions to discover.
	Extensions []string `yaml:"extensions,omitempty"`
	// Exclude is a regular expression over slash-separated paths relative
	// to the root; matching resource files are skipped.
	Exclude string `yaml:"exclude,omitempty"`
	// SourceDirs are the directories scanned for code references,
	// relative to the root (default ".").
	SourceDirs []string `yaml:"source_dirs,omitempty"`
	// References configures the code reference tracker.
	References References `yaml:"references,omitempty"`
	// Log configures structured logging.
	Log Log `yaml:"log,omitempty"`

	neutral   culture.Key
	duplicate resource.DuplicateKeyHandling
	mode      table.Mode
	exclude   *regexp.Regexp
}

// References configures code reference scans.
type References struct {
	Patterns []tracker.Pattern `yaml:"patterns,omitempty"`
	// Workers bounds concurrent file reads (default: number of CPUs).
	Workers int `yaml:"workers,omitempty"`
	// SourceExtensions restricts the scanned source files.
	SourceExtensions []string `yaml:"source_extensions,omitempty"`
}

// Log configures the slog handler.
type Log struct {
	// Level is debug, info, warn or error (default "warn").
	Level string `yaml:"level,omitempty"`
	// Format is text or json (default "text").
	Format string `yaml:"format,omitempty"`
}

// FileName is the config file name.
const FileName = ".reskit.yaml"

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Default returns the configuration used when no file exists.
func Default() *File {
	f := &File{}
	if err := f.resolve(); err != nil {
		panic(err) // defaults are always valid
	}
	return f
}

// Load loads and validates .reskit.yaml from rootDir. A missing file
// yields Default().
func Load(rootDir string) (*File, error) {
	path := filepath.Join(rootDir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return Parse(path, data)
}

// Parse parses and validates config data. path only names the file in
// errors.
func Parse(path string, data []byte) (*File, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := f.resolve(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &f, nil
}

func (f *File) resolve() error {
	// Defaults
	if f.NeutralCulture == "" {
		f.NeutralCulture = "en"
	}
	if f.DuplicateKeys == "" {
		f.DuplicateKeys = string(resource.DuplicateKeyReject)
	}
	if len(f.SourceDirs) == 0 {
		f.SourceDirs = []string{"."}
	}
	if f.Log.Level == "" {
		f.Log.Level = "warn"
	}
	if f.Log.Format == "" {
		f.Log.Format = "text"
	}

	// Validate
	var err error
	if f.neutral, err = culture.Parse(f.NeutralCulture); err != nil {
		return fmt.Errorf("neutral_culture: %w", err)
	}
	if f.duplicate, err = resource.ParseDuplicateKeyHandling(f.DuplicateKeys); err != nil {
		return fmt.Errorf("duplicate_keys: %w", err)
	}
	if f.mode, err = table.ParseMode(f.ExportMode); err != nil {
		return fmt.Errorf("export_mode: %w", err)
	}
	if f.Exclude != "" {
		if f.exclude, err = regexp.Compile(f.Exclude); err != nil {
			return fmt.Errorf("exclude: %w", err)
		}
	}
	if _, err := rules.NewEngine(rules.DefaultRegistry(), f.Rules); err != nil {
		return fmt.Errorf("rules: %w", err)
	}
	if err := f.TrackerConfig().Validate(); err != nil {
		return fmt.Errorf("references: %w", err)
	}
	switch f.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log level %q is unknown (valid: debug, info, warn, error)", f.Log.Level)
	}
	switch f.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log format %q is unknown (valid: text, json)", f.Log.Format)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Resolved values
// ---------------------------------------------------------------------------

// Neutral returns the parsed neutral culture.
func (f *File) Neutral() culture.Key { return f.neutral }

// Mode returns the parsed export mode.
func (f *File) Mode() table.Mode { return f.mode }

// DuplicatePolicy returns the parsed duplicate key policy.
func (f *File) DuplicatePolicy() resource.DuplicateKeyHandling { return f.duplicate }

// ExcludePattern returns the compiled exclusion filter, or nil.
func (f *File) ExcludePattern() *regexp.Regexp { return f.exclude }

// ManagerOptions returns the resource manager options for root.
func (f *File) ManagerOptions(root string) resource.Options {
	return resource.Options{
		NeutralCulture:     f.neutral,
		Root:               root,
		SaveImmediately:    f.SaveImmediately,
		DuplicateKeys:      f.duplicate,
		RemoveEmptyEntries: f.RemoveEmptyEntries,
	}
}

// TrackerConfig returns the code reference tracker configuration.
func (f *File) TrackerConfig() tracker.Config {
	return tracker.Config{Patterns: f.References.Patterns, Workers: f.References.Workers}
}

// SourcePaths returns the source directories resolved against root.
func (f *File) SourcePaths(root string) []string {
	paths := make([]string, len(f.SourceDirs))
	for i, d := range f.SourceDirs {
		if filepath.IsAbs(d) {
			paths[i] = d
		} else {
			paths[i] = filepath.Join(root, d)
		}
	}
	return paths
}
