// Package configuration assembles the CLI surface (spec.md §6) into a
// single exported struct, the way configuration.Configuration is built in
// the reference registry: one struct, one parse entry point, defaults
// applied centrally instead of scattered across the callers that need
// them. Unlike the reference registry, there is no YAML configuration
// file in this system's on-disk layout (§6 defines only flags); yaml.v2 is
// used only to give Config a debug dump at startup (-v), not a load path.
package configuration

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v2"
)

// Verbosity is the logging level requested on the command line.
type Verbosity int

const (
	// Quiet is the default: warnings and errors only.
	Quiet Verbosity = iota
	// Info is requested by -v.
	Info
	// Debug is requested by -vv.
	Debug
)

// Config is the resolved set of options a tagfs mount runs with, built
// entirely from flag.FlagSet; there is no config file to layer on top.
type Config struct {
	// MountPoint is the path the filesystem is mounted at (-m).
	MountPoint string `yaml:"mount_point"`

	// DataStore is the root directory holding store/ and .tags.sqlite, the
	// single Metadata Store database (-d).
	DataStore string `yaml:"data_store"`

	// MountOptions is the comma-separated filesystem option list passed
	// through to the mount layer unchanged (-o).
	MountOptions []string `yaml:"mount_options,omitempty"`

	// Verbosity selects info (-v) or debug (-vv) logging. The zero value
	// logs warnings and errors only.
	Verbosity Verbosity `yaml:"verbosity"`

	// QuietFuse suppresses fusepy-style low-level upcall error spam at low
	// verbosity (-s).
	QuietFuse bool `yaml:"quiet_fuse"`

	// AnywhereDelete allows flat-delete tag-stripping at any directory
	// depth rather than only one level below the root (-a /
	// --anywhere-delete).
	AnywhereDelete bool `yaml:"anywhere_delete"`

	// FlatDelete makes unlink inside a tag directory strip the last tag
	// instead of deleting the file outright. It has no dedicated flag in
	// §6's table; it defaults on, matching the supplemented-features
	// reading of the original behavior. Parse registers no flag for it,
	// so a Config built by Parse always has it on.
	FlatDelete bool `yaml:"flat_delete"`

	// HiddenLimit caps the number of hidden (dot-prefixed) entries shown
	// at the mount root; -1 disables the cap (-l N).
	HiddenLimit int `yaml:"hidden_limit"`

	// ScrubOnStart runs a Scrub pass before mounting and logs its report
	// (-scrub). Mismatches in the report do not stop the mount; an error
	// from the scrub itself exits before mounting.
	ScrubOnStart bool `yaml:"scrub_on_start"`
}

// defaults mirrors the zero-config behavior described in §6: unlimited
// hidden entries, flat-delete semantics on so unlink inside a tag
// directory is reversible by default, root-only unless told otherwise.
func defaults() Config {
	return Config{
		HiddenLimit: -1,
		FlatDelete:  true,
	}
}

// Parse builds a Config from args (typically os.Args[1:]), applying
// defaults() first so every field is populated even when a flag is
// omitted. name is used as the flag set's name for its usage banner.
func Parse(name string, args []string) (Config, error) {
	cfg := defaults()

	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	var optionsCSV string
	var verbose, veryVerbose bool

	fs.StringVar(&cfg.MountPoint, "m", "", "mount point")
	fs.StringVar(&cfg.DataStore, "d", "", "data store root")
	fs.StringVar(&optionsCSV, "o", "", "comma-separated filesystem options passed to the mount layer")
	fs.BoolVar(&verbose, "v", false, "info-level logging")
	fs.BoolVar(&veryVerbose, "vv", false, "debug-level logging")
	fs.BoolVar(&cfg.QuietFuse, "s", false, "suppress low-level upcall error spam at low verbosity")
	fs.BoolVar(&cfg.AnywhereDelete, "a", false, "allow flat-delete tag stripping at any directory depth")
	fs.BoolVar(&cfg.AnywhereDelete, "anywhere-delete", false, "alias of -a")
	fs.IntVar(&cfg.HiddenLimit, "l", cfg.HiddenLimit, "cap on hidden entries shown at mount root; -1 is unlimited")
	fs.BoolVar(&cfg.ScrubOnStart, "scrub", false, "run a scrub reconciliation pass before mounting and log its report")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	if cfg.MountPoint == "" {
		return Config{}, fmt.Errorf("configuration: -m mount point is required")
	}
	if cfg.DataStore == "" {
		return Config{}, fmt.Errorf("configuration: -d data store root is required")
	}
	if optionsCSV != "" {
		cfg.MountOptions = strings.Split(optionsCSV, ",")
	}

	switch {
	case veryVerbose:
		cfg.Verbosity = Debug
	case verbose:
		cfg.Verbosity = Info
	default:
		cfg.Verbosity = Quiet
	}

	return cfg, nil
}

// Dump renders cfg as YAML, for the startup debug log line (-v/-vv) that
// mirrors the reference registry's practice of logging its resolved
// configuration before serving.
func (c Config) Dump() string {
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Sprintf("<configuration: %v>", err)
	}
	return string(b)
}

// StoreDir returns the Blob Store directory (§6's "store/" entry) beneath
// DataStore.
func (c Config) StoreDir() string {
	return c.DataStore + string(os.PathSeparator) + "store"
}

// TagsDSN returns the modernc.org/sqlite data source name for the
// Metadata Store (§6's ".tags.sqlite" entry).
func (c Config) TagsDSN() string {
	return c.DataStore + string(os.PathSeparator) + ".tags.sqlite"
}
