// Package config handles basil.toml project configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/chazu/basil/compiler"
	"github.com/chazu/basil/vm"
)

// FileName is the configuration file looked up by Load and FindAndLoad.
const FileName = "basil.toml"

// Config represents a basil.toml project configuration.
type Config struct {
	Project  Project        `toml:"project"`
	Source   Source         `toml:"source"`
	VM       VMConfig       `toml:"vm"`
	Compiler CompilerConfig `toml:"compiler"`
	Log      LogConfig      `toml:"log"`

	// Dir is the directory containing the basil.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

// Source lists the files compiled together, in order.
type Source struct {
	Files []string `toml:"files"`
}

// VMConfig sets VM resource limits. Zero keeps the VM default.
type VMConfig struct {
	InitialStack int `toml:"initial-stack"`
	MaxStack     int `toml:"max-stack"`
	MaxHeap      int `toml:"max-heap"`
	MaxCallDepth int `toml:"max-call-depth"`
}

// CompilerConfig sets compiler options.
type CompilerConfig struct {
	Strict    bool `toml:"strict"`
	DebugData bool `toml:"debug-data"`
}

// LogConfig configures commonlog.
type LogConfig struct {
	Verbosity int    `toml:"verbosity"`
	Path      string `toml:"path"`
}

// Default returns the configuration used when no basil.toml exists.
func Default() *Config {
	return &Config{Source: Source{Files: []string{"main.bas"}}}
}

// Load parses a basil.toml file from the given directory.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	c := Default()
	c.Source.Files = nil
	md, err := toml.Decode(string(data), c)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("%s: unknown key %s", path, undecoded[0])
	}

	c.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	if len(c.Source.Files) == 0 {
		c.Source.Files = []string{"main.bas"}
	}
	if err := c.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// FindAndLoad walks up from startDir to find a basil.toml file, then loads
// and returns it. Returns nil if no file is found.
func FindAndLoad(startDir string) (*Config, error) {
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
			return nil, nil
		}
		dir = parent
	}
}

func (c *Config) validate() error {
	limits := []struct {
		name  string
		value int
	}{
		{"vm.initial-stack", c.VM.InitialStack},
		{"vm.max-stack", c.VM.MaxStack},
		{"vm.max-heap", c.VM.MaxHeap},
		{"vm.max-call-depth", c.VM.MaxCallDepth},
	}
	for _, l := range limits {
		if l.value < 0 {
			return fmt.Errorf("%s must not be negative, got %d", l.name, l.value)
		}
	}
	if c.VM.InitialStack > 0 && c.VM.MaxStack > 0 && c.VM.InitialStack > c.VM.MaxStack {
		return fmt.Errorf("vm.initial-stack %d exceeds vm.max-stack %d", c.VM.InitialStack, c.VM.MaxStack)
	}
	if c.Log.Verbosity < 0 {
		return fmt.Errorf("log.verbosity must not be negative, got %d", c.Log.Verbosity)
	}
	return nil
}

// SourcePaths returns absolute paths for the configured source files.
func (c *Config) SourcePaths() []string {
	var paths []string
	for _, f := range c.Source.Files {
		if filepath.IsAbs(f) {
			paths = append(paths, f)
			continue
		}
		paths = append(paths, filepath.Join(c.Dir, f))
	}
	return paths
}

// VMConfig returns the VM limits. I/O is left to the caller.
func (c *Config) VMConfig() vm.Config {
	return vm.Config{
		InitialStackSize: c.VM.InitialStack,
		MaxStackSize:     c.VM.MaxStack,
		MaxHeapSize:      c.VM.MaxHeap,
		MaxCallDepth:     c.VM.MaxCallDepth,
	}
}

// CompilerOptions returns the compiler options.
func (c *Config) CompilerOptions() compiler.Options {
	return compiler.Options{Strict: c.Compiler.Strict, DebugData: c.Compiler.DebugData}
}

// LogPath returns the log file path, resolved against Dir. Empty means
// standard error.
func (c *Config) LogPath() string {
	if c.Log.Path == "" || filepath.IsAbs(c.Log.Path) {
		return c.Log.Path
	}
	return filepath.Join(c.Dir, c.Log.Path)
}
