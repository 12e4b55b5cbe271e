// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.


// Package config loads and stores compilation sessions as YAML files.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"

	"github.com/mlnoga/xrdstack/internal/imageset"
	"github.com/mlnoga/xrdstack/internal/ops"
	"github.com/mlnoga/xrdstack/internal/ops/bounds"
	"github.com/mlnoga/xrdstack/internal/ops/compile"
	"github.com/mlnoga/xrdstack/internal/ops/norm"
)

// Image set section, shared by the additive and subtractive sets
type SetConfig struct {
	// Files holds file names or glob patterns, expanded in order
	Files     []string `yaml:"files,omitempty"`

	// Rotation in clockwise quarter turns
	Rotation  int      `yaml:"rotation"`

	DropFirst int      `yaml:"dropFirst"`
	DropLast  int      `yaml:"dropLast"`
	StdMin    float64  `yaml:"stdMin"`
	StdMax    float64  `yaml:"stdMax"`
}

// Configuration of a compilation session
type Config struct {
	Processing struct {
		// NumCores limits the number of concurrently processed images
		NumCores     int     `yaml:"numCores"`

		// CropFraction is the margin excluded per side when normalizing
		CropFraction float64 `yaml:"cropFraction"`

		Verbose      bool    `yaml:"verbose"`
	} `yaml:"processing"`

	Cycles      int       `yaml:"cycles"`
	Additive    SetConfig `yaml:"additive"`
	Subtractive SetConfig `yaml:"subtractive"`

	Correction struct {
		File     string `yaml:"file"`
		Rotation int    `yaml:"rotation"`
	} `yaml:"correction"`

	Output struct {
		Dir      string `yaml:"dir"`
		Name     string `yaml:"name"`
		Ext      string `yaml:"ext"`       // .tiff or .fits
		JPG      string `yaml:"jpg"`       // preview file name, %auto to derive from the output name
		Colormap string `yaml:"colormap"`
	} `yaml:"output"`
}

func defaultSet() SetConfig {
	b:=bounds.NewOpBoundsDefault()
	return SetConfig{DropFirst: b.DropFirst, DropLast: b.DropLast, StdMin: b.StdMin, StdMax: b.StdMax}
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg:=&Config{}
	cfg.Processing.NumCores    =runtime.NumCPU()
	cfg.Processing.CropFraction=norm.NewOpNormalizeDefault().CropFraction
	cfg.Cycles=1
	cfg.Additive   =defaultSet()
	cfg.Subtractive=defaultSet()
	op:=compile.NewOpCompileDefault()
	cfg.Output.Dir, cfg.Output.Name, cfg.Output.Ext=op.OutDir, op.Name, op.Ext
	cfg.Output.JPG="%auto"
	cfg.Output.Colormap="gray"
	return cfg
}

// LoadConfig loads configuration from a YAML file.
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg:=DefaultConfig()
	if _, err:=os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}
	data, err:=os.ReadFile(configPath)
	if err!=nil { return nil, fmt.Errorf("error reading config file: %w", err) }
	if err:=yaml.Unmarshal(data, cfg); err!=nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}
	if err:=cfg.Validate(); err!=nil {
		return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
	}
	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	if err:=os.MkdirAll(filepath.Dir(configPath), 0755); err!=nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}
	data, err:=yaml.Marshal(cfg)
	if err!=nil { return fmt.Errorf("error marshaling config: %w", err) }
	if err:=os.WriteFile(configPath, data, 0644); err!=nil {
		return fmt.Errorf("error writing config file: %w", err)
	}
	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	return SaveConfig(DefaultConfig(), configPath)
}

func (sc *SetConfig) validate(name string) error {
	if sc.DropFirst<0 || sc.DropLast<0 {
		return fmt.Errorf("%s: negative start/stop bounds %d/%d", name, sc.DropFirst, sc.DropLast)
	}
	if sc.StdMin<0 || sc.StdMax<0 {
		return fmt.Errorf("%s: negative sigma bounds %g/%g", name, sc.StdMin, sc.StdMax)
	}
	return nil
}

// Checks value ranges
func (cfg *Config) Validate() error {
	if cfg.Cycles<1 { return fmt.Errorf("cycles must be at least 1, got %d", cfg.Cycles) }
	if cfg.Processing.NumCores<1 { return fmt.Errorf("numCores must be at least 1, got %d", cfg.Processing.NumCores) }
	if f:=cfg.Processing.CropFraction; f<0 || f>=0.5 {
		return fmt.Errorf("cropFraction must be in [0,0.5), got %g", f)
	}
	if err:=cfg.Additive.validate("additive"); err!=nil { return err }
	if err:=cfg.Subtractive.validate("subtractive"); err!=nil { return err }
	switch cfg.Output.Ext {
	case ".tiff", ".tif", ".fits", ".fit", ".fts": 
	default:
		return fmt.Errorf("unsupported output extension '%s'", cfg.Output.Ext)
	}
	return nil
}

// Builds a session from the configuration, loading all files. Patterns are expanded
// relative to the working directory; restrict refuses paths outside it
func (cfg *Config) NewSession(restrict bool, c *ops.Context) (*imageset.Session, error) {
	if err:=cfg.Validate(); err!=nil { return nil, err }
	c.MaxThreads=cfg.Processing.NumCores
	c.Verbose   =cfg.Processing.Verbose

	s:=imageset.NewSession(cfg.Cycles)
	s.Normalize=norm.NewOpNormalize(cfg.Processing.CropFraction)
	for _, kind:=range []imageset.Kind{imageset.Additive, imageset.Subtractive} {
		sc:=&cfg.Additive
		if kind==imageset.Subtractive { sc=&cfg.Subtractive }
		if err:=s.SetBounds(kind, bounds.NewOpBounds(sc.DropFirst, sc.DropLast, sc.StdMin, sc.StdMax)); err!=nil {
			return nil, err
		}
		s.SetRotation(kind, sc.Rotation)
		if len(sc.Files)==0 { continue }
		paths, err:=ops.ExpandPatterns(sc.Files, restrict, c.Log)
		if err!=nil { return nil, err }
		if err:=s.Load(kind, paths, c); err!=nil { return nil, err }
	}
	if cfg.Correction.File!="" {
		if restrict && !ops.IsPathAllowed(cfg.Correction.File) {
			return nil, fmt.Errorf("correction file %s is outside the working directory", cfg.Correction.File)
		}
		if err:=s.SetCorrection(cfg.Correction.File, cfg.Correction.Rotation, c); err!=nil { return nil, err }
	}
	return s, nil
}

// The compile operator for the output section
func (cfg *Config) OpCompile() *compile.OpCompile {
	return compile.NewOpCompile(cfg.Output.Dir, cfg.Output.Name, cfg.Output.Ext)
}

// Captures the current state of a session on top of the given base settings, with the
// session's image names as file lists. A nil base starts from the defaults
func FromSession(s *imageset.Session, base *Config) *Config {
	cfg:=DefaultConfig()
	if base!=nil { 
		c:=*base
		cfg=&c 
	}
	cfg.Cycles=s.Cycles
	if s.Normalize!=nil { cfg.Processing.CropFraction=s.Normalize.CropFraction }
	for _, kind:=range []imageset.Kind{imageset.Additive, imageset.Subtractive} {
		sc:=&cfg.Additive
		if kind==imageset.Subtractive { sc=&cfg.Subtractive }
		sc.Files   =imageset.Flatten(s.Set(kind).Names)
		sc.Rotation=s.Rotation(kind)
		if b:=s.Bounds(kind); b!=nil {
			sc.DropFirst, sc.DropLast, sc.StdMin, sc.StdMax=b.DropFirst, b.DropLast, b.StdMin, b.StdMax
		}
	}
	cfg.Correction.File, cfg.Correction.Rotation=s.Correction, s.CorrRotation
	return cfg
}
