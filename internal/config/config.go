// Package config loads klvctl settings from a YAML file, an optional .env
// file and KLVGATE_ environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/caarlos0/env/v10"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"example.com/klvgate/internal/common"
	"example.com/klvgate/internal/patterns"
)

const EnvPrefix = "KLVGATE_"

type Config struct {
	Log        common.LogConfig `yaml:"log" envPrefix:"LOG_"`
	Analysis   AnalysisConfig   `yaml:"analysis" envPrefix:"ANALYSIS_"`
	Dictionary string           `yaml:"dictionary" env:"DICTIONARY"`
	Export     ExportConfig     `yaml:"export" envPrefix:"EXPORT_"`
	Metrics    MetricsConfig    `yaml:"metrics" envPrefix:"METRICS_"`
}

type AnalysisConfig struct {
	Strict            bool    `yaml:"strict" env:"STRICT"`
	Concurrency       int     `yaml:"concurrency" env:"CONCURRENCY" validate:"gte=0,lte=1024"`
	AltitudeThreshold float64 `yaml:"altitudeThreshold" env:"ALTITUDE_THRESHOLD" validate:"gt=0"`
}

type ExportConfig struct {
	Formats        []string `yaml:"formats" env:"FORMATS" envSeparator:"," validate:"dive,oneof=json csv txt pdf stac"`
	OutDir         string   `yaml:"outDir" env:"OUT_DIR" validate:"required"`
	STACCollection string   `yaml:"stacCollection" env:"STAC_COLLECTION"`
	// SignKey is an RSA private key (PEM) used to sign the artifact manifest.
	SignKey string `yaml:"signKey" env:"SIGN_KEY" validate:"omitempty,file"`
}

type MetricsConfig struct {
	// Textfile receives Prometheus text exposition after each run.
	Textfile string `yaml:"textfile" env:"TEXTFILE"`
}

func Default() Config {
	return Config{
		Log: common.LogConfig{
			Level:      "info",
			Format:     "console",
			MaxSizeMB:  50,
			MaxAgeDays: 14,
			MaxBackups: 3,
		},
		Analysis: AnalysisConfig{AltitudeThreshold: patterns.DefaultAltitudeThreshold},
		Export: ExportConfig{
			Formats:        []string{"json", "txt"},
			OutDir:         ".",
			STACCollection: "klv-sequences",
		},
	}
}

type Options struct {
	// Path is the YAML file. A missing file is not an error unless Required.
	Path     string
	Required bool
	// DotEnv files are loaded before the environment is read; existing
	// variables win.
	DotEnv []string
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

func Load(opts Options) (Config, error) {
	cfg := Default()
	if opts.Path != "" {
		b, err := os.ReadFile(opts.Path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(b, &cfg); err != nil {
				return cfg, fmt.Errorf("parse %s: %w", opts.Path, err)
			}
			cfg.resolvePaths(filepath.Dir(opts.Path))
		case errors.Is(err, os.ErrNotExist) && !opts.Required:
		default:
			return cfg, err
		}
	}
	for _, f := range opts.DotEnv {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("load %s: %w", f, err)
		}
	}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return cfg, fmt.Errorf("environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if err := validatorInstance().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %s%s", fe.Namespace(), fe.Tag(), paramSuffix(fe.Param())))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func paramSuffix(p string) string {
	if p == "" {
		return ""
	}
	return "=" + p
}

// WantFormat reports whether the export format list names f.
func (c Config) WantFormat(f string) bool {
	for _, have := range c.Export.Formats {
		if strings.EqualFold(have, f) {
			return true
		}
	}
	return false
}

// resolvePaths makes relative paths in the file relative to its directory.
func (c *Config) resolvePaths(baseDir string) {
	resolve := func(p string) string {
		p = strings.TrimSpace(p)
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Clean(filepath.Join(baseDir, p))
	}
	c.Dictionary = resolve(c.Dictionary)
	c.Log.File = resolve(c.Log.File)
	c.Export.OutDir = resolve(c.Export.OutDir)
	c.Metrics.Textfile = resolve(c.Metrics.Textfile)
	c.Export.SignKey = resolve(c.Export.SignKey)
}
