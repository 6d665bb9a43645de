// Package config loads per-workspace settings from .phplens.yaml or
// .phplens.toml in the workspace root.
package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// File names probed in order.
const (
	YAMLFile = ".phplens.yaml"
	TOMLFile = ".phplens.toml"
)

const (
	defaultDebounce = 200 * time.Millisecond
	defaultCacheDir = ".phplens"
)

// Config holds user-overridable settings. Pointer fields distinguish "unset"
// from the zero value.
type Config struct {
	// DebounceMS is the delay between the last edit and the full re-crawl.
	DebounceMS *int `yaml:"debounce_ms" toml:"debounce_ms"`

	// Extensions are the file suffixes that get analysed. Default: [".php"].
	Extensions []string `yaml:"extensions" toml:"extensions"`

	// Ignore are doublestar globs, relative to the root, added to the
	// built-in directory denylist.
	Ignore []string `yaml:"ignore" toml:"ignore"`

	// Cache enables the sqlite metadata cache. Default: true.
	Cache *bool `yaml:"cache" toml:"cache"`

	CacheDir string `yaml:"cache_dir" toml:"cache_dir"`

	// PageLinkBaseURL turns "<?php // Title [/path]" headers into links.
	PageLinkBaseURL string `yaml:"page_link_base_url" toml:"page_link_base_url"`

	// SQLDialect is informational; column extraction is dialect-agnostic.
	SQLDialect string `yaml:"sql_dialect" toml:"sql_dialect"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{}
}

// Load reads the config file from dir. A missing or invalid file yields the
// defaults.
func Load(dir string) *Config {
	if data, err := os.ReadFile(filepath.Join(dir, YAMLFile)); err == nil {
		cfg := Default()
		if err := yaml.Unmarshal(data, cfg); err != nil {
			slog.Warn("config.invalid", "file", YAMLFile, "err", err)
			return Default()
		}
		return cfg
	}
	if data, err := os.ReadFile(filepath.Join(dir, TOMLFile)); err == nil {
		cfg := Default()
		if err := toml.Unmarshal(data, cfg); err != nil {
			slog.Warn("config.invalid", "file", TOMLFile, "err", err)
			return Default()
		}
		return cfg
	}
	return Default()
}

// EffectiveDebounce returns the configured debounce, or 200ms.
func (c *Config) EffectiveDebounce() time.Duration {
	if c.DebounceMS != nil && *c.DebounceMS >= 0 {
		return time.Duration(*c.DebounceMS) * time.Millisecond
	}
	return defaultDebounce
}

// EffectiveExtensions returns the analysed suffixes, lower-cased with a
// leading dot.
func (c *Config) EffectiveExtensions() []string {
	if len(c.Extensions) == 0 {
		return []string{".php"}
	}
	out := make([]string, 0, len(c.Extensions))
	for _, ext := range c.Extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		out = append(out, ext)
	}
	return out
}

// EffectiveCache reports whether the metadata cache is enabled.
func (c *Config) EffectiveCache() bool {
	if c.Cache != nil {
		return *c.Cache
	}
	return true
}

// EffectiveCacheDir returns the cache directory, resolved against root when
// relative.
func (c *Config) EffectiveCacheDir(root string) string {
	dir := c.CacheDir
	if dir == "" {
		dir = defaultCacheDir
	}
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(root, dir)
}
