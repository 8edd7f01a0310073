// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rhi

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config is the file form of the device options.
//
// Example (TOML):
//
//	adapter = "Soft Rasterizer"
//	software_fallback = true
//	max_frames_in_flight = 3
//	resource_slots = 8192
//	sampler_slots = 256
//	fence_timeout_ms = 2000
type Config struct {
	// Adapter selects an adapter by name. Empty picks the first capable one.
	Adapter string `toml:"adapter" yaml:"adapter"`

	SoftwareFallback  bool `toml:"software_fallback" yaml:"software_fallback"`
	MaxFramesInFlight int  `toml:"max_frames_in_flight" yaml:"max_frames_in_flight"`
	ResourceSlots     int  `toml:"resource_slots" yaml:"resource_slots"`
	SamplerSlots      int  `toml:"sampler_slots" yaml:"sampler_slots"`

	// FenceTimeoutMS bounds internal waits; negative waits forever.
	FenceTimeoutMS int `toml:"fence_timeout_ms" yaml:"fence_timeout_ms"`
}

// LoadConfig reads a Config from a .toml, .yaml or .yml file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is user-provided intentionally
	if err != nil {
		return Config{}, errors.Wrap(err, "rhi: read config")
	}
	return ParseConfig(data, strings.TrimPrefix(filepath.Ext(path), "."))
}

// ParseConfig decodes data in the given format ("toml", "yaml" or "yml").
func ParseConfig(data []byte, format string) (Config, error) {
	var cfg Config
	var err error
	switch strings.ToLower(format) {
	case "toml":
		err = toml.Unmarshal(data, &cfg)
	case "yaml", "yml":
		err = yaml.Unmarshal(data, &cfg)
	default:
		return Config{}, errors.Newf("rhi: unknown config format %q", format)
	}
	if err != nil {
		return Config{}, errors.Wrapf(err, "rhi: decode %s config", format)
	}
	if cfg.MaxFramesInFlight < 0 || cfg.ResourceSlots < 0 || cfg.SamplerSlots < 0 {
		return Config{}, errors.Newf("rhi: negative value in config %+v", cfg)
	}
	return cfg, nil
}
