// Copyright 2024 Google Inc. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package bundle

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/google/blueprint/proptools"

	"android/bundletool/bundleproto"
)

// ConfigEntryName is the bundle zip entry holding the bundle configuration.
const ConfigEntryName = "BundleConfig.json"

// Config is the bundle-level configuration written by the tool that built
// the bundle. Optional fields use pointers so that "not declared" is
// distinguishable from an explicit false.
type Config struct {
	// Version of the tool that created the bundle, e.g. "1.15.6". Feature
	// eligibility is gated on it.
	Version string `json:"version,omitempty"`

	Optimizations OptimizationConfig `json:"optimizations,omitempty"`
}

// OptimizationConfig selects the splitting dimensions and the packaging
// optimizations applied to generated APKs.
type OptimizationConfig struct {
	SplitDimensions []SplitDimensionConfig `json:"splitDimensions,omitempty"`

	UncompressNativeLibraries *bool `json:"uncompressNativeLibraries,omitempty"`
	UncompressDexFiles        *bool `json:"uncompressDexFiles,omitempty"`
	SparseEncoding            *bool `json:"sparseEncoding,omitempty"`
}

// SplitDimensionConfig enables splitting along one dimension.
type SplitDimensionConfig struct {
	// Dimension is the enum name: ABI, SCREEN_DENSITY, LANGUAGE,
	// TEXTURE_COMPRESSION_FORMAT or DEVICE_TIER.
	Dimension string `json:"value"`
	// Negate disables splitting for the dimension: every value's content is
	// merged into one shard with no targeting attached.
	Negate *bool `json:"negate,omitempty"`

	SuffixStripping *SuffixStrippingConfig `json:"suffixStripping,omitempty"`
}

// SuffixStrippingConfig declares a default value for a dimension and asks
// for its suffix marker to be removed from directory paths.
type SuffixStrippingConfig struct {
	Enabled       *bool  `json:"enabled,omitempty"`
	DefaultSuffix string `json:"defaultSuffix,omitempty"`
}

// ParseConfig decodes a BundleConfig entry.
func ParseConfig(data []byte) (Config, error) {
	var c Config
	if len(data) == 0 {
		return c, nil
	}
	if err := json.Unmarshal(data, &c); err != nil {
		return c, InvalidBundlef("malformed %s: %v", ConfigEntryName, err)
	}
	for _, d := range c.Optimizations.SplitDimensions {
		if _, ok := splitDimensionByName[d.Dimension]; !ok {
			return c, InvalidBundlef("unknown split dimension %q", d.Dimension)
		}
	}
	return c, nil
}

var splitDimensionByName = map[string]bundleproto.SplitDimension{
	"ABI":                        bundleproto.DimensionAbi,
	"SCREEN_DENSITY":             bundleproto.DimensionScreenDensity,
	"LANGUAGE":                   bundleproto.DimensionLanguage,
	"TEXTURE_COMPRESSION_FORMAT": bundleproto.DimensionTextureCompressionFormat,
	"DEVICE_TIER":                bundleproto.DimensionDeviceTier,
}

// Dimensions returns the enabled (non-negated) split dimensions in enum
// order.
func (c *Config) Dimensions() []bundleproto.SplitDimension {
	var out []bundleproto.SplitDimension
	for _, d := range c.Optimizations.SplitDimensions {
		if proptools.Bool(d.Negate) {
			continue
		}
		out = append(out, splitDimensionByName[d.Dimension])
	}
	sortDimensions(out)
	return out
}

// NegatedDimensions returns the dimensions explicitly disabled for
// splitting; their content is merged without targeting.
func (c *Config) NegatedDimensions() []bundleproto.SplitDimension {
	var out []bundleproto.SplitDimension
	for _, d := range c.Optimizations.SplitDimensions {
		if proptools.Bool(d.Negate) {
			out = append(out, splitDimensionByName[d.Dimension])
		}
	}
	sortDimensions(out)
	return out
}

func sortDimensions(dims []bundleproto.SplitDimension) {
	for i := 1; i < len(dims); i++ {
		for j := i; j > 0 && dims[j] < dims[j-1]; j-- {
			dims[j], dims[j-1] = dims[j-1], dims[j]
		}
	}
}

// SuffixDefault returns the declared default suffix for a dimension, if
// suffix stripping is enabled for it.
func (c *Config) SuffixDefault(dim bundleproto.SplitDimension) (string, bool) {
	for _, d := range c.Optimizations.SplitDimensions {
		if splitDimensionByName[d.Dimension] != dim || d.SuffixStripping == nil {
			continue
		}
		if !proptools.BoolDefault(d.SuffixStripping.Enabled, false) {
			return "", false
		}
		return d.SuffixStripping.DefaultSuffix, true
	}
	return "", false
}

// UncompressNativeLibraries reports whether eligible variants should store
// native libraries uncompressed.
func (c *Config) UncompressNativeLibraries() bool {
	return proptools.BoolDefault(c.Optimizations.UncompressNativeLibraries, true)
}

// UncompressDexFiles reports whether eligible variants should store dex
// files uncompressed.
func (c *Config) UncompressDexFiles() bool {
	return proptools.BoolDefault(c.Optimizations.UncompressDexFiles, false)
}

// SparseEncoding reports whether eligible variants should use sparse
// resource table encoding.
func (c *Config) SparseEncoding() bool {
	return proptools.BoolDefault(c.Optimizations.SparseEncoding, false)
}

// strictAbiVersion is the tool version from which inconsistent ABI
// declarations across fused modules became a hard error instead of being
// silently dropped.
var strictAbiVersion = [3]int{1, 10, 0}

// StrictAbiConsistency reports whether inconsistent ABI folders across
// fused modules must fail the build. Older bundles keep the lenient
// drop-the-odd-one-out behavior.
func (c *Config) StrictAbiConsistency() bool {
	v, ok := parseVersion(c.Version)
	if !ok {
		return false
	}
	for i := 0; i < 3; i++ {
		if v[i] != strictAbiVersion[i] {
			return v[i] > strictAbiVersion[i]
		}
	}
	return true
}

func parseVersion(s string) ([3]int, bool) {
	var v [3]int
	if s == "" {
		return v, false
	}
	parts := strings.SplitN(s, "-", 2)
	fields := strings.Split(parts[0], ".")
	if len(fields) > 3 {
		return v, false
	}
	for i, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil {
			return v, false
		}
		v[i] = n
	}
	return v, true
}
