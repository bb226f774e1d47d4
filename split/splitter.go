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

package split

import (
	"fmt"
	"sort"
	"strings"

	"android/bundletool/bundle"
	"android/bundletool/bundleproto"
)

// shardKey identifies one per-module shard by the dimension values it
// carries. The zero key is the master shard.
type shardKey struct {
	abi      bundleproto.AbiAlias
	density  bundleproto.DensityAlias
	language string
	tcf      bundleproto.TextureCompressionFormatAlias
	tier     int32
	hasTier  bool
}

func (k shardKey) master() bool {
	return k == shardKey{}
}

// suffix builds the deterministic shard name suffix, e.g. "arm64_v8a",
// "xhdpi", "fr", "etc1" or "tier_1". Multi-dimension shards join their
// tokens with ".".
func (k shardKey) suffix() string {
	var parts []string
	if k.abi != bundleproto.AbiUnspecified {
		parts = append(parts, strings.ReplaceAll(k.abi.DirName(), "-", "_"))
	}
	if k.density != bundleproto.DensityUnspecified {
		parts = append(parts, strings.ToLower(k.density.String()))
	}
	if k.language != "" {
		parts = append(parts, k.language)
	}
	if k.tcf != bundleproto.TcfUnspecified {
		parts = append(parts, k.tcf.String())
	}
	if k.hasTier {
		parts = append(parts, fmt.Sprintf("tier_%d", k.tier))
	}
	return strings.Join(parts, ".")
}

// ModuleSplit is one planned shard of one module: the master shard with the
// untargeted content, or a per-value shard for a requested dimension.
type ModuleSplit struct {
	Module    *bundle.Module
	Master    bool
	Targeting *bundleproto.ApkTargeting
	// Entries hold the shard's files keyed by their output path, suffix
	// stripping already applied.
	Entries []bundle.Entry

	key shardKey
}

// Suffix returns the shard's name suffix; empty for the master shard.
func (s *ModuleSplit) Suffix() string {
	return s.key.suffix()
}

// SplitModule splits one module's content into a master shard plus one
// shard per discovered value of every requested dimension. Each shard's
// targeting records the full domain: its value, and every other observed
// value as alternatives.
func SplitModule(m *bundle.Module, cfg *bundle.Config, domains *Domains, stripper *Stripper) ([]*ModuleSplit, error) {
	negated := map[bundleproto.SplitDimension]bool{}
	for _, dim := range cfg.NegatedDimensions() {
		negated[dim] = true
	}

	shards := map[shardKey]*ModuleSplit{}
	mergers := map[shardKey]*assetsMerger{}
	shard := func(key shardKey) *ModuleSplit {
		s, ok := shards[key]
		if !ok {
			s = &ModuleSplit{Module: m, Master: key.master(), key: key}
			shards[key] = s
			mergers[key] = newAssetsMerger()
		}
		return s
	}
	// The master shard always exists: it holds the manifest, dex and every
	// untargeted file.
	shard(shardKey{})

	for _, e := range m.Entries {
		key, path, td, err := classifyEntry(e.Path, domains, stripper, negated)
		if err != nil {
			return nil, err
		}
		s := shard(key)
		if td != nil {
			if i := strings.LastIndex(path, "/"); i >= 0 {
				if err := mergers[key].claim(path[:i], td); err != nil {
					return nil, err
				}
			}
		}
		s.Entries = append(s.Entries, bundle.Entry{Path: path, Content: e.Content})
	}

	keys := make([]shardKey, 0, len(shards))
	for key := range shards {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return lessShardKey(keys[i], keys[j]) })

	out := make([]*ModuleSplit, 0, len(keys))
	for _, key := range keys {
		s := shards[key]
		s.Targeting = domains.apkTargeting(key)
		sort.SliceStable(s.Entries, func(i, j int) bool { return s.Entries[i].Path < s.Entries[j].Path })
		out = append(out, s)
	}
	return out, nil
}

// classifyEntry decides which shard one entry belongs to and under which
// output path it is stored there.
func classifyEntry(path string, domains *Domains, stripper *Stripper, negated map[bundleproto.SplitDimension]bool) (shardKey, string, *bundle.TargetedDirectory, error) {
	var key shardKey

	if abi, ok := bundle.AbiFromLibPath(path); ok {
		if negated[bundleproto.DimensionAbi] || !domains.Requested(bundleproto.DimensionAbi) {
			return key, path, nil, nil
		}
		key.abi = abi
		return key, path, nil, nil
	}

	if strings.HasPrefix(path, "res/") {
		if d, ok := bundle.DensityFromResPath(path); ok &&
			domains.Requested(bundleproto.DimensionScreenDensity) && !negated[bundleproto.DimensionScreenDensity] {
			key.density = d
		}
		if lang, ok := bundle.LanguageFromResPath(path); ok &&
			domains.Requested(bundleproto.DimensionLanguage) && !negated[bundleproto.DimensionLanguage] {
			key.language = lang
		}
		return key, path, nil, nil
	}

	if strings.HasPrefix(path, "assets/") && strings.Contains(path, "#") {
		i := strings.LastIndex(path, "/")
		td, err := bundle.ParseTargetedDirectory(path[:i])
		if err != nil {
			return key, "", nil, err
		}
		for dim := range td.Suffixes {
			// A negated dimension merges every value into the master shard
			// with the original paths untouched.
			if negated[dim] {
				return shardKey{}, path, nil, nil
			}
		}
		if t := td.Targeting.TextureCompressionFormat; t != nil &&
			domains.Requested(bundleproto.DimensionTextureCompressionFormat) {
			key.tcf = t.Value[0].Alias
		}
		if t := td.Targeting.DeviceTier; t != nil && domains.Requested(bundleproto.DimensionDeviceTier) {
			key.tier, key.hasTier = t.Value[0], true
		}
		if t := td.Targeting.Language; t != nil && domains.Requested(bundleproto.DimensionLanguage) {
			key.language = t.Value[0]
		}
		return key, stripper.OutputDir(td) + path[i:], td, nil
	}

	return key, path, nil, nil
}

// apkTargeting converts a shard key into the shard's APK targeting using
// the discovered domains for the alternative sets.
func (d *Domains) apkTargeting(key shardKey) *bundleproto.ApkTargeting {
	t := &bundleproto.ApkTargeting{}
	if key.abi != bundleproto.AbiUnspecified {
		t.Abi = d.AbiTargeting(key.abi)
	}
	if key.density != bundleproto.DensityUnspecified {
		t.ScreenDensity = d.DensityTargeting(key.density)
	}
	if key.language != "" {
		t.Language = d.LanguageTargeting(key.language)
	}
	if key.tcf != bundleproto.TcfUnspecified {
		t.TextureCompressionFormat = d.TcfTargeting(key.tcf)
	}
	if key.hasTier {
		t.DeviceTier = d.TierTargeting(key.tier)
	}
	return t
}

// lessShardKey orders shards deterministically: master first, then by ABI
// priority, density, language, texture format and tier.
func lessShardKey(a, b shardKey) bool {
	if a.master() != b.master() {
		return a.master()
	}
	if a.abi != b.abi {
		return bundleproto.AbiPriority[a.abi] < bundleproto.AbiPriority[b.abi]
	}
	if a.density != b.density {
		return a.density < b.density
	}
	if a.language != b.language {
		return a.language < b.language
	}
	if a.tcf != b.tcf {
		return a.tcf < b.tcf
	}
	if a.hasTier != b.hasTier {
		return b.hasTier
	}
	return a.tier < b.tier
}
