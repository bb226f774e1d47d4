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

// Package split turns resolved bundle modules into the full, deduplicated
// set of planned variants and APKs: per-dimension value discovery, suffix
// stripping, per-module splitting, SDK variant boundaries and fused
// standalone shards.
package split

import (
	"sort"
	"strings"

	"android/bundletool/bundle"
	"android/bundletool/bundleproto"
)

// Domains holds the concrete values observed per optimization dimension
// across all selected modules. Alternatives on every generated targeting are
// computed against these domains: for any value, alternatives is the domain
// minus the value, so value plus alternatives always reconstructs the full
// observed set.
type Domains struct {
	Abis      []bundleproto.AbiAlias
	Densities []bundleproto.DensityAlias
	Languages []string
	Tcfs      []bundleproto.TextureCompressionFormatAlias
	Tiers     []int32

	dims map[bundleproto.SplitDimension]bool
}

// Requested reports whether splitting was requested for the dimension.
func (d *Domains) Requested(dim bundleproto.SplitDimension) bool {
	return d.dims[dim]
}

// Discover scans the selected modules' native library directories, resource
// directories and targeted asset directories and records every concrete
// value present for each requested dimension.
func Discover(modules []*bundle.Module, dims []bundleproto.SplitDimension) (*Domains, error) {
	d := &Domains{dims: map[bundleproto.SplitDimension]bool{}}
	for _, dim := range dims {
		d.dims[dim] = true
	}
	abis := map[bundleproto.AbiAlias]bool{}
	densities := map[bundleproto.DensityAlias]bool{}
	languages := map[string]bool{}
	tcfs := map[bundleproto.TextureCompressionFormatAlias]bool{}
	tiers := map[int32]bool{}

	for _, m := range modules {
		for _, e := range m.Entries {
			if abi, ok := bundle.AbiFromLibPath(e.Path); ok {
				abis[abi] = true
			}
			if density, ok := bundle.DensityFromResPath(e.Path); ok {
				densities[density] = true
			}
			if lang, ok := bundle.LanguageFromResPath(e.Path); ok {
				languages[lang] = true
			}
		}
		for _, dir := range targetedAssetDirs(m) {
			td, err := bundle.ParseTargetedDirectory(dir)
			if err != nil {
				return nil, err
			}
			if t := td.Targeting.TextureCompressionFormat; t != nil {
				for _, v := range t.Value {
					tcfs[v.Alias] = true
				}
			}
			if t := td.Targeting.DeviceTier; t != nil {
				for _, v := range t.Value {
					tiers[v] = true
				}
			}
			if t := td.Targeting.Language; t != nil {
				for _, v := range t.Value {
					languages[v] = true
				}
			}
		}
	}

	if d.dims[bundleproto.DimensionAbi] {
		for a := range abis {
			d.Abis = append(d.Abis, a)
		}
		sort.Slice(d.Abis, func(i, j int) bool {
			return bundleproto.AbiPriority[d.Abis[i]] < bundleproto.AbiPriority[d.Abis[j]]
		})
	}
	if d.dims[bundleproto.DimensionScreenDensity] {
		for v := range densities {
			d.Densities = append(d.Densities, v)
		}
		sort.Slice(d.Densities, func(i, j int) bool { return d.Densities[i] < d.Densities[j] })
	}
	if d.dims[bundleproto.DimensionLanguage] {
		for v := range languages {
			d.Languages = append(d.Languages, v)
		}
		sort.Strings(d.Languages)
	}
	if d.dims[bundleproto.DimensionTextureCompressionFormat] {
		for v := range tcfs {
			d.Tcfs = append(d.Tcfs, v)
		}
		sort.Slice(d.Tcfs, func(i, j int) bool { return d.Tcfs[i] < d.Tcfs[j] })
	}
	if d.dims[bundleproto.DimensionDeviceTier] {
		for v := range tiers {
			d.Tiers = append(d.Tiers, v)
		}
		sort.Slice(d.Tiers, func(i, j int) bool { return d.Tiers[i] < d.Tiers[j] })
	}
	return d, nil
}

// targetedAssetDirs returns the distinct assets/ directories of a module
// that carry a targeting suffix, in sorted order.
func targetedAssetDirs(m *bundle.Module) []string {
	seen := map[string]bool{}
	for _, e := range m.Entries {
		if !strings.HasPrefix(e.Path, "assets/") {
			continue
		}
		i := strings.LastIndex(e.Path, "/")
		dir := e.Path[:i]
		if strings.Contains(dir, "#") {
			seen[dir] = true
		}
	}
	out := make([]string, 0, len(seen))
	for dir := range seen {
		out = append(out, dir)
	}
	sort.Strings(out)
	return out
}

// AbiTargeting builds the value-plus-alternatives targeting for one ABI
// against the discovered domain.
func (d *Domains) AbiTargeting(value bundleproto.AbiAlias) *bundleproto.AbiTargeting {
	t := &bundleproto.AbiTargeting{Value: []bundleproto.Abi{{Alias: value}}}
	for _, a := range d.Abis {
		if a != value {
			t.Alternatives = append(t.Alternatives, bundleproto.Abi{Alias: a})
		}
	}
	return t
}

// DensityTargeting builds the value-plus-alternatives targeting for one
// density bucket.
func (d *Domains) DensityTargeting(value bundleproto.DensityAlias) *bundleproto.ScreenDensityTargeting {
	t := &bundleproto.ScreenDensityTargeting{
		Value: []bundleproto.ScreenDensity{{DensityAlias: value}},
	}
	for _, v := range d.Densities {
		if v != value {
			t.Alternatives = append(t.Alternatives, bundleproto.ScreenDensity{DensityAlias: v})
		}
	}
	return t
}

// LanguageTargeting builds the value-plus-alternatives targeting for one
// language.
func (d *Domains) LanguageTargeting(value string) *bundleproto.LanguageTargeting {
	t := &bundleproto.LanguageTargeting{Value: []string{value}}
	for _, v := range d.Languages {
		if v != value {
			t.Alternatives = append(t.Alternatives, v)
		}
	}
	return t
}

// TcfTargeting builds the value-plus-alternatives targeting for one texture
// compression format.
func (d *Domains) TcfTargeting(value bundleproto.TextureCompressionFormatAlias) *bundleproto.TextureCompressionFormatTargeting {
	t := &bundleproto.TextureCompressionFormatTargeting{
		Value: []bundleproto.TextureCompressionFormat{{Alias: value}},
	}
	for _, v := range d.Tcfs {
		if v != value {
			t.Alternatives = append(t.Alternatives, bundleproto.TextureCompressionFormat{Alias: v})
		}
	}
	return t
}

// TierTargeting builds the value-plus-alternatives targeting for one device
// tier.
func (d *Domains) TierTargeting(value int32) *bundleproto.DeviceTierTargeting {
	t := &bundleproto.DeviceTierTargeting{Value: []int32{value}}
	for _, v := range d.Tiers {
		if v != value {
			t.Alternatives = append(t.Alternatives, v)
		}
	}
	return t
}
