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
	"sort"
	"strings"

	"android/bundletool/bundle"
	"android/bundletool/bundleproto"
	"android/bundletool/dex"
)

// fusedAbis computes the ABI domain of a merged artifact from the union of
// the fused modules' declared lib/ directories. A module declaring an ABI
// set different from its siblings is a defect from the strict tool version
// on; older bundles keep only the ABIs common to every lib-bearing module
// and silently drop the rest.
func fusedAbis(fused []*bundle.Module, strict bool) ([]bundleproto.AbiAlias, error) {
	var sets []map[bundleproto.AbiAlias]bool
	var owners []string
	for _, m := range fused {
		set := map[bundleproto.AbiAlias]bool{}
		for _, e := range m.Entries {
			if abi, ok := bundle.AbiFromLibPath(e.Path); ok {
				set[abi] = true
			}
		}
		if len(set) > 0 {
			sets = append(sets, set)
			owners = append(owners, m.Name)
		}
	}
	if len(sets) == 0 {
		return nil, nil
	}
	common := sets[0]
	for _, set := range sets[1:] {
		next := map[bundleproto.AbiAlias]bool{}
		for abi := range common {
			if set[abi] {
				next[abi] = true
			}
		}
		common = next
	}
	for i, set := range sets {
		if len(set) != len(common) && strict {
			return nil, bundle.InvalidBundlef(
				"module %q declares native directories inconsistent with its siblings", owners[i])
		}
	}
	if len(common) == 0 {
		return nil, bundle.InvalidBundlef("fused modules share no common ABI")
	}
	abis := make([]bundleproto.AbiAlias, 0, len(common))
	for abi := range common {
		abis = append(abis, abi)
	}
	sort.Slice(abis, func(i, j int) bool {
		return bundleproto.AbiPriority[abis[i]] < bundleproto.AbiPriority[abis[j]]
	})
	return abis, nil
}

// moduleDexInputs collects the fused modules' dex files in module order.
func moduleDexInputs(modules []*bundle.Module) []dex.ModuleDex {
	var out []dex.ModuleDex
	for _, m := range modules {
		entries := m.DexEntries()
		if len(entries) == 0 {
			continue
		}
		md := dex.ModuleDex{ModuleName: m.Name}
		for _, e := range entries {
			md.Files = append(md.Files, e.Content)
		}
		out = append(out, md)
	}
	return out
}

// fusedEntries merges the fused modules' content into one shard. Only the
// shard ABI's native libraries are kept (every ABI when abi is unspecified),
// feature manifests are dropped in favor of the base manifest, dex files
// come from the merged sequence, and targeted asset directories contribute
// only their default value's content at the stripped path.
func fusedEntries(fused []*bundle.Module, abi bundleproto.AbiAlias, stripper *Stripper, mergedDex []dex.MergedFile) ([]bundle.Entry, error) {
	merger := newAssetsMerger()
	seen := map[string]bool{}
	var out []bundle.Entry
	add := func(path string, content []byte) {
		if seen[path] {
			return
		}
		seen[path] = true
		out = append(out, bundle.Entry{Path: path, Content: content})
	}

	for _, m := range fused {
		isBase := m.Name == bundle.BaseModuleName
		for _, e := range m.Entries {
			switch {
			case strings.HasPrefix(e.Path, "dex/"):
				continue
			case strings.HasPrefix(e.Path, "manifest/"):
				if isBase {
					add(e.Path, e.Content)
				}
			case strings.HasPrefix(e.Path, "lib/"):
				entryAbi, ok := bundle.AbiFromLibPath(e.Path)
				if !ok {
					continue
				}
				if abi == bundleproto.AbiUnspecified || entryAbi == abi {
					add(e.Path, e.Content)
				}
			case strings.HasPrefix(e.Path, "assets/") && strings.Contains(e.Path, "#"):
				path, td, err := defaultAssetPath(e.Path, stripper)
				if err != nil {
					return nil, err
				}
				if path == "" {
					continue
				}
				if i := strings.LastIndex(path, "/"); i >= 0 {
					if err := merger.claim(path[:i], td); err != nil {
						return nil, err
					}
				}
				add(path, e.Content)
			case strings.HasPrefix(e.Path, "assets/"):
				if i := strings.LastIndex(e.Path, "/"); i >= 0 {
					if err := merger.claim(e.Path[:i], nil); err != nil {
						return nil, err
					}
				}
				add(e.Path, e.Content)
			default:
				add(e.Path, e.Content)
			}
		}
	}
	for _, f := range mergedDex {
		add("dex/"+f.Name, f.Content)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// defaultAssetPath decides whether a targeted asset entry belongs in a
// merged shard and, if so, where. Texture format and device tier values
// other than the declared default are served by splits, not by the fused
// artifact; language-targeted content is always bundled.
func defaultAssetPath(path string, stripper *Stripper) (string, *bundle.TargetedDirectory, error) {
	i := strings.LastIndex(path, "/")
	td, err := bundle.ParseTargetedDirectory(path[:i])
	if err != nil {
		return "", nil, err
	}
	for dim, token := range td.Suffixes {
		if dim == bundleproto.DimensionLanguage {
			continue
		}
		def, ok := stripper.Default(dim)
		if !ok || token != def {
			return "", nil, nil
		}
	}
	return stripper.OutputDir(td) + path[i:], td, nil
}

// generateStandaloneVariants plans the pre-split-capable variants: one
// fused shard per common ABI, or a single unconditioned shard when no
// native code is present.
func generateStandaloneVariants(p *Plan, b *bundle.AppBundle, res *bundle.Resolution, stripper *Stripper, splitBoundaries []int32, names *nameAllocator, opts Options) error {
	abis, err := fusedAbis(res.Fused, b.Config.StrictAbiConsistency())
	if err != nil {
		return err
	}
	mergedDex, err := dex.Merge(moduleDexInputs(res.Fused), dex.Options{
		MinSdkVersion:  b.MinSdkVersion(),
		MainDexClasses: opts.MainDexClasses,
		Compiler:       opts.DexCompiler,
	})
	if err != nil {
		return err
	}

	base := b.BaseModule()
	sdk := &bundleproto.SdkVersionTargeting{
		Value: []bundleproto.SdkVersion{bundleproto.SdkVersionFrom(b.MinSdkVersion())},
	}
	for _, boundary := range splitBoundaries {
		sdk.Alternatives = append(sdk.Alternatives, bundleproto.SdkVersionFrom(boundary))
	}

	shardAbis := []bundleproto.AbiAlias{bundleproto.AbiUnspecified}
	if len(abis) > 0 {
		shardAbis = abis
	}
	for _, abi := range shardAbis {
		entries, err := fusedEntries(res.Fused, abi, stripper, mergedDex)
		if err != nil {
			return err
		}
		vt := &bundleproto.VariantTargeting{SdkVersion: sdk}
		at := &bundleproto.ApkTargeting{SdkVersion: sdk}
		suffix := ""
		if abi != bundleproto.AbiUnspecified {
			abiT := &bundleproto.AbiTargeting{Value: []bundleproto.Abi{{Alias: abi}}}
			for _, other := range abis {
				if other != abi {
					abiT.Alternatives = append(abiT.Alternatives, bundleproto.Abi{Alias: other})
				}
			}
			vt.Abi = abiT
			at.Abi = abiT
			suffix = strings.ReplaceAll(abi.DirName(), "-", "_")
		}
		desc := &bundleproto.ApkDescription{
			Targeting: at,
			Path:      names.claim(standaloneApkPath(suffix)),
			StandaloneApkMetadata: &bundleproto.StandaloneApkMetadata{
				FusedModuleNames: res.FusedNames(),
			},
		}
		variant := &bundleproto.Variant{
			Targeting:  vt,
			Properties: &bundleproto.VariantProperties{},
			ApkSets: []*bundleproto.ApkSet{{
				ModuleMetadata:  moduleMetadata(base),
				ApkDescriptions: []*bundleproto.ApkDescription{desc},
			}},
		}
		p.Variants = append(p.Variants, variant)
		p.Apks = append(p.Apks, &PlannedApk{
			Description: desc, Entries: entries, Properties: variant.Properties,
		})
	}
	return nil
}

// generateFusedSingle plans the one-shard build flavors: universal, system
// and archive. All ABIs are bundled; targeting is the bundle's SDK floor.
func generateFusedSingle(p *Plan, b *bundle.AppBundle, res *bundle.Resolution, stripper *Stripper, names *nameAllocator, opts Options, kind fusedKind) error {
	mergedDex, err := dex.Merge(moduleDexInputs(res.Fused), dex.Options{
		MinSdkVersion:  b.MinSdkVersion(),
		MainDexClasses: opts.MainDexClasses,
		Compiler:       opts.DexCompiler,
	})
	if err != nil {
		return err
	}
	entries, err := fusedEntries(res.Fused, bundleproto.AbiUnspecified, stripper, mergedDex)
	if err != nil {
		return err
	}

	sdk := &bundleproto.SdkVersionTargeting{
		Value: []bundleproto.SdkVersion{bundleproto.SdkVersionFrom(b.MinSdkVersion())},
	}
	desc := &bundleproto.ApkDescription{
		Targeting: &bundleproto.ApkTargeting{SdkVersion: sdk},
	}
	switch kind {
	case fusedUniversal:
		desc.Path = names.claim(universalApkPath)
		desc.StandaloneApkMetadata = &bundleproto.StandaloneApkMetadata{
			FusedModuleNames: res.FusedNames(),
		}
	case fusedSystem:
		desc.Path = names.claim(systemApkPath)
		desc.SystemApkMetadata = &bundleproto.SystemApkMetadata{
			FusedModuleNames: res.FusedNames(),
			SystemApkType:    bundleproto.SystemApkSystem,
		}
	case fusedArchive:
		desc.Path = names.claim(archivedApkPath)
		desc.ArchivedApkMetadata = &bundleproto.ArchivedApkMetadata{}
	}
	variant := &bundleproto.Variant{
		Targeting:  &bundleproto.VariantTargeting{SdkVersion: sdk},
		Properties: &bundleproto.VariantProperties{},
		ApkSets: []*bundleproto.ApkSet{{
			ModuleMetadata:  moduleMetadata(b.BaseModule()),
			ApkDescriptions: []*bundleproto.ApkDescription{desc},
		}},
	}
	p.Variants = append(p.Variants, variant)
	p.Apks = append(p.Apks, &PlannedApk{
		Description: desc, Entries: entries, Properties: variant.Properties,
	})
	return nil
}

// fusedKind selects the flavor of a single fused artifact.
type fusedKind int

const (
	fusedUniversal fusedKind = iota
	fusedSystem
	fusedArchive
)
