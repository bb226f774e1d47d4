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
)

// SDK floors at which device-visible packaging optimizations become
// available. Each floor that actually changes output forks a split variant.
const (
	sdkNativeMultidex   int32 = 21
	sdkUncompressedLibs int32 = 23
	sdkUncompressedDex  int32 = 28
	sdkSparseEncoding   int32 = 32
	sdkRuntimeProvided  int32 = 33
)

// variantSeed is one split-variant boundary: the minimum SDK at which the
// variant applies and the optimizations it enables.
type variantSeed struct {
	minSdk     int32
	props      bundleproto.VariantProperties
	sdkRuntime bool
}

// sdkVariantSeeds computes the deduplicated, ascending list of split-variant
// boundaries for the bundle. A floor whose optimization cannot change output
// (feature disabled, or no content of that kind present) does not fork a
// variant; floors below the bundle minimum collapse into it.
func sdkVariantSeeds(b *bundle.AppBundle, hasNativeLibs, hasDex bool) []variantSeed {
	floor := b.MinSdkVersion()
	if floor < sdkNativeMultidex {
		floor = sdkNativeMultidex
	}

	type step struct {
		sdk   int32
		apply func(*variantSeed)
	}
	var steps []step
	if b.Config.UncompressNativeLibraries() && hasNativeLibs {
		steps = append(steps, step{sdkUncompressedLibs, func(s *variantSeed) {
			s.props.UncompressedNativeLibraries = true
		}})
	}
	if b.Config.UncompressDexFiles() && hasDex {
		steps = append(steps, step{sdkUncompressedDex, func(s *variantSeed) {
			s.props.UncompressedDex = true
		}})
	}
	if b.Config.SparseEncoding() {
		steps = append(steps, step{sdkSparseEncoding, func(s *variantSeed) {
			s.props.SparseEncoding = true
		}})
	}
	hasSdkDeps := false
	if base := b.BaseModule(); base != nil {
		hasSdkDeps = len(base.Manifest.SdkDependencies) > 0
	}
	if hasSdkDeps {
		steps = append(steps, step{sdkRuntimeProvided, func(s *variantSeed) {
			s.sdkRuntime = true
		}})
	}
	sort.SliceStable(steps, func(i, j int) bool { return steps[i].sdk < steps[j].sdk })

	seeds := []variantSeed{{minSdk: floor}}
	for _, st := range steps {
		sdk := st.sdk
		if sdk < floor {
			sdk = floor
		}
		last := &seeds[len(seeds)-1]
		if sdk == last.minSdk {
			// The optimization is already available at an existing boundary;
			// forking would duplicate the variant targeting.
			st.apply(last)
			continue
		}
		next := *last
		next.minSdk = sdk
		st.apply(&next)
		seeds = append(seeds, next)
	}
	return seeds
}

// targeting builds the variant targeting for one seed: its own boundary as
// the value, every other boundary in the run as an alternative.
func (s variantSeed) targeting(allBoundaries []int32) *bundleproto.VariantTargeting {
	t := &bundleproto.VariantTargeting{
		SdkVersion: &bundleproto.SdkVersionTargeting{
			Value: []bundleproto.SdkVersion{bundleproto.SdkVersionFrom(s.minSdk)},
		},
	}
	for _, b := range allBoundaries {
		if b != s.minSdk {
			t.SdkVersion.Alternatives = append(t.SdkVersion.Alternatives, bundleproto.SdkVersionFrom(b))
		}
	}
	if s.sdkRuntime {
		t.SdkRuntime = &bundleproto.SdkRuntimeTargeting{RequiresSdkRuntime: true}
	}
	return t
}

// moduleMetadata snapshots a module for the table of contents.
func moduleMetadata(m *bundle.Module) *bundleproto.ModuleMetadata {
	deps := append([]string(nil), m.Manifest.UsesSplits...)
	sort.Strings(deps)
	return &bundleproto.ModuleMetadata{
		Name:         m.Name,
		IsInstant:    m.Manifest.Instant,
		Dependencies: deps,
		Targeting:    m.Manifest.Conditions.Targeting(),
		DeliveryType: m.Manifest.Delivery.TocDeliveryType(),
	}
}

// generateSplitVariants produces one variant per SDK boundary, each holding
// every packaged module's shards. The per-module shards are computed once
// and re-emitted per variant under freshly allocated paths.
func generateSplitVariants(p *Plan, modules []*bundle.Module, splits map[string][]*ModuleSplit, seeds []variantSeed, instant bool, names *nameAllocator) error {
	boundaries := make([]int32, len(seeds))
	for i, s := range seeds {
		boundaries[i] = s.minSdk
	}

	seen := map[string]bool{}
	for _, seed := range seeds {
		vt := seed.targeting(boundaries)
		fp := vt.Fingerprint()
		if seen[fp] {
			return bundle.InvalidBundlef("duplicate variant targeting at SDK %d", seed.minSdk)
		}
		seen[fp] = true

		props := seed.props
		variant := &bundleproto.Variant{
			Targeting:  vt,
			Properties: &props,
		}
		for _, m := range modules {
			set := &bundleproto.ApkSet{ModuleMetadata: moduleMetadata(m)}
			for _, shard := range splits[m.Name] {
				suffix := shard.Suffix()
				var path string
				if instant {
					path = names.claim(instantApkPath(m.Name, suffix))
				} else {
					path = names.claim(splitApkPath(m.Name, suffix))
				}
				desc := &bundleproto.ApkDescription{
					Targeting: shard.Targeting,
					Path:      path,
				}
				id := splitID(m.Name, suffix, m.Name == bundle.BaseModuleName)
				if instant {
					desc.InstantApkMetadata = &bundleproto.InstantApkMetadata{
						SplitId: id, IsMasterSplit: shard.Master,
					}
				} else {
					desc.SplitApkMetadata = &bundleproto.SplitApkMetadata{
						SplitId: id, IsMasterSplit: shard.Master,
					}
				}
				set.ApkDescriptions = append(set.ApkDescriptions, desc)
				p.Apks = append(p.Apks, &PlannedApk{
					Description: desc, Entries: shard.Entries, Properties: variant.Properties,
				})
			}
			variant.ApkSets = append(variant.ApkSets, set)
		}
		p.Variants = append(p.Variants, variant)
	}
	return nil
}

// generateAssetSlices emits one slice set per asset module, independent of
// variants: a master slice plus one slice per targeted dimension value.
func generateAssetSlices(p *Plan, assetModules []*bundle.Module, cfg *bundle.Config, domains *Domains, stripper *Stripper, names *nameAllocator) error {
	for _, m := range assetModules {
		shards, err := SplitModule(m, cfg, domains, stripper)
		if err != nil {
			return err
		}
		set := &bundleproto.AssetSliceSet{
			AssetModuleMetadata: &bundleproto.AssetModuleMetadata{
				Name:         m.Name,
				DeliveryType: m.Manifest.Delivery.TocDeliveryType(),
			},
		}
		for _, shard := range shards {
			if shard.Master && len(shard.Entries) == 0 {
				continue
			}
			suffix := shard.Suffix()
			desc := &bundleproto.ApkDescription{
				Targeting: shard.Targeting,
				Path:      names.claim(assetSlicePath(m.Name, suffix)),
				AssetSliceMetadata: &bundleproto.AssetSliceMetadata{
					SplitId:       splitID(m.Name, suffix, false),
					IsMasterSplit: shard.Master,
				},
			}
			set.ApkDescriptions = append(set.ApkDescriptions, desc)
			p.Apks = append(p.Apks, &PlannedApk{Description: desc, Entries: shard.Entries})
		}
		p.AssetSliceSets = append(p.AssetSliceSets, set)
	}
	return nil
}

// hasNativeLibraries reports whether any module ships a lib/ directory.
func hasNativeLibraries(modules []*bundle.Module) bool {
	for _, m := range modules {
		for _, e := range m.Entries {
			if strings.HasPrefix(e.Path, "lib/") {
				return true
			}
		}
	}
	return false
}

// hasDexFiles reports whether any module ships dex code.
func hasDexFiles(modules []*bundle.Module) bool {
	for _, m := range modules {
		if len(m.DexEntries()) > 0 {
			return true
		}
	}
	return false
}
