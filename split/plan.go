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
	"android/bundletool/bundle"
	"android/bundletool/bundleproto"
	"android/bundletool/dex"
)

// Options steers plan generation.
type Options struct {
	Mode bundle.BuildMode
	// Universal asks for one unconditioned APK instead of sharded
	// standalones and splits.
	Universal bool
	// System asks for a fused system-partition APK.
	System bool
	// VariantOffset is the number assigned to the first generated variant.
	VariantOffset uint32

	MainDexClasses []string
	DexCompiler    dex.Compiler
}

// PlannedApk is one build unit: the archive's TOC description plus the
// files that go into it. Units are mutually independent and may be built in
// any order.
type PlannedApk struct {
	Description *bundleproto.ApkDescription
	Entries     []bundle.Entry
	// Properties are the owning variant's packaging optimizations; nil for
	// asset slices.
	Properties *bundleproto.VariantProperties
}

// Plan is the fully deterministic output layout computed before any archive
// is built: every variant, every APK description and every build unit, in
// final order. Concurrency during building can never change what the plan
// contains.
type Plan struct {
	Variants                []*bundleproto.Variant
	AssetSliceSets          []*bundleproto.AssetSliceSet
	DefaultTargetingValues  []*bundleproto.DefaultTargetingValue
	PermanentlyFusedModules []string

	Apks []*PlannedApk
}

// GeneratePlan runs discovery, stripping, splitting and variant generation
// for one resolved bundle and returns the complete build plan.
func GeneratePlan(b *bundle.AppBundle, res *bundle.Resolution, opts Options) (*Plan, error) {
	var feature, asset []*bundle.Module
	for _, m := range res.Packaged {
		if m.Manifest.IsAssetModule {
			asset = append(asset, m)
		} else {
			feature = append(feature, m)
		}
	}

	domains, err := Discover(res.Packaged, b.Config.Dimensions())
	if err != nil {
		return nil, err
	}
	stripper := NewStripper(&b.Config)
	names := newNameAllocator()
	p := &Plan{DefaultTargetingValues: stripper.DefaultTargetingValues()}

	switch opts.Mode {
	case bundle.ModeArchive:
		if err := generateFusedSingle(p, b, res, stripper, names, opts, fusedArchive); err != nil {
			return nil, err
		}

	case bundle.ModeAssetsOnly:
		if err := generateAssetSlices(p, asset, &b.Config, domains, stripper, names); err != nil {
			return nil, err
		}

	case bundle.ModeInstant:
		splits, err := splitAll(feature, &b.Config, domains, stripper)
		if err != nil {
			return nil, err
		}
		seeds := []variantSeed{{minSdk: maxInt32(b.MinSdkVersion(), sdkNativeMultidex)}}
		if err := generateSplitVariants(p, feature, splits, seeds, true, names); err != nil {
			return nil, err
		}

	default:
		switch {
		case opts.Universal:
			if err := generateFusedSingle(p, b, res, stripper, names, opts, fusedUniversal); err != nil {
				return nil, err
			}
		case opts.System:
			if err := generateFusedSingle(p, b, res, stripper, names, opts, fusedSystem); err != nil {
				return nil, err
			}
		default:
			seeds := sdkVariantSeeds(b, hasNativeLibraries(feature), hasDexFiles(feature))
			boundaries := make([]int32, len(seeds))
			for i, s := range seeds {
				boundaries[i] = s.minSdk
			}
			// Standalone shards serve devices older than the split floor.
			if b.MinSdkVersion() < sdkNativeMultidex {
				if err := generateStandaloneVariants(p, b, res, stripper, boundaries, names, opts); err != nil {
					return nil, err
				}
			}
			splits, err := splitAll(feature, &b.Config, domains, stripper)
			if err != nil {
				return nil, err
			}
			if err := generateSplitVariants(p, feature, splits, seeds, false, names); err != nil {
				return nil, err
			}
			if err := generateAssetSlices(p, asset, &b.Config, domains, stripper, names); err != nil {
				return nil, err
			}
			for _, name := range res.FusedNames() {
				if name != bundle.BaseModuleName {
					p.PermanentlyFusedModules = append(p.PermanentlyFusedModules, name)
				}
			}
		}
	}

	for i, v := range p.Variants {
		v.VariantNumber = opts.VariantOffset + uint32(i)
	}
	return p, nil
}

// splitAll splits every module once; variants re-emit the shards.
func splitAll(modules []*bundle.Module, cfg *bundle.Config, domains *Domains, stripper *Stripper) (map[string][]*ModuleSplit, error) {
	out := map[string][]*ModuleSplit{}
	for _, m := range modules {
		shards, err := SplitModule(m, cfg, domains, stripper)
		if err != nil {
			return nil, err
		}
		out[m.Name] = shards
	}
	return out, nil
}

func maxInt32(a, b int32) int32 {
	if a > b {
		return a
	}
	return b
}
