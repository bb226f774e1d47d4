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

package device

import (
	"fmt"
	"math"
	"sort"

	"android/bundletool/bundleproto"
)

// Targeting matchers. A nil targeting always matches: an APK that does not
// discriminate on a dimension serves every device.

type abiTargetingMatcher struct {
	*bundleproto.AbiTargeting
}

func (m abiTargetingMatcher) matches(spec *Spec) bool {
	if m.AbiTargeting == nil {
		return true
	}
	abis := spec.abis()
	// Find the targeted value the device likes best.
	abiIdx := math.MaxInt32
	for _, v := range m.Value {
		if i, ok := abis[v.Alias]; ok && i < abiIdx {
			abiIdx = i
		}
	}
	if abiIdx == math.MaxInt32 {
		return false
	}
	// If any alternative ranks higher on this device, that sibling APK is
	// the better match and this one must be skipped.
	for _, a := range m.Alternatives {
		if i, ok := abis[a.Alias]; ok && i < abiIdx {
			return false
		}
	}
	return true
}

type multiAbiMatcher struct {
	*bundleproto.MultiAbiTargeting
}

func (m multiAbiMatcher) matches(spec *Spec, allAbisMustMatch bool) bool {
	if m.MultiAbiTargeting == nil {
		return true
	}
	abis := spec.abis()
	viable := func(ma bundleproto.MultiAbi) bool {
		supported := 0
		for _, abi := range ma.Abis {
			if _, ok := abis[abi.Alias]; ok {
				supported++
			}
		}
		if supported == 0 {
			return false
		}
		if !allAbisMustMatch {
			return true
		}
		return supported == len(ma.Abis)
	}
	anyViable := false
	for _, ma := range m.Value {
		if viable(ma) {
			anyViable = true
			break
		}
	}
	if !anyViable {
		return false
	}
	for _, alt := range m.Alternatives {
		if !viable(alt) {
			continue
		}
		for _, ma := range m.Value {
			if compareMultiAbi(ma, alt) < 0 {
				return false
			}
		}
	}
	return true
}

// compareMultiAbi ranks ABI sets by their highest-priority members. The
// ordering must stay identical to the packaging side's alternatives order.
func compareMultiAbi(a, b bundleproto.MultiAbi) int {
	pa := append([]bundleproto.Abi(nil), a.Abis...)
	pb := append([]bundleproto.Abi(nil), b.Abis...)
	byPriorityDesc := func(s []bundleproto.Abi) func(i, j int) bool {
		return func(i, j int) bool {
			return bundleproto.AbiPriority[s[i].Alias] > bundleproto.AbiPriority[s[j].Alias]
		}
	}
	sort.Slice(pa, byPriorityDesc(pa))
	sort.Slice(pb, byPriorityDesc(pb))
	n := len(pa)
	if len(pb) < n {
		n = len(pb)
	}
	for i := 0; i < n; i++ {
		if d := bundleproto.AbiPriority[pa[i].Alias] - bundleproto.AbiPriority[pb[i].Alias]; d != 0 {
			return d
		}
	}
	return len(pa) - len(pb)
}

type screenDensityMatcher struct {
	*bundleproto.ScreenDensityTargeting
}

func (m screenDensityMatcher) matches(spec *Spec) bool {
	if m.ScreenDensityTargeting == nil {
		return true
	}
	if spec.ScreenDensity == 0 {
		return true
	}
	best := bestDensityBucket(spec.ScreenDensity)
	for _, v := range m.Value {
		if densityOf(v) == best {
			return true
		}
	}
	return false
}

// bestDensityBucket snaps a raw dpi to the serving bucket.
func bestDensityBucket(dpi int32) bundleproto.DensityAlias {
	best := bundleproto.DensityUnspecified
	bestDelta := int32(math.MaxInt32)
	for alias, bucketDpi := range bundleproto.DensityDpi {
		delta := bucketDpi - dpi
		if delta < 0 {
			delta = -delta
		}
		if delta < bestDelta || (delta == bestDelta && alias > best) {
			best, bestDelta = alias, delta
		}
	}
	return best
}

func densityOf(d bundleproto.ScreenDensity) bundleproto.DensityAlias {
	if d.DensityDpi > 0 {
		return bestDensityBucket(d.DensityDpi)
	}
	return d.DensityAlias
}

type languageMatcher struct {
	*bundleproto.LanguageTargeting
}

func (m languageMatcher) matches(spec *Spec) bool {
	if m.LanguageTargeting == nil {
		return true
	}
	for _, lang := range m.Value {
		for _, locale := range spec.SupportedLocales {
			if lang == locale || (len(locale) > 2 && locale[:2] == lang) {
				return true
			}
		}
	}
	return false
}

type sdkVersionMatcher struct {
	*bundleproto.SdkVersionTargeting
}

func (m sdkVersionMatcher) matches(spec *Spec) bool {
	if m.SdkVersionTargeting == nil || len(m.Value) == 0 {
		return true
	}
	// Only the value's minimum is inspected; a better-matching alternative
	// belongs to a different variant that is matched separately.
	min := m.Value[0].Min
	if min == nil {
		return true
	}
	if *min > spec.SdkVersion {
		return false
	}
	// Prefer the highest matching minimum among value and alternatives.
	for _, alt := range m.Alternatives {
		if alt.Min != nil && *alt.Min <= spec.SdkVersion && *alt.Min > *min {
			return false
		}
	}
	return true
}

type tcfMatcher struct {
	*bundleproto.TextureCompressionFormatTargeting
}

func (m tcfMatcher) matches(spec *Spec) bool {
	if m.TextureCompressionFormatTargeting == nil {
		return true
	}
	supported := map[bundleproto.TextureCompressionFormatAlias]bool{}
	for _, ext := range spec.GlExtensions {
		if alias, ok := tcfByGlExtension[ext]; ok {
			supported[alias] = true
		}
	}
	for _, v := range m.Value {
		// A suffix-less fallback shard (unspecified format) serves any
		// device that matches no concrete format.
		if v.Alias == bundleproto.TcfUnspecified {
			continue
		}
		if supported[v.Alias] {
			return true
		}
	}
	// Fallback: match only if no alternative serves the device.
	for _, v := range m.Value {
		if v.Alias != bundleproto.TcfUnspecified {
			continue
		}
		for _, alt := range m.Alternatives {
			if supported[alt.Alias] {
				return false
			}
		}
		return true
	}
	return false
}

var tcfByGlExtension = map[string]bundleproto.TextureCompressionFormatAlias{
	"GL_OES_compressed_ETC1_RGB8_texture": bundleproto.TcfEtc1Rgb8,
	"GL_KHR_texture_compression_astc_ldr": bundleproto.TcfAstc,
	"GL_AMD_compressed_ATC_texture":       bundleproto.TcfAtc,
	"GL_EXT_texture_compression_dxt1":     bundleproto.TcfDxt1,
	"GL_EXT_texture_compression_s3tc":     bundleproto.TcfS3tc,
	"GL_IMG_texture_compression_pvrtc":    bundleproto.TcfPvrtc,
	"GL_EXT_texture_compression_latc":     bundleproto.TcfLatc,
}

type deviceTierMatcher struct {
	*bundleproto.DeviceTierTargeting
}

func (m deviceTierMatcher) matches(spec *Spec) bool {
	if m.DeviceTierTargeting == nil {
		return true
	}
	for _, v := range m.Value {
		if v == spec.DeviceTier {
			return true
		}
	}
	return false
}

type apkTargetingMatcher struct {
	*bundleproto.ApkTargeting
}

func (m apkTargetingMatcher) matches(spec *Spec, allAbisMustMatch bool) bool {
	return m.ApkTargeting == nil ||
		(abiTargetingMatcher{m.Abi}.matches(spec) &&
			languageMatcher{m.Language}.matches(spec) &&
			screenDensityMatcher{m.ScreenDensity}.matches(spec) &&
			sdkVersionMatcher{m.SdkVersion}.matches(spec) &&
			tcfMatcher{m.TextureCompressionFormat}.matches(spec) &&
			deviceTierMatcher{m.DeviceTier}.matches(spec) &&
			multiAbiMatcher{m.MultiAbi}.matches(spec, allAbisMustMatch))
}

type variantTargetingMatcher struct {
	*bundleproto.VariantTargeting
}

func (m variantTargetingMatcher) matches(spec *Spec, allAbisMustMatch bool) bool {
	if m.VariantTargeting == nil {
		return true
	}
	if m.SdkRuntime != nil && m.SdkRuntime.RequiresSdkRuntime && !spec.SdkRuntime {
		return false
	}
	return sdkVersionMatcher{m.SdkVersion}.matches(spec) &&
		abiTargetingMatcher{m.Abi}.matches(spec) &&
		multiAbiMatcher{m.MultiAbi}.matches(spec, allAbisMustMatch) &&
		screenDensityMatcher{m.ScreenDensity}.matches(spec) &&
		tcfMatcher{m.TextureCompressionFormat}.matches(spec)
}

// MatchesModuleTargeting reports whether a conditional module's conditions
// hold for the device.
func MatchesModuleTargeting(spec *Spec, t *bundleproto.ModuleTargeting) bool {
	if t == nil {
		return true
	}
	if !(sdkVersionMatcher{t.SdkVersion}).matches(spec) {
		return false
	}
	for _, f := range t.DeviceFeature {
		if !spec.hasFeature(f.RequiredFeature.FeatureName) {
			return false
		}
	}
	if t.DeviceGroup != nil {
		found := false
		for _, g := range t.DeviceGroup.Value {
			if spec.inGroup(g) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if t.UserCountries != nil && spec.CountrySet != "" {
		listed := false
		for _, c := range t.UserCountries.CountryCodes {
			if c == spec.CountrySet {
				listed = true
				break
			}
		}
		if listed == t.UserCountries.Exclude {
			return false
		}
	}
	return true
}

// MatchedApk is one APK a device would receive.
type MatchedApk struct {
	Path       string
	ModuleName string
}

// MatchApks selects every APK entry of the TOC that the device would
// install. Variants are tried in TOC order with strict multi-ABI matching
// first; if nothing matches, a looser pass accepts partially supported ABI
// sets.
func MatchApks(toc *bundleproto.BuildApksResult, spec *Spec) ([]MatchedApk, error) {
	pass := func(allAbisMustMatch bool) []MatchedApk {
		var out []MatchedApk
		// Later variants target newer SDKs; walk from the end so the best
		// variant for the device wins.
		for i := len(toc.Variants) - 1; i >= 0; i-- {
			variant := toc.Variants[i]
			if !(variantTargetingMatcher{variant.Targeting}.matches(spec, allAbisMustMatch)) {
				continue
			}
			for _, set := range variant.ApkSets {
				meta := set.ModuleMetadata
				if meta != nil && meta.DeliveryType != bundleproto.DeliveryInstallTime {
					continue
				}
				if meta != nil && meta.IsInstant {
					continue
				}
				if meta != nil && !MatchesModuleTargeting(spec, meta.Targeting) {
					continue
				}
				for _, desc := range set.ApkDescriptions {
					if (apkTargetingMatcher{desc.Targeting}).matches(spec, allAbisMustMatch) {
						name := ""
						if meta != nil {
							name = meta.Name
						}
						out = append(out, MatchedApk{Path: desc.Path, ModuleName: name})
					}
				}
			}
			if len(out) > 0 {
				return out
			}
		}
		return out
	}
	matched := pass(true)
	if len(matched) == 0 {
		matched = pass(false)
	}
	if len(matched) == 0 {
		return nil, fmt.Errorf("no APKs in the set match the device (sdk %d, abis %v)",
			spec.SdkVersion, spec.SupportedAbis)
	}
	return matched, nil
}
