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

// Package bundleproto holds the targeting and table-of-contents messages of
// an APK set. The messages mirror the bundle tool wire schema; they are
// encoded and decoded with the protobuf wire package directly, so no
// generated bindings need to be checked in.
package bundleproto

import (
	"fmt"
	"sort"
)

// AbiAlias identifies a native code architecture.
type AbiAlias int32

const (
	AbiUnspecified AbiAlias = 0
	AbiArmeabi     AbiAlias = 1
	AbiArmeabiV7a  AbiAlias = 2
	AbiArm64V8a    AbiAlias = 3
	AbiX86         AbiAlias = 4
	AbiX86_64      AbiAlias = 5
	AbiMips        AbiAlias = 6
	AbiMips64      AbiAlias = 7
	AbiRiscv64     AbiAlias = 8
)

var abiAliasName = map[AbiAlias]string{
	AbiUnspecified: "UNSPECIFIED_CPU_ARCHITECTURE",
	AbiArmeabi:     "ARMEABI",
	AbiArmeabiV7a:  "ARMEABI_V7A",
	AbiArm64V8a:    "ARM64_V8A",
	AbiX86:         "X86",
	AbiX86_64:      "X86_64",
	AbiMips:        "MIPS",
	AbiMips64:      "MIPS64",
	AbiRiscv64:     "RISCV64",
}

// abiDirName maps an alias to its lib/ directory name inside a module.
var abiDirName = map[AbiAlias]string{
	AbiArmeabi:    "armeabi",
	AbiArmeabiV7a: "armeabi-v7a",
	AbiArm64V8a:   "arm64-v8a",
	AbiX86:        "x86",
	AbiX86_64:     "x86_64",
	AbiMips:       "mips",
	AbiMips64:     "mips64",
	AbiRiscv64:    "riscv64",
}

// AbiPriority orders ABIs the way the platform prefers them when several
// are available. A higher number wins. The order must be kept identical to
// the device-side extraction tools.
var AbiPriority = map[AbiAlias]int{
	AbiArmeabi:    1,
	AbiArmeabiV7a: 2,
	AbiArm64V8a:   3,
	AbiX86:        4,
	AbiX86_64:     5,
	AbiMips:       6,
	AbiMips64:     7,
	AbiRiscv64:    8,
}

func (a AbiAlias) String() string {
	if s, ok := abiAliasName[a]; ok {
		return s
	}
	return fmt.Sprintf("ABI(%d)", int32(a))
}

// DirName returns the native library directory name for the alias, e.g.
// "arm64-v8a" for AbiArm64V8a.
func (a AbiAlias) DirName() string {
	return abiDirName[a]
}

// AbiAliasByName resolves a protobuf enum name such as "ARM64_V8A".
func AbiAliasByName(name string) (AbiAlias, bool) {
	for a, s := range abiAliasName {
		if s == name {
			return a, true
		}
	}
	return AbiUnspecified, false
}

// AbiAliasByDirName resolves a lib/ directory name such as "arm64-v8a".
func AbiAliasByDirName(dir string) (AbiAlias, bool) {
	for a, s := range abiDirName {
		if s == dir {
			return a, true
		}
	}
	return AbiUnspecified, false
}

// Abi wraps an AbiAlias the way the wire schema does.
type Abi struct {
	Alias AbiAlias
}

// MultiAbi is an ordered set of ABIs that must all be supported by a device.
type MultiAbi struct {
	Abis []Abi
}

// DensityAlias names a screen density bucket.
type DensityAlias int32

const (
	DensityUnspecified DensityAlias = 0
	DensityNodpi       DensityAlias = 1
	DensityLdpi        DensityAlias = 2
	DensityMdpi        DensityAlias = 3
	DensityTvdpi       DensityAlias = 4
	DensityHdpi        DensityAlias = 5
	DensityXhdpi       DensityAlias = 6
	DensityXxhdpi      DensityAlias = 7
	DensityXxxhdpi     DensityAlias = 8
)

var densityAliasName = map[DensityAlias]string{
	DensityUnspecified: "DENSITY_UNSPECIFIED",
	DensityNodpi:       "NODPI",
	DensityLdpi:        "LDPI",
	DensityMdpi:        "MDPI",
	DensityTvdpi:       "TVDPI",
	DensityHdpi:        "HDPI",
	DensityXhdpi:       "XHDPI",
	DensityXxhdpi:      "XXHDPI",
	DensityXxxhdpi:     "XXXHDPI",
}

// densityQualifier maps resource directory qualifiers to density buckets.
var densityQualifier = map[string]DensityAlias{
	"nodpi":   DensityNodpi,
	"ldpi":    DensityLdpi,
	"mdpi":    DensityMdpi,
	"tvdpi":   DensityTvdpi,
	"hdpi":    DensityHdpi,
	"xhdpi":   DensityXhdpi,
	"xxhdpi":  DensityXxhdpi,
	"xxxhdpi": DensityXxxhdpi,
}

func (d DensityAlias) String() string {
	if s, ok := densityAliasName[d]; ok {
		return s
	}
	return fmt.Sprintf("DENSITY(%d)", int32(d))
}

// DensityAliasByQualifier resolves a resource qualifier such as "xhdpi".
func DensityAliasByQualifier(q string) (DensityAlias, bool) {
	d, ok := densityQualifier[q]
	return d, ok
}

// DensityDpi returns the nominal dpi of a density bucket, used for shard
// file naming and device matching.
var DensityDpi = map[DensityAlias]int32{
	DensityLdpi:    120,
	DensityMdpi:    160,
	DensityTvdpi:   213,
	DensityHdpi:    240,
	DensityXhdpi:   320,
	DensityXxhdpi:  480,
	DensityXxxhdpi: 640,
}

// ScreenDensity carries either a named bucket or a raw dpi value.
type ScreenDensity struct {
	DensityAlias DensityAlias
	// DensityDpi is used instead of the alias when > 0.
	DensityDpi int32
}

// TextureCompressionFormatAlias names a GPU texture format family.
type TextureCompressionFormatAlias int32

const (
	TcfUnspecified TextureCompressionFormatAlias = 0
	TcfEtc1Rgb8    TextureCompressionFormatAlias = 1
	TcfPaletted    TextureCompressionFormatAlias = 2
	TcfThreeDc     TextureCompressionFormatAlias = 3
	TcfAtc         TextureCompressionFormatAlias = 4
	TcfLatc        TextureCompressionFormatAlias = 5
	TcfDxt1        TextureCompressionFormatAlias = 6
	TcfS3tc        TextureCompressionFormatAlias = 7
	TcfPvrtc       TextureCompressionFormatAlias = 8
	TcfAstc        TextureCompressionFormatAlias = 9
	TcfEtc2        TextureCompressionFormatAlias = 10
)

// tcfSuffixName maps the #tcf_ directory suffix tokens to aliases. The
// suffix tokens are what module authors write in targeted asset directory
// names, e.g. assets/textures#tcf_etc1.
var tcfSuffixName = map[string]TextureCompressionFormatAlias{
	"etc1":     TcfEtc1Rgb8,
	"paletted": TcfPaletted,
	"3dc":      TcfThreeDc,
	"atc":      TcfAtc,
	"latc":     TcfLatc,
	"dxt1":     TcfDxt1,
	"s3tc":     TcfS3tc,
	"pvrtc":    TcfPvrtc,
	"astc":     TcfAstc,
	"etc2":     TcfEtc2,
}

func (t TextureCompressionFormatAlias) String() string {
	for s, a := range tcfSuffixName {
		if a == t {
			return s
		}
	}
	return fmt.Sprintf("TCF(%d)", int32(t))
}

// TcfAliasBySuffix resolves a #tcf_ suffix token such as "etc1".
func TcfAliasBySuffix(s string) (TextureCompressionFormatAlias, bool) {
	a, ok := tcfSuffixName[s]
	return a, ok
}

// TextureCompressionFormat wraps an alias the way the wire schema does.
type TextureCompressionFormat struct {
	Alias TextureCompressionFormatAlias
}

// SdkVersion is an SDK version range with an optional inclusive minimum.
type SdkVersion struct {
	Min *int32
}

// SdkVersionFrom builds an SdkVersion with the given minimum.
func SdkVersionFrom(min int32) SdkVersion {
	return SdkVersion{Min: &min}
}

// AbiTargeting targets one or more ABIs with the rest of the observed
// domain recorded as alternatives.
type AbiTargeting struct {
	Value        []Abi
	Alternatives []Abi
}

// MultiAbiTargeting targets ABI sets for merged artifacts.
type MultiAbiTargeting struct {
	Value        []MultiAbi
	Alternatives []MultiAbi
}

// ScreenDensityTargeting targets density buckets.
type ScreenDensityTargeting struct {
	Value        []ScreenDensity
	Alternatives []ScreenDensity
}

// LanguageTargeting targets BCP-47 language codes.
type LanguageTargeting struct {
	Value        []string
	Alternatives []string
}

// TextureCompressionFormatTargeting targets texture format families.
type TextureCompressionFormatTargeting struct {
	Value        []TextureCompressionFormat
	Alternatives []TextureCompressionFormat
}

// SdkVersionTargeting targets an SDK version range. Value holds at most one
// entry; Alternatives list the minimums of every sibling variant.
type SdkVersionTargeting struct {
	Value        []SdkVersion
	Alternatives []SdkVersion
}

// DeviceTierTargeting targets the device tier assigned by the distribution
// channel. Tiers are small integers; tier 0 is the implicit default.
type DeviceTierTargeting struct {
	Value        []int32
	Alternatives []int32
}

// SdkRuntimeTargeting records whether a variant requires the SDK runtime.
type SdkRuntimeTargeting struct {
	RequiresSdkRuntime bool
}

// DeviceFeature is a <uses-feature> style requirement.
type DeviceFeature struct {
	FeatureName    string
	FeatureVersion int32
}

// DeviceFeatureTargeting conditions a module on a device feature.
type DeviceFeatureTargeting struct {
	RequiredFeature DeviceFeature
}

// UserCountriesTargeting conditions a module on the user's country.
type UserCountriesTargeting struct {
	CountryCodes []string
	Exclude      bool
}

// DeviceGroupTargeting conditions a module on named device groups.
type DeviceGroupTargeting struct {
	Value []string
}

// ModuleTargeting is the install-time condition set of a conditional module.
type ModuleTargeting struct {
	SdkVersion    *SdkVersionTargeting
	DeviceFeature []DeviceFeatureTargeting
	UserCountries *UserCountriesTargeting
	DeviceGroup   *DeviceGroupTargeting
}

// ApkTargeting is the full targeting tuple attached to one generated APK.
// A nil slot means the APK does not discriminate on that dimension.
type ApkTargeting struct {
	Abi                      *AbiTargeting
	Language                 *LanguageTargeting
	ScreenDensity            *ScreenDensityTargeting
	SdkVersion               *SdkVersionTargeting
	TextureCompressionFormat *TextureCompressionFormatTargeting
	MultiAbi                 *MultiAbiTargeting
	DeviceTier               *DeviceTierTargeting
}

// VariantTargeting is the coarse targeting tuple shared by every APK of one
// variant.
type VariantTargeting struct {
	SdkVersion               *SdkVersionTargeting
	Abi                      *AbiTargeting
	ScreenDensity            *ScreenDensityTargeting
	MultiAbi                 *MultiAbiTargeting
	TextureCompressionFormat *TextureCompressionFormatTargeting
	SdkRuntime               *SdkRuntimeTargeting
}

// AssetsDirectoryTargeting is the targeting parsed from one targeted
// directory name inside a module.
type AssetsDirectoryTargeting struct {
	Abi                      *AbiTargeting
	TextureCompressionFormat *TextureCompressionFormatTargeting
	Language                 *LanguageTargeting
	DeviceTier               *DeviceTierTargeting
}

// SortAbis orders ABIs by platform priority, lowest first, so that
// marshaling is deterministic.
func SortAbis(abis []Abi) {
	sort.SliceStable(abis, func(i, j int) bool {
		return AbiPriority[abis[i].Alias] < AbiPriority[abis[j].Alias]
	})
}

// SortMultiAbis orders ABI sets by their highest-priority member, then by
// size, for deterministic marshaling.
func SortMultiAbis(mas []MultiAbi) {
	for _, ma := range mas {
		SortAbis(ma.Abis)
	}
	sort.SliceStable(mas, func(i, j int) bool {
		return compareMultiAbi(mas[i], mas[j]) < 0
	})
}

func compareMultiAbi(a, b MultiAbi) int {
	n := len(a.Abis)
	if len(b.Abis) < n {
		n = len(b.Abis)
	}
	for i := 0; i < n; i++ {
		if d := AbiPriority[a.Abis[i].Alias] - AbiPriority[b.Abis[i].Alias]; d != 0 {
			return d
		}
	}
	return len(a.Abis) - len(b.Abis)
}

// SortDensities orders density buckets ascending by enum value.
func SortDensities(ds []ScreenDensity) {
	sort.SliceStable(ds, func(i, j int) bool {
		if ds[i].DensityAlias != ds[j].DensityAlias {
			return ds[i].DensityAlias < ds[j].DensityAlias
		}
		return ds[i].DensityDpi < ds[j].DensityDpi
	})
}

// SortTcfs orders texture formats ascending by enum value.
func SortTcfs(ts []TextureCompressionFormat) {
	sort.SliceStable(ts, func(i, j int) bool { return ts[i].Alias < ts[j].Alias })
}

// SortSdkVersions orders SDK ranges ascending by minimum; a nil minimum
// sorts first.
func SortSdkVersions(vs []SdkVersion) {
	sort.SliceStable(vs, func(i, j int) bool { return sdkMin(vs[i]) < sdkMin(vs[j]) })
}

func sdkMin(v SdkVersion) int32 {
	if v.Min == nil {
		return 0
	}
	return *v.Min
}

// Normalize sorts every repeated field so that two logically equal
// targetings marshal to identical bytes.
func (t *ApkTargeting) Normalize() {
	if t == nil {
		return
	}
	if t.Abi != nil {
		SortAbis(t.Abi.Value)
		SortAbis(t.Abi.Alternatives)
	}
	if t.Language != nil {
		sort.Strings(t.Language.Value)
		sort.Strings(t.Language.Alternatives)
	}
	if t.ScreenDensity != nil {
		SortDensities(t.ScreenDensity.Value)
		SortDensities(t.ScreenDensity.Alternatives)
	}
	if t.SdkVersion != nil {
		SortSdkVersions(t.SdkVersion.Value)
		SortSdkVersions(t.SdkVersion.Alternatives)
	}
	if t.TextureCompressionFormat != nil {
		SortTcfs(t.TextureCompressionFormat.Value)
		SortTcfs(t.TextureCompressionFormat.Alternatives)
	}
	if t.MultiAbi != nil {
		SortMultiAbis(t.MultiAbi.Value)
		SortMultiAbis(t.MultiAbi.Alternatives)
	}
	if t.DeviceTier != nil {
		sortInt32s(t.DeviceTier.Value)
		sortInt32s(t.DeviceTier.Alternatives)
	}
}

// Normalize sorts every repeated field for deterministic marshaling.
func (t *VariantTargeting) Normalize() {
	if t == nil {
		return
	}
	if t.SdkVersion != nil {
		SortSdkVersions(t.SdkVersion.Value)
		SortSdkVersions(t.SdkVersion.Alternatives)
	}
	if t.Abi != nil {
		SortAbis(t.Abi.Value)
		SortAbis(t.Abi.Alternatives)
	}
	if t.ScreenDensity != nil {
		SortDensities(t.ScreenDensity.Value)
		SortDensities(t.ScreenDensity.Alternatives)
	}
	if t.MultiAbi != nil {
		SortMultiAbis(t.MultiAbi.Value)
		SortMultiAbis(t.MultiAbi.Alternatives)
	}
	if t.TextureCompressionFormat != nil {
		SortTcfs(t.TextureCompressionFormat.Value)
		SortTcfs(t.TextureCompressionFormat.Alternatives)
	}
}

func sortInt32s(v []int32) {
	sort.Slice(v, func(i, j int) bool { return v[i] < v[j] })
}

// Fingerprint returns a stable key for targeting equality checks. Two
// targetings are equal iff their normalized wire encodings are equal.
func (t *ApkTargeting) Fingerprint() string {
	if t == nil {
		return ""
	}
	t.Normalize()
	return string(t.Marshal(nil))
}

// Fingerprint returns a stable key for variant deduplication.
func (t *VariantTargeting) Fingerprint() string {
	if t == nil {
		return ""
	}
	t.Normalize()
	return string(t.Marshal(nil))
}
