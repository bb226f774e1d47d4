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
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"android/bundletool/bundleproto"
	"android/bundletool/device"
)

func boolPtr(v bool) *bool { return &v }

func testModule(name string, manifest Manifest, entryPaths ...string) *Module {
	m := &Module{Name: name, Manifest: manifest}
	for _, p := range entryPaths {
		m.Entries = append(m.Entries, Entry{Path: p, Content: []byte(p)})
	}
	return m
}

func testBundle(t *testing.T, modules ...*Module) *AppBundle {
	t.Helper()
	b, err := NewAppBundle(modules, Config{Version: "1.15.6"})
	require.NoError(t, err)
	return b
}

func moduleNames(modules []*Module) []string {
	var names []string
	for _, m := range modules {
		names = append(names, m.Name)
	}
	return names
}

func TestResolveModulesFusing(t *testing.T) {
	b := testBundle(t,
		testModule("base", Manifest{PackageName: "com.example", MinSdkVersion: 21}, "assets/base.txt"),
		testModule("fused", Manifest{Delivery: DeliveryOnDemand, FusingIncluded: boolPtr(true)}, "assets/fused.txt"),
		testModule("not_fused", Manifest{Delivery: DeliveryOnDemand, FusingIncluded: boolPtr(false)}, "assets/not_fused.txt"),
	)

	res, err := ResolveModules(b, ModePersistent, []string{AllModulesShortcut}, nil)
	require.NoError(t, err)
	if diff := cmp.Diff([]string{"base", "fused", "not_fused"}, moduleNames(res.Packaged)); diff != "" {
		t.Errorf("packaged modules (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"base", "fused"}, res.FusedNames()); diff != "" {
		t.Errorf("fused modules (-want +got):\n%s", diff)
	}
}

func TestResolveModulesInstallTimeFusing(t *testing.T) {
	b := testBundle(t,
		testModule("base", Manifest{}),
		testModule("always", Manifest{Delivery: DeliveryInstallTime, FusingIncluded: boolPtr(true)}),
		testModule("excluded", Manifest{Delivery: DeliveryInstallTime, FusingIncluded: boolPtr(false)}),
	)
	res, err := ResolveModules(b, ModePersistent, nil, nil)
	require.NoError(t, err)
	if diff := cmp.Diff([]string{"base", "always"}, res.FusedNames()); diff != "" {
		t.Errorf("fused modules (-want +got):\n%s", diff)
	}
}

func TestResolveModulesConditional(t *testing.T) {
	vrModule := testModule("vr", Manifest{
		Delivery:       DeliveryConditional,
		FusingIncluded: boolPtr(true),
		Conditions: Conditions{
			DeviceFeatures: []bundleproto.DeviceFeature{{FeatureName: "android.hardware.vr.headtracking"}},
		},
	})
	b := testBundle(t, testModule("base", Manifest{}), vrModule)

	// Without a device spec the conditional module is not fused unless
	// requested, but it is still packaged.
	res, err := ResolveModules(b, ModePersistent, nil, nil)
	require.NoError(t, err)
	if diff := cmp.Diff([]string{"base"}, res.FusedNames()); diff != "" {
		t.Errorf("fused without device spec (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"base", "vr"}, moduleNames(res.Packaged)); diff != "" {
		t.Errorf("packaged without device spec (-want +got):\n%s", diff)
	}

	vrDevice := &device.Spec{
		SdkVersion:     28,
		SupportedAbis:  []string{"ARM64_V8A"},
		DeviceFeatures: []string{"android.hardware.vr.headtracking"},
	}
	res, err = ResolveModules(b, ModePersistent, nil, vrDevice)
	require.NoError(t, err)
	if diff := cmp.Diff([]string{"base", "vr"}, res.FusedNames()); diff != "" {
		t.Errorf("fused with matching device spec (-want +got):\n%s", diff)
	}

	plainDevice := &device.Spec{SdkVersion: 28, SupportedAbis: []string{"ARM64_V8A"}}
	res, err = ResolveModules(b, ModePersistent, nil, plainDevice)
	require.NoError(t, err)
	if diff := cmp.Diff([]string{"base"}, res.FusedNames()); diff != "" {
		t.Errorf("fused with non-matching device spec (-want +got):\n%s", diff)
	}
}

// An SDK range condition bounds matching on both ends: the maximum becomes
// an alternative right above the range, so newer devices skip the module.
func TestConditionsSdkRange(t *testing.T) {
	int32Ptr := func(v int32) *int32 { return &v }
	c := Conditions{MinSdkVersion: int32Ptr(23), MaxSdkVersion: int32Ptr(27)}

	targeting := c.Targeting()
	require.NotNil(t, targeting.SdkVersion)
	require.Equal(t, int32(23), *targeting.SdkVersion.Value[0].Min)
	require.Len(t, targeting.SdkVersion.Alternatives, 1)
	require.Equal(t, int32(28), *targeting.SdkVersion.Alternatives[0].Min)

	spec := func(sdk int32) *device.Spec { return &device.Spec{SdkVersion: sdk} }
	require.False(t, device.MatchesModuleTargeting(spec(21), targeting))
	require.True(t, device.MatchesModuleTargeting(spec(25), targeting))
	require.True(t, device.MatchesModuleTargeting(spec(27), targeting))
	require.False(t, device.MatchesModuleTargeting(spec(28), targeting))

	// A maximum alone floors the value at 1.
	maxOnly := (&Conditions{MaxSdkVersion: int32Ptr(25)}).Targeting()
	require.Equal(t, int32(1), *maxOnly.SdkVersion.Value[0].Min)
	require.True(t, device.MatchesModuleTargeting(spec(24), maxOnly))
	require.False(t, device.MatchesModuleTargeting(spec(26), maxOnly))
}

func TestResolveModulesClosure(t *testing.T) {
	b := testBundle(t,
		testModule("base", Manifest{}),
		testModule("feature1", Manifest{Delivery: DeliveryOnDemand}),
		testModule("feature2", Manifest{Delivery: DeliveryOnDemand, UsesSplits: []string{"feature1"}}),
		testModule("feature3", Manifest{Delivery: DeliveryOnDemand}),
	)
	res, err := ResolveModules(b, ModePersistent, []string{"feature2"}, nil)
	require.NoError(t, err)
	if diff := cmp.Diff([]string{"base", "feature1", "feature2"}, moduleNames(res.Packaged)); diff != "" {
		t.Errorf("closure (-want +got):\n%s", diff)
	}
}

func TestResolveModulesUnknownRequest(t *testing.T) {
	b := testBundle(t, testModule("base", Manifest{}))
	_, err := ResolveModules(b, ModePersistent, []string{"nope"}, nil)
	var cmdErr *InvalidCommandError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("err = %v, want InvalidCommandError", err)
	}
}

func TestDependencyCycle(t *testing.T) {
	_, err := NewAppBundle([]*Module{
		testModule("base", Manifest{}),
		testModule("a", Manifest{UsesSplits: []string{"b"}}),
		testModule("b", Manifest{UsesSplits: []string{"a"}}),
	}, Config{})
	var bundleErr *InvalidBundleError
	if !errors.As(err, &bundleErr) {
		t.Fatalf("err = %v, want InvalidBundleError", err)
	}
}

func TestMissingDependency(t *testing.T) {
	_, err := NewAppBundle([]*Module{
		testModule("base", Manifest{}),
		testModule("a", Manifest{UsesSplits: []string{"ghost"}}),
	}, Config{})
	var bundleErr *InvalidBundleError
	if !errors.As(err, &bundleErr) {
		t.Fatalf("err = %v, want InvalidBundleError", err)
	}
}

func TestModuleOrderStable(t *testing.T) {
	// Declaration order must survive regardless of construction order,
	// with base always first.
	b := testBundle(t,
		testModule("zebra", Manifest{Delivery: DeliveryOnDemand}),
		testModule("base", Manifest{}),
		testModule("alpha", Manifest{Delivery: DeliveryOnDemand}),
	)
	if diff := cmp.Diff([]string{"base", "zebra", "alpha"}, moduleNames(b.Modules)); diff != "" {
		t.Errorf("module order (-want +got):\n%s", diff)
	}
}

func TestParseTargetedDirectory(t *testing.T) {
	testCases := []struct {
		path     string
		basePath string
		tcf      bundleproto.TextureCompressionFormatAlias
		tier     int32
		lang     string
		wantErr  bool
	}{
		{path: "assets/textures#tcf_etc1", basePath: "assets/textures", tcf: bundleproto.TcfEtc1Rgb8},
		{path: "assets/textures#tcf_astc", basePath: "assets/textures", tcf: bundleproto.TcfAstc},
		{path: "assets/img#tier_2", basePath: "assets/img", tier: 2},
		{path: "assets/help#lang_fr", basePath: "assets/help", lang: "fr"},
		{path: "assets/untargeted", basePath: "assets/untargeted"},
		{path: "assets/x#tcf_etc1#tier_1", basePath: "assets/x", tcf: bundleproto.TcfEtc1Rgb8, tier: 1},
		{path: "assets/x#tcf_bogus", wantErr: true},
		{path: "assets/x#wat_1", wantErr: true},
		{path: "assets/x#tcf_etc1#tcf_atc", wantErr: true},
		{path: "assets/a#tcf_etc1/b", wantErr: true},
	}
	for _, tc := range testCases {
		t.Run(tc.path, func(t *testing.T) {
			td, err := ParseTargetedDirectory(tc.path)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("ParseTargetedDirectory(%q) succeeded, want error", tc.path)
				}
				return
			}
			require.NoError(t, err)
			if td.BasePath != tc.basePath {
				t.Errorf("base path = %q, want %q", td.BasePath, tc.basePath)
			}
			if tc.tcf != bundleproto.TcfUnspecified {
				require.NotNil(t, td.Targeting.TextureCompressionFormat)
				if got := td.Targeting.TextureCompressionFormat.Value[0].Alias; got != tc.tcf {
					t.Errorf("tcf = %v, want %v", got, tc.tcf)
				}
			}
			if tc.tier != 0 {
				require.NotNil(t, td.Targeting.DeviceTier)
				if got := td.Targeting.DeviceTier.Value[0]; got != tc.tier {
					t.Errorf("tier = %v, want %v", got, tc.tier)
				}
			}
			if tc.lang != "" {
				require.NotNil(t, td.Targeting.Language)
				if got := td.Targeting.Language.Value[0]; got != tc.lang {
					t.Errorf("lang = %q, want %q", got, tc.lang)
				}
			}
		})
	}
}

func TestEntryHelpers(t *testing.T) {
	m := testModule("base", Manifest{},
		"dex/classes.dex", "dex/classes2.dex", "dex/classes10.dex",
		"lib/x86/libfoo.so", "assets/a.txt",
	)
	dex := m.DexEntries()
	want := []string{"dex/classes.dex", "dex/classes2.dex", "dex/classes10.dex"}
	var got []string
	for _, e := range dex {
		got = append(got, e.Path)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("dex order (-want +got):\n%s", diff)
	}

	if abi, ok := AbiFromLibPath("lib/x86/libfoo.so"); !ok || abi != bundleproto.AbiX86 {
		t.Errorf("AbiFromLibPath = %v, %v", abi, ok)
	}
	if d, ok := DensityFromResPath("res/drawable-xhdpi/icon.png"); !ok || d != bundleproto.DensityXhdpi {
		t.Errorf("DensityFromResPath = %v, %v", d, ok)
	}
	if lang, ok := LanguageFromResPath("res/values-fr/strings.xml"); !ok || lang != "fr" {
		t.Errorf("LanguageFromResPath = %v, %v", lang, ok)
	}
	if _, ok := LanguageFromResPath("res/values/strings.xml"); ok {
		t.Error("LanguageFromResPath matched unqualified values dir")
	}
}

func TestConfigSuffixDefaults(t *testing.T) {
	cfg, err := ParseConfig([]byte(`{
		"version": "1.15.6",
		"optimizations": {
			"splitDimensions": [
				{"value": "ABI"},
				{"value": "TEXTURE_COMPRESSION_FORMAT",
				 "suffixStripping": {"enabled": true, "defaultSuffix": "etc1"}},
				{"value": "DEVICE_TIER", "negate": true}
			],
			"uncompressNativeLibraries": true
		}
	}`))
	require.NoError(t, err)

	wantDims := []bundleproto.SplitDimension{
		bundleproto.DimensionAbi,
		bundleproto.DimensionTextureCompressionFormat,
	}
	if diff := cmp.Diff(wantDims, cfg.Dimensions()); diff != "" {
		t.Errorf("dimensions (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]bundleproto.SplitDimension{bundleproto.DimensionDeviceTier}, cfg.NegatedDimensions()); diff != "" {
		t.Errorf("negated dimensions (-want +got):\n%s", diff)
	}
	if def, ok := cfg.SuffixDefault(bundleproto.DimensionTextureCompressionFormat); !ok || def != "etc1" {
		t.Errorf("tcf suffix default = %q, %v", def, ok)
	}
	if _, ok := cfg.SuffixDefault(bundleproto.DimensionAbi); ok {
		t.Error("ABI unexpectedly has a suffix default")
	}
	if !cfg.UncompressNativeLibraries() {
		t.Error("UncompressNativeLibraries = false")
	}
	if !cfg.StrictAbiConsistency() {
		t.Error("StrictAbiConsistency = false for 1.15.6")
	}

	old := Config{Version: "1.8.0"}
	if old.StrictAbiConsistency() {
		t.Error("StrictAbiConsistency = true for 1.8.0")
	}
}

func TestParseConfigUnknownDimension(t *testing.T) {
	_, err := ParseConfig([]byte(`{"optimizations":{"splitDimensions":[{"value":"MOOD"}]}}`))
	var bundleErr *InvalidBundleError
	if !errors.As(err, &bundleErr) {
		t.Fatalf("err = %v, want InvalidBundleError", err)
	}
}
