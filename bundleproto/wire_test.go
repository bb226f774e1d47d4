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

package bundleproto

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func sdk(min int32) SdkVersion {
	return SdkVersionFrom(min)
}

func testToc() *BuildApksResult {
	return &BuildApksResult{
		Bundletool:  &Bundletool{Version: "1.15.6"},
		PackageName: "com.example.app",
		Variants: []*Variant{
			{
				Targeting: &VariantTargeting{
					SdkVersion: &SdkVersionTargeting{
						Value:        []SdkVersion{sdk(21)},
						Alternatives: []SdkVersion{sdk(23)},
					},
					Abi: &AbiTargeting{
						Value:        []Abi{{AbiX86}},
						Alternatives: []Abi{{AbiArm64V8a}, {AbiX86_64}},
					},
				},
				VariantNumber: 0,
				Properties:    &VariantProperties{},
				ApkSets: []*ApkSet{
					{
						ModuleMetadata: &ModuleMetadata{
							Name:         "base",
							DeliveryType: DeliveryInstallTime,
						},
						ApkDescriptions: []*ApkDescription{
							{
								Path: "standalones/standalone-x86.apk",
								Targeting: &ApkTargeting{
									Abi: &AbiTargeting{
										Value:        []Abi{{AbiX86}},
										Alternatives: []Abi{{AbiArm64V8a}, {AbiX86_64}},
									},
								},
								StandaloneApkMetadata: &StandaloneApkMetadata{
									FusedModuleNames: []string{"base", "feature"},
								},
							},
						},
					},
				},
			},
			{
				Targeting: &VariantTargeting{
					SdkVersion: &SdkVersionTargeting{Value: []SdkVersion{sdk(23)}},
				},
				VariantNumber: 1,
				Properties:    &VariantProperties{UncompressedNativeLibraries: true},
				ApkSets: []*ApkSet{
					{
						ModuleMetadata: &ModuleMetadata{
							Name:         "feature",
							DeliveryType: DeliveryOnDemand,
							Dependencies: []string{"base"},
							Targeting: &ModuleTargeting{
								DeviceFeature: []DeviceFeatureTargeting{
									{RequiredFeature: DeviceFeature{FeatureName: "android.hardware.vr.headtracking"}},
								},
							},
						},
						ApkDescriptions: []*ApkDescription{
							{
								Path: "splits/feature-master.apk",
								Targeting: &ApkTargeting{
									SdkVersion: &SdkVersionTargeting{Value: []SdkVersion{sdk(23)}},
								},
								SplitApkMetadata: &SplitApkMetadata{SplitId: "feature", IsMasterSplit: true},
							},
							{
								Path: "splits/feature-etc1.apk",
								Targeting: &ApkTargeting{
									TextureCompressionFormat: &TextureCompressionFormatTargeting{
										Value:        []TextureCompressionFormat{{TcfEtc1Rgb8}},
										Alternatives: []TextureCompressionFormat{{TcfAtc}},
									},
								},
								SplitApkMetadata: &SplitApkMetadata{SplitId: "feature.config.etc1"},
							},
						},
					},
				},
			},
		},
		AssetSliceSets: []*AssetSliceSet{
			{
				AssetModuleMetadata: &AssetModuleMetadata{Name: "textures", DeliveryType: DeliveryFastFollow},
				ApkDescriptions: []*ApkDescription{
					{
						Path:               "asset-slices/textures-master.apk",
						Targeting:          &ApkTargeting{},
						AssetSliceMetadata: &AssetSliceMetadata{SplitId: "textures", IsMasterSplit: true},
					},
				},
			},
		},
		PermanentlyFusedModules: []*PermanentlyFusedModule{{Name: "feature"}},
		DefaultTargetingValues: []*DefaultTargetingValue{
			{Dimension: DimensionTextureCompressionFormat, DefaultValue: "etc1"},
		},
	}
}

func TestTocRoundTrip(t *testing.T) {
	toc := testToc()
	data := toc.Marshal(nil)
	if len(data) == 0 {
		t.Fatal("marshaled TOC is empty")
	}
	var decoded BuildApksResult
	if err := decoded.Unmarshal(data); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if diff := cmp.Diff(toc, &decoded); diff != "" {
		t.Errorf("TOC round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestMarshalDeterministic(t *testing.T) {
	first := testToc().Marshal(nil)
	for i := 0; i < 10; i++ {
		if got := testToc().Marshal(nil); !bytes.Equal(first, got) {
			t.Fatalf("marshal %d differs from first encoding", i)
		}
	}
}

func TestFingerprintOrderInsensitive(t *testing.T) {
	a := &VariantTargeting{
		Abi: &AbiTargeting{
			Value:        []Abi{{AbiX86}},
			Alternatives: []Abi{{AbiX86_64}, {AbiArm64V8a}},
		},
		SdkVersion: &SdkVersionTargeting{Value: []SdkVersion{sdk(21)}},
	}
	b := &VariantTargeting{
		Abi: &AbiTargeting{
			Value:        []Abi{{AbiX86}},
			Alternatives: []Abi{{AbiArm64V8a}, {AbiX86_64}},
		},
		SdkVersion: &SdkVersionTargeting{Value: []SdkVersion{sdk(21)}},
	}
	if a.Fingerprint() != b.Fingerprint() {
		t.Error("fingerprints differ for targetings that differ only in alternative order")
	}
	c := &VariantTargeting{
		Abi: &AbiTargeting{
			Value:        []Abi{{AbiX86_64}},
			Alternatives: []Abi{{AbiArm64V8a}, {AbiX86}},
		},
		SdkVersion: &SdkVersionTargeting{Value: []SdkVersion{sdk(21)}},
	}
	if a.Fingerprint() == c.Fingerprint() {
		t.Error("fingerprints equal for targetings with different values")
	}
}

func TestUnknownFieldsSkipped(t *testing.T) {
	data := testToc().Marshal(nil)
	// A future field: number 1000, varint 7.
	data = append(data, 0xc0, 0x3e, 0x07)
	var decoded BuildApksResult
	if err := decoded.Unmarshal(data); err != nil {
		t.Fatalf("Unmarshal with unknown trailing field: %v", err)
	}
	if decoded.PackageName != "com.example.app" {
		t.Errorf("package name = %q, want com.example.app", decoded.PackageName)
	}
}

func TestAbiNameTables(t *testing.T) {
	a, ok := AbiAliasByName("ARM64_V8A")
	if !ok || a != AbiArm64V8a {
		t.Errorf("AbiAliasByName(ARM64_V8A) = %v, %v", a, ok)
	}
	a, ok = AbiAliasByDirName("armeabi-v7a")
	if !ok || a != AbiArmeabiV7a {
		t.Errorf("AbiAliasByDirName(armeabi-v7a) = %v, %v", a, ok)
	}
	if _, ok := AbiAliasByName("SPARC"); ok {
		t.Error("AbiAliasByName(SPARC) unexpectedly resolved")
	}
}
