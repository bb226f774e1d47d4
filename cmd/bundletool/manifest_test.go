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

package main

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"android/bundletool/bundle"
	"android/bundletool/bundleproto"
)

func TestParseBaseManifest(t *testing.T) {
	m, err := xmlManifestParser{}.ParseManifest("base", []byte(`
<manifest xmlns:android="http://schemas.android.com/apk/res/android"
    package="com.example.app" android:versionCode="42">
  <uses-sdk android:minSdkVersion="21" android:targetSdkVersion="34"/>
  <application>
    <uses-sdk-library android:name="com.example.adsdk"/>
  </application>
</manifest>`))
	require.NoError(t, err)

	want := bundle.Manifest{
		PackageName:      "com.example.app",
		VersionCode:      42,
		MinSdkVersion:    21,
		TargetSdkVersion: 34,
		SdkDependencies:  []string{"com.example.adsdk"},
	}
	if diff := cmp.Diff(want, m); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestParseConditionalModuleManifest(t *testing.T) {
	m, err := xmlManifestParser{}.ParseManifest("arfeature", []byte(`
<manifest xmlns:android="http://schemas.android.com/apk/res/android"
    xmlns:dist="http://schemas.android.com/apk/distribution"
    package="com.example.app" split="arfeature">
  <dist:module>
    <dist:delivery>
      <dist:install-time>
        <dist:conditions>
          <dist:device-feature dist:name="android.hardware.ar" dist:version="2"/>
          <dist:min-sdk dist:value="24"/>
          <dist:user-countries dist:exclude="true">
            <dist:country dist:code="CU"/>
          </dist:user-countries>
        </dist:conditions>
      </dist:install-time>
    </dist:delivery>
    <dist:fusing dist:include="false"/>
  </dist:module>
  <uses-split android:name="base"/>
</manifest>`))
	require.NoError(t, err)

	require.Equal(t, bundle.DeliveryConditional, m.Delivery)
	require.NotNil(t, m.FusingIncluded)
	require.False(t, *m.FusingIncluded)
	require.Equal(t, []string{"base"}, m.UsesSplits)

	wantConditions := bundle.Conditions{
		DeviceFeatures: []bundleproto.DeviceFeature{
			{FeatureName: "android.hardware.ar", FeatureVersion: 2},
		},
		MinSdkVersion: int32Ptr(24),
		UserCountries: &bundleproto.UserCountriesTargeting{
			CountryCodes: []string{"CU"},
			Exclude:      true,
		},
	}
	if diff := cmp.Diff(wantConditions, m.Conditions); diff != "" {
		t.Errorf("conditions (-want +got):\n%s", diff)
	}
}

func TestParseAssetPackManifest(t *testing.T) {
	m, err := xmlManifestParser{}.ParseManifest("textures", []byte(`
<manifest xmlns:dist="http://schemas.android.com/apk/distribution"
    package="com.example.app" split="textures">
  <dist:module dist:type="asset-pack">
    <dist:delivery>
      <dist:on-demand/>
    </dist:delivery>
    <dist:fusing dist:include="true"/>
  </dist:module>
</manifest>`))
	require.NoError(t, err)
	require.True(t, m.IsAssetModule)
	require.Equal(t, bundle.DeliveryOnDemand, m.Delivery)
}

func TestParseManifestErrors(t *testing.T) {
	parser := xmlManifestParser{}
	if _, err := parser.ParseManifest("base", []byte(`<resources/>`)); err == nil {
		t.Error("accepted a non-manifest root element")
	}
	if _, err := parser.ParseManifest("base", []byte(`<manifest`)); err == nil {
		t.Error("accepted truncated XML")
	}
	_, err := parser.ParseManifest("m", []byte(`
<manifest xmlns:dist="http://schemas.android.com/apk/distribution">
  <dist:module><dist:delivery/></dist:module>
</manifest>`))
	if err == nil {
		t.Error("accepted an empty delivery declaration")
	}
}

func int32Ptr(v int32) *int32 { return &v }
