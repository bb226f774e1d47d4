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
	"strings"
	"testing"

	"android/bundletool/bundleproto"
)

func TestParseSpec(t *testing.T) {
	spec, err := ParseSpec([]byte(`{
		"sdkVersion": 29,
		"supportedAbis": ["arm64-v8a", "armeabi-v7a"],
		"supportedLocales": ["en-US", "fr"],
		"screenDensity": 420,
		"deviceFeatures": ["android.hardware.camera"]
	}`))
	if err != nil {
		t.Fatal(err)
	}
	if spec.SdkVersion != 29 || spec.ScreenDensity != 420 {
		t.Errorf("got sdk %d density %d", spec.SdkVersion, spec.ScreenDensity)
	}
	abis := spec.abis()
	if abis[bundleproto.AbiArm64V8a] != 0 || abis[bundleproto.AbiArmeabiV7a] != 1 {
		t.Errorf("abi ranks = %v", abis)
	}
}

func TestParseSpecErrors(t *testing.T) {
	testCases := []struct {
		name string
		json string
		want string
	}{
		{"malformed", `{`, "malformed"},
		{"no sdk", `{"supportedAbis": ["x86"]}`, "sdkVersion"},
		{"no abis", `{"sdkVersion": 21}`, "supportedAbis"},
		{"bad abi", `{"sdkVersion": 21, "supportedAbis": ["sparc"]}`, `unknown ABI "sparc"`},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseSpec([]byte(tc.json))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error = %v, want substring %q", err, tc.want)
			}
		})
	}
}
