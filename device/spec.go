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

// Package device describes a concrete device configuration and selects the
// variant and APKs such a device would receive from a generated APK set.
package device

import (
	"encoding/json"
	"fmt"

	"android/bundletool/bundleproto"
)

// Spec is a device configuration, conventionally supplied as a JSON file.
type Spec struct {
	SdkVersion       int32    `json:"sdkVersion"`
	SupportedAbis    []string `json:"supportedAbis"`
	SupportedLocales []string `json:"supportedLocales,omitempty"`
	ScreenDensity    int32    `json:"screenDensity,omitempty"`
	DeviceFeatures   []string `json:"deviceFeatures,omitempty"`
	DeviceGroups     []string `json:"deviceGroups,omitempty"`
	DeviceTier       int32    `json:"deviceTier,omitempty"`
	CountrySet       string   `json:"countrySet,omitempty"`
	GlExtensions     []string `json:"glExtensions,omitempty"`
	SdkRuntime       bool     `json:"sdkRuntimeSupported,omitempty"`
}

// ParseSpec decodes a device spec JSON document and validates it.
func ParseSpec(data []byte) (*Spec, error) {
	var s Spec
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("malformed device spec: %w", err)
	}
	if s.SdkVersion <= 0 {
		return nil, fmt.Errorf("device spec: sdkVersion must be positive")
	}
	if len(s.SupportedAbis) == 0 {
		return nil, fmt.Errorf("device spec: supportedAbis must not be empty")
	}
	for _, a := range s.SupportedAbis {
		if _, ok := bundleproto.AbiAliasByName(a); !ok {
			if _, ok := bundleproto.AbiAliasByDirName(a); !ok {
				return nil, fmt.Errorf("device spec: unknown ABI %q", a)
			}
		}
	}
	return &s, nil
}

// abis returns the device's ABIs as aliases mapped to their preference
// rank: earlier entries in supportedAbis are preferred.
func (s *Spec) abis() map[bundleproto.AbiAlias]int {
	out := map[bundleproto.AbiAlias]int{}
	for i, name := range s.SupportedAbis {
		alias, ok := bundleproto.AbiAliasByName(name)
		if !ok {
			alias, ok = bundleproto.AbiAliasByDirName(name)
		}
		if !ok {
			continue
		}
		if _, seen := out[alias]; !seen {
			out[alias] = i
		}
	}
	return out
}

// hasFeature reports whether the device declares the named feature.
func (s *Spec) hasFeature(name string) bool {
	for _, f := range s.DeviceFeatures {
		if f == name {
			return true
		}
	}
	return false
}

// inGroup reports whether the device belongs to the named group.
func (s *Spec) inGroup(name string) bool {
	for _, g := range s.DeviceGroups {
		if g == name {
			return true
		}
	}
	return false
}
