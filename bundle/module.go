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

// Package bundle models a multi-module application bundle: its modules,
// their manifests and targeted content directories, the inter-module
// dependency graph and the fusing resolution that decides which modules end
// up in merged artifacts.
package bundle

import (
	"sort"
	"strings"

	"android/bundletool/bundleproto"
)

// BaseModuleName is the name of the mandatory base module.
const BaseModuleName = "base"

// AllModulesShortcut, passed as a requested module name, expands to every
// module in the bundle at resolution time.
const AllModulesShortcut = "_ALL_"

// DeliveryMode is the declared delivery of a module.
type DeliveryMode int

const (
	DeliveryInstallTime DeliveryMode = iota
	DeliveryOnDemand
	DeliveryConditional
	DeliveryInstantOnDemand
	DeliveryFastFollow
)

var deliveryModeName = map[DeliveryMode]string{
	DeliveryInstallTime:     "install-time",
	DeliveryOnDemand:        "on-demand",
	DeliveryConditional:     "conditional",
	DeliveryInstantOnDemand: "instant-on-demand",
	DeliveryFastFollow:      "fast-follow",
}

func (m DeliveryMode) String() string {
	return deliveryModeName[m]
}

// TocDeliveryType maps the declared delivery to the TOC enum. Conditional
// modules are install-time deliveries guarded by module targeting.
func (m DeliveryMode) TocDeliveryType() bundleproto.DeliveryType {
	switch m {
	case DeliveryInstallTime, DeliveryConditional:
		return bundleproto.DeliveryInstallTime
	case DeliveryOnDemand, DeliveryInstantOnDemand:
		return bundleproto.DeliveryOnDemand
	case DeliveryFastFollow:
		return bundleproto.DeliveryFastFollow
	}
	return bundleproto.DeliveryUnknown
}

// Conditions are the install-time conditions of a conditional module.
type Conditions struct {
	DeviceFeatures []bundleproto.DeviceFeature
	DeviceGroups   []string
	UserCountries  *bundleproto.UserCountriesTargeting
	MinSdkVersion  *int32
	MaxSdkVersion  *int32
}

// Empty reports whether no condition is declared.
func (c *Conditions) Empty() bool {
	return len(c.DeviceFeatures) == 0 && len(c.DeviceGroups) == 0 &&
		c.UserCountries == nil && c.MinSdkVersion == nil && c.MaxSdkVersion == nil
}

// Targeting converts the conditions into the TOC module-targeting message.
func (c *Conditions) Targeting() *bundleproto.ModuleTargeting {
	if c.Empty() {
		return nil
	}
	t := &bundleproto.ModuleTargeting{}
	for _, f := range c.DeviceFeatures {
		t.DeviceFeature = append(t.DeviceFeature,
			bundleproto.DeviceFeatureTargeting{RequiredFeature: f})
	}
	if len(c.DeviceGroups) > 0 {
		groups := append([]string(nil), c.DeviceGroups...)
		sort.Strings(groups)
		t.DeviceGroup = &bundleproto.DeviceGroupTargeting{Value: groups}
	}
	if c.UserCountries != nil {
		t.UserCountries = c.UserCountries
	}
	if c.MinSdkVersion != nil || c.MaxSdkVersion != nil {
		min := int32(1)
		if c.MinSdkVersion != nil {
			min = *c.MinSdkVersion
		}
		st := &bundleproto.SdkVersionTargeting{
			Value: []bundleproto.SdkVersion{bundleproto.SdkVersionFrom(min)},
		}
		// A maximum is encoded as an alternative starting right above it;
		// devices past it match the alternative instead of the value.
		if c.MaxSdkVersion != nil {
			st.Alternatives = []bundleproto.SdkVersion{bundleproto.SdkVersionFrom(*c.MaxSdkVersion + 1)}
		}
		t.SdkVersion = st
	}
	return t
}

// Manifest is the summary of a module's manifest that the pipeline needs.
// Parsing the manifest XML itself is a collaborator's job.
type Manifest struct {
	PackageName      string
	VersionCode      int64
	MinSdkVersion    int32
	MaxSdkVersion    int32
	TargetSdkVersion int32

	Delivery DeliveryMode
	// FusingIncluded is nil when the module declares no fusing attribute.
	// The base module never declares one.
	FusingIncluded *bool
	Conditions     Conditions
	// UsesSplits lists the module names this module depends on.
	UsesSplits []string
	// SdkDependencies lists required runtime SDKs, if any.
	SdkDependencies []string
	Instant         bool
	// IsAssetModule marks an asset pack: no code, delivered as asset
	// slices rather than feature splits.
	IsAssetModule bool
}

// Entry is one file inside a module, keyed by its module-relative path.
type Entry struct {
	Path    string
	Content []byte
}

// Module is a named unit of the bundle. Immutable after load.
type Module struct {
	Name     string
	Manifest Manifest
	Entries  []Entry

	// index in bundle declaration order, used for stable output ordering.
	index int
}

// Index returns the module's position in bundle declaration order.
func (m *Module) Index() int {
	return m.index
}

// DexEntries returns the module's dex files in classes.dex, classes2.dex,
// ... order.
func (m *Module) DexEntries() []Entry {
	var out []Entry
	for _, e := range m.Entries {
		if strings.HasPrefix(e.Path, "dex/") && strings.HasSuffix(e.Path, ".dex") {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return dexSequence(out[i].Path) < dexSequence(out[j].Path)
	})
	return out
}

// dexSequence orders dex/classes.dex before dex/classes2.dex and so on.
func dexSequence(path string) int {
	name := strings.TrimSuffix(strings.TrimPrefix(path, "dex/"), ".dex")
	name = strings.TrimPrefix(name, "classes")
	if name == "" {
		return 1
	}
	n := 0
	for _, r := range name {
		if r < '0' || r > '9' {
			return 1 << 30
		}
		n = n*10 + int(r-'0')
	}
	return n
}

// EntriesUnder returns entries whose path starts with the given directory
// prefix, in path order.
func (m *Module) EntriesUnder(prefix string) []Entry {
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	var out []Entry
	for _, e := range m.Entries {
		if strings.HasPrefix(e.Path, prefix) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// AppBundle is the loaded, immutable in-memory bundle.
type AppBundle struct {
	Modules []*Module
	Config  Config
}

// BaseModule returns the bundle's base module.
func (b *AppBundle) BaseModule() *Module {
	for _, m := range b.Modules {
		if m.Name == BaseModuleName {
			return m
		}
	}
	return nil
}

// ModuleByName returns the named module, or nil.
func (b *AppBundle) ModuleByName(name string) *Module {
	for _, m := range b.Modules {
		if m.Name == name {
			return m
		}
	}
	return nil
}

// PackageName returns the application package name from the base manifest.
func (b *AppBundle) PackageName() string {
	if base := b.BaseModule(); base != nil {
		return base.Manifest.PackageName
	}
	return ""
}

// MinSdkVersion returns the base module's minimum SDK version, the floor
// for every generated variant.
func (b *AppBundle) MinSdkVersion() int32 {
	if base := b.BaseModule(); base != nil && base.Manifest.MinSdkVersion > 0 {
		return base.Manifest.MinSdkVersion
	}
	return 1
}

// sortModules orders modules base-first, then by declaration order.
func sortModules(modules []*Module) {
	sort.SliceStable(modules, func(i, j int) bool {
		if (modules[i].Name == BaseModuleName) != (modules[j].Name == BaseModuleName) {
			return modules[i].Name == BaseModuleName
		}
		return modules[i].index < modules[j].index
	})
}
