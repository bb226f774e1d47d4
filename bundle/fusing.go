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
	"sort"

	"github.com/google/blueprint/proptools"

	"android/bundletool/device"
)

// BuildMode selects what kind of APK set a run produces.
type BuildMode int

const (
	// ModePersistent produces the regular split + standalone matrix.
	ModePersistent BuildMode = iota
	// ModeInstant produces instant-app splits.
	ModeInstant
	// ModeArchive produces the minimal archived APK.
	ModeArchive
	// ModeAssetsOnly produces asset slices without app APKs.
	ModeAssetsOnly
)

var buildModeName = map[BuildMode]string{
	ModePersistent: "persistent",
	ModeInstant:    "instant",
	ModeArchive:    "archive",
	ModeAssetsOnly: "assets-only",
}

func (m BuildMode) String() string {
	return buildModeName[m]
}

// Resolution is the outcome of module selection: the modules to package,
// and the subset fused into any merged (standalone/universal/system)
// artifact. Both lists are in declaration order.
type Resolution struct {
	Packaged []*Module
	Fused    []*Module
}

// FusedNames returns the fused module names in declaration order.
func (r *Resolution) FusedNames() []string {
	var names []string
	for _, m := range r.Fused {
		names = append(names, m.Name)
	}
	return names
}

// ResolveModules selects which modules a run packages and which it fuses.
//
// Fusing starts from install-time fusing-eligible modules plus conditional
// modules whose conditions match the supplied device spec; without a spec,
// conditional modules fuse only when explicitly requested. The packaged set
// is the dependency closure of the requested modules (all modules when none
// are requested). The AllModulesShortcut expands here, not later.
func ResolveModules(b *AppBundle, mode BuildMode, requested []string, spec *device.Spec) (*Resolution, error) {
	graph, err := newDependencyGraph(b.Modules)
	if err != nil {
		return nil, err
	}

	requestedSet := map[string]bool{}
	for _, name := range requested {
		if name == AllModulesShortcut {
			for _, m := range b.Modules {
				requestedSet[m.Name] = true
			}
			continue
		}
		if _, ok := graph.index[name]; !ok {
			return nil, InvalidCommandf("requested module %q does not exist in the bundle", name)
		}
		requestedSet[name] = true
	}

	eligible := func(m *Module) bool {
		switch mode {
		case ModeInstant:
			return m.Manifest.Instant
		case ModeArchive:
			return m.Name == BaseModuleName
		case ModeAssetsOnly:
			return m.Manifest.IsAssetModule
		default:
			return true
		}
	}

	var roots []int
	if len(requestedSet) == 0 {
		for i, m := range b.Modules {
			if eligible(m) {
				roots = append(roots, i)
			}
		}
	} else {
		// The base module is packaged whether or not it was requested.
		if mode != ModeAssetsOnly {
			roots = append(roots, graph.index[BaseModuleName])
		}
		for i, m := range b.Modules {
			if requestedSet[m.Name] && eligible(m) {
				roots = append(roots, i)
			}
		}
	}
	if len(roots) == 0 {
		return nil, InvalidCommandf("no modules are eligible for a %s build", mode)
	}
	sort.Ints(roots)
	packaged := graph.closure(roots)

	res := &Resolution{Packaged: packaged}
	for _, m := range packaged {
		if m.Manifest.IsAssetModule {
			continue
		}
		if fusesIntoMergedArtifact(m, spec, requestedSet) {
			res.Fused = append(res.Fused, m)
		}
	}
	return res, nil
}

func fusesIntoMergedArtifact(m *Module, spec *device.Spec, requested map[string]bool) bool {
	if m.Name == BaseModuleName {
		return true
	}
	switch m.Manifest.Delivery {
	case DeliveryConditional:
		if spec != nil {
			return device.MatchesModuleTargeting(spec, m.Manifest.Conditions.Targeting())
		}
		return requested[m.Name]
	default:
		// Any delivery can opt into fusing; install-time modules commonly
		// do, on-demand modules must declare it explicitly.
		return proptools.Bool(m.Manifest.FusingIncluded)
	}
}
