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
	"archive/zip"
	"fmt"
	"io"
	"sort"
	"strings"
)

// ManifestEntryName is the per-module manifest entry inside a bundle.
const ManifestEntryName = "manifest/AndroidManifest.xml"

// ManifestParser turns a module's raw manifest bytes into the summary the
// pipeline needs. Manifest parsing itself is outside this repository; build
// tools plug in their own implementation.
type ManifestParser interface {
	ParseManifest(moduleName string, raw []byte) (Manifest, error)
}

// Load reads a bundle zip into an immutable AppBundle. Top-level
// directories are modules; BundleConfig.json at the root configures the
// build. Metadata directories (BUNDLE-METADATA, META-INF) are skipped.
func Load(path string, parser ManifestParser) (*AppBundle, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("opening bundle %s: %w", path, err)
	}
	defer r.Close()

	var configData []byte
	moduleEntries := map[string][]Entry{}
	for _, f := range r.File {
		if strings.HasSuffix(f.Name, "/") {
			continue
		}
		data, err := readZipEntry(f)
		if err != nil {
			return nil, fmt.Errorf("reading bundle entry %s: %w", f.Name, err)
		}
		if f.Name == ConfigEntryName {
			configData = data
			continue
		}
		moduleName, rest, ok := strings.Cut(f.Name, "/")
		if !ok || moduleName == "BUNDLE-METADATA" || moduleName == "META-INF" {
			continue
		}
		moduleEntries[moduleName] = append(moduleEntries[moduleName], Entry{Path: rest, Content: data})
	}

	config, err := ParseConfig(configData)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(moduleEntries))
	for name := range moduleEntries {
		names = append(names, name)
	}
	sort.Strings(names)

	var modules []*Module
	for _, name := range names {
		m, err := newModule(name, moduleEntries[name], parser)
		if err != nil {
			return nil, err
		}
		modules = append(modules, m)
	}
	return NewAppBundle(modules, config)
}

// NewAppBundle assembles a bundle from already-built modules, validating
// its basic structure. Module order becomes declaration order.
func NewAppBundle(modules []*Module, config Config) (*AppBundle, error) {
	for i, m := range modules {
		m.index = i
	}
	sortModules(modules)
	for i, m := range modules {
		m.index = i
	}
	b := &AppBundle{Modules: modules, Config: config}
	if b.BaseModule() == nil {
		return nil, InvalidBundlef("bundle has no %q module", BaseModuleName)
	}
	seen := map[string]bool{}
	for _, m := range modules {
		if seen[m.Name] {
			return nil, InvalidBundlef("duplicate module %q", m.Name)
		}
		seen[m.Name] = true
	}
	if _, err := newDependencyGraph(b.Modules); err != nil {
		return nil, err
	}
	return b, nil
}

func newModule(name string, entries []Entry, parser ManifestParser) (*Module, error) {
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	m := &Module{Name: name, Entries: entries}
	var manifestRaw []byte
	for _, e := range entries {
		if e.Path == ManifestEntryName {
			manifestRaw = e.Content
			break
		}
	}
	if manifestRaw == nil {
		return nil, InvalidBundlef("module %q has no %s", name, ManifestEntryName)
	}
	if parser == nil {
		return nil, fmt.Errorf("module %q: no manifest parser supplied", name)
	}
	manifest, err := parser.ParseManifest(name, manifestRaw)
	if err != nil {
		return nil, InvalidBundlef("module %q: %v", name, err)
	}
	m.Manifest = manifest
	// Validate targeted directory names up front so later stages can assume
	// they parse.
	seenDirs := map[string]bool{}
	for _, e := range m.Entries {
		if !strings.HasPrefix(e.Path, "assets/") {
			continue
		}
		dir := e.Path
		if i := strings.LastIndex(dir, "/"); i >= 0 {
			dir = dir[:i]
		}
		if seenDirs[dir] {
			continue
		}
		seenDirs[dir] = true
		if _, err := ParseTargetedDirectory(dir); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func readZipEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
