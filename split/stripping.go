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

package split

import (
	"sort"
	"strings"

	"android/bundletool/bundle"
	"android/bundletool/bundleproto"
)

// suffixKey maps each strippable dimension back to its directory suffix key.
var suffixKey = map[bundleproto.SplitDimension]string{
	bundleproto.DimensionTextureCompressionFormat: "tcf",
	bundleproto.DimensionDeviceTier:               "tier",
	bundleproto.DimensionLanguage:                 "lang",
}

// Stripper rewrites targeted directory paths once a dimension declares a
// default suffix: every shard stores its files at the un-suffixed path, and
// the declared default is recorded in the table of contents so devices with
// no targeting data receive the default value's content.
type Stripper struct {
	defaults map[bundleproto.SplitDimension]string
}

// NewStripper reads the suffix-stripping declarations out of the bundle
// configuration.
func NewStripper(cfg *bundle.Config) *Stripper {
	s := &Stripper{defaults: map[bundleproto.SplitDimension]string{}}
	for dim := range suffixKey {
		if def, ok := cfg.SuffixDefault(dim); ok {
			s.defaults[dim] = def
		}
	}
	return s
}

// Enabled reports whether suffix stripping is declared for the dimension.
func (s *Stripper) Enabled(dim bundleproto.SplitDimension) bool {
	_, ok := s.defaults[dim]
	return ok
}

// Default returns the declared default suffix token for the dimension.
func (s *Stripper) Default(dim bundleproto.SplitDimension) (string, bool) {
	def, ok := s.defaults[dim]
	return def, ok
}

// OutputDir returns the directory path under which a targeted directory's
// files are stored in a shard: stripped dimensions lose their suffix marker,
// unstripped ones keep it.
func (s *Stripper) OutputDir(td *bundle.TargetedDirectory) string {
	kept := make([]string, 0, len(td.Suffixes))
	for dim, token := range td.Suffixes {
		if s.Enabled(dim) {
			continue
		}
		kept = append(kept, "#"+suffixKey[dim]+"_"+token)
	}
	sort.Strings(kept)
	return td.BasePath + strings.Join(kept, "")
}

// StripEntryPath rewrites one entry path according to its directory's
// suffixes and returns the parsed directory targeting alongside.
func (s *Stripper) StripEntryPath(path string) (string, *bundle.TargetedDirectory, error) {
	i := strings.LastIndex(path, "/")
	if i < 0 || !strings.Contains(path[:i], "#") {
		return path, nil, nil
	}
	td, err := bundle.ParseTargetedDirectory(path[:i])
	if err != nil {
		return "", nil, err
	}
	return s.OutputDir(td) + path[i:], td, nil
}

// DefaultTargetingValues returns the per-dimension default records that the
// table of contents advertises, in dimension order.
func (s *Stripper) DefaultTargetingValues() []*bundleproto.DefaultTargetingValue {
	var out []*bundleproto.DefaultTargetingValue
	for dim, def := range s.defaults {
		if def == "" {
			continue
		}
		out = append(out, &bundleproto.DefaultTargetingValue{
			Dimension:    dim,
			DefaultValue: def,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Dimension < out[j].Dimension })
	return out
}

// assetsMerger detects conflicting targeting while several source
// directories merge into the same stripped output directory.
type assetsMerger struct {
	// claims maps an output directory to the targeting fingerprint of the
	// source it was first populated from.
	claims map[string]string
}

func newAssetsMerger() *assetsMerger {
	return &assetsMerger{claims: map[string]string{}}
}

// claim registers an output directory with the dimension values of its
// source directory. Two sources disagreeing on the same output directory is
// a bundle defect.
func (am *assetsMerger) claim(outputDir string, td *bundle.TargetedDirectory) error {
	fp := ""
	if td != nil {
		fp = directoryFingerprint(td)
	}
	if prev, ok := am.claims[outputDir]; ok {
		if prev != fp {
			return bundle.InvalidBundlef(
				"conflicting targeting values while merging assets config: directory %q", outputDir)
		}
		return nil
	}
	am.claims[outputDir] = fp
	return nil
}

// directoryFingerprint keys a targeted directory by its dimension values.
func directoryFingerprint(td *bundle.TargetedDirectory) string {
	keys := make([]string, 0, len(td.Suffixes))
	for dim, token := range td.Suffixes {
		keys = append(keys, suffixKey[dim]+"_"+token)
	}
	sort.Strings(keys)
	return strings.Join(keys, "#")
}
