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
	"strings"

	"android/bundletool/bundleproto"
)

// Targeted directory names append #key_value suffixes to the final path
// segment, e.g. assets/textures#tcf_etc1 or assets/help#lang_fr. The
// recognized keys map onto split dimensions.

const (
	suffixKeyTcf  = "tcf"
	suffixKeyTier = "tier"
	suffixKeyLang = "lang"
)

// TargetedDirectory is one directory name with its parsed targeting.
type TargetedDirectory struct {
	// OriginalPath is the directory as declared, including suffixes.
	OriginalPath string
	// BasePath is the directory with all targeting suffixes removed.
	BasePath string
	// Targeting holds the dimension values expressed by the suffixes.
	Targeting bundleproto.AssetsDirectoryTargeting
	// Suffixes maps each targeted dimension to its raw suffix token.
	Suffixes map[bundleproto.SplitDimension]string
}

// ParseTargetedDirectory parses a directory path of a targeted content
// root. Only the final segment may carry targeting suffixes.
func ParseTargetedDirectory(path string) (*TargetedDirectory, error) {
	td := &TargetedDirectory{
		OriginalPath: path,
		Suffixes:     map[bundleproto.SplitDimension]string{},
	}
	var dir, last string
	if i := strings.LastIndex(path, "/"); i >= 0 {
		dir, last = path[:i], path[i+1:]
	} else {
		dir, last = "", path
	}
	if strings.Contains(dir, "#") {
		return nil, InvalidBundlef("directory %q: targeting suffix on non-terminal segment", path)
	}
	parts := strings.Split(last, "#")
	base := parts[0]
	for _, suffix := range parts[1:] {
		key, value, ok := strings.Cut(suffix, "_")
		if !ok || value == "" {
			return nil, InvalidBundlef("directory %q: malformed targeting suffix %q", path, suffix)
		}
		dim, err := td.applySuffix(path, key, value)
		if err != nil {
			return nil, err
		}
		if _, dup := td.Suffixes[dim]; dup {
			return nil, InvalidBundlef("directory %q: duplicate targeting dimension %v", path, dim)
		}
		td.Suffixes[dim] = value
	}
	if dir != "" {
		td.BasePath = dir + "/" + base
	} else {
		td.BasePath = base
	}
	return td, nil
}

func (td *TargetedDirectory) applySuffix(path, key, value string) (bundleproto.SplitDimension, error) {
	switch key {
	case suffixKeyTcf:
		alias, ok := bundleproto.TcfAliasBySuffix(value)
		if !ok {
			return 0, InvalidBundlef("directory %q: unknown texture compression format %q", path, value)
		}
		td.Targeting.TextureCompressionFormat = &bundleproto.TextureCompressionFormatTargeting{
			Value: []bundleproto.TextureCompressionFormat{{Alias: alias}},
		}
		return bundleproto.DimensionTextureCompressionFormat, nil
	case suffixKeyTier:
		tier := int32(0)
		for _, r := range value {
			if r < '0' || r > '9' {
				return 0, InvalidBundlef("directory %q: device tier %q is not a number", path, value)
			}
			tier = tier*10 + int32(r-'0')
		}
		td.Targeting.DeviceTier = &bundleproto.DeviceTierTargeting{Value: []int32{tier}}
		return bundleproto.DimensionDeviceTier, nil
	case suffixKeyLang:
		td.Targeting.Language = &bundleproto.LanguageTargeting{Value: []string{value}}
		return bundleproto.DimensionLanguage, nil
	default:
		return 0, InvalidBundlef("directory %q: unknown targeting key %q", path, key)
	}
}

// AbiFromLibPath extracts the ABI from a native library entry path such as
// lib/arm64-v8a/libfoo.so. The second result is the entry path with the ABI
// directory intact (native library paths are never rewritten).
func AbiFromLibPath(path string) (bundleproto.AbiAlias, bool) {
	rest, ok := strings.CutPrefix(path, "lib/")
	if !ok {
		return bundleproto.AbiUnspecified, false
	}
	dir, _, ok := strings.Cut(rest, "/")
	if !ok {
		return bundleproto.AbiUnspecified, false
	}
	return bundleproto.AbiAliasByDirName(dir)
}

// DensityFromResPath extracts the density bucket from a resource entry path
// such as res/drawable-xhdpi/icon.png.
func DensityFromResPath(path string) (bundleproto.DensityAlias, bool) {
	rest, ok := strings.CutPrefix(path, "res/")
	if !ok {
		return bundleproto.DensityUnspecified, false
	}
	dir, _, ok := strings.Cut(rest, "/")
	if !ok {
		return bundleproto.DensityUnspecified, false
	}
	for _, q := range strings.Split(dir, "-")[1:] {
		if d, ok := bundleproto.DensityAliasByQualifier(q); ok {
			return d, true
		}
	}
	return bundleproto.DensityUnspecified, false
}

// LanguageFromResPath extracts the locale qualifier from a resource entry
// path such as res/values-fr/strings.xml. Region-qualified locales
// (values-b+es+419) keep their full tag.
func LanguageFromResPath(path string) (string, bool) {
	rest, ok := strings.CutPrefix(path, "res/")
	if !ok {
		return "", false
	}
	dir, _, ok := strings.Cut(rest, "/")
	if !ok {
		return "", false
	}
	parts := strings.Split(dir, "-")
	for _, q := range parts[1:] {
		if strings.HasPrefix(q, "b+") {
			return strings.ReplaceAll(q[2:], "+", "-"), true
		}
		// Two-letter language qualifiers only; everything else (density,
		// orientation, night mode) is longer or mixed case.
		if len(q) == 2 && q == strings.ToLower(q) && isAlpha(q) {
			return q, true
		}
	}
	return "", false
}

func isAlpha(s string) bool {
	for _, r := range s {
		if r < 'a' || r > 'z' {
			return false
		}
	}
	return true
}
