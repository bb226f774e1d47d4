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
	"fmt"
	"strings"
)

// nameAllocator hands out container-relative APK paths. Shard names are
// deterministic functions of module name and dimension suffix; when several
// variants produce the same name, later claims get a stable numeric suffix
// in variant-number order.
type nameAllocator struct {
	used map[string]int
}

func newNameAllocator() *nameAllocator {
	return &nameAllocator{used: map[string]int{}}
}

// claim returns the path itself on first use and path_2, path_3, ... (the
// suffix inserted before the extension) afterwards.
func (a *nameAllocator) claim(path string) string {
	a.used[path]++
	if n := a.used[path]; n > 1 {
		if i := strings.LastIndex(path, "."); i >= 0 {
			return fmt.Sprintf("%s_%d%s", path[:i], n, path[i:])
		}
		return fmt.Sprintf("%s_%d", path, n)
	}
	return path
}

// splitApkPath names a per-module split APK inside the output container.
func splitApkPath(moduleName, suffix string) string {
	if suffix == "" {
		suffix = "master"
	}
	return fmt.Sprintf("splits/%s-%s.apk", moduleName, suffix)
}

// instantApkPath names an instant-app split APK.
func instantApkPath(moduleName, suffix string) string {
	if suffix == "" {
		suffix = "master"
	}
	return fmt.Sprintf("instant/instant-%s-%s.apk", moduleName, suffix)
}

// assetSlicePath names an asset-slice APK.
func assetSlicePath(moduleName, suffix string) string {
	if suffix == "" {
		suffix = "master"
	}
	return fmt.Sprintf("asset-slices/%s-%s.apk", moduleName, suffix)
}

// standaloneApkPath names a fused standalone APK shard.
func standaloneApkPath(suffix string) string {
	if suffix == "" {
		return "standalones/standalone.apk"
	}
	return fmt.Sprintf("standalones/standalone-%s.apk", suffix)
}

// splitID derives the manifest split identifier for a shard.
func splitID(moduleName, suffix string, isBase bool) string {
	switch {
	case isBase && suffix == "":
		return ""
	case isBase:
		return "config." + suffix
	case suffix == "":
		return moduleName
	default:
		return moduleName + ".config." + suffix
	}
}

const (
	universalApkPath = "universal.apk"
	systemApkPath    = "system/system.apk"
	archivedApkPath  = "archive/archived.apk"
)
