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

package build

import (
	"archive/zip"
	"bytes"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/flate"

	"android/bundletool/bundle"
	"android/bundletool/bundleproto"
	"android/bundletool/split"
)

// zipEpoch is the fixed timestamp written on every archive entry. Output
// bytes must not depend on when the build ran.
var zipEpoch = time.Date(2009, 1, 1, 0, 0, 0, 0, time.UTC)

const (
	bundleManifestPath = "manifest/AndroidManifest.xml"
	bundleResourcesPb  = "resources.pb"
	apkManifestPath    = "AndroidManifest.xml"
	apkResourcesPath   = "resources.arsc"
)

// apkEntryPath maps a bundle-internal path to its location inside the
// finished APK: dex files and root/ content move to the archive root,
// everything else keeps its directory.
func apkEntryPath(path string) string {
	switch {
	case path == bundleManifestPath:
		return apkManifestPath
	case strings.HasPrefix(path, "dex/"):
		return strings.TrimPrefix(path, "dex/")
	case strings.HasPrefix(path, "root/"):
		return strings.TrimPrefix(path, "root/")
	default:
		return path
	}
}

// storeUncompressed reports whether an APK entry is stored without
// compression: resource tables always, dex and native libraries when the
// variant's optimizations say so.
func storeUncompressed(path string, props *bundleproto.VariantProperties) bool {
	if path == apkResourcesPath {
		return true
	}
	if props == nil {
		return false
	}
	if props.UncompressedDex && strings.HasSuffix(path, ".dex") {
		return true
	}
	if props.UncompressedNativeLibraries &&
		strings.HasPrefix(path, "lib/") && strings.HasSuffix(path, ".so") {
		return true
	}
	return false
}

// buildApk turns one planned unit into finished archive bytes: compile the
// manifest and resource table, write a deterministic zip, stamp, sign.
func buildApk(unit *split.PlannedApk, rc ResourceCompiler, signer Signer, stamper SourceStamper) ([]byte, error) {
	var manifest, resourceTable []byte
	var rest []bundle.Entry
	for _, e := range unit.Entries {
		switch e.Path {
		case bundleManifestPath:
			manifest = e.Content
		case bundleResourcesPb:
			resourceTable = e.Content
		default:
			rest = append(rest, e)
		}
	}

	var out []bundle.Entry
	if manifest != nil {
		binManifest, binTable, err := rc.Compile(manifest, resourceTable)
		if err != nil {
			return nil, err
		}
		out = append(out, bundle.Entry{Path: apkManifestPath, Content: binManifest})
		if binTable != nil {
			out = append(out, bundle.Entry{Path: apkResourcesPath, Content: binTable})
		}
	}
	for _, e := range rest {
		out = append(out, bundle.Entry{Path: apkEntryPath(e.Path), Content: e.Content})
	}

	raw, err := writeZip(out, unit.Properties)
	if err != nil {
		return nil, err
	}
	if raw, err = stamper.Stamp(raw); err != nil {
		return nil, err
	}
	return signer.Sign(raw)
}

// writeZip writes entries into an in-memory zip in sorted path order with
// fixed timestamps.
func writeZip(entries []bundle.Entry, props *bundleproto.VariantProperties) ([]byte, error) {
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	w.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.DefaultCompression)
	})
	for _, e := range entries {
		header := &zip.FileHeader{
			Name:     e.Path,
			Method:   zip.Deflate,
			Modified: zipEpoch,
		}
		if storeUncompressed(e.Path, props) {
			header.Method = zip.Store
		}
		f, err := w.CreateHeader(header)
		if err != nil {
			return nil, err
		}
		if _, err := f.Write(e.Content); err != nil {
			return nil, err
		}
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
