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
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/blueprint/proptools"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"android/bundletool/bundle"
	"android/bundletool/bundleproto"
)

func testBundle(t *testing.T) *bundle.AppBundle {
	t.Helper()
	newModule := func(name string, manifest bundle.Manifest, paths ...string) *bundle.Module {
		manifest.PackageName = "com.example.app"
		entries := []bundle.Entry{{Path: "manifest/AndroidManifest.xml", Content: []byte("<manifest/>")}}
		for _, p := range paths {
			entries = append(entries, bundle.Entry{Path: p, Content: []byte(name + ":" + p)})
		}
		return &bundle.Module{Name: name, Manifest: manifest, Entries: entries}
	}
	b, err := bundle.NewAppBundle([]*bundle.Module{
		newModule("base", bundle.Manifest{MinSdkVersion: 21},
			"assets/base.txt", "lib/x86/libfoo.so", "lib/arm64-v8a/libfoo.so", "root/extra.txt"),
		newModule("feature", bundle.Manifest{
			FusingIncluded: proptools.BoolPtr(true),
		}, "assets/feature.txt"),
	}, bundle.Config{
		Version: "1.15.6",
		Optimizations: bundle.OptimizationConfig{
			SplitDimensions: []bundle.SplitDimensionConfig{{Dimension: "ABI"}},
		},
	})
	require.NoError(t, err)
	return b
}

func execute(t *testing.T, cmd Command) *Result {
	t.Helper()
	res, err := Execute(context.Background(), cmd)
	require.NoError(t, err)
	return res
}

func containerEntries(t *testing.T, path string) map[string][]byte {
	t.Helper()
	r, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer r.Close()
	out := map[string][]byte{}
	for _, f := range r.File {
		rc, err := f.Open()
		require.NoError(t, err)
		var buf bytes.Buffer
		_, err = buf.ReadFrom(rc)
		rc.Close()
		require.NoError(t, err)
		out[f.Name] = buf.Bytes()
	}
	return out
}

// The same bundle must produce byte-identical containers no matter how many
// workers build it.
func TestExecuteDeterministicAcrossWorkerCounts(t *testing.T) {
	dir := t.TempDir()
	var reference []byte
	for workers := 2; workers <= 8; workers++ {
		out := filepath.Join(dir, "app.apks")
		execute(t, Command{
			Bundle:     testBundle(t),
			OutputPath: out,
			Overwrite:  true,
			Workers:    workers,
		})
		content, err := os.ReadFile(out)
		require.NoError(t, err)
		if reference == nil {
			reference = content
			continue
		}
		if !bytes.Equal(reference, content) {
			t.Fatalf("container built with %d workers differs from reference", workers)
		}
	}
}

func TestExecuteWritesTocAndApks(t *testing.T) {
	out := filepath.Join(t.TempDir(), "app.apks")
	res := execute(t, Command{Bundle: testBundle(t), OutputPath: out})

	entries := containerEntries(t, out)
	require.Contains(t, entries, TocEntryName)

	var toc bundleproto.BuildApksResult
	require.NoError(t, toc.Unmarshal(entries[TocEntryName]))
	require.Equal(t, "com.example.app", toc.PackageName)
	require.Equal(t, ToolVersion, toc.Bundletool.Version)
	if diff := cmp.Diff(res.Toc, &toc); diff != "" {
		t.Errorf("round-tripped TOC differs (-built +read):\n%s", diff)
	}
	for _, v := range toc.Variants {
		for _, set := range v.ApkSets {
			for _, d := range set.ApkDescriptions {
				if _, ok := entries[d.Path]; !ok {
					t.Errorf("TOC references %q but the container has no such entry", d.Path)
				}
			}
		}
	}
}

func TestExecuteDirectoryOutput(t *testing.T) {
	out := filepath.Join(t.TempDir(), "apks")
	res := execute(t, Command{
		Bundle:          testBundle(t),
		OutputPath:      out,
		OutputDirectory: true,
	})
	if _, err := os.Stat(filepath.Join(out, TocEntryName)); err != nil {
		t.Fatalf("missing TOC file: %v", err)
	}
	for _, v := range res.Toc.Variants {
		for _, set := range v.ApkSets {
			for _, d := range set.ApkDescriptions {
				if _, err := os.Stat(filepath.Join(out, filepath.FromSlash(d.Path))); err != nil {
					t.Errorf("missing %s: %v", d.Path, err)
				}
			}
		}
	}
}

func TestExecuteRefusesToClobber(t *testing.T) {
	out := filepath.Join(t.TempDir(), "app.apks")
	require.NoError(t, os.WriteFile(out, []byte("existing"), 0o644))
	_, err := Execute(context.Background(), Command{Bundle: testBundle(t), OutputPath: out})
	var invalid *bundle.InvalidCommandError
	require.ErrorAs(t, err, &invalid)
}

type failingSigner struct{}

func (failingSigner) Sign([]byte) ([]byte, error) { return nil, errors.New("keystore unavailable") }

// A single failing unit fails the whole run; no partial container appears.
func TestExecuteUnitFailureIsFatal(t *testing.T) {
	out := filepath.Join(t.TempDir(), "app.apks")
	_, err := Execute(context.Background(), Command{
		Bundle:     testBundle(t),
		OutputPath: out,
		Signer:     failingSigner{},
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "keystore unavailable")
	if _, statErr := os.Stat(out); !os.IsNotExist(statErr) {
		t.Error("failed run left output behind")
	}
}

// An external pool stays usable after a run; only owned pools are shut
// down.
func TestExecuteLeavesExternalPoolRunning(t *testing.T) {
	pool := NewPool(2)
	dir := t.TempDir()
	execute(t, Command{
		Bundle:     testBundle(t),
		OutputPath: filepath.Join(dir, "one.apks"),
		Pool:       pool,
	})
	execute(t, Command{
		Bundle:     testBundle(t),
		OutputPath: filepath.Join(dir, "two.apks"),
		Pool:       pool,
	})

	pool.Shutdown()
	if err := pool.acquire(context.Background()); err == nil {
		t.Error("acquire succeeded on a shut-down pool")
	}
}
