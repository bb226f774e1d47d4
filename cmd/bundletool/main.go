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

// Command bundletool builds APK sets from Android app bundles and extracts
// the APKs a concrete device would receive from a generated set.
package main

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"android/bundletool/build"
	"android/bundletool/bundle"
	"android/bundletool/bundleproto"
	"android/bundletool/device"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	log := newLogger()
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var err error
	switch os.Args[1] {
	case "build-apks":
		err = runBuildApks(ctx, log, os.Args[2:])
	case "extract-apks":
		err = runExtractApks(log, os.Args[2:])
	case "version":
		fmt.Println(build.ToolVersion)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", os.Args[1])
		usage()
		os.Exit(2)
	}
	if err != nil {
		var invalid *bundle.InvalidCommandError
		if errors.As(err, &invalid) {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(2)
		}
		log.Error("command failed", zap.Error(err))
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprint(os.Stderr, `usage: bundletool <command> [flags]

commands:
  build-apks    generate an APK set from an app bundle
  extract-apks  copy the APKs a device would receive out of an APK set
  version       print the tool version
`)
}

func newLogger() *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.DisableCaller = true
	log, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	return log
}

var buildModeByName = map[string]bundle.BuildMode{
	"default":     bundle.ModePersistent,
	"persistent":  bundle.ModePersistent,
	"instant":     bundle.ModeInstant,
	"archive":     bundle.ModeArchive,
	"assets-only": bundle.ModeAssetsOnly,
}

func runBuildApks(ctx context.Context, log *zap.Logger, args []string) error {
	flags := pflag.NewFlagSet("build-apks", pflag.ExitOnError)
	bundlePath := flags.String("bundle", "", "path to the input .aab bundle (required)")
	output := flags.String("output", "", "path of the .apks container to write (required)")
	outputFormat := flags.String("output-format", "apks", `"apks" for a container zip, "directory" for a plain tree`)
	mode := flags.String("mode", "default", "default, instant, archive or assets-only")
	modules := flags.StringSlice("modules", nil, "modules to include (default: all install-time modules)")
	deviceSpecPath := flags.String("device-spec", "", "device spec JSON limiting resolution to one device")
	universal := flags.Bool("universal", false, "produce a single universal APK")
	system := flags.Bool("system", false, "produce a system-partition APK")
	overwrite := flags.Bool("overwrite", false, "replace the output if it already exists")
	workers := flags.Int("workers", 0, "concurrent APK builders (default: number of CPUs)")
	firstVariant := flags.Uint32("first-variant-number", 0, "variant number assigned to the first variant")
	mainDexList := flags.String("main-dex-list", "", "file listing classes that must land in the first dex")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *bundlePath == "" || *output == "" {
		return bundle.InvalidCommandf("build-apks requires --bundle and --output")
	}
	buildMode, ok := buildModeByName[*mode]
	if !ok {
		return bundle.InvalidCommandf("unknown mode %q", *mode)
	}

	var spec *device.Spec
	if *deviceSpecPath != "" {
		data, err := os.ReadFile(*deviceSpecPath)
		if err != nil {
			return err
		}
		if spec, err = device.ParseSpec(data); err != nil {
			return err
		}
	}

	var mainDexClasses []string
	if *mainDexList != "" {
		data, err := os.ReadFile(*mainDexList)
		if err != nil {
			return err
		}
		for _, line := range strings.Split(string(data), "\n") {
			if line = strings.TrimSpace(line); line != "" {
				mainDexClasses = append(mainDexClasses, line)
			}
		}
	}

	b, err := bundle.Load(*bundlePath, xmlManifestParser{})
	if err != nil {
		return err
	}
	log.Info("loaded bundle",
		zap.String("package", b.PackageName()),
		zap.Int("modules", len(b.Modules)))

	res, err := build.Execute(ctx, build.Command{
		Bundle:           b,
		Mode:             buildMode,
		RequestedModules: *modules,
		DeviceSpec:       spec,
		Universal:        *universal,
		System:           *system,
		VariantOffset:    *firstVariant,
		MainDexClasses:   mainDexClasses,
		OutputPath:       *output,
		OutputDirectory:  *outputFormat == "directory",
		Overwrite:        *overwrite,
		Workers:          *workers,
		Logger:           log,
	})
	if err != nil {
		return err
	}
	log.Info("wrote APK set",
		zap.String("output", res.OutputPath),
		zap.Int("variants", len(res.Toc.Variants)))
	return nil
}

func runExtractApks(log *zap.Logger, args []string) error {
	flags := pflag.NewFlagSet("extract-apks", pflag.ExitOnError)
	apksPath := flags.String("apks", "", "path to the .apks container (required)")
	deviceSpecPath := flags.String("device-spec", "", "device spec JSON (required)")
	outputDir := flags.String("output-dir", ".", "directory receiving the extracted APKs")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *apksPath == "" || *deviceSpecPath == "" {
		return bundle.InvalidCommandf("extract-apks requires --apks and --device-spec")
	}
	data, err := os.ReadFile(*deviceSpecPath)
	if err != nil {
		return err
	}
	spec, err := device.ParseSpec(data)
	if err != nil {
		return err
	}

	extracted, err := extractApks(*apksPath, spec, *outputDir)
	if err != nil {
		return err
	}
	for _, path := range extracted {
		log.Info("extracted", zap.String("apk", path))
	}
	return nil
}

// extractApks copies the APKs the device would install from the container
// into outputDir, preserving the container's relative paths.
func extractApks(apksPath string, spec *device.Spec, outputDir string) ([]string, error) {
	r, err := zip.OpenReader(apksPath)
	if err != nil {
		return nil, fmt.Errorf("opening APK set %s: %w", apksPath, err)
	}
	defer r.Close()

	entries := make(map[string]*zip.File, len(r.File))
	for _, f := range r.File {
		entries[f.Name] = f
	}
	tocEntry, ok := entries[build.TocEntryName]
	if !ok {
		return nil, fmt.Errorf("%s: missing %s entry", apksPath, build.TocEntryName)
	}
	tocData, err := readEntry(tocEntry)
	if err != nil {
		return nil, err
	}
	toc := &bundleproto.BuildApksResult{}
	if err := toc.Unmarshal(tocData); err != nil {
		return nil, fmt.Errorf("%s: decoding %s: %w", apksPath, build.TocEntryName, err)
	}

	matched, err := device.MatchApks(toc, spec)
	if err != nil {
		return nil, err
	}

	var out []string
	for _, apk := range matched {
		f, ok := entries[apk.Path]
		if !ok {
			return nil, fmt.Errorf("%s: APK %s listed in the table of contents is missing", apksPath, apk.Path)
		}
		data, err := readEntry(f)
		if err != nil {
			return nil, err
		}
		dst := filepath.Join(outputDir, filepath.FromSlash(apk.Path))
		if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
			return nil, err
		}
		if err := os.WriteFile(dst, data, 0644); err != nil {
			return nil, err
		}
		out = append(out, dst)
	}
	return out, nil
}

func readEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
