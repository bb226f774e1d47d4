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

// Package build drives end-to-end APK set generation: module resolution,
// plan generation, concurrent archive building and table-of-contents
// assembly. Building is embarrassingly parallel; the plan is computed fully
// before the first archive is written, so worker count can never change
// what gets built.
package build

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"android/bundletool/bundle"
	"android/bundletool/bundleproto"
	"android/bundletool/dex"
	"android/bundletool/device"
	"android/bundletool/split"
)

// ToolVersion is recorded in the table of contents of every generated set.
const ToolVersion = "1.15.6"

// TocEntryName is the table-of-contents entry inside the output container.
const TocEntryName = "toc.pb"

// Stage names the orchestrator's phase. Stages advance strictly forward;
// Failed is terminal and reachable from anywhere.
type Stage int

const (
	StageResolving Stage = iota
	StageSharding
	StageBuilding
	StageAssembling
	StageDone
	StageFailed
)

var stageName = map[Stage]string{
	StageResolving:  "resolving",
	StageSharding:   "sharding",
	StageBuilding:   "building",
	StageAssembling: "assembling",
	StageDone:       "done",
	StageFailed:     "failed",
}

func (s Stage) String() string {
	return stageName[s]
}

// Command holds everything one run needs. The bundle is read-only for the
// duration of the run.
type Command struct {
	Bundle *bundle.AppBundle

	Mode             bundle.BuildMode
	RequestedModules []string
	DeviceSpec       *device.Spec
	Universal        bool
	System           bool
	VariantOffset    uint32
	MainDexClasses   []string
	DexCompiler      dex.Compiler

	// OutputPath is the .apks container to write, or a directory when
	// OutputDirectory is set.
	OutputPath      string
	OutputDirectory bool
	Overwrite       bool

	// Pool, when set, is owned by the caller and is not shut down on exit.
	// When nil the run creates its own pool of Workers goroutines and owns
	// its full lifecycle.
	Pool    *Pool
	Workers int

	ResourceCompiler ResourceCompiler
	Signer           Signer
	Stamper          SourceStamper

	Logger *zap.Logger
}

// Result reports a finished run.
type Result struct {
	OutputPath string
	Toc        *bundleproto.BuildApksResult
}

// Execute runs the full pipeline and blocks until every archive is built
// and the container is written, or until the first failure.
func Execute(ctx context.Context, cmd Command) (*Result, error) {
	log := cmd.Logger
	if log == nil {
		log = zap.NewNop()
	}
	r := &run{cmd: cmd, log: log}
	res, err := r.execute(ctx)
	if err != nil {
		r.advance(StageFailed)
		return nil, err
	}
	r.advance(StageDone)
	return res, nil
}

type run struct {
	cmd   Command
	log   *zap.Logger
	stage Stage
}

func (r *run) advance(s Stage) {
	r.stage = s
	r.log.Info("stage", zap.Stringer("stage", s))
}

func (r *run) execute(ctx context.Context) (*Result, error) {
	cmd := r.cmd
	if cmd.Bundle == nil {
		return nil, bundle.InvalidCommandf("no bundle to build")
	}
	if cmd.OutputPath == "" {
		return nil, bundle.InvalidCommandf("no output path")
	}
	if !cmd.Overwrite {
		if _, err := os.Stat(cmd.OutputPath); err == nil {
			return nil, bundle.InvalidCommandf("output %q already exists", cmd.OutputPath)
		}
	}

	pool := cmd.Pool
	if pool == nil {
		workers := cmd.Workers
		if workers <= 0 {
			workers = runtime.GOMAXPROCS(0)
		}
		pool = NewPool(workers)
		defer pool.Shutdown()
	}
	rc := cmd.ResourceCompiler
	if rc == nil {
		rc = nopResourceCompiler{}
	}
	signer := cmd.Signer
	if signer == nil {
		signer = nopSigner{}
	}
	stamper := cmd.Stamper
	if stamper == nil {
		stamper = nopStamper{}
	}

	r.advance(StageResolving)
	res, err := bundle.ResolveModules(cmd.Bundle, cmd.Mode, cmd.RequestedModules, cmd.DeviceSpec)
	if err != nil {
		return nil, err
	}
	r.log.Info("resolved modules",
		zap.Int("packaged", len(res.Packaged)), zap.Strings("fused", res.FusedNames()))

	r.advance(StageSharding)
	plan, err := split.GeneratePlan(cmd.Bundle, res, split.Options{
		Mode:           cmd.Mode,
		Universal:      cmd.Universal,
		System:         cmd.System,
		VariantOffset:  cmd.VariantOffset,
		MainDexClasses: cmd.MainDexClasses,
		DexCompiler:    cmd.DexCompiler,
	})
	if err != nil {
		return nil, err
	}
	r.log.Info("planned output",
		zap.Int("variants", len(plan.Variants)), zap.Int("apks", len(plan.Apks)))

	r.advance(StageBuilding)
	// Results land in plan order regardless of completion order; only the
	// index each worker writes to is shared, never the slot contents.
	built := make([][]byte, len(plan.Apks))
	g, gctx := errgroup.WithContext(ctx)
	for i, unit := range plan.Apks {
		i, unit := i, unit
		g.Go(func() error {
			if err := pool.acquire(gctx); err != nil {
				return err
			}
			defer pool.release()
			apk, err := buildApk(unit, rc, signer, stamper)
			if err != nil {
				return fmt.Errorf("building %s: %w", unit.Description.Path, err)
			}
			built[i] = apk
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	r.advance(StageAssembling)
	toc := assembleToc(cmd.Bundle, plan)
	if err := writeOutput(cmd, plan, built, toc); err != nil {
		return nil, err
	}
	return &Result{OutputPath: cmd.OutputPath, Toc: toc}, nil
}

// assembleToc serializes the plan into the container's table of contents.
// The plan is already in final order; assembly adds only bundle-level
// metadata.
func assembleToc(b *bundle.AppBundle, plan *split.Plan) *bundleproto.BuildApksResult {
	toc := &bundleproto.BuildApksResult{
		Bundletool:             &bundleproto.Bundletool{Version: ToolVersion},
		Variants:               plan.Variants,
		PackageName:            b.PackageName(),
		AssetSliceSets:         plan.AssetSliceSets,
		DefaultTargetingValues: plan.DefaultTargetingValues,
	}
	for _, name := range plan.PermanentlyFusedModules {
		toc.PermanentlyFusedModules = append(toc.PermanentlyFusedModules,
			&bundleproto.PermanentlyFusedModule{Name: name})
	}
	return toc
}

// writeOutput publishes the built archives plus the TOC, either as one
// .apks zip container or as a directory tree.
func writeOutput(cmd Command, plan *split.Plan, built [][]byte, toc *bundleproto.BuildApksResult) error {
	tocBytes := toc.Marshal(nil)
	if cmd.OutputDirectory {
		for i, unit := range plan.Apks {
			path := filepath.Join(cmd.OutputPath, filepath.FromSlash(unit.Description.Path))
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return err
			}
			if err := os.WriteFile(path, built[i], 0o644); err != nil {
				return err
			}
		}
		return os.WriteFile(filepath.Join(cmd.OutputPath, TocEntryName), tocBytes, 0o644)
	}

	entries := make([]bundle.Entry, 0, len(built)+1)
	entries = append(entries, bundle.Entry{Path: TocEntryName, Content: tocBytes})
	for i, unit := range plan.Apks {
		entries = append(entries, bundle.Entry{Path: unit.Description.Path, Content: built[i]})
	}
	container, err := writeZip(entries, nil)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(cmd.OutputPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(cmd.OutputPath, container, 0o644)
}
