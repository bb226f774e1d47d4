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

package dex

import (
	"fmt"
)

// nativeMultidexSdk is the SDK version from which the platform loads
// additional classesN.dex files natively, making byte-level fusion of
// several dex files unnecessary.
const nativeMultidexSdk = 21

// ModuleDex is one module's ordered dex contribution.
type ModuleDex struct {
	ModuleName string
	Files      [][]byte
}

// MergedFile is one output dex entry.
type MergedFile struct {
	// Name is the archive entry name: classes.dex, classes2.dex, ...
	Name    string
	Content []byte
}

// Compiler fuses several dex files into as few files as the reference
// ceiling allows, keeping main-dex-listed classes in the first output.
// Implementations wrap an external dex compiler; merging bytecode is not
// done in-process.
type Compiler interface {
	MergeDex(files [][]byte, mainDexClasses []string) ([][]byte, error)
}

// Options configure a merge.
type Options struct {
	// MinSdkVersion of the artifact being assembled. Below the native
	// multidex floor every class must land in classes.dex, which requires
	// a Compiler.
	MinSdkVersion int32
	// MainDexClasses must end up in the first output file.
	MainDexClasses []string
	// Compiler is consulted only when sequencing alone cannot satisfy the
	// constraints.
	Compiler Compiler
}

// Merge combines the dex files of the given modules, in module order, into
// the output sequence of one merged artifact.
//
// On devices with native multidex the platform loads every classesN.dex,
// so merging is a deterministic renaming of the inputs in order. Below
// that floor, or when the main-dex list spans inputs, the configured
// Compiler performs the actual fusion. Identical inputs always produce
// identical outputs regardless of concurrency.
func Merge(modules []ModuleDex, opts Options) ([]MergedFile, error) {
	var parsed []*File
	var owners []string
	for _, m := range modules {
		for i, blob := range m.Files {
			f, err := Parse(blob)
			if err != nil {
				return nil, fmt.Errorf("module %s dex %d: %w", m.ModuleName, i, err)
			}
			if err := f.CheckCeiling(); err != nil {
				return nil, fmt.Errorf("module %s dex %d: %w", m.ModuleName, i, err)
			}
			parsed = append(parsed, f)
			owners = append(owners, m.ModuleName)
		}
	}
	if len(parsed) == 0 {
		return nil, nil
	}

	if opts.MinSdkVersion < nativeMultidexSdk && len(parsed) > 1 {
		return compileMerge(parsed, opts)
	}

	if len(opts.MainDexClasses) > 0 {
		missing := mainDexMissingFromFirst(parsed, opts.MainDexClasses)
		if len(missing) > 0 {
			if opts.Compiler == nil {
				return nil, fmt.Errorf(
					"dex merge: main dex classes %v are not in the first dex file of %s and no dex compiler is configured",
					missing, owners[0])
			}
			return compileMerge(parsed, opts)
		}
	}

	out := make([]MergedFile, len(parsed))
	for i, f := range parsed {
		out[i] = MergedFile{Name: SequenceName(i), Content: f.Bytes()}
	}
	return out, nil
}

func compileMerge(parsed []*File, opts Options) ([]MergedFile, error) {
	if opts.Compiler == nil {
		return nil, fmt.Errorf("dex merge: min sdk %d requires fusing %d dex files but no dex compiler is configured",
			opts.MinSdkVersion, len(parsed))
	}
	inputs := make([][]byte, len(parsed))
	for i, f := range parsed {
		inputs[i] = f.Bytes()
	}
	merged, err := opts.Compiler.MergeDex(inputs, opts.MainDexClasses)
	if err != nil {
		return nil, fmt.Errorf("dex merge: %w", err)
	}
	out := make([]MergedFile, 0, len(merged))
	for i, blob := range merged {
		f, err := Parse(blob)
		if err != nil {
			return nil, fmt.Errorf("dex merge: compiler output %d: %w", i, err)
		}
		if err := f.CheckCeiling(); err != nil {
			return nil, fmt.Errorf("dex merge: compiler output %d: %w", i, err)
		}
		out = append(out, MergedFile{Name: SequenceName(i), Content: blob})
	}
	if len(opts.MainDexClasses) > 0 {
		if missing := mainDexMissingFromFirst(parsedFiles(out), opts.MainDexClasses); len(missing) > 0 {
			return nil, fmt.Errorf("dex merge: compiler left main dex classes %v outside classes.dex", missing)
		}
	}
	return out, nil
}

func parsedFiles(files []MergedFile) []*File {
	var out []*File
	for _, f := range files {
		// Content was produced by Parse round trips above; errors cannot
		// occur here.
		p, err := Parse(f.Content)
		if err != nil {
			continue
		}
		out = append(out, p)
	}
	return out
}

// mainDexMissingFromFirst returns the main-dex-listed classes that exist
// somewhere in the inputs but not in the first file.
func mainDexMissingFromFirst(parsed []*File, mainDex []string) []string {
	if len(parsed) == 0 {
		return nil
	}
	first := map[string]bool{}
	for _, c := range parsed[0].ClassNames {
		first[c] = true
	}
	anywhere := map[string]bool{}
	for _, f := range parsed {
		for _, c := range f.ClassNames {
			anywhere[c] = true
		}
	}
	var missing []string
	for _, c := range mainDex {
		if anywhere[c] && !first[c] {
			missing = append(missing, c)
		}
	}
	return missing
}

// SequenceName returns the archive entry name of the i-th dex file:
// classes.dex, classes2.dex, classes3.dex, ...
func SequenceName(i int) string {
	if i == 0 {
		return "classes.dex"
	}
	return fmt.Sprintf("classes%d.dex", i+1)
}
