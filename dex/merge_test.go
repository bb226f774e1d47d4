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
	"bytes"
	"encoding/binary"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// buildDex synthesizes a minimal dex file: a header, string/type tables
// holding the class descriptors, and one class_def per class. Method and
// field tables are absent; only their header counts are set.
func buildDex(t *testing.T, methodRefs uint32, classes ...string) []byte {
	t.Helper()
	n := uint32(len(classes))
	stringIdsOff := uint32(headerSize)
	typeIdsOff := stringIdsOff + 4*n
	classDefsOff := typeIdsOff + 4*n
	dataOff := classDefsOff + 32*n

	var data bytes.Buffer
	stringOffsets := make([]uint32, n)
	for i, c := range classes {
		descriptor := "L" + strings.ReplaceAll(c, ".", "/") + ";"
		if len(descriptor) >= 128 {
			t.Fatalf("descriptor too long for test builder: %s", descriptor)
		}
		stringOffsets[i] = dataOff + uint32(data.Len())
		data.WriteByte(byte(len(descriptor)))
		data.WriteString(descriptor)
		data.WriteByte(0)
	}
	fileSize := dataOff + uint32(data.Len())

	out := make([]byte, headerSize, fileSize)
	copy(out, "dex\n035\x00")
	le := binary.LittleEndian
	le.PutUint32(out[32:], fileSize)
	le.PutUint32(out[36:], headerSize)
	le.PutUint32(out[40:], 0x12345678)
	le.PutUint32(out[56:], n)
	le.PutUint32(out[60:], stringIdsOff)
	le.PutUint32(out[64:], n)
	le.PutUint32(out[68:], typeIdsOff)
	le.PutUint32(out[88:], methodRefs)
	le.PutUint32(out[92:], fileSize) // method_ids_off, unused by the parser
	le.PutUint32(out[96:], n)
	le.PutUint32(out[100:], classDefsOff)

	for _, off := range stringOffsets {
		out = le.AppendUint32(out, off)
	}
	for i := uint32(0); i < n; i++ {
		out = le.AppendUint32(out, i)
	}
	for i := uint32(0); i < n; i++ {
		classDef := make([]byte, 32)
		le.PutUint32(classDef, i)
		out = append(out, classDef...)
	}
	out = append(out, data.Bytes()...)
	if uint32(len(out)) != fileSize {
		t.Fatalf("builder produced %d bytes, want %d", len(out), fileSize)
	}
	return out
}

func mergedNames(files []MergedFile) []string {
	var names []string
	for _, f := range files {
		names = append(names, f.Name)
	}
	return names
}

func TestParse(t *testing.T) {
	blob := buildDex(t, 1234, "com.example.Main", "com.example.Util")
	f, err := Parse(blob)
	if err != nil {
		t.Fatal(err)
	}
	if f.MethodRefs != 1234 {
		t.Errorf("MethodRefs = %d, want 1234", f.MethodRefs)
	}
	if diff := cmp.Diff([]string{"com.example.Main", "com.example.Util"}, f.ClassNames); diff != "" {
		t.Errorf("class names (-want +got):\n%s", diff)
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	if _, err := Parse([]byte("not a dex file, not even close, not at all........................................................................")); err == nil {
		t.Error("Parse accepted garbage")
	}
	blob := buildDex(t, 1, "com.example.A")
	blob[4] = '9' // version 935
	if _, err := Parse(blob); err == nil {
		t.Error("Parse accepted unsupported version")
	}
}

func TestMergeSequencesInModuleOrder(t *testing.T) {
	base := buildDex(t, 10, "com.example.Main")
	base2 := buildDex(t, 10, "com.example.Second")
	feature := buildDex(t, 10, "com.example.feature.Entry")

	out, err := Merge([]ModuleDex{
		{ModuleName: "base", Files: [][]byte{base, base2}},
		{ModuleName: "feature", Files: [][]byte{feature}},
	}, Options{MinSdkVersion: 21})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"classes.dex", "classes2.dex", "classes3.dex"}, mergedNames(out)); diff != "" {
		t.Errorf("merged names (-want +got):\n%s", diff)
	}
	if !bytes.Equal(out[0].Content, base) || !bytes.Equal(out[2].Content, feature) {
		t.Error("merged content does not preserve module order")
	}
}

func TestMergeDeterministic(t *testing.T) {
	modules := func() []ModuleDex {
		return []ModuleDex{
			{ModuleName: "base", Files: [][]byte{buildDex(t, 5, "a.A"), buildDex(t, 5, "a.B")}},
			{ModuleName: "feature", Files: [][]byte{buildDex(t, 5, "b.C")}},
		}
	}
	first, err := Merge(modules(), Options{MinSdkVersion: 21})
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		again, err := Merge(modules(), Options{MinSdkVersion: 21})
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(first, again); diff != "" {
			t.Fatalf("merge %d differs (-first +again):\n%s", i, diff)
		}
	}
}

func TestMergeMainDexFirstFile(t *testing.T) {
	first := buildDex(t, 5, "com.example.Application", "com.example.Main")
	second := buildDex(t, 5, "com.example.Other")
	out, err := Merge(
		[]ModuleDex{{ModuleName: "base", Files: [][]byte{first, second}}},
		Options{MinSdkVersion: 21, MainDexClasses: []string{"com.example.Application"}})
	if err != nil {
		t.Fatal(err)
	}
	f, err := Parse(out[0].Content)
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, c := range f.ClassNames {
		if c == "com.example.Application" {
			found = true
		}
	}
	if !found {
		t.Error("main dex class missing from classes.dex")
	}
}

func TestMergeMainDexViolationWithoutCompiler(t *testing.T) {
	first := buildDex(t, 5, "com.example.Main")
	second := buildDex(t, 5, "com.example.Application")
	_, err := Merge(
		[]ModuleDex{{ModuleName: "base", Files: [][]byte{first, second}}},
		Options{MinSdkVersion: 21, MainDexClasses: []string{"com.example.Application"}})
	if err == nil {
		t.Fatal("Merge succeeded with main dex class outside the first file and no compiler")
	}
}

// reorderingCompiler pretends to be a dex compiler by reordering whole
// files so that main-dex classes end up first.
type reorderingCompiler struct{}

func (reorderingCompiler) MergeDex(files [][]byte, mainDexClasses []string) ([][]byte, error) {
	want := map[string]bool{}
	for _, c := range mainDexClasses {
		want[c] = true
	}
	var first, rest [][]byte
	for _, blob := range files {
		f, err := Parse(blob)
		if err != nil {
			return nil, err
		}
		hasMain := false
		for _, c := range f.ClassNames {
			if want[c] {
				hasMain = true
			}
		}
		if hasMain && first == nil {
			first = [][]byte{blob}
		} else {
			rest = append(rest, blob)
		}
	}
	return append(first, rest...), nil
}

func TestMergeMainDexViaCompiler(t *testing.T) {
	first := buildDex(t, 5, "com.example.Main")
	second := buildDex(t, 5, "com.example.Application")
	out, err := Merge(
		[]ModuleDex{{ModuleName: "base", Files: [][]byte{first, second}}},
		Options{
			MinSdkVersion:  21,
			MainDexClasses: []string{"com.example.Application"},
			Compiler:       reorderingCompiler{},
		})
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out[0].Content, second) {
		t.Error("compiler-ordered main dex file is not first")
	}
}

func TestMergeLegacyMultidexNeedsCompiler(t *testing.T) {
	a := buildDex(t, 5, "a.A")
	b := buildDex(t, 5, "b.B")
	_, err := Merge([]ModuleDex{
		{ModuleName: "base", Files: [][]byte{a}},
		{ModuleName: "feature", Files: [][]byte{b}},
	}, Options{MinSdkVersion: 19})
	if err == nil {
		t.Fatal("Merge succeeded below the native multidex floor without a compiler")
	}
}

func TestMergeCeiling(t *testing.T) {
	over := buildDex(t, MaxReferences+1, "a.A")
	_, err := Merge([]ModuleDex{{ModuleName: "base", Files: [][]byte{over}}}, Options{MinSdkVersion: 21})
	if err == nil {
		t.Fatal("Merge accepted a dex file over the reference ceiling")
	}
	if !strings.Contains(err.Error(), "ceiling") {
		t.Errorf("err = %v, want reference ceiling error", err)
	}
}

func TestSequenceName(t *testing.T) {
	for i, want := range []string{"classes.dex", "classes2.dex", "classes3.dex"} {
		if got := SequenceName(i); got != want {
			t.Errorf("SequenceName(%d) = %q, want %q", i, got, want)
		}
	}
	if got := SequenceName(10); got != "classes11.dex" {
		t.Errorf("SequenceName(10) = %q", got)
	}
}
