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

// Package dex reads dex container headers and merges the dex contributions
// of fused modules into the classes.dex, classes2.dex, ... sequence of one
// output archive.
package dex

import (
	"encoding/binary"
	"fmt"
)

// MaxReferences is the method/field reference ceiling of a single dex file.
const MaxReferences = 65536

const headerSize = 0x70

// File is the parsed summary of one dex file: enough to enforce reference
// ceilings and locate classes, without touching code items.
type File struct {
	// MethodRefs and FieldRefs are the method_ids and field_ids counts.
	MethodRefs uint32
	FieldRefs  uint32
	// ClassNames holds each class_def's binary name, e.g.
	// "com.example.Main", in class_defs order.
	ClassNames []string

	raw []byte
}

// Size returns the size of the underlying dex file in bytes.
func (f *File) Size() int {
	return len(f.raw)
}

// Bytes returns the raw dex content.
func (f *File) Bytes() []byte {
	return f.raw
}

// Parse reads a dex file header and its class name table.
func Parse(data []byte) (*File, error) {
	if len(data) < headerSize {
		return nil, fmt.Errorf("dex: file too short (%d bytes)", len(data))
	}
	if string(data[0:4]) != "dex\n" || data[7] != 0 {
		return nil, fmt.Errorf("dex: bad magic %q", data[0:8])
	}
	version := string(data[4:7])
	switch version {
	case "035", "036", "037", "038", "039", "040", "041":
	default:
		return nil, fmt.Errorf("dex: unsupported version %q", version)
	}
	le := binary.LittleEndian
	const endianConstant = 0x12345678
	if le.Uint32(data[40:]) != endianConstant {
		return nil, fmt.Errorf("dex: big-endian files are not supported")
	}
	if fileSize := le.Uint32(data[32:]); int(fileSize) != len(data) {
		return nil, fmt.Errorf("dex: header file size %d does not match content size %d", fileSize, len(data))
	}

	f := &File{
		MethodRefs: le.Uint32(data[88:]),
		FieldRefs:  le.Uint32(data[80:]),
		raw:        data,
	}

	stringIdsSize := le.Uint32(data[56:])
	stringIdsOff := le.Uint32(data[60:])
	typeIdsSize := le.Uint32(data[64:])
	typeIdsOff := le.Uint32(data[68:])
	classDefsSize := le.Uint32(data[96:])
	classDefsOff := le.Uint32(data[100:])

	for i := uint32(0); i < classDefsSize; i++ {
		// class_def_item is 8 u4 fields; class_idx is the first.
		off := classDefsOff + i*32
		if int(off)+4 > len(data) {
			return nil, fmt.Errorf("dex: class_defs table out of bounds")
		}
		classIdx := le.Uint32(data[off:])
		if classIdx >= typeIdsSize {
			return nil, fmt.Errorf("dex: class_idx %d out of range", classIdx)
		}
		typeOff := typeIdsOff + classIdx*4
		if int(typeOff)+4 > len(data) {
			return nil, fmt.Errorf("dex: type_ids table out of bounds")
		}
		descriptorIdx := le.Uint32(data[typeOff:])
		if descriptorIdx >= stringIdsSize {
			return nil, fmt.Errorf("dex: descriptor index %d out of range", descriptorIdx)
		}
		strOff := stringIdsOff + descriptorIdx*4
		if int(strOff)+4 > len(data) {
			return nil, fmt.Errorf("dex: string_ids table out of bounds")
		}
		descriptor, err := readString(data, le.Uint32(data[strOff:]))
		if err != nil {
			return nil, err
		}
		f.ClassNames = append(f.ClassNames, descriptorToBinaryName(descriptor))
	}
	return f, nil
}

// readString decodes a string_data_item: a uleb128 utf16 length followed by
// MUTF-8 bytes. Class descriptors are plain ASCII in practice, so the
// bytes are taken as-is up to the NUL terminator.
func readString(data []byte, off uint32) (string, error) {
	i := int(off)
	if i >= len(data) {
		return "", fmt.Errorf("dex: string data offset out of bounds")
	}
	// Skip the uleb128 length.
	for i < len(data) && data[i]&0x80 != 0 {
		i++
	}
	i++
	start := i
	for i < len(data) && data[i] != 0 {
		i++
	}
	if i >= len(data) {
		return "", fmt.Errorf("dex: unterminated string data")
	}
	return string(data[start:i]), nil
}

// descriptorToBinaryName turns "Lcom/example/Main;" into
// "com.example.Main".
func descriptorToBinaryName(descriptor string) string {
	if len(descriptor) >= 2 && descriptor[0] == 'L' && descriptor[len(descriptor)-1] == ';' {
		descriptor = descriptor[1 : len(descriptor)-1]
	}
	out := make([]byte, len(descriptor))
	for i := 0; i < len(descriptor); i++ {
		if descriptor[i] == '/' {
			out[i] = '.'
		} else {
			out[i] = descriptor[i]
		}
	}
	return string(out)
}

// CheckCeiling verifies a parsed file stays under the reference ceiling.
// A single module's dex exceeding the ceiling is unrecoverable here:
// re-splitting within a module is the compiler's job, not the merger's.
func (f *File) CheckCeiling() error {
	if f.MethodRefs > MaxReferences {
		return fmt.Errorf("dex: %d method references exceed the %d ceiling", f.MethodRefs, MaxReferences)
	}
	if f.FieldRefs > MaxReferences {
		return fmt.Errorf("dex: %d field references exceed the %d ceiling", f.FieldRefs, MaxReferences)
	}
	return nil
}
