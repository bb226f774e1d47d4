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

// The orchestrator consumes resource compilation, signing and source
// stamping as narrow external services. The defaults below pass bytes
// through unchanged, which keeps library use and tests hermetic; real
// implementations wrap aapt2 and apksigner.

// ResourceCompiler turns a module's manifest XML and resource table into
// their compiled binary forms.
type ResourceCompiler interface {
	Compile(manifest, resourceTable []byte) (binaryManifest, binaryTable []byte, err error)
}

// Signer signs a finished archive. Scheme selection by target SDK floor is
// the implementation's concern.
type Signer interface {
	Sign(apk []byte) ([]byte, error)
}

// SourceStamper inserts a source stamp into an archive before signing.
type SourceStamper interface {
	Stamp(apk []byte) ([]byte, error)
}

type nopResourceCompiler struct{}

func (nopResourceCompiler) Compile(manifest, resourceTable []byte) ([]byte, []byte, error) {
	return manifest, resourceTable, nil
}

type nopSigner struct{}

func (nopSigner) Sign(apk []byte) ([]byte, error) { return apk, nil }

type nopStamper struct{}

func (nopStamper) Stamp(apk []byte) ([]byte, error) { return apk, nil }
