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

package bundleproto

import (
	"google.golang.org/protobuf/encoding/protowire"
)

// DeliveryType describes when a module is delivered to the device.
type DeliveryType int32

const (
	DeliveryUnknown     DeliveryType = 0
	DeliveryInstallTime DeliveryType = 1
	DeliveryOnDemand    DeliveryType = 2
	DeliveryFastFollow  DeliveryType = 3
)

var deliveryTypeName = map[DeliveryType]string{
	DeliveryUnknown:     "UNKNOWN_DELIVERY_TYPE",
	DeliveryInstallTime: "INSTALL_TIME",
	DeliveryOnDemand:    "ON_DEMAND",
	DeliveryFastFollow:  "FAST_FOLLOW",
}

func (t DeliveryType) String() string {
	if s, ok := deliveryTypeName[t]; ok {
		return s
	}
	return "UNKNOWN_DELIVERY_TYPE"
}

// SplitDimension names an optimization dimension in the TOC's
// default-targeting-value records.
type SplitDimension int32

const (
	DimensionUnspecified              SplitDimension = 0
	DimensionAbi                      SplitDimension = 1
	DimensionScreenDensity            SplitDimension = 2
	DimensionLanguage                 SplitDimension = 3
	DimensionTextureCompressionFormat SplitDimension = 4
	DimensionDeviceTier               SplitDimension = 5
)

var splitDimensionName = map[SplitDimension]string{
	DimensionUnspecified:              "UNSPECIFIED_VALUE",
	DimensionAbi:                      "ABI",
	DimensionScreenDensity:            "SCREEN_DENSITY",
	DimensionLanguage:                 "LANGUAGE",
	DimensionTextureCompressionFormat: "TEXTURE_COMPRESSION_FORMAT",
	DimensionDeviceTier:               "DEVICE_TIER",
}

func (d SplitDimension) String() string {
	if s, ok := splitDimensionName[d]; ok {
		return s
	}
	return "UNSPECIFIED_VALUE"
}

// SystemApkType distinguishes the flavors of system-partition APKs.
type SystemApkType int32

const (
	SystemApkUnspecified SystemApkType = 0
	SystemApkSystem      SystemApkType = 1
	SystemApkStub        SystemApkType = 2
	SystemApkCompressed  SystemApkType = 3
)

// Bundletool records which tool version produced the APK set.
type Bundletool struct {
	Version string
}

// ModuleMetadata is the per-module snapshot serialized into every ApkSet.
type ModuleMetadata struct {
	Name         string
	IsInstant    bool
	Dependencies []string
	Targeting    *ModuleTargeting
	DeliveryType DeliveryType
}

// SplitApkMetadata marks an APK produced by per-module splitting.
type SplitApkMetadata struct {
	SplitId       string
	IsMasterSplit bool
}

// StandaloneApkMetadata marks a fused standalone or universal APK.
type StandaloneApkMetadata struct {
	FusedModuleNames []string
}

// InstantApkMetadata marks an instant-app split.
type InstantApkMetadata struct {
	SplitId       string
	IsMasterSplit bool
}

// SystemApkMetadata marks a fused system-partition APK.
type SystemApkMetadata struct {
	FusedModuleNames []string
	SystemApkType    SystemApkType
}

// AssetSliceMetadata marks an asset-pack slice.
type AssetSliceMetadata struct {
	SplitId       string
	IsMasterSplit bool
}

// ArchivedApkMetadata marks the minimal APK produced by archive mode.
type ArchivedApkMetadata struct{}

// ApkDescription ties one physical archive to its targeting and kind.
// Exactly one of the *Metadata fields is set.
type ApkDescription struct {
	Targeting *ApkTargeting
	Path      string

	SplitApkMetadata      *SplitApkMetadata
	StandaloneApkMetadata *StandaloneApkMetadata
	InstantApkMetadata    *InstantApkMetadata
	SystemApkMetadata     *SystemApkMetadata
	AssetSliceMetadata    *AssetSliceMetadata
	ArchivedApkMetadata   *ArchivedApkMetadata
}

// ApkSet groups the APKs generated for one module within one variant.
type ApkSet struct {
	ModuleMetadata  *ModuleMetadata
	ApkDescriptions []*ApkDescription
}

// VariantProperties records which packaging optimizations the variant uses.
type VariantProperties struct {
	UncompressedDex             bool
	UncompressedNativeLibraries bool
	SparseEncoding              bool
}

// Variant is one build flavor: a coarse targeting plus its APK sets.
type Variant struct {
	Targeting     *VariantTargeting
	ApkSets       []*ApkSet
	VariantNumber uint32
	Properties    *VariantProperties
}

// AssetModuleMetadata is the snapshot serialized into an asset slice set.
type AssetModuleMetadata struct {
	Name         string
	DeliveryType DeliveryType
}

// AssetSliceSet groups the slices generated for one asset module.
type AssetSliceSet struct {
	AssetModuleMetadata *AssetModuleMetadata
	ApkDescriptions     []*ApkDescription
}

// DefaultTargetingValue records, per dimension, which value a device with
// no matching targeting data should receive.
type DefaultTargetingValue struct {
	Dimension    SplitDimension
	DefaultValue string
}

// PermanentlyFusedModule names a module that was fused into the base and
// can never be requested separately.
type PermanentlyFusedModule struct {
	Name string
}

// BuildApksResult is the table of contents of a generated APK set.
type BuildApksResult struct {
	Bundletool              *Bundletool
	Variants                []*Variant
	PackageName             string
	AssetSliceSets          []*AssetSliceSet
	PermanentlyFusedModules []*PermanentlyFusedModule
	DefaultTargetingValues  []*DefaultTargetingValue
}

func (x *Bundletool) Marshal(b []byte) []byte {
	if x == nil {
		return b
	}
	if x.Version != "" {
		b = appendString(b, 2, x.Version)
	}
	return b
}

func (x *ModuleMetadata) Marshal(b []byte) []byte {
	if x == nil {
		return b
	}
	if x.Name != "" {
		b = appendString(b, 1, x.Name)
	}
	b = appendBool(b, 3, x.IsInstant)
	for _, d := range x.Dependencies {
		b = appendString(b, 4, d)
	}
	if x.Targeting != nil {
		b = appendMsg(b, 5, x.Targeting.Marshal(nil))
	}
	if x.DeliveryType != DeliveryUnknown {
		b = appendVarint(b, 6, uint64(x.DeliveryType))
	}
	return b
}

func (x *SplitApkMetadata) Marshal(b []byte) []byte {
	if x.SplitId != "" {
		b = appendString(b, 1, x.SplitId)
	}
	return appendBool(b, 2, x.IsMasterSplit)
}

func (x *StandaloneApkMetadata) Marshal(b []byte) []byte {
	for _, m := range x.FusedModuleNames {
		b = appendString(b, 1, m)
	}
	return b
}

func (x *InstantApkMetadata) Marshal(b []byte) []byte {
	if x.SplitId != "" {
		b = appendString(b, 1, x.SplitId)
	}
	return appendBool(b, 2, x.IsMasterSplit)
}

func (x *SystemApkMetadata) Marshal(b []byte) []byte {
	for _, m := range x.FusedModuleNames {
		b = appendString(b, 1, m)
	}
	if x.SystemApkType != SystemApkUnspecified {
		b = appendVarint(b, 2, uint64(x.SystemApkType))
	}
	return b
}

func (x *AssetSliceMetadata) Marshal(b []byte) []byte {
	if x.SplitId != "" {
		b = appendString(b, 1, x.SplitId)
	}
	return appendBool(b, 2, x.IsMasterSplit)
}

func (x *ApkDescription) Marshal(b []byte) []byte {
	if x == nil {
		return b
	}
	if x.Targeting != nil {
		b = appendMsg(b, 1, x.Targeting.Marshal(nil))
	}
	if x.Path != "" {
		b = appendString(b, 2, x.Path)
	}
	switch {
	case x.SplitApkMetadata != nil:
		b = appendMsg(b, 3, x.SplitApkMetadata.Marshal(nil))
	case x.StandaloneApkMetadata != nil:
		b = appendMsg(b, 4, x.StandaloneApkMetadata.Marshal(nil))
	case x.InstantApkMetadata != nil:
		b = appendMsg(b, 5, x.InstantApkMetadata.Marshal(nil))
	case x.SystemApkMetadata != nil:
		b = appendMsg(b, 6, x.SystemApkMetadata.Marshal(nil))
	case x.AssetSliceMetadata != nil:
		b = appendMsg(b, 7, x.AssetSliceMetadata.Marshal(nil))
	case x.ArchivedApkMetadata != nil:
		b = appendMsg(b, 9, nil)
	}
	return b
}

func (x *ApkSet) Marshal(b []byte) []byte {
	if x == nil {
		return b
	}
	if x.ModuleMetadata != nil {
		b = appendMsg(b, 1, x.ModuleMetadata.Marshal(nil))
	}
	for _, d := range x.ApkDescriptions {
		b = appendMsg(b, 2, d.Marshal(nil))
	}
	return b
}

func (x *VariantProperties) Marshal(b []byte) []byte {
	if x == nil {
		return b
	}
	b = appendBool(b, 1, x.UncompressedDex)
	b = appendBool(b, 2, x.UncompressedNativeLibraries)
	b = appendBool(b, 3, x.SparseEncoding)
	return b
}

func (x *Variant) Marshal(b []byte) []byte {
	if x == nil {
		return b
	}
	if x.Targeting != nil {
		b = appendMsg(b, 1, x.Targeting.Marshal(nil))
	}
	for _, s := range x.ApkSets {
		b = appendMsg(b, 2, s.Marshal(nil))
	}
	if x.VariantNumber != 0 {
		b = appendVarint(b, 3, uint64(x.VariantNumber))
	}
	if x.Properties != nil {
		b = appendMsg(b, 4, x.Properties.Marshal(nil))
	}
	return b
}

func (x *AssetModuleMetadata) Marshal(b []byte) []byte {
	if x == nil {
		return b
	}
	if x.Name != "" {
		b = appendString(b, 1, x.Name)
	}
	if x.DeliveryType != DeliveryUnknown {
		b = appendVarint(b, 4, uint64(x.DeliveryType))
	}
	return b
}

func (x *AssetSliceSet) Marshal(b []byte) []byte {
	if x == nil {
		return b
	}
	if x.AssetModuleMetadata != nil {
		b = appendMsg(b, 1, x.AssetModuleMetadata.Marshal(nil))
	}
	for _, d := range x.ApkDescriptions {
		b = appendMsg(b, 2, d.Marshal(nil))
	}
	return b
}

func (x *DefaultTargetingValue) Marshal(b []byte) []byte {
	if x == nil {
		return b
	}
	if x.Dimension != DimensionUnspecified {
		b = appendVarint(b, 1, uint64(x.Dimension))
	}
	if x.DefaultValue != "" {
		b = appendString(b, 2, x.DefaultValue)
	}
	return b
}

func (x *PermanentlyFusedModule) Marshal(b []byte) []byte {
	if x == nil {
		return b
	}
	if x.Name != "" {
		b = appendString(b, 1, x.Name)
	}
	return b
}

// Marshal encodes the full table of contents.
func (x *BuildApksResult) Marshal(b []byte) []byte {
	if x == nil {
		return b
	}
	if x.Bundletool != nil {
		b = appendMsg(b, 1, x.Bundletool.Marshal(nil))
	}
	for _, v := range x.Variants {
		b = appendMsg(b, 2, v.Marshal(nil))
	}
	if x.PackageName != "" {
		b = appendString(b, 3, x.PackageName)
	}
	for _, s := range x.AssetSliceSets {
		b = appendMsg(b, 4, s.Marshal(nil))
	}
	for _, m := range x.PermanentlyFusedModules {
		b = appendMsg(b, 6, m.Marshal(nil))
	}
	for _, v := range x.DefaultTargetingValues {
		b = appendMsg(b, 7, v.Marshal(nil))
	}
	return b
}

func (x *Bundletool) Unmarshal(b []byte) error {
	d := &wireDecoder{b: b}
	for {
		num, typ, ok := d.next()
		if !ok {
			break
		}
		if num == 2 && typ == protowire.BytesType {
			x.Version = string(d.bytes())
		} else {
			d.skip(num, typ)
		}
	}
	return d.err
}

func (x *ModuleMetadata) Unmarshal(b []byte) error {
	d := &wireDecoder{b: b}
	for {
		num, typ, ok := d.next()
		if !ok {
			break
		}
		switch {
		case num == 1 && typ == protowire.BytesType:
			x.Name = string(d.bytes())
		case num == 3 && typ == protowire.VarintType:
			x.IsInstant = d.varint() != 0
		case num == 4 && typ == protowire.BytesType:
			x.Dependencies = append(x.Dependencies, string(d.bytes()))
		case num == 5 && typ == protowire.BytesType:
			x.Targeting = &ModuleTargeting{}
			d.fail(x.Targeting.Unmarshal(d.bytes()))
		case num == 6 && typ == protowire.VarintType:
			x.DeliveryType = DeliveryType(d.varint())
		default:
			d.skip(num, typ)
		}
	}
	return d.err
}

func unmarshalSplitIdMetadata(b []byte) (string, bool, error) {
	d := &wireDecoder{b: b}
	var id string
	var master bool
	for {
		num, typ, ok := d.next()
		if !ok {
			break
		}
		switch {
		case num == 1 && typ == protowire.BytesType:
			id = string(d.bytes())
		case num == 2 && typ == protowire.VarintType:
			master = d.varint() != 0
		default:
			d.skip(num, typ)
		}
	}
	return id, master, d.err
}

func (x *SystemApkMetadata) Unmarshal(b []byte) error {
	d := &wireDecoder{b: b}
	for {
		num, typ, ok := d.next()
		if !ok {
			break
		}
		switch {
		case num == 1 && typ == protowire.BytesType:
			x.FusedModuleNames = append(x.FusedModuleNames, string(d.bytes()))
		case num == 2 && typ == protowire.VarintType:
			x.SystemApkType = SystemApkType(d.varint())
		default:
			d.skip(num, typ)
		}
	}
	return d.err
}

func (x *StandaloneApkMetadata) Unmarshal(b []byte) error {
	d := &wireDecoder{b: b}
	for {
		num, typ, ok := d.next()
		if !ok {
			break
		}
		if num == 1 && typ == protowire.BytesType {
			x.FusedModuleNames = append(x.FusedModuleNames, string(d.bytes()))
		} else {
			d.skip(num, typ)
		}
	}
	return d.err
}

func (x *ApkDescription) Unmarshal(b []byte) error {
	d := &wireDecoder{b: b}
	for {
		num, typ, ok := d.next()
		if !ok {
			break
		}
		if typ != protowire.BytesType {
			d.skip(num, typ)
			continue
		}
		switch num {
		case 1:
			x.Targeting = &ApkTargeting{}
			d.fail(x.Targeting.Unmarshal(d.bytes()))
		case 2:
			x.Path = string(d.bytes())
		case 3:
			id, master, err := unmarshalSplitIdMetadata(d.bytes())
			d.fail(err)
			x.SplitApkMetadata = &SplitApkMetadata{SplitId: id, IsMasterSplit: master}
		case 4:
			x.StandaloneApkMetadata = &StandaloneApkMetadata{}
			d.fail(x.StandaloneApkMetadata.Unmarshal(d.bytes()))
		case 5:
			id, master, err := unmarshalSplitIdMetadata(d.bytes())
			d.fail(err)
			x.InstantApkMetadata = &InstantApkMetadata{SplitId: id, IsMasterSplit: master}
		case 6:
			x.SystemApkMetadata = &SystemApkMetadata{}
			d.fail(x.SystemApkMetadata.Unmarshal(d.bytes()))
		case 7:
			id, master, err := unmarshalSplitIdMetadata(d.bytes())
			d.fail(err)
			x.AssetSliceMetadata = &AssetSliceMetadata{SplitId: id, IsMasterSplit: master}
		case 9:
			d.bytes()
			x.ArchivedApkMetadata = &ArchivedApkMetadata{}
		default:
			d.skip(num, typ)
		}
	}
	return d.err
}

func (x *ApkSet) Unmarshal(b []byte) error {
	d := &wireDecoder{b: b}
	for {
		num, typ, ok := d.next()
		if !ok {
			break
		}
		if typ != protowire.BytesType {
			d.skip(num, typ)
			continue
		}
		switch num {
		case 1:
			x.ModuleMetadata = &ModuleMetadata{}
			d.fail(x.ModuleMetadata.Unmarshal(d.bytes()))
		case 2:
			desc := &ApkDescription{}
			d.fail(desc.Unmarshal(d.bytes()))
			x.ApkDescriptions = append(x.ApkDescriptions, desc)
		default:
			d.skip(num, typ)
		}
	}
	return d.err
}

func (x *VariantProperties) Unmarshal(b []byte) error {
	d := &wireDecoder{b: b}
	for {
		num, typ, ok := d.next()
		if !ok {
			break
		}
		if typ != protowire.VarintType {
			d.skip(num, typ)
			continue
		}
		switch num {
		case 1:
			x.UncompressedDex = d.varint() != 0
		case 2:
			x.UncompressedNativeLibraries = d.varint() != 0
		case 3:
			x.SparseEncoding = d.varint() != 0
		default:
			d.skip(num, typ)
		}
	}
	return d.err
}

func (x *Variant) Unmarshal(b []byte) error {
	d := &wireDecoder{b: b}
	for {
		num, typ, ok := d.next()
		if !ok {
			break
		}
		switch {
		case num == 1 && typ == protowire.BytesType:
			x.Targeting = &VariantTargeting{}
			d.fail(x.Targeting.Unmarshal(d.bytes()))
		case num == 2 && typ == protowire.BytesType:
			s := &ApkSet{}
			d.fail(s.Unmarshal(d.bytes()))
			x.ApkSets = append(x.ApkSets, s)
		case num == 3 && typ == protowire.VarintType:
			x.VariantNumber = uint32(d.varint())
		case num == 4 && typ == protowire.BytesType:
			x.Properties = &VariantProperties{}
			d.fail(x.Properties.Unmarshal(d.bytes()))
		default:
			d.skip(num, typ)
		}
	}
	return d.err
}

func (x *AssetModuleMetadata) Unmarshal(b []byte) error {
	d := &wireDecoder{b: b}
	for {
		num, typ, ok := d.next()
		if !ok {
			break
		}
		switch {
		case num == 1 && typ == protowire.BytesType:
			x.Name = string(d.bytes())
		case num == 4 && typ == protowire.VarintType:
			x.DeliveryType = DeliveryType(d.varint())
		default:
			d.skip(num, typ)
		}
	}
	return d.err
}

func (x *AssetSliceSet) Unmarshal(b []byte) error {
	d := &wireDecoder{b: b}
	for {
		num, typ, ok := d.next()
		if !ok {
			break
		}
		if typ != protowire.BytesType {
			d.skip(num, typ)
			continue
		}
		switch num {
		case 1:
			x.AssetModuleMetadata = &AssetModuleMetadata{}
			d.fail(x.AssetModuleMetadata.Unmarshal(d.bytes()))
		case 2:
			desc := &ApkDescription{}
			d.fail(desc.Unmarshal(d.bytes()))
			x.ApkDescriptions = append(x.ApkDescriptions, desc)
		default:
			d.skip(num, typ)
		}
	}
	return d.err
}

func (x *DefaultTargetingValue) Unmarshal(b []byte) error {
	d := &wireDecoder{b: b}
	for {
		num, typ, ok := d.next()
		if !ok {
			break
		}
		switch {
		case num == 1 && typ == protowire.VarintType:
			x.Dimension = SplitDimension(d.varint())
		case num == 2 && typ == protowire.BytesType:
			x.DefaultValue = string(d.bytes())
		default:
			d.skip(num, typ)
		}
	}
	return d.err
}

// Unmarshal decodes a full table of contents.
func (x *BuildApksResult) Unmarshal(b []byte) error {
	d := &wireDecoder{b: b}
	for {
		num, typ, ok := d.next()
		if !ok {
			break
		}
		if typ != protowire.BytesType {
			d.skip(num, typ)
			continue
		}
		switch num {
		case 1:
			x.Bundletool = &Bundletool{}
			d.fail(x.Bundletool.Unmarshal(d.bytes()))
		case 2:
			v := &Variant{}
			d.fail(v.Unmarshal(d.bytes()))
			x.Variants = append(x.Variants, v)
		case 3:
			x.PackageName = string(d.bytes())
		case 4:
			s := &AssetSliceSet{}
			d.fail(s.Unmarshal(d.bytes()))
			x.AssetSliceSets = append(x.AssetSliceSets, s)
		case 6:
			m := &PermanentlyFusedModule{}
			fm := d.bytes()
			fd := &wireDecoder{b: fm}
			for {
				fnum, ftyp, fok := fd.next()
				if !fok {
					break
				}
				if fnum == 1 && ftyp == protowire.BytesType {
					m.Name = string(fd.bytes())
				} else {
					fd.skip(fnum, ftyp)
				}
			}
			d.fail(fd.err)
			x.PermanentlyFusedModules = append(x.PermanentlyFusedModules, m)
		case 7:
			v := &DefaultTargetingValue{}
			d.fail(v.Unmarshal(d.bytes()))
			x.DefaultTargetingValues = append(x.DefaultTargetingValues, v)
		default:
			d.skip(num, typ)
		}
	}
	return d.err
}
