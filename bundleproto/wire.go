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

// Marshaling. Field numbers follow the bundle tool wire schema so that the
// resulting toc.pb is readable by the standard device-side extraction
// tools. Every Marshal appends to b and returns the extended slice; fields
// are appended in ascending field-number order so encoding is canonical.

func appendMsg(b []byte, num protowire.Number, body []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, body)
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	if !v {
		return b
	}
	return appendVarint(b, num, 1)
}

// appendInt32Value encodes a google.protobuf.Int32Value wrapper message.
func appendInt32Value(b []byte, num protowire.Number, v int32) []byte {
	var body []byte
	if v != 0 {
		body = appendVarint(body, 1, uint64(uint32(v)))
	}
	return appendMsg(b, num, body)
}

func (x *Abi) Marshal(b []byte) []byte {
	if x.Alias != AbiUnspecified {
		b = appendVarint(b, 1, uint64(x.Alias))
	}
	return b
}

func (x *MultiAbi) Marshal(b []byte) []byte {
	for i := range x.Abis {
		b = appendMsg(b, 1, x.Abis[i].Marshal(nil))
	}
	return b
}

func (x *ScreenDensity) Marshal(b []byte) []byte {
	if x.DensityDpi > 0 {
		return appendVarint(b, 2, uint64(uint32(x.DensityDpi)))
	}
	if x.DensityAlias != DensityUnspecified {
		b = appendVarint(b, 1, uint64(x.DensityAlias))
	}
	return b
}

func (x *TextureCompressionFormat) Marshal(b []byte) []byte {
	if x.Alias != TcfUnspecified {
		b = appendVarint(b, 1, uint64(x.Alias))
	}
	return b
}

func (x *SdkVersion) Marshal(b []byte) []byte {
	if x.Min != nil {
		b = appendInt32Value(b, 1, *x.Min)
	}
	return b
}

func (x *AbiTargeting) Marshal(b []byte) []byte {
	if x == nil {
		return b
	}
	for i := range x.Value {
		b = appendMsg(b, 1, x.Value[i].Marshal(nil))
	}
	for i := range x.Alternatives {
		b = appendMsg(b, 2, x.Alternatives[i].Marshal(nil))
	}
	return b
}

func (x *MultiAbiTargeting) Marshal(b []byte) []byte {
	if x == nil {
		return b
	}
	for i := range x.Value {
		b = appendMsg(b, 1, x.Value[i].Marshal(nil))
	}
	for i := range x.Alternatives {
		b = appendMsg(b, 2, x.Alternatives[i].Marshal(nil))
	}
	return b
}

func (x *ScreenDensityTargeting) Marshal(b []byte) []byte {
	if x == nil {
		return b
	}
	for i := range x.Value {
		b = appendMsg(b, 1, x.Value[i].Marshal(nil))
	}
	for i := range x.Alternatives {
		b = appendMsg(b, 2, x.Alternatives[i].Marshal(nil))
	}
	return b
}

func (x *LanguageTargeting) Marshal(b []byte) []byte {
	if x == nil {
		return b
	}
	for _, v := range x.Value {
		b = appendString(b, 1, v)
	}
	for _, v := range x.Alternatives {
		b = appendString(b, 2, v)
	}
	return b
}

func (x *TextureCompressionFormatTargeting) Marshal(b []byte) []byte {
	if x == nil {
		return b
	}
	for i := range x.Value {
		b = appendMsg(b, 1, x.Value[i].Marshal(nil))
	}
	for i := range x.Alternatives {
		b = appendMsg(b, 2, x.Alternatives[i].Marshal(nil))
	}
	return b
}

func (x *SdkVersionTargeting) Marshal(b []byte) []byte {
	if x == nil {
		return b
	}
	for i := range x.Value {
		b = appendMsg(b, 1, x.Value[i].Marshal(nil))
	}
	for i := range x.Alternatives {
		b = appendMsg(b, 2, x.Alternatives[i].Marshal(nil))
	}
	return b
}

func (x *DeviceTierTargeting) Marshal(b []byte) []byte {
	if x == nil {
		return b
	}
	for _, v := range x.Value {
		b = appendInt32Value(b, 3, v)
	}
	for _, v := range x.Alternatives {
		b = appendInt32Value(b, 4, v)
	}
	return b
}

func (x *SdkRuntimeTargeting) Marshal(b []byte) []byte {
	if x == nil {
		return b
	}
	return appendBool(b, 1, x.RequiresSdkRuntime)
}

func (x *DeviceFeature) Marshal(b []byte) []byte {
	if x.FeatureName != "" {
		b = appendString(b, 1, x.FeatureName)
	}
	if x.FeatureVersion != 0 {
		b = appendVarint(b, 2, uint64(uint32(x.FeatureVersion)))
	}
	return b
}

func (x *DeviceFeatureTargeting) Marshal(b []byte) []byte {
	return appendMsg(b, 1, x.RequiredFeature.Marshal(nil))
}

func (x *UserCountriesTargeting) Marshal(b []byte) []byte {
	if x == nil {
		return b
	}
	for _, c := range x.CountryCodes {
		b = appendString(b, 1, c)
	}
	return appendBool(b, 2, x.Exclude)
}

func (x *DeviceGroupTargeting) Marshal(b []byte) []byte {
	if x == nil {
		return b
	}
	for _, g := range x.Value {
		b = appendString(b, 1, g)
	}
	return b
}

func (x *ModuleTargeting) Marshal(b []byte) []byte {
	if x == nil {
		return b
	}
	if x.SdkVersion != nil {
		b = appendMsg(b, 1, x.SdkVersion.Marshal(nil))
	}
	for i := range x.DeviceFeature {
		b = appendMsg(b, 2, x.DeviceFeature[i].Marshal(nil))
	}
	if x.UserCountries != nil {
		b = appendMsg(b, 3, x.UserCountries.Marshal(nil))
	}
	if x.DeviceGroup != nil {
		b = appendMsg(b, 5, x.DeviceGroup.Marshal(nil))
	}
	return b
}

func (x *ApkTargeting) Marshal(b []byte) []byte {
	if x == nil {
		return b
	}
	if x.Abi != nil {
		b = appendMsg(b, 1, x.Abi.Marshal(nil))
	}
	if x.Language != nil {
		b = appendMsg(b, 3, x.Language.Marshal(nil))
	}
	if x.ScreenDensity != nil {
		b = appendMsg(b, 4, x.ScreenDensity.Marshal(nil))
	}
	if x.SdkVersion != nil {
		b = appendMsg(b, 5, x.SdkVersion.Marshal(nil))
	}
	if x.TextureCompressionFormat != nil {
		b = appendMsg(b, 6, x.TextureCompressionFormat.Marshal(nil))
	}
	if x.MultiAbi != nil {
		b = appendMsg(b, 7, x.MultiAbi.Marshal(nil))
	}
	if x.DeviceTier != nil {
		b = appendMsg(b, 9, x.DeviceTier.Marshal(nil))
	}
	return b
}

func (x *VariantTargeting) Marshal(b []byte) []byte {
	if x == nil {
		return b
	}
	if x.SdkVersion != nil {
		b = appendMsg(b, 1, x.SdkVersion.Marshal(nil))
	}
	if x.Abi != nil {
		b = appendMsg(b, 2, x.Abi.Marshal(nil))
	}
	if x.ScreenDensity != nil {
		b = appendMsg(b, 3, x.ScreenDensity.Marshal(nil))
	}
	if x.MultiAbi != nil {
		b = appendMsg(b, 4, x.MultiAbi.Marshal(nil))
	}
	if x.TextureCompressionFormat != nil {
		b = appendMsg(b, 5, x.TextureCompressionFormat.Marshal(nil))
	}
	if x.SdkRuntime != nil {
		b = appendMsg(b, 6, x.SdkRuntime.Marshal(nil))
	}
	return b
}

// Unmarshaling. Unknown fields are skipped so newer TOCs remain readable.

type wireDecoder struct {
	b   []byte
	err error
}

func (d *wireDecoder) next() (protowire.Number, protowire.Type, bool) {
	if d.err != nil || len(d.b) == 0 {
		return 0, 0, false
	}
	num, typ, n := protowire.ConsumeTag(d.b)
	if n < 0 {
		d.err = protowire.ParseError(n)
		return 0, 0, false
	}
	d.b = d.b[n:]
	return num, typ, true
}

func (d *wireDecoder) skip(num protowire.Number, typ protowire.Type) {
	n := protowire.ConsumeFieldValue(num, typ, d.b)
	if n < 0 {
		d.err = protowire.ParseError(n)
		return
	}
	d.b = d.b[n:]
}

func (d *wireDecoder) bytes() []byte {
	v, n := protowire.ConsumeBytes(d.b)
	if n < 0 {
		d.err = protowire.ParseError(n)
		return nil
	}
	d.b = d.b[n:]
	return v
}

func (d *wireDecoder) varint() uint64 {
	v, n := protowire.ConsumeVarint(d.b)
	if n < 0 {
		d.err = protowire.ParseError(n)
		return 0
	}
	d.b = d.b[n:]
	return v
}

func (d *wireDecoder) fail(err error) {
	if d.err == nil {
		d.err = err
	}
}

func unmarshalInt32Value(b []byte) (int32, error) {
	d := &wireDecoder{b: b}
	var out int32
	for {
		num, typ, ok := d.next()
		if !ok {
			break
		}
		if num == 1 && typ == protowire.VarintType {
			out = int32(d.varint())
		} else {
			d.skip(num, typ)
		}
	}
	return out, d.err
}

func (x *Abi) Unmarshal(b []byte) error {
	d := &wireDecoder{b: b}
	for {
		num, typ, ok := d.next()
		if !ok {
			break
		}
		if num == 1 && typ == protowire.VarintType {
			x.Alias = AbiAlias(d.varint())
		} else {
			d.skip(num, typ)
		}
	}
	return d.err
}

func (x *MultiAbi) Unmarshal(b []byte) error {
	d := &wireDecoder{b: b}
	for {
		num, typ, ok := d.next()
		if !ok {
			break
		}
		if num == 1 && typ == protowire.BytesType {
			var a Abi
			d.fail(a.Unmarshal(d.bytes()))
			x.Abis = append(x.Abis, a)
		} else {
			d.skip(num, typ)
		}
	}
	return d.err
}

func (x *ScreenDensity) Unmarshal(b []byte) error {
	d := &wireDecoder{b: b}
	for {
		num, typ, ok := d.next()
		if !ok {
			break
		}
		switch {
		case num == 1 && typ == protowire.VarintType:
			x.DensityAlias = DensityAlias(d.varint())
		case num == 2 && typ == protowire.VarintType:
			x.DensityDpi = int32(d.varint())
		default:
			d.skip(num, typ)
		}
	}
	return d.err
}

func (x *TextureCompressionFormat) Unmarshal(b []byte) error {
	d := &wireDecoder{b: b}
	for {
		num, typ, ok := d.next()
		if !ok {
			break
		}
		if num == 1 && typ == protowire.VarintType {
			x.Alias = TextureCompressionFormatAlias(d.varint())
		} else {
			d.skip(num, typ)
		}
	}
	return d.err
}

func (x *SdkVersion) Unmarshal(b []byte) error {
	d := &wireDecoder{b: b}
	for {
		num, typ, ok := d.next()
		if !ok {
			break
		}
		if num == 1 && typ == protowire.BytesType {
			v, err := unmarshalInt32Value(d.bytes())
			d.fail(err)
			x.Min = &v
		} else {
			d.skip(num, typ)
		}
	}
	return d.err
}

// valueAlternatives decodes the common {repeated value=1, repeated
// alternatives=2} message shape shared by most targeting messages.
func valueAlternatives(b []byte, value, alternative func(b []byte) error) error {
	d := &wireDecoder{b: b}
	for {
		num, typ, ok := d.next()
		if !ok {
			break
		}
		switch {
		case num == 1 && typ == protowire.BytesType:
			d.fail(value(d.bytes()))
		case num == 2 && typ == protowire.BytesType:
			d.fail(alternative(d.bytes()))
		default:
			d.skip(num, typ)
		}
	}
	return d.err
}

func (x *AbiTargeting) Unmarshal(b []byte) error {
	return valueAlternatives(b,
		func(b []byte) error {
			var a Abi
			err := a.Unmarshal(b)
			x.Value = append(x.Value, a)
			return err
		},
		func(b []byte) error {
			var a Abi
			err := a.Unmarshal(b)
			x.Alternatives = append(x.Alternatives, a)
			return err
		})
}

func (x *MultiAbiTargeting) Unmarshal(b []byte) error {
	return valueAlternatives(b,
		func(b []byte) error {
			var m MultiAbi
			err := m.Unmarshal(b)
			x.Value = append(x.Value, m)
			return err
		},
		func(b []byte) error {
			var m MultiAbi
			err := m.Unmarshal(b)
			x.Alternatives = append(x.Alternatives, m)
			return err
		})
}

func (x *ScreenDensityTargeting) Unmarshal(b []byte) error {
	return valueAlternatives(b,
		func(b []byte) error {
			var s ScreenDensity
			err := s.Unmarshal(b)
			x.Value = append(x.Value, s)
			return err
		},
		func(b []byte) error {
			var s ScreenDensity
			err := s.Unmarshal(b)
			x.Alternatives = append(x.Alternatives, s)
			return err
		})
}

func (x *LanguageTargeting) Unmarshal(b []byte) error {
	return valueAlternatives(b,
		func(b []byte) error {
			x.Value = append(x.Value, string(b))
			return nil
		},
		func(b []byte) error {
			x.Alternatives = append(x.Alternatives, string(b))
			return nil
		})
}

func (x *TextureCompressionFormatTargeting) Unmarshal(b []byte) error {
	return valueAlternatives(b,
		func(b []byte) error {
			var t TextureCompressionFormat
			err := t.Unmarshal(b)
			x.Value = append(x.Value, t)
			return err
		},
		func(b []byte) error {
			var t TextureCompressionFormat
			err := t.Unmarshal(b)
			x.Alternatives = append(x.Alternatives, t)
			return err
		})
}

func (x *SdkVersionTargeting) Unmarshal(b []byte) error {
	return valueAlternatives(b,
		func(b []byte) error {
			var v SdkVersion
			err := v.Unmarshal(b)
			x.Value = append(x.Value, v)
			return err
		},
		func(b []byte) error {
			var v SdkVersion
			err := v.Unmarshal(b)
			x.Alternatives = append(x.Alternatives, v)
			return err
		})
}

func (x *DeviceTierTargeting) Unmarshal(b []byte) error {
	d := &wireDecoder{b: b}
	for {
		num, typ, ok := d.next()
		if !ok {
			break
		}
		switch {
		case num == 3 && typ == protowire.BytesType:
			v, err := unmarshalInt32Value(d.bytes())
			d.fail(err)
			x.Value = append(x.Value, v)
		case num == 4 && typ == protowire.BytesType:
			v, err := unmarshalInt32Value(d.bytes())
			d.fail(err)
			x.Alternatives = append(x.Alternatives, v)
		default:
			d.skip(num, typ)
		}
	}
	return d.err
}

func (x *SdkRuntimeTargeting) Unmarshal(b []byte) error {
	d := &wireDecoder{b: b}
	for {
		num, typ, ok := d.next()
		if !ok {
			break
		}
		if num == 1 && typ == protowire.VarintType {
			x.RequiresSdkRuntime = d.varint() != 0
		} else {
			d.skip(num, typ)
		}
	}
	return d.err
}

func (x *DeviceFeature) Unmarshal(b []byte) error {
	d := &wireDecoder{b: b}
	for {
		num, typ, ok := d.next()
		if !ok {
			break
		}
		switch {
		case num == 1 && typ == protowire.BytesType:
			x.FeatureName = string(d.bytes())
		case num == 2 && typ == protowire.VarintType:
			x.FeatureVersion = int32(d.varint())
		default:
			d.skip(num, typ)
		}
	}
	return d.err
}

func (x *DeviceFeatureTargeting) Unmarshal(b []byte) error {
	d := &wireDecoder{b: b}
	for {
		num, typ, ok := d.next()
		if !ok {
			break
		}
		if num == 1 && typ == protowire.BytesType {
			d.fail(x.RequiredFeature.Unmarshal(d.bytes()))
		} else {
			d.skip(num, typ)
		}
	}
	return d.err
}

func (x *UserCountriesTargeting) Unmarshal(b []byte) error {
	d := &wireDecoder{b: b}
	for {
		num, typ, ok := d.next()
		if !ok {
			break
		}
		switch {
		case num == 1 && typ == protowire.BytesType:
			x.CountryCodes = append(x.CountryCodes, string(d.bytes()))
		case num == 2 && typ == protowire.VarintType:
			x.Exclude = d.varint() != 0
		default:
			d.skip(num, typ)
		}
	}
	return d.err
}

func (x *DeviceGroupTargeting) Unmarshal(b []byte) error {
	d := &wireDecoder{b: b}
	for {
		num, typ, ok := d.next()
		if !ok {
			break
		}
		if num == 1 && typ == protowire.BytesType {
			x.Value = append(x.Value, string(d.bytes()))
		} else {
			d.skip(num, typ)
		}
	}
	return d.err
}

func (x *ModuleTargeting) Unmarshal(b []byte) error {
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
			x.SdkVersion = &SdkVersionTargeting{}
			d.fail(x.SdkVersion.Unmarshal(d.bytes()))
		case 2:
			var f DeviceFeatureTargeting
			d.fail(f.Unmarshal(d.bytes()))
			x.DeviceFeature = append(x.DeviceFeature, f)
		case 3:
			x.UserCountries = &UserCountriesTargeting{}
			d.fail(x.UserCountries.Unmarshal(d.bytes()))
		case 5:
			x.DeviceGroup = &DeviceGroupTargeting{}
			d.fail(x.DeviceGroup.Unmarshal(d.bytes()))
		default:
			d.skip(num, typ)
		}
	}
	return d.err
}

func (x *ApkTargeting) Unmarshal(b []byte) error {
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
			x.Abi = &AbiTargeting{}
			d.fail(x.Abi.Unmarshal(d.bytes()))
		case 3:
			x.Language = &LanguageTargeting{}
			d.fail(x.Language.Unmarshal(d.bytes()))
		case 4:
			x.ScreenDensity = &ScreenDensityTargeting{}
			d.fail(x.ScreenDensity.Unmarshal(d.bytes()))
		case 5:
			x.SdkVersion = &SdkVersionTargeting{}
			d.fail(x.SdkVersion.Unmarshal(d.bytes()))
		case 6:
			x.TextureCompressionFormat = &TextureCompressionFormatTargeting{}
			d.fail(x.TextureCompressionFormat.Unmarshal(d.bytes()))
		case 7:
			x.MultiAbi = &MultiAbiTargeting{}
			d.fail(x.MultiAbi.Unmarshal(d.bytes()))
		case 9:
			x.DeviceTier = &DeviceTierTargeting{}
			d.fail(x.DeviceTier.Unmarshal(d.bytes()))
		default:
			d.skip(num, typ)
		}
	}
	return d.err
}

func (x *VariantTargeting) Unmarshal(b []byte) error {
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
			x.SdkVersion = &SdkVersionTargeting{}
			d.fail(x.SdkVersion.Unmarshal(d.bytes()))
		case 2:
			x.Abi = &AbiTargeting{}
			d.fail(x.Abi.Unmarshal(d.bytes()))
		case 3:
			x.ScreenDensity = &ScreenDensityTargeting{}
			d.fail(x.ScreenDensity.Unmarshal(d.bytes()))
		case 4:
			x.MultiAbi = &MultiAbiTargeting{}
			d.fail(x.MultiAbi.Unmarshal(d.bytes()))
		case 5:
			x.TextureCompressionFormat = &TextureCompressionFormatTargeting{}
			d.fail(x.TextureCompressionFormat.Unmarshal(d.bytes()))
		case 6:
			x.SdkRuntime = &SdkRuntimeTargeting{}
			d.fail(x.SdkRuntime.Unmarshal(d.bytes()))
		default:
			d.skip(num, typ)
		}
	}
	return d.err
}
