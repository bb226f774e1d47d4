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

package main

import (
	"encoding/xml"
	"fmt"
	"strconv"

	"android/bundletool/bundle"
	"android/bundletool/bundleproto"
)

// xmlManifestParser reads module manifests stored as plain XML. Namespace
// prefixes (android:, dist:) are matched by local attribute name.
type xmlManifestParser struct{}

type xmlNode struct {
	XMLName  xml.Name
	Attrs    []xml.Attr `xml:",any,attr"`
	Children []xmlNode  `xml:",any"`
}

func (n *xmlNode) attr(local string) (string, bool) {
	for _, a := range n.Attrs {
		if a.Name.Local == local {
			return a.Value, true
		}
	}
	return "", false
}

func (n *xmlNode) intAttr(local string) (int64, bool) {
	s, ok := n.attr(local)
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func (n *xmlNode) child(local string) *xmlNode {
	for i := range n.Children {
		if n.Children[i].XMLName.Local == local {
			return &n.Children[i]
		}
	}
	return nil
}

func (n *xmlNode) children(local string) []*xmlNode {
	var out []*xmlNode
	for i := range n.Children {
		if n.Children[i].XMLName.Local == local {
			out = append(out, &n.Children[i])
		}
	}
	return out
}

func (xmlManifestParser) ParseManifest(moduleName string, raw []byte) (bundle.Manifest, error) {
	var root xmlNode
	if err := xml.Unmarshal(raw, &root); err != nil {
		return bundle.Manifest{}, fmt.Errorf("module %s: parsing manifest: %w", moduleName, err)
	}
	if root.XMLName.Local != "manifest" {
		return bundle.Manifest{}, fmt.Errorf("module %s: root element is <%s>, want <manifest>",
			moduleName, root.XMLName.Local)
	}

	var m bundle.Manifest
	m.PackageName, _ = root.attr("package")
	if v, ok := root.intAttr("versionCode"); ok {
		m.VersionCode = v
	}

	if sdk := root.child("uses-sdk"); sdk != nil {
		if v, ok := sdk.intAttr("minSdkVersion"); ok {
			m.MinSdkVersion = int32(v)
		}
		if v, ok := sdk.intAttr("maxSdkVersion"); ok {
			m.MaxSdkVersion = int32(v)
		}
		if v, ok := sdk.intAttr("targetSdkVersion"); ok {
			m.TargetSdkVersion = int32(v)
		}
	}

	for _, us := range root.children("uses-split") {
		if name, ok := us.attr("name"); ok {
			m.UsesSplits = append(m.UsesSplits, name)
		}
	}

	if mod := root.child("module"); mod != nil {
		if v, ok := mod.attr("instant"); ok {
			m.Instant = v == "true"
		}
		if v, ok := mod.attr("type"); ok && v == "asset-pack" {
			m.IsAssetModule = true
		}
		if fusing := mod.child("fusing"); fusing != nil {
			include := false
			if v, ok := fusing.attr("include"); ok {
				include = v == "true"
			}
			m.FusingIncluded = &include
		}
		if delivery := mod.child("delivery"); delivery != nil {
			if err := parseDelivery(delivery, &m); err != nil {
				return bundle.Manifest{}, fmt.Errorf("module %s: %w", moduleName, err)
			}
		}
	}

	if app := root.child("application"); app != nil {
		for _, lib := range app.children("uses-sdk-library") {
			if name, ok := lib.attr("name"); ok {
				m.SdkDependencies = append(m.SdkDependencies, name)
			}
		}
	}
	return m, nil
}

func parseDelivery(delivery *xmlNode, m *bundle.Manifest) error {
	switch {
	case delivery.child("install-time") != nil:
		m.Delivery = bundle.DeliveryInstallTime
		it := delivery.child("install-time")
		if cond := it.child("conditions"); cond != nil {
			m.Delivery = bundle.DeliveryConditional
			parseConditions(cond, &m.Conditions)
		}
	case delivery.child("on-demand") != nil:
		m.Delivery = bundle.DeliveryOnDemand
	case delivery.child("fast-follow") != nil:
		m.Delivery = bundle.DeliveryFastFollow
	default:
		return fmt.Errorf("<dist:delivery> declares no known delivery element")
	}
	return nil
}

func parseConditions(cond *xmlNode, out *bundle.Conditions) {
	for _, f := range cond.children("device-feature") {
		name, _ := f.attr("name")
		feature := bundleproto.DeviceFeature{FeatureName: name}
		if v, ok := f.intAttr("version"); ok {
			feature.FeatureVersion = int32(v)
		}
		out.DeviceFeatures = append(out.DeviceFeatures, feature)
	}
	if g := cond.child("device-groups"); g != nil {
		for _, group := range g.children("device-group") {
			if name, ok := group.attr("name"); ok {
				out.DeviceGroups = append(out.DeviceGroups, name)
			}
		}
	}
	if minSdk := cond.child("min-sdk"); minSdk != nil {
		if v, ok := minSdk.intAttr("value"); ok {
			value := int32(v)
			out.MinSdkVersion = &value
		}
	}
	if maxSdk := cond.child("max-sdk"); maxSdk != nil {
		if v, ok := maxSdk.intAttr("value"); ok {
			value := int32(v)
			out.MaxSdkVersion = &value
		}
	}
	if uc := cond.child("user-countries"); uc != nil {
		t := &bundleproto.UserCountriesTargeting{}
		if v, ok := uc.attr("exclude"); ok {
			t.Exclude = v == "true"
		}
		for _, c := range uc.children("country") {
			if code, ok := c.attr("code"); ok {
				t.CountryCodes = append(t.CountryCodes, code)
			}
		}
		out.UserCountries = t
	}
}
