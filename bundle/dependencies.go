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

package bundle

import (
	"sort"
	"strings"
)

// dependencyGraph is the module uses-split graph as an index-based
// adjacency structure. Nodes are module indices in declaration order, so
// traversals are deterministic without sorting at every step.
type dependencyGraph struct {
	modules []*Module
	index   map[string]int
	edges   [][]int
}

// newDependencyGraph builds and validates the graph: every declared
// dependency must exist and the graph must be acyclic.
func newDependencyGraph(modules []*Module) (*dependencyGraph, error) {
	g := &dependencyGraph{
		modules: modules,
		index:   make(map[string]int, len(modules)),
		edges:   make([][]int, len(modules)),
	}
	for i, m := range modules {
		g.index[m.Name] = i
	}
	for i, m := range modules {
		deps := append([]string(nil), m.Manifest.UsesSplits...)
		sort.Strings(deps)
		for _, dep := range deps {
			j, ok := g.index[dep]
			if !ok {
				return nil, InvalidBundlef("module %q depends on missing module %q", m.Name, dep)
			}
			g.edges[i] = append(g.edges[i], j)
		}
	}
	if cycle := g.findCycle(); cycle != nil {
		return nil, InvalidBundlef("module dependency cycle: %s", strings.Join(cycle, " -> "))
	}
	return g, nil
}

// findCycle runs a depth-first search with three-color marking and returns
// the first cycle found as a module name path, or nil.
func (g *dependencyGraph) findCycle() []string {
	const (
		white = iota
		grey
		black
	)
	color := make([]int, len(g.modules))
	onStack := make([]int, 0, len(g.modules))

	var visit func(n int) []string
	visit = func(n int) []string {
		color[n] = grey
		onStack = append(onStack, n)
		for _, dep := range g.edges[n] {
			switch color[dep] {
			case grey:
				// Found a back edge; slice the stack from the first
				// occurrence of dep to report the loop.
				start := 0
				for i, s := range onStack {
					if s == dep {
						start = i
						break
					}
				}
				var names []string
				for _, s := range onStack[start:] {
					names = append(names, g.modules[s].Name)
				}
				return append(names, g.modules[dep].Name)
			case white:
				if c := visit(dep); c != nil {
					return c
				}
			}
		}
		color[n] = black
		onStack = onStack[:len(onStack)-1]
		return nil
	}
	for n := range g.modules {
		if color[n] == white {
			if c := visit(n); c != nil {
				return c
			}
		}
	}
	return nil
}

// closure returns the modules reachable from the given roots (roots
// included), in declaration order.
func (g *dependencyGraph) closure(roots []int) []*Module {
	seen := make([]bool, len(g.modules))
	var walk func(n int)
	walk = func(n int) {
		if seen[n] {
			return
		}
		seen[n] = true
		for _, dep := range g.edges[n] {
			walk(dep)
		}
	}
	for _, r := range roots {
		walk(r)
	}
	var out []*Module
	for i, m := range g.modules {
		if seen[i] {
			out = append(out, m)
		}
	}
	return out
}
