// Package view projects the children of a node into sorted, initial-keyed
// sections. Projections are derived from the node store on demand and never
// touch the network.
package view

import (
	"sort"
	"strings"

	"github.com/brettbedarf/webmirror"
)

// Section groups children sharing the same uppercased initial
type Section struct {
	Key   string
	Items []webmirror.Node
}

// Sections partitions the children of nodeID whose name contains search
// (case-insensitive) by initial. Children with an empty name have no key and
// are left out. Items are sorted by name ignoring case; sections by key.
func Sections(reader webmirror.NodeReader, nodeID, search string) ([]Section, error) {
	children, err := reader.Children(nodeID, search)
	if err != nil {
		return nil, err
	}

	byKey := make(map[string][]webmirror.Node)
	for _, c := range children {
		key := c.Initial()
		if key == "" {
			continue
		}
		byKey[key] = append(byKey[key], c)
	}

	out := make([]Section, 0, len(byKey))
	for key, items := range byKey {
		sort.Slice(items, func(i, j int) bool { return lessName(items[i].Name, items[j].Name) })
		out = append(out, Section{Key: key, Items: items})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// lessName orders case-insensitively, breaking ties on the raw name so the
// order is total
func lessName(a, b string) bool {
	la, lb := strings.ToLower(a), strings.ToLower(b)
	if la != lb {
		return la < lb
	}
	return a < b
}

// Count returns the number of items across all sections
func Count(sections []Section) int {
	n := 0
	for _, s := range sections {
		n += len(s.Items)
	}
	return n
}
