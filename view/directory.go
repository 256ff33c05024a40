package view

import (
	"sort"

	"github.com/brettbedarf/webmirror"
	"github.com/brettbedarf/webmirror/internal/util"
)

// Directory is an indexed, searchable listing of one directory node.
// Its sections are a snapshot taken by [Directory.Refresh] and [Directory.SetSearch].
//
// NOTE: Directory is not thread-safe
type Directory struct {
	reader   webmirror.NodeReader
	nodeID   string
	title    string
	search   string
	sections []Section
}

// NewDirectory returns a Directory for nodeID with its sections loaded
func NewDirectory(reader webmirror.NodeReader, nodeID string) (*Directory, error) {
	d := &Directory{reader: reader, nodeID: nodeID}
	if err := d.Refresh(); err != nil {
		return nil, err
	}
	return d, nil
}

// Refresh re-derives the sections from the current store state
func (d *Directory) Refresh() error {
	sections, err := Sections(d.reader, d.nodeID, d.search)
	if err != nil {
		return err
	}
	if n, ok := d.reader.Get(d.nodeID); ok {
		d.title = n.Name
	}
	d.sections = sections
	logger := util.GetLogger("Directory.Refresh")
	logger.Trace().
		Str("nodeID", d.nodeID).Str("search", d.search).Int("sections", len(sections)).Msg("Refreshed")
	return nil
}

// SetSearch filters the listing to names containing term. An empty term
// clears the filter.
func (d *Directory) SetSearch(term string) error {
	d.search = term
	return d.Refresh()
}

func (d *Directory) NodeID() string {
	return d.nodeID
}

// Title is the directory's name
func (d *Directory) Title() string {
	return d.title
}

func (d *Directory) Search() string {
	return d.search
}

func (d *Directory) Sections() []Section {
	return d.sections
}

func (d *Directory) NumberOfSections() int {
	return len(d.sections)
}

// NumberOfItems returns the item count of section, or 0 when out of range
func (d *Directory) NumberOfItems(section int) int {
	if !d.validSection(section) {
		return 0
	}
	return len(d.sections[section].Items)
}

// TitleForSection returns the key of section, or "" when out of range
func (d *Directory) TitleForSection(section int) string {
	if !d.validSection(section) {
		return ""
	}
	return d.sections[section].Key
}

// SectionIndexTitles returns every section key in order
func (d *Directory) SectionIndexTitles() []string {
	titles := make([]string, len(d.sections))
	for i, s := range d.sections {
		titles[i] = s.Key
	}
	return titles
}

// SectionForIndexTitle returns the section for an index title. A title with
// no section of its own maps to the first section after it, or the last
// section. Returns -1 when there are no sections.
func (d *Directory) SectionForIndexTitle(title string) int {
	if len(d.sections) == 0 {
		return -1
	}
	i := sort.Search(len(d.sections), func(i int) bool { return d.sections[i].Key >= title })
	return min(i, len(d.sections)-1)
}

// ItemAt returns the item at (section, item)
func (d *Directory) ItemAt(section, item int) (webmirror.Node, bool) {
	if !d.validSection(section) || item < 0 || item >= len(d.sections[section].Items) {
		return webmirror.Node{}, false
	}
	return d.sections[section].Items[item], true
}

func (d *Directory) validSection(section int) bool {
	return section >= 0 && section < len(d.sections)
}
