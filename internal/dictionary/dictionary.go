// Package dictionary loads FIX data dictionaries from XML and exposes the
// tag/message/group metadata the codec needs to parse and build messages.
// A dictionary is a plain data structure populated once at startup (or on
// reload); no runtime reflection is involved — dispatch on MsgType is a
// small map lookup.
package dictionary

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
)

// FieldDef describes one FIX tag.
type FieldDef struct {
	Tag   int
	Name  string
	Type  string
	Enums map[string]string // enum value -> description
}

// GroupDef describes a repeating group.
type GroupDef struct {
	Name     string
	CountTag int
	FirstTag int
	Members  []int    // <member> tags; nested groups are listed in Nested
	Nested   []string // names of nested groups, in declaration order
}

// MessageDef describes one FIX message type: its own tags plus the count-
// and member-tags contributed by any referenced repeating groups.
type MessageDef struct {
	MsgType string
	Name    string
	Tags    []int // own tags plus count- and member-tags of referenced groups
}

// Dictionary is an immutable, fully-resolved FIX data dictionary.
type Dictionary struct {
	fieldsByTag   map[int]*FieldDef
	fieldsByName  map[string]*FieldDef
	messages      map[string]*MessageDef
	groupsByName  map[string]*GroupDef
	groupsByCount map[int]*GroupDef
}

// Load reads rootFile (resolved relative to baseDir; an absolute rootFile
// is used as-is) and recursively
// resolves <import> directives depth-first. Imports are merged with
// first-wins semantics: a field/message/group already defined by an
// earlier-visited document is never overwritten by a later one.
func Load(baseDir, rootFile string) (*Dictionary, error) {
	d := &Dictionary{
		fieldsByTag:   make(map[int]*FieldDef),
		fieldsByName:  make(map[string]*FieldDef),
		messages:      make(map[string]*MessageDef),
		groupsByName:  make(map[string]*GroupDef),
		groupsByCount: make(map[int]*GroupDef),
	}

	visited := make(map[string]bool)
	if err := d.loadFile(baseDir, rootFile, visited); err != nil {
		return nil, err
	}
	return d, nil
}

// resolvePath resolves a dictionary-referenced file path against the
// classpath-equivalent (the directory of the importing document) first,
// then against baseDir, matching the resource-then-base-directory order
// the spec requires.
func resolvePath(baseDir, fromDir, file string) (string, error) {
	if filepath.IsAbs(file) {
		return file, nil
	}

	if fromDir != "" {
		candidate := filepath.Join(fromDir, file)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}

	candidate := filepath.Join(baseDir, file)
	if _, err := os.Stat(candidate); err == nil {
		return candidate, nil
	}

	return "", fmt.Errorf("dictionary: %q not found relative to %q or %q", file, fromDir, baseDir)
}

func (d *Dictionary) loadFile(baseDir, path string, visited map[string]bool) error {
	resolved, err := resolvePath(baseDir, "", path)
	if err != nil {
		return err
	}
	return d.loadResolved(baseDir, resolved, visited)
}

func (d *Dictionary) loadResolved(baseDir, resolved string, visited map[string]bool) error {
	abs, err := filepath.Abs(resolved)
	if err != nil {
		abs = resolved
	}
	if visited[abs] {
		return nil
	}
	visited[abs] = true

	raw, err := os.ReadFile(resolved)
	if err != nil {
		return fmt.Errorf("dictionary: read %q: %w", resolved, err)
	}

	var doc xmlDictionary
	if err := xml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("dictionary: parse %q: %w", resolved, err)
	}

	// Depth-first: visit imports before merging this document's own
	// definitions. With first-wins merging, a definition from an imported
	// document therefore takes precedence over one with the same key
	// declared in the importing document.
	fromDir := filepath.Dir(resolved)
	for _, imp := range doc.Imports {
		impPath, err := resolvePath(baseDir, fromDir, imp.File)
		if err != nil {
			return err
		}
		if err := d.loadResolved(baseDir, impPath, visited); err != nil {
			return err
		}
	}

	d.mergeFields(doc.Fields)
	d.mergeGroups(doc.Groups)
	d.mergeMessages(doc.Messages)

	return nil
}

func (d *Dictionary) mergeFields(fields []xmlField) {
	for _, f := range fields {
		if _, exists := d.fieldsByTag[f.Tag]; exists {
			continue // first-wins
		}
		def := &FieldDef{
			Tag:   f.Tag,
			Name:  f.Name,
			Type:  f.Type,
			Enums: make(map[string]string, len(f.Enum)),
		}
		for _, e := range f.Enum {
			def.Enums[e.Value] = e.Description
		}
		d.fieldsByTag[f.Tag] = def
		if _, exists := d.fieldsByName[f.Name]; !exists {
			d.fieldsByName[f.Name] = def
		}
	}
}

func (d *Dictionary) mergeGroups(groups []xmlGroup) {
	for _, g := range groups {
		if _, exists := d.groupsByName[g.Name]; exists {
			continue // first-wins
		}
		def := &GroupDef{
			Name:     g.Name,
			CountTag: g.CountTag,
			FirstTag: g.FirstTag,
		}
		for _, m := range g.Members {
			def.Members = append(def.Members, m.Tag)
		}
		for _, n := range g.Nested {
			def.Nested = append(def.Nested, n.Name)
		}
		d.groupsByName[g.Name] = def
		if _, exists := d.groupsByCount[g.CountTag]; !exists {
			d.groupsByCount[g.CountTag] = def
		}
	}
}

func (d *Dictionary) mergeMessages(messages []xmlMessage) {
	for _, m := range messages {
		if _, exists := d.messages[m.MsgType]; exists {
			continue // first-wins
		}
		def := &MessageDef{MsgType: m.MsgType, Name: m.Name}
		for _, t := range m.Tags {
			def.Tags = append(def.Tags, t.ID)
		}
		for _, gr := range m.Groups {
			group, ok := d.groupsByName[gr.Name]
			if !ok {
				continue
			}
			def.Tags = append(def.Tags, group.CountTag)
			def.Tags = append(def.Tags, group.Members...)
		}
		d.messages[m.MsgType] = def
	}
}

// FieldByTag returns the field definition for tag, or nil if unknown.
func (d *Dictionary) FieldByTag(tag int) *FieldDef {
	return d.fieldsByTag[tag]
}

// FieldByName returns the field definition for name, or nil if unknown.
func (d *Dictionary) FieldByName(name string) *FieldDef {
	return d.fieldsByName[name]
}

// EnumDescription returns the human-readable description of value for tag,
// and whether it was found.
func (d *Dictionary) EnumDescription(tag int, value string) (string, bool) {
	f := d.fieldsByTag[tag]
	if f == nil {
		return "", false
	}
	desc, ok := f.Enums[value]
	return desc, ok
}

// Message returns the message definition for msgType, or nil if unknown.
func (d *Dictionary) Message(msgType string) *MessageDef {
	return d.messages[msgType]
}

// GetMessageTags returns the tags belonging to msgType: its own declared
// tags plus the count- and member-tags of every group it references.
func (d *Dictionary) GetMessageTags(msgType string) []int {
	m := d.messages[msgType]
	if m == nil {
		return nil
	}
	return m.Tags
}

// GroupByName returns the group definition for name, or nil if unknown.
func (d *Dictionary) GroupByName(name string) *GroupDef {
	return d.groupsByName[name]
}

// GroupByCountTag returns the group whose countTag is tag, or nil if none.
func (d *Dictionary) GroupByCountTag(tag int) *GroupDef {
	return d.groupsByCount[tag]
}

// IsRepeatingGroupStart reports whether tag is the count tag of some group.
func (d *Dictionary) IsRepeatingGroupStart(tag int) bool {
	_, ok := d.groupsByCount[tag]
	return ok
}

// GetRepeatingGroupName returns the name of the group whose countTag is
// tag, and whether one exists.
func (d *Dictionary) GetRepeatingGroupName(tag int) (string, bool) {
	g, ok := d.groupsByCount[tag]
	if !ok {
		return "", false
	}
	return g.Name, true
}
