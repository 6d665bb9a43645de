// Package types holds the data model shared by the crawler, the registry and
// the metadata cache: typedefs, function signatures and per-file scopes.
package types

import (
	"encoding/json"
	"sort"
)

// Mixed is the wildcard type. It never takes part in mismatch checks.
const Mixed = "mixed"

// PropSpec describes one property of a TypeDef.
type PropSpec struct {
	DataType    string `json:"data_type,omitempty"`
	Optional    bool   `json:"optional,omitempty"`
	Description string `json:"description,omitempty"`
}

// TypeDef is a named structural type.
type TypeDef struct {
	Name  string              `json:"name"`
	Props map[string]PropSpec `json:"props"`
}

// NewTypeDef returns an empty TypeDef.
func NewTypeDef(name string) *TypeDef {
	return &TypeDef{Name: name, Props: make(map[string]PropSpec)}
}

// Clone returns a deep copy.
func (t *TypeDef) Clone() *TypeDef {
	if t == nil {
		return nil
	}
	c := NewTypeDef(t.Name)
	for k, v := range t.Props {
		c.Props[k] = v
	}
	return c
}

// Overlay returns base with over's props layered on top. Either may be nil;
// neither is modified.
func Overlay(base, over *TypeDef) *TypeDef {
	switch {
	case base == nil:
		return over
	case over == nil:
		return base
	}
	merged := base.Clone()
	for k, v := range over.Props {
		merged.Props[k] = v
	}
	return merged
}

// PropNames returns the property names in sorted order.
func (t *TypeDef) PropNames() []string {
	names := make([]string, 0, len(t.Props))
	for k := range t.Props {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Required returns the sorted names of non-optional props.
func (t *TypeDef) Required() []string {
	var names []string
	for _, k := range t.PropNames() {
		if !t.Props[k].Optional {
			names = append(names, k)
		}
	}
	return names
}

// Arg is one declared function parameter.
type Arg struct {
	Name      string   `json:"name"`
	DataType  string   `json:"data_type,omitempty"`
	Modifiers []string `json:"modifiers,omitempty"`
}

// FunctionSignature describes a function or method. Methods are named
// "Class::method".
type FunctionSignature struct {
	Name            string   `json:"name"`
	Args            []Arg    `json:"args"`
	ReturnDataType  string   `json:"return_data_type,omitempty"`
	ReturnModifiers []string `json:"return_modifiers,omitempty"`
	IsStatic        bool     `json:"is_static,omitempty"`
}

// ArgIndex returns the position of the parameter named name, or -1.
func (f *FunctionSignature) ArgIndex(name string) int {
	for i, a := range f.Args {
		if a.Name == name {
			return i
		}
	}
	return -1
}

// ClassScope holds the members declared by one class.
type ClassScope struct {
	Name            string                        `json:"name"`
	Methods         map[string]*FunctionSignature `json:"methods"`
	StaticFunctions map[string]*FunctionSignature `json:"static_functions"`
	Props           map[string]PropSpec           `json:"props,omitempty"`
}

// NewClassScope returns an empty ClassScope.
func NewClassScope(name string) *ClassScope {
	return &ClassScope{
		Name:            name,
		Methods:         make(map[string]*FunctionSignature),
		StaticFunctions: make(map[string]*FunctionSignature),
		Props:           make(map[string]PropSpec),
	}
}

// GlobalScope holds free functions.
type GlobalScope struct {
	Functions map[string]*FunctionSignature `json:"functions"`
}

// FileScopes is the function/class table contributed by one file, and also
// the shape of the merged process-wide table.
type FileScopes struct {
	Global  GlobalScope            `json:"global"`
	Classes map[string]*ClassScope `json:"classes"`
}

// NewFileScopes returns empty FileScopes.
func NewFileScopes() FileScopes {
	return FileScopes{
		Global:  GlobalScope{Functions: make(map[string]*FunctionSignature)},
		Classes: make(map[string]*ClassScope),
	}
}

// Class returns the ClassScope for name, creating it if needed.
func (s *FileScopes) Class(name string) *ClassScope {
	cs, ok := s.Classes[name]
	if !ok {
		cs = NewClassScope(name)
		s.Classes[name] = cs
	}
	return cs
}

// FileMetadata is everything one metadata crawl contributes to the registry.
type FileMetadata struct {
	Typedefs map[string]*TypeDef `json:"typedefs"`
	Scopes   FileScopes          `json:"scopes"`
}

// NewFileMetadata returns empty metadata.
func NewFileMetadata() *FileMetadata {
	return &FileMetadata{
		Typedefs: make(map[string]*TypeDef),
		Scopes:   NewFileScopes(),
	}
}

// AddTypedef merges td into the file's typedefs. A typedef declared twice in
// one file unions its props, the later declaration winning.
func (m *FileMetadata) AddTypedef(td *TypeDef) {
	existing, ok := m.Typedefs[td.Name]
	if !ok {
		m.Typedefs[td.Name] = td.Clone()
		return
	}
	for k, v := range td.Props {
		existing.Props[k] = v
	}
}

// Encode serializes the metadata. Output is deterministic because
// encoding/json sorts map keys.
func (m *FileMetadata) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// DecodeMetadata parses metadata produced by Encode.
func DecodeMetadata(data []byte) (*FileMetadata, error) {
	m := NewFileMetadata()
	if err := json.Unmarshal(data, m); err != nil {
		return nil, err
	}
	if m.Typedefs == nil {
		m.Typedefs = make(map[string]*TypeDef)
	}
	if m.Scopes.Global.Functions == nil {
		m.Scopes.Global.Functions = make(map[string]*FunctionSignature)
	}
	if m.Scopes.Classes == nil {
		m.Scopes.Classes = make(map[string]*ClassScope)
	}
	return m, nil
}
