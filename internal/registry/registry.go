// Package registry aggregates the typedefs and signatures contributed by
// every file of a workspace into one merged, read-mostly view.
package registry

import (
	"sort"
	"sync"

	"github.com/DeusData/phplens/internal/types"
)

// Registry holds per-file metadata and the merged view computed from it.
// Merges are rebuilt outside the read lock and swapped in, so lookups never
// wait on a merge.
type Registry struct {
	// writeMu serializes Rebuild/Remove.
	writeMu sync.Mutex
	files   map[string]*types.FileMetadata
	// order lists files by rebuild time, oldest first.
	order []string

	mu   sync.RWMutex
	view *view
}

type view struct {
	typedefs map[string]*types.TypeDef
	scopes   types.FileScopes
	entities []string
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		files: make(map[string]*types.FileMetadata),
		view:  merge(nil, nil),
	}
}

// Rebuild replaces the contribution of path with meta and recomputes the
// merged view. A nil meta removes the file.
func (r *Registry) Rebuild(path string, meta *types.FileMetadata) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	r.order = without(r.order, path)
	if meta == nil {
		delete(r.files, path)
	} else {
		r.files[path] = meta
		r.order = append(r.order, path)
	}

	v := merge(r.order, r.files)

	r.mu.Lock()
	r.view = v
	r.mu.Unlock()
}

// Update is one file's new contribution; a nil Meta removes the file.
type Update struct {
	Path string
	Meta *types.FileMetadata
}

// RebuildAll applies updates in order and recomputes the merged view once.
func (r *Registry) RebuildAll(updates []Update) {
	if len(updates) == 0 {
		return
	}
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	for _, u := range updates {
		r.order = without(r.order, u.Path)
		if u.Meta == nil {
			delete(r.files, u.Path)
			continue
		}
		r.files[u.Path] = u.Meta
		r.order = append(r.order, u.Path)
	}

	v := merge(r.order, r.files)

	r.mu.Lock()
	r.view = v
	r.mu.Unlock()
}

// Remove drops the contribution of path.
func (r *Registry) Remove(path string) {
	r.Rebuild(path, nil)
}

func without(order []string, path string) []string {
	out := order[:0]
	for _, p := range order {
		if p != path {
			out = append(out, p)
		}
	}
	return out
}

// merge folds files in order; later files win on conflicting leaves.
func merge(order []string, files map[string]*types.FileMetadata) *view {
	v := &view{
		typedefs: make(map[string]*types.TypeDef),
		scopes:   types.NewFileScopes(),
	}
	for _, path := range order {
		meta := files[path]
		for name, td := range meta.Typedefs {
			dst, ok := v.typedefs[name]
			if !ok {
				dst = types.NewTypeDef(name)
				v.typedefs[name] = dst
			}
			for k, p := range td.Props {
				dst.Props[k] = p
			}
		}
		for name, sig := range meta.Scopes.Global.Functions {
			v.scopes.Global.Functions[name] = sig
		}
		for name, cs := range meta.Scopes.Classes {
			dst := v.scopes.Class(name)
			for k, sig := range cs.Methods {
				dst.Methods[k] = sig
			}
			for k, sig := range cs.StaticFunctions {
				dst.StaticFunctions[k] = sig
			}
			for k, p := range cs.Props {
				dst.Props[k] = p
			}
		}
	}
	for name := range v.typedefs {
		if tok := types.EntityToken(name); tok != "" {
			v.entities = append(v.entities, tok)
		}
	}
	sort.Strings(v.entities)
	return v
}

func (r *Registry) current() *view {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.view
}

// LookupType returns the merged typedef called name.
func (r *Registry) LookupType(name string) (*types.TypeDef, bool) {
	td, ok := r.current().typedefs[name]
	return td, ok
}

// LookupFunction returns the signature of the free function name.
func (r *Registry) LookupFunction(name string) (*types.FunctionSignature, bool) {
	sig, ok := r.current().scopes.Global.Functions[name]
	return sig, ok
}

// LookupMethod returns the instance or static method name of class.
func (r *Registry) LookupMethod(class, name string, static bool) (*types.FunctionSignature, bool) {
	cs, ok := r.current().scopes.Classes[class]
	if !ok {
		return nil, false
	}
	table := cs.Methods
	if static {
		table = cs.StaticFunctions
	}
	sig, ok := table[name]
	return sig, ok
}

// LookupClassProp returns the declared type of a class property.
func (r *Registry) LookupClassProp(class, prop string) (types.PropSpec, bool) {
	cs, ok := r.current().scopes.Classes[class]
	if !ok {
		return types.PropSpec{}, false
	}
	p, ok := cs.Props[prop]
	return p, ok
}

// EntityNames returns the snake_case tokens of every known entity type.
func (r *Registry) EntityNames() []string {
	return append([]string(nil), r.current().entities...)
}

// Typedefs returns the merged typedefs sorted by name.
func (r *Registry) Typedefs() []*types.TypeDef {
	v := r.current()
	out := make([]*types.TypeDef, 0, len(v.typedefs))
	for _, td := range v.typedefs {
		out = append(out, td)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Scopes returns the merged function and class tables. Callers must not
// modify the result.
func (r *Registry) Scopes() types.FileScopes {
	return r.current().scopes
}

// Files returns the registered paths sorted.
func (r *Registry) Files() []string {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	out := make([]string, 0, len(r.files))
	for p := range r.files {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Size returns the number of registered files.
func (r *Registry) Size() int {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	return len(r.files)
}
