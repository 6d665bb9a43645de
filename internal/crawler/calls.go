package crawler

import (
	"github.com/DeusData/phplens/internal/docblock"
	"github.com/DeusData/phplens/internal/phpast"
	"github.com/DeusData/phplens/internal/scope"
	"github.com/DeusData/phplens/internal/sqlcols"
	"github.com/DeusData/phplens/internal/types"
)

// Modifier names recognized on @param and @return tags.
const (
	ModSQLQuery             = "SQL_query"
	ModSQLSelected          = "SQL_selected"
	ModEntityName           = "entity_name"
	ModEntityPropName       = "entity_prop_name"
	ModEntitySetterCallback = "entity_setter_callback"
	ModEntityProps          = "entity_props"
	ModRegisterEntityName   = "register_entity_name"
)

// callSite collects what the modifiers of one call resolved.
type callSite struct {
	entity    string
	sqlType   string
	callbacks map[int][]string
}

func (c *crawler) call(n *phpast.Call, sc scope.ID, depth int) {
	c.attr(n).Hoverable = true
	sig := c.callee(n, sc, depth)
	if sig == nil {
		c.visitAll(n.Args, sc, depth)
		return
	}
	c.attr(n).Modifiers = sig.ReturnModifiers

	for i, arg := range n.Args {
		if i >= len(sig.Args) {
			break
		}
		c.setType(arg, sig.Args[i].DataType)
		c.attr(arg).Modifiers = sig.Args[i].Modifiers
	}

	site := c.applyModifiers(n, sig)

	for i, arg := range n.Args {
		if pending, ok := site.callbacks[i]; ok {
			c.attr(arg).PendingArgs = pending
			c.arena.SetPending(sc, pending)
		}
		c.visit(arg, sc, depth+1)
		c.arena.TakePending(sc)
	}

	c.setType(n, returnType(sig, site))
}

// callee visits the receiver side of n and resolves its signature.
func (c *crawler) callee(n *phpast.Call, sc scope.ID, depth int) *types.FunctionSignature {
	switch n.Kind {
	case phpast.CallFunction:
		c.visit(n.Callee, sc, depth+1)
		if n.Name == "" {
			return nil
		}
		return c.lookupFunction(n.Name)
	case phpast.CallMethod:
		c.visit(n.Receiver, sc, depth+1)
		recv := c.typeOf(n.Receiver)
		base, _ := types.SplitEntity(recv)
		if sig := c.lookupMethod(base, n.Name, false); sig != nil {
			return sig
		}
		if base != recv {
			return c.lookupMethod(recv, n.Name, false)
		}
	case phpast.CallStatic:
		c.visit(n.ClassNode, sc, depth+1)
		class := c.className(n.Class, sc)
		if n.ClassNode != nil {
			class = c.typeOf(n.ClassNode)
		}
		base, _ := types.SplitEntity(class)
		if sig := c.lookupMethod(base, n.Name, true); sig != nil {
			return sig
		}
		return c.lookupMethod(base, n.Name, false)
	}
	return nil
}

func literal(n phpast.Node) (string, bool) {
	s, ok := n.(*phpast.String)
	if !ok || s.Interpolated {
		return "", false
	}
	return s.Value, true
}

// applyModifiers runs the modifier-driven behaviors of one call. Each
// modifier writes to its own target, so they are applied independently.
func (c *crawler) applyModifiers(n *phpast.Call, sig *types.FunctionSignature) callSite {
	site := callSite{callbacks: make(map[int][]string)}
	register, registerAt := "", -1

	for i, p := range sig.Args {
		if i >= len(n.Args) {
			break
		}
		arg := n.Args[i]
		value, isLit := literal(arg)

		if docblock.HasModifier(p.Modifiers, ModSQLQuery) && isLit {
			if cols, ok := sqlcols.Columns(value); ok {
				props := make(map[string]types.PropSpec, len(cols))
				for _, col := range cols {
					props[col] = types.PropSpec{DataType: types.Mixed}
				}
				site.sqlType = types.FormatInline(props)
				c.setType(arg, site.sqlType)
			}
		}
		if docblock.HasModifier(p.Modifiers, ModEntityName) {
			c.offer(arg, c.entityNames())
			if isLit && value != "" {
				site.entity = types.EntityType(value)
			}
		}
		if docblock.HasModifier(p.Modifiers, ModRegisterEntityName) && isLit && value != "" {
			register, registerAt = value, i
		}
	}

	if registerAt >= 0 {
		for _, arg := range n.Args[registerAt+1:] {
			if arr, ok := arg.(*phpast.ArrayLit); ok {
				td := entityTypedef(register, arr)
				c.meta.AddTypedef(td)
				if site.entity == "" {
					site.entity = td.Name
				}
				break
			}
		}
	}

	if site.entity == "" {
		return site
	}
	for i, p := range sig.Args {
		if i >= len(n.Args) {
			break
		}
		arg := n.Args[i]
		if docblock.HasModifier(p.Modifiers, ModEntityPropName) {
			if td := c.resolve(site.entity); td != nil {
				c.offer(arg, td.Props)
			}
		}
		if docblock.HasModifier(p.Modifiers, ModEntitySetterCallback) {
			if _, ok := arg.(*phpast.FunctionDecl); ok {
				site.callbacks[i] = []string{site.entity, "string"}
			}
		}
		if docblock.HasModifier(p.Modifiers, ModEntityProps) {
			c.setType(arg, site.entity)
		}
		if elem, depth := stripAll(p.DataType); elem == types.EntityBase {
			c.setType(arg, types.ArrayOf(site.entity, depth))
		}
	}
	return site
}

func returnType(sig *types.FunctionSignature, site callSite) string {
	if depth, ok := docblock.ModifierDepth(sig.ReturnModifiers, ModSQLSelected); ok && site.sqlType != "" {
		return types.ArrayOf(site.sqlType, depth)
	}
	if site.entity != "" {
		if elem, depth := stripAll(sig.ReturnDataType); elem == types.EntityBase {
			return types.ArrayOf(site.entity, depth)
		}
	}
	return sig.ReturnDataType
}

// stripAll removes every array level from dt and reports how many there were.
func stripAll(dt string) (string, int) {
	depth := 0
	for {
		elem, ok := types.StripArray(dt)
		if !ok {
			return dt, depth
		}
		dt = elem
		depth++
	}
}

// entityTypedef builds the typedef declared by a register_entity_name call.
// Every prop is optional and the implicit "<name>_id" key is added.
func entityTypedef(name string, arr *phpast.ArrayLit) *types.TypeDef {
	td := types.NewTypeDef(types.EntityType(name))
	for k, v := range literalProps(arr) {
		v.Optional = true
		td.Props[k] = v
	}
	td.Props[name+"_id"] = types.PropSpec{DataType: "number", Optional: true}
	return td
}

// literalProps reads a keyed array literal as a prop table. String values
// name types; nested literals become inline types.
func literalProps(arr *phpast.ArrayLit) map[string]types.PropSpec {
	props := make(map[string]types.PropSpec)
	for _, e := range arr.Entries {
		key, ok := literal(e.Key)
		if !ok || key == "" {
			continue
		}
		props[key] = types.PropSpec{DataType: literalType(e.Value)}
	}
	return props
}

func literalType(n phpast.Node) string {
	switch v := n.(type) {
	case *phpast.String:
		if !v.Interpolated && v.Value != "" {
			return types.Normalize(v.Value)
		}
	case *phpast.Number:
		return "number"
	case *phpast.ArrayLit:
		if len(v.Entries) == 1 && v.Entries[0].Key == nil {
			return literalType(v.Entries[0].Value) + "[]"
		}
		if props := literalProps(v); len(props) > 0 {
			return types.FormatInline(props)
		}
	}
	return types.Mixed
}
