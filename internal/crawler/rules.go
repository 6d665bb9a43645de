package crawler

import (
	"strings"

	"github.com/DeusData/phplens/internal/phpast"
	"github.com/DeusData/phplens/internal/scope"
	"github.com/DeusData/phplens/internal/types"
)

func (c *crawler) visit(n phpast.Node, sc scope.ID, depth int) {
	if n == nil {
		return
	}
	b := n.Base()
	if !c.inWindow(b.Loc) {
		return
	}
	c.res.Visited = append(c.res.Visited, b.ID)
	a := &c.attrs[b.ID]
	a.Scope = sc
	a.Depth = depth

	switch n := n.(type) {
	case *phpast.Program:
		c.visitAll(n.Body, sc, depth)
	case *phpast.Block:
		c.visitAll(n.Body, sc, depth)
	case *phpast.ClassDecl:
		cs := c.arena.New(scope.KindClass, sc, n.Name)
		if n.Name != "" {
			c.meta.Scopes.Class(n.Name)
		}
		c.visitAll(n.Body, cs, depth)
	case *phpast.FunctionDecl:
		c.function(n, sc, depth)
	case *phpast.Param:
		c.visit(n.Default, sc, depth+1)
	case *phpast.PropertyDecl:
		c.property(n, sc, depth)
	case *phpast.ExprStmt:
		c.exprStmt(n, sc, depth)
	case *phpast.Assign:
		c.assign(n, sc, depth)
	case *phpast.Call:
		c.call(n, sc, depth)
	case *phpast.New:
		c.newExpr(n, sc, depth)
	case *phpast.ArrayLit:
		c.array(n, sc, depth)
	case *phpast.Entry:
		c.visit(n.Key, sc, depth+1)
		c.visit(n.Value, sc, depth+1)
		c.setType(n, c.typeOf(n.Value))
	case *phpast.Variable:
		c.variable(n, sc)
	case *phpast.OffsetLookup:
		c.offsetLookup(n, sc, depth)
	case *phpast.PropertyLookup:
		c.propertyLookup(n, sc, depth)
	case *phpast.Foreach:
		c.foreach(n, sc, depth)
	case *phpast.Return:
		c.visit(n.Expr, sc, depth+1)
		c.arena.AccumulateReturn(sc, c.typeOf(n.Expr))
	case *phpast.String:
		c.visitAll(n.Parts, sc, depth)
		if !n.Interpolated && a.DataType == "" {
			c.setType(n, "string")
		}
	case *phpast.Number:
		if a.DataType == "" {
			c.setType(n, "number")
		}
	case *phpast.If, *phpast.While, *phpast.Echo, *phpast.Binary, *phpast.Other:
		c.visitAll(n.Children(), sc, depth)
	case *phpast.Identifier:
	}

	c.emit(n)
}

func (c *crawler) visitAll(nodes []phpast.Node, sc scope.ID, depth int) {
	for _, child := range nodes {
		c.visit(child, sc, depth+1)
	}
}

// hintType maps a PHP type declaration to an engine type. Hints that say
// nothing about shape are dropped.
func hintType(hint string) string {
	hint = strings.TrimPrefix(hint, "?")
	switch strings.ToLower(hint) {
	case "", "array", "mixed", "callable", "iterable", "object", "void", "null", "self", "static":
		return ""
	case "int", "float":
		return "number"
	}
	return hint
}

func (c *crawler) function(n *phpast.FunctionDecl, sc scope.ID, depth int) {
	class := c.arena.ClassOf(sc)
	fs := c.arena.New(scope.KindFunction, sc, class)
	var pending []string
	if n.Kind == phpast.FuncClosure || n.Kind == phpast.FuncArrow {
		pending = c.arena.TakePending(sc)
	}

	doc := c.leadingDoc(n)
	sig := &types.FunctionSignature{Name: n.Name, IsStatic: n.Static, Args: []types.Arg{}}
	if n.Kind == phpast.FuncMethod && class != "" {
		sig.Name = class + "::" + n.Name
	}

	for i, p := range n.Params {
		arg := types.Arg{Name: p.Name}
		if doc != nil {
			if tag, ok := doc.Params[p.Name]; ok {
				arg.DataType, arg.Modifiers = tag.DataType, tag.Modifiers
			}
		}
		if arg.DataType == "" && i < len(pending) {
			arg.DataType = pending[i]
		}
		if arg.DataType == "" {
			arg.DataType = hintType(p.TypeHint)
		}
		sig.Args = append(sig.Args, arg)

		c.setType(p, arg.DataType)
		pa := c.attr(p)
		pa.Modifiers = arg.Modifiers
		pa.Hoverable = true
		c.arena.Bind(fs, p.Name, arg.DataType)
		if _, ok := p.Default.(*phpast.ArrayLit); ok {
			c.setType(p.Default, arg.DataType)
		}
		c.visit(p, fs, depth+1)
	}

	// the declared return type is known before the body so recursive calls
	// resolve
	if doc != nil && doc.Return != nil {
		sig.ReturnDataType = doc.Return.DataType
		sig.ReturnModifiers = doc.Return.Modifiers
	}
	c.record(n, sig, class)

	c.visit(n.Body, fs, depth+1)
	if sig.ReturnDataType == "" {
		if n.Kind == phpast.FuncArrow {
			sig.ReturnDataType = c.typeOf(n.Body)
		} else if s := c.arena.Get(fs); s != nil {
			sig.ReturnDataType = s.ReturnType
		}
	}
}

// record stores sig in the file's scopes. Closures are not recorded.
func (c *crawler) record(n *phpast.FunctionDecl, sig *types.FunctionSignature, class string) {
	if n.Name == "" {
		return
	}
	switch n.Kind {
	case phpast.FuncFunction:
		c.meta.Scopes.Global.Functions[n.Name] = sig
	case phpast.FuncMethod:
		if class == "" {
			return
		}
		cs := c.meta.Scopes.Class(class)
		if n.Static {
			cs.StaticFunctions[n.Name] = sig
		} else {
			cs.Methods[n.Name] = sig
		}
	}
}

func (c *crawler) property(n *phpast.PropertyDecl, sc scope.ID, depth int) {
	dt := hintType(n.TypeHint)
	if doc := c.leadingDoc(n); doc != nil && doc.Var != "" {
		dt = doc.Var
	}
	if class := c.arena.ClassOf(sc); class != "" && n.Name != "" && dt != "" {
		c.meta.Scopes.Class(class).Props[n.Name] = types.PropSpec{DataType: dt}
	}
	c.setType(n, dt)
	c.attr(n).Hoverable = true
	if _, ok := n.Default.(*phpast.ArrayLit); ok {
		c.setType(n.Default, dt)
	}
	c.visit(n.Default, sc, depth+1)
}

// exprStmt applies a leading @var to the statement's target before
// crawling it.
func (c *crawler) exprStmt(n *phpast.ExprStmt, sc scope.ID, depth int) {
	if doc := c.leadingDoc(n); doc != nil && doc.Var != "" {
		target := n.Expr
		assign, isAssign := n.Expr.(*phpast.Assign)
		if isAssign {
			target = assign.Left
		}
		if v, ok := target.(*phpast.Variable); ok && doc.VarName != "" && doc.VarName != v.Name {
			c.arena.Bind(sc, doc.VarName, doc.Var)
		} else {
			c.setType(target, doc.Var)
			if isAssign {
				if _, ok := assign.Right.(*phpast.ArrayLit); ok {
					c.setType(assign.Right, doc.Var)
				}
			}
		}
	}
	c.visit(n.Expr, sc, depth+1)
	c.setType(n, c.typeOf(n.Expr))
}

func (c *crawler) assign(n *phpast.Assign, sc scope.ID, depth int) {
	c.visit(n.Right, sc, depth+1)
	rt := c.typeOf(n.Right)
	c.visit(n.Left, sc, depth+1)
	if n.Op != "=" {
		return
	}
	lt := c.typeOf(n.Left)
	if !compatible(lt, rt) {
		c.diagnose(n.Loc, SeverityWarning, CodeTypeMismatch,
			"Cannot assign "+rt+" to "+lt+"!")
	}
	if rt == "" {
		c.setType(n, lt)
		return
	}
	c.setType(n.Left, rt)
	if v, ok := n.Left.(*phpast.Variable); ok {
		c.arena.Bind(sc, v.Name, rt)
	}
	c.setType(n, rt)
}

// compatible reports whether a value of type rt may be assigned to a target
// of type lt without a warning.
func compatible(lt, rt string) bool {
	if lt == "" || rt == "" || lt == rt || types.IsMixed(lt) || types.IsMixed(rt) {
		return true
	}
	return scalarFamily(lt) != "" && scalarFamily(lt) == scalarFamily(rt)
}

func scalarFamily(dt string) string {
	switch strings.ToLower(dt) {
	case "int", "integer", "float", "double", "number":
		return "number"
	case "string":
		return "string"
	case "bool", "boolean":
		return "bool"
	}
	return ""
}

func (c *crawler) variable(n *phpast.Variable, sc scope.ID) {
	a := c.attr(n)
	a.Hoverable = true
	if a.DataType != "" {
		c.arena.Bind(sc, n.Name, a.DataType)
		return
	}
	if dt, ok := c.arena.Lookup(sc, n.Name); ok {
		c.setType(n, dt)
	}
}

func (c *crawler) array(n *phpast.ArrayLit, sc scope.ID, depth int) {
	dt := c.typeOf(n)
	if elem, ok := types.StripArray(dt); ok {
		for _, e := range n.Entries {
			c.setType(e.Value, elem)
		}
		c.visitEntries(n, sc, depth)
		return
	}
	td := c.resolve(dt)
	if td == nil {
		c.visitEntries(n, sc, depth)
		return
	}

	strict := !types.IsInline(dt)
	consumed := make(map[string]bool)
	for _, e := range n.Entries {
		key, ok := e.Key.(*phpast.String)
		if !ok || key.Interpolated {
			continue
		}
		c.offer(key, td.Props)
		spec, known := td.Props[key.Value]
		if !known {
			if strict {
				c.unknownKey(key, td)
			}
			continue
		}
		consumed[key.Value] = true
		if spec.DataType != "" {
			c.setType(e.Value, spec.DataType)
		}
	}
	c.visitEntries(n, sc, depth)

	if !strict {
		return
	}
	var missing []string
	for _, name := range td.Required() {
		if !consumed[name] {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		c.diagnose(n.Loc, SeverityError, CodeMissingKeys,
			"Missing keys for type "+td.Name+": "+strings.Join(missing, ", "))
	}
}

func (c *crawler) visitEntries(n *phpast.ArrayLit, sc scope.ID, depth int) {
	for _, e := range n.Entries {
		c.visit(e, sc, depth+1)
	}
}

func (c *crawler) offsetLookup(n *phpast.OffsetLookup, sc scope.ID, depth int) {
	c.attr(n).Hoverable = true
	c.visit(n.Object, sc, depth+1)
	bt := c.typeOf(n.Object)

	var resolved string
	if elem, ok := types.StripArray(bt); ok {
		resolved = elem
	} else if td := c.resolve(bt); td != nil {
		if key, ok := n.Offset.(*phpast.String); ok && !key.Interpolated {
			c.offer(key, td.Props)
			resolved = td.Props[key.Value].DataType
		}
	}

	c.visit(n.Offset, sc, depth+1)
	if resolved != "" {
		c.setType(n, resolved)
	}
}

func (c *crawler) propertyLookup(n *phpast.PropertyLookup, sc scope.ID, depth int) {
	c.attr(n).Hoverable = true
	c.visit(n.Object, sc, depth+1)
	if n.Prop == nil {
		return
	}
	c.visit(n.Prop, sc, depth+1)

	var owner string
	if n.Static {
		if id, ok := n.Object.(*phpast.Identifier); ok {
			owner = c.className(id.Name, sc)
		}
	}
	if owner == "" {
		owner = c.typeOf(n.Object)
	}
	if owner == "" {
		return
	}

	candidates := make(map[string]types.PropSpec)
	if td := c.resolve(owner); td != nil {
		for k, v := range td.Props {
			candidates[k] = v
		}
	}
	base, _ := types.SplitEntity(owner)
	for _, class := range []string{base, owner} {
		if cs, ok := c.meta.Scopes.Classes[class]; ok {
			for k, v := range cs.Props {
				candidates[k] = v
			}
		}
		if p, ok := c.lookupClassProp(class, n.Prop.Name); ok {
			candidates[n.Prop.Name] = p
		}
	}
	c.offer(n.Prop, candidates)
	if p, ok := candidates[n.Prop.Name]; ok && p.DataType != "" {
		c.setType(n, p.DataType)
		c.setType(n.Prop, p.DataType)
	}
}

func (c *crawler) className(name string, sc scope.ID) string {
	switch strings.ToLower(name) {
	case "self", "static":
		return c.arena.ClassOf(sc)
	case "parent":
		return ""
	}
	return name
}

func (c *crawler) newExpr(n *phpast.New, sc scope.ID, depth int) {
	c.attr(n).Hoverable = true
	c.visit(n.ClassNode, sc, depth+1)
	class := c.className(n.Class, sc)

	dt := class
	if strings.HasPrefix(class, types.EntityBase) && len(n.Args) > 0 {
		if lit, ok := n.Args[0].(*phpast.String); ok && !lit.Interpolated {
			if class == types.EntityBase {
				c.offer(lit, c.entityNames())
			}
			dt = class + types.TitleCase(lit.Value)
		}
	}

	if ctor := c.lookupMethod(class, "__construct", false); ctor != nil {
		for i, arg := range n.Args {
			if i < len(ctor.Args) {
				c.setType(arg, ctor.Args[i].DataType)
			}
		}
	}
	c.visitAll(n.Args, sc, depth)
	c.setType(n, dt)
}

func (c *crawler) foreach(n *phpast.Foreach, sc scope.ID, depth int) {
	c.visit(n.Source, sc, depth+1)
	if elem, ok := types.StripArray(c.typeOf(n.Source)); ok && n.Value != nil {
		c.setType(n.Value, elem)
		if v, ok := n.Value.(*phpast.Variable); ok {
			c.arena.Bind(sc, v.Name, elem)
		}
	}
	c.visit(n.Key, sc, depth+1)
	c.visit(n.Value, sc, depth+1)
	c.visit(n.Body, sc, depth+1)
}
