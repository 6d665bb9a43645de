package crawler

import (
	"bytes"
	"sort"
	"strings"
	"testing"

	"github.com/DeusData/phplens/internal/phpast"
	"github.com/DeusData/phplens/internal/registry"
)

func parse(t *testing.T, src string) *phpast.File {
	t.Helper()
	f, err := phpast.Parse("test.php", []byte(src))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return f
}

func crawl(t *testing.T, src string, opts Options) (*phpast.File, *Result) {
	t.Helper()
	f := parse(t, src)
	res, err := Crawl(f, opts)
	if err != nil {
		t.Fatalf("Crawl: %v", err)
	}
	return f, res
}

// typeOfVar returns the type of the last occurrence of variable name.
func typeOfVar(f *phpast.File, res *Result, name string) string {
	var dt string
	for _, n := range f.Nodes {
		if v, ok := n.(*phpast.Variable); ok && v.Name == name {
			dt = res.Attrs[v.ID].DataType
		}
	}
	return dt
}

func diagnosticsWithCode(res *Result, code string) []Diagnostic {
	var out []Diagnostic
	for _, d := range res.Diagnostics {
		if d.Code == code {
			out = append(out, d)
		}
	}
	return out
}

const carTypedef = `<?php
/**
 * @typedef Car {
 *   brand: string
 *   color?: string
 * }
 */
`

func TestMissingKeys(t *testing.T) {
	src := carTypedef + `
/** @var Car */
$car = ['color' => 'red'];
`
	_, res := crawl(t, src, Options{})
	missing := diagnosticsWithCode(res, CodeMissingKeys)
	if len(missing) != 1 {
		t.Fatalf("missing-keys diagnostics = %+v", res.Diagnostics)
	}
	if !strings.Contains(missing[0].Message, "brand") || strings.Contains(missing[0].Message, "color") {
		t.Errorf("message = %q", missing[0].Message)
	}
	if missing[0].Severity != SeverityError {
		t.Errorf("severity = %s", missing[0].Severity)
	}
	if len(res.Diagnostics) != 1 {
		t.Errorf("diagnostics = %+v, want exactly one", res.Diagnostics)
	}
}

func TestUnknownKeySuggestion(t *testing.T) {
	src := carTypedef + `
/** @var Car */
$car = ['brand' => 'VW', 'colr' => 'red'];
`
	_, res := crawl(t, src, Options{})
	unknown := diagnosticsWithCode(res, CodeUnknownKey)
	if len(unknown) != 1 {
		t.Fatalf("unknown-key diagnostics = %+v", res.Diagnostics)
	}
	if !strings.Contains(unknown[0].Message, `did you mean "color"`) {
		t.Errorf("message = %q", unknown[0].Message)
	}
	if len(diagnosticsWithCode(res, CodeMissingKeys)) != 0 {
		t.Error("brand was given; no missing keys expected")
	}
}

func TestInlineTypesArePermissive(t *testing.T) {
	src := `<?php
/** @var {a: int, b: string} */
$x = ['a' => 1, 'zzz' => 2];
`
	_, res := crawl(t, src, Options{})
	if len(res.Diagnostics) != 0 {
		t.Errorf("diagnostics = %+v", res.Diagnostics)
	}
}

func TestParamTypesArgumentAndScope(t *testing.T) {
	src := `<?php
/**
 * @param string $name
 */
function foo($name) {}

foo($x);
$y = $x;
`
	f, res := crawl(t, src, Options{})
	if got := typeOfVar(f, res, "x"); got != "string" {
		t.Errorf("$x = %q, want string", got)
	}
	if got := typeOfVar(f, res, "y"); got != "string" {
		t.Errorf("$y = %q, want string (from scope binding of x)", got)
	}
	sig := res.Metadata.Scopes.Global.Functions["foo"]
	if sig == nil || len(sig.Args) != 1 || sig.Args[0].DataType != "string" {
		t.Fatalf("foo = %+v", sig)
	}
}

func TestReturnAccumulatorAndDeclaredReturn(t *testing.T) {
	src := carTypedef + `
function make() {
    /** @var Car */
    $c = ['brand' => 'VW'];
    return $c;
}
/** @return string */
function name() { return 1; }

$m = make();
`
	f, res := crawl(t, src, Options{})
	if got := res.Metadata.Scopes.Global.Functions["make"].ReturnDataType; got != "Car" {
		t.Errorf("make returns %q, want Car", got)
	}
	if got := res.Metadata.Scopes.Global.Functions["name"].ReturnDataType; got != "string" {
		t.Errorf("name returns %q, declared @return must win", got)
	}
	if got := typeOfVar(f, res, "m"); got != "Car" {
		t.Errorf("$m = %q", got)
	}
}

func TestOffsetAndForeach(t *testing.T) {
	src := carTypedef + `
/** @var Car[] */
$cars = [];
foreach ($cars as $car) {
    $b = $car['brand'];
}
$first = $cars[0];
`
	f, res := crawl(t, src, Options{})
	if got := typeOfVar(f, res, "car"); got != "Car" {
		t.Errorf("$car = %q", got)
	}
	if got := typeOfVar(f, res, "b"); got != "string" {
		t.Errorf("$b = %q", got)
	}
	if got := typeOfVar(f, res, "first"); got != "Car" {
		t.Errorf("$first = %q", got)
	}
}

func TestChainedOffsetLookup(t *testing.T) {
	src := `<?php
/**
 * @typedef Garage {
 *   cars: Car[]
 * }
 * @typedef Car {
 *   brand: string
 * }
 */
/** @var Garage */
$g = ['cars' => []];
$brand = $g['cars'][0]['brand'];
`
	f, res := crawl(t, src, Options{})
	if got := typeOfVar(f, res, "brand"); got != "string" {
		t.Errorf("$brand = %q", got)
	}
}

func TestAssignMismatchWarning(t *testing.T) {
	src := carTypedef + `
/** @return Car */
function car() {}
$s = 'text';
$s = car();
$n = 1;
$n = 2;
`
	f, res := crawl(t, src, Options{})
	mismatch := diagnosticsWithCode(res, CodeTypeMismatch)
	if len(mismatch) != 1 {
		t.Fatalf("mismatch diagnostics = %+v", res.Diagnostics)
	}
	if mismatch[0].Severity != SeverityWarning || mismatch[0].Message != "Cannot assign Car to string!" {
		t.Errorf("diagnostic = %+v", mismatch[0])
	}
	if got := typeOfVar(f, res, "s"); got != "Car" {
		t.Errorf("$s = %q, inference must follow the right side", got)
	}
}

func TestClassMethodsAndThis(t *testing.T) {
	src := carTypedef + `
class Garage {
    /** @var Car */
    public $car;

    /** @return Car */
    public function get() { return $this->car; }

    public static function open() { return new Garage(); }

    public function brand() {
        $c = $this->get();
        $o = self::open();
        return $this->car;
    }
}
`
	f, res := crawl(t, src, Options{})
	cls := res.Metadata.Scopes.Classes["Garage"]
	if cls == nil {
		t.Fatal("Garage not recorded")
	}
	if cls.Props["car"].DataType != "Car" {
		t.Errorf("Garage::$car = %+v", cls.Props["car"])
	}
	if _, ok := cls.StaticFunctions["open"]; !ok {
		t.Error("static open missing")
	}
	if got := cls.Methods["get"].Name; got != "Garage::get" {
		t.Errorf("method name = %q", got)
	}
	if got := typeOfVar(f, res, "c"); got != "Car" {
		t.Errorf("$c = %q", got)
	}
	if got := typeOfVar(f, res, "o"); got != "Garage" {
		t.Errorf("$o = %q", got)
	}
	if got := cls.Methods["brand"].ReturnDataType; got != "Car" {
		t.Errorf("brand returns %q", got)
	}
}

func TestNoLeakIntoFunctions(t *testing.T) {
	src := `<?php
$outer = 'x';
function f() { return $outer; }
`
	_, res := crawl(t, src, Options{})
	if got := res.Metadata.Scopes.Global.Functions["f"].ReturnDataType; got != "" {
		t.Errorf("f returns %q, outer binding leaked", got)
	}
}

func TestSQLQueryModifier(t *testing.T) {
	src := `<?php
class Db {
    /**
     * @param string $sql !SQL_query
     * @return array !SQL_selected[]
     */
    public static function fetchAll($sql) {}

    /**
     * @param string $sql !SQL_query
     * @return array !SQL_selected
     */
    public static function fetchRow($sql) {}
}
$rows = Db::fetchAll('SELECT id, name AS label FROM users');
$row = Db::fetchRow('SELECT id FROM users');
$bad = Db::fetchAll('DELETE FROM users');
`
	f, res := crawl(t, src, Options{})
	if got := typeOfVar(f, res, "rows"); got != "{id: mixed, label: mixed}[]" {
		t.Errorf("$rows = %q", got)
	}
	if got := typeOfVar(f, res, "row"); got != "{id: mixed}" {
		t.Errorf("$row = %q", got)
	}
	if got := typeOfVar(f, res, "bad"); got != "array" {
		t.Errorf("$bad = %q, want the declared return", got)
	}
}

const entitySrc = `<?php
class Entity {
    /**
     * @param string $name !entity_name
     * @param Entity $parent
     * @return Entity
     */
    public static function get($name, $parent) {}

    /**
     * @param string $name !entity_name
     * @param string $prop !entity_prop_name
     * @param callable $cb !entity_setter_callback
     */
    public static function onSet($name, $prop, $cb) {}

    /**
     * @param string $name !register_entity_name
     * @param array $props
     */
    public static function register($name, $props) {}
}
Entity::register('user', ['email' => 'string', 'age' => 'number', 'address' => ['city' => 'string']]);
$u = Entity::get('user', $p);
Entity::onSet('user', 'email', function ($entity, $value) {
    $e = $entity;
    $v = $value;
});
$n = new Entity('user');
`

func TestEntityModifiers(t *testing.T) {
	f, res := crawl(t, entitySrc, Options{})
	td := res.Metadata.Typedefs["EntityUser"]
	if td == nil {
		t.Fatal("EntityUser not registered")
	}
	if !td.Props["email"].Optional || td.Props["user_id"].DataType != "number" {
		t.Errorf("EntityUser = %+v", td.Props)
	}
	if got := td.Props["address"].DataType; got != "{city: string}" {
		t.Errorf("address = %q", got)
	}
	if got := typeOfVar(f, res, "u"); got != "EntityUser" {
		t.Errorf("$u = %q", got)
	}
	if got := typeOfVar(f, res, "p"); got != "EntityUser" {
		t.Errorf("sibling $p = %q", got)
	}
	if got := typeOfVar(f, res, "e"); got != "EntityUser" {
		t.Errorf("callback $e = %q", got)
	}
	if got := typeOfVar(f, res, "v"); got != "string" {
		t.Errorf("callback $value = %q", got)
	}
	if got := typeOfVar(f, res, "n"); got != "EntityUser" {
		t.Errorf("$n = %q", got)
	}
	for _, n := range f.Nodes {
		if nw, ok := n.(*phpast.New); ok {
			a := res.Attrs[nw.ID]
			if a.BaseType != "Entity" || a.AdditionalType != "User" {
				t.Errorf("new attrs = %+v", a)
			}
		}
	}
}

func TestEntityNameCompletion(t *testing.T) {
	// cursor inside 'user' of Entity::get
	cursor := phpast.Position{Line: 24, Column: 20}
	_, res := crawl(t, entitySrc, Options{Mode: ModeDecorate, Cursor: &cursor})
	if len(res.CursorNodes) == 0 {
		t.Fatal("no cursor nodes")
	}
	props := res.CursorNodes[0].PossibleProps
	if _, ok := props["user"]; !ok {
		t.Errorf("possible props = %v", props)
	}
}

func TestEntityPropNameCompletion(t *testing.T) {
	// cursor inside 'email' of Entity::onSet
	cursor := phpast.Position{Line: 25, Column: 24}
	_, res := crawl(t, entitySrc, Options{Mode: ModeDecorate, Cursor: &cursor})
	if len(res.CursorNodes) != 1 {
		t.Fatalf("cursor nodes = %+v", res.CursorNodes)
	}
	var props []string
	for name := range res.CursorNodes[0].PossibleProps {
		props = append(props, name)
	}
	sort.Strings(props)
	want := []string{"address", "age", "email", "user_id"}
	if strings.Join(props, ",") != strings.Join(want, ",") {
		t.Errorf("possible props = %v, want %v", props, want)
	}
}

const entityPropsSrc = `<?php
/**
 * @param string $name !register_entity_name
 * @param array $props
 */
function register_entity($name, $props) {}

/**
 * @param string $name !entity_name
 * @param array $props !entity_props
 */
function save($name, $props) {}

register_entity('car', ['brand' => 'string', 'doors' => 'number']);
save('car', %s);
`

func TestEntityPropsArgument(t *testing.T) {
	tests := []struct {
		name    string
		arg     string
		unknown string
	}{
		{"known keys", "['brand' => 'VW', 'doors' => 4]", ""},
		{"unknown key", "['wheels' => 4]", "wheels"},
		{"partial", "['brand' => 'VW', 'colour' => 'red']", "colour"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, res := crawl(t, strings.Replace(entityPropsSrc, "%s", tt.arg, 1), Options{})

			var arr *phpast.ArrayLit
			for _, n := range f.Nodes {
				if a, ok := n.(*phpast.ArrayLit); ok {
					arr = a
				}
			}
			if arr == nil {
				t.Fatal("array argument not found")
			}
			if got := res.Attrs[arr.ID].DataType; got != "EntityCar" {
				t.Errorf("argument type = %q, want EntityCar", got)
			}

			unknown := diagnosticsWithCode(res, CodeUnknownKey)
			if tt.unknown == "" {
				if len(unknown) != 0 {
					t.Errorf("unexpected diagnostics %+v", unknown)
				}
				return
			}
			if len(unknown) != 1 || !strings.Contains(unknown[0].Message, `"`+tt.unknown+`"`) ||
				!strings.Contains(unknown[0].Message, "EntityCar") {
				t.Errorf("unknown-key diagnostics = %+v", unknown)
			}
			if missing := diagnosticsWithCode(res, CodeMissingKeys); len(missing) != 0 {
				t.Errorf("entity props are optional, got %+v", missing)
			}
		})
	}
}

func TestArrayKeyCompletion(t *testing.T) {
	src := carTypedef + `
/** @var Car */
$car = ['brand' => 'VW'];
`
	cursor := phpast.Position{Line: 10, Column: 10}
	_, res := crawl(t, src, Options{Cursor: &cursor})
	if len(res.CursorNodes) != 1 {
		t.Fatalf("cursor nodes = %+v", res.CursorNodes)
	}
	n := res.CursorNodes[0]
	if n.Kind != "string" || len(n.PossibleProps) != 2 {
		t.Errorf("cursor node = %+v", n)
	}
}

func TestMetadataIdempotent(t *testing.T) {
	f := parse(t, entitySrc+carTypedef[len("<?php\n"):])
	reg := registry.New()
	var outputs [][]byte
	for i := 0; i < 3; i++ {
		res, err := Crawl(f, Options{Types: reg})
		if err != nil {
			t.Fatal(err)
		}
		data, err := res.Metadata.Encode()
		if err != nil {
			t.Fatal(err)
		}
		outputs = append(outputs, data)
		reg.Rebuild(f.Path, res.Metadata)
	}
	if !bytes.Equal(outputs[1], outputs[2]) {
		t.Errorf("metadata not stable:\n%s\n%s", outputs[1], outputs[2])
	}

	a, _ := Crawl(f, Options{})
	b, _ := Crawl(f, Options{})
	da, _ := a.Metadata.Encode()
	db, _ := b.Metadata.Encode()
	if !bytes.Equal(da, db) {
		t.Error("two crawls with the same registry state differ")
	}
}

func TestViewportRestriction(t *testing.T) {
	var b strings.Builder
	b.WriteString("<?php\n")
	for i := 0; i < 40; i++ {
		b.WriteString("$v = ['k' => 1];\n")
	}
	f := parse(t, b.String())
	vp := &phpast.LineRange{First: 10, Last: 12}

	restricted, err := Crawl(f, Options{Mode: ModeDecorate, Viewport: vp, Restrict: true})
	if err != nil {
		t.Fatal(err)
	}
	for _, id := range restricted.Visited {
		loc := f.Node(id).Base().Loc
		if !phpast.InWindow(loc, *vp) {
			t.Fatalf("visited node %d at %+v outside viewport", id, loc)
		}
	}
	if len(restricted.Visited) >= f.Len() {
		t.Error("restricted crawl visited everything")
	}

	full, err := Crawl(f, Options{Mode: ModeDecorate, Viewport: vp})
	if err != nil {
		t.Fatal(err)
	}
	if len(full.Visited) != f.Len() {
		t.Errorf("full crawl visited %d of %d nodes", len(full.Visited), f.Len())
	}

	meta, err := Crawl(f, Options{Mode: ModeMetadata, Viewport: vp, Restrict: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(meta.Visited) != f.Len() {
		t.Errorf("metadata crawl visited %d of %d nodes", len(meta.Visited), f.Len())
	}
}

func TestCrossFileResolution(t *testing.T) {
	reg := registry.New()
	lib, res := crawl(t, carTypedef+`
/** @return Car */
function makeCar() {}
`, Options{})
	reg.Rebuild(lib.Path, res.Metadata)

	f, res := crawl(t, "<?php\n$c = makeCar();\n$b = $c['brand'];\n", Options{Types: reg})
	if got := typeOfVar(f, res, "b"); got != "string" {
		t.Errorf("$b = %q", got)
	}
}

func TestDecorations(t *testing.T) {
	_, res := crawl(t, carTypedef+"/** @var Car */\n$car = ['brand' => 'x'];\n", Options{Mode: ModeDecorate})
	tags := map[string]int{}
	for _, d := range res.Decorations {
		tags[string(d.Tag)]++
	}
	for _, want := range []string{"annotation", "annotation_data_type", "typedef_prop_name", "typedef_data_type", "curly_brace", "data_type"} {
		if tags[want] == 0 {
			t.Errorf("no %s decoration; got %v", want, tags)
		}
	}
}

func TestCrawlNilFile(t *testing.T) {
	if _, err := Crawl(nil, Options{}); err == nil {
		t.Error("expected error for nil file")
	}
}
