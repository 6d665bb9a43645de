package registry

import (
	"sync"
	"testing"

	"github.com/DeusData/phplens/internal/types"
)

func metaWith(tds ...*types.TypeDef) *types.FileMetadata {
	m := types.NewFileMetadata()
	for _, td := range tds {
		m.AddTypedef(td)
	}
	return m
}

func TestMergeUnionLaterWins(t *testing.T) {
	r := New()
	r.Rebuild("a.php", metaWith(&types.TypeDef{Name: "Car", Props: map[string]types.PropSpec{
		"brand": {DataType: "string"},
		"doors": {DataType: "int"},
	}}))
	r.Rebuild("b.php", metaWith(&types.TypeDef{Name: "Car", Props: map[string]types.PropSpec{
		"doors": {DataType: "number"},
		"color": {DataType: "string", Optional: true},
	}}))

	car, ok := r.LookupType("Car")
	if !ok {
		t.Fatal("Car not found")
	}
	if len(car.Props) != 3 {
		t.Fatalf("props = %v, want union of 3", car.Props)
	}
	if got := car.Props["doors"].DataType; got != "number" {
		t.Errorf("doors = %q, want the later file's number", got)
	}

	// rebuilding a.php makes it the later file
	r.Rebuild("a.php", metaWith(&types.TypeDef{Name: "Car", Props: map[string]types.PropSpec{
		"brand": {DataType: "string"},
		"doors": {DataType: "int"},
	}}))
	car, _ = r.LookupType("Car")
	if got := car.Props["doors"].DataType; got != "int" {
		t.Errorf("doors after rebuild = %q, want int", got)
	}
}

func TestRebuildReplacesContribution(t *testing.T) {
	r := New()
	r.Rebuild("a.php", metaWith(&types.TypeDef{Name: "Old", Props: map[string]types.PropSpec{}}))
	r.Rebuild("a.php", metaWith(&types.TypeDef{Name: "New", Props: map[string]types.PropSpec{}}))
	if _, ok := r.LookupType("Old"); ok {
		t.Error("Old survived a rebuild of its only file")
	}
	if _, ok := r.LookupType("New"); !ok {
		t.Error("New missing")
	}
	r.Remove("a.php")
	if _, ok := r.LookupType("New"); ok {
		t.Error("New survived removal")
	}
	if r.Size() != 0 {
		t.Errorf("Size = %d", r.Size())
	}
}

func TestRebuildIdempotent(t *testing.T) {
	r := New()
	m := metaWith(&types.TypeDef{Name: "Car", Props: map[string]types.PropSpec{"brand": {DataType: "string"}}})
	r.Rebuild("a.php", m)
	r.Rebuild("a.php", m)
	if got := r.Files(); len(got) != 1 || got[0] != "a.php" {
		t.Errorf("Files = %v", got)
	}
	if tds := r.Typedefs(); len(tds) != 1 {
		t.Errorf("Typedefs = %v", tds)
	}
}

func TestLookupSignatures(t *testing.T) {
	m := types.NewFileMetadata()
	m.Scopes.Global.Functions["foo"] = &types.FunctionSignature{Name: "foo", ReturnDataType: "string"}
	cs := m.Scopes.Class("Db")
	cs.Methods["query"] = &types.FunctionSignature{Name: "Db::query"}
	cs.StaticFunctions["open"] = &types.FunctionSignature{Name: "Db::open", IsStatic: true}
	cs.Props["conn"] = types.PropSpec{DataType: "Conn"}

	r := New()
	r.Rebuild("db.php", m)

	if sig, ok := r.LookupFunction("foo"); !ok || sig.ReturnDataType != "string" {
		t.Errorf("foo = %+v, %v", sig, ok)
	}
	if _, ok := r.LookupMethod("Db", "query", false); !ok {
		t.Error("Db::query missing")
	}
	if _, ok := r.LookupMethod("Db", "query", true); ok {
		t.Error("instance method found in static table")
	}
	if sig, ok := r.LookupMethod("Db", "open", true); !ok || !sig.IsStatic {
		t.Errorf("Db::open = %+v, %v", sig, ok)
	}
	if _, ok := r.LookupMethod("Nope", "open", true); ok {
		t.Error("unknown class resolved")
	}
	if p, ok := r.LookupClassProp("Db", "conn"); !ok || p.DataType != "Conn" {
		t.Errorf("Db::$conn = %+v, %v", p, ok)
	}
}

func TestEntityNames(t *testing.T) {
	r := New()
	r.Rebuild("e.php", metaWith(
		types.NewTypeDef("EntityUserRole"),
		types.NewTypeDef("EntityUser"),
		types.NewTypeDef("Car"),
	))
	got := r.EntityNames()
	if len(got) != 2 || got[0] != "user" || got[1] != "user_role" {
		t.Errorf("EntityNames = %v", got)
	}
}

func TestConcurrentReadsDuringRebuild(t *testing.T) {
	r := New()
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				r.LookupType("Car")
				r.EntityNames()
			}
		}()
	}
	for j := 0; j < 50; j++ {
		r.Rebuild("a.php", metaWith(&types.TypeDef{Name: "Car", Props: map[string]types.PropSpec{"n": {DataType: "int"}}}))
	}
	wg.Wait()
}

func TestRebuildAllMatchesSequentialRebuilds(t *testing.T) {
	a := metaWith(&types.TypeDef{Name: "Car", Props: map[string]types.PropSpec{"doors": {DataType: "int"}}})
	b := metaWith(&types.TypeDef{Name: "Car", Props: map[string]types.PropSpec{"doors": {DataType: "number"}}})

	seq := New()
	seq.Rebuild("a.php", a)
	seq.Rebuild("b.php", b)
	seq.Rebuild("c.php", metaWith(types.NewTypeDef("Gone")))
	seq.Remove("c.php")

	batch := New()
	batch.Rebuild("c.php", metaWith(types.NewTypeDef("Gone")))
	batch.RebuildAll([]Update{{Path: "a.php", Meta: a}, {Path: "b.php", Meta: b}, {Path: "c.php"}})

	for _, r := range []*Registry{seq, batch} {
		car, ok := r.LookupType("Car")
		if !ok || car.Props["doors"].DataType != "number" {
			t.Errorf("Car = %+v", car)
		}
		if _, ok := r.LookupType("Gone"); ok {
			t.Error("removed file still contributes")
		}
		if r.Size() != 2 {
			t.Errorf("Size = %d", r.Size())
		}
	}
}
