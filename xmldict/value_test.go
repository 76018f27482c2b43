package xmldict

import (
	"strings"
	"testing"
)

func TestContainerSetGetOrder(t *testing.T) {
	c := NewContainer()
	c.Set("b", 1)
	c.Set("a", 2)
	c.Set("b", 3)
	if got := strings.Join(c.Keys(), ","); got != "b,a" {
		t.Fatalf("key order wrong: %s", got)
	}
	v, ok := c.Get("b")
	if !ok || v != 3 {
		t.Fatalf("overwrite lost: %#v", v)
	}
	if c.Len() != 2 {
		t.Fatalf("len wrong: %d", c.Len())
	}
	if _, ok := c.Get("missing"); ok {
		t.Fatal("missing key reported present")
	}
}

func TestContainerDelete(t *testing.T) {
	c := NewContainer()
	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("c", 3)
	c.Delete("b")
	if got := strings.Join(c.Keys(), ","); got != "a,c" {
		t.Fatalf("key order wrong after delete: %s", got)
	}
	c.Delete("missing")
	if c.Len() != 2 {
		t.Fatalf("len wrong: %d", c.Len())
	}
}

func TestContainerWalk(t *testing.T) {
	c := NewContainer()
	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("c", 3)
	var visited []string
	c.Walk(func(key string, _ any) bool {
		visited = append(visited, key)
		return key != "b"
	})
	if got := strings.Join(visited, ","); got != "a,b" {
		t.Fatalf("walk order wrong: %s", got)
	}
}

func TestContainerEqual(t *testing.T) {
	a := NewContainer()
	a.Set("x", "1")
	a.Set("y", []any{"2", "3"})

	b := NewContainer()
	b.Set("x", "1")
	b.Set("y", []any{"2", "3"})
	if !a.Equal(b) {
		t.Fatal("equal containers reported unequal")
	}

	// same pairs, different order
	c := NewContainer()
	c.Set("y", []any{"2", "3"})
	c.Set("x", "1")
	if a.Equal(c) {
		t.Fatal("order difference not detected")
	}

	b.Set("y", []any{"2"})
	if a.Equal(b) {
		t.Fatal("list difference not detected")
	}
}

func TestContainerMarshalJSONOrder(t *testing.T) {
	c := NewContainer()
	c.Set("z", "1")
	c.Set("a", NewContainer())
	c.Set("m", nil)
	want := `{"z":"1","a":{},"m":null}`
	if got := compactJSON(t, c); got != want {
		t.Fatalf("got %s, want %s", got, want)
	}
}

func TestMarshalJSONKeepsMarkupCharacters(t *testing.T) {
	c := NewContainer()
	c.Set("expr", "1 < 2 & 3 > 2")
	c.Set("nested", func() *Container {
		n := NewContainer()
		n.Set("#text", "<tag/>")
		return n
	}())
	want := `{"expr":"1 < 2 & 3 > 2","nested":{"#text":"<tag/>"}}`
	if got := compactJSON(t, c); got != want {
		t.Fatalf("got %s, want %s", got, want)
	}
}

func TestCDATAMarshalsAsString(t *testing.T) {
	c := NewContainer()
	c.Set("a", CDATA("<raw>"))
	want := `{"a":"<raw>"}`
	if got := compactJSON(t, c); got != want {
		t.Fatalf("got %s, want %s", got, want)
	}
}

func TestNilContainerAccessors(t *testing.T) {
	var c *Container
	if c.Len() != 0 || c.Keys() != nil {
		t.Fatal("nil container should be empty")
	}
	if _, ok := c.Get("x"); ok {
		t.Fatal("nil container reported a key")
	}
	c.Delete("x")
	c.Walk(func(string, any) bool { t.Fatal("walk on nil container"); return false })
}
