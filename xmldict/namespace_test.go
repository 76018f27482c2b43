package xmldict

import (
	"errors"
	"testing"
)

const namespaced = `<root xmlns="http://default.example/" xmlns:a="http://a.example/">
  <a:child a:attr="1"/>
  <plain/>
</root>`

func TestNamespacesOffByDefault(t *testing.T) {
	doc, err := ParseString(`<a:x xmlns:a="http://a/"><a:y>1</a:y></a:x>`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := `{"a:x":{"@xmlns:a":"http://a/","a:y":"1"}}`
	if got := compactJSON(t, doc); got != want {
		t.Fatalf("got %s, want %s", got, want)
	}
}

func TestNamespaceExpansion(t *testing.T) {
	opts := DefaultDecodeOptions()
	opts.ProcessNamespaces = true
	doc, err := ParseStringWithOptions(namespaced, opts)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	// a:child carries a prefixed attribute with no URI map configured, so
	// its in-scope bindings are surfaced as a synthesized @xmlns value.
	want := `{"http://default.example/:root":{"http://a.example/:child":{"@xmlns":{"":"http://default.example/","a":"http://a.example/"},"@http://a.example/:attr":"1"},"http://default.example/:plain":null}}`
	if got := compactJSON(t, doc); got != want {
		t.Fatalf("got %s, want %s", got, want)
	}
}

func TestNamespaceCustomSeparator(t *testing.T) {
	opts := DefaultDecodeOptions()
	opts.ProcessNamespaces = true
	opts.NamespaceSeparator = "|"
	doc, err := ParseStringWithOptions(`<a:x xmlns:a="http://a/">1</a:x>`, opts)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := `{"http://a/|x":"1"}`
	if got := compactJSON(t, doc); got != want {
		t.Fatalf("got %s, want %s", got, want)
	}
}

func TestNamespaceURIMap(t *testing.T) {
	opts := DefaultDecodeOptions()
	opts.ProcessNamespaces = true
	opts.Namespaces = map[string]string{
		"http://default.example/": "",
		"http://a.example/":       "a",
	}
	doc, err := ParseStringWithOptions(namespaced, opts)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := `{"root":{"a:child":{"@a:attr":"1"},"plain":null}}`
	if got := compactJSON(t, doc); got != want {
		t.Fatalf("got %s, want %s", got, want)
	}
}

func TestUnboundPrefixError(t *testing.T) {
	opts := DefaultDecodeOptions()
	opts.ProcessNamespaces = true
	_, err := ParseStringWithOptions(`<a:x>1</a:x>`, opts)
	if !errors.Is(err, errUnboundPrefix) {
		t.Fatalf("expected unbound prefix error, got %v", err)
	}
	var e *Error
	if !errors.As(err, &e) || e.Type != ErrParse {
		t.Fatalf("expected parse error type, got %v", err)
	}
}

func TestUnprefixedNameWithoutDefaultPassesThrough(t *testing.T) {
	opts := DefaultDecodeOptions()
	opts.ProcessNamespaces = true
	doc, err := ParseStringWithOptions(`<x><y>1</y></x>`, opts)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := `{"x":{"y":"1"}}`
	if got := compactJSON(t, doc); got != want {
		t.Fatalf("got %s, want %s", got, want)
	}
}

func TestXMLPrefixPredefined(t *testing.T) {
	opts := DefaultDecodeOptions()
	opts.ProcessNamespaces = true
	doc, err := ParseStringWithOptions(`<x xml:lang="en">1</x>`, opts)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := `{"x":{"@http://www.w3.org/XML/1998/namespace:lang":"en","#text":"1"}}`
	if got := compactJSON(t, doc); got != want {
		t.Fatalf("got %s, want %s", got, want)
	}
}

func TestScopedRebinding(t *testing.T) {
	opts := DefaultDecodeOptions()
	opts.ProcessNamespaces = true
	body := `<a:r xmlns:a="http://one/"><a:c xmlns:a="http://two/"><a:d/></a:c><a:e/></a:r>`
	doc, err := ParseStringWithOptions(body, opts)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := `{"http://one/:r":{"http://two/:c":{"http://two/:d":null},"http://one/:e":null}}`
	if got := compactJSON(t, doc); got != want {
		t.Fatalf("got %s, want %s", got, want)
	}
}

func TestXMLNSScopeSynthesizedForUnmappedURI(t *testing.T) {
	opts := DefaultDecodeOptions()
	opts.ProcessNamespaces = true
	opts.Namespaces = map[string]string{"http://known/": "k"}
	body := `<k:root xmlns:k="http://known/" xmlns:u="http://unknown/"><u:x/></k:root>`
	doc, err := ParseStringWithOptions(body, opts)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	root, _ := doc.Get("k:root")
	c, ok := root.(*Container)
	if !ok {
		t.Fatalf("expected container root, got %T", root)
	}
	scope, ok := c.Get("@xmlns")
	if !ok {
		t.Fatal("expected synthesized @xmlns scope")
	}
	want := `{"k":"http://known/","u":"http://unknown/"}`
	if got := compactJSON(t, scope); got != want {
		t.Fatalf("got %s, want %s", got, want)
	}
	if _, ok := c.Get("http://unknown/:x"); !ok {
		t.Fatalf("unmapped child missing: %s", compactJSON(t, c))
	}
}

func TestNoXMLNSScopeWhenAllURIsMapped(t *testing.T) {
	opts := DefaultDecodeOptions()
	opts.ProcessNamespaces = true
	opts.Namespaces = map[string]string{"http://known/": "k"}
	doc, err := ParseStringWithOptions(`<k:root xmlns:k="http://known/"><k:x/></k:root>`, opts)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := `{"k:root":{"k:x":null}}`
	if got := compactJSON(t, doc); got != want {
		t.Fatalf("got %s, want %s", got, want)
	}
}
