package xmldict

import (
	"fmt"
	"strings"
)

const xmlNamespaceURI = "http://www.w3.org/XML/1998/namespace"

// nsStack tracks in-scope prefix→URI bindings. One layer is pushed per open
// element and popped on its end event; lookup walks outward from the
// innermost layer.
type nsStack struct {
	layers []map[string]string
}

func (s *nsStack) push(bindings map[string]string) {
	s.layers = append(s.layers, bindings)
}

func (s *nsStack) pop() {
	if n := len(s.layers); n > 0 {
		s.layers = s.layers[:n-1]
	}
}

func (s *nsStack) lookup(prefix string) (string, bool) {
	for i := len(s.layers) - 1; i >= 0; i-- {
		if s.layers[i] == nil {
			continue
		}
		if uri, ok := s.layers[i][prefix]; ok {
			return uri, true
		}
	}
	if prefix == "xml" {
		return xmlNamespaceURI, true
	}
	return "", false
}

// flatten merges all in-scope bindings, inner layers winning.
func (s *nsStack) flatten() map[string]string {
	out := make(map[string]string)
	for _, layer := range s.layers {
		for prefix, uri := range layer {
			out[prefix] = uri
		}
	}
	return out
}

// resolver rewrites qualified names against the scope stack. When a URI→short
// prefix map is configured, matching URIs render as their short form; a short
// form of "" collapses to the bare local name.
type resolver struct {
	scopes    nsStack
	separator string
	uriMap    map[string]string
}

// resolveName rewrites prefix:local to URI<separator>local. Unprefixed names
// follow the default binding when one is in scope. A named prefix with no
// in-scope binding is a parse error.
func (r *resolver) resolveName(name string) (string, error) {
	prefix, local, hasPrefix := strings.Cut(name, ":")
	if !hasPrefix {
		prefix, local = "", name
	}
	uri, ok := r.scopes.lookup(prefix)
	if !ok {
		if prefix == "" {
			return name, nil
		}
		return "", fmt.Errorf("%w: %q", errUnboundPrefix, prefix)
	}
	mapped := uri
	if short, ok := r.uriMap[uri]; ok {
		mapped = short
	}
	if mapped == "" {
		return local, nil
	}
	return mapped + r.separator + local, nil
}

// known reports whether every URI in bindings is covered by the configured
// URI map. Documents that bind unmapped URIs surface the scope through the
// synthesized xmlns attribute.
func (r *resolver) known(uri string) bool {
	if r.uriMap == nil {
		return false
	}
	_, ok := r.uriMap[uri]
	return ok
}
