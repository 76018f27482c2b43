package xmldict

import (
	"errors"
	"io"
	"os"
	"slices"
	"strings"
)

// Postprocessor is invoked after a node (element, attribute, or text) is
// finalized and may substitute a replacement key/value pair. Returning
// keep=false drops the node from its parent entirely.
type Postprocessor func(path []string, key string, value any) (newKey string, newValue any, keep bool)

// ItemCallback receives each node finalized exactly at ItemDepth. Returning
// false aborts the parse.
type ItemCallback func(path []string, value any) bool

// ForceListFunc decides whether a child stored under key must be collected
// into a list even on its first occurrence. path holds the ancestor tag names
// from the document root through the parent element.
type ForceListFunc func(path []string, key string, value any) bool

// ForceListAlways stores every child as a one-element list.
func ForceListAlways() ForceListFunc {
	return func([]string, string, any) bool { return true }
}

// ForceListKeys stores children whose key is in the set as lists.
func ForceListKeys(keys ...string) ForceListFunc {
	set := slices.Clone(keys)
	return func(_ []string, key string, _ any) bool {
		return slices.Contains(set, key)
	}
}

// DecodeOptions bundles the configuration for one decode call. The zero
// value enables nothing; start from DefaultDecodeOptions for the standard
// converter behavior.
type DecodeOptions struct {
	// ProcessNamespaces rewrites qualified names to URI<separator>local
	// form; off, namespace declarations stay ordinary attributes.
	ProcessNamespaces  bool
	NamespaceSeparator string
	// Namespaces maps URIs to short prefixes used in rewritten names. A
	// URI mapped to "" collapses to the bare local name.
	Namespaces map[string]string
	// ExpandEntities permits bounded, non-recursive expansion of entities
	// declared in the internal DTD subset. Off by default: any entity
	// reference beyond the five predefined ones is a parse error.
	// External entities are never resolved either way.
	ExpandEntities  bool
	ProcessComments bool
	CommentKey      string
	// IncludeAttributes folds element attributes into the container under
	// AttrPrefix-prefixed keys.
	IncludeAttributes bool
	AttrPrefix        string
	TextKey           string
	// ForceCData wraps text content in a container under TextKey even when
	// the element has no attributes or children.
	ForceCData bool
	// TextSeparator joins multiple text runs within one element.
	TextSeparator string
	// StripWhitespace trims each text run and discards runs that are
	// entirely whitespace (unless ForceCData retains them verbatim).
	StripWhitespace bool
	ForceList       ForceListFunc
	// ItemDepth streams nodes finalized at the given depth to ItemCallback
	// instead of building a tree; shallower elements are scaffolding and
	// the call yields a nil container. Zero builds the whole tree.
	ItemDepth     int
	ItemCallback  ItemCallback
	Postprocessor Postprocessor
	// Encoding forces the input encoding label instead of sniffing the
	// BOM / XML declaration.
	Encoding string
}

// DefaultDecodeOptions returns the reference converter defaults: attributes
// folded under "@", text under "#text", comments (when enabled) under
// "#comment", whitespace stripped, entities disabled.
func DefaultDecodeOptions() DecodeOptions {
	return DecodeOptions{
		NamespaceSeparator: ":",
		CommentKey:         "#comment",
		IncludeAttributes:  true,
		AttrPrefix:         "@",
		TextKey:            "#text",
		StripWhitespace:    true,
	}
}

// ParseString decodes an XML document from a string with default options.
func ParseString(body string) (*Container, error) {
	return ParseStringWithOptions(body, DefaultDecodeOptions())
}

// ParseStringWithOptions decodes an XML document from a string.
func ParseStringWithOptions(body string, opts DecodeOptions) (*Container, error) {
	return parseWithOptions(strings.NewReader(body), opts)
}

// Parse decodes an XML document from a byte buffer with default options.
func Parse(data []byte) (*Container, error) {
	return ParseWithOptions(data, DefaultDecodeOptions())
}

// ParseWithOptions decodes an XML document from a byte buffer.
func ParseWithOptions(data []byte, opts DecodeOptions) (*Container, error) {
	return parseWithOptions(strings.NewReader(string(data)), opts)
}

// ParseReader decodes an XML document from an io.Reader with default options.
func ParseReader(r io.Reader) (*Container, error) {
	return ParseReaderWithOptions(r, DefaultDecodeOptions())
}

// ParseReaderWithOptions decodes an XML document from an io.Reader.
func ParseReaderWithOptions(r io.Reader, opts DecodeOptions) (*Container, error) {
	return parseWithOptions(r, opts)
}

// ParseFile decodes an XML document from the given file path.
func ParseFile(path string) (*Container, error) {
	return ParseFileWithOptions(path, DefaultDecodeOptions())
}

// ParseFileWithOptions decodes an XML document from the given file path.
func ParseFileWithOptions(path string, opts DecodeOptions) (*Container, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parseWithOptions(f, opts)
}

// ParseChunks decodes an XML document from a sequence of byte chunks with
// default options.
func ParseChunks(chunks [][]byte) (*Container, error) {
	return ParseChunksWithOptions(chunks, DefaultDecodeOptions())
}

// ParseChunksWithOptions decodes an XML document from a sequence of byte
// chunks. Empty chunks are skipped; a nil chunk fails the call.
func ParseChunksWithOptions(chunks [][]byte, opts DecodeOptions) (*Container, error) {
	return parseWithOptions(&chunkReader{chunks: chunks}, opts)
}

func parseWithOptions(r io.Reader, opts DecodeOptions) (*Container, error) {
	if opts.ItemDepth < 0 {
		return nil, &Error{Type: ErrValue, Message: "item depth must not be negative"}
	}
	stream, err := normalizeInput(r, opts.Encoding)
	if err != nil {
		return nil, err
	}
	s := newScanner(stream, opts.ExpandEntities)
	b := &builder{opts: opts}
	b.res.separator = opts.NamespaceSeparator
	b.res.uriMap = opts.Namespaces
	for {
		ev, err := s.next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			var e *Error
			if errors.As(err, &e) {
				return nil, err
			}
			return nil, wrapSyntaxError(err, "parse xml")
		}
		if err := b.handle(ev); err != nil {
			return nil, err
		}
	}
	if b.result == nil {
		if opts.ItemDepth > 0 {
			return nil, nil
		}
		return nil, &Error{Type: ErrParse, Message: "parse xml", Err: errMissingRoot}
	}
	return b.result, nil
}

// frame is the transient record for one open element.
type frame struct {
	elem *Container
	text []string
}

// builder consumes scanner events and assembles the value tree. One frame per
// open element; the stack height equals the nesting depth.
type builder struct {
	opts   DecodeOptions
	res    resolver
	stack  []frame
	path   []string
	result *Container
}

func (b *builder) handle(ev event) error {
	switch ev.kind {
	case eventStart:
		return b.start(ev)
	case eventEnd:
		return b.end(ev)
	case eventText:
		b.text(ev.text, false)
	case eventCData:
		b.text(ev.text, true)
	case eventComment:
		return b.comment(ev.text)
	}
	return nil
}

func (b *builder) parseErr(ev event, err error) error {
	return wrapSyntaxError(&SyntaxError{Line: ev.line, Column: ev.column, Err: err}, "parse xml")
}

func (b *builder) start(ev event) error {
	elem := NewContainer()
	var normal []xmlAttr
	synthesizeScope := false

	if b.opts.ProcessNamespaces {
		var layer map[string]string
		for _, a := range ev.attrs {
			if a.Name == "xmlns" {
				if layer == nil {
					layer = make(map[string]string)
				}
				layer[""] = a.Value
				continue
			}
			if local, ok := strings.CutPrefix(a.Name, "xmlns:"); ok {
				if layer == nil {
					layer = make(map[string]string)
				}
				layer[local] = a.Value
				if b.opts.Namespaces != nil && !b.res.known(a.Value) {
					synthesizeScope = true
				}
				continue
			}
			normal = append(normal, a)
		}
		b.res.scopes.push(layer)
		for _, a := range normal {
			prefix, _, ok := strings.Cut(a.Name, ":")
			if !ok || prefix == "xml" {
				continue
			}
			if uri, bound := b.res.scopes.lookup(prefix); bound {
				if b.opts.Namespaces == nil || !b.res.known(uri) {
					synthesizeScope = true
				}
			}
		}
	} else {
		normal = ev.attrs
	}

	if b.opts.IncludeAttributes && synthesizeScope {
		scope := NewContainer()
		flat := b.res.scopes.flatten()
		for _, prefix := range sortedKeys(flat) {
			scope.Set(prefix, flat[prefix])
		}
		elem.Set(b.opts.AttrPrefix+"xmlns", scope)
	}

	if b.opts.IncludeAttributes {
		for _, a := range normal {
			name := a.Name
			if b.opts.ProcessNamespaces && strings.Contains(name, ":") {
				resolved, err := b.res.resolveName(name)
				if err != nil {
					return b.parseErr(ev, err)
				}
				name = resolved
			}
			key, value, keep := b.postprocess(b.opts.AttrPrefix+name, a.Value)
			if !keep {
				continue
			}
			elem.Set(key, value)
		}
	}

	name := ev.name
	if b.opts.ProcessNamespaces {
		resolved, err := b.res.resolveName(name)
		if err != nil {
			return b.parseErr(ev, err)
		}
		name = resolved
	}

	b.path = append(b.path, name)
	if b.opts.ItemDepth == 0 || len(b.path) >= b.opts.ItemDepth {
		b.stack = append(b.stack, frame{elem: elem})
	}
	return nil
}

func (b *builder) text(data string, cdata bool) {
	if len(b.stack) == 0 {
		return
	}
	if !cdata && b.opts.StripWhitespace && !b.opts.ForceCData {
		data = strings.TrimSpace(data)
		if data == "" {
			return
		}
	}
	top := &b.stack[len(b.stack)-1]
	top.text = append(top.text, data)
}

func (b *builder) comment(data string) error {
	if !b.opts.ProcessComments || len(b.stack) == 0 {
		return nil
	}
	if b.opts.StripWhitespace {
		data = strings.TrimSpace(data)
	}
	parent := b.stack[len(b.stack)-1].elem
	b.pushData(parent, b.opts.CommentKey, data)
	return nil
}

func (b *builder) end(ev event) error {
	name := ev.name
	if b.opts.ProcessNamespaces {
		resolved, err := b.res.resolveName(name)
		if err != nil {
			return b.parseErr(ev, err)
		}
		name = resolved
	}

	depth := len(b.path)
	b.path = b.path[:depth-1]

	hasFrame := b.opts.ItemDepth == 0 || depth >= b.opts.ItemDepth
	if !hasFrame {
		if b.opts.ProcessNamespaces {
			b.res.scopes.pop()
		}
		return nil
	}

	top := b.stack[len(b.stack)-1]
	b.stack = b.stack[:len(b.stack)-1]

	value := b.finalize(top)

	if b.opts.ItemDepth > 0 && depth == b.opts.ItemDepth {
		itemPath := append(slices.Clone(b.path), name)
		if b.opts.ItemCallback != nil && !b.opts.ItemCallback(itemPath, value) {
			return &Error{Type: ErrParse, Message: "parse xml", Err: errInterrupted}
		}
		if b.opts.ProcessNamespaces {
			b.res.scopes.pop()
		}
		return nil
	}

	if len(b.stack) == 0 {
		key, value, keep := b.postprocess(name, value)
		if keep {
			root := NewContainer()
			root.Set(key, value)
			b.result = root
		}
	} else {
		parent := b.stack[len(b.stack)-1].elem
		b.pushData(parent, name, value)
	}

	if b.opts.ProcessNamespaces {
		b.res.scopes.pop()
	}
	return nil
}

// finalize collapses an ended frame into its Value: plain text when nothing
// else accumulated, nil for an empty element, otherwise the container with
// the text buffer folded in under TextKey.
func (b *builder) finalize(f frame) any {
	var text string
	hasText := len(f.text) > 0
	if hasText {
		text = strings.Join(f.text, b.opts.TextSeparator)
		if b.opts.StripWhitespace && !b.opts.ForceCData && isOnlyWhitespace(text) {
			hasText = false
		}
	}
	hasAttrs := f.elem.Len() > 0

	switch {
	case !hasAttrs && !hasText:
		return nil
	case !hasAttrs:
		if b.opts.ForceCData {
			wrapped := NewContainer()
			if key, value, keep := b.postprocess(b.opts.TextKey, text); keep {
				wrapped.Set(key, value)
			}
			return wrapped
		}
		return text
	case hasText:
		if key, value, keep := b.postprocess(b.opts.TextKey, text); keep {
			f.elem.Set(key, value)
		}
		return f.elem
	default:
		return f.elem
	}
}

// pushData attaches a finalized child to its parent container, promoting
// repeated keys to lists. Promotion is sticky: once a key holds a list it
// stays one for the remainder of the parent.
func (b *builder) pushData(parent *Container, key string, value any) {
	key, value, keep := b.postprocess(key, value)
	if !keep {
		return
	}
	if existing, ok := parent.Get(key); ok {
		if list, isList := existing.([]any); isList {
			parent.Set(key, append(list, value))
		} else {
			parent.Set(key, []any{existing, value})
		}
		return
	}
	if b.opts.ForceList != nil && b.opts.ForceList(b.path, key, value) {
		parent.Set(key, []any{value})
		return
	}
	parent.Set(key, value)
}

func (b *builder) postprocess(key string, value any) (string, any, bool) {
	if b.opts.Postprocessor == nil {
		return key, value, true
	}
	return b.opts.Postprocessor(b.path, key, value)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
