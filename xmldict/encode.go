package xmldict

import (
	"fmt"
	"io"
	"strings"
)

// Preprocessor is invoked before each node is rendered and may substitute a
// replacement key/value pair. Returning keep=false omits the node and its
// subtree from the output.
type Preprocessor func(key string, value any) (newKey string, newValue any, keep bool)

// EncodeOptions bundles the configuration for one encode call. Start from
// DefaultEncodeOptions for the standard converter behavior.
type EncodeOptions struct {
	// Encoding is the label placed in the XML declaration.
	Encoding string
	// FullDocument prepends the declaration and requires the input to hold
	// exactly one root key.
	FullDocument bool
	// ShortEmptyElements renders empty elements as <tag/> instead of
	// <tag></tag>.
	ShortEmptyElements bool
	AttrPrefix         string
	TextKey            string
	Pretty             bool
	Indent             string
	Newline            string
	Preprocessor       Preprocessor
}

// DefaultEncodeOptions returns the reference converter defaults: a full
// document encoded as utf-8, compact output, tab indent when pretty.
func DefaultEncodeOptions() EncodeOptions {
	return EncodeOptions{
		Encoding:     "utf-8",
		FullDocument: true,
		AttrPrefix:   "@",
		TextKey:      "#text",
		Indent:       "\t",
		Newline:      "\n",
	}
}

// Encode renders a container as XML text with default options.
func Encode(root *Container) (string, error) {
	return EncodeWithOptions(root, DefaultEncodeOptions())
}

// EncodeWithOptions renders a container as XML text.
func EncodeWithOptions(root *Container, opts EncodeOptions) (string, error) {
	var b strings.Builder
	if err := EncodeWriter(&b, root, opts); err != nil {
		return "", err
	}
	return b.String(), nil
}

// EncodeWriter renders a container as XML text into w. Nothing is written
// when the call fails validation.
func EncodeWriter(w io.Writer, root *Container, opts EncodeOptions) error {
	if root == nil {
		return &Error{Type: ErrInput, Message: "encode requires a container value"}
	}
	if opts.FullDocument && root.Len() != 1 {
		return &Error{Type: ErrValue, Message: "document must have exactly one root"}
	}
	x := &xmlWriter{opts: opts}
	x.writeHeader()
	for i, key := range root.Keys() {
		value, _ := root.Get(key)
		if err := x.writeElement(key, value, i > 0); err != nil {
			return err
		}
	}
	_, err := io.WriteString(w, x.out.String())
	return err
}

// xmlWriter is the depth-first structure walker, the mirror image of the
// tree builder.
type xmlWriter struct {
	opts  EncodeOptions
	out   strings.Builder
	depth int
}

func (x *xmlWriter) writeHeader() {
	if x.opts.FullDocument {
		x.out.WriteString(`<?xml version="1.0" encoding="`)
		x.out.WriteString(x.opts.Encoding)
		x.out.WriteString(`"?>`)
		x.out.WriteString(x.opts.Newline)
	}
}

func (x *xmlWriter) writeIndent() {
	if x.opts.Pretty {
		for i := 0; i < x.depth; i++ {
			x.out.WriteString(x.opts.Indent)
		}
	}
}

func (x *xmlWriter) writeElement(tag string, value any, needsNewline bool) error {
	if x.opts.Preprocessor != nil {
		var keep bool
		tag, value, keep = x.opts.Preprocessor(tag, value)
		if !keep {
			return nil
		}
	}
	if x.opts.Pretty && needsNewline {
		x.out.WriteString(x.opts.Newline)
		x.writeIndent()
	}
	switch v := value.(type) {
	case nil:
		x.writeEmpty(tag)
	case *Container:
		return x.writeContainerElement(tag, v)
	case []any:
		for i, item := range v {
			if err := x.writeElement(tag, item, i > 0 || needsNewline); err != nil {
				return err
			}
		}
	case CDATA:
		x.out.WriteString("<")
		x.out.WriteString(tag)
		x.out.WriteString(">")
		writeCDATA(&x.out, string(v))
		x.writeCloseTag(tag)
	default:
		x.out.WriteString("<")
		x.out.WriteString(tag)
		x.out.WriteString(">")
		x.out.WriteString(escapeText(scalarString(v)))
		x.writeCloseTag(tag)
	}
	return nil
}

func (x *xmlWriter) writeContainerElement(tag string, c *Container) error {
	var attrs []xmlAttr
	var text any
	hasText := false
	var children []string
	for _, key := range c.Keys() {
		value, _ := c.Get(key)
		switch {
		case x.opts.AttrPrefix != "" && strings.HasPrefix(key, x.opts.AttrPrefix):
			attrs = append(attrs, xmlAttr{Name: strings.TrimPrefix(key, x.opts.AttrPrefix), Value: scalarString(value)})
		case key == x.opts.TextKey:
			text = value
			hasText = true
		default:
			children = append(children, key)
		}
	}

	x.out.WriteString("<")
	x.out.WriteString(tag)
	for _, a := range attrs {
		x.out.WriteString(" ")
		x.out.WriteString(a.Name)
		x.out.WriteString(`="`)
		x.out.WriteString(escapeAttr(a.Value))
		x.out.WriteString(`"`)
	}

	if len(children) == 0 && !hasText {
		if x.opts.ShortEmptyElements {
			x.out.WriteString("/>")
		} else {
			x.out.WriteString("></")
			x.out.WriteString(tag)
			x.out.WriteString(">")
		}
		return nil
	}

	x.out.WriteString(">")
	if hasText {
		if cd, ok := text.(CDATA); ok {
			writeCDATA(&x.out, string(cd))
		} else {
			x.out.WriteString(escapeText(scalarString(text)))
		}
	}
	if len(children) > 0 {
		x.depth++
		for i, key := range children {
			value, _ := c.Get(key)
			if err := x.writeElement(key, value, i > 0 || x.opts.Pretty); err != nil {
				return err
			}
		}
		x.depth--
		if x.opts.Pretty {
			x.out.WriteString(x.opts.Newline)
			x.writeIndent()
		}
	}
	x.writeCloseTag(tag)
	return nil
}

func (x *xmlWriter) writeEmpty(tag string) {
	if x.opts.ShortEmptyElements {
		x.out.WriteString("<")
		x.out.WriteString(tag)
		x.out.WriteString("/>")
		return
	}
	x.out.WriteString("<")
	x.out.WriteString(tag)
	x.out.WriteString("></")
	x.out.WriteString(tag)
	x.out.WriteString(">")
}

func (x *xmlWriter) writeCloseTag(tag string) {
	x.out.WriteString("</")
	x.out.WriteString(tag)
	x.out.WriteString(">")
}

func scalarString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case CDATA:
		return string(s)
	case bool:
		if s {
			return "true"
		}
		return "false"
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// writeCDATA emits a CDATA section, splitting around "]]>" so the content
// can never terminate the section early.
func writeCDATA(out *strings.Builder, s string) {
	out.WriteString("<![CDATA[")
	for {
		i := strings.Index(s, "]]>")
		if i < 0 {
			out.WriteString(s)
			break
		}
		out.WriteString(s[:i+2])
		out.WriteString("]]><![CDATA[")
		s = s[i+2:]
	}
	out.WriteString("]]>")
}
