package xmldict

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

type eventKind int

const (
	eventStart eventKind = iota
	eventEnd
	eventText
	eventCData
	eventComment
)

type xmlAttr struct {
	Name  string
	Value string
}

// event is one structural token produced by the scanner.
type event struct {
	kind   eventKind
	name   string
	attrs  []xmlAttr
	text   string
	line   int
	column int
}

var predefinedEntities = map[string]string{
	"lt":   "<",
	"gt":   ">",
	"amp":  "&",
	"apos": "'",
	"quot": "\"",
}

// maxEntityValueSize bounds the replacement text of one declared entity.
const maxEntityValueSize = 1 << 20

// scanner is a non-validating forward scanner over a character stream. It
// checks well-formedness (balanced tags, name and attribute syntax, a single
// root) but no grammar beyond that. Self-closing elements produce a start
// event followed by a synthesized end event.
type scanner struct {
	r              *bufio.Reader
	offset         int64
	line           int
	column         int
	expandEntities bool
	entities       map[string]string
	stack          []string
	rootSeen       bool
	pendingEnd     *event
	err            error
}

func newScanner(r io.Reader, expandEntities bool) *scanner {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(r)
	}
	return &scanner{r: br, line: 1, column: 1, expandEntities: expandEntities}
}

func (s *scanner) syntaxErr(err error) error {
	return &SyntaxError{Offset: s.offset, Line: s.line, Column: s.column, Err: err}
}

func (s *scanner) fail(err error) error {
	if s.err == nil {
		s.err = err
	}
	return s.err
}

func (s *scanner) peek() (byte, error) {
	b, err := s.r.Peek(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// advance consumes one byte, keeping line/column in sync.
func (s *scanner) advance() (byte, error) {
	b, err := s.r.ReadByte()
	if err != nil {
		return 0, err
	}
	s.offset++
	if b == '\n' {
		s.line++
		s.column = 1
	} else {
		s.column++
	}
	return b, nil
}

func (s *scanner) expect(want string) error {
	for i := 0; i < len(want); i++ {
		b, err := s.advance()
		if err != nil {
			return s.syntaxErr(errUnexpectedEOF)
		}
		if b != want[i] {
			return s.syntaxErr(errInvalidToken)
		}
	}
	return nil
}

// next returns the next structural event, or io.EOF after the root element
// has been fully read and trailing whitespace consumed.
func (s *scanner) next() (event, error) {
	if s.err != nil {
		return event{}, s.err
	}
	if s.pendingEnd != nil {
		ev := *s.pendingEnd
		s.pendingEnd = nil
		s.popElement(ev.name)
		return ev, nil
	}
	for {
		startLine, startColumn := s.line, s.column
		b, err := s.peek()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				return event{}, s.fail(err)
			}
			if len(s.stack) > 0 {
				return event{}, s.fail(s.syntaxErr(errUnexpectedEOF))
			}
			if !s.rootSeen {
				return event{}, s.fail(s.syntaxErr(errMissingRoot))
			}
			return event{}, io.EOF
		}
		if b != '<' {
			text, err := s.scanText()
			if err != nil {
				return event{}, s.fail(err)
			}
			if len(s.stack) == 0 {
				if isOnlyWhitespace(text) {
					continue
				}
				return event{}, s.fail(s.syntaxErr(errContentOutsideRoot))
			}
			return event{kind: eventText, text: text, line: startLine, column: startColumn}, nil
		}
		s.advance()
		b, err = s.peek()
		if err != nil {
			return event{}, s.fail(s.syntaxErr(errUnexpectedEOF))
		}
		switch {
		case b == '?':
			if err := s.scanPI(); err != nil {
				return event{}, s.fail(err)
			}
		case b == '!':
			s.advance()
			kindByte, err := s.peek()
			if err != nil {
				return event{}, s.fail(s.syntaxErr(errUnexpectedEOF))
			}
			switch kindByte {
			case '-':
				text, err := s.scanComment()
				if err != nil {
					return event{}, s.fail(err)
				}
				return event{kind: eventComment, text: text, line: startLine, column: startColumn}, nil
			case '[':
				text, err := s.scanCData()
				if err != nil {
					return event{}, s.fail(err)
				}
				if len(s.stack) == 0 {
					return event{}, s.fail(s.syntaxErr(errContentOutsideRoot))
				}
				return event{kind: eventCData, text: text, line: startLine, column: startColumn}, nil
			case 'D':
				if err := s.scanDoctype(); err != nil {
					return event{}, s.fail(err)
				}
			default:
				return event{}, s.fail(s.syntaxErr(errInvalidToken))
			}
		case b == '/':
			s.advance()
			ev, err := s.scanEndTag(startLine, startColumn)
			if err != nil {
				return event{}, s.fail(err)
			}
			return ev, nil
		case isNameStartByte(b):
			ev, err := s.scanStartTag(startLine, startColumn)
			if err != nil {
				return event{}, s.fail(err)
			}
			return ev, nil
		default:
			return event{}, s.fail(s.syntaxErr(errInvalidToken))
		}
	}
}

func (s *scanner) popElement(name string) {
	if n := len(s.stack); n > 0 && s.stack[n-1] == name {
		s.stack = s.stack[:n-1]
	}
	if len(s.stack) == 0 {
		s.rootSeen = true
	}
}

func (s *scanner) scanText() (string, error) {
	var b strings.Builder
	for {
		c, err := s.peek()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return b.String(), nil
			}
			return "", err
		}
		if c == '<' {
			return b.String(), nil
		}
		s.advance()
		if c == '&' {
			expanded, err := s.scanEntityRef()
			if err != nil {
				return "", err
			}
			b.WriteString(expanded)
			continue
		}
		b.WriteByte(c)
	}
}

// scanEntityRef is called after the '&' has been consumed.
func (s *scanner) scanEntityRef() (string, error) {
	var name strings.Builder
	for {
		c, err := s.advance()
		if err != nil {
			return "", s.syntaxErr(errUnexpectedEOF)
		}
		if c == ';' {
			break
		}
		if name.Len() > 64 || isSpaceByte(c) || c == '<' || c == '&' {
			return "", s.syntaxErr(errInvalidEntity)
		}
		name.WriteByte(c)
	}
	ref := name.String()
	if ref == "" {
		return "", s.syntaxErr(errInvalidEntity)
	}
	if ref[0] == '#' {
		r, err := parseCharRef(ref)
		if err != nil {
			return "", s.syntaxErr(err)
		}
		return string(r), nil
	}
	if value, ok := predefinedEntities[ref]; ok {
		return value, nil
	}
	if !s.expandEntities {
		return "", s.syntaxErr(fmt.Errorf("%w: &%s;", errEntityDisabled, ref))
	}
	if value, ok := s.entities[ref]; ok {
		return value, nil
	}
	return "", s.syntaxErr(fmt.Errorf("%w: &%s;", errInvalidEntity, ref))
}

func parseCharRef(ref string) (rune, error) {
	digits := ref[1:]
	base := 10
	if strings.HasPrefix(digits, "x") || strings.HasPrefix(digits, "X") {
		base = 16
		digits = digits[1:]
	}
	if digits == "" {
		return 0, errInvalidCharRef
	}
	var value uint64
	for i := 0; i < len(digits); i++ {
		c := digits[i]
		var digit byte
		switch {
		case c >= '0' && c <= '9':
			digit = c - '0'
		case base == 16 && c >= 'a' && c <= 'f':
			digit = c - 'a' + 10
		case base == 16 && c >= 'A' && c <= 'F':
			digit = c - 'A' + 10
		default:
			return 0, errInvalidCharRef
		}
		value = value*uint64(base) + uint64(digit)
		if value > utf8.MaxRune {
			return 0, errInvalidCharRef
		}
	}
	r := rune(value)
	if !isValidXMLChar(r) {
		return 0, errInvalidCharRef
	}
	return r, nil
}

// scanPI consumes a processing instruction (including the XML declaration,
// whose encoding the input normalizer has already acted on).
func (s *scanner) scanPI() error {
	s.advance() // '?'
	var prev byte
	for {
		c, err := s.advance()
		if err != nil {
			return s.syntaxErr(errUnexpectedEOF)
		}
		if prev == '?' && c == '>' {
			return nil
		}
		prev = c
	}
}

// scanComment is called with the reader positioned at the first '-'.
func (s *scanner) scanComment() (string, error) {
	if err := s.expect("--"); err != nil {
		return "", err
	}
	var b strings.Builder
	dashes := 0
	for {
		c, err := s.advance()
		if err != nil {
			return "", s.syntaxErr(errUnexpectedEOF)
		}
		if c == '>' && dashes == 2 {
			return b.String()[:b.Len()-2], nil
		}
		if c == '-' {
			dashes++
			if dashes > 2 {
				// "--" is not allowed inside a comment
				return "", s.syntaxErr(errInvalidComment)
			}
		} else {
			if dashes == 2 {
				return "", s.syntaxErr(errInvalidComment)
			}
			dashes = 0
		}
		b.WriteByte(c)
	}
}

// scanCData is called with the reader positioned at the '['.
func (s *scanner) scanCData() (string, error) {
	if err := s.expect("[CDATA["); err != nil {
		return "", err
	}
	var b strings.Builder
	for {
		c, err := s.advance()
		if err != nil {
			return "", s.syntaxErr(errUnexpectedEOF)
		}
		b.WriteByte(c)
		if c == '>' && b.Len() >= 3 && strings.HasSuffix(b.String(), "]]>") {
			return b.String()[:b.Len()-3], nil
		}
	}
}

// scanDoctype is called with the reader positioned at the 'D'. The internal
// subset is scanned for entity declarations when expansion is enabled;
// everything else, external declarations included, is skipped, so a later
// reference to an external entity fails rather than fetches.
func (s *scanner) scanDoctype() error {
	if err := s.expect("DOCTYPE"); err != nil {
		return err
	}
	if s.rootSeen || len(s.stack) > 0 {
		return s.syntaxErr(errInvalidToken)
	}
	depth := 0
	for {
		c, err := s.advance()
		if err != nil {
			return s.syntaxErr(errUnexpectedEOF)
		}
		switch c {
		case '[':
			depth++
			if depth == 1 {
				if err := s.scanInternalSubset(); err != nil {
					return err
				}
				depth--
			}
		case ']':
			if depth == 0 {
				return s.syntaxErr(errInvalidToken)
			}
			depth--
		case '>':
			if depth == 0 {
				return nil
			}
		case '"', '\'':
			if err := s.skipQuoted(c); err != nil {
				return err
			}
		}
	}
}

// scanInternalSubset consumes up to (not including) the closing ']'.
func (s *scanner) scanInternalSubset() error {
	for {
		c, err := s.peek()
		if err != nil {
			return s.syntaxErr(errUnexpectedEOF)
		}
		switch {
		case c == ']':
			s.advance()
			return nil
		case c == '<':
			if err := s.scanSubsetDecl(); err != nil {
				return err
			}
		default:
			s.advance()
		}
	}
}

func (s *scanner) scanSubsetDecl() error {
	s.advance() // '<'
	head, err := s.peekWord(8)
	if err != nil {
		return err
	}
	if strings.HasPrefix(head, "!ENTITY") && s.expandEntities {
		return s.scanEntityDecl()
	}
	// skip any other declaration, respecting quotes
	for {
		c, err := s.advance()
		if err != nil {
			return s.syntaxErr(errUnexpectedEOF)
		}
		switch c {
		case '>':
			return nil
		case '"', '\'':
			if err := s.skipQuoted(c); err != nil {
				return err
			}
		}
	}
}

func (s *scanner) peekWord(n int) (string, error) {
	b, err := s.r.Peek(n)
	if err != nil && len(b) == 0 {
		return "", s.syntaxErr(errUnexpectedEOF)
	}
	return string(b), nil
}

func (s *scanner) scanEntityDecl() error {
	if err := s.expect("!ENTITY"); err != nil {
		return err
	}
	s.skipSpace()
	// parameter entities ("% name") are skipped entirely
	if c, err := s.peek(); err == nil && c == '%' {
		return s.skipDecl()
	}
	name, err := s.scanName()
	if err != nil {
		return err
	}
	s.skipSpace()
	c, err := s.peek()
	if err != nil {
		return s.syntaxErr(errUnexpectedEOF)
	}
	if c != '"' && c != '\'' {
		// SYSTEM/PUBLIC: external entities are never resolved; referencing
		// one later fails like any undefined entity.
		return s.skipDecl()
	}
	quote, _ := s.advance()
	var raw strings.Builder
	for {
		c, err := s.advance()
		if err != nil {
			return s.syntaxErr(errUnexpectedEOF)
		}
		if c == quote {
			break
		}
		raw.WriteByte(c)
		if raw.Len() > maxEntityValueSize {
			return s.syntaxErr(errInvalidEntity)
		}
	}
	value, err := s.expandEntityValue(name, raw.String())
	if err != nil {
		return err
	}
	if s.entities == nil {
		s.entities = make(map[string]string)
	}
	// first declaration wins, per XML
	if _, ok := s.entities[name]; !ok {
		s.entities[name] = value
	}
	return s.skipDecl()
}

// expandEntityValue resolves references inside an entity's replacement text
// at declaration time. Only character references, predefined entities, and
// previously declared entities are allowed, which makes expansion bounded and
// precludes recursion.
func (s *scanner) expandEntityValue(name, raw string) (string, error) {
	var b strings.Builder
	for i := 0; i < len(raw); i++ {
		if raw[i] != '&' {
			b.WriteByte(raw[i])
			continue
		}
		semi := strings.IndexByte(raw[i+1:], ';')
		if semi < 0 {
			return "", s.syntaxErr(errInvalidEntity)
		}
		ref := raw[i+1 : i+1+semi]
		i += semi + 1
		switch {
		case ref == "":
			return "", s.syntaxErr(errInvalidEntity)
		case ref[0] == '#':
			r, err := parseCharRef(ref)
			if err != nil {
				return "", s.syntaxErr(err)
			}
			b.WriteRune(r)
		case ref == name:
			return "", s.syntaxErr(fmt.Errorf("%w: &%s;", errRecursiveEntity, ref))
		default:
			if value, ok := predefinedEntities[ref]; ok {
				b.WriteString(value)
			} else if value, ok := s.entities[ref]; ok {
				b.WriteString(value)
			} else {
				return "", s.syntaxErr(fmt.Errorf("%w: &%s;", errInvalidEntity, ref))
			}
		}
		if b.Len() > maxEntityValueSize {
			return "", s.syntaxErr(errInvalidEntity)
		}
	}
	return b.String(), nil
}

func (s *scanner) skipDecl() error {
	for {
		c, err := s.advance()
		if err != nil {
			return s.syntaxErr(errUnexpectedEOF)
		}
		switch c {
		case '>':
			return nil
		case '"', '\'':
			if err := s.skipQuoted(c); err != nil {
				return err
			}
		}
	}
}

func (s *scanner) skipQuoted(quote byte) error {
	for {
		c, err := s.advance()
		if err != nil {
			return s.syntaxErr(errUnexpectedEOF)
		}
		if c == quote {
			return nil
		}
	}
}

func (s *scanner) skipSpace() {
	for {
		c, err := s.peek()
		if err != nil || !isSpaceByte(c) {
			return
		}
		s.advance()
	}
}

func (s *scanner) scanName() (string, error) {
	c, err := s.peek()
	if err != nil {
		return "", s.syntaxErr(errUnexpectedEOF)
	}
	if !isNameStartByte(c) {
		return "", s.syntaxErr(errInvalidName)
	}
	var b strings.Builder
	for {
		c, err := s.peek()
		if err != nil || !isNameByte(c) {
			break
		}
		s.advance()
		b.WriteByte(c)
	}
	return b.String(), nil
}

// scanStartTag is called with the reader positioned at the first name byte.
func (s *scanner) scanStartTag(line, column int) (event, error) {
	if len(s.stack) == 0 && s.rootSeen {
		return event{}, s.syntaxErr(errMultipleRoots)
	}
	name, err := s.scanName()
	if err != nil {
		return event{}, err
	}
	ev := event{kind: eventStart, name: name, line: line, column: column}
	seen := map[string]struct{}{}
	for {
		s.skipSpace()
		c, err := s.peek()
		if err != nil {
			return event{}, s.syntaxErr(errUnexpectedEOF)
		}
		switch {
		case c == '>':
			s.advance()
			s.stack = append(s.stack, name)
			return ev, nil
		case c == '/':
			s.advance()
			c, err := s.advance()
			if err != nil {
				return event{}, s.syntaxErr(errUnexpectedEOF)
			}
			if c != '>' {
				return event{}, s.syntaxErr(errInvalidToken)
			}
			s.stack = append(s.stack, name)
			s.pendingEnd = &event{kind: eventEnd, name: name, line: s.line, column: s.column}
			return ev, nil
		case isNameStartByte(c):
			attr, err := s.scanAttribute()
			if err != nil {
				return event{}, err
			}
			if _, dup := seen[attr.Name]; dup {
				return event{}, s.syntaxErr(fmt.Errorf("%w: %q", errDuplicateAttr, attr.Name))
			}
			seen[attr.Name] = struct{}{}
			ev.attrs = append(ev.attrs, attr)
		default:
			return event{}, s.syntaxErr(errInvalidToken)
		}
	}
}

func (s *scanner) scanAttribute() (xmlAttr, error) {
	name, err := s.scanName()
	if err != nil {
		return xmlAttr{}, err
	}
	s.skipSpace()
	c, err := s.advance()
	if err != nil {
		return xmlAttr{}, s.syntaxErr(errUnexpectedEOF)
	}
	if c != '=' {
		return xmlAttr{}, s.syntaxErr(errInvalidAttr)
	}
	s.skipSpace()
	quote, err := s.advance()
	if err != nil {
		return xmlAttr{}, s.syntaxErr(errUnexpectedEOF)
	}
	if quote != '"' && quote != '\'' {
		return xmlAttr{}, s.syntaxErr(errInvalidAttr)
	}
	var b strings.Builder
	for {
		c, err := s.advance()
		if err != nil {
			return xmlAttr{}, s.syntaxErr(errUnexpectedEOF)
		}
		if c == quote {
			break
		}
		switch c {
		case '<':
			return xmlAttr{}, s.syntaxErr(errInvalidAttr)
		case '&':
			expanded, err := s.scanEntityRef()
			if err != nil {
				return xmlAttr{}, err
			}
			b.WriteString(expanded)
		default:
			b.WriteByte(c)
		}
	}
	return xmlAttr{Name: name, Value: b.String()}, nil
}

// scanEndTag is called after "</" has been consumed.
func (s *scanner) scanEndTag(line, column int) (event, error) {
	name, err := s.scanName()
	if err != nil {
		return event{}, err
	}
	s.skipSpace()
	c, err := s.advance()
	if err != nil {
		return event{}, s.syntaxErr(errUnexpectedEOF)
	}
	if c != '>' {
		return event{}, s.syntaxErr(errInvalidToken)
	}
	if len(s.stack) == 0 || s.stack[len(s.stack)-1] != name {
		return event{}, s.syntaxErr(fmt.Errorf("%w: </%s>", errMismatchedEndTag, name))
	}
	s.popElement(name)
	return event{kind: eventEnd, name: name, line: line, column: column}, nil
}

func isNameStartByte(b byte) bool {
	return b == '_' || b == ':' ||
		(b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || b >= 0x80
}

func isNameByte(b byte) bool {
	return isNameStartByte(b) || b == '-' || b == '.' || (b >= '0' && b <= '9')
}

// isValidXMLChar reports whether r is a valid XML 1.0 character.
func isValidXMLChar(r rune) bool {
	switch {
	case r == 0x9 || r == 0xA || r == 0xD:
		return true
	case r >= 0x20 && r <= 0xD7FF:
		return true
	case r >= 0xE000 && r <= 0xFFFD:
		return true
	case r >= 0x10000 && r <= 0x10FFFF:
		return true
	default:
		return false
	}
}
