package xmldict

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding/ianaindex"
)

const inputBufferSize = 32 * 1024
const maxDeclScan = 1024

// normalizeInput resolves the concrete input into a single UTF-8 character
// stream. The encoding is taken from the forced label when given, otherwise
// sniffed from a BOM or the XML declaration; anything non-UTF-8 is converted
// through the charset reader.
func normalizeInput(r io.Reader, forced string) (*bufio.Reader, error) {
	if r == nil {
		return nil, &Error{Type: ErrInput, Message: "nil input reader"}
	}
	br := bufio.NewReaderSize(r, inputBufferSize)
	if err := discardUTF8BOM(br); err != nil {
		return nil, &Error{Type: ErrInput, Message: "read input", Err: err}
	}
	label := forced
	if label != "" {
		enc, err := ianaindex.IANA.Encoding(label)
		if err != nil || enc == nil {
			return nil, &Error{Type: ErrParse, Message: fmt.Sprintf("encoding %q", label), Err: errUnsupportedEncoding}
		}
	} else {
		detected, err := detectEncoding(br)
		if err != nil {
			return nil, &Error{Type: ErrInput, Message: "detect encoding", Err: err}
		}
		label = detected
	}
	if label == "" || isUTF8Label(label) {
		return br, nil
	}
	converted, err := charset.NewReaderLabel(label, br)
	if err != nil || converted == nil {
		return nil, &Error{Type: ErrParse, Message: fmt.Sprintf("encoding %q", label), Err: errUnsupportedEncoding}
	}
	out := bufio.NewReaderSize(converted, inputBufferSize)
	// A UTF-16 BOM decodes to U+FEFF rather than disappearing; drop it so
	// the scanner sees the document start.
	if err := discardUTF8BOM(out); err != nil {
		return nil, &Error{Type: ErrInput, Message: "read input", Err: err}
	}
	return out, nil
}

func discardUTF8BOM(r *bufio.Reader) error {
	peek, err := r.Peek(3)
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	if len(peek) >= 3 && peek[0] == 0xEF && peek[1] == 0xBB && peek[2] == 0xBF {
		_, _ = r.Discard(3)
	}
	return nil
}

func detectEncoding(r *bufio.Reader) (string, error) {
	peek, err := r.Peek(4)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return "", err
	}
	if len(peek) >= 2 {
		if peek[0] == 0xFE && peek[1] == 0xFF {
			return "utf-16be", nil
		}
		if peek[0] == 0xFF && peek[1] == 0xFE {
			return "utf-16le", nil
		}
	}
	if len(peek) >= 4 {
		if bytes.Equal(peek[:4], []byte{0x00, 0x3C, 0x00, 0x3F}) {
			return "utf-16be", nil
		}
		if bytes.Equal(peek[:4], []byte{0x3C, 0x00, 0x3F, 0x00}) {
			return "utf-16le", nil
		}
	}
	return detectXMLDeclEncoding(r)
}

func detectXMLDeclEncoding(r *bufio.Reader) (string, error) {
	const prefix = "<?xml"
	peek, err := r.Peek(len(prefix))
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return "", err
	}
	if len(peek) < len(prefix) || !bytes.Equal(peek, []byte(prefix)) {
		return "", nil
	}
	decl, err := r.Peek(maxDeclScan)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return "", err
	}
	end := bytes.Index(decl, []byte("?>"))
	if end < 0 {
		return "", nil
	}
	return parseXMLDeclEncoding(decl[:end]), nil
}

func parseXMLDeclEncoding(decl []byte) string {
	const prefix = "<?xml"
	data := decl[len(prefix):]
	for {
		data = bytes.TrimLeft(data, " \t\r\n")
		if len(data) == 0 {
			return ""
		}
		name, rest := scanDeclName(data)
		if len(name) == 0 {
			return ""
		}
		data = bytes.TrimLeft(rest, " \t\r\n")
		if len(data) == 0 || data[0] != '=' {
			return ""
		}
		data = bytes.TrimLeft(data[1:], " \t\r\n")
		if len(data) == 0 {
			return ""
		}
		quote := data[0]
		if quote != '\'' && quote != '"' {
			return ""
		}
		data = data[1:]
		end := bytes.IndexByte(data, quote)
		if end < 0 {
			return ""
		}
		value := data[:end]
		data = data[end+1:]
		if bytes.EqualFold(name, []byte("encoding")) {
			return string(value)
		}
	}
}

func scanDeclName(data []byte) ([]byte, []byte) {
	if len(data) == 0 || !isNameStartByte(data[0]) {
		return nil, data
	}
	i := 1
	for i < len(data) && isNameByte(data[i]) {
		i++
	}
	return data[:i], data[i:]
}

func isUTF8Label(label string) bool {
	return bytes.EqualFold([]byte(label), []byte("utf-8")) || bytes.EqualFold([]byte(label), []byte("utf8"))
}

// chunkReader feeds a sequence of byte chunks as one stream. Empty chunks are
// skipped; a nil chunk is an input error, matching the contract that chunk
// producers yield bytes until exhausted.
type chunkReader struct {
	chunks [][]byte
	index  int
	rest   []byte
}

func (c *chunkReader) Read(p []byte) (int, error) {
	for len(c.rest) == 0 {
		if c.index >= len(c.chunks) {
			return 0, io.EOF
		}
		chunk := c.chunks[c.index]
		c.index++
		if chunk == nil {
			return 0, &Error{Type: ErrInput, Message: "nil chunk in input sequence"}
		}
		c.rest = chunk
	}
	n := copy(p, c.rest)
	c.rest = c.rest[n:]
	return n, nil
}
