package xmldict

import (
	"bytes"
	"encoding/json"
)

// ToJSON marshals a decoded value to indented JSON. Container keys keep
// their document order; markup characters in text are not HTML-escaped.
func ToJSON(value any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(value); err != nil {
		return nil, &Error{Type: ErrValue, Message: "marshal json", Err: err}
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// ToJSONString is ToJSON returning a string.
func ToJSONString(value any) (string, error) {
	bs, err := ToJSON(value)
	if err != nil {
		return "", err
	}
	return string(bs), nil
}

// FromJSON parses JSON into the container shape used by the encoder: objects
// become Containers with document order, arrays become []any slices. The
// result is suitable input for Encode.
func FromJSON(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	value, err := decodeJSONValue(dec)
	if err != nil {
		return nil, &Error{Type: ErrParse, Message: "parse json", Err: err}
	}
	if dec.More() {
		return nil, &Error{Type: ErrParse, Message: "trailing data after json value"}
	}
	return value, nil
}

func decodeJSONValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			c := NewContainer()
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key := keyTok.(string)
				value, err := decodeJSONValue(dec)
				if err != nil {
					return nil, err
				}
				c.Set(key, value)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return c, nil
		case '[':
			var items []any
			for dec.More() {
				value, err := decodeJSONValue(dec)
				if err != nil {
					return nil, err
				}
				items = append(items, value)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return items, nil
		}
		return nil, &Error{Type: ErrParse, Message: "unexpected json delimiter"}
	case json.Number:
		return t.String(), nil
	default:
		return t, nil
	}
}
