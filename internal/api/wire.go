package api

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// The admin API is loose about scalar types: ids arrive as numbers or
// strings, counts as numbers or numeric strings, names as strings or nested
// objects. The Flex types below accept every variant seen in the wild and
// never fail the surrounding decode.

// FlexString decodes a string, number, boolean, or an object carrying a
// name/title/email, into a plain string. null and arrays decode to "".
type FlexString string

func (s *FlexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*s = ""
		return nil
	}

	switch b[0] {
	case '"':
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = FlexString(v)
	case '{':
		var obj struct {
			Name  FlexString `json:"name"`
			Title FlexString `json:"title"`
			Email FlexString `json:"email"`
		}
		if err := json.Unmarshal(b, &obj); err != nil {
			*s = ""
			return nil
		}
		switch {
		case obj.Name != "":
			*s = obj.Name
		case obj.Title != "":
			*s = obj.Title
		default:
			*s = obj.Email
		}
	case '[':
		*s = ""
	default:
		*s = FlexString(string(b))
	}
	return nil
}

// FlexFloat decodes a JSON number or numeric string. Valid is false for
// null, empty strings and anything unparsable.
type FlexFloat struct {
	Value float64
	Valid bool
}

func (f *FlexFloat) UnmarshalJSON(b []byte) error {
	*f = FlexFloat{}
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		return nil
	}

	raw := string(b)
	if b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return nil
		}
		raw = strings.TrimSpace(v)
	}
	if v, err := strconv.ParseFloat(raw, 64); err == nil {
		f.Value = v
		f.Valid = true
	}
	return nil
}

// Ptr returns a pointer to the value, or nil when it is not valid.
func (f FlexFloat) Ptr() *float64 {
	if !f.Valid {
		return nil
	}
	v := f.Value
	return &v
}

// FlexInt is FlexFloat truncated to an integer.
type FlexInt struct {
	FlexFloat
}

// Int returns the integer value, or 0 when not valid.
func (i FlexInt) Int() int {
	if !i.Valid {
		return 0
	}
	return int(i.Value)
}

// Ptr returns a pointer to the integer value, or nil when it is not valid.
func (i FlexInt) Ptr() *int {
	if !i.Valid {
		return nil
	}
	v := int(i.Value)
	return &v
}
