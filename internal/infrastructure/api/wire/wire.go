// Package wire reads JSON payloads token by token against closed field tables.
package wire

import (
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/tesso57/readsync/internal/domain/reading"
)

// Iterator is the streaming token reader used by the adapters.
type Iterator = jsoniter.Iterator

// Unknown is returned by Names.Select for fields outside the table.
const Unknown = -1

// Names is a closed table of expected field names. Each name maps to its
// position in the table.
type Names struct {
	index map[string]int
}

// NewNames builds a table; the i-th name selects to i.
func NewNames(names ...string) *Names {
	n := &Names{index: make(map[string]int, len(names))}
	for i, name := range names {
		n.index[name] = i
	}
	return n
}

// Select returns the table position of name, or Unknown.
func (n *Names) Select(name string) int {
	if i, ok := n.index[name]; ok {
		return i
	}
	return Unknown
}

// Decode runs fn over data and converts any parser failure into a
// *reading.ParseError carrying the parser message.
func Decode(data []byte, fn func(it *Iterator)) error {
	it := jsoniter.ParseBytes(jsoniter.ConfigDefault, data)
	fn(it)
	if it.Error != nil {
		return reading.NewParseError(it.Error)
	}
	return nil
}

// Object walks an object, calling fn with the table position of every known
// field. Unknown fields are skipped. A null object is accepted as empty.
func Object(it *Iterator, names *Names, fn func(it *Iterator, field int)) {
	it.ReadObjectCB(func(it *Iterator, name string) bool {
		field := names.Select(name)
		if field == Unknown {
			it.Skip()
		} else {
			fn(it, field)
		}
		return it.Error == nil
	})
}

// Array calls fn for each element. A null array is accepted as empty.
func Array(it *Iterator, fn func(it *Iterator)) {
	it.ReadArrayCB(func(it *Iterator) bool {
		fn(it)
		return it.Error == nil
	})
}

// Fail records a structural failure on the iterator.
func Fail(it *Iterator, op, msg string) {
	it.ReportError(op, msg)
}

// String reads a string; null reads as absent ("").
func String(it *Iterator) string {
	if it.ReadNil() {
		return ""
	}
	return it.ReadString()
}

// Strings reads an array of strings, dropping nulls.
func Strings(it *Iterator) []string {
	var out []string
	Array(it, func(it *Iterator) {
		if s := String(it); s != "" {
			out = append(out, s)
		}
	})
	return out
}

// ID reads a number or string identifier in base-10 string form.
// null reads as absent.
func ID(it *Iterator) string {
	switch it.WhatIsNext() {
	case jsoniter.NumberValue:
		return strconv.FormatInt(it.ReadInt64(), 10)
	case jsoniter.StringValue:
		return it.ReadString()
	case jsoniter.NilValue:
		it.Skip()
		return ""
	default:
		Fail(it, "ID", "expects number or string")
		return ""
	}
}

// Int reads a number, a numeric string or null (as 0, false).
func Int(it *Iterator) (int64, bool) {
	switch it.WhatIsNext() {
	case jsoniter.NumberValue:
		return it.ReadInt64(), true
	case jsoniter.StringValue:
		s := strings.TrimSpace(it.ReadString())
		if s == "" {
			return 0, false
		}
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			Fail(it, "Int", "expects numeric string, but found "+strconv.Quote(s))
			return 0, false
		}
		return v, true
	case jsoniter.NilValue:
		it.Skip()
		return 0, false
	default:
		Fail(it, "Int", "expects number or string")
		return 0, false
	}
}

// Bool reads a boolean, or a 0/1 number as used by Fever. null reads as false.
func Bool(it *Iterator) bool {
	switch it.WhatIsNext() {
	case jsoniter.BoolValue:
		return it.ReadBool()
	case jsoniter.NumberValue:
		return it.ReadInt64() != 0
	case jsoniter.NilValue:
		it.Skip()
		return false
	default:
		Fail(it, "Bool", "expects boolean or number")
		return false
	}
}

// RequireID records a failure when a required identifier is absent.
func RequireID(it *Iterator, entity, id string) bool {
	if id == "" && it.Error == nil {
		Fail(it, entity, "missing required id")
	}
	return id != "" && it.Error == nil
}

// SplitIDs parses a comma separated id list, ignoring blanks.
func SplitIDs(s string) []string {
	var out []string
	for part := range strings.SplitSeq(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Marshal encodes v with the same JSON configuration used for decoding.
func Marshal(v any) ([]byte, error) {
	return jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(v)
}
