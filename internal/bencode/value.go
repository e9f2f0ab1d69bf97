package bencode

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Kind tags the variant held by a Value.
type Kind uint8

const (
	Invalid Kind = iota
	Integer
	ByteString
	List
	Dictionary
)

func (k Kind) String() string {
	switch k {
	case Integer:
		return "INTEGER"
	case ByteString:
		return "BYTE_STRING"
	case List:
		return "LIST"
	case Dictionary:
		return "DICTIONARY"
	default:
		return "INVALID"
	}
}

// Value is a bencode value. The zero Value is Invalid and cannot be encoded.
// Dictionary keys are raw byte strings stored in Go strings.
type Value struct {
	kind    Kind
	integer int64
	bytes   []byte
	list    []Value
	dict    map[string]Value
}

func NewInteger(i int64) Value {
	return Value{kind: Integer, integer: i}
}

// NewBytes wraps b without copying it.
func NewBytes(b []byte) Value {
	if b == nil {
		b = []byte{}
	}
	return Value{kind: ByteString, bytes: b}
}

func NewString(s string) Value {
	return Value{kind: ByteString, bytes: []byte(s)}
}

func NewList(items ...Value) Value {
	return Value{kind: List, list: slices.Clone(items)}
}

// NewDictionary copies entries; later changes to the map are not observed.
func NewDictionary(entries map[string]Value) Value {
	dict := make(map[string]Value, len(entries))
	for k, v := range entries {
		dict[k] = v
	}
	return Value{kind: Dictionary, dict: dict}
}

func (v Value) Kind() Kind {
	return v.kind
}

func (v Value) Integer() (int64, bool) {
	return v.integer, v.kind == Integer
}

func (v Value) Bytes() ([]byte, bool) {
	return v.bytes, v.kind == ByteString
}

// Text returns a byte string as a Go string. No UTF-8 validation is done.
func (v Value) Text() (string, bool) {
	return string(v.bytes), v.kind == ByteString
}

func (v Value) List() ([]Value, bool) {
	return v.list, v.kind == List
}

func (v Value) Dictionary() (map[string]Value, bool) {
	return v.dict, v.kind == Dictionary
}

// Get looks up key in a dictionary. It reports false for other kinds.
func (v Value) Get(key string) (Value, bool) {
	if v.kind != Dictionary {
		return Value{}, false
	}
	item, ok := v.dict[key]
	return item, ok
}

// Keys returns dictionary keys in canonical order.
func (v Value) Keys() []string {
	if v.kind != Dictionary {
		return nil
	}
	keys := make([]string, 0, len(v.dict))
	for k := range v.dict {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case Integer:
		return v.integer == other.integer
	case ByteString:
		return bytes.Equal(v.bytes, other.bytes)
	case List:
		if len(v.list) != len(other.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(other.list[i]) {
				return false
			}
		}
		return true
	case Dictionary:
		if len(v.dict) != len(other.dict) {
			return false
		}
		for k, item := range v.dict {
			o, ok := other.dict[k]
			if !ok || !item.Equal(o) {
				return false
			}
		}
		return true
	default:
		return true
	}
}

// String renders v for humans. Byte strings that are not printable ASCII
// are shown as hex.
func (v Value) String() string {
	var sb strings.Builder
	v.writeTo(&sb)
	return sb.String()
}

func (v Value) writeTo(sb *strings.Builder) {
	switch v.kind {
	case Integer:
		sb.WriteString(strconv.FormatInt(v.integer, 10))
	case ByteString:
		sb.WriteString(quoteBytes(v.bytes))
	case List:
		sb.WriteByte('[')
		for i, item := range v.list {
			if i > 0 {
				sb.WriteString(", ")
			}
			item.writeTo(sb)
		}
		sb.WriteByte(']')
	case Dictionary:
		sb.WriteByte('{')
		for i, k := range v.Keys() {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(quoteBytes([]byte(k)))
			sb.WriteString(": ")
			v.dict[k].writeTo(sb)
		}
		sb.WriteByte('}')
	default:
		sb.WriteString("<invalid>")
	}
}

func quoteBytes(b []byte) string {
	if isPrintable(b) {
		return strconv.Quote(string(b))
	}
	return fmt.Sprintf("<%d bytes %s>", len(b), hex.EncodeToString(b))
}

// isPrintable accepts printable ASCII only. Hashes and peer ids often happen
// to be valid UTF-8 and must still print as hex.
func isPrintable(b []byte) bool {
	for _, c := range b {
		if c < 0x20 || c > 0x7e {
			return false
		}
	}
	return true
}
