package bencode

import (
	"fmt"
	"strconv"
)

// DefaultMaxDepth bounds container nesting when Decoder.MaxDepth is unset.
const DefaultMaxDepth = 500

// Decoder decodes single values. The zero Decoder uses DefaultMaxDepth.
type Decoder struct {
	MaxDepth int
}

// Decode decodes one value starting at offset with the default depth limit.
func Decode(data []byte, offset int) (Value, int, error) {
	var d Decoder
	return d.Decode(data, offset)
}

// Unmarshal decodes data as exactly one value with nothing after it.
func Unmarshal(data []byte) (Value, error) {
	v, n, err := Decode(data, 0)
	if err != nil {
		return Value{}, err
	}
	if n != len(data) {
		return Value{}, &SyntaxError{
			Offset: n,
			Reason: fmt.Sprintf("%d trailing bytes", len(data)-n),
			Err:    ErrMalformed,
		}
	}
	return v, nil
}

// Decode decodes exactly one value starting at offset and returns it along
// with the number of bytes it occupied. Bytes after the value are ignored.
func (d *Decoder) Decode(data []byte, offset int) (Value, int, error) {
	if offset < 0 || offset > len(data) {
		return Value{}, 0, &SyntaxError{Offset: offset, Reason: "offset out of range", Err: ErrMalformed}
	}

	maxDepth := d.MaxDepth
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}

	p := &parser{data: data, pos: offset, maxDepth: maxDepth}
	v, err := p.value(0)
	if err != nil {
		return Value{}, 0, err
	}
	return v, p.pos - offset, nil
}

type parser struct {
	data     []byte
	pos      int
	maxDepth int
}

func (p *parser) fail(offset int, kind error, format string, args ...any) error {
	return &SyntaxError{Offset: offset, Reason: fmt.Sprintf(format, args...), Err: kind}
}

func (p *parser) truncated() error {
	return &SyntaxError{Offset: p.pos, Err: ErrTruncated}
}

func (p *parser) value(depth int) (Value, error) {
	if p.pos >= len(p.data) {
		return Value{}, p.truncated()
	}

	switch c := p.data[p.pos]; {
	case c == TokenInteger:
		return p.integer()
	case c == TokenList:
		return p.list(depth + 1)
	case c == TokenDictionary:
		return p.dictionary(depth + 1)
	case isDigit(c):
		b, err := p.byteString()
		if err != nil {
			return Value{}, err
		}
		return Value{kind: ByteString, bytes: b}, nil
	default:
		return Value{}, p.fail(p.pos, ErrMalformed, "unexpected token %q", c)
	}
}

func (p *parser) integer() (Value, error) {
	start := p.pos
	p.pos++

	negative := false
	if p.pos < len(p.data) && p.data[p.pos] == TokenMinus {
		negative = true
		p.pos++
	}

	digitsStart := p.pos
	for p.pos < len(p.data) && isDigit(p.data[p.pos]) {
		p.pos++
	}
	if p.pos >= len(p.data) {
		return Value{}, p.truncated()
	}
	if c := p.data[p.pos]; c != TokenEnd {
		return Value{}, p.fail(p.pos, ErrMalformed, "unexpected byte %q in integer", c)
	}

	digits := p.data[digitsStart:p.pos]
	switch {
	case len(digits) == 0:
		return Value{}, p.fail(start, ErrMalformed, "empty integer")
	case len(digits) > 1 && digits[0] == '0':
		return Value{}, p.fail(start, ErrMalformed, "leading zero in integer")
	case negative && digits[0] == '0':
		return Value{}, p.fail(start, ErrMalformed, "negative zero")
	}

	n, err := strconv.ParseInt(string(p.data[start+1:p.pos]), 10, 64)
	if err != nil {
		return Value{}, p.fail(start, ErrMalformed, "integer out of range")
	}
	p.pos++

	return Value{kind: Integer, integer: n}, nil
}

// byteString reads <len>:<payload> and returns a copy of the payload.
func (p *parser) byteString() ([]byte, error) {
	start := p.pos
	for p.pos < len(p.data) && isDigit(p.data[p.pos]) {
		p.pos++
	}
	if p.pos >= len(p.data) {
		return nil, p.truncated()
	}
	if c := p.data[p.pos]; c != TokenSeparator {
		return nil, p.fail(p.pos, ErrMalformed, "unexpected byte %q in string length", c)
	}

	digits := p.data[start:p.pos]
	switch {
	case len(digits) == 0:
		return nil, p.fail(start, ErrMalformed, "missing string length")
	case len(digits) > 1 && digits[0] == '0':
		return nil, p.fail(start, ErrMalformed, "leading zero in string length")
	}

	n, err := strconv.Atoi(string(digits))
	if err != nil {
		return nil, p.fail(start, ErrMalformed, "string length out of range")
	}
	p.pos++

	if n > len(p.data)-p.pos {
		return nil, p.truncated()
	}

	b := make([]byte, n)
	copy(b, p.data[p.pos:p.pos+n])
	p.pos += n

	return b, nil
}

func (p *parser) list(depth int) (Value, error) {
	if depth > p.maxDepth {
		return Value{}, p.fail(p.pos, ErrRecursionDepthExceeded, "limit %d", p.maxDepth)
	}
	p.pos++

	items := []Value{}
	for {
		if p.pos >= len(p.data) {
			return Value{}, p.truncated()
		}
		if p.data[p.pos] == TokenEnd {
			p.pos++
			return Value{kind: List, list: items}, nil
		}

		item, err := p.value(depth)
		if err != nil {
			return Value{}, err
		}
		items = append(items, item)
	}
}

// dictionary requires keys in strictly ascending byte order; a duplicate key
// is therefore always adjacent to its first occurrence.
func (p *parser) dictionary(depth int) (Value, error) {
	if depth > p.maxDepth {
		return Value{}, p.fail(p.pos, ErrRecursionDepthExceeded, "limit %d", p.maxDepth)
	}
	p.pos++

	entries := make(map[string]Value)
	var prev string
	first := true
	for {
		if p.pos >= len(p.data) {
			return Value{}, p.truncated()
		}
		if p.data[p.pos] == TokenEnd {
			p.pos++
			return Value{kind: Dictionary, dict: entries}, nil
		}

		keyOffset := p.pos
		if !isDigit(p.data[p.pos]) {
			return Value{}, p.fail(keyOffset, ErrMalformed, "dictionary key must be a byte string, found %q", p.data[p.pos])
		}
		raw, err := p.byteString()
		if err != nil {
			return Value{}, err
		}
		key := string(raw)

		if !first {
			switch {
			case key == prev:
				return Value{}, p.fail(keyOffset, ErrDuplicateKey, "key %q", key)
			case key < prev:
				return Value{}, p.fail(keyOffset, ErrKeyOrder, "key %q after %q", key, prev)
			}
		}

		item, err := p.value(depth)
		if err != nil {
			return Value{}, err
		}
		entries[key] = item
		prev = key
		first = false
	}
}
