package bencode

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
)

// Encode returns the canonical encoding of v. Dictionary keys are always
// written in ascending byte order. On error no bytes are returned.
func Encode(v Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := encodeValue(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EncodeTo writes the encoding of v to w only if the whole value encodes.
func EncodeTo(w io.Writer, v Value) error {
	b, err := Encode(v)
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

func encodeValue(buf *bytes.Buffer, v Value) error {
	switch v.kind {
	case Integer:
		buf.WriteByte(TokenInteger)
		buf.WriteString(strconv.FormatInt(v.integer, 10))
		buf.WriteByte(TokenEnd)

	case ByteString:
		writeBytes(buf, v.bytes)

	case List:
		buf.WriteByte(TokenList)
		for i, item := range v.list {
			if err := encodeValue(buf, item); err != nil {
				return fmt.Errorf("list item %d: %w", i, err)
			}
		}
		buf.WriteByte(TokenEnd)

	case Dictionary:
		buf.WriteByte(TokenDictionary)
		for _, key := range v.Keys() {
			writeBytes(buf, []byte(key))
			if err := encodeValue(buf, v.dict[key]); err != nil {
				return fmt.Errorf("key %q: %w", key, err)
			}
		}
		buf.WriteByte(TokenEnd)

	default:
		return fmt.Errorf("%w: kind %s", ErrUnrepresentableValue, v.kind)
	}
	return nil
}

// writeBytes emits the byte length, not the rune count.
func writeBytes(buf *bytes.Buffer, b []byte) {
	buf.WriteString(strconv.Itoa(len(b)))
	buf.WriteByte(TokenSeparator)
	buf.Write(b)
}
