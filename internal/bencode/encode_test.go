package bencode

import (
	"bytes"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDictionary(t *testing.T) {
	v := NewDictionary(map[string]Value{
		"b": NewString("spam"),
		"a": NewInteger(1),
	})

	got, err := Encode(v)
	require.NoError(t, err)
	assert.Equal(t, "d1:ai1e1:b4:spame", string(got))
}

func TestEncodeScalars(t *testing.T) {
	tests := []struct {
		in   Value
		want string
	}{
		{NewInteger(0), "i0e"},
		{NewInteger(-7), "i-7e"},
		{NewString(""), "0:"},
		{NewBytes(nil), "0:"},
		{NewString("héllo"), "6:héllo"},
		{NewBytes([]byte{0xff, 0x00}), "2:\xff\x00"},
		{NewList(), "le"},
		{NewDictionary(nil), "de"},
	}

	for _, tt := range tests {
		got, err := Encode(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, string(got))
	}
}

func TestEncodeCanonicalOrder(t *testing.T) {
	keys := []string{"zeta", "a", "\xff", "alpha", "", "B", "aa"}

	first := make(map[string]Value)
	for _, k := range keys {
		first[k] = NewString(k)
	}
	second := make(map[string]Value)
	for i := len(keys) - 1; i >= 0; i-- {
		second[keys[i]] = NewString(keys[i])
	}

	a, err := Encode(NewDictionary(first))
	require.NoError(t, err)
	b, err := Encode(NewDictionary(second))
	require.NoError(t, err)
	assert.Equal(t, a, b)

	assert.Equal(t, "d0:0:1:B1:B1:a1:a2:aa2:aa5:alpha5:alpha4:zeta4:zeta1:\xff1:\xffe", string(a))
}

func TestEncodeUnrepresentable(t *testing.T) {
	_, err := Encode(Value{})
	assert.ErrorIs(t, err, ErrUnrepresentableValue)

	nested := NewDictionary(map[string]Value{
		"ok":  NewInteger(1),
		"bad": NewList(NewInteger(2), Value{}),
	})
	got, err := Encode(nested)
	assert.ErrorIs(t, err, ErrUnrepresentableValue)
	assert.Nil(t, got)

	var buf bytes.Buffer
	err = EncodeTo(&buf, nested)
	assert.ErrorIs(t, err, ErrUnrepresentableValue)
	assert.Zero(t, buf.Len(), "no partial output")
}

func TestEncodeTo(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, EncodeTo(&buf, NewList(NewInteger(1), NewString("x"))))
	assert.Equal(t, "li1e1:xe", buf.String())
}

func TestRoundTrip(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))

	for i := 0; i < 500; i++ {
		v := randomValue(rnd, 4)

		encoded, err := Encode(v)
		require.NoError(t, err)

		decoded, n, err := Decode(encoded, 0)
		require.NoError(t, err, "input %q", encoded)
		assert.Equal(t, len(encoded), n)
		assert.True(t, decoded.Equal(v), "round trip of %s gave %s", v, decoded)

		again, err := Encode(decoded)
		require.NoError(t, err)
		assert.Equal(t, encoded, again)
	}
}

func TestValueString(t *testing.T) {
	v := NewDictionary(map[string]Value{
		"b":    NewList(NewInteger(1), NewString("x")),
		"a":    NewBytes([]byte{0xff, 0xfe}),
		"name": NewString("demo"),
	})
	assert.Equal(t, `{"a": <2 bytes fffe>, "b": [1, "x"], "name": "demo"}`, v.String())
}

func TestValueStringBinaryThatLooksLikeText(t *testing.T) {
	// 0xde 0xad is valid UTF-8 for U+07AD.
	assert.Equal(t, "<2 bytes dead>", NewBytes([]byte{0xde, 0xad}).String())
	assert.Equal(t, "<5 bytes 68c3a96c6c>", NewString("h\u00e9ll").String())
	assert.Equal(t, `"a\\b"`, NewString(`a\b`).String())
}

func TestFprint(t *testing.T) {
	var sb strings.Builder
	v := NewDictionary(map[string]Value{
		"list": NewList(NewInteger(1)),
		"n":    NewInteger(2),
	})
	require.NoError(t, Fprint(&sb, v))
	assert.Equal(t, "{\n  \"list\": [\n    1\n  ]\n  \"n\": 2\n}\n", sb.String())
}

func randomValue(rnd *rand.Rand, depth int) Value {
	kind := rnd.Intn(4)
	if depth == 0 {
		kind = rnd.Intn(2)
	}

	switch kind {
	case 0:
		return NewInteger(rnd.Int63() - rnd.Int63())
	case 1:
		b := make([]byte, rnd.Intn(16))
		rnd.Read(b)
		return NewBytes(b)
	case 2:
		items := make([]Value, rnd.Intn(5))
		for i := range items {
			items[i] = randomValue(rnd, depth-1)
		}
		return NewList(items...)
	default:
		entries := make(map[string]Value)
		for i := rnd.Intn(5); i > 0; i-- {
			key := make([]byte, rnd.Intn(6))
			rnd.Read(key)
			entries[string(key)] = randomValue(rnd, depth-1)
		}
		return NewDictionary(entries)
	}
}
