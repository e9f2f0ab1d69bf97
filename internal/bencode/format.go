package bencode

import (
	"bufio"
	"io"
	"strconv"
	"strings"
)

// Fprint writes v as an indented tree, one scalar per line.
func Fprint(w io.Writer, v Value) error {
	bw := bufio.NewWriter(w)
	fprint(bw, v, 0)
	bw.WriteByte('\n')
	return bw.Flush()
}

func fprint(w *bufio.Writer, v Value, level int) {
	indent := strings.Repeat("  ", level+1)
	switch v.kind {
	case List:
		if len(v.list) == 0 {
			w.WriteString("[]")
			return
		}
		w.WriteString("[\n")
		for _, item := range v.list {
			w.WriteString(indent)
			fprint(w, item, level+1)
			w.WriteByte('\n')
		}
		w.WriteString(strings.Repeat("  ", level))
		w.WriteByte(']')
	case Dictionary:
		if len(v.dict) == 0 {
			w.WriteString("{}")
			return
		}
		w.WriteString("{\n")
		for _, k := range v.Keys() {
			w.WriteString(indent)
			w.WriteString(quoteBytes([]byte(k)))
			w.WriteString(": ")
			fprint(w, v.dict[k], level+1)
			w.WriteByte('\n')
		}
		w.WriteString(strings.Repeat("  ", level))
		w.WriteByte('}')
	case ByteString:
		w.WriteString(quoteBytes(v.bytes))
	case Integer:
		w.WriteString(strconv.FormatInt(v.integer, 10))
	default:
		w.WriteString("<invalid>")
	}
}
