// Package bencode implements the BitTorrent bencode format over an explicit
// Value tree. Decoding is strict: only canonical input is accepted.
package bencode

// Markers of the bencode grammar.
const (
	TokenInteger    byte = 'i'
	TokenList       byte = 'l'
	TokenDictionary byte = 'd'
	TokenEnd        byte = 'e'
	TokenSeparator  byte = ':'
	TokenMinus      byte = '-'
)

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
