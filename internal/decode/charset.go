package decode

import (
	"bytes"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// cp1252Undefined are the bytes Windows-1252 leaves unassigned.
var cp1252Undefined = []byte{0x81, 0x8D, 0x8F, 0x90, 0x9D}

// SafeDecode turns bytes into text and never fails. It tries strict UTF-8,
// then strict Windows-1252, then Latin-1, which maps every byte.
func SafeDecode(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	if !hasUndefined(b) {
		if s, err := charmap.Windows1252.NewDecoder().Bytes(b); err == nil {
			return string(s)
		}
	}
	s, err := charmap.ISO8859_1.NewDecoder().Bytes(b)
	if err != nil {
		return latin1(b)
	}
	return string(s)
}

func hasUndefined(b []byte) bool {
	for _, c := range cp1252Undefined {
		if bytes.IndexByte(b, c) >= 0 {
			return true
		}
	}
	return false
}

func latin1(b []byte) string {
	r := make([]rune, len(b))
	for i, c := range b {
		r[i] = rune(c)
	}
	return string(r)
}
