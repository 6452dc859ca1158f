package nbt

import (
	"errors"
	"unicode/utf16"
	"unicode/utf8"
)

var errBadMUTF8 = errors.New("nbt: invalid modified utf-8")

// appendMUTF8 appends s in modified UTF-8: NUL is two bytes and
// supplementary characters are encoded as surrogate pairs.
func appendMUTF8(dst []byte, s string) []byte {
	for _, r := range s {
		switch {
		case r == 0:
			dst = append(dst, 0xC0, 0x80)
		case r < 0x80:
			dst = append(dst, byte(r))
		case r > 0xFFFF:
			hi, lo := utf16.EncodeRune(r)
			dst = appendSurrogate(dst, hi)
			dst = appendSurrogate(dst, lo)
		default:
			dst = utf8.AppendRune(dst, r)
		}
	}
	return dst
}

func appendSurrogate(dst []byte, r rune) []byte {
	return append(dst,
		0xE0|byte(r>>12),
		0x80|byte(r>>6)&0x3F,
		0x80|byte(r)&0x3F)
}

// mutf8Len returns the encoded length of s.
func mutf8Len(s string) int {
	n := 0
	for _, r := range s {
		switch {
		case r == 0:
			n += 2
		case r > 0xFFFF:
			n += 6
		default:
			n += utf8.RuneLen(r)
		}
	}
	return n
}

// decodeMUTF8 reverses appendMUTF8.
func decodeMUTF8(b []byte) (string, error) {
	out := make([]rune, 0, len(b))
	for i := 0; i < len(b); {
		c := b[i]
		switch {
		case c < 0x80:
			out = append(out, rune(c))
			i++
		case c&0xE0 == 0xC0:
			if i+1 >= len(b) || b[i+1]&0xC0 != 0x80 {
				return "", errBadMUTF8
			}
			out = append(out, rune(c&0x1F)<<6|rune(b[i+1]&0x3F))
			i += 2
		case c&0xF0 == 0xE0:
			if i+2 >= len(b) || b[i+1]&0xC0 != 0x80 || b[i+2]&0xC0 != 0x80 {
				return "", errBadMUTF8
			}
			out = append(out, rune(c&0x0F)<<12|rune(b[i+1]&0x3F)<<6|rune(b[i+2]&0x3F))
			i += 3
		default:
			return "", errBadMUTF8
		}
	}
	// Recombine surrogate pairs; lone surrogates become U+FFFD.
	return string(utf16Decode(out)), nil
}

func utf16Decode(rs []rune) []rune {
	out := rs[:0]
	for i := 0; i < len(rs); i++ {
		r := rs[i]
		if utf16.IsSurrogate(r) && i+1 < len(rs) {
			if dec := utf16.DecodeRune(r, rs[i+1]); dec != utf8.RuneError {
				out = append(out, dec)
				i++
				continue
			}
		}
		if utf16.IsSurrogate(r) {
			r = utf8.RuneError
		}
		out = append(out, r)
	}
	return out
}
