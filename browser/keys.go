package browser

import (
	"unicode"
	"unicode/utf8"
)

type keyKind int

const (
	keyRune keyKind = iota
	keyEnter
	keyBackspace
	keyDelete
	keyLeft
	keyRight
	keyHome
	keyEnd
	keyUp
	keyDown
	keyPageUp
	keyPageDown
	keyCtrlC
	keyCtrlS
	keyCtrlU
)

type key struct {
	kind keyKind
	r    rune
}

// keyDecoder turns raw input chunks into key events. Escape sequences
// and multi-byte runes can split across chunk boundaries, so undecided
// bytes carry over to the next Feed.
type keyDecoder struct {
	pending []byte
	lastCR  bool
}

func (d *keyDecoder) Feed(chunk []byte) []key {
	d.pending = append(d.pending, chunk...)
	var keys []key
	for len(d.pending) > 0 {
		k, n, complete := decodeOne(d.pending, d.lastCR)
		if !complete {
			break
		}
		d.lastCR = d.pending[0] == '\r'
		d.pending = d.pending[n:]
		if k != nil {
			keys = append(keys, *k)
		}
	}
	if len(d.pending) == 0 {
		d.pending = nil
	}
	return keys
}

// decodeOne decodes the first key in buf. complete is false when buf
// holds the prefix of a sequence that needs more bytes.
func decodeOne(buf []byte, lastCR bool) (k *key, n int, complete bool) {
	b := buf[0]
	switch b {
	case 0x1b:
		return decodeEscape(buf)
	case '\r':
		return &key{kind: keyEnter}, 1, true
	case '\n':
		if lastCR {
			return nil, 1, true
		}
		return &key{kind: keyEnter}, 1, true
	case 0x7f, 0x08:
		return &key{kind: keyBackspace}, 1, true
	case 0x03:
		return &key{kind: keyCtrlC}, 1, true
	case 0x13:
		return &key{kind: keyCtrlS}, 1, true
	case 0x15:
		return &key{kind: keyCtrlU}, 1, true
	}
	if b < 0x20 {
		return nil, 1, true
	}
	if b < utf8.RuneSelf {
		return &key{kind: keyRune, r: rune(b)}, 1, true
	}
	if !utf8.FullRune(buf) && len(buf) < utf8.UTFMax {
		return nil, 0, false
	}
	r, size := utf8.DecodeRune(buf)
	if r == utf8.RuneError && size == 1 {
		return nil, 1, true
	}
	return &key{kind: keyRune, r: r}, size, true
}

func decodeEscape(buf []byte) (*key, int, bool) {
	if len(buf) < 2 {
		return nil, 0, false
	}
	switch buf[1] {
	case '[':
		return decodeCSI(buf)
	case 'O':
		return decodeSS3(buf)
	default:
		return nil, 2, true
	}
}

func decodeCSI(buf []byte) (*key, int, bool) {
	end := -1
	for i := 2; i < len(buf); i++ {
		b := buf[i]
		if b == '~' || unicode.IsLetter(rune(b)) {
			end = i
			break
		}
		if i-2 >= 8 {
			return nil, i + 1, true
		}
	}
	if end < 0 {
		return nil, 0, false
	}
	seq := string(buf[2 : end+1])
	n := end + 1
	switch seq {
	case "A":
		return &key{kind: keyUp}, n, true
	case "B":
		return &key{kind: keyDown}, n, true
	case "C":
		return &key{kind: keyRight}, n, true
	case "D":
		return &key{kind: keyLeft}, n, true
	case "H":
		return &key{kind: keyHome}, n, true
	case "F":
		return &key{kind: keyEnd}, n, true
	case "5~":
		return &key{kind: keyPageUp}, n, true
	case "6~":
		return &key{kind: keyPageDown}, n, true
	case "3~":
		return &key{kind: keyDelete}, n, true
	}
	return nil, n, true
}

func decodeSS3(buf []byte) (*key, int, bool) {
	if len(buf) < 3 {
		return nil, 0, false
	}
	switch buf[2] {
	case 'A':
		return &key{kind: keyUp}, 3, true
	case 'B':
		return &key{kind: keyDown}, 3, true
	case 'C':
		return &key{kind: keyRight}, 3, true
	case 'D':
		return &key{kind: keyLeft}, 3, true
	case 'H':
		return &key{kind: keyHome}, 3, true
	case 'F':
		return &key{kind: keyEnd}, 3, true
	}
	return nil, 3, true
}
