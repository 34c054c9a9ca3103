package player

// KeyKind classifies one decoded terminal input.
type KeyKind int

const (
	KeyRune KeyKind = iota
	KeyEnter
	KeyBackspace
	KeyEscape
	KeyUp
	KeyDown
	KeyLeft
	KeyRight
	KeyCtrlC
	KeyCtrlP
	// KeyFocusIn and KeyFocusOut are reported by terminals with focus
	// reporting enabled (CSI ?1004h).
	KeyFocusIn
	KeyFocusOut
)

// Key is one decoded input.
type Key struct {
	Kind KeyKind
	Rune rune
}

// Decode splits a raw-mode read into keys. Unknown escape sequences are
// dropped.
func Decode(buf []byte) []Key {
	var keys []Key
	for i := 0; i < len(buf); i++ {
		b := buf[i]
		switch {
		case b == 0x1b:
			if i+2 < len(buf) && buf[i+1] == '[' {
				if k, ok := csiKey(buf[i+2]); ok {
					keys = append(keys, Key{Kind: k})
				}
				i += 2
				continue
			}
			keys = append(keys, Key{Kind: KeyEscape})
		case b == 0x03:
			keys = append(keys, Key{Kind: KeyCtrlC})
		case b == 0x10:
			keys = append(keys, Key{Kind: KeyCtrlP})
		case b == '\r' || b == '\n':
			keys = append(keys, Key{Kind: KeyEnter})
		case b == 0x7f || b == 0x08:
			keys = append(keys, Key{Kind: KeyBackspace})
		case b >= 0x20 && b < 0x7f:
			keys = append(keys, Key{Kind: KeyRune, Rune: rune(b)})
		}
	}
	return keys
}

func csiKey(b byte) (KeyKind, bool) {
	switch b {
	case 'A':
		return KeyUp, true
	case 'B':
		return KeyDown, true
	case 'C':
		return KeyRight, true
	case 'D':
		return KeyLeft, true
	case 'I':
		return KeyFocusIn, true
	case 'O':
		return KeyFocusOut, true
	}
	return 0, false
}
