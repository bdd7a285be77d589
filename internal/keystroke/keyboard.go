package keystroke

// Frozen QWERTY layout tables.
//
// Hand, row and finger classification all key off these maps. They are part
// of the feature schema: reordering or extending them changes the meaning of
// the positional slots and requires a schema version bump. Keys are stored
// in normalized (lower-case, "Space" sentinel) form.

// Hand is the side of the keyboard a key belongs to.
type Hand int

const (
	HandNone Hand = iota
	HandLeft
	HandRight
)

// Row is the physical keyboard row.
type Row int

const (
	RowNone Row = iota
	RowHome
	RowTop
	RowBottom
)

// Finger is the finger conventionally assigned to a key. Left/right is not
// distinguished here; the hand tables carry that signal separately.
type Finger int

const (
	FingerPinky Finger = iota
	FingerRing
	FingerMiddle
	FingerIndex
	FingerThumb
	fingerCount
)

var leftHandKeys = map[string]bool{
	"q": true, "w": true, "e": true, "r": true, "t": true,
	"a": true, "s": true, "d": true, "f": true, "g": true,
	"z": true, "x": true, "c": true, "v": true, "b": true,
	"1": true, "2": true, "3": true, "4": true, "5": true,
	"`": true, "~": true,
}

var rightHandKeys = map[string]bool{
	"y": true, "u": true, "i": true, "o": true, "p": true,
	"h": true, "j": true, "k": true, "l": true,
	"n": true, "m": true,
	"6": true, "7": true, "8": true, "9": true, "0": true,
	"-": true, "=": true, "[": true, "]": true, "\\": true,
	";": true, "'": true, ",": true, ".": true, "/": true,
}

var homeRowKeys = map[string]bool{
	"a": true, "s": true, "d": true, "f": true, "g": true,
	"h": true, "j": true, "k": true, "l": true, ";": true,
}

var topRowKeys = map[string]bool{
	"q": true, "w": true, "e": true, "r": true, "t": true,
	"y": true, "u": true, "i": true, "o": true, "p": true,
	"[": true, "]": true, "\\": true,
}

var bottomRowKeys = map[string]bool{
	"z": true, "x": true, "c": true, "v": true, "b": true,
	"n": true, "m": true, ",": true, ".": true, "/": true,
}

// fingerKeys maps each classified key to its conventional touch-typing
// finger, pooled across hands. "Space" goes to the thumb.
var fingerKeys = map[string]Finger{
	// Pinky columns.
	"q": FingerPinky, "a": FingerPinky, "z": FingerPinky, "1": FingerPinky,
	"p": FingerPinky, ";": FingerPinky, "/": FingerPinky, "0": FingerPinky,
	"-": FingerPinky, "=": FingerPinky, "[": FingerPinky, "]": FingerPinky,
	"\\": FingerPinky, "'": FingerPinky, "`": FingerPinky,
	// Ring columns.
	"w": FingerRing, "s": FingerRing, "x": FingerRing, "2": FingerRing,
	"o": FingerRing, "l": FingerRing, ".": FingerRing, "9": FingerRing,
	// Middle columns.
	"e": FingerMiddle, "d": FingerMiddle, "c": FingerMiddle, "3": FingerMiddle,
	"i": FingerMiddle, "k": FingerMiddle, ",": FingerMiddle, "8": FingerMiddle,
	// Index columns (two per hand).
	"r": FingerIndex, "f": FingerIndex, "v": FingerIndex, "4": FingerIndex,
	"t": FingerIndex, "g": FingerIndex, "b": FingerIndex, "5": FingerIndex,
	"y": FingerIndex, "h": FingerIndex, "n": FingerIndex, "6": FingerIndex,
	"u": FingerIndex, "j": FingerIndex, "m": FingerIndex, "7": FingerIndex,
	// Thumb.
	spaceSentinel: FingerThumb,
}

// HandOf classifies a normalized key. HandNone means the key is not in the
// layout tables and contributes only to aggregate timing features.
func HandOf(key string) Hand {
	switch {
	case leftHandKeys[key]:
		return HandLeft
	case rightHandKeys[key]:
		return HandRight
	default:
		return HandNone
	}
}

// RowOf classifies a normalized key into a keyboard row.
func RowOf(key string) Row {
	switch {
	case homeRowKeys[key]:
		return RowHome
	case topRowKeys[key]:
		return RowTop
	case bottomRowKeys[key]:
		return RowBottom
	default:
		return RowNone
	}
}

// FingerOf returns the finger assigned to a normalized key. The second
// return is false for keys outside the tables.
func FingerOf(key string) (Finger, bool) {
	f, ok := fingerKeys[key]
	return f, ok
}
