package device

import "unicode"

// letters is the flap drum in display order. The calibration mark of a unit
// is an index into this table.
var letters = []rune{
	' ', 'A', 'B', 'C', 'D', 'E', 'F', 'G', 'H', 'I', 'J', 'K', 'L', 'M', 'N',
	'O', 'P', 'Q', 'R', 'S', 'T', 'U', 'V', 'W', 'X', 'Y', 'Z', '$', '&', '#',
	'0', '1', '2', '3', '4', '5', '6', '7', '8', '9', ':', '.', '-', '?', '!',
}

// suggestedOffsets holds the firmware's default offset for each calibration
// mark, indexed like letters.
var suggestedOffsets = []int{
	0, 1993, 1947, 1902, 1857, 1812, 1766, 1721, 1676, 1630, 1585, 1540, 1495, 1449, 1404,
	1359, 1313, 1268, 1223, 1178, 1132, 1087, 1042, 996, 951, 906, 860, 815, 770, 725,
	679, 634, 589, 543, 498, 453, 408, 362, 317, 272, 226, 181, 136, 91, 45,
}

// NumMarks is the number of selectable calibration marks.
var NumMarks = len(letters)

// DefaultMaxOffset is the upper offset bound accepted by current firmware.
const DefaultMaxOffset = 2038

// ValidMark reports whether mark indexes the letter table.
func ValidMark(mark int) bool {
	return mark >= 0 && mark < len(letters)
}

// SuggestedOffset returns the firmware default offset for a calibration
// mark, or 0 for an unknown mark.
func SuggestedOffset(mark int) int {
	if !ValidMark(mark) {
		return 0
	}
	return suggestedOffsets[mark]
}

// MarkLetter returns the flap letter for a calibration mark.
func MarkLetter(mark int) (rune, bool) {
	if !ValidMark(mark) {
		return 0, false
	}
	return letters[mark], true
}

// MarkLabel renders a mark for display; the blank flap shows as "␣".
func MarkLabel(mark int) string {
	r, ok := MarkLetter(mark)
	switch {
	case !ok:
		return "?"
	case r == ' ':
		return "␣"
	default:
		return string(r)
	}
}

// LetterIndex returns the drum index of r, case-insensitively, or -1 when
// the drum has no such flap.
func LetterIndex(r rune) int {
	up := unicode.ToUpper(r)
	for i, l := range letters {
		if l == up {
			return i
		}
	}
	return -1
}

// Displayable reports the first rune of text the drum cannot show.
func Displayable(text string) (rune, bool) {
	for _, r := range text {
		if LetterIndex(r) < 0 {
			return r, false
		}
	}
	return 0, true
}
