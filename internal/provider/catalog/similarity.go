package catalog

import "strings"

// Similarity computes a Ratcliff/Obershelp similarity ratio between two
// strings: twice the number of matching characters divided by the total
// length. Comparison is case-insensitive and operates on runes so Cyrillic
// titles compare correctly. Returns a value in [0,1].
func Similarity(a, b string) float64 {
	ar := []rune(strings.ToLower(strings.TrimSpace(a)))
	br := []rune(strings.ToLower(strings.TrimSpace(b)))

	if len(ar) == 0 && len(br) == 0 {
		return 1.0
	}
	if len(ar) == 0 || len(br) == 0 {
		return 0.0
	}

	matches := matchingRunes(ar, br)
	return 2.0 * float64(matches) / float64(len(ar)+len(br))
}

// matchingRunes counts matched characters recursively: find the longest
// common substring, then match the pieces to its left and right.
func matchingRunes(a, b []rune) int {
	ai, bi, size := longestCommonSubstring(a, b)
	if size == 0 {
		return 0
	}
	return size +
		matchingRunes(a[:ai], b[:bi]) +
		matchingRunes(a[ai+size:], b[bi+size:])
}

func longestCommonSubstring(a, b []rune) (ai, bi, size int) {
	// lengths[j] is the length of the common suffix ending at a[i], b[j] for
	// the current row.
	lengths := make([]int, len(b)+1)
	for i := 0; i < len(a); i++ {
		// Walk right to left so the previous row's values survive.
		for j := len(b) - 1; j >= 0; j-- {
			if a[i] == b[j] {
				lengths[j+1] = lengths[j] + 1
				if lengths[j+1] > size {
					size = lengths[j+1]
					ai = i - size + 1
					bi = j - size + 1
				}
			} else {
				lengths[j+1] = 0
			}
		}
	}
	return ai, bi, size
}
