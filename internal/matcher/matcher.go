// Package matcher decides whether a parsed release name belongs to a catalog title.
package matcher

import (
	"strconv"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/amaumene/gomovarr/internal/utils"
)

// maxMissingWords is how many title words a release name may leave out
const maxMissingWords = 1

// fuzzyMinLength is the shortest word compared with a typo tolerance
const fuzzyMinLength = 5

var romanNumerals = map[string]int{
	"ii": 2, "iii": 3, "iv": 4, "vi": 6, "vii": 7, "viii": 8, "ix": 9,
	"xi": 11, "xii": 12, "xiii": 13,
}

// Matches reports whether releaseName, already stripped of year and release
// tags, names the catalog title. Sequel numbers must agree exactly, the
// release may not add words, and at most one title word may be missing.
func Matches(releaseName, title string) bool {
	releaseWords := strings.Fields(utils.SimplifyString(releaseName))
	titleWords := strings.Fields(utils.SimplifyString(title))
	if len(releaseWords) == 0 || len(titleWords) == 0 {
		return false
	}

	if !sameNumbers(numbers(releaseWords), numbers(titleWords)) {
		return false
	}

	matched := make([]bool, len(titleWords))
	for _, rw := range releaseWords {
		if _, ok := number(rw); ok {
			continue
		}
		found := false
		for i, tw := range titleWords {
			if !matched[i] && wordsEqual(rw, tw) {
				matched[i] = true
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	missing := 0
	for i, tw := range titleWords {
		if _, ok := number(tw); ok {
			continue
		}
		if !matched[i] {
			missing++
		}
	}
	return missing <= maxMissingWords
}

func wordsEqual(a, b string) bool {
	if a == b {
		return true
	}
	if len(a) < fuzzyMinLength || len(b) < fuzzyMinLength {
		return false
	}
	return levenshtein.ComputeDistance(a, b) <= 1
}

func number(word string) (int, bool) {
	if n, err := strconv.Atoi(word); err == nil {
		return n, true
	}
	if n, ok := romanNumerals[word]; ok {
		return n, true
	}
	return 0, false
}

func numbers(words []string) map[int]int {
	out := make(map[int]int)
	for _, w := range words {
		if n, ok := number(w); ok {
			out[n]++
		}
	}
	return out
}

func sameNumbers(a, b map[int]int) bool {
	if len(a) != len(b) {
		return false
	}
	for n, count := range a {
		if b[n] != count {
			return false
		}
	}
	return true
}
