package scanner

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/amaumene/gomovarr/internal/utils"
	"github.com/moistari/rls"
)

var nonWordRegex = regexp.MustCompile(`\W+`)

// NameYear is a title and year guessed from a release or file name
type NameYear struct {
	Name string
	Year int
	// Other is the competing guess, tried when the first one finds nothing
	Other *NameYear
}

// Valid reports whether the guess can be used as a search query
func (n *NameYear) Valid() bool {
	return n != nil && n.Name != "" && n.Year > 0
}

// Query renders the guess as a catalog search query
func (n *NameYear) Query() string {
	return n.Name + " " + strconv.Itoa(n.Year)
}

// GuessNameYear combines a release parser run on fileName with a tag
// stripping guess on releaseName and returns the more specific one first.
func GuessNameYear(releaseName, fileName string) NameYear {
	releaseName = strings.Trim(releaseName, " .-_")

	var parsed NameYear
	if fileName != "" {
		r := rls.ParseString(filepath.Base(fileName))
		if r.Type == rls.Movie || r.Type == rls.Unknown {
			if r.Title != "" && r.Year > 0 {
				parsed = NameYear{Name: r.Title, Year: r.Year}
			}
		}
	}

	releaseName = filepath.Base(strings.ReplaceAll(releaseName, `\`, "/"))
	cleaned := strings.Join(nonWordRegex.Split(utils.SimplifyString(releaseName), -1), " ")
	cleaned = replaceReleaseTags(cleaned, " ")

	var year string
	for _, s := range []string{fileName, releaseName, cleaned} {
		if s == "" {
			continue
		}
		if year = utils.FindYear(s); year != "" {
			break
		}
	}

	var guessed NameYear
	if year != "" {
		if i := strings.LastIndex(cleaned, year); i >= 0 {
			if name := strings.TrimSpace(cleaned[:i]); name != "" {
				guessed = NameYear{Name: name, Year: atoi(year)}
			}
		}
		if guessed.Name == "" {
			name := strings.TrimSpace(strings.SplitN(cleaned, "  ", 2)[0])
			guessed = NameYear{Name: name}
			if !strings.HasPrefix(name, year) {
				guessed.Year = atoi(year)
			}
		}
	}

	switch {
	case guessed.Year == parsed.Year && len(guessed.Name) > len(parsed.Name):
		guessed.Other = &parsed
		return guessed
	case parsed.Name == "":
		guessed.Other = &parsed
		return guessed
	default:
		parsed.Other = &guessed
		return parsed
	}
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
