package renamer

import (
	"regexp"
	"sort"
	"strings"
)

// titleTokens are substituted after doubles are collapsed so the title keeps its punctuation
var titleTokens = []string{"thename", "namethe"}

var (
	illegalCharsRegex = regexp.MustCompile(`[\x00:*?"<>|]`)
	placeholderRegex  = regexp.MustCompile(`<[A-Za-z0-9_]+>`)
)

var doubles = []struct {
	re   *regexp.Regexp
	with string
}{
	{regexp.MustCompile(`\.+`), "."},
	{regexp.MustCompile(`_+`), "_"},
	{regexp.MustCompile(`-+`), "-"},
	{regexp.MustCompile(`\s+`), " "},
	{regexp.MustCompile(` \\`), `\`},
	{regexp.MustCompile(` /`), "/"},
	{regexp.MustCompile(`(\s\.)+`), "."},
	{regexp.MustCompile(`(-\.)+`), "."},
	{regexp.MustCompile(`\s-(\S)`), "-$1"},
	{regexp.MustCompile(` ]`), "]"},
}

// Namer renders folder and file name templates
type Namer struct {
	separator       string
	folderSeparator string
	replaceDoubles  bool
}

// NewNamer creates a namer. An empty separator keeps spaces.
func NewNamer(separator, folderSeparator string, replaceDoubles bool) *Namer {
	return &Namer{
		separator:       separator,
		folderSeparator: folderSeparator,
		replaceDoubles:  replaceDoubles,
	}
}

// Render replaces every <token> in pattern. Unknown tokens render empty,
// removeMultiple clears the cd tokens of single-file releases.
func (n *Namer) Render(pattern string, tokens map[string]string, folder, removeMultiple bool) string {
	keys := make([]string, 0, len(tokens))
	for k := range tokens {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	replaced := pattern
	for _, k := range keys {
		if k == "thename" || k == "namethe" {
			continue
		}
		value := tokens[k]
		if removeMultiple && (k == "cd" || k == "cd_nr") {
			value = ""
		}
		replaced = strings.ReplaceAll(replaced, "<"+k+">", value)
	}
	replaced = placeholderRegex.ReplaceAllStringFunc(replaced, func(token string) string {
		if token == "<thename>" || token == "<namethe>" {
			return token
		}
		return ""
	})

	if n.replaceDoubles {
		replaced = ReplaceDoubles(strings.TrimLeft(replaced, ". "))
	}

	for _, k := range titleTokens {
		replaced = strings.ReplaceAll(replaced, "<"+k+">", tokens[k])
	}
	replaced = illegalCharsRegex.ReplaceAllString(replaced, "")

	sep := n.separator
	if folder {
		sep = n.folderSeparator
	}
	if sep != "" {
		replaced = strings.ReplaceAll(replaced, " ", sep)
	}
	return replaced
}

// ReplaceDoubles collapses repeated separators and trims trailing punctuation
func ReplaceDoubles(s string) string {
	for _, d := range doubles {
		s = d.re.ReplaceAllString(s, d.with)
	}
	return strings.TrimRight(s, `,_-/\ `)
}
