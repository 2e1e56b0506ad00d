package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	nonWordRegex      = regexp.MustCompile(`\W+`)
	nonWordUnderRegex = regexp.MustCompile(`\W+|_`)
	imdbRegex         = regexp.MustCompile(`tt\d{4,8}`)
	bracketYearRegex  = regexp.MustCompile(`[\(\[](19[0-9]{2}|20[0-9]{2})[\]\)]`)
	bareYearRegex     = regexp.MustCompile(`19[0-9]{2}|20[0-9]{2}`)
)

const safeChars = "-_.() abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// StripAccents removes combining marks after canonical decomposition
func StripAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return result
}

// ToSafeString keeps only filesystem-safe ASCII characters and collapses whitespace
func ToSafeString(s string) string {
	decomposed := norm.NFKD.String(s)
	var b strings.Builder
	for _, r := range decomposed {
		if r < unicode.MaxASCII && strings.ContainsRune(safeChars, r) {
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// SimplifyString lower-cases, strips accents and collapses every non-word run to a single space
func SimplifyString(s string) string {
	simple := StripAccents(strings.ToLower(s))
	simple = ToSafeString(strings.Join(nonWordRegex.Split(simple, -1), " "))
	return strings.Join(nonWordUnderRegex.Split(strings.ToLower(simple), -1), " ")
}

// PossibleTitles returns the distinct spellings a title may be matched against
func PossibleTitles(raw string) []string {
	titles := []string{
		strings.ToLower(ToSafeString(raw)),
		strings.ToLower(raw),
		SimplifyString(raw),
		SimplifyString(strings.ReplaceAll(raw, "&", "and")),
	}
	return RemoveDuplicates(titles)
}

// RemoveDuplicates keeps the first occurrence of every value, preserving order
func RemoveDuplicates(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// GetIMDBID returns the first IMDb id found in text, normalized to at least 7 digits
func GetIMDBID(text string) string {
	ids := findIMDBIDs(SimplifyString(text))
	if len(ids) == 0 {
		return ""
	}
	return ids[0]
}

// GetIMDBIDFromFile reads path and returns the first IMDb id in its contents
func GetIMDBIDFromFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	ids := findIMDBIDs(string(data))
	if len(ids) == 0 {
		return "", nil
	}
	return ids[0], nil
}

func findIMDBIDs(text string) []string {
	var ids []string
	for _, match := range imdbRegex.FindAllString(text, -1) {
		n, err := strconv.Atoi(match[2:])
		if err != nil {
			continue
		}
		ids = append(ids, fmt.Sprintf("tt%07d", n))
	}
	return RemoveDuplicates(ids)
}

// FindYear returns the last bracketed year in text, else the last bare year, else ""
func FindYear(text string) string {
	if matches := bracketYearRegex.FindAllStringSubmatch(text, -1); len(matches) > 0 {
		return matches[len(matches)-1][1]
	}
	if matches := bareYearRegex.FindAllString(text, -1); len(matches) > 0 {
		return matches[len(matches)-1]
	}
	return ""
}

// IsSubFolder reports whether sub is base or lives below it, after resolving symlinks
func IsSubFolder(sub, base string) bool {
	if sub == "" || base == "" {
		return false
	}
	sub = realPath(sub)
	base = realPath(base)
	rel, err := filepath.Rel(base, sub)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

func realPath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved
	}
	return abs
}

// Ext returns the extension of path without the dot, lower-cased
func Ext(path string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
}

// TrimExt returns path without its extension
func TrimExt(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path))
}

// NZBName builds the download name handed to a downloader: the safe release
// name followed by a .cp(<imdb>) tag the scanner can read back.
func NZBName(releaseName, imdbID string) string {
	tag := ""
	if imdbID != "" {
		tag = ".cp(" + imdbID + ")"
	}
	maxLength := 127 - len(tag)
	name := []rune(releaseName)
	if len(name) > maxLength {
		name = name[:maxLength]
	}
	return ToSafeString(string(name)) + tag
}
