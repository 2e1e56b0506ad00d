package utils

import (
	"bufio"
	"os"
	"strings"
)

// IgnoreList holds path fragments that exclude a file from scanning and renaming
type IgnoreList struct {
	terms []string
}

// NewIgnoreList builds an ignore list from in-memory terms
func NewIgnoreList(terms ...string) *IgnoreList {
	l := &IgnoreList{}
	l.Add(terms...)
	return l
}

// LoadIgnoreList loads ignore terms from a file, one per line.
// Blank lines and lines starting with # are skipped.
func LoadIgnoreList(path string) (*IgnoreList, error) {
	// If file doesn't exist, return empty list
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return &IgnoreList{terms: []string{}}, nil
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var terms []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		term := strings.TrimSpace(scanner.Text())
		if term != "" && !strings.HasPrefix(term, "#") {
			terms = append(terms, term)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return &IgnoreList{terms: terms}, nil
}

// Add appends terms, skipping empty ones
func (l *IgnoreList) Add(terms ...string) {
	for _, term := range terms {
		if term = strings.TrimSpace(term); term != "" {
			l.terms = append(l.terms, term)
		}
	}
}

// Terms returns a copy of the configured terms
func (l *IgnoreList) Terms() []string {
	if l == nil {
		return nil
	}
	return append([]string(nil), l.terms...)
}

// Match checks if a path contains any ignore term.
// Returns (isIgnored, matchedTerm)
func (l *IgnoreList) Match(path string) (bool, string) {
	if l == nil {
		return false, ""
	}
	pathLower := strings.ToLower(path)

	for _, term := range l.terms {
		if strings.Contains(pathLower, strings.ToLower(term)) {
			return true, term
		}
	}

	return false, ""
}
