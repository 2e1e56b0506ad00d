package quality

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/moistari/rls"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
)

const (
	pointsIdentifier  = 25
	pointsLabel       = 25
	pointsTag         = 11
	pointsExt         = 5
	pointsAlternative = 4

	maxSizePoints    = 8
	outOfBandPenalty = 5
)

var wordSplitRegex = regexp.MustCompile(`\W+`)

// threeDTags maps a 3D layout to the tags announcing it
var threeDTags = []struct {
	layout string
	tags   []Tag
}{
	{"sbs", []Tag{{"half", "sbs"}, {"hsbs"}, {"full", "sbs"}, {"fsbs"}, {"sbs"}}},
	{"ou", []Tag{{"half", "ou"}, {"hou"}, {"full", "ou"}, {"fou"}, {"ou"}}},
	{"3d", []Tag{{"2d3d"}, {"3d2d"}, {"3d"}}},
}

// Hints carries information already extracted from the files themselves
type Hints struct {
	Width  int
	Height int
	// Titles are embedded container titles, scored like extra file names
	Titles []string
}

// Result is the winning definition of a guess
type Result struct {
	Definition
	Is3D     bool    `json:"is_3d"`
	ThreeDAs string  `json:"threed_as,omitempty"`
	Score    float64 `json:"score"`
}

type vocabEntry struct {
	tag    Tag
	points float64
}

// Scorer picks the quality definition that best matches a set of file names
type Scorer struct {
	defs   []Definition
	vocab  [][]vocabEntry
	order  map[string]int
	cache  *cache.Cache
	logger *logrus.Logger
}

// NewScorer creates a scorer over defs, which are ordered best first
func NewScorer(defs []Definition, logger *logrus.Logger) *Scorer {
	s := &Scorer{
		defs:   defs,
		vocab:  make([][]vocabEntry, len(defs)),
		order:  make(map[string]int, len(defs)),
		cache:  cache.New(30*time.Minute, time.Hour),
		logger: logger,
	}

	shares := make(map[string]int)
	perDef := make([]map[string]vocabEntry, len(defs))
	for i, def := range defs {
		s.order[def.Identifier] = i
		perDef[i] = definitionVocabulary(def)
		for key := range perDef[i] {
			shares[key]++
		}
	}

	// A tag claimed by several definitions is split between them
	for i, entries := range perDef {
		keys := make([]string, 0, len(entries))
		for key := range entries {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			entry := entries[key]
			entry.points /= float64(shares[key])
			s.vocab[i] = append(s.vocab[i], entry)
		}
	}

	return s
}

func definitionVocabulary(def Definition) map[string]vocabEntry {
	entries := make(map[string]vocabEntry)
	add := func(tag Tag, points float64) {
		if len(tag) == 0 {
			return
		}
		key := tag.key()
		if existing, ok := entries[key]; ok && existing.points >= points {
			return
		}
		entries[key] = vocabEntry{tag: tag, points: points}
	}

	add(Tag{strings.ToLower(def.Identifier)}, pointsIdentifier)
	add(labelTag(def.Label), pointsLabel)
	for _, tag := range def.Tags {
		add(tag, pointsTag)
	}
	for _, alt := range def.Alternatives {
		add(alt, pointsAlternative)
	}
	return entries
}

func labelTag(label string) Tag {
	var tag Tag
	for _, word := range wordSplitRegex.Split(strings.ToLower(label), -1) {
		if word != "" {
			tag = append(tag, word)
		}
	}
	return tag
}

// All returns a copy of the definitions, best first
func (s *Scorer) All() []Definition {
	return append([]Definition(nil), s.defs...)
}

// Single returns the definition with the given identifier
func (s *Scorer) Single(identifier string) (*Definition, error) {
	i, ok := s.order[identifier]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownQuality, identifier)
	}
	def := s.defs[i]
	return &def, nil
}

// Order returns the rank of identifier, lower is better.
// Unknown identifiers rank after every definition.
func (s *Scorer) Order(identifier string) int {
	if i, ok := s.order[identifier]; ok {
		return i
	}
	return len(s.defs)
}

// Guess scores every definition against files and returns the best one, or
// nil when nothing scores above zero. Ties go to the earlier definition.
func (s *Scorer) Guess(files []string, sizeMB float64, hints Hints) *Result {
	if len(files) == 0 {
		return nil
	}

	key := cacheKey(files, sizeMB, hints)
	if cached, ok := s.cache.Get(key); ok {
		result := *cached.(*Result)
		return &result
	}

	scores := make([]float64, len(s.defs))
	threeD := make([]string, len(s.defs))

	names := append(append([]string(nil), files...), hints.Titles...)
	for _, name := range names {
		words := wordSplitRegex.Split(strings.ToLower(name), -1)
		ext := words[len(words)-1]
		tagWords := wordSet(words[:len(words)-1])
		threeDWords := wordsOutsideTitle(name, words)

		for i, def := range s.defs {
			score := s.containsTagScore(i, tagWords, ext)
			scores[i] += score

			if def.Allow3D && threeD[i] == "" {
				threeD[i] = contains3D(threeDWords)
			}

			if score != 0 {
				s.penalizeAllowed(scores, i, score)
			}
		}
	}

	if sizeMB > 0 {
		for i, def := range s.defs {
			scores[i] += sizeScore(def, sizeMB)
		}
	}

	for i, def := range s.defs {
		scores[i] += looseScore(def, hints)
	}

	best := -1
	for i, score := range scores {
		if score <= 0 {
			continue
		}
		if best < 0 || score > scores[best] {
			best = i
		}
	}
	if best < 0 {
		return nil
	}

	result := &Result{
		Definition: s.defs[best],
		Is3D:       threeD[best] != "",
		ThreeDAs:   threeD[best],
		Score:      scores[best],
	}

	s.logger.WithFields(logrus.Fields{
		"quality": result.Identifier,
		"score":   result.Score,
		"is_3d":   result.Is3D,
		"files":   len(files),
	}).Debug("Guessed quality")

	s.cache.Set(key, result, cache.DefaultExpiration)
	copied := *result
	return &copied
}

func (s *Scorer) containsTagScore(i int, words map[string]bool, ext string) float64 {
	var score float64
	for _, entry := range s.vocab[i] {
		if hasAll(words, entry.tag) {
			score += entry.points
		}
	}
	for _, e := range s.defs[i].Ext {
		if e == ext {
			score += pointsExt
			break
		}
	}
	return score
}

// penalizeAllowed pushes down the tiers a matching definition allows, harder
// when the allowed tier ranks above the matching one.
func (s *Scorer) penalizeAllowed(scores []float64, i int, penalty float64) {
	for _, allow := range s.defs[i].Allow {
		j, ok := s.order[allow]
		if !ok {
			continue
		}
		if j < i {
			scores[j] -= penalty * 4
		} else {
			scores[j] -= penalty * 2
		}
	}
}

func sizeScore(def Definition, sizeMB float64) float64 {
	if sizeMB < def.SizeMin || sizeMB > def.SizeMax {
		return -outOfBandPenalty
	}
	band := def.SizeMax - def.SizeMin
	if band <= 0 {
		return 0
	}
	sizeProc := (sizeMB - def.SizeMin) / band
	medianProc := (def.MedianSize - def.SizeMin) / band
	return math.Ceil(maxSizePoints - math.Abs(sizeProc-medianProc)*maxSizePoints)
}

func looseScore(def Definition, hints Hints) float64 {
	var score float64
	if def.Width > 0 && within(hints.Width, def.Width, 20) {
		score += 10
	}
	if def.Height > 0 && within(hints.Height, def.Height, 20) {
		score += 5
	}
	if def.Identifier == "dvdrip" && hints.Width >= 480 && hints.Width <= 720 {
		score += 5
	}
	return score
}

func within(value, target, tolerance int) bool {
	return value >= target-tolerance && value <= target+tolerance
}

func contains3D(words map[string]bool) string {
	for _, layout := range threeDTags {
		for _, tag := range layout.tags {
			if hasAll(words, tag) {
				return layout.layout
			}
		}
	}
	return ""
}

// wordsOutsideTitle drops the parsed movie title so a film called "3D" or
// "Sbs" is not mistaken for a 3D release.
func wordsOutsideTitle(name string, words []string) map[string]bool {
	release := rls.ParseString(name)
	title := wordSet(wordSplitRegex.Split(strings.ToLower(release.Title), -1))

	out := make(map[string]bool, len(words))
	for _, w := range words {
		if !title[w] {
			out[w] = true
		}
	}
	return out
}

func wordSet(words []string) map[string]bool {
	set := make(map[string]bool, len(words))
	for _, w := range words {
		if w != "" {
			set[w] = true
		}
	}
	return set
}

func hasAll(words map[string]bool, tag Tag) bool {
	for _, w := range tag {
		if !words[w] {
			return false
		}
	}
	return len(tag) > 0
}

func cacheKey(files []string, sizeMB float64, hints Hints) string {
	return fmt.Sprintf("%s|%.0f|%d|%d|%s",
		strings.Join(files, "\x00"), sizeMB, hints.Width, hints.Height, strings.Join(hints.Titles, "\x00"))
}
