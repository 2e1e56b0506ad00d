package scanner

import (
	"sort"

	"github.com/amaumene/gomovarr/internal/models"
	"github.com/amaumene/gomovarr/internal/quality"
)

// groupCategories are the categories a group's files are partitioned into,
// in the order they claim a file
var groupCategories = []Category{
	CategoryMovie,
	CategoryMovieExtra,
	CategorySubtitle,
	CategorySubtitleExtra,
	CategoryNFO,
	CategoryTrailer,
}

// Metadata is the technical description of a group's movie files
type Metadata struct {
	Titles        []string        `json:"titles,omitempty"`
	VideoCodec    string          `json:"video_codec"`
	AudioCodec    string          `json:"audio_codec"`
	AudioChannels float64         `json:"audio_channels"`
	Width         int             `json:"resolution_width"`
	Height        int             `json:"resolution_height"`
	Aspect        float64         `json:"aspect"`
	SizeMB        float64         `json:"size"`
	Group         string          `json:"group"`
	Source        string          `json:"source"`
	Quality       *quality.Result `json:"quality"`
	QualityType   string          `json:"quality_type"`
	ThreeDType    string          `json:"3d_type,omitempty"`
}

// Is3D reports whether the detected or snatched quality is 3D
func (m Metadata) Is3D() bool {
	return m.Quality != nil && m.Quality.Is3D
}

// Group is a set of files believed to belong to one release
type Group struct {
	Identifier  string
	Identifiers []string
	Root        string
	IsDVD       bool
	// Files partitions the group's files; CategoryLeftover holds the rest
	Files             map[Category][]string
	Meta              Metadata
	SubtitleLanguages map[string][]string
	Media             *models.Movie
	// IMDBId is the resolved identifier, set even when Media could not be built
	IMDBId string
	// ParentDir is the folder of the first movie file, DirName the closest
	// folder name meaningful enough to name the release
	ParentDir string
	DirName   string
	// Ignored is set when a file of the group carries an .ignore marker
	Ignored bool

	unsorted []string
}

func newGroup(identifier string, identifiers []string, isDVD bool, root string) *Group {
	return &Group{
		Identifier:        identifier,
		Identifiers:       identifiers,
		Root:              root,
		IsDVD:             isDVD,
		Files:             make(map[Category][]string),
		SubtitleLanguages: make(map[string][]string),
	}
}

// MovieFiles returns the group's movie files, sorted
func (g *Group) MovieFiles() []string {
	files := append([]string(nil), g.Files[CategoryMovie]...)
	sort.Strings(files)
	return files
}

// AllFiles returns every file in the group, leftovers included
func (g *Group) AllFiles() []string {
	var files []string
	for _, category := range groupCategories {
		files = append(files, g.Files[category]...)
	}
	return append(files, g.Files[CategoryLeftover]...)
}

// HasMedia reports whether the group was linked to a catalog entry
func (g *Group) HasMedia() bool {
	return g.Media != nil
}

func (g *Group) addUnsorted(files ...string) {
	g.unsorted = append(g.unsorted, files...)
}

// partition sorts unsorted files into categories, each file claimed once
func (g *Group) partition(c *Classifier) {
	claimed := make(map[string]bool, len(g.unsorted))
	files := uniqueSorted(g.unsorted)

	for _, category := range groupCategories {
		var candidates []string
		if category == CategoryMovie && g.IsDVD {
			candidates = c.FilesOf(CategoryDVD, files)
		} else {
			candidates = c.FilesOf(category, files)
		}
		for _, f := range candidates {
			if !claimed[f] {
				claimed[f] = true
				g.Files[category] = append(g.Files[category], f)
			}
		}
	}

	for _, f := range files {
		if !claimed[f] {
			g.Files[CategoryLeftover] = append(g.Files[CategoryLeftover], f)
		}
	}
	g.unsorted = nil
}

func uniqueSorted(files []string) []string {
	seen := make(map[string]bool, len(files))
	out := make([]string, 0, len(files))
	for _, f := range files {
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	sort.Strings(out)
	return out
}
