package scanner

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/amaumene/gomovarr/internal/utils"
	"github.com/sirupsen/logrus"
)

// Category is the purpose of a file inside a release
type Category string

const (
	CategoryMovie         Category = "movie"
	CategoryMovieExtra    Category = "movie_extra"
	CategorySubtitle      Category = "subtitle"
	CategorySubtitleExtra Category = "subtitle_extra"
	CategoryNFO           Category = "nfo"
	CategoryTrailer       Category = "trailer"
	CategoryBackdrop      Category = "backdrop"
	CategoryImage         Category = "image"
	CategoryDVD           Category = "dvd"
	CategorySample        Category = "sample"
	CategoryLeftover      Category = "leftover"
	CategoryIgnored       Category = "ignored"
)

type sizeBand struct {
	min, max float64
}

// between is exclusive on both ends; an unknown size never fits
func (b sizeBand) between(sizeMB float64) bool {
	if sizeMB < 0 {
		return false
	}
	return b.min < sizeMB && sizeMB < b.max
}

var (
	movieBand    = sizeBand{min: 200, max: 100000}
	trailerBand  = sizeBand{min: 2, max: 199}
	backdropBand = sizeBand{min: 0, max: 5}
)

var extensions = map[Category][]string{
	CategoryMovie:         {"mkv", "wmv", "avi", "mpg", "mpeg", "mp4", "m2ts", "iso", "img", "mdf", "ts", "m4v", "flv"},
	CategoryMovieExtra:    {"mds"},
	CategoryNFO:           {"nfo", "txt", "tag"},
	CategorySubtitle:      {"sub", "srt", "ssa", "ass"},
	CategorySubtitleExtra: {"idx"},
	CategoryImage:         {"jpg", "jpeg", "png", "gif", "bmp", "tbn"},
}

// ignoredExtensions mark a release that must not be touched
var ignoredExtensions = []string{"ignore", "lftp-pget-status"}

var defaultIgnoredInPath = []string{
	string(filepath.Separator) + "extracted" + string(filepath.Separator), "extracting", "_unpack",
	"_failed_", "_unknown_", "_exists_", "_failed_remove_", "_failed_rename_",
	".appledouble", ".appledb", ".appledesktop", string(filepath.Separator) + "._", ".ds_store",
	"cp.cpnfo", "thumbs.db", "ehthumbs.db", "desktop.ini",
}

// ignoreNames are folder names too generic to name a release
var ignoreNames = []string{
	"extract", "extracting", "extracted", "movie", "movies", "film", "films",
	"download", "downloads", "video_ts", "audio_ts", "bdmv", "certificate",
}

var (
	sampleRegex   = regexp.MustCompile(`(^|[\W_])sample\d*[\W_]`)
	trailerRegex  = regexp.MustCompile(`(^|[\W_])trailer\d*[\W_]`)
	backdropRegex = regexp.MustCompile(`(^|[\W_])fanart|backdrop\d*[\W_]`)
)

// Classifier maps files to categories from their name and size
type Classifier struct {
	ignore *utils.IgnoreList
	stat   func(string) (os.FileInfo, error)
	logger *logrus.Logger
}

// NewClassifier creates a classifier. Every term of ignore excludes a path
// on top of the built-in system and marker fragments.
func NewClassifier(ignore *utils.IgnoreList, logger *logrus.Logger) *Classifier {
	list := utils.NewIgnoreList(defaultIgnoredInPath...)
	list.Add(ignore.Terms()...)
	return &Classifier{
		ignore: list,
		stat:   os.Stat,
		logger: logger,
	}
}

// Size returns the size of path in MB, or -1 when it cannot be read
func (c *Classifier) Size(path string) float64 {
	info, err := c.stat(path)
	if err != nil {
		return -1
	}
	return float64(info.Size()) / 1024 / 1024
}

// Keep reports whether path survives the ignore list
func (c *Classifier) Keep(path string) bool {
	if ignored, term := c.ignore.Match(path); ignored {
		c.logger.WithFields(logrus.Fields{
			"path": path,
			"term": term,
		}).Debug("Ignored path")
		return false
	}
	return true
}

// IsSample reports whether the name looks like a sample clip
func (c *Classifier) IsSample(path string) bool {
	return sampleRegex.MatchString(strings.ToLower(path))
}

// IsDVD reports whether path belongs to a DVD or Blu-ray folder structure
func (c *Classifier) IsDVD(path string) bool {
	lower := strings.ToLower(path)
	for _, segment := range strings.Split(lower, string(filepath.Separator)) {
		if segment == "video_ts" || segment == "audio_ts" {
			return true
		}
	}
	for _, needle := range []string{"vts_", "video_ts", "audio_ts", "bdmv", "certificate"} {
		if strings.Contains(lower, needle) {
			return true
		}
	}
	return false
}

// IsTrailer requires both a trailer token and a trailer-sized file
func (c *Classifier) IsTrailer(path string, sizeMB float64) bool {
	return trailerRegex.MatchString(strings.ToLower(path)) && trailerBand.between(sizeMB)
}

// IsBackdrop requires an image with a fanart or backdrop token under 5 MB
func (c *Classifier) IsBackdrop(path string, sizeMB float64) bool {
	return hasExt(path, CategoryImage) && backdropRegex.MatchString(strings.ToLower(path)) && backdropBand.between(sizeMB)
}

// IsMovie requires a video container above the minimum movie size that is not a sample
func (c *Classifier) IsMovie(path string, sizeMB float64) bool {
	return hasExt(path, CategoryMovie) && movieBand.between(sizeMB) && !c.IsSample(path)
}

// Classify returns the category of a single file. A negative size means
// the size is unknown and only name rules apply.
func (c *Classifier) Classify(path string, sizeMB float64) Category {
	switch {
	case !c.Keep(path):
		return CategoryIgnored
	case c.IsSample(path):
		return CategorySample
	case c.IsDVD(path):
		return CategoryDVD
	case c.IsMovie(path, sizeMB):
		return CategoryMovie
	case c.IsTrailer(path, sizeMB):
		return CategoryTrailer
	case hasExt(path, CategoryMovieExtra):
		return CategoryMovieExtra
	case hasExt(path, CategorySubtitle):
		return CategorySubtitle
	case hasExt(path, CategorySubtitleExtra):
		return CategorySubtitleExtra
	case hasExt(path, CategoryNFO):
		return CategoryNFO
	case c.IsBackdrop(path, sizeMB):
		return CategoryBackdrop
	case hasExt(path, CategoryImage):
		return CategoryImage
	default:
		return CategoryLeftover
	}
}

// FilesOf returns the files matching category, keeping their order
func (c *Classifier) FilesOf(category Category, files []string) []string {
	var out []string
	for _, f := range files {
		if c.matches(category, f) {
			out = append(out, f)
		}
	}
	return out
}

func (c *Classifier) matches(category Category, path string) bool {
	switch category {
	case CategoryMovie:
		return c.IsMovie(path, c.Size(path))
	case CategoryDVD:
		return c.IsDVD(path)
	case CategoryTrailer:
		return c.IsTrailer(path, c.Size(path))
	case CategoryBackdrop:
		return c.IsBackdrop(path, c.Size(path))
	case CategorySample:
		return c.IsSample(path)
	default:
		return hasExt(path, category)
	}
}

func hasExt(path string, category Category) bool {
	ext := utils.Ext(path)
	for _, e := range extensions[category] {
		if e == ext {
			return true
		}
	}
	return false
}

func isIgnoredExt(path string) bool {
	ext := utils.Ext(path)
	for _, e := range ignoredExtensions {
		if e == ext {
			return true
		}
	}
	return false
}

func isIgnoreName(name string) bool {
	lower := strings.ToLower(name)
	for _, n := range ignoreNames {
		if n == lower {
			return true
		}
	}
	return false
}
