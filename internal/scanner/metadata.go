package scanner

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync/atomic"

	"github.com/amaumene/gomovarr/internal/models"
	"github.com/amaumene/gomovarr/internal/quality"
	"github.com/amaumene/gomovarr/internal/utils"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// QualityOracle guesses and looks up quality definitions
type QualityOracle interface {
	Guess(files []string, sizeMB float64, hints quality.Hints) *quality.Result
	Single(identifier string) (*quality.Definition, error)
}

var (
	videoCodecRegex = regexp.MustCompile(`(?i)[^A-Z0-9](x264|H264|x265|H265|DivX|Xvid)[^A-Z0-9]`)
	audioCodecRegex = regexp.MustCompile(`(?i)[^A-Z0-9](DTS|AC3|AC3D|MP3)[^A-Z0-9]`)
	groupTagRegex   = regexp.MustCompile(`(?i)-([A-Z0-9]+)[./]`)
	idxLangRegex    = regexp.MustCompile(`\nid: (\w+)`)
)

type resolution struct {
	tag           string
	width, height int
	aspect        float64
}

var resolutions = []resolution{
	{"2160p", 3840, 2160, 1.78},
	{"1080p", 1920, 1080, 1.78},
	{"1080i", 1920, 1080, 1.78},
	{"720p", 1280, 720, 1.78},
	{"720i", 1280, 720, 1.78},
	{"480p", 640, 480, 1.33},
	{"480i", 640, 480, 1.33},
}

var sourceMedia = []struct {
	name    string
	aliases []string
}{
	{"Blu-ray", []string{"bluray", "blu-ray", "brrip", "br-rip"}},
	{"HD DVD", []string{"hddvd", "hd-dvd"}},
	{"DVD", []string{"dvd"}},
	{"HDTV", []string{"hdtv"}},
}

var threeDTypes = []struct {
	name string
	tags [][]string
}{
	{"Half SBS", [][]string{{"half", "sbs"}, {"h", "sbs"}, {"hsbs"}}},
	{"Full SBS", [][]string{{"full", "sbs"}, {"f", "sbs"}, {"fsbs"}}},
	{"SBS", [][]string{{"sbs"}}},
	{"Half OU", [][]string{{"half", "ou"}, {"h", "ou"}, {"half", "tab"}, {"h", "tab"}, {"htab"}, {"hou"}}},
	{"Full OU", [][]string{{"full", "ou"}, {"f", "ou"}, {"full", "tab"}, {"f", "tab"}, {"ftab"}, {"fou"}}},
	{"OU", [][]string{{"ou"}, {"tab"}}},
	{"Frame Packed", [][]string{{"mvc"}, {"complete", "bluray"}}},
	{"3D", [][]string{{"3d"}}},
}

// MetadataExtractor describes the movie files of a group
type MetadataExtractor struct {
	classifier *Classifier
	prober     Prober
	qualities  QualityOracle
	// active counts running background workers, read by the scanner's backpressure loop
	active *atomic.Int64
	logger *logrus.Logger
}

// NewMetadataExtractor creates an extractor; prober may be nil to rely on
// file names alone
func NewMetadataExtractor(classifier *Classifier, prober Prober, qualities QualityOracle, logger *logrus.Logger) *MetadataExtractor {
	return &MetadataExtractor{
		classifier: classifier,
		prober:     prober,
		qualities:  qualities,
		active:     &atomic.Int64{},
		logger:     logger,
	}
}

// ActiveWorkers returns the number of background workers still running
func (e *MetadataExtractor) ActiveWorkers() int64 {
	return e.active.Load()
}

// Extract fills in the group's metadata. A snatched download's quality wins
// over the detected one.
func (e *MetadataExtractor) Extract(ctx context.Context, group *Group, download *models.ReleaseDownload) Metadata {
	var meta Metadata
	files := group.MovieFiles()

	probed := false
	for _, f := range files {
		size := e.classifier.Size(f)
		if !movieBand.between(size) {
			continue
		}
		if !probed {
			probed = true
			e.describe(ctx, f, &meta)
		}
		meta.SizeMB += size
	}

	hints := quality.Hints{Width: meta.Width, Height: meta.Height, Titles: meta.Titles}
	detected := e.qualities.Guess(files, meta.SizeMB, hints)

	if download != nil && download.Quality != "" {
		if def, err := e.qualities.Single(download.Quality); err == nil {
			meta.Quality = &quality.Result{Definition: *def, Is3D: download.Is3D}
			if detected != nil && detected.Identifier != def.Identifier {
				e.logger.WithFields(logrus.Fields{
					"file":     firstOf(files),
					"snatched": def.Identifier,
					"detected": detected.Identifier,
				}).Info("Different quality snatched than detected, assuming snatched quality is correct")
			}
			if detected != nil && detected.Is3D != download.Is3D {
				e.logger.WithFields(logrus.Fields{
					"file":     firstOf(files),
					"snatched": download.Is3D,
					"detected": detected.Is3D,
				}).Info("Different 3D snatched than detected, assuming snatched 3D is correct")
			}
		}
	}

	if meta.Quality == nil {
		meta.Quality = detected
	}
	if meta.Quality == nil {
		fallback := "dvdrip"
		if group.IsDVD {
			fallback = "dvdr"
		}
		if def, err := e.qualities.Single(fallback); err == nil {
			meta.Quality = &quality.Result{Definition: *def}
		}
	}

	meta.QualityType = "SD"
	if meta.Width >= 1280 || (meta.Quality != nil && meta.Quality.HD) {
		meta.QualityType = "HD"
	}

	if len(files) > 0 {
		filename := cpTagRegex.ReplaceAllString(files[0], "")
		meta.Group = releaseGroup(strings.TrimPrefix(filename, group.Root))
		meta.Source = sourceMediumOf(filename)
		if meta.Is3D() {
			meta.ThreeDType = threeDTypeOf(filename)
		}
	}

	return meta
}

// describe reads codecs and resolution, from the container when possible
func (e *MetadataExtractor) describe(ctx context.Context, path string, meta *Metadata) {
	var probe *ProbeResult
	if e.prober != nil {
		var err error
		probe, err = e.prober.Probe(ctx, path)
		if err != nil {
			e.logger.WithError(err).WithField("file", path).Debug("Failed to probe container, using file name")
			probe = nil
		}
	}

	meta.VideoCodec = codecOf(videoCodecRegex, path)
	meta.AudioCodec = codecOf(audioCodecRegex, path)
	meta.AudioChannels = 2.0

	if probe != nil {
		for _, t := range probe.Titles() {
			if utils.FindYear(t) != "" {
				meta.Titles = append(meta.Titles, t)
			}
		}
		if v := probe.VideoCodec(); v != "" {
			meta.VideoCodec = v
		}
		if a := probe.AudioCodec(); a != "" {
			meta.AudioCodec = a
		}
		if ch := probe.AudioChannels(); ch > 0 {
			meta.AudioChannels = ch
		}
		if w, h := probe.Resolution(); w > 0 && h > 0 {
			meta.Width, meta.Height = w, h
			meta.Aspect = math.Round(float64(w)/float64(h)*100) / 100
			return
		}
	}

	res := resolutionOf(path)
	meta.Width, meta.Height, meta.Aspect = res.width, res.height, res.aspect
}

// SubtitleLanguages reads the languages of idx/sub pairs in parallel
func (e *MetadataExtractor) SubtitleLanguages(ctx context.Context, group *Group) map[string][]string {
	extras := group.Files[CategorySubtitleExtra]
	results := make([][]string, len(extras))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, extra := range extras {
		i, extra := i, extra
		g.Go(func() error {
			e.active.Add(1)
			defer e.active.Add(-1)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			langs, err := idxLanguages(extra)
			if err != nil {
				e.logger.WithError(err).WithField("file", extra).Error("Failed parsing subtitle idx")
				return nil
			}
			results[i] = langs
			return nil
		})
	}
	_ = g.Wait()

	languages := make(map[string][]string)
	for i, extra := range extras {
		if len(results[i]) == 0 {
			continue
		}
		sub := utils.TrimExt(extra) + ".sub"
		if _, err := os.Stat(sub); err == nil {
			languages[sub] = results[i]
		}
	}
	return languages
}

func idxLanguages(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var langs []string
	for _, m := range idxLangRegex.FindAllStringSubmatch(string(data), -1) {
		langs = append(langs, m[1])
	}
	return langs, nil
}

func codecOf(re *regexp.Regexp, path string) string {
	if m := re.FindStringSubmatch(path); m != nil {
		return m[1]
	}
	return ""
}

func resolutionOf(path string) resolution {
	lower := strings.ToLower(path)
	for _, r := range resolutions {
		if strings.Contains(lower, r.tag) {
			return r
		}
	}
	return resolution{aspect: 1}
}

func releaseGroup(path string) string {
	matches := groupTagRegex.FindAllStringSubmatch(filepath.ToSlash(path), -1)
	if len(matches) == 0 {
		return ""
	}
	return matches[len(matches)-1][1]
}

func sourceMediumOf(path string) string {
	lower := strings.ToLower(path)
	for _, media := range sourceMedia {
		for _, alias := range media.aliases {
			if strings.Contains(lower, alias) {
				return media.name
			}
		}
	}
	return ""
}

func threeDTypeOf(path string) string {
	words := nonWordRegex.Split(strings.ToLower(path), -1)
	joined := strings.Join(words, ".")
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}

	for _, t := range threeDTypes {
		for _, tag := range t.tags {
			if len(tag) > 1 && strings.Contains(joined, strings.Join(tag, ".")) {
				return t.name
			}
			if len(tag) == 1 && set[tag[0]] {
				return t.name
			}
		}
	}
	return ""
}

func firstOf(files []string) string {
	if len(files) == 0 {
		return ""
	}
	return files[0]
}
