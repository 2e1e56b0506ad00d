package quality

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrUnknownQuality is returned when an identifier matches no definition
var ErrUnknownQuality = errors.New("unknown quality")

// Tag is a group of words that must all be present in a name to match.
// In YAML a tag is either a scalar ("complete bluray") or a sequence.
type Tag []string

// UnmarshalYAML accepts both scalar and sequence forms
func (t *Tag) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		*t = strings.Fields(strings.ToLower(value.Value))
		return nil
	case yaml.SequenceNode:
		var words []string
		if err := value.Decode(&words); err != nil {
			return err
		}
		for i := range words {
			words[i] = strings.ToLower(words[i])
		}
		*t = words
		return nil
	default:
		return fmt.Errorf("invalid tag at line %d", value.Line)
	}
}

func (t Tag) key() string {
	return strings.Join(t, " ")
}

// Definition describes one quality tier and the vocabulary used to detect it
type Definition struct {
	Identifier   string   `yaml:"identifier" json:"identifier"`
	Label        string   `yaml:"label" json:"label"`
	HD           bool     `yaml:"hd" json:"hd"`
	Allow3D      bool     `yaml:"allow_3d" json:"allow_3d"`
	SizeMin      float64  `yaml:"size_min" json:"size_min"`
	SizeMax      float64  `yaml:"size_max" json:"size_max"`
	MedianSize   float64  `yaml:"median_size" json:"median_size"`
	Width        int      `yaml:"width" json:"width,omitempty"`
	Height       int      `yaml:"height" json:"height,omitempty"`
	Alternatives []Tag    `yaml:"alternatives" json:"alternatives,omitempty"`
	Tags         []Tag    `yaml:"tags" json:"tags,omitempty"`
	Ext          []string `yaml:"ext" json:"ext,omitempty"`
	// Allow lists lower tiers that a match on this definition should push down
	Allow []string `yaml:"allow" json:"allow,omitempty"`
}

// DefaultDefinitions returns the built-in quality table, best first
func DefaultDefinitions() []Definition {
	return []Definition{
		{
			Identifier: "2160p", Label: "2160p", HD: true, Allow3D: true,
			SizeMin: 10000, SizeMax: 650000, MedianSize: 20000, Width: 3840, Height: 2160,
			Tags: []Tag{{"x264"}, {"h264"}, {"2160"}, {"uhd"}},
			Ext:  []string{"mkv"},
		},
		{
			Identifier: "bd50", Label: "BR-Disk", HD: true, Allow3D: true,
			SizeMin: 20000, SizeMax: 60000, MedianSize: 40000,
			Alternatives: []Tag{{"bd25"}, {"br", "disk"}},
			Tags:         []Tag{{"bdmv"}, {"certificate"}, {"complete", "bluray"}, {"avc"}, {"mvc"}},
			Ext:          []string{"iso", "img"},
			Allow:        []string{"1080p"},
		},
		{
			Identifier: "1080p", Label: "1080p", HD: true, Allow3D: true,
			SizeMin: 4000, SizeMax: 20000, MedianSize: 10000, Width: 1920, Height: 1080,
			Tags: []Tag{{"m2ts"}, {"x264"}, {"h264"}, {"1080"}},
			Ext:  []string{"mkv", "m2ts", "ts"},
		},
		{
			Identifier: "720p", Label: "720p", HD: true, Allow3D: true,
			SizeMin: 3000, SizeMax: 10000, MedianSize: 5500, Width: 1280, Height: 720,
			Tags: []Tag{{"x264"}, {"h264"}, {"720"}},
			Ext:  []string{"mkv", "ts"},
		},
		{
			Identifier: "brrip", Label: "BR-Rip", HD: true, Allow3D: true,
			SizeMin: 700, SizeMax: 7000, MedianSize: 2000,
			Alternatives: []Tag{{"bdrip"}, {"br", "rip"}, {"hdtv"}, {"hdrip"}},
			Tags:         []Tag{{"webdl"}, {"web", "dl"}},
			Ext:          []string{"mp4", "avi"},
		},
		{
			Identifier: "dvdr", Label: "DVD-R",
			SizeMin: 3000, SizeMax: 10000, MedianSize: 4500,
			Alternatives: []Tag{{"br2dvd"}, {"dvd", "r"}},
			Tags:         []Tag{{"pal"}, {"ntsc"}, {"video_ts"}, {"audio_ts"}, {"dvd", "r"}, {"dvd9"}},
			Ext:          []string{"iso", "img", "vob"},
		},
		{
			Identifier: "dvdrip", Label: "DVD-Rip",
			SizeMin: 600, SizeMax: 2400, MedianSize: 1500, Width: 720,
			Alternatives: []Tag{{"dvd", "rip"}},
			Tags:         []Tag{{"dvd", "rip"}, {"dvd", "xvid"}, {"dvd", "divx"}},
			Ext:          []string{"avi"},
		},
		{
			Identifier: "scr", Label: "Screener",
			SizeMin: 600, SizeMax: 1600, MedianSize: 700,
			Alternatives: []Tag{{"screener"}, {"dvdscr"}, {"ppvrip"}, {"dvdscreener"}, {"hdscr"}, {"webrip"}, {"web", "rip"}},
		},
		{
			Identifier: "r5", Label: "R5",
			SizeMin: 600, SizeMax: 1000, MedianSize: 700,
			Alternatives: []Tag{{"r6"}},
		},
		{
			Identifier: "tc", Label: "TeleCine",
			SizeMin: 600, SizeMax: 1000, MedianSize: 700,
			Alternatives: []Tag{{"telecine"}},
		},
		{
			Identifier: "ts", Label: "TeleSync",
			SizeMin: 600, SizeMax: 1000, MedianSize: 700,
			Alternatives: []Tag{{"telesync"}, {"hdts"}},
		},
		{
			Identifier: "cam", Label: "Cam",
			SizeMin: 600, SizeMax: 1000, MedianSize: 700,
			Alternatives: []Tag{{"camrip"}, {"hdcam"}},
		},
	}
}

// LoadDefinitions reads a YAML quality table from path.
// A missing file yields the built-in defaults.
func LoadDefinitions(path string) ([]Definition, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultDefinitions(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read quality definitions: %w", err)
	}

	var file struct {
		Qualities []Definition `yaml:"qualities"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse quality definitions: %w", err)
	}
	if len(file.Qualities) == 0 {
		return nil, fmt.Errorf("no qualities defined in %s", path)
	}

	seen := make(map[string]bool, len(file.Qualities))
	for _, def := range file.Qualities {
		if def.Identifier == "" {
			return nil, fmt.Errorf("quality without identifier in %s", path)
		}
		if seen[def.Identifier] {
			return nil, fmt.Errorf("duplicate quality %q in %s", def.Identifier, path)
		}
		seen[def.Identifier] = true
	}

	return file.Qualities, nil
}
