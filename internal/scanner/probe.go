package scanner

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
)

// Prober reads container metadata from a media file
type Prober interface {
	Probe(ctx context.Context, path string) (*ProbeResult, error)
}

// ProbeResult is the subset of ffprobe's JSON output the scanner reads
type ProbeResult struct {
	Format  ProbeFormat   `json:"format"`
	Streams []ProbeStream `json:"streams"`
}

// ProbeFormat describes the container
type ProbeFormat struct {
	Filename string            `json:"filename"`
	Tags     map[string]string `json:"tags"`
}

// ProbeStream describes one audio, video or subtitle stream
type ProbeStream struct {
	CodecType string            `json:"codec_type"`
	CodecName string            `json:"codec_name"`
	Width     int               `json:"width"`
	Height    int               `json:"height"`
	Channels  int               `json:"channels"`
	Tags      map[string]string `json:"tags"`
}

// FFProbe runs the ffprobe binary
type FFProbe struct {
	Path string
}

// NewFFProbe creates a prober for the ffprobe binary at path
func NewFFProbe(path string) *FFProbe {
	return &FFProbe{Path: path}
}

// Probe runs ffprobe on path and decodes its JSON report
func (f *FFProbe) Probe(ctx context.Context, path string) (*ProbeResult, error) {
	cmd := exec.CommandContext(ctx, f.Path, "-v", "quiet", "-print_format", "json", "-show_format", "-show_streams", path)
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}

	var result ProbeResult
	if err := json.Unmarshal(output, &result); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}
	return &result, nil
}

func (r *ProbeResult) stream(codecType string) *ProbeStream {
	for i := range r.Streams {
		if r.Streams[i].CodecType == codecType {
			return &r.Streams[i]
		}
	}
	return nil
}

// VideoCodec returns the first video codec in release-name spelling
func (r *ProbeResult) VideoCodec() string {
	s := r.stream("video")
	if s == nil {
		return ""
	}
	switch strings.ToLower(s.CodecName) {
	case "h264", "avc1":
		return "H264"
	case "hevc", "h265":
		return "x265"
	default:
		return s.CodecName
	}
}

var audioCodecNames = map[string]string{
	"ac3":    "AC3",
	"eac3":   "AC3",
	"dts":    "DTS",
	"mp3":    "MP3",
	"mp2":    "MP2",
	"aac":    "AAC",
	"flac":   "FLAC",
	"vorbis": "Vorbis",
	"tta":    "TTA1",
}

// AudioCodec returns the first audio codec in release-name spelling
func (r *ProbeResult) AudioCodec() string {
	s := r.stream("audio")
	if s == nil {
		return ""
	}
	name := strings.ToLower(s.CodecName)
	if mapped, ok := audioCodecNames[name]; ok {
		return mapped
	}
	if strings.HasPrefix(name, "pcm") {
		return "PCM"
	}
	return s.CodecName
}

// AudioChannels returns the channel count of the first audio stream
func (r *ProbeResult) AudioChannels() float64 {
	if s := r.stream("audio"); s != nil && s.Channels > 0 {
		return float64(s.Channels)
	}
	return 0
}

// Resolution returns the size of the first video stream
func (r *ProbeResult) Resolution() (int, int) {
	if s := r.stream("video"); s != nil {
		return s.Width, s.Height
	}
	return 0, 0
}

// Titles returns the embedded container and video titles
func (r *ProbeResult) Titles() []string {
	var titles []string
	if t := r.Format.Tags["title"]; t != "" {
		titles = append(titles, t)
	}
	for _, s := range r.Streams {
		if s.CodecType != "video" {
			continue
		}
		if t := s.Tags["title"]; t != "" {
			titles = append(titles, t)
		}
	}
	return titles
}
