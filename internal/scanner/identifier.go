package scanner

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/amaumene/gomovarr/internal/utils"
)

// releaseTagVocabulary is every tag that never belongs to a movie title
var releaseTagVocabulary = []string{
	`3d`, `hsbs`, `sbs`, `half.sbs`, `full.sbs`, `ou`, `half.ou`, `full.ou`, `extended`, `extended.cut`,
	`directors.cut`, `french`, `fr`, `swedisch`, `sw`, `danish`, `dutch`, `nl`, `swesub`, `subs`, `spanish`,
	`german`, `ac3`, `dts`, `custom`, `dc`, `divx`, `divx5`, `dsr`, `dsrip`, `dvd`, `dvdr`, `dvdrip`,
	`dvdscr`, `dvdscreener`, `screener`, `dvdivx`, `cam`, `fragment`, `fs`, `hdtv`, `hdrip`, `hdtvrip`,
	`webdl`, `web.dl`, `webrip`, `web.rip`, `internal`, `limited`, `multisubs`, `ntsc`, `ogg`, `ogm`, `pal`,
	`pdtv`, `proper`, `repack`, `rerip`, `retail`, `r3`, `r5`, `bd5`, `se`, `svcd`, `swedish`, `read.nfo`,
	`nfofix`, `unrated`, `ws`, `telesync`, `ts`, `telecine`, `tc`, `brrip`, `bdrip`, `video_ts`, `audio_ts`,
	`480p`, `480i`, `576p`, `576i`, `720p`, `720i`, `1080p`, `1080i`, `hrhd`, `hrhdtv`, `hddvd`, `bluray`,
	`x264`, `h264`, `x265`, `h265`, `xvid`, `xvidvd`, `xxx`, `www.www`, `hc`, `\[.*\]`,
}

const tagDelimiters = `[ _,.()\[\]-]`

// cleanRegex matches a release tag with its leading delimiter and the
// delimiter that follows it. The trailing delimiter is left in place by
// replaceReleaseTags so that adjacent tags both match.
var cleanRegex = regexp.MustCompile(`(^|` + tagDelimiters + `)(` + strings.Join(releaseTagVocabulary, "|") + `)(` + tagDelimiters + `|$)`)

var multipartRegexes = compileAll([]string{
	`[ _.-]+cd[ _.-]*([0-9a-d]+)`,
	`[ _.-]+dvd[ _.-]*([0-9a-d]+)`,
	`[ _.-]+part[ _.-]*([0-9a-d]+)`,
	`[ _.-]+dis[ck][ _.-]*([0-9a-d]+)`,
	`cd[ _.-]*([0-9a-d]+)$`,
	`dvd[ _.-]*([0-9a-d]+)$`,
	`part[ _.-]*([0-9a-d]+)$`,
	`dis[ck][ _.-]*([0-9a-d]+)$`,
	`()[ _.-]+([0-9]*[abcd]+)(\.....?)$`,
	`([a-z])([0-9]+)(\.....?)$`,
	`()([ab])(\.....?)$`,
})

// discFolders hold the files of DVD and Blu-ray structures
var discFolders = map[string]bool{
	"video_ts":    true,
	"audio_ts":    true,
	"bdmv":        true,
	"certificate": true,
}

// DiscRoot returns the folder holding the disc structure of path, that is
// the parent of its VIDEO_TS, AUDIO_TS, BDMV or CERTIFICATE folder. Paths
// outside a disc structure return their own folder.
func DiscRoot(path string) string {
	dir := filepath.Dir(path)
	for d := dir; d != filepath.Dir(d); d = filepath.Dir(d) {
		if discFolders[strings.ToLower(filepath.Base(d))] {
			return filepath.Dir(d)
		}
	}
	return dir
}

var cpTagRegex = regexp.MustCompile(`\.cp\((tt[0-9]+),?\s?([A-Za-z0-9]+)?\)`)

func compileAll(patterns []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(p)
	}
	return out
}

// replaceReleaseTags substitutes every release tag in s with repl
func replaceReleaseTags(s, repl string) string {
	var b strings.Builder
	for {
		loc := cleanRegex.FindStringSubmatchIndex(s)
		if loc == nil {
			b.WriteString(s)
			break
		}
		b.WriteString(s[:loc[0]])
		b.WriteString(repl)
		// resume at the trailing delimiter, it may open the next tag
		s = s[loc[6]:]
		if s == "" {
			break
		}
	}
	return b.String()
}

// IdentifierBuilder derives grouping keys from file paths
type IdentifierBuilder struct{}

// NewIdentifierBuilder creates an identifier builder
func NewIdentifierBuilder() *IdentifierBuilder {
	return &IdentifierBuilder{}
}

// Build returns the grouping key of path relative to root. With
// excludeFilename the file name is dropped and the folders name the release,
// as for VIDEO_TS structures.
func (b *IdentifierBuilder) Build(path, root string, excludeFilename bool) string {
	rel := path
	if root != "" {
		rel = strings.Replace(rel, root, "", 1)
	}
	rel = strings.TrimLeft(rel, string(filepath.Separator))
	identifier := utils.TrimExt(rel)

	if excludeFilename {
		identifier = identifier[:len(identifier)-len(filepath.Base(identifier))]
	}

	identifier = strings.ToLower(identifier)

	// The parent folder names the release when it is strictly longer than the file name
	var segments []string
	for _, s := range strings.Split(identifier, string(filepath.Separator)) {
		s = strings.TrimSpace(s)
		if excludeFilename && discFolders[s] && len(segments) > 0 {
			break
		}
		if s != "" {
			segments = append(segments, s)
		}
	}
	if n := len(segments); n > 1 && len(segments[n-2]) > len(segments[n-1]) {
		identifier = segments[n-2]
	} else if n > 0 {
		identifier = segments[n-1]
	}

	identifier = b.RemoveMultipart(identifier)
	identifier = b.RemoveCPTag(identifier)
	identifier = utils.SimplifyString(identifier)

	year := utils.FindYear(rel)

	identifier = strings.Trim(replaceReleaseTags(identifier, "::"), ":")

	if year != "" && !strings.HasPrefix(identifier, year) {
		splitBy := year
		if strings.Contains(identifier, ":::") {
			splitBy = ":::"
		}
		identifier = strings.TrimSpace(strings.SplitN(identifier, splitBy, 2)[0]) + " " + year
	} else {
		identifier = strings.SplitN(identifier, "::", 2)[0]
	}

	return utils.SimplifyString(strings.Join(utils.RemoveDuplicates(strings.Fields(identifier)), " "))
}

// RemoveMultipart strips cd/part/disc suffixes
func (b *IdentifierBuilder) RemoveMultipart(name string) string {
	for _, re := range multipartRegexes {
		name = re.ReplaceAllString(name, "")
	}
	return name
}

// PartNumber returns the cd/part index of name, "1" when there is none
func (b *IdentifierBuilder) PartNumber(name string) string {
	lower := strings.ToLower(name)
	for _, re := range multipartRegexes {
		m := re.FindStringSubmatch(lower)
		if m == nil {
			continue
		}
		for i := len(m) - 1; i > 0; i-- {
			if m[i] != "" && !strings.HasPrefix(m[i], ".") {
				return m[i]
			}
		}
	}
	return "1"
}

// CPTag returns the IMDb id embedded as .cp(ttXXXXXXX) in name
func (b *IdentifierBuilder) CPTag(name string) string {
	m := cpTagRegex.FindStringSubmatch(strings.ToLower(name))
	if m == nil {
		return ""
	}
	return m[1]
}

// RemoveCPTag strips an embedded .cp(...) tag
func (b *IdentifierBuilder) RemoveCPTag(name string) string {
	return strings.TrimSpace(cpTagRegex.ReplaceAllString(name, ""))
}
