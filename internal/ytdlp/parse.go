package ytdlp

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	ProgressTag = "GOTOK_PROGRESS:"
	FilepathTag = "GOTOK_FILEPATH:"

	progressTemplate = "download:" + ProgressTag +
		"%(progress._percent_str)s|%(progress._total_bytes_str)s|%(progress._speed_str)s|%(progress._eta_str)s"
	filepathTemplate = "after_move:" + FilepathTag + "%(filepath)s"
)

type LineKind int

const (
	LineOther LineKind = iota
	LineProgress
	LineFilepath
	LineDestination
	LineAlreadyDownloaded
	LineMerging
)

// Progress is one parsed progress record. Empty strings mean the field was
// missing or a placeholder.
type Progress struct {
	Percent float64
	Total   string
	Speed   string
	ETA     string
}

// Detail renders the record as "12.5% | 4.20MiB | 1.10MiB/s | ETA: 00:03".
func (p Progress) Detail() string {
	bits := []string{fmt.Sprintf("%.1f%%", p.Percent)}
	if p.Total != "" {
		bits = append(bits, p.Total)
	}
	if p.Speed != "" {
		bits = append(bits, p.Speed)
	}
	if p.ETA != "" {
		bits = append(bits, "ETA: "+p.ETA)
	}
	return strings.Join(bits, " | ")
}

// Line is the structured form of one output line.
type Line struct {
	Kind     LineKind
	Progress Progress
	Path     string
}

// ParseLine classifies one trimmed line of yt-dlp output.
func ParseLine(line string) Line {
	if rest, ok := strings.CutPrefix(line, FilepathTag); ok {
		return Line{Kind: LineFilepath, Path: strings.TrimSpace(rest)}
	}

	if rest, ok := strings.CutPrefix(line, ProgressTag); ok {
		p, ok := parseProgress(rest)
		if !ok {
			return Line{Kind: LineOther}
		}
		return Line{Kind: LineProgress, Progress: p}
	}

	if strings.Contains(line, "[download]") {
		if _, dest, ok := strings.Cut(line, "Destination:"); ok {
			return Line{Kind: LineDestination, Path: strings.TrimSpace(dest)}
		}
		if strings.Contains(line, "has already been downloaded") {
			return Line{Kind: LineAlreadyDownloaded}
		}
	}

	if strings.Contains(line, "[Merger]") || strings.Contains(line, "Merging formats into") {
		return Line{Kind: LineMerging}
	}

	return Line{Kind: LineOther}
}

func parseProgress(payload string) (Progress, bool) {
	parts := strings.Split(strings.TrimSpace(payload), "|")
	pct, err := strconv.ParseFloat(strings.TrimSpace(strings.ReplaceAll(parts[0], "%", "")), 64)
	if err != nil {
		return Progress{}, false
	}
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}

	p := Progress{Percent: pct}
	if len(parts) > 1 {
		p.Total = field(parts[1])
	}
	if len(parts) > 2 {
		p.Speed = field(parts[2])
	}
	if len(parts) > 3 {
		p.ETA = field(parts[3])
	}
	return p, true
}

func field(s string) string {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", "~", "unknown", "n/a", "na", "none":
		return ""
	}
	return s
}
