package ytdlp

import "github.com/datallboy/gotok/internal/domain"

const (
	outputTemplate = "%(title).100s.%(ext)s"
	MergeFormat    = "mp4"
	formatSeparate = "bestvideo*+bestaudio/best"
	formatCombined = "best"
)

// FormatSelector picks separate best streams when the watermark should be
// dropped, otherwise the single best combined stream.
func FormatSelector(removeWatermark bool) string {
	if removeWatermark {
		return formatSeparate
	}
	return formatCombined
}

// BuildArgs returns the yt-dlp argument list for one download.
func BuildArgs(req Request, ffmpegDir, outDir, tempDir string) []string {
	args := []string{
		"--ffmpeg-location", ffmpegDir,
		"--output", outputTemplate,
		"--paths", "home:" + outDir,
		"--paths", "temp:" + tempDir,
		"--newline",
		"--no-playlist",
		"--no-warnings",
		"--no-check-certificates",
		"--encoding", "utf-8",
		"--no-colors",
		"--progress-template", progressTemplate,
		"--print", filepathTemplate,
		"--format", FormatSelector(req.RemoveWatermark),
		"--merge-output-format", MergeFormat,
	}

	if req.Quality != "" && req.Quality != domain.QualityBest {
		args = append(args, "-S", "res:"+req.Quality)
	}

	return append(args, req.URL)
}
