package platform

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

const (
	BinYTDLP   = "yt-dlp"
	BinFFmpeg  = "ffmpeg"
	BinFFprobe = "ffprobe"
)

// RequiredBinaries lists the external tools every download needs.
var RequiredBinaries = []string{BinYTDLP, BinFFmpeg, BinFFprobe}

// Binaries holds resolved absolute paths of the required tools.
type Binaries struct {
	YTDLP   string
	FFmpeg  string
	FFprobe string
}

// FFmpegLocation is the value yt-dlp expects for --ffmpeg-location.
func (b Binaries) FFmpegLocation() string {
	return filepath.Dir(b.FFmpeg)
}

// MissingBinariesError names every required tool that could not be found.
type MissingBinariesError struct {
	Dir     string
	Missing []string
}

func (e *MissingBinariesError) Error() string {
	if e.Dir != "" {
		return fmt.Sprintf("Missing required files in bin directory: %s", strings.Join(e.Missing, ", "))
	}
	return fmt.Sprintf("required dependencies not found in PATH: %s", strings.Join(e.Missing, ", "))
}

func exeName(name string) string {
	if runtime.GOOS == "windows" {
		return name + ".exe"
	}
	return name
}

// LookupBinary finds one tool inside binDir, or on PATH when binDir is empty.
func LookupBinary(binDir, bin string) (string, error) {
	name := exeName(bin)
	if binDir != "" {
		p := filepath.Join(binDir, name)
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p, nil
		}
		return "", &MissingBinariesError{Dir: binDir, Missing: []string{name}}
	}
	p, err := exec.LookPath(name)
	if err != nil {
		return "", &MissingBinariesError{Missing: []string{name}}
	}
	return p, nil
}

// ResolveBinaries locates yt-dlp, ffmpeg and ffprobe. Every missing tool is
// named in the returned *MissingBinariesError.
func ResolveBinaries(binDir string) (Binaries, error) {
	found := make(map[string]string, len(RequiredBinaries))
	var missing []string

	for _, bin := range RequiredBinaries {
		p, err := LookupBinary(binDir, bin)
		if err != nil {
			missing = append(missing, exeName(bin))
			continue
		}
		found[bin] = p
	}

	if len(missing) > 0 {
		return Binaries{}, &MissingBinariesError{Dir: binDir, Missing: missing}
	}

	return Binaries{
		YTDLP:   found[BinYTDLP],
		FFmpeg:  found[BinFFmpeg],
		FFprobe: found[BinFFprobe],
	}, nil
}

// ValidateDependencies is the startup check used by the CLI.
func ValidateDependencies(binDir string) error {
	_, err := ResolveBinaries(binDir)
	return err
}
