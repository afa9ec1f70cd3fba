package ytdlp

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/datallboy/gotok/internal/domain"
	"github.com/datallboy/gotok/internal/platform"
)

// FetchTitle asks yt-dlp for the video title without downloading. Any
// failure yields the generic fallback title.
func (c *CLI) FetchTitle(ctx context.Context, bin, url string) string {
	ctx, cancel := context.WithTimeout(ctx, c.opts.TitleTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, bin, "--get-title", "--skip-download", "--no-warnings", url).Output()
	if err != nil {
		c.log.Debug("ytdlp: title lookup for %s failed: %v", url, err)
		return domain.TitleFallback
	}
	title, _, _ := strings.Cut(strings.TrimSpace(string(out)), "\n")
	if title = strings.TrimSpace(title); title == "" {
		return domain.TitleFallback
	}
	return title
}

// SelfUpdate runs "yt-dlp -U" and returns a one-line summary of the outcome.
func (c *CLI) SelfUpdate(ctx context.Context) (string, error) {
	bin, err := platform.LookupBinary(c.opts.BinDir, platform.BinYTDLP)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, c.opts.UpdateTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, bin, "-U").CombinedOutput()
	text := strings.TrimSpace(string(out))
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return "", fmt.Errorf("yt-dlp update timed out after %s", c.opts.UpdateTimeout)
	}
	if err != nil {
		return "", fmt.Errorf("yt-dlp update failed: %w\n%s", err, lastLines(text, tailReport))
	}
	return summarizeUpdate(text), nil
}

func summarizeUpdate(out string) string {
	lower := strings.ToLower(out)
	switch {
	case strings.Contains(lower, "up to date"):
		return "yt-dlp is already up to date"
	case strings.Contains(lower, "updated yt-dlp"):
		return "yt-dlp updated successfully"
	}
	if out == "" {
		return "yt-dlp update finished"
	}
	return lastLines(out, 1)
}

func lastLines(s string, n int) string {
	lines := strings.Split(s, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
