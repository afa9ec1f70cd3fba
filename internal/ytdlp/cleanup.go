package ytdlp

import (
	"os"
	"path/filepath"
	"strings"
	"unicode"
)

var partialSuffixes = []string{".part", ".ytdl", ".temp"}

// SanitizeTitle keeps letters, digits, spaces and "._-".
func SanitizeTitle(title string) string {
	var b strings.Builder
	for _, r := range title {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || strings.ContainsRune(" ._-", r) {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

// CleanupPartials removes leftovers of an unfinished download from every dir:
// the captured filename and its .part/.ytdl/.temp siblings, split format
// fragments, and any partial file whose name contains the title. It returns
// the paths it removed. Failures are ignored.
func CleanupPartials(dirs []string, title, filename string) []string {
	name := filename
	if filename != "" && filepath.IsAbs(filename) {
		dirs = append([]string{filepath.Dir(filename)}, dirs...)
		name = filepath.Base(filename)
	}

	var removed []string
	seen := make(map[string]bool, len(dirs))
	for _, dir := range dirs {
		if dir == "" || seen[dir] {
			continue
		}
		seen[dir] = true
		removed = append(removed, cleanupDir(dir, title, name)...)
	}
	return removed
}

func cleanupDir(dir, title, name string) []string {
	var removed []string
	remove := func(p string) {
		if err := os.Remove(p); err == nil {
			removed = append(removed, p)
		}
	}

	if name != "" {
		base := strings.TrimSuffix(name, filepath.Ext(name))
		candidates := []string{
			name,
			name + ".part",
			name + ".ytdl",
			name + ".temp",
			base + ".mp4.part",
			base + ".f0.mp4",
			base + ".f1.mp4",
			base + ".f2.mp4",
		}
		for _, c := range candidates {
			remove(filepath.Join(dir, c))
		}
	}

	safe := strings.ToLower(SanitizeTitle(title))
	if safe == "" {
		return removed
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return removed
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		n := e.Name()
		if !strings.Contains(strings.ToLower(n), safe) || !hasPartialSuffix(n) {
			continue
		}
		remove(filepath.Join(dir, n))
	}
	return removed
}

func hasPartialSuffix(name string) bool {
	for _, s := range partialSuffixes {
		if strings.HasSuffix(name, s) {
			return true
		}
	}
	return false
}
