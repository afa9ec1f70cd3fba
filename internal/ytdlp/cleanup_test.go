package ytdlp

import (
	"os"
	"path/filepath"
	"testing"
)

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestCleanupPartials(t *testing.T) {
	out := t.TempDir()
	tmp := t.TempDir()

	touch(t, filepath.Join(out, "Cat Video.mp4.part"))
	touch(t, filepath.Join(out, "Cat Video.f1.mp4"))
	touch(t, filepath.Join(out, "Cat Video.mp4.ytdl"))
	touch(t, filepath.Join(tmp, "Cat Video.f0.mp4.part"))
	touch(t, filepath.Join(out, "Other.mp4"))
	touch(t, filepath.Join(out, "Cat Video finished.mp4"))

	removed := CleanupPartials([]string{out, tmp}, "Cat Video!", filepath.Join(out, "Cat Video.mp4"))
	if len(removed) != 4 {
		t.Fatalf("removed %d files: %v", len(removed), removed)
	}

	for _, keep := range []string{"Other.mp4", "Cat Video finished.mp4"} {
		if _, err := os.Stat(filepath.Join(out, keep)); err != nil {
			t.Fatalf("%s should survive: %v", keep, err)
		}
	}
}

func TestSanitizeTitle(t *testing.T) {
	if got := SanitizeTitle(` a/b:"c"? `); got != "abc" {
		t.Fatalf("SanitizeTitle = %q", got)
	}
}
