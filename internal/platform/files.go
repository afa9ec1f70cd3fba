package platform

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
)

var linuxFileManagers = []string{"nautilus", "dolphin", "thunar", "nemo", "pcmanfm"}

// Opener reveals files and folders in the desktop file manager.
type Opener struct{}

// RevealFile opens the file manager with path selected where the OS supports
// selection, otherwise it opens the containing directory.
func (Opener) RevealFile(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to get absolute path: %w", err)
	}
	if _, err := os.Stat(abs); err != nil {
		return fmt.Errorf("file does not exist: %w", err)
	}

	switch runtime.GOOS {
	case "darwin":
		return exec.Command("open", "-R", abs).Run()
	case "windows":
		// explorer exits 1 even on success.
		_ = exec.Command("explorer", "/select,", abs).Run()
		return nil
	default:
		return openDirLinux(filepath.Dir(abs))
	}
}

// OpenDir opens dir in the file manager.
func (Opener) OpenDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("directory does not exist: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}

	switch runtime.GOOS {
	case "darwin":
		return exec.Command("open", dir).Run()
	case "windows":
		_ = exec.Command("explorer", dir).Run()
		return nil
	default:
		return openDirLinux(dir)
	}
}

func openDirLinux(dir string) error {
	if err := exec.Command("xdg-open", dir).Run(); err == nil {
		return nil
	}
	for _, fm := range linuxFileManagers {
		if _, err := exec.LookPath(fm); err == nil {
			return exec.Command(fm, dir).Run()
		}
	}
	return errors.New("no suitable file manager found")
}
