package loopback

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
)

// Launcher opens url for the user.
type Launcher func(url string) error

// OpenBrowser opens url in the default web browser on Linux, macOS and
// Windows. It fails when no launcher is installed or, on Linux, when there is
// no graphical session to show the browser in.
func OpenBrowser(url string) error {
	var name string
	var args []string

	switch runtime.GOOS {
	case "linux", "freebsd", "openbsd", "netbsd":
		if os.Getenv("DISPLAY") == "" && os.Getenv("WAYLAND_DISPLAY") == "" {
			return fmt.Errorf("no graphical session available")
		}
		name, args = "xdg-open", []string{url}
	case "darwin":
		name, args = "open", []string{url}
	case "windows":
		name, args = "rundll32", []string{"url.dll,FileProtocolHandler", url}
	default:
		return fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}

	path, err := exec.LookPath(name)
	if err != nil {
		return fmt.Errorf("browser launcher %s not found: %w", name, err)
	}

	if _, err := startDetached(path, args...); err != nil {
		return fmt.Errorf("failed to open browser: %w", err)
	}
	return nil
}

// startDetached starts a launcher without waiting for it and reaps it in the
// background once it exits. The returned channel receives its exit status.
func startDetached(path string, args ...string) (<-chan error, error) {
	cmd := exec.Command(path, args...)
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()
	return done, nil
}
