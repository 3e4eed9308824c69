// Package platform isolates the side effects the views need from the
// terminal and filesystem: clipboard, file save and confirmation prompts.
package platform

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/aymanbagabas/go-osc52/v2"
)

// ErrClipboardUnavailable indicates the output is not a terminal that can
// receive an OSC52 sequence
var ErrClipboardUnavailable = errors.New("clipboard unavailable")

// Clipboard copies text to the user's clipboard
type Clipboard interface {
	Copy(text string) error
}

// FileSaver stores an exported artifact and returns where it went
type FileSaver interface {
	Save(name string, data []byte) (string, error)
}

// Confirmer asks the user a yes/no question
type Confirmer interface {
	Confirm(prompt string) (bool, error)
}

// Services bundles the platform implementations a view depends on
type Services struct {
	Clipboard Clipboard
	Files     FileSaver
	Confirm   Confirmer
}

// Terminal returns services bound to the process's terminal and a save directory
func Terminal(saveDir string) Services {
	return Services{
		Clipboard: &OSC52Clipboard{Out: os.Stderr},
		Files:     &DirSaver{Dir: saveDir},
		Confirm:   &PromptConfirmer{In: os.Stdin, Out: os.Stderr, BypassHint: "use --yes to skip"},
	}
}

// OSC52Clipboard copies by emitting an OSC52 escape sequence, which most
// terminal emulators (and tmux/screen when wrapped) forward to the system
// clipboard, including over SSH.
type OSC52Clipboard struct {
	Out io.Writer

	// Force skips the terminal check, e.g. when Out is a pty wrapper
	Force bool
}

// Copy writes the sequence for text
func (c *OSC52Clipboard) Copy(text string) error {
	if c.Out == nil || (!c.Force && !isTerminal(c.Out)) {
		return ErrClipboardUnavailable
	}

	seq := osc52.New(text)
	switch {
	case os.Getenv("TMUX") != "":
		seq = seq.Tmux()
	case strings.HasPrefix(os.Getenv("TERM"), "screen"):
		seq = seq.Screen()
	}
	if _, err := seq.WriteTo(c.Out); err != nil {
		return fmt.Errorf("write clipboard sequence: %w", err)
	}
	return nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	if os.Getenv("TERM") == "dumb" {
		return false
	}
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

// CopyOrShow copies text, falling back to printing it for manual selection.
// It reports whether the clipboard copy succeeded.
func CopyOrShow(c Clipboard, text string, fallback io.Writer) bool {
	if c != nil {
		if err := c.Copy(text); err == nil {
			return true
		}
	}
	if fallback != nil {
		fmt.Fprintln(fallback, "Could not copy to the clipboard. Select the text below to copy it manually:")
		fmt.Fprintln(fallback, "----")
		fmt.Fprintln(fallback, text)
		fmt.Fprintln(fallback, "----")
	}
	return false
}

// DirSaver writes artifacts into a directory, creating it when missing.
// Existing files are not overwritten; a numeric suffix is added instead.
type DirSaver struct {
	Dir string
}

// Save writes data under name and returns the final path
func (s *DirSaver) Save(name string, data []byte) (string, error) {
	dir := s.Dir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create save directory: %w", err)
	}

	base := filepath.Base(name)
	if base == "." || base == string(filepath.Separator) {
		return "", fmt.Errorf("invalid file name %q", name)
	}
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)

	for i := 0; i < 1000; i++ {
		candidate := base
		if i > 0 {
			candidate = fmt.Sprintf("%s-%d%s", stem, i, ext)
		}
		path := filepath.Join(dir, candidate)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("create %s: %w", path, err)
		}
		if _, err := f.Write(data); err != nil {
			f.Close()
			return "", fmt.Errorf("write %s: %w", path, err)
		}
		if err := f.Close(); err != nil {
			return "", fmt.Errorf("close %s: %w", path, err)
		}
		return path, nil
	}
	return "", fmt.Errorf("no free file name for %s in %s", base, dir)
}
