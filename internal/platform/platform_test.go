package platform

import (
	"bytes"
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
)

type failingClipboard struct{}

func (failingClipboard) Copy(string) error { return ErrClipboardUnavailable }

func TestOSC52Clipboard(t *testing.T) {
	t.Setenv("TMUX", "")
	t.Setenv("TERM", "xterm-256color")

	var buf bytes.Buffer
	if err := (&OSC52Clipboard{Out: &buf}).Copy("hi"); !errors.Is(err, ErrClipboardUnavailable) {
		t.Errorf("Copy() to a non-terminal = %v, want ErrClipboardUnavailable", err)
	}

	if err := (&OSC52Clipboard{Out: &buf, Force: true}).Copy("hello"); err != nil {
		t.Fatalf("Copy: %v", err)
	}
	want := base64.StdEncoding.EncodeToString([]byte("hello"))
	if out := buf.String(); !strings.HasPrefix(out, "\x1b]52;") || !strings.Contains(out, want) {
		t.Errorf("sequence = %q, want OSC52 carrying %q", out, want)
	}
}

func TestCopyOrShow(t *testing.T) {
	var fallback bytes.Buffer
	if CopyOrShow(failingClipboard{}, "run wf/1", &fallback) {
		t.Error("CopyOrShow() = true with a failing clipboard")
	}
	if !strings.Contains(fallback.String(), "run wf/1") {
		t.Errorf("fallback output = %q", fallback.String())
	}

	var out bytes.Buffer
	fallback.Reset()
	if !CopyOrShow(&OSC52Clipboard{Out: &out, Force: true}, "x", &fallback) {
		t.Error("CopyOrShow() = false with a working clipboard")
	}
	if fallback.Len() != 0 {
		t.Errorf("fallback written on success: %q", fallback.String())
	}
}

func TestDirSaver(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "exports")
	s := &DirSaver{Dir: dir}

	first, err := s.Save("wf-r-draft.json", []byte(`{"a":1}`))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	second, err := s.Save("../wf-r-draft.json", []byte(`{"a":2}`))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	if first != filepath.Join(dir, "wf-r-draft.json") {
		t.Errorf("first path = %q", first)
	}
	if second != filepath.Join(dir, "wf-r-draft-1.json") {
		t.Errorf("second path = %q", second)
	}
	data, _ := os.ReadFile(second)
	if string(data) != `{"a":2}` {
		t.Errorf("second content = %s", data)
	}
}

func TestPromptConfirmer(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		yes     bool
		want    bool
		wantErr error
	}{
		{"y", "y", false, true, nil},
		{"Y", "Y", false, true, nil},
		{"n", "n", false, false, nil},
		{"enter defaults to no", "\r", false, false, nil},
		{"ctrl+c cancels", "\x03", false, false, ErrCancelled},
		{"assume yes skips the prompt", "", true, true, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			c := &PromptConfirmer{
				In:          strings.NewReader(tt.input),
				Out:         &out,
				AssumeYes:   tt.yes,
				Interactive: func() bool { return true },
			}
			got, err := c.Confirm("Terminate run?")
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Confirm(%q) error = %v, want %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Confirm(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestPromptConfirmer_RefusesWithoutTerminal(t *testing.T) {
	t.Setenv("CI", "true")

	var out bytes.Buffer
	c := &PromptConfirmer{In: strings.NewReader("y"), Out: &out, BypassHint: "use --yes to skip"}
	got, err := c.Confirm("Terminate run?")
	if got || !errors.Is(err, ErrNoInteraction) {
		t.Fatalf("Confirm() = %v, %v; want false, ErrNoInteraction", got, err)
	}
	if !strings.Contains(err.Error(), "use --yes to skip") {
		t.Errorf("error should carry the bypass hint: %v", err)
	}
	if out.Len() != 0 {
		t.Errorf("nothing should be written, got %q", out.String())
	}
}

func TestConfirmModel_View(t *testing.T) {
	m := &confirmModel{question: "Terminate run wf/r?"}
	if got := m.View(); got != "? Terminate run wf/r? [y/N] " {
		t.Errorf("View() = %q", got)
	}

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("y")})
	if cmd == nil || !m.confirmed || m.View() != "" {
		t.Errorf("after y: confirmed=%v view=%q", m.confirmed, m.View())
	}

	m = &confirmModel{question: "q"}
	if _, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("x")}); cmd != nil || m.answered {
		t.Error("other keys should be ignored")
	}
}
