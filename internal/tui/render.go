package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/lei/runwatch/internal/models"
	"github.com/lei/runwatch/internal/output"
)

const maxOutputLines = 20

// statusIcon returns a one-character marker for a stage status
func statusIcon(s models.StageStatus) string {
	switch s {
	case models.StageCompleted:
		return "✓"
	case models.StageRunning, models.StageStarted:
		return "●"
	case models.StageFailed:
		return "✗"
	case models.StageTimedOut:
		return "⏱"
	case models.StagePending:
		return "○"
	default:
		return "?"
	}
}

// progressBar renders "[####------]  40%" in width cells of bar
func progressBar(percent, width int) string {
	if width < 1 {
		width = 1
	}
	percent = max(0, min(100, percent))
	filled := percent * width / 100
	return fmt.Sprintf("[%s%s] %3d%%", strings.Repeat("#", filled), strings.Repeat("-", width-filled), percent)
}

// formatDuration renders stage durations given in seconds
func formatDuration(d *float64) string {
	if d == nil {
		return ""
	}
	if *d < 60 {
		return fmt.Sprintf("%.1fs", *d)
	}
	start := time.Unix(0, 0)
	end := start.Add(time.Duration(*d * float64(time.Second)))
	return strings.TrimSpace(humanize.RelTime(start, end, "", ""))
}

// formatTimestamp renders unix seconds relative to now; zero renders empty
func formatTimestamp(ts float64, now time.Time) string {
	if ts <= 0 {
		return ""
	}
	sec := int64(ts)
	return humanize.RelTime(time.Unix(sec, 0), now, "ago", "from now")
}

// stageLine renders one row of the stage table under its display label
func stageLine(st models.NormalizedStage, label string, selected bool, now time.Time) string {
	status := string(st.Status)
	if st.Status == models.StageUnknown && st.RawStatus != "" {
		status = st.RawStatus
	}

	cursor := "  "
	name := label
	if name == "" {
		name = st.Name
	}
	if selected {
		cursor = "> "
		name = selectedStyle.Render(name)
	}

	parts := []string{
		cursor + stageStyle(st.Status).Render(statusIcon(st.Status)+" "+fmt.Sprintf("%-10s", status)),
		name,
	}
	if d := formatDuration(st.Duration); d != "" {
		parts = append(parts, dimmedStyle.Render(d))
	}
	if ts := formatTimestamp(st.Timestamp, now); ts != "" {
		parts = append(parts, dimmedStyle.Render(ts))
	}
	if st.Synthetic && st.Description != "" {
		parts = append(parts, dimmedStyle.Render(st.Description))
	}
	line := strings.Join(parts, "  ")
	if st.Error != nil && *st.Error != "" {
		line += "\n      " + failedStyle.Render("error: "+firstLine(*st.Error))
	}
	return line
}

// renderOutput renders a classified payload for the terminal
func renderOutput(c output.Classification) string {
	var b strings.Builder

	if len(c.ImageURLs) > 0 {
		b.WriteString(titleStyle.Render(fmt.Sprintf("Images (%d)", len(c.ImageURLs))))
		b.WriteString("\n")
		for _, u := range c.ImageURLs {
			b.WriteString("  " + u + "\n")
		}
	}

	switch {
	case c.Kind == output.KindEmpty:
		b.WriteString(dimmedStyle.Render("No output yet"))
	case c.HasJSON():
		pretty, err := output.ExportJSON(c.JSON)
		if err != nil {
			b.WriteString(failedStyle.Render("unprintable output: " + err.Error()))
			break
		}
		b.WriteString(clip(strings.TrimRight(string(pretty), "\n"), maxOutputLines))
	default:
		b.WriteString(clip(c.Text, maxOutputLines))
	}

	return strings.TrimRight(b.String(), "\n")
}

// clip keeps the first n lines and notes how many were dropped
func clip(text string, n int) string {
	lines := strings.Split(text, "\n")
	if len(lines) <= n {
		return text
	}
	return strings.Join(lines[:n], "\n") + "\n" + dimmedStyle.Render(fmt.Sprintf("… %s more lines (export to see everything)", humanize.Comma(int64(len(lines)-n))))
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}

