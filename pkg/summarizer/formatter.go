package summarizer

import (
	"encoding/json"
	"path/filepath"
	"strings"

	"github.com/ideamans/go-l10n"
)

// Formatter renders a Summary as text.
type Formatter interface {
	Format(summary *Summary) string
}

// FormatFunc adapts a function to Formatter.
type FormatFunc func(summary *Summary) string

// Format implements Formatter.
func (f FormatFunc) Format(summary *Summary) string {
	return f(summary)
}

// ConsoleFormatter renders the short report printed after a recording.
type ConsoleFormatter struct{}

// Format implements Formatter.
func (ConsoleFormatter) Format(s *Summary) string {
	var b strings.Builder
	b.WriteString(l10n.F("Recorded %.1f s to %s (%d bytes)", float64(s.Session.DurationMs)/1000, s.Output.Path, s.Output.FileSize))
	b.WriteByte('\n')
	b.WriteString(l10n.F("Video: %d frames written, %d captured, %d dropped by the pacer", s.Video.Written, s.Video.Captured, s.Video.Dropped))
	b.WriteByte('\n')
	if s.Audio != nil {
		b.WriteString(l10n.F("Audio: %d samples written, %d silent packets, %d dropped", s.Audio.Written, s.Audio.Silent, s.Audio.Dropped))
		b.WriteByte('\n')
	} else if s.Settings.AudioError != "" {
		b.WriteString(l10n.F("Audio: unavailable: %s", s.Settings.AudioError))
		b.WriteByte('\n')
	}
	return b.String()
}

// JSONFormatter renders the summary as indented JSON.
type JSONFormatter struct{}

// Format implements Formatter. Summary holds only plain values, so
// marshalling cannot fail.
func (JSONFormatter) Format(s *Summary) string {
	data, _ := json.MarshalIndent(s, "", "  ")
	return string(data) + "\n"
}

// ForPath picks a formatter from the extension of a summary file:
// .json gives JSON, .txt gives the console report and anything else Markdown.
func ForPath(path string) Formatter {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return JSONFormatter{}
	case ".txt":
		return ConsoleFormatter{}
	default:
		return NewMarkdownFormatter()
	}
}
