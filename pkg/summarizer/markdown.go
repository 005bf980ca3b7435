package summarizer

import (
	"fmt"
	"strings"

	"github.com/ideamans/go-l10n"
)

func init() {
	l10n.Register("ja", l10n.LexiconMap{
		"Recording Summary": "録画サマリー",
		"Generated":         "生成日時",
		"Session":           "セッション",
		"Output":            "出力",
		"File":              "ファイル",
		"Size":              "サイズ",
		"Duration":          "録画時間",
		"Settings":          "設定",
		"Source":            "ソース",
		"Resolution":        "解像度",
		"Bitrate":           "ビットレート",
		"Encoder":           "エンコーダー",
		"hardware":          "ハードウェア",
		"software":          "ソフトウェア",
		"Audio":             "音声",
		"unavailable: %s":   "利用不可: %s",
		"Video":             "映像",
		"Captured frames":   "キャプチャしたフレーム",
		"Repeated frames":   "繰り返したフレーム",
		"Admitted by pacer": "ペーサーが採用",
		"Dropped by pacer":  "ペーサーが破棄",
		"Encoded":           "エンコード済み",
		"Written":           "書き込み済み",
		"Format":            "フォーマット",
		"Captured packets":  "キャプチャしたパケット",
		"Silent packets":    "無音パケット",
		"Discontinuities":   "不連続",
		"Dropped by writer": "ライターが破棄",
		"No audio track":    "音声トラックなし",
		"Process":           "プロセス",
		"Peak CPU":          "最大 CPU",
		"Average CPU":       "平均 CPU",
		"Peak memory":       "最大メモリ",
		"Item":              "項目",
		"Value":             "値",
		"display %d":        "ディスプレイ %d",

		"Recorded %.1f s to %s (%d bytes)":                               "%.1f 秒を %s に録画しました (%d バイト)",
		"Video: %d frames written, %d captured, %d dropped by the pacer": "映像: %d フレーム書き込み, %d キャプチャ, ペーサーで %d 破棄",
		"Audio: %d samples written, %d silent packets, %d dropped":       "音声: %d サンプル書き込み, 無音パケット %d, 破棄 %d",
		"Audio: unavailable: %s":                                         "音声: 利用不可: %s",
	})
}

// MarkdownFormatter formats a Summary as a Markdown document with
// translated labels.
type MarkdownFormatter struct{}

// NewMarkdownFormatter creates a new MarkdownFormatter.
func NewMarkdownFormatter() *MarkdownFormatter {
	return &MarkdownFormatter{}
}

// Format implements Formatter.
func (f *MarkdownFormatter) Format(s *Summary) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", l10n.T("Recording Summary"))
	fmt.Fprintf(&b, "- %s: %s\n", l10n.T("Generated"), s.GeneratedAt.Format("2006-01-02 15:04:05"))
	if s.Session.ID != "" {
		fmt.Fprintf(&b, "- %s: `%s`\n", l10n.T("Session"), s.Session.ID)
	}

	t := newTable(&b, "Output")
	t.row("File", fmt.Sprintf("`%s`", s.Output.Path))
	t.row("Size", formatBytes(uint64(max(s.Output.FileSize, 0))))
	t.row("Duration", fmt.Sprintf("%.2f s", float64(s.Session.DurationMs)/1000))

	st := s.Settings
	t = newTable(&b, "Settings")
	t.row("Source", fmt.Sprintf("%s (%s)", st.Source, l10n.F("display %d", st.Display)))
	t.row("Resolution", fmt.Sprintf("%dx%d @ %d fps", st.Width, st.Height, st.FPS))
	t.row("Bitrate", fmt.Sprintf("%d Mbps", st.BitrateMbps))
	kind := l10n.T("software")
	if st.HardwareEncoder {
		kind = l10n.T("hardware")
	}
	t.row("Encoder", fmt.Sprintf("%s (%s, %s)", st.Encoder, st.EncoderBackend, kind))
	audio := st.Audio
	if st.AudioError != "" {
		audio += " (" + l10n.F("unavailable: %s", st.AudioError) + ")"
	}
	t.row("Audio", audio)

	v := s.Video
	t = newTable(&b, "Video")
	t.row("Captured frames", fmt.Sprint(v.Captured))
	t.row("Repeated frames", fmt.Sprint(v.Duplicates))
	t.row("Admitted by pacer", fmt.Sprint(v.Admitted))
	t.row("Dropped by pacer", fmt.Sprint(v.Dropped))
	t.row("Encoded", fmt.Sprint(v.Encoded))
	t.row("Written", fmt.Sprint(v.Written))

	if a := s.Audio; a != nil {
		t = newTable(&b, "Audio")
		t.row("Format", fmt.Sprintf("%d Hz, %d ch", a.SampleRate, a.Channels))
		t.row("Captured packets", fmt.Sprint(a.Captured))
		t.row("Silent packets", fmt.Sprint(a.Silent))
		t.row("Discontinuities", fmt.Sprint(a.Discontinuities))
		t.row("Encoded", fmt.Sprint(a.Encoded))
		t.row("Written", fmt.Sprint(a.Written))
		t.row("Dropped by writer", fmt.Sprint(a.Dropped))
	} else {
		fmt.Fprintf(&b, "\n## %s\n\n%s\n", l10n.T("Audio"), l10n.T("No audio track"))
	}

	if p := s.Process; p != nil {
		t = newTable(&b, "Process")
		t.row("Peak CPU", fmt.Sprintf("%.1f %%", p.PeakCPU))
		t.row("Average CPU", fmt.Sprintf("%.1f %%", p.AverageCPU))
		t.row("Peak memory", formatBytes(p.PeakRSS))
	}

	return b.String()
}

type table struct {
	b *strings.Builder
}

// newTable writes a section heading and a two-column table header.
func newTable(b *strings.Builder, title string) table {
	fmt.Fprintf(b, "\n## %s\n\n", l10n.T(title))
	fmt.Fprintf(b, "| %s | %s |\n|---|---|\n", l10n.T("Item"), l10n.T("Value"))
	return table{b: b}
}

func (t table) row(label, value string) {
	fmt.Fprintf(t.b, "| %s | %s |\n", l10n.T(label), value)
}

// formatBytes renders n with a binary unit.
func formatBytes(n uint64) string {
	const unit = 1024
	switch {
	case n < unit:
		return fmt.Sprintf("%d B", n)
	case n < unit*unit:
		return fmt.Sprintf("%.2f KB", float64(n)/unit)
	case n < unit*unit*unit:
		return fmt.Sprintf("%.2f MB", float64(n)/(unit*unit))
	default:
		return fmt.Sprintf("%.2f GB", float64(n)/(unit*unit*unit))
	}
}
