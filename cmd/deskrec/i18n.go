// Package main provides localization for the deskrec CLI.
package main

import (
	"github.com/ideamans/go-l10n"
)

func init() {
	// Register Japanese translations for CLI messages.
	l10n.Register("ja", l10n.LexiconMap{
		// Flag categories
		"Capture":           "キャプチャ",
		"Output":            "出力",
		"Video and Quality": "動画と品質",
		"Audio":             "音声",
		"Configuration":     "設定",
		"Debug":             "デバッグ",
		"Logging":           "ログ",

		// Commands
		"Record the desktop with audio to an MP4 file":        "デスクトップを音声付きでMP4ファイルに録画",
		"Record a display to an MP4 file":                     "ディスプレイをMP4ファイルに録画",
		"List the available H.264 encoders and their indices": "利用可能なH.264エンコーダーとその番号を一覧表示",
		"Show the tracks of a recorded MP4 file":              "録画したMP4ファイルのトラックを表示",
		"Show version information":                            "バージョン情報を表示",
		"deskrec version %s":                                  "deskrec バージョン %s",

		// Capture flags
		"Display index to capture":                           "キャプチャするディスプレイ番号",
		"Capture source (screen, test)":                      "キャプチャソース（screen, test）",
		"Output video width (default: 1920)":                 "出力動画の幅（デフォルト: 1920）",
		"Output video height (default: 1080)":                "出力動画の高さ（デフォルト: 1080）",
		"Output frame rate (default: 30)":                    "出力フレームレート（デフォルト: 30）",
		"Stop after this long (e.g. 30s, 0 = until stopped)": "指定時間後に停止（例: 30s、0 = 停止するまで）",

		// Output flags
		"Output MP4 file path":                               "出力MP4ファイルパス",
		"Output recording summary to file (Markdown format)": "録画サマリーをファイルに出力（Markdown形式）",

		// Encoding flags
		"Video bitrate in Mbps (overrides preset)": "動画ビットレート（Mbps、プリセットを上書き）",
		"Quality preset (low, medium, high)":       "品質プリセット（low, medium, high）",
		"Encoder index from the encoders command":  "encodersコマンドで表示されるエンコーダー番号",

		// Audio flags
		"Audio source (loopback, microphone, none)": "音声ソース（loopback, microphone, none）",
		"Audio capture device name":                 "音声キャプチャデバイス名",

		// Configuration flags
		"YAML configuration file":       "YAML設定ファイル",
		"Path to the ffmpeg executable": "ffmpeg実行ファイルのパス",

		// Debug flags
		"Enable debug output":        "デバッグ出力を有効化",
		"Directory for debug output": "デバッグ出力のディレクトリ",

		// Logging flags
		"Log level (debug, info, warn, error)": "ログレベル（debug, info, warn, error）",
		"Suppress all log output":              "全てのログ出力を抑制",

		// Runtime messages
		"Press ENTER to stop recording": "ENTERキーで録画を停止します",
		"Interrupted, shutting down...": "中断されました。シャットダウン中...",
		"Summary saved to %s":           "サマリーを %s に保存しました",
		"Failed to write summary: %s":   "サマリーの書き込みに失敗しました: %s",
		"%s: %d tracks, %d fragments":   "%s: %d トラック, %d フラグメント",

		// Error messages
		"Error: %s":                                 "エラー: %s",
		"Media Foundation HRESULT: 0x%08X":          "Media Foundation HRESULT: 0x%08X",
		"Unexpected argument":                       "不要な引数があります",
		"Exactly one MP4 file argument is required": "MP4ファイルを1つ指定してください",
	})
}
