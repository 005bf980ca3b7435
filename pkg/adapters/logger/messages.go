package logger

import "github.com/ideamans/go-l10n"

func init() {
	l10n.Register("ja", l10n.LexiconMap{
		// Recorder level messages (info)
		"Recording display %d to %s (%dx%d, %d fps, %d Mbps)": "ディスプレイ %d を %s に録画します (%dx%d, %d fps, %d Mbps)",
		"Using encoder %d: %s (%s)":                           "エンコーダー %d を使用: %s (%s)",
		"Audio unavailable, recording video only: %v":         "音声が利用できないため映像のみ録画します: %v",
		"Output saved to %s":                                  "出力を %s に保存しました",
		"Debug output saved to %s":                            "デバッグ出力を %s に保存しました",
		"Failed to save session statistics: %v":               "セッション統計の保存に失敗しました: %v",

		// Session
		"Recording started (%s, %s)":                      "録画を開始しました (%s, %s)",
		"Stopping recording":                              "録画を停止しています",
		"Recording stopped after %s":                      "%s 後に録画を停止しました",
		"Recording failed: %s":                            "録画に失敗しました: %s",
		"Failed to start session: %s":                     "セッションの開始に失敗しました: %s",
		"Teardown after failed start: %v":                 "開始失敗後の後処理: %v",
		"%s encoder still draining after %s, stopping it": "%s エンコーダーが %s 後もドレイン中のため停止します",

		// Capture
		"Capturing %s, poll %s":                       "%s をキャプチャ中 (ポーリング %s)",
		"Video capture failed: %v":                    "映像キャプチャに失敗しました: %v",
		"Audio capture failed: %v":                    "音声キャプチャに失敗しました: %v",
		"Video sink stalled for %s, stopping capture": "映像の出力先が %s 停止したためキャプチャを終了します",
		"Audio sink full, stopping capture":           "音声の出力先が満杯のためキャプチャを終了します",
		"Audio timeline drifted by %s, re-anchoring":  "音声タイムラインが %s ずれたため再アンカーします",
		"Failed to close grabber: %v":                 "グラバーのクローズに失敗しました: %v",
		"Grabbing display %d at %s":                   "ディスプレイ %d を %s で取得中",
		"Capturing %s audio: %s":                      "%s 音声をキャプチャ中: %s",
		"%d stale frames dropped":                     "古いフレームを %d 件破棄しました",
		"%d audio packets dropped by the grab queue":  "取得キューで音声パケットを %d 件破棄しました",

		// Pacer
		"Input closed after %d admitted, %d dropped frames": "入力終了: 採用 %d フレーム, 破棄 %d フレーム",

		// Transform driver
		"Driver started: %s -> %s":              "ドライバー開始: %s -> %s",
		"Driver stopped: %d inputs, %d outputs": "ドライバー停止: 入力 %d, 出力 %d",
		"Draining transform":                    "トランスフォームをドレイン中",
		"Drain complete":                        "ドレイン完了",
		"Dropped one pending sample at drain":   "ドレイン時に保留中のサンプルを 1 件破棄しました",
		"Failed to close transform: %v":         "トランスフォームのクローズに失敗しました: %v",

		// Encoders
		"Started: %s %s":                                                  "開始: %s %s",
		"Closed after %d frames":                                          "%d フレーム後にクローズしました",
		"Native encoder enumeration failed: %v":                           "ネイティブエンコーダーの列挙に失敗しました: %v",
		"No native encoders on this platform":                             "このプラットフォームにはネイティブエンコーダーがありません",
		"ffmpeg encoder enumeration failed: %v":                           "ffmpeg エンコーダーの列挙に失敗しました: %v",
		"Ignored MFT event %d":                                            "MFT イベント %d を無視しました",
		"Keyframe without SPS/PPS and no sequence header: HRESULT 0x%08X": "SPS/PPS のないキーフレームでシーケンスヘッダーも取得できません: HRESULT 0x%08X",

		// Writer
		"Stream %d: %s":               "ストリーム %d: %s",
		"Init segment written: %dx%d": "初期化セグメントを書き込みました: %dx%d",
		"Dropped video sample at %d before the first keyframe": "最初のキーフレーム前の映像サンプル (%d) を破棄しました",
		"%d video samples dropped before the first keyframe":   "最初のキーフレーム前に映像サンプルを %d 件破棄しました",
		"Keyframe at %d carries no SPS/PPS, dropped":           "キーフレーム (%d) に SPS/PPS がないため破棄しました",
		"Audio queue full, dropped sample at %d (%d dropped)":  "音声キューが満杯のためサンプル (%d) を破棄しました (累計 %d)",
		"Writer stopped: %d video, %d audio samples":           "ライター停止: 映像 %d, 音声 %d サンプル",
		"Failed to encode %s timeline: %v":                     "%s タイムラインのエンコードに失敗しました: %v",
		"Failed to save %s timeline: %v":                       "%s タイムラインの保存に失敗しました: %v",

		// Stats
		"CPU sampling unavailable: %v": "CPU サンプリングを利用できません: %v",
	})
}
