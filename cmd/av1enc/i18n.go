package main

import "github.com/ideamans/go-l10n"

func init() {
	// Japanese translations of the command-line help.
	l10n.Register("ja", l10n.LexiconMap{
		"Encode video to an AV1-family bitstream":                                 "動画をAV1系ビットストリームに符号化",
		"Encode a Y4M stream or a sequence of images":                             "Y4Mストリームまたは画像列を符号化",
		"Display stream metadata":                                                 "ストリームのメタデータを表示",
		"Log level (debug, info, warn, error)":                                    "ログレベル（debug, info, warn, error）",
		"Suppress all log output":                                                 "ログ出力をすべて抑制",
		"enc: missing input file":                                                 "enc: 入力ファイルが指定されていません",
		"YAML option file; flags override it":                                     "YAML設定ファイル（フラグで上書き可能）",
		"Preset (realtime, good, best)":                                           "プリセット（realtime, good, best）",
		"Speed 0-10, higher is faster":                                            "スピード 0-10（大きいほど高速）",
		"Rate control (cq, abr, cbr)":                                             "レート制御（cq, abr, cbr）",
		"Quantizer index 0-255 for cq":                                            "cq の量子化インデックス 0-255",
		"Minimum quantizer index":                                                 "最小量子化インデックス",
		"Maximum quantizer index":                                                 "最大量子化インデックス",
		"Target bitrate in bits per second":                                       "目標ビットレート（ビット/秒）",
		"Decoder buffer size in milliseconds":                                     "デコーダバッファサイズ（ミリ秒）",
		"Tile columns":                                                            "タイル列数",
		"Tile rows":                                                               "タイル行数",
		"Parallel tile workers (0 = number of CPUs)":                              "並列タイルワーカー数（0 = CPU数）",
		"Parallel frame workers (0 = 1)":                                          "並列フレームワーカー数（0 = 1）",
		"Maximum key frame interval":                                              "キーフレームの最大間隔",
		"Mini-GOP size":                                                           "ミニGOPサイズ",
		"Reference frames 1-7":                                                    "参照フレーム数 1-7",
		"Pictures held for scene-cut detection":                                   "シーンチェンジ検出のために保持するピクチャ数",
		"Adapt the quantizer per superblock":                                      "スーパーブロック単位で量子化を適応",
		"Disable the deblocking filter":                                           "デブロッキングフィルタを無効化",
		"Disable CDEF":                                                            "CDEFを無効化",
		"Disable loop restoration":                                                "ループ復元を無効化",
		"Write first-pass statistics to this file":                                "1パス目の統計をこのファイルに書き込む",
		"Read first-pass statistics from this file":                               "1パス目の統計をこのファイルから読み込む",
		"Write the reconstruction to this Y4M file":                               "再構成画像をこのY4Mファイルに書き込む",
		"Encode at most this many pictures":                                       "符号化するピクチャの最大数",
		"Frame rate of image inputs":                                              "画像入力のフレームレート",
		"Bit depth of image inputs (8, 10, 12)":                                   "画像入力のビット深度（8, 10, 12）",
		"Chroma subsampling of image inputs (420, 422, 444, mono)":                "画像入力のクロマサブサンプリング（420, 422, 444, mono）",
		"Output path; .mp4 selects MP4, anything else IVF (default: <input>.ivf)": "出力パス。.mp4 はMP4、それ以外はIVF（デフォルト: <入力>.ivf）",
	})
}
