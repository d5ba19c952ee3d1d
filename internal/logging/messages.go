package logging

import "github.com/ideamans/go-l10n"

func init() {
	// Japanese translations of the encoder's log templates.
	l10n.Register("ja", l10n.LexiconMap{
		"session %dx%d %d-bit %s, %s, speed %d, %d frame workers":        "セッション %dx%d %dビット %s、%s、スピード %d、フレームワーカー %d",
		"frame %d (%s) q=%d bits=%d psnr=%.2f":                           "フレーム %d (%s) q=%d ビット=%d PSNR=%.2f",
		"frame %d (%s, hidden) q=%d bits=%d":                             "フレーム %d (%s、非表示) q=%d ビット=%d",
		"reference pool: %d buffers, %d still pinned":                    "参照プール: %d バッファ、固定中 %d",
		"scene cut at picture %d":                                        "ピクチャ %d でシーンチェンジ",
		"frame %d exceeds the buffer: %d bits over %d, recoding at q=%d": "フレーム %d がバッファを超過: %d ビット (上限 %d)、q=%d で再符号化",
		"frame %d exceeds the buffer after %d attempts: %d bits over %d": "フレーム %d は %d 回の試行後もバッファを超過: %d ビット (上限 %d)",
		"decoder buffer underflow at frame %d (%d bits)":                 "フレーム %d でデコーダバッファがアンダーフロー (%d ビット)",
		"encoded %d frames, %d bytes, %.2f kbps, PSNR-Y %.2f dB":         "%d フレームを符号化、%d バイト、%.2f kbps、PSNR-Y %.2f dB",
		"reading %s (%dx%d, %d-bit %s)":                                  "%s を読み込み中 (%dx%d、%dビット %s)",
		"wrote %s":                                                       "%s を書き込みました",
		"wrote first-pass statistics to %s":                              "1パス目の統計を %s に書き込みました",
		"Interrupted, finishing the current frames...":                   "中断されました。処理中のフレームを完了しています...",
	})
}
