package channels

import "time"

const (
	previewMaxRunes = 50
	previewCutRunes = 47
	previewEllipsis = "..."

	// PreviewTimeLayout は通知に載せる12時間表記の時刻です
	PreviewTimeLayout = "03:04 PM"
)

// Preview は通知用にメッセージ本文を切り詰めます
// 50文字以下はそのまま、それを超える場合は先頭47文字に "..." を付けて50文字にします
func Preview(text string) string {
	r := []rune(text)
	if len(r) <= previewMaxRunes {
		return text
	}
	return string(r[:previewCutRunes]) + previewEllipsis
}

// PreviewTime は通知用に時刻を整形します
func PreviewTime(t time.Time) string {
	return t.Format(PreviewTimeLayout)
}
