package channels

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/require"
)

func TestPreview(t *testing.T) {
	t.Run("should keep text up to 50 runes unchanged", func(t *testing.T) {
		for _, n := range []int{0, 1, 49, 50} {
			text := strings.Repeat("a", n)
			require.Equal(t, text, Preview(text))
		}
	})

	t.Run("should cut longer text to 47 runes plus ellipsis", func(t *testing.T) {
		req := require.New(t)
		text := strings.Repeat("b", 51)
		got := Preview(text)
		req.Equal(strings.Repeat("b", 47)+"...", got)
		req.Equal(50, utf8.RuneCountInString(got))
	})

	t.Run("should count runes rather than bytes", func(t *testing.T) {
		req := require.New(t)
		fifty := strings.Repeat("あ", 50)
		req.Equal(fifty, Preview(fifty))

		got := Preview(strings.Repeat("あ", 51))
		req.Equal(strings.Repeat("あ", 47)+"...", got)
		req.True(utf8.ValidString(got))
	})
}

func TestPreviewTime(t *testing.T) {
	req := require.New(t)
	req.Equal("02:05 PM", PreviewTime(time.Date(2026, 1, 2, 14, 5, 0, 0, time.UTC)))
	req.Equal("12:00 AM", PreviewTime(time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)))
	req.Equal("09:30 AM", PreviewTime(time.Date(2026, 1, 2, 9, 30, 59, 0, time.UTC)))
}
