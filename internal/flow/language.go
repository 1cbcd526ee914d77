package flow

import (
	"unicode"

	"github.com/Bossianity/Project-WAPi/internal/policy"
)

var arabicScript = &unicode.RangeTable{
	R16: []unicode.Range16{
		{Lo: 0x0600, Hi: 0x06FF, Stride: 1},
		{Lo: 0x0750, Hi: 0x077F, Stride: 1},
		{Lo: 0x08A0, Hi: 0x08FF, Stride: 1},
		{Lo: 0xFB50, Hi: 0xFDFF, Stride: 1},
		{Lo: 0xFE70, Hi: 0xFEFF, Stride: 1},
	},
}

// DetectLanguage returns "ar" when text has more than two Arabic letters or
// Arabic makes up more than 30% of its non-space characters, else "en".
func DetectLanguage(text string) string {
	var arabic, total int
	for _, r := range text {
		if unicode.IsSpace(r) {
			continue
		}
		total++
		if unicode.Is(arabicScript, r) {
			arabic++
		}
	}
	if total == 0 {
		return policy.LangEnglish
	}
	if arabic > 2 || float64(arabic)/float64(total) > 0.3 {
		return policy.LangArabic
	}
	return policy.LangEnglish
}
