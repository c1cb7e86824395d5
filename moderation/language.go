package moderation

import "github.com/abadojack/whatlanggo"

// DetectLanguage returns the ISO 639-3 code of the text's language, or
// an empty string when detection is not reliable enough to stamp.
func DetectLanguage(text string) string {
	info := whatlanggo.Detect(text)
	if !info.IsReliable() {
		return ""
	}
	return whatlanggo.LangToString(info.Lang)
}
