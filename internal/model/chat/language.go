package chat

import "strings"

// Language selects the language the guidance is written in.
type Language string

const (
	LanguageEnglish  Language = "English"
	LanguageHindi    Language = "Hindi"
	LanguageHinglish Language = "Hinglish"
)

// Languages lists the supported languages in display order.
func Languages() []Language {
	return []Language{LanguageEnglish, LanguageHindi, LanguageHinglish}
}

// ParseLanguage matches a language name case-insensitively.
func ParseLanguage(raw string) (Language, bool) {
	value := strings.TrimSpace(raw)
	for _, lang := range Languages() {
		if strings.EqualFold(value, string(lang)) {
			return lang, true
		}
	}
	return "", false
}

// ShortLabel is the compact selector label shown next to the input box.
func (l Language) ShortLabel() string {
	switch l {
	case LanguageHindi:
		return "हि"
	case LanguageHinglish:
		return "Hi"
	default:
		return "En"
	}
}
