package dramabox

import "strings"

// Language is a supported site language code.
type Language string

const (
	Indonesian         Language = "in"
	English            Language = "en"
	Thai               Language = "th"
	Arabic             Language = "ar"
	Portuguese         Language = "pt"
	French             Language = "fr"
	German             Language = "de"
	Japanese           Language = "ja"
	Spanish            Language = "es"
	ChineseTraditional Language = "zh"
	ChineseSimplified  Language = "zhHans"
)

// DefaultLanguage is the fallback language.
const DefaultLanguage = Indonesian

// SupportedLanguages lists every site language in display order.
var SupportedLanguages = []Language{
	Indonesian, English, Thai, Arabic, Portuguese, French,
	German, Japanese, Spanish, ChineseTraditional, ChineseSimplified,
}

// LanguageInfo is display metadata for a language.
type LanguageInfo struct {
	Name       string
	NativeName string
	Flag       string
	Region     string
}

// Languages maps codes to their display metadata.
var Languages = map[Language]LanguageInfo{
	Indonesian:         {Name: "Indonesian", NativeName: "Bahasa Indonesia", Flag: "🇮🇩", Region: "Indonesia"},
	English:            {Name: "English", NativeName: "English", Flag: "🇺🇸", Region: "United States"},
	Thai:               {Name: "Thai", NativeName: "ภาษาไทย", Flag: "🇹🇭", Region: "Thailand"},
	Arabic:             {Name: "Arabic", NativeName: "العربية", Flag: "🇸🇦", Region: "Saudi Arabia"},
	Portuguese:         {Name: "Portuguese", NativeName: "Português", Flag: "🇧🇷", Region: "Brazil"},
	French:             {Name: "French", NativeName: "Français", Flag: "🇫🇷", Region: "France"},
	German:             {Name: "German", NativeName: "Deutsch", Flag: "🇩🇪", Region: "Germany"},
	Japanese:           {Name: "Japanese", NativeName: "日本語", Flag: "🇯🇵", Region: "Japan"},
	Spanish:            {Name: "Spanish", NativeName: "Español", Flag: "🇪🇸", Region: "Spain"},
	ChineseTraditional: {Name: "Chinese Traditional", NativeName: "繁體中文", Flag: "🇹🇼", Region: "Taiwan"},
	ChineseSimplified:  {Name: "Chinese Simplified", NativeName: "简体中文", Flag: "🇨🇳", Region: "China"},
}

// BrowserLanguageMap maps lowercased browser language tags to site languages.
// Full regional tags are listed where the primary subtag is ambiguous.
var BrowserLanguageMap = map[string]Language{
	"id":      Indonesian,
	"in":      Indonesian,
	"en":      English,
	"th":      Thai,
	"ar":      Arabic,
	"pt":      Portuguese,
	"pt-br":   Portuguese,
	"fr":      French,
	"de":      German,
	"ja":      Japanese,
	"es":      Spanish,
	"zh-tw":   ChineseTraditional,
	"zh-hk":   ChineseTraditional,
	"zh-hant": ChineseTraditional,
	"zh-cn":   ChineseSimplified,
	"zh-sg":   ChineseSimplified,
	"zh-hans": ChineseSimplified,
}

// RTLLanguages contains language codes that use right-to-left text direction.
var RTLLanguages = map[Language]bool{
	Arabic: true,
}

// IsSupported reports whether code is exactly one of the supported languages.
func IsSupported(code string) bool {
	for _, lang := range SupportedLanguages {
		if string(lang) == code {
			return true
		}
	}
	return false
}

// ValidateLanguage returns code as a Language if supported, else fallback.
func ValidateLanguage(code string, fallback Language) Language {
	if IsSupported(code) {
		return Language(code)
	}
	return fallback
}

// GetLanguageName returns the English name of a language.
// Falls back to the code itself if not found.
func GetLanguageName(lang Language) string {
	if info, ok := Languages[lang]; ok {
		return info.Name
	}
	return string(lang)
}

// DisplayName returns the flag and native name, e.g. "🇯🇵 日本語".
func DisplayName(lang Language) string {
	info, ok := Languages[lang]
	if !ok {
		return string(lang)
	}
	return info.Flag + " " + info.NativeName
}

// GetDirection returns "rtl" for right-to-left languages, "ltr" otherwise.
func GetDirection(lang Language) string {
	if RTLLanguages[lang] {
		return "rtl"
	}
	return "ltr"
}

// IsRTL returns true if the language uses right-to-left text direction.
func IsRTL(lang Language) bool {
	return GetDirection(lang) == "rtl"
}

// ToHTMLLang converts a site language to a BCP 47 tag for the HTML lang
// attribute (e.g., "in" → "id", "zhHans" → "zh-Hans").
func ToHTMLLang(lang Language) string {
	switch lang {
	case Indonesian:
		return "id"
	case ChineseTraditional:
		return "zh-Hant"
	case ChineseSimplified:
		return "zh-Hans"
	}
	return strings.ToLower(string(lang))
}
