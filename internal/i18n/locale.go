package i18n

import (
	"net/http"

	"golang.org/x/text/language"
)

const DefaultLocale = "en"

// The first tag is the fallback when nothing in the header matches.
var localeMatcher = language.NewMatcher([]language.Tag{
	language.English,
	language.German,
})

func LocaleFromRequest(r *http.Request) string {
	if r == nil {
		return DefaultLocale
	}
	return NormalizeLocale(r.Header.Get("Accept-Language"))
}

// NormalizeLocale maps an Accept-Language value to a supported base
// language such as "en" or "de".
func NormalizeLocale(header string) string {
	tag, _ := language.MatchStrings(localeMatcher, header)
	base, _ := tag.Base()
	if _, ok := emailTranslations[base.String()]; ok {
		return base.String()
	}
	return DefaultLocale
}
