package preprocess

import (
	"strings"
	"unicode"

	"golang.org/x/text/language"
)

// Detector is the host-provided language detection capability. The engine
// only needs a best-guess tag; "und" means undetermined and is never treated
// as unsupported on its own.
type Detector interface {
	Detect(text string) language.Tag
}

// supported is the fixed set of languages the summarization prompt handles.
var supported = []language.Tag{
	language.English,
	language.French,
	language.German,
	language.Italian,
	language.Spanish,
	language.BrazilianPortuguese,
	language.SimplifiedChinese,
	language.Japanese,
	language.Korean,
}

var supportedMatcher = language.NewMatcher(supported)

// Supported reports whether tag falls inside the supported set.
// An undetermined tag passes: detection failure alone never blocks work.
func Supported(tag language.Tag) bool {
	if tag == language.Und {
		return true
	}
	_, _, conf := supportedMatcher.Match(tag)
	return conf >= language.High
}

// HeuristicDetector is the default Detector: script ranges decide CJK, and a
// small stop-word table separates the Latin-script languages. It exists so
// the engine works without a platform detector; hosts with a real one should
// inject it instead.
type HeuristicDetector struct{}

var stopWords = map[string]language.Tag{
	"the": language.English, "and": language.English, "you": language.English, "for": language.English, "with": language.English,
	"les": language.French, "une": language.French, "vous": language.French, "est": language.French, "pour": language.French,
	"der": language.German, "und": language.German, "die": language.German, "nicht": language.German, "das": language.German,
	"che": language.Italian, "per": language.Italian, "della": language.Italian, "sono": language.Italian,
	"los": language.Spanish, "las": language.Spanish, "usted": language.Spanish, "para": language.Spanish, "gracias": language.Spanish,
	"você": language.BrazilianPortuguese, "não": language.BrazilianPortuguese, "obrigado": language.BrazilianPortuguese, "também": language.BrazilianPortuguese,
}

func (HeuristicDetector) Detect(text string) language.Tag {
	var han, hiragana, hangul, latin int
	for _, r := range text {
		switch {
		case unicode.In(r, unicode.Hiragana, unicode.Katakana):
			hiragana++
		case unicode.Is(unicode.Hangul, r):
			hangul++
		case unicode.Is(unicode.Han, r):
			han++
		case unicode.IsLetter(r) && r < 0x250:
			latin++
		}
	}
	switch {
	case hiragana > 0 && hiragana >= hangul:
		return language.Japanese
	case hangul > 0:
		return language.Korean
	case han > 0 && han > latin:
		return language.SimplifiedChinese
	case latin == 0:
		return language.Und
	}

	scores := map[language.Tag]int{}
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,;:!?\"'()")
		if tag, ok := stopWords[w]; ok {
			scores[tag]++
		}
	}
	best, bestN := language.Und, 0
	for tag, n := range scores {
		if n > bestN {
			best, bestN = tag, n
		}
	}
	if bestN < 2 {
		return language.Und
	}
	return best
}
