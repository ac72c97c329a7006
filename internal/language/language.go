package language

import (
	"strings"

	xlanguage "golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// Original is the sentinel code requesting subtitles in the asset's spoken language.
const Original = "original"

// supported lists the ISO 639-1 codes subtitles may be requested in.
var supported = []string{
	"en", "es", "fr", "de", "it", "pt", "ja", "ko", "zh", "ru",
	"ar", "hi", "nl", "pl", "sv", "da", "no", "fi", "tr", "uk",
}

// bibliographic holds ISO 639-2/B codes; BCP 47 parsing only knows the /T forms.
var bibliographic = map[string]string{
	"fre": "fr",
	"ger": "de",
	"chi": "zh",
	"dut": "nl",
}

var (
	bases  = map[string]xlanguage.Base{}
	byName = map[string]string{}
	namer  = display.English.Languages()
)

func init() {
	for _, code := range supported {
		base := xlanguage.MustParseBase(code)
		bases[code] = base
		byName[strings.ToLower(namer.Name(base))] = code
	}
}

// lookup resolves ISO 639-1, ISO 639-2 (T or B), English names, and region or
// script qualified tags ("en-US", "zh-Hant") to a supported base.
func lookup(code string) (xlanguage.Base, bool) {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" {
		return xlanguage.Base{}, false
	}
	if alias, ok := bibliographic[code]; ok {
		code = alias
	}
	if name, ok := byName[code]; ok {
		code = name
	}
	tag, err := xlanguage.Raw.Parse(strings.ReplaceAll(code, "_", "-"))
	if err != nil {
		return xlanguage.Base{}, false
	}
	base, confidence := tag.Base()
	if confidence == xlanguage.No {
		return xlanguage.Base{}, false
	}
	if _, ok := bases[base.String()]; !ok {
		return xlanguage.Base{}, false
	}
	return base, true
}

// Normalize maps a requested subtitle language to its canonical code. The
// second return value is false when the code is neither the original sentinel
// nor a supported language.
func Normalize(code string) (string, bool) {
	if strings.EqualFold(strings.TrimSpace(code), Original) {
		return Original, true
	}
	base, ok := lookup(code)
	if !ok {
		return "", false
	}
	return base.String(), true
}

// Supported lists the canonical codes accepted by Normalize, excluding the
// original sentinel.
func Supported() []string {
	return append([]string(nil), supported...)
}

// ToISO3 converts a recognized language to its ISO 639-2/T code, or "und".
func ToISO3(code string) string {
	if base, ok := lookup(code); ok {
		return base.ISO3()
	}
	return "und"
}

// DisplayName returns the English name for a recognized code.
func DisplayName(code string) string {
	trimmed := strings.TrimSpace(code)
	switch {
	case trimmed == "":
		return "Unknown"
	case strings.EqualFold(trimmed, Original):
		return "Original"
	}
	if base, ok := lookup(trimmed); ok {
		return namer.Name(base)
	}
	return strings.ToUpper(trimmed)
}

// NormalizeList canonicalizes and deduplicates languages, preserving order.
// The returned invalid slice lists every input that could not be normalized.
func NormalizeList(codes []string) (valid []string, invalid []string) {
	seen := make(map[string]bool, len(codes))
	for _, code := range codes {
		normalized, ok := Normalize(code)
		if !ok {
			invalid = append(invalid, code)
			continue
		}
		if seen[normalized] {
			continue
		}
		seen[normalized] = true
		valid = append(valid, normalized)
	}
	return valid, invalid
}
