// Package language validates and normalizes subtitle language codes against
// the fixed table of languages the subtitle generator supports.
//
// Codes may be given as ISO 639-1, ISO 639-2 (either variant), English word
// forms, or region-qualified BCP 47 tags. The sentinel "original" is accepted
// as-is and asks for subtitles in the asset's spoken language.
package language
