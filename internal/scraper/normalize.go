package scraper

import (
	"strings"

	"golang.org/x/text/width"
)

var textReplacer = strings.NewReplacer(
	"\r\n", "",
	"\n", "",
	"－", "-",
	"~", "〜",
)

// NormalizeText folds full-width alphanumerics to ASCII (kana stay
// full-width), drops line breaks, and trims.
func NormalizeText(text string) string {
	return strings.TrimSpace(textReplacer.Replace(width.Fold.String(text)))
}
