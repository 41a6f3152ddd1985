// Package htmltext derives plain-text excerpts and images from article HTML.
package htmltext

import (
	"html"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
)

// ExcerptLength is the default maximum excerpt length in runes.
const ExcerptLength = 250

var strict = bluemonday.StrictPolicy()

// Text strips all markup from s and collapses whitespace.
func Text(s string) string {
	if strings.TrimSpace(s) == "" {
		return ""
	}
	stripped := html.UnescapeString(strict.Sanitize(s))
	return strings.Join(strings.Fields(stripped), " ")
}

// Excerpt returns at most limit runes of the text of s, cut at a word boundary.
func Excerpt(s string, limit int) string {
	text := Text(s)
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)
	cut := string(runes[:limit])
	if i := strings.LastIndexByte(cut, ' '); i > limit/2 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, " ,.;:") + "…"
}

// FirstImage returns the src of the first <img> in s, or "".
func FirstImage(s string) string {
	if !strings.Contains(s, "<img") {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return ""
	}
	src, _ := doc.Find("img[src]").First().Attr("src")
	return strings.TrimSpace(src)
}
