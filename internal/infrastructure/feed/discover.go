package feed

import (
	"bytes"
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/tesso57/readsync/internal/domain/reading"
	"github.com/tesso57/readsync/internal/infrastructure/transport"
)

var feedLinkTypes = map[string]bool{
	"application/rss+xml":   true,
	"application/atom+xml":  true,
	"application/feed+json": true,
	"application/json":      true,
}

// Discover returns the feed URLs behind pageURL. A URL that already is a feed
// is returned as is; an HTML page yields its alternate feed links.
func (s *Source) Discover(ctx context.Context, pageURL string) ([]string, error) {
	pageURL = strings.TrimSpace(pageURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, reading.NewValidationError("url", err.Error())
	}
	resp, err := transport.Do(s.client, req)
	if err != nil {
		return nil, err
	}
	if _, err := ParserFunc(bytes.NewReader(resp.Body)); err == nil {
		return []string{pageURL}, nil
	}
	links, err := FeedLinks(resp.Body, pageURL)
	if err != nil {
		return nil, err
	}
	if len(links) == 0 {
		return nil, reading.NewValidationError("url", "no feed found at "+pageURL)
	}
	return links, nil
}

// FeedLinks extracts <link rel="alternate"> feed URLs from an HTML page,
// resolved against base.
func FeedLinks(page []byte, base string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return nil, reading.NewParseError(err)
	}
	baseURL, _ := url.Parse(base)
	var links []string
	seen := map[string]bool{}
	doc.Find("link[href]").Each(func(_ int, sel *goquery.Selection) {
		typ := strings.ToLower(strings.TrimSpace(sel.AttrOr("type", "")))
		if !feedLinkTypes[typ] {
			return
		}
		rel := strings.ToLower(sel.AttrOr("rel", ""))
		if rel != "" && !strings.Contains(rel, "alternate") {
			return
		}
		link := resolve(baseURL, sel.AttrOr("href", ""))
		if link != "" && !seen[link] {
			seen[link] = true
			links = append(links, link)
		}
	})
	return links, nil
}

// Icon returns the favicon of a site, falling back to /favicon.ico.
// Failures yield "".
func (s *Source) Icon(ctx context.Context, siteURL string) string {
	base, err := url.Parse(strings.TrimSpace(siteURL))
	if err != nil || base.Host == "" {
		return ""
	}
	fallback := base.ResolveReference(&url.URL{Path: "/favicon.ico"}).String()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base.String(), nil)
	if err != nil {
		return fallback
	}
	req.Header.Set("Accept", "text/html")
	resp, err := transport.Do(s.client, req)
	if err != nil {
		return fallback
	}
	if icon := IconLink(resp.Body, base.String()); icon != "" {
		return icon
	}
	return fallback
}

// IconLink extracts the first <link rel~="icon"> href from an HTML page.
func IconLink(page []byte, base string) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return ""
	}
	baseURL, _ := url.Parse(base)
	var icon string
	doc.Find("link[rel][href]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		for rel := range strings.FieldsSeq(strings.ToLower(sel.AttrOr("rel", ""))) {
			if rel == "icon" {
				icon = resolve(baseURL, sel.AttrOr("href", ""))
				return false
			}
		}
		return true
	})
	return icon
}

func resolve(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if base == nil {
		return ref.String()
	}
	return base.ResolveReference(ref).String()
}
