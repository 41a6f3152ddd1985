// Package feed fetches and parses RSS, Atom and JSON feeds for local accounts.
package feed

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/mmcdole/gofeed"

	"github.com/tesso57/readsync/internal/application/usecase"
	"github.com/tesso57/readsync/internal/domain/reading"
	"github.com/tesso57/readsync/internal/infrastructure/htmltext"
	"github.com/tesso57/readsync/internal/infrastructure/transport"
)

const feedAcceptHeader = "application/atom+xml, application/rss+xml, application/feed+json, application/xml;q=0.9, text/xml;q=0.8, */*;q=0.5"

// ParserFunc is exposed for testing.
// It allows mocking the feed parsing logic.
var ParserFunc = defaultParser

func defaultParser(r io.Reader) (*gofeed.Feed, error) {
	return gofeed.NewParser().Parse(r)
}

// Source fetches feeds over HTTP with conditional GET.
type Source struct {
	client *http.Client
}

// NewSource creates a Source. Options are passed to the HTTP client.
func NewSource(opts ...transport.Option) *Source {
	opts = append([]transport.Option{transport.WithAccept(feedAcceptHeader)}, opts...)
	return &Source{client: transport.NewClient(opts...)}
}

// Fetch downloads and parses f. When the server answers 304 to the stored
// validators, the result is marked NotModified and carries no items.
func (s *Source) Fetch(ctx context.Context, f reading.Feed) (usecase.FetchedFeed, error) {
	feedURL := strings.TrimSpace(f.URL)
	if feedURL == "" {
		return usecase.FetchedFeed{}, errors.New("feed url is empty")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return usecase.FetchedFeed{}, &reading.TransportError{Op: http.MethodGet, URL: feedURL, Err: err}
	}
	if f.ETag != "" {
		req.Header.Set("If-None-Match", f.ETag)
	}
	if f.LastModified != "" {
		req.Header.Set("If-Modified-Since", f.LastModified)
	}

	resp, err := transport.Do(s.client, req)
	if err != nil {
		return usecase.FetchedFeed{}, err
	}
	if resp.StatusCode == http.StatusNotModified {
		return usecase.FetchedFeed{Feed: f, NotModified: true}, nil
	}

	parsed, err := ParserFunc(bytes.NewReader(resp.Body))
	if err != nil {
		return usecase.FetchedFeed{}, reading.NewParseError(err)
	}

	out := f
	out.URL = feedURL
	out.ETag = resp.Header.Get("ETag")
	out.LastModified = resp.Header.Get("Last-Modified")
	applyFeed(&out, parsed)
	if out.IconURL == "" && out.SiteURL != "" {
		out.IconURL = s.Icon(ctx, out.SiteURL)
	}

	return usecase.FetchedFeed{Feed: out, Items: MapItems(out, parsed)}, nil
}

func applyFeed(f *reading.Feed, parsed *gofeed.Feed) {
	if title := strings.TrimSpace(parsed.Title); title != "" && f.Name == "" {
		f.Name = title
	}
	if f.Name == "" {
		f.Name = f.URL
	}
	if link := strings.TrimSpace(parsed.Link); link != "" {
		f.SiteURL = link
	}
	if parsed.Image != nil && strings.TrimSpace(parsed.Image.URL) != "" && f.IconURL == "" {
		f.IconURL = strings.TrimSpace(parsed.Image.URL)
	}
}

// MapItems converts parsed entries into items of f.
func MapItems(f reading.Feed, parsed *gofeed.Feed) []reading.Item {
	items := make([]reading.Item, 0, len(parsed.Items))
	for _, entry := range parsed.Items {
		if entry == nil {
			continue
		}
		items = append(items, mapItem(f, entry))
	}
	return items
}

func mapItem(f reading.Feed, entry *gofeed.Item) reading.Item {
	content := entry.Content
	if strings.TrimSpace(content) == "" {
		content = entry.Description
	}
	description := entry.Description
	if strings.TrimSpace(description) == "" {
		description = content
	}

	item := reading.Item{
		AccountID:   f.AccountID,
		FeedID:      f.ID,
		RemoteID:    ItemID(f.URL, entry),
		Title:       reading.NormalizeTitle(htmltext.Text(entry.Title)),
		Link:        strings.TrimSpace(entry.Link),
		Author:      author(entry),
		Description: htmltext.Excerpt(description, htmltext.ExcerptLength),
		Content:     content,
	}

	switch {
	case entry.PublishedParsed != nil:
		item.PubDate = entry.PublishedParsed.Local()
	case entry.UpdatedParsed != nil:
		item.PubDate = entry.UpdatedParsed.Local()
	}
	if entry.UpdatedParsed != nil {
		item.UpdatedAt = entry.UpdatedParsed.Local()
	}

	for _, enc := range entry.Enclosures {
		if enc == nil {
			continue
		}
		if link := reading.EnclosureImage(enc.Type, enc.URL); link != "" {
			item.ImageLink = link
			break
		}
	}
	return item
}

func author(entry *gofeed.Item) string {
	if entry.Author != nil && strings.TrimSpace(entry.Author.Name) != "" {
		return strings.TrimSpace(entry.Author.Name)
	}
	for _, a := range entry.Authors {
		if a != nil && strings.TrimSpace(a.Name) != "" {
			return strings.TrimSpace(a.Name)
		}
	}
	return ""
}

// ItemID derives a stable item identity from the feed URL and the entry guid,
// falling back to its link and then its title.
func ItemID(feedURL string, entry *gofeed.Item) string {
	key := strings.TrimSpace(entry.GUID)
	if key == "" {
		key = strings.TrimSpace(entry.Link)
	}
	if key == "" {
		key = strings.TrimSpace(entry.Title)
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(feedURL+"\n"+key)).String()
}
