package feed

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/mmcdole/gofeed"

	"github.com/tesso57/readsync/internal/domain/reading"
)

const rssBody = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
  <title>Example</title>
  <link>https://example.com/</link>
  <image><url>https://example.com/logo.png</url></image>
  <item>
    <title>First</title>
    <link>https://example.com/1</link>
    <guid>guid-1</guid>
    <description>&lt;p&gt;Hello &lt;b&gt;there&lt;/b&gt;&lt;/p&gt;</description>
    <pubDate>Mon, 02 Jan 2006 15:04:05 GMT</pubDate>
    <enclosure url="https://example.com/1.jpg" type="image/jpeg" length="1"/>
  </item>
  <item>
    <title></title>
    <link>https://example.com/2</link>
    <enclosure url="https://example.com/2.mp3" type="audio/mpeg" length="1"/>
  </item>
</channel>
</rss>`

func TestSourceHeaders(t *testing.T) {
	var gotAccept, gotUA string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAccept = r.Header.Get("Accept")
		gotUA = r.Header.Get("User-Agent")
		_, _ = w.Write([]byte(rssBody))
	}))
	defer server.Close()

	if _, err := NewSource().Fetch(context.Background(), reading.Feed{URL: server.URL}); err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if !strings.Contains(gotAccept, "application/atom+xml") {
		t.Errorf("Expected Accept header to include atom, got %q", gotAccept)
	}
	if gotUA != "Readsync/1.0" {
		t.Errorf("Expected User-Agent 'Readsync/1.0', got %q", gotUA)
	}
}

func TestSourceFetch(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		w.Header().Set("Last-Modified", "Mon, 02 Jan 2006 15:04:05 GMT")
		_, _ = w.Write([]byte(rssBody))
	}))
	defer server.Close()

	src := NewSource()
	got, err := src.Fetch(context.Background(), reading.Feed{ID: 3, AccountID: 1, URL: " " + server.URL + " "})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if got.NotModified {
		t.Fatal("first fetch must not be NotModified")
	}
	if got.Feed.Name != "Example" || got.Feed.SiteURL != "https://example.com/" {
		t.Errorf("unexpected feed metadata: %+v", got.Feed)
	}
	if got.Feed.IconURL != "https://example.com/logo.png" {
		t.Errorf("Expected channel image as icon, got %q", got.Feed.IconURL)
	}
	if got.Feed.ETag != `"v1"` || got.Feed.LastModified == "" {
		t.Errorf("validators not stored: %+v", got.Feed)
	}
	if len(got.Items) != 2 {
		t.Fatalf("Expected 2 items, got %d", len(got.Items))
	}

	first := got.Items[0]
	if first.FeedID != 3 || first.AccountID != 1 {
		t.Errorf("item not linked to feed: %+v", first)
	}
	if first.ImageLink != "https://example.com/1.jpg" {
		t.Errorf("Expected image enclosure, got %q", first.ImageLink)
	}
	if first.Description != "Hello there" {
		t.Errorf("Expected stripped description, got %q", first.Description)
	}
	if first.PubDate.IsZero() {
		t.Error("Expected pub date")
	}

	second := got.Items[1]
	if second.Title != reading.PlaceholderTitle {
		t.Errorf("Expected placeholder title, got %q", second.Title)
	}
	if second.ImageLink != "" {
		t.Errorf("audio enclosure must not become an image, got %q", second.ImageLink)
	}

	again, err := src.Fetch(context.Background(), got.Feed)
	if err != nil {
		t.Fatalf("conditional Fetch failed: %v", err)
	}
	if !again.NotModified || len(again.Items) != 0 {
		t.Errorf("Expected NotModified result, got %+v", again)
	}
	if requests.Load() != 2 {
		t.Errorf("Expected 2 requests, got %d", requests.Load())
	}
}

func TestSourceFetchErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte("<html><body>not a feed</body></html>"))
	}))
	defer server.Close()

	_, err := NewSource().Fetch(context.Background(), reading.Feed{URL: server.URL})
	if !reading.IsParse(err) {
		t.Errorf("Expected ParseError, got %v", err)
	}

	_, err = NewSource().Fetch(context.Background(), reading.Feed{URL: server.URL + "/missing"})
	var te *reading.TransportError
	if !errors.As(err, &te) || te.StatusCode != http.StatusNotFound {
		t.Errorf("Expected TransportError 404, got %v", err)
	}

	if _, err := NewSource().Fetch(context.Background(), reading.Feed{URL: "  "}); err == nil {
		t.Error("Expected error for empty url")
	}
}

func TestFetchUsesParserFunc(t *testing.T) {
	originalParser := ParserFunc
	defer func() { ParserFunc = originalParser }()

	ParserFunc = func(_ io.Reader) (*gofeed.Feed, error) {
		return &gofeed.Feed{Title: "Mocked", Items: []*gofeed.Item{{Title: "Only", Link: "http://x/1"}}}, nil
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	got, err := NewSource().Fetch(context.Background(), reading.Feed{URL: server.URL, Name: "Custom"})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if got.Feed.Name != "Custom" {
		t.Errorf("Expected user feed name to be kept, got %q", got.Feed.Name)
	}
	if len(got.Items) != 1 || got.Items[0].Title != "Only" {
		t.Errorf("unexpected items: %+v", got.Items)
	}
}

func TestItemID(t *testing.T) {
	a := ItemID("http://a/feed", &gofeed.Item{GUID: "g1", Link: "http://a/1"})
	b := ItemID("http://a/feed", &gofeed.Item{GUID: "g1", Link: "http://a/changed"})
	c := ItemID("http://b/feed", &gofeed.Item{GUID: "g1"})
	d := ItemID("http://a/feed", &gofeed.Item{Link: "http://a/1"})

	if a != b {
		t.Error("guid must define identity")
	}
	if a == c {
		t.Error("feed url must scope identity")
	}
	if a == d {
		t.Error("link fallback must differ from guid")
	}
	if len(a) != 36 {
		t.Errorf("Expected uuid, got %q", a)
	}
}
