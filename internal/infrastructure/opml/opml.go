// Package opml reads and writes OPML feed lists.
package opml

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gilliek/go-opml/opml"

	"github.com/tesso57/readsync/internal/domain/reading"
	"github.com/tesso57/readsync/internal/domain/subscription"
)

// Decode parses an OPML document into flat subscriptions. A feed is an
// outline with an xmlUrl; its group is the nearest enclosing outline.
func Decode(r io.Reader) ([]subscription.Subscription, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read opml: %w", err)
	}
	var doc opml.OPML
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, reading.NewParseError(fmt.Errorf("parse opml: %w", err))
	}

	var subs []subscription.Subscription
	for _, o := range doc.Body.Outlines {
		subs = walk(o, "", subs)
	}
	return subs, nil
}

func walk(o opml.Outline, group string, subs []subscription.Subscription) []subscription.Subscription {
	if url := strings.TrimSpace(o.XMLURL); url != "" {
		subs = append(subs, subscription.Subscription{URL: url, Title: label(o), Group: group})
	} else if name := label(o); name != "" {
		group = name
	}
	for _, child := range o.Outlines {
		subs = walk(child, group, subs)
	}
	return subs
}

func label(o opml.Outline) string {
	if t := strings.TrimSpace(o.Title); t != "" {
		return t
	}
	return strings.TrimSpace(o.Text)
}

// Encode writes groups as folder outlines with nested feeds, followed by
// the unfiled feeds.
func Encode(w io.Writer, title string, groups []subscription.FeedGroup, unfiled []subscription.Subscription) error {
	now := time.Now().Format(time.RFC1123Z)
	doc := opml.OPML{
		Version: "2.0",
		Head: opml.Head{
			Title:        title,
			DateCreated:  now,
			DateModified: now,
		},
	}

	for _, g := range groups {
		folder := opml.Outline{Title: g.Name, Text: g.Name}
		for _, s := range g.Feeds {
			folder.Outlines = append(folder.Outlines, feedOutline(s))
		}
		doc.Body.Outlines = append(doc.Body.Outlines, folder)
	}
	for _, s := range unfiled {
		doc.Body.Outlines = append(doc.Body.Outlines, feedOutline(s))
	}

	data, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal opml: %w", err)
	}
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	_, err = w.Write(append(data, '\n'))
	return err
}

func feedOutline(s subscription.Subscription) opml.Outline {
	title := s.Title
	if title == "" {
		title = s.URL
	}
	return opml.Outline{Type: "rss", Title: title, Text: title, XMLURL: s.URL}
}
