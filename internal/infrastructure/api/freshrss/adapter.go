// Package freshrss talks to FreshRSS through its Google Reader compatible API.
package freshrss

import (
	"bufio"
	"bytes"
	"strconv"
	"strings"

	"github.com/tesso57/readsync/internal/domain/reading"
	"github.com/tesso57/readsync/internal/infrastructure/api/wire"
	"github.com/tesso57/readsync/internal/infrastructure/htmltext"
)

// Stream and tag identifiers.
const (
	ReadingList  = "user/-/state/com.google/reading-list"
	ReadState    = "user/-/state/com.google/read"
	StarredState = "user/-/state/com.google/starred"
	LabelPrefix  = "user/-/label/"
	longIDPrefix = "tag:google.com,2005:reader/item/"
)

// LabelID returns the tag id of a folder name.
func LabelID(name string) string {
	return LabelPrefix + name
}

// NormalizeItemID converts the long hexadecimal item id form into the short
// decimal form used by stream/items/ids.
func NormalizeItemID(id string) string {
	hex, ok := strings.CutPrefix(id, longIDPrefix)
	if !ok {
		return id
	}
	v, err := strconv.ParseUint(hex, 16, 64)
	if err != nil {
		return id
	}
	return strconv.FormatUint(v, 10)
}

// ParseLogin extracts the Auth token from a ClientLogin response.
func ParseLogin(data []byte) (string, error) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		if token, ok := strings.CutPrefix(strings.TrimSpace(scanner.Text()), "Auth="); ok && token != "" {
			return token, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return "", reading.NewParseError(err)
	}
	return "", reading.ParseErrorf("login response has no Auth token")
}

const (
	tagID = iota
	tagType
)

var (
	tagsRoot = wire.NewNames("tags")
	tagNames = wire.NewNames("id", "type")
)

// ParseTags parses tag/list and keeps the labels as folders.
func ParseTags(data []byte) ([]reading.Folder, error) {
	var folders []reading.Folder
	err := wire.Decode(data, func(it *wire.Iterator) {
		wire.Object(it, tagsRoot, func(it *wire.Iterator, _ int) {
			wire.Array(it, func(it *wire.Iterator) {
				var id, typ string
				wire.Object(it, tagNames, func(it *wire.Iterator, field int) {
					switch field {
					case tagID:
						id = wire.String(it)
					case tagType:
						typ = wire.String(it)
					}
				})
				if !wire.RequireID(it, "tag", id) {
					return
				}
				name, isLabel := labelName(id)
				if !isLabel || (typ != "" && typ != "folder") {
					return
				}
				folders = append(folders, reading.Folder{RemoteID: id, Name: name})
			})
		})
	})
	if err != nil {
		return nil, err
	}
	return folders, nil
}

// labelName accepts both user/-/label/x and user/<id>/label/x.
func labelName(id string) (string, bool) {
	if !strings.HasPrefix(id, "user/") {
		return "", false
	}
	_, name, ok := strings.Cut(id, "/label/")
	return name, ok && name != ""
}

const (
	subID = iota
	subTitle
	subURL
	subHTMLURL
	subIconURL
	subCategories
)

const (
	catID = iota
	catLabel
)

var (
	subscriptionsRoot = wire.NewNames("subscriptions")
	subNames          = wire.NewNames("id", "title", "url", "htmlUrl", "iconUrl", "categories")
	catNames          = wire.NewNames("id", "label")
)

// ParseSubscriptions parses subscription/list. The first label category is
// the feed folder; feeds without one are unfiled.
func ParseSubscriptions(data []byte) ([]reading.Feed, error) {
	var feeds []reading.Feed
	err := wire.Decode(data, func(it *wire.Iterator) {
		wire.Object(it, subscriptionsRoot, func(it *wire.Iterator, _ int) {
			wire.Array(it, func(it *wire.Iterator) {
				var f reading.Feed
				wire.Object(it, subNames, func(it *wire.Iterator, field int) {
					switch field {
					case subID:
						f.RemoteID = wire.String(it)
					case subTitle:
						f.Name = wire.String(it)
					case subURL:
						f.URL = wire.String(it)
					case subHTMLURL:
						f.SiteURL = wire.String(it)
					case subIconURL:
						f.IconURL = wire.String(it)
					case subCategories:
						wire.Array(it, func(it *wire.Iterator) {
							var id string
							wire.Object(it, catNames, func(it *wire.Iterator, field int) {
								switch field {
								case catID:
									id = wire.String(it)
								case catLabel:
									it.Skip()
								}
							})
							if _, ok := labelName(id); ok && f.RemoteFolderID == nil {
								f.RemoteFolderID = &id
							}
						})
					}
				})
				if wire.RequireID(it, "subscription", f.RemoteID) {
					feeds = append(feeds, f)
				}
			})
		})
	})
	if err != nil {
		return nil, err
	}
	return feeds, nil
}

// Stream is one page of stream/contents.
type Stream struct {
	Items        []reading.Item
	Continuation string
}

const (
	streamItems = iota
	streamContinuation
)

const (
	entryID = iota
	entryPublished
	entryUpdated
	entryTitle
	entryAuthor
	entryCanonical
	entryAlternate
	entrySummary
	entryContent
	entryOrigin
	entryCategories
	entryEnclosure
)

const (
	hrefHref = iota
	hrefType
)

var (
	streamNames = wire.NewNames("items", "continuation")
	entryNames  = wire.NewNames(
		"id", "published", "updated", "title", "author", "canonical", "alternate",
		"summary", "content", "origin", "categories", "enclosure",
	)
	hrefNames    = wire.NewNames("href", "type")
	contentNames = wire.NewNames("content")
	originNames  = wire.NewNames("streamId")
)

// ParseStream parses a stream/contents page. Read and starred state come
// from the item categories, with no polarity inversion.
func ParseStream(data []byte) (Stream, error) {
	var s Stream
	err := wire.Decode(data, func(it *wire.Iterator) {
		wire.Object(it, streamNames, func(it *wire.Iterator, field int) {
			switch field {
			case streamItems:
				wire.Array(it, func(it *wire.Iterator) {
					item := parseEntry(it)
					if wire.RequireID(it, "item", item.RemoteID) {
						s.Items = append(s.Items, item)
					}
				})
			case streamContinuation:
				s.Continuation = wire.String(it)
			}
		})
	})
	if err != nil {
		return Stream{}, err
	}
	return s, nil
}

func parseEntry(it *wire.Iterator) reading.Item {
	var (
		item             reading.Item
		canonical, alt   string
		summary, content string
		mimeType, link   string
	)
	wire.Object(it, entryNames, func(it *wire.Iterator, field int) {
		switch field {
		case entryID:
			item.RemoteID = NormalizeItemID(wire.String(it))
		case entryPublished:
			v, _ := wire.Int(it)
			item.PubDate = reading.LocalTime(v)
		case entryUpdated:
			v, _ := wire.Int(it)
			item.UpdatedAt = reading.LocalTime(v)
		case entryTitle:
			item.Title = wire.String(it)
		case entryAuthor:
			item.Author = wire.String(it)
		case entryCanonical:
			canonical = firstHref(it)
		case entryAlternate:
			alt = firstHref(it)
		case entrySummary:
			summary = nestedContent(it)
		case entryContent:
			content = nestedContent(it)
		case entryOrigin:
			wire.Object(it, originNames, func(it *wire.Iterator, _ int) {
				item.FeedRemoteID = wire.String(it)
			})
		case entryCategories:
			for _, c := range wire.Strings(it) {
				switch {
				case isState(c, "read"):
					item.IsRead = true
				case isState(c, "starred"):
					item.IsStarred = true
				}
			}
		case entryEnclosure:
			wire.Array(it, func(it *wire.Iterator) {
				var href, typ string
				wire.Object(it, hrefNames, func(it *wire.Iterator, field int) {
					switch field {
					case hrefHref:
						href = wire.String(it)
					case hrefType:
						typ = wire.String(it)
					}
				})
				if link == "" && reading.IsImageMIME(typ) {
					mimeType, link = typ, href
				}
			})
		}
	})
	item.Title = reading.NormalizeTitle(item.Title)
	item.Link = canonical
	if item.Link == "" {
		item.Link = alt
	}
	item.Content = content
	if item.Content == "" {
		item.Content = summary
	}
	item.ImageLink = reading.EnclosureImage(mimeType, link)
	item.Description = htmltext.Excerpt(item.Content, htmltext.ExcerptLength)
	return item
}

// isState matches user/-/state/com.google/<name> and user/<id>/state/com.google/<name>.
func isState(category, name string) bool {
	return strings.HasPrefix(category, "user/") && strings.HasSuffix(category, "/state/com.google/"+name)
}

func firstHref(it *wire.Iterator) string {
	var href string
	wire.Array(it, func(it *wire.Iterator) {
		wire.Object(it, hrefNames, func(it *wire.Iterator, field int) {
			v := wire.String(it)
			if field == hrefHref && href == "" {
				href = v
			}
		})
	})
	return href
}

func nestedContent(it *wire.Iterator) string {
	var s string
	wire.Object(it, contentNames, func(it *wire.Iterator, _ int) {
		s = wire.String(it)
	})
	return s
}

// ItemRefs is one page of stream/items/ids.
type ItemRefs struct {
	IDs          []string
	Continuation string
}

const (
	refsItemRefs = iota
	refsContinuation
)

var (
	refsNames = wire.NewNames("itemRefs", "continuation")
	refNames  = wire.NewNames("id")
)

// ParseItemRefs parses a stream/items/ids page.
func ParseItemRefs(data []byte) (ItemRefs, error) {
	var refs ItemRefs
	err := wire.Decode(data, func(it *wire.Iterator) {
		wire.Object(it, refsNames, func(it *wire.Iterator, field int) {
			if field == refsContinuation {
				refs.Continuation = wire.String(it)
				return
			}
			wire.Array(it, func(it *wire.Iterator) {
				var id string
				wire.Object(it, refNames, func(it *wire.Iterator, _ int) {
					id = wire.ID(it)
				})
				if wire.RequireID(it, "itemRef", id) {
					refs.IDs = append(refs.IDs, NormalizeItemID(id))
				}
			})
		})
	})
	if err != nil {
		return ItemRefs{}, err
	}
	return refs, nil
}

// QuickAdd is the result of subscription/quickadd.
type QuickAdd struct {
	StreamID   string
	StreamName string
	Query      string
}

const (
	quickAddStreamID = iota
	quickAddStreamName
	quickAddQuery
	quickAddNumResults
	quickAddError
)

var quickAddNames = wire.NewNames("streamId", "streamName", "query", "numResults", "error")

// ParseQuickAdd parses a subscription/quickadd response.
func ParseQuickAdd(data []byte) (QuickAdd, error) {
	var (
		q       QuickAdd
		results int64 = -1
		failure string
	)
	err := wire.Decode(data, func(it *wire.Iterator) {
		wire.Object(it, quickAddNames, func(it *wire.Iterator, field int) {
			switch field {
			case quickAddStreamID:
				q.StreamID = wire.String(it)
			case quickAddStreamName:
				q.StreamName = wire.String(it)
			case quickAddQuery:
				q.Query = wire.String(it)
			case quickAddNumResults:
				results, _ = wire.Int(it)
			case quickAddError:
				failure = wire.String(it)
			}
		})
	})
	if err != nil {
		return QuickAdd{}, err
	}
	if failure != "" {
		return QuickAdd{}, reading.NewValidationError("url", failure)
	}
	if results == 0 || q.StreamID == "" {
		return QuickAdd{}, reading.NewValidationError("url", "no feed found at "+q.Query)
	}
	return q, nil
}
