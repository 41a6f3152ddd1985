// Package fever talks to servers implementing the Fever API.
package fever

import (
	"strconv"

	"github.com/tesso57/readsync/internal/domain/reading"
	"github.com/tesso57/readsync/internal/infrastructure/api/wire"
	"github.com/tesso57/readsync/internal/infrastructure/htmltext"
)

// Every Fever response carries api_version and auth; auth 0 means the api
// key was rejected.
type header struct {
	auth    int64
	hasAuth bool
}

func (h header) check() error {
	if h.hasAuth && h.auth == 0 {
		return &reading.AuthError{}
	}
	return nil
}

func (h *header) read(it *wire.Iterator) {
	h.auth, h.hasAuth = wire.Int(it)
}

// decode runs fn and reports auth rejection ahead of parse failures.
func decode(data []byte, h *header, fn func(it *wire.Iterator)) error {
	err := wire.Decode(data, fn)
	if authErr := h.check(); authErr != nil {
		return authErr
	}
	return err
}

const (
	groupsAuth = iota
	groupsGroups
	groupsFeedsGroups
)

var groupsRoot = wire.NewNames("auth", "groups", "feeds_groups")

const (
	groupID = iota
	groupTitle
)

var groupNames = wire.NewNames("id", "title")

const (
	feedsGroupGroupID = iota
	feedsGroupFeedIDs
)

var feedsGroupNames = wire.NewNames("group_id", "feed_ids")

// ParseGroups parses the groups endpoint into folders.
func ParseGroups(data []byte) ([]reading.Folder, error) {
	var (
		h       header
		folders []reading.Folder
	)
	err := decode(data, &h, func(it *wire.Iterator) {
		wire.Object(it, groupsRoot, func(it *wire.Iterator, field int) {
			switch field {
			case groupsAuth:
				h.read(it)
			case groupsGroups:
				wire.Array(it, func(it *wire.Iterator) {
					var f reading.Folder
					wire.Object(it, groupNames, func(it *wire.Iterator, field int) {
						switch field {
						case groupID:
							f.RemoteID = wire.ID(it)
						case groupTitle:
							f.Name = wire.String(it)
						}
					})
					if wire.RequireID(it, "group", f.RemoteID) {
						folders = append(folders, f)
					}
				})
			case groupsFeedsGroups:
				it.Skip()
			}
		})
	})
	if err != nil {
		return nil, err
	}
	return folders, nil
}

// parseFeedsGroups maps feed ids to their group id.
func parseFeedsGroups(it *wire.Iterator, into map[string]string) {
	wire.Array(it, func(it *wire.Iterator) {
		var (
			group   int64
			feedIDs string
		)
		wire.Object(it, feedsGroupNames, func(it *wire.Iterator, field int) {
			switch field {
			case feedsGroupGroupID:
				group, _ = wire.Int(it)
			case feedsGroupFeedIDs:
				feedIDs = wire.String(it)
			}
		})
		if group <= 0 {
			return
		}
		for _, id := range wire.SplitIDs(feedIDs) {
			if _, ok := into[id]; !ok {
				into[id] = strconv.FormatInt(group, 10)
			}
		}
	})
}

const (
	feedsAuth = iota
	feedsFeeds
	feedsFeedsGroups
)

var feedsRoot = wire.NewNames("auth", "feeds", "feeds_groups")

const (
	feedID = iota
	feedFaviconID
	feedTitle
	feedURL
	feedSiteURL
)

var feedNames = wire.NewNames("id", "favicon_id", "title", "url", "site_url")

// FeedList is the parsed feeds endpoint. FaviconIDs maps feed remote ids to
// their favicon id; feeds without a favicon are absent.
type FeedList struct {
	Feeds      []reading.Feed
	FaviconIDs map[string]string
}

// ParseFeeds parses the feeds endpoint. Folder membership comes from the
// feeds_groups block of the same payload; feeds in no group are unfiled.
func ParseFeeds(data []byte) (FeedList, error) {
	var (
		h        header
		feeds    []reading.Feed
		groups   = map[string]string{}
		favicons = map[string]string{}
	)
	err := decode(data, &h, func(it *wire.Iterator) {
		wire.Object(it, feedsRoot, func(it *wire.Iterator, field int) {
			switch field {
			case feedsAuth:
				h.read(it)
			case feedsFeeds:
				wire.Array(it, func(it *wire.Iterator) {
					var (
						f       reading.Feed
						favicon int64
					)
					wire.Object(it, feedNames, func(it *wire.Iterator, field int) {
						switch field {
						case feedID:
							f.RemoteID = wire.ID(it)
						case feedFaviconID:
							favicon, _ = wire.Int(it)
						case feedTitle:
							f.Name = wire.String(it)
						case feedURL:
							f.URL = wire.String(it)
						case feedSiteURL:
							f.SiteURL = wire.String(it)
						}
					})
					if wire.RequireID(it, "feed", f.RemoteID) {
						feeds = append(feeds, f)
						if favicon > 0 {
							favicons[f.RemoteID] = strconv.FormatInt(favicon, 10)
						}
					}
				})
			case feedsFeedsGroups:
				parseFeedsGroups(it, groups)
			}
		})
	})
	if err != nil {
		return FeedList{}, err
	}
	for i := range feeds {
		if group, ok := groups[feeds[i].RemoteID]; ok {
			feeds[i].RemoteFolderID = &group
		}
	}
	return FeedList{Feeds: feeds, FaviconIDs: favicons}, nil
}

const (
	faviconsAuth = iota
	faviconsList
)

var faviconsRoot = wire.NewNames("auth", "favicons")

const (
	faviconID = iota
	faviconData
)

var faviconNames = wire.NewNames("id", "data")

// ParseFavicons parses the favicons endpoint into data URLs keyed by favicon
// id. Fever sends the data as "<mime>;base64,<payload>".
func ParseFavicons(data []byte) (map[string]string, error) {
	var (
		h   header
		out = map[string]string{}
	)
	err := decode(data, &h, func(it *wire.Iterator) {
		wire.Object(it, faviconsRoot, func(it *wire.Iterator, field int) {
			switch field {
			case faviconsAuth:
				h.read(it)
			case faviconsList:
				wire.Array(it, func(it *wire.Iterator) {
					var id, payload string
					wire.Object(it, faviconNames, func(it *wire.Iterator, field int) {
						switch field {
						case faviconID:
							id = wire.ID(it)
						case faviconData:
							payload = wire.String(it)
						}
					})
					if wire.RequireID(it, "favicon", id) && payload != "" {
						out[id] = "data:" + payload
					}
				})
			}
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

const (
	itemsAuth = iota
	itemsItems
)

var itemsRoot = wire.NewNames("auth", "items")

const (
	itemID = iota
	itemFeedID
	itemTitle
	itemAuthor
	itemHTML
	itemURL
	itemIsSaved
	itemIsRead
	itemCreatedOnTime
)

var itemNames = wire.NewNames("id", "feed_id", "title", "author", "html", "url", "is_saved", "is_read", "created_on_time")

// ItemPage is one page of the items endpoint.
type ItemPage struct {
	Items []reading.Item
	MaxID int64
}

// ParseItems parses the items endpoint. is_read already has the canonical
// polarity.
func ParseItems(data []byte) (ItemPage, error) {
	var (
		h    header
		page ItemPage
	)
	err := decode(data, &h, func(it *wire.Iterator) {
		wire.Object(it, itemsRoot, func(it *wire.Iterator, field int) {
			switch field {
			case itemsAuth:
				h.read(it)
			case itemsItems:
				wire.Array(it, func(it *wire.Iterator) {
					item := parseItem(it)
					if !wire.RequireID(it, "item", item.RemoteID) {
						return
					}
					if id, err := strconv.ParseInt(item.RemoteID, 10, 64); err == nil {
						page.MaxID = max(page.MaxID, id)
					}
					page.Items = append(page.Items, item)
				})
			}
		})
	})
	if err != nil {
		return ItemPage{}, err
	}
	return page, nil
}

func parseItem(it *wire.Iterator) reading.Item {
	var item reading.Item
	wire.Object(it, itemNames, func(it *wire.Iterator, field int) {
		switch field {
		case itemID:
			item.RemoteID = wire.ID(it)
		case itemFeedID:
			item.FeedRemoteID = wire.ID(it)
		case itemTitle:
			item.Title = wire.String(it)
		case itemAuthor:
			item.Author = wire.String(it)
		case itemHTML:
			item.Content = wire.String(it)
		case itemURL:
			item.Link = wire.String(it)
		case itemIsSaved:
			item.IsStarred = wire.Bool(it)
		case itemIsRead:
			item.IsRead = wire.Bool(it)
		case itemCreatedOnTime:
			v, _ := wire.Int(it)
			item.PubDate = reading.LocalTime(v)
		}
	})
	item.Title = reading.NormalizeTitle(item.Title)
	item.Description = htmltext.Excerpt(item.Content, htmltext.ExcerptLength)
	return item
}

// ID list endpoints.
const (
	UnreadItemIDs = "unread_item_ids"
	SavedItemIDs  = "saved_item_ids"
)

const (
	idsAuth = iota
	idsList
)

// ParseItemIDs parses an id list endpoint; key is UnreadItemIDs or SavedItemIDs.
func ParseItemIDs(data []byte, key string) ([]string, error) {
	var (
		h   header
		ids []string
	)
	names := wire.NewNames("auth", key)
	err := decode(data, &h, func(it *wire.Iterator) {
		wire.Object(it, names, func(it *wire.Iterator, field int) {
			switch field {
			case idsAuth:
				h.read(it)
			case idsList:
				ids = wire.SplitIDs(wire.String(it))
			}
		})
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

var ackRoot = wire.NewNames("auth")

// ParseAck checks a write response for auth rejection.
func ParseAck(data []byte) error {
	var h header
	return decode(data, &h, func(it *wire.Iterator) {
		wire.Object(it, ackRoot, func(it *wire.Iterator, _ int) {
			h.read(it)
		})
	})
}
