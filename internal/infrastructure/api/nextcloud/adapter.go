// Package nextcloud talks to the Nextcloud News API (v1-3).
package nextcloud

import (
	"strconv"

	"github.com/tesso57/readsync/internal/domain/reading"
	"github.com/tesso57/readsync/internal/infrastructure/api/wire"
	"github.com/tesso57/readsync/internal/infrastructure/htmltext"
)

const (
	folderID = iota
	folderName
)

var folderNames = wire.NewNames("id", "name")

var (
	foldersRoot = wire.NewNames("folders")
	feedsRoot   = wire.NewNames("feeds")
	itemsRoot   = wire.NewNames("items")
)

// ParseFolders parses a {"folders":[...]} payload.
func ParseFolders(data []byte) ([]reading.Folder, error) {
	var folders []reading.Folder
	err := wire.Decode(data, func(it *wire.Iterator) {
		wire.Object(it, foldersRoot, func(it *wire.Iterator, _ int) {
			wire.Array(it, func(it *wire.Iterator) {
				var f reading.Folder
				wire.Object(it, folderNames, func(it *wire.Iterator, field int) {
					switch field {
					case folderID:
						f.RemoteID = wire.ID(it)
					case folderName:
						f.Name = wire.String(it)
					}
				})
				if wire.RequireID(it, "folder", f.RemoteID) {
					folders = append(folders, f)
				}
			})
		})
	})
	if err != nil {
		return nil, err
	}
	return folders, nil
}

const (
	feedID = iota
	feedURL
	feedTitle
	feedFavicon
	feedFolderID
	feedLink
)

var feedNames = wire.NewNames("id", "url", "title", "faviconLink", "folderId", "link")

// ParseFeeds parses a {"feeds":[...]} payload. A folderId of zero, a negative
// value or null leaves the feed unfiled.
func ParseFeeds(data []byte) ([]reading.Feed, error) {
	var feeds []reading.Feed
	err := wire.Decode(data, func(it *wire.Iterator) {
		wire.Object(it, feedsRoot, func(it *wire.Iterator, _ int) {
			wire.Array(it, func(it *wire.Iterator) {
				var f reading.Feed
				wire.Object(it, feedNames, func(it *wire.Iterator, field int) {
					switch field {
					case feedID:
						f.RemoteID = wire.ID(it)
					case feedURL:
						f.URL = wire.String(it)
					case feedTitle:
						f.Name = wire.String(it)
					case feedFavicon:
						f.IconURL = wire.String(it)
					case feedFolderID:
						if id, ok := wire.Int(it); ok && id > 0 {
							s := strconv.FormatInt(id, 10)
							f.RemoteFolderID = &s
						}
					case feedLink:
						f.SiteURL = wire.String(it)
					}
				})
				if wire.RequireID(it, "feed", f.RemoteID) {
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

const (
	itemID = iota
	itemURL
	itemTitle
	itemAuthor
	itemPubDate
	itemUpdatedDate
	itemBody
	itemEnclosureMime
	itemEnclosureLink
	itemFeedID
	itemUnread
	itemStarred
	itemLastModified
)

var itemNames = wire.NewNames(
	"id", "url", "title", "author", "pubDate", "updatedDate", "body",
	"enclosureMime", "enclosureLink", "feedId",
	"unread", "starred", "lastModified",
)

// ItemBatch is one page of items plus the highest lastModified it carries.
type ItemBatch struct {
	Items        []reading.Item
	LastModified int64
}

// ParseItems parses an {"items":[...]} payload. The wire "unread" flag is
// inverted into IsRead.
func ParseItems(data []byte) (ItemBatch, error) {
	var batch ItemBatch
	err := wire.Decode(data, func(it *wire.Iterator) {
		wire.Object(it, itemsRoot, func(it *wire.Iterator, _ int) {
			wire.Array(it, func(it *wire.Iterator) {
				item, lastModified := parseItem(it)
				if !wire.RequireID(it, "item", item.RemoteID) {
					return
				}
				batch.Items = append(batch.Items, item)
				batch.LastModified = max(batch.LastModified, lastModified)
			})
		})
	})
	if err != nil {
		return ItemBatch{}, err
	}
	return batch, nil
}

func parseItem(it *wire.Iterator) (reading.Item, int64) {
	var (
		item           reading.Item
		mimeType, link string
		lastModified   int64
	)
	wire.Object(it, itemNames, func(it *wire.Iterator, field int) {
		switch field {
		case itemID:
			item.RemoteID = wire.ID(it)
		case itemURL:
			item.Link = wire.String(it)
		case itemTitle:
			item.Title = wire.String(it)
		case itemAuthor:
			item.Author = wire.String(it)
		case itemPubDate:
			v, _ := wire.Int(it)
			item.PubDate = reading.LocalTime(v)
		case itemUpdatedDate:
			v, _ := wire.Int(it)
			item.UpdatedAt = reading.LocalTime(v)
		case itemBody:
			item.Content = wire.String(it)
		case itemEnclosureMime:
			mimeType = wire.String(it)
		case itemEnclosureLink:
			link = wire.String(it)
		case itemFeedID:
			item.FeedRemoteID = wire.ID(it)
		case itemUnread:
			item.IsRead = !wire.Bool(it)
		case itemStarred:
			item.IsStarred = wire.Bool(it)
		case itemLastModified:
			lastModified, _ = wire.Int(it)
		}
	})
	item.Title = reading.NormalizeTitle(item.Title)
	item.ImageLink = reading.EnclosureImage(mimeType, link)
	item.Description = htmltext.Excerpt(item.Content, htmltext.ExcerptLength)
	return item, lastModified
}

type folderBody struct {
	Name string `json:"name"`
}

type feedBody struct {
	URL      string `json:"url"`
	FolderID *int64 `json:"folderId"`
}

type itemIDsBody struct {
	ItemIDs []int64 `json:"itemIds"`
}

// EncodeFolder serializes a create or rename folder request.
func EncodeFolder(name string) ([]byte, error) {
	return wire.Marshal(folderBody{Name: name})
}

// EncodeFeed serializes a create feed request. A nil folder files the feed
// at the root.
func EncodeFeed(url string, remoteFolderID *string) ([]byte, error) {
	body := feedBody{URL: url}
	if remoteFolderID != nil {
		id, err := strconv.ParseInt(*remoteFolderID, 10, 64)
		if err != nil {
			return nil, reading.ParseErrorf("folder id %q is not numeric", *remoteFolderID)
		}
		if id > 0 {
			body.FolderID = &id
		}
	}
	return wire.Marshal(body)
}

// EncodeItemIDs serializes a bulk state change request.
func EncodeItemIDs(ids []string) ([]byte, error) {
	body := itemIDsBody{ItemIDs: make([]int64, 0, len(ids))}
	for _, id := range ids {
		v, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			return nil, reading.ParseErrorf("item id %q is not numeric", id)
		}
		body.ItemIDs = append(body.ItemIDs, v)
	}
	return wire.Marshal(body)
}
