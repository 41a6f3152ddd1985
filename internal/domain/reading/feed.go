// Package reading defines the canonical, account-agnostic reading models.
package reading

import (
	"mime"
	"strings"
	"time"
)

// PlaceholderTitle replaces blank item titles; titles are never stored empty.
const PlaceholderTitle = "(untitled)"

// Folder groups feeds of one account.
type Folder struct {
	ID        int64
	AccountID int64
	RemoteID  string
	Name      string
}

// Feed represents a subscription of one account.
type Feed struct {
	ID        int64
	AccountID int64
	RemoteID  string // empty for local feeds
	URL       string
	Name      string
	SiteURL   string
	IconURL   string

	// FolderID is the local folder, resolved from RemoteFolderID by the store.
	FolderID       *int64
	RemoteFolderID *string

	// Conditional GET validators of local feeds.
	ETag         string
	LastModified string
}

// Unfiled reports whether the feed has no folder.
func (f Feed) Unfiled() bool {
	return f.RemoteFolderID == nil && f.FolderID == nil
}

// Key returns the identity used to match the feed within its account.
func (f Feed) Key() string {
	if f.RemoteID != "" {
		return f.RemoteID
	}
	return f.URL
}

// Item represents a single article.
type Item struct {
	ID           int64
	AccountID    int64
	FeedID       int64
	RemoteID     string
	FeedRemoteID string

	Title       string
	Link        string
	Author      string
	Description string
	Content     string
	ImageLink   string

	PubDate   time.Time
	UpdatedAt time.Time

	IsRead    bool
	IsStarred bool
}

// State returns the full read/starred state of the item.
func (it Item) State() ItemState {
	return NewItemState(it.RemoteID, &it.IsRead, &it.IsStarred)
}

// NormalizeTitle trims a title and substitutes PlaceholderTitle when blank.
func NormalizeTitle(title string) string {
	title = strings.TrimSpace(title)
	if title == "" {
		return PlaceholderTitle
	}
	return title
}

// IsImageMIME reports whether an enclosure MIME type denotes an image.
func IsImageMIME(mimeType string) bool {
	mimeType = strings.TrimSpace(mimeType)
	if mimeType == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		mediaType = strings.ToLower(mimeType)
	}
	return strings.HasPrefix(mediaType, "image/")
}

// EnclosureImage returns link when mimeType is an image type, otherwise "".
func EnclosureImage(mimeType, link string) string {
	if !IsImageMIME(mimeType) {
		return ""
	}
	return strings.TrimSpace(link)
}

// LocalTime converts epoch seconds to the device's time zone.
func LocalTime(epochSeconds int64) time.Time {
	if epochSeconds <= 0 {
		return time.Time{}
	}
	return time.Unix(epochSeconds, 0).Local()
}

// Change describes what an upsert did to a stored row.
type Change int

const (
	// Unchanged means the stored row already matched.
	Unchanged Change = iota
	// Inserted means a new row was created.
	Inserted
	// Updated means an existing row was modified.
	Updated
)

// String implements fmt.Stringer.
func (c Change) String() string {
	switch c {
	case Inserted:
		return "inserted"
	case Updated:
		return "updated"
	default:
		return "unchanged"
	}
}
