package nextcloud

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/tesso57/readsync/internal/domain/account"
	"github.com/tesso57/readsync/internal/domain/reading"
	"github.com/tesso57/readsync/internal/infrastructure/transport"
)

// APIPath is appended to the account URL.
const APIPath = "/index.php/apps/news/api/v1-3"

// Client calls a Nextcloud News server with basic auth.
type Client struct {
	base string
	http *http.Client
}

// NewClient creates a client for acc. Extra options are applied after the
// basic auth option.
func NewClient(acc account.Account, opts ...transport.Option) *Client {
	opts = append([]transport.Option{
		transport.WithAuth(transport.BasicAuth{Login: acc.Login, Password: acc.Password}),
	}, opts...)
	return &Client{base: acc.BaseURL() + APIPath, http: transport.NewClient(opts...)}
}

// Login checks the server is reachable and accepts the credentials.
// Every later request carries them again.
func (c *Client) Login(ctx context.Context) error {
	_, err := transport.Get(ctx, c.http, c.base+"/version")
	return err
}

// Folders lists every folder.
func (c *Client) Folders(ctx context.Context) ([]reading.Folder, error) {
	body, err := transport.Get(ctx, c.http, c.base+"/folders")
	if err != nil {
		return nil, err
	}
	return ParseFolders(body)
}

// Feeds lists every feed.
func (c *Client) Feeds(ctx context.Context) ([]reading.Feed, error) {
	body, err := transport.Get(ctx, c.http, c.base+"/feeds")
	if err != nil {
		return nil, err
	}
	return ParseFeeds(body)
}

// Items returns the items changed since cursor, a lastModified timestamp in
// seconds. An empty cursor fetches every unread and every starred item.
func (c *Client) Items(ctx context.Context, cursor string) ([]reading.Item, string, error) {
	if cursor == "" {
		return c.initialItems(ctx)
	}
	q := url.Values{}
	q.Set("lastModified", cursor)
	q.Set("type", "3")
	q.Set("id", "0")
	batch, err := c.items(ctx, "/items/updated?"+q.Encode())
	if err != nil {
		return nil, cursor, err
	}
	return batch.Items, nextCursor(cursor, batch.LastModified), nil
}

func (c *Client) initialItems(ctx context.Context) ([]reading.Item, string, error) {
	unread := url.Values{}
	unread.Set("type", "3")
	unread.Set("id", "0")
	unread.Set("getRead", "false")
	unread.Set("batchSize", "-1")
	first, err := c.items(ctx, "/items?"+unread.Encode())
	if err != nil {
		return nil, "", err
	}

	starred := url.Values{}
	starred.Set("type", "2")
	starred.Set("id", "0")
	starred.Set("getRead", "true")
	starred.Set("batchSize", "-1")
	second, err := c.items(ctx, "/items?"+starred.Encode())
	if err != nil {
		return nil, "", err
	}

	seen := make(map[string]struct{}, len(first.Items))
	items := first.Items
	for _, it := range first.Items {
		seen[it.RemoteID] = struct{}{}
	}
	for _, it := range second.Items {
		if _, ok := seen[it.RemoteID]; !ok {
			items = append(items, it)
		}
	}
	return items, nextCursor("", max(first.LastModified, second.LastModified)), nil
}

func (c *Client) items(ctx context.Context, path string) (ItemBatch, error) {
	body, err := transport.Get(ctx, c.http, c.base+path)
	if err != nil {
		return ItemBatch{}, err
	}
	return ParseItems(body)
}

func nextCursor(current string, lastModified int64) string {
	if lastModified <= 0 {
		return current
	}
	if old, err := strconv.ParseInt(current, 10, 64); err == nil && old > lastModified {
		return current
	}
	return strconv.FormatInt(lastModified, 10)
}

// MarkItems pushes grouped state changes.
func (c *Client) MarkItems(ctx context.Context, changes reading.StateChanges) error {
	for _, call := range []struct {
		action string
		ids    []string
	}{
		{"read", changes.Read},
		{"unread", changes.Unread},
		{"star", changes.Star},
		{"unstar", changes.Unstar},
	} {
		if len(call.ids) == 0 {
			continue
		}
		body, err := EncodeItemIDs(call.ids)
		if err != nil {
			return err
		}
		if _, err := transport.Send(ctx, c.http, http.MethodPut, c.base+"/items/"+call.action+"/multiple", "application/json", body); err != nil {
			return err
		}
	}
	return nil
}

// CreateFolder creates a folder and returns it as stored by the server.
func (c *Client) CreateFolder(ctx context.Context, name string) (reading.Folder, error) {
	body, err := EncodeFolder(name)
	if err != nil {
		return reading.Folder{}, err
	}
	resp, err := transport.Send(ctx, c.http, http.MethodPost, c.base+"/folders", "application/json", body)
	if err != nil {
		return reading.Folder{}, err
	}
	folders, err := ParseFolders(resp)
	if err != nil {
		return reading.Folder{}, err
	}
	if len(folders) == 0 {
		return reading.Folder{}, reading.ParseErrorf("create folder: empty response")
	}
	return folders[0], nil
}

// CreateFeed subscribes to feedURL and returns the new feed.
func (c *Client) CreateFeed(ctx context.Context, feedURL string, remoteFolderID *string) (reading.Feed, error) {
	body, err := EncodeFeed(feedURL, remoteFolderID)
	if err != nil {
		return reading.Feed{}, err
	}
	resp, err := transport.Send(ctx, c.http, http.MethodPost, c.base+"/feeds", "application/json", body)
	if err != nil {
		return reading.Feed{}, err
	}
	feeds, err := ParseFeeds(resp)
	if err != nil {
		return reading.Feed{}, err
	}
	if len(feeds) == 0 {
		return reading.Feed{}, reading.ParseErrorf("create feed: empty response")
	}
	return feeds[0], nil
}

// DeleteFeed unsubscribes from a feed.
func (c *Client) DeleteFeed(ctx context.Context, remoteID string) error {
	_, err := transport.Send(ctx, c.http, http.MethodDelete, c.base+"/feeds/"+url.PathEscape(remoteID), "", nil)
	return err
}
