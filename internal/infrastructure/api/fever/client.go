package fever

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/tesso57/readsync/internal/domain/account"
	"github.com/tesso57/readsync/internal/domain/reading"
	"github.com/tesso57/readsync/internal/infrastructure/transport"
)

const maxPages = 20

// Client calls a Fever endpoint. Every request posts the api key.
type Client struct {
	endpoint string
	apiKey   string
	http     *http.Client
}

// APIKey derives the Fever api key, md5("login:password") in hex.
func APIKey(login, password string) string {
	sum := md5.Sum([]byte(login + ":" + password))
	return hex.EncodeToString(sum[:])
}

// NewClient creates a client for acc. The account URL is the Fever endpoint,
// for example https://host/api/fever.php.
func NewClient(acc account.Account, opts ...transport.Option) *Client {
	endpoint := acc.BaseURL()
	if !strings.HasSuffix(endpoint, ".php") {
		endpoint += "/"
	}
	return &Client{
		endpoint: endpoint,
		apiKey:   APIKey(acc.Login, acc.Password),
		http:     transport.NewClient(opts...),
	}
}

func (c *Client) call(ctx context.Context, query string, form url.Values) ([]byte, error) {
	if form == nil {
		form = url.Values{}
	}
	form.Set("api_key", c.apiKey)
	target := c.endpoint + "?api"
	if query != "" {
		target += "&" + query
	}
	return transport.PostForm(ctx, c.http, target, form)
}

func (c *Client) withURL(err error) error {
	var authErr *reading.AuthError
	if errors.As(err, &authErr) && authErr.URL == "" {
		authErr.URL = c.endpoint
	}
	return err
}

// Login verifies the api key.
func (c *Client) Login(ctx context.Context) error {
	body, err := c.call(ctx, "", nil)
	if err != nil {
		return err
	}
	return c.withURL(ParseAck(body))
}

// Folders lists the groups.
func (c *Client) Folders(ctx context.Context) ([]reading.Folder, error) {
	body, err := c.call(ctx, "groups", nil)
	if err != nil {
		return nil, err
	}
	folders, err := ParseGroups(body)
	return folders, c.withURL(err)
}

// Feeds lists the feeds with their group and favicon.
func (c *Client) Feeds(ctx context.Context) ([]reading.Feed, error) {
	body, err := c.call(ctx, "feeds", nil)
	if err != nil {
		return nil, err
	}
	list, err := ParseFeeds(body)
	if err != nil {
		return nil, c.withURL(err)
	}
	if len(list.FaviconIDs) == 0 {
		return list.Feeds, nil
	}
	icons, err := c.favicons(ctx)
	if err != nil {
		if reading.IsAuth(err) {
			return nil, err
		}
		// Icons are cosmetic; the feed list is still complete.
		return list.Feeds, nil
	}
	for i, f := range list.Feeds {
		if icon, ok := icons[list.FaviconIDs[f.RemoteID]]; ok {
			list.Feeds[i].IconURL = icon
		}
	}
	return list.Feeds, nil
}

func (c *Client) favicons(ctx context.Context) (map[string]string, error) {
	body, err := c.call(ctx, "favicons", nil)
	if err != nil {
		return nil, err
	}
	icons, err := ParseFavicons(body)
	return icons, c.withURL(err)
}

// Items pages through items newer than cursor, the highest item id seen so
// far. The returned cursor is the highest id received.
func (c *Client) Items(ctx context.Context, cursor string) ([]reading.Item, string, error) {
	since, _ := strconv.ParseInt(cursor, 10, 64)
	var items []reading.Item
	for range maxPages {
		body, err := c.call(ctx, "items&since_id="+strconv.FormatInt(since, 10), nil)
		if err != nil {
			return items, strconv.FormatInt(since, 10), err
		}
		page, err := ParseItems(body)
		if err != nil {
			return items, strconv.FormatInt(since, 10), c.withURL(err)
		}
		if len(page.Items) == 0 || page.MaxID <= since {
			break
		}
		items = append(items, page.Items...)
		since = page.MaxID
	}
	return items, strconv.FormatInt(since, 10), nil
}

// StateSnapshot lists the unread and saved item ids.
func (c *Client) StateSnapshot(ctx context.Context) (reading.StateSnapshot, error) {
	unread, err := c.ids(ctx, UnreadItemIDs)
	if err != nil {
		return reading.StateSnapshot{}, err
	}
	saved, err := c.ids(ctx, SavedItemIDs)
	if err != nil {
		return reading.StateSnapshot{}, err
	}
	return reading.StateSnapshot{Unread: unread, Starred: saved}, nil
}

func (c *Client) ids(ctx context.Context, key string) ([]string, error) {
	body, err := c.call(ctx, key, nil)
	if err != nil {
		return nil, err
	}
	ids, err := ParseItemIDs(body, key)
	return ids, c.withURL(err)
}

// MarkItems pushes state changes one item at a time.
func (c *Client) MarkItems(ctx context.Context, changes reading.StateChanges) error {
	for _, call := range []struct {
		as  string
		ids []string
	}{
		{"read", changes.Read},
		{"unread", changes.Unread},
		{"saved", changes.Star},
		{"unsaved", changes.Unstar},
	} {
		for _, id := range call.ids {
			form := url.Values{"mark": {"item"}, "as": {call.as}, "id": {id}}
			body, err := c.call(ctx, "", form)
			if err != nil {
				return err
			}
			if err := ParseAck(body); err != nil {
				return c.withURL(err)
			}
		}
	}
	return nil
}
