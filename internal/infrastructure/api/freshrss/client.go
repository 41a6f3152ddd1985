package freshrss

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tesso57/readsync/internal/domain/account"
	"github.com/tesso57/readsync/internal/domain/reading"
	"github.com/tesso57/readsync/internal/infrastructure/transport"
)

// APIPath is appended to the account URL.
const APIPath = "/api/greader.php"

const (
	pageSize   = 1000
	idPageSize = 10000
	maxPages   = 100
)

// Client calls the FreshRSS Google Reader API.
type Client struct {
	base     string
	login    string
	password string
	http     *http.Client
	auth     *transport.TokenAuth
	now      func() time.Time

	mu         sync.Mutex
	writeToken string
}

// NewClient creates a client for acc.
func NewClient(acc account.Account, now func() time.Time, opts ...transport.Option) *Client {
	if now == nil {
		now = time.Now
	}
	auth := &transport.TokenAuth{Scheme: "GoogleLogin auth="}
	opts = append([]transport.Option{transport.WithAuth(auth)}, opts...)
	return &Client{
		base:     acc.BaseURL() + APIPath,
		login:    acc.Login,
		password: acc.Password,
		http:     transport.NewClient(opts...),
		auth:     auth,
		now:      now,
	}
}

// Login obtains a session token unless one is already held.
func (c *Client) Login(ctx context.Context) error {
	if c.auth.Token() != "" {
		return nil
	}
	form := url.Values{}
	form.Set("Email", c.login)
	form.Set("Passwd", c.password)
	body, err := transport.PostForm(ctx, c.http, c.base+"/accounts/ClientLogin", form)
	if err != nil {
		return err
	}
	token, err := ParseLogin(body)
	if err != nil {
		return err
	}
	c.auth.SetToken(token)
	return nil
}

func (c *Client) api(path string, q url.Values) string {
	if q == nil {
		q = url.Values{}
	}
	q.Set("output", "json")
	return c.base + "/reader/api/0/" + path + "?" + q.Encode()
}

// Folders lists the labels.
func (c *Client) Folders(ctx context.Context) ([]reading.Folder, error) {
	body, err := transport.Get(ctx, c.http, c.api("tag/list", nil))
	if err != nil {
		return nil, err
	}
	return ParseTags(body)
}

// Feeds lists the subscriptions.
func (c *Client) Feeds(ctx context.Context) ([]reading.Feed, error) {
	body, err := transport.Get(ctx, c.http, c.api("subscription/list", nil))
	if err != nil {
		return nil, err
	}
	return ParseSubscriptions(body)
}

// Items returns the reading list newer than cursor, a unix timestamp. An empty
// cursor fetches every unread and every starred item. The returned cursor is
// the time the fetch started.
func (c *Client) Items(ctx context.Context, cursor string) ([]reading.Item, string, error) {
	started := strconv.FormatInt(c.now().Unix(), 10)
	if cursor == "" {
		unread, err := c.stream(ctx, ReadingList, url.Values{"xt": {ReadState}})
		if err != nil {
			return nil, "", err
		}
		starred, err := c.stream(ctx, StarredState, nil)
		if err != nil {
			return nil, "", err
		}
		return mergeItems(unread, starred), started, nil
	}
	items, err := c.stream(ctx, ReadingList, url.Values{"ot": {cursor}})
	if err != nil {
		return nil, cursor, err
	}
	return items, started, nil
}

func (c *Client) stream(ctx context.Context, streamID string, extra url.Values) ([]reading.Item, error) {
	var items []reading.Item
	continuation := ""
	for range maxPages {
		q := url.Values{}
		for k, v := range extra {
			q[k] = v
		}
		q.Set("n", strconv.Itoa(pageSize))
		if continuation != "" {
			q.Set("c", continuation)
		}
		body, err := transport.Get(ctx, c.http, c.api("stream/contents/"+streamID, q))
		if err != nil {
			return nil, err
		}
		page, err := ParseStream(body)
		if err != nil {
			return nil, err
		}
		items = append(items, page.Items...)
		if page.Continuation == "" || len(page.Items) == 0 {
			break
		}
		continuation = page.Continuation
	}
	return items, nil
}

func mergeItems(first, second []reading.Item) []reading.Item {
	seen := make(map[string]struct{}, len(first))
	for _, it := range first {
		seen[it.RemoteID] = struct{}{}
	}
	out := first
	for _, it := range second {
		if _, ok := seen[it.RemoteID]; !ok {
			out = append(out, it)
		}
	}
	return out
}

// StateSnapshot lists the ids of every unread and every starred item.
func (c *Client) StateSnapshot(ctx context.Context) (reading.StateSnapshot, error) {
	unread, err := c.itemIDs(ctx, url.Values{"s": {ReadingList}, "xt": {ReadState}})
	if err != nil {
		return reading.StateSnapshot{}, err
	}
	starred, err := c.itemIDs(ctx, url.Values{"s": {StarredState}})
	if err != nil {
		return reading.StateSnapshot{}, err
	}
	return reading.StateSnapshot{Unread: unread, Starred: starred}, nil
}

func (c *Client) itemIDs(ctx context.Context, base url.Values) ([]string, error) {
	var ids []string
	continuation := ""
	for range maxPages {
		q := url.Values{}
		for k, v := range base {
			q[k] = v
		}
		q.Set("n", strconv.Itoa(idPageSize))
		if continuation != "" {
			q.Set("c", continuation)
		}
		body, err := transport.Get(ctx, c.http, c.api("stream/items/ids", q))
		if err != nil {
			return nil, err
		}
		refs, err := ParseItemRefs(body)
		if err != nil {
			return nil, err
		}
		ids = append(ids, refs.IDs...)
		if refs.Continuation == "" || len(refs.IDs) == 0 {
			break
		}
		continuation = refs.Continuation
	}
	return ids, nil
}

func (c *Client) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeToken != "" {
		return c.writeToken, nil
	}
	body, err := transport.Get(ctx, c.http, c.base+"/reader/api/0/token")
	if err != nil {
		return "", err
	}
	token := strings.TrimSpace(string(body))
	if token == "" {
		return "", reading.ParseErrorf("empty write token")
	}
	c.writeToken = token
	return token, nil
}

func (c *Client) post(ctx context.Context, path string, form url.Values) ([]byte, error) {
	token, err := c.token(ctx)
	if err != nil {
		return nil, err
	}
	form.Set("T", token)
	return transport.PostForm(ctx, c.http, c.base+"/reader/api/0/"+path, form)
}

// MarkItems pushes grouped state changes through edit-tag.
func (c *Client) MarkItems(ctx context.Context, changes reading.StateChanges) error {
	for _, call := range []struct {
		op  string
		tag string
		ids []string
	}{
		{"a", ReadState, changes.Read},
		{"r", ReadState, changes.Unread},
		{"a", StarredState, changes.Star},
		{"r", StarredState, changes.Unstar},
	} {
		if len(call.ids) == 0 {
			continue
		}
		form := url.Values{"i": call.ids}
		form.Set(call.op, call.tag)
		if _, err := c.post(ctx, "edit-tag", form); err != nil {
			return err
		}
	}
	return nil
}

// CreateFeed subscribes to feedURL and files it under the given label.
func (c *Client) CreateFeed(ctx context.Context, feedURL string, remoteFolderID *string) (reading.Feed, error) {
	body, err := c.post(ctx, "subscription/quickadd", url.Values{"quickadd": {feedURL}})
	if err != nil {
		return reading.Feed{}, err
	}
	added, err := ParseQuickAdd(body)
	if err != nil {
		return reading.Feed{}, err
	}
	feed := reading.Feed{RemoteID: added.StreamID, URL: feedURL, Name: added.StreamName}
	if remoteFolderID != nil {
		form := url.Values{"ac": {"edit"}, "s": {added.StreamID}, "a": {*remoteFolderID}}
		if _, err := c.post(ctx, "subscription/edit", form); err != nil {
			return reading.Feed{}, err
		}
		label := *remoteFolderID
		feed.RemoteFolderID = &label
	}
	return feed, nil
}

// FolderRemoteID returns the label a folder called name is stored under.
// Labels are created implicitly when a feed is filed under them.
func (c *Client) FolderRemoteID(name string) string {
	return LabelID(name)
}

// DeleteFeed unsubscribes from a feed.
func (c *Client) DeleteFeed(ctx context.Context, remoteID string) error {
	_, err := c.post(ctx, "subscription/edit", url.Values{"ac": {"unsubscribe"}, "s": {remoteID}})
	return err
}
