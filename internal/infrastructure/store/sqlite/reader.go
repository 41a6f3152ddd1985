package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/huandu/go-sqlbuilder"

	"github.com/tesso57/readsync/internal/application/usecase"
	"github.com/tesso57/readsync/internal/domain/reading"
)

var feedColumns = []string{
	"id", "account_id", "remote_id", "url", "name", "site_url", "icon_url",
	"folder_id", "remote_folder_id", "etag", "last_modified",
}

var itemColumns = []string{
	"id", "account_id", "feed_id", "remote_id", "feed_remote_id",
	"title", "link", "author", "description", "content", "image_link",
	"pub_date", "updated_at", "is_read", "is_starred",
}

// ListFolders returns the folders of an account in insertion order.
func (q queries) ListFolders(ctx context.Context, accountID int64) ([]reading.Folder, error) {
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select("id", "account_id", "remote_id", "name").From("folders").
		Where(sb.Equal("account_id", accountID)).
		OrderBy("id")
	query, args := sb.Build()

	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list folders: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []reading.Folder
	for rows.Next() {
		var f reading.Folder
		if err := rows.Scan(&f.ID, &f.AccountID, &f.RemoteID, &f.Name); err != nil {
			return nil, fmt.Errorf("scan folder: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// ListFeeds returns the feeds of an account in insertion order.
func (q queries) ListFeeds(ctx context.Context, accountID int64) ([]reading.Feed, error) {
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select(feedColumns...).From("feeds").
		Where(sb.Equal("account_id", accountID)).
		OrderBy("id")
	query, args := sb.Build()

	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list feeds: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []reading.Feed
	for rows.Next() {
		f, err := scanFeed(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanFeed(s scanner) (reading.Feed, error) {
	var (
		f              reading.Feed
		folderID       sql.NullInt64
		remoteFolderID sql.NullString
	)
	err := s.Scan(&f.ID, &f.AccountID, &f.RemoteID, &f.URL, &f.Name, &f.SiteURL, &f.IconURL,
		&folderID, &remoteFolderID, &f.ETag, &f.LastModified)
	if err != nil {
		return reading.Feed{}, err
	}
	if folderID.Valid {
		f.FolderID = new(folderID.Int64)
	}
	if remoteFolderID.Valid {
		f.RemoteFolderID = new(remoteFolderID.String)
	}
	return f, nil
}

// Item returns one item by remote id, or reading.ErrNotFound.
func (q queries) Item(ctx context.Context, accountID int64, remoteID string) (reading.Item, error) {
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select(itemColumns...).From("items").
		Where(sb.Equal("account_id", accountID), sb.Equal("remote_id", remoteID))
	query, args := sb.Build()

	it, err := scanItem(q.q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return reading.Item{}, fmt.Errorf("item %s: %w", remoteID, reading.ErrNotFound)
	}
	return it, err
}

// ListItems returns matching items, newest first.
func (q queries) ListItems(ctx context.Context, iq usecase.ItemQuery) ([]reading.Item, error) {
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select(itemColumns...).From("items").Where(sb.Equal("account_id", iq.AccountID))
	if iq.FeedID != 0 {
		sb.Where(sb.Equal("feed_id", iq.FeedID))
	}
	if iq.FolderID != 0 {
		sb.Where("feed_id IN (SELECT id FROM feeds WHERE folder_id = " + sb.Var(iq.FolderID) + ")")
	}
	if iq.UnreadOnly {
		sb.Where(sb.Equal("is_read", false))
	}
	if iq.StarredOnly {
		sb.Where(sb.Equal("is_starred", true))
	}
	sb.OrderBy("pub_date DESC", "id DESC")
	if iq.Limit > 0 {
		sb.Limit(iq.Limit)
	}
	query, args := sb.Build()

	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []reading.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func scanItem(s scanner) (reading.Item, error) {
	var (
		it                 reading.Item
		pubDate, updatedAt int64
	)
	err := s.Scan(&it.ID, &it.AccountID, &it.FeedID, &it.RemoteID, &it.FeedRemoteID,
		&it.Title, &it.Link, &it.Author, &it.Description, &it.Content, &it.ImageLink,
		&pubDate, &updatedAt, &it.IsRead, &it.IsStarred)
	if err != nil {
		return reading.Item{}, err
	}
	it.PubDate = reading.LocalTime(pubDate)
	it.UpdatedAt = reading.LocalTime(updatedAt)
	return it, nil
}

// unix stores times as epoch seconds; the zero time is 0.
func unix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

// SyncCursor returns the stored incremental sync cursor of an account.
func (q queries) SyncCursor(ctx context.Context, accountID int64) (string, error) {
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select("sync_cursor").From("accounts").Where(sb.Equal("id", accountID))
	query, args := sb.Build()

	var cursor string
	err := q.q.QueryRowContext(ctx, query, args...).Scan(&cursor)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return cursor, err
}

// PendingStates returns the local state changes not yet pushed.
func (q queries) PendingStates(ctx context.Context, accountID int64) ([]reading.ItemState, error) {
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select("remote_id", "read", "starred").From("pending_states").
		Where(sb.Equal("account_id", accountID)).
		OrderBy("remote_id")
	query, args := sb.Build()

	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list pending states: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []reading.ItemState
	for rows.Next() {
		var (
			remoteID      string
			read, starred sql.NullBool
		)
		if err := rows.Scan(&remoteID, &read, &starred); err != nil {
			return nil, fmt.Errorf("scan pending state: %w", err)
		}
		out = append(out, reading.NewItemState(remoteID, nullBool(read), nullBool(starred)))
	}
	return out, rows.Err()
}

func nullBool(b sql.NullBool) *bool {
	if !b.Valid {
		return nil
	}
	return new(b.Bool)
}

// flag converts an optional flag into a nullable column value.
func flag(b *bool) any {
	if b == nil {
		return nil
	}
	return *b
}
