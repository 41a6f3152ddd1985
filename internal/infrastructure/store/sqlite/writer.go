package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/huandu/go-sqlbuilder"
	"github.com/samber/lo"

	"github.com/tesso57/readsync/internal/domain/reading"
)

// UpsertFolder inserts or renames a folder keyed by (account, remote id).
func (q queries) UpsertFolder(ctx context.Context, f reading.Folder) (reading.Folder, reading.Change, error) {
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select("id", "name").From("folders").
		Where(sb.Equal("account_id", f.AccountID), sb.Equal("remote_id", f.RemoteID))
	query, args := sb.Build()

	var (
		id   int64
		name string
	)
	err := q.q.QueryRowContext(ctx, query, args...).Scan(&id, &name)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		ib := sqlbuilder.SQLite.NewInsertBuilder()
		ib.InsertInto("folders").Cols("account_id", "remote_id", "name").Values(f.AccountID, f.RemoteID, f.Name)
		if f.ID, err = q.insert(ctx, ib); err != nil {
			return reading.Folder{}, reading.Unchanged, fmt.Errorf("insert folder %s: %w", f.RemoteID, err)
		}
		return f, reading.Inserted, nil
	case err != nil:
		return reading.Folder{}, reading.Unchanged, fmt.Errorf("find folder %s: %w", f.RemoteID, err)
	}

	f.ID = id
	if name == f.Name {
		return f, reading.Unchanged, nil
	}
	ub := sqlbuilder.SQLite.NewUpdateBuilder()
	ub.Update("folders").Set(ub.Assign("name", f.Name)).Where(ub.Equal("id", id))
	if err := q.exec(ctx, ub); err != nil {
		return reading.Folder{}, reading.Unchanged, fmt.Errorf("rename folder %s: %w", f.RemoteID, err)
	}
	return f, reading.Updated, nil
}

// folderID resolves a remote folder id to the local folder, nil when unknown.
func (q queries) folderID(ctx context.Context, accountID int64, remoteID *string) (*int64, error) {
	if remoteID == nil {
		return nil, nil
	}
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select("id").From("folders").
		Where(sb.Equal("account_id", accountID), sb.Equal("remote_id", *remoteID))
	query, args := sb.Build()

	var id int64
	err := q.q.QueryRowContext(ctx, query, args...).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return new(id), nil
}

// UpsertFeed inserts or updates a feed. Remote feeds match on remote id and
// take their folder from RemoteFolderID; local feeds match on URL.
func (q queries) UpsertFeed(ctx context.Context, f reading.Feed) (reading.Feed, reading.Change, error) {
	if f.RemoteID != "" {
		id, err := q.folderID(ctx, f.AccountID, f.RemoteFolderID)
		if err != nil {
			return reading.Feed{}, reading.Unchanged, fmt.Errorf("resolve folder of feed %s: %w", f.Key(), err)
		}
		f.FolderID = id
	}

	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select(feedColumns...).From("feeds").Where(sb.Equal("account_id", f.AccountID))
	if f.RemoteID != "" {
		sb.Where(sb.Equal("remote_id", f.RemoteID))
	} else {
		sb.Where(sb.Equal("remote_id", ""), sb.Equal("url", f.URL))
	}
	query, args := sb.Build()

	cur, err := scanFeed(q.q.QueryRowContext(ctx, query, args...))
	switch {
	case errors.Is(err, sql.ErrNoRows):
		ib := sqlbuilder.SQLite.NewInsertBuilder()
		ib.InsertInto("feeds").Cols(feedColumns[1:]...).Values(
			f.AccountID, f.RemoteID, f.URL, f.Name, f.SiteURL, f.IconURL,
			nullable(f.FolderID), nullable(f.RemoteFolderID), f.ETag, f.LastModified)
		if f.ID, err = q.insert(ctx, ib); err != nil {
			return reading.Feed{}, reading.Unchanged, fmt.Errorf("insert feed %s: %w", f.Key(), err)
		}
		return f, reading.Inserted, nil
	case err != nil:
		return reading.Feed{}, reading.Unchanged, fmt.Errorf("find feed %s: %w", f.Key(), err)
	}

	f.ID = cur.ID
	if sameFeed(cur, f) {
		return cur, reading.Unchanged, nil
	}
	ub := sqlbuilder.SQLite.NewUpdateBuilder()
	ub.Update("feeds").Set(
		ub.Assign("url", f.URL),
		ub.Assign("name", f.Name),
		ub.Assign("site_url", f.SiteURL),
		ub.Assign("icon_url", f.IconURL),
		ub.Assign("folder_id", nullable(f.FolderID)),
		ub.Assign("remote_folder_id", nullable(f.RemoteFolderID)),
		ub.Assign("etag", f.ETag),
		ub.Assign("last_modified", f.LastModified),
	).Where(ub.Equal("id", f.ID))
	if err := q.exec(ctx, ub); err != nil {
		return reading.Feed{}, reading.Unchanged, fmt.Errorf("update feed %s: %w", f.Key(), err)
	}
	return f, reading.Updated, nil
}

func sameFeed(a, b reading.Feed) bool {
	return a.URL == b.URL && a.Name == b.Name && a.SiteURL == b.SiteURL && a.IconURL == b.IconURL &&
		a.ETag == b.ETag && a.LastModified == b.LastModified &&
		lo.FromPtr(a.FolderID) == lo.FromPtr(b.FolderID) && (a.FolderID == nil) == (b.FolderID == nil) &&
		lo.FromPtr(a.RemoteFolderID) == lo.FromPtr(b.RemoteFolderID) && (a.RemoteFolderID == nil) == (b.RemoteFolderID == nil)
}

func nullable[T any](v *T) any {
	if v == nil {
		return nil
	}
	return *v
}

// UpsertItem inserts or updates an item keyed by (account, remote id).
// Read and starred flags are only written on insert.
func (q queries) UpsertItem(ctx context.Context, it reading.Item) (reading.Change, error) {
	if it.FeedID == 0 {
		sb := sqlbuilder.SQLite.NewSelectBuilder()
		sb.Select("id").From("feeds").
			Where(sb.Equal("account_id", it.AccountID), sb.Equal("remote_id", it.FeedRemoteID))
		query, args := sb.Build()
		err := q.q.QueryRowContext(ctx, query, args...).Scan(&it.FeedID)
		if errors.Is(err, sql.ErrNoRows) {
			return reading.Unchanged, fmt.Errorf("feed %s of item %s: %w", it.FeedRemoteID, it.RemoteID, reading.ErrNotFound)
		}
		if err != nil {
			return reading.Unchanged, fmt.Errorf("resolve feed of item %s: %w", it.RemoteID, err)
		}
	}

	cur, err := q.Item(ctx, it.AccountID, it.RemoteID)
	switch {
	case errors.Is(err, reading.ErrNotFound):
		ib := sqlbuilder.SQLite.NewInsertBuilder()
		ib.InsertInto("items").Cols(itemColumns[1:]...).Values(
			it.AccountID, it.FeedID, it.RemoteID, it.FeedRemoteID,
			it.Title, it.Link, it.Author, it.Description, it.Content, it.ImageLink,
			unix(it.PubDate), unix(it.UpdatedAt), it.IsRead, it.IsStarred)
		if _, err := q.insert(ctx, ib); err != nil {
			return reading.Unchanged, fmt.Errorf("insert item %s: %w", it.RemoteID, err)
		}
		return reading.Inserted, nil
	case err != nil:
		return reading.Unchanged, err
	}

	if sameItem(cur, it) {
		return reading.Unchanged, nil
	}
	ub := sqlbuilder.SQLite.NewUpdateBuilder()
	ub.Update("items").Set(
		ub.Assign("feed_id", it.FeedID),
		ub.Assign("feed_remote_id", it.FeedRemoteID),
		ub.Assign("title", it.Title),
		ub.Assign("link", it.Link),
		ub.Assign("author", it.Author),
		ub.Assign("description", it.Description),
		ub.Assign("content", it.Content),
		ub.Assign("image_link", it.ImageLink),
		ub.Assign("pub_date", unix(it.PubDate)),
		ub.Assign("updated_at", unix(it.UpdatedAt)),
	).Where(ub.Equal("id", cur.ID))
	if err := q.exec(ctx, ub); err != nil {
		return reading.Unchanged, fmt.Errorf("update item %s: %w", it.RemoteID, err)
	}
	return reading.Updated, nil
}

func sameItem(a, b reading.Item) bool {
	return a.FeedID == b.FeedID && a.FeedRemoteID == b.FeedRemoteID &&
		a.Title == b.Title && a.Link == b.Link && a.Author == b.Author &&
		a.Description == b.Description && a.Content == b.Content && a.ImageLink == b.ImageLink &&
		unix(a.PubDate) == unix(b.PubDate) && unix(a.UpdatedAt) == unix(b.UpdatedAt)
}

// DeleteFoldersNotIn removes the folders of an account absent from remoteIDs.
// Feeds of removed folders become unfiled.
func (q queries) DeleteFoldersNotIn(ctx context.Context, accountID int64, remoteIDs []string) (int, error) {
	return q.deleteNotIn(ctx, "folders", accountID, remoteIDs)
}

// DeleteFeedsNotIn removes the feeds of an account absent from remoteIDs,
// together with their items.
func (q queries) DeleteFeedsNotIn(ctx context.Context, accountID int64, remoteIDs []string) (int, error) {
	return q.deleteNotIn(ctx, "feeds", accountID, remoteIDs)
}

func (q queries) deleteNotIn(ctx context.Context, table string, accountID int64, remoteIDs []string) (int, error) {
	db := sqlbuilder.SQLite.NewDeleteBuilder()
	db.DeleteFrom(table).Where(db.Equal("account_id", accountID))
	if len(remoteIDs) > 0 {
		db.Where(db.NotIn("remote_id", lo.ToAnySlice(remoteIDs)...))
	}
	query, args := db.Build()

	res, err := q.q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete stale %s: %w", table, err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// DeleteFeed removes one feed and its items.
func (q queries) DeleteFeed(ctx context.Context, accountID, feedID int64) error {
	db := sqlbuilder.SQLite.NewDeleteBuilder()
	db.DeleteFrom("feeds").Where(db.Equal("account_id", accountID), db.Equal("id", feedID))
	if err := q.exec(ctx, db); err != nil {
		return fmt.Errorf("delete feed %d: %w", feedID, err)
	}
	return nil
}

// UpdateItemState applies s and reports whether the stored row changed.
func (q queries) UpdateItemState(ctx context.Context, accountID int64, s reading.ItemState) (bool, error) {
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select("id", "is_read", "is_starred").From("items").
		Where(sb.Equal("account_id", accountID), sb.Equal("remote_id", s.RemoteID))
	query, args := sb.Build()

	var (
		id                int64
		isRead, isStarred bool
	)
	err := q.q.QueryRowContext(ctx, query, args...).Scan(&id, &isRead, &isStarred)
	if errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("item %s: %w", s.RemoteID, reading.ErrNotFound)
	}
	if err != nil {
		return false, err
	}
	if !s.Differs(isRead, isStarred) {
		return false, nil
	}

	ub := sqlbuilder.SQLite.NewUpdateBuilder()
	ub.Update("items").Where(ub.Equal("id", id))
	if s.Read != nil {
		ub.SetMore(ub.Assign("is_read", *s.Read))
	}
	if s.Starred != nil {
		ub.SetMore(ub.Assign("is_starred", *s.Starred))
	}
	if err := q.exec(ctx, ub); err != nil {
		return false, fmt.Errorf("update state of item %s: %w", s.RemoteID, err)
	}
	return true, nil
}

func (q queries) pendingIDs(ctx context.Context, accountID int64) (map[string]struct{}, error) {
	pending, err := q.PendingStates(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return lo.SliceToMap(pending, func(s reading.ItemState) (string, struct{}) {
		return s.RemoteID, struct{}{}
	}), nil
}

// ApplyRemoteStates applies server states to stored items, skipping items
// with pending local changes and items not stored.
func (q queries) ApplyRemoteStates(ctx context.Context, accountID int64, states []reading.ItemState) (int, error) {
	pending, err := q.pendingIDs(ctx, accountID)
	if err != nil {
		return 0, err
	}
	changed := 0
	for _, s := range states {
		if _, ok := pending[s.RemoteID]; ok || s.Empty() {
			continue
		}
		ok, err := q.UpdateItemState(ctx, accountID, s)
		if err != nil && !errors.Is(err, reading.ErrNotFound) {
			return changed, err
		}
		if ok {
			changed++
		}
	}
	return changed, nil
}

// MergeRemoteState reconciles every stored item of an account with snapshot.
func (q queries) MergeRemoteState(ctx context.Context, accountID int64, snapshot reading.StateSnapshot) (int, error) {
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select("remote_id").From("items").Where(sb.Equal("account_id", accountID))
	query, args := sb.Build()

	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("list item ids: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return 0, fmt.Errorf("scan item id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return 0, err
	}
	// The single connection must be free before updating.
	_ = rows.Close()

	idx := snapshot.Index()
	return q.ApplyRemoteStates(ctx, accountID, lo.Map(ids, func(id string, _ int) reading.ItemState {
		return idx.StateFor(id)
	}))
}

// RecordPendingState merges s into the pending change of the item.
func (q queries) RecordPendingState(ctx context.Context, accountID int64, s reading.ItemState) error {
	if s.Empty() {
		return nil
	}
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select("read", "starred").From("pending_states").
		Where(sb.Equal("account_id", accountID), sb.Equal("remote_id", s.RemoteID))
	query, args := sb.Build()

	var read, starred sql.NullBool
	err := q.q.QueryRowContext(ctx, query, args...).Scan(&read, &starred)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return fmt.Errorf("find pending state %s: %w", s.RemoteID, err)
	default:
		s = reading.NewItemState(s.RemoteID, nullBool(read), nullBool(starred)).Merge(s)
	}

	ib := sqlbuilder.SQLite.NewInsertBuilder()
	ib.ReplaceInto("pending_states").Cols("account_id", "remote_id", "read", "starred").
		Values(accountID, s.RemoteID, flag(s.Read), flag(s.Starred))
	if err := q.exec(ctx, ib); err != nil {
		return fmt.Errorf("record pending state %s: %w", s.RemoteID, err)
	}
	return nil
}

// ClearPendingStates removes pending changes still equal to what was pushed,
// so changes made while pushing survive.
func (q queries) ClearPendingStates(ctx context.Context, accountID int64, pushed []reading.ItemState) error {
	for _, s := range pushed {
		db := sqlbuilder.SQLite.NewDeleteBuilder()
		db.DeleteFrom("pending_states").Where(
			db.Equal("account_id", accountID),
			db.Equal("remote_id", s.RemoteID),
			"read IS "+db.Var(flag(s.Read)),
			"starred IS "+db.Var(flag(s.Starred)),
		)
		if err := q.exec(ctx, db); err != nil {
			return fmt.Errorf("clear pending state %s: %w", s.RemoteID, err)
		}
	}
	return nil
}

// SetSyncCursor stores the incremental sync cursor of an account.
func (q queries) SetSyncCursor(ctx context.Context, accountID int64, cursor string) error {
	ub := sqlbuilder.SQLite.NewUpdateBuilder()
	ub.Update("accounts").Set(ub.Assign("sync_cursor", cursor)).Where(ub.Equal("id", accountID))
	query, args := ub.Build()

	res, err := q.q.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("set sync cursor: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("account %d: %w", accountID, reading.ErrNotFound)
	}
	return nil
}

func (q queries) exec(ctx context.Context, b sqlbuilder.Builder) error {
	query, args := b.Build()
	_, err := q.q.ExecContext(ctx, query, args...)
	return err
}

func (q queries) insert(ctx context.Context, ib *sqlbuilder.InsertBuilder) (int64, error) {
	query, args := ib.Build()
	res, err := q.q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}
