package db

import (
	"context"
	"database/sql"
)

// LinkRecord associates a chat thread root with the external post it produced.
// Records are append-only: created exactly once per published trigger message
// and never updated or deleted.
type LinkRecord struct {
	ThreadRootID string
	ChannelID    string
	PostID       string
}

// RecordPublish inserts a link record for a newly published post. A duplicate
// thread root is treated as a no-op (the first write wins).
func RecordPublish(ctx context.Context, dbx *sql.DB, threadRootID, channelID, postID string) error {
	_, err := dbx.ExecContext(ctx,
		`INSERT INTO link_records (thread_root_id, channel_id, post_id) VALUES ($1,$2,$3)
		 ON CONFLICT (thread_root_id) DO NOTHING`,
		threadRootID, channelID, postID)
	return err
}

// FindLinkByThreadRoot resolves the link for an outgoing thread reply, or nil when
// the thread was never bridged.
func FindLinkByThreadRoot(ctx context.Context, dbx *sql.DB, threadRootID string) (*LinkRecord, error) {
	return scanLink(dbx.QueryRowContext(ctx,
		`SELECT thread_root_id, channel_id, post_id FROM link_records WHERE thread_root_id=$1`, threadRootID))
}

// FindLinkByPostID resolves the link for an incoming webhook comment, or nil when
// the post is untracked (orphaned comment).
func FindLinkByPostID(ctx context.Context, dbx *sql.DB, postID string) (*LinkRecord, error) {
	return scanLink(dbx.QueryRowContext(ctx,
		`SELECT thread_root_id, channel_id, post_id FROM link_records WHERE post_id=$1`, postID))
}

func scanLink(row *sql.Row) (*LinkRecord, error) {
	var l LinkRecord
	err := row.Scan(&l.ThreadRootID, &l.ChannelID, &l.PostID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// MarkWebhookSeen records a webhook event key and reports whether this is the
// first time it was seen. Redelivered events lose the insert race and return
// false, so the caller can skip them without error.
func MarkWebhookSeen(ctx context.Context, dbx *sql.DB, eventKey string) (bool, error) {
	res, err := dbx.ExecContext(ctx,
		`INSERT INTO webhook_events (event_key) VALUES ($1) ON CONFLICT (event_key) DO NOTHING`, eventKey)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
