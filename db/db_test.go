package db

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"
)

// openTestDB connects to TEST_PG_DSN and migrates, or skips the test. The db
// package cannot use testutil.SetupTestDB without an import cycle.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("TEST_PG_DSN")
	if dsn == "" {
		t.Skip("TEST_PG_DSN not set")
	}
	database, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := Migrate(context.Background(), database); err != nil {
		database.Close()
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		ctx := context.Background()
		for _, table := range []string{"workspace_credentials", "link_records", "webhook_events", "kv"} {
			_, _ = database.ExecContext(ctx, "DELETE FROM "+table)
		}
		database.Close()
	})
	return database
}

func TestMigrateIdempotent(t *testing.T) {
	database := openTestDB(t)
	if err := Migrate(context.Background(), database); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}

func TestCredentialRoundTrip(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()

	if err := UpsertPageCredential(ctx, database, "T1", "page1", "page-tok"); err != nil {
		t.Fatalf("upsert page: %v", err)
	}
	if err := UpsertUserCredential(ctx, database, "T1", "U1", "user-tok", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("upsert user: %v", err)
	}
	if err := UpsertSlackBotToken(ctx, database, "T1", "xoxb-1"); err != nil {
		t.Fatalf("upsert bot token: %v", err)
	}

	cred, err := GetWorkspaceCredential(ctx, database, "T1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if cred == nil {
		t.Fatal("expected credential")
	}
	if cred.PageID != "page1" || cred.PageAccessToken != "page-tok" {
		t.Fatalf("page fields: %+v", cred)
	}
	if cred.UserID != "U1" || cred.UserAccessToken != "user-tok" {
		t.Fatalf("user fields: %+v", cred)
	}
	if cred.UserTokenStatus != "allowed" {
		t.Fatalf("fresh user credential should be allowed, got %q", cred.UserTokenStatus)
	}
	if cred.SlackBotToken != "xoxb-1" {
		t.Fatalf("bot token: %q", cred.SlackBotToken)
	}

	byPage, err := GetCredentialByPageID(ctx, database, "page1")
	if err != nil || byPage == nil || byPage.WorkspaceID != "T1" {
		t.Fatalf("lookup by page: %+v, %v", byPage, err)
	}
}

func TestUpsertKeepsSiblingTokenVersions(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()

	// A row written before ENCRYPTION_KEY was configured: the page token is
	// plaintext at version 0.
	_, err := database.ExecContext(ctx,
		`INSERT INTO workspace_credentials (workspace_id, page_id, page_access_token, page_token_version)
		 VALUES ('T1', 'page1', 'plain-page-tok', 0)`)
	if err != nil {
		t.Fatalf("seed legacy row: %v", err)
	}

	// Later single-token writes must not change how the untouched page token
	// is read back, whatever version they store their own token at.
	if err := UpsertUserCredential(ctx, database, "T1", "U1", "user-tok", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("upsert user: %v", err)
	}
	if err := UpsertSlackBotToken(ctx, database, "T1", "xoxb-1"); err != nil {
		t.Fatalf("upsert bot: %v", err)
	}

	cred, err := GetWorkspaceCredential(ctx, database, "T1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if cred == nil {
		t.Fatal("expected credential")
	}
	if cred.PageAccessToken != "plain-page-tok" {
		t.Fatalf("legacy page token must survive sibling upserts, got %q", cred.PageAccessToken)
	}
	if cred.UserAccessToken != "user-tok" || cred.SlackBotToken != "xoxb-1" {
		t.Fatalf("new tokens: %+v", cred)
	}
}

func TestUpsertPageCredentialOverwrites(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()

	if err := UpsertPageCredential(ctx, database, "T1", "page1", "old"); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if err := UpsertPageCredential(ctx, database, "T1", "page1", "new"); err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	cred, err := GetWorkspaceCredential(ctx, database, "T1")
	if err != nil || cred == nil {
		t.Fatalf("get: %v", err)
	}
	if cred.PageAccessToken != "new" {
		t.Fatalf("reconnect must replace the token, got %q", cred.PageAccessToken)
	}
}

func TestMarkUserCredentialStatus(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()

	if err := UpsertUserCredential(ctx, database, "T1", "U1", "tok", time.Time{}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := MarkUserCredentialStatus(ctx, database, "T1", "U1", "expired"); err != nil {
		t.Fatalf("mark: %v", err)
	}
	cred, err := GetWorkspaceCredential(ctx, database, "T1")
	if err != nil || cred == nil {
		t.Fatalf("get: %v", err)
	}
	if cred.UserTokenStatus != "expired" {
		t.Fatalf("status = %q", cred.UserTokenStatus)
	}

	if err := MarkUserCredentialStatus(ctx, database, "T1", "U1", "bogus"); err == nil {
		t.Fatal("unknown status must be rejected")
	}
}

func TestGetWorkspaceCredentialAbsent(t *testing.T) {
	database := openTestDB(t)
	cred, err := GetWorkspaceCredential(context.Background(), database, "T-none")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cred != nil {
		t.Fatalf("expected nil for unknown workspace, got %+v", cred)
	}
}

func TestRecordPublishUnique(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()

	if err := RecordPublish(ctx, database, "root1", "C1", "page1_42"); err != nil {
		t.Fatalf("record: %v", err)
	}
	// A second record for the same thread root is a no-op, preserving the
	// first post id.
	if err := RecordPublish(ctx, database, "root1", "C1", "page1_99"); err != nil {
		t.Fatalf("duplicate record: %v", err)
	}
	link, err := FindLinkByThreadRoot(ctx, database, "root1")
	if err != nil || link == nil {
		t.Fatalf("find: %v", err)
	}
	if link.PostID != "page1_42" {
		t.Fatalf("first write must win, got %q", link.PostID)
	}

	byPost, err := FindLinkByPostID(ctx, database, "page1_42")
	if err != nil || byPost == nil || byPost.ThreadRootID != "root1" {
		t.Fatalf("find by post: %+v, %v", byPost, err)
	}
	if missing, err := FindLinkByPostID(ctx, database, "page1_404"); err != nil || missing != nil {
		t.Fatalf("unknown post should be nil, nil: %+v, %v", missing, err)
	}
}

func TestMarkWebhookSeen(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()

	first, err := MarkWebhookSeen(ctx, database, "cm1")
	if err != nil || !first {
		t.Fatalf("first observation: %v, %v", first, err)
	}
	again, err := MarkWebhookSeen(ctx, database, "cm1")
	if err != nil || again {
		t.Fatalf("second observation must report seen: %v, %v", again, err)
	}
}

func TestStoreAdapters(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()
	store := &Store{DB: database, FallbackBotToken: "xoxb-fallback"}

	// No row yet, fallback token applies.
	tok, err := store.BotToken(ctx, "T1")
	if err != nil || tok != "xoxb-fallback" {
		t.Fatalf("fallback token: %q, %v", tok, err)
	}

	if err := UpsertPageCredential(ctx, database, "T1", "page1", "page-tok"); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := UpsertSlackBotToken(ctx, database, "T1", "xoxb-stored"); err != nil {
		t.Fatalf("upsert bot: %v", err)
	}
	tok, err = store.BotToken(ctx, "T1")
	if err != nil || tok != "xoxb-stored" {
		t.Fatalf("stored token: %q, %v", tok, err)
	}

	cred, err := store.Credential(ctx, "T1")
	if err != nil || cred == nil {
		t.Fatalf("credential: %v", err)
	}
	if cred.PageAccessToken != "page-tok" {
		t.Fatalf("credential mapping: %+v", cred)
	}
	if absent, err := store.Credential(ctx, "T-none"); err != nil || absent != nil {
		t.Fatalf("absent credential should be nil, nil: %+v, %v", absent, err)
	}
}
