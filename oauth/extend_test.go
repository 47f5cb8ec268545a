package oauth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/onnwee/pagebridge/db"
	"github.com/onnwee/pagebridge/fbapi"
	"github.com/onnwee/pagebridge/testutil"
)

func TestExtendExpiringReplacesToken(t *testing.T) {
	database := testutil.SetupTestDB(t)
	ctx := context.Background()

	if err := db.UpsertUserCredential(ctx, database, "T-extend", "U1", "old-token", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("seed: %v", err)
	}

	newExpiry := time.Now().Add(60 * 24 * time.Hour)
	extendExpiring(ctx, database, 24*time.Hour, func(ctx context.Context, token string) (string, time.Time, error) {
		if token != "old-token" {
			t.Fatalf("extend called with token %q", token)
		}
		return "new-token", newExpiry, nil
	})

	cred, err := db.GetWorkspaceCredential(ctx, database, "T-extend")
	if err != nil || cred == nil {
		t.Fatalf("credential: %v", err)
	}
	if cred.UserAccessToken != "new-token" {
		t.Fatalf("token = %q", cred.UserAccessToken)
	}
	if cred.UserTokenStatus != "allowed" {
		t.Fatalf("status = %q", cred.UserTokenStatus)
	}
}

func TestExtendExpiringSkipsOutsideWindow(t *testing.T) {
	database := testutil.SetupTestDB(t)
	ctx := context.Background()

	if err := db.UpsertUserCredential(ctx, database, "T-extend", "U1", "old-token", time.Now().Add(50*24*time.Hour)); err != nil {
		t.Fatalf("seed: %v", err)
	}

	called := false
	extendExpiring(ctx, database, 24*time.Hour, func(ctx context.Context, token string) (string, time.Time, error) {
		called = true
		return "new-token", time.Now().Add(time.Hour), nil
	})
	if called {
		t.Fatal("credential outside window should not be extended")
	}
}

func TestExtendExpiringMarksRefusedTokenExpired(t *testing.T) {
	database := testutil.SetupTestDB(t)
	ctx := context.Background()

	if err := db.UpsertUserCredential(ctx, database, "T-extend", "U1", "old-token", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("seed: %v", err)
	}

	extendExpiring(ctx, database, 24*time.Hour, func(ctx context.Context, token string) (string, time.Time, error) {
		return "", time.Time{}, &fbapi.APIError{Message: "token expired", Code: 190, HTTPStatus: 400}
	})

	cred, err := db.GetWorkspaceCredential(ctx, database, "T-extend")
	if err != nil || cred == nil {
		t.Fatalf("credential: %v", err)
	}
	if cred.UserTokenStatus != "expired" {
		t.Fatalf("status = %q, want expired", cred.UserTokenStatus)
	}
}

func TestExtendExpiringKeepsTokenOnTransientFailure(t *testing.T) {
	database := testutil.SetupTestDB(t)
	ctx := context.Background()

	if err := db.UpsertUserCredential(ctx, database, "T-extend", "U1", "old-token", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("seed: %v", err)
	}

	extendExpiring(ctx, database, 24*time.Hour, func(ctx context.Context, token string) (string, time.Time, error) {
		return "", time.Time{}, errors.New("connection reset")
	})

	cred, err := db.GetWorkspaceCredential(ctx, database, "T-extend")
	if err != nil || cred == nil {
		t.Fatalf("credential: %v", err)
	}
	if cred.UserAccessToken != "old-token" || cred.UserTokenStatus != "allowed" {
		t.Fatalf("transient failure must leave credential alone, got %+v", cred)
	}
}
