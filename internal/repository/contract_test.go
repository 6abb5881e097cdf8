package repository

import (
	"context"
	"testing"
	"time"

	"github.com/hitoshi/socialprofile/internal/model"
)

func testUserRecord() *model.UserRecord {
	return &model.UserRecord{
		Provider:    model.ProviderGoogle,
		ID:          "google-123",
		DisplayName: "Ann Lee",
		Emails:      []model.Value{{Value: "ann@example.com"}},
		Photos:      []model.Value{{Value: "https://lh3.googleusercontent.com/a/ann.jpg"}},
		Birthday:    "1990-04-01",
		Addresses:   []model.Address{{FormattedValue: "1 Main St"}},
	}
}

func newTestSession(id string, user *model.UserRecord) *model.Session {
	now := time.Now()
	return &model.Session{
		ID:        id,
		User:      user,
		ExpiresAt: now.Add(time.Hour),
		CreatedAt: now,
	}
}

// runSessionRepositoryContract はすべてのSessionRepository実装が満たすべき振る舞いを検証する。
func runSessionRepositoryContract(t *testing.T, repo SessionRepository) {
	t.Helper()
	ctx := context.Background()

	t.Run("create and find", func(t *testing.T) {
		s := newTestSession("contract-create", testUserRecord())
		if err := repo.Create(ctx, s); err != nil {
			t.Fatalf("Create() error = %v", err)
		}

		got, err := repo.FindByID(ctx, s.ID)
		if err != nil {
			t.Fatalf("FindByID() error = %v", err)
		}
		if got == nil {
			t.Fatal("expected session, got nil")
		}
		if got.User == nil {
			t.Fatal("expected user record, got nil")
		}
		if got.User.DisplayName != "Ann Lee" {
			t.Errorf("DisplayName = %q, want %q", got.User.DisplayName, "Ann Lee")
		}
		if got.User.FirstEmail() != "ann@example.com" {
			t.Errorf("FirstEmail() = %q, want %q", got.User.FirstEmail(), "ann@example.com")
		}
		if got.User.Birthday != "1990-04-01" {
			t.Errorf("Birthday = %q, want %q", got.User.Birthday, "1990-04-01")
		}
		if got.User.Provider != model.ProviderGoogle {
			t.Errorf("Provider = %q, want %q", got.User.Provider, model.ProviderGoogle)
		}
	})

	t.Run("anonymous session round trip", func(t *testing.T) {
		s := newTestSession("contract-anon", nil)
		if err := repo.Create(ctx, s); err != nil {
			t.Fatalf("Create() error = %v", err)
		}

		got, err := repo.FindByID(ctx, s.ID)
		if err != nil {
			t.Fatalf("FindByID() error = %v", err)
		}
		if got == nil {
			t.Fatal("expected session, got nil")
		}
		if got.IsAuthenticated() {
			t.Error("anonymous session should not be authenticated")
		}
	})

	t.Run("missing returns nil", func(t *testing.T) {
		got, err := repo.FindByID(ctx, "contract-missing")
		if err != nil {
			t.Fatalf("FindByID() error = %v", err)
		}
		if got != nil {
			t.Errorf("expected nil, got %+v", got)
		}
	})

	t.Run("expired returns nil", func(t *testing.T) {
		s := newTestSession("contract-expired", testUserRecord())
		s.ExpiresAt = time.Now().Add(-time.Minute)
		if err := repo.Create(ctx, s); err != nil {
			t.Fatalf("Create() error = %v", err)
		}

		got, err := repo.FindByID(ctx, s.ID)
		if err != nil {
			t.Fatalf("FindByID() error = %v", err)
		}
		if got != nil {
			t.Errorf("expected nil for expired session, got %+v", got)
		}
	})

	t.Run("save overwrites record", func(t *testing.T) {
		s := newTestSession("contract-save", testUserRecord())
		if err := repo.Create(ctx, s); err != nil {
			t.Fatalf("Create() error = %v", err)
		}

		s.User = &model.UserRecord{
			Provider:    model.ProviderFacebook,
			ID:          "fb-9",
			DisplayName: "Bob",
		}
		if err := repo.Save(ctx, s); err != nil {
			t.Fatalf("Save() error = %v", err)
		}

		got, err := repo.FindByID(ctx, s.ID)
		if err != nil {
			t.Fatalf("FindByID() error = %v", err)
		}
		if got == nil || got.User == nil {
			t.Fatal("expected session with user")
		}
		if got.User.Provider != model.ProviderFacebook {
			t.Errorf("Provider = %q, want %q", got.User.Provider, model.ProviderFacebook)
		}
		// 前回のレコードの項目が残っていないこと
		if got.User.FirstEmail() != "" || got.User.Birthday != "" {
			t.Errorf("previous fields leaked into overwritten record: %+v", got.User)
		}
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		s := newTestSession("contract-delete", testUserRecord())
		if err := repo.Create(ctx, s); err != nil {
			t.Fatalf("Create() error = %v", err)
		}

		if err := repo.DeleteByID(ctx, s.ID); err != nil {
			t.Fatalf("first DeleteByID() error = %v", err)
		}
		if err := repo.DeleteByID(ctx, s.ID); err != nil {
			t.Fatalf("second DeleteByID() error = %v", err)
		}

		got, err := repo.FindByID(ctx, s.ID)
		if err != nil {
			t.Fatalf("FindByID() error = %v", err)
		}
		if got != nil {
			t.Errorf("expected nil after delete, got %+v", got)
		}
	})
}
