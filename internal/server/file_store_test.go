package server

import (
	"context"
	"testing"
	"time"

	"github.com/semp-project/semp/internal/models"
	"github.com/semp-project/semp/internal/msgid"
)

func newTestFileStore(t *testing.T) *FileStore {
	t.Helper()
	store, err := NewFileStore(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if err := store.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return store
}

func TestFileStoreUserLifecycle(t *testing.T) {
	ctx := context.Background()
	store := newTestFileStore(t)

	user := models.UserRecord{
		Name:        "a1b2c3d4",
		PublicKey:   make(models.HexBytes, 32),
		DisplayName: "Alice",
	}
	if err := store.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	// Creating the same name again keeps the original record.
	dup := user
	dup.DisplayName = "Impostor"
	if err := store.CreateUser(ctx, dup); err != nil {
		t.Fatalf("CreateUser duplicate: %v", err)
	}
	got, err := store.GetUser(ctx, user.Name)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if got.DisplayName != "Alice" {
		t.Errorf("DisplayName = %q, want Alice", got.DisplayName)
	}

	if _, err := store.GetUser(ctx, "missing0"); err != ErrNoUser {
		t.Errorf("GetUser missing = %v, want ErrNoUser", err)
	}

	err = store.UpdateUser(ctx, user.Name, models.UpdateUserRequest{
		DisplayName: "Alice B",
		BanHosts:    []string{"spam.example"},
	})
	if err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}
	got, _ = store.GetUser(ctx, user.Name)
	if got.DisplayName != "Alice B" {
		t.Errorf("DisplayName = %q, want Alice B", got.DisplayName)
	}
	if len(got.BanHosts) != 1 || got.BanHosts[0] != "spam.example" {
		t.Errorf("BanHosts = %v", got.BanHosts)
	}
}

func TestFileStoreUntrustedGuard(t *testing.T) {
	ctx := context.Background()
	store := newTestFileStore(t)

	user := models.UserRecord{Name: "deadbeef", PublicKey: make(models.HexBytes, 32)}
	if err := store.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	if err := store.UpdateUser(ctx, user.Name, models.UpdateUserRequest{Untrusted: true}); err != nil {
		t.Fatalf("mark untrusted: %v", err)
	}
	got, _ := store.GetUser(ctx, user.Name)
	if got.UntrustedAt == nil {
		t.Fatal("UntrustedAt not set")
	}
	stamp := *got.UntrustedAt

	// An update that keeps the flag is fine and preserves the timestamp.
	if err := store.UpdateUser(ctx, user.Name, models.UpdateUserRequest{Untrusted: true, DisplayName: "x1"}); err != nil {
		t.Fatalf("update while untrusted: %v", err)
	}
	got, _ = store.GetUser(ctx, user.Name)
	if got.UntrustedAt == nil || !got.UntrustedAt.Equal(stamp) {
		t.Errorf("UntrustedAt changed: %v want %v", got.UntrustedAt, stamp)
	}

	// Clearing the flag is refused.
	if err := store.UpdateUser(ctx, user.Name, models.UpdateUserRequest{Untrusted: false}); err != ErrUntrustedGuard {
		t.Errorf("clear untrusted = %v, want ErrUntrustedGuard", err)
	}
}

func TestFileStoreMessages(t *testing.T) {
	ctx := context.Background()
	store := newTestFileStore(t)

	addr := "@a1b2c3d4.example.com"
	ids := make([]string, 0, 3)
	for i := 0; i < 3; i++ {
		id, err := msgid.Generate()
		if err != nil {
			t.Fatalf("Generate: %v", err)
		}
		ids = append(ids, id)
		msg := models.Message{
			ID:        id,
			From:      "@feedf00d.other.example",
			To:        addr,
			Timestamp: time.Now().UTC(),
			Content:   models.HexBytes("hello " + id),
		}
		if err := store.StoreMessage(ctx, msg); err != nil {
			t.Fatalf("StoreMessage: %v", err)
		}
	}

	got, err := store.GetMessages(ctx, addr, "", 20)
	if err != nil {
		t.Fatalf("GetMessages: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d messages, want 3", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i-1].ID >= got[i].ID {
			t.Errorf("messages out of order: %s before %s", got[i-1].ID, got[i].ID)
		}
	}
	if string(got[0].Content) != "hello "+got[0].ID {
		t.Errorf("content round trip failed: %q", got[0].Content)
	}

	// The since cursor is exclusive.
	got, err = store.GetMessages(ctx, addr, got[0].ID, 20)
	if err != nil {
		t.Fatalf("GetMessages since: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("got %d after cursor, want 2", len(got))
	}

	// Limit caps the page.
	got, err = store.GetMessages(ctx, addr, "", 1)
	if err != nil {
		t.Fatalf("GetMessages limit: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("got %d with limit 1", len(got))
	}

	// Another address sees nothing.
	got, err = store.GetMessages(ctx, "@feedf00d.example.com", "", 20)
	if err != nil {
		t.Fatalf("GetMessages other: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %d for other address, want 0", len(got))
	}

	// Deletion only touches the owner's messages.
	if err := store.DeleteMessages(ctx, "@feedf00d.example.com", ids); err != nil {
		t.Fatalf("DeleteMessages other: %v", err)
	}
	got, _ = store.GetMessages(ctx, addr, "", 20)
	if len(got) != 3 {
		t.Errorf("foreign delete removed messages: %d left", len(got))
	}

	if err := store.DeleteMessages(ctx, addr, ids[:2]); err != nil {
		t.Fatalf("DeleteMessages: %v", err)
	}
	got, _ = store.GetMessages(ctx, addr, "", 20)
	if len(got) != 1 || got[0].ID != ids[2] {
		t.Errorf("after delete got %v, want only %s", got, ids[2])
	}
}

func TestFileStoreDeleteExpired(t *testing.T) {
	ctx := context.Background()
	store := newTestFileStore(t)

	addr := "@a1b2c3d4.example.com"
	fresh, err := msgid.Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	// An id from the epoch bucket is long past any cutoff.
	stale := "00000000" + fresh[8:]

	for _, id := range []string{fresh, stale} {
		err := store.StoreMessage(ctx, models.Message{
			ID: id, From: "@feedf00d.other.example", To: addr,
			Timestamp: time.Now().UTC(), Content: models.HexBytes("x"),
		})
		if err != nil {
			t.Fatalf("StoreMessage: %v", err)
		}
	}

	if err := store.DeleteExpired(ctx, 7*24*time.Hour); err != nil {
		t.Fatalf("DeleteExpired: %v", err)
	}
	got, _ := store.GetMessages(ctx, addr, "", 20)
	if len(got) != 1 || got[0].ID != fresh {
		t.Errorf("after sweep got %v, want only %s", got, fresh)
	}
}

func TestFileStorePersistence(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store, err := NewFileStore(dir, nil)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if err := store.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	user := models.UserRecord{Name: "cafebabe", PublicKey: make(models.HexBytes, 32)}
	if err := store.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if err := store.SetBanHosts(ctx, []string{"bad.example"}); err != nil {
		t.Fatalf("SetBanHosts: %v", err)
	}

	// A fresh store over the same directory sees the same state.
	reopened, err := NewFileStore(dir, nil)
	if err != nil {
		t.Fatalf("NewFileStore reopen: %v", err)
	}
	if err := reopened.Init(ctx); err != nil {
		t.Fatalf("Init reopen: %v", err)
	}
	if _, err := reopened.GetUser(ctx, user.Name); err != nil {
		t.Errorf("GetUser after reopen: %v", err)
	}
	hosts, err := reopened.GetBanHosts(ctx)
	if err != nil {
		t.Fatalf("GetBanHosts: %v", err)
	}
	if len(hosts) != 1 || hosts[0] != "bad.example" {
		t.Errorf("ban hosts after reopen = %v", hosts)
	}
}
