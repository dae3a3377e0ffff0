package backend

import (
	"context"
	"testing"

	"github.com/relabs-tech/tabular/core/access"
)

func TestCreateRow(t *testing.T) {
	b, _, notifier := newTestBackendWithNotifier()
	ctx := context.Background()

	if _, serr := b.CreateRow(ctx, nil, "article", Row{"title": "Nope"}); serr == nil || serr.Status != 403 {
		t.Fatalf("expected 403 for anonymous create, got %v", serr)
	}

	created, serr := b.CreateRow(ctx, adminAuth, "article", Row{"title": "Gamma", "author": "a1"})
	if serr != nil {
		t.Fatal(serr)
	}
	if created["granted"] != "draft" {
		t.Fatalf("new rows start as draft, got %v", created["granted"])
	}
	if created["owner_id"] != adminAuth.UserID {
		t.Fatalf("new rows are stamped with the caller as owner, got %v", created["owner_id"])
	}
	if created["id"] == nil {
		t.Fatal("expected an id on the created row")
	}
	if len(notifier.events) != 1 || notifier.events[0] != "article:create" {
		t.Fatalf("expected a create notification, got %v", notifier.events)
	}

	// the backend manages the granted state and the owner
	if _, serr := b.CreateRow(ctx, adminAuth, "article",
		Row{"title": "X", "granted": "shared"}); serr == nil || serr.Status != 400 {
		t.Fatalf("expected 400 when writing the granted state directly, got %v", serr)
	}
	if _, serr := b.CreateRow(ctx, adminAuth, "article",
		Row{"title": "X", "owner_id": "1"}); serr == nil || serr.Status != 400 {
		t.Fatalf("expected 400 when writing the owner directly, got %v", serr)
	}
	if _, serr := b.CreateRow(ctx, adminAuth, "article",
		Row{"bogus": "X"}); serr == nil || serr.Status != 400 {
		t.Fatalf("expected 400 for an unknown field, got %v", serr)
	}
}

func TestUpdateRow(t *testing.T) {
	b, _, notifier := newTestBackendWithNotifier()
	ctx := context.Background()

	// drafts are writable by their owner only, and a foreign draft does not
	// even disclose its existence
	updated, serr := b.UpdateRow(ctx, ownerAuth, "article", "r3", Row{"title": "Draftier"})
	if serr != nil {
		t.Fatal(serr)
	}
	if updated["title"] != "Draftier" {
		t.Fatalf("expected updated title, got %v", updated["title"])
	}
	if _, serr := b.UpdateRow(ctx, nil, "article", "r3", Row{"title": "X"}); serr == nil || serr.Status != 404 {
		t.Fatalf("expected 404 for a foreign draft, got %v", serr)
	}

	// shared rows require the table-level update capability
	if _, serr := b.UpdateRow(ctx, ownerAuth, "article", "r1", Row{"title": "X"}); serr == nil || serr.Status != 403 {
		t.Fatalf("expected 403 without the update capability, got %v", serr)
	}
	if _, serr := b.UpdateRow(ctx, adminAuth, "article", "r1", Row{"title": "Alpha 2"}); serr != nil {
		t.Fatal(serr)
	}

	// the owner may move their draft to shared, but not publish it here
	updated, serr = b.UpdateRow(ctx, ownerAuth, "article", "r3", Row{"granted": "shared"})
	if serr != nil {
		t.Fatal(serr)
	}
	if updated["granted"] != "shared" {
		t.Fatalf("expected shared, got %v", updated["granted"])
	}
	if _, serr := b.UpdateRow(ctx, adminAuth, "article", "r1",
		Row{"granted": "published @member"}); serr == nil || serr.Status != 400 {
		t.Fatalf("expected 400 for publishing through update, got %v", serr)
	}

	if _, serr := b.UpdateRow(ctx, adminAuth, "article", "missing", Row{"title": "X"}); serr == nil || serr.Status != 404 {
		t.Fatalf("expected 404 for a missing row, got %v", serr)
	}
	if len(notifier.events) != 3 {
		t.Fatalf("expected 3 update notifications, got %v", notifier.events)
	}
}

func TestUpdateRow_FieldGrant(t *testing.T) {
	b, _ := newTestBackend()
	ctx := context.Background()

	// email carries its own grant which admin holds
	editor := &access.Authorization{UserID: "7", Roles: []string{"admin"}}
	if _, serr := b.UpdateRow(ctx, editor, "author", "a1", Row{"email": "new@example.com"}); serr != nil {
		t.Fatal(serr)
	}
}

func TestDeleteRow(t *testing.T) {
	b, storage, notifier := newTestBackendWithNotifier()
	ctx := context.Background()

	if serr := b.DeleteRow(ctx, nil, "article", "r1"); serr == nil || serr.Status != 403 {
		t.Fatalf("expected 403 for anonymous delete, got %v", serr)
	}

	// owners may delete their own drafts
	if serr := b.DeleteRow(ctx, ownerAuth, "article", "r3"); serr != nil {
		t.Fatal(serr)
	}
	if serr := b.DeleteRow(ctx, adminAuth, "article", "r1"); serr != nil {
		t.Fatal(serr)
	}
	if len(storage.tables["article"]) != 1 {
		t.Fatalf("expected 1 article left, got %d", len(storage.tables["article"]))
	}

	if serr := b.DeleteRow(ctx, adminAuth, "article", "missing"); serr == nil || serr.Status != 404 {
		t.Fatalf("expected 404 for a missing row, got %v", serr)
	}
	if len(notifier.events) != 2 {
		t.Fatalf("expected 2 delete notifications, got %v", notifier.events)
	}
}

func TestPublishRow(t *testing.T) {
	b, _, notifier := newTestBackendWithNotifier()
	ctx := context.Background()

	if _, serr := b.PublishRow(ctx, ownerAuth, "article", "r1", "member"); serr == nil || serr.Status != 403 {
		t.Fatalf("expected 403 without the publish capability, got %v", serr)
	}
	if _, serr := b.PublishRow(ctx, adminAuth, "article", "r1", "admin"); serr == nil || serr.Status != 400 {
		t.Fatalf("expected 400 for a role outside publishable_to, got %v", serr)
	}

	published, serr := b.PublishRow(ctx, adminAuth, "article", "r1", "member")
	if serr != nil {
		t.Fatal(serr)
	}
	if published["granted"] != "published @member" {
		t.Fatalf("expected published state, got %v", published["granted"])
	}
	if len(notifier.events) != 1 || notifier.events[0] != "article:publish" {
		t.Fatalf("expected a publish notification, got %v", notifier.events)
	}

	if _, serr := b.PublishRow(ctx, adminAuth, "article", "missing", "member"); serr == nil || serr.Status != 404 {
		t.Fatalf("expected 404 for a missing row, got %v", serr)
	}
}

func TestPublishRow_ForeignDraft(t *testing.T) {
	b, storage := newTestBackend()
	ctx := context.Background()

	// r3 is an owner-only draft of user 5; even a publisher must neither
	// publish it nor learn that it exists
	if _, serr := b.PublishRow(ctx, adminAuth, "article", "r3", "member"); serr == nil || serr.Status != 404 {
		t.Fatalf("expected 404 for a foreign draft, got %v", serr)
	}
	for _, row := range storage.tables["article"] {
		if row["id"] == "r3" && row["granted"] != "draft" {
			t.Fatalf("foreign draft left the draft state: %v", row["granted"])
		}
	}

	// the owner with the publish capability may publish their own draft
	created, serr := b.CreateRow(ctx, adminAuth, "article", Row{"title": "Epsilon", "author": "a1"})
	if serr != nil {
		t.Fatal(serr)
	}
	published, serr := b.PublishRow(ctx, adminAuth, "article", created["id"].(string), "member")
	if serr != nil {
		t.Fatal(serr)
	}
	if published["granted"] != "published @member" {
		t.Fatalf("expected published state, got %v", published["granted"])
	}
}
