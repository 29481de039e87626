package sendlogs

import (
	"context"
	"testing"
	"time"

	"github.com/Napageneral/sdr/internal/testutil"
)

func TestInsertAndList(t *testing.T) {
	conn := testutil.OpenTestDB(t)
	ctx := context.Background()
	user := testutil.CreateUser(t, conn, "u1")

	sentAt := time.Unix(1700000000, 0)
	if _, err := Insert(ctx, conn, Log{UserID: user, CampaignID: "c1", ContactID: "k1", Type: "email", Status: StatusSent, Message: "Olá", SentAt: &sentAt, CreatedAt: time.Unix(100, 0)}); err != nil {
		t.Fatalf("insert sent: %v", err)
	}
	if _, err := Insert(ctx, conn, Log{UserID: user, CampaignID: "c1", ContactID: "k2", Type: "whatsapp", Status: StatusFailed, Error: "boom", CreatedAt: time.Unix(200, 0)}); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if _, err := Insert(ctx, conn, Log{UserID: user, CampaignID: "c2", Type: "email", Status: StatusSent, CreatedAt: time.Unix(300, 0)}); err != nil {
		t.Fatalf("insert other campaign: %v", err)
	}
	if _, err := Insert(ctx, conn, Log{UserID: user}); err == nil {
		t.Fatalf("expected validation error")
	}

	logs, err := List(ctx, conn, user, Filter{CampaignID: "c1"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(logs) != 2 {
		t.Fatalf("expected 2 logs, got %d", len(logs))
	}
	if logs[0].ContactID != "k2" || logs[0].Error != "boom" || logs[0].SentAt != nil {
		t.Fatalf("expected newest failed log first, got %+v", logs[0])
	}
	if logs[1].SentAt == nil || !logs[1].SentAt.Equal(sentAt) {
		t.Fatalf("expected sent_at on sent log, got %+v", logs[1])
	}

	failed, err := List(ctx, conn, user, Filter{Status: StatusFailed})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(failed) != 1 {
		t.Fatalf("expected 1 failed log, got %d", len(failed))
	}

	limited, err := List(ctx, conn, user, Filter{Limit: 1})
	if err != nil {
		t.Fatalf("list limited: %v", err)
	}
	if len(limited) != 1 || limited[0].CampaignID != "c2" {
		t.Fatalf("unexpected limited list %+v", limited)
	}

	counts, err := CountByStatus(ctx, conn, user, "")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if counts[StatusSent] != 2 || counts[StatusFailed] != 1 {
		t.Fatalf("unexpected counts %+v", counts)
	}
}
