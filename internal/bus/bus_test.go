package bus

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/Napageneral/sdr/internal/testutil"
)

func TestEmitAndList(t *testing.T) {
	conn := testutil.OpenTestDB(t)
	ctx := context.Background()

	if err := Emit(ctx, conn, "u1", TypeCampaignCreated, "c1", map[string]any{"name": "Padarias"}); err != nil {
		t.Fatalf("emit: %v", err)
	}
	if err := Emit(ctx, conn, "u1", TypeMessageSent, "", nil); err != nil {
		t.Fatalf("emit without payload: %v", err)
	}
	if err := Emit(ctx, conn, "u2", TypeMessageSent, "", nil); err != nil {
		t.Fatalf("emit other user: %v", err)
	}
	if err := Emit(ctx, conn, "u1", "", "", nil); err == nil {
		t.Fatalf("expected error for empty type")
	}

	events, err := List(ctx, conn, "u1", 0, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Type != TypeCampaignCreated || events[0].SubjectID == nil || *events[0].SubjectID != "c1" {
		t.Fatalf("unexpected first event %+v", events[0])
	}
	var payload map[string]string
	if err := json.Unmarshal(events[0].Payload, &payload); err != nil || payload["name"] != "Padarias" {
		t.Fatalf("unexpected payload %s (%v)", events[0].Payload, err)
	}
	if events[1].SubjectID != nil || events[1].Payload != nil {
		t.Fatalf("expected bare second event, got %+v", events[1])
	}

	after, err := List(ctx, conn, "u1", events[0].Seq, 10)
	if err != nil {
		t.Fatalf("list after: %v", err)
	}
	if len(after) != 1 || after[0].Seq != events[1].Seq {
		t.Fatalf("unexpected events after seq: %+v", after)
	}

	recent, err := Recent(ctx, conn, "u1", 1)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recent) != 1 || recent[0].Type != TypeMessageSent {
		t.Fatalf("unexpected recent events: %+v", recent)
	}
}
