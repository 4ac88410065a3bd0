package bot

import (
	"errors"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/a-atpv/report-bot-amu/internal/registry"
)

func TestIsPermanentSendError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"chat not found", errors.New("Bad Request: chat not found"), true},
		{"blocked", errors.New("Forbidden: bot was blocked by the user"), true},
		{"unauthorized", errors.New("Unauthorized"), true},
		{"rate limited", errors.New("Too Many Requests: retry after 5"), false},
		{"network", errors.New("dial tcp: i/o timeout"), false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := isPermanentSendError(tt.err); got != tt.want {
				t.Errorf("isPermanentSendError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func newTestChats(t *testing.T, ids ...int64) *registry.Registry {
	t.Helper()
	reg := registry.New(filepath.Join(t.TempDir(), "chat_ids.json"), zap.NewNop())
	reg.Load()
	for _, id := range ids {
		if _, err := reg.Track(id); err != nil {
			t.Fatalf("track %d: %v", id, err)
		}
	}
	return reg
}

func TestDeliverDigestPrunesGoneChats(t *testing.T) {
	t.Parallel()

	reg := newTestChats(t, 1, 2, 3)
	send := func(chatID int64, _ string) error {
		if chatID == 2 {
			return errors.New("Bad Request: chat not found")
		}
		return nil
	}

	sent, failed, removed := deliverDigest(zap.NewNop(), reg, reg.IDs(), "digest", send)

	if sent != 2 || failed != 1 || removed != 1 {
		t.Errorf("sent=%d failed=%d removed=%d, want 2/1/1", sent, failed, removed)
	}
	got := reg.IDs()
	if len(got) != 2 || got[0] != 1 || got[1] != 3 {
		t.Errorf("registry after delivery = %v, want [1 3]", got)
	}
}

func TestDeliverDigestKeepsChatOnTransientFailure(t *testing.T) {
	t.Parallel()

	reg := newTestChats(t, 1, 2, 3)
	send := func(chatID int64, _ string) error {
		if chatID == 2 {
			return errors.New("Too Many Requests: retry after 5")
		}
		return nil
	}

	sent, failed, removed := deliverDigest(zap.NewNop(), reg, reg.IDs(), "digest", send)

	if sent != 2 || failed != 1 || removed != 0 {
		t.Errorf("sent=%d failed=%d removed=%d, want 2/1/0", sent, failed, removed)
	}
	if got := reg.IDs(); len(got) != 3 {
		t.Errorf("registry after delivery = %v, want all three kept", got)
	}
}

func TestDeliverDigestSendsToEveryChat(t *testing.T) {
	t.Parallel()

	reg := newTestChats(t, 10, 20, 30)
	var delivered []int64
	send := func(chatID int64, text string) error {
		if text != "digest" {
			t.Errorf("unexpected text %q", text)
		}
		delivered = append(delivered, chatID)
		return nil
	}

	sent, failed, removed := deliverDigest(zap.NewNop(), reg, reg.IDs(), "digest", send)

	if sent != 3 || failed != 0 || removed != 0 {
		t.Errorf("sent=%d failed=%d removed=%d, want 3/0/0", sent, failed, removed)
	}
	if len(delivered) != 3 || delivered[0] != 10 || delivered[1] != 20 || delivered[2] != 30 {
		t.Errorf("delivered to %v, want [10 20 30]", delivered)
	}
}
