package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"wagate/internal/event"
	"wagate/internal/session"
	"wagate/internal/session/sessiontest"
	logx "wagate/pkg/logx"
)

const (
	group  = session.JID("12345-67890@g.us")
	member = session.JID("member@s.whatsapp.net")
	admin  = session.JID("admin@s.whatsapp.net")
)

func TestForwardRoundTrip(t *testing.T) {
	t.Parallel()
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/message" || r.Method != http.MethodPost {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"reply":    "hi",
			"mentions": []string{"a@x"},
			"delete":   false,
		})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL}, logx.Nop())
	ev := event.Event{
		Origin:  group,
		IsGroup: true,
		Sender:  member,
		Kind:    event.KindText,
		Text:    "hello",
		ID:      "MSG1",
	}
	gc := session.GroupMetadata{Participants: []session.JID{admin, member}, Admins: []session.JID{admin}}

	act, err := c.Forward(context.Background(), ev, gc)
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if act.Reply != "hi" || act.DeleteOriginal || len(act.Mentions) != 1 || act.Mentions[0] != "a@x" {
		t.Fatalf("unexpected action: %+v", act)
	}

	if got["from"] != group.String() || got["sender"] != member.String() {
		t.Errorf("payload identities wrong: %+v", got)
	}
	if got["text"] != "hello" || got["type"] != "text" || got["isGroup"] != true {
		t.Errorf("payload body wrong: %+v", got)
	}
	if n := len(got["admins"].([]any)); n != 1 {
		t.Errorf("admins = %v", got["admins"])
	}
}

func TestForwardMembershipPayload(t *testing.T) {
	t.Parallel()
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		_ = json.NewEncoder(w).Encode(map[string]any{"reply": "welcome"})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL}, logx.Nop())
	ev := event.Event{Origin: group, IsGroup: true, Kind: event.KindMembership, Joined: []session.JID{member}}
	gc := session.GroupMetadata{Participants: []session.JID{admin, member}}

	act, err := c.Forward(context.Background(), ev, gc)
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if act.Reply != "welcome" {
		t.Fatalf("unexpected action: %+v", act)
	}
	if _, hasText := got["text"]; hasText {
		t.Error("membership payload must not carry text")
	}
	if n := len(got["joined"].([]any)); n != 1 {
		t.Errorf("joined = %v", got["joined"])
	}
}

func TestForwardFailures(t *testing.T) {
	t.Parallel()
	t.Run("non-2xx", func(t *testing.T) {
		t.Parallel()
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}))
		defer srv.Close()
		c := New(Config{BaseURL: srv.URL}, logx.Nop())
		if _, err := c.Forward(context.Background(), event.Event{Origin: group}, session.GroupMetadata{}); err == nil {
			t.Fatal("expected error for 500")
		}
	})
	t.Run("timeout", func(t *testing.T) {
		t.Parallel()
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(200 * time.Millisecond)
		}))
		defer srv.Close()
		c := New(Config{BaseURL: srv.URL, Timeout: 20 * time.Millisecond}, logx.Nop())
		if _, err := c.Forward(context.Background(), event.Event{Origin: group}, session.GroupMetadata{}); err == nil {
			t.Fatal("expected timeout error")
		}
	})
}

func TestApply(t *testing.T) {
	t.Parallel()
	ev := event.Event{Origin: group, IsGroup: true, Sender: member, ID: "MSG1"}

	t.Run("reply without delete", func(t *testing.T) {
		t.Parallel()
		f := sessiontest.New()
		h := sessiontest.Handle(f)
		Apply(context.Background(), h, ev, Action{Reply: "hi", Mentions: []session.JID{"a@x"}}, logx.Nop())
		if len(f.Deletes()) != 0 {
			t.Fatal("no delete expected")
		}
		sends := f.Sends()
		if len(sends) != 1 || sends[0].Msg.Text != "hi" || sends[0].Msg.Mentions[0] != "a@x" {
			t.Fatalf("unexpected sends: %+v", sends)
		}
	})

	t.Run("delete and reply are independent", func(t *testing.T) {
		t.Parallel()
		f := sessiontest.New()
		h := sessiontest.Handle(f)
		Apply(context.Background(), h, ev, Action{Reply: "gone", DeleteOriginal: true}, logx.Nop())
		dels := f.Deletes()
		if len(dels) != 1 || dels[0].ID != "MSG1" || dels[0].Author != member {
			t.Fatalf("unexpected deletes: %+v", dels)
		}
		if len(f.Sends()) != 1 {
			t.Fatalf("expected reply alongside delete")
		}
	})

	t.Run("zero action is a no-op", func(t *testing.T) {
		t.Parallel()
		f := sessiontest.New()
		h := sessiontest.Handle(f)
		Apply(context.Background(), h, ev, Action{}, logx.Nop())
		if len(f.Sends()) != 0 || len(f.Deletes()) != 0 {
			t.Fatal("zero action must touch nothing")
		}
	})
}
