package event

import (
	"context"
	"errors"
	"testing"

	"wagate/internal/session"
	logx "wagate/pkg/logx"
)

const (
	group  = session.JID("12345-67890@g.us")
	direct = session.JID("111@s.whatsapp.net")
	self   = session.JID("999@s.whatsapp.net")
)

func TestNormalizeKinds(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		raw      session.RawMessage
		wantOK   bool
		wantKind Kind
		wantText string
	}{
		{
			name:     "conversation",
			raw:      session.RawMessage{Chat: group, Sender: direct, HasBody: true, Conversation: "hello"},
			wantOK:   true,
			wantKind: KindText,
			wantText: "hello",
		},
		{
			name:     "extended text",
			raw:      session.RawMessage{Chat: group, Sender: direct, HasBody: true, ExtendedText: "quoted reply"},
			wantOK:   true,
			wantKind: KindText,
			wantText: "quoted reply",
		},
		{
			name:     "image caption",
			raw:      session.RawMessage{Chat: group, Sender: direct, HasBody: true, ImageCaption: "look"},
			wantOK:   true,
			wantKind: KindCaption,
			wantText: "look",
		},
		{
			name:     "video caption",
			raw:      session.RawMessage{Chat: group, Sender: direct, HasBody: true, VideoCaption: "watch"},
			wantOK:   true,
			wantKind: KindCaption,
			wantText: "watch",
		},
		{
			name:     "sticker wins over text",
			raw:      session.RawMessage{Chat: group, Sender: direct, HasBody: true, HasSticker: true, Conversation: "ignored"},
			wantOK:   true,
			wantKind: KindSticker,
		},
		{
			name:   "no body",
			raw:    session.RawMessage{Chat: group, Sender: direct},
			wantOK: false,
		},
		{
			name:   "body flag but nothing resolvable",
			raw:    session.RawMessage{Chat: group, Sender: direct, HasBody: true},
			wantOK: false,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ev, ok := Normalize(tt.raw, self)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if ev.Kind != tt.wantKind {
				t.Errorf("Kind = %s, want %s", ev.Kind, tt.wantKind)
			}
			if ev.Text != tt.wantText {
				t.Errorf("Text = %q, want %q", ev.Text, tt.wantText)
			}
		})
	}
}

func TestNormalizeSelfEchoSuppression(t *testing.T) {
	t.Parallel()
	fromMe := session.RawMessage{Chat: group, Sender: direct, FromMe: true, HasBody: true, Conversation: "x"}
	if _, ok := Normalize(fromMe, self); ok {
		t.Fatal("FromMe message must produce no event")
	}
	echoed := session.RawMessage{Chat: group, Sender: self, HasBody: true, Conversation: "x"}
	if _, ok := Normalize(echoed, self); ok {
		t.Fatal("message from own identity must produce no event")
	}
}

func TestNormalizeGroupDetection(t *testing.T) {
	t.Parallel()
	g, _ := Normalize(session.RawMessage{Chat: group, Sender: direct, HasBody: true, Conversation: "x"}, self)
	if !g.IsGroup {
		t.Error("group-suffix chat must yield IsGroup")
	}
	d, _ := Normalize(session.RawMessage{Chat: direct, HasBody: true, Conversation: "x"}, self)
	if d.IsGroup {
		t.Error("user-suffix chat must not yield IsGroup")
	}
	// Individual chats carry no participant; the chat is the sender.
	if d.Sender != direct {
		t.Errorf("Sender = %s, want %s", d.Sender, direct)
	}
}

func TestNormalizeMembership(t *testing.T) {
	t.Parallel()
	ev, ok := NormalizeMembership(session.MembershipEvent{Chat: group, Joined: []session.JID{direct}})
	if !ok {
		t.Fatal("join must produce an event")
	}
	if ev.Kind != KindMembership || len(ev.Joined) != 1 {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if _, ok := NormalizeMembership(session.MembershipEvent{Chat: group, Left: []session.JID{direct}}); ok {
		t.Fatal("pure departure must produce no event")
	}
}

type failingFetcher struct{}

func (failingFetcher) GroupMetadata(ctx context.Context, chat session.JID) (session.GroupMetadata, error) {
	return session.GroupMetadata{}, errors.New("metadata unavailable")
}

func TestFetchGroupContextDegradesToEmpty(t *testing.T) {
	t.Parallel()
	ev := Event{Origin: group, IsGroup: true}
	gc := FetchGroupContext(context.Background(), failingFetcher{}, ev, logx.Nop())
	if len(gc.Participants) != 0 || len(gc.Admins) != 0 {
		t.Fatalf("expected empty context, got %+v", gc)
	}
}
