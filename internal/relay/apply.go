package relay

import (
	"context"

	"wagate/internal/event"
	"wagate/internal/session"
	logx "wagate/pkg/logx"
)

// Sender is the slice of the session handle needed to execute an Action.
type Sender interface {
	Send(ctx context.Context, chat session.JID, msg session.Outgoing) error
	Delete(ctx context.Context, chat session.JID, id session.MessageID, author session.JID) error
}

// Apply executes an Action against the originating chat.
//
// Delete and reply are independent best-effort steps: a failed delete never
// suppresses the reply and vice versa. Deletes are idempotent at the session
// client, so a redundant delete (moderation already removed the message) is
// harmless.
func Apply(ctx context.Context, s Sender, ev event.Event, act Action, log logx.Logger) {
	if log.IsZero() {
		log = logx.Nop()
	}

	if act.DeleteOriginal && ev.ID != "" {
		if err := s.Delete(ctx, ev.Origin, ev.ID, ev.Sender); err != nil {
			log.Warn("relay-directed delete failed",
				logx.String("chat", ev.Origin.String()), logx.String("id", string(ev.ID)), logx.Err(err))
		}
	}

	if act.Reply != "" {
		out := session.Outgoing{Text: act.Reply, Mentions: act.Mentions}
		if err := s.Send(ctx, ev.Origin, out); err != nil {
			log.Warn("relay reply send failed",
				logx.String("chat", ev.Origin.String()), logx.Err(err))
		}
	}
}
