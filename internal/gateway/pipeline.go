package gateway

import (
	"context"
	"hash/fnv"
	"strings"

	"wagate/internal/event"
	"wagate/internal/moderation"
	"wagate/internal/relay"
	"wagate/internal/session"
	logx "wagate/pkg/logx"
)

// dispatch queues work on the lane owned by the originating chat. Events from
// one chat stay ordered; a slow relay call for one chat never blocks another
// chat's lane or a timer firing.
//
// If a lane backs up past its buffer, the event is dropped (the relay
// contract is at-most-once anyway) and the drop is logged.
func (a *App) dispatch(origin session.JID, fn func()) {
	h := fnv.New32a()
	_, _ = h.Write([]byte(origin))
	lane := a.lanes[h.Sum32()%uint32(len(a.lanes))]
	select {
	case lane <- fn:
	default:
		a.log.Warn("pipeline lane full; event dropped", logx.String("chat", origin.String()))
	}
}

// handleMessage runs the full inbound pipeline for one raw message:
// normalize, fetch group context, moderation and local overrides, then the
// policy relay. Moderation stripping and relay forwarding are independent;
// neither waits on or gates the other.
func (a *App) handleMessage(ctx context.Context, h *session.Handle, raw session.RawMessage) {
	ev, ok := event.Normalize(raw, h.SelfJID())
	if !ok {
		return
	}

	gc := event.FetchGroupContext(ctx, h, ev, a.log)

	if a.handleCommand(ctx, h, ev, gc) {
		return
	}

	// Moderation runs before the override lookup: an override only decides who
	// answers (locally instead of the relay), never whether a link survives.
	if lf := a.linkFilter.Load(); lf != nil && lf.Enabled {
		if moderation.Evaluate(ev, gc) == moderation.Strip {
			warn := lf.WarnReply
			a.sup.Go0("moderation.strip", func(sctx context.Context) {
				a.strip(sctx, h, ev, warn)
			})
		}
	}

	if canned, ok := a.overrides.Load().Match(ev); ok {
		out := session.Outgoing{Text: canned.Text, Mentions: canned.Mentions}
		if err := h.Send(ctx, ev.Origin, out); err != nil {
			a.log.Warn("override reply send failed", logx.String("chat", ev.Origin.String()), logx.Err(err))
		}
		return
	}

	act, err := a.relay.Forward(ctx, ev, gc)
	if err != nil {
		// At-most-once: the event is dropped, not retried, not queued.
		a.log.Warn("relay forward failed; event dropped",
			logx.String("chat", ev.Origin.String()), logx.String("kind", string(ev.Kind)), logx.Err(err))
		return
	}
	relay.Apply(ctx, h, ev, act, a.log)
}

// strip deletes a moderated message and optionally warns the sender.
// Both steps are best-effort; the delete is idempotent at the session client.
func (a *App) strip(ctx context.Context, h *session.Handle, ev event.Event, warnReply string) {
	if err := h.Delete(ctx, ev.Origin, ev.ID, ev.Sender); err != nil {
		a.log.Warn("moderation delete failed",
			logx.String("chat", ev.Origin.String()), logx.String("id", string(ev.ID)), logx.Err(err))
	}
	if warnReply == "" {
		return
	}
	text := strings.ReplaceAll(warnReply, "{sender}", "@"+mentionTag(ev.Sender))
	out := session.Outgoing{Text: text, Mentions: []session.JID{ev.Sender}}
	if err := h.Send(ctx, ev.Origin, out); err != nil {
		a.log.Warn("moderation warning send failed",
			logx.String("chat", ev.Origin.String()), logx.Err(err))
	}
}

// mentionTag is the user-visible part of a mention (identifier sans suffix).
func mentionTag(j session.JID) string {
	s := j.String()
	if i := strings.IndexByte(s, '@'); i > 0 {
		return s[:i]
	}
	return s
}

// handleMembership forwards join events to the policy relay so it can greet
// the new participants; departures are not forwarded.
func (a *App) handleMembership(ctx context.Context, h *session.Handle, m session.MembershipEvent) {
	ev, ok := event.NormalizeMembership(m)
	if !ok {
		return
	}
	gc := event.FetchGroupContext(ctx, h, ev, a.log)

	act, err := a.relay.Forward(ctx, ev, gc)
	if err != nil {
		a.log.Warn("relay forward failed; membership event dropped",
			logx.String("chat", ev.Origin.String()), logx.Err(err))
		return
	}
	relay.Apply(ctx, h, ev, act, a.log)
}
