package gateway

import (
	"context"
	"fmt"
	"strings"

	"wagate/internal/event"
	"wagate/internal/session"
	logx "wagate/pkg/logx"
)

const commandPrefix = "!broadcast"

// handleCommand services the in-band administrative surface.
//
// Only group admins may use it, verified at evaluation time against the
// group's current admin set. Anything unauthorized (individual chat,
// non-admin sender, degraded metadata) is silently ignored so the command
// surface leaks nothing to regular members.
func (a *App) handleCommand(ctx context.Context, h *session.Handle, ev event.Event, gc session.GroupMetadata) bool {
	text := strings.TrimSpace(ev.Text)
	if !strings.HasPrefix(strings.ToLower(text), commandPrefix) {
		return false
	}
	if !ev.IsGroup || !gc.IsAdmin(ev.Sender) {
		// Claimed by the command surface either way: a denied command must
		// not fall through to the policy relay.
		return true
	}

	args := strings.Fields(text)[1:]
	reply := a.runCommand(args)
	if reply == "" {
		return true
	}
	if err := h.Send(ctx, ev.Origin, session.Outgoing{Text: reply}); err != nil {
		a.log.Warn("command reply send failed", logx.String("chat", ev.Origin.String()), logx.Err(err))
	}
	return true
}

func (a *App) runCommand(args []string) string {
	if len(args) == 0 {
		return "usage: !broadcast on <job> | off <job> | status"
	}
	switch strings.ToLower(args[0]) {
	case "on", "off":
		if len(args) < 2 {
			return fmt.Sprintf("usage: !broadcast %s <job>", args[0])
		}
		name := args[1]
		enabled := strings.EqualFold(args[0], "on")
		if !a.bcast.SetEnabled(name, enabled) {
			return fmt.Sprintf("unknown broadcast job %q", name)
		}
		state := "disabled"
		if enabled {
			state = "enabled"
		}
		return fmt.Sprintf("broadcast %q %s (takes effect next firing)", name, state)
	case "status":
		jobs := a.bcast.Jobs()
		if len(jobs) == 0 {
			return "no broadcast jobs configured"
		}
		var b strings.Builder
		for _, j := range jobs {
			state := "off"
			if j.Enabled {
				state = "on"
			}
			fmt.Fprintf(&b, "%s [%s] %s", j.Name, state, j.Spec)
			if !j.Last.At.IsZero() {
				fmt.Fprintf(&b, " (last: %s, sent %d, failed %d)",
					j.Last.At.Format("15:04"), j.Last.Sent, j.Last.Failed)
			}
			b.WriteString("\n")
		}
		return strings.TrimRight(b.String(), "\n")
	default:
		return "usage: !broadcast on <job> | off <job> | status"
	}
}
