package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"wagate/internal/event"
	"wagate/internal/session"
	logx "wagate/pkg/logx"
)

// Action is the instruction set returned by the policy service.
// Consumed once, then discarded.
type Action struct {
	Reply          string
	Mentions       []session.JID
	DeleteOriginal bool
}

func (a Action) IsZero() bool {
	return a.Reply == "" && len(a.Mentions) == 0 && !a.DeleteOriginal
}

type Config struct {
	BaseURL string
	Timeout time.Duration // default 15s
}

// Client forwards normalized events to the external policy service.
//
// The service is stateless from the gateway's perspective: every call carries
// full context. Failures are surfaced as errors; the caller logs and drops
// the event (at-most-once, best-effort).
type Client struct {
	base string
	http *http.Client
	log  logx.Logger
}

func New(cfg Config, log logx.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Client{
		base: strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		http: &http.Client{Timeout: timeout},
		log:  log,
	}
}

type messageRequest struct {
	From         string   `json:"from"`
	Text         string   `json:"text,omitempty"`
	Type         string   `json:"type,omitempty"`
	IsGroup      bool     `json:"isGroup"`
	Participants []string `json:"participants"`
	Admins       []string `json:"admins,omitempty"`
	Sender       string   `json:"sender,omitempty"`
	StickerText  string   `json:"stickerText,omitempty"`
	Joined       []string `json:"joined,omitempty"`
}

type messageResponse struct {
	Reply    string   `json:"reply,omitempty"`
	Mentions []string `json:"mentions,omitempty"`
	Delete   bool     `json:"delete,omitempty"`
}

// Forward sends the event plus its group context and returns the decided
// Action. Timeouts and non-2xx responses come back as errors and mean
// "no action".
func (c *Client) Forward(ctx context.Context, ev event.Event, gc session.GroupMetadata) (Action, error) {
	req := messageRequest{
		From:         ev.Origin.String(),
		IsGroup:      ev.IsGroup,
		Participants: jidStrings(gc.Participants),
	}
	if ev.Kind == event.KindMembership {
		req.Joined = jidStrings(ev.Joined)
	} else {
		req.Text = ev.Text
		req.Type = string(ev.Kind)
		req.Admins = jidStrings(gc.Admins)
		req.Sender = ev.Sender.String()
		if ev.Kind == event.KindSticker {
			req.StickerText = ev.Text
		}
	}
	return c.post(ctx, req)
}

func (c *Client) post(ctx context.Context, req messageRequest) (Action, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return Action{}, fmt.Errorf("encode relay request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/message", bytes.NewReader(body))
	if err != nil {
		return Action{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return Action{}, fmt.Errorf("relay request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return Action{}, fmt.Errorf("relay status %d", resp.StatusCode)
	}

	var mr messageResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&mr); err != nil {
		return Action{}, fmt.Errorf("decode relay response: %w", err)
	}

	act := Action{Reply: mr.Reply, DeleteOriginal: mr.Delete}
	for _, m := range mr.Mentions {
		act.Mentions = append(act.Mentions, session.JID(m))
	}
	return act, nil
}

func jidStrings(js []session.JID) []string {
	out := make([]string, 0, len(js))
	for _, j := range js {
		out = append(out, j.String())
	}
	return out
}
