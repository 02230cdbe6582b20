package config

import (
	"encoding/json"
	"fmt"
	"strings"
)

type Config struct {
	Session    SessionConfig    `json:"session"`
	Storage    StorageConfig    `json:"storage"`
	Logging    LoggingConfig    `json:"logging"`
	Relay      RelayConfig      `json:"relay"`
	Moderation ModerationConfig `json:"moderation"`
	Broadcast  BroadcastConfig  `json:"broadcast"`
}

// SessionConfig selects the session-client driver.
//
// The transport itself lives outside this repo; drivers register themselves
// by name and receive Options opaquely.
type SessionConfig struct {
	Driver  string          `json:"driver"`
	Options json.RawMessage `json:"options,omitempty"`
}

// StorageConfig controls the credential store.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./auth_info" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// RelayConfig points at the external policy service.
type RelayConfig struct {
	BaseURL string `json:"base_url"`
	// Timeout is a Go duration string (e.g. "10s"). Default: 15s.
	Timeout string `json:"timeout,omitempty"`
}

type ModerationConfig struct {
	LinkFilter LinkFilterConfig `json:"link_filter"`
	Keywords   []KeywordRule    `json:"keywords,omitempty"`
}

// LinkFilterConfig controls deletion of link shares by non-admins in groups.
type LinkFilterConfig struct {
	Enabled bool `json:"enabled"`
	// WarnReply, when non-empty, is sent to the group after a strip,
	// mentioning the sender. "{sender}" expands to the sender mention.
	WarnReply string `json:"warn_reply,omitempty"`
}

// KeywordRule is a literal-text override evaluated before the policy relay.
// The first matching rule answers locally and short-circuits forwarding.
type KeywordRule struct {
	Match     string   `json:"match"`
	Reply     string   `json:"reply"`
	Mentions  []string `json:"mentions,omitempty"`
	GroupOnly bool     `json:"group_only,omitempty"`
}

type BroadcastConfig struct {
	// Timezone is an IANA TZ name for trigger evaluation (default UTC).
	// Triggers are fixed-offset: no daylight-saving recalculation.
	Timezone   string         `json:"timezone,omitempty"`
	RatePerSec int            `json:"rate_per_sec,omitempty"`
	Jobs       []BroadcastJob `json:"jobs,omitempty"`
}

// BroadcastJob is a scheduled bulk send. Destination resolution happens per
// firing: either the static list, or (with all_groups) a fresh enumeration of
// every group the session participates in.
type BroadcastJob struct {
	Name         string   `json:"name"`
	Spec         string   `json:"spec"` // cron expression
	AllGroups    bool     `json:"all_groups,omitempty"`
	Destinations []string `json:"destinations,omitempty"`
	Pool         []string `json:"pool"`
	Enabled      bool     `json:"enabled"`
}

// Validate checks cross-field requirements that the strict decoder can't.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Session.Driver) == "" {
		return fmt.Errorf("session.driver is required")
	}
	if strings.TrimSpace(c.Relay.BaseURL) == "" {
		return fmt.Errorf("relay.base_url is required")
	}
	if _, err := ParseDurationField("relay.timeout", c.Relay.Timeout); err != nil {
		return err
	}
	if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
		return err
	}
	for i, k := range c.Moderation.Keywords {
		if strings.TrimSpace(k.Match) == "" {
			return fmt.Errorf("moderation.keywords[%d].match is required", i)
		}
		if strings.TrimSpace(k.Reply) == "" {
			return fmt.Errorf("moderation.keywords[%d].reply is required", i)
		}
	}
	seen := map[string]bool{}
	for i, j := range c.Broadcast.Jobs {
		name := strings.TrimSpace(j.Name)
		if name == "" {
			return fmt.Errorf("broadcast.jobs[%d].name is required", i)
		}
		if seen[name] {
			return fmt.Errorf("broadcast.jobs[%d]: duplicate name %q", i, name)
		}
		seen[name] = true
		if strings.TrimSpace(j.Spec) == "" {
			return fmt.Errorf("broadcast.jobs[%d].spec is required", i)
		}
		if len(j.Pool) == 0 {
			return fmt.Errorf("broadcast.jobs[%d].pool must not be empty", i)
		}
		if !j.AllGroups && len(j.Destinations) == 0 {
			return fmt.Errorf("broadcast.jobs[%d]: set all_groups or destinations", i)
		}
	}
	return nil
}
