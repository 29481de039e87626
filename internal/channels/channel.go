// Package channels delivers rendered outreach messages over email and
// WhatsApp. Each configured channel is addressed by its kind.
package channels

import (
	"context"
	"fmt"
	"sort"

	"github.com/Napageneral/sdr/internal/config"
)

// Channel kinds
const (
	KindEmail    = "email"
	KindWhatsApp = "whatsapp"
)

// Message is a personalized message for one recipient.
type Message struct {
	// To is an email address or a phone number depending on the channel.
	To      string
	Name    string
	Subject string
	Body    string
}

// Receipt identifies an accepted message at the provider.
type Receipt struct {
	MessageID string `json:"message_id,omitempty"`
}

// Channel is the interface every delivery channel implements
type Channel interface {
	// Name returns the channel type (e.g., "resend", "simulated")
	Name() string

	// Send delivers one message. A nil error means the provider accepted it.
	Send(ctx context.Context, msg Message) (Receipt, error)
}

// Registry maps channel kinds to channels.
type Registry struct {
	byKind map[string]Channel
}

// NewRegistry builds a registry from explicit channels, keyed by kind.
func NewRegistry(byKind map[string]Channel) *Registry {
	r := &Registry{byKind: make(map[string]Channel, len(byKind))}
	for k, ch := range byKind {
		r.byKind[k] = ch
	}
	return r
}

// Get returns the channel registered for kind.
func (r *Registry) Get(kind string) (Channel, bool) {
	if r == nil {
		return nil, false
	}
	ch, ok := r.byKind[kind]
	return ch, ok
}

// Kinds lists registered kinds in sorted order.
func (r *Registry) Kinds() []string {
	if r == nil {
		return nil
	}
	out := make([]string, 0, len(r.byKind))
	for k := range r.byKind {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Build creates channels for every enabled entry in cfg.Channels. When two
// entries share a kind the one with the lexically smaller name wins.
func Build(cfg *config.Config, logf func(format string, args ...any)) (*Registry, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logf == nil {
		logf = func(string, ...any) {}
	}

	names := make([]string, 0, len(cfg.Channels))
	for name := range cfg.Channels {
		names = append(names, name)
	}
	sort.Strings(names)

	byKind := map[string]Channel{}
	for _, name := range names {
		chCfg := cfg.Channels[name]
		if !chCfg.Enabled {
			continue
		}
		kind := chCfg.Kind
		if kind == "" {
			kind = name
		}
		if _, taken := byKind[kind]; taken {
			logf("channel %s ignored: kind %s already configured", name, kind)
			continue
		}

		switch chCfg.Type {
		case "resend":
			ch, err := NewResend(chCfg.Options)
			if err != nil {
				return nil, fmt.Errorf("channel %s: %w", name, err)
			}
			byKind[kind] = ch
		case "simulated":
			byKind[kind] = NewSimulated(chCfg.Options)
		default:
			logf("channel %s ignored: unknown type %q", name, chCfg.Type)
		}
	}
	return NewRegistry(byKind), nil
}
