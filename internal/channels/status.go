package channels

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/Napageneral/sdr/internal/config"
	"github.com/Napageneral/sdr/internal/db"
	"github.com/Napageneral/sdr/internal/state"
)

const (
	stateLastStatus    = "last_status"
	stateLastError     = "last_error"
	stateLastSuccessAt = "last_success_at"
	stateLastFailureAt = "last_failure_at"
	stateSent          = "sent"
	stateFailed        = "failed"
)

// Status is the configured and observed state of one channel.
type Status struct {
	Name          string `json:"name"`
	Kind          string `json:"kind"`
	Type          string `json:"type"`
	Enabled       bool   `json:"enabled"`
	Supported     bool   `json:"supported"`
	LastStatus    string `json:"last_status,omitempty"`
	LastError     string `json:"last_error,omitempty"`
	LastSuccessAt *int64 `json:"last_success_at,omitempty"`
	LastFailureAt *int64 `json:"last_failure_at,omitempty"`
	Sent          int64  `json:"sent"`
	Failed        int64  `json:"failed"`
}

// Supported reports whether a channel type can be built.
func Supported(channelType string) bool {
	switch channelType {
	case "resend", "simulated":
		return true
	default:
		return false
	}
}

// RecordOutcome stores the result of one send attempt for kind.
func RecordOutcome(ctx context.Context, q db.Querier, kind string, sendErr error) error {
	now := strconv.FormatInt(time.Now().Unix(), 10)
	if sendErr == nil {
		if err := state.Set(ctx, q, kind, stateLastStatus, "ok"); err != nil {
			return err
		}
		if err := state.Set(ctx, q, kind, stateLastSuccessAt, now); err != nil {
			return err
		}
		return state.Incr(ctx, q, kind, stateSent, 1)
	}

	if err := state.Set(ctx, q, kind, stateLastStatus, "error"); err != nil {
		return err
	}
	if err := state.Set(ctx, q, kind, stateLastError, sendErr.Error()); err != nil {
		return err
	}
	if err := state.Set(ctx, q, kind, stateLastFailureAt, now); err != nil {
		return err
	}
	return state.Incr(ctx, q, kind, stateFailed, 1)
}

// GetStatuses lists every configured channel with its recorded state.
func GetStatuses(ctx context.Context, q db.Querier, cfg *config.Config) ([]Status, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	names := make([]string, 0, len(cfg.Channels))
	for name := range cfg.Channels {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]Status, 0, len(names))
	for _, name := range names {
		chCfg := cfg.Channels[name]
		kind := chCfg.Kind
		if kind == "" {
			kind = name
		}
		st := Status{
			Name:      name,
			Kind:      kind,
			Type:      chCfg.Type,
			Enabled:   chCfg.Enabled,
			Supported: Supported(chCfg.Type),
		}
		if err := readStatus(ctx, q, &st); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}

func readStatus(ctx context.Context, q db.Querier, st *Status) error {
	var err error
	if st.LastStatus, _, err = state.Get(ctx, q, st.Kind, stateLastStatus); err != nil {
		return err
	}
	if st.LastError, _, err = state.Get(ctx, q, st.Kind, stateLastError); err != nil {
		return err
	}
	if st.LastSuccessAt, err = readInt(ctx, q, st.Kind, stateLastSuccessAt); err != nil {
		return err
	}
	if st.LastFailureAt, err = readInt(ctx, q, st.Kind, stateLastFailureAt); err != nil {
		return err
	}
	if n, err := readInt(ctx, q, st.Kind, stateSent); err != nil {
		return err
	} else if n != nil {
		st.Sent = *n
	}
	if n, err := readInt(ctx, q, st.Kind, stateFailed); err != nil {
		return err
	} else if n != nil {
		st.Failed = *n
	}
	return nil
}

func readInt(ctx context.Context, q db.Querier, channel, key string) (*int64, error) {
	v, ok, err := state.Get(ctx, q, channel, key)
	if err != nil || !ok {
		return nil, err
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return nil, nil
	}
	return &n, nil
}
