package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// invalidation is the message published on the sync channel after every
// remote write or delete.
type invalidation struct {
	Source string `json:"source"`
	Action string `json:"action"` // "set", "delete" or "clear"
	Key    string `json:"key,omitempty"`
}

// MultiLevel combines the local and remote tiers. Reads check local first;
// writes go remote-first (the remote tier is the source of truth), publish
// an invalidation, then populate local. All remote failures are soft: the
// cache degrades to local-only operation and never surfaces tier errors to
// callers.
type MultiLevel struct {
	instanceID string
	local      *Local
	remote     Remote // nil means local-only
	channel    string
	remoteTTL  time.Duration
	logger     *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	unsub  func() error
	done   chan struct{}
}

// NewMultiLevel creates the tiered cache. remote may be nil for local-only
// operation (tests, or Redis unreachable at startup).
func NewMultiLevel(local *Local, remote Remote, channel string, remoteTTL time.Duration, logger *slog.Logger) *MultiLevel {
	if logger == nil {
		logger = slog.Default()
	}
	return &MultiLevel{
		instanceID: uuid.NewString(),
		local:      local,
		remote:     remote,
		channel:    channel,
		remoteTTL:  remoteTTL,
		logger:     logger,
	}
}

// InstanceID identifies this process in invalidation messages.
func (m *MultiLevel) InstanceID() string { return m.instanceID }

// Get checks the local tier, then the remote tier. A remote hit populates
// the local tier before returning.
func (m *MultiLevel) Get(ctx context.Context, key string) ([]byte, bool) {
	if v, ok := m.local.Get(key); ok {
		return v, true
	}
	if m.remote == nil {
		return nil, false
	}
	v, ok, err := m.remote.Get(ctx, key)
	if err != nil {
		m.logger.Warn("remote cache get failed, serving local only", "key", key, "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	m.local.Set(key, v)
	return v, true
}

// Set writes the remote tier first, publishes the invalidation carrying
// the key, then writes the local tier.
func (m *MultiLevel) Set(ctx context.Context, key string, value []byte) {
	if m.remote != nil {
		if err := m.remote.Set(ctx, key, value, m.remoteTTL); err != nil {
			m.logger.Warn("remote cache set failed, writing local only", "key", key, "error", err)
		} else {
			m.publish(ctx, "set", key)
		}
	}
	m.local.Set(key, value)
}

// Delete removes the key from both tiers and notifies other instances.
func (m *MultiLevel) Delete(ctx context.Context, key string) {
	if m.remote != nil {
		if err := m.remote.Delete(ctx, key); err != nil {
			m.logger.Warn("remote cache delete failed", "key", key, "error", err)
		} else {
			m.publish(ctx, "delete", key)
		}
	}
	m.local.Delete(key)
}

func (m *MultiLevel) publish(ctx context.Context, action, key string) {
	payload, err := json.Marshal(invalidation{Source: m.instanceID, Action: action, Key: key})
	if err != nil {
		return
	}
	if err := m.remote.Publish(ctx, m.channel, payload); err != nil {
		m.logger.Warn("cache invalidation publish failed", "key", key, "error", err)
	}
}

// StartListener subscribes to the sync channel and evicts local entries on
// every set/delete notification, this instance's own included. Eviction
// is idempotent and the next Get repopulates from the remote tier. The
// listener runs until ctx is cancelled or Close is called.
func (m *MultiLevel) StartListener(ctx context.Context) error {
	if m.remote == nil {
		return nil
	}
	listenCtx, cancel := context.WithCancel(ctx)
	msgs, unsub, err := m.remote.Subscribe(listenCtx, m.channel)
	if err != nil {
		cancel()
		return fmt.Errorf("subscribing to %s: %w", m.channel, err)
	}

	m.mu.Lock()
	m.cancel = cancel
	m.unsub = unsub
	m.done = make(chan struct{})
	done := m.done
	m.mu.Unlock()

	go func() {
		defer close(done)
		for msg := range msgs {
			var inv invalidation
			if err := json.Unmarshal(msg, &inv); err != nil {
				m.logger.Warn("malformed cache invalidation", "error", err)
				continue
			}
			switch inv.Action {
			case "set", "delete":
				if inv.Key != "" {
					m.local.Delete(inv.Key)
				}
			case "clear":
				m.local.Purge()
			}
		}
	}()
	return nil
}

// Close stops the listener, unsubscribes, and closes the remote
// connection.
func (m *MultiLevel) Close() error {
	m.mu.Lock()
	cancel, unsub, done := m.cancel, m.unsub, m.done
	m.cancel, m.unsub, m.done = nil, nil, nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	var err error
	if unsub != nil {
		err = unsub()
	}
	if done != nil {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
		}
	}
	if m.remote != nil {
		if cerr := m.remote.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// Local exposes the local tier for stats reporting.
func (m *MultiLevel) Local() *Local { return m.local }
