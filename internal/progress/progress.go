// Package progress mirrors pipeline milestones to a per-session broadcast topic.
package progress

import (
	"context"
	"encoding/json"
	"log"
	"time"
)

// Stage names a pipeline milestone.
type Stage string

const (
	StageTargetChosen   Stage = "target_chosen"
	StageDraftStarted   Stage = "draft_started"
	StageDraftReady     Stage = "draft_ready"
	StageCritiqueResult Stage = "critique_result"
	StageFallback       Stage = "fallback"
	StageComplete       Stage = "complete"
)

type Event struct {
	SessionID string    `json:"session_id"`
	Stage     Stage     `json:"stage"`
	Message   string    `json:"message"`
	At        time.Time `json:"at"`
}

// PubSub is the slice of the keyed store the channel needs.
type PubSub interface {
	Publish(ctx context.Context, channel, payload string) error
	Subscribe(ctx context.Context, channel string) (<-chan string, error)
}

// Topic returns the broadcast topic for a session.
func Topic(sessionID string) string { return "logs:" + sessionID }

// Channel publishes and subscribes to session progress. A nil *Channel is a no-op publisher.
type Channel struct {
	ps     PubSub
	logger *log.Logger
	now    func() time.Time
}

func NewChannel(ps PubSub, logger *log.Logger) *Channel {
	if logger == nil {
		logger = log.Default()
	}
	return &Channel{ps: ps, logger: logger, now: time.Now}
}

// Publish sends an event. Failures are logged and swallowed so callers never block on them.
func (c *Channel) Publish(ctx context.Context, sessionID string, stage Stage, message string) {
	if c == nil || c.ps == nil || sessionID == "" {
		return
	}
	payload, err := json.Marshal(Event{SessionID: sessionID, Stage: stage, Message: message, At: c.now().UTC()})
	if err != nil {
		c.logger.Printf("progress marshal failed: %v", err)
		return
	}
	if ctx.Err() != nil {
		ctx = context.Background()
	}
	pctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := c.ps.Publish(pctx, Topic(sessionID), string(payload)); err != nil {
		c.logger.Printf("progress publish %s/%s failed: %v", sessionID, stage, err)
	}
}

// Stream is a live subscription. Close it when the consumer disconnects.
type Stream struct {
	events chan Event
	cancel context.CancelFunc
}

func (s *Stream) Events() <-chan Event { return s.events }

func (s *Stream) Close() { s.cancel() }

// Subscribe follows a session's events until ctx is done or Close is called.
func (c *Channel) Subscribe(ctx context.Context, sessionID string) (*Stream, error) {
	ctx, cancel := context.WithCancel(ctx)
	raw, err := c.ps.Subscribe(ctx, Topic(sessionID))
	if err != nil {
		cancel()
		return nil, err
	}
	s := &Stream{events: make(chan Event, 16), cancel: cancel}
	go func() {
		defer close(s.events)
		for payload := range raw {
			var ev Event
			if err := json.Unmarshal([]byte(payload), &ev); err != nil {
				ev = Event{SessionID: sessionID, Message: payload, At: c.now().UTC()}
			}
			select {
			case s.events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return s, nil
}
