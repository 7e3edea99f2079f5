package progress

import (
	"bytes"
	"context"
	"errors"
	"log"
	"strings"
	"testing"
	"time"

	"github.com/mohammad-safakhou/atlast/repository/inmemory_repository"
)

type failingPubSub struct{}

func (failingPubSub) Publish(context.Context, string, string) error { return errors.New("down") }

func (failingPubSub) Subscribe(context.Context, string) (<-chan string, error) {
	return nil, errors.New("down")
}

func TestPublishSubscribe(t *testing.T) {
	ks := inmemory_repository.NewKeyStore()
	ch := NewChannel(ks, nil)

	stream, err := ch.Subscribe(context.Background(), "s1")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer stream.Close()

	ch.Publish(context.Background(), "s2", StageDraftStarted, "other session")
	ch.Publish(context.Background(), "s1", StageTargetChosen, "picked a target")

	select {
	case ev := <-stream.Events():
		if ev.SessionID != "s1" || ev.Stage != StageTargetChosen || ev.Message != "picked a target" {
			t.Fatalf("unexpected event %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatalf("no event delivered")
	}
}

func TestStreamCloseEndsEvents(t *testing.T) {
	ch := NewChannel(inmemory_repository.NewKeyStore(), nil)
	stream, err := ch.Subscribe(context.Background(), "s1")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	stream.Close()
	select {
	case _, ok := <-stream.Events():
		if ok {
			t.Fatalf("expected closed stream")
		}
	case <-time.After(time.Second):
		t.Fatalf("stream not closed")
	}
}

func TestPublishFailureIsLogged(t *testing.T) {
	var buf bytes.Buffer
	ch := NewChannel(failingPubSub{}, log.New(&buf, "", 0))
	ch.Publish(context.Background(), "s1", StageComplete, "done")
	if !strings.Contains(buf.String(), "progress publish s1/complete failed") {
		t.Fatalf("expected failure log, got %q", buf.String())
	}

	var nilChannel *Channel
	nilChannel.Publish(context.Background(), "s1", StageComplete, "done")
}
