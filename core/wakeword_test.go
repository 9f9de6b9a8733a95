package livesession

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/koscakluka/blurry-core/core/liveapi"
)

type fakeRecognizer struct {
	mu           sync.Mutex
	onTranscript func(string)
	stop         chan struct{}
	listens      int
}

func (r *fakeRecognizer) Listen(ctx context.Context, onTranscript func(string)) error {
	r.mu.Lock()
	r.onTranscript = onTranscript
	r.stop = make(chan struct{})
	r.listens++
	stop := r.stop
	r.mu.Unlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-stop:
		return nil
	}
}

func (r *fakeRecognizer) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stop != nil {
		select {
		case <-r.stop:
		default:
			close(r.stop)
		}
	}
	return nil
}

func (r *fakeRecognizer) hear(transcript string) {
	r.mu.Lock()
	onTranscript := r.onTranscript
	r.mu.Unlock()
	if onTranscript != nil {
		onTranscript(transcript)
	}
}

func (r *fakeRecognizer) listenCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.listens
}

func TestMatchesWakePhrasesAsSubstrings(t *testing.T) {
	controller := NewWakeWordController(nil, nil)

	for _, transcript := range []string{
		"Hey Blurry",
		"um, hello assistant, are you there",
		"  WAKE UP  ",
	} {
		if !controller.matches(transcript) {
			t.Fatalf("expected %q to match a wake phrase", transcript)
		}
	}

	for _, transcript := range []string{
		"what time is it",
		"hello there",
		"",
	} {
		if controller.matches(transcript) {
			t.Fatalf("expected %q not to match", transcript)
		}
	}
}

func TestCustomPhrasesReplaceDefaults(t *testing.T) {
	controller := NewWakeWordController(nil, nil, "computer")

	if !controller.matches("hey computer") {
		t.Fatalf("expected custom phrase to match")
	}
	if controller.matches("hey blurry") {
		t.Fatalf("default phrases must not apply when custom ones are given")
	}
}

func TestWakePhraseConnectsSession(t *testing.T) {
	conn := newFakeConn()
	session := NewSession(SessionSettings{APIKey: "test-key"},
		WithDialer(func(context.Context, liveapi.DialOptions) (liveapi.Conn, error) { return conn, nil }),
	)
	recognizer := &fakeRecognizer{}
	controller := NewWakeWordController(session, recognizer)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go controller.Run(ctx)

	waitFor(t, "recognizer to start", func() bool { return controller.IsListening() })

	recognizer.hear("okay hey blurry")

	waitFor(t, "session to connect", func() bool { return session.State() == StateConnected })
	waitFor(t, "recognizer to stop while connected", func() bool { return !controller.IsListening() })

	session.Disconnect(context.Background())
}

func TestUnrelatedSpeechDoesNotConnect(t *testing.T) {
	dialed := false
	session := NewSession(SessionSettings{APIKey: "test-key"},
		WithDialer(func(context.Context, liveapi.DialOptions) (liveapi.Conn, error) {
			dialed = true
			return newFakeConn(), nil
		}),
	)
	recognizer := &fakeRecognizer{}
	controller := NewWakeWordController(session, recognizer)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go controller.Run(ctx)

	waitFor(t, "recognizer to start", func() bool { return controller.IsListening() })

	recognizer.hear("what is the weather like")
	time.Sleep(20 * time.Millisecond)

	if dialed {
		t.Fatalf("unrelated speech must not trigger a connection")
	}
	if session.State() != StateDisconnected {
		t.Fatalf("expected session to stay disconnected, got %q", session.State())
	}
}

func TestRecognizerRestartsAfterDisconnect(t *testing.T) {
	conn := newFakeConn()
	session := NewSession(SessionSettings{APIKey: "test-key"},
		WithDialer(func(context.Context, liveapi.DialOptions) (liveapi.Conn, error) { return conn, nil }),
	)
	recognizer := &fakeRecognizer{}
	controller := NewWakeWordController(session, recognizer)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go controller.Run(ctx)

	waitFor(t, "recognizer to start", func() bool { return controller.IsListening() })

	if err := session.Connect(context.Background()); err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	waitFor(t, "recognizer to stop", func() bool { return !controller.IsListening() })

	session.Disconnect(context.Background())
	waitFor(t, "recognizer to restart", func() bool { return controller.IsListening() })

	if recognizer.listenCount() < 2 {
		t.Fatalf("expected a second listen after disconnect, got %d", recognizer.listenCount())
	}
}
