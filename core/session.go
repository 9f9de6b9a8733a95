package livesession

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/koscakluka/blurry-core/core/audio"
	"github.com/koscakluka/blurry-core/core/liveapi"
)

// State is the session's connection state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateError        State = "error"
)

// ErrMissingAPIKey is returned by Connect when no credential is configured
// and none is found in the environment.
var ErrMissingAPIKey = errors.New("api key is missing")

// Session drives one voice conversation at a time against the live service:
// it owns the capture pipeline, the playback timeline, the transcript, and
// tool dispatch. A Session survives across connections; Connect and
// Disconnect can be called repeatedly.
type Session struct {
	settings SessionSettings

	// input and output are the configured audio device clients. Either may
	// be nil; the session then runs transcript-only on that side.
	input  AudioInputClient
	output AudioOutputClient

	toolHandler  ToolHandler
	declarations []liveapi.FunctionDeclaration
	history      HistoryStore

	dialer Dialer

	transcript *transcript
	meter      *volumeMeter
	scheduler  *playbackScheduler
	capture    *capturePipeline
	dispatcher *toolDispatcher

	onStateChanged func(state State)

	mu      sync.Mutex
	state   State
	current *liveConn
}

// liveConn bundles everything that lives and dies with a single connection.
// teardown runs at most once regardless of which path triggers it.
type liveConn struct {
	conn   liveapi.Conn
	cancel context.CancelFunc

	teardownOnce sync.Once
}

func NewSession(settings SessionSettings, opts ...SessionOption) *Session {
	s := &Session{
		settings:       settings,
		dialer:         defaultDialer,
		transcript:     newTranscript(),
		meter:          &volumeMeter{},
		state:          StateDisconnected,
		onStateChanged: func(State) {},
	}

	for _, opt := range opts {
		opt(s)
	}

	s.scheduler = newPlaybackScheduler(s.output, s.meter)
	s.dispatcher = newToolDispatcher(s.toolHandler, s.transcript)

	sourceEncoding := audio.GetDefaultEncodingInfo()
	if s.input != nil {
		sourceEncoding = s.input.EncodingInfo()
	}
	s.capture = newCapturePipeline(sourceEncoding, s.meter)

	return s
}

func defaultDialer(ctx context.Context, opts liveapi.DialOptions) (liveapi.Conn, error) {
	return liveapi.Dial(ctx, opts)
}

// State returns the current connection state.
func (s *Session) State() State {
	if s == nil {
		return StateDisconnected
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Transcript returns a point-in-time copy of the conversation log.
func (s *Session) Transcript() []Entry { return s.transcript.Entries() }

// VisibleTranscript returns the log filtered for presentation.
func (s *Session) VisibleTranscript() []Entry { return s.transcript.VisibleEntries() }

// Levels returns the smoothed capture and playback volume levels in [0, 1].
func (s *Session) Levels() (capture, playback float64) { return s.meter.Levels() }

// IsSpeaking reports whether synthesized speech is still playing out.
func (s *Session) IsSpeaking() bool { return s.scheduler.IsSpeaking() }

// ClearTranscript empties the conversation log without touching the
// connection.
func (s *Session) ClearTranscript() { s.transcript.Clear() }

// Connect dials the live service and starts streaming. Calling it while
// already connecting or connected is a no-op. A missing credential fails
// closed: the session lands in StateError without dialing.
func (s *Session) Connect(ctx context.Context) error {
	if s == nil {
		return nil
	}

	ctx, span := tracer.Start(ctx, "connect live session")
	defer span.End()

	s.mu.Lock()
	if s.state == StateConnected || s.state == StateConnecting {
		s.mu.Unlock()
		return nil
	}
	s.state = StateConnecting
	onStateChanged := s.onStateChanged
	s.mu.Unlock()
	onStateChanged(StateConnecting)

	settings := s.settings.resolved()
	if settings.APIKey == "" {
		s.transcript.AppendSystem("Error: API Key is missing. Please check settings.")
		s.failConnect(span, ErrMissingAPIKey)
		return ErrMissingAPIKey
	}

	conn, err := s.dialer(ctx, liveapi.DialOptions{
		Endpoint:          settings.Endpoint,
		APIKey:            settings.APIKey,
		Model:             settings.Model,
		SystemInstruction: settings.SystemInstruction,
		VoiceName:         settings.VoiceName,
		Declarations:      s.declarations,
		InputSampleRate:   audio.DefaultCaptureRate,
	})
	if err != nil {
		wrapped := fmt.Errorf("failed to connect live session: %w", err)
		s.failConnect(span, wrapped)
		return wrapped
	}

	streamCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	current := &liveConn{conn: conn, cancel: cancel}

	s.mu.Lock()
	s.current = current
	s.mu.Unlock()
	s.setState(StateConnected)

	s.transcript.AppendSystem("Voice Assistant Connected.")
	logger.Info("Live session connected", "model", settings.Model)

	s.capture.Enable(conn.SendAudioChunk)
	if s.input != nil {
		go func() {
			if err := s.input.Stream(streamCtx, s.capture.Process); err != nil {
				logger.Warn("Audio input stream ended", "error", err)
			}
		}()
	}

	go s.readLoop(streamCtx, current)

	return nil
}

// failConnect records the failure and moves the session to StateError.
func (s *Session) failConnect(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	s.setState(StateError)
}

// Disconnect tears the active connection down and lands in
// StateDisconnected. Safe to call when already disconnected, and safe to
// call concurrently with a remote close.
func (s *Session) Disconnect(ctx context.Context) {
	if s == nil {
		return
	}

	s.mu.Lock()
	current := s.current
	s.mu.Unlock()

	if current == nil {
		s.setState(StateDisconnected)
		return
	}

	s.teardown(ctx, current, StateDisconnected)
}

// readLoop consumes decoded events until the stream delivers its terminal
// ClosedEvent, then tears the connection down with the matching final state.
func (s *Session) readLoop(ctx context.Context, current *liveConn) {
	for event := range current.conn.Events() {
		switch event := event.(type) {
		case liveapi.AudioChunkEvent:
			s.scheduler.Enqueue(event.PCM, event.SampleRate)
		case liveapi.InputTranscriptEvent:
			s.transcript.AppendInputPartial(event.Text)
		case liveapi.OutputTranscriptEvent:
			s.transcript.AppendOutputPartial(event.Text)
		case liveapi.InterruptedEvent:
			s.scheduler.StopAll()
		case liveapi.TurnCompleteEvent:
			s.transcript.CompleteTurn()
		case liveapi.ToolCallEvent:
			go s.dispatcher.Dispatch(ctx, event.Calls, current.conn.SendToolResponse)
		case liveapi.ClosedEvent:
			finalState := StateDisconnected
			if event.Err != nil {
				logger.Error("Live session ended on a fault", "error", event.Err)
				finalState = StateError
			}
			s.teardown(ctx, current, finalState)
			return
		}
	}
}

// teardown releases connection resources in a fixed order: stop feeding the
// service, stop the microphone, flush pending playback, drop partial
// transcript state, close the socket, then persist the conversation. Runs at
// most once per connection; later callers observe the first caller's result.
func (s *Session) teardown(ctx context.Context, current *liveConn, finalState State) {
	current.teardownOnce.Do(func() {
		s.capture.Disable()
		current.cancel()
		if s.input != nil {
			s.input.Close()
		}

		s.scheduler.StopAll()
		s.meter.Reset()
		s.transcript.ResetAccumulators()

		if err := current.conn.Close(); err != nil {
			logger.Warn("Failed to close live connection", "error", err)
		}

		s.persistHistory(ctx)

		s.mu.Lock()
		if s.current == current {
			s.current = nil
		}
		s.mu.Unlock()
		s.setState(finalState)
	})
}

func (s *Session) persistHistory(ctx context.Context) {
	if s.history == nil {
		return
	}

	entries := s.transcript.Entries()
	if len(entries) == 0 {
		return
	}

	if err := s.history.Save(context.WithoutCancel(ctx), entries); err != nil {
		logger.Warn("Failed to persist conversation history", "error", err)
	}
}

// SetTranscriptListener registers a callback invoked whenever the
// conversation log changes.
func (s *Session) SetTranscriptListener(listener func()) {
	if s == nil {
		return
	}
	s.transcript.SetChangedCallback(listener)
}

// AddStateListener chains an additional callback onto state transitions.
// Listeners run inline, in registration order, after the one configured via
// [WithStateChangedCallback].
func (s *Session) AddStateListener(listener func(state State)) {
	if s == nil || listener == nil {
		return
	}

	s.mu.Lock()
	previous := s.onStateChanged
	s.onStateChanged = func(state State) {
		previous(state)
		listener(state)
	}
	s.mu.Unlock()
}

// setState transitions the state and notifies the callback. The callback is
// invoked without s.mu held so it may call back into the session.
func (s *Session) setState(state State) {
	s.mu.Lock()
	if s.state == state {
		s.mu.Unlock()
		return
	}
	s.state = state
	onStateChanged := s.onStateChanged
	s.mu.Unlock()

	onStateChanged(state)
}
