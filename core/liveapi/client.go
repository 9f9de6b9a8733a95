package liveapi

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
)

const (
	defaultEndpoint = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"

	defaultConnectTimeout = 15 * time.Second
	closeWriteTimeout     = 2 * time.Second
)

// ErrClosed is returned by send methods after the session has shut down.
var ErrClosed = errors.New("live session is closed")

// Conn is the duplex channel to the live service. It is a single-owner
// resource: the component that dials it is the only one allowed to close it.
type Conn interface {
	Events() <-chan Event
	SendAudioChunk(pcm []byte) error
	SendToolResponse(resp FunctionResponse) error
	Close() error
}

// DialOptions configures one live session. The snapshot is read once at dial
// time; later mutation has no effect.
type DialOptions struct {
	// Endpoint overrides the default service endpoint when non-empty.
	Endpoint string
	APIKey   string

	Model             string
	SystemInstruction string
	VoiceName         string
	Declarations      []FunctionDeclaration

	// InputSampleRate is the rate of outbound PCM chunks (s16le mono).
	InputSampleRate int
}

// Session is a live websocket session against the generate-content service.
type Session struct {
	conn *websocket.Conn

	events chan Event
	done   chan struct{}

	inputSampleRate int

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    atomic.Bool
}

var _ Conn = (*Session)(nil)

// Dial opens a session, sends the setup frame, and waits for the service to
// acknowledge it before returning.
func Dial(ctx context.Context, opts DialOptions) (*Session, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	if opts.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	if opts.InputSampleRate == 0 {
		opts.InputSampleRate = 16000
	}

	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = defaultEndpoint
	}

	sessionURL, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}
	queryParams := sessionURL.Query()
	queryParams.Set("key", opts.APIKey)
	sessionURL.RawQuery = queryParams.Encode()

	dialCtx := ctx
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, defaultConnectTimeout)
		defer cancel()
	}

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, sessionURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open socket connection to live service: %w", err)
	}

	setup := clientEnvelope{Setup: newSetupPayload(opts)}
	if err := writeEnvelope(conn, setup); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to send setup frame: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(defaultConnectTimeout))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to read setup acknowledgement: %w", err)
	}
	conn.SetReadDeadline(time.Time{})

	var ack serverEnvelope
	if err := sonic.Unmarshal(msg, &ack); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to decode setup acknowledgement: %w", err)
	}
	if ack.Error != nil {
		conn.Close()
		return nil, fmt.Errorf("live service rejected setup: %s", ack.Error.Message)
	}
	if ack.SetupComplete == nil {
		conn.Close()
		return nil, fmt.Errorf("unexpected first frame from live service")
	}

	s := &Session{
		conn:            conn,
		events:          make(chan Event, 256),
		done:            make(chan struct{}),
		inputSampleRate: opts.InputSampleRate,
	}
	go s.readLoop()

	return s, nil
}

func newSetupPayload(opts DialOptions) *setupPayload {
	model := opts.Model
	if !strings.HasPrefix(model, "models/") {
		model = "models/" + model
	}

	setup := &setupPayload{
		Model: model,
		GenerationConfig: &generationConfig{
			ResponseModalities: []string{"AUDIO"},
		},
		InputAudioTranscription:  &struct{}{},
		OutputAudioTranscription: &struct{}{},
	}

	if opts.VoiceName != "" {
		setup.GenerationConfig.SpeechConfig = &speechConfig{
			VoiceConfig: &voiceConfig{
				PrebuiltVoiceConfig: &prebuiltVoiceConfig{VoiceName: opts.VoiceName},
			},
		}
	}
	if opts.SystemInstruction != "" {
		setup.SystemInstruction = &content{Parts: []part{{Text: opts.SystemInstruction}}}
	}
	if len(opts.Declarations) > 0 {
		setup.Tools = []toolsEntry{{FunctionDeclarations: opts.Declarations}}
	}

	return setup
}

// Events yields decoded inbound frames. The channel is closed after a
// terminal ClosedEvent has been delivered.
func (s *Session) Events() <-chan Event {
	if s == nil {
		return nil
	}
	return s.events
}

// SendAudioChunk transmits one s16le PCM chunk as realtime input.
func (s *Session) SendAudioChunk(pcm []byte) error {
	return s.send(clientEnvelope{
		RealtimeInput: &realtimeInputPayload{
			MediaChunks: []inlineData{{
				MimeType: "audio/pcm;rate=" + strconv.Itoa(s.inputSampleRate),
				Data:     base64.StdEncoding.EncodeToString(pcm),
			}},
		},
	})
}

// SendToolResponse answers a previously received tool call.
func (s *Session) SendToolResponse(resp FunctionResponse) error {
	return s.send(clientEnvelope{
		ToolResponse: &toolResponsePayload{
			FunctionResponses: []functionResponsePayload{{
				ID:       resp.ID,
				Name:     resp.Name,
				Response: resp.Response,
			}},
		},
	})
}

func (s *Session) send(envelope clientEnvelope) error {
	if s == nil || s.closed.Load() {
		return ErrClosed
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return writeEnvelope(s.conn, envelope)
}

func writeEnvelope(conn *websocket.Conn, envelope clientEnvelope) error {
	msg, err := sonic.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}
	return conn.WriteMessage(websocket.TextMessage, msg)
}

// Close shuts the session down and waits for the read loop to drain.
// Safe to call more than once.
func (s *Session) Close() error {
	if s == nil {
		return nil
	}

	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.writeMu.Lock()
		s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(closeWriteTimeout))
		s.writeMu.Unlock()
		s.conn.Close()
	})
	<-s.done
	return nil
}

func (s *Session) readLoop() {
	defer close(s.done)
	defer close(s.events)

	for {
		_, msg, err := s.conn.ReadMessage()
		if err != nil {
			if s.closed.Load() ||
				websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.events <- ClosedEvent{}
			} else {
				s.events <- ClosedEvent{Err: err}
			}
			return
		}

		var envelope serverEnvelope
		if err := sonic.Unmarshal(msg, &envelope); err != nil {
			s.events <- ClosedEvent{Err: fmt.Errorf("failed to decode live frame: %w", err)}
			return
		}

		for _, event := range decodeServerEnvelope(envelope) {
			s.emit(event)
		}
		if envelope.Error != nil {
			s.events <- ClosedEvent{Err: fmt.Errorf("live service error: %s", envelope.Error.Message)}
			return
		}
	}
}

// decodeServerEnvelope expands one wire frame into zero or more events. A
// single serverContent frame may carry audio, both transcript kinds, and a
// turn-complete marker at once.
func decodeServerEnvelope(envelope serverEnvelope) []Event {
	var decoded []Event

	if envelope.SetupComplete != nil {
		decoded = append(decoded, SetupCompleteEvent{})
	}

	if sc := envelope.ServerContent; sc != nil {
		if sc.ModelTurn != nil {
			for _, turnPart := range sc.ModelTurn.Parts {
				if turnPart.InlineData == nil {
					continue
				}
				pcm, err := base64.StdEncoding.DecodeString(turnPart.InlineData.Data)
				if err != nil || len(pcm) == 0 {
					continue
				}
				decoded = append(decoded, AudioChunkEvent{
					PCM:        pcm,
					SampleRate: mimeSampleRate(turnPart.InlineData.MimeType),
				})
			}
		}
		if sc.InputTranscription != nil && sc.InputTranscription.Text != "" {
			decoded = append(decoded, InputTranscriptEvent{Text: sc.InputTranscription.Text})
		}
		if sc.OutputTranscription != nil && sc.OutputTranscription.Text != "" {
			decoded = append(decoded, OutputTranscriptEvent{Text: sc.OutputTranscription.Text})
		}
		if sc.Interrupted {
			decoded = append(decoded, InterruptedEvent{})
		}
		if sc.TurnComplete {
			decoded = append(decoded, TurnCompleteEvent{})
		}
	}

	if tc := envelope.ToolCall; tc != nil && len(tc.FunctionCalls) > 0 {
		calls := make([]FunctionCall, 0, len(tc.FunctionCalls))
		for _, call := range tc.FunctionCalls {
			calls = append(calls, FunctionCall{ID: call.ID, Name: call.Name, Args: call.Args})
		}
		decoded = append(decoded, ToolCallEvent{Calls: calls})
	}

	return decoded
}

// mimeSampleRate extracts the rate parameter from mime types like
// "audio/pcm;rate=24000". Falls back to the service's default output rate.
func mimeSampleRate(mimeType string) int {
	for _, param := range strings.Split(mimeType, ";") {
		param = strings.TrimSpace(param)
		if rate, ok := strings.CutPrefix(param, "rate="); ok {
			if parsed, err := strconv.Atoi(rate); err == nil && parsed > 0 {
				return parsed
			}
		}
	}
	return 24000
}

// emit blocks until the consumer accepts the event. The consumer drains the
// channel until the terminal ClosedEvent, so a full buffer means backpressure,
// never loss; dropping here would desync tool-call correlation and turn
// accounting.
func (s *Session) emit(event Event) {
	s.events <- event
}
