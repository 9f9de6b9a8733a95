package livesession

import (
	"context"

	"github.com/koscakluka/blurry-core/core/audio"
	"github.com/koscakluka/blurry-core/core/liveapi"
)

type SessionOption func(*Session)

// AudioInputClient streams captured microphone audio until ctx is cancelled
// or Close is called.
type AudioInputClient interface {
	EncodingInfo() audio.EncodingInfo
	Stream(ctx context.Context, onAudio func(audio []byte)) error
	Close()
}

func WithAudioInput(client AudioInputClient) SessionOption {
	return func(s *Session) { s.input = client }
}

// AudioOutputClient plays synthesized audio. SendAudio hands a chunk to the
// device buffer; ClearBuffer drops whatever has not played yet.
type AudioOutputClient interface {
	EncodingInfo() audio.EncodingInfo
	SendAudio(audio []byte) error
	ClearBuffer()
	Close()
}

func WithAudioOutput(client AudioOutputClient) SessionOption {
	return func(s *Session) { s.output = client }
}

func WithToolHandler(handler ToolHandler) SessionOption {
	return func(s *Session) { s.toolHandler = handler }
}

// WithToolDeclarations sets the function declarations advertised to the live
// service at connect time.
func WithToolDeclarations(declarations ...liveapi.FunctionDeclaration) SessionOption {
	return func(s *Session) { s.declarations = declarations }
}

// HistoryStore persists a finished conversation. Stores receive the full
// entry log, system notices included, and decide what to keep.
type HistoryStore interface {
	Save(ctx context.Context, entries []Entry) error
}

func WithHistoryStore(store HistoryStore) SessionOption {
	return func(s *Session) { s.history = store }
}

// Dialer opens the duplex channel to the live service. Overridable for tests
// and proxies.
type Dialer func(ctx context.Context, opts liveapi.DialOptions) (liveapi.Conn, error)

func WithDialer(dialer Dialer) SessionOption {
	return func(s *Session) {
		if dialer != nil {
			s.dialer = dialer
		}
	}
}

// WithStateChangedCallback registers a callback for connection state
// transitions. The callback runs inline on the transition path and should not
// block.
func WithStateChangedCallback(callback func(state State)) SessionOption {
	return func(s *Session) {
		if callback != nil {
			s.onStateChanged = callback
		}
	}
}

// WithTranscriptChangedCallback registers a callback invoked whenever the
// conversation log changes. Use [Session.Transcript] to read the new state.
func WithTranscriptChangedCallback(callback func()) SessionOption {
	return func(s *Session) {
		if callback != nil {
			s.transcript.SetChangedCallback(callback)
		}
	}
}
