package livesession

import (
	"context"
	"strings"
	"sync/atomic"
)

// DefaultWakePhrases are matched as substrings of lowercased transcripts.
var DefaultWakePhrases = []string{
	"hello assistant",
	"wake up",
	"hey blurry",
	"hello blurry",
	"start listening",
}

// WakeWordRecognizer transcribes ambient audio while the assistant is idle.
// Listen blocks until ctx is cancelled or Stop is called, invoking
// onTranscript for every recognized utterance.
type WakeWordRecognizer interface {
	Listen(ctx context.Context, onTranscript func(transcript string)) error
	Stop() error
}

// WakeWordController runs a recognizer whenever the session is disconnected
// and connects the session when a wake phrase is heard. While the session is
// connected the recognizer stays stopped so the two do not fight over the
// microphone.
type WakeWordController struct {
	session    *Session
	recognizer WakeWordRecognizer
	phrases    []string

	listening atomic.Bool
}

func NewWakeWordController(session *Session, recognizer WakeWordRecognizer, phrases ...string) *WakeWordController {
	if len(phrases) == 0 {
		phrases = DefaultWakePhrases
	}

	return &WakeWordController{
		session:    session,
		recognizer: recognizer,
		phrases:    phrases,
	}
}

// IsListening reports whether the recognizer is currently running.
func (w *WakeWordController) IsListening() bool {
	return w != nil && w.listening.Load()
}

// Run reacts to session state until ctx is cancelled. It owns the
// recognizer's lifecycle: started on disconnect, stopped on connect.
func (w *WakeWordController) Run(ctx context.Context) error {
	if w == nil || w.recognizer == nil {
		return nil
	}

	stateChanges := make(chan State, 8)
	w.session.AddStateListener(func(state State) {
		select {
		case stateChanges <- state:
		default:
		}
	})

	w.apply(ctx, w.session.State())

	for {
		select {
		case <-ctx.Done():
			w.stopListening()
			return ctx.Err()
		case state := <-stateChanges:
			w.apply(ctx, state)
		}
	}
}

func (w *WakeWordController) apply(ctx context.Context, state State) {
	switch state {
	case StateConnected, StateConnecting:
		w.stopListening()
	default:
		w.startListening(ctx)
	}
}

func (w *WakeWordController) startListening(ctx context.Context) {
	if !w.listening.CompareAndSwap(false, true) {
		return
	}

	go func() {
		defer w.listening.Store(false)

		err := w.recognizer.Listen(ctx, func(transcript string) {
			if !w.matches(transcript) {
				return
			}
			logger.Info("Wake phrase detected", "transcript", transcript)
			if err := w.session.Connect(ctx); err != nil {
				logger.Error("Failed to connect on wake phrase", "error", err)
			}
		})
		if err != nil && ctx.Err() == nil {
			logger.Warn("Wake word recognizer stopped", "error", err)
		}
	}()
}

func (w *WakeWordController) stopListening() {
	if !w.listening.Load() {
		return
	}

	if err := w.recognizer.Stop(); err != nil {
		logger.Warn("Failed to stop wake word recognizer", "error", err)
	}
}

func (w *WakeWordController) matches(transcript string) bool {
	transcript = strings.ToLower(strings.TrimSpace(transcript))
	for _, phrase := range w.phrases {
		if strings.Contains(transcript, phrase) {
			return true
		}
	}
	return false
}
