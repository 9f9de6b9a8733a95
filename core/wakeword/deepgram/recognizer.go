// Package deepgram implements wake word recognition over the Deepgram live
// transcription API. It runs only while the assistant is idle, feeding every
// finalized utterance to the wake phrase matcher.
package deepgram

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	api "github.com/deepgram/deepgram-go-sdk/pkg/api/listen/v1/websocket/interfaces"
	"github.com/gorilla/websocket"

	"github.com/koscakluka/blurry-core/core/audio"
)

const listenEndpoint = "wss://api.deepgram.com/v1/listen"

// AudioSource provides microphone audio for recognition. The miniaudio and
// portaudio capture clients satisfy it.
type AudioSource interface {
	EncodingInfo() audio.EncodingInfo
	Stream(ctx context.Context, onAudio func(audio []byte)) error
}

// Recognizer transcribes ambient audio and reports finalized utterances.
type Recognizer struct {
	source AudioSource

	connMu    sync.Mutex
	conn      *websocket.Conn
	lastMsgTs time.Time

	cancelMu sync.Mutex
	cancel   context.CancelFunc
}

func NewRecognizer(source AudioSource) *Recognizer {
	return &Recognizer{source: source}
}

// Listen opens a transcription stream and blocks until ctx is cancelled or
// Stop is called. Every finalized transcript is passed to onTranscript.
func (r *Recognizer) Listen(ctx context.Context, onTranscript func(transcript string)) error {
	encoding, err := convertEncoding(r.source.EncodingInfo())
	if err != nil {
		return fmt.Errorf("invalid encoding: %w", err)
	}

	conn, err := connectWebsocket(*encoding)
	if err != nil {
		return fmt.Errorf("failed to open websocket: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancelMu.Lock()
	r.cancel = cancel
	r.cancelMu.Unlock()

	r.connMu.Lock()
	r.conn = conn
	r.lastMsgTs = time.Now()
	r.connMu.Unlock()

	go r.keepAliveLoop(ctx)
	go func() {
		if err := r.source.Stream(ctx, r.sendAudio); err != nil {
			cancel()
		}
	}()

	defer func() {
		cancel()
		r.connMu.Lock()
		r.conn = nil
		r.connMu.Unlock()
		conn.Close()
	}()

	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil ||
				websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return fmt.Errorf("failed to read transcription message: %w", err)
		}
		if msgType == websocket.BinaryMessage {
			continue
		}

		if transcript := finalTranscript(msg); transcript != "" {
			onTranscript(transcript)
		}
	}
}

// Stop closes the stream gracefully. Listen returns once the service
// confirms the close.
func (r *Recognizer) Stop() error {
	r.cancelMu.Lock()
	cancel := r.cancel
	r.cancelMu.Unlock()

	r.connMu.Lock()
	conn := r.conn
	r.connMu.Unlock()

	if conn != nil {
		if err := conn.WriteJSON(struct {
			Type string `json:"type"`
		}{Type: string(api.TypeCloseStreamResponse)}); err != nil {
			if cancel != nil {
				cancel()
			}
			return fmt.Errorf("failed to close transcription stream: %w", err)
		}
	}

	if cancel != nil {
		cancel()
	}
	return nil
}

func (r *Recognizer) sendAudio(chunk []byte) {
	r.connMu.Lock()
	defer r.connMu.Unlock()

	if r.conn == nil {
		return
	}
	r.lastMsgTs = time.Now()
	if err := r.conn.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
		return
	}
}

// keepAliveLoop keeps the stream open across silent stretches. The service
// drops connections that stay quiet for too long.
func (r *Recognizer) keepAliveLoop(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.connMu.Lock()
			idle := time.Since(r.lastMsgTs) > 5*time.Second
			conn := r.conn
			if idle && conn != nil {
				if err := conn.WriteJSON(struct {
					Type string `json:"type"`
				}{Type: "KeepAlive"}); err != nil {
					r.connMu.Unlock()
					return
				}
			}
			r.connMu.Unlock()
		}
	}
}

func connectWebsocket(encoding encodingInfo) (*websocket.Conn, error) {
	apiKey, ok := os.LookupEnv("DEEPGRAM_API_KEY")
	if !ok {
		return nil, fmt.Errorf("deepgram api key not found")
	}

	listenURL, _ := url.Parse(listenEndpoint)
	queryParams := listenURL.Query()
	queryParams.Set("encoding", encoding.Format.Name())
	queryParams.Set("sample_rate", strconv.Itoa(encoding.SampleRate))
	queryParams.Set("channels", "1")
	queryParams.Set("model", "nova-3")
	queryParams.Set("language", "en-US")
	queryParams.Set("smart_format", "true")
	queryParams.Set("endpointing", "300")

	listenURL.RawQuery = queryParams.Encode()
	conn, _, err := websocket.DefaultDialer.Dial(listenURL.String(),
		http.Header{"Authorization": {"Token " + apiKey}})
	if err != nil {
		return nil, fmt.Errorf("failed to open socket connection to deepgram: %w", err)
	}

	return conn, nil
}

// finalTranscript extracts the transcript from a finalized message response.
// Everything else yields an empty string.
func finalTranscript(msg []byte) string {
	var parsedMsg struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(msg, &parsedMsg); err != nil {
		return ""
	}
	if api.TypeResponse(parsedMsg.Type) != api.TypeMessageResponse {
		return ""
	}

	var msgResp api.MessageResponse
	if err := json.Unmarshal(msg, &msgResp); err != nil {
		return ""
	}
	if !msgResp.IsFinal || len(msgResp.Channel.Alternatives) == 0 {
		return ""
	}

	return strings.TrimSpace(msgResp.Channel.Alternatives[0].Transcript)
}
