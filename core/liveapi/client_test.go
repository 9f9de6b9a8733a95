package liveapi

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/bytedance/sonic"
)

func decodeFrame(t *testing.T, raw string) []Event {
	t.Helper()
	var envelope serverEnvelope
	if err := sonic.Unmarshal([]byte(raw), &envelope); err != nil {
		t.Fatalf("failed to decode frame: %v", err)
	}
	return decodeServerEnvelope(envelope)
}

func TestDecodeSetupComplete(t *testing.T) {
	events := decodeFrame(t, `{"setupComplete":{}}`)

	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if _, ok := events[0].(SetupCompleteEvent); !ok {
		t.Fatalf("expected SetupCompleteEvent, got %T", events[0])
	}
}

func TestDecodeAudioChunkWithRate(t *testing.T) {
	pcm := []byte{1, 2, 3, 4}
	raw := `{"serverContent":{"modelTurn":{"parts":[{"inlineData":{"mimeType":"audio/pcm;rate=24000","data":"` +
		base64.StdEncoding.EncodeToString(pcm) + `"}}]}}}`

	events := decodeFrame(t, raw)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}

	chunk, ok := events[0].(AudioChunkEvent)
	if !ok {
		t.Fatalf("expected AudioChunkEvent, got %T", events[0])
	}
	if chunk.SampleRate != 24000 {
		t.Fatalf("expected rate 24000, got %d", chunk.SampleRate)
	}
	if string(chunk.PCM) != string(pcm) {
		t.Fatalf("payload not decoded from base64")
	}
}

func TestDecodeCombinedContentFrameExpandsInOrder(t *testing.T) {
	pcm := base64.StdEncoding.EncodeToString([]byte{0, 0})
	raw := `{"serverContent":{
		"modelTurn":{"parts":[{"inlineData":{"mimeType":"audio/pcm;rate=24000","data":"` + pcm + `"}}]},
		"inputTranscription":{"text":"hi"},
		"outputTranscription":{"text":"hello"},
		"turnComplete":true}}`

	events := decodeFrame(t, raw)
	if len(events) != 4 {
		t.Fatalf("expected 4 events from a combined frame, got %d", len(events))
	}
	if _, ok := events[0].(AudioChunkEvent); !ok {
		t.Fatalf("event 0: expected audio, got %T", events[0])
	}
	if got := events[1].(InputTranscriptEvent); got.Text != "hi" {
		t.Fatalf("event 1: unexpected input transcript %q", got.Text)
	}
	if got := events[2].(OutputTranscriptEvent); got.Text != "hello" {
		t.Fatalf("event 2: unexpected output transcript %q", got.Text)
	}
	if _, ok := events[3].(TurnCompleteEvent); !ok {
		t.Fatalf("event 3: expected turn complete, got %T", events[3])
	}
}

func TestDecodeInterruptedPrecedesTurnComplete(t *testing.T) {
	events := decodeFrame(t, `{"serverContent":{"interrupted":true,"turnComplete":true}}`)

	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if _, ok := events[0].(InterruptedEvent); !ok {
		t.Fatalf("expected InterruptedEvent first, got %T", events[0])
	}
	if _, ok := events[1].(TurnCompleteEvent); !ok {
		t.Fatalf("expected TurnCompleteEvent second, got %T", events[1])
	}
}

func TestDecodeSkipsEmptyTranscripts(t *testing.T) {
	events := decodeFrame(t, `{"serverContent":{"inputTranscription":{"text":""}}}`)

	if len(events) != 0 {
		t.Fatalf("expected no events for an empty transcript, got %d", len(events))
	}
}

func TestDecodeSkipsMalformedAudioParts(t *testing.T) {
	raw := `{"serverContent":{"modelTurn":{"parts":[
		{"inlineData":{"mimeType":"audio/pcm;rate=24000","data":"!!!not-base64!!!"}},
		{"text":"thinking"}]}}}`

	if events := decodeFrame(t, raw); len(events) != 0 {
		t.Fatalf("expected malformed parts to be skipped, got %d events", len(events))
	}
}

func TestDecodeToolCall(t *testing.T) {
	raw := `{"toolCall":{"functionCalls":[
		{"id":"call-1","name":"playMusic","args":{"query":"jazz"}},
		{"id":"call-2","name":"stopMusic"}]}}`

	events := decodeFrame(t, raw)
	if len(events) != 1 {
		t.Fatalf("expected 1 batched tool event, got %d", len(events))
	}

	toolCall := events[0].(ToolCallEvent)
	if len(toolCall.Calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(toolCall.Calls))
	}
	if toolCall.Calls[0].ID != "call-1" || toolCall.Calls[0].Name != "playMusic" {
		t.Fatalf("unexpected first call: %+v", toolCall.Calls[0])
	}
	if toolCall.Calls[0].Args["query"] != "jazz" {
		t.Fatalf("expected args to survive decoding, got %v", toolCall.Calls[0].Args)
	}
}

func TestMimeSampleRate(t *testing.T) {
	for _, tc := range []struct {
		mimeType string
		want     int
	}{
		{"audio/pcm;rate=24000", 24000},
		{"audio/pcm; rate=16000", 16000},
		{"audio/pcm", 24000},
		{"audio/pcm;rate=abc", 24000},
		{"audio/pcm;rate=0", 24000},
		{"", 24000},
	} {
		if got := mimeSampleRate(tc.mimeType); got != tc.want {
			t.Fatalf("mimeSampleRate(%q) = %d, want %d", tc.mimeType, got, tc.want)
		}
	}
}

func TestSetupPayloadPrefixesModel(t *testing.T) {
	setup := newSetupPayload(DialOptions{Model: "gemini-2.5-flash-native-audio-preview-09-2025"})

	if setup.Model != "models/gemini-2.5-flash-native-audio-preview-09-2025" {
		t.Fatalf("expected models/ prefix, got %q", setup.Model)
	}

	prefixed := newSetupPayload(DialOptions{Model: "models/custom"})
	if prefixed.Model != "models/custom" {
		t.Fatalf("expected prefixed model left alone, got %q", prefixed.Model)
	}
}

func TestSetupPayloadCarriesVoiceAndTools(t *testing.T) {
	setup := newSetupPayload(DialOptions{
		Model:             "m",
		VoiceName:         "Kore",
		SystemInstruction: "be brief",
		Declarations:      []FunctionDeclaration{{Name: "playMusic"}},
	})

	voice := setup.GenerationConfig.SpeechConfig.VoiceConfig.PrebuiltVoiceConfig.VoiceName
	if voice != "Kore" {
		t.Fatalf("expected voice Kore, got %q", voice)
	}
	if setup.SystemInstruction == nil || setup.SystemInstruction.Parts[0].Text != "be brief" {
		t.Fatalf("system instruction not carried: %+v", setup.SystemInstruction)
	}
	if len(setup.Tools) != 1 || setup.Tools[0].FunctionDeclarations[0].Name != "playMusic" {
		t.Fatalf("tool declarations not carried: %+v", setup.Tools)
	}
	if setup.InputAudioTranscription == nil || setup.OutputAudioTranscription == nil {
		t.Fatalf("transcription must be requested for both directions")
	}
}

func TestSetupPayloadOmitsOptionalSections(t *testing.T) {
	setup := newSetupPayload(DialOptions{Model: "m"})

	if setup.GenerationConfig.SpeechConfig != nil {
		t.Fatalf("expected no speech config without a voice")
	}
	if setup.SystemInstruction != nil || setup.Tools != nil {
		t.Fatalf("expected optional sections omitted")
	}
}

func TestEmitDeliversControlEventsUnderBackpressure(t *testing.T) {
	s := &Session{events: make(chan Event, 1), done: make(chan struct{})}

	go func() {
		for i := 0; i < 4; i++ {
			s.emit(AudioChunkEvent{PCM: []byte{0, 0}, SampleRate: 24000})
		}
		s.emit(ToolCallEvent{Calls: []FunctionCall{{ID: "c1", Name: "stopMusic"}}})
		s.emit(TurnCompleteEvent{})
		close(s.events)
	}()

	// Let the producer saturate the buffer before draining starts.
	time.Sleep(20 * time.Millisecond)

	var gotToolCall, gotTurnComplete bool
	for event := range s.events {
		switch event.(type) {
		case ToolCallEvent:
			gotToolCall = true
		case TurnCompleteEvent:
			gotTurnComplete = true
		}
	}

	if !gotToolCall || !gotTurnComplete {
		t.Fatalf("control events lost under backpressure: toolCall=%v turnComplete=%v",
			gotToolCall, gotTurnComplete)
	}
}

func TestDialRejectsMissingCredentials(t *testing.T) {
	if _, err := Dial(t.Context(), DialOptions{Model: "m"}); err == nil {
		t.Fatalf("expected an error without an api key")
	}
	if _, err := Dial(t.Context(), DialOptions{APIKey: "k"}); err == nil {
		t.Fatalf("expected an error without a model")
	}
}
