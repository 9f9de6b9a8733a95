package liveapi

// Event is a decoded inbound frame from the live session.
type Event interface {
	liveEventType() string
}

// SetupCompleteEvent acknowledges the setup frame; the session is usable.
type SetupCompleteEvent struct{}

func (e SetupCompleteEvent) liveEventType() string { return "setup_complete" }

// AudioChunkEvent carries one decoded chunk of synthesized speech.
type AudioChunkEvent struct {
	PCM        []byte
	SampleRate int
}

func (e AudioChunkEvent) liveEventType() string { return "audio_chunk" }

// InputTranscriptEvent carries a partial transcript of what the user said.
type InputTranscriptEvent struct {
	Text string
}

func (e InputTranscriptEvent) liveEventType() string { return "input_transcript" }

// OutputTranscriptEvent carries a partial transcript of what the assistant is
// saying.
type OutputTranscriptEvent struct {
	Text string
}

func (e OutputTranscriptEvent) liveEventType() string { return "output_transcript" }

// TurnCompleteEvent marks the end of the current speaking turn.
type TurnCompleteEvent struct{}

func (e TurnCompleteEvent) liveEventType() string { return "turn_complete" }

// InterruptedEvent signals that the user barged in over synthesized speech;
// any buffered playback is stale.
type InterruptedEvent struct{}

func (e InterruptedEvent) liveEventType() string { return "interrupted" }

// FunctionCall is one tool invocation requested by the model.
type FunctionCall struct {
	ID   string
	Name string
	Args map[string]any
}

// ToolCallEvent carries one or more tool invocations from a single frame.
type ToolCallEvent struct {
	Calls []FunctionCall
}

func (e ToolCallEvent) liveEventType() string { return "tool_call" }

// ClosedEvent is the terminal event on the stream. Err is nil for a clean
// remote close and non-nil when the session ended on a fault.
type ClosedEvent struct {
	Err error
}

func (e ClosedEvent) liveEventType() string { return "closed" }

// FunctionResponse answers one FunctionCall, correlated by ID.
type FunctionResponse struct {
	ID       string
	Name     string
	Response map[string]any
}
