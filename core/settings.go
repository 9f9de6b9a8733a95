package livesession

import (
	"os"
	"strings"
)

const (
	// DefaultModel is the native-audio dialog model used when none is set.
	DefaultModel = "gemini-2.5-flash-native-audio-preview-09-2025"
	// DefaultVoice is the prebuilt voice used when none is set.
	DefaultVoice = "Kore"

	apiKeyEnvVar = "GEMINI_API_KEY"
)

// DefaultSystemInstruction is the assistant persona used when the caller does
// not provide one.
const DefaultSystemInstruction = `You are "Blurry", an advanced, cool, and proactive voice assistant.
You are helpful, fast, and human-like.

Wake word and activation:
- You are always listening when connected.
- If the user says "Hello Assistant", "Wake up", "Blurry", or "Hello",
  respond instantly with high energy ("I'm here!", "Ready for you!",
  "Online and listening.") and ask what they need.

Features and behavior:
1. Language: detect the user's language and respond in the same language or mix.
2. Music playback: when asked to play a song, call playMusic with the song
   name as the query. Do not guess video IDs; the system resolves the best
   version automatically. Confirm with "Playing <song> for you."
3. Stop music: when asked to stop or close the player, call stopMusic.
4. News and research: for news, facts, or current events, call searchGoogle.
5. Weather: for weather questions, call getWeather with the location.

Tools:
- Always use the provided tools for real-world actions.
- Do not make up facts if you can search.

Personality:
- Be concise. Don't lecture. Be cool.`

// SessionSettings configures one live session. The zero value is usable:
// every field falls back to a default at connect time.
type SessionSettings struct {
	// APIKey authenticates against the live service. Falls back to the
	// GEMINI_API_KEY environment variable.
	APIKey string
	// Endpoint overrides the live service endpoint, for proxies.
	Endpoint string

	Model             string
	VoiceName         string
	SystemInstruction string
}

// resolved returns a copy with every empty field replaced by its default.
// The API key may still be empty afterwards; Connect treats that as fatal.
func (s SessionSettings) resolved() SessionSettings {
	if s.APIKey == "" {
		s.APIKey = os.Getenv(apiKeyEnvVar)
	}
	if s.Model == "" {
		s.Model = DefaultModel
	}
	if s.VoiceName == "" {
		s.VoiceName = DefaultVoice
	}
	if strings.TrimSpace(s.SystemInstruction) == "" {
		s.SystemInstruction = DefaultSystemInstruction
	}
	return s
}
