package livesession

import "testing"

func TestResolvedFillsDefaults(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "env-key")

	settings := SessionSettings{}.resolved()

	if settings.APIKey != "env-key" {
		t.Fatalf("expected the key from the environment, got %q", settings.APIKey)
	}
	if settings.Model != DefaultModel {
		t.Fatalf("expected default model, got %q", settings.Model)
	}
	if settings.VoiceName != DefaultVoice {
		t.Fatalf("expected default voice, got %q", settings.VoiceName)
	}
	if settings.SystemInstruction == "" {
		t.Fatalf("expected a default system instruction")
	}
}

func TestResolvedKeepsExplicitValues(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "env-key")

	settings := SessionSettings{
		APIKey:            "explicit",
		Model:             "custom-model",
		VoiceName:         "Puck",
		SystemInstruction: "be terse",
	}.resolved()

	if settings.APIKey != "explicit" || settings.Model != "custom-model" ||
		settings.VoiceName != "Puck" || settings.SystemInstruction != "be terse" {
		t.Fatalf("explicit settings must survive resolution: %+v", settings)
	}
}

func TestResolvedTreatsBlankInstructionAsUnset(t *testing.T) {
	settings := SessionSettings{SystemInstruction: "   \n"}.resolved()

	if settings.SystemInstruction != DefaultSystemInstruction {
		t.Fatalf("blank instruction must fall back to the default")
	}
}
