// Command blurry is a terminal front end for the voice assistant: it wires
// the audio devices, the live session, wake word listening, tools, and
// conversation history into a small TUI.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/koscakluka/blurry-core/config"
	livesession "github.com/koscakluka/blurry-core/core"
	"github.com/koscakluka/blurry-core/core/audio/miniaudio"
	"github.com/koscakluka/blurry-core/core/audio/portaudio"
	"github.com/koscakluka/blurry-core/core/history"
	"github.com/koscakluka/blurry-core/core/tools"
	wakeworddeepgram "github.com/koscakluka/blurry-core/core/wakeword/deepgram"
)

const defaultPortaudioBufferSize = 1024

func main() {
	configPath := flag.String("config", "", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	cfg := config.Default()
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func run(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	input, output, wakeSource, closeAudio, err := buildAudioClients(cfg.Audio)
	if err != nil {
		return err
	}
	defer closeAudio()

	registry := tools.NewRegistry()

	var historyOpts []history.StoreOption
	if cfg.History.BackendURL != "" {
		historyOpts = append(historyOpts, history.WithBackend(cfg.History.BackendURL))
	}
	if cfg.History.LocalPath != "" {
		historyOpts = append(historyOpts, history.WithLocalPath(cfg.History.LocalPath))
	}
	store := history.NewStore(historyOpts...)

	session := livesession.NewSession(
		livesession.SessionSettings{
			APIKey:            cfg.Session.APIKey,
			Endpoint:          cfg.Session.Endpoint,
			Model:             cfg.Session.Model,
			VoiceName:         cfg.Session.VoiceName,
			SystemInstruction: cfg.Session.SystemInstruction,
		},
		livesession.WithAudioInput(input),
		livesession.WithAudioOutput(output),
		livesession.WithToolHandler(registry),
		livesession.WithToolDeclarations(tools.Declarations()...),
		livesession.WithHistoryStore(store),
	)

	model := newAppModel(ctx, session, registry)
	program := tea.NewProgram(model, tea.WithAltScreen())

	session.AddStateListener(func(state livesession.State) {
		program.Send(stateChangedMsg{state: state})
	})
	session.SetTranscriptListener(func() {
		program.Send(transcriptChangedMsg{})
	})
	registry.SetCallbacks(tools.Callbacks{
		OnMusicChanged: func(state *tools.MusicState) {
			program.Send(musicChangedMsg{state: state})
		},
		OnWeatherReport: func(report tools.WeatherReport) {
			program.Send(weatherReportMsg{report: report})
		},
	})

	if cfg.WakeWord.Enabled {
		if _, ok := os.LookupEnv("DEEPGRAM_API_KEY"); ok && wakeSource != nil {
			recognizer := wakeworddeepgram.NewRecognizer(wakeSource)
			controller := livesession.NewWakeWordController(session, recognizer, cfg.WakeWord.Phrases...)
			go controller.Run(ctx)
		}
	}

	if _, err := program.Run(); err != nil {
		return fmt.Errorf("failed to run terminal UI: %w", err)
	}

	session.Disconnect(ctx)
	return nil
}

func buildAudioClients(cfg config.AudioConfig) (
	input livesession.AudioInputClient,
	output livesession.AudioOutputClient,
	wakeSource wakeworddeepgram.AudioSource,
	closeAudio func(),
	err error,
) {
	switch cfg.Backend {
	case config.AudioBackendPortaudio:
		bufferSize := cfg.BufferSize
		if bufferSize == 0 {
			bufferSize = defaultPortaudioBufferSize
		}
		client, err := portaudio.NewClient(bufferSize)
		if err != nil {
			return nil, nil, nil, nil, fmt.Errorf("failed to initialize portaudio backend: %w", err)
		}
		return client, client, client, client.Close, nil

	default:
		client, err := miniaudio.NewClient()
		if err != nil {
			return nil, nil, nil, nil, fmt.Errorf("failed to initialize miniaudio backend: %w", err)
		}
		return client.Capture(), client.Playback(), client.Capture(), client.Close, nil
	}
}
