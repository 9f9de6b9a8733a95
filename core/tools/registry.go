// Package tools implements the assistant's tool surface: music playback,
// web search, website opening, weather lookups, and developer mode. The
// Registry plugs into the session as its tool handler.
package tools

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os/exec"
	"runtime"
	"strings"
	"sync/atomic"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"

	"github.com/koscakluka/blurry-core/core/videosearch"
)

// MusicState describes what the music player should show.
type MusicState struct {
	VideoID string
	Query   string
	Title   string
	Loading bool
	Failed  bool
}

// Callbacks surface tool side effects to the embedding application. All
// fields are optional.
type Callbacks struct {
	// OnMusicChanged fires when playback starts, resolves, fails, or stops.
	// A nil state means the player should close.
	OnMusicChanged func(state *MusicState)
	// OnWeatherReport fires when a weather lookup succeeds.
	OnWeatherReport func(report WeatherReport)
	// OnDeveloperModeChanged fires when the model toggles developer mode.
	OnDeveloperModeChanged func(enabled bool)
}

// Registry routes tool calls by name.
type Registry struct {
	resolver *videosearch.Resolver
	weather  weatherClient
	openURL  func(url string) error

	callbacks Callbacks

	developerMode atomic.Bool
}

type RegistryOption func(*Registry)

// WithResolver replaces the default video search resolver.
func WithResolver(resolver *videosearch.Resolver) RegistryOption {
	return func(r *Registry) {
		if resolver != nil {
			r.resolver = resolver
		}
	}
}

func WithCallbacks(callbacks Callbacks) RegistryOption {
	return func(r *Registry) { r.callbacks = callbacks }
}

// SetCallbacks replaces the callbacks after construction. Useful when the
// receiver of the side effects is built after the registry.
func (r *Registry) SetCallbacks(callbacks Callbacks) {
	r.callbacks = callbacks
}

// WithURLOpener replaces how links are opened, for tests and headless hosts.
func WithURLOpener(openURL func(url string) error) RegistryOption {
	return func(r *Registry) {
		if openURL != nil {
			r.openURL = openURL
		}
	}
}

func WithHTTPClient(client *http.Client) RegistryOption {
	return func(r *Registry) {
		if client != nil {
			r.weather.client = client
		}
	}
}

func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		resolver: videosearch.NewResolver(),
		weather:  weatherClient{client: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}},
		openURL:  openInBrowser,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// DeveloperMode reports the current developer mode toggle.
func (r *Registry) DeveloperMode() bool { return r.developerMode.Load() }

// Handle dispatches one tool call by name.
func (r *Registry) Handle(ctx context.Context, name string, args map[string]any) (map[string]any, error) {
	ctx, span := tracer.Start(ctx, "handle tool call")
	defer span.End()
	span.SetAttributes(attribute.String("tool", name))

	switch name {
	case "playMusic":
		return r.playMusic(ctx, args)
	case "stopMusic":
		return r.stopMusic()
	case "searchGoogle":
		return r.searchGoogle(args)
	case "openWebsite":
		return r.openWebsite(args)
	case "getWeather":
		return r.getWeather(ctx, args)
	case "toggleDeveloperMode":
		return r.toggleDeveloperMode(args)
	}

	return nil, fmt.Errorf("unknown tool: %s", name)
}

// playMusic starts the player immediately when a video ID is given.
// Otherwise the query resolves in the background so the tool response does
// not wait on a rotation through search instances.
func (r *Registry) playMusic(ctx context.Context, args map[string]any) (map[string]any, error) {
	if videoID := stringArg(args, "videoId"); videoID != "" {
		r.notifyMusic(&MusicState{VideoID: videoID, Title: "Direct Play"})
		return map[string]any{"success": true, "status": "Playing video ID: " + videoID}, nil
	}

	query := strings.NewReplacer(`"`, "", `'`, "").Replace(stringArg(args, "query"))
	if query == "" {
		return map[string]any{"success": false, "message": "No song specified"}, nil
	}

	r.notifyMusic(&MusicState{Query: query, Loading: true})

	go func() {
		match, err := r.resolver.FindVideo(context.WithoutCancel(ctx), query)
		if err != nil || match == nil {
			if err != nil {
				logger.Warn("Video search failed", "query", query, "error", err)
			}
			r.notifyMusic(&MusicState{Query: query, Failed: true})
			return
		}
		r.notifyMusic(&MusicState{VideoID: match.ID, Query: query, Title: match.Title})
	}()

	return map[string]any{"success": true, "message": "Searching for " + query}, nil
}

func (r *Registry) stopMusic() (map[string]any, error) {
	r.notifyMusic(nil)
	return map[string]any{"success": true, "message": "Music stopped"}, nil
}

func (r *Registry) searchGoogle(args map[string]any) (map[string]any, error) {
	query := stringArg(args, "query")
	if query == "" {
		return map[string]any{"success": false, "message": "No query provided"}, nil
	}

	searchURL := "https://www.google.com/search?q=" + url.QueryEscape(query)
	if err := r.openURL(searchURL); err != nil {
		return nil, fmt.Errorf("failed to open search results: %w", err)
	}
	return map[string]any{"success": true, "message": "Searched Google for: " + query}, nil
}

func (r *Registry) openWebsite(args map[string]any) (map[string]any, error) {
	siteURL := stringArg(args, "url")
	if siteURL == "" {
		return map[string]any{"success": false, "message": "No URL provided"}, nil
	}

	if err := r.openURL(siteURL); err != nil {
		return nil, fmt.Errorf("failed to open website: %w", err)
	}
	return map[string]any{"success": true, "message": "Opened " + siteURL}, nil
}

func (r *Registry) getWeather(ctx context.Context, args map[string]any) (map[string]any, error) {
	city := stringArg(args, "city")
	if city == "" {
		return map[string]any{"result": "Could not find location."}, nil
	}

	report, err := r.weather.Current(ctx, city)
	if err != nil {
		return nil, err
	}
	if report == nil {
		return map[string]any{"result": "Could not find location."}, nil
	}

	if r.callbacks.OnWeatherReport != nil {
		r.callbacks.OnWeatherReport(*report)
	}

	return map[string]any{
		"result": fmt.Sprintf("The weather in %s is %s with a temperature of %g degrees Celsius.",
			report.Location, report.Condition, report.Temperature),
	}, nil
}

func (r *Registry) toggleDeveloperMode(args map[string]any) (map[string]any, error) {
	enabled, _ := args["enabled"].(bool)
	r.developerMode.Store(enabled)
	if r.callbacks.OnDeveloperModeChanged != nil {
		r.callbacks.OnDeveloperModeChanged(enabled)
	}

	message := "Developer mode disabled"
	if enabled {
		message = "Developer mode enabled"
	}
	return map[string]any{"success": true, "message": message}, nil
}

func (r *Registry) notifyMusic(state *MusicState) {
	if r.callbacks.OnMusicChanged != nil {
		r.callbacks.OnMusicChanged(state)
	}
}

func stringArg(args map[string]any, key string) string {
	value, _ := args[key].(string)
	return strings.TrimSpace(value)
}

// openInBrowser hands a URL to the platform's default opener.
func openInBrowser(target string) error {
	switch runtime.GOOS {
	case "darwin":
		return exec.Command("open", target).Start()
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", target).Start()
	default:
		return exec.Command("xdg-open", target).Start()
	}
}
