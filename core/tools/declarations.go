package tools

import (
	"github.com/bytedance/sonic"
	"github.com/invopop/jsonschema"

	"github.com/koscakluka/blurry-core/core/liveapi"
)

// Argument shapes for the advertised tools. Schemas are reflected from these
// so the declarations cannot drift from what the handlers parse.
type playMusicArgs struct {
	Query   string `json:"query" jsonschema:"description=The song name or search query."`
	VideoID string `json:"videoId,omitempty" jsonschema:"description=Optional: specific video ID if known."`
}

type searchGoogleArgs struct {
	Query string `json:"query" jsonschema:"description=The search query string."`
}

type openWebsiteArgs struct {
	URL string `json:"url" jsonschema:"description=The full URL."`
}

type getWeatherArgs struct {
	City string `json:"city" jsonschema:"description=The city to get the weather for."`
}

type toggleDeveloperModeArgs struct {
	Enabled bool `json:"enabled" jsonschema:"description=True to enable, false to disable."`
}

// Declarations returns the function declarations advertised to the live
// service at setup time.
func Declarations() []liveapi.FunctionDeclaration {
	return []liveapi.FunctionDeclaration{
		declare("playMusic", "Play music. Provide the song name or search query.", playMusicArgs{}),
		declare("stopMusic", "Stop the music playback and close the player.", nil),
		declare("searchGoogle", "Search the web for news, facts, research, or current events.", searchGoogleArgs{}),
		declare("openWebsite", "Open a specific URL.", openWebsiteArgs{}),
		declare("getWeather", "Get the current weather for a city.", getWeatherArgs{}),
		declare("toggleDeveloperMode", "Turn developer mode on or off.", toggleDeveloperModeArgs{}),
	}
}

func declare(name, description string, args any) liveapi.FunctionDeclaration {
	declaration := liveapi.FunctionDeclaration{
		Name:        name,
		Description: description,
	}
	if args == nil {
		return declaration
	}

	reflector := jsonschema.Reflector{
		DoNotReference: true,
		Anonymous:      true,
	}
	schema := reflector.Reflect(args)
	schema.Version = ""

	parameters, err := sonic.Marshal(schema)
	if err != nil {
		// Reflection over our own static types cannot produce unmarshalable
		// schemas; treat it as a programming error.
		panic("failed to marshal tool schema for " + name + ": " + err.Error())
	}
	declaration.Parameters = parameters

	return declaration
}
