// Package videosearch resolves a free-text music query to a playable video ID
// by rotating through public Piped and Invidious instances. Instances come
// and go, so the resolver treats every failure as a signal to move on rather
// than an error worth surfacing.
package videosearch

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bytedance/sonic/decoder"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
)

// defaultInstances is the rotation order. Piped instances answer under
// /search with an items wrapper; Invidious instances (marked by the /api/v1
// suffix) answer with a bare array.
var defaultInstances = []string{
	"https://pipedapi.kavin.rocks",
	"https://api.piped.ot.ax",
	"https://pipedapi.tokhmi.xyz",
	"https://api.piped.privacy.com.de",
	"https://pipedapi.adminforge.de",
	"https://api.piped.drgns.space",
	"https://pipedapi.r4fo.com",
	"https://piped-api.lunar.icu",
	"https://pipedapi.smnz.de",
	"https://api.piped.projectsegfau.lt",
	"https://pipedapi.mha.fi",
	"https://api.piped.yt.im",
	"https://pipedapi.ducks.party",
	"https://inv.tux.pizza/api/v1",
	"https://vid.puffyan.us/api/v1",
	"https://invidious.projectsegfau.lt/api/v1",
}

const perInstanceTimeout = 2 * time.Second

// Match is one resolved video.
type Match struct {
	ID    string
	Title string
}

// Resolver queries search instances in order until one yields a video.
type Resolver struct {
	instances []string
	client    *http.Client
}

type ResolverOption func(*Resolver)

// WithInstances replaces the default instance rotation.
func WithInstances(instances ...string) ResolverOption {
	return func(r *Resolver) {
		if len(instances) > 0 {
			r.instances = instances
		}
	}
}

// WithHTTPClient replaces the default instrumented client.
func WithHTTPClient(client *http.Client) ResolverOption {
	return func(r *Resolver) {
		if client != nil {
			r.client = client
		}
	}
}

func NewResolver(opts ...ResolverOption) *Resolver {
	r := &Resolver{
		instances: defaultInstances,
		client:    &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// FindVideo resolves query to the first matching video. A nil Match with a
// nil error means every instance answered but none had a usable result; an
// error means ctx ended before the rotation did.
func (r *Resolver) FindVideo(ctx context.Context, query string) (*Match, error) {
	ctx, span := tracer.Start(ctx, "find video")
	defer span.End()
	span.SetAttributes(attribute.String("query", query))

	for _, instance := range r.instances {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		match, err := r.searchInstance(ctx, instance, query)
		if err != nil {
			logger.Debug("Video search instance failed",
				"instance", instance, "error", err)
			continue
		}
		if match != nil {
			span.SetAttributes(attribute.String("video.id", match.ID))
			return match, nil
		}
	}

	return nil, nil
}

func (r *Resolver) searchInstance(ctx context.Context, instance, query string) (*Match, error) {
	isInvidious := strings.Contains(instance, "/api/v1")

	searchURL := instance + "/search?q=" + url.QueryEscape(query)
	if !isInvidious {
		searchURL += "&filter=videos"
	}

	ctx, cancel := context.WithTimeout(ctx, perInstanceTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %s", resp.Status)
	}

	if isInvidious {
		return decodeInvidiousResults(resp)
	}
	return decodePipedResults(resp)
}

// decodePipedResults handles the {items: [{type: "stream", url, title}]}
// shape. The video ID is embedded in a watch URL.
func decodePipedResults(resp *http.Response) (*Match, error) {
	var payload struct {
		Items []struct {
			Type  string `json:"type"`
			URL   string `json:"url"`
			Title string `json:"title"`
		} `json:"items"`
	}
	if err := decoder.NewStreamDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode search results: %w", err)
	}

	for _, item := range payload.Items {
		if item.Type != "stream" {
			continue
		}
		if _, id, found := strings.Cut(item.URL, "v="); found && id != "" {
			return &Match{ID: id, Title: item.Title}, nil
		}
	}
	return nil, nil
}

// decodeInvidiousResults handles the bare [{type: "video", videoId, title}]
// shape.
func decodeInvidiousResults(resp *http.Response) (*Match, error) {
	var payload []struct {
		Type    string `json:"type"`
		VideoID string `json:"videoId"`
		Title   string `json:"title"`
	}
	if err := decoder.NewStreamDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode search results: %w", err)
	}

	for _, item := range payload {
		if item.Type == "video" && item.VideoID != "" {
			return &Match{ID: item.VideoID, Title: item.Title}, nil
		}
	}
	return nil, nil
}
