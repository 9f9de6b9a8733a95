package livesession

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/koscakluka/blurry-core/core/liveapi"
)

func collectResponses() (func(liveapi.FunctionResponse) error, *[]liveapi.FunctionResponse) {
	var sent []liveapi.FunctionResponse
	return func(resp liveapi.FunctionResponse) error {
		sent = append(sent, resp)
		return nil
	}, &sent
}

func TestDispatchCorrelatesResponsesByCallID(t *testing.T) {
	handler := ToolHandlerFunc(func(_ context.Context, name string, _ map[string]any) (map[string]any, error) {
		return map[string]any{"handled": name}, nil
	})
	dispatcher := newToolDispatcher(handler, newTranscript())
	send, sent := collectResponses()

	dispatcher.Dispatch(context.Background(), []liveapi.FunctionCall{
		{ID: "call-1", Name: "playMusic"},
		{ID: "call-2", Name: "getWeather"},
	}, send)

	if len(*sent) != 2 {
		t.Fatalf("expected one response per call, got %d", len(*sent))
	}
	for i, want := range []struct{ id, name string }{
		{"call-1", "playMusic"},
		{"call-2", "getWeather"},
	} {
		got := (*sent)[i]
		if got.ID != want.id || got.Name != want.name {
			t.Fatalf("response %d carries %s/%s, want %s/%s", i, got.ID, got.Name, want.id, want.name)
		}
		if got.Response["handled"] != want.name {
			t.Fatalf("response %d payload not from handler: %v", i, got.Response)
		}
	}
}

func TestDispatchDegradesHandlerFailureToErrorPayload(t *testing.T) {
	handler := ToolHandlerFunc(func(_ context.Context, name string, _ map[string]any) (map[string]any, error) {
		if name == "broken" {
			return nil, errors.New("boom")
		}
		return nil, nil
	})
	dispatcher := newToolDispatcher(handler, newTranscript())
	send, sent := collectResponses()

	dispatcher.Dispatch(context.Background(), []liveapi.FunctionCall{
		{ID: "a", Name: "broken"},
		{ID: "b", Name: "fine"},
	}, send)

	if len(*sent) != 2 {
		t.Fatalf("a failing call must still be answered; got %d responses", len(*sent))
	}
	if (*sent)[0].Response["error"] != "Failed" {
		t.Fatalf("expected degraded error payload, got %v", (*sent)[0].Response)
	}
	if (*sent)[1].Response["result"] != "Success" {
		t.Fatalf("expected nil handler result to default to success, got %v", (*sent)[1].Response)
	}
}

func TestDispatchWritesSystemNotices(t *testing.T) {
	transcript := newTranscript()
	handler := ToolHandlerFunc(func(_ context.Context, _ string, _ map[string]any) (map[string]any, error) {
		return nil, nil
	})
	dispatcher := newToolDispatcher(handler, transcript)
	send, _ := collectResponses()

	dispatcher.Dispatch(context.Background(), []liveapi.FunctionCall{{ID: "x", Name: "stopMusic"}}, send)

	entries := transcript.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected processing and executed notices, got %d entries", len(entries))
	}
	if entries[0].Text != "Processing request..." {
		t.Fatalf("unexpected first notice: %q", entries[0].Text)
	}
	if entries[1].Text != "Executed: stopMusic" {
		t.Fatalf("unexpected second notice: %q", entries[1].Text)
	}
}

func TestDispatchSkipsExecutedNoticeOnFailure(t *testing.T) {
	transcript := newTranscript()
	handler := ToolHandlerFunc(func(_ context.Context, _ string, _ map[string]any) (map[string]any, error) {
		return nil, fmt.Errorf("no such tool")
	})
	dispatcher := newToolDispatcher(handler, transcript)
	send, _ := collectResponses()

	dispatcher.Dispatch(context.Background(), []liveapi.FunctionCall{{ID: "x", Name: "bogus"}}, send)

	for _, entry := range transcript.Entries() {
		if entry.Text == "Executed: bogus" {
			t.Fatalf("executed notice must not appear for a failed call")
		}
	}
}

func TestDispatchContainsPanickingHandler(t *testing.T) {
	handler := ToolHandlerFunc(func(_ context.Context, _ string, _ map[string]any) (map[string]any, error) {
		panic("handler bug")
	})
	dispatcher := newToolDispatcher(handler, newTranscript())
	send, sent := collectResponses()

	dispatcher.Dispatch(context.Background(), []liveapi.FunctionCall{{ID: "x", Name: "playMusic"}}, send)

	if len(*sent) != 1 {
		t.Fatalf("a panicking handler must still be answered, got %d responses", len(*sent))
	}
	if (*sent)[0].Response["error"] != "Failed" {
		t.Fatalf("expected degraded error payload, got %v", (*sent)[0].Response)
	}
}

func TestDispatchWithoutHandlerAcknowledgesCalls(t *testing.T) {
	dispatcher := newToolDispatcher(nil, newTranscript())
	send, sent := collectResponses()

	dispatcher.Dispatch(context.Background(), []liveapi.FunctionCall{{ID: "x", Name: "playMusic"}}, send)

	if len(*sent) != 1 {
		t.Fatalf("expected an acknowledgement without a handler, got %d responses", len(*sent))
	}
	if (*sent)[0].Response["result"] != "Success" {
		t.Fatalf("expected generic success, got %v", (*sent)[0].Response)
	}
}

func TestDispatchEmptyBatchIsNoop(t *testing.T) {
	transcript := newTranscript()
	dispatcher := newToolDispatcher(nil, transcript)
	send, sent := collectResponses()

	dispatcher.Dispatch(context.Background(), nil, send)

	if len(*sent) != 0 || len(transcript.Entries()) != 0 {
		t.Fatalf("empty batch must not produce responses or notices")
	}
}
