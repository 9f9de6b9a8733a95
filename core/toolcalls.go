package livesession

import (
	"context"
	"fmt"

	"github.com/koscakluka/blurry-core/core/liveapi"
)

// ToolHandler executes one named tool invocation. The returned map is sent
// back to the model verbatim; a nil map with nil error is reported as a
// generic success.
type ToolHandler interface {
	Handle(ctx context.Context, name string, args map[string]any) (map[string]any, error)
}

// ToolHandlerFunc adapts a function to the ToolHandler interface.
type ToolHandlerFunc func(ctx context.Context, name string, args map[string]any) (map[string]any, error)

func (f ToolHandlerFunc) Handle(ctx context.Context, name string, args map[string]any) (map[string]any, error) {
	return f(ctx, name, args)
}

// toolDispatcher routes tool-call batches from the live service to the
// configured handler and returns each result correlated by call ID. Failures
// degrade to an error payload instead of stalling the conversation.
type toolDispatcher struct {
	handler ToolHandler

	transcript *transcript
}

func newToolDispatcher(handler ToolHandler, transcript *transcript) *toolDispatcher {
	return &toolDispatcher{
		handler:    handler,
		transcript: transcript,
	}
}

// Dispatch executes every call in the batch in order and sends one response
// per call. Responses always carry the originating call's ID and name even
// when the handler fails, so the service can correlate them.
func (d *toolDispatcher) Dispatch(ctx context.Context, calls []liveapi.FunctionCall, send func(liveapi.FunctionResponse) error) {
	if d == nil || len(calls) == 0 {
		return
	}

	d.transcript.AppendSystem("Processing request...")

	for _, call := range calls {
		response, executed := d.execute(ctx, call)
		if executed {
			d.transcript.AppendSystem(fmt.Sprintf("Executed: %s", call.Name))
		}

		if err := send(liveapi.FunctionResponse{
			ID:       call.ID,
			Name:     call.Name,
			Response: response,
		}); err != nil {
			logger.Warn("Failed to send tool response",
				"tool", call.Name, "callId", call.ID, "error", err)
		}
	}
}

// execute runs one call through the handler. Without a handler the call is
// acknowledged with a generic success so the conversation keeps moving. A
// panicking handler is treated like a failed one; the service still gets its
// response.
func (d *toolDispatcher) execute(ctx context.Context, call liveapi.FunctionCall) (response map[string]any, executed bool) {
	if d.handler == nil {
		return map[string]any{"result": "Success"}, false
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Tool handler panicked",
				"tool", call.Name, "callId", call.ID, "panic", r)
			response = map[string]any{"error": "Failed"}
			executed = false
		}
	}()

	result, err := d.handler.Handle(ctx, call.Name, call.Args)
	if err != nil {
		logger.Error("Tool execution failed",
			"tool", call.Name, "callId", call.ID, "error", err)
		return map[string]any{"error": "Failed"}, false
	}
	if result == nil {
		result = map[string]any{"result": "Success"}
	}
	return result, true
}
