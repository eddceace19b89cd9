package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fletchway/agentcore/internal/confirm"
	"github.com/fletchway/agentcore/internal/functioncall"
	"github.com/fletchway/agentcore/internal/model"
	"github.com/fletchway/agentcore/internal/tools"
)

// alwaysCallingGenerator is a ContentGenerator that requests the same tool
// call forever, used to drive the orchestrator into its iteration cap.
type alwaysCallingGenerator struct {
	calls int
}

func (g *alwaysCallingGenerator) Generate(ctx context.Context, history model.History) (Turn, error) {
	g.calls++
	return Turn{
		Calls: []functioncall.Request{{CallID: "c", Name: "loop", Args: map[string]any{}}},
	}, nil
}

type loopTool struct{}

func (loopTool) Name() string                   { return "loop" }
func (loopTool) DisplayName() string             { return "loop" }
func (loopTool) Description() string             { return "loops" }
func (loopTool) ParametersSchema() map[string]any { return map[string]any{"type": "object"} }
func (loopTool) Kind() tools.Kind                { return tools.KindReadOnly }
func (loopTool) CanStreamOutput() bool           { return false }
func (loopTool) Validate(map[string]any) error   { return nil }
func (loopTool) ShouldConfirm(context.Context, map[string]any) (*tools.ConfirmationDetails, error) {
	return nil, nil
}
func (loopTool) Execute(context.Context, map[string]any, tools.ProgressSink) (tools.Result, error) {
	return tools.Result{Success: true, LLMContent: "again"}, nil
}

func TestOrchestrator_IterationCapReached(t *testing.T) {
	reg := tools.NewRegistry(tools.FilterPolicy{})
	require.NoError(t, reg.Register(loopTool{}, "test", false))

	gen := &alwaysCallingGenerator{}
	o := New(gen, reg, confirm.Policy{})

	events := o.Run(context.Background(), model.History{model.TextMessage(model.RoleUser, "go")}, Config{
		MaxIterations: 3,
		AutoConfirm:   true,
	})

	var errEvent *Event
	var requestCount, responseCount int
	for ev := range events {
		switch ev.Kind {
		case EventToolCallRequest:
			requestCount++
		case EventToolCallResponse:
			responseCount++
		case EventError:
			e := ev
			errEvent = &e
		}
	}

	require.NotNil(t, errEvent)
	assert.True(t, errors.Is(errEvent.Err, ErrIterationCapReached))
	assert.Equal(t, 3, gen.calls)
	assert.Equal(t, 3, requestCount)
	assert.Equal(t, 3, responseCount)
}

func TestOrchestrator_FinishesWithoutToolCalls(t *testing.T) {
	reg := tools.NewRegistry(tools.FilterPolicy{})
	gen := finishingGenerator{text: "all done"}
	o := New(gen, reg, confirm.Policy{})

	events := o.Run(context.Background(), model.History{model.TextMessage(model.RoleUser, "hi")}, Config{MaxIterations: 5})

	var sawContent, sawFinished bool
	for ev := range events {
		switch ev.Kind {
		case EventContent:
			sawContent = true
			assert.Equal(t, "all done", ev.Text)
		case EventFinished:
			sawFinished = true
		case EventError:
			t.Fatalf("unexpected error event: %v", ev.Err)
		}
	}
	assert.True(t, sawContent)
	assert.True(t, sawFinished)
}

type finishingGenerator struct{ text string }

func (g finishingGenerator) Generate(ctx context.Context, history model.History) (Turn, error) {
	return Turn{Text: g.text, FinishedAll: true}, nil
}
