package workflow

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mofa-org/mofa-go/core"
)

func newTestExecutor(optFns ...func(o *ExecutorOptions)) *Executor {
	e := NewExecutor(optFns...)
	e.sleep = func(context.Context, time.Duration) error { return nil }
	return e
}

func eventKinds(events []ExecutionEvent) []EventKind {
	kinds := make([]EventKind, len(events))
	for i, ev := range events {
		kinds[i] = ev.Kind
	}
	return kinds
}

func linearGraph(t *testing.T) *WorkflowGraph {
	t.Helper()
	g := NewWorkflowGraph("linear").
		AddStart("start").
		AddTask("greet", func(_ context.Context, nc *NodeContext) (Command, error) {
			in, _ := nc.Input.AsString()
			out := StringValue("hello " + in)
			return NewCommand().Update("greeting", out).WithOutput(out), nil
		}).
		AddEnd("end").
		AddEdge("start", "greet").
		AddEdge("greet", "end")
	require.NoError(t, g.Validate())
	return g
}

func TestExecutorLinearFlow(t *testing.T) {
	e := newTestExecutor()
	rec, err := e.Execute(context.Background(), linearGraph(t), StringValue("world"))
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, rec.Status)
	assert.Equal(t, StringValue("hello world"), rec.Output)

	in, ok := rec.Context.State().Get("input")
	require.True(t, ok)
	assert.Equal(t, StringValue("world"), in)
	greeting, _ := rec.Context.State().Get("greeting")
	assert.Equal(t, StringValue("hello world"), greeting)

	assert.Equal(t, []EventKind{
		EventWorkflowStarted,
		EventNodeStarted,
		EventNodeCompleted,
		EventStateUpdated,
		EventWorkflowCompleted,
	}, eventKinds(rec.Events))
}

func TestExecutorEventsAreTotallyOrdered(t *testing.T) {
	e := newTestExecutor()
	rec, err := e.Execute(context.Background(), linearGraph(t), StringValue("x"))
	require.NoError(t, err)

	for i, ev := range rec.Events {
		assert.Equal(t, uint64(i+1), ev.Sequence)
	}
}

func TestExecutorConditionBranching(t *testing.T) {
	build := func() *WorkflowGraph {
		g := NewWorkflowGraph("triage").
			AddStart("start").
			AddCondition("check", func(s *State) bool {
				v, _ := s.Get("input")
				return v.Bool
			}).
			AddTask("escalate", func(_ context.Context, _ *NodeContext) (Command, error) {
				return NewCommand().WithOutput(StringValue("escalated")), nil
			}).
			AddTask("archive", func(_ context.Context, _ *NodeContext) (Command, error) {
				return NewCommand().WithOutput(StringValue("archived")), nil
			}).
			AddEnd("end").
			AddEdge("start", "check").
			AddConditionalEdge("check", "escalate", "true").
			AddConditionalEdge("check", "archive", "false").
			AddEdge("escalate", "end").
			AddEdge("archive", "end")
		require.NoError(t, g.Validate())
		return g
	}

	e := newTestExecutor()

	rec, err := e.Execute(context.Background(), build(), BoolValue(true))
	require.NoError(t, err)
	assert.Equal(t, StringValue("escalated"), rec.Output)

	rec, err = e.Execute(context.Background(), build(), BoolValue(false))
	require.NoError(t, err)
	assert.Equal(t, StringValue("archived"), rec.Output)

	var decision *ExecutionEvent
	for i := range rec.Events {
		if rec.Events[i].Kind == EventBranchDecision {
			decision = &rec.Events[i]
		}
	}
	require.NotNil(t, decision)
	assert.Equal(t, "check", decision.NodeID)
	assert.Equal(t, "false", decision.Detail)
}

func TestExecutorParallelJoin(t *testing.T) {
	g := NewWorkflowGraph("fanout").
		AddStart("start").
		AddParallel("fan").
		AddTask("left", func(_ context.Context, _ *NodeContext) (Command, error) {
			return NewCommand().WithOutput(StringValue("L")), nil
		}).
		AddTask("right", func(_ context.Context, _ *NodeContext) (Command, error) {
			return NewCommand().WithOutput(StringValue("R")), nil
		}).
		AddJoin("join", "left", "right").
		AddEnd("end").
		AddEdge("start", "fan").
		AddEdge("fan", "left").
		AddEdge("fan", "right").
		AddEdge("left", "join").
		AddEdge("right", "join").
		AddEdge("join", "end")
	require.NoError(t, g.Validate())

	e := newTestExecutor()
	rec, err := e.Execute(context.Background(), g, Null())
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, rec.Status)
	merged, ok := rec.Output.AsMap()
	require.True(t, ok)
	assert.Equal(t, StringValue("L"), merged["left"])
	assert.Equal(t, StringValue("R"), merged["right"])

	kinds := eventKinds(rec.Events)
	assert.Contains(t, kinds, EventParallelGroupStarted)
	assert.Contains(t, kinds, EventParallelGroupCompleted)
}

func TestExecutorLoopRespectsIterationCap(t *testing.T) {
	g := NewWorkflowGraph("looper").
		AddStart("start").
		AddLoop("more", func(_ *State) bool { return true }, 3).
		AddTask("body", func(_ context.Context, _ *NodeContext) (Command, error) {
			return NewCommand().Apply(Increment("iterations", IntValue(1))), nil
		}).
		AddEnd("end").
		AddEdge("start", "more").
		AddConditionalEdge("more", "body", "true").
		AddEdge("body", "more").
		AddConditionalEdge("more", "end", "false")
	require.NoError(t, g.Validate())

	e := newTestExecutor()
	rec, err := e.Execute(context.Background(), g, Null())
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, rec.Status)
	count, _ := rec.Context.State().Get("iterations")
	assert.Equal(t, IntValue(3), count)
}

func TestExecutorLoopExitsWhenPredicateFalse(t *testing.T) {
	g := NewWorkflowGraph("looper").
		AddStart("start").
		AddLoop("more", func(s *State) bool {
			v, _ := s.Get("iterations")
			return v.Int < 2
		}, 10).
		AddTask("body", func(_ context.Context, _ *NodeContext) (Command, error) {
			return NewCommand().Apply(Increment("iterations", IntValue(1))), nil
		}).
		AddEnd("end").
		AddEdge("start", "more").
		AddConditionalEdge("more", "body", "true").
		AddEdge("body", "more").
		AddConditionalEdge("more", "end", "false")
	require.NoError(t, g.Validate())

	rec, err := newTestExecutor().Execute(context.Background(), g, Null())
	require.NoError(t, err)
	count, _ := rec.Context.State().Get("iterations")
	assert.Equal(t, IntValue(2), count)
}

func TestExecutorRetrySucceedsAfterFailures(t *testing.T) {
	var calls atomic.Int64
	g := NewWorkflowGraph("flaky").
		AddStart("start").
		AddTask("work", func(_ context.Context, _ *NodeContext) (Command, error) {
			if calls.Add(1) < 3 {
				return Command{}, core.NewError(core.KindExecution, "transient failure")
			}
			return NewCommand().WithOutput(StringValue("done")), nil
		}).
		AddEnd("end").
		AddEdge("start", "work").
		AddEdge("work", "end").
		WithNodeRetry("work", RetryConfig{MaxAttempts: 3, Policy: FixedBackoff(time.Millisecond)})
	require.NoError(t, g.Validate())

	e := newTestExecutor()
	rec, err := e.Execute(context.Background(), g, Null())
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, rec.Status)
	assert.Equal(t, int64(3), calls.Load())

	retries := 0
	for _, ev := range rec.Events {
		if ev.Kind == EventNodeRetrying {
			retries++
		}
	}
	assert.Equal(t, 2, retries)
}

func TestExecutorRetriesExhausted(t *testing.T) {
	g := NewWorkflowGraph("doomed").
		AddStart("start").
		AddTask("work", func(_ context.Context, _ *NodeContext) (Command, error) {
			return Command{}, core.NewError(core.KindExecution, "always fails")
		}).
		AddEnd("end").
		AddEdge("start", "work").
		AddEdge("work", "end").
		WithNodeRetry("work", RetryConfig{MaxAttempts: 2, Policy: FixedBackoff(time.Millisecond)})
	require.NoError(t, g.Validate())

	rec, err := newTestExecutor().Execute(context.Background(), g, Null())
	require.Error(t, err)

	assert.Equal(t, StatusFailed, rec.Status)
	assert.ErrorContains(t, rec.Err, "always fails")
	kinds := eventKinds(rec.Events)
	assert.Contains(t, kinds, EventNodeFailed)
	assert.Contains(t, kinds, EventWorkflowFailed)
}

func TestExecutorNonRetryableErrorFailsFast(t *testing.T) {
	var calls atomic.Int64
	g := NewWorkflowGraph("misconfigured").
		AddStart("start").
		AddTask("work", func(_ context.Context, _ *NodeContext) (Command, error) {
			calls.Add(1)
			return Command{}, core.NewError(core.KindConfiguration, "bad setup")
		}).
		AddEnd("end").
		AddEdge("start", "work").
		AddEdge("work", "end").
		WithNodeRetry("work", RetryConfig{MaxAttempts: 5, Policy: FixedBackoff(time.Millisecond)})
	require.NoError(t, g.Validate())

	_, err := newTestExecutor().Execute(context.Background(), g, Null())
	require.Error(t, err)
	assert.Equal(t, int64(1), calls.Load())
}

func TestExecutorCircuitBreakerRejectsAfterOpen(t *testing.T) {
	g := NewWorkflowGraph("guarded").
		AddStart("start").
		AddTask("work", func(_ context.Context, _ *NodeContext) (Command, error) {
			return Command{}, core.NewError(core.KindExecution, "backend down")
		}).
		AddEnd("end").
		AddEdge("start", "work").
		AddEdge("work", "end").
		WithNodeRetry("work", RetryConfig{MaxAttempts: 3, Policy: FixedBackoff(time.Millisecond)}).
		WithNodeBreaker("work", CircuitBreakerConfig{
			FailureThreshold: 1,
			RecoveryTimeout:  time.Hour,
			SuccessThreshold: 1,
		})
	require.NoError(t, g.Validate())

	rec, err := newTestExecutor().Execute(context.Background(), g, Null())
	require.Error(t, err)
	assert.Equal(t, StatusFailed, rec.Status)
	assert.ErrorContains(t, rec.Err, "circuit open")
}

func TestExecutorCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec, err := newTestExecutor().Execute(ctx, linearGraph(t), StringValue("x"))
	require.Error(t, err)

	assert.Equal(t, StatusCancelled, rec.Status)
	assert.Equal(t, core.KindCancelled, core.KindOf(rec.Err))
	last := rec.Events[len(rec.Events)-1]
	assert.Equal(t, EventWorkflowFailed, last.Kind)
	assert.Equal(t, "cancelled", last.Detail)
}

func TestExecutorDeadlineReportsTimeout(t *testing.T) {
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	rec, err := newTestExecutor().Execute(ctx, linearGraph(t), StringValue("x"))
	require.Error(t, err)

	assert.Equal(t, StatusCancelled, rec.Status)
	last := rec.Events[len(rec.Events)-1]
	assert.Equal(t, "timeout", last.Detail)
}

func TestExecutorMaxStepsExceeded(t *testing.T) {
	g := NewWorkflowGraph("runaway").
		AddStart("start").
		AddLoop("more", func(_ *State) bool { return true }, 1000).
		AddTask("body", func(_ context.Context, _ *NodeContext) (Command, error) {
			return NewCommand(), nil
		}).
		AddEnd("end").
		AddEdge("start", "more").
		AddConditionalEdge("more", "body", "true").
		AddEdge("body", "more").
		AddConditionalEdge("more", "end", "false")
	require.NoError(t, g.Validate())

	e := newTestExecutor(func(o *ExecutorOptions) { o.MaxSteps = 10 })
	rec, err := e.Execute(context.Background(), g, Null())
	require.Error(t, err)
	assert.Equal(t, StatusFailed, rec.Status)
	assert.ErrorContains(t, rec.Err, "exceeded 10 steps")
}

func TestExecutorContinueOnError(t *testing.T) {
	g := NewWorkflowGraph("tolerant").
		AddStart("start").
		AddParallel("fan").
		AddTask("bad", func(_ context.Context, _ *NodeContext) (Command, error) {
			return Command{}, core.NewError(core.KindExecution, "branch failed")
		}).
		AddTask("good", func(_ context.Context, _ *NodeContext) (Command, error) {
			return NewCommand().Update("survived", BoolValue(true)), nil
		}).
		AddEnd("end").
		AddEdge("start", "fan").
		AddEdge("fan", "bad").
		AddEdge("fan", "good").
		AddEdge("good", "end")
	require.NoError(t, g.Validate())

	e := newTestExecutor(func(o *ExecutorOptions) { o.ContinueOnError = true })
	rec, err := e.Execute(context.Background(), g, Null())
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, rec.Status)
	survived, ok := rec.Context.State().Get("survived")
	require.True(t, ok)
	assert.Equal(t, BoolValue(true), survived)
}

func TestExecutorGotoControl(t *testing.T) {
	g := NewWorkflowGraph("jumper").
		AddStart("start").
		AddTask("router", func(_ context.Context, _ *NodeContext) (Command, error) {
			return NewCommand().Goto("landing"), nil
		}).
		AddTask("skipped", func(_ context.Context, _ *NodeContext) (Command, error) {
			return NewCommand().Update("skipped", BoolValue(true)), nil
		}).
		AddTask("landing", func(_ context.Context, _ *NodeContext) (Command, error) {
			return NewCommand().Update("landed", BoolValue(true)), nil
		}).
		AddEnd("end").
		AddEdge("start", "router").
		AddEdge("router", "skipped").
		AddEdge("skipped", "end").
		AddEdge("landing", "end")
	require.NoError(t, g.Validate())

	rec, err := newTestExecutor().Execute(context.Background(), g, Null())
	require.NoError(t, err)

	_, visited := rec.Context.State().Get("skipped")
	assert.False(t, visited)
	landed, _ := rec.Context.State().Get("landed")
	assert.Equal(t, BoolValue(true), landed)
}

func TestExecutorReturnControl(t *testing.T) {
	g := NewWorkflowGraph("early").
		AddStart("start").
		AddTask("decide", func(_ context.Context, _ *NodeContext) (Command, error) {
			return NewCommand().
				Update("output", StringValue("short-circuited")).
				Return(), nil
		}).
		AddTask("never", func(_ context.Context, _ *NodeContext) (Command, error) {
			return NewCommand().Update("reached", BoolValue(true)), nil
		}).
		AddEnd("end").
		AddEdge("start", "decide").
		AddEdge("decide", "never").
		AddEdge("never", "end")
	require.NoError(t, g.Validate())

	rec, err := newTestExecutor().Execute(context.Background(), g, Null())
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, rec.Status)
	assert.Equal(t, StringValue("short-circuited"), rec.Output)
	_, reached := rec.Context.State().Get("reached")
	assert.False(t, reached)
}

func TestExecutorSendControl(t *testing.T) {
	g := NewWorkflowGraph("sender").
		AddStart("start").
		AddTask("split", func(_ context.Context, nc *NodeContext) (Command, error) {
			return NewCommand().Send(
				SendCommand{Target: "worker-a", Input: StringValue("alpha"), BranchID: "a"},
				SendCommand{Target: "worker-b", Input: StringValue("beta"), BranchID: "b"},
			), nil
		}).
		AddTask("worker-a", func(_ context.Context, nc *NodeContext) (Command, error) {
			return NewCommand().Update("a_input", nc.Input), nil
		}).
		AddTask("worker-b", func(_ context.Context, nc *NodeContext) (Command, error) {
			return NewCommand().Update("b_input", nc.Input), nil
		}).
		AddEnd("end").
		AddEdge("start", "split").
		AddEdge("split", "worker-a").
		AddEdge("split", "worker-b").
		AddEdge("worker-a", "end").
		AddEdge("worker-b", "end")
	require.NoError(t, g.Validate())

	rec, err := newTestExecutor().Execute(context.Background(), g, Null())
	require.NoError(t, err)

	a, _ := rec.Context.State().Get("a_input")
	b, _ := rec.Context.State().Get("b_input")
	assert.Equal(t, StringValue("alpha"), a)
	assert.Equal(t, StringValue("beta"), b)
}

func TestExecutorSubWorkflow(t *testing.T) {
	sub := NewWorkflowGraph("inner").
		AddStart("start").
		AddTask("double", func(_ context.Context, nc *NodeContext) (Command, error) {
			v, _ := nc.Input.AsInt()
			return NewCommand().WithOutput(IntValue(v * 2)), nil
		}).
		AddEnd("end").
		AddEdge("start", "double").
		AddEdge("double", "end")

	g := NewWorkflowGraph("outer").
		AddStart("start").
		AddSubWorkflow("inner", sub).
		AddEnd("end").
		AddEdge("start", "inner").
		AddEdge("inner", "end")
	require.NoError(t, g.Validate())

	rec, err := newTestExecutor().Execute(context.Background(), g, IntValue(21))
	require.NoError(t, err)
	assert.Equal(t, IntValue(42), rec.Output)
}

type stubAgent struct {
	id string
	fn func(ctx context.Context, req core.AgentMessage) (core.AgentMessage, error)
}

func (a *stubAgent) ID() string { return a.id }

func (a *stubAgent) Metadata() core.AgentMetadata {
	return core.AgentMetadata{ID: a.id, Name: a.id}
}
func (a *stubAgent) Initialize(context.Context) error { return nil }
func (a *stubAgent) Execute(ctx context.Context, req core.AgentMessage) (core.AgentMessage, error) {
	return a.fn(ctx, req)
}
func (a *stubAgent) HandleMessage(context.Context, core.AgentMessage) error { return nil }

func (a *stubAgent) Shutdown(context.Context) error { return nil }

type stubResolver map[string]core.Agent

func (r stubResolver) Get(id string) (core.Agent, bool) {
	a, ok := r[id]
	return a, ok
}

func TestExecutorLlmAgentNode(t *testing.T) {
	agent := &stubAgent{
		id: "summarizer",
		fn: func(_ context.Context, req core.AgentMessage) (core.AgentMessage, error) {
			return core.NewTaskResponse(req.TaskID, []byte("summary"), core.TaskStatusSuccess), nil
		},
	}

	g := NewWorkflowGraph("agentic").
		AddStart("start").
		AddLlmAgent("summarize", "summarizer").
		AddEnd("end").
		AddEdge("start", "summarize").
		AddEdge("summarize", "end")
	require.NoError(t, g.Validate())

	e := newTestExecutor(func(o *ExecutorOptions) {
		o.Agents = stubResolver{"summarizer": agent}
	})
	rec, err := e.Execute(context.Background(), g, StringValue("long document"))
	require.NoError(t, err)

	assert.Equal(t, StringValue("summary"), rec.Output)
	stored, _ := rec.Context.State().Get("summarize")
	assert.Equal(t, StringValue("summary"), stored)
}

func TestExecutorLlmAgentNotRegistered(t *testing.T) {
	g := NewWorkflowGraph("agentic").
		AddStart("start").
		AddLlmAgent("summarize", "missing").
		AddEnd("end").
		AddEdge("start", "summarize").
		AddEdge("summarize", "end")
	require.NoError(t, g.Validate())

	e := newTestExecutor(func(o *ExecutorOptions) { o.Agents = stubResolver{} })
	rec, err := e.Execute(context.Background(), g, Null())
	require.Error(t, err)
	assert.Equal(t, StatusFailed, rec.Status)
	assert.ErrorContains(t, rec.Err, "not registered")
}

func reviewGraph(t *testing.T) *WorkflowGraph {
	t.Helper()
	g := NewWorkflowGraph("review-flow").
		AddStart("start").
		AddTask("draft", func(_ context.Context, _ *NodeContext) (Command, error) {
			draft := StringValue("first pass")
			return NewCommand().Update("draft", draft).WithOutput(draft), nil
		}).
		AddWait("review", "review").
		AddTask("revise", func(_ context.Context, nc *NodeContext) (Command, error) {
			feedback, _ := nc.Input.AsString()
			out := StringValue("revised per: " + feedback)
			return NewCommand().Update("final", out).WithOutput(out), nil
		}).
		AddEnd("end").
		AddEdge("start", "draft").
		AddEdge("draft", "review").
		AddEdge("review", "revise").
		AddEdge("revise", "end")
	require.NoError(t, g.Validate())
	return g
}

func TestExecutorHumanInTheLoop(t *testing.T) {
	g := reviewGraph(t)
	e := newTestExecutor()

	rec, err := e.ExecuteUntilWait(context.Background(), g, Null())
	require.NoError(t, err)

	assert.Equal(t, StatusPaused, rec.Status)
	assert.Equal(t, "review", rec.Context.LastWaitingNode())
	kinds := eventKinds(rec.Events)
	assert.Contains(t, kinds, EventWorkflowPaused)

	// Persist the paused execution and rehydrate it, as a store would.
	data, err := rec.Context.Snapshot().MarshalDurable()
	require.NoError(t, err)
	snap, err := UnmarshalSnapshot(data)
	require.NoError(t, err)
	restored, err := FromSnapshot(snap)
	require.NoError(t, err)

	final, err := e.ResumeWithHumanInput(context.Background(), g, restored, "review", StringValue("looks good"))
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, final.Status)
	assert.Equal(t, StringValue("revised per: looks good"), final.Output)

	feedback, ok := final.Context.State().Get("review_feedback")
	require.True(t, ok)
	assert.Equal(t, StringValue("looks good"), feedback)
}

func TestExecutorResumePreservesLoopCount(t *testing.T) {
	g := NewWorkflowGraph("gated-looper").
		AddStart("start").
		AddLoop("more", func(_ *State) bool { return true }, 2).
		AddWait("gate", "approval").
		AddTask("body", func(_ context.Context, _ *NodeContext) (Command, error) {
			return NewCommand().Apply(Increment("iterations", IntValue(1))), nil
		}).
		AddEnd("end").
		AddEdge("start", "more").
		AddConditionalEdge("more", "gate", "true").
		AddEdge("gate", "body").
		AddEdge("body", "more").
		AddConditionalEdge("more", "end", "false")
	require.NoError(t, g.Validate())

	e := newTestExecutor()
	rec, err := e.Execute(context.Background(), g, Null())
	require.NoError(t, err)
	require.Equal(t, StatusPaused, rec.Status)

	// Rehydrate through a snapshot so the iteration count survives storage
	// as well as the in-memory pause.
	snap, err := UnmarshalSnapshot(mustDurable(t, rec.Context))
	require.NoError(t, err)
	restored, err := FromSnapshot(snap)
	require.NoError(t, err)

	rec, err = e.ResumeWithHumanInput(context.Background(), g, restored, "gate", Null())
	require.NoError(t, err)
	require.Equal(t, StatusPaused, rec.Status)

	// The second resume exhausts the two-iteration budget; without the
	// carried count the loop would start over and pause a third time.
	final, err := e.ResumeWithHumanInput(context.Background(), g, rec.Context, "gate", Null())
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, final.Status)

	count, ok := final.Context.State().Get("iterations")
	require.True(t, ok)
	assert.Equal(t, IntValue(2), count)
}

func mustDurable(t *testing.T, c *WorkflowContext) []byte {
	t.Helper()
	data, err := c.Snapshot().MarshalDurable()
	require.NoError(t, err)
	return data
}

func TestExecutorResumeValidation(t *testing.T) {
	g := reviewGraph(t)
	e := newTestExecutor()

	rec, err := e.Execute(context.Background(), g, Null())
	require.NoError(t, err)
	require.Equal(t, StatusPaused, rec.Status)

	// Wrong node is rejected.
	_, err = e.ResumeWithHumanInput(context.Background(), g, rec.Context, "draft", Null())
	require.Error(t, err)
	assert.ErrorContains(t, err, "waiting at review")

	// A completed context cannot be resumed.
	final, err := e.ResumeWithHumanInput(context.Background(), g, rec.Context, "review", StringValue("ok"))
	require.NoError(t, err)
	_, err = e.ResumeWithHumanInput(context.Background(), g, final.Context, "review", StringValue("again"))
	require.Error(t, err)
	assert.ErrorContains(t, err, "not paused")
}

func TestExecutorDeterministicRuns(t *testing.T) {
	e := newTestExecutor()
	g := linearGraph(t)

	first, err := e.Execute(context.Background(), g, StringValue("repeat"))
	require.NoError(t, err)
	second, err := e.Execute(context.Background(), g, StringValue("repeat"))
	require.NoError(t, err)

	assert.Equal(t, first.Output, second.Output)
	assert.Equal(t, first.Context.State().Values(), second.Context.State().Values())
	assert.Equal(t, eventKinds(first.Events), eventKinds(second.Events))
}
