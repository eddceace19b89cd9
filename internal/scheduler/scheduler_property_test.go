package scheduler

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/fletchway/agentcore/internal/confirm"
	"github.com/fletchway/agentcore/internal/functioncall"
	"github.com/fletchway/agentcore/internal/tools"
)

// TestScheduler_TerminalStatesAreMonotonic runs four-call batches of randomly
// succeeding/failing tool calls and checks two invariants from spec.md §4.4: every
// call reaches exactly one terminal state, and no observed status sequence
// for a call revisits a state after reaching a terminal one.
func TestScheduler_TerminalStatesAreMonotonic(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("batch of calls always terminates without state regression", prop.ForAll(
		func(outcomes []bool) bool {
			reg := tools.NewRegistry(tools.FilterPolicy{})
			reqs := make([]functioncall.Request, 0, len(outcomes))
			for i, ok := range outcomes {
				name := fmt.Sprintf("tool_%d", i)
				result := tools.Result{Success: ok, LLMContent: "x"}
				if !ok {
					result.ErrorKind = tools.ErrorKindToolFailed
				}
				if err := reg.Register(&fakeTool{name: name, result: result}, "prop", false); err != nil {
					return false
				}
				reqs = append(reqs, functioncall.Request{CallID: fmt.Sprintf("c%d", i), Name: name, Args: map[string]any{}})
			}

			historyMu := sync.Mutex{}
			history := map[string][]Status{}
			completeCount := 0

			hooks := Hooks{
				OnUpdate: func(batch []Snapshot) {
					historyMu.Lock()
					defer historyMu.Unlock()
					for _, c := range batch {
						seq := history[c.CallID]
						if len(seq) == 0 || seq[len(seq)-1] != c.Status {
							history[c.CallID] = append(seq, c.Status)
						}
					}
				},
				OnAllComplete: func(batch []Snapshot) {
					historyMu.Lock()
					completeCount++
					historyMu.Unlock()
				},
			}

			s := New(reg, confirm.Policy{}, Policy{AutoConfirm: true}, hooks)
			if err := s.Schedule(context.Background(), reqs); err != nil {
				return len(reqs) == 0
			}
			s.Wait()

			deadline := time.Now().Add(2 * time.Second)
			for {
				historyMu.Lock()
				done := completeCount >= 1 || len(reqs) == 0
				historyMu.Unlock()
				if done || time.Now().After(deadline) {
					break
				}
				time.Sleep(time.Millisecond)
			}

			historyMu.Lock()
			defer historyMu.Unlock()
			if len(reqs) > 0 && completeCount != 1 {
				return false
			}
			for _, seq := range history {
				for i, st := range seq {
					if st.IsTerminal() && i != len(seq)-1 {
						return false
					}
				}
				if len(seq) > 0 && !seq[len(seq)-1].IsTerminal() {
					return false
				}
			}
			return true
		},
		gen.SliceOfN(4, gen.Bool()),
	))

	properties.TestingRun(t)
}
