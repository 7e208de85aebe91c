package search

import (
	"testing"

	"github.com/propscout/propscout-api/pkg/model"
)

func TestForwardTransitions(t *testing.T) {
	allowed := []struct{ from, to model.RunStatus }{
		{model.RunPending, model.RunFiltering},
		{model.RunFiltering, model.RunAnalyzing},
		{model.RunAnalyzing, model.RunCompleted},
		{model.RunPending, model.RunAnalyzing}, // forward skips are legal
	}
	for _, c := range allowed {
		if !CanTransition(c.from, c.to) {
			t.Errorf("%s -> %s should be allowed", c.from, c.to)
		}
	}

	denied := []struct{ from, to model.RunStatus }{
		{model.RunFiltering, model.RunPending}, // no state is revisited
		{model.RunAnalyzing, model.RunFiltering},
		{model.RunAnalyzing, model.RunAnalyzing},
		{model.RunCompleted, model.RunFailed}, // terminal
		{model.RunFailed, model.RunFiltering},
		{model.RunFailed, model.RunFailed},
	}
	for _, c := range denied {
		if CanTransition(c.from, c.to) {
			t.Errorf("%s -> %s should be denied", c.from, c.to)
		}
	}
}

func TestAnyActiveStateMayFail(t *testing.T) {
	for _, from := range []model.RunStatus{model.RunPending, model.RunFiltering, model.RunAnalyzing} {
		if !CanTransition(from, model.RunFailed) {
			t.Errorf("%s -> failed should be allowed", from)
		}
	}
}
