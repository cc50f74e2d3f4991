package fyreflow

import (
	"context"
	"testing"
)

// configurableFakeStore extends fakeStore with settable providers/state,
// for engine-level wiring tests.
type configurableFakeStore struct {
	*fakeStore
	providers map[string]ProviderConfig
	state     EngineState
}

func newConfigurableFakeStore() *configurableFakeStore {
	return &configurableFakeStore{
		fakeStore: &fakeStore{runs: map[string]Run{}},
		providers: map[string]ProviderConfig{"p1": {ID: "p1"}},
		state:     EngineState{Storage: DefaultStorageConfig("")},
	}
}

func (f *configurableFakeStore) GetProviders(ctx context.Context) (map[string]ProviderConfig, error) {
	return f.providers, nil
}

func (f *configurableFakeStore) GetState(ctx context.Context) (EngineState, error) {
	return f.state, nil
}

func TestEngineStartRunDrivesFlowToCompletion(t *testing.T) {
	store := newConfigurableFakeStore()
	store.state.Storage = DefaultStorageConfig(t.TempDir())

	fe := &fakeExecutor{outputs: []string{"output a, pass", "output b, pass"}}
	eng := New(WithStore(store), WithProvider(fe), WithToolInvoker(&fakeInvoker{}))

	out, err := eng.StartRun(context.Background(), twoStepFlow(), "do it", map[string]string{"Topic": "widgets"})
	if err != nil {
		t.Fatal(err)
	}
	if out.Status != StatusCompleted {
		t.Fatalf("status = %s, want completed", out.Status)
	}
	if len(out.Steps) != 2 {
		t.Fatalf("steps = %d, want 2", len(out.Steps))
	}
	if out.Inputs["topic"] != "widgets" {
		t.Fatalf("expected normalized input key, got %+v", out.Inputs)
	}

	persisted, err := store.GetRun(context.Background(), out.ID)
	if err != nil {
		t.Fatal(err)
	}
	if persisted.Status != StatusCompleted {
		t.Fatalf("persisted status = %s, want completed", persisted.Status)
	}
}

func TestEngineStartRunRequiresStore(t *testing.T) {
	eng := New()
	_, err := eng.StartRun(context.Background(), twoStepFlow(), "do it", nil)
	if err == nil {
		t.Fatal("expected error when store is not configured")
	}
}

func TestEngineCancelFallsBackToStoreWhenRunNotInFlight(t *testing.T) {
	store := newConfigurableFakeStore()
	store.runs["r1"] = Run{ID: "r1", Status: StatusRunning}
	eng := New(WithStore(store))

	out, err := eng.Cancel(context.Background(), "r1", "operator request")
	if err != nil {
		t.Fatal(err)
	}
	if out.Status != StatusCancelled {
		t.Fatalf("status = %s, want cancelled", out.Status)
	}
}

func TestEngineUsesPoolSchedulerWhenParallelEnabledAndDelegationPresent(t *testing.T) {
	store := newConfigurableFakeStore()
	store.state.Storage = DefaultStorageConfig(t.TempDir())

	fe := &concurrentFakeExecutor{outputs: map[string]string{}}
	eng := New(WithStore(store), WithProvider(fe), WithToolInvoker(&fakeInvoker{}), WithParallelExecution(true))

	out, err := eng.StartRun(context.Background(), fanOutFlow(), "fan out", nil)
	if err != nil {
		t.Fatal(err)
	}
	if out.Status != StatusCompleted {
		t.Fatalf("status = %s, want completed", out.Status)
	}
	if len(out.Steps) != 4 {
		t.Fatalf("steps = %d, want 4", len(out.Steps))
	}
}
