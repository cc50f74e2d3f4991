package sandbox

import (
	"testing"

	"github.com/docker/docker/api/types/container"
)

func TestDockerRunnerNetworkModeDefaultsToNone(t *testing.T) {
	r := &DockerRunner{cfg: defaultConfig()}
	if got := r.networkMode(); got != container.NetworkMode("none") {
		t.Fatalf("default network mode = %q, want %q", got, "none")
	}
	exposed, bindings := r.portBindings()
	if exposed != nil || bindings != nil {
		t.Fatalf("expected no exposed ports by default, got %v / %v", exposed, bindings)
	}
}

func TestDockerRunnerPublishPortOption(t *testing.T) {
	cfg := defaultConfig()
	WithDockerPublishPort("5678")(&cfg)
	r := &DockerRunner{cfg: cfg}

	if got := r.networkMode(); got != container.NetworkMode("bridge") {
		t.Fatalf("network mode with published port = %q, want %q", got, "bridge")
	}
	exposed, bindings := r.portBindings()
	if len(exposed) != 1 || len(bindings) != 1 {
		t.Fatalf("expected one exposed port and one binding, got %v / %v", exposed, bindings)
	}
}

func TestDockerRunnerContainerEnvIncludesWorkspaceAndUserVars(t *testing.T) {
	cfg := defaultConfig()
	WithEnv("FOO", "bar")(&cfg)
	r := &DockerRunner{cfg: cfg}

	env := r.containerEnv()
	found := map[string]bool{}
	for _, kv := range env {
		found[kv] = true
	}
	if !found["_FYREFLOW_WORKSPACE=/workspace"] {
		t.Errorf("missing workspace env var, got %v", env)
	}
	if !found["FOO=bar"] {
		t.Errorf("missing user-supplied env var, got %v", env)
	}
}
