package sandbox

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	dockerclient "github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"
)

// DockerRunner executes code inside a throwaway container, the strongest
// isolation level CodeRunner offers: no shared filesystem, process
// table, or network with the host beyond what the image and
// WithDockerPublishPort explicitly grant. It speaks the same
// prelude.py stdin/stdout JSON-line protocol as SubprocessRunner, over
// the container's attached stdio instead of a local pipe. Implements
// CodeRunner.
type DockerRunner struct {
	cli   *dockerclient.Client
	image string
	cfg   runnerConfig
}

// compile-time check
var _ CodeRunner = (*DockerRunner)(nil)

// NewDockerRunner creates a DockerRunner that runs code in containers
// started from img (e.g. "python:3.12-slim"), dialing the daemon via
// the standard DOCKER_HOST/DOCKER_CERT_PATH/DOCKER_TLS_VERIFY
// environment variables.
func NewDockerRunner(img string, opts ...Option) (*DockerRunner, error) {
	cli, err := dockerclient.NewClientWithOpts(dockerclient.FromEnv, dockerclient.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("docker runner: connect to daemon: %w", err)
	}
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	return &DockerRunner{cli: cli, image: img, cfg: cfg}, nil
}

// Close releases the Docker client's idle connections.
func (r *DockerRunner) Close() error {
	return r.cli.Close()
}

// Run starts a container from r.image, writes prelude+code+postlude to
// its attached stdin, and runs the tool-call protocol loop over its
// demultiplexed stdout/stderr.
func (r *DockerRunner) Run(ctx context.Context, req CodeRequest, dispatch DispatchFunc) (CodeResult, error) {
	for _, pat := range blockedPatterns {
		if pat.MatchString(req.Code) {
			return CodeResult{
				Error:    fmt.Sprintf("blocked: code contains prohibited pattern: %s", pat.String()),
				ExitCode: 1,
			}, nil
		}
	}

	timeout := r.cfg.timeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := r.ensureImage(ctx); err != nil {
		return CodeResult{}, err
	}

	exposed, bindings := r.portBindings()
	created, err := r.cli.ContainerCreate(ctx, &container.Config{
		Image:        r.image,
		Cmd:          []string{"python3", "-u", "-"},
		Env:          r.containerEnv(),
		WorkingDir:   "/workspace",
		OpenStdin:    true,
		StdinOnce:    true,
		AttachStdin:  true,
		AttachStdout: true,
		AttachStderr: true,
		ExposedPorts: exposed,
	}, &container.HostConfig{
		AutoRemove:   true,
		NetworkMode:  r.networkMode(),
		PortBindings: bindings,
	}, nil, nil, "")
	if err != nil {
		return CodeResult{}, fmt.Errorf("docker runner: create container: %w", err)
	}
	containerID := created.ID
	defer r.cli.ContainerRemove(context.Background(), containerID, container.RemoveOptions{Force: true})

	hijacked, err := r.cli.ContainerAttach(ctx, containerID, container.AttachOptions{
		Stream: true, Stdin: true, Stdout: true, Stderr: true,
	})
	if err != nil {
		return CodeResult{}, fmt.Errorf("docker runner: attach: %w", err)
	}
	defer hijacked.Close()

	if err := r.cli.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		return CodeResult{}, fmt.Errorf("docker runner: start container: %w", err)
	}

	script := preludeSource + "\n" + req.Code + "\n" + postludeSource
	if _, err := hijacked.Conn.Write([]byte(script)); err != nil {
		return CodeResult{}, fmt.Errorf("docker runner: write script: %w", err)
	}
	hijacked.CloseWrite()

	stdoutR, stdoutW := io.Pipe()
	var stderrBuf strings.Builder
	stderrW := &stderrWriter{w: &stderrBuf, max: r.cfg.maxOutput}

	demuxDone := make(chan error, 1)
	go func() {
		_, cErr := stdcopy.StdCopy(stdoutW, stderrW, hijacked.Reader)
		stdoutW.CloseWithError(cErr)
		demuxDone <- cErr
	}()

	var finalOutput string
	scanner := bufio.NewScanner(stdoutR)
	scanner.Buffer(make([]byte, r.cfg.maxOutput), r.cfg.maxOutput)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		var msg protocolMessage
		if err := json.Unmarshal([]byte(line), &msg); err != nil {
			continue
		}
		switch msg.Type {
		case "tool_call":
			writeJSON(hijacked.Conn, dispatchToolCall(ctx, msg, dispatch))
		case "tool_calls_parallel":
			writeJSON(hijacked.Conn, dispatchToolCallsParallel(ctx, msg, dispatch))
		case "result":
			data, _ := json.Marshal(msg.Data)
			finalOutput = string(data)
		}
	}
	<-demuxDone

	result := CodeResult{Output: finalOutput, Logs: stderrBuf.String()}
	if len(result.Logs) > r.cfg.maxOutput {
		result.Logs = result.Logs[:r.cfg.maxOutput] + "\n... (truncated)"
	}

	waitBody, waitErrCh := r.cli.ContainerWait(context.Background(), containerID, container.WaitConditionNotRunning)
	select {
	case werr := <-waitErrCh:
		if ctx.Err() == context.DeadlineExceeded {
			result.Error = fmt.Sprintf("execution timed out after %s", timeout)
			result.ExitCode = -1
		} else if werr != nil {
			result.Error = werr.Error()
			result.ExitCode = -1
		}
	case status := <-waitBody:
		result.ExitCode = int(status.StatusCode)
		if status.Error != nil {
			result.Error = status.Error.Message
		}
	}

	return result, nil
}

// ensureImage pulls r.image if the daemon doesn't already have it cached.
func (r *DockerRunner) ensureImage(ctx context.Context) error {
	if _, _, err := r.cli.ImageInspectWithRaw(ctx, r.image); err == nil {
		return nil
	}
	rc, err := r.cli.ImagePull(ctx, r.image, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("docker runner: pull image %s: %w", r.image, err)
	}
	defer rc.Close()
	_, err = io.Copy(io.Discard, rc)
	return err
}

func (r *DockerRunner) containerEnv() []string {
	env := []string{"_FYREFLOW_WORKSPACE=/workspace"}
	for k, v := range r.cfg.envVars {
		env = append(env, k+"="+v)
	}
	return env
}

func (r *DockerRunner) networkMode() container.NetworkMode {
	if r.cfg.dockerPublishPort != "" {
		return container.NetworkMode("bridge")
	}
	return container.NetworkMode("none")
}

// portBindings builds the ExposedPorts/PortMap pair from
// WithDockerPublishPort, the way the Docker CLI itself turns a
// --publish flag into a container.Config/HostConfig pair via
// go-connections' nat helpers.
func (r *DockerRunner) portBindings() (nat.PortSet, nat.PortMap) {
	if r.cfg.dockerPublishPort == "" {
		return nil, nil
	}
	port := nat.Port(r.cfg.dockerPublishPort + "/tcp")
	return nat.PortSet{port: struct{}{}}, nat.PortMap{
		port: []nat.PortBinding{{HostIP: "127.0.0.1", HostPort: r.cfg.dockerPublishPort}},
	}
}
