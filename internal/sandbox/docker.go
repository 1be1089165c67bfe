package sandbox

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-units"
)

// ErrNotFound is returned by CopyOut when the source path does not exist.
var ErrNotFound = errors.New("sandbox: path not found")

// DockerRunner runs commands inside one long-lived, locked-down container
// with the workspace bind-mounted at Config.Workdir.
type DockerRunner struct {
	client *client.Client
	config Config

	mu          sync.Mutex
	containerID string
}

// NewDockerRunner connects to the Docker daemon from the environment and
// verifies that it answers.
func NewDockerRunner(ctx context.Context, cfg Config) (*DockerRunner, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create Docker client: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := cli.Ping(pingCtx); err != nil {
		cli.Close()
		return nil, fmt.Errorf("docker daemon not accessible: %w", err)
	}

	if cfg.Workdir == "" {
		cfg.Workdir = "/workspace"
	}
	if cfg.DockerImage == "" {
		cfg.DockerImage = "alpine:latest"
	}

	return &DockerRunner{client: cli, config: cfg}, nil
}

// ensureContainer lazily creates and starts the sandbox container.
func (r *DockerRunner) ensureContainer(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.containerID != "" {
		return r.containerID, nil
	}

	if err := r.ensureImage(ctx, r.config.DockerImage); err != nil {
		return "", fmt.Errorf("failed to ensure image %s: %w", r.config.DockerImage, err)
	}

	absRoot, err := filepath.Abs(r.config.Root)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	memory, err := units.RAMInBytes(r.config.Memory)
	if err != nil || memory <= 0 {
		memory = 1 << 30
	}

	containerConfig := &container.Config{
		Image:           r.config.DockerImage,
		Cmd:             []string{"sleep", "infinity"},
		WorkingDir:      r.config.Workdir,
		User:            fmt.Sprintf("%d:%d", os.Getuid(), os.Getgid()),
		Env:             []string{"HOME=/tmp"},
		NetworkDisabled: true,
	}

	hostConfig := &container.HostConfig{
		Mounts: []mount.Mount{
			{
				Type:   mount.TypeBind,
				Source: absRoot,
				Target: r.config.Workdir,
			},
		},
		Resources: container.Resources{
			Memory:   memory,
			NanoCPUs: parseCPU(r.config.CPU),
			Ulimits: []*units.Ulimit{
				{Name: "nofile", Soft: 1024, Hard: 1024},
			},
		},
		SecurityOpt: []string{"no-new-privileges"},
		CapDrop:     []string{"ALL"},
		Tmpfs: map[string]string{
			"/tmp": "rw,noexec,nosuid,size=100m",
		},
	}

	createResp, err := r.client.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, "")
	if err != nil {
		return "", fmt.Errorf("failed to create container: %w", err)
	}
	if err := r.client.ContainerStart(ctx, createResp.ID, container.StartOptions{}); err != nil {
		r.remove(createResp.ID)
		return "", fmt.Errorf("failed to start container: %w", err)
	}

	r.containerID = createResp.ID
	return r.containerID, nil
}

// Run executes command via "sh -c" inside the container.
func (r *DockerRunner) Run(ctx context.Context, command string) (Result, error) {
	id, err := r.ensureContainer(ctx)
	if err != nil {
		return Result{}, err
	}

	execCtx, cancel := context.WithTimeout(ctx, r.config.timeout())
	defer cancel()

	execResp, err := r.client.ContainerExecCreate(execCtx, id, container.ExecOptions{
		Cmd:          []string{"sh", "-c", command},
		WorkingDir:   r.config.Workdir,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return Result{}, fmt.Errorf("failed to create exec: %w", err)
	}

	attach, err := r.client.ContainerExecAttach(execCtx, execResp.ID, container.ExecAttachOptions{})
	if err != nil {
		return Result{}, fmt.Errorf("failed to attach exec: %w", err)
	}
	defer attach.Close()

	var stdout, stderr bytes.Buffer
	copyDone := make(chan error, 1)
	go func() {
		_, err := stdcopy.StdCopy(&stdout, &stderr, attach.Reader)
		copyDone <- err
	}()

	select {
	case <-execCtx.Done():
		return Result{
			Stdout:   stdout.String(),
			Stderr:   stderr.String(),
			Code:     -1,
			TimedOut: true,
		}, execCtx.Err()
	case err := <-copyDone:
		if err != nil {
			return Result{}, fmt.Errorf("failed to read exec output: %w", err)
		}
	}

	inspect, err := r.client.ContainerExecInspect(ctx, execResp.ID)
	if err != nil {
		return Result{}, fmt.Errorf("failed to inspect exec: %w", err)
	}

	return Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
		Code:   inspect.ExitCode,
	}, nil
}

// CopyIn writes content to dst inside the container as a single-entry tar stream.
func (r *DockerRunner) CopyIn(ctx context.Context, dst string, content []byte) error {
	id, err := r.ensureContainer(ctx)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	hdr := &tar.Header{
		Name:    path.Base(dst),
		Mode:    0o644,
		Size:    int64(len(content)),
		ModTime: time.Now(),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("failed to write tar header: %w", err)
	}
	if _, err := tw.Write(content); err != nil {
		return fmt.Errorf("failed to write tar body: %w", err)
	}
	if err := tw.Close(); err != nil {
		return fmt.Errorf("failed to close tar: %w", err)
	}

	dir := path.Dir(dst)
	if _, err := r.Run(ctx, "mkdir -p "+shellQuote(dir)); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	return r.client.CopyToContainer(ctx, id, dir, &buf, container.CopyToContainerOptions{})
}

// CopyOut reads the regular file at src from the container.
func (r *DockerRunner) CopyOut(ctx context.Context, src string) ([]byte, error) {
	id, err := r.ensureContainer(ctx)
	if err != nil {
		return nil, err
	}

	rc, stat, err := r.client.CopyFromContainer(ctx, id, src)
	if err != nil {
		if client.IsErrNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	defer rc.Close()

	if stat.Mode.IsDir() {
		return nil, fmt.Errorf("%s is a directory", src)
	}

	tr := tar.NewReader(rc)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil, ErrNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read tar: %w", err)
		}
		if hdr.Typeflag == tar.TypeReg {
			return io.ReadAll(tr)
		}
	}
}

// Close removes the sandbox container.
func (r *DockerRunner) Close() error {
	r.mu.Lock()
	id := r.containerID
	r.containerID = ""
	r.mu.Unlock()
	if id != "" {
		r.remove(id)
	}
	return r.client.Close()
}

func (r *DockerRunner) remove(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = r.client.ContainerRemove(ctx, id, container.RemoveOptions{Force: true})
}

// ensureImage checks if the image exists locally, and pulls it if not.
func (r *DockerRunner) ensureImage(ctx context.Context, imageName string) error {
	if _, _, err := r.client.ImageInspectWithRaw(ctx, imageName); err == nil {
		return nil
	}

	reader, err := r.client.ImagePull(ctx, imageName, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image: %w", err)
	}
	defer reader.Close()

	// The pull only completes once the progress stream is drained.
	_, _ = io.Copy(io.Discard, reader)
	return nil
}

// parseCPU converts a CPU count such as "1.5" into NanoCPUs.
func parseCPU(cpuStr string) int64 {
	value, err := strconv.ParseFloat(strings.TrimSpace(cpuStr), 64)
	if err != nil || value <= 0 {
		value = 2
	}
	return int64(value * 1e9)
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
