package source

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/events"
	"github.com/docker/docker/api/types/filters"
	dockerclient "github.com/docker/docker/client"
)

// LabelDomain is the container label holding a comma-separated list of
// domains. Indexed variants (dyndns.domain-0, dyndns.domain-1, ...) are read
// as well.
const LabelDomain = "dyndns.domain"

// dockerAPI is the subset of the Docker client used by DockerSource.
// Defined as an interface so tests can inject a mock.
type dockerAPI interface {
	ContainerList(ctx context.Context, options container.ListOptions) ([]container.Summary, error)
	Events(ctx context.Context, options events.ListOptions) (<-chan events.Message, <-chan error)
}

// DockerSource implements Source by reading labels of running containers.
type DockerSource struct {
	client        dockerAPI
	log           *slog.Logger
	reconnectWait time.Duration // how long to wait between reconnect attempts

	mu       sync.Mutex
	handlers []func()
}

// NewDockerSource returns a DockerSource that connects via the environment
// (DOCKER_HOST, DOCKER_TLS_VERIFY, etc.) or the default Unix socket.
// Additional dockerclient.Opt values are appended after the defaults.
func NewDockerSource(log *slog.Logger, extraOpts ...dockerclient.Opt) (*DockerSource, error) {
	opts := []dockerclient.Opt{
		dockerclient.FromEnv,
		dockerclient.WithAPIVersionNegotiation(),
	}
	opts = append(opts, extraOpts...)
	c, err := dockerclient.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("docker client: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &DockerSource{client: c, log: log, reconnectWait: 5 * time.Second}, nil
}

// newDockerSourceWithClient constructs a DockerSource with an injected client
// for unit testing.
func newDockerSourceWithClient(client dockerAPI, log *slog.Logger) *DockerSource {
	if log == nil {
		log = slog.Default()
	}
	return &DockerSource{client: client, log: log, reconnectWait: 0}
}

// Close releases the Docker client connection.
func (s *DockerSource) Close() error {
	if c, ok := s.client.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Domains lists running containers and collects domains from their labels.
func (s *DockerSource) Domains(ctx context.Context) ([]string, error) {
	containers, err := s.client.ContainerList(ctx, container.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("listing containers: %w", err)
	}

	var domains []string
	for _, c := range containers {
		id := c.ID
		if len(id) > 12 {
			id = id[:12]
		}
		found := domainsFromLabels(c.Labels)
		if len(found) > 0 {
			s.log.Debug("container domains", "container", id, "domains", found)
		}
		domains = append(domains, found...)
	}
	return Dedupe(domains), nil
}

// AddEventHandler registers a function called when a relevant Docker event occurs.
func (s *DockerSource) AddEventHandler(_ context.Context, handler func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = append(s.handlers, handler)
}

// Watch subscribes to Docker Events and calls registered handlers on container
// lifecycle events. Reconnects automatically on stream errors. Blocks until ctx
// is cancelled.
func (s *DockerSource) Watch(ctx context.Context) {
	for {
		s.runEventLoop(ctx)
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.reconnectWait):
			s.log.Warn("reconnecting to Docker event stream")
		}
	}
}

func (s *DockerSource) runEventLoop(ctx context.Context) {
	f := filters.NewArgs(
		filters.Arg("type", "container"),
		filters.Arg("event", "start"),
		filters.Arg("event", "stop"),
		filters.Arg("event", "die"),
	)
	msgs, errs := s.client.Events(ctx, events.ListOptions{Filters: f})
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-errs:
			if err != nil {
				s.log.Warn("docker event stream error", "err", err)
			}
			return
		case msg := <-msgs:
			s.log.Debug("docker event", "action", msg.Action, "container", msg.Actor.ID)
			s.notify()
		}
	}
}

func (s *DockerSource) notify() {
	s.mu.Lock()
	handlers := make([]func(), len(s.handlers))
	copy(handlers, s.handlers)
	s.mu.Unlock()
	for _, h := range handlers {
		h()
	}
}

// domainsFromLabels reads the plain and indexed domain labels. Indexed labels
// are read from -0 upward and stop at the first gap.
func domainsFromLabels(labels map[string]string) []string {
	var raw []string
	if v, ok := labels[LabelDomain]; ok {
		raw = append(raw, v)
	}
	for i := 0; ; i++ {
		v, ok := labels[fmt.Sprintf("%s-%d", LabelDomain, i)]
		if !ok {
			break
		}
		raw = append(raw, v)
	}
	var out []string
	for _, v := range raw {
		out = append(out, SplitDomains(v)...)
	}
	return Dedupe(out)
}
