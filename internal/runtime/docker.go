package runtime

import (
	"context"
	"errors"
	"fmt"

	"github.com/docker/docker/client"
	"github.com/rs/zerolog"
)

// ErrConnect wraps failures to reach the container runtime at startup.
var ErrConnect = errors.New("connect to container runtime")

// Docker probes and samples containers through the Docker Engine API.
type Docker struct {
	api    *client.Client
	logger zerolog.Logger
}

// NewDocker connects to the Docker daemon and verifies it answers a ping.
// The connection honours DOCKER_HOST and friends; opts are applied after
// the environment so callers can point it elsewhere.
func NewDocker(ctx context.Context, logger zerolog.Logger, opts ...client.Opt) (*Docker, error) {
	base := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	api, err := client.NewClientWithOpts(append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnect, err)
	}

	if _, err := api.Ping(ctx); err != nil {
		_ = api.Close()
		return nil, fmt.Errorf("%w: %w", ErrConnect, err)
	}

	logger.Debug().
		Str("host", api.DaemonHost()).
		Str("api_version", api.ClientVersion()).
		Msg("connected to container runtime")

	return &Docker{api: api, logger: logger}, nil
}

// Close releases the underlying client.
func (d *Docker) Close() error {
	return d.api.Close()
}
