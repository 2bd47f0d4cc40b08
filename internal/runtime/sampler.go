package runtime

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/pkg/stdcopy"
)

// Sample returns up to maxLines of the most recent log records, each
// prefixed with its emission timestamp, oldest first. Retrieval failures
// are folded into the returned text as a single line.
func (d *Docker) Sample(ctx context.Context, name string, maxLines int) string {
	text, err := d.logs(ctx, name, maxLines)
	if err != nil {
		d.logger.Warn().Err(err).Str("target", name).Msg("log retrieval failed")
		return fmt.Sprintf("Error retrieving logs: %v", err)
	}
	return text
}

func (d *Docker) logs(ctx context.Context, name string, maxLines int) (string, error) {
	rc, err := d.api.ContainerLogs(ctx, name, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Timestamps: true,
		Tail:       strconv.Itoa(maxLines),
	})
	if err != nil {
		return "", err
	}
	defer func() { _ = rc.Close() }()

	raw, err := io.ReadAll(rc)
	if err != nil {
		return "", fmt.Errorf("read log stream: %w", err)
	}

	return demux(raw)
}

// demux strips the stdout/stderr framing the daemon adds for containers
// started without a TTY. TTY containers stream raw bytes.
func demux(raw []byte) (string, error) {
	if !multiplexed(raw) {
		return string(raw), nil
	}

	var out bytes.Buffer
	if _, err := stdcopy.StdCopy(&out, &out, bytes.NewReader(raw)); err != nil {
		return "", fmt.Errorf("demultiplex log stream: %w", err)
	}
	return out.String(), nil
}

// multiplexed reports whether raw starts with a stdcopy frame header:
// a stream byte (0-3), three zero bytes, then a big-endian length.
func multiplexed(raw []byte) bool {
	if len(raw) < 8 {
		return false
	}
	if raw[0] > byte(stdcopy.Systemerr) {
		return false
	}
	return raw[1] == 0 && raw[2] == 0 && raw[3] == 0
}
