package runtime

import (
	"context"

	"github.com/docker/docker/client"
)

// Status looks the target up by name. A lookup miss is NotFound, not an
// error; any other client failure becomes ProbeError and is not retried.
func (d *Docker) Status(ctx context.Context, name string) Status {
	info, err := d.api.ContainerInspect(ctx, name)
	if err != nil {
		if client.IsErrNotFound(err) {
			return NotFound()
		}
		d.logger.Debug().Err(err).Str("target", name).Msg("status probe failed")
		return ProbeError(err.Error())
	}

	if info.State == nil {
		return ProbeError("runtime returned no state")
	}

	state := string(info.State.Status)
	if state == "running" {
		return Running()
	}
	return NotRunning(state)
}
