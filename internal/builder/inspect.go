package builder

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/docker/docker/client"
)

// inspectionTimeout bounds the docker inspect call.
const inspectionTimeout = 5 * time.Second

// DetectPort inspects a locally-built image and returns the port the
// application listens on, taken from EXPOSE directives or a PORT env var.
// Returns 0 when the image declares nothing; the caller decides the default.
func DetectPort(imageName string) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), inspectionTimeout)
	defer cancel()

	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return 0, fmt.Errorf("failed to create docker client: %w", err)
	}
	defer cli.Close()

	inspectData, _, err := cli.ImageInspectWithRaw(ctx, imageName)
	if err != nil {
		return 0, fmt.Errorf("failed to inspect image %s: %w", imageName, err)
	}

	if inspectData.Config == nil {
		return 0, nil
	}

	// EXPOSE directives first
	for portSpec := range inspectData.Config.ExposedPorts {
		// portSpec format: "8501/tcp"
		parts := strings.Split(string(portSpec), "/")
		if port, err := strconv.Atoi(parts[0]); err == nil && isValidPort(port) {
			return port, nil
		}
	}

	// PORT env var second
	for _, env := range inspectData.Config.Env {
		if strings.HasPrefix(env, "PORT=") {
			if port, err := strconv.Atoi(strings.TrimPrefix(env, "PORT=")); err == nil && isValidPort(port) {
				return port, nil
			}
		}
	}

	return 0, nil
}

func isValidPort(port int) bool {
	return port > 0 && port <= 65535
}
