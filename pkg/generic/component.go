package generic

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/netplatform/pmon-go/pkg/descriptor"
	"github.com/netplatform/pmon-go/pkg/platform"
	"github.com/netplatform/pmon-go/pkg/sysfs"
)

// ImageResolver turns an image reference into a local file path.
type ImageResolver interface {
	Resolve(ctx context.Context, image string) (string, error)
}

type component struct {
	r      *Reader
	spec   descriptor.ComponentSpec
	images ImageResolver
	logger *slog.Logger
}

func (c *component) Name() string        { return c.spec.Name }
func (c *component) Description() string { return c.spec.Description }

func (c *component) FirmwareVersion(ctx context.Context) (string, error) {
	return c.r.String(ctx, c.spec.Version)
}

// InstallFirmware resolves image, downloading remote images, and runs the
// install command with {image} replaced by the local path.
func (c *component) InstallFirmware(ctx context.Context, image string) error {
	if len(c.spec.Install) == 0 {
		return fmt.Errorf("%s firmware install: %w", c.spec.Name, platform.ErrNotSupported)
	}
	path := image
	if c.images != nil {
		var err error
		if path, err = c.images.Resolve(ctx, image); err != nil {
			return err
		}
	}

	args := make([]string, len(c.spec.Install))
	for n, a := range c.spec.Install {
		args[n] = sysfs.Expand(a, map[string]any{"image": path})
	}
	c.logger.Info("installing firmware", "component", c.spec.Name, "image", path)
	if _, err := c.r.Runner.Run(ctx, args[0], args[1:]...); err != nil {
		return fmt.Errorf("%s firmware install: %w", c.spec.Name, err)
	}
	return nil
}
