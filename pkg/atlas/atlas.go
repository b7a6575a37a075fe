// Package atlas resolves the bundled MNI template and Hammers label volume.
package atlas

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"atlasreg/internal/models"
	"atlasreg/pkg/config"
)

// ErrAssetMissing indicates a bundled volume is not where the config says.
var ErrAssetMissing = errors.New("bundled atlas asset missing")

// Assets are the absolute locations of the bundled volumes.
type Assets struct {
	Template models.Volume
	Labels   models.Volume
}

// Resolve turns the configured asset root into absolute paths and checks
// that both volumes exist. It is called once at startup.
func Resolve(cfg config.Assets) (Assets, error) {
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return Assets{}, fmt.Errorf("resolve asset root %q: %w", cfg.Root, err)
	}

	template := filepath.Join(root, cfg.Template)
	labels := filepath.Join(root, cfg.Labels)

	for _, p := range []string{labels, template} {
		info, err := os.Stat(p)
		if err != nil {
			return Assets{}, fmt.Errorf("%w: %s", ErrAssetMissing, p)
		}
		if info.IsDir() {
			return Assets{}, fmt.Errorf("%w: %s is a directory", ErrAssetMissing, p)
		}
	}

	return Assets{
		Template: models.NewVolume(template, models.KindIntensity),
		Labels:   models.NewVolume(labels, models.KindLabel),
	}, nil
}
