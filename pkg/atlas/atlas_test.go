package atlas

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"atlasreg/internal/models"
	"atlasreg/pkg/config"
)

func writeAssets(t *testing.T, root string, names ...string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(root, 0755))
	for _, n := range names {
		require.NoError(t, os.WriteFile(filepath.Join(root, n), []byte("vol"), 0644))
	}
}

func TestResolve(t *testing.T) {
	root := filepath.Join(t.TempDir(), "atlases")
	cfg := config.DefaultConfig().Assets
	cfg.Root = root
	writeAssets(t, root, cfg.Template, cfg.Labels)

	assets, err := Resolve(cfg)
	require.NoError(t, err)

	require.Equal(t, filepath.Join(root, cfg.Template), assets.Template.Path)
	require.Equal(t, models.KindIntensity, assets.Template.Kind)
	require.Equal(t, models.FormatCanonical, assets.Template.Format)

	require.Equal(t, filepath.Join(root, cfg.Labels), assets.Labels.Path)
	require.Equal(t, models.KindLabel, assets.Labels.Kind)
}

func TestResolve_RelativeRootBecomesAbsolute(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg := config.DefaultConfig().Assets
	writeAssets(t, filepath.Join(dir, "atlases"), cfg.Template, cfg.Labels)

	assets, err := Resolve(cfg)
	require.NoError(t, err)
	require.True(t, filepath.IsAbs(assets.Template.Path))
	require.True(t, filepath.IsAbs(assets.Labels.Path))
}

func TestResolve_MissingAsset(t *testing.T) {
	root := t.TempDir()
	cfg := config.DefaultConfig().Assets
	cfg.Root = root

	writeAssets(t, root, cfg.Template)
	_, err := Resolve(cfg)
	require.ErrorIs(t, err, ErrAssetMissing)
	require.Contains(t, err.Error(), cfg.Labels)

	require.NoError(t, os.Remove(filepath.Join(root, cfg.Template)))
	writeAssets(t, root, cfg.Labels)
	_, err = Resolve(cfg)
	require.ErrorIs(t, err, ErrAssetMissing)
	require.Contains(t, err.Error(), cfg.Template)
}
