package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	require.Equal(t, "atlases", cfg.Assets.Root)
	require.Equal(t, "MNI152_T1_1mm_brain.nii.gz", cfg.Assets.Template)
	require.Equal(t, "Hammers_mith-n30r95-MaxProbMap-full-MNI152-SPM12_resamp.nii.gz", cfg.Assets.Labels)
	require.Equal(t, 6, cfg.Registration.DOF)
	require.Equal(t, "mutualinfo", cfg.Registration.Cost)
	require.Equal(t, "linear", cfg.Registration.NonlinearInterp)
	require.Equal(t, "spline", cfg.Registration.TemplateInterp)
	require.True(t, cfg.Output.Manifest)
	require.True(t, cfg.Output.VerifyLabels)
	require.False(t, cfg.Tracing.Enabled)
	require.GreaterOrEqual(t, cfg.Batch.Jobs, 1)

	require.NoError(t, cfg.Validate())
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"dof", func(c *Config) { c.Registration.DOF = 8 }, "registration.dof 8"},
		{"cost", func(c *Config) { c.Registration.Cost = "ssd" }, `registration.cost "ssd"`},
		{"fnirt interp", func(c *Config) { c.Registration.NonlinearInterp = "nn" }, "registration.nonlinear_interp"},
		{"missing tool", func(c *Config) { c.Tools.InvWarp = "" }, "tools.invwarp is required"},
		{"viewer", func(c *Config) { c.Tools.Viewer = "" }, "tools.viewer is required"},
		{"asset root", func(c *Config) { c.Assets.Root = "" }, "assets.root is required"},
		{"log level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"jobs", func(c *Config) { c.Batch.Jobs = 0 }, "batch.jobs must be at least 1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			require.True(t, errors.Is(err, ErrInvalid))
			require.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidate_ViewerNotNeededWhenDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Output.Viewer = false
	cfg.Tools.Viewer = ""
	require.NoError(t, cfg.Validate())
}

func TestCreateDefaultConfigFile_LoadsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "atlasreg.yaml")
	require.NoError(t, CreateDefaultConfigFile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "template_interp: spline")
	require.Contains(t, string(data), "otlp_endpoint: localhost:4317")

	v := viper.New()
	SetDefaults(v)
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())

	cfg, err := Load(v)
	require.NoError(t, err)
	require.Equal(t, DefaultConfig().Registration, cfg.Registration)
	require.Equal(t, DefaultConfig().Assets, cfg.Assets)
}

func TestLoad_OverridesFromFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "atlasreg.yaml")
	content := `
assets:
  root: /opt/atlases
registration:
  dof: 12
output:
  viewer: false
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	t.Setenv("ATLASREG_REGISTRATION_COST", "normmi")

	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix("ATLASREG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())

	cfg, err := Load(v)
	require.NoError(t, err)
	require.Equal(t, "/opt/atlases", cfg.Assets.Root)
	require.Equal(t, 12, cfg.Registration.DOF)
	require.Equal(t, "normmi", cfg.Registration.Cost)
	require.False(t, cfg.Output.Viewer)
	// untouched keys keep their defaults
	require.Equal(t, DefaultTemplate, cfg.Assets.Template)
	require.Equal(t, "spline", cfg.Registration.TemplateInterp)
}

func TestLoad_InvalidValue(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set("registration.dof", 5)

	_, err := Load(v)
	require.ErrorIs(t, err, ErrInvalid)
}
