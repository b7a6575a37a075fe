// Package config provides configuration loading and management for atlasreg.
// It defines the YAML configuration layout, its default values and validation.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"atlasreg/pkg/tracing"
)

// Bundled atlas file names
const (
	DefaultTemplate = "MNI152_T1_1mm_brain.nii.gz"
	DefaultLabels   = "Hammers_mith-n30r95-MaxProbMap-full-MNI152-SPM12_resamp.nii.gz"
)

// Values accepted by FSL
var (
	ValidDOF             = []int{6, 7, 9, 12}
	ValidCosts           = []string{"mutualinfo", "corratio", "normcorr", "normmi", "leastsq", "labeldiff", "bbr"}
	ValidNonlinearInterp = []string{"linear", "spline"}
	ValidLogLevels       = []string{"trace", "debug", "info", "warn", "warning", "error"}
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Assets locates the bundled template and atlas
type Assets struct {
	// Root is the directory holding the bundled volumes
	Root string `yaml:"root" mapstructure:"root"`

	// Template is the MNI brain template file name inside Root
	Template string `yaml:"template" mapstructure:"template"`

	// Labels is the Hammers label volume file name inside Root
	Labels string `yaml:"labels" mapstructure:"labels"`
}

// Tools names the external executables
type Tools struct {
	Flirt     string `yaml:"flirt" mapstructure:"flirt"`
	Fnirt     string `yaml:"fnirt" mapstructure:"fnirt"`
	InvWarp   string `yaml:"invwarp" mapstructure:"invwarp"`
	ApplyWarp string `yaml:"applywarp" mapstructure:"applywarp"`

	// Convert turns native containers (nrrd, mha, ...) into .nii.gz
	Convert string `yaml:"convert" mapstructure:"convert"`

	// Viewer displays the results
	Viewer string `yaml:"viewer" mapstructure:"viewer"`
}

// Registration holds the tool parameters
type Registration struct {
	// DOF is the degrees of freedom of the affine step, 6 is rigid-body
	DOF int `yaml:"dof" mapstructure:"dof"`

	// Cost is the flirt cost function
	Cost string `yaml:"cost" mapstructure:"cost"`

	// NonlinearInterp is the fnirt interpolation
	NonlinearInterp string `yaml:"nonlinear_interp" mapstructure:"nonlinear_interp"`

	// TemplateInterp is used when warping the template into subject space.
	// The atlas is always warped with nearest-neighbour interpolation.
	TemplateInterp string `yaml:"template_interp" mapstructure:"template_interp"`
}

// Output controls what happens after the atlas is transferred
type Output struct {
	// Viewer launches the external viewer on the results
	Viewer bool `yaml:"viewer" mapstructure:"viewer"`

	// Manifest writes manifest.yaml into the output directory
	Manifest bool `yaml:"manifest" mapstructure:"manifest"`

	// VerifyLabels compares label sets of the atlas and the warped atlas
	VerifyLabels bool `yaml:"verify_labels" mapstructure:"verify_labels"`

	// RequireAllLabels fails the run when a label vanishes during warping
	RequireAllLabels bool `yaml:"require_all_labels" mapstructure:"require_all_labels"`
}

// Logging configures the logger
type Logging struct {
	Level string `yaml:"level" mapstructure:"level"`
	JSON  bool   `yaml:"json" mapstructure:"json"`

	// File additionally sends logs to a rotating file when set
	File    string `yaml:"file" mapstructure:"file"`
	MaxSize int    `yaml:"max_size" mapstructure:"max_size"` // megabytes
	MaxAge  int    `yaml:"max_age" mapstructure:"max_age"`   // days
}

// Batch configures multi-subject runs
type Batch struct {
	// Jobs is how many subjects are registered concurrently
	Jobs int `yaml:"jobs" mapstructure:"jobs"`
}

// Config represents the application configuration loaded from YAML
type Config struct {
	Assets       Assets         `yaml:"assets" mapstructure:"assets"`
	Tools        Tools          `yaml:"tools" mapstructure:"tools"`
	Registration Registration   `yaml:"registration" mapstructure:"registration"`
	Output       Output         `yaml:"output" mapstructure:"output"`
	Logging      Logging        `yaml:"logging" mapstructure:"logging"`
	Tracing      tracing.Config `yaml:"tracing" mapstructure:"tracing"`
	Batch        Batch          `yaml:"batch" mapstructure:"batch"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Assets.Root = "atlases"
	cfg.Assets.Template = DefaultTemplate
	cfg.Assets.Labels = DefaultLabels

	cfg.Tools.Flirt = "flirt"
	cfg.Tools.Fnirt = "fnirt"
	cfg.Tools.InvWarp = "invwarp"
	cfg.Tools.ApplyWarp = "applywarp"
	cfg.Tools.Convert = "crlConvertBetweenFileFormats"
	cfg.Tools.Viewer = "itksnap"

	// Rigid-body with mutual information, robust across contrasts
	cfg.Registration.DOF = 6
	cfg.Registration.Cost = "mutualinfo"
	cfg.Registration.NonlinearInterp = "linear"
	cfg.Registration.TemplateInterp = "spline"

	cfg.Output.Viewer = true
	cfg.Output.Manifest = true
	cfg.Output.VerifyLabels = true

	cfg.Logging.Level = "info"
	cfg.Logging.MaxSize = 10
	cfg.Logging.MaxAge = 30

	cfg.Tracing = tracing.DefaultConfig()

	cfg.Batch.Jobs = runtime.NumCPU()

	return cfg
}

// SetDefaults registers every default value with v so that config files,
// environment variables and flags only need to override what they change.
func SetDefaults(v *viper.Viper) {
	d := DefaultConfig()

	v.SetDefault("assets.root", d.Assets.Root)
	v.SetDefault("assets.template", d.Assets.Template)
	v.SetDefault("assets.labels", d.Assets.Labels)

	v.SetDefault("tools.flirt", d.Tools.Flirt)
	v.SetDefault("tools.fnirt", d.Tools.Fnirt)
	v.SetDefault("tools.invwarp", d.Tools.InvWarp)
	v.SetDefault("tools.applywarp", d.Tools.ApplyWarp)
	v.SetDefault("tools.convert", d.Tools.Convert)
	v.SetDefault("tools.viewer", d.Tools.Viewer)

	v.SetDefault("registration.dof", d.Registration.DOF)
	v.SetDefault("registration.cost", d.Registration.Cost)
	v.SetDefault("registration.nonlinear_interp", d.Registration.NonlinearInterp)
	v.SetDefault("registration.template_interp", d.Registration.TemplateInterp)

	v.SetDefault("output.viewer", d.Output.Viewer)
	v.SetDefault("output.manifest", d.Output.Manifest)
	v.SetDefault("output.verify_labels", d.Output.VerifyLabels)
	v.SetDefault("output.require_all_labels", d.Output.RequireAllLabels)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.json", d.Logging.JSON)
	v.SetDefault("logging.file", d.Logging.File)
	v.SetDefault("logging.max_size", d.Logging.MaxSize)
	v.SetDefault("logging.max_age", d.Logging.MaxAge)

	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.exporter", d.Tracing.Exporter)
	v.SetDefault("tracing.file_path", d.Tracing.FilePath)
	v.SetDefault("tracing.otlp_endpoint", d.Tracing.OTLPEndpoint)
	v.SetDefault("tracing.sample_rate", d.Tracing.SampleRate)
	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)

	v.SetDefault("batch.jobs", d.Batch.Jobs)
}

// Load reads the configuration held by v on top of the defaults
func Load(v *viper.Viper) (*Config, error) {
	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error decoding configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every value the pipeline hands to a tool
func (c *Config) Validate() error {
	var errs []error

	if c.Assets.Root == "" {
		errs = append(errs, fmt.Errorf("assets.root is required"))
	}
	if c.Assets.Template == "" || c.Assets.Labels == "" {
		errs = append(errs, fmt.Errorf("assets.template and assets.labels are required"))
	}

	tools := map[string]string{
		"flirt":     c.Tools.Flirt,
		"fnirt":     c.Tools.Fnirt,
		"invwarp":   c.Tools.InvWarp,
		"applywarp": c.Tools.ApplyWarp,
		"convert":   c.Tools.Convert,
	}
	for _, key := range []string{"flirt", "fnirt", "invwarp", "applywarp", "convert"} {
		if tools[key] == "" {
			errs = append(errs, fmt.Errorf("tools.%s is required", key))
		}
	}
	if c.Output.Viewer && c.Tools.Viewer == "" {
		errs = append(errs, fmt.Errorf("tools.viewer is required when output.viewer is set"))
	}

	if !slices.Contains(ValidDOF, c.Registration.DOF) {
		errs = append(errs, fmt.Errorf("registration.dof %d not one of %v", c.Registration.DOF, ValidDOF))
	}
	if !slices.Contains(ValidCosts, c.Registration.Cost) {
		errs = append(errs, fmt.Errorf("registration.cost %q not one of %v", c.Registration.Cost, ValidCosts))
	}
	if !slices.Contains(ValidNonlinearInterp, c.Registration.NonlinearInterp) {
		errs = append(errs, fmt.Errorf("registration.nonlinear_interp %q not one of %v",
			c.Registration.NonlinearInterp, ValidNonlinearInterp))
	}
	// template_interp is validated by the resampling step, which owns the set

	if !slices.Contains(ValidLogLevels, c.Logging.Level) {
		errs = append(errs, fmt.Errorf("logging.level %q not one of %v", c.Logging.Level, ValidLogLevels))
	}
	if c.Batch.Jobs < 1 {
		errs = append(errs, fmt.Errorf("batch.jobs must be at least 1, got %d", c.Batch.Jobs))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	return SaveConfig(DefaultConfig(), configPath)
}
