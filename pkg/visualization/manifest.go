// Package visualization presents the results of a pipeline run, either by
// launching an external viewer or by writing a manifest of every artifact.
package visualization

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"atlasreg/pkg/labels"
)

// ManifestName is the file name of the manifest inside the output directory
const ManifestName = "manifest.yaml"

// Artifacts lists every file a run produced or copied
type Artifacts struct {
	T1                string `yaml:"t1"`
	Template          string `yaml:"template"`
	Labels            string `yaml:"labels"`
	AffineMatrix      string `yaml:"affine_matrix"`
	AffineRegistered  string `yaml:"affine_registered"`
	NonlinRegistered  string `yaml:"nonlinear_registered"`
	Warp              string `yaml:"warp"`
	InverseWarp       string `yaml:"inverse_warp"`
	TemplateInSubject string `yaml:"template_in_subject"`
	LabelsInSubject   string `yaml:"labels_in_subject"`
}

// StepTiming records how long one pipeline step took
type StepTiming struct {
	Step     string        `yaml:"step"`
	Duration time.Duration `yaml:"duration"`
}

// Manifest describes one completed run
type Manifest struct {
	RunID     string         `yaml:"run_id"`
	Subject   string         `yaml:"subject"`
	Input     string         `yaml:"input"`
	OutputDir string         `yaml:"output_dir"`
	Started   time.Time      `yaml:"started"`
	Finished  time.Time      `yaml:"finished"`
	Converted bool           `yaml:"converted"`
	Artifacts Artifacts      `yaml:"artifacts"`
	Steps     []StepTiming   `yaml:"steps"`
	Labels    *labels.Report `yaml:"labels,omitempty"`
}

// WriteManifest writes m as YAML into dir and returns the file path
func WriteManifest(dir string, m *Manifest) (string, error) {
	data, err := yaml.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("error marshaling manifest: %w", err)
	}

	path := filepath.Join(dir, ManifestName)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("error writing manifest: %w", err)
	}
	return path, nil
}
