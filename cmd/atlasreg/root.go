package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"atlasreg/internal/logging"
	"atlasreg/pkg/atlas"
	"atlasreg/pkg/config"
	"atlasreg/pkg/pipeline"
	"atlasreg/pkg/runner"
	"atlasreg/pkg/tracing"
)

// DefaultConfigFile is looked up in the working directory when --config is
// not given.
const DefaultConfigFile = "atlasreg.yaml"

var version = "dev"

// app carries what every subcommand needs once the configuration is loaded.
type app struct {
	v       *viper.Viper
	cfgFile string

	cfg    *config.Config
	log    *logrus.Logger
	tracer *tracing.Provider
	runner runner.Runner

	cleanup func()
}

func newApp() *app {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	return &app{v: viper.New(), log: log, cleanup: func() {}}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "atlasreg",
		Short: "Register a T1 volume to MNI space and carry the Hammers atlas into it",
		Long: `atlasreg aligns a subject T1 volume to the MNI152 template with FSL
(flirt, fnirt), inverts the resulting warp and resamples both the template and
the Hammers label atlas into the subject's native space.`,
		Version:           version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		RunE:              a.runSingle,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&a.cfgFile, "config", "c", "", "config file (default: ./"+DefaultConfigFile+" or ~/.config/atlasreg/config.yaml)")
	pf.String("asset-root", "", "directory holding the bundled template and atlas")
	pf.String("log-level", "", "log level (trace, debug, info, warn, error)")
	pf.String("log-file", "", "also write logs to this rotating file")
	pf.Bool("no-viewer", false, "do not launch the viewer when done")

	_ = a.v.BindPFlag("assets.root", pf.Lookup("asset-root"))
	_ = a.v.BindPFlag("logging.level", pf.Lookup("log-level"))
	_ = a.v.BindPFlag("logging.file", pf.Lookup("log-file"))

	root.Flags().String("t1", "", "subject T1 volume (.nii.gz, .nii, .nrrd, .nhdr, .mha, .mhd)")
	root.Flags().String("outdir", "", "output directory, created if missing")
	_ = root.MarkFlagRequired("t1")
	_ = root.MarkFlagRequired("outdir")

	root.AddCommand(newBatchCmd(a), newConfigCmd(a))
	return root
}

// loadConfig reads the config file, ATLASREG_* environment variables and
// bound flags on top of the defaults.
func (a *app) loadConfig() error {
	config.SetDefaults(a.v)
	a.v.SetEnvPrefix("ATLASREG")
	a.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	a.v.AutomaticEnv()

	if a.cfgFile != "" {
		a.v.SetConfigFile(a.cfgFile)
	} else if _, err := os.Stat(DefaultConfigFile); err == nil {
		a.v.SetConfigFile(DefaultConfigFile)
	} else {
		home, _ := os.UserHomeDir()
		a.v.AddConfigPath(filepath.Join(home, ".config", "atlasreg"))
		a.v.SetConfigName("config")
		a.v.SetConfigType("yaml")
	}

	if err := a.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg, err := config.Load(a.v)
	if err != nil {
		return err
	}
	a.cfg = cfg
	return nil
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	if err := a.loadConfig(); err != nil {
		return err
	}
	if noViewer, _ := cmd.Flags().GetBool("no-viewer"); noViewer {
		a.cfg.Output.Viewer = false
	}

	log, closeLog, err := logging.New(a.cfg.Logging, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	a.log = log

	tp, err := tracing.NewProvider(a.cfg.Tracing)
	if err != nil {
		closeLog()
		return fmt.Errorf("error creating tracer: %w", err)
	}
	a.tracer = tp
	if tp.Enabled() {
		log.WithFields(logrus.Fields{
			"exporter": a.cfg.Tracing.Exporter,
			"path":     a.cfg.Tracing.FilePath,
		}).Debug("tracing enabled")
	}

	if a.runner == nil {
		a.runner = runner.NewExecRunner(log)
	}

	a.cleanup = func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			log.WithError(err).Warn("could not flush traces")
		}
		closeLog()
	}

	if path := a.v.ConfigFileUsed(); path != "" {
		log.WithField("path", path).Debug("loaded config")
	}
	return nil
}

// teardown flushes traces and closes the log file. It is safe to call more
// than once.
func (a *app) teardown() {
	a.cleanup()
	a.cleanup = func() {}
}

func (a *app) deps() pipeline.Deps {
	return pipeline.Deps{Runner: a.runner, Log: a.log, Tracer: a.tracer.Tracer()}
}

func (a *app) runSingle(cmd *cobra.Command, _ []string) error {
	t1, _ := cmd.Flags().GetString("t1")
	outDir, _ := cmd.Flags().GetString("outdir")

	assets, err := atlas.Resolve(a.cfg.Assets)
	if err != nil {
		return err
	}

	p := pipeline.New(pipeline.Params{
		T1:          t1,
		OutputDir:   outDir,
		Config:      a.cfg,
		Assets:      assets,
		Interactive: true,
	}, a.deps())

	res, err := p.Process(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Registration completed in %s\n", res.Finished.Sub(res.Started).Round(time.Second))
	fmt.Fprintf(out, "Template in subject space: %s\n", res.TemplateInSubject.Path)
	fmt.Fprintf(out, "Atlas in subject space:    %s\n", res.LabelsInSubject.Path)
	if res.ManifestPath != "" {
		fmt.Fprintf(out, "Manifest:                  %s\n", res.ManifestPath)
	}
	return nil
}
