package batch

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"atlasreg/internal/logging"
	"atlasreg/pkg/atlas"
	"atlasreg/pkg/config"
	"atlasreg/pkg/naming"
	"atlasreg/pkg/pipeline"
	"atlasreg/pkg/runner"
	"atlasreg/pkg/runner/runnertest"
)

func TestParseSubjects(t *testing.T) {
	subjects, err := ParseSubjects([]byte(`
subjects:
  - id: sub01
    t1: scans/sub01.nii.gz
  - id: sub02
    t1: /data/sub02.nrrd
`))
	require.NoError(t, err)
	require.Equal(t, []Subject{
		{ID: "sub01", T1: "scans/sub01.nii.gz"},
		{ID: "sub02", T1: "/data/sub02.nrrd"},
	}, subjects)
}

func TestParseSubjects_Rejects(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		err  error
	}{
		{"empty", "subjects: []", ErrInvalidSubject},
		{"missing t1", "subjects:\n  - id: a\n", ErrInvalidSubject},
		{"missing id", "subjects:\n  - t1: a.nii.gz\n", ErrInvalidSubject},
		{"path id", "subjects:\n  - id: ../a\n    t1: a.nii.gz\n", ErrInvalidSubject},
		{"duplicate", "subjects:\n  - id: a\n    t1: a.nii.gz\n  - id: a\n    t1: b.nii.gz\n", ErrDuplicateSubject},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSubjects([]byte(tt.doc))
			require.ErrorIs(t, err, tt.err)
		})
	}
}

func TestLoadSubjects_ResolvesRelativePaths(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "subjects.yaml")
	require.NoError(t, os.WriteFile(path, []byte("subjects:\n  - id: a\n    t1: scans/a.nii.gz\n  - id: b\n    t1: /abs/b.nii.gz\n"), 0644))

	subjects, err := LoadSubjects(path)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "scans", "a.nii.gz"), subjects[0].T1)
	require.Equal(t, "/abs/b.nii.gz", subjects[1].T1)
}

type fixture struct {
	root     string
	cfg      *config.Config
	assets   atlas.Assets
	fake     *runnertest.Fake
	subjects []Subject
}

func newFixture(t *testing.T, ids ...string) *fixture {
	t.Helper()
	root := t.TempDir()

	cfg := config.DefaultConfig()
	cfg.Assets.Root = filepath.Join(root, "atlases")
	cfg.Output.VerifyLabels = false
	require.NoError(t, os.MkdirAll(cfg.Assets.Root, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Assets.Root, cfg.Assets.Template), []byte("mni"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Assets.Root, cfg.Assets.Labels), []byte("hammers"), 0644))
	assets, err := atlas.Resolve(cfg.Assets)
	require.NoError(t, err)

	var subjects []Subject
	for _, id := range ids {
		// every subject file is named T1 so outputs only differ by directory
		t1 := filepath.Join(root, "scans", id, "T1.nii.gz")
		require.NoError(t, os.MkdirAll(filepath.Dir(t1), 0755))
		require.NoError(t, os.WriteFile(t1, []byte(id), 0644))
		subjects = append(subjects, Subject{ID: id, T1: t1})
	}

	fake := runnertest.New()
	fake.Handle("flirt", func(c runner.Command) error {
		return runnertest.Touch(runnertest.ArgAfter(c, "-omat"))
	})
	fake.Handle("fnirt", func(c runner.Command) error {
		return runnertest.Touch(naming.WithSuffix(runnertest.ArgValue(c, "--in"), naming.SuffixWarpCoef))
	})
	for _, tool := range []string{"invwarp", "applywarp"} {
		fake.Handle(tool, func(c runner.Command) error {
			return runnertest.Touch(runnertest.ArgValue(c, "--out"))
		})
	}

	return &fixture{root: root, cfg: cfg, assets: assets, fake: fake, subjects: subjects}
}

func (f *fixture) run(jobs int) ([]Outcome, error) {
	return Run(context.Background(), f.subjects, Options{
		OutRoot: filepath.Join(f.root, "out"),
		Config:  f.cfg,
		Assets:  f.assets,
		Jobs:    jobs,
	}, pipeline.Deps{Runner: f.fake, Log: logging.Discard()})
}

func TestRun_EachSubjectInOwnDirectory(t *testing.T) {
	f := newFixture(t, "sub01", "sub02", "sub03")

	outcomes, err := f.run(2)
	require.NoError(t, err)
	require.Len(t, outcomes, 3)

	for i, o := range outcomes {
		require.NoError(t, o.Err)
		require.Equal(t, f.subjects[i], o.Subject)
		want := filepath.Join(f.root, "out", o.Subject.ID, "T1_hammers.nii.gz")
		require.Equal(t, want, o.Result.LabelsInSubject.Path)
		require.FileExists(t, want)
	}

	require.Len(t, f.fake.Runs(), 3*5)
	require.Empty(t, f.fake.Starts(), "batch runs never launch the viewer")
}

func TestRun_FailureIsReported(t *testing.T) {
	f := newFixture(t, "sub01")
	f.fake.Fail("flirt", 2)

	outcomes, err := f.run(1)
	require.ErrorIs(t, err, runner.ErrToolFailed)
	require.Contains(t, err.Error(), "sub01")
	require.Len(t, outcomes, 1)
	require.Error(t, outcomes[0].Err)
}

func TestRun_CancelledBeforeStart(t *testing.T) {
	f := newFixture(t, "sub01", "sub02")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcomes, err := Run(ctx, f.subjects, Options{
		OutRoot: filepath.Join(f.root, "out"),
		Config:  f.cfg,
		Assets:  f.assets,
		Jobs:    1,
	}, pipeline.Deps{Runner: f.fake, Log: logging.Discard()})
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, outcomes)
	require.Empty(t, f.fake.Runs())
}
