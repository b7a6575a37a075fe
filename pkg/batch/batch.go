// Package batch registers many subjects concurrently.
//
// Subjects are read from a YAML list:
//
//	subjects:
//	  - id: sub01
//	    t1: scans/sub01.nii.gz
//	  - id: sub02
//	    t1: /data/sub02.nrrd
//
// Relative T1 paths are resolved against the directory of the list. Every
// subject is processed in <outroot>/<id>, never with the viewer.
package batch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"atlasreg/pkg/atlas"
	"atlasreg/pkg/config"
	"atlasreg/pkg/pipeline"
)

var (
	// ErrDuplicateSubject indicates two entries share an id.
	ErrDuplicateSubject = errors.New("duplicate subject id")

	// ErrInvalidSubject indicates an entry without id or T1, or with an id
	// that is not a plain directory name.
	ErrInvalidSubject = errors.New("invalid subject")
)

// Subject is one entry of a subject list.
type Subject struct {
	ID string `yaml:"id"`
	T1 string `yaml:"t1"`
}

type subjectList struct {
	Subjects []Subject `yaml:"subjects"`
}

// LoadSubjects reads and validates a subject list file.
func LoadSubjects(path string) ([]Subject, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading subject list: %w", err)
	}

	subjects, err := ParseSubjects(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	base := filepath.Dir(path)
	for i := range subjects {
		if !filepath.IsAbs(subjects[i].T1) {
			subjects[i].T1 = filepath.Join(base, subjects[i].T1)
		}
	}
	return subjects, nil
}

// ParseSubjects decodes a subject list and rejects empty, malformed or
// duplicate entries.
func ParseSubjects(data []byte) ([]Subject, error) {
	var list subjectList
	if err := yaml.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("error parsing subject list: %w", err)
	}
	if len(list.Subjects) == 0 {
		return nil, fmt.Errorf("%w: list is empty", ErrInvalidSubject)
	}

	seen := make(map[string]int, len(list.Subjects))
	for i, s := range list.Subjects {
		if s.ID == "" || s.T1 == "" {
			return nil, fmt.Errorf("%w: entry %d needs both id and t1", ErrInvalidSubject, i+1)
		}
		if s.ID == "." || s.ID == ".." || strings.ContainsAny(s.ID, `/\`) {
			return nil, fmt.Errorf("%w: id %q is not a directory name", ErrInvalidSubject, s.ID)
		}
		if prev, ok := seen[s.ID]; ok {
			return nil, fmt.Errorf("%w: %q (entries %d and %d)", ErrDuplicateSubject, s.ID, prev+1, i+1)
		}
		seen[s.ID] = i
	}
	return list.Subjects, nil
}

// Options configure a batch run.
type Options struct {
	OutRoot string
	Config  *config.Config
	Assets  atlas.Assets

	// Jobs bounds the number of concurrent subjects; values below one run
	// subjects one at a time.
	Jobs int
}

// Outcome is the result of one subject.
type Outcome struct {
	Subject Subject
	Result  *pipeline.Result
	Err     error
}

// Run processes subjects with at most opts.Jobs running at once. The first
// failure cancels subjects that have not finished; its error is returned.
// Outcomes are returned in list order for every subject that started.
func Run(ctx context.Context, subjects []Subject, opts Options, deps pipeline.Deps) ([]Outcome, error) {
	jobs := opts.Jobs
	if jobs < 1 {
		jobs = 1
	}
	log := deps.Log
	if log == nil {
		log = logrus.StandardLogger()
	}

	var (
		mu       sync.Mutex
		outcomes = make([]*Outcome, len(subjects))
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(jobs)

	for i, s := range subjects {
		i, s := i, s
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			subjectDeps := deps
			subjectDeps.Log = log.WithField("subject_id", s.ID)

			p := pipeline.New(pipeline.Params{
				T1:        s.T1,
				OutputDir: filepath.Join(opts.OutRoot, s.ID),
				Config:    opts.Config,
				Assets:    opts.Assets,
			}, subjectDeps)

			res, err := p.Process(ctx)

			mu.Lock()
			outcomes[i] = &Outcome{Subject: s, Result: res, Err: err}
			mu.Unlock()

			if err != nil {
				return fmt.Errorf("subject %s: %w", s.ID, err)
			}
			return nil
		})
	}

	err := g.Wait()

	var done []Outcome
	for _, o := range outcomes {
		if o != nil {
			done = append(done, *o)
		}
	}
	log.WithFields(logrus.Fields{"subjects": len(subjects), "finished": len(done)}).Info("batch complete")
	return done, err
}
