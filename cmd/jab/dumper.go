package main

import (
	"context"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/jab/internal/dump"
	"github.com/fyrsmithlabs/jab/internal/logging"
	"github.com/fyrsmithlabs/jab/internal/project"
)

// openFunc resolves a registered project by name.
type openFunc func(ctx context.Context, name string) (*project.Project, error)

// dumpProject dumps the database bound to project name.
func dumpProject(ctx context.Context, e *env, open openFunc, name string) ([]byte, error) {
	p, err := open(ctx, name)
	if err != nil {
		return nil, err
	}

	d, err := dump.ForURI(p.DBURI(), e.tools)
	if err != nil {
		return nil, err
	}

	data, err := d.Dump(ctx, p.DBURI())
	if err != nil {
		return nil, err
	}
	logging.FromContext(ctx).Debug(ctx, "dump ready", zap.Int("bytes", len(data)))
	return data, nil
}
