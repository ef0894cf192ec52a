package engine

import (
	"context"

	logx "livecast/pkg/logx"
)

// DryRun accepts every request without transmitting anything.
type DryRun struct {
	log logx.Logger
}

func NewDryRun(log logx.Logger) *DryRun { return &DryRun{log: log} }

func (d *DryRun) Start(_ context.Context, id string) error {
	d.log.Info("dry-run start", logx.String("id", id))
	return nil
}

func (d *DryRun) Stop(_ context.Context, id string) error {
	d.log.Info("dry-run stop", logx.String("id", id))
	return nil
}
