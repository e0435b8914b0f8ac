package calls

import (
	"context"

	"go.uber.org/multierr"
)

// MultiJournal fans a transition out to several journals, collecting every failure.
type MultiJournal []Journal

// Record implements Journal.
func (m MultiJournal) Record(ctx context.Context, call Call) error {
	var err error
	for _, j := range m {
		if j == nil {
			continue
		}
		err = multierr.Append(err, j.Record(ctx, call))
	}
	return err
}
