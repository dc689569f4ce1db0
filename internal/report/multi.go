package report

import (
	"context"
	"errors"
	"fmt"

	"github.com/jgoulah/usagereports/internal/aggregate"
)

// NamedEmitter pairs an emitter with the name used in error messages
type NamedEmitter struct {
	Name    string
	Emitter aggregate.Emitter
}

// Multi fans a report out to several emitters. Every emitter is tried even
// when an earlier one fails; the failures are joined.
type Multi []NamedEmitter

func (m Multi) Emit(ctx context.Context, rep *aggregate.DatasetReport) error {
	var errs []error
	for _, ne := range m {
		if ne.Emitter == nil {
			continue
		}
		if err := ne.Emitter.Emit(ctx, rep); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", ne.Name, err))
		}
	}
	return errors.Join(errs...)
}
