package aggregate

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/jgoulah/usagereports/pkg/models"
	"go.uber.org/zap"
)

// Emitter receives a dataset's complete report set
type Emitter interface {
	Emit(ctx context.Context, rep *DatasetReport) error
}

// Job is one dataset and its participating organizations
type Job struct {
	Dataset       models.Dataset
	Organizations []models.Organization
}

// Outcome is the result of processing one job
type Outcome struct {
	Dataset  models.Dataset
	Report   *DatasetReport // nil when processing failed
	Err      error
	Duration time.Duration
}

// Run processes jobs one after another. A failing dataset is logged and
// recorded in its Outcome; the remaining datasets still run. Cancellation
// stops the run before the next dataset, and nothing is emitted for a
// dataset that did not finish.
func (e *Engine) Run(ctx context.Context, jobs []Job, emitter Emitter) []Outcome {
	outcomes := make([]Outcome, 0, len(jobs))
	for _, job := range jobs {
		if err := ctx.Err(); err != nil {
			e.log.Warn("run interrupted", zap.String("next_dataset", job.Dataset.Name), zap.Error(err))
			break
		}

		start := time.Now()
		rep, err := e.processSafely(ctx, job)
		if err == nil && emitter != nil {
			if emitErr := emitter.Emit(ctx, rep); emitErr != nil {
				err = fmt.Errorf("emitting %s: %w", job.Dataset.Name, emitErr)
			}
		}

		out := Outcome{Dataset: job.Dataset, Report: rep, Err: err, Duration: time.Since(start)}
		if err != nil {
			e.log.Error("dataset failed", zap.String("dataset", job.Dataset.Name), zap.Error(err))
		} else {
			e.log.Info("completed dataset", zap.String("dataset", job.Dataset.Name), zap.Duration("took", out.Duration))
		}
		outcomes = append(outcomes, out)
	}
	return outcomes
}

func (e *Engine) processSafely(ctx context.Context, job Job) (rep *DatasetReport, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("panic while processing dataset",
				zap.String("dataset", job.Dataset.Name),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
			rep = nil
			err = fmt.Errorf("processing %s: panic: %v", job.Dataset.Name, r)
		}
	}()
	return e.Process(ctx, job.Dataset, job.Organizations)
}
