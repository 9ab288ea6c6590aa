package scene

import (
	"context"
	"runtime"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"

	"github.com/RR-2000/4DGaussians/camera"
)

// recordTask produces one immutable camera record; image decoding dominates
// scene-load wall clock, so tasks fan out over a bounded worker pool. A
// failed load for one frame fails the whole scene load.
type recordTask func(ctx context.Context) (*camera.Record, error)

func loadRecords(ctx context.Context, workers int, tasks []recordTask) ([]*camera.Record, error) {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	records := make([]*camera.Record, len(tasks))
	sem := make(chan struct{}, workers)

	var wg sync.WaitGroup
	var errMu sync.Mutex
	var loadErrs error
	storeErr := func(err error) {
		errMu.Lock()
		defer errMu.Unlock()
		if !errors.Is(err, context.Canceled) {
			loadErrs = multierr.Combine(loadErrs, err)
		}
	}

	for i, task := range tasks {
		i, task := i, task
		wg.Add(1)
		utils.PanicCapturingGo(func() {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			defer func() { <-sem }()
			rec, err := task(ctx)
			if err != nil {
				storeErr(err)
				cancel()
				return
			}
			records[i] = rec
		})
	}
	wg.Wait()

	if loadErrs != nil {
		return nil, loadErrs
	}
	for i, rec := range records {
		if rec == nil {
			return nil, errors.Wrapf(ctx.Err(), "camera %d not loaded", i)
		}
		if err := rec.CheckValid(); err != nil {
			return nil, err
		}
	}
	return records, nil
}
