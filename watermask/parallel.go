package watermask

import (
	"runtime"

	"golang.org/x/sync/errgroup"
)

// parallelFor splits [0, total) into numThreads contiguous chunks of size
// total/numThreads (the remainder goes to the last chunk) and runs worker
// once per chunk on its own goroutine.
//
// numThreads == 1 runs worker(0, total) synchronously in the caller.
// numThreads == 0 substitutes runtime.NumCPU(). The count is clamped so no
// more workers than items are spawned.
//
// All workers run to completion even when some fail; errors are recorded per
// chunk and the first non-nil error in chunk order is returned, so the
// reported failure does not depend on goroutine scheduling.
func parallelFor(worker func(start, end int) error, total, numThreads int) error {
	if numThreads == 1 {
		return worker(0, total)
	}
	if numThreads <= 0 {
		numThreads = runtime.NumCPU()
	}
	if numThreads > total {
		numThreads = total
	}
	if numThreads == 0 {
		return nil
	}

	errs := make([]error, numThreads)
	chunk := total / numThreads

	var g errgroup.Group
	start := 0
	for i := range numThreads {
		end := start + chunk
		if i == numThreads-1 {
			end = total
		}
		i, start, end := i, start, end
		g.Go(func() error {
			errs[i] = worker(start, end)
			return errs[i]
		})
		start += chunk
	}
	// Wait joins every worker; its first-error return is scheduling
	// dependent, so the chunk-ordered scan below decides what surfaces.
	_ = g.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
