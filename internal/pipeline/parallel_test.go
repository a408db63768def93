package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingProgress struct {
	mu       sync.Mutex
	started  int
	total    int
	last     int
	errors   int
	complete bool
}

func (c *countingProgress) OnStart(total int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started++
	c.total = total
}

func (c *countingProgress) OnProgress(current, _ int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last = current
}

func (c *countingProgress) OnComplete() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.complete = true
}

func (c *countingProgress) OnError(int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errors++
}

func TestRunSweep_OrderedResults(t *testing.T) {
	thresholds := []float64{0, 6, -20, 4.9, 5}
	progress := &countingProgress{}

	items, err := quietPipeline().RunSweep(context.Background(), shipInputs(),
		ThresholdSweep(shipParams(), thresholds),
		ParallelConfig{MaxWorkers: 3, ProgressCallback: progress})
	require.NoError(t, err)
	require.Len(t, items, len(thresholds))

	want := []int{1, 0, 1, 1, 0}
	for i, it := range items {
		require.NoError(t, it.Err)
		assert.Equal(t, i, it.Index)
		assert.Equal(t, thresholds[i], it.Result.Params.ThresholdDB)
		assert.Len(t, it.Result.Candidates, want[i], "threshold %v", thresholds[i])
	}
	// Everything is brighter than -20 dB: one region covering the grid.
	assert.InDelta(t, 282.84, items[2].Result.Candidates[0].LengthM, 0.01)

	assert.Equal(t, 1, progress.started)
	assert.Equal(t, len(thresholds), progress.total)
	assert.Equal(t, len(thresholds), progress.last)
	assert.True(t, progress.complete)
}

func TestRunSweep_PerItemErrors(t *testing.T) {
	bad := shipParams()
	bad.MinPixels = 0
	progress := &countingProgress{}

	items, err := quietPipeline().RunSweep(context.Background(), shipInputs(),
		[]Params{shipParams(), bad}, ParallelConfig{ProgressCallback: progress})
	require.NoError(t, err)
	require.NoError(t, items[0].Err)
	require.ErrorIs(t, items[1].Err, ErrInvalidParams)
	assert.Nil(t, items[1].Result)
	assert.Equal(t, 1, progress.errors)
}

func TestRunSweep_Empty(t *testing.T) {
	_, err := quietPipeline().RunSweep(context.Background(), shipInputs(), nil, DefaultParallelConfig())
	require.Error(t, err)
}

func TestRunSweep_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := quietPipeline().RunSweep(ctx, shipInputs(), []Params{shipParams()}, DefaultParallelConfig())
	require.ErrorIs(t, err, context.Canceled)
}

func TestRunSweep_StageProgressNotShared(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	p := quietPipeline(WithProgressCallback(StageFunc(func(string, int, int, time.Duration) {
		mu.Lock()
		calls++
		mu.Unlock()
	})))

	_, err := p.RunSweep(context.Background(), shipInputs(),
		ThresholdSweep(shipParams(), []float64{0, 1, 2}), ParallelConfig{MaxWorkers: 2})
	require.NoError(t, err)
	assert.Zero(t, calls)
}

func TestDetectMany_MixedAvailability(t *testing.T) {
	sc := loadShipScene(t)
	missing := sc.req
	missing.Query.Target = sc.req.Query.Target.AddDate(1, 0, 0)
	progress := &countingProgress{}

	items, err := quietPipeline().DetectMany(context.Background(), sc.cat,
		[]Request{sc.req, missing, sc.req}, ParallelConfig{MaxWorkers: 2, ProgressCallback: progress})
	require.NoError(t, err)
	require.Len(t, items, 3)

	assert.Len(t, items[0].Result.Candidates, 1)
	assert.True(t, items[1].NoAcquisition())
	assert.Nil(t, items[1].Result)
	assert.Len(t, items[2].Result.Candidates, 1)
	assert.Zero(t, progress.errors, "missing imagery is not reported as an error")
	assert.Equal(t, 3, progress.last)
}

func TestDetectMany_Empty(t *testing.T) {
	sc := loadShipScene(t)
	_, err := quietPipeline().DetectMany(context.Background(), sc.cat, nil, DefaultParallelConfig())
	require.Error(t, err)
}

func TestRunMany_LoadsLazily(t *testing.T) {
	var mu sync.Mutex
	loaded := map[int]bool{}
	load := func(i int) (Inputs, error) {
		mu.Lock()
		loaded[i] = true
		mu.Unlock()
		if i == 1 {
			return Inputs{}, errors.New("unreadable raster")
		}
		in := shipInputs()
		in.AcquisitionID = fmt.Sprintf("scene-%d", i)
		return in, nil
	}
	progress := &countingProgress{}

	items, err := quietPipeline().RunMany(context.Background(), shipParams(), 3, load,
		ParallelConfig{MaxWorkers: 2, ProgressCallback: progress})
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Len(t, loaded, 3)

	assert.Equal(t, "scene-0", items[0].Result.AcquisitionID)
	require.EqualError(t, items[1].Err, "unreadable raster")
	assert.Nil(t, items[1].Result)
	assert.Len(t, items[2].Result.Candidates, 1)
	assert.Equal(t, 1, progress.errors)
}

func TestRunMany_Empty(t *testing.T) {
	_, err := quietPipeline().RunMany(context.Background(), shipParams(), 0, nil, DefaultParallelConfig())
	require.Error(t, err)
}
