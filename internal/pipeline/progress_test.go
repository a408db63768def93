package pipeline

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNoOpProgressCallback(t *testing.T) {
	callback := NoOpProgressCallback{}
	callback.OnStart(10)
	callback.OnProgress(5, 10)
	callback.OnComplete()
	callback.OnError(3, assert.AnError)
}

func TestConsoleProgressCallback(t *testing.T) {
	var buf bytes.Buffer
	callback := NewConsoleProgressCallback(&buf, "Sweep: ").WithWidth(10)

	callback.OnStart(4)
	assert.Contains(t, buf.String(), "Sweep: 0/4")

	buf.Reset()
	callback.OnProgress(2, 4)
	assert.Contains(t, buf.String(), "[█████░░░░░] 2/4")

	buf.Reset()
	callback.OnProgress(1, 0)
	assert.Empty(t, buf.String())

	callback.OnError(3, assert.AnError)
	assert.Contains(t, buf.String(), "Sweep: Error at item 3")

	buf.Reset()
	callback.OnComplete()
	assert.Contains(t, buf.String(), "Sweep: Completed in")
}

func TestLogProgressCallback(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	callback := NewLogProgressCallback(logger, slog.LevelInfo)

	callback.OnStart(6)
	callback.OnStage(StageWater, 1, 6, time.Millisecond)
	callback.OnProgress(1, 6)
	callback.OnError(2, assert.AnError)
	callback.OnComplete()

	out := buf.String()
	assert.Contains(t, out, "processing started")
	assert.Contains(t, out, "stage=water")
	assert.Contains(t, out, "current=1")
	assert.Contains(t, out, "level=ERROR")
	assert.Contains(t, out, "processing completed")
}

type recordingProgress struct {
	events []string
}

func (r *recordingProgress) OnStart(int)         { r.events = append(r.events, "start") }
func (r *recordingProgress) OnProgress(int, int) { r.events = append(r.events, "progress") }
func (r *recordingProgress) OnComplete()         { r.events = append(r.events, "complete") }
func (r *recordingProgress) OnError(int, error)  { r.events = append(r.events, "error") }

type recordingStages struct {
	recordingProgress
}

func (r *recordingStages) OnStage(stage string, _, _ int, _ time.Duration) {
	r.events = append(r.events, "stage:"+stage)
}

func TestMultiProgressCallback(t *testing.T) {
	plain := &recordingProgress{}
	staged := &recordingStages{}
	multi := NewMultiProgressCallback(plain)
	multi.Add(staged)

	multi.OnStart(2)
	multi.OnStage(StageClean, 1, 2, 0)
	multi.OnProgress(1, 2)
	multi.OnError(2, assert.AnError)
	multi.OnComplete()

	assert.Equal(t, "start,progress,error,complete", strings.Join(plain.events, ","))
	assert.Equal(t, "start,stage:clean,progress,error,complete", strings.Join(staged.events, ","))
}

func TestStageFunc(t *testing.T) {
	var got []string
	var cb ProgressCallback = StageFunc(func(stage string, index, total int, _ time.Duration) {
		got = append(got, stage)
	})
	cb.OnStart(1)
	cb.OnProgress(1, 1)
	cb.OnComplete()
	cb.OnError(1, assert.AnError)
	cb.(StageReporter).OnStage(StageLength, 6, 6, 0)
	assert.Equal(t, []string{StageLength}, got)
}
