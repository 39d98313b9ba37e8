package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"propresize/internal/pipeline"
)

type fakeProcessor struct {
	calls   atomic.Int64
	active  atomic.Int64
	maxSeen atomic.Int64
	delay   time.Duration
	err     error
	release chan struct{}
}

func (f *fakeProcessor) Process(ctx context.Context, upload io.ReadSeeker, maxBytes int64) (*pipeline.ResizeResult, error) {
	f.calls.Add(1)
	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		m := f.maxSeen.Load()
		if n <= m || f.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	if f.release != nil {
		<-f.release
	}
	time.Sleep(f.delay)
	if f.err != nil {
		return nil, f.err
	}
	data, _ := io.ReadAll(upload)
	return &pipeline.ResizeResult{Size: int64(len(data)), Payload: data}, nil
}

func job(name string) Job {
	return Job{Name: name, Upload: bytes.NewReader([]byte(name)), MaxBytes: 1 << 20}
}

func TestPool_ProcessesJobs(t *testing.T) {
	proc := &fakeProcessor{}
	p := NewPool(proc, 2, zerolog.Nop())
	p.Start(context.Background())
	defer p.Stop()

	res, err := p.Do(context.Background(), job("sunset.png"))
	require.NoError(t, err)
	assert.Equal(t, []byte("sunset.png"), res.Payload)
	assert.Equal(t, int64(1), proc.calls.Load())
}

func TestPool_PropagatesErrors(t *testing.T) {
	proc := &fakeProcessor{err: &pipeline.InfeasibleError{Budget: 10, BestSize: 20}}
	p := NewPool(proc, 1, zerolog.Nop())
	p.Start(context.Background())
	defer p.Stop()

	_, err := p.Do(context.Background(), job("big.png"))
	assert.ErrorIs(t, err, pipeline.ErrCompressionInfeasible)
}

func TestPool_BoundsConcurrency(t *testing.T) {
	proc := &fakeProcessor{delay: 20 * time.Millisecond}
	p := NewPool(proc, 2, zerolog.Nop())
	p.Start(context.Background())
	defer p.Stop()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.Do(context.Background(), job("x.png"))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(8), proc.calls.Load())
	assert.LessOrEqual(t, proc.maxSeen.Load(), int64(2))
}

func TestPool_AbandonedJobIsSkipped(t *testing.T) {
	proc := &fakeProcessor{release: make(chan struct{})}
	p := NewPool(proc, 1, zerolog.Nop())
	p.Start(context.Background())
	defer p.Stop()

	// occupy the only worker
	first, err := p.Submit(context.Background(), job("first.png"))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return proc.active.Load() == 1 }, time.Second, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	second, err := p.Submit(ctx, job("second.png"))
	require.NoError(t, err)
	cancel()

	close(proc.release)
	out := <-first
	require.NoError(t, out.Err)

	out = <-second
	assert.ErrorIs(t, out.Err, context.Canceled)
	assert.Equal(t, int64(1), proc.calls.Load())
}

func TestPool_DoReturnsWhenCallerGivesUp(t *testing.T) {
	proc := &fakeProcessor{release: make(chan struct{})}
	p := NewPool(proc, 1, zerolog.Nop())
	p.Start(context.Background())
	defer p.Stop()
	defer close(proc.release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := p.Do(ctx, job("slow.png"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPool_SubmitAfterStop(t *testing.T) {
	p := NewPool(&fakeProcessor{}, 1, zerolog.Nop())
	p.Start(context.Background())
	p.Stop()
	p.Stop()

	_, err := p.Submit(context.Background(), job("late.png"))
	assert.True(t, errors.Is(err, ErrPoolStopped))
}

func TestPool_LogsOutcomeAtMatchingLevel(t *testing.T) {
	var buf bytes.Buffer
	proc := &fakeProcessor{err: errors.New("boom")}
	p := NewPool(proc, 1, zerolog.New(&buf))
	p.Start(context.Background())
	defer p.Stop()

	_, err := p.Do(context.Background(), job("broken.png"))
	require.Error(t, err)

	var entry map[string]any
	for _, line := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		var m map[string]any
		require.NoError(t, json.Unmarshal(line, &m))
		if m["message"] == "Worker: job finished" {
			entry = m
		}
	}
	require.NotNil(t, entry)
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "boom", entry["error"])
	assert.NotContains(t, entry, "width")

	buf.Reset()
	proc.err = nil
	_, err = p.Do(context.Background(), job("fine.png"))
	require.NoError(t, err)
	entry = nil
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Contains(t, entry, "width")
	assert.NotContains(t, entry, "error")
}
