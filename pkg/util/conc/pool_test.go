package conc

import (
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/snap-garden-go/pkg/util/merr"
)

func TestPoolSubmit(t *testing.T) {
	pool := NewPool[int](2)
	defer pool.Release()

	futures := make([]*Future[int], 0, 8)
	for i := 0; i < 8; i++ {
		futures = append(futures, pool.Submit(func() (int, error) {
			return i * i, nil
		}))
	}
	require.NoError(t, AwaitAll(futures...))
	for i, f := range futures {
		assert.Equal(t, i*i, f.Value())
		assert.True(t, f.OK())
	}
	assert.Equal(t, 2, pool.Cap())
}

func TestPoolError(t *testing.T) {
	pool := NewPool[struct{}](1)
	defer pool.Release()

	boom := errors.New("boom")
	f := pool.Submit(func() (struct{}, error) { return struct{}{}, boom })
	_, err := f.Await()
	assert.ErrorIs(t, err, boom)
	assert.False(t, f.OK())
	assert.ErrorIs(t, AwaitAll(f), boom)
}

func TestPoolRecoverTask(t *testing.T) {
	pool := NewPool[int](1, WithRecoverTask(true))
	defer pool.Release()

	f := pool.Submit(func() (int, error) { panic("bad frame") })
	_, err := f.Await()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad frame")

	// worker 仍然可用。
	v, err := pool.Submit(func() (int, error) { return 3, nil }).Await()
	require.NoError(t, err)
	assert.Equal(t, 3, v)
}

func TestPoolNonBlockingOverload(t *testing.T) {
	pool := NewPool[struct{}](1, WithNonBlocking(true))
	defer pool.Release()

	release := make(chan struct{})
	busy := pool.Submit(func() (struct{}, error) {
		<-release
		return struct{}{}, nil
	})

	rejected := pool.Submit(func() (struct{}, error) { return struct{}{}, nil })
	assert.True(t, rejected.Done())
	assert.ErrorIs(t, rejected.Err(), merr.ErrServiceTooManyRequests)

	close(release)
	_, err := busy.Await()
	assert.NoError(t, err)
}

func TestGo(t *testing.T) {
	f := Go(func() (string, error) {
		time.Sleep(10 * time.Millisecond)
		return "done", nil
	})
	select {
	case <-f.Inner():
	case <-time.After(time.Second):
		t.Fatal("future never completed")
	}
	assert.Equal(t, "done", f.Value())
}
