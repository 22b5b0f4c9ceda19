package common_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tandem-rtc/tandem/pkg/common"
)

func TestWorker_ExecutesTasksInOrder(t *testing.T) {
	var (
		mutex    sync.Mutex
		received []int
	)

	w := common.StartWorker(common.WorkerConfig[int]{
		ChannelSize: 16,
		Timeout:     time.Hour,
		OnTimeout:   func() {},
		OnTask: func(task int) {
			mutex.Lock()
			received = append(received, task)
			mutex.Unlock()
		},
	})

	for i := 0; i < 10; i++ {
		require.NoError(t, w.Send(i))
	}

	w.Stop()
	<-w.Done()

	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, received)
}

func TestWorker_SendAfterStop(t *testing.T) {
	w := common.StartWorker(common.WorkerConfig[int]{
		ChannelSize: 1,
		Timeout:     time.Hour,
		OnTimeout:   func() {},
		OnTask:      func(int) {},
	})

	w.Stop()
	w.Stop()
	assert.ErrorIs(t, w.Send(1), common.ErrWorkerClosed)
}

func TestWorker_TooBusy(t *testing.T) {
	block := make(chan struct{})
	started := make(chan struct{}, 1)

	w := common.StartWorker(common.WorkerConfig[int]{
		ChannelSize: 1,
		Timeout:     time.Hour,
		OnTimeout:   func() {},
		OnTask: func(int) {
			started <- struct{}{}
			<-block
		},
	})
	t.Cleanup(func() {
		close(block)
		w.Stop()
	})

	// The first task occupies the consumer, the second one fills the queue.
	require.NoError(t, w.Send(1))
	<-started
	require.NoError(t, w.Send(2))
	assert.ErrorIs(t, w.Send(3), common.ErrWorkerTooBusy)
}

func TestWorker_SendContextWaitsForRoom(t *testing.T) {
	block := make(chan struct{})
	started := make(chan struct{}, 1)

	var (
		mutex    sync.Mutex
		received []int
	)

	w := common.StartWorker(common.WorkerConfig[int]{
		ChannelSize: 1,
		Timeout:     time.Hour,
		OnTimeout:   func() {},
		OnTask: func(task int) {
			if task == 1 {
				started <- struct{}{}
				<-block
			}
			mutex.Lock()
			received = append(received, task)
			mutex.Unlock()
		},
	})

	require.NoError(t, w.Send(1))
	<-started
	require.NoError(t, w.Send(2))

	queued := make(chan error, 1)
	go func() {
		queued <- w.SendContext(context.Background(), 3)
	}()

	select {
	case err := <-queued:
		t.Fatalf("queued into a full worker: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(block)
	require.NoError(t, <-queued)

	w.Stop()
	<-w.Done()
	assert.Equal(t, []int{1, 2, 3}, received)
}

func TestWorker_SendContextGivesUp(t *testing.T) {
	block := make(chan struct{})
	started := make(chan struct{}, 1)

	w := common.StartWorker(common.WorkerConfig[int]{
		ChannelSize: 1,
		Timeout:     time.Hour,
		OnTimeout:   func() {},
		OnTask: func(task int) {
			if task == 1 {
				started <- struct{}{}
				<-block
			}
		},
	})
	t.Cleanup(func() {
		close(block)
		w.Stop()
	})

	require.NoError(t, w.Send(1))
	<-started
	require.NoError(t, w.Send(2))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, w.SendContext(ctx, 3), context.DeadlineExceeded)
}

func TestWorker_Timeout(t *testing.T) {
	fired := make(chan struct{}, 1)

	w := common.StartWorker(common.WorkerConfig[int]{
		ChannelSize: 1,
		Timeout:     10 * time.Millisecond,
		OnTimeout: func() {
			select {
			case fired <- struct{}{}:
			default:
			}
		},
		OnTask: func(int) {},
	})
	defer w.Stop()

	select {
	case <-fired:
	case <-time.After(5 * time.Second):
		t.Fatal("timeout handler was not called")
	}
}

func TestSink_Seal(t *testing.T) {
	var received []common.Message[string, int]

	w := common.StartWorker(common.WorkerConfig[common.Message[string, int]]{
		ChannelSize: 4,
		Timeout:     time.Hour,
		OnTimeout:   func() {},
		OnTask: func(msg common.Message[string, int]) {
			received = append(received, msg)
		},
	})

	sink := common.NewSink[string, int]("alice", w)
	require.NoError(t, sink.Send(1))

	sink.Seal()
	assert.ErrorIs(t, sink.Send(2), common.ErrSinkSealed)

	w.Stop()
	<-w.Done()

	assert.Equal(t, []common.Message[string, int]{{Sender: "alice", Content: 1}}, received)
}

func BenchmarkWorker(b *testing.B) {
	workerConfig := common.WorkerConfig[struct{}]{
		ChannelSize: 1,
		Timeout:     2 * time.Second,
		OnTimeout:   func() {},
		OnTask:      func(struct{}) {},
	}
	w := common.StartWorker(workerConfig)

	for n := 0; n < b.N; n++ {
		_ = w.Send(struct{}{})
	}

	w.Stop()
}

func BenchmarkWorkerInlineConfig(b *testing.B) {
	w := common.StartWorker(common.WorkerConfig[struct{}]{
		ChannelSize: 1,
		Timeout:     2 * time.Second,
		OnTimeout:   func() {},
		OnTask:      func(struct{}) {},
	})

	for n := 0; n < b.N; n++ {
		_ = w.Send(struct{}{})
	}

	w.Stop()
}
