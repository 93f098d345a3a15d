package jobqueue_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/insrobot/internal/jobqueue"
	"github.com/kiranshivaraju/insrobot/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_FIFO(t *testing.T) {
	q := jobqueue.NewQueue()
	id := uuid.New()
	for i := 0; i < 3; i++ {
		require.NoError(t, q.Put(&models.Job{RequestID: id, Index: i}))
	}
	assert.Equal(t, 3, q.Len())

	for i := 0; i < 3; i++ {
		job := q.Take()
		require.NotNil(t, job)
		assert.Equal(t, i, job.Index)
	}
	assert.Equal(t, 0, q.Len())
}

func TestQueue_TakeBlocksUntilPut(t *testing.T) {
	q := jobqueue.NewQueue()
	got := make(chan *models.Job, 1)
	go func() { got <- q.Take() }()

	select {
	case <-got:
		t.Fatal("Take returned before any job was put")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, q.Put(&models.Job{Label: "late"}))
	select {
	case job := <-got:
		require.NotNil(t, job)
		assert.Equal(t, "late", job.Label)
	case <-time.After(time.Second):
		t.Fatal("Take did not wake after Put")
	}
}

func TestQueue_ShutdownSentinel(t *testing.T) {
	q := jobqueue.NewQueue()
	require.NoError(t, q.Put(&models.Job{Label: "first"}))
	q.Shutdown()
	q.Shutdown()

	job := q.Take()
	require.NotNil(t, job)
	assert.Equal(t, "first", job.Label)
	assert.Nil(t, q.Take())
}

func TestQueue_PutAfterShutdown(t *testing.T) {
	q := jobqueue.NewQueue()
	q.Shutdown()

	err := q.Put(&models.Job{})
	assert.ErrorIs(t, err, jobqueue.ErrQueueClosed)
}

func TestQueue_PutNilIsIgnored(t *testing.T) {
	q := jobqueue.NewQueue()
	require.NoError(t, q.Put(nil))
	assert.Equal(t, 0, q.Len())
}
