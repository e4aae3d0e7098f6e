package relbatch

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ledgerbench/ledgerbench/internal/workload"
)

func TestCodeToResult(t *testing.T) {
	assert.Equal(t, workload.Success, codeToResult(0))
	assert.Equal(t, workload.InsufficientBalance, codeToResult(1))
	assert.Equal(t, workload.AccountNotFound, codeToResult(2))
	assert.Equal(t, workload.Failed, codeToResult(3))
	assert.Equal(t, workload.Failed, codeToResult(99))
}

func TestDrainNonBlocking_StopsAtMaxBatchSize(t *testing.T) {
	queue := make(chan request, queueCapacity)
	for range MaxBatchSize + 50 {
		queue <- request{reply: make(chan workload.Result, 1)}
	}

	batch := drainNonBlocking(queue, make([]request, 0, MaxBatchSize))
	assert.Len(t, batch, MaxBatchSize)
	assert.Len(t, queue, 50)
}

func TestDrainNonBlocking_StopsWhenQueueEmpty(t *testing.T) {
	queue := make(chan request, queueCapacity)
	queue <- request{reply: make(chan workload.Result, 1)}
	queue <- request{reply: make(chan workload.Result, 1)}

	batch := drainNonBlocking(queue, make([]request, 0, MaxBatchSize))
	assert.Len(t, batch, 2)
}

func TestDrainNonBlocking_StopsOnClosedQueue(t *testing.T) {
	queue := make(chan request, queueCapacity)
	queue <- request{reply: make(chan workload.Result, 1)}
	close(queue)

	batch := drainNonBlocking(queue, make([]request, 0, MaxBatchSize))
	assert.Len(t, batch, 1)
}

func TestDeliverAll_DoesNotBlockOnAbandonedReplyHandles(t *testing.T) {
	batch := []request{
		{reply: make(chan workload.Result, 1)},
		{reply: make(chan workload.Result, 1)},
	}

	deliverAll(batch, workload.Failed)

	for _, req := range batch {
		assert.Equal(t, workload.Failed, <-req.reply)
	}
}
