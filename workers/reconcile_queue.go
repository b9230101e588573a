package workers

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Reconciler is what the queue drives; RoleSyncService satisfies it.
type Reconciler interface {
	Reconcile(ctx context.Context, userID, communityID string, oldLevel, newLevel int)
}

// ReconcileQueue serializes marker-role reconciliations per
// (user, community) key. Level-changing triggers schedule here instead of
// running role edits inline: two rapid triggers for the same user would
// otherwise interleave their add/remove calls non-deterministically. Same-key
// jobs run strictly in enqueue order; different keys run concurrently.
type ReconcileQueue struct {
	Log  *zap.SugaredLogger
	Sync Reconciler

	ctx context.Context
	wg  sync.WaitGroup

	mu      sync.Mutex
	pending map[string][]reconcileJob // keyed FIFO; presence means a drainer is running
}

type reconcileJob struct {
	userID      string
	communityID string
	oldLevel    int
	newLevel    int
}

// NewReconcileQueue builds a queue whose jobs run under ctx. Events are not
// cancellable once observed, so ctx only bounds the platform round-trips of
// jobs started after shutdown begins.
func NewReconcileQueue(ctx context.Context, log *zap.SugaredLogger, sync Reconciler) *ReconcileQueue {
	return &ReconcileQueue{
		Log:     log,
		Sync:    sync,
		ctx:     ctx,
		pending: make(map[string][]reconcileJob),
	}
}

// Schedule enqueues a reconciliation and returns immediately. The first job
// for an idle key starts a drainer goroutine; later jobs for the same key
// append to its FIFO.
func (q *ReconcileQueue) Schedule(userID, communityID string, oldLevel, newLevel int) {
	key := communityID + "/" + userID
	job := reconcileJob{userID: userID, communityID: communityID, oldLevel: oldLevel, newLevel: newLevel}

	q.mu.Lock()
	queue, running := q.pending[key]
	q.pending[key] = append(queue, job)
	q.mu.Unlock()

	if running {
		return
	}

	q.wg.Add(1)
	go q.drain(key)
}

func (q *ReconcileQueue) drain(key string) {
	defer q.wg.Done()
	for {
		q.mu.Lock()
		queue := q.pending[key]
		if len(queue) == 0 {
			delete(q.pending, key)
			q.mu.Unlock()
			return
		}
		job := queue[0]
		q.pending[key] = queue[1:]
		q.mu.Unlock()

		q.Sync.Reconcile(q.ctx, job.userID, job.communityID, job.oldLevel, job.newLevel)
	}
}

// Wait blocks until every drainer has finished. Used on shutdown and by
// tests that need scheduled work to settle.
func (q *ReconcileQueue) Wait() {
	q.wg.Wait()
}
