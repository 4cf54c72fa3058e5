package jobqueue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ManuelReschke/AgencyHub/internal/pkg/cache"
)

const (
	// Redis keys
	RowsKeyPrefix = "order:rows:"
	LockKeyPrefix = "order:lock:"
	QueueKey      = "order:queue"
	ProcessingKey = "order:processing"
	PendingKey    = "order:pending"
	RetriesKey    = "order:retries"
	StatsKey      = "order:stats"

	DefaultMaxRetries = 3
	LockTTL           = 30 * time.Second
	handlerTimeout    = 25 * time.Second
	lockBackoff       = 100 * time.Millisecond
)

// Stats fields
const (
	StatCompleted = "completed"
	StatRetried   = "retried"
	StatFailed    = "failed"
)

// Merge rows into the key's hash and queue the key unless it is already pending.
var enqueueScript = redis.NewScript(`
for i = 2, #ARGV, 2 do
	redis.call('HSET', KEYS[1], ARGV[i], ARGV[i + 1])
end
if redis.call('SADD', KEYS[2], ARGV[1]) == 1 then
	redis.call('LPUSH', KEYS[3], ARGV[1])
	return 1
end
return 0
`)

// Put failed rows back without overwriting newer rows enqueued meanwhile.
var restoreScript = redis.NewScript(`
for i = 2, #ARGV, 2 do
	redis.call('HSETNX', KEYS[1], ARGV[i], ARGV[i + 1])
end
return redis.call('SADD', KEYS[2], ARGV[1])
`)

var unlockScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

// Queue serializes order writes per key. Rows enqueued for a key that is
// still pending are merged, so only the newest row per id is written.
type Queue struct {
	client     *redis.Client
	workers    int
	maxRetries int
	retryDelay time.Duration
	handlers   map[JobType]Handler
	stopCh     chan struct{}
	wg         sync.WaitGroup
	mu         sync.Mutex
	running    bool
}

// NewQueue creates a queue on the shared cache client.
func NewQueue(workers int) *Queue {
	return NewQueueWithClient(cache.GetClient(), workers)
}

func NewQueueWithClient(client *redis.Client, workers int) *Queue {
	if workers <= 0 {
		workers = 2
	}
	return &Queue{
		client:     client,
		workers:    workers,
		maxRetries: DefaultMaxRetries,
		retryDelay: 2 * time.Second,
		handlers:   make(map[JobType]Handler),
		stopCh:     make(chan struct{}),
	}
}

// SetRetryDelay sets the base delay before a failed key is queued again.
// Attempt n waits n times the delay; zero requeues immediately.
func (q *Queue) SetRetryDelay(d time.Duration) {
	q.retryDelay = d
}

// Register installs the handler for a job type. Call before Start.
func (q *Queue) Register(jobType JobType, handler Handler) {
	q.handlers[jobType] = handler
}

// Start starts the workers and the sweeper.
func (q *Queue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.running {
		return
	}

	q.stopCh = make(chan struct{})
	q.running = true
	log.Infof("[OrderQueue] Starting %d workers", q.workers)

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(i)
	}

	q.wg.Add(1)
	go q.sweeper(time.Minute)
}

// Stop stops the workers and waits for in-flight keys to finish.
func (q *Queue) Stop() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.running {
		return
	}

	log.Info("[OrderQueue] Stopping workers...")
	close(q.stopCh)
	q.running = false
	q.wg.Wait()
	log.Info("[OrderQueue] All workers stopped")
}

// Enqueue merges rows into the pending batch of the job type and pipeline.
func (q *Queue) Enqueue(ctx context.Context, jobType JobType, pipelineID string, rows map[string]string) error {
	if len(rows) == 0 {
		return nil
	}
	key := JobKey(jobType, pipelineID)
	args := make([]interface{}, 0, 1+2*len(rows))
	args = append(args, key)
	for id, row := range rows {
		args = append(args, id, row)
	}

	queued, err := enqueueScript.Run(ctx, q.client, []string{RowsKeyPrefix + key, PendingKey, QueueKey}, args...).Int()
	if err != nil {
		return fmt.Errorf("failed to enqueue %s: %w", key, err)
	}
	if queued == 1 {
		log.Debugf("[OrderQueue] Queued %s (%d rows)", key, len(rows))
	} else {
		log.Debugf("[OrderQueue] Merged %d rows into pending %s", len(rows), key)
	}
	return nil
}

func (q *Queue) worker(id int) {
	defer q.wg.Done()
	log.Infof("[OrderQueue] Worker %d started", id)

	ctx := context.Background()
	for {
		select {
		case <-q.stopCh:
			log.Infof("[OrderQueue] Worker %d stopping", id)
			return
		default:
		}

		key, err := q.client.BRPopLPush(ctx, QueueKey, ProcessingKey, time.Second).Result()
		if err != nil {
			if !errors.Is(err, redis.Nil) {
				log.Errorf("[OrderQueue] Worker %d: Error dequeuing: %v", id, err)
				time.Sleep(time.Second)
			}
			continue
		}
		if locked := q.process(ctx, key); locked {
			time.Sleep(lockBackoff)
		}
	}
}

// ProcessNext handles one queued key without blocking. It reports whether a
// key was taken from the queue.
func (q *Queue) ProcessNext(ctx context.Context) (bool, error) {
	key, err := q.client.RPopLPush(ctx, QueueKey, ProcessingKey).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	q.process(ctx, key)
	return true, nil
}

// process drains and handles one key. It returns true when another worker
// holds the key and it was put back.
func (q *Queue) process(ctx context.Context, key string) bool {
	defer q.removeFromProcessing(ctx, key)

	token := uuid.New().String()
	lockKey := LockKeyPrefix + key
	acquired, err := q.client.SetNX(ctx, lockKey, token, LockTTL).Result()
	if err != nil {
		log.Errorf("[OrderQueue] Failed to lock %s: %v", key, err)
		q.requeue(ctx, key)
		return true
	}
	if !acquired {
		q.requeue(ctx, key)
		return true
	}
	defer func() {
		if err := unlockScript.Run(ctx, q.client, []string{lockKey}, token).Err(); err != nil {
			log.Errorf("[OrderQueue] Failed to unlock %s: %v", key, err)
		}
	}()

	// Rows enqueued from here on start a new batch.
	if err := q.client.SRem(ctx, PendingKey, key).Err(); err != nil {
		log.Errorf("[OrderQueue] Failed to clear pending flag for %s: %v", key, err)
	}

	rows, err := q.drain(ctx, key, token)
	if err != nil {
		log.Errorf("[OrderQueue] Failed to drain %s: %v", key, err)
		q.requeue(ctx, key)
		return false
	}
	if len(rows) == 0 {
		return false
	}

	jobType, pipelineID, err := ParseJobKey(key)
	if err != nil {
		log.Errorf("[OrderQueue] Dropping %d rows: %v", len(rows), err)
		return false
	}

	attempt, _ := q.client.HGet(ctx, RetriesKey, key).Int()
	job := &Job{Key: key, Type: jobType, PipelineID: pipelineID, Rows: rows, Attempt: attempt + 1}

	err = q.handle(ctx, job)
	if err == nil {
		_ = q.client.HDel(ctx, RetriesKey, key).Err()
		q.updateStats(ctx, StatCompleted)
		log.Debugf("[OrderQueue] Persisted %d rows for %s", len(rows), key)
		return false
	}

	log.Errorf("[OrderQueue] Handling %s failed (attempt %d/%d): %v", key, job.Attempt, q.maxRetries+1, err)
	if job.Attempt > q.maxRetries {
		log.Errorf("[OrderQueue] Dropping %d rows for %s after %d retries", len(rows), key, q.maxRetries)
		_ = q.client.HDel(ctx, RetriesKey, key).Err()
		q.updateStats(ctx, StatFailed)
		return false
	}

	_ = q.client.HIncrBy(ctx, RetriesKey, key, 1).Err()
	q.updateStats(ctx, StatRetried)
	q.restore(ctx, key, rows, job.Attempt)
	return false
}

func (q *Queue) handle(ctx context.Context, job *Job) error {
	handler, ok := q.handlers[job.Type]
	if !ok {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	hctx, cancel := context.WithTimeout(ctx, handlerTimeout)
	defer cancel()
	return handler(hctx, job)
}

// drain atomically takes all rows of a key.
func (q *Queue) drain(ctx context.Context, key, token string) (map[string]string, error) {
	rowsKey := RowsKeyPrefix + key
	tmpKey := rowsKey + ":draining:" + token
	if err := q.client.Rename(ctx, rowsKey, tmpKey).Err(); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "no such key") || errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	defer q.client.Del(ctx, tmpKey)

	return q.client.HGetAll(ctx, tmpKey).Result()
}

func (q *Queue) restore(ctx context.Context, key string, rows map[string]string, attempt int) {
	args := make([]interface{}, 0, 1+2*len(rows))
	args = append(args, key)
	for id, row := range rows {
		args = append(args, id, row)
	}
	added, err := restoreScript.Run(ctx, q.client, []string{RowsKeyPrefix + key, PendingKey}, args...).Int()
	if err != nil {
		log.Errorf("[OrderQueue] Failed to restore rows for %s: %v", key, err)
		return
	}
	if added == 0 {
		// A newer enqueue already queued the key.
		return
	}

	delay := q.retryDelay * time.Duration(attempt)
	if delay <= 0 {
		q.requeue(ctx, key)
		return
	}
	time.AfterFunc(delay, func() {
		q.requeue(context.Background(), key)
	})
}

func (q *Queue) requeue(ctx context.Context, key string) {
	if err := q.client.LPush(ctx, QueueKey, key).Err(); err != nil {
		log.Errorf("[OrderQueue] Failed to requeue %s: %v", key, err)
	}
}

func (q *Queue) removeFromProcessing(ctx context.Context, key string) {
	if err := q.client.LRem(ctx, ProcessingKey, 1, key).Err(); err != nil {
		log.Errorf("[OrderQueue] Failed to remove %s from processing: %v", key, err)
	}
}

func (q *Queue) updateStats(ctx context.Context, field string) {
	if err := q.client.HIncrBy(ctx, StatsKey, field, 1).Err(); err != nil {
		log.Errorf("[OrderQueue] Failed to update stats: %v", err)
	}
}

func (q *Queue) sweeper(interval time.Duration) {
	defer q.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-q.stopCh:
			log.Info("[OrderQueue] Sweeper stopping")
			return
		case <-ticker.C:
			if n, err := q.Sweep(context.Background()); err != nil {
				log.Errorf("[OrderQueue] Sweep failed: %v", err)
			} else if n > 0 {
				log.Warnf("[OrderQueue] Sweeper recovered %d keys", n)
			}
		}
	}
}

// Sweep recovers keys left behind by a crashed worker: processing entries
// without a lock and pending keys that are neither queued nor locked.
func (q *Queue) Sweep(ctx context.Context) (int, error) {
	processing, err := q.client.LRange(ctx, ProcessingKey, 0, -1).Result()
	if err != nil {
		return 0, err
	}
	for _, key := range processing {
		locked, err := q.client.Exists(ctx, LockKeyPrefix+key).Result()
		if err != nil {
			return 0, err
		}
		if locked > 0 {
			continue
		}
		_ = q.client.LRem(ctx, ProcessingKey, 1, key).Err()
		if n, _ := q.client.Exists(ctx, RowsKeyPrefix+key).Result(); n > 0 {
			_ = q.client.SAdd(ctx, PendingKey, key).Err()
		}
	}

	queuedList, err := q.client.LRange(ctx, QueueKey, 0, -1).Result()
	if err != nil {
		return 0, err
	}
	queued := make(map[string]struct{}, len(queuedList))
	for _, key := range queuedList {
		queued[key] = struct{}{}
	}

	pending, err := q.client.SMembers(ctx, PendingKey).Result()
	if err != nil {
		return 0, err
	}
	recovered := 0
	for _, key := range pending {
		if _, ok := queued[key]; ok {
			continue
		}
		if locked, _ := q.client.Exists(ctx, LockKeyPrefix+key).Result(); locked > 0 {
			continue
		}
		q.requeue(ctx, key)
		recovered++
	}
	return recovered, nil
}

// Stats returns the completed, retried and failed counters.
func (q *Queue) Stats(ctx context.Context) (map[string]int64, error) {
	raw, err := q.client.HGetAll(ctx, StatsKey).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(raw))
	for field, value := range raw {
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			out[field] = n
		}
	}
	return out, nil
}

// QueueSize returns the number of keys waiting for a worker.
func (q *Queue) QueueSize(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, QueueKey).Result()
}

// PendingRows returns the rows waiting for the next drain of a key.
func (q *Queue) PendingRows(ctx context.Context, jobType JobType, pipelineID string) (map[string]string, error) {
	return q.client.HGetAll(ctx, RowsKeyPrefix+JobKey(jobType, pipelineID)).Result()
}
