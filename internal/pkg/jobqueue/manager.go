package jobqueue

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/AgencyHub/internal/pkg/env"
)

// Manager owns the global order queue and its background reporting.
type Manager struct {
	queue       *Queue
	statsTicker *time.Ticker
	stopCh      chan struct{}
	wg          sync.WaitGroup
	mu          sync.Mutex
	running     bool
}

var (
	globalManager *Manager
	managerOnce   sync.Once
)

// GetManager returns the global queue manager (singleton)
func GetManager() *Manager {
	managerOnce.Do(func() {
		globalManager = &Manager{
			queue:  NewQueue(env.GetEnvInt("ORDER_QUEUE_WORKERS", 2)),
			stopCh: make(chan struct{}),
		}
	})
	return globalManager
}

// GetQueue returns the managed queue
func (m *Manager) GetQueue() *Queue {
	return m.queue
}

// Start starts the queue and the stats reporter
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	m.stopCh = make(chan struct{})
	m.running = true
	log.Info("[OrderQueue Manager] Starting order queue")

	m.queue.Start()

	m.statsTicker = time.NewTicker(5 * time.Minute)
	m.wg.Add(1)
	go m.statsWorker()

	log.Info("[OrderQueue Manager] Started successfully")
}

// Stop stops the stats reporter and then the queue
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	log.Info("[OrderQueue Manager] Stopping order queue...")
	if m.statsTicker != nil {
		m.statsTicker.Stop()
	}
	close(m.stopCh)
	m.running = false
	m.wg.Wait()

	m.queue.Stop()
	log.Info("[OrderQueue Manager] Stopped successfully")
}

func (m *Manager) statsWorker() {
	defer m.wg.Done()
	for {
		select {
		case <-m.stopCh:
			return
		case <-m.statsTicker.C:
			m.logStats()
		}
	}
}

func (m *Manager) logStats() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	stats, err := m.queue.Stats(ctx)
	if err != nil {
		log.Errorf("[OrderQueue Manager] Reading stats failed: %v", err)
		return
	}
	size, _ := m.queue.QueueSize(ctx)
	log.Infof("[OrderQueue Manager] queued=%d completed=%d retried=%d failed=%d",
		size, stats[StatCompleted], stats[StatRetried], stats[StatFailed])
}

// IsRunning returns whether the manager is currently running
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}
