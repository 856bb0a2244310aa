package jobqueue

import (
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/ConventionPay/internal/pkg/database"
	"github.com/ManuelReschke/ConventionPay/internal/pkg/env"
	"github.com/ManuelReschke/ConventionPay/internal/pkg/policy"
)

const defaultWorkerCount = 3

// Manager owns the global job queue and the periodic policy reload.
type Manager struct {
	queue        *Queue
	policyStore  *policy.Store
	reloadTicker *time.Ticker
	stopCh       chan struct{}
	wg           sync.WaitGroup
	mu           sync.Mutex
	running      bool
}

var (
	globalManager *Manager
	managerOnce   sync.Once
)

// GetManager returns the global job queue manager (singleton)
func GetManager() *Manager {
	managerOnce.Do(func() {
		globalManager = &Manager{
			queue:  NewQueue(workerCount()),
			stopCh: make(chan struct{}),
		}
	})
	return globalManager
}

func workerCount() int {
	n, err := strconv.Atoi(env.GetEnv("JOBQUEUE_WORKERS", strconv.Itoa(defaultWorkerCount)))
	if err != nil || n <= 0 {
		return defaultWorkerCount
	}
	return n
}

// GetQueue returns the managed job queue
func (m *Manager) GetQueue() *Queue {
	return m.queue
}

// WatchPolicy makes Start reload store from the settings table periodically.
func (m *Manager) WatchPolicy(store *policy.Store) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.policyStore = store
}

// Start starts the job queue and background tasks
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	m.stopCh = make(chan struct{})
	m.running = true
	log.Info("[JobQueue Manager] Starting job queue and background tasks")

	m.queue.Start()

	if m.policyStore != nil {
		interval := time.Minute
		if d, err := time.ParseDuration(env.GetEnv("POLICY_RELOAD_INTERVAL", "1m")); err == nil && d > 0 {
			interval = d
		}
		m.reloadTicker = time.NewTicker(interval)
		m.wg.Add(1)
		go m.policyReloadWorker()
	}

	log.Info("[JobQueue Manager] Started successfully")
}

// Stop stops the job queue and background tasks
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	log.Info("[JobQueue Manager] Stopping job queue and background tasks...")
	if m.reloadTicker != nil {
		m.reloadTicker.Stop()
	}
	close(m.stopCh)
	m.running = false
	m.wg.Wait()

	m.queue.Stop()
	log.Info("[JobQueue Manager] Stopped successfully")
}

// policyReloadWorker picks up policy changes made through the settings table.
func (m *Manager) policyReloadWorker() {
	defer m.wg.Done()
	for {
		select {
		case <-m.stopCh:
			log.Info("[JobQueue Manager] Policy reload worker stopping")
			return
		case <-m.reloadTicker.C:
			db := database.GetDB()
			if db == nil {
				continue
			}
			if err := m.policyStore.Reload(db); err != nil {
				log.Errorf("[JobQueue Manager] Policy reload failed, keeping the current policy: %v", err)
			}
		}
	}
}

// IsRunning returns whether the manager is currently running
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}
