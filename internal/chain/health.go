package chain

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	log "github.com/sirupsen/logrus"
)

// Health is the probe result for one chain endpoint.
type Health struct {
	ChainID   int64         `json:"chain_id"`
	Name      string        `json:"name"`
	Checked   bool          `json:"checked"`
	OK        bool          `json:"ok"`
	Latency   time.Duration `json:"latency"`
	Error     string        `json:"error,omitempty"`
	CheckedAt time.Time     `json:"checked_at"`
}

// HealthMonitor probes the configured endpoints on a fixed interval,
// independent of account state.
type HealthMonitor struct {
	mu        sync.RWMutex
	endpoints map[int64]string
	statuses  map[int64]Health
	interval  time.Duration
}

func NewHealthMonitor(endpoints map[int64]string, interval time.Duration) *HealthMonitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	statuses := make(map[int64]Health, len(endpoints))
	for chainID := range endpoints {
		statuses[chainID] = Health{ChainID: chainID, Name: ChainName(chainID)}
	}
	return &HealthMonitor{
		endpoints: endpoints,
		statuses:  statuses,
		interval:  interval,
	}
}

func (m *HealthMonitor) Start(ctx context.Context) {
	go m.probeLoop(ctx)
}

func (m *HealthMonitor) probeLoop(ctx context.Context) {
	m.probeAll(ctx)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("Health monitor stopping...")
			return
		case <-ticker.C:
			m.probeAll(ctx)
		}
	}
}

func (m *HealthMonitor) probeAll(ctx context.Context) {
	for chainID, endpoint := range m.endpoints {
		if endpoint == "" {
			continue
		}
		m.record(m.probe(ctx, chainID, endpoint))
	}
}

func (m *HealthMonitor) probe(ctx context.Context, chainID int64, endpoint string) Health {
	h := Health{
		ChainID:   chainID,
		Name:      ChainName(chainID),
		Checked:   true,
		CheckedAt: time.Now(),
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	start := time.Now()
	client, err := ethclient.DialContext(ctx, endpoint)
	if err != nil {
		h.Error = err.Error()
		return h
	}
	defer client.Close()

	if _, err := client.BlockNumber(ctx); err != nil {
		h.Error = err.Error()
		return h
	}
	h.OK = true
	h.Latency = time.Since(start)
	return h
}

func (m *HealthMonitor) record(h Health) {
	m.mu.Lock()
	m.statuses[h.ChainID] = h
	m.mu.Unlock()

	if !h.OK {
		log.WithFields(log.Fields{"chain": h.Name, "error": h.Error}).Warn("Chain endpoint unhealthy")
	} else {
		log.WithFields(log.Fields{"chain": h.Name, "latency": h.Latency}).Debug("Chain endpoint healthy")
	}
}

// Snapshot returns a copy of the current per-chain health.
func (m *HealthMonitor) Snapshot() []Health {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Health, 0, len(m.statuses))
	for _, h := range m.statuses {
		out = append(out, h)
	}
	return out
}
