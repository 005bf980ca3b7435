// Package procstats samples the recorder's own CPU and memory use.
package procstats

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/user/deskrec/pkg/pipeline"
	"github.com/user/deskrec/pkg/ports"
)

// DefaultInterval is the sampling period.
const DefaultInterval = time.Second

// Stats summarizes the samples taken.
type Stats struct {
	Samples    int     `json:"samples"`
	PeakCPU    float64 `json:"peakCpuPercent"`
	AverageCPU float64 `json:"averageCpuPercent"`
	PeakRSS    uint64  `json:"peakRssBytes"`
}

// Sampler polls this process with gopsutil until stopped.
type Sampler struct {
	interval time.Duration
	proc     *process.Process
	worker   *pipeline.Worker
	logger   ports.Logger

	stopOnce sync.Once
	mu       sync.Mutex
	stats    Stats
	cpuSum   float64
}

// New creates a sampler for the current process.
func New(interval time.Duration, logger ports.Logger) (*Sampler, error) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, fmt.Errorf("open process: %w", err)
	}
	return &Sampler{
		interval: interval,
		proc:     p,
		worker:   pipeline.NewWorker("procstats"),
		logger:   logger.WithComponent("procstats"),
	}, nil
}

// Start begins sampling in the background.
func (s *Sampler) Start() error {
	// The first Percent call only primes the CPU counters.
	if _, err := s.proc.Percent(0); err != nil {
		s.logger.Debug("CPU sampling unavailable: %v", err)
	}
	return s.worker.Go(s.run)
}

func (s *Sampler) run(stop <-chan struct{}) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return nil
		case <-ticker.C:
			s.sample()
		}
	}
}

func (s *Sampler) sample() {
	cpu, cpuErr := s.proc.Percent(0)
	mem, memErr := s.proc.MemoryInfo()

	s.mu.Lock()
	defer s.mu.Unlock()
	if cpuErr == nil {
		s.stats.Samples++
		s.cpuSum += cpu
		s.stats.AverageCPU = s.cpuSum / float64(s.stats.Samples)
		if cpu > s.stats.PeakCPU {
			s.stats.PeakCPU = cpu
		}
	}
	if memErr == nil && mem.RSS > s.stats.PeakRSS {
		s.stats.PeakRSS = mem.RSS
	}
}

// Stop ends sampling, takes a last sample and returns the totals.
func (s *Sampler) Stop() Stats {
	s.stopOnce.Do(func() {
		if s.worker.Started() {
			_ = s.worker.Stop()
			s.sample()
		}
	})
	return s.Stats()
}

// Stats returns the totals so far.
func (s *Sampler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}
