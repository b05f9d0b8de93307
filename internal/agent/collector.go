package agent

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/net"
)

// Sample is one host reading. CPU, Memory and Disk are whole percentages;
// Network is KiB sent and received since the previous sample.
type Sample struct {
	CPU     uint64
	Memory  uint64
	Disk    uint64
	Network uint64
	At      time.Time
}

// Source reads raw host counters.
type Source interface {
	CPUPercent(ctx context.Context) (float64, error)
	MemoryPercent(ctx context.Context) (float64, error)
	DiskPercent(ctx context.Context) (float64, error)
	NetworkBytes(ctx context.Context) (uint64, error)
}

// HostSource reads the local machine through gopsutil.
type HostSource struct {
	DiskPath string
}

func (s HostSource) CPUPercent(ctx context.Context) (float64, error) {
	// A zero interval compares against the previous call.
	percents, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return 0, err
	}
	if len(percents) == 0 {
		return 0, fmt.Errorf("no cpu utilization reported")
	}
	return percents[0], nil
}

func (s HostSource) MemoryPercent(ctx context.Context) (float64, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, err
	}
	return vm.UsedPercent, nil
}

func (s HostSource) DiskPercent(ctx context.Context) (float64, error) {
	path := s.DiskPath
	if path == "" {
		path = "/"
	}
	usage, err := disk.UsageWithContext(ctx, path)
	if err != nil {
		return 0, err
	}
	return usage.UsedPercent, nil
}

func (s HostSource) NetworkBytes(ctx context.Context) (uint64, error) {
	counters, err := net.IOCountersWithContext(ctx, false)
	if err != nil {
		return 0, err
	}
	if len(counters) == 0 {
		return 0, nil
	}
	return counters[0].BytesSent + counters[0].BytesRecv, nil
}

type Collector struct {
	source Source
	now    func() time.Time

	mu       sync.Mutex
	lastNet  uint64
	hasNet   bool
	latest   Sample
	collects int
}

func NewCollector(source Source) *Collector {
	return &Collector{source: source, now: time.Now}
}

// Collect takes a sample and keeps it as the latest.
func (c *Collector) Collect(ctx context.Context) (Sample, error) {
	cpuPct, err := c.source.CPUPercent(ctx)
	if err != nil {
		return Sample{}, fmt.Errorf("read cpu: %w", err)
	}
	memPct, err := c.source.MemoryPercent(ctx)
	if err != nil {
		return Sample{}, fmt.Errorf("read memory: %w", err)
	}
	diskPct, err := c.source.DiskPercent(ctx)
	if err != nil {
		return Sample{}, fmt.Errorf("read disk: %w", err)
	}
	netBytes, err := c.source.NetworkBytes(ctx)
	if err != nil {
		return Sample{}, fmt.Errorf("read network: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var netDelta uint64
	// Counters reset on interface restarts; treat a decrease as a fresh start.
	if c.hasNet && netBytes >= c.lastNet {
		netDelta = (netBytes - c.lastNet) / 1024
	}
	c.lastNet, c.hasNet = netBytes, true

	c.latest = Sample{
		CPU:     percent(cpuPct),
		Memory:  percent(memPct),
		Disk:    percent(diskPct),
		Network: netDelta,
		At:      c.now(),
	}
	c.collects++
	return c.latest, nil
}

// Latest returns the most recent sample and whether one exists.
func (c *Collector) Latest() (Sample, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.latest, c.collects > 0
}

func percent(v float64) uint64 {
	switch {
	case math.IsNaN(v) || v <= 0:
		return 0
	case v >= 100:
		return 100
	default:
		return uint64(math.Round(v))
	}
}
