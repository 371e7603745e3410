package workers

import (
	"campus-relay/observability"
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/shirou/gopsutil/process"
)

// ProcessHealthWorker samples the CPU and memory usage of the relay process
// into the observability gauges.
type ProcessHealthWorker struct {
	log            *slog.Logger
	metricInterval time.Duration
	pid            int32
}

func NewProcessHealthWorker(log *slog.Logger, metricInterval time.Duration) *ProcessHealthWorker {
	return &ProcessHealthWorker{log: log, metricInterval: metricInterval, pid: int32(os.Getpid())}
}

func (w *ProcessHealthWorker) Run(ctx context.Context) error {
	p, err := process.NewProcessWithContext(ctx, w.pid)
	if err != nil {
		return fmt.Errorf("process %d not found: %w", w.pid, err)
	}
	ticker := time.NewTicker(w.metricInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping process sampling")
			return nil
		case <-ticker.C:
			w.sample(ctx, p)
		}
	}
}

func (w *ProcessHealthWorker) sample(ctx context.Context, p *process.Process) {
	cpu, err := p.CPUPercentWithContext(ctx)
	if err != nil {
		w.log.Debug("Error while finding process cpu usage", "error", err)
		return
	}
	ram, err := p.MemoryPercentWithContext(ctx)
	if err != nil {
		w.log.Debug("Error while finding process ram usage", "error", err)
		return
	}
	observability.ProcessCPU.Set(cpu)
	observability.ProcessMemory.Set(float64(ram))
}
