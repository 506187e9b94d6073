// Package sysload gates conversion dispatch on host resource headroom.
package sysload

import (
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/sirupsen/logrus"

	"hevcbatch/internal/config"
)

const recheckInterval = 5 * time.Second

// Guard blocks dispatch while the host is short on CPU, memory or disk.
// Thresholds come from config; zero values disable the matching check.
type Guard struct {
	throttle config.Throttle
	diskPath string
	log      *logrus.Entry
}

// New creates a Guard. diskPath is where free space is measured, normally
// the directory conversions write to.
func New(throttle config.Throttle, diskPath string) *Guard {
	return &Guard{
		throttle: throttle,
		diskPath: diskPath,
		log:      logrus.WithField("component", "sysload"),
	}
}

// Enabled reports whether any threshold is configured
func (g *Guard) Enabled() bool {
	return g.throttle.MaxCPUPercent > 0 ||
		g.throttle.MinFreeMemMB > 0 ||
		g.throttle.MinFreeDiskMB > 0
}

// Check returns an error describing the first exhausted resource, or nil
// when the host has headroom
func (g *Guard) Check() error {
	if g.throttle.MaxCPUPercent > 0 {
		usage, err := cpu.Percent(time.Second, false)
		if err != nil {
			g.log.WithError(err).Warn("could not read CPU usage")
		} else if len(usage) > 0 && usage[0] > g.throttle.MaxCPUPercent {
			return fmt.Errorf("CPU usage %.1f%% above threshold %.1f%%", usage[0], g.throttle.MaxCPUPercent)
		}
	}

	if g.throttle.MinFreeMemMB > 0 {
		vm, err := mem.VirtualMemory()
		if err != nil {
			g.log.WithError(err).Warn("could not read memory usage")
		} else if vm.Available < uint64(g.throttle.MinFreeMemMB)*1024*1024 {
			return fmt.Errorf("available memory %dMB below threshold %dMB",
				vm.Available/1024/1024, g.throttle.MinFreeMemMB)
		}
	}

	if g.throttle.MinFreeDiskMB > 0 {
		du, err := disk.Usage(g.diskPath)
		if err != nil {
			g.log.WithError(err).Warnf("could not read disk usage for %s", g.diskPath)
		} else if du.Free < uint64(g.throttle.MinFreeDiskMB)*1024*1024 {
			return fmt.Errorf("free disk %dMB below threshold %dMB",
				du.Free/1024/1024, g.throttle.MinFreeDiskMB)
		}
	}

	return nil
}

// Wait blocks until the host has headroom or the context is done
func (g *Guard) Wait(ctx context.Context) error {
	if !g.Enabled() {
		return nil
	}

	for {
		err := g.Check()
		if err == nil {
			return nil
		}
		g.log.WithError(err).Info("waiting for host headroom")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(recheckInterval):
		}
	}
}
