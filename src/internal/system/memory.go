package system

import (
	"log/slog"
	"runtime"
)

// MemStats is a small snapshot of the Go heap for health endpoints.
type MemStats struct {
	AllocMB      uint64 `json:"alloc_mb"`
	TotalAllocMB uint64 `json:"total_alloc_mb"`
	SysMB        uint64 `json:"sys_mb"`
	NumGC        uint32 `json:"num_gc"`
	Goroutines   int    `json:"goroutines"`
}

func ReadMemStats() MemStats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return MemStats{
		AllocMB:      bToMb(m.Alloc),
		TotalAllocMB: bToMb(m.TotalAlloc),
		SysMB:        bToMb(m.Sys),
		NumGC:        m.NumGC,
		Goroutines:   runtime.NumGoroutine(),
	}
}

// LogMemoryUsage logs the current memory usage of the process.
func LogMemoryUsage(tag string) {
	s := ReadMemStats()
	slog.Info("memory usage",
		"tag", tag,
		"alloc_mb", s.AllocMB,
		"total_alloc_mb", s.TotalAllocMB,
		"sys_mb", s.SysMB,
		"num_gc", s.NumGC,
	)
}

func bToMb(b uint64) uint64 {
	return b / 1024 / 1024
}
