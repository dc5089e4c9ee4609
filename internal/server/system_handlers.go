package server

import (
	"net/http"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

var startedAt = time.Now()

// handleSystemStatus reports process and host health: uptime, CPU, memory,
// disk for the data directory, and database reachability.
func (s *Server) handleSystemStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"service":    "equityscope",
		"uptime":     time.Since(startedAt).Round(time.Second).String(),
		"goroutines": runtime.NumGoroutine(),
		"data_dir":   s.cfg.DataDir,
	}

	if pct, err := cpu.Percent(100*time.Millisecond, false); err == nil && len(pct) > 0 {
		status["cpu_percent"] = pct[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		status["memory"] = map[string]any{
			"total_bytes": vm.Total,
			"used_bytes":  vm.Used,
			"percent":     vm.UsedPercent,
		}
	}
	if du, err := disk.Usage(s.cfg.DataDir); err == nil {
		status["disk"] = map[string]any{
			"total_bytes": du.Total,
			"free_bytes":  du.Free,
			"percent":     du.UsedPercent,
		}
	}

	dbHealthy := s.db.QuickCheck(r.Context()) == nil
	status["database_healthy"] = dbHealthy

	code := http.StatusOK
	if !dbHealthy {
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, status)
}

func (s *Server) handleDatabaseStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.db.GetStats()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"size_bytes":     stats.SizeBytes,
		"wal_size_bytes": stats.WALSizeBytes,
		"page_count":     stats.PageCount,
		"page_size":      stats.PageSize,
		"freelist_count": stats.FreelistCount,
	})
}
