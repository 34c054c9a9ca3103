package handler

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-player/internal/config"
	"github.com/stemsi/exstem-player/internal/response"
	"github.com/stemsi/exstem-player/internal/service"
)

// SystemHandler reports process and audit queue health.
type SystemHandler struct {
	rdb            *redis.Client
	sessionService *service.SessionService
	startTime      time.Time
	log            zerolog.Logger
}

// NewSystemHandler creates a SystemHandler. rdb may be nil when the audit
// trail is disabled.
func NewSystemHandler(rdb *redis.Client, sessionService *service.SessionService, log zerolog.Logger) *SystemHandler {
	return &SystemHandler{
		rdb:            rdb,
		sessionService: sessionService,
		startTime:      time.Now(),
		log:            log.With().Str("component", "system_handler").Logger(),
	}
}

type systemStatus struct {
	Timestamp int64  `json:"timestamp"`
	Uptime    string `json:"uptime"`

	// Go Application
	Goroutines  int    `json:"goroutines"`
	HeapAlloc   uint64 `json:"heap_alloc"`
	NumGC       uint32 `json:"num_gc"`
	AppRSSBytes uint64 `json:"app_rss_bytes"`
	GoVersion   string `json:"go_version"`

	// Sessions
	ActiveSessions int `json:"active_sessions"`

	// Worker Queues
	QueueIntegrity   *int64 `json:"queue_integrity,omitempty"`
	QueueSubmissions *int64 `json:"queue_submissions,omitempty"`
}

// Status godoc
// GET /api/v1/system/status
func (h *SystemHandler) Status(c *gin.Context) {
	response.Success(c, http.StatusOK, h.collect(c.Request.Context()))
}

func (h *SystemHandler) collect(ctx context.Context) systemStatus {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	st := systemStatus{
		Timestamp:      time.Now().Unix(),
		Uptime:         formatDuration(time.Since(h.startTime)),
		Goroutines:     runtime.NumGoroutine(),
		HeapAlloc:      ms.HeapAlloc,
		NumGC:          ms.NumGC,
		GoVersion:      runtime.Version(),
		ActiveSessions: h.sessionService.Len(),
	}
	st.AppRSSBytes, _ = readProcessRSS()

	if h.rdb == nil {
		return st
	}

	// ── Worker Queues (pipelined LLEN) ──
	pipe := h.rdb.Pipeline()
	integrityCmd := pipe.LLen(ctx, config.WorkerKey.PersistIntegrityQueue)
	submissionsCmd := pipe.LLen(ctx, config.WorkerKey.PersistSubmissionsQueue)
	if _, err := pipe.Exec(ctx); err != nil {
		h.log.Warn().Err(err).Msg("Queue length lookup failed")
		return st
	}
	integrity, _ := integrityCmd.Result()
	submissions, _ := submissionsCmd.Result()
	st.QueueIntegrity, st.QueueSubmissions = &integrity, &submissions
	return st
}

// readProcessRSS reads VmRSS from /proc/self/status.
func readProcessRSS() (uint64, error) {
	f, err := os.Open("/proc/self/status")
	if err != nil {
		return 0, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "VmRSS:") {
			// Format: "VmRSS:     16384 kB"
			fields := strings.Fields(line)
			if len(fields) < 2 {
				break
			}
			val, _ := strconv.ParseUint(fields[1], 10, 64)
			return val * 1024, nil
		}
	}
	return 0, fmt.Errorf("VmRSS not found")
}

// ---------- Helpers ----------

func formatDuration(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	}
	return fmt.Sprintf("%dm %ds", minutes, seconds)
}
