package handler

import (
	"net/http"
	"runtime"
	"strconv"
	"time"

	"ems-dispatch-api/internal/cache"
	"ems-dispatch-api/internal/repository"
	"ems-dispatch-api/internal/service"
	"ems-dispatch-api/pkg/apierror"
	"ems-dispatch-api/pkg/response"
)

// FeedStats exposes the dispatch feed's connection count.
type FeedStats interface {
	ClientCount() int
}

// AdminHandler handles admin-related HTTP requests.
type AdminHandler struct {
	roster     *service.RosterService
	dispatch   *service.DispatchService
	payroll    *service.PayrollService
	archive    repository.CallArchive // optional
	statBuffer cache.StatBuffer       // optional
	feed       FeedStats              // optional
	loginKey   string
	startTime  time.Time
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(
	roster *service.RosterService,
	dispatch *service.DispatchService,
	payroll *service.PayrollService,
	archive repository.CallArchive,
	statBuffer cache.StatBuffer,
	feed FeedStats,
	loginKey string,
) *AdminHandler {
	return &AdminHandler{
		roster:     roster,
		dispatch:   dispatch,
		payroll:    payroll,
		archive:    archive,
		statBuffer: statBuffer,
		feed:       feed,
		loginKey:   loginKey,
		startTime:  time.Now(),
	}
}

// requireLoginKey validates the X-Login-Key header when present. Requests
// without the header already passed the auth middleware; requests carrying
// the header bypassed it, so the key must match the configured one.
func (h *AdminHandler) requireLoginKey(w http.ResponseWriter, r *http.Request) bool {
	key := r.Header.Get("X-Login-Key")
	if key == "" {
		return true
	}
	if h.loginKey == "" || key != h.loginKey {
		response.Error(w, apierror.Unauthorized("invalid login key"))
		return false
	}
	return true
}

// GetStats handles GET /api/v1/admin/stats
func (h *AdminHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	if !h.requireLoginKey(w, r) {
		return
	}

	ctx := r.Context()
	stats := make(map[string]interface{})

	stats["uptime_seconds"] = int64(time.Since(h.startTime).Seconds())
	stats["uptime_human"] = time.Since(h.startTime).Round(time.Second).String()
	stats["server_time"] = time.Now().Format(time.RFC3339)

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	stats["memory"] = map[string]interface{}{
		"alloc_mb":   float64(memStats.Alloc) / 1024 / 1024,
		"sys_mb":     float64(memStats.Sys) / 1024 / 1024,
		"num_gc":     memStats.NumGC,
		"goroutines": runtime.NumGoroutine(),
	}

	players := h.roster.All()
	onDuty := 0
	for _, p := range players {
		if p.OnDuty {
			onDuty++
		}
	}
	stats["roster"] = map[string]interface{}{
		"connected": len(players),
		"on_duty":   onDuty,
	}

	calls := h.dispatch.ActiveCalls()
	byStatus := make(map[string]int)
	for _, c := range calls {
		byStatus[string(c.Status)]++
	}
	stats["board"] = map[string]interface{}{
		"calls":     len(calls),
		"by_status": byStatus,
	}

	if h.archive != nil {
		if archiveStats, err := h.archive.GetStats(ctx); err == nil {
			stats["archive"] = archiveStats
		} else {
			stats["archive"] = map[string]interface{}{"status": "error", "error": err.Error()}
		}
	} else {
		stats["archive"] = map[string]interface{}{"status": "not_configured"}
	}

	if h.statBuffer != nil {
		if pending, err := h.statBuffer.Pending(ctx); err == nil {
			stats["stat_buffer"] = map[string]interface{}{
				"pending_characters": pending,
				"status":             "connected",
			}
		} else {
			stats["stat_buffer"] = map[string]interface{}{"status": "error", "error": err.Error()}
		}
	} else {
		stats["stat_buffer"] = map[string]interface{}{"status": "not_configured"}
	}

	if h.feed != nil {
		stats["feed_clients"] = h.feed.ClientCount()
	}

	response.OK(w, stats)
}

// GetHistory handles GET /api/v1/admin/history - recently closed calls.
func (h *AdminHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	if !h.requireLoginKey(w, r) {
		return
	}
	if h.archive == nil {
		response.Error(w, apierror.ServiceUnavailable("call archive not configured"))
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	calls, err := h.archive.RecentCalls(r.Context(), limit)
	if err != nil {
		response.Error(w, apierror.InternalError("failed to read call archive"))
		return
	}

	response.JSONWithMeta(w, http.StatusOK, calls, 1, limit, int64(len(calls)))
}

// RunPayroll handles POST /api/v1/admin/payroll - immediate payout cycle.
func (h *AdminHandler) RunPayroll(w http.ResponseWriter, r *http.Request) {
	if !h.requireLoginKey(w, r) {
		return
	}

	paid, total := h.payroll.RunNow()
	response.OK(w, map[string]interface{}{
		"players_paid": paid,
		"total_paid":   total,
	})
}

// VerifyLogin handles POST /api/v1/admin/login
func (h *AdminHandler) VerifyLogin(w http.ResponseWriter, r *http.Request) {
	if h.loginKey == "" {
		response.Error(w, apierror.ServiceUnavailable("admin login not configured"))
		return
	}

	key := r.Header.Get("X-Login-Key")
	if key == "" || key != h.loginKey {
		response.Error(w, apierror.Unauthorized("invalid login key"))
		return
	}

	response.OK(w, map[string]string{"status": "authenticated"})
}
