package main

import (
	"encoding/json"
	"net/http"
	"slices"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/Tsukikage7/intervalkit/logger"
	"github.com/Tsukikage7/intervalkit/metrics"
	"github.com/Tsukikage7/intervalkit/recovery"
	"github.com/Tsukikage7/intervalkit/scheduler"
)

// triggerView 触发器的 JSON 表示.
type triggerView struct {
	Name       string     `json:"name"`
	Interval   string     `json:"interval"`
	Paused     bool       `json:"paused"`
	LastShot   *time.Time `json:"last_shot,omitempty"`
	NextDue    *time.Time `json:"next_due,omitempty"`
	FireCount  int64      `json:"fire_count"`
	PanicCount int64      `json:"panic_count"`
}

// statsView 任务统计的 JSON 表示.
type statsView struct {
	FireCount     int64      `json:"fire_count"`
	PanicCount    int64      `json:"panic_count"`
	SkipCount     int64      `json:"skip_count"`
	LastFireAt    *time.Time `json:"last_fire_at,omitempty"`
	LastTrigger   string     `json:"last_trigger,omitempty"`
	LastError     string     `json:"last_error,omitempty"`
	LastDuration  string     `json:"last_duration"`
	TotalDuration string     `json:"total_duration"`
}

// jobView 任务的 JSON 表示.
type jobView struct {
	Name     string        `json:"name"`
	State    string        `json:"state"`
	Error    string        `json:"error,omitempty"`
	Triggers []triggerView `json:"triggers"`
	Stats    statsView     `json:"stats"`
}

// adminHandler 管理端 HTTP 接口.
type adminHandler struct {
	sched scheduler.Scheduler
	svc   *schedulerService
	log   logger.Logger
}

// newAdminHandler 创建管理端路由.
//
//	GET  /healthz                               存活检查，存在降级任务时返回 503
//	GET  /jobs                                  全部任务
//	GET  /jobs/{job}                            单个任务
//	POST /jobs/{job}/pause|resume               暂停/恢复任务的全部触发器
//	POST /jobs/{job}/triggers/{trigger}/pause|resume
//	GET  /config                                当前生效的调度配置（YAML）
//	POST /reload                                重新加载配置文件
//	GET  <metrics.path>                         Prometheus 指标
func newAdminHandler(sched scheduler.Scheduler, svc *schedulerService, collector *metrics.PrometheusCollector, log logger.Logger) http.Handler {
	h := &adminHandler{sched: sched, svc: svc, log: log}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", h.healthz)
	mux.HandleFunc("GET /jobs", h.listJobs)
	mux.HandleFunc("GET /jobs/{job}", h.getJob)
	mux.HandleFunc("POST /jobs/{job}/pause", h.pauseJob)
	mux.HandleFunc("POST /jobs/{job}/resume", h.resumeJob)
	mux.HandleFunc("POST /jobs/{job}/triggers/{trigger}/pause", h.pauseTrigger)
	mux.HandleFunc("POST /jobs/{job}/triggers/{trigger}/resume", h.resumeTrigger)
	mux.HandleFunc("GET /config", h.config)
	mux.HandleFunc("POST /reload", h.reload)

	if collector == nil {
		return recovery.HTTPMiddleware(recovery.WithLogger(log))(mux)
	}
	mux.Handle("GET "+collector.GetPath(), collector.GetHandler())
	return metrics.HTTPMiddleware(collector)(recovery.HTTPMiddleware(recovery.WithLogger(log))(mux))
}

func (h *adminHandler) healthz(w http.ResponseWriter, _ *http.Request) {
	var degraded []string
	for _, name := range h.sched.JobNames() {
		if state, ok := h.sched.JobState(name); ok && state == scheduler.JobStateDegraded {
			degraded = append(degraded, name)
		}
	}

	if len(degraded) > 0 {
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "degraded", "jobs": degraded})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (h *adminHandler) listJobs(w http.ResponseWriter, _ *http.Request) {
	names := h.sched.JobNames()
	jobs := make([]jobView, 0, len(names))
	for _, name := range names {
		if v, ok := h.jobView(name); ok {
			jobs = append(jobs, v)
		}
	}
	h.writeJSON(w, http.StatusOK, jobs)
}

func (h *adminHandler) getJob(w http.ResponseWriter, r *http.Request) {
	v, ok := h.jobView(r.PathValue("job"))
	if !ok {
		h.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	h.writeJSON(w, http.StatusOK, v)
}

func (h *adminHandler) pauseJob(w http.ResponseWriter, r *http.Request) {
	h.mutateJob(w, r, h.sched.PauseTriggers)
}

func (h *adminHandler) resumeJob(w http.ResponseWriter, r *http.Request) {
	h.mutateJob(w, r, h.sched.ResumeTriggers)
}

func (h *adminHandler) pauseTrigger(w http.ResponseWriter, r *http.Request) {
	h.mutateTrigger(w, r, h.sched.PauseTrigger)
}

func (h *adminHandler) resumeTrigger(w http.ResponseWriter, r *http.Request) {
	h.mutateTrigger(w, r, h.sched.ResumeTrigger)
}

func (h *adminHandler) mutateJob(w http.ResponseWriter, r *http.Request, fn func(job string)) {
	job := r.PathValue("job")
	if !h.checkJob(w, job) {
		return
	}
	fn(job)
	w.WriteHeader(http.StatusNoContent)
}

func (h *adminHandler) mutateTrigger(w http.ResponseWriter, r *http.Request, fn func(job, trigger string)) {
	job, trigger := r.PathValue("job"), r.PathValue("trigger")
	if !h.checkJob(w, job) {
		return
	}
	if !slices.Contains(h.sched.TriggerNames(job), trigger) {
		h.writeError(w, http.StatusNotFound, "trigger not found")
		return
	}
	fn(job, trigger)
	w.WriteHeader(http.StatusNoContent)
}

// checkJob 任务不存在返回 404，已降级返回 409.
func (h *adminHandler) checkJob(w http.ResponseWriter, job string) bool {
	state, ok := h.sched.JobState(job)
	if !ok {
		h.writeError(w, http.StatusNotFound, "job not found")
		return false
	}
	if state == scheduler.JobStateDegraded {
		h.writeError(w, http.StatusConflict, "job is degraded")
		return false
	}
	return true
}

func (h *adminHandler) config(w http.ResponseWriter, _ *http.Request) {
	cfg := h.svc.Current()
	out, err := yaml.Marshal(&cfg)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	_, _ = w.Write(out)
}

func (h *adminHandler) reload(w http.ResponseWriter, _ *http.Request) {
	if err := h.svc.Reload(); err != nil {
		h.writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *adminHandler) jobView(name string) (jobView, bool) {
	state, ok := h.sched.JobState(name)
	if !ok {
		return jobView{}, false
	}

	v := jobView{Name: name, State: state.String()}
	if err := h.sched.JobErr(name); err != nil {
		v.Error = err.Error()
	}

	infos := h.sched.Triggers(name)
	v.Triggers = make([]triggerView, 0, len(infos))
	for _, info := range infos {
		v.Triggers = append(v.Triggers, triggerView{
			Name:       info.Name,
			Interval:   info.Interval.String(),
			Paused:     info.Paused,
			LastShot:   timePtr(info.LastShot),
			NextDue:    timePtr(info.NextDue),
			FireCount:  info.FireCount,
			PanicCount: info.PanicCount,
		})
	}

	if stats, ok := h.sched.Stats(name); ok {
		v.Stats = statsView{
			FireCount:     stats.FireCount,
			PanicCount:    stats.PanicCount,
			SkipCount:     stats.SkipCount,
			LastFireAt:    timePtr(stats.LastFireAt),
			LastTrigger:   stats.LastTrigger,
			LastDuration:  stats.LastDuration.String(),
			TotalDuration: stats.TotalDuration.String(),
		}
		if stats.LastError != nil {
			v.Stats.LastError = stats.LastError.Error()
		}
	}
	return v, true
}

func (h *adminHandler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log.With(logger.Err(err)).Warn("[schedulerd] write response failed")
	}
}

func (h *adminHandler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, map[string]string{"error": msg})
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
