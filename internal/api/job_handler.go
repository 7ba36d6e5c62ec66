package api

import (
	"net/http"
	"strconv"
)

// ListJobs возвращает все job с состоянием расписания.
// GET /api/v1/jobs?enabled=true
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	var enabled *bool
	if v := r.URL.Query().Get("enabled"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			BadRequest(w, "invalid enabled")
			return
		}
		enabled = &b
	}

	jobs := h.registry.Snapshot()

	result := make([]JobResponse, 0, len(jobs))
	for _, j := range jobs {
		if enabled != nil && j.Definition.Enabled != *enabled {
			continue
		}
		result = append(result, JobFromRegistry(j))
	}

	List(w, result, len(result))
}

// GetJob возвращает job по имени.
// GET /api/v1/jobs/{name}
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if name == "" {
		BadRequest(w, "job name is required")
		return
	}

	job, err := h.registry.Get(name)
	if HandleRegistryError(w, h.logger, err, "job not found") {
		return
	}

	Success(w, JobFromRegistry(job))
}
