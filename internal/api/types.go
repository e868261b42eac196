package api

import "github.com/lamim/deckforge/pkg/models"

// Backend endpoints
const (
	pathModels          = "/api/models"
	pathGenerateOutline = "/api/generate-outline"
	pathGeneratePPT     = "/api/generate-ppt"
	pathConvert         = "/api/convert"
	pathUploadTemplate  = "/api/upload-template"
	pathTask            = "/api/task/"
	pathDownload        = "/api/download/"
)

// OutlineRequest is the body of POST /api/generate-outline
type OutlineRequest struct {
	Content    string `json:"content"`
	Model      string `json:"model,omitempty"`
	SlideCount int    `json:"slide_count,omitempty"`
}

// PPTRequest is the body of POST /api/generate-ppt
type PPTRequest struct {
	Outline    models.Outline `json:"outline"`
	Theme      string         `json:"theme"`
	TemplateID string         `json:"template_id,omitempty"`
}

// TaskResponse is returned by the job submission endpoints and by GET /api/task/{id}
type TaskResponse struct {
	TaskID      string  `json:"task_id"`
	Status      string  `json:"status"`
	Progress    float64 `json:"progress"`
	Message     string  `json:"message"`
	DownloadURL string  `json:"download_url"`
}

// ModelsResponse is returned by GET /api/models
type ModelsResponse struct {
	Models []string `json:"models"`
}

// TemplateResponse is returned by POST /api/upload-template
type TemplateResponse struct {
	TemplateID string `json:"template_id"`
	Filename   string `json:"filename"`
	Message    string `json:"message"`
}

// toJob converts a task payload into a job snapshot
func (r TaskResponse) toJob(kind models.JobKind) models.Job {
	job := models.Job{
		ID:        r.TaskID,
		Kind:      kind,
		Status:    models.JobStatus(r.Status),
		Progress:  int(r.Progress),
		Message:   r.Message,
		ResultRef: r.DownloadURL,
	}
	job.ClampProgress()
	return job
}
