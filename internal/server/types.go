package server

import "github.com/fyrsmithlabs/retrievald/internal/query"

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// ErrorResponse is the structured body for request validation failures.
type ErrorResponse struct {
	Error string `json:"error"`
	Hint  string `json:"hint,omitempty"`
}

// UploadResponse is the response body for POST /upload.
type UploadResponse struct {
	Message       string   `json:"message"`
	UploadedFiles []string `json:"uploaded_files"`
	ClientID      string   `json:"client_id"`
}

// QueryRequest is the request body for POST /query.
type QueryRequest struct {
	Query    string `json:"query"`
	ClientID string `json:"client_id"`
}

// QueryResponse is the response body for POST /query.
type QueryResponse struct {
	ClientID    string           `json:"client_id"`
	Query       string           `json:"query"`
	Response    string           `json:"response"`
	CoreHits    int              `json:"core_hits"`
	ClientHits  int              `json:"client_hits"`
	GeneralHits int              `json:"general_hits"`
	Resources   []query.Resource `json:"resources"`
}

// NoResultsResponse is returned when no store contributes any context.
type NoResultsResponse struct {
	Result string `json:"result"`
}

// FilesResponse is the response body for GET /clients/:client_id/files.
type FilesResponse struct {
	ClientID string           `json:"client_id"`
	Files    []query.Resource `json:"files"`
}

// StatsResponse is the response body for GET /clients/:client_id/stats.
type StatsResponse struct {
	ClientID  string `json:"client_id"`
	Vectors   int    `json:"vectors"`
	Documents int    `json:"documents"`
}
