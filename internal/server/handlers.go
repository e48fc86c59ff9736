package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/fyrsmithlabs/retrievald/internal/ingest"
	"github.com/fyrsmithlabs/retrievald/internal/query"
	"github.com/fyrsmithlabs/retrievald/internal/store"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// handleUpload ingests multipart files for a client and builds (or
// augments) that client's store.
//
// Form fields: client_id (required), files (one or more, required),
// doc_ids (optional JSON mapping filename -> external document id).
func (s *Server) handleUpload(c echo.Context) error {
	clientID := c.FormValue("client_id")
	if clientID == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Missing client_id",
			Hint:  "Ensure client_id is in form data",
		})
	}

	form, err := c.MultipartForm()
	if err != nil {
		s.logger.Warn("invalid multipart form", zap.Error(err))
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid multipart form"})
	}
	fileHeaders := form.File["files"]
	if len(fileHeaders) == 0 {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "No files uploaded"})
	}

	// A malformed doc_ids mapping is tolerated: ingestion proceeds
	// without external ids rather than failing the upload.
	docIDs := map[string]string{}
	if raw := c.FormValue("doc_ids"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &docIDs); err != nil {
			s.logger.Warn("failed to parse doc_ids, ignoring", zap.Error(err))
			docIDs = map[string]string{}
		}
	}

	files := make([]ingest.File, 0, len(fileHeaders))
	for _, header := range fileHeaders {
		src, err := header.Open()
		if err != nil {
			s.logger.Warn("failed to open uploaded file", zap.String("file", header.Filename), zap.Error(err))
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Unreadable uploaded file: " + header.Filename})
		}
		data, err := io.ReadAll(src)
		src.Close()
		if err != nil {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Unreadable uploaded file: " + header.Filename})
		}
		files = append(files, ingest.File{Name: header.Filename, Data: data})
	}

	result, err := s.ingestor.Ingest(c.Request().Context(), clientID, files, docIDs)
	if err != nil {
		switch {
		case errors.Is(err, ingest.ErrNoFiles):
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "No files uploaded"})
		case errors.Is(err, store.ErrInvalidTenant):
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid client_id"})
		default:
			s.logger.Error("ingestion failed", zap.String("client_id", clientID), zap.Error(err))
			return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Ingestion failed"})
		}
	}

	return c.JSON(http.StatusOK, UploadResponse{
		Message:       "Documents processed and embeddings stored for " + clientID + ".",
		UploadedFiles: result.UploadedFiles,
		ClientID:      clientID,
	})
}

// handleQuery answers a query by fanning out to the core, client, and
// general stores.
func (s *Server) handleQuery(c echo.Context) error {
	var req QueryRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid query request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request body"})
	}
	if req.Query == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "query required"})
	}
	if req.ClientID == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "client_id required"})
	}

	answer, err := s.aggregator.Answer(c.Request().Context(), req.Query, req.ClientID)
	if err != nil {
		switch {
		case errors.Is(err, query.ErrMissingQuery), errors.Is(err, query.ErrMissingClient),
			errors.Is(err, store.ErrInvalidTenant):
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		default:
			s.logger.Error("query failed", zap.String("client_id", req.ClientID), zap.Error(err))
			return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Query failed"})
		}
	}

	if answer.NoResults {
		return c.JSON(http.StatusOK, NoResultsResponse{Result: answer.Response})
	}

	return c.JSON(http.StatusOK, QueryResponse{
		ClientID:    req.ClientID,
		Query:       req.Query,
		Response:    answer.Response,
		CoreHits:    answer.CoreHits,
		ClientHits:  answer.ClientHits,
		GeneralHits: answer.GeneralHits,
		Resources:   answer.Resources,
	})
}

// handleListFiles lists the deduplicated files known to a client's store.
func (s *Server) handleListFiles(c echo.Context) error {
	clientID := c.Param("client_id")

	resources, err := s.aggregator.ListResources(clientID)
	if err != nil {
		if errors.Is(err, store.ErrInvalidTenant) {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid client_id"})
		}
		s.logger.Error("listing files failed", zap.String("client_id", clientID), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Listing files failed"})
	}

	if resources == nil {
		resources = []query.Resource{}
	}
	return c.JSON(http.StatusOK, FilesResponse{ClientID: clientID, Files: resources})
}

// handleStats reports vector and document counts for a client's store.
// Both numbers come from one store load so they always describe the same
// snapshot.
func (s *Server) handleStats(c echo.Context) error {
	clientID := c.Param("client_id")

	stats, err := s.aggregator.Stats(clientID)
	if err != nil {
		if errors.Is(err, store.ErrInvalidTenant) {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid client_id"})
		}
		s.logger.Error("stats failed", zap.String("client_id", clientID), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Stats failed"})
	}

	return c.JSON(http.StatusOK, StatsResponse{
		ClientID:  clientID,
		Vectors:   stats.Vectors,
		Documents: len(stats.Resources),
	})
}
