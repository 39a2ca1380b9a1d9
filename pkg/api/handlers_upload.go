package api

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odvcencio/leadsplit/pkg/auth"
	"github.com/odvcencio/leadsplit/pkg/dispatch"
	apperrors "github.com/odvcencio/leadsplit/pkg/errors"
	"github.com/odvcencio/leadsplit/pkg/ingest"
	"github.com/odvcencio/leadsplit/pkg/logging"
	"github.com/odvcencio/leadsplit/pkg/storage"
)

const (
	uploadFieldName = "file"
	// multipartOverhead covers boundaries and part headers around the file.
	multipartOverhead int64 = 64 << 10
)

var errUploadTooLarge = errors.New("upload exceeds size limit")

type distributedList struct {
	ID              string                  `json:"id"`
	FileName        string                  `json:"fileName"`
	TotalRecords    int                     `json:"totalRecords"`
	DistributedData []storage.AssignedShare `json:"distributedData"`
	PlanDigest      string                  `json:"planDigest"`
	CreatedAt       time.Time               `json:"createdAt"`
}

type uploadResponse struct {
	Message         string          `json:"message"`
	DistributedList distributedList `json:"distributedList"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context(), s.logger)
	principal, _ := auth.PrincipalFrom(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes+multipartOverhead)
	part, err := s.filePart(r)
	if err != nil {
		status := s.writeUploadError(w, err)
		log.WithError(err).Warn("upload rejected", "status", status)
		return
	}
	defer part.Close()

	fileName := filepath.Base(part.FileName())
	if !ingest.IsAllowedExtension(fileName) {
		metricUploads.WithLabelValues(string(apperrors.ErrCodeUnsupportedFormat)).Inc()
		writeError(w, http.StatusBadRequest, "Only CSV, XLSX, and XLS files are allowed")
		return
	}

	d, err := s.uploader.Upload(r.Context(), dispatch.Upload{
		FileName:   fileName,
		Body:       &cappedReader{r: part, remaining: s.maxUploadBytes},
		UploadedBy: storage.Uploader{ID: principal.UserID, Email: principal.Email},
	})
	if err != nil {
		status := s.writeUploadError(w, err)
		log.WithError(err).Warn("upload failed", "file_name", fileName, "status", status)
		return
	}

	metricUploads.WithLabelValues("ok").Inc()
	metricRecordsDistributed.Add(float64(d.TotalRecords))
	writeJSON(w, http.StatusOK, uploadResponse{
		Message: "File uploaded and distributed successfully",
		DistributedList: distributedList{
			ID:              d.ID,
			FileName:        d.FileName,
			TotalRecords:    d.TotalRecords,
			DistributedData: d.Shares,
			PlanDigest:      d.PlanDigest,
			CreatedAt:       d.CreatedAt,
		},
	})
}

// filePart streams the multipart body up to the "file" field.
func (s *Server) filePart(r *http.Request) (*multipart.Part, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInvalidInput, "not a multipart upload").
			WithUserMessage("No file uploaded")
	}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return nil, apperrors.New(apperrors.ErrCodeInvalidInput, "multipart body has no file field").
				WithUserMessage("No file uploaded")
		}
		if err != nil {
			if isBodyTooLarge(err) {
				return nil, err
			}
			return nil, apperrors.Wrap(err, apperrors.ErrCodeInvalidInput, "read multipart body").
				WithUserMessage("No file uploaded")
		}
		if part.FormName() == uploadFieldName && part.FileName() != "" {
			return part, nil
		}
		part.Close()
	}
}

func (s *Server) writeUploadError(w http.ResponseWriter, err error) int {
	if isBodyTooLarge(err) {
		metricUploads.WithLabelValues("too_large").Inc()
		writeError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("File too large. Maximum size is %d bytes.", s.maxUploadBytes))
		return http.StatusRequestEntityTooLarge
	}
	outcome := string(apperrors.GetCode(err))
	if outcome == "" {
		outcome = string(apperrors.ErrCodeInternal)
	}
	metricUploads.WithLabelValues(outcome).Inc()
	return writeAppError(w, err)
}

// cappedReader fails with errUploadTooLarge once more than remaining bytes
// have been read.
type cappedReader struct {
	r         io.Reader
	remaining int64
}

func (c *cappedReader) Read(p []byte) (int, error) {
	if c.remaining < 0 {
		return 0, errUploadTooLarge
	}
	if int64(len(p)) > c.remaining+1 {
		p = p[:c.remaining+1]
	}
	n, err := c.r.Read(p)
	c.remaining -= int64(n)
	if c.remaining < 0 {
		return n, errUploadTooLarge
	}
	return n, err
}

func (s *Server) handleListDistributions(w http.ResponseWriter, r *http.Request) {
	list, err := s.store.ListDistributions(r.Context())
	if err != nil {
		s.serverError(w, r, err, "list distributions failed")
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetDistribution(w http.ResponseWriter, r *http.Request) {
	d, err := s.store.GetDistribution(r.Context(), chi.URLParam(r, "distributionID"))
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Distribution not found")
		return
	}
	if err != nil {
		s.serverError(w, r, err, "get distribution failed")
		return
	}
	writeJSON(w, http.StatusOK, d)
}
