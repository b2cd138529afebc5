package api

import (
	"context"
	"mime/multipart"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/stackitapp/stackit-sync/internal/domain"
)

func (s *Server) registerFileRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "getUploadPolicy",
		Method:      http.MethodGet,
		Path:        "/api/v1/files/policy",
		Summary:     "Upload policy",
		Description: "Returns the size limit and allowed content types",
		Tags:        []string{"Files"},
	}, s.handleUploadPolicy)

	huma.Register(s.api, huma.Operation{
		OperationID:   "uploadFile",
		Method:        http.MethodPost,
		Path:          "/api/v1/files",
		Summary:       "Upload a file",
		Description:   "Checks the file against the upload policy and stores it on the backend",
		Tags:          []string{"Files"},
		DefaultStatus: http.StatusCreated,
	}, s.handleUploadFile)
}

// UploadPolicyOutput wraps the upload policy for Huma.
type UploadPolicyOutput struct {
	Body domain.UploadInfo
}

// UploadFileInput is a multipart form carrying a "file" part.
type UploadFileInput struct {
	RawBody multipart.Form
}

// UploadFileOutput wraps the upload result for Huma.
type UploadFileOutput struct {
	Body domain.UploadResult
}

func (s *Server) handleUploadPolicy(ctx context.Context, _ *struct{}) (*UploadPolicyOutput, error) {
	policy, err := s.services.Files.Policy(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return &UploadPolicyOutput{Body: policy}, nil
}

func (s *Server) handleUploadFile(ctx context.Context, input *UploadFileInput) (*UploadFileOutput, error) {
	if _, err := s.requireUser(); err != nil {
		return nil, err
	}
	parts := input.RawBody.File["file"]
	if len(parts) == 0 {
		return nil, huma.Error400BadRequest("file is required")
	}
	header := parts[0]
	f, err := header.Open()
	if err != nil {
		return nil, huma.Error400BadRequest("file could not be read")
	}
	defer f.Close()

	result, err := s.services.Files.Upload(ctx, header.Filename, header.Header.Get("Content-Type"), f, nil)
	if err != nil {
		return nil, toStatus(err)
	}
	return &UploadFileOutput{Body: result}, nil
}
