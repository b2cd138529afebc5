// Package files validates and uploads attachments against the backend's upload policy.
package files

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/stackitapp/stackit-sync/internal/backend"
	"github.com/stackitapp/stackit-sync/internal/domain"
	"github.com/stackitapp/stackit-sync/internal/errors"
	"github.com/stackitapp/stackit-sync/internal/validation"
)

// DefaultPolicyTTL is how long a fetched upload policy is reused.
const DefaultPolicyTTL = 10 * time.Minute

// API is the slice of the backend client the uploader uses.
type API interface {
	UploadInfo(ctx context.Context) (domain.UploadInfo, error)
	Upload(ctx context.Context, fileName, contentType string, content io.Reader, progress backend.ProgressFunc) (domain.UploadResult, error)
}

// Candidate is a file about to be uploaded.
type Candidate struct {
	Name string
	// DeclaredType is the caller's content type, used when sniffing is inconclusive.
	DeclaredType string
	Size         int64
	// Head holds the first bytes of the content for sniffing.
	Head []byte
}

// Verdict is the outcome of a pre-flight check.
type Verdict struct {
	ContentType string
	Problems    []string
}

// OK reports whether the candidate passed every check.
func (v Verdict) OK() bool { return len(v.Problems) == 0 }

// Err returns the problems as a VALIDATION_ERROR, or nil.
func (v Verdict) Err() error {
	if v.OK() {
		return nil
	}
	return errors.ValidationWithDetails(strings.Join(v.Problems, ", "), v.Problems)
}

// Uploader checks files against the cached policy and uploads them.
type Uploader struct {
	api    API
	logger *slog.Logger
	ttl    time.Duration
	now    func() time.Time

	mu        sync.Mutex
	policy    domain.UploadInfo
	fetchedAt time.Time
}

// NewUploader creates an uploader. ttl <= 0 selects DefaultPolicyTTL.
func NewUploader(api API, ttl time.Duration, logger *slog.Logger) *Uploader {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if ttl <= 0 {
		ttl = DefaultPolicyTTL
	}
	return &Uploader{api: api, logger: logger, ttl: ttl, now: time.Now}
}

// Policy returns the upload policy, fetching it when absent or expired.
func (u *Uploader) Policy(ctx context.Context) (domain.UploadInfo, error) {
	u.mu.Lock()
	if !u.fetchedAt.IsZero() && u.now().Sub(u.fetchedAt) < u.ttl {
		p := u.policy
		u.mu.Unlock()
		return p, nil
	}
	u.mu.Unlock()

	p, err := u.api.UploadInfo(ctx)
	if err != nil {
		return domain.UploadInfo{}, err
	}

	u.mu.Lock()
	u.policy, u.fetchedAt = p, u.now()
	u.mu.Unlock()
	return p, nil
}

// Check validates c against policy. Every failed rule is reported.
func Check(policy domain.UploadInfo, c Candidate) Verdict {
	v := Verdict{ContentType: detect(c)}

	if policy.MaxFileSize > 0 && c.Size > policy.MaxFileSize {
		v.Problems = append(v.Problems, fmt.Sprintf("File size exceeds maximum allowed size of %gMB", policy.MaxFileSizeMB))
	}
	if len(policy.AllowedTypes) > 0 && !slices.Contains(policy.AllowedTypes, v.ContentType) {
		v.Problems = append(v.Problems, fmt.Sprintf("File type %s is not allowed. Allowed types: %s",
			v.ContentType, strings.Join(policy.AllowedTypes, ", ")))
	}
	if !validation.SafeFilename(c.Name) {
		v.Problems = append(v.Problems, "Invalid file name")
	}
	return v
}

// detect sniffs the content type from the head bytes and falls back to the
// declared type when the sniffer only recognizes generic binary or text.
func detect(c Candidate) string {
	declared := strings.ToLower(strings.TrimSpace(c.DeclaredType))
	if i := strings.IndexByte(declared, ';'); i >= 0 {
		declared = strings.TrimSpace(declared[:i])
	}
	if len(c.Head) == 0 {
		return declared
	}
	mt := mimetype.Detect(c.Head)
	sniffed := mt.String()
	if i := strings.IndexByte(sniffed, ';'); i >= 0 {
		sniffed = sniffed[:i]
	}
	if (mt.Is("application/octet-stream") || mt.Is("text/plain")) && declared != "" {
		return declared
	}
	return sniffed
}

// Upload checks content against the policy and sends it. content is read
// fully before sending; at most the policy's size limit plus one byte is read.
func (u *Uploader) Upload(ctx context.Context, name, declaredType string, content io.Reader, progress backend.ProgressFunc) (domain.UploadResult, error) {
	policy, err := u.Policy(ctx)
	if err != nil {
		return domain.UploadResult{}, err
	}

	r := content
	if policy.MaxFileSize > 0 {
		r = io.LimitReader(content, policy.MaxFileSize+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return domain.UploadResult{}, fmt.Errorf("read upload %s: %w", name, err)
	}

	verdict := Check(policy, Candidate{
		Name:         name,
		DeclaredType: declaredType,
		Size:         int64(len(data)),
		Head:         data[:min(len(data), 3072)],
	})
	if err := verdict.Err(); err != nil {
		u.logger.Info("upload rejected before sending",
			slog.String("file", name),
			slog.Any("problems", verdict.Problems))
		return domain.UploadResult{}, err
	}

	result, err := u.api.Upload(ctx, name, verdict.ContentType, bytes.NewReader(data), progress)
	if err != nil {
		return domain.UploadResult{}, err
	}
	u.logger.Debug("upload stored",
		slog.String("file", result.FileName),
		slog.Int64("size", result.FileSize),
		slog.String("content_type", result.ContentType))
	return result, nil
}

// UploadFile uploads the file at path under its base name.
func (u *Uploader) UploadFile(ctx context.Context, path string, progress backend.ProgressFunc) (domain.UploadResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return domain.UploadResult{}, fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()
	return u.Upload(ctx, filepath.Base(path), "", f, progress)
}

