package backend

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"sync"

	"github.com/stackitapp/stackit-sync/internal/domain"
	"github.com/stackitapp/stackit-sync/internal/normalize"
	"github.com/stackitapp/stackit-sync/internal/wire"
)

const resourceFiles = "files"

// ProgressFunc receives upload progress as a percentage in [0, 100].
type ProgressFunc func(percent int)

// UploadInfo fetches the backend's upload policy.
func (c *Client) UploadInfo(ctx context.Context) (domain.UploadInfo, error) {
	var out wire.UploadInfo
	err := c.do(ctx, call{
		op:       "upload info",
		method:   http.MethodGet,
		resource: resourceFiles,
		path:     "/files/info",
		fallback: "Failed to get upload info",
	}, &out)
	if err != nil {
		return domain.UploadInfo{}, err
	}
	return normalize.UploadInfo(out), nil
}

// Upload sends content as the multipart field "file". progress may be nil.
func (c *Client) Upload(ctx context.Context, fileName, contentType string, content io.Reader, progress ProgressFunc) (domain.UploadResult, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, fileName))
	header.Set("Content-Type", contentType)
	part, err := mw.CreatePart(header)
	if err != nil {
		return domain.UploadResult{}, &RequestError{Op: "upload", Method: http.MethodPost, Message: "Upload failed", cause: err}
	}
	if _, err := io.Copy(part, content); err != nil {
		return domain.UploadResult{}, &RequestError{Op: "upload", Method: http.MethodPost, Message: "Upload failed", cause: fmt.Errorf("read file: %w", err)}
	}
	if err := mw.Close(); err != nil {
		return domain.UploadResult{}, &RequestError{Op: "upload", Method: http.MethodPost, Message: "Upload failed", cause: err}
	}

	var out wire.UploadResult
	err = c.do(ctx, call{
		op:            "upload",
		method:        http.MethodPost,
		resource:      resourceFiles,
		path:          "/files/upload",
		rawBody:       newProgressReader(buf.Bytes(), progress),
		contentLength: int64(buf.Len()),
		contentType:   mw.FormDataContentType(),
		fallback:      "Upload failed",
	}, &out)
	if err != nil {
		return domain.UploadResult{}, err
	}
	if progress != nil {
		progress(100)
	}
	return normalize.UploadResult(out), nil
}

// progressReader reports read progress. It never reports 100 itself; Upload does
// that once the server has accepted the body.
type progressReader struct {
	r        *bytes.Reader
	total    int64
	read     int64
	last     int
	mu       sync.Mutex
	progress ProgressFunc
}

func newProgressReader(data []byte, progress ProgressFunc) *progressReader {
	return &progressReader{r: bytes.NewReader(data), total: int64(len(data)), last: -1, progress: progress}
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 && p.progress != nil && p.total > 0 {
		p.mu.Lock()
		p.read += int64(n)
		pct := int(p.read * 99 / p.total)
		report := pct > p.last
		if report {
			p.last = pct
		}
		p.mu.Unlock()
		if report {
			p.progress(pct)
		}
	}
	return n, err
}
