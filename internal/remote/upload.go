package remote

import (
	"context"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/mhollis/skiff/internal/models"
	"github.com/mhollis/skiff/internal/vpath"
)

// uploadField is the multipart form field carrying the file payload.
const uploadField = "f"

// UploadClient performs the binary upload transport: a streaming
// multipart POST to a directory's upload URL. Uploads have no deadline
// of their own; cancellation comes through the caller's context.
type UploadClient struct {
	conn   *Connection
	logger zerolog.Logger
}

// NewUploadClient creates an upload client.
func NewUploadClient(conn *Connection, logger zerolog.Logger) *UploadClient {
	return &UploadClient{
		conn:   conn,
		logger: logger.With().Str("component", "upload").Logger(),
	}
}

// URL returns the authenticated upload URL for a directory, with the
// flag requesting a JSON rather than HTML response.
func (u *UploadClient) URL(dirPath string) string {
	target := u.conn.AuthURL(vpath.Normalize(dirPath))
	q := target.Query()
	q.Set("j", "")
	target.RawQuery = q.Encode()
	return target.String()
}

// Upload streams r as a multipart form to dirPath's upload URL under
// the resolved target name. onProgress, when non-nil, receives the
// cumulative byte count as the body is consumed.
func (u *UploadClient) Upload(ctx context.Context, dirPath, name string, r io.Reader, onProgress func(sent int64)) error {
	pr, pw := io.Pipe()
	form := multipart.NewWriter(pw)

	go func() {
		part, err := form.CreateFormFile(uploadField, name)
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, r); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(form.Close())
	}()

	var body io.Reader = pr
	if onProgress != nil {
		body = &progressReader{r: pr, report: onProgress}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.URL(dirPath), body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	origin := u.conn.base.Scheme + "://" + u.conn.base.Host
	req.Header.Set("Origin", origin)
	req.Header.Set("Referer", origin+"/")
	if u.conn.cookie != "" {
		req.Header.Set("Cookie", u.conn.cookie)
	}

	resp, err := u.conn.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if !success(resp.StatusCode) {
		return &models.UpstreamError{
			Action:     "upload",
			StatusCode: resp.StatusCode,
			Snippet:    readSnippet(resp.Body),
		}
	}

	u.logger.Debug().Str("dir", dirPath).Str("name", name).Msg("uploaded")
	return nil
}

// progressReader counts bytes of the outgoing multipart body. The
// count includes form framing, so callers clamp against the file size.
type progressReader struct {
	r      io.Reader
	sent   int64
	report func(int64)
}

func (p *progressReader) Read(buf []byte) (int, error) {
	n, err := p.r.Read(buf)
	if n > 0 {
		p.sent += int64(n)
		p.report(p.sent)
	}
	return n, err
}
