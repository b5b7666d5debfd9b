package remote

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/mhollis/skiff/internal/models"
	"github.com/mhollis/skiff/internal/vpath"
)

// snippetLimit caps how much of an error response body is quoted back.
const snippetLimit = 256

// MutationClient performs delete, rename, move and mkdir against the
// backend. All operations reject the root path before any network call.
type MutationClient struct {
	conn   *Connection
	logger zerolog.Logger
}

// NewMutationClient creates a mutation client.
func NewMutationClient(conn *Connection, logger zerolog.Logger) *MutationClient {
	return &MutationClient{
		conn:   conn,
		logger: logger.With().Str("component", "mutation").Logger(),
	}
}

// Delete removes the file or directory at vp.
func (m *MutationClient) Delete(ctx context.Context, vp string) error {
	vp = vpath.Normalize(vp)
	if vpath.IsRoot(vp) {
		return &models.ValidationError{Reason: "the root folder cannot be deleted"}
	}

	req, err := m.conn.NewRequest(ctx, http.MethodDelete, vp, nil)
	if err != nil {
		return err
	}

	resp, err := m.conn.DoTimed(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if !success(resp.StatusCode) {
		return m.translate("delete", resp)
	}

	m.logger.Info().Str("path", vp).Msg("deleted")
	return nil
}

// Rename gives the entry at vp a new name within its directory. A
// destination equal to the source is a no-op.
func (m *MutationClient) Rename(ctx context.Context, vp, newName string) error {
	vp = vpath.Normalize(vp)
	if vpath.IsRoot(vp) {
		return &models.ValidationError{Reason: "the root folder cannot be renamed"}
	}
	if err := validateName(newName); err != nil {
		return err
	}

	parent, _ := vpath.Parent(vp)
	dest := vpath.Join(parent, newName)
	if dest == vp {
		return nil
	}

	return m.moveTo(ctx, vp, dest)
}

// Move relocates the entry at sourcePath into destinationDirectory,
// keeping its leaf name. Moving into the current parent is a no-op
// reported as success, with no request issued.
func (m *MutationClient) Move(ctx context.Context, sourcePath, destinationDirectory string) error {
	sourcePath = vpath.Normalize(sourcePath)
	if vpath.IsRoot(sourcePath) {
		return &models.ValidationError{Reason: "the root folder cannot be moved"}
	}

	leaf, _ := vpath.LeafName(sourcePath)
	dest := vpath.Join(destinationDirectory, leaf)
	if dest == sourcePath {
		return nil
	}

	return m.moveTo(ctx, sourcePath, dest)
}

// Mkdir creates folderName under parentPath.
func (m *MutationClient) Mkdir(ctx context.Context, parentPath, folderName string) error {
	if err := validateName(folderName); err != nil {
		return err
	}

	target := vpath.Join(parentPath, folderName)

	req, err := m.conn.NewRequest(ctx, "MKCOL", target, nil)
	if err != nil {
		return err
	}
	// MKCOL targets a collection; the backend wants the trailing slash.
	req.URL.Path += "/"

	resp, err := m.conn.DoTimed(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case success(resp.StatusCode):
		m.logger.Info().Str("path", target).Msg("created folder")
		return nil
	case resp.StatusCode == http.StatusMethodNotAllowed || resp.StatusCode == http.StatusConflict:
		// Callers ensuring ancestor directories treat this as non-fatal.
		return fmt.Errorf("folder %q: %w", folderName, models.ErrAlreadyExists)
	default:
		return m.translate("create folder", resp)
	}
}

func (m *MutationClient) moveTo(ctx context.Context, src, dest string) error {
	req, err := m.conn.NewRequest(ctx, "MOVE", src, nil)
	if err != nil {
		return err
	}

	// Strip query and fragment from the destination: some backends take
	// them as part of the literal filename, corrupting the move or
	// answering 422.
	destURL := m.conn.UpstreamURL(dest)
	req.Header.Set("Destination", destURL.String())
	req.Header.Set("Overwrite", "T")

	resp, err := m.conn.DoTimed(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if !success(resp.StatusCode) {
		return m.translateMove(resp)
	}

	m.logger.Info().Str("from", src).Str("to", dest).Msg("moved")
	return nil
}

// translateMove rewrites the backend's two known quirky move failures
// into actionable guidance; everything else gets the generic treatment.
func (m *MutationClient) translateMove(resp *http.Response) error {
	body := strings.ToLower(readSnippet(resp.Body))

	if resp.StatusCode == http.StatusUnauthorized && strings.Contains(body, "move") {
		return &models.UpstreamError{
			Action:     "move",
			StatusCode: resp.StatusCode,
			Snippet:    body,
			Hint: "the backend denied move access: grant the account move " +
				"permission or supply credentials that carry move rights",
			Err: models.ErrMoveAccessDenied,
		}
	}

	if resp.StatusCode == http.StatusUnprocessableEntity && strings.Contains(body, "unprocessable entity") {
		return &models.UpstreamError{
			Action:     "move",
			StatusCode: resp.StatusCode,
			Snippet:    body,
			Hint: "the backend rejected the destination: query parameters " +
				"leaked into the Destination header and were read as part of the filename",
			Err: models.ErrDestinationRejected,
		}
	}

	return &models.UpstreamError{
		Action:     "move",
		StatusCode: resp.StatusCode,
		Snippet:    body,
	}
}

func (m *MutationClient) translate(action string, resp *http.Response) error {
	return &models.UpstreamError{
		Action:     action,
		StatusCode: resp.StatusCode,
		Snippet:    readSnippet(resp.Body),
	}
}

func validateName(name string) error {
	trimmed := strings.TrimSpace(name)
	switch {
	case trimmed == "":
		return &models.ValidationError{Name: name, Reason: "name is empty"}
	case trimmed == "." || trimmed == "..":
		return &models.ValidationError{Name: name, Reason: "name is reserved"}
	case strings.ContainsAny(trimmed, "/\\"):
		return &models.ValidationError{Name: name, Reason: "name must not contain path separators"}
	}
	return nil
}

func success(code int) bool {
	return code >= 200 && code < 300
}

func readSnippet(r io.Reader) string {
	buf, _ := io.ReadAll(io.LimitReader(r, snippetLimit))
	return strings.Join(strings.Fields(string(buf)), " ")
}
