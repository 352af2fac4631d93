package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/zhaobenny/aobatop/internal/logger"
	"github.com/zhaobenny/aobatop/internal/model"
	"github.com/zhaobenny/aobatop/internal/output"
)

// FileField is the multipart field the upload service reads the journal from
const FileField = "file"

// Client uploads journals to a report server
type Client struct {
	server     string
	httpClient *http.Client
}

// ErrorResponse is the body the server sends with a non-200 status
type ErrorResponse struct {
	Error string `json:"error"`
}

// ServerError is returned when the server rejects an upload
type ServerError struct {
	Status  int
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server returned status %d: %s", e.Status, e.Message)
}

// Unprocessable reports whether the server could not read the journal itself
func (e *ServerError) Unprocessable() bool {
	return e.Status == http.StatusUnprocessableEntity
}

// NewClient creates a new client for the server at the given base URL
func NewClient(server string) *Client {
	return &Client{
		server: strings.TrimRight(server, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Health checks that the server is reachable
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.server+"/healthz", nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned status %d", resp.StatusCode)
	}
	return nil
}

// Report uploads the journal at path and returns the report the server computed
func (c *Client) Report(ctx context.Context, path string, params map[string]string) (*model.Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range params {
		if v == "" {
			continue
		}
		if err := mw.WriteField(k, v); err != nil {
			return nil, err
		}
	}
	part, err := mw.CreateFormFile(FileField, filepath.Base(path))
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.server+"/api/report", &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	logger.Debug("uploading journal", "server", c.server, "path", path, "bytes", body.Len())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil || errResp.Error == "" {
			errResp.Error = http.StatusText(resp.StatusCode)
		}
		return nil, &ServerError{Status: resp.StatusCode, Message: errResp.Error}
	}

	var decoded output.JSONReport
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("invalid response from server: %w", err)
	}

	return decoded.Report()
}
