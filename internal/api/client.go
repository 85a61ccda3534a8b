package api

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/beamsim/beamsim/pkg/core"
)

const (
	healthPath = "/healthcheck"
	uploadPath = "/api/v1/recordings/add"
)

// Client uploads finished recordings to a replay web service.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func New(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Healthcheck reports whether the replay service answers.
func (c *Client) Healthcheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+healthPath, nil)
	if err != nil {
		return err
	}
	return c.do(req, "healthcheck")
}

// Upload streams the recording at path together with its metadata as one
// multipart form.
func (c *Client) Upload(ctx context.Context, path string, meta core.UploadMetadata) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open recording: %w", err)
	}
	defer file.Close()

	name := filepath.Base(path)
	body, form := io.Pipe()
	mw := multipart.NewWriter(form)
	go func() {
		form.CloseWithError(writeForm(mw, name, file, c.uploadFields(name, meta)))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+uploadPath, body)
	if err != nil {
		_ = body.Close()
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return c.do(req, "upload")
}

func (c *Client) uploadFields(name string, meta core.UploadMetadata) [][2]string {
	return [][2]string{
		{"secret", c.apiKey},
		{"filename", name},
		{"sessionName", meta.SessionName},
		{"duration", strconv.FormatFloat(meta.Duration, 'f', 3, 64)},
		{"ticks", strconv.FormatUint(meta.Ticks, 10)},
		{"actors", strconv.Itoa(meta.Actors)},
		{"tag", meta.Tag},
	}
}

// writeForm writes the fields then the file part and closes mw.
func writeForm(mw *multipart.Writer, name string, r io.Reader, fields [][2]string) error {
	for _, f := range fields {
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return fmt.Errorf("field %s: %w", f[0], err)
		}
	}
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, r); err != nil {
		return fmt.Errorf("copy recording: %w", err)
	}
	return mw.Close()
}

// do sends req and turns any non-200 answer into an error carrying the
// start of the response body.
func (c *Client) do(req *http.Request, op string) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
	if msg := strings.TrimSpace(string(snippet)); msg != "" {
		return fmt.Errorf("%s returned status %d: %s", op, resp.StatusCode, msg)
	}
	return fmt.Errorf("%s returned status %d", op, resp.StatusCode)
}
