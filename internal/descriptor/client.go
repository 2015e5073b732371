package descriptor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/kozaktomas/attendance/internal/config"
	"github.com/kozaktomas/attendance/internal/constants"
	"github.com/kozaktomas/attendance/internal/facematch"
)

const (
	defaultServiceURL = "http://localhost:8001"
	faceEndpoint      = "/embed/face"
)

var _ Extractor = (*Client)(nil)

// Client extracts descriptors through the face embedding service.
// Images are normalized locally before upload.
type Client struct {
	baseURL string
	dim     int
	width   int
	height  int
	client  *http.Client
	logger  *slog.Logger
}

// NewClient creates a new extraction client from the face policy.
func NewClient(cfg config.FaceConfig, logger *slog.Logger) *Client {
	baseURL := cfg.ServiceURL
	if baseURL == "" {
		baseURL = defaultServiceURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		dim:     cfg.Dim,
		width:   cfg.Normalize.Width,
		height:  cfg.Normalize.Height,
		client:  &http.Client{Timeout: 30 * time.Second},
		logger:  logger,
	}
}

// FaceDetection represents a single detected face
type FaceDetection struct {
	FaceIndex int       `json:"face_index"`
	Dim       int       `json:"dim"`
	Embedding []float64 `json:"embedding"`
	BBox      []float64 `json:"bbox"` // [x1, y1, x2, y2]
	DetScore  float64   `json:"det_score"`
}

// FaceResponse represents the response from the face embedding endpoint
type FaceResponse struct {
	FacesCount int             `json:"faces_count"`
	Faces      []FaceDetection `json:"faces"`
	Model      string          `json:"model"`
}

// statusError is a non-200 reply from the embedding service.
type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.status, e.body)
}

// postMultipartImage constructs a multipart form with the JPEG image and posts it to the given endpoint.
func (c *Client) postMultipartImage(ctx context.Context, endpoint string, imageData []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="face.jpg"`)
	h.Set("Content-Type", "image/jpeg")
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}

	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &statusError{status: resp.StatusCode, body: string(body)}
	}

	return body, nil
}

// Extract normalizes the image, sends it to the embedding service and returns the first face's descriptor.
// Extra faces are ignored; the service's own ordering decides which one is first.
func (c *Client) Extract(ctx context.Context, image []byte) (facematch.Descriptor, error) {
	normalized, err := Normalize(image, c.width, c.height, constants.NormalizeJPEGQuality)
	if err != nil {
		return nil, err
	}

	body, err := c.postMultipartImage(ctx, faceEndpoint, normalized)
	if err != nil {
		var se *statusError
		if errors.As(err, &se) && se.status >= 400 && se.status < 500 {
			return nil, fmt.Errorf("%w: %v", ErrDecode, se)
		}
		return nil, fmt.Errorf("face embedding service: %w", err)
	}

	var faceResp FaceResponse
	if err := json.Unmarshal(body, &faceResp); err != nil {
		return nil, fmt.Errorf("%w: failed to parse response: %v", ErrEncodingFailed, err)
	}

	if len(faceResp.Faces) == 0 {
		return nil, ErrNoFaceDetected
	}
	if len(faceResp.Faces) > 1 {
		c.logger.WarnContext(ctx, "multiple faces detected, using the first", "faces", len(faceResp.Faces))
	}

	d := facematch.Descriptor(faceResp.Faces[0].Embedding)
	if err := facematch.Validate(d, c.dim); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncodingFailed, err)
	}
	return d, nil
}
