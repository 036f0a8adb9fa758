package emotion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"vibetunes/internal/domain"
	"vibetunes/internal/infra"
)

// ImageField is the multipart field the backend reads the image from.
const ImageField = "image"

// ErrMissingBaseURL indicates that the client was configured without a backend location.
var ErrMissingBaseURL = errors.New("emotion: base url is required")

// BackendError is a failure the backend described with a structured `{"error": ...}` body.
type BackendError struct {
	Status  int
	Message string
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("emotion: %s (status %d)", e.Message, e.Status)
}

// BackendMessage returns the message exactly as the backend sent it.
func (e *BackendError) BackendMessage() string {
	return e.Message
}

// StatusError is a non-2xx response without a structured error body.
type StatusError struct {
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("request failed with status code %d", e.Status)
}

// Options configures the backend client.
type Options struct {
	BaseURL        string
	HTTPClient     *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration
}

// Client talks to the emotion-classification-and-recommendation backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *infra.Logger
}

type videoItem struct {
	ID struct {
		VideoID string `json:"videoId"`
	} `json:"id"`
	Snippet struct {
		Title        string `json:"title"`
		ChannelTitle string `json:"channelTitle"`
	} `json:"snippet"`
}

type genreResponse struct {
	Genre  *string     `json:"genre"`
	Videos []videoItem `json:"videos"`
}

type searchResponse struct {
	Items []videoItem `json:"items"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// NewClient constructs a client. A zero RequestTimeout leaves the request unbounded,
// the backend routinely needs minutes under load.
func NewClient(opts Options) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		return nil, ErrMissingBaseURL
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("emotion: invalid base url: %w", err)
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.RequestTimeout}
	}
	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Client{baseURL: baseURL, httpClient: httpClient, logger: logger}, nil
}

// Classify posts the image to /genre-by-emotion and returns the recommended genre
// together with whatever videos the backend attached.
func (c *Client) Classify(ctx context.Context, img domain.ImagePayload) (*domain.Recommendation, error) {
	if img.Empty() {
		return nil, domain.ErrNoImage
	}
	body, contentType, err := encodeImage(img)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/genre-by-emotion", body)
	if err != nil {
		return nil, fmt.Errorf("emotion: build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	raw, err := c.do(req)
	if err != nil {
		return nil, err
	}
	var decoded genreResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("emotion: %w: %v", domain.ErrMalformedResponse, err)
	}
	if decoded.Genre == nil || strings.TrimSpace(*decoded.Genre) == "" {
		return nil, fmt.Errorf("emotion: %w: missing genre", domain.ErrMalformedResponse)
	}
	rec := &domain.Recommendation{Genre: strings.TrimSpace(*decoded.Genre), Videos: toVideos(decoded.Videos)}
	c.logger.Debug().
		Str("genre", rec.Genre).
		Int("videos", len(rec.Videos)).
		Msg("emotion: classified image")
	return rec, nil
}

// SearchVideos queries /youtube-search for videos matching a genre.
func (c *Client) SearchVideos(ctx context.Context, genre string) ([]domain.Video, error) {
	genre = strings.TrimSpace(genre)
	if genre == "" {
		return nil, errors.New("emotion: genre is required")
	}
	endpoint := c.baseURL + "/youtube-search?" + url.Values{"genre": []string{genre}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("emotion: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	raw, err := c.do(req)
	if err != nil {
		return nil, err
	}
	var decoded searchResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("emotion: %w: %v", domain.ErrMalformedResponse, err)
	}
	videos := toVideos(decoded.Items)
	c.logger.Debug().Str("genre", genre).Int("videos", len(videos)).Msg("emotion: searched videos")
	return videos, nil
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("emotion: http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("emotion: read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		var detail errorResponse
		if err := json.Unmarshal(raw, &detail); err == nil && strings.TrimSpace(detail.Error) != "" {
			return nil, &BackendError{Status: resp.StatusCode, Message: detail.Error}
		}
		return nil, fmt.Errorf("emotion: %w", &StatusError{Status: resp.StatusCode})
	}
	return raw, nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func encodeImage(img domain.ImagePayload) (io.Reader, string, error) {
	filename := strings.TrimSpace(img.Filename)
	if filename == "" {
		filename = "image"
	}
	mimeType := strings.TrimSpace(img.MIME)
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="%s"; filename="%s"`, ImageField, quoteEscaper.Replace(filename)))
	header.Set("Content-Type", mimeType)
	part, err := w.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("emotion: create form part: %w", err)
	}
	if _, err := part.Write(img.Data); err != nil {
		return nil, "", fmt.Errorf("emotion: write form part: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("emotion: close form: %w", err)
	}
	return buf, w.FormDataContentType(), nil
}

// toVideos keeps backend order and drops entries that cannot be embedded.
func toVideos(items []videoItem) []domain.Video {
	videos := make([]domain.Video, 0, len(items))
	for _, item := range items {
		id := strings.TrimSpace(item.ID.VideoID)
		if id == "" {
			continue
		}
		videos = append(videos, domain.Video{
			ID:           id,
			Title:        item.Snippet.Title,
			ChannelTitle: item.Snippet.ChannelTitle,
		})
	}
	return videos
}
