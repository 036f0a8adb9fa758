package emotion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"vibetunes/internal/domain"
)

func TestClassifySendsMultipartImage(t *testing.T) {
	transport := &captureTransport{responses: map[string]responseStub{}}
	transport.setJSONResponse("/genre-by-emotion", http.StatusOK, map[string]any{
		"genre": "Happy",
		"videos": []any{
			map[string]any{
				"id":      map[string]any{"videoId": "abc"},
				"snippet": map[string]any{"title": "T", "channelTitle": "C"},
			},
			map[string]any{
				"id":      map[string]any{"channelId": "skip-me"},
				"snippet": map[string]any{"title": "channel"},
			},
			map[string]any{
				"id":      map[string]any{"videoId": "def"},
				"snippet": map[string]any{"title": "T2", "channelTitle": "C2"},
			},
		},
	})
	client := newTestClient(t, transport)

	rec, err := client.Classify(context.Background(), domain.ImagePayload{
		Source:   domain.ImageSourceCapture,
		Filename: "captured_image.jpg",
		MIME:     "image/jpeg",
		Data:     []byte{0xff, 0xd8, 0xff, 0xe0},
	})
	if err != nil {
		t.Fatalf("Classify() error: %v", err)
	}
	if rec.Genre != "Happy" {
		t.Fatalf("genre = %q, want Happy", rec.Genre)
	}
	want := []domain.Video{{ID: "abc", Title: "T", ChannelTitle: "C"}, {ID: "def", Title: "T2", ChannelTitle: "C2"}}
	if len(rec.Videos) != len(want) {
		t.Fatalf("videos = %#v, want %#v", rec.Videos, want)
	}
	for i := range want {
		if rec.Videos[i] != want[i] {
			t.Fatalf("videos[%d] = %#v, want %#v", i, rec.Videos[i], want[i])
		}
	}

	if transport.lastMethod != http.MethodPost {
		t.Fatalf("method = %s, want POST", transport.lastMethod)
	}
	mediaType, params, err := mime.ParseMediaType(transport.lastContentType)
	if err != nil || mediaType != "multipart/form-data" {
		t.Fatalf("content type = %q (%v), want multipart/form-data", transport.lastContentType, err)
	}
	reader := multipart.NewReader(bytes.NewReader(transport.lastBody), params["boundary"])
	part, err := reader.NextPart()
	if err != nil {
		t.Fatalf("read part: %v", err)
	}
	if part.FormName() != ImageField {
		t.Fatalf("field = %q, want %q", part.FormName(), ImageField)
	}
	if part.FileName() != "captured_image.jpg" {
		t.Fatalf("filename = %q, want captured_image.jpg", part.FileName())
	}
	if ct := part.Header.Get("Content-Type"); ct != "image/jpeg" {
		t.Fatalf("part content type = %q, want image/jpeg", ct)
	}
	data, _ := io.ReadAll(part)
	if !bytes.Equal(data, []byte{0xff, 0xd8, 0xff, 0xe0}) {
		t.Fatalf("part data = %v", data)
	}
}

func TestClassifyStructuredError(t *testing.T) {
	transport := &captureTransport{responses: map[string]responseStub{}}
	transport.setJSONResponse("/genre-by-emotion", http.StatusBadRequest, map[string]any{
		"error": "No face detected: Face could not be detected. Please upload a clear face photo.",
	})
	client := newTestClient(t, transport)

	_, err := client.Classify(context.Background(), domain.ImagePayload{Filename: "a.jpg", MIME: "image/jpeg", Data: []byte{1}})
	var backendErr *BackendError
	if !errors.As(err, &backendErr) {
		t.Fatalf("error = %v, want *BackendError", err)
	}
	if backendErr.Status != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", backendErr.Status)
	}
	if !strings.Contains(backendErr.Message, "Face could not be detected") {
		t.Fatalf("message = %q", backendErr.Message)
	}
}

func TestClassifyUnstructuredFailure(t *testing.T) {
	transport := &captureTransport{responses: map[string]responseStub{
		"/genre-by-emotion": {status: http.StatusBadGateway, body: []byte("<html>bad gateway</html>")},
	}}
	client := newTestClient(t, transport)

	_, err := client.Classify(context.Background(), domain.ImagePayload{Filename: "a.jpg", Data: []byte{1}})
	if err == nil {
		t.Fatalf("expected error")
	}
	var backendErr *BackendError
	if errors.As(err, &backendErr) {
		t.Fatalf("unstructured body must not produce a BackendError: %v", err)
	}
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.Status != http.StatusBadGateway {
		t.Fatalf("error = %v, want StatusError 502", err)
	}
}

func TestClassifyMissingGenre(t *testing.T) {
	transport := &captureTransport{responses: map[string]responseStub{}}
	transport.setJSONResponse("/genre-by-emotion", http.StatusOK, map[string]any{"videos": []any{}})
	client := newTestClient(t, transport)

	_, err := client.Classify(context.Background(), domain.ImagePayload{Filename: "a.jpg", Data: []byte{1}})
	if !errors.Is(err, domain.ErrMalformedResponse) {
		t.Fatalf("error = %v, want ErrMalformedResponse", err)
	}
}

func TestClassifyRequiresImage(t *testing.T) {
	transport := &captureTransport{responses: map[string]responseStub{}}
	client := newTestClient(t, transport)

	if _, err := client.Classify(context.Background(), domain.ImagePayload{}); !errors.Is(err, domain.ErrNoImage) {
		t.Fatalf("error = %v, want ErrNoImage", err)
	}
	if transport.calls != 0 {
		t.Fatalf("calls = %d, want 0", transport.calls)
	}
}

func TestSearchVideosEncodesGenre(t *testing.T) {
	transport := &captureTransport{responses: map[string]responseStub{}}
	transport.setJSONResponse("/youtube-search", http.StatusOK, map[string]any{
		"items": []any{
			map[string]any{
				"id":      map[string]any{"videoId": "xyz"},
				"snippet": map[string]any{"title": "Song", "channelTitle": "Label"},
			},
		},
	})
	client := newTestClient(t, transport)

	videos, err := client.SearchVideos(context.Background(), "in love & romantic")
	if err != nil {
		t.Fatalf("SearchVideos() error: %v", err)
	}
	if got := transport.lastQuery.Get("genre"); got != "in love & romantic" {
		t.Fatalf("genre query = %q", got)
	}
	if len(videos) != 1 || videos[0].ID != "xyz" || videos[0].ChannelTitle != "Label" {
		t.Fatalf("videos = %#v", videos)
	}
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	if _, err := NewClient(Options{}); !errors.Is(err, ErrMissingBaseURL) {
		t.Fatalf("error = %v, want ErrMissingBaseURL", err)
	}
}

func newTestClient(t *testing.T, transport http.RoundTripper) *Client {
	t.Helper()
	client, err := NewClient(Options{
		BaseURL:    "http://backend.test/",
		HTTPClient: &http.Client{Transport: transport},
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

type captureTransport struct {
	responses       map[string]responseStub
	calls           int
	lastMethod      string
	lastContentType string
	lastQuery       url.Values
	lastBody        []byte
}

type responseStub struct {
	status int
	header http.Header
	body   []byte
}

func (c *captureTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	c.calls++
	c.lastMethod = req.Method
	c.lastContentType = req.Header.Get("Content-Type")
	c.lastQuery = req.URL.Query()
	if req.Body != nil {
		body, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		req.Body.Close()
		c.lastBody = body
	}
	if stub, ok := c.responses[req.URL.Path]; ok {
		return stub.toResponse(), nil
	}
	return &http.Response{
		StatusCode: http.StatusNotFound,
		Body:       io.NopCloser(strings.NewReader("not found")),
	}, nil
}

func (c *captureTransport) setJSONResponse(path string, status int, payload any) {
	body, _ := json.Marshal(payload)
	c.responses[path] = responseStub{
		status: status,
		header: http.Header{"Content-Type": []string{"application/json"}},
		body:   body,
	}
}

func (s responseStub) toResponse() *http.Response {
	header := http.Header{}
	for k, values := range s.header {
		cloned := make([]string, len(values))
		copy(cloned, values)
		header[k] = cloned
	}
	return &http.Response{
		StatusCode: s.status,
		Header:     header,
		Body:       io.NopCloser(bytes.NewReader(s.body)),
	}
}
