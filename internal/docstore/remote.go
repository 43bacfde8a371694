package docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	defaultDialTimeout  = 10 * time.Second
	maxErrorBodySize    = 4 << 10
	remoteCollectionAPI = "/api/collections/"
)

// WriteRequest is the JSON body of a remote document write.
type WriteRequest struct {
	Fields map[string]any `json:"fields"`
	Merge  bool           `json:"merge"`
}

// RemoteClient is a [Service] backed by a Mission Control server.
//
// Each listener is one websocket connection; the server pushes CBOR frames
// (see [Frame]). Writes are plain HTTP requests. RemoteClient never
// reconnects: a dropped socket is reported once through the listener's
// error callback and the caller decides whether to listen again.
type RemoteClient struct {
	base       *url.URL
	token      string
	httpClient *http.Client
	dialer     *websocket.Dialer
	logger     *slog.Logger
}

// RemoteOption configures a [RemoteClient].
type RemoteOption func(*RemoteClient)

// WithToken sets the bearer token sent with writes and listener handshakes.
func WithToken(token string) RemoteOption {
	return func(c *RemoteClient) { c.token = token }
}

// WithHTTPClient replaces the HTTP client used for writes.
func WithHTTPClient(hc *http.Client) RemoteOption {
	return func(c *RemoteClient) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithRemoteLogger sets the client's logger.
func WithRemoteLogger(logger *slog.Logger) RemoteOption {
	return func(c *RemoteClient) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewRemoteClient creates a client for the server at baseURL
// (for example "http://localhost:8080").
func NewRemoteClient(baseURL string, opts ...RemoteOption) (*RemoteClient, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("server url scheme must be http or https, got %q", u.Scheme)
	}

	c := &RemoteClient{
		base:       u,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		dialer:     &websocket.Dialer{HandshakeTimeout: defaultDialTimeout, Proxy: http.ProxyFromEnvironment},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *RemoteClient) endpoint(scheme string, parts ...string) string {
	u := *c.base
	u.Scheme = scheme
	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = url.PathEscape(p)
	}
	prefix := strings.TrimSuffix(u.Path, "/") + remoteCollectionAPI
	u.Path = prefix + strings.Join(parts, "/")
	u.RawPath = prefix + strings.Join(escaped, "/")
	return u.String()
}

func (c *RemoteClient) authHeader() http.Header {
	h := http.Header{}
	if c.token != "" {
		h.Set("Authorization", "Bearer "+c.token)
	}
	return h
}

// OpenListener implements [Service]. The websocket handshake happens before
// OpenListener returns; a failed handshake is returned as an error.
func (c *RemoteClient) OpenListener(name string, onSnapshot func([]Document), onError func(error)) (func(), error) {
	if err := ValidateCollection(name); err != nil {
		return nil, err
	}

	wsScheme := "ws"
	if c.base.Scheme == "https" {
		wsScheme = "wss"
	}
	target := c.endpoint(wsScheme, name, "ws")

	conn, resp, err := c.dialer.Dial(target, c.authHeader())
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("listen %q: handshake failed with status %d: %w", name, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("listen %q: %w", name, err)
	}

	var (
		mu     sync.Mutex
		closed bool
	)
	isClosed := func() bool {
		mu.Lock()
		defer mu.Unlock()
		return closed
	}

	go func() {
		defer conn.Close()
		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				if !isClosed() && onError != nil {
					onError(fmt.Errorf("listen %q: connection lost: %w", name, err))
				}
				return
			}
			if mt != websocket.BinaryMessage {
				continue
			}
			frame, err := DecodeFrame(data)
			if err != nil {
				c.logger.Warn("dropping malformed listener frame", "collection", name, "error", err)
				continue
			}
			if isClosed() {
				return
			}
			switch frame.Type {
			case FrameSnapshot:
				docs := frame.Documents
				if docs == nil {
					docs = []Document{}
				}
				onSnapshot(docs)
			case FrameError:
				if onError != nil {
					onError(fmt.Errorf("listen %q: %s", name, frame.Error))
				}
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			mu.Lock()
			closed = true
			mu.Unlock()
			deadline := time.Now().Add(time.Second)
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
			_ = conn.Close()
		})
	}, nil
}

// WriteDocument implements [Service] with a PATCH request.
func (c *RemoteClient) WriteDocument(ctx context.Context, name, id string, patch map[string]any, merge bool) error {
	if err := ValidateCollection(name); err != nil {
		return err
	}
	if err := ValidateDocumentID(id); err != nil {
		return err
	}

	body, err := json.Marshal(WriteRequest{Fields: patch, Merge: merge})
	if err != nil {
		return fmt.Errorf("encode write: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, c.endpoint(c.base.Scheme, name, "documents", id), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header = c.authHeader()
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	msg := readErrorMessage(resp.Body)
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrPermissionDenied, msg)
	case http.StatusBadRequest:
		return fmt.Errorf("write rejected: %s", msg)
	default:
		return fmt.Errorf("write failed with status %d: %s", resp.StatusCode, msg)
	}
}

// readErrorMessage extracts {"error": "..."} from a response, falling back
// to the raw body.
func readErrorMessage(r io.Reader) string {
	raw, _ := io.ReadAll(io.LimitReader(r, maxErrorBodySize))
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil && payload.Error != "" {
		return payload.Error
	}
	if s := strings.TrimSpace(string(raw)); s != "" {
		return s
	}
	return "empty response"
}
