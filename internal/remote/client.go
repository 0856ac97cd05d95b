// Package remote implements the media source over the server's HTTP API.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"rvslideshow/internal/playback"
)

const (
	HeaderMediaKind     = "X-Media-Kind"
	HeaderMediaDuration = "X-Media-Duration" // milliseconds
	HeaderMediaWidth    = "X-Media-Width"
	HeaderMediaHeight   = "X-Media-Height"
)

// ListRequest and NextRequest are the bodies of the source endpoints.
type ListRequest struct {
	Selection playback.Selection `json:"selection"`
}

type ListResponse struct {
	IDs []string `json:"ids"`
}

type NextRequest struct {
	Selection playback.Selection `json:"selection"`
	Seq       uint64             `json:"seq"`
}

type NextResponse struct {
	ID string `json:"id"`
}

// StatusError is a non-2xx reply.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d", e.Code)
	}
	return fmt.Sprintf("server returned %d: %s", e.Code, e.Message)
}

// Client is a playback.Source backed by a remote server.
type Client struct {
	baseURL string
	http    *http.Client
	logger  zerolog.Logger
}

var _ playback.Source = (*Client)(nil)

func NewClient(baseURL string, timeout time.Duration, logger zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/") + "/api/v1",
		http:    &http.Client{Timeout: timeout},
		logger:  logger.With().Str("component", "remote").Logger(),
	}
}

func (c *Client) ResetSession(ctx context.Context) error {
	err := c.post(ctx, "/source/reset", struct{}{}, nil)
	if errors.Is(err, errNoContent) {
		return nil
	}
	return err
}

func (c *Client) List(ctx context.Context, sel playback.Selection) ([]string, error) {
	var resp ListResponse
	if err := c.post(ctx, "/source/list", ListRequest{Selection: sel}, &resp); err != nil {
		return nil, err
	}
	return resp.IDs, nil
}

// Next maps 204 No Content to playback.ErrEndOfSequence.
func (c *Client) Next(ctx context.Context, sel playback.Selection, seq uint64) (string, error) {
	var resp NextResponse
	err := c.post(ctx, "/source/next", NextRequest{Selection: sel, Seq: seq}, &resp)
	if errors.Is(err, errNoContent) {
		return "", playback.ErrEndOfSequence
	}
	if err != nil {
		return "", err
	}
	return resp.ID, nil
}

func (c *Client) Fetch(ctx context.Context, id string) (*playback.Media, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/media/"+url.PathEscape(id)+"/content", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: %w", id, readStatusError(resp))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", id, err)
	}

	m := &playback.Media{
		ID:          id,
		Kind:        playback.MediaKind(resp.Header.Get(HeaderMediaKind)),
		ContentType: resp.Header.Get("Content-Type"),
		Data:        data,
	}
	if m.Kind == "" {
		m.Kind = playback.KindImage
		if strings.HasPrefix(m.ContentType, "video/") {
			m.Kind = playback.KindVideo
		}
	}
	if ms, err := strconv.ParseInt(resp.Header.Get(HeaderMediaDuration), 10, 64); err == nil {
		m.Duration = time.Duration(ms) * time.Millisecond
	}
	m.Width, _ = strconv.Atoi(resp.Header.Get(HeaderMediaWidth))
	m.Height, _ = strconv.Atoi(resp.Header.Get(HeaderMediaHeight))

	c.logger.Debug().Str("id", id).Int("bytes", len(data)).Msg("media fetched")
	return m, nil
}

var errNoContent = errors.New("no content")

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("POST %s: %w", path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNoContent:
		return errNoContent
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return fmt.Errorf("POST %s: %w", path, readStatusError(resp))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("POST %s: decode response: %w", path, err)
	}
	return nil
}

// readStatusError decodes the server's error envelope when present.
func readStatusError(resp *http.Response) error {
	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if json.Unmarshal(body, &envelope) == nil && envelope.Error.Message != "" {
		return &StatusError{Code: resp.StatusCode, Message: envelope.Error.Message}
	}
	return &StatusError{Code: resp.StatusCode, Message: strings.TrimSpace(string(body))}
}
