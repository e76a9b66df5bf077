package llmservice

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"multilingual-rag/internal/config"
)

var ErrUnreachable = errors.New("generation server unreachable")

// StatusError is a non-200 reply, or an error object inside a stream.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("generation request failed: %d, %s", e.Code, e.Body)
}

// Readiness reports whether the generation server may be used.
type Readiness interface {
	RequireReady() error
}

type Client struct {
	endpoint string
	model    string
	http     *http.Client
	ready    Readiness
}

func NewClient(cfg config.GenerationConfig, serverURL string, ready Readiness) *Client {
	return &Client{
		endpoint: strings.TrimRight(serverURL, "/") + cfg.GeneratePath,
		model:    cfg.Model,
		http:     &http.Client{Timeout: cfg.Timeout()},
		ready:    ready,
	}
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

// Generate sends one blocking request and returns the whole answer.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := c.post(ctx, prompt, false)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode generation response: %w", err)
	}
	if out.Error != "" {
		return "", &StatusError{Code: resp.StatusCode, Body: out.Error}
	}
	return out.Response, nil
}

// Stream opens a streaming request. The caller must Close the stream.
func (c *Client) Stream(ctx context.Context, prompt string) (*Stream, error) {
	resp, err := c.post(ctx, prompt, true)
	if err != nil {
		return nil, err
	}
	return newStream(resp.Body), nil
}

// GenerateStream drains a stream, passing each fragment to onFragment as it
// arrives, and returns the fragments joined in arrival order.
func (c *Client) GenerateStream(ctx context.Context, prompt string, onFragment func(string)) (string, error) {
	start := time.Now()
	st, err := c.Stream(ctx, prompt)
	if err != nil {
		return "", err
	}
	defer st.Close()

	var answer strings.Builder
	for {
		fragment, done, err := st.Recv()
		if err != nil {
			return answer.String(), err
		}
		if done {
			break
		}
		answer.WriteString(fragment)
		if onFragment != nil {
			onFragment(fragment)
		}
	}
	log.Debug().
		Int("fragments", st.Received()).
		Int("skipped", st.Skipped()).
		Dur("elapsed", time.Since(start)).
		Msg("Stream finished")
	return answer.String(), nil
}

func (c *Client) post(ctx context.Context, prompt string, stream bool) (*http.Response, error) {
	if c.ready != nil {
		if err := c.ready.RequireReady(); err != nil {
			return nil, err
		}
	}
	jsonData, err := json.Marshal(generateRequest{Model: c.model, Prompt: prompt, Stream: stream})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if isConnectionError(err) {
			return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
		}
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return resp, nil
}

func isConnectionError(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr) && urlErr.Timeout()
}

// Stream is a finite, non-restartable sequence of answer fragments read
// line by line from an open response.
type Stream struct {
	body     io.ReadCloser
	r        *bufio.Reader
	done     bool
	received int
	skipped  int
}

func newStream(body io.ReadCloser) *Stream {
	return &Stream{body: body, r: bufio.NewReader(body)}
}

// Recv blocks until the next fragment is available. Lines that do not parse
// are skipped. done is true once the connection has closed.
func (s *Stream) Recv() (string, bool, error) {
	for !s.done {
		line, err := s.r.ReadString('\n')
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.done = true
				return "", true, err
			}
			s.done = true
		}

		line = strings.TrimSpace(line)
		line = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if line == "" || line == "[DONE]" {
			continue
		}

		var chunk generateResponse
		if err := json.Unmarshal([]byte(line), &chunk); err != nil {
			s.skipped++
			continue
		}
		if chunk.Error != "" {
			s.done = true
			return "", true, &StatusError{Code: http.StatusOK, Body: chunk.Error}
		}
		s.received++
		return chunk.Response, false, nil
	}
	return "", true, nil
}

func (s *Stream) Skipped() int { return s.skipped }

func (s *Stream) Received() int { return s.received }

func (s *Stream) Close() error { return s.body.Close() }
