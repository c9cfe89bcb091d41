package probe

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"
)

const maxBodyBytes = 64 * 1024

type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    string
}

type Response struct {
	StatusCode int
	Body       string
	LatencyMS  int
}

// Executor performs one network round-trip against an integration's health
// endpoint. Implementations must honor the context deadline.
type Executor interface {
	Execute(ctx context.Context, req Request) (Response, error)
}

type HTTPExecutor struct {
	Client *http.Client
}

func NewHTTPExecutor() *HTTPExecutor {
	return &HTTPExecutor{Client: &http.Client{}}
}

func (e *HTTPExecutor) Execute(ctx context.Context, req Request) (Response, error) {
	var body io.Reader
	if req.Body != "" {
		body = strings.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return Response{}, err
	}
	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}
	start := time.Now()
	resp, err := e.Client.Do(httpReq)
	latency := int(time.Since(start).Milliseconds())
	if err != nil {
		return Response{LatencyMS: latency}, err
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	latency = int(time.Since(start).Milliseconds())
	return Response{StatusCode: resp.StatusCode, Body: string(data), LatencyMS: latency}, nil
}
