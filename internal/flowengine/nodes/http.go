package nodes

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/mbflowrt/flowengine/internal/domain"
	"github.com/mbflowrt/flowengine/internal/domain/flowerr"
	"github.com/mbflowrt/flowengine/internal/flowengine"
)

// HTTPRequestConfig is an http-request node's config shape, grounded on
// node_executors.go's HTTP executor.
type HTTPRequestConfig struct {
	URL       string            `json:"url"`
	Method    string            `json:"method"`
	Headers   map[string]string `json:"headers"`
	Body      any               `json:"body"`
	OutputKey string            `json:"outputKey"`
	TimeoutMs int               `json:"timeoutMs"`
}

// HTTPRequestExecutor issues an outbound HTTP call. Errors are classified
// external (non-2xx / transport failure) or timeout (context deadline).
type HTTPRequestExecutor struct {
	Client *http.Client
}

func (e *HTTPRequestExecutor) Execute(ctx context.Context, ec *flowengine.ExecutionContext, node *domain.Node) flowengine.NodeResult {
	cfg, err := decode[HTTPRequestConfig](node.Config())
	if err != nil {
		return flowengine.Failed(flowerr.Validation("parsing http-request config", err))
	}
	if cfg.URL == "" {
		return flowengine.Failed(flowerr.Validation("http-request node missing url", nil))
	}
	if cfg.Method == "" {
		cfg.Method = http.MethodGet
	}
	if cfg.OutputKey == "" {
		cfg.OutputKey = "output"
	}

	callCtx := ctx
	if cfg.TimeoutMs > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, time.Duration(cfg.TimeoutMs)*time.Millisecond)
		defer cancel()
	}

	var bodyReader io.Reader
	if cfg.Body != nil {
		raw, err := json.Marshal(cfg.Body)
		if err != nil {
			return flowengine.Failed(flowerr.Validation("marshalling http-request body", err))
		}
		bodyReader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(callCtx, cfg.Method, cfg.URL, bodyReader)
	if err != nil {
		return flowengine.Failed(flowerr.Validation("building http request", err))
	}
	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}

	client := e.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		if callCtx.Err() != nil {
			return flowengine.Failed(flowerr.Timeout("http request timed out", err))
		}
		return flowengine.Failed(flowerr.External("http request failed", err))
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	var parsed any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		parsed = string(raw)
	}

	if resp.StatusCode >= 400 {
		return flowengine.Failed(flowerr.External("http request returned error status", nil).WithContext(node.FlowID(), "", node.ID()))
	}

	return flowengine.Ok(map[string]any{
		cfg.OutputKey: parsed,
		"statusCode":  resp.StatusCode,
	})
}
