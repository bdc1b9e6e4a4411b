// Package inference calls a remote model server speaking the KServe v2 REST protocol
// (Triton, MLServer, KServe) to turn face tensors into embeddings.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptrace"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/httptrace/otelhttptrace"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/owlfacerec/owlface/config"
	"github.com/owlfacerec/owlface/internal"
	"github.com/owlfacerec/owlface/pkg/models"
)

const (
	MaxIdleConns        = 100
	MaxIdleConnsPerHost = 20
	IdleConnTimeout     = 30 * time.Second

	// maxResponseSize bounds how much of a response body is read.
	maxResponseSize = 32 << 20
)

var log = internal.GetLogger()

var _ models.EmbeddingExtractor = &Client{}

type inferTensor struct {
	Name     string    `json:"name"`
	Shape    []int     `json:"shape"`
	Datatype string    `json:"datatype"`
	Data     []float32 `json:"data"`
}

type inferRequest struct {
	Inputs  []inferTensor     `json:"inputs"`
	Outputs []inferOutputSpec `json:"outputs,omitempty"`
}

type inferOutputSpec struct {
	Name string `json:"name"`
}

type inferResponse struct {
	ModelName string        `json:"model_name"`
	Outputs   []inferTensor `json:"outputs"`
	Error     string        `json:"error"`
}

// Client is an EmbeddingExtractor backed by a model server. It is safe for concurrent use.
type Client struct {
	http       *retryablehttp.Client
	baseURL    string
	modelName  string
	inputName  string
	outputName string
}

func NewClient(cfg config.InferenceConfig) *Client {
	timeout := time.Duration(cfg.Timeout) * time.Second

	httpClient := &retryablehttp.Client{
		HTTPClient: &http.Client{
			Timeout: timeout,
			Transport: otelhttp.NewTransport(&http.Transport{
				MaxIdleConns:          MaxIdleConns,
				MaxIdleConnsPerHost:   MaxIdleConnsPerHost,
				IdleConnTimeout:       IdleConnTimeout,
				ResponseHeaderTimeout: timeout,
			}, otelhttp.WithClientTrace(
				func(ctx context.Context) *httptrace.ClientTrace {
					return otelhttptrace.NewClientTrace(ctx)
				}),
			),
		},
		Logger:       internal.NewRetryLogger(log),
		RetryWaitMin: 100 * time.Millisecond,
		RetryWaitMax: 2 * time.Second,
		RetryMax:     cfg.RetryMax,
		Backoff:      retryablehttp.DefaultBackoff,
		CheckRetry:   ignoreClientErrorRetryPolicy,
	}

	return &Client{
		http:       httpClient,
		baseURL:    strings.TrimSuffix(cfg.ServerURL, "/"),
		modelName:  cfg.ModelName,
		inputName:  cfg.InputName,
		outputName: cfg.OutputName,
	}
}

func (c *Client) modelURL(suffix string) string {
	return c.baseURL + "/v2/models/" + url.PathEscape(c.modelName) + suffix
}

// Extract sends tensor to the model and returns the raw output vector. Every failure is an
// InferenceError.
func (c *Client) Extract(ctx context.Context, tensor *models.Tensor) ([]float32, error) {
	if tensor == nil || len(tensor.Data) == 0 {
		return nil, models.NewInferenceError("empty input tensor", nil)
	}

	payload := inferRequest{
		Inputs: []inferTensor{{
			Name:     c.inputName,
			Shape:    tensor.Shape,
			Datatype: "FP32",
			Data:     tensor.Data,
		}},
	}
	if c.outputName != "" {
		payload.Outputs = []inferOutputSpec{{Name: c.outputName}}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, models.NewInferenceError("failed to encode request", err)
	}

	req, err := retryablehttp.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.modelURL("/infer"),
		bytes.NewReader(body),
	)
	if err != nil {
		return nil, models.NewInferenceError("failed to create request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, models.NewInferenceError("request to model server failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, models.NewInferenceError("failed to read model server response", err)
	}

	var out inferResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, models.NewInferenceError(
				fmt.Sprintf("model server returned %s", resp.Status), nil,
			)
		}
		return nil, models.NewInferenceError("failed to decode model server response", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := fmt.Sprintf("model server returned %s", resp.Status)
		if out.Error != "" {
			msg += ": " + out.Error
		}
		return nil, models.NewInferenceError(msg, nil)
	}

	output, err := c.selectOutput(out.Outputs)
	if err != nil {
		return nil, err
	}

	return output.Data, nil
}

func (c *Client) selectOutput(outputs []inferTensor) (*inferTensor, error) {
	if len(outputs) == 0 {
		return nil, models.NewInferenceError("model returned no outputs", nil)
	}
	if c.outputName == "" {
		return &outputs[0], nil
	}
	for i := range outputs {
		if outputs[i].Name == c.outputName {
			return &outputs[i], nil
		}
	}
	return nil, models.NewInferenceError(
		fmt.Sprintf("model returned no output named %q", c.outputName), nil,
	)
}

// Ready reports whether the model server has the model loaded.
func (c *Client) Ready(ctx context.Context) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.modelURL("/ready"), nil)
	if err != nil {
		return models.NewInferenceError("failed to create readiness request", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return models.NewInferenceError("model server unreachable", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseSize))

	if resp.StatusCode != http.StatusOK {
		return models.NewInferenceError(
			fmt.Sprintf("model %s not ready: %s", c.modelName, resp.Status), nil,
		)
	}
	return nil
}

// ignoreClientErrorRetryPolicy retries transport errors, 429 and 5xx. A 4xx means the
// request itself is wrong and would fail again.
func ignoreClientErrorRetryPolicy(
	ctx context.Context,
	resp *http.Response,
	err error,
) (bool, error) {
	// do not retry on context.Canceled or context.DeadlineExceeded
	if ctx.Err() != nil {
		return false, ctx.Err()
	}

	if resp != nil && resp.StatusCode != http.StatusOK {
		log.Warnf("inference retry policy invoked with status %s", resp.Status)
	}

	if resp != nil && resp.StatusCode >= 400 && resp.StatusCode < 500 &&
		resp.StatusCode != http.StatusTooManyRequests {
		return false, nil
	}

	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}
