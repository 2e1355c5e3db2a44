package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jmehdipour/retreat-sync/internal/config"
	"github.com/jmehdipour/retreat-sync/internal/logger"
	"github.com/jmehdipour/retreat-sync/internal/metrics"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

type Provider interface {
	Name() string
	Ready() bool
	Send(ctx context.Context, msg Message) (Result, error)
}

// HTTPProvider posts JSON to one upstream behind a circuit breaker. 4xx answers do not
// count as breaker failures.
type HTTPProvider struct {
	name    string
	baseURL string
	path    string
	token   string
	client  *http.Client
	br      *gobreaker.CircuitBreaker
}

func NewHTTPProvider(pc config.ProviderConfig, log *zap.Logger) *HTTPProvider {
	timeoutMs := pc.TimeoutMs
	if timeoutMs <= 0 {
		timeoutMs = 3000
	}
	failThreshold := pc.Breaker.FailThreshold
	if failThreshold <= 0 {
		failThreshold = 3
	}
	openForMs := pc.Breaker.OpenForMs
	if openForMs <= 0 {
		openForMs = 15000
	}
	log = logger.OrGlobal(log, "provider").With(zap.String("provider", pc.Name))

	p := &HTTPProvider{
		name:    pc.Name,
		baseURL: strings.TrimRight(pc.BaseURL, "/"),
		path:    pc.Path,
		token:   pc.Token,
		client:  &http.Client{Timeout: time.Duration(timeoutMs) * time.Millisecond},
	}
	p.br = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        pc.Name,
		MaxRequests: 1,
		Timeout:     time.Duration(openForMs) * time.Millisecond,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= uint32(failThreshold)
		},
		IsSuccessful: func(err error) bool {
			return err == nil || IsRejected(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.ProviderBreakerState.WithLabelValues(name).Set(breakerGauge(to))
			log.Warn("provider breaker state changed", zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})
	metrics.ProviderBreakerState.WithLabelValues(pc.Name).Set(0)
	return p
}

func (p *HTTPProvider) Name() string { return p.name }

// Ready reports whether the breaker would let a request through.
func (p *HTTPProvider) Ready() bool { return p.br.State() != gobreaker.StateOpen }

func (p *HTTPProvider) Send(ctx context.Context, msg Message) (Result, error) {
	var res Result
	if err := p.Call(ctx, msg, &res); err != nil {
		return Result{}, err
	}
	res.Provider = p.name
	return res, nil
}

// Call posts in as JSON and decodes the 2xx response body into out when out is non-nil.
func (p *HTTPProvider) Call(ctx context.Context, in, out any) error {
	_, err := p.br.Execute(func() (interface{}, error) {
		return nil, p.post(ctx, in, out)
	})
	return err
}

func (p *HTTPProvider) post(ctx context.Context, in, out any) error {
	b, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+p.path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}

	res, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	switch {
	case res.StatusCode/100 == 4:
		body, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return &RejectedError{Provider: p.name, Status: res.StatusCode, Body: string(body)}
	case res.StatusCode/100 != 2:
		return fmt.Errorf("provider=%s path=%s status=%d", p.name, p.path, res.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil && err != io.EOF {
		return fmt.Errorf("provider=%s decode response: %w", p.name, err)
	}
	return nil
}

func breakerGauge(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
