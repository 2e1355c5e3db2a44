package channel

import (
	"context"
	"fmt"
	"sync/atomic"
)

// Router spreads messages round-robin over the providers whose breaker is not open and
// retries on the next provider up to maxAttempts times.
type Router struct {
	providers         []Provider
	roundRobinCounter atomic.Uint64
	maxAttempts       int
}

var _ Sender = (*Router)(nil)

func NewRouter(provs []Provider, maxAttempts int) *Router {
	if maxAttempts < 1 {
		maxAttempts = 2
	}
	return &Router{providers: provs, maxAttempts: maxAttempts}
}

func (r *Router) selectProvider() (Provider, error) {
	healthy := make([]Provider, 0, len(r.providers))
	for _, p := range r.providers {
		if p.Ready() {
			healthy = append(healthy, p)
		}
	}

	if len(healthy) == 0 {
		return nil, ErrNoHealthy
	}

	x := r.roundRobinCounter.Add(1)
	idx := int((x - 1) % uint64(len(healthy)))

	return healthy[idx], nil
}

func (r *Router) Send(ctx context.Context, msg Message) (Result, error) {
	var last error
	for i := 0; i < r.maxAttempts; i++ {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		p, err := r.selectProvider()
		if err != nil {
			return Result{}, err
		}
		res, err := p.Send(ctx, msg)
		if err == nil {
			return res, nil
		}
		last = err
		if IsRejected(err) {
			break
		}
	}

	if last == nil {
		last = fmt.Errorf("send %s failed", msg.Channel)
	}

	return Result{}, last
}
