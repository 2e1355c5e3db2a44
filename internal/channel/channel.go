// Package channel delivers outbound notifications over a fixed set of channel kinds.
package channel

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmehdipour/retreat-sync/internal/config"
	"go.uber.org/zap"
)

type Kind string

const (
	Email    Kind = "email"
	WhatsApp Kind = "whatsapp"
)

func (k Kind) Valid() bool { return k == Email || k == WhatsApp }

func (k Kind) String() string { return string(k) }

var (
	ErrUnknownChannel = errors.New("unknown channel")
	ErrNoHealthy      = errors.New("no healthy providers")
)

// Message is one outbound notification to a single recipient.
type Message struct {
	Channel   Kind   `json:"channel"`
	Recipient string `json:"to"`
	Subject   string `json:"subject,omitempty"`
	Body      string `json:"body"`
	// DedupeKey is forwarded so providers can drop replays on their side too.
	DedupeKey string `json:"dedupeKey,omitempty"`
}

type Result struct {
	Provider   string `json:"provider"`
	ProviderID string `json:"id"`
}

type Sender interface {
	Send(ctx context.Context, msg Message) (Result, error)
}

// Registry binds each channel kind to its sender.
type Registry struct {
	senders map[Kind]Sender
}

func NewRegistry() *Registry {
	return &Registry{senders: map[Kind]Sender{}}
}

func (r *Registry) Register(kind Kind, s Sender) {
	r.senders[kind] = s
}

// Has reports whether kind has a sender.
func (r *Registry) Has(kind Kind) bool {
	_, ok := r.senders[kind]
	return ok
}

func (r *Registry) Send(ctx context.Context, msg Message) (Result, error) {
	s, ok := r.senders[msg.Channel]
	if !ok {
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownChannel, msg.Channel)
	}
	return s.Send(ctx, msg)
}

// RejectedError is a 4xx answer from a provider. Retrying the same request cannot succeed.
type RejectedError struct {
	Provider string
	Status   int
	Body     string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("provider=%s rejected request: status=%d body=%q", e.Provider, e.Status, e.Body)
}

func IsRejected(err error) bool {
	var r *RejectedError
	return errors.As(err, &r)
}

// FromConfig builds a registry with one Router per configured kind. Disabled providers are skipped.
func FromConfig(cfg config.ChannelsConfig, log *zap.Logger) *Registry {
	reg := NewRegistry()
	for kind, pcs := range map[Kind][]config.ProviderConfig{Email: cfg.Email, WhatsApp: cfg.WhatsApp} {
		var provs []Provider
		for _, pc := range pcs {
			if pc.Enabled {
				provs = append(provs, NewHTTPProvider(pc, log))
			}
		}
		if len(provs) > 0 {
			reg.Register(kind, NewRouter(provs, cfg.MaxAttempts))
		}
	}
	return reg
}
