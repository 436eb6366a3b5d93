// Package gateway routes role-tagged prompts to LLM providers and recovers
// JSON objects from their free-form replies.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/shone114/alternate-history/internal/metrics"
)

// Role names one of the four generation steps of a day-cycle.
type Role string

const (
	RoleSubtopic  Role = "subtopic"
	RoleProposalA Role = "proposal_a"
	RoleProposalB Role = "proposal_b"
	RoleArbiter   Role = "arbiter"
)

// Roles lists every role in pipeline order.
func Roles() []Role {
	return []Role{RoleSubtopic, RoleProposalA, RoleProposalB, RoleArbiter}
}

// DefaultModelTimeout bounds a single provider call when none is configured.
const DefaultModelTimeout = 5 * time.Minute

var (
	ErrUnknownRole         = errors.New("gateway: no route for role")
	ErrProviderUnavailable = errors.New("gateway: provider circuit open")
	ErrEmptyResponse       = errors.New("gateway: empty response")
)

// Gateway is what the pipeline depends on. Call returns the raw text the
// model produced for the role.
type Gateway interface {
	Call(ctx context.Context, role Role, prompt string) (string, error)
}

// Request is a single completion request handed to a Provider.
type Request struct {
	Model       string
	Prompt      string
	Temperature *float32
}

// Provider is one upstream LLM API.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req Request) (string, error)
}

// Route binds a role to a provider name and model.
type Route struct {
	Provider    string   `toml:"provider"`
	Model       string   `toml:"model"`
	Temperature *float32 `toml:"temperature"`
}

// DefaultRoutes is the stock provider mapping.
func DefaultRoutes() map[Role]Route {
	arbiterTemp := float32(0.7)
	return map[Role]Route{
		RoleSubtopic:  {Provider: ProviderOpenRouter, Model: "x-ai/grok-4.1-fast:free"},
		RoleProposalA: {Provider: ProviderGemini, Model: "gemini-flash-latest"},
		RoleProposalB: {Provider: ProviderOpenRouter, Model: "tngtech/deepseek-r1t-chimera:free"},
		RoleArbiter:   {Provider: ProviderGroq, Model: "llama-3.3-70b-versatile", Temperature: &arbiterTemp},
	}
}

// Options configures a Router.
type Options struct {
	Timeout time.Duration
	Logger  *zap.Logger
	Metrics *metrics.Collector
}

type route struct {
	Route
	provider Provider
	breaker  *gobreaker.CircuitBreaker
}

// Router implements Gateway over a set of providers. Each provider gets its
// own circuit breaker shared by every role routed to it.
type Router struct {
	routes  map[Role]route
	timeout time.Duration
	log     *zap.Logger
	metrics *metrics.Collector
}

// NewRouter wires every route to a registered provider. A route naming a
// provider that was not supplied is an error.
func NewRouter(providers []Provider, routes map[Role]Route, opts Options) (*Router, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultModelTimeout
	}

	byName := make(map[string]Provider, len(providers))
	breakers := make(map[string]*gobreaker.CircuitBreaker, len(providers))
	for _, p := range providers {
		byName[p.Name()] = p
		breakers[p.Name()] = newBreaker(p.Name(), opts.Logger)
	}

	r := &Router{
		routes:  make(map[Role]route, len(routes)),
		timeout: opts.Timeout,
		log:     opts.Logger,
		metrics: opts.Metrics,
	}
	for role, rt := range routes {
		p, ok := byName[rt.Provider]
		if !ok {
			return nil, fmt.Errorf("route %s: unknown provider %q", role, rt.Provider)
		}
		if rt.Model == "" {
			return nil, fmt.Errorf("route %s: model is required", role)
		}
		r.routes[role] = route{Route: rt, provider: p, breaker: breakers[rt.Provider]}
	}
	return r, nil
}

func newBreaker(name string, log *zap.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    10 * time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("provider circuit state changed",
				zap.String("provider", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
		// Caller cancellation says nothing about provider health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
}

// Call sends prompt to the provider routed for role, bounded by the
// configured per-call timeout.
func (r *Router) Call(ctx context.Context, role Role, prompt string) (string, error) {
	rt, ok := r.routes[role]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownRole, role)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	out, err := rt.breaker.Execute(func() (interface{}, error) {
		text, err := rt.provider.Complete(ctx, Request{
			Model:       rt.Model,
			Prompt:      prompt,
			Temperature: rt.Temperature,
		})
		if err != nil {
			return nil, err
		}
		if text == "" {
			return nil, ErrEmptyResponse
		}
		return text, nil
	})
	elapsed := time.Since(start)
	r.metrics.ObserveModelCall(string(role), rt.Provider, err == nil, elapsed)

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = fmt.Errorf("%w: %s: %v", ErrProviderUnavailable, rt.Provider, err)
		}
		r.log.Warn("model call failed",
			zap.String("role", string(role)),
			zap.String("provider", rt.Provider),
			zap.String("model", rt.Model),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
		return "", fmt.Errorf("%s via %s: %w", role, rt.Provider, err)
	}

	text := out.(string)
	r.log.Debug("model call completed",
		zap.String("role", string(role)),
		zap.String("provider", rt.Provider),
		zap.String("model", rt.Model),
		zap.Duration("elapsed", elapsed),
		zap.Int("response_len", len(text)))
	return text, nil
}

// Route reports the route configured for role.
func (r *Router) Route(role Role) (Route, bool) {
	rt, ok := r.routes[role]
	return rt.Route, ok
}
