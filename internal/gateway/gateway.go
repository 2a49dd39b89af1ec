// Package gateway assembles the pipeline stages (llmswitch, vrouter,
// compat, runtime/providers, normalizer) into the single object the HTTP
// layer dispatches a canonical request through. It is the composition
// root the teacher's cmd/agentflow/main.go plays for its own
// provider/router/middleware construction, generalized to RouteCodex's
// provider-pool-per-providerId model.
package gateway

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/routecodex/routecodex/compat"
	"github.com/routecodex/routecodex/config"
	"github.com/routecodex/routecodex/internal/admin"
	"github.com/routecodex/routecodex/internal/cache"
	"github.com/routecodex/routecodex/llmswitch"
	"github.com/routecodex/routecodex/normalizer"
	"github.com/routecodex/routecodex/providers"
	"github.com/routecodex/routecodex/ratelimit"
	"github.com/routecodex/routecodex/runtime"
	"github.com/routecodex/routecodex/snapshot"
	"github.com/routecodex/routecodex/types"
	"github.com/routecodex/routecodex/vrouter"
	"github.com/routecodex/routecodex/vrouter/cooldownstore"
	"github.com/routecodex/routecodex/vrouter/sessionpin"
)

// tracer emits one span per pipeline stage (route, dispatch), linked by
// the request id carried on llmswitch.Metadata. It is a noop unless
// telemetry.Init registered a real TracerProvider.
var tracer = otel.Tracer("routecodex/gateway")

// Gateway holds every piece of wired dependency a request needs to go
// from canonical request to upstream dispatch and back.
type Gateway struct {
	Providers   providers.Registry
	Router      *vrouter.Router
	Health      *vrouter.HealthStore
	Classifier  *vrouter.Classifier
	Profiles    *compat.Registry
	Snapshots   *snapshot.Writer
	RateLimiter *ratelimit.Limiter
	Memo        *llmswitch.Memo
	Config      *config.Config
	Logger      *zap.Logger

	// Cooldowns is nil unless cfg.CooldownStore.Enabled: the optional
	// on-disk mirror of Health, loaded at Build time and swept on a
	// ticker so a runtime's cooldown survives a process restart.
	Cooldowns *cooldownstore.Store

	// SessionPins is nil unless cfg.SessionPin.Enabled: redis-backed
	// persistence of a session's <**#providerId**>/<**!#providerId**>
	// override across requests that share a session id.
	SessionPins *sessionpin.Store

	// DecisionRoutes maps a classification decision name to the route
	// name its rule points at (vrouter.RoutingRule.Name -> .RouteName),
	// since vrouter.Decision only carries the decision name back.
	DecisionRoutes map[string]string

	// AdminHub is nil unless cfg.Snapshot.AdminTail: fans every snapshot
	// event out to connected internal/admin websocket tailers.
	AdminHub *admin.Hub
}

// RouteNameFor resolves a classifier decision to the route name to pass
// to Router.Select, falling back to "default" for an unmapped or empty
// decision.
func (g *Gateway) RouteNameFor(decision string) string {
	if routeName, ok := g.DecisionRoutes[decision]; ok {
		return routeName
	}
	return "default"
}

// Build constructs a Gateway from a loaded Config: one Provider adapter
// per configured providerId (the openai-compat and Gemini adapters each
// with their own Runtime), a Router candidate set per
// routing entry, and the built-in compat profile registry.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Gateway, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	profiles := compat.BuiltinProfiles()
	health := vrouter.NewHealthStore()
	router := vrouter.NewRouter(health, vrouter.StrategyWeightedRandom, logger)
	reg := make(providers.Registry, len(cfg.VirtualRouter.Providers))

	var snapWriter *snapshot.Writer
	var adminHub *admin.Hub
	if cfg.Snapshot.Enabled {
		snapWriter = snapshot.NewWriter(cfg.Snapshot.Dir, true, logger)
		if cfg.Snapshot.AdminTail {
			adminHub = admin.NewHub(logger)
			snapWriter.SetTailer(adminHub.Tail)
		}
	}

	var cooldowns *cooldownstore.Store
	if cfg.CooldownStore.Enabled {
		store, err := cooldownstore.Open(cfg.CooldownStore.Path, logger)
		if err != nil {
			return nil, fmt.Errorf("gateway: open cooldown store: %w", err)
		}
		if err := store.Load(ctx, health); err != nil {
			logger.Warn("cooldown store load failed, starting from healthy defaults", zap.Error(err))
		}
		cooldowns = store

		sweepInterval := cfg.CooldownStore.SweepInterval
		if sweepInterval <= 0 {
			sweepInterval = 30 * time.Second
		}
		go func() {
			ticker := time.NewTicker(sweepInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if err := cooldowns.Sweep(ctx, health); err != nil {
						logger.Warn("cooldown store sweep failed", zap.Error(err))
					}
				}
			}
		}()
	}

	var sessionPins *sessionpin.Store
	if cfg.SessionPin.Enabled {
		ttl := cfg.SessionPin.TTL
		if ttl <= 0 {
			ttl = sessionpin.DefaultTTL
		}
		cacheCfg := cache.DefaultConfig()
		cacheCfg.Addr = cfg.SessionPin.Addr
		cacheCfg.HealthCheckInterval = 0 // gateway owns its own lifecycle, no background ticker needed per pin store
		mgr, err := cache.NewManager(cacheCfg, logger)
		if err != nil {
			return nil, fmt.Errorf("gateway: connect session pin cache: %w", err)
		}
		sessionPins = sessionpin.New(mgr, ttl)
	}

	for providerID, pc := range cfg.VirtualRouter.Providers {
		p, err := providers.NewProviderFromConfig(providerID, pc.Type, providers.ProviderConfig{
			ProviderType: pc.Type,
			BaseURL:      pc.BaseURL,
			APIKey:       pc.Auth.APIKey,
			APIKeys:      pc.Auth.Entries,
		}, profiles, logger)
		if err != nil {
			return nil, fmt.Errorf("gateway: build provider %q: %w", providerID, err)
		}
		reg[providerID] = p
	}

	for routeName, targets := range cfg.VirtualRouter.Routing {
		candidates := make([]*vrouter.Candidate, 0, len(targets))
		for _, t := range targets {
			providerID, modelID := splitProviderModel(t)
			pc, ok := cfg.VirtualRouter.Providers[providerID]
			if !ok {
				logger.Warn("routing entry references unknown provider", zap.String("route", routeName), zap.String("entry", t))
				continue
			}
			candidates = append(candidates, &vrouter.Candidate{
				Target: vrouter.RouteTarget{
					RouteName:    routeName,
					ProviderID:   providerID,
					KeyAlias:     "default",
					ProviderType: pc.Type,
					ModelID:      modelID,
				},
				Weight:  1,
				Enabled: true,
			})
		}
		router.LoadRoute(routeName, candidates)
	}

	var limiter *ratelimit.Limiter
	if cfg.RateLimit.MessagesRPM > 0 {
		var cancel context.CancelFunc
		limiter, cancel = ratelimit.New(ctx, ratelimit.Limit{Requests: cfg.RateLimit.MessagesRPM, Per: time.Minute})
		go func() {
			<-ctx.Done()
			cancel()
		}()
	}

	rules := make([]vrouter.RoutingRule, 0)
	decisionRoutes := make(map[string]string, len(cfg.VirtualRouter.ClassificationConfig.RoutingDecisions))
	for decision, routeName := range cfg.VirtualRouter.ClassificationConfig.RoutingDecisions {
		rules = append(rules, vrouter.RoutingRule{
			Name:          decision,
			RouteName:     routeName,
			MinConfidence: cfg.VirtualRouter.ClassificationConfig.ConfidenceThreshold,
		})
		decisionRoutes[decision] = routeName
	}

	return &Gateway{
		Providers:      reg,
		Router:         router,
		Health:         health,
		Classifier:     vrouter.NewClassifier(rules),
		Profiles:       profiles,
		Snapshots:      snapWriter,
		RateLimiter:    limiter,
		Memo:           llmswitch.NewMemo(0),
		Config:         cfg,
		Logger:         logger,
		DecisionRoutes: decisionRoutes,
		Cooldowns:      cooldowns,
		SessionPins:    sessionPins,
		AdminHub:       adminHub,
	}, nil
}

// Close releases resources Build acquired that aren't tied to ctx
// cancellation: the cooldown store's sqlite connection, the session pin
// store's redis client, the snapshot writer's worker pool, and the
// admin tail hub's connected websocket clients.
func (g *Gateway) Close() error {
	var err error
	if g.Cooldowns != nil {
		if cerr := g.Cooldowns.Close(); cerr != nil {
			err = cerr
		}
	}
	if g.SessionPins != nil {
		if cerr := g.SessionPins.Close(); cerr != nil {
			err = cerr
		}
	}
	if g.AdminHub != nil {
		g.AdminHub.Close()
	}
	g.Snapshots.Close()
	return err
}

// splitProviderModel parses a "providerId.modelId" routing entry.
func splitProviderModel(entry string) (providerID, modelID string) {
	for i := 0; i < len(entry); i++ {
		if entry[i] == '.' {
			return entry[:i], entry[i+1:]
		}
	}
	return entry, ""
}

// Dispatch selects a route target for a classified request and invokes
// the resolved provider's non-streaming Complete method. Dispatch applies
// no compat hooks itself; the openai-compat adapter runs its profile's
// incoming hooks inside Complete, and no outgoing hooks are run.
func (g *Gateway) Dispatch(ctx context.Context, routeName string, req *llmswitch.CanonicalRequest) (*normalizer.NonStreamingResponse, vrouter.RouteTarget, error) {
	ctx, span := g.startSpan(ctx, "gateway.dispatch", req)
	defer span.End()

	pin, exclude := g.resolveOverride(ctx, req)
	target, err := g.Router.Select(ctx, vrouter.SelectRequest{
		RouteName:     routeName,
		PinProviderID: pin,
		ExcludeIDs:    exclude,
	})
	if err != nil {
		span.RecordError(err)
		return nil, target, err
	}
	span.SetAttributes(attribute.String("route.provider_id", target.ProviderID), attribute.String("route.key_alias", target.KeyAlias))

	provider, ok := g.Providers.Get(target.ProviderID)
	if !ok {
		err := fmt.Errorf("gateway: no provider registered for %q", target.ProviderID)
		span.RecordError(err)
		return nil, target, err
	}

	resp, err := provider.Complete(ctx, req)
	if err != nil {
		g.recordFailure(target.RuntimeKey(), err)
		span.RecordError(err)
		return nil, target, err
	}
	g.Health.RecordSuccess(target.RuntimeKey())
	return resp, target, nil
}

// startSpan opens a pipeline-stage span tagged with the request id the
// client or llmswitch assigned, so every stage's span for one request
// shares that id and a trace viewer can line them up.
func (g *Gateway) startSpan(ctx context.Context, name string, req *llmswitch.CanonicalRequest) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, name)
	span.SetAttributes(attribute.String("request.id", req.Metadata.RequestID), attribute.String("request.model", req.Model))
	if req.Metadata.SessionID != "" {
		span.SetAttributes(attribute.String("request.session_id", req.Metadata.SessionID))
	}
	return ctx, span
}

// DispatchStream is Dispatch's streaming counterpart, returning the live
// upstream body for the caller to transcode via normalizer.
func (g *Gateway) DispatchStream(ctx context.Context, routeName string, req *llmswitch.CanonicalRequest) (io.ReadCloser, vrouter.RouteTarget, error) {
	ctx, span := g.startSpan(ctx, "gateway.dispatch_stream", req)
	defer span.End()

	pin, exclude := g.resolveOverride(ctx, req)
	target, err := g.Router.Select(ctx, vrouter.SelectRequest{
		RouteName:     routeName,
		PinProviderID: pin,
		ExcludeIDs:    exclude,
	})
	if err != nil {
		span.RecordError(err)
		return nil, target, err
	}
	span.SetAttributes(attribute.String("route.provider_id", target.ProviderID), attribute.String("route.key_alias", target.KeyAlias))

	provider, ok := g.Providers.Get(target.ProviderID)
	if !ok {
		err := fmt.Errorf("gateway: no provider registered for %q", target.ProviderID)
		span.RecordError(err)
		return nil, target, err
	}

	stream, err := provider.Stream(ctx, req)
	if err != nil {
		g.recordFailure(target.RuntimeKey(), err)
		span.RecordError(err)
		return nil, target, err
	}
	return stream, target, nil
}

// recordFailure classifies an upstream error and applies it to the
// runtime's health state, using the spec's default 60s short-cooldown
// window.
func (g *Gateway) recordFailure(runtimeKey string, err error) {
	class := vrouter.ErrorClass(runtime.ClassifyError(err))
	g.Health.RecordError(runtimeKey, class, time.Now(), 60*time.Second)
}

// Classify runs the request classifier and resolves its decision to a
// route name in one call, the shape the HTTP layer actually needs.
func (g *Gateway) Classify(msgs []types.Message, tools []types.ToolSchema) (routeName string, decisionName string) {
	decision := g.Classifier.Classify(msgs, tools)
	return g.RouteNameFor(decision.RouteDecision), decision.RouteDecision
}

// AllowMessage applies the ingress rate limiter to the /v1/messages
// endpoint, keyed per caller. A nil limiter (RateLimit.MessagesRpm <= 0)
// always allows, matching ratelimit.Limiter's own nil-receiver rule.
func (g *Gateway) AllowMessage(key string) (ok bool, retryAfterSeconds int) {
	if g.RateLimiter == nil {
		return true, 0
	}
	allowed, retryAfter := g.RateLimiter.Allow(key)
	return allowed, int(retryAfter.Seconds())
}

// GatewayKey returns the bearer token inbound requests must present.
func (g *Gateway) GatewayKey() string {
	return g.Config.Server.GatewayKey
}

// ModelInfo is one entry of the GET /v1/models listing: a routable
// model id plus the providerId that serves it and its configured size
// bounds.
type ModelInfo struct {
	ID         string
	ProviderID string
	MaxContext int
	MaxTokens  int
}

// Models lists every model a configured provider advertises, for the
// GET /v1/models endpoint.
func (g *Gateway) Models() []ModelInfo {
	out := make([]ModelInfo, 0)
	for providerID, pc := range g.Config.VirtualRouter.Providers {
		for modelID, mc := range pc.Models {
			out = append(out, ModelInfo{
				ID:         modelID,
				ProviderID: providerID,
				MaxContext: mc.MaxContext,
				MaxTokens:  mc.MaxTokens,
			})
		}
	}
	return out
}

// resolveOverride parses this request's own <**#providerId**>/<**!#providerId**>
// markers and merges them with whatever pin the request's session has
// persisted from an earlier request, then saves the merged result back
// so a pin set once keeps applying for the rest of the session. With no
// SessionPins store configured, or no session id on the request, only
// the request's own markers apply.
func (g *Gateway) resolveOverride(ctx context.Context, req *llmswitch.CanonicalRequest) (pin string, exclude map[string]bool) {
	pin, exclude = vrouter.ParseOverride(lastUserText(req))
	if g.SessionPins == nil || req.Metadata.SessionID == "" {
		return pin, exclude
	}

	sessionID := req.Metadata.SessionID
	stored, err := g.SessionPins.Get(ctx, sessionID)
	if err != nil {
		g.Logger.Warn("session pin lookup failed", zap.String("session_id", sessionID), zap.Error(err))
		return pin, exclude
	}

	merged := sessionpin.Merge(stored, pin, exclude)
	if err := g.SessionPins.Save(ctx, sessionID, merged); err != nil {
		g.Logger.Warn("session pin save failed", zap.String("session_id", sessionID), zap.Error(err))
	}
	return merged.ProviderID, merged.Exclude
}

func lastUserText(req *llmswitch.CanonicalRequest) string {
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == "user" {
			return req.Messages[i].Content
		}
	}
	return ""
}
