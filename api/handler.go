package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/routecodex/routecodex/internal/admin"
	"github.com/routecodex/routecodex/internal/ctxkeys"
	"github.com/routecodex/routecodex/internal/gateway"
	"github.com/routecodex/routecodex/llmswitch"
	"github.com/routecodex/routecodex/normalizer"
	"github.com/routecodex/routecodex/runtime"
	"github.com/routecodex/routecodex/types"
)

// Server exposes the gateway's four inbound endpoints over HTTP,
// playing the role the teacher's api/handlers chat/agent handlers play
// against a single llm.Provider: here every handler runs the shared
// detect -> canonicalize -> classify -> dispatch -> rewrap pipeline
// against whichever protocol the request actually arrived in.
type Server struct {
	gw     *gateway.Gateway
	logger *zap.Logger
}

// NewServer builds the HTTP layer around an already-built Gateway.
func NewServer(gw *gateway.Gateway, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{gw: gw, logger: logger}
}

// Handler wires the spec's four endpoints plus a liveness probe into a
// single mux, wrapping the whole mux (every route, including /healthz)
// in JWT or gateway-key auth and /v1/messages in the ingress rate
// limiter.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/models", s.handleModels)
	mux.HandleFunc("POST /v1/chat/completions", s.handleInference(llmswitch.ProtocolOpenAIChat))
	mux.HandleFunc("POST /v1/responses", s.handleInference(llmswitch.ProtocolOpenAIResp))
	mux.HandleFunc("POST /v1/messages", s.handleMessages)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	if s.gw.AdminHub != nil {
		mux.HandleFunc("GET /admin/tail", admin.Handler(s.gw.AdminHub, s.logger))
	}
	if s.gw.Config.Server.JWT.Enabled {
		return RequireJWT(s.gw.Config.Server.JWT, mux)
	}
	return RequireGatewayKey(s.gw.GatewayKey(), mux)
}

// handleMessages wraps handleInference with the spec's "/v1/messages
// 10 req/min" ingress limiter, keyed by the caller's bearer token so
// one noisy client can't starve another.
func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	key := bearerToken(r.Header.Get("Authorization"))
	if key == "" {
		key = r.RemoteAddr
	}
	if ok, retryAfter := s.gw.AllowMessage(key); !ok {
		w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfter))
		WriteProtocolError(w, llmswitch.ProtocolAnthropic, types.NewError(types.ErrRateLimited, "too many requests").
			WithHTTPStatus(http.StatusTooManyRequests).WithRetryable(true))
		return
	}
	s.handleInference(llmswitch.ProtocolAnthropic)(w, r)
}

// handleInference returns the handler for one of the three protocol
// entry points. fallback is the protocol to canonicalize under when
// none of llmswitch.Detect's other rules fire (normally never reached
// since the endpoint path itself satisfies rule 2, but kept so an
// operator-configured alias path still resolves).
func (s *Server) handleInference(fallback llmswitch.Protocol) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := newRequestID(r)
		ctx := runtime.WithRequestID(ctxkeys.WithTraceID(r.Context(), requestID), requestID)
		r = r.WithContext(ctx)
		logger := s.logger.With(zap.String("request_id", requestID), zap.String("path", r.URL.Path))

		body, err := readBody(r)
		if err != nil {
			WriteProtocolError(w, fallback, asGatewayError(err))
			return
		}

		protocol := llmswitch.Detect(llmswitch.DetectRequest{
			Path:    r.URL.Path,
			Headers: r.Header,
			Body:    body,
		}, fallback)

		if isWarmup(r, body) {
			writeWarmupReply(w, protocol)
			return
		}

		canonical, err := llmswitch.Canonicalize(protocol, body)
		if err != nil {
			logger.Warn("canonicalize failed", zap.Error(err))
			WriteProtocolError(w, protocol, types.NewError(types.ErrInvalidRequest, err.Error()).WithHTTPStatus(http.StatusBadRequest))
			return
		}
		canonical.Metadata.RequestID = requestID
		canonical.Metadata.SessionID = r.Header.Get("X-Session-Id")
		canonical.Metadata.EntryEndpoint = r.URL.Path
		canonical.Metadata.ClientHeaders = r.Header
		canonical.Metadata.OriginalProtocol = protocol
		canonical.Metadata.InboundStream = canonical.Parameters.Stream
		canonical.Metadata.OutboundStream = canonical.Parameters.Stream
		s.gw.Memo.Put(requestID, protocol)

		routeName, decisionName := s.gw.Classify(canonical.Messages, canonical.Tools)
		logger.Debug("classified request", zap.String("decision", decisionName), zap.String("route", routeName))

		if canonical.Parameters.Stream {
			s.serveStream(w, ctx, protocol, routeName, canonical, logger)
			return
		}
		s.serveComplete(w, ctx, protocol, routeName, canonical, logger)
	}
}

func (s *Server) serveComplete(w http.ResponseWriter, ctx context.Context, protocol llmswitch.Protocol, routeName string, canonical *llmswitch.CanonicalRequest, logger *zap.Logger) {
	resp, _, err := s.gw.Dispatch(ctx, routeName, canonical)
	if err != nil {
		logger.Warn("dispatch failed", zap.Error(err))
		WriteProtocolError(w, protocol, asGatewayError(err))
		return
	}

	out, err := normalizer.Rewrap(protocol, resp)
	if err != nil {
		logger.Error("rewrap failed", zap.Error(err))
		WriteProtocolError(w, protocol, asGatewayError(err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(out)
}

func (s *Server) serveStream(w http.ResponseWriter, ctx context.Context, protocol llmswitch.Protocol, routeName string, canonical *llmswitch.CanonicalRequest, logger *zap.Logger) {
	upstream, _, err := s.gw.DispatchStream(ctx, routeName, canonical)
	if err != nil {
		logger.Warn("stream dispatch failed", zap.Error(err))
		WriteProtocolError(w, protocol, asGatewayError(err))
		return
	}
	defer upstream.Close()

	flusher, _ := w.(http.Flusher)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if protocol != llmswitch.ProtocolAnthropic {
		io.Copy(w, upstream)
		return
	}
	if err := normalizer.TranscodeStream(upstream, flushWriter{w, flusher}); err != nil && err != io.EOF {
		logger.Warn("stream transcode ended with error", zap.Error(err))
	}
}

// flushWriter flushes after every write so SSE frames reach the client
// as they're produced instead of waiting on Go's response buffering.
type flushWriter struct {
	w       io.Writer
	flusher http.Flusher
}

func (f flushWriter) Write(p []byte) (int, error) {
	n, err := f.w.Write(p)
	if f.flusher != nil {
		f.flusher.Flush()
	}
	return n, err
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	models := s.gw.Models()
	data := make([]map[string]any, 0, len(models))
	for _, m := range models {
		data = append(data, map[string]any{
			"id":       m.ID,
			"object":   "model",
			"owned_by": m.ProviderID,
		})
	}
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.Encode(map[string]any{"object": "list", "data": data})
}
