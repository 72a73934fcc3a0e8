package server

import (
	"PerpIndexer/internal/observability"
	"PerpIndexer/internal/query"
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
)

// GRPCServer wraps the gRPC server (health, reflection) and the HTTP/JSON
// query mux.
type GRPCServer struct {
	grpcServer    *grpc.Server
	healthServer  *health.Server
	httpServer    *http.Server
	grpcAddr      string
	httpAddr      string
	gateway       *runtime.ServeMux
	query         *query.QueryService
	healthChecker *observability.HealthChecker
	metrics       *observability.Metrics
}

// ServerDeps holds the dependencies of the served endpoints.
type ServerDeps struct {
	QueryService  *query.QueryService
	HealthChecker *observability.HealthChecker
	Metrics       *observability.Metrics
}

func NewGRPCServer(grpcAddr, httpAddr string, deps *ServerDeps) *GRPCServer {
	grpcServer := grpc.NewServer()

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)

	// Reflection for grpcurl / grpcui
	reflection.Register(grpcServer)

	s := &GRPCServer{
		grpcServer:    grpcServer,
		healthServer:  healthServer,
		grpcAddr:      grpcAddr,
		httpAddr:      httpAddr,
		gateway:       runtime.NewServeMux(),
		query:         deps.QueryService,
		healthChecker: deps.HealthChecker,
		metrics:       deps.Metrics,
	}
	s.registerRoutes()
	return s
}

// SetServing flips the gRPC health status alongside the HTTP readiness.
func (s *GRPCServer) SetServing(serving bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.healthServer.SetServingStatus("", st)
	if s.healthChecker != nil {
		s.healthChecker.SetReady(serving)
	}
}

func (s *GRPCServer) registerRoutes() {
	routes := []struct {
		endpoint string
		path     string
		fn       queryFunc
	}{
		{"height", "/v1/height", s.getHeight},
		{"oracle_price", "/v1/prices/{market_id}", s.getOraclePrice},
		{"candles", "/v1/candles/{ticker}", s.listCandles},
		{"candle", "/v1/candles/{ticker}/{resolution}", s.getCandle},
	}
	for _, rt := range routes {
		if err := s.gateway.HandlePath(http.MethodGet, rt.path, s.instrument(rt.endpoint, rt.fn)); err != nil {
			// Patterns are static; a failure here is a programming error.
			panic(fmt.Sprintf("server: register %s: %v", rt.path, err))
		}
	}
}

// Handler returns the HTTP handler: health endpoints plus the query routes.
func (s *GRPCServer) Handler() http.Handler {
	httpMux := http.NewServeMux()
	if s.healthChecker != nil {
		httpMux.HandleFunc("/healthz", s.healthChecker.LivenessHandler)
		httpMux.HandleFunc("/readyz", s.healthChecker.ReadinessHandler)
	} else {
		httpMux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			fmt.Fprintf(w, `{"status":"ok"}`)
		})
	}
	httpMux.Handle("/", s.gateway)
	return httpMux
}

// StartGRPC starts the gRPC server (blocking).
func (s *GRPCServer) StartGRPC(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.grpcAddr)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}

	go func() {
		<-ctx.Done()
		log.Println("INFO: gRPC server shutting down...")
		s.healthServer.Shutdown()
		s.grpcServer.GracefulStop()
	}()

	log.Printf("INFO: gRPC server listening on %s", s.grpcAddr)
	return s.grpcServer.Serve(lis)
}

// StartHTTPGateway serves Handler on the HTTP address (blocking).
func (s *GRPCServer) StartHTTPGateway(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.httpAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		log.Println("INFO: HTTP gateway shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	log.Printf("INFO: HTTP gateway listening on %s", s.httpAddr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// ============================================================================
// Query routes
// ============================================================================

type queryFunc func(r *http.Request, params map[string]string) (interface{}, error)

func (s *GRPCServer) getHeight(r *http.Request, _ map[string]string) (interface{}, error) {
	return s.query.GetHeight(), nil
}

func (s *GRPCServer) getOraclePrice(r *http.Request, params map[string]string) (interface{}, error) {
	return s.query.GetOraclePrice(params["market_id"])
}

func (s *GRPCServer) getCandle(r *http.Request, params map[string]string) (interface{}, error) {
	return s.query.GetCandle(params["ticker"], params["resolution"])
}

func (s *GRPCServer) listCandles(r *http.Request, params map[string]string) (interface{}, error) {
	return s.query.ListCandles(params["ticker"])
}

// instrument adapts fn to the gateway mux and records request metrics.
func (s *GRPCServer) instrument(endpoint string, fn queryFunc) runtime.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request, params map[string]string) {
		start := time.Now()
		v, err := fn(r, params)
		if err != nil {
			err = toStatus(err)
		}
		s.respond(w, r, v, err)

		if s.metrics != nil {
			s.metrics.QueryRequests.WithLabelValues(endpoint, status.Code(err).String()).Inc()
			s.metrics.QueryDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
		}
	}
}

// respond writes v with the gateway's marshaler, or err as a gRPC status.
func (s *GRPCServer) respond(w http.ResponseWriter, r *http.Request, v interface{}, err error) {
	_, marshaler := runtime.MarshalerForRequest(s.gateway, r)
	if err != nil {
		runtime.HTTPError(r.Context(), s.gateway, marshaler, w, r, err)
		return
	}

	data, err := marshaler.Marshal(v)
	if err != nil {
		runtime.HTTPError(r.Context(), s.gateway, marshaler, w, r, status.Errorf(codes.Internal, "marshal response: %v", err))
		return
	}
	w.Header().Set("Content-Type", marshaler.ContentType(v))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, query.ErrInvalidArgument):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, query.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
