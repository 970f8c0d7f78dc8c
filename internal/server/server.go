// Package server implements the gateway's gRPC services on top of a storage
// driver and the cache tier.
package server

import (
	"context"
	"errors"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"

	"github.com/objectfs/gateway/internal/buffer"
	"github.com/objectfs/gateway/internal/cache"
	"github.com/objectfs/gateway/internal/config"
	"github.com/objectfs/gateway/internal/metrics"
	"github.com/objectfs/gateway/pkg/api"
	"github.com/objectfs/gateway/pkg/memmon"
	"github.com/objectfs/gateway/pkg/recovery"
	"github.com/objectfs/gateway/pkg/types"
)

// Options are the dependencies of a Server. Config and Driver are required;
// a nil Cache disables caching and a nil Metrics records nothing.
type Options struct {
	Config  *config.Configuration
	Driver  types.Driver
	Cache   *cache.Tier
	Metrics *metrics.Collector
	Logger  *zap.Logger
	Build   BuildInfo

	// Runtime, when set, contributes process gauges to Info metrics
	Runtime *memmon.MemoryMonitor
}

// Server owns the gRPC server and the cache lifecycle. It does not own the
// driver.
type Server struct {
	config  *config.Configuration
	driver  types.Driver
	cache   *cache.Tier
	metrics *metrics.Collector
	logger  *zap.Logger
	grpc    *grpc.Server
	info    *infoService
}

// New wires the services and interceptors
func New(opts Options) (*Server, error) {
	if opts.Config == nil {
		return nil, errors.New("server: config is required")
	}
	if opts.Driver == nil {
		return nil, errors.New("server: driver is required")
	}
	if opts.Cache == nil {
		opts.Cache = cache.Disabled()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewCollector(&metrics.Config{Enabled: false})
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	chunkSize, err := opts.Config.ChunkSize()
	if err != nil {
		return nil, err
	}

	s := &Server{
		config:  opts.Config,
		driver:  opts.Driver,
		cache:   opts.Cache,
		metrics: opts.Metrics,
		logger:  opts.Logger.With(zap.String("component", "server")),
		info:    newInfoService(opts.Config.Info, opts.Config.Server.Version, opts.Build),
	}
	if opts.Runtime != nil {
		s.info.runtime = opts.Runtime.Metrics
	}
	s.cache.SetMetrics(s.metrics)

	auth := newAuthenticator(opts.Config.Server.AuthToken)
	panics := recovery.NewHandler(recovery.RecoveryConfig{Logger: s.logger})
	maxMsg := opts.Config.MaxMessageBytes()
	s.grpc = grpc.NewServer(
		grpc.MaxRecvMsgSize(maxMsg),
		grpc.MaxSendMsgSize(maxMsg),
		grpc.ChainUnaryInterceptor(s.unaryInterceptor, panics.UnaryServerInterceptor(), auth.unary),
		grpc.ChainStreamInterceptor(s.streamInterceptor, panics.StreamServerInterceptor(), auth.stream),
	)

	api.RegisterStorageServiceServer(s.grpc, &storageService{
		driver:     s.driver,
		cache:      s.cache,
		metrics:    s.metrics,
		logger:     s.logger,
		version:    opts.Config.Server.Version,
		chunks:     buffer.ForSize(chunkSize),
		presignTTL: opts.Config.Storage.S3.PresignTTL,
	})
	api.RegisterInfoServer(s.grpc, s.info)

	return s, nil
}

// Info returns the same snapshot the Info service serves
func (s *Server) Info() *api.InfoResponse {
	return s.info.snapshot()
}

// Start prepares the driver and opens the cache. An unreachable cache is
// logged and tolerated; a driver that cannot initialize is fatal.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting gateway",
		zap.String("version", s.config.Server.Version),
		zap.String("driver", s.config.Storage.Driver),
		zap.Bool("auth", s.config.Server.AuthToken != ""),
		zap.Bool("cache", s.cache.Enabled()))

	if err := s.driver.Init(ctx); err != nil {
		return err
	}
	s.cache.Open(ctx)
	return nil
}

// Serve accepts connections on lis until Stop is called
func (s *Server) Serve(lis net.Listener) error {
	s.logger.Info("Listening", zap.String("address", lis.Addr().String()))
	return s.grpc.Serve(lis)
}

// Stop drains in-flight RPCs until ctx is done, then closes the remaining
// connections and the cache.
func (s *Server) Stop(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.grpc.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("Graceful stop timed out, closing connections")
		s.grpc.Stop()
		<-done
	}

	s.logger.Info("Server stopped")
	return s.cache.Close()
}

func (s *Server) unaryInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	done := s.metrics.TrackInFlight()
	defer done()

	start := time.Now()
	resp, err := handler(ctx, req)
	s.logRPC(info.FullMethod, start, err)
	return resp, err
}

func (s *Server) streamInterceptor(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
	done := s.metrics.TrackInFlight()
	defer done()

	start := time.Now()
	err := handler(srv, ss)
	s.logRPC(info.FullMethod, start, err)
	return err
}

func (s *Server) logRPC(method string, start time.Time, err error) {
	duration := time.Since(start)
	code := codes.OK
	if err != nil {
		code = codeOf(err)
	}
	s.metrics.RecordRPC(method, code.String(), duration)

	fields := []zap.Field{
		zap.String("method", method),
		zap.Duration("duration", duration),
		zap.String("code", code.String()),
	}
	if code == codes.Unauthenticated {
		s.logger.Warn("RPC rejected", fields...)
		return
	}
	s.logger.Debug("RPC completed", fields...)
}
