package server

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/objectfs/gateway/internal/buffer"
	"github.com/objectfs/gateway/internal/cache"
	"github.com/objectfs/gateway/internal/metrics"
	"github.com/objectfs/gateway/pkg/api"
	"github.com/objectfs/gateway/pkg/types"
)

// storageService maps RPCs onto the cache tier and the driver. The driver is
// the source of truth; every mutation invalidates the paths it touched,
// whether or not it succeeded.
type storageService struct {
	driver     types.Driver
	cache      *cache.Tier
	metrics    *metrics.Collector
	logger     *zap.Logger
	version    string
	chunks     *buffer.ChunkPool
	presignTTL time.Duration
}

var _ api.StorageServiceServer = (*storageService)(nil)

// observe records one driver-facing operation
func (s *storageService) observe(op string, start time.Time, size int64, err error) {
	s.metrics.RecordOperation(op, time.Since(start), size, err == nil)
}

// invalidate drops cached entries for every path. It runs on a context that
// survives client cancellation so a disconnect cannot leave stale entries.
func (s *storageService) invalidate(ctx context.Context, paths ...string) {
	ctx = context.WithoutCancel(ctx)
	for _, p := range paths {
		s.cache.Invalidate(ctx, p)
	}
}

// invalidateTree is invalidate for mutations that may move or delete a
// whole directory.
func (s *storageService) invalidateTree(ctx context.Context, paths ...string) {
	ctx = context.WithoutCancel(ctx)
	for _, p := range paths {
		s.cache.InvalidateTree(ctx, p)
	}
}

// stat returns metadata through the cache, populating it on a miss
func (s *storageService) stat(ctx context.Context, p string) (types.FileStat, error) {
	if st, ok := s.cache.GetStat(ctx, p); ok {
		return st, nil
	}
	v := s.cache.Version(ctx, p)
	start := time.Now()
	st, err := s.driver.Stat(ctx, p)
	s.observe("stat", start, 0, err)
	if err != nil {
		return types.FileStat{}, err
	}
	s.cache.SetStat(ctx, p, st, v)
	return st, nil
}

func (s *storageService) Health(context.Context, *api.HealthRequest) (*api.HealthResponse, error) {
	return &api.HealthResponse{Status: "ok", Version: s.version}, nil
}

func (s *storageService) Stat(ctx context.Context, req *api.StatRequest) (*api.StatResponse, error) {
	st, err := s.stat(ctx, req.Path)
	if err != nil {
		return nil, s.fail("stat", req.Path, err)
	}
	return api.NewStatResponse(st), nil
}

func (s *storageService) Exists(ctx context.Context, req *api.ExistsRequest) (*api.ExistsResponse, error) {
	start := time.Now()
	exists, err := s.driver.Exists(ctx, req.Path)
	s.observe("exists", start, 0, err)
	if err != nil {
		return nil, s.fail("exists", req.Path, err)
	}

	resp := &api.ExistsResponse{Exists: exists, FileType: api.FileTypeUnknown}
	if exists {
		// The type is best effort; the path may vanish between calls.
		if st, err := s.stat(ctx, req.Path); err == nil {
			resp.FileType = api.FileTypeOf(st.IsDir)
		}
	}
	return resp, nil
}

func (s *storageService) Listdir(ctx context.Context, req *api.ListdirRequest) (*api.ListdirResponse, error) {
	start := time.Now()
	items, err := s.driver.Listdir(ctx, req.Path)
	s.observe("listdir", start, 0, err)
	if err != nil {
		return nil, s.fail("listdir", req.Path, err)
	}

	entries := make([]api.FileEntry, 0, len(items))
	for _, st := range items {
		entries = append(entries, api.NewFileEntry(st))
	}
	return &api.ListdirResponse{Entries: entries}, nil
}

func (s *storageService) Mkdirs(ctx context.Context, req *api.MkdirsRequest) (*api.MkdirsResponse, error) {
	defer s.invalidate(ctx, req.Path)

	start := time.Now()
	err := s.driver.Mkdirs(ctx, req.Path, req.ExistOK)
	s.observe("mkdirs", start, 0, err)
	if err != nil {
		return nil, s.fail("mkdirs", req.Path, err)
	}
	s.logger.Info("Directory created", zap.String("path", req.Path))
	return &api.MkdirsResponse{OK: true}, nil
}

func (s *storageService) Rename(ctx context.Context, req *api.RenameRequest) (*api.RenameResponse, error) {
	defer s.invalidateTree(ctx, req.Src, req.Dst)

	start := time.Now()
	err := s.driver.Rename(ctx, req.Src, req.Dst, req.Overwrite)
	s.observe("rename", start, 0, err)
	if err != nil {
		return nil, s.fail("rename", req.Src, err)
	}
	s.logger.Info("Path renamed", zap.String("src", req.Src), zap.String("dst", req.Dst))
	return &api.RenameResponse{OK: true}, nil
}

func (s *storageService) Remove(ctx context.Context, req *api.RemoveRequest) (*api.RemoveResponse, error) {
	if req.Recursive {
		defer s.invalidateTree(ctx, req.Path)
	} else {
		defer s.invalidate(ctx, req.Path)
	}

	start := time.Now()
	err := s.driver.Remove(ctx, req.Path, req.Recursive)
	s.observe("remove", start, 0, err)
	if err != nil {
		return nil, s.fail("remove", req.Path, err)
	}
	s.logger.Info("Path removed", zap.String("path", req.Path), zap.Bool("recursive", req.Recursive))
	return &api.RemoveResponse{OK: true}, nil
}

func (s *storageService) GeneratePresignedUrl(ctx context.Context, req *api.PresignRequest) (*api.PresignResponse, error) {
	presigner, ok := s.driver.(types.Presigner)
	if !ok {
		return &api.PresignResponse{Supported: false}, nil
	}

	var method types.PresignMethod
	switch strings.ToUpper(req.Method) {
	case "", string(types.PresignGet):
		method = types.PresignGet
	case string(types.PresignPut):
		method = types.PresignPut
	default:
		return nil, status.Errorf(codes.InvalidArgument, "unsupported presign method %q", req.Method)
	}

	ttl := time.Duration(req.TTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = s.presignTTL
	}

	start := time.Now()
	url, err := presigner.PresignURL(ctx, req.Path, method, ttl)
	s.observe("presign", start, 0, err)
	if err != nil {
		return nil, s.fail("presign", req.Path, err)
	}
	return &api.PresignResponse{
		Supported:   true,
		URL:         url.URL,
		Method:      string(url.Method),
		ExpiresAtMs: api.UnixMillis(url.ExpiresAt),
	}, nil
}
