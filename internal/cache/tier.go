package cache

import (
	"context"
	"errors"
	"path"
	"time"

	"go.uber.org/zap"

	"github.com/objectfs/gateway/pkg/codec"
	"github.com/objectfs/gateway/pkg/types"
	"github.com/objectfs/gateway/pkg/utils"
)

// Entry kinds, also used as metric labels.
const (
	KindStat = "stat"
	KindData = "data"
)

// kindGen keys the per-path invalidation counters
const kindGen = "gen"

// Config represents cache tier settings
type Config struct {
	Enabled     bool          `yaml:"enabled"`
	KeyPrefix   string        `yaml:"key_prefix"`
	MetaTTL     time.Duration `yaml:"meta_ttl"`
	DataTTL     time.Duration `yaml:"data_ttl"`
	MaxFileSize int64         `yaml:"max_file_size"`
}

// DefaultConfig returns the default tier settings
func DefaultConfig() Config {
	return Config{
		Enabled:     true,
		KeyPrefix:   "ytstorage:",
		MetaTTL:     600 * time.Second,
		DataTTL:     3600 * time.Second,
		MaxFileSize: 1024 * 1024,
	}
}

// Tier caches file metadata and small file bodies in front of a driver. It
// never owns the driver and never reports store failures: a failing store
// behaves like an empty one.
type Tier struct {
	store   Store
	config  Config
	metrics types.MetricsCollector
	logger  *zap.Logger
}

// NewTier creates a cache tier over store. A nil store or a disabled config
// yields a tier where every lookup misses and every write is a no-op.
func NewTier(store Store, config Config, logger *zap.Logger) *Tier {
	if logger == nil {
		logger = zap.NewNop()
	}
	if store == nil {
		config.Enabled = false
	}
	return &Tier{
		store:  store,
		config: config,
		logger: logger.With(zap.String("component", "cache")),
	}
}

// Disabled returns a tier that caches nothing
func Disabled() *Tier {
	return NewTier(nil, Config{}, nil)
}

// SetMetrics sets the collector that receives hit and miss counts
func (t *Tier) SetMetrics(m types.MetricsCollector) {
	t.metrics = m
}

// Enabled reports whether the tier stores anything
func (t *Tier) Enabled() bool {
	return t.config.Enabled
}

// MaxFileSize returns the largest body SetData will store
func (t *Tier) MaxFileSize() int64 {
	return t.config.MaxFileSize
}

// Open checks the store is reachable. Failure is logged and the tier keeps
// serving, treating every failed call as a miss.
func (t *Tier) Open(ctx context.Context) {
	if !t.config.Enabled {
		return
	}
	if err := t.store.Ping(ctx); err != nil {
		t.logger.Warn("Cache store unreachable, continuing without cache hits", zap.Error(err))
		return
	}
	t.logger.Info("Cache store connected")
}

// Ping reports whether the store answers. A disabled tier always answers.
func (t *Tier) Ping(ctx context.Context) error {
	if !t.config.Enabled {
		return nil
	}
	return t.store.Ping(ctx)
}

// Close releases the store
func (t *Tier) Close() error {
	if t.store == nil {
		return nil
	}
	return t.store.Close()
}

// GetStat returns cached metadata for path
func (t *Tier) GetStat(ctx context.Context, p string) (types.FileStat, bool) {
	data, ok := t.get(ctx, KindStat, p)
	if !ok {
		return types.FileStat{}, false
	}

	var st types.FileStat
	if err := codec.Unmarshal(data, &st); err != nil {
		t.logger.Warn("Discarding undecodable stat entry", zap.String("path", p), zap.Error(err))
		t.delete(ctx, t.key(KindStat, p))
		return types.FileStat{}, false
	}
	return st, true
}

// Version pins the invalidation state of a path and its ancestors. Take it
// before reading from the driver and hand it to SetStat or SetData.
type Version struct {
	guard Guard
	ok    bool
}

// Version reads the invalidation counters for path. If the store cannot
// answer, the returned Version makes every fill a no-op.
func (t *Tier) Version(ctx context.Context, p string) Version {
	if !t.config.Enabled {
		return Version{}
	}
	keys := t.genKeys(p)
	values, err := t.store.Counters(ctx, keys...)
	if err != nil {
		t.logger.Debug("Cache version read failed", zap.String("path", p), zap.Error(err))
		return Version{}
	}
	return Version{guard: Guard{Keys: keys, Values: values}, ok: true}
}

// SetStat caches metadata for path with the metadata TTL, unless path or an
// ancestor was invalidated after v was taken.
func (t *Tier) SetStat(ctx context.Context, p string, st types.FileStat, v Version) {
	if !t.config.Enabled || !v.ok {
		return
	}
	data, err := codec.Marshal(st)
	if err != nil {
		t.logger.Warn("Failed to encode stat entry", zap.String("path", p), zap.Error(err))
		return
	}
	t.set(ctx, KindStat, p, data, t.config.MetaTTL, v)
}

// GetData returns a cached file body
func (t *Tier) GetData(ctx context.Context, p string) ([]byte, bool) {
	return t.get(ctx, KindData, p)
}

// SetData caches a file body with the data TTL. Bodies above the size
// ceiling are ignored, as are fills that lost a race with Invalidate.
func (t *Tier) SetData(ctx context.Context, p string, data []byte, v Version) {
	if !t.config.Enabled || !v.ok || int64(len(data)) > t.config.MaxFileSize {
		return
	}
	t.set(ctx, KindData, p, data, t.config.DataTTL, v)
}

// Invalidate drops both entries for path and fails fills in flight for path
// and everything below it. The counter moves before the entries go, so a
// fill either loses the race or is deleted afterwards.
func (t *Tier) Invalidate(ctx context.Context, p string) {
	if !t.config.Enabled {
		return
	}
	t.bump(ctx, p)
	t.delete(ctx, t.key(KindStat, p), t.key(KindData, p))
}

// InvalidateTree is Invalidate for path plus every entry below it. Use it
// for mutations that can touch a whole directory.
func (t *Tier) InvalidateTree(ctx context.Context, p string) {
	if !t.config.Enabled {
		return
	}
	t.bump(ctx, p)
	t.delete(ctx, t.key(KindStat, p), t.key(KindData, p))
	for _, kind := range []string{KindStat, KindData} {
		prefix := t.treePrefix(kind, p)
		if err := t.store.DeletePrefix(ctx, prefix); err != nil {
			t.logger.Warn("Cache invalidation failed", zap.String("prefix", prefix), zap.Error(err))
		}
	}
}

// Helper methods

func (t *Tier) get(ctx context.Context, kind, p string) ([]byte, bool) {
	if !t.config.Enabled {
		return nil, false
	}

	data, err := t.store.Get(ctx, t.key(kind, p))
	switch {
	case err == nil:
		t.recordHit(kind)
		return data, true
	case !errors.Is(err, ErrMiss):
		t.logger.Warn("Cache read failed", zap.String("kind", kind), zap.String("path", p), zap.Error(err))
	}
	t.recordMiss(kind)
	return nil, false
}

func (t *Tier) set(ctx context.Context, kind, p string, data []byte, ttl time.Duration, v Version) {
	stored, err := t.store.SetIfUnchanged(ctx, v.guard, t.key(kind, p), data, ttl)
	switch {
	case err != nil:
		t.logger.Warn("Cache write failed", zap.String("kind", kind), zap.String("path", p), zap.Error(err))
	case !stored:
		t.logger.Debug("Dropping fill for invalidated path", zap.String("kind", kind), zap.String("path", p))
	}
}

func (t *Tier) bump(ctx context.Context, p string) {
	if err := t.store.Incr(ctx, t.key(kindGen, p), t.genTTL()); err != nil {
		t.logger.Warn("Cache invalidation failed", zap.String("kind", kindGen), zap.String("path", p), zap.Error(err))
	}
}

// genTTL outlives every entry a counter guards. Zero keeps counters forever
// when either entry kind never expires.
func (t *Tier) genTTL() time.Duration {
	if t.config.MetaTTL <= 0 || t.config.DataTTL <= 0 {
		return 0
	}
	return 2 * max(t.config.MetaTTL, t.config.DataTTL)
}

func (t *Tier) delete(ctx context.Context, keys ...string) {
	if err := t.store.Delete(ctx, keys...); err != nil {
		t.logger.Warn("Cache invalidation failed", zap.Strings("keys", keys), zap.Error(err))
	}
}

func (t *Tier) recordHit(kind string) {
	if t.metrics != nil {
		t.metrics.RecordCacheHit(kind)
	}
}

func (t *Tier) recordMiss(kind string) {
	if t.metrics != nil {
		t.metrics.RecordCacheMiss(kind)
	}
}

// key builds "<prefix><kind>:<path>" with path in canonical relative form so
// "/a/b", "a/b/" and "a//b" share entries.
func (t *Tier) key(kind, p string) string {
	return t.config.KeyPrefix + kind + ":" + canonical(p)
}

// genKeys returns the counter keys for the root, each ancestor and path itself
func (t *Tier) genKeys(p string) []string {
	c := canonical(p)
	keys := []string{t.key(kindGen, "")}
	if c == "" {
		return keys
	}
	for i := 0; i < len(c); i++ {
		if c[i] == '/' {
			keys = append(keys, t.key(kindGen, c[:i]))
		}
	}
	return append(keys, t.key(kindGen, c))
}

// treePrefix matches every key of kind strictly below path
func (t *Tier) treePrefix(kind, p string) string {
	c := canonical(p)
	if c == "" {
		return t.config.KeyPrefix + kind + ":"
	}
	return t.config.KeyPrefix + kind + ":" + c + "/"
}

func canonical(p string) string {
	p = utils.Normalize(p)
	if p == "" {
		return ""
	}
	p = path.Clean(p)
	if p == "." {
		return ""
	}
	return p
}
