/*
Package cache provides the metadata and small-object cache tier that sits in
front of the storage driver.

The tier stores two kinds of entries per path:

	<prefix>stat:<rel_path>   CBOR-encoded types.FileStat, metadata TTL
	<prefix>data:<rel_path>   raw file body, data TTL, only when the body is
	                          no larger than the configured ceiling

The driver remains the source of truth. Entries are created after a miss has
been served from the driver and removed by Invalidate whenever a mutation
touches the path, whether or not the mutation succeeded. InvalidateTree also
removes every entry below a directory that was renamed or removed.

# Fills and Invalidation

Each path has an invalidation counter, <prefix>gen:<rel_path>. Invalidate
bumps the counter before deleting entries. A caller takes a Version before
reading from the driver and passes it to SetStat or SetData; the fill is
stored only if the counters of the path and all its ancestors are unchanged.
A read that overlaps a mutation therefore either loses the race or has its
entry deleted by the mutation's own invalidation.

# Stores

	┌─────────────────────────────────────────────┐
	│                    Tier                     │
	│  GetStat/SetStat  GetData/SetData  Version  │
	│  Invalidate  InvalidateTree                 │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│        guardedStore (circuit breaker)       │  optional
	└─────────────────────────────────────────────┘
	                      │
	┌──────────────────────┐  ┌──────────────────────┐
	│      RedisStore      │  │     MemoryStore      │
	│  shared, go-redis v9 │  │  per-process LRU     │
	└──────────────────────┘  └──────────────────────┘

RedisStore is the production backend and lets several gateway instances
share one cache. MemoryStore is a size-bounded LRU with per-entry expiry for
single-instance deployments and tests.

# Failure Handling

Store errors never reach callers. A failed lookup is a miss, a failed write
or invalidation is logged at warn level and dropped. When the guarded store
is enabled, repeated failures open the breaker and the tier stops reading
and filling until the breaker timeout elapses. Invalidation is always sent.

# Usage Example

	tier, err := cache.NewFromConfig(cfg, logger)
	if err != nil {
		return err
	}
	tier.Open(ctx)
	defer tier.Close()

	if st, ok := tier.GetStat(ctx, path); ok {
		return st, nil
	}
	v := tier.Version(ctx, path)
	st, err := driver.Stat(ctx, path)
	if err == nil {
		tier.SetStat(ctx, path, st, v)
	}
*/
package cache
