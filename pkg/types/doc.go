/*
Package types provides the contracts and value types shared by the gateway's
storage drivers, cache tier and request handlers.

# Drivers

Driver is the capability set every backing store implements: stat, exists,
listdir, mkdirs, rename, remove and the two streaming operations. Two
implementations exist:

	internal/storage/fs   directory tree under a fixed root
	internal/storage/s3   bucket in an S3-compatible service

Paths passed to a Driver are untrusted relative paths. Drivers canonicalize and
validate them before touching the backing store.

# Optional capabilities

Presigner is implemented only by drivers that can hand out direct, time-limited
URLs. Callers feature-test it:

	if p, ok := driver.(types.Presigner); ok {
		url, err := p.PresignURL(ctx, path, types.PresignGet, time.Hour)
		...
	}

# Values

FileStat is immutable once produced. CacheStats mirrors the counters exposed by
cache stores.
*/
package types
