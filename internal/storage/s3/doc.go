/*
Package s3 provides the object storage driver for the gateway.

The driver maps the gateway's path model onto a single bucket. Every relative
path becomes an object key; directories have no physical form other than an
optional zero-length marker key ending in "/", or any prefix shared by other
keys.

# Architecture Overview

	┌─────────────────────────────────────────────────────────────┐
	│                   Storage Service RPCs                      │
	│               (types.Driver Implementation)                 │
	└─────────────────────────────────────────────────────────────┘
	                          │
	┌─────────────────────────────────────────────────────────────┐
	│                       S3 Driver                             │
	│  ┌────────────────┐ ┌─────────────────┐ ┌────────────────┐  │
	│  │ Multipart State│ │ Delete Retrier  │ │   Presigner    │  │
	│  └────────────────┘ └─────────────────┘ └────────────────┘  │
	└─────────────────────────────────────────────────────────────┘
	                          │
	┌─────────────────────────────────────────────────────────────┐
	│          aws-sdk-go-v2 client (any S3-compatible API)       │
	└─────────────────────────────────────────────────────────────┘

# Writes

Every write is a multipart upload. The input stream is cut into PartSize
chunks (5 MiB minimum) read into a pooled buffer, so memory use per write is
bounded by one part regardless of object size. An empty stream still uploads
one empty part. Any failure after the upload is created, including a canceled
caller context, aborts the upload on a detached context so no orphaned parts
are left behind.

Appending is not supported by the object store and reports Unsupported.

# Renames and Removals

Rename is copy then delete and only applies to single objects. When the copy
succeeds but the source delete keeps failing, both objects exist and the
operation reports an Internal error saying so.

Recursive removal lists the prefix and deletes keys in batches of at most
1000. Per-key failures reported by the store are surfaced as errors.

# Usage Example

	cfg := s3.NewDefaultConfig()
	cfg.Bucket = "gateway-data"
	cfg.Endpoint = "http://localhost:9000"

	driver, err := s3.NewDriver(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if err := driver.Init(ctx); err != nil {
		return err
	}

	n, err := driver.WriteStream(ctx, "reports/q1.csv", file, types.WriteOptions{Overwrite: true})

# Error Handling

Store errors are classified into gateway error kinds: missing keys become
NotFound, 403 responses become PermissionDenied and everything else is
Internal. Paths containing ".." are rejected with PermissionDenied before any
request is made.
*/
package s3
