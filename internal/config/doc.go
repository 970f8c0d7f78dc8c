/*
Package config provides configuration loading for the gateway.

Sources are layered, later sources overriding earlier ones:

	defaults (NewDefault)
	YAML file (--config)
	.env in the working directory
	process environment

Environment variables keep the names used by existing deployments:

	STORAGE_REMOTE_ADDRESS   listen address (0.0.0.0:50070)
	STORAGE_REMOTE_TOKEN     shared bearer secret; empty disables auth
	STORAGE_GRPC_MAX_MSG_MB  max gRPC message size (64)
	DRIVER_KIND              fs or s3
	APP_STORAGE_FS_ROOT      filesystem driver root
	S3_ENDPOINT_URL, S3_ACCESS_KEY_ID, S3_SECRET_ACCESS_KEY,
	S3_BUCKET_NAME, S3_REGION_NAME
	USE_REDIS_CACHE, CACHE_BACKEND, REDIS_URL
	CACHE_TTL_META, CACHE_TTL_DATA   seconds or Go durations
	CACHE_MAX_FILE_SIZE      bytes or human size ("1MiB")
	GATEWAY_LOG_LEVEL, GATEWAY_LOG_FORMAT, GATEWAY_LOG_FILE
	GATEWAY_OPS_ADDRESS      ops HTTP listener
	VERSION, HOSTNAME

Sizes accept the forms understood by github.com/docker/go-units RAMInBytes.
*/
package config
