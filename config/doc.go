// Package config loads the configuration of the catalog tooling.
//
// Configuration is layered: Default() values, then each JSON file added with
// AddLayer (later files win, objects merge key by key), then SJ_*
// environment variables:
//
//	SJ_CATALOG_PACKAGE      catalog.package
//	SJ_DESCRIPTOR_SET       catalog.descriptor_set
//	SJ_LOG_LEVEL            log.level
//	SJ_LOG_FORMAT           log.format
//	SJ_HTTP_ADDR            http.addr
//	SJ_HTTP_SHUTDOWN_TIMEOUT http.shutdown_timeout
//	SJ_NATS_URL             nats.url
//	SJ_NATS_BUCKET          nats.bucket
//	SJ_NATS_TIMEOUT         nats.timeout
//	SJ_NATS_USERNAME        nats.username
//	SJ_NATS_PASSWORD        nats.password
//	SJ_NATS_TOKEN           nats.token
//
// Durations are Go duration strings ("5s"); environment variables also
// accept bare seconds.
//
// Files are read through safeReadFile, which rejects paths escaping the
// working directory, non-JSON files and files over 1MB, and JSON nested
// deeper than 100 levels. Load errors are fatal errors wrapping
// errors.ErrInvalidConfig or errors.ErrConfigNotFound.
//
// Example file:
//
//	{
//	  "catalog": {"package": "goosci", "descriptor_set": "build/goosci.pb"},
//	  "log": {"level": "debug", "format": "text"},
//	  "http": {"addr": ":9090"},
//	  "nats": {"url": "nats://localhost:4222", "timeout": "3s"}
//	}
package config
