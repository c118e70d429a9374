package storage

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/ruteri/equipment-registry/interfaces"
)

// StateStoreFactory creates state stores from URI strings and assembles
// replicated configurations.
type StateStoreFactory struct {
	log *slog.Logger
}

// NewStateStoreFactory creates a new factory instance.
func NewStateStoreFactory(logger *slog.Logger) *StateStoreFactory {
	if logger == nil {
		logger = slog.Default()
	}
	return &StateStoreFactory{log: logger}
}

// StateStoreFor creates a state store from a location.
// The URI format is [scheme]://[auth@]host[:port][/path][?params]
//
// Supported schemes:
//   - memory:// - volatile in-process store
//   - file:// - JSON snapshot on the local filesystem
//   - sqlite:// - SQLite database file
//   - redis:// - Redis hashes
//   - s3:// - Amazon S3 or compatible object storage
//   - vault:// - HashiCorp Vault KV v2
func (sf *StateStoreFactory) StateStoreFor(location interfaces.StateStoreLocation) (interfaces.StateStore, error) {
	switch strings.ToLower(location.Scheme) {
	case "memory":
		return NewMemoryStore(sf.log), nil
	case "file":
		return sf.createFileStore(location)
	case "sqlite":
		return sf.createSQLiteStore(location)
	case "redis":
		return sf.createRedisStore(location)
	case "s3":
		return sf.createS3Store(location)
	case "vault":
		return sf.createVaultStore(location)
	default:
		return nil, fmt.Errorf("%w: unsupported store scheme: %s", interfaces.ErrInvalidLocationURI, location.Scheme)
	}
}

// StateStoreForURI parses uri and creates the matching store.
func (sf *StateStoreFactory) StateStoreForURI(uri string) (interfaces.StateStore, error) {
	location, err := interfaces.NewStateStoreLocation(uri)
	if err != nil {
		return nil, err
	}
	return sf.StateStoreFor(location)
}

// CreateReplicatedStore creates a store writing to primaryURI and mirroring to
// replicaURIs. Replicas that cannot be created are skipped with a warning;
// a primary that cannot be created is an error. The primary must commit
// batches atomically, so s3:// and vault:// are accepted only as replicas.
func (sf *StateStoreFactory) CreateReplicatedStore(primaryURI string, replicaURIs []string) (interfaces.StateStore, error) {
	primary, err := sf.StateStoreForURI(primaryURI)
	if err != nil {
		return nil, fmt.Errorf("failed to create primary store: %w", err)
	}
	if !IsAtomic(primary) {
		primary.Close()
		return nil, fmt.Errorf("%w: %s can only be a replica", interfaces.ErrNotAtomic, redactURI(primaryURI))
	}
	if len(replicaURIs) == 0 {
		return primary, nil
	}

	replicas := make([]interfaces.StateStore, 0, len(replicaURIs))
	for _, uri := range replicaURIs {
		replica, err := sf.StateStoreForURI(uri)
		if err != nil {
			sf.log.Warn("Failed to create replica store",
				"err", err,
				slog.String("locationURI", redactURI(uri)))
			continue
		}
		replicas = append(replicas, replica)
	}

	return NewReplicatedStore(primary, replicas, sf.log), nil
}

// createFileStore handles file:///absolute/state.json and file://./relative/state.json.
func (sf *StateStoreFactory) createFileStore(location interfaces.StateStoreLocation) (interfaces.StateStore, error) {
	path, err := localPath(location)
	if err != nil {
		return nil, err
	}
	sf.log.Debug("Creating file store", slog.String("path", path))
	return NewFileStore(path, sf.log)
}

// createSQLiteStore handles sqlite:///absolute/registry.db and sqlite://./relative/registry.db.
func (sf *StateStoreFactory) createSQLiteStore(location interfaces.StateStoreLocation) (interfaces.StateStore, error) {
	path, err := localPath(location)
	if err != nil {
		return nil, err
	}
	sf.log.Debug("Creating sqlite store", slog.String("path", path))
	return NewSQLiteStore(path, sf.log)
}

// createRedisStore handles redis://[:password@]host:port[/db][?prefix=registry:].
func (sf *StateStoreFactory) createRedisStore(location interfaces.StateStoreLocation) (interfaces.StateStore, error) {
	if location.Host == "" {
		return nil, fmt.Errorf("%w: missing redis address", interfaces.ErrInvalidLocationURI)
	}

	db := 0
	if dbStr := strings.Trim(location.Path, "/"); dbStr != "" {
		parsed, err := strconv.Atoi(dbStr)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid redis db %q", interfaces.ErrInvalidLocationURI, dbStr)
		}
		db = parsed
	}

	var password string
	if location.Auth != "" {
		if idx := strings.Index(location.Auth, ":"); idx >= 0 {
			password = location.Auth[idx+1:]
		} else {
			password = location.Auth
		}
	}

	prefix := location.GetParam("prefix")
	if prefix == "" {
		prefix = "registry:"
	}

	sf.log.Debug("Creating redis store", slog.String("address", location.Host), slog.Int("db", db))
	return NewRedisStore(location.Host, password, db, prefix, sf.log), nil
}

// createS3Store handles s3://[ACCESS_KEY:SECRET_KEY@]bucket/prefix?region=us-west-2&endpoint=custom.s3.com
func (sf *StateStoreFactory) createS3Store(location interfaces.StateStoreLocation) (interfaces.StateStore, error) {
	if location.Host == "" {
		return nil, fmt.Errorf("%w: missing s3 bucket", interfaces.ErrInvalidLocationURI)
	}

	region := location.GetParam("region")
	if region == "" {
		region = "us-east-1"
	}

	var accessKey, secretKey string
	if location.Auth != "" {
		parts := strings.SplitN(location.Auth, ":", 2)
		accessKey = parts[0]
		if len(parts) == 2 {
			secretKey = parts[1]
		}
	}

	sf.log.Debug("Creating S3 store", slog.String("bucket", location.Host), slog.String("region", region))
	return NewS3Store(location.Host, strings.TrimPrefix(location.Path, "/"), region, location.GetParam("endpoint"), accessKey, secretKey, sf.log)
}

// createVaultStore handles vault://host:port/mount/path?token=...&tls=false
func (sf *StateStoreFactory) createVaultStore(location interfaces.StateStoreLocation) (interfaces.StateStore, error) {
	if location.Host == "" {
		return nil, fmt.Errorf("%w: missing vault address", interfaces.ErrInvalidLocationURI)
	}

	parts := strings.SplitN(strings.Trim(location.Path, "/"), "/", 2)
	mountPath := parts[0]
	if mountPath == "" {
		mountPath = "secret"
	}
	var dataPath string
	if len(parts) == 2 {
		dataPath = parts[1]
	}

	scheme := "https"
	if location.GetParam("tls") == "false" {
		scheme = "http"
	}

	sf.log.Debug("Creating vault store", slog.String("address", location.Host), slog.String("mount", mountPath))
	return NewVaultStore(fmt.Sprintf("%s://%s", scheme, location.Host), mountPath, dataPath, location.GetParam("token"), sf.log)
}

func localPath(location interfaces.StateStoreLocation) (string, error) {
	path := location.Path
	if location.Host != "" {
		path = location.Host + "/" + strings.TrimPrefix(path, "/")
	}
	if path == "" {
		return "", fmt.Errorf("%w: empty path in %s URI", interfaces.ErrInvalidLocationURI, location.Scheme)
	}
	return path, nil
}

func redactURI(uri string) string {
	location, err := interfaces.NewStateStoreLocation(uri)
	if err != nil || location.Auth == "" {
		return uri
	}
	return strings.Replace(uri, location.Auth+"@", "***@", 1)
}
