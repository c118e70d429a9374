package interfaces

import (
	"context"
	"errors"
	"fmt"
	"net/url"
)

// StateStoreLocation represents the URI of a state store.
type StateStoreLocation struct {
	Raw    string     // Original URI
	Scheme string     // Protocol
	Host   string     // Hostname
	Path   string     // Resource path
	Query  url.Values // Query parameters
	Auth   string     // Authentication info
}

// NewStateStoreLocation creates a new store location from a URI string with validation.
func NewStateStoreLocation(uri string) (StateStoreLocation, error) {
	parsed, err := url.Parse(uri)
	if err != nil {
		return StateStoreLocation{}, fmt.Errorf("%w: %v", ErrInvalidLocationURI, err)
	}

	scheme := parsed.Scheme
	switch scheme {
	case "memory", "file", "sqlite", "redis", "s3", "vault":
	default:
		return StateStoreLocation{}, fmt.Errorf("%w: unsupported storage scheme %q", ErrInvalidLocationURI, scheme)
	}

	var auth string
	if parsed.User != nil {
		auth = parsed.User.String()
	}

	return StateStoreLocation{
		Raw:    uri,
		Scheme: scheme,
		Host:   parsed.Host,
		Path:   parsed.Path,
		Query:  parsed.Query(),
		Auth:   auth,
	}, nil
}

// String returns the original URI string.
func (loc StateStoreLocation) String() string {
	return loc.Raw
}

// GetParam returns a query parameter value.
func (loc StateStoreLocation) GetParam(name string) string {
	return loc.Query.Get(name)
}

var (
	// ErrKeyNotFound is returned when no value is stored under a key.
	ErrKeyNotFound = errors.New("key not found")

	// ErrBackendUnavailable is returned when a state store is not accessible.
	ErrBackendUnavailable = errors.New("state store unavailable")

	// ErrInvalidLocationURI is returned when a store location URI is malformed or unsupported.
	// URIs must follow the format: [scheme]://[auth@]host[:port][/path][?params]
	ErrInvalidLocationURI = errors.New("invalid state store location URI")

	// ErrReadOnly is returned when a read-only transaction attempts a write.
	ErrReadOnly = errors.New("read-only transaction")

	// ErrTokenExists is returned when minting an ownership token that is already bound.
	ErrTokenExists = errors.New("ownership token already exists")

	// ErrOwnershipMismatch is returned when a token transfer names a sender that is not the holder.
	ErrOwnershipMismatch = errors.New("sender does not hold ownership token")

	// ErrNotAtomic is returned when a transaction would be committed to a store
	// that cannot apply a batch atomically.
	ErrNotAtomic = errors.New("state store cannot commit a batch atomically")
)

// StateStore provides point key-value access, atomic per call. There are no range queries.
type StateStore interface {
	// Get returns the value under collection/key or ErrKeyNotFound.
	Get(ctx context.Context, collection, key string) ([]byte, error)

	// Set stores value under collection/key, replacing any previous value.
	Set(ctx context.Context, collection, key string, value []byte) error

	// Delete removes collection/key. Deleting an absent key is not an error.
	Delete(ctx context.Context, collection, key string) error

	// Available checks if the store is accessible.
	Available(ctx context.Context) bool

	// Name returns identifier for logging.
	Name() string

	// LocationURI returns URI identifying this store, with credentials redacted.
	LocationURI() string

	// Close releases the underlying resources.
	Close() error
}

// Mutation is one staged write. A nil Value deletes the key.
type Mutation struct {
	Collection string
	Key        string
	Value      []byte
}

// BatchWriter is implemented by stores that can apply several mutations atomically.
type BatchWriter interface {
	WriteBatch(ctx context.Context, mutations []Mutation) error
}

// StateStoreFactory creates state stores from location URIs.
type StateStoreFactory interface {
	// StateStoreFor creates a store from a URI.
	// Supports memory://, file://, sqlite://, redis://, s3://, vault://
	StateStoreFor(location StateStoreLocation) (StateStore, error)
}

// Clock supplies the monotonically non-decreasing height used for expiry checks.
type Clock interface {
	Height(ctx context.Context) (uint64, error)
}
