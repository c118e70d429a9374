// Package config loads the deployment description of a registry server: who
// owns the registry, where its state lives and which clock it runs on.
//
// A deployment file may be YAML, JSON or TOML. Every key can be overridden
// from the environment with a REGISTRY_ prefix, nested keys joined by "_"
// (clock.mode becomes REGISTRY_CLOCK_MODE).
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ruteri/equipment-registry/hostenv"
	"github.com/ruteri/equipment-registry/interfaces"
	"github.com/spf13/viper"
)

const (
	ClockLocal = "local"
	ClockEth   = "eth"
	ClockWall  = "wall"
)

var ErrInvalidConfig = errors.New("invalid deployment config")

type ClockConfig struct {
	// Mode is one of ClockLocal, ClockEth or ClockWall.
	Mode string
	// RPCAddr is the JSON-RPC endpoint followed in ClockEth mode.
	RPCAddr string
	// BlockSchedule is the cron schedule advancing a ClockLocal clock.
	BlockSchedule string
}

type Deployment struct {
	// Owner becomes the contract owner when the registry is first deployed.
	Owner interfaces.Identity

	StorageURI  string
	ReplicaURIs []string

	Clock ClockConfig

	// InitialCertifiers are authorized by the owner right after deployment.
	InitialCertifiers []interfaces.Identity
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("REGISTRY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("storage_uri", "memory://")
	v.SetDefault("replica_uris", []string{})
	v.SetDefault("clock.mode", ClockLocal)
	v.SetDefault("clock.rpc_addr", "http://127.0.0.1:8545")
	v.SetDefault("clock.block_schedule", hostenv.DefaultBlockSchedule)
	v.SetDefault("initial_certifiers", []string{})
	return v
}

// Load reads configFile, or only defaults and environment when it is empty.
// The result is not validated; see Validate.
func Load(configFile string) (*Deployment, error) {
	v := newViper()
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read deployment config %s: %w", configFile, err)
		}
	}

	d := &Deployment{
		StorageURI:  v.GetString("storage_uri"),
		ReplicaURIs: v.GetStringSlice("replica_uris"),
		Clock: ClockConfig{
			Mode:          strings.ToLower(v.GetString("clock.mode")),
			RPCAddr:       v.GetString("clock.rpc_addr"),
			BlockSchedule: v.GetString("clock.block_schedule"),
		},
	}

	if owner := v.GetString("owner"); owner != "" {
		addr, err := interfaces.NewIdentityFromHex(owner)
		if err != nil {
			return nil, fmt.Errorf("%w: owner: %v", ErrInvalidConfig, err)
		}
		d.Owner = addr
	}

	for _, c := range v.GetStringSlice("initial_certifiers") {
		addr, err := interfaces.NewIdentityFromHex(c)
		if err != nil {
			return nil, fmt.Errorf("%w: initial_certifiers: %v", ErrInvalidConfig, err)
		}
		d.InitialCertifiers = append(d.InitialCertifiers, addr)
	}

	return d, nil
}

// Validate checks that the deployment can be started.
func (d *Deployment) Validate() error {
	if d.Owner == interfaces.EmptyIdentity {
		return fmt.Errorf("%w: owner is required", ErrInvalidConfig)
	}
	if d.StorageURI == "" {
		return fmt.Errorf("%w: storage_uri is required", ErrInvalidConfig)
	}
	if _, err := interfaces.NewStateStoreLocation(d.StorageURI); err != nil {
		return fmt.Errorf("%w: storage_uri: %v", ErrInvalidConfig, err)
	}

	switch d.Clock.Mode {
	case ClockLocal:
		if d.Clock.BlockSchedule == "" {
			return fmt.Errorf("%w: clock.block_schedule is required in local mode", ErrInvalidConfig)
		}
	case ClockEth:
		if d.Clock.RPCAddr == "" {
			return fmt.Errorf("%w: clock.rpc_addr is required in eth mode", ErrInvalidConfig)
		}
	case ClockWall:
	default:
		return fmt.Errorf("%w: unknown clock mode %q", ErrInvalidConfig, d.Clock.Mode)
	}
	return nil
}
