// Package config represents cabsd's server configuration, unmarshaled by
// viper from a config file, environment variables and flags.
package config

import "time"

// Config is the root of cabsd's configuration tree.
type Config struct {
	ListenAddress string          `mapstructure:"listen_address"`
	Debug         bool            `mapstructure:"debug"`
	Backend       BackendConfig   `mapstructure:"backend"`
	Cache         CacheConfig     `mapstructure:"cache"`
	Users         []UserConfig    `mapstructure:"users"`
	Pyroscope     PyroscopeConfig `mapstructure:"pyroscope"`
}

// BackendConfig selects and configures the blob backend that ultimately
// stores content, per spec.md §4.2's {local, database, memory, s3, remote}
// kinds. A positive SizeTieredThreshold additionally enables the size-tiered
// composition of spec.md §4.3, routing blobs of at most that many bytes to a
// database-backed small store and everything else to Kind.
type BackendConfig struct {
	Kind  string `mapstructure:"kind"`
	Path  string `mapstructure:"path"`

	Bucket           string `mapstructure:"bucket"`
	RemoteURL        string `mapstructure:"remote_url"`
	RemoteCredential string `mapstructure:"remote_credential"`

	SizeTieredThreshold int64 `mapstructure:"size_tiered_threshold"`
}

// CacheConfig configures the near/far cache store of spec.md §4.4 that
// fronts whatever backend BackendConfig builds.
type CacheConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	MaxSize       int64         `mapstructure:"max_size"`
	Policy        string        `mapstructure:"policy"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
}

// UserConfig registers one static credential with the auth resolver.
// Production deployments would plug in an OAuth-backed resolver instead;
// this is the local/dev equivalent of the teacher's StaticCredentials.
type UserConfig struct {
	Token    string `mapstructure:"token"`
	ID       string `mapstructure:"id"`
	Username string `mapstructure:"username"`
	Quota    int64  `mapstructure:"quota"`
}

// PyroscopeConfig optionally enables continuous profiling, mirroring the
// teacher's cmd/profile pyroscope.Config wiring.
type PyroscopeConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	ServerAddress     string `mapstructure:"server_address"`
	BasicAuthUser     string `mapstructure:"basic_auth_user"`
	BasicAuthPassword string `mapstructure:"basic_auth_password"`
}

// Default returns the configuration used when no file, env var or flag
// overrides a setting.
func Default() Config {
	return Config{
		ListenAddress: ":8080",
		Backend: BackendConfig{
			Kind: "memory",
		},
		Cache: CacheConfig{
			Enabled:       true,
			MaxSize:       256 << 20,
			Policy:        "lru",
			FlushInterval: 30 * time.Second,
		},
	}
}
