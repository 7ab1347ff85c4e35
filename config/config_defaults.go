package config

import (
	"github.com/rs/zerolog"
)

// DefaultProjectConfigFilename describes the default config filename for a given project folder.
const DefaultProjectConfigFilename = "crossguard.json"

// GetDefaultProjectConfig obtains a default configuration for a project. It populates a default config for every
// section. The transactions of a detection or replay run have no defaults and must be provided.
func GetDefaultProjectConfig() *ProjectConfig {
	return &ProjectConfig{
		WorkDirectory: "work_dir",
		Detection: DetectionConfig{
			Target: TransactionConfig{IsSuccess: true},
			Victim: TransactionConfig{IsSuccess: true},
		},
		Replay: ReplayConfig{
			Transactions: []TransactionConfig{},
			Verify:       true,
		},
		OnChain: OnChainConfig{
			RPCAddress:      "",
			ChainID:         1,
			PoolSize:        4,
			CacheEnabled:    true,
			ExplorerURL:     "https://api.etherscan.io/api",
			ExplorerAPIKeys: []string{},
			DappTablePath:   "",
		},
		Logging: LoggingConfig{
			Level:                zerolog.InfoLevel,
			EnableConsoleLogging: true,
			LogDirectory:         "",
		},
	}
}
