package logging

// These constants identify the services that log through a sub-logger with the "module" key.
const (
	// CLI_SERVICE identifies the cmd package
	CLI_SERVICE = "cli"
	// DETECTION_SERVICE identifies the detection executor
	DETECTION_SERVICE = "detect"
	// REPLAY_SERVICE identifies the replay executor and replay host
	REPLAY_SERVICE = "replay"
	// HOST_SERVICE identifies the execution host
	HOST_SERVICE = "host"
	// CHAIN_SERVICE identifies on-chain data providers and their caches
	CHAIN_SERVICE = "chain"
	// RECORDS_SERVICE identifies the results store
	RECORDS_SERVICE = "records"
)
