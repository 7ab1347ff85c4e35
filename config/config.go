package config

import (
	"encoding/json"
	"math/big"
	"os"
	"strings"

	"github.com/crytic/crossguard/types"
	"github.com/crytic/crossguard/utils"
	"github.com/crytic/medusa-geth/common"
	"github.com/crytic/medusa-geth/common/hexutil"
	"github.com/crytic/medusa-geth/crypto"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// ProjectConfig describes the configuration of a detection or replay project.
type ProjectConfig struct {
	// WorkDirectory describes the directory the results database and the chain cache are stored in.
	WorkDirectory string `json:"workDirectory"`

	// Detection describes the configuration used by the detect command.
	Detection DetectionConfig `json:"detection"`

	// Replay describes the configuration used by the replay command.
	Replay ReplayConfig `json:"replay"`

	// OnChain describes how historical chain state is fetched.
	OnChain OnChainConfig `json:"onChain"`

	// Logging describes the configuration used for logging to file and console
	Logging LoggingConfig `json:"logging"`
}

// DetectionConfig describes the transactions and the dependent function of a detection run.
type DetectionConfig struct {
	// Target is the transaction re-executed on the forked state.
	Target TransactionConfig `json:"target"`

	// Victim is the transaction replayed at the first cross-application call of Target.
	Victim TransactionConfig `json:"victim"`

	// DependentFunctionSignature is the signature (eg "transfer(address,uint256)") or 0x-prefixed selector of the
	// function of the target contract the victim must not be driven into.
	DependentFunctionSignature string `json:"dependentFunctionSignature"`

	// DependentFunctionName is a human-readable name of the dependent function, used in findings only. If empty, the
	// signature is used.
	DependentFunctionName string `json:"dependentFunctionName"`
}

// ReplayConfig describes the transactions re-executed to record call graphs.
type ReplayConfig struct {
	// Transactions are replayed in order, each on the state preceding its block.
	Transactions []TransactionConfig `json:"transactions"`

	// Verify describes whether the outcome of each replay is compared with the recorded on-chain outcome.
	Verify bool `json:"verify"`
}

// OnChainConfig describes the chain state sources.
type OnChainConfig struct {
	// RPCAddress is the JSON-RPC endpoint state is fetched from. If empty, the run starts on an empty state.
	RPCAddress string `json:"rpcAddress"`

	// ChainID is the chain id exposed to executed code.
	ChainID uint64 `json:"chainId"`

	// PoolSize is the number of JSON-RPC clients used concurrently.
	PoolSize uint `json:"poolSize"`

	// CacheEnabled describes whether fetched state is persisted in the work directory.
	CacheEnabled bool `json:"cacheEnabled"`

	// ExplorerURL is the base URL of an Etherscan-compatible API used to resolve contract creators.
	ExplorerURL string `json:"explorerUrl"`

	// ExplorerAPIKeys are rotated across explorer requests.
	ExplorerAPIKeys []string `json:"explorerApiKeys"`

	// DappTablePath is the path to the CSV file mapping creator addresses to application names.
	DappTablePath string `json:"dappTablePath"`
}

// LoggingConfig describes the configuration options used for logging
type LoggingConfig struct {
	// Level describes whether logs of certain severity levels (eg info, warning, etc.) will be emitted or discarded.
	// Increasing level values represent more severe logs
	Level zerolog.Level `json:"level"`

	// EnableConsoleLogging describes whether console logging is enabled
	EnableConsoleLogging bool `json:"enableConsoleLogging"`

	// LogDirectory describes the directory where structured log _files_ will be outputted. If the string is empty, then
	// no log files are kept
	LogDirectory string `json:"logDirectory"`
}

// TransactionConfig describes a recorded on-chain transaction.
type TransactionConfig struct {
	Hash         string   `json:"hash"`
	BlockNumber  uint64   `json:"blockNumber"`
	BlockHash    string   `json:"blockHash"`
	Timestamp    uint64   `json:"timestamp"`
	From         string   `json:"from"`
	To           string   `json:"to"`
	Value        WeiValue `json:"value"`
	Input        string   `json:"input"`
	FunctionName string   `json:"functionName"`
	IsSuccess    bool     `json:"isSuccess"`
}

// IsEmpty reports whether no transaction was configured.
func (t *TransactionConfig) IsEmpty() bool {
	return t.Hash == "" && t.To == "" && t.Input == ""
}

// Transaction converts the configuration into a types.Transaction.
func (t *TransactionConfig) Transaction() (*types.Transaction, error) {
	to, err := utils.HexStringToAddress(t.To)
	if err != nil {
		return nil, errors.Wrap(err, "malformed transaction receiver")
	}
	from := common.Address{}
	if t.From != "" {
		sender, err := utils.HexStringToAddress(t.From)
		if err != nil {
			return nil, errors.Wrap(err, "malformed transaction sender")
		}
		from = *sender
	}
	input, err := utils.DecodeHex(t.Input)
	if err != nil {
		return nil, errors.Wrap(err, "malformed transaction input")
	}
	value, overflow := uint256.FromBig(&t.Value.Int)
	if overflow {
		return nil, errors.Errorf("transaction value %v does not fit in 256 bits", t.Value.String())
	}

	return &types.Transaction{
		Hash:         common.HexToHash(t.Hash),
		BlockNumber:  t.BlockNumber,
		BlockHash:    common.HexToHash(t.BlockHash),
		Timestamp:    t.Timestamp,
		From:         from,
		To:           *to,
		Value:        value,
		Input:        input,
		FunctionName: t.FunctionName,
		IsSuccess:    t.IsSuccess,
	}, nil
}

// WeiValue is a wei amount. It is serialized as a decimal string and accepts decimal, scientific and
// 0x-prefixed hexadecimal notation.
type WeiValue struct {
	big.Int
}

// NewWeiValue returns a WeiValue of value wei.
func NewWeiValue(value int64) WeiValue {
	return WeiValue{*big.NewInt(value)}
}

// ParseWeiValue parses s as a non-negative integer amount of wei.
func ParseWeiValue(s string) (WeiValue, error) {
	var w WeiValue
	s = strings.TrimSpace(s)
	if s == "" {
		return w, nil
	}

	// Hexadecimal amounts are parsed directly
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		if _, ok := w.SetString(s[2:], 16); !ok {
			return w, errors.Errorf("invalid hexadecimal wei value %q", s)
		}
		return w, nil
	}

	// Everything else goes through decimal so that scientific notation is supported
	d, err := decimal.NewFromString(s)
	if err != nil {
		return w, errors.Wrapf(err, "invalid wei value %q", s)
	}
	if !d.IsInteger() {
		return w, errors.Errorf("wei value %q is not an integer", s)
	}
	if d.IsNegative() {
		return w, errors.Errorf("wei value %q is negative", s)
	}
	w.Set(d.BigInt())
	return w, nil
}

// MarshalJSON serializes the amount as a decimal string.
func (w WeiValue) MarshalJSON() ([]byte, error) {
	return json.Marshal(w.String())
}

// UnmarshalJSON accepts a JSON string or number.
func (w *WeiValue) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return errors.WithStack(err)
		}
		s = n.String()
	}
	parsed, err := ParseWeiValue(s)
	if err != nil {
		return err
	}
	*w = parsed
	return nil
}

// DependentSelector returns the selector of the configured dependent function. A 0x-prefixed value is taken as the
// selector itself, anything else is hashed as a function signature.
func (d *DetectionConfig) DependentSelector() ([4]byte, error) {
	var selector [4]byte
	signature := strings.TrimSpace(d.DependentFunctionSignature)
	if signature == "" {
		return selector, errors.Errorf("no dependent function signature was provided")
	}
	if strings.HasPrefix(signature, "0x") {
		b, err := hexutil.Decode(signature)
		if err != nil || len(b) != 4 {
			return selector, errors.Errorf("malformed dependent function selector %q", signature)
		}
		copy(selector[:], b)
		return selector, nil
	}
	copy(selector[:], crypto.Keccak256([]byte(signature))[:4])
	return selector, nil
}

// DependentName returns the name findings refer to the dependent function by.
func (d *DetectionConfig) DependentName() string {
	if d.DependentFunctionName != "" {
		return d.DependentFunctionName
	}
	return d.DependentFunctionSignature
}

// ReadProjectConfigFromFile reads a JSON-serialized ProjectConfig from a provided file path.
// Returns the ProjectConfig if it succeeds, or an error if one occurs.
func ReadProjectConfigFromFile(path string) (*ProjectConfig, error) {
	// Read our project configuration file data
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	// Parse the project configuration over the defaults
	projectConfig := GetDefaultProjectConfig()
	err = json.Unmarshal(b, projectConfig)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return projectConfig, nil
}

// WriteToFile writes the ProjectConfig to a provided file path in a JSON-serialized format.
// Returns an error if one occurs.
func (p *ProjectConfig) WriteToFile(path string) error {
	// Serialize the configuration
	b, err := json.MarshalIndent(p, "", "\t")
	if err != nil {
		return errors.WithStack(err)
	}

	// Save it to the provided output path and return the result
	err = os.WriteFile(path, b, 0644)
	if err != nil {
		return errors.WithStack(err)
	}

	return nil
}

// Validate validates the settings shared by every command.
// Returns an error if one occurs.
func (p *ProjectConfig) Validate() error {
	// Verify the work directory is set
	if p.WorkDirectory == "" {
		return errors.Errorf("work directory must be provided")
	}

	// Verify the pool size is positive when an endpoint is used
	if p.OnChain.RPCAddress != "" && p.OnChain.PoolSize == 0 {
		return errors.Errorf("rpc pool size must be a positive number")
	}

	// Verify explorer keys are only provided alongside an explorer
	if p.OnChain.ExplorerURL == "" && len(p.OnChain.ExplorerAPIKeys) > 0 {
		return errors.Errorf("explorer api keys were provided without an explorer url")
	}
	return nil
}

// ValidateDetection validates that the ProjectConfig describes a complete detection run.
// Returns an error if one occurs.
func (p *ProjectConfig) ValidateDetection() error {
	if err := p.Validate(); err != nil {
		return err
	}

	// Verify both transactions are well-formed
	if p.Detection.Target.IsEmpty() {
		return errors.Errorf("no target transaction was provided")
	}
	if _, err := p.Detection.Target.Transaction(); err != nil {
		return errors.Wrap(err, "malformed target transaction")
	}
	if p.Detection.Victim.IsEmpty() {
		return errors.Errorf("no victim transaction was provided")
	}
	if _, err := p.Detection.Victim.Transaction(); err != nil {
		return errors.Wrap(err, "malformed victim transaction")
	}

	// Verify the dependent function resolves to a selector
	if _, err := p.Detection.DependentSelector(); err != nil {
		return err
	}
	return nil
}

// ValidateReplay validates that the ProjectConfig describes at least one replayable transaction.
// Returns an error if one occurs.
func (p *ProjectConfig) ValidateReplay() error {
	if err := p.Validate(); err != nil {
		return err
	}

	if len(p.Replay.Transactions) == 0 {
		return errors.Errorf("no transactions to replay were provided")
	}
	for i := range p.Replay.Transactions {
		if _, err := p.Replay.Transactions[i].Transaction(); err != nil {
			return errors.Wrapf(err, "malformed replay transaction at index %d", i)
		}
	}
	return nil
}
