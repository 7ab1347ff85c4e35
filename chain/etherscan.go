package chain

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/crytic/medusa-geth/common"
	"github.com/pkg/errors"
)

const (
	// etherscanMaxAttempts is the number of attempts made for each API request.
	etherscanMaxAttempts = 5

	// etherscanRetryDelay is the fixed delay between attempts.
	etherscanRetryDelay = time.Second

	// maxFactoryDepth bounds how many factory deployments are followed back when resolving a creator.
	maxFactoryDepth = 5
)

// ContractCreation describes the deployment of a contract.
type ContractCreation struct {
	ContractAddress common.Address `json:"contractAddress"`
	ContractCreator common.Address `json:"contractCreator"`
	TxHash          common.Hash    `json:"txHash"`
}

// InternalTransaction is a message call or creation made by a contract during a transaction.
type InternalTransaction struct {
	From            common.Address `json:"from"`
	To              string         `json:"to"`
	ContractAddress string         `json:"contractAddress"`
	Type            string         `json:"type"`
}

// isCreationOf reports whether the internal transaction deployed addr.
func (t InternalTransaction) isCreationOf(addr common.Address) bool {
	kind := strings.ToLower(t.Type)
	if kind != "create" && kind != "create2" {
		return false
	}
	return common.IsHexAddress(t.ContractAddress) && common.HexToAddress(t.ContractAddress) == addr
}

// etherscanResponse is the envelope of every API response. Result is an error message when Status is "0".
type etherscanResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

// EtherscanClient queries an Etherscan-compatible explorer API. API keys are used in rotation.
type EtherscanClient struct {
	baseURL    string
	keys       []string
	keyIdx     int
	keyLock    sync.Mutex
	httpClient *http.Client
	retryDelay time.Duration
}

// NewEtherscanClient creates a client for the API at baseURL.
func NewEtherscanClient(baseURL string, keys []string) *EtherscanClient {
	return &EtherscanClient{
		baseURL:    baseURL,
		keys:       keys,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		retryDelay: etherscanRetryDelay,
	}
}

// nextKey returns the next API key in rotation, or the empty string if there are none.
func (e *EtherscanClient) nextKey() string {
	e.keyLock.Lock()
	defer e.keyLock.Unlock()
	if len(e.keys) == 0 {
		return ""
	}
	key := e.keys[e.keyIdx]
	e.keyIdx = (e.keyIdx + 1) % len(e.keys)
	return key
}

// query performs an API request and decodes its result into result. An empty result list is not an error.
func (e *EtherscanClient) query(ctx context.Context, params url.Values, result any) error {
	operation := func() error {
		values := url.Values{}
		for k, v := range params {
			values[k] = v
		}
		if key := e.nextKey(); key != "" {
			values.Set("apikey", key)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"?"+values.Encode(), nil)
		if err != nil {
			return backoff.Permanent(errors.WithStack(err))
		}
		resp, err := e.httpClient.Do(req)
		if err != nil {
			return errors.WithStack(err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return errors.WithStack(err)
		}
		if resp.StatusCode != http.StatusOK {
			return errors.Errorf("explorer responded with status %d", resp.StatusCode)
		}

		var envelope etherscanResponse
		if err = json.Unmarshal(body, &envelope); err != nil {
			return errors.Wrap(err, "could not decode explorer response")
		}
		if envelope.Status != "1" {
			// "No transactions found" and similar empty answers are not errors
			if strings.HasPrefix(strings.TrimSpace(string(envelope.Result)), "[") {
				return nil
			}
			return errors.Errorf("explorer error: %s %s", envelope.Message, string(envelope.Result))
		}
		return errors.WithStack(json.Unmarshal(envelope.Result, result))
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(e.retryDelay), etherscanMaxAttempts-1), ctx)
	return backoff.Retry(operation, policy)
}

// ContractCreation returns the deployment of addr. It returns an error if the explorer knows no deployment.
func (e *EtherscanClient) ContractCreation(ctx context.Context, addr common.Address) (*ContractCreation, error) {
	params := url.Values{}
	params.Set("module", "contract")
	params.Set("action", "getcontractcreation")
	params.Set("contractaddresses", addr.Hex())
	params.Set("format", "json")

	var creations []ContractCreation
	if err := e.query(ctx, params, &creations); err != nil {
		return nil, err
	}
	if len(creations) == 0 {
		return nil, errors.Errorf("no creation record for %s", addr.Hex())
	}
	return &creations[0], nil
}

// InternalTransactions returns the internal transactions made during the transaction txHash.
func (e *EtherscanClient) InternalTransactions(ctx context.Context, txHash common.Hash) ([]InternalTransaction, error) {
	params := url.Values{}
	params.Set("module", "account")
	params.Set("action", "txlistinternal")
	params.Set("txhash", txHash.Hex())
	params.Set("format", "json")

	var txs []InternalTransaction
	if err := e.query(ctx, params, &txs); err != nil {
		return nil, err
	}
	return txs, nil
}

// ResolveCreator returns the account that deployed addr. When addr was deployed by a factory contract through an
// internal creation, the factory's own creator is resolved instead, up to maxFactoryDepth times.
func (e *EtherscanClient) ResolveCreator(ctx context.Context, addr common.Address) (common.Address, error) {
	creation, err := e.ContractCreation(ctx, addr)
	if err != nil {
		return common.Address{}, err
	}

	for depth := 0; depth < maxFactoryDepth; depth++ {
		internals, err := e.InternalTransactions(ctx, creation.TxHash)
		if err != nil {
			return creation.ContractCreator, err
		}

		factory, found := common.Address{}, false
		for _, tx := range internals {
			if tx.isCreationOf(addr) {
				factory, found = tx.From, true
				break
			}
		}
		if !found {
			return creation.ContractCreator, nil
		}

		addr = factory
		creation, err = e.ContractCreation(ctx, addr)
		if err != nil {
			// The factory itself is the best attribution left
			return factory, err
		}
	}
	return creation.ContractCreator, nil
}
