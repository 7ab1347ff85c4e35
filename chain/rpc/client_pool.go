package rpc

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/crytic/medusa-geth/rpc"
	"github.com/pkg/errors"
	"golang.org/x/net/context"
)

const (
	// defaultMaxRetries is the number of attempts made for each request.
	defaultMaxRetries = 3

	// defaultRetryDelay is the base delay between attempts. The n-th retry waits n times this delay.
	defaultRetryDelay = 100 * time.Millisecond
)

// ClientPool distributes JSON-RPC requests over a fixed set of clients in round-robin order. Identical requests that
// are in flight at the same time share one network round trip. Failed requests are retried with linear backoff.
type ClientPool struct {
	rpcClients       []*rpc.Client
	currentClientIdx int
	clientLock       sync.Mutex

	inflightRequests map[requestKey]*inflightRequest
	inflightLock     sync.Mutex

	endpoint   string
	maxRetries int
	retryDelay time.Duration
}

// NewClientPool dials poolSize clients to endpoint.
func NewClientPool(endpoint string, poolSize uint) (*ClientPool, error) {
	if poolSize == 0 {
		return nil, errors.New("client pool size must be greater than zero")
	}
	pool := &ClientPool{
		rpcClients:       make([]*rpc.Client, poolSize),
		inflightRequests: make(map[requestKey]*inflightRequest),
		endpoint:         endpoint,
		maxRetries:       defaultMaxRetries,
		retryDelay:       defaultRetryDelay,
	}

	for i := uint(0); i < poolSize; i++ {
		client, err := rpc.Dial(endpoint)
		if err != nil {
			pool.Close()
			return nil, errors.Wrapf(err, "could not dial %s", endpoint)
		}
		pool.rpcClients[i] = client
	}

	return pool, nil
}

// Endpoint returns the URL the pool is connected to.
func (c *ClientPool) Endpoint() string {
	return c.endpoint
}

// SetRetryPolicy overrides the number of attempts and the base delay between them.
func (c *ClientPool) SetRetryPolicy(maxRetries int, delay time.Duration) {
	if maxRetries < 1 {
		maxRetries = 1
	}
	c.maxRetries = maxRetries
	c.retryDelay = delay
}

// ExecuteRequestBlocking executes method and decodes its result into result, blocking until it is available.
func (c *ClientPool) ExecuteRequestBlocking(ctx context.Context, result any, method string, args ...any) error {
	pending, err := c.ExecuteRequestAsync(ctx, method, args...)
	if err != nil {
		return err
	}
	return pending.GetResultBlocking(result)
}

// ExecuteRequestAsync starts method in the background, or joins an identical request that is already in flight.
func (c *ClientPool) ExecuteRequestAsync(ctx context.Context, method string, args ...any) (*PendingResult, error) {
	key, err := makeRequestKey(method, args...)
	if err != nil {
		return nil, err
	}

	c.inflightLock.Lock()
	if inflight, exists := c.inflightRequests[key]; exists {
		c.inflightLock.Unlock()
		return newPendingResult(ctx, inflight), nil
	}

	inflight := &inflightRequest{
		Done:    make(chan struct{}),
		Context: ctx,
	}
	c.inflightRequests[key] = inflight
	c.inflightLock.Unlock()

	go c.launchRequest(c.getClient(), key, inflight, method, args...)
	return newPendingResult(ctx, inflight), nil
}

func (c *ClientPool) getClient() *rpc.Client {
	c.clientLock.Lock()
	defer c.clientLock.Unlock()

	client := c.rpcClients[c.currentClientIdx]
	c.currentClientIdx = (c.currentClientIdx + 1) % len(c.rpcClients)

	return client
}

func (c *ClientPool) launchRequest(client *rpc.Client, key requestKey, request *inflightRequest, method string, args ...any) {
	defer func() {
		// Later identical requests must reach the network again
		c.inflightLock.Lock()
		delete(c.inflightRequests, key)
		c.inflightLock.Unlock()
		close(request.Done)
	}()

	var err error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		var result json.RawMessage
		err = client.CallContext(request.Context, &result, method, args...)
		if err == nil {
			request.Result = result
			return
		}
		if request.Context.Err() != nil {
			break
		}
		time.Sleep(time.Duration(attempt+1) * c.retryDelay)
	}
	request.Error = errors.Wrapf(err, "%s failed after retries", method)
}

// Close closes every client of the pool.
func (c *ClientPool) Close() {
	for _, client := range c.rpcClients {
		if client != nil {
			client.Close()
		}
	}
}
