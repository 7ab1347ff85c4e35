package rpc

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
)

// PendingResult is returned by ClientPool.ExecuteRequestAsync. It resolves once the request completes.
type PendingResult struct {
	ctx     context.Context
	request *inflightRequest
}

func newPendingResult(ctx context.Context, request *inflightRequest) *PendingResult {
	return &PendingResult{
		ctx:     ctx,
		request: request,
	}
}

// GetResultBlocking waits for the request and decodes its result into result, which must be a pointer. An error is
// returned if the request failed or the caller's context was cancelled first.
func (p *PendingResult) GetResultBlocking(result any) error {
	select {
	case <-p.request.Done:
		if p.request.Error != nil {
			return p.request.Error
		}
		return errors.WithStack(json.Unmarshal(p.request.Result, result))
	case <-p.ctx.Done():
		return p.ctx.Err()
	}
}

// requestKey uniquely identifies a JSON-RPC request for deduplication.
type requestKey struct {
	Method string
	Args   string
}

func makeRequestKey(method string, args ...any) (requestKey, error) {
	serialized, err := json.Marshal(args)
	if err != nil {
		return requestKey{}, errors.WithStack(err)
	}
	return requestKey{Method: method, Args: string(serialized)}, nil
}

// inflightRequest is a JSON-RPC request that is currently traversing the network.
type inflightRequest struct {
	// Done is closed once the request completed, possibly with an error.
	Done    chan struct{}
	Error   error
	Result  json.RawMessage
	Context context.Context
}
