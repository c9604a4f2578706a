package adapter

import (
	"context"
	"fmt"

	"github.com/nimbusworks/dfm/api"
)

// pushResponseAdapter appends a pre-built response envelope to the
// request's queue. Internal: services inject it for delayed status
// delivery; clients cannot submit it.
type pushResponseAdapter struct {
	rt     Runtime
	params *api.PushResponseParams
}

func newPushResponse(deps Deps) (Adapter, error) {
	params, ok := deps.Params.(*api.PushResponseParams)
	if !ok {
		return nil, fmt.Errorf("pushresponse adapter: unexpected params type %T", deps.Params)
	}
	return &pushResponseAdapter{rt: deps.Runtime, params: params}, nil
}

func (a *pushResponseAdapter) Body(ctx context.Context, emit Emit) error {
	return a.rt.PushResponse(ctx, a.params.Response)
}

func init() {
	Register("pushresponse", newPushResponse)
}
