package adapter

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nimbusworks/dfm/api"
)

// constantAdapter yields the literal value from its params. It is also the
// node the optimizer folds into its consumers.
type constantAdapter struct {
	params *api.ConstantParams
}

func newConstant(deps Deps) (Adapter, error) {
	params, ok := deps.Params.(*api.ConstantParams)
	if !ok {
		return nil, fmt.Errorf("constant adapter: unexpected params type %T", deps.Params)
	}
	return &constantAdapter{params: params}, nil
}

func (a *constantAdapter) Body(ctx context.Context, emit Emit) error {
	return emit(ctx, json.RawMessage(a.params.Value))
}

func init() {
	Register("constant", newConstant)
}
