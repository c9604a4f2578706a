package adapter

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nimbusworks/dfm/api"
)

// greetMeAdapter is the hello-world of the system: it combines the
// provider-configured greeting with the client-supplied name.
type greetMeAdapter struct {
	greeting string
	params   *api.GreetMeParams
}

func newGreetMe(deps Deps) (Adapter, error) {
	params, ok := deps.Params.(*api.GreetMeParams)
	if !ok {
		return nil, fmt.Errorf("greetme adapter: unexpected params type %T", deps.Params)
	}
	return &greetMeAdapter{
		greeting: cfgString(deps.Config, "greeting", "Hello"),
		params:   params,
	}, nil
}

func (a *greetMeAdapter) Body(ctx context.Context, emit Emit) error {
	value, err := json.Marshal(fmt.Sprintf("%s %s", a.greeting, a.params.Name))
	if err != nil {
		return err
	}
	return emit(ctx, value)
}

func init() {
	Register("greetme", newGreetMe)
}
