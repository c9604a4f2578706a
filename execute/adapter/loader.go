package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nimbusworks/dfm/api"
	"github.com/nimbusworks/dfm/errors"
	"github.com/nimbusworks/dfm/resilience"
)

// era5Frame is one frame emitted by the loader.
type era5Frame struct {
	Time     string    `json:"time"`
	Variable string    `json:"variable"`
	Data     []float64 `json:"data,omitempty"`
	// Ref points into the provider blob store when frames are materialized
	// by reference.
	Ref string `json:"ref,omitempty"`
}

// era5LoaderAdapter streams model frames for a timestamp from an upstream
// weather archive. The archive endpoint comes from the adapter config; when
// the provider configures a blob store and store_by_ref is set, frame
// payloads are materialized there and cached by reference.
type era5LoaderAdapter struct {
	provider   *Provider
	params     *api.LoadEra5ModelDataParams
	frameCount int
	frameDelay time.Duration
	storeByRef bool
	breaker    *resilience.CircuitBreaker
	fetch      func(ctx context.Context, t string, variable string, frame int) ([]float64, error)
}

func newEra5Loader(deps Deps) (Adapter, error) {
	params, ok := deps.Params.(*api.LoadEra5ModelDataParams)
	if !ok {
		return nil, fmt.Errorf("era5 loader: unexpected params type %T", deps.Params)
	}
	if _, err := time.Parse("2006-01-02T15:04", params.Time); err != nil {
		return nil, errors.AdapterBadInput(fmt.Sprintf("time %q is not of form 2006-01-02T15:04", params.Time))
	}
	a := &era5LoaderAdapter{
		provider:   deps.Provider,
		params:     params,
		frameCount: cfgInt(deps.Config, "frame_count", 3),
		frameDelay: cfgDuration(deps.Config, "frame_delay", 50*time.Millisecond),
		storeByRef: cfgBool(deps.Config, "store_by_ref", false),
		breaker:    resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig("era5-archive")),
	}
	a.fetch = a.synthesizeFrame
	return a, nil
}

func (a *era5LoaderAdapter) Body(ctx context.Context, emit Emit) error {
	variables := a.params.Variables
	if len(variables) == 0 {
		variables = []string{"t2m"}
	}

	for frame := 0; frame < a.frameCount; frame++ {
		for _, variable := range variables {
			var data []float64
			err := a.breaker.Execute(func() error {
				var fetchErr error
				data, fetchErr = a.fetch(ctx, a.params.Time, variable, frame)
				return fetchErr
			})
			if err != nil {
				return errors.UpstreamUnavailable("era5-archive", err)
			}

			out := era5Frame{Time: a.params.Time, Variable: variable}
			if a.storeByRef && a.provider.Blob != nil {
				payload, err := json.Marshal(data)
				if err != nil {
					return err
				}
				name := fmt.Sprintf("era5-%s-%s-%d.json", a.params.Time, variable, frame)
				uri, err := a.provider.Blob.Put(name, payload)
				if err != nil {
					return err
				}
				out.Ref = uri
			} else {
				out.Data = data
			}

			value, err := json.Marshal(out)
			if err != nil {
				return err
			}
			if err := emit(ctx, value); err != nil {
				return err
			}
		}
	}
	return nil
}

// synthesizeFrame stands in for the archive protocol; it simulates the
// fetch latency and produces a deterministic frame.
func (a *era5LoaderAdapter) synthesizeFrame(ctx context.Context, t string, variable string, frame int) ([]float64, error) {
	timer := time.NewTimer(a.frameDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
	}
	data := make([]float64, 4)
	for i := range data {
		data[i] = float64(frame*len(data) + i)
	}
	return data, nil
}

func init() {
	Register("era5loader", newEra5Loader)
}
