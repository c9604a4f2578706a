package api

import "encoding/json"

// Param records for the built-in api_classes. Each record is the schema the
// registry enforces for its class; unknown fields are rejected on decode.

// ConstantParams configures dfm.api.dfm.Constant.
type ConstantParams struct {
	// Value is the JSON value the node yields.
	Value json.RawMessage `json:"value" validate:"required"`
}

// GreetMeParams configures dfm.api.dfm.GreetMe.
type GreetMeParams struct {
	// Name gets combined with the provider-configured greeting.
	Name string `json:"name" validate:"required"`
}

// SignalParams configures dfm.api.dfm.SignalClient and SignalAllDone. The
// predecessors are expressed as `after` edges on the node.
type SignalParams struct {
	// Message is sent to the client when the signal is issued.
	Message string `json:"message"`
}

// SendMessageParams configures dfm.api.dfm.SendMessage. The message payload
// arrives on the node's single input stream.
type SendMessageParams struct {
	// Mailbox identifies the message queue at the target site.
	Mailbox string `json:"mailbox" validate:"required"`
}

// AwaitMessageParams configures dfm.api.dfm.AwaitMessage.
type AwaitMessageParams struct {
	// Mailbox is the virtual mailbox to watch.
	Mailbox string `json:"mailbox" validate:"required"`
	// SleepSeconds is the period between mailbox checks.
	SleepSeconds float64 `json:"sleeptime,omitempty"`
	// MaxWaits bounds how often the node reschedules itself before failing.
	MaxWaits int `json:"max_waits,omitempty"`
}

// PushResponseParams configures dfm.api.dfm.PushResponse, the internal
// class that appends a pre-built response to the request's queue.
type PushResponseParams struct {
	Response Response `json:"response" validate:"required"`
}

// LoadEra5ModelDataParams configures dfm.api.data_loader.LoadEra5ModelData.
type LoadEra5ModelDataParams struct {
	// Time selects the model timestamp, e.g. "2024-01-01T00:00".
	Time string `json:"time" validate:"required"`
	// Variables selects the physical variables to load.
	Variables []string `json:"variables,omitempty"`
}

// VariableNormParams configures dfm.api.xarray.VariableNorm.
type VariableNormParams struct {
	// Order selects the norm order; 2 if unset.
	Order int `json:"order,omitempty"`
}

// AveragePointwiseParams configures dfm.api.xarray.AveragePointwise.
type AveragePointwiseParams struct{}

// Zip2Params configures dfm.api.dfm.Zip2.
type Zip2Params struct{}

func init() {
	Register(Spec{
		Class:       "dfm.api.dfm.Constant",
		Description: "Yield a constant json value.",
		Arity:       Nullary,
		NewParams:   func() any { return &ConstantParams{} },
	})
	Register(Spec{
		Class:       "dfm.api.dfm.GreetMe",
		Description: "Combine the provider greeting with the given name.",
		Arity:       Nullary,
		NewParams:   func() any { return &GreetMeParams{} },
	})
	Register(Spec{
		Class:       "dfm.api.dfm.SignalClient",
		Description: "Send a message to the client after the preceding node finished.",
		Arity:       Nullary,
		NewParams:   func() any { return &SignalParams{} },
	})
	Register(Spec{
		Class:       "dfm.api.dfm.SignalAllDone",
		Description: "Send a message to the client after all preceding nodes finished.",
		Arity:       Nullary,
		NewParams:   func() any { return &SignalParams{} },
	})
	Register(Spec{
		Class:       "dfm.api.dfm.SendMessage",
		Description: "Deliver the input value to a named mailbox.",
		Arity:       Unary,
		NewParams:   func() any { return &SendMessageParams{} },
	})
	Register(Spec{
		Class:       "dfm.api.dfm.AwaitMessage",
		Description: "Wait for a message to arrive in a named mailbox.",
		Arity:       Nullary,
		NewParams:   func() any { return &AwaitMessageParams{} },
	})
	Register(Spec{
		Class:       "dfm.api.dfm.PushResponse",
		Description: "Append a pre-built response to the request queue.",
		Arity:       Nullary,
		NewParams:   func() any { return &PushResponseParams{} },
		Internal:    true,
	})
	Register(Spec{
		Class:       "dfm.api.dfm.Zip2",
		Description: "Pair two upstream streams element-wise.",
		Arity:       Binary,
		NewParams:   func() any { return &Zip2Params{} },
	})
	Register(Spec{
		Class:       "dfm.api.data_loader.LoadEra5ModelData",
		Description: "Load ERA5 model frames for a timestamp.",
		Arity:       Nullary,
		NewParams:   func() any { return &LoadEra5ModelDataParams{} },
	})
	Register(Spec{
		Class:       "dfm.api.xarray.VariableNorm",
		Description: "Compute the norm of each upstream frame.",
		Arity:       Unary,
		NewParams:   func() any { return &VariableNormParams{} },
	})
	Register(Spec{
		Class:       "dfm.api.xarray.AveragePointwise",
		Description: "Average the upstream streams pointwise.",
		Arity:       Variadic,
		NewParams:   func() any { return &AveragePointwiseParams{} },
	})
}
