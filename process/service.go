package process

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nimbusworks/dfm/api"
	"github.com/nimbusworks/dfm/broker"
	apperrors "github.com/nimbusworks/dfm/errors"
	"github.com/nimbusworks/dfm/execute"
	"github.com/nimbusworks/dfm/logger"
	"github.com/nimbusworks/dfm/observability"
)

// Service holds the ingress logic behind the HTTP handlers.
type Service struct {
	client *broker.Client
	site   *execute.Site
	cfg    Config
	log    *logger.Logger
}

// NewService assembles the ingress service.
func NewService(client *broker.Client, site *execute.Site, cfg Config, log *logger.Logger) *Service {
	cfg.ApplyDefaults()
	return &Service{
		client: client,
		site:   site,
		cfg:    cfg,
		log:    log.WithComponent("process"),
	}
}

// Submit verifies and optimizes a pipeline, stores the request record, and
// enqueues the initial ready set. Returns the assigned request id.
func (s *Service) Submit(ctx context.Context, pipeline api.Pipeline) (uuid.UUID, error) {
	ctx, span := observability.StartSpan(ctx, "process.submit")
	defer span.End()

	if err := Verify(s.site, &pipeline); err != nil {
		return uuid.Nil, err
	}
	optimized, folded, err := Optimize(&pipeline)
	if err != nil {
		return uuid.Nil, err
	}

	requestID := uuid.New()
	req := api.NewRequest(requestID, *optimized, time.Now().UTC())
	for _, id := range folded {
		req.NodeState[id] = api.StateCompleted
	}

	if err := s.client.SaveRequest(ctx, req, s.site.Config().RequestTTL); err != nil {
		return uuid.Nil, apperrors.Internal(err)
	}
	s.log.Info("Stored request", logger.Fields(
		logger.FieldRequestID, requestID.String(), "nodes", len(optimized.Nodes)))

	if err := s.materializeConstants(ctx, req, folded); err != nil {
		return uuid.Nil, apperrors.Internal(err)
	}
	if err := execute.InitialEnqueue(ctx, s.client, s.site.Name(), req); err != nil {
		return uuid.Nil, apperrors.Internal(err)
	}
	observability.RequestsSubmitted.Add(ctx, 1)
	return requestID, nil
}

// materializeConstants folds non-output Constant nodes into their
// consumers: the literal value lands in the input buffers directly and the
// consumers become eligible without the node ever running.
func (s *Service) materializeConstants(ctx context.Context, req *api.Request, folded []uuid.UUID) error {
	foldedSet := make(map[uuid.UUID]bool, len(folded))
	for _, id := range folded {
		foldedSet[id] = true
	}

	for _, id := range folded {
		node := req.Pipeline.Node(id)
		params, err := api.DecodeParams(node.APIClass, node.Params)
		if err != nil {
			return fmt.Errorf("fold constant %s: %w", id, err)
		}
		value := json.RawMessage(params.(*api.ConstantParams).Value)

		for i := range req.Pipeline.Nodes {
			consumer := &req.Pipeline.Nodes[i]
			for port, input := range consumer.Inputs {
				if input != id {
					continue
				}
				if err := s.client.PushInput(ctx, req.RequestID, consumer.NodeID, port, value); err != nil {
					return err
				}
				if err := s.client.CloseInput(ctx, req.RequestID, consumer.NodeID, port); err != nil {
					return err
				}
			}
		}
	}

	// consumers fed only by folded constants may be ready right away
	for i := range req.Pipeline.Nodes {
		consumer := &req.Pipeline.Nodes[i]
		if len(consumer.Inputs) == 0 {
			continue
		}
		touched := false
		for _, input := range consumer.Inputs {
			if foldedSet[input] {
				touched = true
				break
			}
		}
		if !touched {
			continue
		}
		hint := len(consumer.Inputs) == 1
		if _, err := execute.TryMarkReady(ctx, s.client, s.site.Name(), req.RequestID, consumer.NodeID, hint); err != nil {
			return err
		}
	}
	return nil
}

// Responses drains the request's response queue, blocking up to timeout
// for the first envelope. An empty slice is a valid outcome.
func (s *Service) Responses(ctx context.Context, requestID uuid.UUID, max int, timeout time.Duration) ([]api.Response, error) {
	exists, err := s.client.RequestExists(ctx, requestID)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	if !exists {
		return nil, apperrors.NoSuchRequest(requestID.String())
	}

	if max <= 0 || max > s.cfg.MaxBatch {
		max = s.cfg.MaxBatch
	}
	if timeout <= 0 || timeout > s.cfg.MaxPollTimeout {
		timeout = s.cfg.MaxPollTimeout
	}

	responses, err := s.client.PopResponses(ctx, requestID, max, timeout)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return responses, nil
}

// Cancel flags the request as cancelled. Safe to call any number of times;
// workers drain the remaining nodes at their next await point.
func (s *Service) Cancel(ctx context.Context, requestID uuid.UUID) error {
	_, err := s.client.UpdateRequest(ctx, requestID, func(r *api.Request) error {
		r.Cancelled = true
		return nil
	})
	if err != nil {
		if errors.Is(err, broker.ErrNoSuchRequest) {
			return apperrors.NoSuchRequest(requestID.String())
		}
		return apperrors.Internal(err)
	}
	s.log.Info("Request cancelled", logger.Fields(logger.FieldRequestID, requestID.String()))
	return nil
}

// Discover enumerates the site's providers.
func (s *Service) Discover() []execute.ProviderDiscovery {
	return s.site.Discover()
}
