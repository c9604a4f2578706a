package process

import (
	"github.com/google/uuid"

	"github.com/nimbusworks/dfm/api"
	"github.com/nimbusworks/dfm/fingerprint"
)

// Optimize applies the two deterministic rewrites to a verified pipeline:
// duplicate elimination by fingerprint and constant folding. It returns the
// rewritten pipeline and the ids of foldable constant nodes (non-output
// Constant nodes whose values are materialized directly into their
// consumers' input buffers at enqueue time).
func Optimize(p *api.Pipeline) (*api.Pipeline, []uuid.UUID, error) {
	deduped, err := eliminateDuplicates(p)
	if err != nil {
		return nil, nil, err
	}

	var folded []uuid.UUID
	for i := range deduped.Nodes {
		node := &deduped.Nodes[i]
		if node.APIClass == "dfm.api.dfm.Constant" && !node.IsOutput &&
			!node.ForceCompute && len(node.After) == 0 {
			folded = append(folded, node.NodeID)
		}
	}
	return deduped, folded, nil
}

// eliminateDuplicates collapses nodes sharing a fingerprint onto the first
// occurrence, fanning their consumers out to the survivor. Output nodes are
// kept: their node ids are part of the client contract.
func eliminateDuplicates(p *api.Pipeline) (*api.Pipeline, error) {
	order, err := TopoSort(p)
	if err != nil {
		return nil, err
	}

	fingerprints := make(map[uuid.UUID]string, len(p.Nodes))
	for _, id := range order {
		node := p.Node(id)
		upstream := make([]string, len(node.Inputs))
		for i, input := range node.Inputs {
			upstream[i] = fingerprints[input]
		}
		fp, err := fingerprint.Compute(node.APIClass, node.Params, node.ProviderOrDefault(), upstream)
		if err != nil {
			return nil, err
		}
		fingerprints[id] = fp
	}

	// first node per fingerprint survives, in submission order
	survivor := make(map[string]uuid.UUID, len(p.Nodes))
	replaced := make(map[uuid.UUID]uuid.UUID)
	for i := range p.Nodes {
		node := &p.Nodes[i]
		fp := fingerprints[node.NodeID]
		keeper, ok := survivor[fp]
		if !ok {
			survivor[fp] = node.NodeID
			continue
		}
		if node.IsOutput || p.Node(keeper).IsOutput {
			// collapsing output nodes would change which node_ids emit
			// responses
			continue
		}
		replaced[node.NodeID] = keeper
	}

	if len(replaced) == 0 {
		return p, nil
	}

	rewrite := func(ids []uuid.UUID) []uuid.UUID {
		out := make([]uuid.UUID, len(ids))
		for i, id := range ids {
			if keeper, ok := replaced[id]; ok {
				id = keeper
			}
			out[i] = id
		}
		return out
	}

	optimized := &api.Pipeline{Nodes: make([]api.FunctionCall, 0, len(p.Nodes))}
	for i := range p.Nodes {
		node := p.Nodes[i]
		if _, dropped := replaced[node.NodeID]; dropped {
			continue
		}
		node.Inputs = rewrite(node.Inputs)
		node.After = rewrite(node.After)
		optimized.Nodes = append(optimized.Nodes, node)
	}
	return optimized, nil
}
