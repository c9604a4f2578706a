package process

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/nimbusworks/dfm/api"
	"github.com/nimbusworks/dfm/errors"
	"github.com/nimbusworks/dfm/execute"
)

// Verify rejects a pipeline if it contains a cycle, references unknown
// nodes, names an api_class not offered by its provider at this site,
// carries params failing schema validation, or declares inputs mismatching
// the api_class arity. Returns BAD_PIPELINE errors.
func Verify(site *execute.Site, p *api.Pipeline) error {
	if len(p.Nodes) == 0 {
		return errors.BadPipeline("pipeline has no nodes")
	}

	known := make(map[uuid.UUID]bool, len(p.Nodes))
	for i := range p.Nodes {
		node := &p.Nodes[i]
		if node.NodeID == uuid.Nil {
			return errors.BadPipeline("node without a node_id")
		}
		if known[node.NodeID] {
			return errors.BadPipeline(fmt.Sprintf("duplicate node_id %s", node.NodeID))
		}
		known[node.NodeID] = true
	}

	for i := range p.Nodes {
		node := &p.Nodes[i]

		spec, ok := api.Lookup(node.APIClass)
		if !ok {
			return errors.BadPipeline(fmt.Sprintf(
				"node %s: api_class %q is not registered at this site", node.NodeID, node.APIClass))
		}
		if spec.Internal {
			return errors.BadPipeline(fmt.Sprintf(
				"node %s: api_class %q is internal", node.NodeID, node.APIClass))
		}
		if !site.Offers(node.ProviderOrDefault(), node.APIClass) {
			return errors.BadPipeline(fmt.Sprintf(
				"node %s: provider %q does not offer %q", node.NodeID, node.ProviderOrDefault(), node.APIClass))
		}
		if !spec.Arity.Matches(len(node.Inputs)) {
			return errors.BadPipeline(fmt.Sprintf(
				"node %s: %s api_class %q declares %d inputs",
				node.NodeID, spec.Arity, node.APIClass, len(node.Inputs)))
		}
		if _, err := api.DecodeParams(node.APIClass, node.Params); err != nil {
			return errors.BadPipeline(fmt.Sprintf("node %s: %v", node.NodeID, err))
		}

		for _, ref := range node.Inputs {
			if !known[ref] {
				return errors.BadPipeline(fmt.Sprintf(
					"node %s: input references unknown node %s", node.NodeID, ref))
			}
		}
		for _, ref := range node.After {
			if !known[ref] {
				return errors.BadPipeline(fmt.Sprintf(
					"node %s: after references unknown node %s", node.NodeID, ref))
			}
		}
	}

	if _, err := TopoSort(p); err != nil {
		return err
	}
	return nil
}

// TopoSort orders the pipeline's nodes so every node follows its inputs and
// after targets. Kahn's algorithm; a remainder means a cycle.
func TopoSort(p *api.Pipeline) ([]uuid.UUID, error) {
	inDegree := make(map[uuid.UUID]int, len(p.Nodes))
	dependents := make(map[uuid.UUID][]uuid.UUID)

	for i := range p.Nodes {
		inDegree[p.Nodes[i].NodeID] = 0
	}
	for i := range p.Nodes {
		node := &p.Nodes[i]
		for _, from := range append(append([]uuid.UUID{}, node.Inputs...), node.After...) {
			inDegree[node.NodeID]++
			dependents[from] = append(dependents[from], node.NodeID)
		}
	}

	// seed with submission order for determinism
	var queue []uuid.UUID
	for i := range p.Nodes {
		if inDegree[p.Nodes[i].NodeID] == 0 {
			queue = append(queue, p.Nodes[i].NodeID)
		}
	}

	sorted := make([]uuid.UUID, 0, len(p.Nodes))
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		sorted = append(sorted, current)
		for _, next := range dependents[current] {
			inDegree[next]--
			if inDegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	if len(sorted) != len(p.Nodes) {
		return nil, errors.BadPipeline(fmt.Sprintf(
			"cycle detected, processed %d of %d nodes", len(sorted), len(p.Nodes)))
	}
	return sorted, nil
}
