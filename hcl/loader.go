package hcl

import (
	"fmt"

	hcl2 "github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/flowmesh/flowmesh/graph"
)

// fileRoot decodes the top-level blocks of a definition file.
type fileRoot struct {
	Workflows []*workflowBlock `hcl:"workflow,block"`
}

// workflowBlock mirrors one workflow declaration.
type workflowBlock struct {
	Start   string         `hcl:"start"`
	Nodes   []*nodeBlock   `hcl:"node,block"`
	Edges   []*edgeBlock   `hcl:"edge,block"`
	FanOuts []*fanOutBlock `hcl:"fan_out,block"`
	FanIns  []*fanInBlock  `hcl:"fan_in,block"`
}

// nodeBlock binds a node ID to a registered executor type. All attributes
// beyond "executor" are passed to the factory as native Go values.
type nodeBlock struct {
	ID       string    `hcl:"id,label"`
	Executor string    `hcl:"executor"`
	Remain   hcl2.Body `hcl:",remain"`
}

type edgeBlock struct {
	Source    string  `hcl:"source"`
	Target    string  `hcl:"target"`
	Condition *string `hcl:"condition,optional"`
}

type fanOutBlock struct {
	Source  string   `hcl:"source"`
	Targets []string `hcl:"targets"`
}

type fanInBlock struct {
	Target    string   `hcl:"target"`
	Sources   []string `hcl:"sources"`
	Policy    *string  `hcl:"policy,optional"`
	Threshold *int     `hcl:"threshold,optional"`
}

// Loader parses workflow definition files and compiles them against a
// registry of executor factories.
type Loader struct {
	registry *Registry
}

// NewLoader creates a loader backed by the given registry.
func NewLoader(registry *Registry) *Loader {
	return &Loader{registry: registry}
}

// Load reads an HCL file from disk and compiles its workflow definition.
func (l *Loader) Load(path string) (*graph.Workflow, error) {
	parser := hclparse.NewParser()

	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse %s: %w", path, diags)
	}

	return l.compile(file)
}

// LoadBytes compiles a workflow definition from an in-memory HCL document.
// filename is used in diagnostics only.
func (l *Loader) LoadBytes(src []byte, filename string) (*graph.Workflow, error) {
	parser := hclparse.NewParser()

	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse %s: %w", filename, diags)
	}

	return l.compile(file)
}

// compile decodes the parsed file and drives graph.Builder. Structural issues
// (missing nodes, unreachable nodes, bad thresholds) surface from Build as a
// graph.BuildError.
func (l *Loader) compile(file *hcl2.File) (*graph.Workflow, error) {
	var root fileRoot
	if diags := gohcl.DecodeBody(file.Body, nil, &root); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode workflow definition: %w", diags)
	}

	if len(root.Workflows) == 0 {
		return nil, fmt.Errorf("no workflow block found")
	}
	if len(root.Workflows) > 1 {
		return nil, fmt.Errorf("expected exactly one workflow block, found %d", len(root.Workflows))
	}

	wf := root.Workflows[0]
	builder := graph.NewBuilder()

	for _, node := range wf.Nodes {
		factory, err := l.registry.executorFor(node.Executor)
		if err != nil {
			return nil, fmt.Errorf("node %q: %w", node.ID, err)
		}

		attrs, err := decodeAttributes(node.Remain)
		if err != nil {
			return nil, fmt.Errorf("node %q: %w", node.ID, err)
		}

		exec, err := factory(node.ID, attrs)
		if err != nil {
			return nil, fmt.Errorf("node %q: executor factory failed: %w", node.ID, err)
		}

		builder.AddNode(node.ID, exec)
	}

	for _, edge := range wf.Edges {
		var opts []graph.EdgeOption
		if edge.Condition != nil {
			cond, err := l.registry.conditionFor(*edge.Condition)
			if err != nil {
				return nil, fmt.Errorf("edge %s->%s: %w", edge.Source, edge.Target, err)
			}
			opts = append(opts, graph.WithCondition(cond))
		}
		builder.AddEdge(edge.Source, edge.Target, opts...)
	}

	for _, fanOut := range wf.FanOuts {
		builder.AddFanOut(fanOut.Source, fanOut.Targets...)
	}

	for _, fanIn := range wf.FanIns {
		opts, err := fanInOptions(fanIn)
		if err != nil {
			return nil, err
		}
		builder.AddFanIn(fanIn.Target, fanIn.Sources, opts...)
	}

	builder.SetStart(wf.Start)

	return builder.Build()
}

// fanInOptions maps the block's policy attributes to builder options.
func fanInOptions(block *fanInBlock) ([]graph.FanInOption, error) {
	policy := "all"
	if block.Policy != nil {
		policy = *block.Policy
	}

	switch policy {
	case "all":
		if block.Threshold != nil {
			return nil, fmt.Errorf("fan-in to %q: threshold requires policy = \"threshold\"", block.Target)
		}
		return nil, nil
	case "threshold":
		if block.Threshold == nil {
			return nil, fmt.Errorf("fan-in to %q: policy \"threshold\" requires a threshold attribute", block.Target)
		}
		return []graph.FanInOption{graph.WithThreshold(*block.Threshold)}, nil
	default:
		return nil, fmt.Errorf("fan-in to %q: unknown policy %q (want \"all\" or \"threshold\")", block.Target, policy)
	}
}

// decodeAttributes converts a block's remaining attributes to native Go
// values. Expressions are evaluated without a context, so only literals are
// supported.
func decodeAttributes(body hcl2.Body) (map[string]any, error) {
	attrs, diags := body.JustAttributes()
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to read attributes: %w", diags)
	}

	native := make(map[string]any, len(attrs))
	for name, attr := range attrs {
		val, diags := attr.Expr.Value(nil)
		if diags.HasErrors() {
			return nil, fmt.Errorf("attribute %q: %w", name, diags)
		}

		converted, err := ctyToNative(val)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", name, err)
		}
		native[name] = converted
	}

	return native, nil
}
