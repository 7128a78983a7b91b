package hcl

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowmesh/flowmesh/core"
	"github.com/flowmesh/flowmesh/executor"
	"github.com/flowmesh/flowmesh/graph"
)

func passthroughFactory(nodeID string, attrs map[string]any) (core.Executor, error) {
	return executor.NewFunctionExecutor(nodeID,
		func(rc *core.RunContext, msg core.Message) ([]core.Message, error) {
			return []core.Message{msg.Clone()}, nil
		},
	), nil
}

func newTestRegistry() *Registry {
	registry := NewRegistry()
	registry.RegisterExecutor("passthrough", passthroughFactory)
	registry.RegisterCondition("non_empty", func(msg core.Message) bool {
		s, _ := msg.Payload.(string)
		return s != ""
	})
	return registry
}

const fullDefinition = `
workflow {
  start = "ingest"

  node "ingest" {
    executor = "passthrough"
  }

  node "left" {
    executor = "passthrough"
  }

  node "right" {
    executor = "passthrough"
  }

  node "merge" {
    executor = "passthrough"
  }

  node "publish" {
    executor = "passthrough"
  }

  fan_out {
    source  = "ingest"
    targets = ["left", "right"]
  }

  fan_in {
    target    = "merge"
    sources   = ["left", "right"]
    policy    = "threshold"
    threshold = 1
  }

  edge {
    source    = "merge"
    target    = "publish"
    condition = "non_empty"
  }
}
`

func TestLoadBytesFullTopology(t *testing.T) {
	loader := NewLoader(newTestRegistry())

	wf, err := loader.LoadBytes([]byte(fullDefinition), "pipeline.hcl")
	require.NoError(t, err)

	assert.Equal(t, "ingest", wf.StartNodeID())
	assert.Equal(t, []string{"ingest", "left", "right", "merge", "publish"}, wf.NodeIDs())

	fanOuts := wf.FanOutGroups()
	require.Len(t, fanOuts, 1)
	assert.Equal(t, "ingest", fanOuts[0].Source)
	assert.Equal(t, []string{"left", "right"}, fanOuts[0].Targets)

	fanIns := wf.FanInGroups()
	require.Len(t, fanIns, 1)
	assert.Equal(t, graph.JoinThreshold, fanIns[0].Policy)
	assert.Equal(t, 1, fanIns[0].Threshold)

	edges := wf.Edges()
	require.Len(t, edges, 1)
	assert.Equal(t, "merge", edges[0].Source)
	assert.Equal(t, "publish", edges[0].Target)
	require.NotNil(t, edges[0].Condition)
	assert.True(t, edges[0].Condition(core.NewMessage("x")))
	assert.False(t, edges[0].Condition(core.NewMessage("")))
}

func TestLoadBytesPassesNodeAttributes(t *testing.T) {
	registry := NewRegistry()

	var gotAttrs map[string]any
	registry.RegisterExecutor("configurable", func(nodeID string, attrs map[string]any) (core.Executor, error) {
		gotAttrs = attrs
		return passthroughFactory(nodeID, attrs)
	})

	definition := `
workflow {
  start = "only"

  node "only" {
    executor = "configurable"
    url      = "https://example.com"
    retries  = 3
    verbose  = true
    tags     = ["a", "b"]
  }
}
`
	_, err := NewLoader(registry).LoadBytes([]byte(definition), "attrs.hcl")
	require.NoError(t, err)

	require.NotNil(t, gotAttrs)
	assert.Equal(t, "https://example.com", gotAttrs["url"])
	assert.Equal(t, 3.0, gotAttrs["retries"])
	assert.Equal(t, true, gotAttrs["verbose"])
	assert.Equal(t, []any{"a", "b"}, gotAttrs["tags"])
	assert.NotContains(t, gotAttrs, "executor")
}

func TestLoadBytesUnknownExecutor(t *testing.T) {
	definition := `
workflow {
  start = "only"

  node "only" {
    executor = "missing"
  }
}
`
	_, err := NewLoader(newTestRegistry()).LoadBytes([]byte(definition), "bad.hcl")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not registered")
}

func TestLoadBytesUnknownCondition(t *testing.T) {
	definition := `
workflow {
  start = "a"

  node "a" {
    executor = "passthrough"
  }

  node "b" {
    executor = "passthrough"
  }

  edge {
    source    = "a"
    target    = "b"
    condition = "missing"
  }
}
`
	_, err := NewLoader(newTestRegistry()).LoadBytes([]byte(definition), "bad.hcl")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `condition "missing" not registered`)
}

func TestLoadBytesInvalidFanInPolicy(t *testing.T) {
	definition := `
workflow {
  start = "a"

  node "a" {
    executor = "passthrough"
  }

  node "b" {
    executor = "passthrough"
  }

  node "c" {
    executor = "passthrough"
  }

  fan_out {
    source  = "a"
    targets = ["b"]
  }

  fan_in {
    target  = "c"
    sources = ["b"]
    policy  = "quorum"
  }
}
`
	_, err := NewLoader(newTestRegistry()).LoadBytes([]byte(definition), "bad.hcl")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown policy")
}

func TestLoadBytesStructuralIssuesSurfaceAsBuildError(t *testing.T) {
	definition := `
workflow {
  start = "a"

  node "a" {
    executor = "passthrough"
  }

  node "orphan" {
    executor = "passthrough"
  }
}
`
	_, err := NewLoader(newTestRegistry()).LoadBytes([]byte(definition), "bad.hcl")
	require.Error(t, err)

	var buildErr *graph.BuildError
	require.ErrorAs(t, err, &buildErr)
	assert.True(t, buildErr.HasIssue(`node "orphan" not reachable from start`))
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "workflow.hcl")
	require.NoError(t, os.WriteFile(path, []byte(fullDefinition), 0o600))

	wf, err := NewLoader(newTestRegistry()).Load(path)
	require.NoError(t, err)
	assert.Equal(t, "ingest", wf.StartNodeID())
}

func TestLoadBytesRequiresWorkflowBlock(t *testing.T) {
	_, err := NewLoader(newTestRegistry()).LoadBytes([]byte(""), "empty.hcl")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no workflow block")
}
