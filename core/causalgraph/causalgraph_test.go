package causalgraph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedNodes(t *testing.T, g *Graph, ids ...string) {
	t.Helper()
	for _, id := range ids {
		require.NoError(t, g.AddNode(&Node{ID: id, Label: id, Kind: KindConcept}))
	}
}

func TestAddCausalLinkValidation(t *testing.T) {
	g := New()
	seedNodes(t, g, "a", "b")

	t.Run("rejects empty causes", func(t *testing.T) {
		_, err := g.AddCausalLink(LinkInput{Effects: []string{"b"}, Confidence: 0.5, Strength: 0.5})
		assert.Error(t, err)
	})

	t.Run("rejects overlapping causes and effects", func(t *testing.T) {
		_, err := g.AddCausalLink(LinkInput{Causes: []string{"a"}, Effects: []string{"a"}, Confidence: 0.5, Strength: 0.5})
		assert.Error(t, err)
	})

	t.Run("rejects out-of-range confidence", func(t *testing.T) {
		_, err := g.AddCausalLink(LinkInput{Causes: []string{"a"}, Effects: []string{"b"}, Confidence: 1.5, Strength: 0.5})
		assert.Error(t, err)
	})

	t.Run("rejects dangling endpoint", func(t *testing.T) {
		_, err := g.AddCausalLink(LinkInput{Causes: []string{"ghost"}, Effects: []string{"b"}, Confidence: 0.5, Strength: 0.5})
		assert.Error(t, err)
	})

	t.Run("accepts a valid link", func(t *testing.T) {
		edge, err := g.AddCausalLink(LinkInput{Causes: []string{"a"}, Effects: []string{"b"}, Confidence: 0.9, Strength: 0.8})
		require.NoError(t, err)
		assert.NotEmpty(t, edge.ID)
	})

	t.Run("rejects duplicate endpoint set", func(t *testing.T) {
		_, err := g.AddCausalLink(LinkInput{Causes: []string{"a"}, Effects: []string{"b"}, Confidence: 0.5, Strength: 0.5})
		assert.Error(t, err)
	})
}

func TestAddCausalLinkRejectsCycle(t *testing.T) {
	g := New()
	seedNodes(t, g, "a", "b", "c")

	_, err := g.AddCausalLink(LinkInput{Causes: []string{"a"}, Effects: []string{"b"}, Confidence: 0.9, Strength: 0.9})
	require.NoError(t, err)
	_, err = g.AddCausalLink(LinkInput{Causes: []string{"b"}, Effects: []string{"c"}, Confidence: 0.9, Strength: 0.9})
	require.NoError(t, err)

	// c -> a would close a cycle a -> b -> c -> a.
	_, err = g.AddCausalLink(LinkInput{Causes: []string{"c"}, Effects: []string{"a"}, Confidence: 0.9, Strength: 0.9})
	assert.Error(t, err)
}

func TestRemoveNodeCascadesHyperedges(t *testing.T) {
	g := New()
	seedNodes(t, g, "a", "b")
	_, err := g.AddCausalLink(LinkInput{Causes: []string{"a"}, Effects: []string{"b"}, Confidence: 0.9, Strength: 0.9})
	require.NoError(t, err)
	require.Equal(t, 1, g.EdgeCount())

	require.NoError(t, g.RemoveNode("a"))
	assert.Equal(t, 0, g.EdgeCount())
}

func TestInferConsequencesChainConfidence(t *testing.T) {
	// S2: A->B (c=0.9), B->C (c=0.8); decay=0.9.
	// total_confidence ~= 0.9*0.9*0.8*0.9 = 0.5832.
	g := New()
	seedNodes(t, g, "A", "B", "C")
	_, err := g.AddCausalLink(LinkInput{Causes: []string{"A"}, Effects: []string{"B"}, Confidence: 0.9, Strength: 0.9})
	require.NoError(t, err)
	_, err = g.AddCausalLink(LinkInput{Causes: []string{"B"}, Effects: []string{"C"}, Confidence: 0.8, Strength: 0.8})
	require.NoError(t, err)

	result := g.InferConsequences([]string{"A"}, 3, DefaultTraversalOptions())
	require.NotEmpty(t, result.Chains)

	// Chains are ordered by total confidence descending, so the one-hop
	// chain A->B (0.81) comes first and the two-hop chain A->B->C last.
	full := result.Chains[len(result.Chains)-1]
	assert.Len(t, full.Path, 2)
	assert.InDelta(t, 0.5832, full.TotalConfidence, 1e-9)
	assert.Contains(t, result.Nodes, "C")
}

func TestInferConsequencesRespectsMaxDepth(t *testing.T) {
	g := New()
	seedNodes(t, g, "A", "B", "C")
	_, _ = g.AddCausalLink(LinkInput{Causes: []string{"A"}, Effects: []string{"B"}, Confidence: 0.9, Strength: 0.9})
	_, _ = g.AddCausalLink(LinkInput{Causes: []string{"B"}, Effects: []string{"C"}, Confidence: 0.9, Strength: 0.9})

	result := g.InferConsequences([]string{"A"}, 1, DefaultTraversalOptions())
	for _, c := range result.Chains {
		assert.LessOrEqual(t, c.Depth, 1)
	}
}

func TestFindCausesSymmetric(t *testing.T) {
	g := New()
	seedNodes(t, g, "A", "B", "C")
	_, _ = g.AddCausalLink(LinkInput{Causes: []string{"A"}, Effects: []string{"B"}, Confidence: 0.9, Strength: 0.9})
	_, _ = g.AddCausalLink(LinkInput{Causes: []string{"B"}, Effects: []string{"C"}, Confidence: 0.8, Strength: 0.8})

	result := g.FindCauses([]string{"C"}, 3, DefaultTraversalOptions())
	assert.Contains(t, result.Nodes, "A")
}

func TestValidateIntegrity(t *testing.T) {
	g := New()
	seedNodes(t, g, "a", "b")
	_, err := g.AddCausalLink(LinkInput{Causes: []string{"a"}, Effects: []string{"b"}, Confidence: 0.5, Strength: 0.5})
	require.NoError(t, err)
	assert.NoError(t, g.ValidateIntegrity())
}

func TestValidateIntegrityCollectsEveryViolation(t *testing.T) {
	g := New()
	seedNodes(t, g, "a", "b")
	edge, err := g.AddCausalLink(LinkInput{Causes: []string{"a"}, Effects: []string{"b"}, Confidence: 0.5, Strength: 0.5})
	require.NoError(t, err)

	// Corrupt the stored edge with two independent violations plus a
	// dangling reference, bypassing AddCausalLink's own validation.
	edge.Confidence = 1.5
	edge.Strength = -0.1
	edge.Effects["ghost"] = struct{}{}

	err = g.ValidateIntegrity()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "confidence")
	assert.Contains(t, msg, "strength")
	assert.Contains(t, msg, "ghost")
}

func TestOnMutateFiresForLinksAndNodeOps(t *testing.T) {
	g := New()
	var touched [][]string
	g.OnMutate = func(ids []string) { touched = append(touched, append([]string(nil), ids...)) }

	seedNodes(t, g, "a", "b")
	require.Len(t, touched, 2, "AddNode should notify once per node")

	_, err := g.AddCausalLink(LinkInput{Causes: []string{"a"}, Effects: []string{"b"}, Confidence: 0.9, Strength: 0.9})
	require.NoError(t, err)
	require.Len(t, touched, 3)
	assert.ElementsMatch(t, []string{"a", "b"}, touched[2])

	require.NoError(t, g.RemoveNode("a"))
	require.Len(t, touched, 4)
	assert.ElementsMatch(t, []string{"a", "b"}, touched[3], "removing a cascades the edge, touching both its endpoints")
}

func TestGetAllHyperedgesOrderedByCreation(t *testing.T) {
	g := New()
	seedNodes(t, g, "a", "b", "c")
	_, err := g.AddCausalLink(LinkInput{Causes: []string{"a"}, Effects: []string{"b"}, Confidence: 0.9, Strength: 0.9})
	require.NoError(t, err)
	_, err = g.AddCausalLink(LinkInput{Causes: []string{"b"}, Effects: []string{"c"}, Confidence: 0.8, Strength: 0.8})
	require.NoError(t, err)

	out, err := g.GetAllHyperedges(context.Background())
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.LessOrEqual(t, out[0].CreatedAt, out[1].CreatedAt)
}

func TestToJSONFromJSONRoundTrip(t *testing.T) {
	g := New()
	seedNodes(t, g, "a", "b")
	_, err := g.AddCausalLink(LinkInput{Causes: []string{"a"}, Effects: []string{"b"}, Confidence: 0.5, Strength: 0.5})
	require.NoError(t, err)

	data, err := g.ToJSON()
	require.NoError(t, err)

	g2, err := FromJSON(data)
	require.NoError(t, err)
	assert.Equal(t, g.NodeCount(), g2.NodeCount())
	assert.Equal(t, g.EdgeCount(), g2.EdgeCount())
	assert.NoError(t, g2.ValidateIntegrity())
}
