package testdata

import (
	"fmt"

	"NYCU-SDC/workflow-editor-backend/internal/workflow"

	"github.com/brianvoe/gofakeit/v7"
)

var nodeTypes = []workflow.NodeType{
	workflow.NodeTypeStart,
	workflow.NodeTypeAction,
	workflow.NodeTypeDecision,
	workflow.NodeTypeTerminal,
}

func RandomKey() string {
	return "workflow-" + gofakeit.LetterN(12)
}

func RandomLabel() string {
	return gofakeit.HackerVerb() + " " + gofakeit.HackerNoun()
}

func RandomNodeType() workflow.NodeType {
	return nodeTypes[gofakeit.IntRange(0, len(nodeTypes)-1)]
}

func RandomPosition() workflow.Position {
	return workflow.Position{
		X: gofakeit.Float64Range(100, 500),
		Y: gofakeit.Float64Range(100, 400),
	}
}

func RandomConfig() map[string]workflow.ConfigValue {
	return map[string]workflow.ConfigValue{
		"service": workflow.StringValue(gofakeit.AppName()),
		"retries": workflow.NumberValue(float64(gofakeit.IntRange(0, 5))),
		"enabled": workflow.BoolValue(gofakeit.Bool()),
	}
}

func RandomNode() workflow.Node {
	nodeType := RandomNodeType()
	return workflow.Node{
		ID:       fmt.Sprintf("%s_%s", nodeType, gofakeit.UUID()),
		Type:     nodeType,
		Label:    RandomLabel(),
		Position: RandomPosition(),
		Config:   RandomConfig(),
	}
}

// RandomChain returns n random nodes linked one after another
func RandomChain(n int) workflow.Workflow {
	w := workflow.Empty()
	for i := 0; i < n; i++ {
		w.Nodes = append(w.Nodes, RandomNode())
		if i > 0 {
			w.Edges = append(w.Edges, workflow.Edge{
				ID:     fmt.Sprintf("e%d", i),
				Source: w.Nodes[i-1].ID,
				Target: w.Nodes[i].ID,
			})
		}
	}
	return w
}
