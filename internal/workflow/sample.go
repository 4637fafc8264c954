package workflow

import (
	_ "embed"
	"encoding/json"
	"fmt"
)

//go:embed sample_workflow.json
var sampleWorkflowJSON []byte

var sampleWorkflow = mustParseSample(sampleWorkflowJSON)

func mustParseSample(data []byte) Workflow {
	var w Workflow
	if err := json.Unmarshal(data, &w); err != nil {
		panic(fmt.Sprintf("embedded sample workflow is invalid: %v", err))
	}
	return w
}

// SampleWorkflow returns a fresh copy of the built-in sample graph
func SampleWorkflow() Workflow {
	return sampleWorkflow.Clone()
}
