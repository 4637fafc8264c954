package slotbuilder

import (
	"NYCU-SDC/workflow-editor-backend/internal/workflow"
)

type Option func(*FactoryParams)

func WithKey(key string) Option {
	return func(p *FactoryParams) {
		p.Key = key
	}
}

func WithWorkflow(w workflow.Workflow) Option {
	return func(p *FactoryParams) {
		p.Workflow = w
	}
}

func WithSerializer(s workflow.Serializer) Option {
	return func(p *FactoryParams) {
		p.Serializer = s
	}
}

// WithRaw stores the given bytes instead of a serialized workflow
func WithRaw(raw []byte) Option {
	return func(p *FactoryParams) {
		p.Raw = raw
	}
}
