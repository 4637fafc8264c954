package slotbuilder

import (
	"NYCU-SDC/workflow-editor-backend/internal/storage"
	"NYCU-SDC/workflow-editor-backend/internal/workflow"
	"NYCU-SDC/workflow-editor-backend/test/testdata"
	"NYCU-SDC/workflow-editor-backend/test/testdata/dbbuilder"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type FactoryParams struct {
	Key        string
	Workflow   workflow.Workflow
	Serializer workflow.Serializer
	Raw        []byte
}

type Builder struct {
	t  *testing.T
	db dbbuilder.DBTX
}

func New(t *testing.T, db dbbuilder.DBTX) *Builder {
	return &Builder{t: t, db: db}
}

func (b Builder) Slot() *storage.Postgres {
	return storage.NewPostgres(zap.NewNop(), b.db)
}

// Create writes a workflow_slots row and returns the parameters it used
func (b Builder) Create(opts ...Option) FactoryParams {
	p := &FactoryParams{
		Key:        testdata.RandomKey(),
		Workflow:   testdata.RandomChain(4),
		Serializer: storage.DefaultSerializer(),
	}
	for _, opt := range opts {
		opt(p)
	}

	value := p.Raw
	if value == nil {
		var err error
		value, err = p.Serializer.Serialize(p.Workflow)
		require.NoError(b.t, err)
	}

	err := b.Slot().Set(context.Background(), p.Key, value)
	require.NoError(b.t, err)

	return *p
}
