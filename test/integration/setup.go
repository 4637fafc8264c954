// Package integration holds tests that run the storage backends and the
// workflow store against real Postgres and Redis containers.
package integration

import (
	"sync"

	"NYCU-SDC/workflow-editor-backend/test/testdata/setup"

	"go.uber.org/zap"
)

var (
	mu              sync.Mutex
	resourceManager *setup.ResourceManager
	logger          *zap.Logger
)

// GetOrInitResource returns the resource manager shared by one test binary,
// creating it and the integration logger on first use
func GetOrInitResource() (*setup.ResourceManager, *zap.Logger, error) {
	mu.Lock()
	defer mu.Unlock()

	if resourceManager != nil {
		return resourceManager, logger, nil
	}

	l, err := setup.NewTestLogger()
	if err != nil {
		return nil, nil, err
	}

	rm, err := setup.NewResourceManager(l)
	if err != nil {
		return nil, nil, err
	}

	resourceManager, logger = rm, l
	return resourceManager, logger, nil
}
