package app

import (
	"livecast/internal/config"
	"livecast/internal/engine"
	"livecast/internal/lifecycle"
	"livecast/internal/observability/ops"
	"livecast/internal/storage"
	logx "livecast/pkg/logx"
)

// OpenStore opens the configured store without starting the lifecycle. The CLI
// uses it to manage broadcasts while the daemon is stopped or running.
func OpenStore(cfg *config.Config, log logx.Logger) (storage.Store, error) {
	sc, err := mapStorage(cfg)
	if err != nil {
		return nil, err
	}
	return storage.Open(sc, log)
}

// OpenEngine builds the configured engine, recording transitions into store.
func OpenEngine(cfg *config.Config, store storage.Store, log logx.Logger) (lifecycle.Engine, error) {
	ec, err := mapEngine(cfg)
	if err != nil {
		return nil, err
	}
	return engine.Open(ec, store, log)
}

// OpsConfig returns the resolved ops server settings.
func OpsConfig(cfg *config.Config) (ops.Config, error) {
	return mapOps(cfg)
}
