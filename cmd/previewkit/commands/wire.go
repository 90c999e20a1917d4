package commands

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/previewkit/previewkit/pkg/assets"
	"github.com/previewkit/previewkit/pkg/bootstrap"
	"github.com/previewkit/previewkit/pkg/config"
	"github.com/previewkit/previewkit/pkg/journal"
	"github.com/previewkit/previewkit/pkg/provision"
	"github.com/previewkit/previewkit/pkg/schema"
	"github.com/previewkit/previewkit/pkg/service"
)

// newOrchestrator assembles the bootstrap pipeline from the manifest. The
// returned cleanup closes the journal; it is safe to call on error paths.
func newOrchestrator(ctx context.Context) (*bootstrap.Orchestrator, *config.Manifest, func(), error) {
	m, err := config.LoadManifest(manifestPath)
	if err != nil {
		return nil, nil, func() {}, err
	}

	logger := log.Logger
	cleanup := func() {}

	// The journal is an audit trail; failing to open it must not block a
	// bootstrap.
	var recorder bootstrap.Recorder
	if j, err := journal.Open(ctx, logger, m.DataDir); err != nil {
		logger.Warn().Err(err).Str("data_dir", m.DataDir).Msg("Bootstrap journal unavailable")
	} else {
		recorder = j
		cleanup = func() { _ = j.Close() }
	}

	o := bootstrap.New(bootstrap.Config{
		Log:         logger,
		Services:    m.Services,
		Credential:  m.Credential,
		Manager:     service.NewManager(logger),
		Provisioner: provision.NewEnsurer(logger, m.AdminURL),
		Assets:      assets.NewBuilder(logger, m.Commands),
		Migrations:  schema.NewRunner(logger, m.Migrations, m.Commands),
		Connections: config.LoadConnections,
		Journal:     recorder,
	})
	return o, m, cleanup, nil
}
