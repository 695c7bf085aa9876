package cli

import (
	"path/filepath"

	"github.com/go-logr/logr"
	"github.com/spf13/afero"

	"github.com/chambrid/bmad-sync/pkg/config"
	"github.com/chambrid/bmad-sync/pkg/hierarchy"
	"github.com/chambrid/bmad-sync/pkg/logging"
	"github.com/chambrid/bmad-sync/pkg/mapping"
	"github.com/chambrid/bmad-sync/pkg/numbering"
	"github.com/chambrid/bmad-sync/pkg/store"
	"github.com/chambrid/bmad-sync/pkg/tracker"
)

// Runtime bundles every component one project's sync pipeline needs,
// built once per CLI invocation from the project config file.
type Runtime struct {
	Config    *config.Config
	FS        afero.Fs
	Store     *store.Store
	Mapper    *mapping.Mapper
	Registry  *numbering.Registry
	Hierarchy *hierarchy.Map
	Tracker   *tracker.Wrapper
	Log       logr.Logger
}

// stateDirName is the per-project directory holding the State Store's
// documents, nested under the project's BMAD root so each project's
// state travels with its content.
const stateDirName = ".bmad-sync"

// BuildRuntime loads the project config at configPath and wires every
// pipeline component against it: the State Store rooted at
// "<bmad_root>/.bmad-sync", the State Mapper from mappingPath (and
// optional overlayPath), the Numbering Registry seeded from config and
// restored from its persisted document, the Hierarchy Map restored the
// same way, and the Tracker CLI Wrapper bound to trackerBin.
func BuildRuntime(configPath, mappingPath, mappingOverlay, trackerBin string) (*Runtime, error) {
	loader := config.NewLoader()
	cfg, err := loader.Load(configPath)
	if err != nil {
		return nil, err
	}

	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logFormat, _ := rootCmd.PersistentFlags().GetString("log-format")
	log, err := logging.New(logging.Level(logLevel), logging.Format(logFormat))
	if err != nil {
		return nil, err
	}

	st, err := store.New(filepath.Join(cfg.Project.BMADRoot, stateDirName))
	if err != nil {
		return nil, err
	}

	mapper, err := mapping.Load(mappingPath, mappingOverlay)
	if err != nil {
		return nil, err
	}

	registry, err := numbering.Load(st, cfg.Numbering.EpicBase, cfg.Numbering.EpicBlockSize)
	if err != nil {
		return nil, err
	}

	hmap, err := hierarchy.Load(st)
	if err != nil {
		return nil, err
	}

	trk := tracker.New(trackerBin, log)

	return &Runtime{
		Config:    cfg,
		FS:        afero.NewOsFs(),
		Store:     st,
		Mapper:    mapper,
		Registry:  registry,
		Hierarchy: hmap,
		Tracker:   trk,
		Log:       log,
	}, nil
}

// SaveState persists the runtime's mutable documents (numbering
// registry and hierarchy map) back to the State Store, called after a
// successful apply.
func (r *Runtime) SaveState() error {
	if err := numbering.Save(r.Store, r.Registry); err != nil {
		return err
	}
	return hierarchy.Save(r.Store, r.Hierarchy)
}
