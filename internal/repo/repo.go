// internal/repo/repo.go
package repo

import (
	"fmt"
	"path/filepath"

	"github.com/dgraph-io/badger/v4"
	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"wit/internal/config"
	"wit/internal/errors"
	"wit/internal/graph"
	"wit/internal/reflog"
	"wit/internal/refs"
	"wit/internal/snapshot"
	"wit/internal/staging"
	"wit/internal/status"
	"wit/internal/storage"
	"wit/internal/workspace"
)

// Repo is an opened repository. It assumes it is the only process touching
// the repository; nothing is locked and multi-step operations are not
// transactional.
type Repo struct {
	Layout     workspace.Layout
	Config     *config.Config
	DB         *badger.DB
	Refs       *refs.Store
	Snapshots  *snapshot.Store
	Staging    *staging.Area
	Reconciler *status.Reconciler
	Reflog     *reflog.Store
	Logger     *zap.Logger
}

// Init creates an empty repository in dir.
func Init(dir string, logger *zap.Logger) (workspace.Layout, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	l, err := workspace.Init(dir, config.Default())
	if err != nil {
		return workspace.Layout{}, err
	}
	logger.Info("initialized repository", zap.String("root", l.Root))
	return l, nil
}

// Open finds the repository containing path and opens it.
func Open(path string, logger *zap.Logger) (*Repo, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("getting absolute path for %s: %w", path, err)
	}
	root, err := workspace.FindRoot(absPath)
	if err != nil {
		return nil, err
	}
	l := workspace.NewLayout(root)

	cfg, err := config.Load(l.Config)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	snapshots, err := snapshot.New(snapshot.Options{Root: l.Images})
	if err != nil {
		return nil, fmt.Errorf("initializing snapshot store: %w", err)
	}

	db, err := storage.Open(l.DB)
	if err != nil {
		return nil, err
	}

	area := staging.New(l)
	r := &Repo{
		Layout:     l,
		Config:     cfg,
		DB:         db,
		Refs:       refs.NewStore(l.References, l.ActiveBranch),
		Snapshots:  snapshots,
		Staging:    area,
		Reconciler: status.NewReconciler(l.Root, area.Dir(), area),
		Reflog:     reflog.NewStore(db),
		Logger:     logger.With(zap.String("root", root)),
	}
	return r, nil
}

// Close releases the database.
func (r *Repo) Close() error {
	if r == nil {
		return nil
	}

	var result error
	if r.DB != nil {
		if err := r.DB.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("closing database: %w", err))
		}
	}
	if err := r.Logger.Sync(); err != nil {
		r.Logger.Debug("syncing logger", zap.Error(err))
	}
	return result
}

// loadRefs reads the reference set and requires at least one commit.
func (r *Repo) loadRefs(op string) (*refs.Set, error) {
	set, err := r.Refs.Load()
	if err != nil {
		return nil, err
	}
	if !set.HasCommit() {
		return nil, errors.CommitRequired(op)
	}
	return set, nil
}

func (r *Repo) graph() (*graph.Graph, error) {
	return graph.ReadLog(r.Layout.Parents)
}

func (r *Repo) defaultBranch(set *refs.Set) string {
	if set.Active != "" {
		return set.Active
	}
	return r.Config.Core.DefaultBranch
}

func (r *Repo) record(e reflog.Entry) {
	if err := r.Reflog.Record(e); err != nil {
		r.Logger.Warn("reflog entry not recorded", zap.String("op", string(e.Op)), zap.Error(err))
	}
}

// Resolve turns an indicator into a commit target.
func (r *Repo) Resolve(indicator string) (refs.Target, error) {
	set, err := r.loadRefs("resolving " + indicator)
	if err != nil {
		return refs.Target{}, err
	}
	return refs.Resolve(set, indicator, r.Snapshots)
}

// References returns the current reference set.
func (r *Repo) References() (*refs.Set, error) {
	return r.Refs.Load()
}
