package cli

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/juju/pubsub/v2"
	"go.uber.org/zap"

	"github.com/fiscalbox/fiscalbox/internal/access"
	"github.com/fiscalbox/fiscalbox/internal/cnpj"
	"github.com/fiscalbox/fiscalbox/internal/config"
	"github.com/fiscalbox/fiscalbox/internal/logging"
	"github.com/fiscalbox/fiscalbox/internal/marker"
	"github.com/fiscalbox/fiscalbox/internal/retry"
	"github.com/fiscalbox/fiscalbox/internal/schema"
	"github.com/fiscalbox/fiscalbox/internal/store"
	"github.com/fiscalbox/fiscalbox/internal/tenant"
)

// App is the composition root: every collaborator is built here once and
// passed down explicitly. Commands receive an *App, never globals.
type App struct {
	Cfg      *config.Config
	Log      *zap.Logger
	Registry *schema.Registry
	Manager  *store.Manager
	Storage  *access.Guarded
	Hub      *pubsub.SimpleHub
	Marker   *marker.Marker
	Holder   *MemoryContextHolder
	Switcher *tenant.Switcher
}

// buildApp loads config, opens the store (with retry around transient
// open failures), resolves the caller role, and wires the tenant
// switcher over the guarded gateway.
func buildApp(ctx context.Context, opts *RootOptions) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "load configuration", err)
	}
	if opts.DBPath != "" {
		cfg.Store.Path = opts.DBPath
	}
	if opts.MarkerPath != "" {
		cfg.Store.MarkerPath = opts.MarkerPath
	}
	if opts.Token != "" {
		cfg.Access.Token = opts.Token
	}
	if opts.Verbose {
		cfg.Log.Level = "debug"
	}

	log, err := logging.New(cfg.Log.Level, cfg.Log.Env)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "configure logging", err)
	}

	reg, err := schema.Load()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "compile schema manifest", err)
	}

	for _, p := range []string{cfg.Store.Path, cfg.Store.MarkerPath} {
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return nil, WrapExitError(ExitCommandError, "create data directory", err)
		}
	}

	mgr := store.NewManager(cfg.Store.Path, reg, log)
	var st *store.Store
	err = retry.Do(ctx, func() error {
		var oerr error
		st, oerr = mgr.Open(ctx)
		return oerr
	}, retry.Options{Notify: func(err error, attempt int) {
		log.Warn("store open failed, retrying", zap.Int("attempt", attempt), zap.Error(err))
	}})
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "open store", err)
	}

	role, err := access.RoleFromToken(cfg.Access.Token, cfg.Access.SigningKey)
	if err != nil {
		mgr.Close()
		return nil, WrapExitError(ExitCommandError, "resolve capability token", err)
	}
	guarded := access.Guard(access.NewPolicy(reg, role), st)

	hub := pubsub.NewSimpleHub(nil)
	mk := marker.New(cfg.Store.MarkerPath)
	holder := &MemoryContextHolder{}

	sw, err := tenant.NewSwitcher(tenant.Config{
		Storage:       guarded,
		Marker:        mk,
		Hub:           hub,
		Validator:     cnpj.New(),
		ContextHolder: holder,
		Purger:        tenant.NewScopePurger(guarded, scopedCollections(reg), log),
		Logger:        log,
	})
	if err != nil {
		mgr.Close()
		return nil, WrapExitError(ExitCommandError, "build tenant switcher", err)
	}
	if err := sw.Load(ctx); err != nil {
		mgr.Close()
		return nil, WrapExitError(ExitCommandError, "load tenant list", err)
	}

	return &App{
		Cfg:      cfg,
		Log:      log,
		Registry: reg,
		Manager:  mgr,
		Storage:  guarded,
		Hub:      hub,
		Marker:   mk,
		Holder:   holder,
		Switcher: sw,
	}, nil
}

// Close releases the store. Safe to call on a nil app.
func (a *App) Close() {
	if a == nil {
		return
	}
	if err := a.Manager.Close(); err != nil {
		a.Log.Warn("close store", zap.Error(err))
	}
	_ = a.Log.Sync()
}

// scopedCollections lists the collections that carry the per-tenant
// scope index, in declaration order.
func scopedCollections(reg *schema.Registry) []string {
	var out []string
	for _, coll := range reg.Collections() {
		if _, ok := coll.Index(tenant.ScopeIndex); ok {
			out = append(out, coll.Name)
		}
	}
	return out
}

// MemoryContextHolder keeps the security context in process memory. The
// CLI rebuilds it each invocation; long-lived embedders can read the
// current value between switches.
type MemoryContextHolder struct {
	mu  sync.Mutex
	ctx *tenant.Context
}

// Set replaces the held context.
func (h *MemoryContextHolder) Set(c tenant.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ctx = &c
	return nil
}

// Clear drops the held context.
func (h *MemoryContextHolder) Clear() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ctx = nil
	return nil
}

// Current returns the held context, if any.
func (h *MemoryContextHolder) Current() (tenant.Context, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.ctx == nil {
		return tenant.Context{}, false
	}
	return *h.ctx, true
}

// formatter builds the output formatter for a command invocation.
func formatter(opts *RootOptions, outw, errw io.Writer) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    outw,
		ErrWriter: errw,
		Verbose:   opts.Verbose,
	}
}
