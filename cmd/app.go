package cmd

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"

	"github.com/iksnae/geo-trace/internal"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"
)

// app holds the services one command run works with. Everything is built
// here and passed down; nothing reaches for a global session.
type app struct {
	cfg     *internal.Config
	db      *sql.DB
	store   *internal.SQLiteStore
	csrf    *internal.CsrfClient
	session *internal.SessionManager
	history *internal.HistoryReconciler
	geo     *internal.GeoClient
	out     io.Writer

	// nav and warn report to the user; the search screen swaps them out
	// while it owns the terminal.
	nav  internal.Navigator
	warn func(message string)
}

func loadConfig() (*internal.Config, error) {
	cfg, err := internal.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if apiBaseURL != "" {
		cfg.APIBaseURL = apiBaseURL
	}
	if storagePath != "" {
		cfg.StoragePath = storagePath
	}
	cfg.Normalize()
	return cfg, nil
}

func newApp(cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	db, err := internal.OpenDatabase(cfg.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	store := internal.NewSQLiteStore(db)

	jar, err := internal.NewPersistentJar(store, cfg.APIRoot()+"/")
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	api := internal.NewAPIClient(cfg.APIRoot(), jar, cfg.RequestTimeout)
	csrf := internal.NewCsrfClient(api)
	session := internal.NewSessionManager(api, csrf, internal.NewTokenStore(store))

	internal.LogDebug("Using API %s and storage %s", cfg.APIRoot(), cfg.StoragePath)

	out := cmd.OutOrStdout()
	return &app{
		cfg:     cfg,
		db:      db,
		store:   store,
		csrf:    csrf,
		session: session,
		history: internal.NewHistoryReconciler(api, csrf, internal.NewHistoryCache(store), session, clockwork.NewRealClock()),
		geo:     internal.NewGeoClient(api, session),
		out:     out,
		nav:     cliNavigator{w: out},
		warn:    func(message string) { internal.PrintWarning(out, message) },
	}, nil
}

func (a *app) Close() {
	if err := a.db.Close(); err != nil {
		internal.LogWarn("Failed to close storage: %v", err)
	}
}

// cliNavigator sends the user to the login command
type cliNavigator struct {
	w io.Writer
}

const signInHint = "You are not signed in. Run 'geo-trace login' first."

func (n cliNavigator) RedirectToSignIn() {
	internal.PrintWarning(n.w, signInHint)
}

// requireUser resolves the session and fails with ErrNotSignedIn when there is none
func (a *app) requireUser(ctx context.Context) (*internal.UserRef, error) {
	a.session.Initialize(ctx)
	return a.session.RequireUser(a.nav)
}

// handleUnauthorized ends the session when a data call was rejected with 401
func (a *app) handleUnauthorized(err error) error {
	if !internal.IsUnauthorized(err) {
		return err
	}
	a.session.Invalidate()
	a.nav.RedirectToSignIn()
	return internal.ErrNotSignedIn
}

// refreshHistory runs a reconciliation; failures keep the cached list
func (a *app) refreshHistory(ctx context.Context) ([]internal.HistoryEntry, error) {
	entries, err := a.history.FetchAndMerge(ctx)
	var perr *internal.PersistenceError
	switch {
	case err == nil:
		return entries, nil
	case errors.As(err, &perr):
		a.warn(fmt.Sprintf("History could not be saved locally: %v", err))
		return entries, nil
	case internal.IsUnauthorized(err):
		return nil, a.handleUnauthorized(err)
	default:
		internal.LogDebug("History fetch failed, showing cached list: %v", err)
		return a.history.Entries(), err
	}
}
