package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/killallgit/genesis/pkg/backend"
	"github.com/killallgit/genesis/pkg/config"
	"github.com/killallgit/genesis/pkg/logger"
	"github.com/killallgit/genesis/pkg/render"
	"github.com/killallgit/genesis/pkg/session"
	"github.com/killallgit/genesis/pkg/store"
	"github.com/killallgit/genesis/pkg/store/sqlite"
	"golang.org/x/term"
)

// App holds the collaborators shared by the commands
type App struct {
	Config *config.Config
	Client *backend.Client
	Store  store.Store

	closeStore func() error
}

// NewApp connects the backend client and opens the configured chat store
func NewApp(cfg *config.Config) (*App, error) {
	opts := []backend.Option{backend.WithTimeout(cfg.Backend.Timeout)}
	if cfg.Backend.Token != "" {
		opts = append(opts, backend.WithToken(cfg.Backend.Token))
	}
	client := backend.NewClient(cfg.Backend.URL, opts...)

	st, closeStore, err := openStore(cfg.Store, client)
	if err != nil {
		return nil, err
	}

	logger.WithComponent("app").Debug("Application ready", "backend", client.BaseURL(), "store", cfg.Store.Backend)
	return &App{
		Config:     cfg,
		Client:     client,
		Store:      st,
		closeStore: closeStore,
	}, nil
}

// Close releases the chat store
func (a *App) Close() error {
	if a.closeStore == nil {
		return nil
	}
	return a.closeStore()
}

// NewSession starts an empty conversation against the backend
func (a *App) NewSession() *session.Session {
	return session.New(a.Client, a.Store, a.Config)
}

// Renderer returns a renderer suited to out. Color and terminal width are
// only used when out is a terminal.
func (a *App) Renderer(out io.Writer) *render.Renderer {
	cfg := a.Config.Render
	color := isTerminal(out)
	if color {
		if f, ok := out.(*os.File); ok {
			if width, _, err := term.GetSize(int(f.Fd())); err == nil && width > 0 && width < cfg.Width {
				cfg.Width = width
			}
		}
	}
	return render.New(cfg, render.WithColor(color))
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// openStore builds the chat store named by cfg.Backend. "none" runs
// anonymously and returns a nil store.
func openStore(cfg config.StoreConfig, client *backend.Client) (store.Store, func() error, error) {
	switch cfg.Backend {
	case "", "remote":
		return backend.NewChatStore(client), nil, nil
	case "sqlite":
		path := cfg.SQLitePath
		if path != ":memory:" {
			path = config.ResolvePath(path)
		}
		db, err := sqlite.Open(path)
		if err != nil {
			return nil, nil, err
		}
		return db, db.Close, nil
	case "memory":
		if cfg.JSONPath == "" {
			return store.NewMemory(), nil, nil
		}
		m, err := store.NewMemoryFile(config.ResolvePath(cfg.JSONPath))
		if err != nil {
			return nil, nil, err
		}
		return m, nil, nil
	case "none":
		return nil, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}
