// Package client assembles the configured backend connection, the
// remote clients, the transfer queue and the history journal into one
// facade the CLI and the server share.
package client

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/mhollis/skiff/internal/config"
	"github.com/mhollis/skiff/internal/history"
	"github.com/mhollis/skiff/internal/models"
	"github.com/mhollis/skiff/internal/queue"
	"github.com/mhollis/skiff/internal/remote"
)

// Client is the assembled application core. When no backend is
// configured, Configured reports false and the remote fields are nil.
type Client struct {
	cfg    *config.Config
	conn   *remote.Connection
	logger zerolog.Logger

	Listing  *remote.ListingClient
	Mutation *remote.MutationClient
	Upload   *remote.UploadClient
	Queue    *queue.Queue
	Journal  *history.Journal
}

// New builds a client from configuration. A missing backend URL is not
// an error; callers check Configured before using the remote surface.
func New(cfg *config.Config, logger zerolog.Logger) (*Client, error) {
	c := &Client{cfg: cfg, logger: logger}

	if !cfg.Backend.Configured() {
		return c, nil
	}

	conn, err := remote.NewConnection(&cfg.Backend, logger)
	if err != nil {
		return nil, err
	}
	c.conn = conn
	c.Listing = remote.NewListingClient(conn, logger)
	c.Mutation = remote.NewMutationClient(conn, logger)
	c.Upload = remote.NewUploadClient(conn, logger)

	var recorder queue.Recorder
	if cfg.History.Enabled {
		path := cfg.History.Path
		if !filepath.IsAbs(path) {
			home, err := os.UserHomeDir()
			if err != nil {
				return nil, fmt.Errorf("resolve history path: %w", err)
			}
			path = filepath.Join(home, path)
		}
		journal, err := history.Open(path, cfg.History.Limit, logger)
		if err != nil {
			return nil, fmt.Errorf("open history journal: %w", err)
		}
		c.Journal = journal
		recorder = journal
	}

	c.Queue = queue.New(cfg.Upload, c.Upload, c.Mutation, recorder, logger)
	return c, nil
}

// Configured reports whether a backend connection exists.
func (c *Client) Configured() bool { return c.conn != nil }

// Config returns the loaded configuration.
func (c *Client) Config() *config.Config { return c.cfg }

// Connection exposes the baseline backend connection.
func (c *Client) Connection() *remote.Connection { return c.conn }

// ForwardedClients returns listing and mutation clients that forward
// cookie on top of the configured credentials. The cookie is only
// attached when originHost matches the backend host.
func (c *Client) ForwardedClients(cookie, originHost string) (*remote.ListingClient, *remote.MutationClient, error) {
	if c.conn == nil {
		return nil, nil, models.ErrNotConfigured
	}
	conn := c.conn.WithForwarded(cookie, originHost)
	return remote.NewListingClient(conn, c.logger), remote.NewMutationClient(conn, c.logger), nil
}

// Close releases held resources.
func (c *Client) Close() error {
	if c.Journal != nil {
		return c.Journal.Close()
	}
	return nil
}
