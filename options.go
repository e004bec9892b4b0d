package lexagent

import (
	"io/fs"
	"log/slog"
	"net/http"
)

// Option configures an App.
type Option func(*resolvedOptions)

type resolvedOptions struct {
	port            int
	databaseURL     string
	logger          *slog.Logger
	version         string
	httpClient      *http.Client
	extraMigrations []fs.FS
	withoutServer   bool
}

// WithPort overrides the TCP port from config (LEXAGENT_PORT env var).
func WithPort(port int) Option {
	return func(o *resolvedOptions) { o.port = port }
}

// WithDatabaseURL overrides the database connection string from config (DATABASE_URL env var).
func WithDatabaseURL(url string) Option {
	return func(o *resolvedOptions) { o.databaseURL = url }
}

// WithLogger sets the structured logger for the App.
// If not set, the default slog logger is used.
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolvedOptions) { o.logger = logger }
}

// WithVersion sets the version string reported in the health endpoint and logs.
func WithVersion(version string) Option {
	return func(o *resolvedOptions) { o.version = version }
}

// WithHTTPClient sets the client used for model provider calls.
func WithHTTPClient(c *http.Client) Option {
	return func(o *resolvedOptions) { o.httpClient = c }
}

// WithExtraMigrations appends migration filesystems applied after the
// built-in schema, in order.
func WithExtraMigrations(fsys ...fs.FS) Option {
	return func(o *resolvedOptions) { o.extraMigrations = append(o.extraMigrations, fsys...) }
}

// WithoutServer builds the services only, for one-shot CLI commands. Run
// is unavailable on such an App.
func WithoutServer() Option {
	return func(o *resolvedOptions) { o.withoutServer = true }
}
