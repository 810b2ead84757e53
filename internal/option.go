package internal

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config *Config
	mcp    bool
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithMCP switches the entrypoint to serve MCP over stdio instead of
// the HTTP API. Background subsystems (cache, queue, watcher, tuner)
// run either way.
func WithMCP() Option {
	return func(a *application) {
		a.mcp = true
	}
}
