package cli

import (
	"net/http"

	"github.com/daryltucker/agent-bench/internal/config"
	"github.com/daryltucker/agent-bench/internal/engine"
	"github.com/daryltucker/agent-bench/internal/provider"
	"github.com/daryltucker/agent-bench/internal/store"
	"github.com/daryltucker/agent-bench/internal/tools"
)

func newProviderClient(cfg *config.Config) *provider.Client {
	return provider.NewClient(&http.Client{Timeout: cfg.HTTP.Timeout})
}

func openStore(cfg *config.Config) (*store.SQLite, error) {
	return store.Open(cfg.Store.Path)
}

func toolsConfig(cfg *config.Config) tools.Config {
	return tools.Config{
		WorkDir:        cfg.Tools.WorkDir,
		Shell:          cfg.Tools.Shell,
		CommandTimeout: cfg.Tools.CommandTimeout,
		OutputLimit:    cfg.Tools.OutputLimit,
		SearchURL:      cfg.Tools.SearchURL,
		SearchTimeout:  cfg.Tools.SearchTimeout,
		MaxSnippets:    cfg.Tools.MaxSnippets,
		DisableSearch:  !cfg.Tools.Search,
	}
}

// toolFactory gives every session its own executor and working directory.
func toolFactory(cfg *config.Config) engine.ToolFactory {
	return func() (engine.ToolRunner, func() error, error) {
		ex, err := tools.NewExecutor(toolsConfig(cfg))
		if err != nil {
			return nil, nil, err
		}
		return ex, ex.Close, nil
	}
}

func retryPolicy(cfg *config.Config) engine.RetryPolicy {
	return engine.RetryPolicy{
		MaxRetries: cfg.Loop.MaxRetries,
		RetryDelay: cfg.Loop.RetryDelay,
	}
}
