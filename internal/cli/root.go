package cli

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/markdave123-py/prepdocs/internal/app"
	"github.com/markdave123-py/prepdocs/internal/config"
)

var (
	configPath string
	verbose    bool

	// openApp builds the application for one command. Tests replace it.
	openApp = defaultOpenApp
)

var rootCmd = &cobra.Command{
	Use:   "prepdocs",
	Short: "Prepare documents for search",
	Long: `Parses local files, data lake objects and web pages into sections,
uploads the originals to object storage and indexes the sections with
their embeddings. Configuration comes from the environment (and .env),
optionally overlaid by a TOML file.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "TOML file overlaid on the environment")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log at debug level")
}

// Execute runs the command line under ctx.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func loadConfig(mutate func(*config.Config)) (*config.Config, error) {
	cfg := config.LoadConfig()
	if err := config.LoadFile(cfg, configPath); err != nil {
		return nil, err
	}
	if verbose {
		cfg.Verbose = true
	}
	if mutate != nil {
		mutate(cfg)
	}
	return cfg, nil
}

func defaultOpenApp(cmd *cobra.Command, mutate func(*config.Config)) (*app.App, error) {
	cfg, err := loadConfig(mutate)
	if err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: cfg.LogLevel()}))
	slog.SetDefault(logger)
	return app.NewApp(cmd.Context(), cfg, logger)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// splitList turns "a, b,,c" into [a b c].
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func aclsFrom(oids, groups string) map[string][]string {
	acls := map[string][]string{}
	if v := splitList(oids); len(v) > 0 {
		acls["oids"] = v
	}
	if v := splitList(groups); len(v) > 0 {
		acls["groups"] = v
	}
	if len(acls) == 0 {
		return nil
	}
	return acls
}
