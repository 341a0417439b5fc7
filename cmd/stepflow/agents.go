package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"text/tabwriter"

	"go.uber.org/zap"

	"github.com/BaSui01/stepflow/agent/persistence"
	"github.com/BaSui01/stepflow/config"
	"github.com/BaSui01/stepflow/workflow/dsl"
)

// =============================================================================
// 🗂️ agents 命令
// =============================================================================

type agentsOptions struct {
	configPath string
	agentsPath string
	remove     string
}

func agentsCommand(args []string, stdout io.Writer) error {
	var opts agentsOptions
	fs := flag.NewFlagSet("agents", flag.ContinueOnError)
	fs.StringVar(&opts.configPath, "config", "", "Path to config file")
	fs.StringVar(&opts.agentsPath, "agents", "", "Agent definition file to save into the registry")
	fs.StringVar(&opts.remove, "remove", "", "Remove an agent from the registry")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}
	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	return manageAgents(context.Background(), cfg.Registry, opts, logger, stdout)
}

// manageAgents 依次执行 保存 → 删除 → 列出
func manageAgents(ctx context.Context, cfg config.RegistryConfig, opts agentsOptions, logger *zap.Logger, stdout io.Writer) (err error) {
	store, err := persistence.NewAgentStore(cfg.StoreConfig())
	if err != nil {
		return fmt.Errorf("open agent registry: %w", err)
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			logger.Warn("failed to close agent registry", zap.Error(cerr))
		}
	}()

	if err := store.Ping(ctx); err != nil {
		return fmt.Errorf("agent registry unavailable: %w", err)
	}

	if opts.agentsPath != "" {
		bundle, err := dsl.NewParser(dsl.WithParserLogger(logger)).ParseFile(opts.agentsPath)
		if err != nil {
			return err
		}
		for _, def := range bundle.Agents {
			if err := store.Save(ctx, persistence.Record{Name: def.Name(), Definition: def}); err != nil {
				return fmt.Errorf("save agent %q: %w", def.Name(), err)
			}
			logger.Info("agent saved", zap.String("agent", def.Name()))
		}
	}

	if opts.remove != "" {
		if err := store.Remove(ctx, opts.remove); err != nil {
			return fmt.Errorf("remove agent %q: %w", opts.remove, err)
		}
		logger.Info("agent removed", zap.String("agent", opts.remove))
	}

	names, err := store.List(ctx)
	if err != nil {
		return fmt.Errorf("list agents: %w", err)
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tFRAMEWORK\tMODEL\tSAVED AT")
	for _, name := range names {
		rec, err := store.Restore(ctx, name)
		if err != nil {
			return fmt.Errorf("restore agent %q: %w", name, err)
		}
		framework, model := "-", "-"
		if rec.Definition != nil {
			framework = rec.Definition.Framework()
			if rec.Definition.Spec.Model != "" {
				model = rec.Definition.Spec.Model
			}
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", rec.Name, framework, model, rec.SavedAt.Format("2006-01-02T15:04:05Z07:00"))
	}
	return tw.Flush()
}
