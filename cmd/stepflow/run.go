package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/BaSui01/stepflow/agent"
	"github.com/BaSui01/stepflow/agent/persistence"
	"github.com/BaSui01/stepflow/config"
	"github.com/BaSui01/stepflow/internal/metrics"
	"github.com/BaSui01/stepflow/internal/server"
	"github.com/BaSui01/stepflow/internal/telemetry"
	"github.com/BaSui01/stepflow/workflow"
	"github.com/BaSui01/stepflow/workflow/dsl"
)

// runOptions 是 run 与 validate 共享的命令行参数
type runOptions struct {
	configPath   string
	workflowPath string
	agentsPath   string
	name         string
	prompt       string
	dryRun       bool
	stream       bool
}

func parseRunFlags(name string, args []string) (runOptions, error) {
	var opts runOptions
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.StringVar(&opts.configPath, "config", "", "Path to config file")
	fs.StringVar(&opts.workflowPath, "workflow", "", "Workflow definition file")
	fs.StringVar(&opts.agentsPath, "agents", "", "Extra agent definition file")
	fs.StringVar(&opts.name, "name", "", "Workflow name when the file holds several")
	fs.StringVar(&opts.prompt, "prompt", "", "Prompt, defaults to the workflow prompt")
	fs.BoolVar(&opts.dryRun, "dry-run", false, "Build every agent as a mock agent")
	fs.BoolVar(&opts.stream, "stream", false, "Print one JSON stream event per line")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if opts.workflowPath == "" {
		return opts, errors.New("-workflow is required")
	}
	return opts, nil
}

// =============================================================================
// 📄 定义加载
// =============================================================================

// definitions 是一次命令所需的工作流与 Agent 定义
type definitions struct {
	workflow *workflow.Definition
	agents   []*agent.Definition
	loader   workflow.DefinitionLoader
}

func loadDefinitions(opts runOptions, logger *zap.Logger) (*definitions, error) {
	parser := dsl.NewParser(dsl.WithParserLogger(logger))

	bundle, err := parser.ParseFile(opts.workflowPath)
	if err != nil {
		return nil, err
	}
	if len(bundle.Workflows) == 0 {
		return nil, fmt.Errorf("%s: no workflow document found", opts.workflowPath)
	}

	def := bundle.Workflows[0]
	if opts.name != "" {
		var ok bool
		if def, ok = bundle.Workflow(opts.name); !ok {
			return nil, fmt.Errorf("%s: workflow %q not found", opts.workflowPath, opts.name)
		}
	}

	agents := bundle.Agents
	if opts.agentsPath != "" {
		extra, err := parser.ParseFile(opts.agentsPath)
		if err != nil {
			return nil, err
		}
		agents = append(agents, extra.Agents...)
	}

	return &definitions{
		workflow: def,
		agents:   agents,
		loader:   dsl.NewFileLoader(filepath.Dir(opts.workflowPath), parser),
	}, nil
}

// =============================================================================
// 🏃 run 命令
// =============================================================================

// runOutput 非流式运行的输出
type runOutput struct {
	Workflow string             `json:"workflow"`
	Result   workflow.Result    `json:"result"`
	Usage    agent.UsageSummary `json:"usage"`
}

func runCommand(args []string, stdout io.Writer) error {
	opts, err := parseRunFlags("run", args)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}
	if opts.dryRun {
		cfg.Engine.DryRun = true
	}

	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	logger.Info("starting stepflow",
		zap.String("version", Version),
		zap.String("git_commit", GitCommit),
		zap.Bool("dry_run", cfg.Engine.DryRun),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runWorkflow(ctx, cfg, opts, logger, stdout)
}

// runWorkflow 组装引擎依赖并执行一次工作流
func runWorkflow(ctx context.Context, cfg *config.Config, opts runOptions, logger *zap.Logger, stdout io.Writer) (err error) {
	defs, err := loadDefinitions(opts, logger)
	if err != nil {
		return err
	}

	store, err := persistence.NewAgentStore(cfg.Registry.StoreConfig())
	if err != nil {
		return fmt.Errorf("open agent registry: %w", err)
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			logger.Warn("failed to close agent registry", zap.Error(cerr))
		}
	}()

	factory := agent.NewFactory(logger, agent.WithDryRun(cfg.Engine.DryRun))
	agents, err := buildAgents(ctx, factory, store, defs.agents)
	defer releaseAgents(agents, logger)
	if err != nil {
		return err
	}

	engineOpts := []workflow.Option{
		workflow.WithLogger(logger),
		workflow.WithStore(store),
		workflow.WithFactory(factory),
		workflow.WithAgents(agentList(agents)...),
		workflow.WithLoader(defs.loader),
		workflow.WithSchedulerInterval(cfg.Engine.PollInterval),
		workflow.WithDefaultLoopLimit(cfg.Engine.DefaultLoopLimit),
	}

	sink, err := newRunLogSink(cfg.Engine, logger)
	if err != nil {
		return err
	}
	engineOpts = append(engineOpts, workflow.WithRunLogSink(sink))

	if cfg.Metrics.Enabled {
		collector, shutdown, err := startMetrics(cfg.Metrics, logger)
		if err != nil {
			return err
		}
		defer shutdown()
		engineOpts = append(engineOpts, workflow.WithMetrics(collector))
	}

	providers, err := telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if serr := providers.Shutdown(shutdownCtx); serr != nil {
			logger.Warn("failed to shutdown telemetry", zap.Error(serr))
		}
	}()
	engineOpts = append(engineOpts, workflow.WithTracerProvider(providers.TracerProvider()))

	engine, err := workflow.New(defs.workflow, engineOpts...)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(stdout)
	if opts.stream {
		return streamWorkflow(ctx, engine, opts.prompt, agents, enc)
	}

	result, err := engine.Run(ctx, opts.prompt)
	if err != nil {
		return err
	}
	enc.SetIndent("", "  ")
	return enc.Encode(runOutput{
		Workflow: defs.workflow.Name,
		Result:   result,
		Usage:    agent.AggregateUsage(agents),
	})
}

// streamWorkflow 逐行输出流式事件，最后一行是用量汇总
func streamWorkflow(ctx context.Context, engine *workflow.Engine, prompt string, agents map[string]agent.Agent, enc *json.Encoder) error {
	var runErr error
	for ev := range engine.RunStreaming(ctx, prompt) {
		if err := enc.Encode(ev); err != nil {
			return fmt.Errorf("write stream event: %w", err)
		}
		if ev.Type == workflow.StreamEventError {
			runErr = ev.Err
		}
	}
	if runErr != nil {
		return runErr
	}
	return enc.Encode(map[string]any{"usage": agent.AggregateUsage(agents)})
}

// buildAgents 通过工厂构建全部定义并保存到注册表
func buildAgents(ctx context.Context, factory *agent.Factory, store persistence.AgentStore, defs []*agent.Definition) (map[string]agent.Agent, error) {
	agents := make(map[string]agent.Agent, len(defs))
	for _, def := range defs {
		a, err := factory.Create(def)
		if err != nil {
			return agents, err
		}
		agents[def.Name()] = a
		if err := store.Save(ctx, persistence.Record{Name: def.Name(), Definition: def, Agent: a}); err != nil {
			return agents, fmt.Errorf("save agent %q: %w", def.Name(), err)
		}
	}
	return agents, nil
}

func releaseAgents(agents map[string]agent.Agent, logger *zap.Logger) {
	for name, a := range agents {
		r, ok := a.(agent.Releaser)
		if !ok {
			continue
		}
		if err := r.Release(context.Background()); err != nil {
			logger.Warn("failed to release agent", zap.String("agent", name), zap.Error(err))
		}
	}
}

func agentList(agents map[string]agent.Agent) []agent.Agent {
	list := make([]agent.Agent, 0, len(agents))
	for _, a := range agents {
		list = append(list, a)
	}
	return list
}

// newRunLogSink 总是写 zap，配置了目录时额外写 JSON Lines 文件
func newRunLogSink(cfg config.EngineConfig, logger *zap.Logger) (workflow.RunLogSink, error) {
	sinks := workflow.MultiRunLogSink{workflow.NewZapRunLogSink(logger)}
	if cfg.RunLogDir != "" {
		jsonl, err := workflow.NewJSONLRunLogSink(cfg.RunLogDir)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, jsonl)
	}
	return sinks, nil
}

// startMetrics 创建独立注册表的采集器并启动 /metrics 端点
func startMetrics(cfg config.MetricsConfig, logger *zap.Logger) (*metrics.Collector, func(), error) {
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(cfg.Namespace, reg, logger)

	srvCfg := server.DefaultConfig()
	if cfg.ListenAddr != "" {
		srvCfg.Addr = cfg.ListenAddr
	}
	srv := server.NewMetricsManager(reg, srvCfg, logger)
	if err := srv.Start(); err != nil {
		return nil, nil, err
	}

	shutdown := func() {
		if err := srv.Shutdown(context.Background()); err != nil {
			logger.Warn("failed to stop metrics server", zap.Error(err))
		}
	}
	return collector, shutdown, nil
}

// =============================================================================
// ✅ validate 命令
// =============================================================================

func validateCommand(args []string, stdout io.Writer) error {
	opts, err := parseRunFlags("validate", args)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}
	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	return validateWorkflow(context.Background(), opts, logger, stdout)
}

// validateWorkflow 解析定义并在不执行任何步骤的情况下解析全部引用
func validateWorkflow(ctx context.Context, opts runOptions, logger *zap.Logger, stdout io.Writer) error {
	defs, err := loadDefinitions(opts, logger)
	if err != nil {
		return err
	}

	engine, err := workflow.New(defs.workflow,
		workflow.WithLogger(logger),
		workflow.WithFactory(agent.NewFactory(logger, agent.WithDryRun(true))),
		workflow.WithAgentDefinitions(defs.agents...),
		workflow.WithLoader(defs.loader),
	)
	if err != nil {
		return err
	}
	if err := engine.Validate(ctx); err != nil {
		return err
	}

	fmt.Fprintf(stdout, "workflow %q is valid (%d steps, agents: %v)\n",
		defs.workflow.Name, len(defs.workflow.Steps), defs.workflow.ReferencedAgents())
	return nil
}
