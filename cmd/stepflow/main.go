// =============================================================================
// stepflow 命令行入口
// =============================================================================
// 加载 YAML 工作流定义并在本地执行
//
// 使用方法:
//
//	stepflow run -workflow flow.yaml -prompt "..."   # 执行工作流
//	stepflow run -workflow flow.yaml -stream         # 流式执行，逐行输出事件
//	stepflow validate -workflow flow.yaml            # 校验定义与引用
//	stepflow agents -agents agents.yaml              # 注册并列出 Agent
//	stepflow version                                 # 显示版本信息
// =============================================================================

package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/stepflow/config"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// =============================================================================
// 🎯 主函数
// =============================================================================

func main() {
	if len(os.Args) < 2 {
		printUsage(os.Stderr)
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "run":
		err = runCommand(os.Args[2:], os.Stdout)
	case "validate":
		err = validateCommand(os.Args[2:], os.Stdout)
	case "agents":
		err = agentsCommand(os.Args[2:], os.Stdout)
	case "version":
		printVersion(os.Stdout)
	case "help", "-h", "--help":
		printUsage(os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage(os.Stderr)
		os.Exit(1)
	}

	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "stepflow %s\n", Version)
	fmt.Fprintf(w, "  Build Time: %s\n", BuildTime)
	fmt.Fprintf(w, "  Git Commit: %s\n", GitCommit)
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `stepflow - declarative multi-agent workflows

Usage:
  stepflow <command> [options]

Commands:
  run       Execute a workflow
  validate  Check definitions and resolve every reference
  agents    Register agent definitions and list the registry
  version   Show version information
  help      Show this help message

Options for 'run':
  -config <path>     Path to configuration file (YAML)
  -workflow <path>   Workflow definition file (required)
  -agents <path>     Extra agent definition file
  -name <name>       Workflow to run when the file holds several
  -prompt <text>     Prompt, defaults to the workflow prompt
  -dry-run           Build every agent as a mock agent
  -stream            Print one JSON stream event per line

Options for 'agents':
  -config <path>     Path to configuration file (YAML)
  -agents <path>     Agent definition file to save into the registry
  -remove <name>     Remove an agent from the registry

Examples:
  stepflow run -workflow review.yaml -prompt "Write about Go."
  stepflow run -workflow review.yaml -dry-run -stream
  stepflow validate -workflow review.yaml
  stepflow agents -config stepflow.yaml -agents agents.yaml
  stepflow version`)
}

// =============================================================================
// ⚙️ 配置与日志
// =============================================================================

// loadConfig 按 默认值 → 配置文件 → STEPFLOW_* 环境变量 的顺序加载配置
func loadConfig(path string) (*config.Config, error) {
	loader := config.NewLoader().WithEnvPrefix("STEPFLOW")
	if path != "" {
		loader = loader.WithConfigPath(path)
	}

	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func initLogger(cfg config.LogConfig) *zap.Logger {
	var level zapcore.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = zapcore.DebugLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	encoding := "json"
	if cfg.Format == "console" {
		encoding = "console"
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		// stdout 留给结果输出
		outputs = []string{"stderr"}
	}

	zapConfig := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Development:       encoding == "console",
		Encoding:          encoding,
		EncoderConfig:     encoderConfig,
		OutputPaths:       outputs,
		ErrorOutputPaths:  []string{"stderr"},
		DisableCaller:     !cfg.EnableCaller,
		DisableStacktrace: !cfg.EnableStacktrace,
	}

	logger, err := zapConfig.Build()
	if err != nil {
		// 回退到基本 logger
		logger, _ = zap.NewProduction()
	}
	return logger
}
