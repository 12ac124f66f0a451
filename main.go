package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/bundle-hub/internal/config"
	"github.com/any-hub/bundle-hub/internal/logging"
	"github.com/any-hub/bundle-hub/internal/manager"
	"github.com/any-hub/bundle-hub/internal/manifest"
	"github.com/any-hub/bundle-hub/internal/metrics"
	"github.com/any-hub/bundle-hub/internal/patch"
	"github.com/any-hub/bundle-hub/internal/publish"
	"github.com/any-hub/bundle-hub/internal/server"
	"github.com/any-hub/bundle-hub/internal/server/routes"
	"github.com/any-hub/bundle-hub/internal/version"
)

// cliOptions 汇总 CLI 标志解析后的结果，便于在测试中注入。
type cliOptions struct {
	configPath   string
	checkOnly    bool
	showVersion  bool
	serve        bool
	patchKey     string
	manifestPath string
}

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

var errNoMode = errors.New("需要指定 -serve、-patch 或 -publish 之一")

func main() {
	opts, err := parseCLIFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(stdErr, err.Error())
		os.Exit(2)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, opts)
	stop()
	os.Exit(code)
}

// run 根据解析到的 CLI 选项执行业务流程，并返回退出码，方便测试。
func run(ctx context.Context, opts cliOptions) int {
	if opts.showVersion {
		printVersion()
		return 0
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stdErr, "加载配置失败: %v\n", err)
		return 1
	}

	logger, err := logging.InitLogger(cfg.Global)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化日志失败: %v\n", err)
		return 1
	}

	if opts.checkOnly {
		fields := logging.BaseFields("check_config", opts.configPath)
		fields["streams"] = cfg.StreamKeys()
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	switch {
	case opts.manifestPath != "":
		return runPublish(ctx, cfg, logger, opts.manifestPath)
	case opts.patchKey != "":
		return runPatch(ctx, cfg, logger, opts.patchKey)
	case opts.serve:
		return runServe(ctx, cfg, logger, opts.configPath)
	default:
		fmt.Fprintln(stdErr, errNoMode.Error())
		return 2
	}
}

// runPublish 读取分组索引并写出 catalog 与 settings。
func runPublish(ctx context.Context, cfg *config.Config, logger *logrus.Logger, manifestPath string) int {
	m, err := manifest.Load(manifestPath)
	if err != nil {
		fmt.Fprintf(stdErr, "读取分组索引失败: %v\n", err)
		return 1
	}
	res, err := publish.Publish(ctx, m, publish.Options{
		BaseDir:      filepath.Dir(manifestPath),
		SettingsRoot: cfg.Global.SettingsRoot,
		Concurrency:  cfg.Global.MaxConcurrentTransfers,
		Logger:       logger,
	})
	if err != nil {
		fmt.Fprintf(stdErr, "发布失败: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdOut, "published %s: %d bundles, %d bytes\ncatalog: %s\nsettings: %s\n",
		m.Key, len(res.Catalog.Bundles), res.TotalBytes, res.CatalogPath, res.SettingsPath)
	return 0
}

// runPatch 对单个内容流执行 ReadyPatch → ApplyPatch。
func runPatch(ctx context.Context, cfg *config.Config, logger *logrus.Logger, key string) int {
	deps, err := manager.NewDeps(cfg, logger, nil)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化依赖失败: %v\n", err)
		return 1
	}
	m, err := manager.Initialize(ctx, key, deps)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化内容流失败: %v\n", err)
		return 1
	}
	defer m.Close(context.Background())

	plan := m.ReadyPatch(ctx)
	fmt.Fprintf(stdOut, "ready: %s, %d bundles, %d bytes\n", plan.State, len(plan.Bundles), plan.TotalBytes)
	if plan.State != patch.Ready {
		return 1
	}
	applied := m.ApplyPatch(ctx, plan)
	fmt.Fprintf(stdOut, "apply: %s\n", applied.State)
	if applied.State != patch.Success {
		return 1
	}
	return 0
}

// runServe 启动发布目录的 HTTP 源站与诊断接口。
func runServe(ctx context.Context, cfg *config.Config, logger *logrus.Logger, configPath string) int {
	collectors := metrics.New()
	deps, err := manager.NewDeps(cfg, logger, collectors)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化依赖失败: %v\n", err)
		return 1
	}
	// 启动顺序为“配置 → 各内容流 Manager → Fiber server”，诊断接口直接读取同一份 Registry。
	registry, err := manager.NewRegistry(ctx, deps)
	if err != nil {
		fmt.Fprintf(stdErr, "构建内容流注册表失败: %v\n", err)
		return 1
	}
	defer registry.Close(context.Background(), logger)

	fields := logging.BaseFields("startup", configPath)
	fields["streams"] = cfg.StreamKeys()
	fields["listen_port"] = cfg.Global.ListenPort
	fields["serve_root"] = cfg.Global.ServeRoot
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("配置加载完成")

	if err := startHTTPServer(ctx, cfg, registry, collectors, logger); err != nil {
		fmt.Fprintf(stdErr, "HTTP 服务启动失败: %v\n", err)
		return 1
	}
	return 0
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("bundle-hub", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var opts cliOptions
	var configFlag string

	fs.StringVar(&configFlag, "config", "", "配置文件路径（默认 ./config.toml，可被 BUNDLE_HUB_CONFIG 覆盖）")
	fs.BoolVar(&opts.checkOnly, "check-config", false, "仅校验配置后退出")
	fs.BoolVar(&opts.showVersion, "version", false, "显示版本信息")
	fs.BoolVar(&opts.serve, "serve", false, "启动发布目录 HTTP 源站与诊断接口")
	fs.StringVar(&opts.patchKey, "patch", "", "对指定内容流执行补丁")
	fs.StringVar(&opts.manifestPath, "publish", "", "根据分组索引发布 catalog 与 settings")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}
	if opts.patchKey != "" && opts.manifestPath != "" {
		return cliOptions{}, errors.New("-patch 与 -publish 不能同时使用")
	}

	opts.configPath = config.ResolvePath(configFlag)
	return opts, nil
}

func startHTTPServer(ctx context.Context, cfg *config.Config, registry *manager.Registry, collectors *metrics.Metrics, logger *logrus.Logger) error {
	port := cfg.Global.ListenPort
	app, err := server.NewApp(server.AppOptions{
		Logger:     logger,
		Content:    server.NewFileHandler(cfg.Global.ServeRoot, logger),
		ListenPort: port,
	})
	if err != nil {
		return err
	}
	routes.RegisterBundleRoutes(app, registry)
	routes.RegisterMetricsRoutes(app, collectors)

	go func() {
		<-ctx.Done()
		_ = app.Shutdown()
	}()

	logger.WithFields(logrus.Fields{
		"action": "listen",
		"port":   port,
	}).Info("Fiber 服务启动")

	return app.Listen(fmt.Sprintf(":%d", port))
}
