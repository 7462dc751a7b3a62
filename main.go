package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/linkshelf/linkshelf/internal/config"
	"github.com/linkshelf/linkshelf/internal/gateway"
	"github.com/linkshelf/linkshelf/internal/logging"
	"github.com/linkshelf/linkshelf/internal/server"
	"github.com/linkshelf/linkshelf/internal/server/routes"
	"github.com/linkshelf/linkshelf/internal/version"
)

// cliOptions 汇总 CLI 标志解析后的结果，便于在测试中注入。
type cliOptions struct {
	configPath   string
	checkOnly    bool
	showVersion  bool
	once         bool
	serveBackend bool
	tagQuery     string
	site         string
	// filterSet 表示用户显式给出了 -tags 或 -site，此时不沿用快照中的过滤条件。
	filterSet bool
}

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

func main() {
	opts, err := parseCLIFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(stdErr, err.Error())
		os.Exit(2)
	}
	os.Exit(run(opts))
}

// run 根据解析到的 CLI 选项执行业务流程，并返回退出码，方便测试。
func run(opts cliOptions) int {
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
		fields["backend"] = cfg.Backend.URL
		fields["poll_interval_ms"] = cfg.Global.PollInterval.DurationValue().Milliseconds()
		fields["snapshot"] = cfg.SnapshotEnabled()
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fields := logging.BaseFields("startup", opts.configPath)
	fields["backend"] = cfg.Backend.URL
	fields["version"] = version.Full()

	if opts.serveBackend {
		fields["mode"] = "serve_backend"
		fields["listen_port"] = cfg.Global.ListenPort
		logger.WithFields(fields).Info("配置加载完成")
		if err := startBackendServer(ctx, cfg, logger); err != nil {
			fmt.Fprintf(stdErr, "HTTP 服务启动失败: %v\n", err)
			return 1
		}
		return 0
	}

	client, err := newClient(cfg, logger)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化客户端失败: %v\n", err)
		return 1
	}

	// 客户端启动遵循“配置 → Gateway → 缓存/快照 → Store → Poller”顺序，
	// Store 以显式引用的方式同时交给渲染层和轮询器。
	if opts.once {
		fields["mode"] = "once"
		logger.WithFields(fields).Info("配置加载完成")
		return client.runOnce(ctx, opts)
	}

	fields["mode"] = "watch"
	fields["poll_interval_ms"] = cfg.Global.PollInterval.DurationValue().Milliseconds()
	logger.WithFields(fields).Info("配置加载完成")
	return client.runWatch(ctx, opts)
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("linkshelf", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag   string
		checkOnly    bool
		showVer      bool
		once         bool
		serveBackend bool
		tagQuery     string
		site         string
	)

	fs.StringVar(&configFlag, "config", "", "配置文件路径（默认 ./config.toml，可被 LINKSHELF_CONFIG 覆盖）")
	fs.BoolVar(&checkOnly, "check-config", false, "仅校验配置后退出")
	fs.BoolVar(&showVer, "version", false, "显示版本信息")
	fs.BoolVar(&once, "once", false, "查询并输出一次后退出")
	fs.BoolVar(&serveBackend, "serve-backend", false, "以内存存储启动开发用后端")
	fs.StringVar(&tagQuery, "tags", "", "逗号分隔的 tag 过滤条件，大小写不敏感")
	fs.StringVar(&site, "site", "", "按站点过滤")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}
	if fs.NArg() > 0 {
		return cliOptions{}, fmt.Errorf("解析参数失败: 未知参数 %v", fs.Args())
	}
	if once && serveBackend {
		return cliOptions{}, fmt.Errorf("解析参数失败: -once 与 -serve-backend 不能同时使用")
	}

	filterSet := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "tags" || f.Name == "site" {
			filterSet = true
		}
	})

	path := os.Getenv("LINKSHELF_CONFIG")
	if configFlag != "" {
		path = configFlag
	}
	if path == "" {
		path = "config.toml"
	}

	return cliOptions{
		configPath:   path,
		checkOnly:    checkOnly,
		showVersion:  showVer,
		once:         once,
		serveBackend: serveBackend,
		tagQuery:     tagQuery,
		site:         site,
		filterSet:    filterSet,
	}, nil
}

// startBackendServer 以内存存储启动开发后端，ctx 结束时优雅关闭。
func startBackendServer(ctx context.Context, cfg *config.Config, logger *logrus.Logger) error {
	backend := gateway.NewMemoryBackend()
	app, err := server.NewApp(server.AppOptions{
		Logger:       logger,
		Backend:      backend,
		DefaultLimit: cfg.Global.PopularTagLimit,
	})
	if err != nil {
		return err
	}
	routes.RegisterBackendRoutes(app, backend)

	port := cfg.Global.ListenPort
	logger.WithFields(logrus.Fields{
		"action": "listen",
		"port":   port,
	}).Info("Fiber 服务启动")

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(fmt.Sprintf(":%d", port))
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.WithFields(logrus.Fields{"action": "shutdown", "port": port}).Info("Fiber 服务停止")
		return app.Shutdown()
	}
}
