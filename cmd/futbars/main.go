package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"futbars/internal/app"
	"futbars/internal/config"
	"futbars/internal/fetch"
	"futbars/internal/logger"

	"github.com/joho/godotenv"
)

const usage = `usage: futbars <command> [flags]

commands:
  fetch        抓取历史 K 线并写入数据库与报告
  roll-table   生成合约切换表 CSV
  export       导出已入库的 K 线 (csv/json/parquet)
`

func main() {
	// .env 仅用于本地连接参数，缺失不算错误。
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	cmd, args := os.Args[1], os.Args[2:]

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch cmd {
	case "fetch":
		err = runFetch(ctx, args)
	case "roll-table":
		err = runRollTable(args)
	case "export":
		err = runExport(ctx, args)
	case "-h", "--help", "help":
		fmt.Print(usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("%s 失败: %v", cmd, err)
	}
}

func defaultConfigPath() string {
	if p := os.Getenv("FUTBARS_CONFIG"); p != "" {
		return p
	}
	return "configs/config.yaml"
}

// loadConfig 读取配置并初始化日志输出；返回的 closer 关闭日志文件。
func loadConfig(path string) (*config.Config, func(), error) {
	var (
		cfg *config.Config
		err error
	)
	if _, statErr := os.Stat(path); statErr != nil && errors.Is(statErr, os.ErrNotExist) {
		log.Printf("配置文件 %s 不存在，使用默认配置", path)
		cfg, err = config.Default()
	} else {
		cfg, err = config.Load(path)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("读取配置失败: %w", err)
	}
	logger.SetFormat(cfg.App.LogFormat)
	logFile, err := setupLogOutput(cfg.App.LogPath)
	if err != nil {
		return nil, nil, fmt.Errorf("初始化日志文件失败: %w", err)
	}
	logger.SetLevel(cfg.App.LogLevel)
	closer := func() {
		if logFile != nil {
			_ = logFile.Close()
		}
	}
	logger.Infof("✓ 配置加载成功（环境=%s，db=%s）", cfg.App.Env, cfg.Storage.DBPath)
	return cfg, closer, nil
}

func runFetch(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("fetch", flag.ExitOnError)
	cfgPath := fs.String("config", defaultConfigPath(), "config file")
	symbols := fs.String("symbols", "", "comma separated symbols, e.g. MNQ,MGC")
	bars := fs.String("bars", "", "comma separated bars, e.g. 1m,1h")
	start := fs.String("start", "", "start date (YYYY-MM-DD or RFC3339, UTC)")
	end := fs.String("end", "", "end date (YYYY-MM-DD or RFC3339, UTC); default now")
	lookback := fs.String("lookback", "", "lookback window when -start is empty, e.g. 10d, 2w, 6m, 1y")
	reportPath := fs.String("report", "", "report output path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, closeLog, err := loadConfig(*cfgPath)
	if err != nil {
		return err
	}
	defer closeLog()

	opts := app.FetchOptions{
		Symbols:    splitList(*symbols),
		Bars:       splitList(*bars),
		Lookback:   *lookback,
		ReportPath: *reportPath,
	}
	if opts.Start, err = parseTime(*start); err != nil {
		return fmt.Errorf("-start: %w", err)
	}
	if opts.End, err = parseTime(*end); err != nil {
		return fmt.Errorf("-end: %w", err)
	}

	a, err := app.NewApp(ctx, cfg)
	if err != nil {
		return fmt.Errorf("初始化应用失败: %w", err)
	}
	defer a.Close()

	rep, runErr := a.RunFetch(ctx, opts)
	if rep.RunID != "" {
		path := opts.ReportPath
		if path == "" {
			path = cfg.Report.Path
		}
		if errors.Is(runErr, fetch.ErrStorage) {
			path = ""
		}
		app.PrintRunSummary(os.Stdout, rep, path)
	}
	return runErr
}

func runRollTable(args []string) error {
	fs := flag.NewFlagSet("roll-table", flag.ExitOnError)
	cfgPath := fs.String("config", defaultConfigPath(), "config file")
	out := fs.String("out", "", "output CSV path (default roll.table_path)")
	startYear := fs.Int("start-year", 0, "first year (default roll.start_year)")
	endYear := fs.Int("end-year", 0, "last year (default roll.end_year)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, closeLog, err := loadConfig(*cfgPath)
	if err != nil {
		return err
	}
	defer closeLog()
	if *startYear > 0 {
		cfg.Roll.StartYear = *startYear
	}
	if *endYear > 0 {
		cfg.Roll.EndYear = *endYear
	}
	records, err := app.ExportRollTable(cfg, *out)
	if err != nil {
		return err
	}
	fmt.Printf("切换表共 %d 条\n", len(records))
	return nil
}

func runExport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	cfgPath := fs.String("config", defaultConfigPath(), "config file")
	symbol := fs.String("symbol", "", "symbol, e.g. MNQ")
	bar := fs.String("bar", "1m", "bar granularity")
	format := fs.String("format", "csv", "csv | json | parquet")
	out := fs.String("out", "", "output file")
	start := fs.String("start", "", "start (inclusive)")
	end := fs.String("end", "", "end (exclusive)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, closeLog, err := loadConfig(*cfgPath)
	if err != nil {
		return err
	}
	defer closeLog()
	opts := app.ExportOptions{Symbol: *symbol, Bar: *bar, Format: *format, Out: *out}
	if opts.Start, err = parseTime(*start); err != nil {
		return fmt.Errorf("-start: %w", err)
	}
	if opts.End, err = parseTime(*end); err != nil {
		return fmt.Errorf("-end: %w", err)
	}
	n, path, err := app.ExportBars(ctx, cfg, opts)
	if err != nil {
		return err
	}
	fmt.Printf("已导出 %d 行 → %s\n", n, path)
	return nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	return time.ParseInLocation("2006-01-02", raw, time.UTC)
}

func setupLogOutput(path string) (*os.File, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, nil
	}
	dir := filepath.Dir(trimmed)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	file, err := os.OpenFile(trimmed, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	mw := io.MultiWriter(os.Stdout, file)
	log.SetOutput(mw)
	logger.SetOutput(mw)
	return file, nil
}
