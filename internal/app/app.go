package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/patrickjm/shopbot/internal/browser"
	"github.com/patrickjm/shopbot/internal/collect"
	"github.com/patrickjm/shopbot/internal/config"
	"github.com/patrickjm/shopbot/internal/flow"
	"github.com/patrickjm/shopbot/internal/order"
	"github.com/patrickjm/shopbot/internal/plugin"
	"github.com/patrickjm/shopbot/internal/selectors"
	"github.com/patrickjm/shopbot/internal/shopper"
)

type GlobalFlags struct {
	Config    string
	DataDir   string
	Engine    string
	Browser   string
	Headed    bool
	Stealth   bool
	Selectors string
	Shopper   string
	JSON      bool
	Quiet     bool
	Verbose   bool
}

type App struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer
	// NewEngine resolves the configured engine name; nil means
	// browser.NewEngine.
	NewEngine func(name string) (browser.Engine, error)
}

// cmdEnv is what every subcommand receives once flags and config are
// resolved.
type cmdEnv struct {
	cfg   config.Config
	store shopper.Store
	args  []string
}

const (
	exitSuccess  = 0
	exitFailure  = 1
	exitUsage    = 2
	exitNotFound = 3
)

func (a App) prepare(flags GlobalFlags) (config.Config, shopper.Store, error) {
	cfg, err := config.Load(flags.Config, flags.DataDir)
	if err != nil {
		return config.Config{}, shopper.Store{}, err
	}
	if flags.Engine != "" {
		cfg.Engine = flags.Engine
	}
	if flags.Browser != "" {
		cfg.Browser = flags.Browser
	}
	if flags.Headed {
		cfg.Headless = false
	}
	if flags.Stealth {
		cfg.Stealth = true
	}
	if flags.Selectors != "" {
		cfg.SelectorsFile = flags.Selectors
	}
	return cfg, shopper.Store{Root: filepath.Join(cfg.DataDir, "shoppers")}, nil
}

// logger writes JSON to the error stream, or human-readable debug output
// with --verbose.
func (a App) logger(flags GlobalFlags) *zap.Logger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoder := zapcore.NewJSONEncoder(encCfg)
	level := zapcore.InfoLevel
	if flags.Quiet {
		level = zapcore.WarnLevel
	}
	if flags.Verbose {
		encoder = zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
		level = zapcore.DebugLevel
	}
	core := zapcore.NewCore(encoder, zapcore.AddSync(a.Err), level)
	return zap.New(core).Named("shopbot")
}

func (a App) engine(name string) (browser.Engine, error) {
	if a.NewEngine != nil {
		return a.NewEngine(name)
	}
	return browser.NewEngine(name)
}

func (a App) executor(cfg config.Config, chooser flow.Chooser, attempts int, log *zap.Logger) (*flow.Executor, error) {
	engine, err := a.engine(cfg.Engine)
	if err != nil {
		return nil, err
	}
	catalog, err := selectors.Load(cfg.SelectorsFile)
	if err != nil {
		return nil, fmt.Errorf("load selectors: %w", err)
	}
	start := browser.StartOptions{
		Browser:           cfg.Browser,
		Headless:          cfg.Headless,
		Stealth:           cfg.Stealth,
		NavigationTimeout: cfg.Timeouts.Navigation,
	}
	return flow.New(engine, start, flow.Options{
		Selectors:         catalog,
		Timeouts:          cfg.Timeouts,
		MaxSearchAttempts: attempts,
		Chooser:           chooser,
		Logger:            log,
	}), nil
}

// shopperDefaults returns the collector defaults for the selected shopper
// and marks it used. No shopper yields nil.
func (a App) shopperDefaults(store shopper.Store, name string) (map[string]string, error) {
	if name == "" {
		return nil, nil
	}
	sh, err := store.Touch(name)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("shopper %s not found: %w", name, err)
	}
	if err != nil {
		return nil, err
	}
	return sh.Defaults(), nil
}

func usageOrFailure(err error) int {
	var vErr *order.ValidationError
	var cErr *order.CategoryError
	switch {
	case errors.As(err, &vErr), errors.As(err, &cErr):
		return exitUsage
	case errors.Is(err, browser.ErrUnknownEngine):
		return exitUsage
	case errors.Is(err, shopper.ErrNameRequired), errors.Is(err, shopper.ErrInvalidName):
		return exitUsage
	case errors.Is(err, fs.ErrNotExist):
		return exitNotFound
	}
	return exitFailure
}

func (a App) runBuy(ctx context.Context, cfg config.Config, store shopper.Store, flags GlobalFlags) int {
	log := a.logger(flags)
	defer log.Sync()

	defaults, err := a.shopperDefaults(store, flags.Shopper)
	if err != nil {
		fmt.Fprintln(a.Err, err)
		return usageOrFailure(err)
	}
	prompt := collect.NewPrompt(a.In, a.Out)
	prompt.Defaults = defaults
	prompt.WebsiteURL = cfg.WebsiteURL

	fmt.Fprintln(a.Out, "=== Tennis Shopping Bot ===")
	req, err := prompt.Collect(ctx)
	if err != nil {
		fmt.Fprintln(a.Err, err)
		return usageOrFailure(err)
	}
	exec, err := a.executor(cfg, prompt, cfg.InteractiveSearchAttempts, log)
	if err != nil {
		fmt.Fprintln(a.Err, err)
		return usageOrFailure(err)
	}
	fmt.Fprintln(a.Out, "Starting purchase flow...")
	out, err := exec.Run(ctx, req)
	return a.printResult(flow.Report(out, err), flags)
}

func (a App) printResult(res order.Result, flags GlobalFlags) int {
	if flags.JSON {
		b, _ := json.MarshalIndent(res, "", "  ")
		fmt.Fprintln(a.Out, string(b))
	} else {
		fmt.Fprintln(a.Out, res.Message)
	}
	if !res.Success {
		return exitFailure
	}
	return exitSuccess
}

func readParams(in io.Reader, path string) (map[string]any, error) {
	var r io.Reader
	if path == "" || path == "-" {
		r = in
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	// Numbers stay json.Number so long card numbers keep every digit.
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var params map[string]any
	if err := dec.Decode(&params); err != nil {
		return nil, fmt.Errorf("parse params: %w", err)
	}
	return params, nil
}

func (a App) tool(cfg config.Config, store shopper.Store, flags GlobalFlags, log *zap.Logger) (*plugin.Tool, error) {
	defaults, err := a.shopperDefaults(store, flags.Shopper)
	if err != nil {
		return nil, err
	}
	if defaults == nil {
		defaults = map[string]string{}
	}
	if _, ok := defaults["website_url"]; !ok {
		defaults["website_url"] = cfg.WebsiteURL
	}
	exec, err := a.executor(cfg, flow.FirstResult{}, cfg.MaxSearchAttempts, log)
	if err != nil {
		return nil, err
	}
	return &plugin.Tool{Runner: exec, Defaults: defaults, Logger: log}, nil
}

// runInvoke performs one programmatic invocation and prints the messages a
// plugin host would receive. With a socket it forwards to a running serve.
func (a App) runInvoke(ctx context.Context, cfg config.Config, store shopper.Store, flags GlobalFlags, paramsPath, socket string) int {
	log := a.logger(flags)
	defer log.Sync()

	params, err := readParams(a.In, paramsPath)
	if err != nil {
		fmt.Fprintln(a.Err, err)
		return exitUsage
	}
	var result *order.Result
	emit := a.printMessage(flags, &result)
	if socket != "" {
		err = forward(socket, params, emit)
	} else {
		var tool *plugin.Tool
		tool, err = a.tool(cfg, store, flags, log)
		if err != nil {
			fmt.Fprintln(a.Err, err)
			return usageOrFailure(err)
		}
		err = tool.Invoke(ctx, params, emit)
	}
	if err != nil {
		fmt.Fprintln(a.Err, err)
		return exitFailure
	}
	if result == nil {
		return exitUsage
	}
	if !result.Success {
		return exitFailure
	}
	return exitSuccess
}

func forward(socket string, params map[string]any, emit func(plugin.Message) error) error {
	client, err := plugin.NewClient(socket)
	if err != nil {
		return err
	}
	defer client.Close()
	msgs, err := client.Invoke(plugin.ToolName, params)
	if err != nil {
		return err
	}
	for _, m := range msgs {
		if err := emit(m); err != nil {
			return err
		}
	}
	return nil
}

// printMessage renders tool messages and remembers the last JSON result.
func (a App) printMessage(flags GlobalFlags, result **order.Result) func(plugin.Message) error {
	return func(m plugin.Message) error {
		if m.JSON != nil {
			*result = m.JSON
		}
		if flags.JSON {
			b, err := json.Marshal(m)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(a.Out, string(b))
			return err
		}
		if m.Type == plugin.TextMessage {
			_, err := fmt.Fprintln(a.Out, m.Text)
			return err
		}
		b, err := json.MarshalIndent(m.JSON, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(a.Out, string(b))
		return err
	}
}

func socketPath(cfg config.Config, socket string) string {
	if socket == "" {
		return filepath.Join(cfg.DataDir, "shopbot.sock")
	}
	return socket
}

func (a App) runServe(ctx context.Context, cfg config.Config, store shopper.Store, flags GlobalFlags, socket, addr string) int {
	if socket != "" && addr != "" {
		fmt.Fprintln(a.Err, "use either --socket or --http")
		return exitUsage
	}
	log := a.logger(flags)
	defer log.Sync()

	tool, err := a.tool(cfg, store, flags, log)
	if err != nil {
		fmt.Fprintln(a.Err, err)
		return usageOrFailure(err)
	}
	srv := plugin.NewServer(log, tool)

	if addr != "" {
		if err := serveHTTP(ctx, addr, srv, log); err != nil {
			fmt.Fprintln(a.Err, err)
			return exitFailure
		}
		return exitSuccess
	}
	if err := plugin.ServeSocket(ctx, socketPath(cfg, socket), srv); err != nil {
		fmt.Fprintln(a.Err, err)
		return exitFailure
	}
	return exitSuccess
}

func serveHTTP(ctx context.Context, addr string, srv *plugin.Server, log *zap.Logger) error {
	hs := &http.Server{Addr: addr, Handler: srv.Handler(), ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", addr))
		errCh <- hs.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	case <-srv.Stopped():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return hs.Shutdown(shutdownCtx)
}

// runStop asks a running socket server to shut down.
func (a App) runStop(cfg config.Config, flags GlobalFlags, socket string) int {
	path := socketPath(cfg, socket)
	client, err := plugin.NewClient(path)
	if err != nil {
		fmt.Fprintln(a.Err, err)
		if errors.Is(err, fs.ErrNotExist) {
			return exitNotFound
		}
		return exitFailure
	}
	defer client.Close()
	if err := client.Stop(); err != nil {
		fmt.Fprintln(a.Err, err)
		return exitFailure
	}
	if !flags.Quiet {
		fmt.Fprintf(a.Out, "stopped %s\n", path)
	}
	return exitSuccess
}

func (a App) runInstall(cfg config.Config, flags GlobalFlags) int {
	browsers := []string{}
	if cfg.Browser != "" {
		browsers = append(browsers, cfg.Browser)
	}
	opts := &playwright.RunOptions{}
	if len(browsers) > 0 {
		opts.Browsers = browsers
	}
	if err := playwright.Install(opts); err != nil {
		fmt.Fprintln(a.Err, err)
		return exitFailure
	}
	if !flags.Quiet {
		fmt.Fprintf(a.Out, "Playwright installed: %s\n", strings.Join(browsers, ", "))
	}
	return exitSuccess
}

func (a App) runDoctor(cfg config.Config, flags GlobalFlags) int {
	type result struct {
		DataDir         string `json:"data_dir"`
		DataDirWritable bool   `json:"data_dir_writable"`
		Engine          string `json:"engine"`
		EngineOK        bool   `json:"engine_ok"`
		BrowserPath     string `json:"browser_path,omitempty"`
		SelectorsOK     bool   `json:"selectors_ok"`
		SelectorsError  string `json:"selectors_error,omitempty"`
	}
	res := result{DataDir: cfg.DataDir, Engine: cfg.Engine}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err == nil {
		res.DataDirWritable = true
	}
	switch strings.ToLower(cfg.Engine) {
	case "rod":
		res.BrowserPath, res.EngineOK = browser.RodBrowserPath()
	default:
		res.BrowserPath = os.Getenv("PLAYWRIGHT_BROWSERS_PATH")
		if pw, err := playwright.Run(); err == nil {
			res.EngineOK = true
			pw.Stop()
		}
	}
	if _, err := selectors.Load(cfg.SelectorsFile); err != nil {
		res.SelectorsError = err.Error()
	} else {
		res.SelectorsOK = true
	}
	if flags.JSON {
		b, _ := json.MarshalIndent(res, "", "  ")
		fmt.Fprintln(a.Out, string(b))
	} else {
		fmt.Fprintf(a.Out, "data_dir=%s\n", res.DataDir)
		fmt.Fprintf(a.Out, "data_dir_writable=%t\n", res.DataDirWritable)
		fmt.Fprintf(a.Out, "engine=%s engine_ok=%t\n", res.Engine, res.EngineOK)
		if res.BrowserPath != "" {
			fmt.Fprintf(a.Out, "browser_path=%s\n", res.BrowserPath)
		}
		fmt.Fprintf(a.Out, "selectors_ok=%t\n", res.SelectorsOK)
		if res.SelectorsError != "" {
			fmt.Fprintf(a.Out, "selectors_error=%s\n", res.SelectorsError)
		}
	}
	if !res.DataDirWritable || !res.EngineOK || !res.SelectorsOK {
		return exitFailure
	}
	return exitSuccess
}

func (a App) runSelectors(cfg config.Config) int {
	catalog, err := selectors.Load(cfg.SelectorsFile)
	if err != nil {
		fmt.Fprintln(a.Err, err)
		return exitFailure
	}
	if err := catalog.Dump(a.Out); err != nil {
		fmt.Fprintln(a.Err, err)
		return exitFailure
	}
	return exitSuccess
}

func (a App) runShopperImport(store shopper.Store, flags GlobalFlags, path, name string) int {
	sh, err := store.Import(path, name)
	if err != nil {
		fmt.Fprintln(a.Err, err)
		return usageOrFailure(err)
	}
	if !flags.Quiet {
		fmt.Fprintf(a.Out, "imported %s\n", sh.Name)
	}
	return exitSuccess
}

func (a App) runShopperList(store shopper.Store, flags GlobalFlags) int {
	shoppers, err := store.List()
	if err != nil {
		fmt.Fprintln(a.Err, err)
		return exitFailure
	}
	if flags.JSON {
		b, _ := json.MarshalIndent(shoppers, "", "  ")
		fmt.Fprintln(a.Out, string(b))
		return exitSuccess
	}
	for _, sh := range shoppers {
		lastUsed := "never"
		if !sh.LastUsed.IsZero() {
			lastUsed = sh.LastUsed.Format(time.RFC3339)
		}
		fmt.Fprintf(a.Out, "%s last_used=%s\n", sh.Name, lastUsed)
	}
	return exitSuccess
}

func (a App) runShopperShow(store shopper.Store, flags GlobalFlags, name string) int {
	sh, err := store.Load(name)
	if err != nil {
		fmt.Fprintln(a.Err, err)
		return usageOrFailure(err)
	}
	if flags.JSON {
		b, _ := json.MarshalIndent(sh, "", "  ")
		fmt.Fprintln(a.Out, string(b))
		return exitSuccess
	}
	addr := sh.Shipping()
	fmt.Fprintf(a.Out, "name=%s\n", sh.Name)
	fmt.Fprintf(a.Out, "shopper=%s %s <%s> %s\n", sh.FirstName, sh.LastName, sh.Email, sh.Phone)
	fmt.Fprintf(a.Out, "ship_to=%s, %s, %s %s, %s\n", addr.Street, addr.City, addr.State, addr.PostalCode, addr.Country)
	if sh.BillingAddress != "" {
		fmt.Fprintf(a.Out, "billing=%s\n", sh.BillingAddress)
	}
	fmt.Fprintf(a.Out, "created_at=%s\n", sh.CreatedAt.Format(time.RFC3339))
	return exitSuccess
}

func (a App) runShopperRemove(store shopper.Store, flags GlobalFlags, names []string) int {
	for _, name := range names {
		if err := store.Remove(name); err != nil {
			fmt.Fprintln(a.Err, err)
			return usageOrFailure(err)
		}
		if !flags.Quiet {
			fmt.Fprintf(a.Out, "removed %s\n", name)
		}
	}
	return exitSuccess
}
