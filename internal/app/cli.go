package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

type exitError struct {
	code int
}

func (e exitError) Error() string {
	return fmt.Sprintf("exit %d", e.code)
}

var Version = "dev"

func Execute(args []string, in io.Reader, out io.Writer, errOut io.Writer) int {
	return App{In: in, Out: out, Err: errOut}.Run(args)
}

func (app App) Run(args []string) int {
	out, errOut := app.Out, app.Err
	flags := GlobalFlags{}
	var showVersion bool

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := &cobra.Command{
		Use:           "shopbot",
		Short:         "Buy tennis gear through a headless browser",
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	root.SetIn(app.In)
	root.SetOut(out)
	root.SetErr(errOut)

	root.PersistentFlags().BoolVarP(&showVersion, "version", "V", false, "version")
	root.PersistentFlags().StringVarP(&flags.Config, "config", "C", "", "config file")
	root.PersistentFlags().StringVarP(&flags.DataDir, "data-dir", "D", "", "data directory")
	root.PersistentFlags().StringVarP(&flags.Engine, "engine", "e", "", "browser engine (playwright, rod)")
	root.PersistentFlags().StringVarP(&flags.Browser, "browser", "b", "", "browser type")
	root.PersistentFlags().BoolVarP(&flags.Headed, "headed", "E", false, "run headed")
	root.PersistentFlags().BoolVar(&flags.Stealth, "stealth", false, "use stealth pages (rod)")
	root.PersistentFlags().StringVarP(&flags.Selectors, "selectors", "S", "", "selector catalog override (YAML)")
	root.PersistentFlags().StringVarP(&flags.Shopper, "shopper", "u", "", "saved shopper to prefill")
	root.PersistentFlags().BoolVarP(&flags.JSON, "json", "j", false, "json output")
	root.PersistentFlags().BoolVarP(&flags.Quiet, "quiet", "q", false, "quiet output")
	root.PersistentFlags().BoolVarP(&flags.Verbose, "verbose", "v", false, "verbose output")

	root.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		if showVersion {
			fmt.Fprintln(out, Version)
			return exitError{code: exitSuccess}
		}
		return nil
	}

	// withConfig loads the layered config before running fn.
	withConfig := func(fn func(cmdEnv) int) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			cfg, store, err := app.prepare(flags)
			if err != nil {
				fmt.Fprintln(errOut, err)
				return exitError{code: exitFailure}
			}
			return exitOrNil(fn(cmdEnv{cfg: cfg, store: store, args: args}))
		}
	}

	root.AddCommand(&cobra.Command{
		Use:   "buy",
		Short: "Collect purchase details interactively and place the order",
		Args:  cobra.NoArgs,
		RunE: withConfig(func(c cmdEnv) int {
			return app.runBuy(ctx, c.cfg, c.store, flags)
		}),
	})

	var paramsPath, invokeSocket string
	invokeCmd := &cobra.Command{
		Use:   "invoke",
		Short: "Run one tool invocation from a JSON parameter map",
		Args:  cobra.NoArgs,
		RunE: withConfig(func(c cmdEnv) int {
			return app.runInvoke(ctx, c.cfg, c.store, flags, paramsPath, invokeSocket)
		}),
	}
	invokeCmd.Flags().StringVarP(&paramsPath, "params", "f", "-", "parameter file, - for stdin")
	invokeCmd.Flags().StringVar(&invokeSocket, "socket", "", "forward to a running serve on this unix socket")
	root.AddCommand(invokeCmd)

	var socket, addr string
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Host the purchase tool on a unix socket or over HTTP",
		Args:  cobra.NoArgs,
		RunE: withConfig(func(c cmdEnv) int {
			return app.runServe(ctx, c.cfg, c.store, flags, socket, addr)
		}),
	}
	serveCmd.Flags().StringVar(&socket, "socket", "", "unix socket path (default <data-dir>/shopbot.sock)")
	serveCmd.Flags().StringVar(&addr, "http", "", "HTTP listen address")
	root.AddCommand(serveCmd)

	var stopSocket string
	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop a running socket server",
		Args:  cobra.NoArgs,
		RunE: withConfig(func(c cmdEnv) int {
			return app.runStop(c.cfg, flags, stopSocket)
		}),
	}
	stopCmd.Flags().StringVar(&stopSocket, "socket", "", "unix socket path (default <data-dir>/shopbot.sock)")
	root.AddCommand(stopCmd)

	root.AddCommand(&cobra.Command{
		Use:   "install",
		Short: "Install Playwright driver and browsers",
		Args:  cobra.NoArgs,
		RunE: withConfig(func(c cmdEnv) int {
			return app.runInstall(c.cfg, flags)
		}),
	})

	root.AddCommand(&cobra.Command{
		Use:   "doctor",
		Short: "Check install and environment health",
		Args:  cobra.NoArgs,
		RunE: withConfig(func(c cmdEnv) int {
			return app.runDoctor(c.cfg, flags)
		}),
	})

	root.AddCommand(&cobra.Command{
		Use:   "selectors",
		Short: "Print the effective selector catalog as YAML",
		Args:  cobra.NoArgs,
		RunE: withConfig(func(c cmdEnv) int {
			return app.runSelectors(c.cfg)
		}),
	})

	shopperCmd := &cobra.Command{
		Use:   "shopper",
		Short: "Manage saved shoppers",
	}
	var importName string
	importCmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Save a shopper from a YAML or JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: withConfig(func(c cmdEnv) int {
			return app.runShopperImport(c.store, flags, c.args[0], importName)
		}),
	}
	importCmd.Flags().StringVarP(&importName, "name", "n", "", "shopper name (default: name in file)")
	shopperCmd.AddCommand(importCmd)
	shopperCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List saved shoppers",
		Args:  cobra.NoArgs,
		RunE: withConfig(func(c cmdEnv) int {
			return app.runShopperList(c.store, flags)
		}),
	})
	shopperCmd.AddCommand(&cobra.Command{
		Use:   "show NAME",
		Short: "Show a saved shopper",
		Args:  cobra.ExactArgs(1),
		RunE: withConfig(func(c cmdEnv) int {
			return app.runShopperShow(c.store, flags, c.args[0])
		}),
	})
	shopperCmd.AddCommand(&cobra.Command{
		Use:   "rm NAME...",
		Short: "Remove saved shoppers",
		Args:  cobra.MinimumNArgs(1),
		RunE: withConfig(func(c cmdEnv) int {
			return app.runShopperRemove(c.store, flags, c.args)
		}),
	})
	root.AddCommand(shopperCmd)

	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		var exit exitError
		if errors.As(err, &exit) {
			return exit.code
		}
		fmt.Fprintln(errOut, err)
		return exitUsage
	}
	return exitSuccess
}

func exitOrNil(code int) error {
	if code == exitSuccess {
		return nil
	}
	return exitError{code: code}
}
