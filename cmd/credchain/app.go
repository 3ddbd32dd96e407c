package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/quantumauth-io/credchain/config"
	"github.com/quantumauth-io/credchain/ethrpc"
	"github.com/quantumauth-io/credchain/server"
)

const version = "v0.1.0"

var (
	ConfigPaths = &cli.StringSliceFlag{
		Name:  "config",
		Usage: "Directories searched for config.yaml",
		Value: cli.NewStringSlice(".", "./config"),
	}
	LogLevel = &cli.StringFlag{
		Name:    "log-level",
		Usage:   "Overrides log.level from config",
		EnvVars: []string{"CREDCHAIN_LOG_LEVEL"},
	}
)

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "credchain"
	app.Version = version
	app.Usage = "Credential issuance API with BNB Smart Chain RPC failover"
	app.Flags = []cli.Flag{ConfigPaths, LogLevel}
	app.Commands = []*cli.Command{
		{
			Name:   "serve",
			Usage:  "Run the HTTP API",
			Action: serveAction,
		},
		{
			Name:      "balance",
			Usage:     "Print the native balance of an address",
			ArgsUsage: "<address>",
			Action:    balanceAction,
		},
		{
			Name:   "chain-id",
			Usage:  "Print the chain id reported by the first endpoint",
			Action: chainIDAction,
		},
		{
			Name:   "migrate",
			Usage:  "Apply database migrations",
			Action: migrateAction,
		},
	}
	return app
}

func loadConfig(c *cli.Context) (*config.App, error) {
	cfg, err := config.Load(c.StringSlice(ConfigPaths.Name)...)
	if err != nil {
		return nil, err
	}
	if lvl := c.String(LogLevel.Name); lvl != "" {
		cfg.Log.Level = lvl
	}
	return cfg, nil
}

func serveAction(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	rt, err := setup(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer rt.Close()

	opts := []server.Option{server.WithLogger(rt.logger), server.WithMetrics(rt.metrics)}
	if rt.db != nil {
		opts = append(opts, server.WithDatabase(rt.db))
	}
	srv := server.New(server.Config{
		Addr:      cfg.Server.Addr,
		RateLimit: cfg.Server.RateLimit,
		RateBurst: cfg.Server.RateBurst,
	}, rt.chain, rt.credentials, rt.analytics, opts...)

	return srv.Run(ctx)
}

func balanceAction(c *cli.Context) error {
	address := c.Args().First()
	if address == "" {
		return errors.New("usage: credchain balance <address>")
	}
	if !ethrpc.ValidateAddress(address) {
		return errors.Errorf("invalid address %q", address)
	}

	rt, err := chainOnly(c)
	if err != nil {
		return err
	}
	defer rt.Close()

	res, err := rt.chain.GetBalance(c.Context, address)
	if err != nil {
		return err
	}
	network := rt.chain.Network()
	fmt.Fprintf(c.App.Writer, "%s %s %s (wei %s, via %s)\n",
		ethrpc.FormatAddress(address), res.Native, network.Currency, res.Wei, res.Endpoint.Name)
	if res.Degraded() {
		rt.logger.Warn("balance served by fallback endpoint", zap.Int("failed_endpoints", len(res.Failed)))
	}
	return nil
}

func chainIDAction(c *cli.Context) error {
	rt, err := chainOnly(c)
	if err != nil {
		return err
	}
	defer rt.Close()

	res, err := rt.chain.ChainID(c.Context)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "%s (%s) via %s\n", res.ID.String(), res.Hex, res.Endpoint.Name)
	return nil
}

func migrateAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if !cfg.Database.Enabled {
		return errors.New("database is not enabled, set DATABASE_ENABLED=true")
	}
	cfg.Database.AutoMigrate = false

	rt, err := setup(c.Context, cfg, true)
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := rt.db.Migrate(c.Context); err != nil {
		return errors.Wrap(err, "migrate")
	}
	rt.logger.Info("migrations applied")
	return nil
}

func chainOnly(c *cli.Context) (*runtime, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	return setup(c.Context, cfg, false)
}
