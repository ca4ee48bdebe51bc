// Command server is the concurrent, bounded-capacity HTTP/1.0 server of
// spec.md §1: "server <port> <threads> <queue_size> <schedalg>".
package main

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"vipserver/internal/config"
	"vipserver/internal/coordinator"
	"vipserver/internal/obslog"
	"vipserver/internal/reqhandler"
	"vipserver/internal/serverio"
)

func main() {
	app := cli.NewApp()
	app.Name = "server"
	app.Usage = "concurrent VIP/ordinary admission-controlled HTTP/1.0 server"
	app.UsageText = "server PORT THREADS QUEUE_SIZE SCHEDALG"
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	args := c.Args()
	if args.Len() != 4 {
		return cli.Exit("usage: server <port> <threads> <queue_size> <schedalg>", 1)
	}

	port, err := strconv.Atoi(args.Get(0))
	if err != nil || port <= 0 {
		return cli.Exit("port must be a positive integer", 1)
	}
	threads, err := strconv.Atoi(args.Get(1))
	if err != nil || threads <= 0 {
		return cli.Exit("threads must be a positive integer", 1)
	}
	poolSize, err := strconv.Atoi(args.Get(2))
	if err != nil || poolSize <= 0 {
		return cli.Exit("queue_size must be a positive integer", 1)
	}
	schedalg := args.Get(3)
	if !coordinator.ValidPolicy(schedalg) {
		return cli.Exit(fmt.Sprintf("unknown schedalg %q (want one of block, dt, dh, bf, random)", schedalg), 1)
	}

	cfg := config.FromEnv()
	log, err := obslog.New(cfg.LogLevel)
	if err != nil {
		return cli.Exit(fmt.Sprintf("logger init failed: %v", err), 1)
	}
	defer log.Sync()

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return cli.Exit(fmt.Sprintf("listen failed: %v", err), 1)
	}

	coord := coordinator.New(poolSize, coordinator.Policy(schedalg), time.Now().UnixNano(), log)
	handler := reqhandler.New(cfg.PublicDir, cfg.CGITimeout, log)
	srv := serverio.New(ln, coord, handler, threads, cfg.PeekTimeout, log)

	log.Info("starting server",
		zap.Int("port", port),
		zap.Int("threads", threads),
		zap.Int("queue_size", poolSize),
		zap.String("schedalg", schedalg),
		zap.String("public_dir", cfg.PublicDir),
	)

	srv.Start()
	if err := srv.Serve(); err != nil {
		return cli.Exit(fmt.Sprintf("accept loop exited: %v", err), 1)
	}
	return nil
}
