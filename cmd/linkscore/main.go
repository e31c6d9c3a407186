package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/talkincode/linkscore/config"
	"github.com/talkincode/linkscore/internal/adminapi"
	"github.com/talkincode/linkscore/internal/app"
	"github.com/talkincode/linkscore/internal/webserver"
)

var (
	BuildVersion string
	h            = flag.Bool("h", false, "help usage")
	showVer      = flag.Bool("v", false, "show version")
	conffile     = flag.String("c", "", "config yaml file")
	printConf    = flag.Bool("printcfg", false, "print the effective config and exit")
)

func printHelp() {
	if *h {
		ustr := fmt.Sprintf("linkscore version: %s, Usage: linkscore -h\nOptions:", BuildVersion)
		_, _ = fmt.Fprint(os.Stderr, ustr)
		flag.PrintDefaults()
		os.Exit(0)
	}
}

func main() {
	flag.Parse()

	if *showVer {
		fmt.Println(BuildVersion)
		os.Exit(0)
	}

	printHelp()

	cfg, err := config.LoadConfig(*conffile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if *printConf {
		out, _ := yaml.Marshal(cfg)
		fmt.Println(string(out))
		os.Exit(0)
	}

	application := app.NewApplication(cfg)
	if err := application.Init(cfg); err != nil {
		zap.S().Errorf("init failed: %v", err)
		os.Exit(1)
	}
	defer application.Release()

	webserver.Init(application)
	adminapi.Init()

	g, ctx := errgroup.WithContext(context.Background())
	g.Go(func() error {
		return webserver.Listen()
	})
	g.Go(func() error {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		select {
		case s := <-sig:
			zap.S().Infof("received %s, shutting down", s)
			webserver.Shutdown()
		case <-ctx.Done():
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		zap.S().Error(err)
	}
}
