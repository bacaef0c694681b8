package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/juju/errors"
	"github.com/temoto/blnet/cmd/blnet/console"
	"github.com/temoto/blnet/cmd/blnet/daemon"
	"github.com/temoto/blnet/cmd/blnet/read"
	"github.com/temoto/blnet/cmd/blnet/subcmd"
	"github.com/temoto/blnet/internal/state"
	"github.com/temoto/blnet/log2"
)

var BuildVersion string = "unknown" // set by ldflags -X

var log = log2.NewStderr(log2.LDebug)

var modules = []subcmd.Mod{
	read.ResolveMod,
	read.LatestMod,
	read.DrainMod,
	console.Mod,
	daemon.Mod,
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(argv []string) int {
	cmdline := flag.NewFlagSet("blnet", flag.ContinueOnError)
	flagConfig := cmdline.String("config", "", "HCL config file")
	flagAddress := cmdline.String("address", "", "BL-NET host, overrides blnet.address")
	flagPort := cmdline.Int("port", 0, "BL-NET bootloader port, overrides blnet.port")
	flagFormat := cmdline.String("format", subcmd.FormatText, "output format: text|yaml")
	flagDebug := cmdline.Bool("debug", false, "log protocol exchange, overrides blnet.log_debug")
	cmdline.Usage = func() {
		fmt.Fprintf(cmdline.Output(), "usage: blnet [flags] command [command flags]\n\ncommands:\n")
		for _, m := range modules {
			fmt.Fprintf(cmdline.Output(), "  %-8s %s\n", m.Name, m.Usage)
		}
		fmt.Fprintf(cmdline.Output(), "\nflags:\n")
		cmdline.PrintDefaults()
	}
	if err := cmdline.Parse(argv); err != nil {
		return 2
	}

	mod, err := subcmd.Parse(cmdline.Arg(0), modules)
	if err != nil {
		log.Error(err)
		cmdline.Usage()
		return 2
	}

	if underSystemd, _ := subcmd.SdNotify("start"); underSystemd {
		// systemd journal adds timestamp
		log.SetFlags(log2.LServiceFlags)
	} else {
		log.SetFlags(log2.LInteractiveFlags)
	}

	config, err := readConfig(*flagConfig)
	if err != nil {
		log.Error(errors.ErrorStack(err))
		return 1
	}
	if *flagAddress != "" {
		config.Blnet.Address = *flagAddress
	}
	if *flagPort != 0 {
		config.Blnet.Port = *flagPort
	}
	if *flagDebug {
		config.Blnet.LogDebug = true
	}
	if !config.Blnet.LogDebug && !config.Tele.LogDebug {
		log.SetLevel(log2.LInfo)
	}

	printer, err := subcmd.NewPrinter(os.Stdout, *flagFormat)
	if err != nil {
		log.Error(err)
		return 2
	}
	ctx, g := state.NewContext(log, nil)
	g.BuildVersion = BuildVersion
	ctx = subcmd.WithPrinter(ctx, printer)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-g.Alive.StopChan()
		cancel()
	}()

	err = mod.Main(ctx, config, cmdline.Args()[1:])
	if errClose := printer.Close(); err == nil {
		err = errClose
	}
	g.Stop()
	g.Close()
	if err != nil {
		log.Error(errors.ErrorStack(err))
		return 1
	}
	return 0
}

func readConfig(path string) (*state.Config, error) {
	if path == "" {
		return state.NewConfig(), nil
	}
	return state.ReadConfig(log, state.NewOsFullReader(), path)
}
