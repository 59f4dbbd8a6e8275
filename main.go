package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"syscall"

	logging "github.com/ipfs/go-log/v2"

	"github.com/bytesnake/hex/internal/app"
	"github.com/bytesnake/hex/internal/config"
	"github.com/bytesnake/hex/internal/output"
)

var log = logging.Logger("hex")

var (
	showHelp = flag.Bool("h", false, "Show help")
	version  = flag.Bool("version", false, "Show version")
	cfgFlag  = flag.String("c", "hex.json", "Config file")
	device   = flag.String("device", "", "Override audio.device (speaker or null)")
)

// appVersion is set at build time via -ldflags "-X main.appVersion=x.y.z"
var appVersion = "dev"

func main() {
	flag.Usage = showUsage
	flag.Parse()

	if *version {
		fmt.Printf("hex v%s\n", appVersion)
		return
	}
	if *showHelp {
		showUsage()
		return
	}

	args := flag.Args()
	command := "play"
	if len(args) > 0 {
		command, args = args[0], args[1:]
	}

	cfgPath, err := filepath.Abs(*cfgFlag)
	if err != nil {
		fatalf("Invalid config path: %v", err)
	}

	switch {
	case command == "version":
		fmt.Printf("hex v%s\n", appVersion)
		return
	case command == "init":
		cfg, _, err := config.Ensure(cfgPath)
		if err != nil {
			fatalf("Failed to load config: %v", err)
		}
		cfg = app.PromptInteractive(cfgPath, cfg)
		if err := config.Save(cfgPath, cfg); err != nil {
			fatalf("Failed to save config: %v", err)
		}
		fmt.Printf("Wrote %s\n", cfgPath)
		return
	case command == "play" || slices.Contains(app.Commands, command):
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command '%s'\n\n", command)
		showUsage()
		os.Exit(1)
	}

	cfg, _, err := config.Ensure(cfgPath)
	if err != nil {
		fatalf("Failed to load config: %v", err)
	}
	if *device != "" {
		cfg.Audio.Device = *device
		if err := cfg.Validate(); err != nil {
			fatalf("Invalid -device: %v", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutting down")
		cancel()
	}()

	opt := app.Options{CfgPath: cfgPath, Cfg: cfg}
	if command == "play" {
		err = app.Run(ctx, opt, args)
	} else {
		err = app.RunCommand(ctx, opt, command, args, os.Stdout)
	}
	if err != nil {
		if errors.Is(err, output.ErrDeviceUnavailable) {
			fmt.Fprintln(os.Stderr, "No audio device; try -device null.")
		}
		fatalf("%s: %v", command, err)
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func showUsage() {
	fmt.Println("hex - client for the hex music server")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  hex [options] [command] [args]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  play [key...]            Interactive player (default), queueing the given tracks")
	fmt.Println("  search <query>           Search the library")
	fmt.Println("  track <key>              Show one track")
	fmt.Println("  playlists                List playlists")
	fmt.Println("  playlist <key>           Show a playlist")
	fmt.Println("  token new|last|<n> [pl]  Create, find, show or bind a token")
	fmt.Println("  events                   Server event log")
	fmt.Println("  summary                  Daily usage summary")
	fmt.Println("  uploads                  Upload progress")
	fmt.Println("  cache                    Local track cache and recent plays")
	fmt.Println("  init                     Interactive config setup")
	fmt.Println("  version                  Show version")
	fmt.Println()
	fmt.Println("Options:")
	flag.CommandLine.SetOutput(os.Stdout)
	flag.PrintDefaults()
}
