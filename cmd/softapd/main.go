package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/kestrel-systems/softap-lifecycle/internal/capability"
	"github.com/kestrel-systems/softap-lifecycle/internal/channelplan"
	"github.com/kestrel-systems/softap-lifecycle/internal/config"
	"github.com/kestrel-systems/softap-lifecycle/internal/debugapi"
	"github.com/kestrel-systems/softap-lifecycle/internal/driver/simdriver"
	"github.com/kestrel-systems/softap-lifecycle/internal/errors"
	"github.com/kestrel-systems/softap-lifecycle/internal/logger"
	"github.com/kestrel-systems/softap-lifecycle/internal/manager"
	"github.com/kestrel-systems/softap-lifecycle/internal/store"
)

const (
	defaultConfigPath = "/etc/softapd/config.json"
	version           = "1.0.0"
)

var (
	configPath  = flag.String("config", defaultConfigPath, "Path to configuration file")
	showVersion = flag.Bool("version", false, "Show version information")
	showHelp    = flag.Bool("help", false, "Show help information")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("softapd v%s\n", version)
		os.Exit(0)
	}
	if *showHelp {
		printHelp()
		os.Exit(0)
	}

	defer func() {
		if r := recover(); r != nil {
			log.Printf("PANIC: %v", r)
			log.Printf("Stack trace:\n%s", debug.Stack())
			os.Exit(1)
		}
	}()

	log.Printf("loading configuration from: %s", *configPath)
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	if err := logger.Initialize(cfg.Logging.File, cfg.Logging.Level); err != nil {
		log.Fatalf("failed to initialize logging: %v", err)
	}
	mainLog := logger.NewComponentLogger("main")
	mainLog.Info("=== softapd v%s ===", version)

	if err := run(cfg, mainLog); err != nil {
		mainLog.Error("softapd exited with error: %v", err)
		os.Exit(1)
	}
	mainLog.Info("softapd exited cleanly")
}

func run(cfg *config.Config, mainLog *logger.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	configStore, err := store.Open(cfg.Store.Path, cfg.Defaults.ApConfiguration, logger.NewComponentLogger("store"))
	if err != nil {
		return err
	}
	defer errors.SafeClose(mainLog, configStore, "config store")

	gcStop := make(chan struct{})
	defer close(gcStop)
	go configStore.RunGC(time.Duration(cfg.Store.GCInterval)*time.Minute, gcStop)

	capProvider := capability.New(cfg.Defaults.ShutdownTimeoutMS, cfg.Defaults.BridgedIdleTimeoutMS, cfg.Defaults.Capability)
	planner := channelplan.New("US")
	driver := simdriver.New(logger.NewComponentLogger("driver"))

	debugSrv := debugapi.New(nil, cfg.DebugAPI.Host, cfg.DebugAPI.Port, cfg.DebugAPI.RateLimitPerMinute, logger.NewComponentLogger("debugapi"))

	mgr := manager.New(ctx, manager.Collaborators{
		Driver:      driver,
		Planner:     planner,
		CapProvider: capProvider,
		ConfigStore: configStore,
	}, logger.NewComponentLogger("manager"), debugSrv)

	debugSrv.SetRegistry(mgr)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- debugSrv.Start(ctx)
	}()

	mgr.Create(cfg.Defaults.ID, cfg.Defaults.ResolvedRole(), cfg.Defaults.Requestor, cfg.Defaults.ApConfiguration, cfg.Defaults.Capability)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigChan:
		mainLog.Info("received signal: %v, shutting down", sig)
	case err := <-serverErr:
		if err != nil {
			mainLog.Error("debug API server error: %v", err)
		}
	}

	cancel()
	return nil
}

func printHelp() {
	fmt.Printf("softapd v%s\n\n", version)
	fmt.Println("Usage:")
	fmt.Printf("  %s [options]\n\n", os.Args[0])
	fmt.Println("Options:")
	flag.PrintDefaults()
	fmt.Println("\nDescription:")
	fmt.Println("  softapd manages the lifecycle of one software access point instance:")
	fmt.Println("  admission control, inactivity shutdown, and bridged-mode idle-instance")
	fmt.Println("  shutdown, with a debug HTTP/websocket surface for introspection.")
	fmt.Println("\nExamples:")
	fmt.Printf("  %s\n", os.Args[0])
	fmt.Printf("  %s --config /path/to/config.json\n", os.Args[0])
	fmt.Printf("  %s --version\n", os.Args[0])
}
