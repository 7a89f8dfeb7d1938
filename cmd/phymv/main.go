package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/datagrid/phymv/internal/api"
	"github.com/datagrid/phymv/internal/config"
	"github.com/datagrid/phymv/internal/fault"
	"github.com/datagrid/phymv/internal/logging"
	"github.com/datagrid/phymv/internal/metrics"
	"github.com/datagrid/phymv/internal/phymv"
	"github.com/datagrid/phymv/pkg/bytesize"
	"github.com/datagrid/phymv/pkg/proto"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var (
	cfgFile    string
	logLevel   string
	user       string
	serverAddr string

	listenAddr string

	destResource string
	srcResource  string
	replicaNum   int
	allReplicas  bool
	adminFlag    bool

	sizeHint   string
	digestHint string
)

var stdout io.Writer = os.Stdout

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(exitCode(err))
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "phymv",
		Short: "phymv - relocate replica bytes and register physical paths",
		Long: `phymv moves the bytes of a replica from one storage resource to another
without the catalog ever pointing at an incomplete copy, and registers files
that already sit on a resource as new replicas.

Examples:
  # Move replica 0 of an object to rescB
  phymv mv /zone/home/alice/file.txt --repl 0 --dest rescB

  # Move every replica, keeping whatever succeeds
  phymv mv /zone/home/alice/file.txt --all --dest rescB

  # Register a file that landed on rescC
  phymv reg /zone/home/alice/x.dat /resc/vault/x.dat --dest rescC

  # Drop replica 2 from the catalog without touching its bytes
  phymv unreg /zone/home/alice/x.dat --repl 2

  # Serve the HTTP API
  phymv serve -c /etc/phymv/phymv.yaml`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "", "log level (overrides config)")
	rootCmd.PersistentFlags().StringVarP(&user, "user", "u", os.Getenv("USER"), "caller identity")
	rootCmd.PersistentFlags().StringVarP(&serverAddr, "server", "s", "", "send requests to a running phymv server instead of opening the catalog")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	serveCmd.Flags().StringVar(&listenAddr, "listen", "", "listen address (overrides config)")
	rootCmd.AddCommand(serveCmd)

	mvCmd := &cobra.Command{
		Use:   "mv <object-path>",
		Short: "Relocate replica bytes to another resource",
		Long: `Relocate one replica, selected by number or by source resource, or every
replica of an object, to the destination resource.

The result is printed as JSON. The exit status is zero when the relocation
satisfied its execution mode.`,
		Args: cobra.ExactArgs(1),
		RunE: runMove,
	}
	mvCmd.Flags().StringVarP(&destResource, "dest", "d", "", "destination resource")
	mvCmd.Flags().IntVarP(&replicaNum, "repl", "n", 0, "replica number to move")
	mvCmd.Flags().StringVarP(&srcResource, "src", "S", "", "source resource of the replica to move")
	mvCmd.Flags().BoolVarP(&allReplicas, "all", "a", false, "move every replica")
	mvCmd.Flags().BoolVar(&adminFlag, "admin", false, "act as administrator")
	_ = mvCmd.MarkFlagRequired("dest")
	mvCmd.MarkFlagsMutuallyExclusive("repl", "src", "all")
	rootCmd.AddCommand(mvCmd)

	regCmd := &cobra.Command{
		Use:   "reg <object-path> <physical-path>",
		Short: "Register an existing file as a replica",
		Args:  cobra.ExactArgs(2),
		RunE:  runRegister,
	}
	regCmd.Flags().StringVarP(&destResource, "dest", "d", "", "resource holding the file")
	regCmd.Flags().StringVar(&sizeHint, "size", "", "expected size, e.g. 10MB")
	regCmd.Flags().StringVar(&digestHint, "digest", "", "expected digest, e.g. sha2:<base64>")
	regCmd.Flags().BoolVar(&adminFlag, "admin", false, "act as administrator")
	_ = regCmd.MarkFlagRequired("dest")
	rootCmd.AddCommand(regCmd)

	unregCmd := &cobra.Command{
		Use:   "unreg <object-path>",
		Short: "Remove a replica from the catalog, leaving its bytes in place",
		Args:  cobra.ExactArgs(1),
		RunE:  runUnregister,
	}
	unregCmd.Flags().IntVarP(&replicaNum, "repl", "n", 0, "replica number to unregister")
	unregCmd.Flags().BoolVar(&adminFlag, "admin", false, "act as administrator")
	_ = unregCmd.MarkFlagRequired("repl")
	rootCmd.AddCommand(unregCmd)

	lsCmd := &cobra.Command{
		Use:   "ls <object-path>",
		Short: "List the replicas of an object",
		Args:  cobra.ExactArgs(1),
		RunE:  runList,
	}
	rootCmd.AddCommand(lsCmd)

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			_, _ = fmt.Fprintf(stdout, "phymv %s\n", Version)
			_, _ = fmt.Fprintf(stdout, "  Commit:     %s\n", Commit)
			_, _ = fmt.Fprintf(stdout, "  Build Time: %s\n", BuildTime)
		},
	}
	rootCmd.AddCommand(versionCmd)

	return rootCmd
}

// loadConfig loads the config file, or defaults when none is given, and
// sets up logging from it.
func loadConfig() (*config.Config, io.Closer, error) {
	var (
		cfg *config.Config
		err error
	)
	if cfgFile == "" {
		cfg = config.Default()
	} else if cfg, err = config.Load(cfgFile); err != nil {
		return nil, nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}

	logger, closer, err := logging.New(logging.Config{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	})
	if err != nil {
		return nil, nil, err
	}
	log.Logger = logger
	return cfg, closer, nil
}

// setupCLILogging configures console logging for commands that talk to a
// server and never load a config file.
func setupCLILogging() {
	level := logLevel
	if level == "" {
		level = "warn"
	}
	logger, _, err := logging.New(logging.Config{Level: level})
	if err != nil {
		logger, _, _ = logging.New(logging.Config{Level: "warn"})
	}
	log.Logger = logger
}

// withService runs fn against a locally opened catalog.
func withService(ctx context.Context, fn func(*phymv.Service) error) error {
	cfg, logCloser, err := loadConfig()
	if err != nil {
		return err
	}
	defer func() { _ = logCloser.Close() }()

	svc, catCloser, err := newService(ctx, cfg, metrics.Default(), log.Logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := catCloser.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close catalog")
		}
	}()
	return fn(svc)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	cfg, logCloser, err := loadConfig()
	if err != nil {
		return err
	}
	defer func() { _ = logCloser.Close() }()

	svc, catCloser, err := newService(ctx, cfg, metrics.Default(), log.Logger)
	if err != nil {
		return err
	}
	defer func() { _ = catCloser.Close() }()

	addr := cfg.Server.Listen
	if listenAddr != "" {
		addr = listenAddr
	}
	server := api.NewServer(api.Config{Service: svc, Metrics: metrics.Handler(), Logger: log.Logger})
	if err := server.Start(addr); err != nil {
		return err
	}
	log.Info().
		Str("version", Version).
		Str("catalog", cfg.Catalog.Backend).
		Int("resources", len(cfg.Resources)).
		Msg("phymv serving")

	<-ctx.Done()
	log.Info().Msg("shutting down...")

	timeout, _ := cfg.Server.ShutdownTimeoutDuration()
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return server.Stop(shutdownCtx)
}

func runMove(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	req := proto.RelocationRequest{
		ObjectPath:     args[0],
		SourceResource: srcResource,
		DestResource:   destResource,
		AdminOverride:  adminFlag,
		AllReplicas:    allReplicas,
	}
	if cmd.Flags().Changed("repl") {
		n := replicaNum
		req.ReplicaNumber = &n
	}

	var resp *proto.RelocationResponse
	if serverAddr != "" {
		setupCLILogging()
		r, err := newClient(serverAddr, user).relocate(ctx, req)
		if err != nil {
			return printError(err)
		}
		resp = r
	} else {
		err := withService(ctx, func(svc *phymv.Service) error {
			res, err := svc.Relocate(ctx, req, user)
			if err != nil {
				return err
			}
			doc := phymv.RelocationResponse(res)
			resp = &doc
			return nil
		})
		if err != nil {
			return printError(err)
		}
	}

	if err := printJSON(resp); err != nil {
		return err
	}
	if !resp.Satisfied {
		return relocationError(resp)
	}
	return nil
}

func runRegister(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	req := proto.RegistrationRequest{
		ObjectPath:    args[0],
		PhysicalPath:  args[1],
		DestResource:  destResource,
		DigestHint:    digestHint,
		AdminOverride: adminFlag,
	}
	if sizeHint != "" {
		n, err := bytesize.Parse(sizeHint)
		if err != nil {
			return printError(fault.Wrap(fault.InvalidRequest, "parse --size", err))
		}
		req.SizeHint = &n
	}

	var doc *proto.ReplicaDocument
	if serverAddr != "" {
		setupCLILogging()
		d, err := newClient(serverAddr, user).register(ctx, req)
		if err != nil {
			return printError(err)
		}
		doc = d
	} else {
		err := withService(ctx, func(svc *phymv.Service) error {
			r, err := svc.Register(ctx, req, user)
			if err != nil {
				return err
			}
			d := phymv.ReplicaDocument(r)
			doc = &d
			return nil
		})
		if err != nil {
			return printError(err)
		}
	}
	return printJSON(doc)
}

func runUnregister(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	n := replicaNum
	req := proto.UnregistrationRequest{
		ObjectPath:    args[0],
		ReplicaNumber: &n,
		AdminOverride: adminFlag,
	}

	var doc *proto.ReplicaDocument
	if serverAddr != "" {
		setupCLILogging()
		d, err := newClient(serverAddr, user).unregister(ctx, req)
		if err != nil {
			return printError(err)
		}
		doc = d
	} else {
		err := withService(ctx, func(svc *phymv.Service) error {
			r, err := svc.Unregister(ctx, req, user)
			if err != nil {
				return err
			}
			d := phymv.ReplicaDocument(r)
			doc = &d
			return nil
		})
		if err != nil {
			return printError(err)
		}
	}
	return printJSON(doc)
}

func runList(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	var docs []proto.ReplicaDocument
	if serverAddr != "" {
		setupCLILogging()
		d, err := newClient(serverAddr, user).replicas(ctx, args[0])
		if err != nil {
			return printError(err)
		}
		docs = d
	} else {
		err := withService(ctx, func(svc *phymv.Service) error {
			replicas, err := svc.List(ctx, args[0])
			if err != nil {
				return err
			}
			docs = phymv.ReplicaDocuments(replicas)
			return nil
		})
		if err != nil {
			return printError(err)
		}
	}
	return printJSON(docs)
}

func printJSON(v any) error {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printError prints the error document on stdout and returns err so the
// exit status reflects its kind.
func printError(err error) error {
	if perr := printJSON(phymv.ErrorDocument(err)); perr != nil {
		return errors.Join(err, perr)
	}
	return err
}

// relocationError reports the first failed replica of a relocation.
func relocationError(resp *proto.RelocationResponse) error {
	for _, r := range resp.PerReplicaResults {
		if !r.Success {
			return fault.New(fault.Kind(r.ErrorKind), "relocate",
				"replica %d: %s", r.ReplicaNumber, r.Detail)
		}
	}
	return fault.New(fault.TransferFailed, "relocate", "no replica moved")
}

// exitCode maps an error to the process exit status.
func exitCode(err error) int {
	switch fault.KindOf(err) {
	case fault.InvalidRequest:
		return 2
	case fault.NotFound:
		return 3
	case fault.Ambiguous, fault.Conflict:
		return 4
	case fault.Unauthorized:
		return 5
	case fault.CorruptionDetected:
		return 6
	case fault.TransferFailed:
		return 7
	case fault.CatalogUnavailable:
		return 8
	}
	return 1
}

