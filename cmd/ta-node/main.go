// Command ta-node runs the Trusted Authority core orchestrator: an HTTP
// server fronting upload/read/history operations, plus one-shot CLI
// subcommands for ad-hoc operator use against the same local storage.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/rubinhealth/ta-core/cmd/ta-node/httpapi"
	"github.com/rubinhealth/ta-core/config"
	"github.com/rubinhealth/ta-core/ledger"
	"github.com/rubinhealth/ta-core/llm"
	"github.com/rubinhealth/ta-core/obslog"
	"github.com/rubinhealth/ta-core/objectstore"
	"github.com/rubinhealth/ta-core/peerstore"
	"github.com/rubinhealth/ta-core/tacore"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "ta-node",
	Short: "Trusted Authority core node",
	Long: `ta-node runs one Trusted Authority core instance: it accepts
patient record uploads, classifies them for triage priority, splits the
resulting encryption key into Shamir shares across a configured peer
set, and serves reads that require threshold-many shares to reassemble.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"ta-node version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().String("env-file", ".env", "Path to a .env file to load before reading the environment")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(readCmd)
	rootCmd.AddCommand(historyCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	obslog.Init(obslog.Config{
		Level:      obslog.Level(logLevel),
		JSONOutput: logJSON,
	})
}

func loadConfig() (config.Config, error) {
	envFile, _ := rootCmd.PersistentFlags().GetString("env-file")
	return config.Load(envFile)
}

// buildCore assembles a tacore.Core from cfg: the object store and peer
// NMK store always live under cfg.DataDir; the ledger backing and
// classifier are selected by cfg.FabricMode/cfg.LLMURL.
func buildCore(cfg config.Config) (*tacore.Core, error) {
	store, err := objectstore.Open(cfg.DataDir + "/objects")
	if err != nil {
		return nil, fmt.Errorf("open object store: %w", err)
	}
	peers, err := peerstore.Open(cfg.DataDir+"/nmk.db", cfg.PeerIDs)
	if err != nil {
		return nil, fmt.Errorf("open peer store: %w", err)
	}

	var led ledger.Ledger
	switch cfg.FabricMode {
	case config.FabricFabric:
		opts := []ledger.RemoteLedgerOption{}
		if !cfg.FabricTLS {
			opts = append(opts, ledger.WithInsecureSkipVerify())
		}
		led = ledger.NewRemoteLedger(cfg.FabricURL, opts...)
	default:
		fileLedger, err := ledger.OpenFileLedger(cfg.DataDir + "/ledger.json")
		if err != nil {
			return nil, fmt.Errorf("open file ledger: %w", err)
		}
		led = fileLedger
	}

	var classifier llm.Classifier
	if cfg.LLMURL != "" {
		classifier = llm.NewHTTPClassifier(cfg.LLMURL, &http.Client{Timeout: cfg.RequestTimeout})
	} else {
		classifier = llm.MockClassifier{}
	}

	return tacore.New(led, store, peers, cfg.PeerIDs, classifier)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the TA core HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		core, err := buildCore(cfg)
		if err != nil {
			return err
		}

		server := httpapi.New(core, cfg)

		httpSrv := &http.Server{
			Addr:         cfg.HTTPAddr,
			Handler:      server,
			ReadTimeout:  cfg.RequestTimeout,
			WriteTimeout: cfg.RequestTimeout,
		}

		metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.Handler())
		metricsSrv := &http.Server{Addr: metricsAddr, Handler: metricsMux}

		errCh := make(chan error, 2)
		go func() {
			obslog.WithComponent("ta-node").Info().Str("addr", cfg.HTTPAddr).Msg("http server starting")
			if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- err
			}
		}()
		go func() {
			obslog.WithComponent("ta-node").Info().Str("addr", metricsAddr).Msg("metrics server starting")
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- err
			}
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		select {
		case <-sigCh:
			obslog.WithComponent("ta-node").Info().Msg("shutdown signal received")
		case err := <-errCh:
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(ctx)
		_ = metricsSrv.Shutdown(ctx)
		return nil
	},
}

func init() {
	serveCmd.Flags().String("metrics-addr", ":9090", "Address for the Prometheus metrics server")
}

var uploadCmd = &cobra.Command{
	Use:   "upload <patient-id> <file>",
	Short: "Upload a new record version for a patient against local storage",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		core, err := buildCore(cfg)
		if err != nil {
			return err
		}
		requester, _ := cmd.Flags().GetString("requester")

		data, err := os.ReadFile(args[1])
		if err != nil {
			return fmt.Errorf("read file: %w", err)
		}

		result, err := core.UploadNewRecord(cmd.Context(), args[0], data, args[1], requester)
		if err != nil {
			return err
		}
		fmt.Printf("patient=%s priority=%s threshold=%d version=%d\n", result.PatientID, result.Priority, result.Threshold, result.Version)
		return nil
	},
}

func init() {
	uploadCmd.Flags().String("requester", "operator", "Identity recorded as the uploading requester")
}

var readCmd = &cobra.Command{
	Use:   "read <patient-id> <output-file>",
	Short: "Reconstruct the latest record version for a patient from local storage",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		core, err := buildCore(cfg)
		if err != nil {
			return err
		}
		requester, _ := cmd.Flags().GetString("requester")

		result, err := core.ReconstructLatest(cmd.Context(), args[0], requester)
		if err != nil {
			return err
		}
		if err := os.WriteFile(args[1], result.Plaintext, 0o600); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
		fmt.Printf("patient=%s priority=%s version=%d wrote=%s\n", result.PatientID, result.Priority, result.Version, args[1])
		return nil
	},
}

func init() {
	readCmd.Flags().String("requester", "operator", "Identity recorded as the reading requester")
}

var historyCmd = &cobra.Command{
	Use:   "history <patient-id>",
	Short: "List every recorded version for a patient",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		core, err := buildCore(cfg)
		if err != nil {
			return err
		}

		history, err := core.GetHistory(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		for _, h := range history {
			fmt.Printf("version=%d priority=%s threshold=%d timestamp=%.0f\n", h.Version, h.Priority, h.Threshold, h.Timestamp)
		}
		return nil
	},
}
