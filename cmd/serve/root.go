package serve

import (
	"context"
	"errors"
	"fmt"
	cmdUtil "github.com/ValentinKolb/dNet/cmd/util"
	"github.com/ValentinKolb/dNet/tcpnet/common"
	"github.com/ValentinKolb/dNet/tcpnet/server"
	"github.com/VictoriaMetrics/metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

var (
	serveCmdConfig = common.DefaultServerConfig()
	ServeCmd       = &cobra.Command{
		Use:     "serve",
		Short:   "Start the dNet peer server",
		Long:    `Start the dNet peer server. It accepts transport connections and sends every packet back to its sender. The configuration can be set via command line flags or environment variables. The format of the environment variables is DNET_<flag> (e.g. DNET_MAX_FRAME_SIZE=1024)`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	defaults := common.DefaultServerConfig()

	// add flags
	key := "endpoint"
	ServeCmd.PersistentFlags().String(key, defaults.Endpoint, cmdUtil.WrapString("The address on which the server will listen (e.g. 0.0.0.0:7777)"))

	key = "timeout"
	ServeCmd.PersistentFlags().Int(key, 0, cmdUtil.WrapString("Close sessions that stay silent for this many seconds (0 = never)"))

	key = "max-frame-size"
	ServeCmd.PersistentFlags().Int(key, defaults.MaxFrameSize, cmdUtil.WrapString("Largest payload in bytes accepted from a client. Larger frames close the session"))

	key = "read-buffer"
	ServeCmd.PersistentFlags().Int(key, defaults.ReadBufferSize, cmdUtil.WrapString("Size of the per session read buffer in bytes"))

	key = "tcp-delay"
	ServeCmd.PersistentFlags().Bool(key, defaults.TCPDelay, cmdUtil.WrapString("Keep Nagle's algorithm enabled on accepted connections (default is TCP_NODELAY)"))

	key = "metrics-endpoint"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("Serve Prometheus metrics at http://<endpoint>/metrics (e.g. :9100, empty = disabled)"))

	key = "log-level"
	ServeCmd.PersistentFlags().String(key, defaults.LogLevel, cmdUtil.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
}

// processConfig reads the configuration from the command line flags and environment variables and converts them to the server configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	// bind the flags to viper
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	serveCmdConfig.Endpoint = viper.GetString("endpoint")
	serveCmdConfig.TimeoutSecond = viper.GetInt("timeout")
	serveCmdConfig.MaxFrameSize = viper.GetInt("max-frame-size")
	serveCmdConfig.ReadBufferSize = viper.GetInt("read-buffer")
	serveCmdConfig.TCPDelay = viper.GetBool("tcp-delay")
	serveCmdConfig.MetricsEndpoint = viper.GetString("metrics-endpoint")
	serveCmdConfig.LogLevel = viper.GetString("log-level")

	if serveCmdConfig.MaxFrameSize <= 0 {
		return fmt.Errorf("max-frame-size must be positive, got %d", serveCmdConfig.MaxFrameSize)
	}

	return common.InitLoggers(serveCmdConfig.LogLevel)
}

// run starts the peer server and blocks until it is interrupted
func run(_ *cobra.Command, _ []string) error {
	fmt.Println(serveCmdConfig.String())

	srv, err := server.NewServer(serveCmdConfig, server.EchoHandler)
	if err != nil {
		return err
	}

	var metricsServer *http.Server
	if serveCmdConfig.MetricsEndpoint != "" {
		metricsServer = startMetricsServer(serveCmdConfig.MetricsEndpoint)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		server.Logger.Infof("Shutting down")
		if metricsServer != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metricsServer.Shutdown(shutdownCtx)
		}
		_ = srv.Close()
	}()

	if err := srv.Serve(); !errors.Is(err, server.ErrServerClosed) {
		return err
	}
	return nil
}

// startMetricsServer exposes all dNet metrics in Prometheus text format
func startMetricsServer(endpoint string) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, _ *http.Request) {
		metrics.WritePrometheus(w, true)
	})

	metricsServer := &http.Server{
		Addr:              endpoint,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		server.Logger.Infof("Serving metrics on http://%s/metrics", endpoint)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			server.Logger.Errorf("Metrics server failed: %v", err)
		}
	}()

	return metricsServer
}
