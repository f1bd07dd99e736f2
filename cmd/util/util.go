package util

import (
	"fmt"
	"github.com/ValentinKolb/dNet/tcpnet/common"
	"github.com/joho/godotenv"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"strings"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
)

var Logger = logger.GetLogger("cli")

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// SetupClientFlags adds the transport connection flags to a command
func SetupClientFlags(cmd *cobra.Command) {
	defaults := common.DefaultClientConfig()

	key := "host"
	cmd.PersistentFlags().String(key, defaults.Host, WrapString("Host name or IP address of the remote peer"))

	key = "port"
	cmd.PersistentFlags().Int(key, defaults.Port, WrapString("Port of the remote peer (0 selects the default port 7777)"))

	key = "connect-timeout"
	cmd.PersistentFlags().Int(key, defaults.ConnectTimeoutSecond, WrapString("Timeout in seconds of the blocking connect"))

	key = "poll-interval"
	cmd.PersistentFlags().Int(key, defaults.PollIntervalMillis, WrapString("Read deadline of the receive worker in milliseconds. Bounds how long stopping the transport can take"))

	key = "idle-sleep"
	cmd.PersistentFlags().Int(key, defaults.IdleSleepMillis, WrapString("Pause of the receive worker in milliseconds after a read without data"))

	key = "max-frame-size"
	cmd.PersistentFlags().Int(key, defaults.MaxFrameSize, WrapString("Largest payload in bytes accepted from the peer"))

	key = "read-buffer"
	cmd.PersistentFlags().Int(key, defaults.ReadBufferSize, WrapString("Size of the receive worker's read buffer in bytes"))

	key = "socket-write-buffer"
	cmd.PersistentFlags().Int(key, 0, WrapString("Socket send buffer in KB (0 = system default)"))

	key = "socket-read-buffer"
	cmd.PersistentFlags().Int(key, 0, WrapString("Socket receive buffer in KB (0 = system default)"))

	key = "tcp-delay"
	cmd.PersistentFlags().Bool(key, defaults.TCPDelay, WrapString("Keep Nagle's algorithm enabled (default is TCP_NODELAY)"))

	key = "tcp-keepalive"
	cmd.PersistentFlags().Int(key, 0, WrapString("The keepalive interval in seconds (0 = disabled)"))

	key = "tcp-linger"
	cmd.PersistentFlags().Int(key, defaults.TCPLingerSec, WrapString("The linger time in seconds (<= 0 = system default)"))
}

// SetupLogFlags adds the log level flag to a command
func SetupLogFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().String("log-level", "warn", WrapString("The level at which logs will be output (debug, info, warn, error)"))
}

// InitConfig loads .env files, enables DNET_ environment variables and reads the
// config file given with --config
func InitConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("dnet")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match

	if configFile := viper.GetString("config"); configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			Logger.Warningf("Failed to read config file %s: %v", configFile, err)
		}
	}
}

// GetClientConfig reads the client configuration from viper
func GetClientConfig() common.ClientConfig {
	return common.ClientConfig{
		Host:                 viper.GetString("host"),
		Port:                 viper.GetInt("port"),
		ConnectTimeoutSecond: viper.GetInt("connect-timeout"),
		PollIntervalMillis:   viper.GetInt("poll-interval"),
		IdleSleepMillis:      viper.GetInt("idle-sleep"),
		ReadBufferSize:       viper.GetInt("read-buffer"),
		MaxFrameSize:         viper.GetInt("max-frame-size"),
		TCPConf: common.TCPConf{
			TCPDelay:        viper.GetBool("tcp-delay"),
			TCPKeepAliveSec: viper.GetInt("tcp-keepalive"),
			TCPLingerSec:    viper.GetInt("tcp-linger"),
		},
		SocketConf: common.SocketConf{
			WriteBufferSize: viper.GetInt("socket-write-buffer") * 1024,
			ReadBufferSize:  viper.GetInt("socket-read-buffer") * 1024,
		},
	}
}

// InitLogging applies the configured log level to all loggers
func InitLogging() error {
	if err := common.InitLoggers(viper.GetString("log-level")); err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	return nil
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}
