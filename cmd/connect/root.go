package connect

import (
	"bufio"
	"context"
	"fmt"
	"github.com/ValentinKolb/dNet/cmd/util"
	"github.com/ValentinKolb/dNet/tcpnet/transport/tcp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"os"
	"os/signal"
	"syscall"
	"time"
)

var (
	ConnectCmd = &cobra.Command{
		Use:   "connect",
		Short: "Connect to a peer and exchange packets",
		Long: `Connect to a dNet peer. Every line read from stdin is sent as one packet, every
packet received is printed. The transport is ticked every --tick-ms milliseconds,
and earlier when data arrives. The command ends on EOF, on interrupt or when the
connection is lost.`,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := util.BindCommandFlags(cmd); err != nil {
				return err
			}
			return util.InitLogging()
		},
		RunE: run,
	}
)

func init() {
	util.SetupClientFlags(ConnectCmd)
	util.SetupLogFlags(ConnectCmd)

	key := "tick-ms"
	ConnectCmd.Flags().Int(key, 16, util.WrapString("Interval between two ticks in milliseconds (16 is about 60 Hz)"))

	key = "wait-ms"
	ConnectCmd.Flags().Int(key, 500, util.WrapString("How long to keep receiving after stdin is closed, in milliseconds"))

	key = "stats"
	ConnectCmd.Flags().Bool(key, true, util.WrapString("Print transport statistics on exit"))
}

// printer writes received packets to stdout
type printer struct {
	lost error
}

func (p *printer) OnRawPacketReceived(payload []byte) {
	fmt.Printf("< %s\n", payload)
}

func (p *printer) OnConnectionLost(err error) {
	p.lost = err
	fmt.Fprintf(os.Stderr, "connection lost: %v\n", err)
}

func run(_ *cobra.Command, _ []string) error {
	config := util.GetClientConfig()

	tickInterval := time.Duration(viper.GetInt("tick-ms")) * time.Millisecond
	if tickInterval <= 0 {
		return fmt.Errorf("tick-ms must be positive")
	}
	wait := time.Duration(viper.GetInt("wait-ms")) * time.Millisecond

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p := &printer{}
	m := tcp.NewTCPManager(config, p)

	conn, err := m.StartContext(ctx, config.Host, config.Port)
	if err != nil {
		return err
	}
	defer func() {
		m.Stop()
		if viper.GetBool("stats") {
			fmt.Fprintln(os.Stderr, m.Stats().String())
		}
	}()

	fmt.Fprintf(os.Stderr, "connected to %s\n", conn.RemoteDescriptor())

	// stdin is read on its own goroutine, Send is safe to call from there
	eof := make(chan struct{})
	go func() {
		defer close(eof)
		scanner := bufio.NewScanner(os.Stdin)
		scanner.Buffer(make([]byte, 64*1024), config.MaxFrameSize)
		for scanner.Scan() {
			if err := conn.Send(scanner.Bytes()); err != nil {
				util.Logger.Warningf("Dropping line: %v", err)
				return
			}
		}
		if err := scanner.Err(); err != nil {
			util.Logger.Warningf("Failed to read stdin: %v", err)
		}
	}()

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	var deadline <-chan time.Time
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-deadline:
			// final flush of anything sent in the meantime
			return m.Tick(time.Since(last))
		case <-eof:
			eof = nil
			deadline = time.After(wait)
		case <-m.Ready():
		case <-ticker.C:
		}

		now := time.Now()
		if err := m.Tick(now.Sub(last)); err != nil {
			return err
		}
		last = now

		if p.lost != nil {
			return p.lost
		}
	}
}
