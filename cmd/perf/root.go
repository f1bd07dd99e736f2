package perf

import (
	"encoding/binary"
	"encoding/csv"
	"fmt"
	"github.com/ValentinKolb/dNet/cmd/util"
	"github.com/ValentinKolb/dNet/tcpnet/common"
	"github.com/ValentinKolb/dNet/tcpnet/transport"
	"github.com/ValentinKolb/dNet/tcpnet/transport/tcp"
	gometrics "github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"os"
	"strconv"
	"time"
)

var (
	PerfCmd = &cobra.Command{
		Use:     "perf",
		Short:   "Round-trip benchmark against a dNet peer",
		Long:    "Sends --count packets of --size bytes to an echo peer (see dnet serve), one at a time, and reports the round-trip latency distribution.",
		RunE:    run,
		PreRunE: processPerfConfig,
	}
	perfCount   = 1000
	perfSize    = 64
	perfTimeout = 5 * time.Second
)

var percentiles = []float64{0.5, 0.95, 0.99}

func init() {
	util.SetupClientFlags(PerfCmd)
	util.SetupLogFlags(PerfCmd)

	// add flags
	key := "count"
	PerfCmd.Flags().Int(key, perfCount, util.WrapString("Number of round trips"))
	key = "size"
	PerfCmd.Flags().Int(key, perfSize, util.WrapString("Payload size in bytes (at least 8)"))
	key = "rtt-timeout"
	PerfCmd.Flags().Int(key, int(perfTimeout/time.Second), util.WrapString("Seconds to wait for a single reply"))
	key = "csv"
	PerfCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}
	if err := util.InitLogging(); err != nil {
		return err
	}

	// Read the configuration from the command line flags and environment variables
	perfCount = viper.GetInt("count")
	perfSize = viper.GetInt("size")
	perfTimeout = time.Duration(viper.GetInt("rtt-timeout")) * time.Second

	if perfCount <= 0 {
		return fmt.Errorf("count must be positive, got %d", perfCount)
	}
	if perfSize < 8 {
		return fmt.Errorf("size must be at least 8 bytes, got %d", perfSize)
	}
	return nil
}

// result holds the round-trip distribution in microseconds
type result struct {
	count         int64
	min, max      int64
	mean          float64
	p50, p95, p99 float64
	total         time.Duration
}

func run(_ *cobra.Command, _ []string) error {
	config := util.GetClientConfig()

	fmt.Println("Round-trip benchmark for dNet peers")
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println(config.String())
	fmt.Printf("Count: %d, Size: %d bytes\n\n", perfCount, perfSize)

	// the last received sequence number, written on the ticking goroutine
	var received uint64
	consumer := transport.PacketConsumerFunc(func(payload []byte) {
		if len(payload) >= 8 {
			received = binary.BigEndian.Uint64(payload)
		}
	})

	m := tcp.NewTCPManager(config, consumer)
	conn, err := m.Start(config.Host, config.Port)
	if err != nil {
		return err
	}
	defer m.Stop()

	histogram := gometrics.NewHistogram(gometrics.NewUniformSample(perfCount))
	payload := make([]byte, perfSize)

	start := time.Now()
	for seq := uint64(1); seq <= uint64(perfCount); seq++ {
		binary.BigEndian.PutUint64(payload, seq)

		sent := time.Now()
		if err := conn.Send(payload); err != nil {
			return err
		}
		if err := m.Tick(0); err != nil {
			return err
		}

		if err := awaitReply(m, func() bool { return received == seq }); err != nil {
			return fmt.Errorf("round trip %d: %w", seq, err)
		}
		histogram.Update(time.Since(sent).Microseconds())
	}

	snapshot := histogram.Snapshot()
	ps := snapshot.Percentiles(percentiles)
	res := result{
		count: snapshot.Count(),
		min:   snapshot.Min(),
		max:   snapshot.Max(),
		mean:  snapshot.Mean(),
		p50:   ps[0],
		p95:   ps[1],
		p99:   ps[2],
		total: time.Since(start),
	}

	printResult(res)
	fmt.Println(m.Stats().String())

	// Write results to csv if specified
	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, res, config); err != nil {
			return err
		}
	}

	return nil
}

// awaitReply ticks the manager whenever data arrives until done reports true
func awaitReply(m *tcp.Manager, done func() bool) error {
	timeout := time.NewTimer(perfTimeout)
	defer timeout.Stop()

	last := time.Now()
	for !done() {
		select {
		case <-m.Ready():
		case <-timeout.C:
			return fmt.Errorf("no reply within %s", perfTimeout)
		}

		now := time.Now()
		if err := m.Tick(now.Sub(last)); err != nil {
			return err
		}
		last = now
	}
	return nil
}

func printResult(res result) {
	opsPerSec := float64(res.count) / res.total.Seconds()

	fmt.Printf("%-20s%d\n", "round trips", res.count)
	fmt.Printf("%-20s%.0f ops/sec\n", "throughput", opsPerSec)
	fmt.Printf("%-20s%s\n", "min", time.Duration(res.min)*time.Microsecond)
	fmt.Printf("%-20s%s\n", "mean", time.Duration(res.mean*float64(time.Microsecond)))
	fmt.Printf("%-20s%s\n", "p50", time.Duration(res.p50*float64(time.Microsecond)))
	fmt.Printf("%-20s%s\n", "p95", time.Duration(res.p95*float64(time.Microsecond)))
	fmt.Printf("%-20s%s\n", "p99", time.Duration(res.p99*float64(time.Microsecond)))
	fmt.Printf("%-20s%s\n", "max", time.Duration(res.max)*time.Microsecond)
}

func writeResultsToCSV(csvPath string, res result, config common.ClientConfig) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	// Write header
	header := []string{
		"Count", "SizeBytes", "MinUs", "MeanUs", "P50Us", "P95Us", "P99Us", "MaxUs",
		"TotalSec", "Endpoint", "TCPDelay", "PollIntervalMs",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	row := []string{
		strconv.FormatInt(res.count, 10),
		strconv.Itoa(perfSize),
		strconv.FormatInt(res.min, 10),
		fmt.Sprintf("%.1f", res.mean),
		fmt.Sprintf("%.1f", res.p50),
		fmt.Sprintf("%.1f", res.p95),
		fmt.Sprintf("%.1f", res.p99),
		strconv.FormatInt(res.max, 10),
		fmt.Sprintf("%.3f", res.total.Seconds()),
		config.Endpoint(),
		strconv.FormatBool(config.TCPDelay),
		strconv.Itoa(config.PollIntervalMillis),
	}
	if err := writer.Write(row); err != nil {
		return fmt.Errorf("failed to write results: %v", err)
	}

	return nil
}
