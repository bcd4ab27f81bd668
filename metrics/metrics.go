package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/jrwynneiii/rxcap/pocsag"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics counts capture and decoder events. It satisfies both
// capture.Observer and pocsag.Observer.
type Metrics struct {
	registry *prometheus.Registry

	captureBytes   prometheus.Counter
	captureBlocks  prometheus.Counter
	captureDropped prometheus.Counter

	codewords     *prometheus.CounterVec
	packets       *prometheus.CounterVec
	syncLosses    prometheus.Counter
	tornPackets   prometheus.Counter
	packetErrors  prometheus.Histogram
	lastPacketSec prometheus.Gauge
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		captureBytes: f.NewCounter(prometheus.CounterOpts{
			Name: "rxcap_capture_bytes_total",
			Help: "Bytes written to capture files",
		}),
		captureBlocks: f.NewCounter(prometheus.CounterOpts{
			Name: "rxcap_capture_blocks_written_total",
			Help: "Blocks written to capture files",
		}),
		captureDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "rxcap_capture_blocks_dropped_total",
			Help: "Blocks dropped because the writer fell behind",
		}),
		codewords: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rxcap_pocsag_codewords_total",
			Help: "Codewords decoded, by outcome",
		}, []string{"outcome"}),
		packets: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rxcap_pocsag_packets_total",
			Help: "Packets emitted, by function code",
		}, []string{"function"}),
		syncLosses: f.NewCounter(prometheus.CounterOpts{
			Name: "rxcap_pocsag_sync_losses_total",
			Help: "Times the decoder fell back to searching for sync",
		}),
		tornPackets: f.NewCounter(prometheus.CounterOpts{
			Name: "rxcap_pocsag_torn_packets_total",
			Help: "Partially received packets dropped on sync loss",
		}),
		packetErrors: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "rxcap_pocsag_packet_errors",
			Help:    "Corrected or uncorrectable codewords per packet",
			Buckets: []float64{0, 1, 2, 4, 8},
		}),
		lastPacketSec: f.NewGauge(prometheus.GaugeOpts{
			Name: "rxcap_pocsag_last_packet_timestamp_seconds",
			Help: "Unix time of the last emitted packet",
		}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) BlockWritten(bytes int) {
	m.captureBlocks.Inc()
	m.captureBytes.Add(float64(bytes))
}

func (m *Metrics) BlockDropped() {
	m.captureDropped.Inc()
}

func (m *Metrics) CodewordDecoded(o pocsag.Outcome) {
	m.codewords.WithLabelValues(o.String()).Inc()
}

func (m *Metrics) SyncLost() {
	m.syncLosses.Inc()
}

func (m *Metrics) PacketTorn() {
	m.tornPackets.Inc()
}

var functionLabels = [4]string{"0", "1", "2", "3"}

func (m *Metrics) PacketEmitted(p pocsag.Packet) {
	m.packets.WithLabelValues(functionLabels[p.Function&3]).Inc()
	m.packetErrors.Observe(float64(p.ErrorCount))
	if !p.Timestamp.IsZero() {
		m.lastPacketSec.Set(float64(p.Timestamp.Unix()))
	}
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Infof("[metrics] Listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
