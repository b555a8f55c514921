// Command sdrcore wires the signal-processing and dispatch core together:
// configuration, the scanner store, the fan-out plane, the spectrum
// batcher, the control surface arbitrating multiplexer/scanner device
// ownership, and the optional Prometheus/health/MQTT adapters.
// Flag parsing, config-path handling and signal-driven graceful shutdown
// are the only process-level concerns; there is no HTTP routing, static
// file serving, or admin UI since this module has no HTTP route handlers
// beyond the Prometheus /metrics endpoint.
package main

import (
	"context"
	"flag"
	"log"
	"math"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cwsl/sdrcore/internal/config"
	"github.com/cwsl/sdrcore/internal/control"
	"github.com/cwsl/sdrcore/internal/fanout"
	"github.com/cwsl/sdrcore/internal/health"
	"github.com/cwsl/sdrcore/internal/metrics"
	"github.com/cwsl/sdrcore/internal/mqttbridge"
	"github.com/cwsl/sdrcore/internal/mux"
	"github.com/cwsl/sdrcore/internal/scanner"
	"github.com/cwsl/sdrcore/internal/spectrum"
	"github.com/cwsl/sdrcore/internal/store"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("sdrcore: failed to load configuration: %v", err)
	}

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		log.Fatalf("sdrcore: failed to open store: %v", err)
	}
	defer st.Close()

	plane := fanout.NewPlane()
	reg := metrics.New()

	broadcast := func(ch *fanout.Channel, name string, msg fanout.Message) {
		reg.RecordFanoutBroadcastBytes(name, len(msg.Binary))
		ch.Broadcast(msg)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var batchFrames int
	var lastBatchAt time.Time
	batcher := spectrum.New(
		func(batch []byte) {
			now := time.Now()
			var cadence float64
			if !lastBatchAt.IsZero() {
				cadence = now.Sub(lastBatchAt).Seconds()
			}
			lastBatchAt = now
			reg.ObserveBatch(batchFrames, cadence, now.Unix())
			batchFrames = 0
			broadcast(plane.Signal, fanout.KindSignal.String(), fanout.Message{Binary: batch})
		},
		func(meta spectrum.Meta) { broadcast(plane.Main, fanout.KindMain.String(), fanout.Message{JSON: meta}) },
	)

	knownScannerStates := []string{"IDLE", "SCANNING", "PARKED"}

	var bridge *mqttbridge.Bridge
	onScannerEvent := func(ev scanner.Event) {
		switch ev.Type {
		case "scanner_state":
			reg.SetScannerState(ev.State, knownScannerStates)
		case "scanner_hit":
			reg.ObserveParkDuration(float64(ev.DurationMs) / 1000)
		}
		broadcast(plane.Main, fanout.KindMain.String(), fanout.Message{JSON: ev})
		if bridge != nil {
			bridge.OnEvent(ev)
		}
	}
	if cfg.MQTT.Enabled {
		b, err := mqttbridge.New(cfg.MQTT)
		if err != nil {
			log.Printf("sdrcore: mqtt bridge disabled: %v", err)
		} else {
			bridge = b
			defer bridge.Disconnect()
		}
	}

	addr := rtltcpAddr(cfg.RTLTCP)

	newMux := func(addr string) *mux.Multiplexer {
		return mux.New(addr, mux.Config{
			FFTSize:      cfg.Mux.FFTSize,
			CenterFreqHz: cfg.Mux.CenterFreqHz,
			SampleRateHz: cfg.Mux.SampleRateHz,
			GainTenthsDB: cfg.Mux.GainTenthsDB,
		},
			func(f mux.FFTFrame) {
				batchFrames++
				batcher.Push(spectrum.Frame{
					MagnitudesDB: f.MagnitudesDB,
					CenterFreqHz: f.CenterFreqHz,
					SampleRateHz: f.SampleRateHz,
					FFTSize:      f.FFTSize,
					NoiseFloorDB: f.NoiseFloorDB,
					PeakBin:      f.PeakBin,
					PeakDB:       f.PeakDB,
				})
			},
			func(c mux.AudioChunk) {
				reg.ObserveDemodFrame()
				broadcast(plane.Main, fanout.KindMain.String(), fanout.Message{Binary: float32ToBytes(c.Samples)})
			},
		)
	}

	newScanner := func(addr string) *scanner.Scanner {
		return scanner.New(addr, scanner.Config{
			Ranges:           scannerRanges(cfg.Scanner.Ranges),
			DwellMs:          cfg.Scanner.DwellMs,
			ThresholdDB:      cfg.Scanner.ThresholdDB,
			SquelchTimeoutMs: cfg.Scanner.SquelchTimeoutMs,
			MaxParkMs:        cfg.Scanner.MaxParkMs,
			SampleRateHz:     cfg.Scanner.SampleRateHz,
			GainTenthsDB:     cfg.Scanner.GainTenthsDB,
			PriorityInterval: cfg.Scanner.PriorityInterval,
		}, st,
			func(samples []float32) {
				broadcast(plane.ScannerAudio, fanout.KindScannerAudio.String(), fanout.Message{Binary: float32ToBytes(samples)})
			},
			onScannerEvent,
		)
	}

	surface := control.New(ctx, addr, st, newMux, newScanner, true)
	surface.Dispatch(control.StartMux{})

	tracker := health.New(time.Second)
	tracker.Start(ctx)
	defer tracker.Stop()

	go sampleFanoutSubscribers(ctx, plane, reg)

	if cfg.Metrics.Enabled {
		startMetricsServer(cfg.Metrics.Listen)
	}

	log.Printf("sdrcore: started, device=%s, owner=%s", addr, surface.Owner())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Println("sdrcore: shutting down")
	surface.Dispatch(control.StopMux{})
	surface.Dispatch(control.StopScanner{})
	cancel()
}

func rtltcpAddr(c config.RTLTCPConfig) string {
	host := c.Host
	if host == "" {
		host = "127.0.0.1"
	}
	port := c.Port
	if port == 0 {
		port = 1234
	}
	return host + ":" + strconv.Itoa(port)
}

func scannerRanges(ranges []config.Range) []scanner.Range {
	out := make([]scanner.Range, len(ranges))
	for i, r := range ranges {
		out[i] = scanner.Range{StartHz: r.StartHz, EndHz: r.EndHz}
	}
	return out
}

func float32ToBytes(samples []float32) []byte {
	out := make([]byte, len(samples)*4)
	for i, s := range samples {
		bits := math.Float32bits(s)
		out[i*4] = byte(bits)
		out[i*4+1] = byte(bits >> 8)
		out[i*4+2] = byte(bits >> 16)
		out[i*4+3] = byte(bits >> 24)
	}
	return out
}

// sampleFanoutSubscribers periodically reports each channel's live
// subscriber count; Channel has no change notification, so polling is the
// simplest way to reflect membership in a gauge.
func sampleFanoutSubscribers(ctx context.Context, plane *fanout.Plane, reg *metrics.Registry) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reg.SetFanoutSubscribers(fanout.KindMain.String(), plane.Main.Len())
			reg.SetFanoutSubscribers(fanout.KindSignal.String(), plane.Signal.Len())
			reg.SetFanoutSubscribers(fanout.KindScannerAudio.String(), plane.ScannerAudio.Len())
		}
	}
}

func startMetricsServer(listen string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: listen, Handler: mux}
	go func() {
		log.Printf("sdrcore: metrics listening on %s", listen)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("sdrcore: metrics server error: %v", err)
		}
	}()
}

