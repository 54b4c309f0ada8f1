// Package metrics provides Prometheus metrics for go-mplayer-ctl.
//
// The collector is fed by supervisor callbacks (spawns, exits, file release
// waits) and player hooks and events (protocol commands, reconciled
// signals, state transitions). Spawn latency and release wait percentiles
// are tracked with t-digests so the exit summary does not keep every sample.
package metrics

import (
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/influxdata/tdigest"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/randomizedcoder/go-mplayer-ctl/internal/parser"
	"github.com/randomizedcoder/go-mplayer-ctl/internal/player"
	"github.com/randomizedcoder/go-mplayer-ctl/internal/process"
	"github.com/randomizedcoder/go-mplayer-ctl/internal/supervisor"
)

const namespace = "mplayerctl"

// digestCompression is the t-digest compression factor.
const digestCompression = 100

// Collector manages all Prometheus metrics for the controller.
type Collector struct {
	info              *prometheus.GaugeVec
	spawnsTotal       *prometheus.CounterVec
	spawnFailures     *prometheus.CounterVec
	spawnLatency      prometheus.Histogram
	spawnLatencyP     *prometheus.GaugeVec
	exitsTotal        *prometheus.CounterVec
	processUptime     *prometheus.HistogramVec
	trackedProcesses  prometheus.Gauge
	releaseWaitsTotal *prometheus.CounterVec
	releaseWait       prometheus.Histogram
	releaseWaitP      *prometheus.GaugeVec
	commandsTotal     *prometheus.CounterVec
	signalsTotal      *prometheus.CounterVec
	eventsTotal       *prometheus.CounterVec
	position          prometheus.Gauge
	volume            prometheus.Gauge
	muted             prometheus.Gauge

	startTime time.Time

	mu              sync.Mutex
	tracked         int
	spawns          map[process.Mode]int64
	failures        int64
	exitCodes       map[int]int64
	spawnDigest     *tdigest.TDigest
	releaseDigest   *tdigest.TDigest
	releaseTimeouts int64
	commands        int64
	commandErrors   int64
	staleSignals    int64
	events          map[player.EventKind]int64
}

// CollectorConfig holds configuration for the collector.
type CollectorConfig struct {
	Version string
	MPlayer string
}

// NewCollector creates a collector registered with the default registry.
func NewCollector(cfg CollectorConfig) *Collector {
	return NewCollectorWithRegistry(cfg, prometheus.DefaultRegisterer)
}

// NewCollectorWithRegistry creates a collector with a custom registry.
// Useful for testing.
func NewCollectorWithRegistry(cfg CollectorConfig, registry prometheus.Registerer) *Collector {
	c := &Collector{
		info: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "info",
			Help:      "Build and player information (value always 1)",
		}, []string{"version", "mplayer"}),

		spawnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "spawns_total",
			Help:      "Processes started, by mode",
		}, []string{"mode"}),

		spawnFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "spawn_failures_total",
			Help:      "Processes that failed to start, by mode",
		}, []string{"mode"}),

		spawnLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "spawn_latency_seconds",
			Help:      "Time to build and start a process",
			Buckets:   []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),

		spawnLatencyP: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "spawn_latency_quantile_seconds",
			Help:      "Spawn latency percentiles (t-digest)",
		}, []string{"quantile"}),

		exitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "process_exits_total",
			Help:      "Reaped processes, by mode and exit category",
		}, []string{"mode", "category"}),

		processUptime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "process_uptime_seconds",
			Help:      "Process lifetime from start to exit",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 900, 3600},
		}, []string{"mode"}),

		trackedProcesses: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tracked_processes",
			Help:      "Processes currently started and not yet reaped",
		}),

		releaseWaitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "file_release_waits_total",
			Help:      "File release waits, by result",
		}, []string{"result"}),

		releaseWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "file_release_wait_seconds",
			Help:      "Time spent waiting for a media file to be released",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),

		releaseWaitP: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "file_release_wait_quantile_seconds",
			Help:      "File release wait percentiles (t-digest)",
		}, []string{"quantile"}),

		commandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Slave protocol commands written, by command and result",
		}, []string{"command", "result"}),

		signalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signals_total",
			Help:      "Status signals reconciled, by kind and whether they were stale",
		}, []string{"kind", "stale"}),

		eventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Controller events emitted, by event",
		}, []string{"event"}),

		position: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "playback_position_seconds",
			Help:      "Last reported playback position",
		}),

		volume: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "volume",
			Help:      "Current volume (0-100)",
		}),

		muted: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "muted",
			Help:      "1 when the volume is muted",
		}),

		startTime:     time.Now(),
		spawns:        make(map[process.Mode]int64),
		exitCodes:     make(map[int]int64),
		spawnDigest:   tdigest.NewWithCompression(digestCompression),
		releaseDigest: tdigest.NewWithCompression(digestCompression),
		events:        make(map[player.EventKind]int64),
	}

	registry.MustRegister(
		c.info,
		c.spawnsTotal,
		c.spawnFailures,
		c.spawnLatency,
		c.spawnLatencyP,
		c.exitsTotal,
		c.processUptime,
		c.trackedProcesses,
		c.releaseWaitsTotal,
		c.releaseWait,
		c.releaseWaitP,
		c.commandsTotal,
		c.signalsTotal,
		c.eventsTotal,
		c.position,
		c.volume,
		c.muted,
	)

	version := cfg.Version
	if version == "" {
		version = "dev"
	}
	c.info.WithLabelValues(version, cfg.MPlayer).Set(1)

	return c
}

// =============================================================================
// Supervisor callbacks
// =============================================================================

// SupervisorCallbacks returns callbacks that feed this collector.
func (c *Collector) SupervisorCallbacks() supervisor.Callbacks {
	return supervisor.Callbacks{
		OnSpawn:       c.RecordSpawn,
		OnSpawnFailed: c.RecordSpawnFailure,
		OnExit:        c.RecordExit,
		OnRelease:     c.RecordRelease,
	}
}

// RecordSpawn records a started process.
func (c *Collector) RecordSpawn(mode process.Mode, pid int, latency time.Duration) {
	c.spawnsTotal.WithLabelValues(string(mode)).Inc()
	c.spawnLatency.Observe(latency.Seconds())

	c.mu.Lock()
	defer c.mu.Unlock()
	c.spawns[mode]++
	c.tracked++
	c.trackedProcesses.Set(float64(c.tracked))
	c.spawnDigest.Add(latency.Seconds(), 1)
	setQuantiles(c.spawnLatencyP, c.spawnDigest)
}

// RecordSpawnFailure records a process that could not be started.
func (c *Collector) RecordSpawnFailure(mode process.Mode, err error) {
	c.spawnFailures.WithLabelValues(string(mode)).Inc()

	c.mu.Lock()
	c.failures++
	c.mu.Unlock()
}

// RecordExit records a reaped process.
func (c *Collector) RecordExit(res process.Result) {
	c.exitsTotal.WithLabelValues(string(res.Mode), exitCategory(res)).Inc()
	c.processUptime.WithLabelValues(string(res.Mode)).Observe(res.Uptime.Seconds())

	c.mu.Lock()
	defer c.mu.Unlock()
	c.exitCodes[res.ExitCode]++
	if c.tracked > 0 {
		c.tracked--
	}
	c.trackedProcesses.Set(float64(c.tracked))
}

// RecordRelease records one file release wait.
func (c *Collector) RecordRelease(path string, waited time.Duration, released bool) {
	result := "released"
	if !released {
		result = "timeout"
	}
	c.releaseWaitsTotal.WithLabelValues(result).Inc()
	c.releaseWait.Observe(waited.Seconds())

	c.mu.Lock()
	defer c.mu.Unlock()
	if !released {
		c.releaseTimeouts++
	}
	c.releaseDigest.Add(waited.Seconds(), 1)
	setQuantiles(c.releaseWaitP, c.releaseDigest)
}

// exitCategory buckets an exit the way an operator reads it.
func exitCategory(res process.Result) string {
	switch {
	case res.Killed:
		return "killed"
	case res.ExitCode == 0:
		return "success"
	case res.ExitCode > 128:
		return "signal"
	default:
		return "error"
	}
}

// =============================================================================
// Player hooks and events
// =============================================================================

// PlayerHooks returns hooks that feed this collector.
func (c *Collector) PlayerHooks() player.Hooks {
	return player.Hooks{
		OnCommand:   c.RecordCommand,
		OnReconcile: c.RecordSignal,
	}
}

// RecordCommand records one protocol write.
func (c *Collector) RecordCommand(cmd player.Command, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.commandsTotal.WithLabelValues(cmd.Name, result).Inc()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.commands++
	if err != nil {
		c.commandErrors++
	}
}

// RecordSignal records one reconciled status signal.
func (c *Collector) RecordSignal(sig parser.Signal, stale bool) {
	c.signalsTotal.WithLabelValues(sig.Kind.String(), strconv.FormatBool(stale)).Inc()
	if stale {
		c.mu.Lock()
		c.staleSignals++
		c.mu.Unlock()
	}
}

// ObserveEvent is a player.Listener that tracks transitions.
func (c *Collector) ObserveEvent(ev player.Event) {
	c.eventsTotal.WithLabelValues(ev.Kind.String()).Inc()
	c.position.Set(ev.Position)
	c.volume.Set(float64(ev.Volume))
	if ev.Muted {
		c.muted.Set(1)
	} else {
		c.muted.Set(0)
	}

	c.mu.Lock()
	c.events[ev.Kind]++
	c.mu.Unlock()
}

// =============================================================================
// Summary Generation
// =============================================================================

// Summary holds the data for generating an exit summary.
type Summary struct {
	Duration        time.Duration
	Spawns          map[process.Mode]int64
	SpawnFailures   int64
	ExitCodes       map[int]int64
	SpawnLatencyP50 time.Duration
	SpawnLatencyP95 time.Duration
	SpawnLatencyP99 time.Duration
	ReleaseWaits    int64
	ReleaseTimeouts int64
	ReleaseWaitP50  time.Duration
	ReleaseWaitP95  time.Duration
	ReleaseWaitP99  time.Duration
	Commands        int64
	CommandErrors   int64
	StaleSignals    int64
	Events          map[player.EventKind]int64
}

// TotalSpawns returns the number of processes started in every mode.
func (s *Summary) TotalSpawns() int64 {
	var n int64
	for _, v := range s.Spawns {
		n += v
	}
	return n
}

// GenerateSummary creates a summary of the run.
func (c *Collector) GenerateSummary() *Summary {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := &Summary{
		Duration:        time.Since(c.startTime),
		Spawns:          make(map[process.Mode]int64, len(c.spawns)),
		SpawnFailures:   c.failures,
		ExitCodes:       make(map[int]int64, len(c.exitCodes)),
		ReleaseWaits:    int64(c.releaseDigest.Count()),
		ReleaseTimeouts: c.releaseTimeouts,
		Commands:        c.commands,
		CommandErrors:   c.commandErrors,
		StaleSignals:    c.staleSignals,
		Events:          make(map[player.EventKind]int64, len(c.events)),
	}
	for k, v := range c.spawns {
		s.Spawns[k] = v
	}
	for k, v := range c.exitCodes {
		s.ExitCodes[k] = v
	}
	for k, v := range c.events {
		s.Events[k] = v
	}

	if c.spawnDigest.Count() > 0 {
		s.SpawnLatencyP50 = quantile(c.spawnDigest, 0.50)
		s.SpawnLatencyP95 = quantile(c.spawnDigest, 0.95)
		s.SpawnLatencyP99 = quantile(c.spawnDigest, 0.99)
	}
	if c.releaseDigest.Count() > 0 {
		s.ReleaseWaitP50 = quantile(c.releaseDigest, 0.50)
		s.ReleaseWaitP95 = quantile(c.releaseDigest, 0.95)
		s.ReleaseWaitP99 = quantile(c.releaseDigest, 0.99)
	}
	return s
}

// Tracked returns the number of started processes not yet reaped.
func (c *Collector) Tracked() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tracked
}

// =============================================================================
// Text exposition
// =============================================================================

// WriteText writes the controller's metric families gathered from g in the
// Prometheus text format. Families from other collectors (go_*, process_*)
// are skipped.
func WriteText(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return err
	}
	for _, mf := range ownFamilies(families) {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}

func ownFamilies(families []*dto.MetricFamily) []*dto.MetricFamily {
	out := families[:0:0]
	for _, mf := range families {
		if strings.HasPrefix(mf.GetName(), namespace+"_") {
			out = append(out, mf)
		}
	}
	return out
}

// =============================================================================
// Helper Functions
// =============================================================================

func setQuantiles(g *prometheus.GaugeVec, td *tdigest.TDigest) {
	g.WithLabelValues("0.5").Set(td.Quantile(0.50))
	g.WithLabelValues("0.95").Set(td.Quantile(0.95))
	g.WithLabelValues("0.99").Set(td.Quantile(0.99))
}

func quantile(td *tdigest.TDigest, q float64) time.Duration {
	return time.Duration(td.Quantile(q) * float64(time.Second))
}
