// Command presenced tracks a subject's presence from activity events and
// publishes state changes to MQTT.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/sweeney/presenced/internal/activity"
	"github.com/sweeney/presenced/internal/config"
	"github.com/sweeney/presenced/internal/gpio"
	"github.com/sweeney/presenced/internal/mqtt"
	"github.com/sweeney/presenced/internal/presence"
	"github.com/sweeney/presenced/internal/status"
	"github.com/sweeney/presenced/internal/web"
)

type options struct {
	configPath  string
	printStates bool
	httpAddr    string
	broker      string
	fs          *pflag.FlagSet
}

func parseFlags(args []string) (*options, error) {
	fs := pflag.NewFlagSet("presenced", pflag.ContinueOnError)
	o := &options{fs: fs}
	fs.StringVarP(&o.configPath, "config", "c", "", "Config file, YAML or TOML (default $PRESENCE_CONFIG or ~/.config/presenced/config.yaml)")
	fs.BoolVar(&o.printStates, "print-states", false, "Print the ordered states and entry-state map and exit")
	fs.StringVar(&o.httpAddr, "http", "", `HTTP status address ("off" disables; overrides config)`)
	fs.StringVar(&o.broker, "broker", "", `MQTT broker URL ("off" disables; overrides config)`)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return o, nil
}

// apply overrides cfg with the flags that were set on the command line.
func (o *options) apply(cfg *config.Config) error {
	if o.fs.Changed("http") {
		cfg.HTTPAddr = offOr(o.httpAddr)
	}
	if o.fs.Changed("broker") {
		cfg.MQTT.Broker = offOr(o.broker)
	}
	return cfg.Validate()
}

func offOr(v string) string {
	if v == "off" {
		return ""
	}
	return v
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}
	if err := opts.apply(cfg); err != nil {
		log.Fatalf("fatal: invalid flags: %v", err)
	}

	if err := run(cfg, opts.printStates, os.Stdout); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func run(cfg *config.Config, printOnly bool, stdout io.Writer) error {
	defs, err := cfg.Definitions()
	if err != nil {
		return err
	}
	types, err := cfg.ActivityTypes()
	if err != nil {
		return err
	}

	// The initial state is entered by Start once the callbacks are wired.
	engine := presence.New()
	defer engine.Close()
	if _, err := engine.Init(defs, true); err != nil {
		return fmt.Errorf("init presence: %w", err)
	}

	if printOnly {
		printStates(stdout, engine)
		return nil
	}

	tracker := status.NewTracker(time.Now(), statusConfig(cfg, types), engine.States())

	var publisher mqtt.Publisher = mqtt.Nop{}
	var mqttStatus mqtt.ConnectionStatus = mqtt.Nop{}
	var remote *mqtt.RealPublisher
	if cfg.MQTT.Broker != "" {
		remote = mqtt.NewRealPublisher(mqtt.Options{
			Broker:     cfg.MQTT.Broker,
			ClientID:   cfg.MQTT.ClientID,
			Subject:    cfg.Subject,
			Topics:     mqtt.NewTopics(cfg.MQTT.TopicPrefix, cfg.Subject),
			BufferSize: cfg.MQTT.BufferSize,
		})
		defer remote.Close()
		publisher, mqttStatus = remote, remote
	}

	ingest := wire(engine, tracker, publisher, types)
	if remote != nil && cfg.MQTT.SubscribeActivity {
		remote.SubscribeActivity(remoteActivity(ingest))
	}

	var reader gpio.Reader
	lines := gpioLines(cfg.GPIO.Lines)
	if len(lines) > 0 {
		r, err := gpio.NewRealReader(cfg.GPIO.Chip, lines)
		if err != nil {
			return fmt.Errorf("init gpio: %w", err)
		}
		defer r.Close()
		reader = r
	}

	// Publish startup event with full status snapshot
	tracker.SetMQTTConnected(mqttStatus.IsConnected())
	snap := tracker.Snapshot()
	startupEvent := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := publisher.PublishSystem(startupEvent); err != nil {
		log.Printf("failed to publish startup event: %v", err)
	}

	if !cfg.StartDelayed {
		if err := engine.Start(nil); err != nil {
			return fmt.Errorf("start presence: %w", err)
		}
	}

	if cfg.HTTPAddr != "" {
		srv := web.New(cfg.HTTPAddr, tracker, ingest)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http status server listening on %s", cfg.HTTPAddr)
	}

	log.Printf("started: subject=%s states=%d lines=%d broker=%q heartbeat=%v",
		cfg.Subject, len(defs), len(lines), cfg.MQTT.Broker, cfg.Heartbeat)

	ticker := time.NewTicker(cfg.Poll)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	d := &daemon{
		engine:     engine,
		reader:     reader,
		detector:   gpio.NewDetector(lines, cfg.GPIO.Debounce),
		ingest:     ingest,
		publisher:  publisher,
		mqttStatus: mqttStatus,
		tracker:    tracker,
		heartbeat:  cfg.Heartbeat,
	}
	return d.runLoop(time.Now, ticker.C, sigCh)
}

// wire connects the classifier to the engine and the engine to the tracker
// and publisher. The returned func is the single entry point for raw events.
func wire(engine *presence.Engine, tracker *status.Tracker, publisher mqtt.Publisher, types []activity.Type) web.IngestFunc {
	engine.OnChange(func(s presence.State) {
		tracker.RecordTransition(s)
		log.Printf("presence: %s -> %s", orNone(s.EnteredFrom), s.Name)
		if err := publisher.Publish(presence.TransitionOf(s)); err != nil {
			log.Printf("publish error: %v", err)
		}
	})

	sink := activity.SinkFunc(func(t activity.Type) {
		tracker.RecordActivity(t)
		// With start_delayed the first activity enters the initial state.
		if _, ok := engine.Current(); !ok {
			if err := engine.Start(nil); err != nil {
				log.Printf("presence: start: %v", err)
			}
		}
		engine.RegisterAction(t)
	})
	classifier := activity.NewClassifier(sink, types...)

	return func(ev activity.RawEvent) (activity.Type, error) {
		t, err := classifier.Handle(ev)
		if err != nil {
			tracker.RecordIgnored()
		}
		return t, err
	}
}

// remoteActivity adapts ingest to MQTT activity messages.
func remoteActivity(ingest web.IngestFunc) mqtt.ActivityHandler {
	return func(ev activity.RawEvent) {
		if _, err := ingest(ev); err != nil {
			log.Printf("mqtt: activity: %v", err)
		}
	}
}

type daemon struct {
	engine     *presence.Engine
	reader     gpio.Reader // nil without configured lines
	detector   *gpio.Detector
	ingest     web.IngestFunc
	publisher  mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus
	tracker    *status.Tracker
	heartbeat  time.Duration
}

func (d *daemon) runLoop(now func() time.Time, tick <-chan time.Time, sig <-chan os.Signal) error {
	for {
		select {
		case s := <-sig:
			log.Printf("received %v, shutting down", s)
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}

			// Flushes pending notifications so the last transition is
			// published before SHUTDOWN.
			d.engine.Close()

			d.tracker.SetMQTTConnected(d.mqttStatus.IsConnected())
			snap := d.tracker.SnapshotAt(now())
			event := mqtt.SystemEvent{
				Timestamp:  snap.Now,
				Event:      "SHUTDOWN",
				Reason:     signalName,
				Retained:   true,
				RawPayload: status.FormatStatusEvent(snap, "SHUTDOWN", signalName),
			}
			if err := d.publisher.PublishSystem(event); err != nil {
				log.Printf("failed to publish shutdown event: %v", err)
			} else {
				log.Printf("published shutdown event")
			}
			return nil

		case <-tick:
			t := now()
			if d.reader != nil {
				d.pollGPIO(t)
			}

			d.tracker.SetMQTTConnected(d.mqttStatus.IsConnected())
			if d.tracker.CheckHeartbeat(t, d.heartbeat) {
				snap := d.tracker.SnapshotAt(t)
				log.Printf("heartbeat: uptime=%v state=%s transitions=%d",
					snap.Uptime(), snap.Current.Name, snap.TotalTransitions())

				hbEvent := mqtt.SystemEvent{
					Timestamp:  t,
					Event:      "HEARTBEAT",
					RawPayload: status.FormatStatusEvent(snap, "HEARTBEAT", ""),
				}
				if err := d.publisher.PublishSystem(hbEvent); err != nil {
					log.Printf("heartbeat publish error: %v", err)
				}
			}
		}
	}
}

func (d *daemon) pollGPIO(t time.Time) {
	levels, err := d.reader.Read()
	if err != nil {
		log.Printf("gpio read error: %v", err)
		return
	}
	for _, ev := range d.detector.Process(levels, t) {
		if _, err := d.ingest(ev); err != nil {
			log.Printf("gpio: %s: %v", ev.Type, err)
		}
	}
}

func gpioLines(conf []config.LineConfig) []gpio.Line {
	lines := make([]gpio.Line, len(conf))
	for i, l := range conf {
		lines[i] = gpio.Line{Name: l.Name, Pin: l.Pin, Event: l.Event, ActiveLow: l.ActiveLow}
	}
	return lines
}

func statusConfig(cfg *config.Config, types []activity.Type) status.Config {
	if len(types) == 0 {
		types = activity.All()
	}
	return status.Config{
		Subject:     cfg.Subject,
		Monitor:     types,
		PollMs:      cfg.Poll.Milliseconds(),
		DebounceMs:  cfg.GPIO.Debounce.Milliseconds(),
		HeartbeatMs: cfg.Heartbeat.Milliseconds(),
		Broker:      cfg.MQTT.Broker,
		HTTPAddr:    cfg.HTTPAddr,
		GPIOLines:   len(cfg.GPIO.Lines),
	}
}

// printStates writes the ordered states and the entry-state map.
func printStates(w io.Writer, engine *presence.Engine) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tENTER\tINITIAL\tACCEPT\tTEXT")
	initial := engine.InitialID()
	for _, s := range engine.States() {
		accept := "-"
		if len(s.Accept) > 0 {
			names := make([]string, len(s.Accept))
			for i, a := range s.Accept {
				names[i] = string(a)
			}
			accept = strings.Join(names, ",")
		}
		mark := ""
		if s.ID == initial {
			mark = "*"
		}
		fmt.Fprintf(tw, "%d\t%s\t%v\t%s\t%s\t%s\n", s.ID, s.Name, s.Enter, mark, accept, s.Text)
	}
	tw.Flush()

	entry := engine.EntryStates()
	parts := make([]string, 0, len(activity.All()))
	for _, t := range activity.All() {
		parts = append(parts, fmt.Sprintf("%s->%d", t, entry[t]))
	}
	sort.Strings(parts)
	fmt.Fprintf(w, "entry states: %s\n", strings.Join(parts, " "))
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}
