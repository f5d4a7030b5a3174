package gateway

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
	"unicode/utf8"

	"github.com/stellarlinkco/digestbot/internal/bus"
	"github.com/stellarlinkco/digestbot/internal/channel"
	"github.com/stellarlinkco/digestbot/internal/config"
	"github.com/stellarlinkco/digestbot/internal/cron"
	"github.com/stellarlinkco/digestbot/internal/store"
	"github.com/stellarlinkco/digestbot/internal/summary"
	"github.com/stellarlinkco/digestbot/internal/trigger"
)

const (
	greeting      = "Ciao! Lo voi l'pallone? Io ti posso aiutare a sintetizzare le conversazioni, e ti posso dire di che cosa si è parlato oggi."
	chatIDReply   = "Ho capito.. alora l'ID della chat è: %s"
	noDestination = "Mi dispiace, ma tu l'ID non l'è messo."
)

const (
	cmdStart     = "start"
	cmdGetChatID = "getchatid"
	cmdSummarize = "riassumi"
)

// DayLayout is the calendar-day key format used by the log.
const DayLayout = "2006-01-02"

// Options for creating a Gateway
type Options struct {
	CompleterSource summary.CompleterSource
	Store           store.Store
	Now             func() time.Time
	SignalChan      chan os.Signal // for testing signal handling
}

// Destination is the conversation receiving automatic summaries. It lives
// in memory only.
type Destination struct {
	mu      sync.RWMutex
	channel string
	chatID  string
}

func (d *Destination) Set(channel, chatID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.channel = channel
	d.chatID = chatID
}

func (d *Destination) Get() (channel, chatID string, ok bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.channel, d.chatID, d.chatID != ""
}

type Gateway struct {
	cfg        *config.Config
	bus        *bus.MessageBus
	store      store.Store
	summarizer *summary.Summarizer
	trigger    trigger.Trigger
	cron       *cron.Service
	channels   *channel.ChannelManager
	dest       *Destination
	fires      chan cron.Job
	loc        *time.Location
	now        func() time.Time
	signalChan chan os.Signal // for testing

	stopLoop context.CancelFunc
	loopDone chan struct{}
}

// New creates a Gateway with default options
func New(cfg *config.Config) (*Gateway, error) {
	return NewWithOptions(cfg, Options{})
}

// NewWithOptions creates a Gateway with custom options for testing
func NewWithOptions(cfg *config.Config, opts Options) (*Gateway, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	trig, err := trigger.New(cfg.Trigger)
	if err != nil {
		return nil, fmt.Errorf("create trigger: %w", err)
	}

	g := &Gateway{
		cfg:        cfg,
		bus:        bus.NewMessageBus(config.DefaultBufSize),
		trigger:    trig,
		dest:       &Destination{},
		fires:      make(chan cron.Job, 4),
		loc:        loc,
		now:        opts.Now,
		signalChan: opts.SignalChan,
	}
	if g.now == nil {
		g.now = time.Now
	}

	g.store = opts.Store
	if g.store == nil {
		st, err := store.Open(cfg.Store)
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		g.store = st
	}

	source := opts.CompleterSource
	if source == nil {
		source = summary.NewSource(cfg)
	}
	g.summarizer = summary.New(g.store, source, summary.OptionsFromConfig(cfg.Summary))

	// Scheduler callbacks only hand the fire to the event loop.
	g.cron = cron.NewService(loc)
	g.cron.OnJob = func(job cron.Job) {
		select {
		case g.fires <- job:
		default:
			log.Printf("[gateway] fire %s dropped, summaries already pending", job.Name)
		}
	}

	chMgr, err := channel.NewChannelManager(cfg.Channels, g.bus)
	if err != nil {
		_ = g.store.Close()
		return nil, fmt.Errorf("create channel manager: %w", err)
	}
	g.channels = chMgr

	if chatID := cfg.Channels.Telegram.ChatID; chatID != "" {
		g.dest.Set("telegram", chatID)
	}

	return g, nil
}

// Destination exposes the current summary destination.
func (g *Gateway) Destination() *Destination {
	return g.dest
}

func (g *Gateway) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	for _, d := range config.Diagnostics(g.cfg) {
		log.Printf("[gateway] warning: %s", d)
	}

	go g.bus.DispatchOutbound(ctx)

	if err := g.channels.StartAll(ctx); err != nil {
		return fmt.Errorf("start channels: %w", err)
	}
	log.Printf("[gateway] channels started: %v", g.channels.EnabledChannels())

	if err := g.cron.Start(ctx); err != nil {
		log.Printf("[gateway] cron start warning: %v", err)
	}
	if _, err := g.trigger.Install(g.cron); err != nil {
		log.Printf("[gateway] install trigger warning: %v", err)
	}
	log.Printf("[gateway] trigger %s", g.trigger.Name())
	for _, job := range g.cron.ListJobs() {
		log.Printf("[gateway] job %s, next summary at %s", job.Name, g.cron.NextRun(job.ID).Format(time.RFC3339))
	}

	g.startLoop(ctx)

	log.Printf("[gateway] running, log at %s (%s)", g.cfg.Store.Path, g.cfg.Store.Backend)

	// Use injected signal channel for testing, or create default
	sigCh := g.signalChan
	if sigCh == nil {
		sigCh = make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	}
	<-sigCh

	log.Printf("[gateway] shutting down...")
	return g.Shutdown()
}

// startLoop runs processLoop until Shutdown stops it.
func (g *Gateway) startLoop(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	g.stopLoop = cancel
	g.loopDone = make(chan struct{})
	go func() {
		defer close(g.loopDone)
		g.processLoop(ctx)
	}()
}

// processLoop is the only goroutine touching the log, the trigger and the
// destination during normal operation.
func (g *Gateway) processLoop(ctx context.Context) {
	for {
		select {
		case msg := <-g.bus.Inbound:
			g.handleInbound(ctx, msg)
		case job := <-g.fires:
			log.Printf("[gateway] scheduled fire: %s", job.Name)
			g.autoSummary(ctx, job.Name)
		case <-ctx.Done():
			return
		}
	}
}

func (g *Gateway) handleInbound(ctx context.Context, msg bus.InboundMessage) {
	if msg.IsCommand() {
		g.handleCommand(ctx, msg)
		return
	}
	if msg.Content == "" {
		return
	}

	day := g.today()
	if err := g.store.Append(day, msg.SenderName+": "+msg.Content); err != nil {
		log.Printf("[gateway] record message failed: %v", err)
		return
	}
	log.Printf("[gateway] recorded %s/%s on %s: %s", msg.Channel, msg.SenderID, day, truncate(msg.Content, 80))

	if g.trigger.Observe() {
		log.Printf("[gateway] %s reached", g.trigger.Name())
		g.autoSummary(ctx, g.trigger.Name())
	}
}

func (g *Gateway) handleCommand(ctx context.Context, msg bus.InboundMessage) {
	switch msg.Command {
	case cmdStart:
		g.reply(msg, greeting)
	case cmdGetChatID:
		g.dest.Set(msg.Channel, msg.ChatID)
		log.Printf("[gateway] destination set to %s/%s", msg.Channel, msg.ChatID)
		g.reply(msg, fmt.Sprintf(chatIDReply, msg.ChatID))
	case cmdSummarize:
		if !g.cfg.Summary.OnDemand {
			return
		}
		if _, _, ok := g.dest.Get(); !ok && g.cfg.Summary.RequireDestination {
			g.reply(msg, noDestination)
			return
		}
		g.summarizeTo(ctx, msg.Channel, msg.ChatID)
		g.trigger.Reset()
	default:
		log.Printf("[gateway] ignoring command /%s from %s", msg.Command, msg.SenderID)
	}
}

// autoSummary handles a trigger fire. Without a destination it does nothing
// beyond restarting the trigger window.
func (g *Gateway) autoSummary(ctx context.Context, reason string) {
	defer g.trigger.Reset()

	ch, chatID, ok := g.dest.Get()
	if !ok {
		log.Printf("[gateway] %s: no destination set, skipping summary", reason)
		return
	}
	g.summarizeTo(ctx, ch, chatID)
}

func (g *Gateway) summarizeTo(ctx context.Context, ch, chatID string) {
	res, err := g.summarizer.Summarize(ctx, g.today())
	if err != nil {
		log.Printf("[gateway] summary error: %v", err)
		if !errors.Is(err, summary.ErrNotCleared) {
			return
		}
	}
	if !res.Empty {
		log.Printf("[gateway] summarized %s: kept %d, dropped %d, failed=%v", res.Day, res.Kept, res.Dropped, res.Failed)
	}
	g.bus.Outbound <- bus.OutboundMessage{
		Channel: ch,
		ChatID:  chatID,
		Content: res.Message(),
	}
}

func (g *Gateway) reply(msg bus.InboundMessage, content string) {
	g.bus.Outbound <- bus.OutboundMessage{
		Channel: msg.Channel,
		ChatID:  msg.ChatID,
		Content: content,
		ReplyTo: msg.MessageID,
	}
}

func (g *Gateway) today() string {
	return g.now().In(g.loc).Format(DayLayout)
}

func (g *Gateway) Shutdown() error {
	g.cron.Stop()
	_ = g.channels.StopAll()
	// The loop may be mid-summary; the store stays open until it returns.
	if g.stopLoop != nil {
		g.stopLoop()
		<-g.loopDone
	}
	if err := g.store.Close(); err != nil {
		log.Printf("[gateway] close store warning: %v", err)
	}
	log.Printf("[gateway] shutdown complete")
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
