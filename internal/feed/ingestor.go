package feed

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/jpillora/backoff"

	"github.com/alanyoungcy/polyarb/internal/domain"
	"github.com/alanyoungcy/polyarb/internal/metrics"
	"github.com/alanyoungcy/polyarb/internal/platform/polymarket"
)

// Conn is one live market-channel connection.
type Conn interface {
	Subscribe(tokenIDs []string) error
	ReadFrame() ([]byte, error)
	Close() error
}

// Dialer opens connections.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

type wsDialer struct {
	d polymarket.WSDialer
}

func (w wsDialer) Dial(ctx context.Context) (Conn, error) {
	conn, err := w.d.Dial(ctx)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// NewWSDialer returns a Dialer for the venue's market channel at url.
func NewWSDialer(url string) Dialer {
	return wsDialer{d: polymarket.WSDialer{URL: url}}
}

// Config configures an Ingestor.
type Config struct {
	Dialer         Dialer
	BufferSize     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Logger         *slog.Logger
}

var errResubscribe = errors.New("feed: resubscribe requested")

// Ingestor keeps a market-channel connection alive and emits PriceUpdates.
// Reconnection is unbounded; only context cancellation stops Run.
type Ingestor struct {
	dialer  Dialer
	updates chan domain.PriceUpdate
	machine *Machine
	backoff *backoff.Backoff
	logger  *slog.Logger

	mu     sync.Mutex
	tokens []string
	resub  chan struct{}

	// sleep waits for d or until ctx is done.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewIngestor creates an Ingestor.
func NewIngestor(cfg Config) *Ingestor {
	buf := cfg.BufferSize
	if buf <= 0 {
		buf = 1000
	}
	logger := cfg.Logger.With(slog.String("component", "feed"))
	return &Ingestor{
		dialer:  cfg.Dialer,
		updates: make(chan domain.PriceUpdate, buf),
		machine: NewMachine(func(from, to State) {
			metrics.FeedState.Set(float64(to))
			logger.Debug("feed state", slog.String("from", from.String()), slog.String("to", to.String()))
		}),
		backoff: newBackoff(cfg.InitialBackoff, cfg.MaxBackoff),
		logger:  logger,
		resub:   make(chan struct{}, 1),
		sleep:   sleepCtx,
	}
}

// Updates returns the stream of price updates. It is closed when Run returns.
func (i *Ingestor) Updates() <-chan domain.PriceUpdate {
	return i.updates
}

// State returns the current connection state.
func (i *Ingestor) State() State {
	return i.machine.Current()
}

// Resubscribe replaces the watched token set. The live connection, if any,
// is dropped and re-established immediately with the new set.
func (i *Ingestor) Resubscribe(tokenIDs []string) {
	i.mu.Lock()
	same := slices.Equal(i.tokens, tokenIDs)
	i.tokens = slices.Clone(tokenIDs)
	i.mu.Unlock()
	if same {
		return
	}
	select {
	case i.resub <- struct{}{}:
	default:
	}
}

func (i *Ingestor) watched() []string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return slices.Clone(i.tokens)
}

// Run connects, subscribes to tokenIDs and streams until ctx is cancelled.
func (i *Ingestor) Run(ctx context.Context, tokenIDs []string) error {
	defer close(i.updates)
	i.mu.Lock()
	i.tokens = slices.Clone(tokenIDs)
	i.mu.Unlock()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		tokens := i.watched()
		if len(tokens) == 0 {
			i.logger.Info("no tokens to watch, waiting for resubscribe")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-i.resub:
				continue
			}
		}

		// A resubscribe requested while disconnected is already reflected in tokens.
		select {
		case <-i.resub:
		default:
		}

		err := i.session(ctx, tokens)
		_ = i.machine.To(Disconnected)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, errResubscribe) {
			i.logger.Info("resubscribing with new token set")
			continue
		}

		delay := i.backoff.Duration()
		metrics.FeedReconnects.Inc()
		i.logger.Warn("feed disconnected, reconnecting",
			slog.String("error", err.Error()),
			slog.Duration("backoff", delay),
		)
		if err := i.sleep(ctx, delay); err != nil {
			return err
		}
	}
}

// session runs one connection from dial to the first error.
func (i *Ingestor) session(ctx context.Context, tokens []string) error {
	if err := i.machine.To(Connecting); err != nil {
		return err
	}
	i.logger.Info("connecting to market channel", slog.Int("tokens", len(tokens)))

	conn, err := i.dialer.Dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.Subscribe(tokens); err != nil {
		return err
	}
	if err := i.machine.To(Subscribed); err != nil {
		return err
	}
	if err := i.machine.To(Streaming); err != nil {
		return err
	}
	i.backoff.Reset()
	i.logger.Info("feed streaming", slog.Int("tokens", len(tokens)))

	// Closing the connection unblocks ReadFrame on cancel or resubscribe.
	stop := make(chan struct{})
	defer close(stop)
	var resubscribed bool
	var resubMu sync.Mutex
	go func() {
		select {
		case <-ctx.Done():
		case <-i.resub:
			resubMu.Lock()
			resubscribed = true
			resubMu.Unlock()
		case <-stop:
			return
		}
		conn.Close()
	}()

	for {
		frame, err := conn.ReadFrame()
		if err != nil {
			resubMu.Lock()
			r := resubscribed
			resubMu.Unlock()
			if r {
				return errResubscribe
			}
			return err
		}
		if err := i.dispatch(ctx, frame); err != nil {
			return err
		}
	}
}

// dispatch decodes one frame and forwards book updates. It blocks while the
// update buffer is full.
func (i *Ingestor) dispatch(ctx context.Context, frame []byte) error {
	for _, ev := range DecodeFrame(frame) {
		switch e := ev.(type) {
		case BookEvent:
			u, ok := e.PriceUpdate()
			if !ok {
				continue
			}
			select {
			case i.updates <- u:
				metrics.FeedUpdates.Inc()
			case <-ctx.Done():
				return ctx.Err()
			}
		case PriceChangeEvent:
			i.logger.Debug("price change",
				slog.String("asset_id", e.AssetID),
				slog.String("market", e.Market),
				slog.Int("changes", len(e.AllChanges())),
			)
		case LastTradeEvent:
			i.logger.Debug("last trade",
				slog.String("asset_id", e.AssetID),
				slog.String("price", e.Price),
				slog.String("size", e.Size),
			)
		case UnknownEvent:
			i.logger.Debug("unknown event type", slog.String("event_type", e.Type))
		}
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
