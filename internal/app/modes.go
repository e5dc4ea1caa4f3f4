package app

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/depthlab/bookpulse/internal/analysis"
	"github.com/depthlab/bookpulse/internal/domain"
	"github.com/depthlab/bookpulse/internal/feed"
	"github.com/depthlab/bookpulse/internal/server"
	"github.com/depthlab/bookpulse/internal/server/handler"
	"github.com/depthlab/bookpulse/internal/server/ws"
	"github.com/depthlab/bookpulse/internal/service"
	"github.com/depthlab/bookpulse/internal/signal"
)

// shutdownTimeout bounds the graceful HTTP shutdown.
const shutdownTimeout = 10 * time.Second

// ProduceMode runs the periodic production loop, the live depth feed, and
// the retention archiver. No HTTP API is exposed.
func (a *App) ProduceMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting produce mode")

	producer, err := a.buildProducer(deps)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	a.startProduction(ctx, g, deps, producer)
	return g.Wait()
}

// ServeMode exposes the HTTP + WebSocket API over stored signals without
// producing new ones.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startServer(ctx, g, deps, nil)
	return g.Wait()
}

// OnceMode produces a signal for every configured instrument exactly once,
// prints the results as JSON to stdout, and exits.
func (a *App) OnceMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting one-shot mode")

	producer, err := a.buildProducer(deps)
	if err != nil {
		return err
	}
	svc, err := a.buildSignalService(deps, producer)
	if err != nil {
		return err
	}

	results := svc.RunOnce(ctx)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(results); err != nil {
		return fmt.Errorf("app: encode results: %w", err)
	}
	return nil
}

// FullMode runs production and the API server together.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	producer, err := a.buildProducer(deps)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	a.startProduction(ctx, g, deps, producer)
	a.startServer(ctx, g, deps, producer)
	return g.Wait()
}

// startProduction launches the signal loop, the depth feed, and the
// retention archiver on the group.
func (a *App) startProduction(ctx context.Context, g *errgroup.Group, deps *Dependencies, producer *signal.Producer) {
	svc, err := a.buildSignalService(deps, producer)
	if err != nil {
		g.Go(func() error { return err })
		return
	}
	g.Go(func() error {
		return svc.Run(ctx)
	})

	if a.cfg.Producer.StreamFeed && a.cfg.Binance.WsHost != "" {
		instruments, err := a.instruments()
		if err == nil && len(instruments) > 0 {
			depthFeed := feed.NewDepthFeed(a.cfg.Binance.WsHost, instruments, deps.BookCache, nil, a.logger)
			g.Go(func() error {
				defer depthFeed.Close()
				return depthFeed.Run(ctx)
			})
		}
	}

	if a.cfg.Archive.Enabled && deps.Archiver != nil {
		archiveSvc := service.NewArchiveService(service.ArchiveServiceConfig{
			RetentionDays: a.cfg.Archive.RetentionDays,
			Interval:      a.cfg.Archive.Interval.Duration,
			DeleteAfter:   a.cfg.Archive.DeleteAfter,
		}, deps.Archiver, deps.SignalStore, a.logger)
		g.Go(func() error {
			return archiveSvc.Run(ctx)
		})
	}
}

// startServer launches the WebSocket hub and the HTTP server on the group.
// producer may be nil, which disables on-demand analysis.
func (a *App) startServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, producer *signal.Producer) {
	if !a.cfg.Server.Enabled {
		a.logger.InfoContext(ctx, "http server disabled by configuration")
		return
	}

	startedAt := time.Now().UTC()

	hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{
		Mode:      a.cfg.Mode,
		Producer:  a.cfg.Producer.Name,
		StartedAt: startedAt,
	})
	g.Go(func() error {
		return hub.Run(ctx)
	})

	var onDemand handler.SignalProducer
	if producer != nil {
		onDemand = producer
	}

	handlers := server.Handlers{
		Health:    handler.NewHealthHandler(a.logger),
		Status:    handler.NewStatusHandler(a.cfg.Mode, a.cfg.Producer.Name, a.cfg.Producer.Instruments, startedAt),
		Signals:   handler.NewSignalHandler(deps.SignalStore, onDemand, a.logger),
		Orderbook: handler.NewOrderbookHandler(deps.BookCache, a.logger),
		Peers:     handler.NewPeerHandler(deps.PeerSignals, a.logger),
		Audit:     handler.NewAuditHandler(deps.AuditStore, a.logger),
	}
	if deps.BlobReader != nil {
		handlers.Archives = handler.NewArchiveHandler(deps.BlobReader, a.logger)
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		Limiter:     deps.RateLimiter,
		RateLimit:   a.cfg.Binance.RateLimit,
		RateWindow:  a.cfg.Binance.RateWindow.Duration,
	}, handlers, hub, a.logger)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

// buildProducer assembles the analysis pipeline from the configuration.
func (a *App) buildProducer(deps *Dependencies) (*signal.Producer, error) {
	if deps.Exchange == nil {
		return nil, fmt.Errorf("app: mode %q requires an exchange client", a.cfg.Mode)
	}

	analyzer := analysis.NewAnalyzer(a.analysisConfig(), a.logger)
	sanity := analysis.NewSanityChecker(a.sanityConfig(), a.logger)
	engine := signal.NewEngine(a.policyConfig(), deps.Refiner, a.logger)
	normalizer := signal.NewNormalizer(a.normalizerConfig(), a.logger)

	pipelineDeps := signal.Deps{
		Depth:    deps.Exchange,
		RefPrice: deps.Exchange,
	}
	if a.cfg.Producer.UseVolatility {
		pipelineDeps.Volatility = deps.Exchange
	}
	if a.cfg.Producer.PeerNormalizing {
		pipelineDeps.Peers = deps.PeerSignals
	}

	producerCfg := signal.ProducerConfig{
		Name:         a.cfg.Producer.Name,
		DepthLevels:  a.cfg.Producer.DepthLevels,
		FetchTimeout: a.cfg.Producer.FetchTimeout.Duration,
	}

	return signal.NewProducer(producerCfg, pipelineDeps, analyzer, sanity, engine, normalizer, a.logger), nil
}

// buildSignalService assembles the production loop around the producer.
func (a *App) buildSignalService(deps *Dependencies, producer *signal.Producer) (*service.SignalService, error) {
	instruments, err := a.instruments()
	if err != nil {
		return nil, err
	}

	cfg := service.SignalServiceConfig{
		Instruments:         instruments,
		Interval:            a.cfg.Producer.Interval.Duration,
		LockTTL:             a.cfg.Producer.LockTTL.Duration,
		PublishChannel:      a.cfg.Producer.PublishChannel,
		PublishStream:       a.cfg.Producer.PublishStream,
		NotifyMinConfidence: a.cfg.Notify.MinConfidence,
	}

	return service.NewSignalService(
		cfg,
		producer,
		deps.SignalStore,
		deps.PeerSignals,
		deps.SignalBus,
		deps.LockManager,
		deps.AuditStore,
		deps.Notifier,
		a.logger,
	), nil
}

// instruments normalizes the configured instrument symbols.
func (a *App) instruments() ([]domain.Instrument, error) {
	out := make([]domain.Instrument, 0, len(a.cfg.Producer.Instruments))
	for _, sym := range a.cfg.Producer.Instruments {
		inst, err := domain.NormalizeInstrument(sym)
		if err != nil {
			return nil, fmt.Errorf("app: instrument %q: %w", sym, err)
		}
		out = append(out, inst)
	}
	return out, nil
}

// analysisConfig maps the engine config section onto the analysis parameters,
// keeping library defaults for fields the file format does not expose.
func (a *App) analysisConfig() analysis.Config {
	cfg := analysis.DefaultConfig()
	e := a.cfg.Engine

	cfg.Cluster.BaseBinSizePercent = e.BaseBinSizePercent
	cfg.Cluster.MinVolatilityScale = e.MinVolatilityScale
	cfg.Cluster.MaxVolatilityScale = e.MaxVolatilityScale

	cfg.Zones.ClusterMultiplier = e.ZoneClusterMultiplier
	cfg.Zones.GapMultiplier = e.GapMultiplier

	cfg.LargeOrders.SpikeMultiplier = e.SpikeMultiplier
	cfg.LargeOrders.ZScoreThreshold = e.ZScoreThreshold
	cfg.LargeOrders.TrimFraction = e.TrimFraction
	cfg.LargeOrders.MinLevelsForStats = e.MinLevelsForStats
	cfg.LargeOrders.MaxPerSide = e.MaxOrdersPerSide

	return cfg
}

func (a *App) sanityConfig() analysis.SanityConfig {
	cfg := analysis.DefaultSanityConfig()
	e := a.cfg.Engine
	p := a.cfg.Policy

	cfg.MinZoneCount = e.MinZoneCount
	cfg.MinRatio = e.MinRatio
	cfg.MaxRatio = e.MaxRatio
	cfg.PressureLow = p.PressureLow
	cfg.PressureHigh = p.PressureHigh
	cfg.MinZoneDispersionPercent = e.MinZoneDispersionPercent
	cfg.MaxZoneStrength = e.MaxZoneStrength
	cfg.MaxGapZoneRatio = e.MaxGapZoneRatio

	return cfg
}

func (a *App) policyConfig() signal.PolicyConfig {
	cfg := signal.DefaultPolicyConfig()
	p := a.cfg.Policy

	cfg.PressureLow = p.PressureLow
	cfg.PressureHigh = p.PressureHigh
	cfg.StrongBuyRatio = p.StrongBuyRatio
	cfg.StrongSellRatio = p.StrongSellRatio
	cfg.ModerateBuyRatio = p.ModerateBuyRatio
	cfg.ModerateSellRatio = p.ModerateSellRatio
	cfg.HighVolStrongBuyRatio = p.HighVolStrongBuyRatio
	cfg.HighVolStrongSellRatio = p.HighVolStrongSellRatio
	cfg.HighVolModerateBuyRatio = p.HighVolModerateBuyRatio
	cfg.HighVolModerateSellRatio = p.HighVolModerateSellRatio
	cfg.HighVolatilityThreshold = p.HighVolatilityThreshold
	cfg.MediumDepth = p.MediumDepth
	cfg.HighConfidence = p.HighConfidence
	cfg.MediumConfidence = p.MediumConfidence
	cfg.NeutralConfidence = p.NeutralConfidence
	cfg.WideSpreadPercent = p.WideSpreadPercent

	return cfg
}

func (a *App) normalizerConfig() signal.NormalizerConfig {
	cfg := signal.DefaultNormalizerConfig()
	p := a.cfg.Policy

	cfg.MinConfidence = p.NormalizerMinConfidence
	cfg.MinPeers = p.NormalizerMinPeers
	cfg.Damping = p.NormalizerDamping

	return cfg
}
