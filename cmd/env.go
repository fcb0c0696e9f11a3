package main

import (
	"context"
	"os"
	"time"

	"github.com/k-capehart/go-salesforce/v3"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/solterra-energy/quote-cli/internal/quote"
	"github.com/solterra-energy/quote-cli/internal/relay"
	"github.com/solterra-energy/quote-cli/internal/sink"
	"github.com/solterra-energy/quote-cli/internal/store"
	"github.com/solterra-energy/quote-cli/pkg/geocode"
)

// appEnv holds the initialized store, sinks, and relay shared by the serve,
// flush, and status commands.
type appEnv struct {
	Store store.Store
	Sinks *sink.Multi
	Relay *relay.Relay
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initEnv sets up the store, downstream sinks, and the relay. Callers should
// defer env.Close().
func initEnv(ctx context.Context) (*appEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	sinks, err := initSinks()
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	r := relay.New(relay.Config{
		MaxRetries:       cfg.Queue.MaxRetries,
		MaxQueueSize:     cfg.Queue.MaxSize,
		MaxAge:           time.Duration(cfg.Queue.MaxAgeHours) * time.Hour,
		MinFlushInterval: time.Duration(cfg.Queue.MinFlushIntervalMs) * time.Millisecond,
		InitialBackoff:   time.Duration(cfg.Queue.InitialBackoffMs) * time.Millisecond,
		MaxBackoff:       time.Duration(cfg.Queue.MaxBackoffMs) * time.Millisecond,
	}, sinks, st)

	return &appEnv{Store: st, Sinks: sinks, Relay: r}, nil
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		path := cfg.Store.Path
		if path == "" {
			path = "quote.db"
		}
		return store.NewSQLite(path)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initSinks builds the configured downstream destinations. At least one must
// be configured for the relay to have somewhere to deliver.
func initSinks() (*sink.Multi, error) {
	var sinks []sink.Sink

	if cfg.Sinks.HTTP.Endpoint != "" {
		sinks = append(sinks, sink.NewHTTP(cfg.Sinks.HTTP.Endpoint))
	}
	if cfg.Sinks.XLSX.Path != "" {
		sinks = append(sinks, sink.NewXLSX(cfg.Sinks.XLSX.Path))
	}
	if cfg.Sinks.Notion.Token != "" && cfg.Sinks.Notion.LeadDB != "" {
		sinks = append(sinks, sink.NewNotion(cfg.Sinks.Notion.Token, cfg.Sinks.Notion.LeadDB))
	}
	if cfg.Sinks.Salesforce.ClientID != "" {
		sf, err := initSalesforce()
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, sink.NewSalesforce(sf))
	}

	if len(sinks) == 0 {
		return nil, eris.New("no sinks configured")
	}
	names := make([]string, len(sinks))
	for i, s := range sinks {
		names[i] = s.Name()
	}
	zap.L().Info("sinks configured", zap.Strings("sinks", names))
	return sink.NewMulti(sinks...), nil
}

func initSalesforce() (*salesforce.Salesforce, error) {
	pemData, err := os.ReadFile(cfg.Sinks.Salesforce.KeyPath)
	if err != nil {
		return nil, eris.Wrap(err, "read salesforce JWT private key")
	}

	sf, err := salesforce.Init(salesforce.Creds{
		Domain:         cfg.Sinks.Salesforce.LoginURL,
		Username:       cfg.Sinks.Salesforce.Username,
		ConsumerKey:    cfg.Sinks.Salesforce.ClientID,
		ConsumerRSAPem: string(pemData),
	})
	if err != nil {
		return nil, eris.Wrap(err, "init salesforce")
	}

	return sf, nil
}

// initGeocoder builds the address lookup client. Returns nil when Google is
// not configured; Census-only operation still works for forward search.
func initGeocoder() geocode.Client {
	opts := []geocode.Option{geocode.WithRateLimit(cfg.Geocode.RPS)}
	if cfg.Geocode.GoogleKey != "" {
		opts = append(opts, geocode.WithGoogleAPIKey(cfg.Geocode.GoogleKey))
	}
	return geocode.NewClient(opts...)
}

func quoteConfig() quote.Config {
	return quote.Config{
		CostPerFootUSD: cfg.Pricing.CostPerFootUSD,
		Sizing: quote.Sizing{
			PricePerKWh:    cfg.Pricing.PricePerKWh,
			CapacityFactor: cfg.Pricing.CapacityFactor,
			PanelWatts:     cfg.Pricing.PanelWatts,
		},
	}
}
