package main

import (
	"context"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/capitalize-ai/concierge-platform/internal/broker"
	"github.com/capitalize-ai/concierge-platform/internal/cache"
	"github.com/capitalize-ai/concierge-platform/internal/channel"
	"github.com/capitalize-ai/concierge-platform/internal/config"
	"github.com/capitalize-ai/concierge-platform/internal/events"
	"github.com/capitalize-ai/concierge-platform/internal/knowledge"
	"github.com/capitalize-ai/concierge-platform/internal/llm"
	natsclient "github.com/capitalize-ai/concierge-platform/internal/nats"
	"github.com/capitalize-ai/concierge-platform/internal/nlp"
	"github.com/capitalize-ai/concierge-platform/internal/store"
	"github.com/capitalize-ai/concierge-platform/pkg/logger"
	"github.com/capitalize-ai/concierge-platform/pkg/tracing"
)

// setupStore opens Postgres, or an in-memory store when no DSN is set.
func setupStore(ctx context.Context, cfg *config.Config, log *logger.Logger) (store.Store, error) {
	if cfg.DatabaseURL == "" {
		log.Warn("DATABASE_URL not set, using in-memory store")
		return store.NewMemory(), nil
	}
	return store.NewPostgres(ctx, store.PostgresConfig{
		DSN:         cfg.DatabaseURL,
		AutoMigrate: cfg.DBAutoMigrate,
	})
}

// setupCache connects Redis, or an in-memory cache when no address is set.
func setupCache(ctx context.Context, cfg *config.Config, log *logger.Logger) (cache.Cache, error) {
	if cfg.RedisAddr == "" {
		log.Warn("REDIS_ADDR not set, using in-memory session cache")
		return cache.NewMemory(), nil
	}
	return cache.NewRedis(ctx, cache.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
}

// messageBus holds the optional broker connections.
type messageBus struct {
	nats     *natsclient.Client
	rabbit   *broker.RabbitPublisher
	events   events.Sink
	outbound channel.Sink
}

func (b *messageBus) Close() {
	if b.rabbit != nil {
		b.rabbit.Close()
	}
	if b.nats != nil {
		b.nats.Close()
	}
}

// setupBus connects JetStream and RabbitMQ when configured. Analytics
// events go to every connected broker.
func setupBus(ctx context.Context, cfg *config.Config, log *logger.Logger) (*messageBus, error) {
	bus := &messageBus{}
	var sinks events.Fanout

	if cfg.NATSURL != "" {
		nc, err := natsclient.Connect(ctx, natsclient.Config{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
			Name:     serviceName,
		}, log)
		if err != nil {
			return nil, err
		}
		bus.nats = nc

		streams := natsclient.NewStreamManager(nc, natsclient.StreamConfig{})
		if err := streams.EnsureStream(ctx); err != nil {
			bus.Close()
			return nil, err
		}
		sinks = append(sinks, events.NewJetStreamSink(streams))
	}

	if cfg.AMQPURL != "" {
		pub, err := broker.Dial(ctx, broker.Config{URL: cfg.AMQPURL, Exchange: cfg.AMQPExchange}, log)
		if err != nil {
			bus.Close()
			return nil, err
		}
		bus.rabbit = pub
		sinks = append(sinks, events.NewAMQPSink(pub, serviceName))
		bus.outbound = channel.NewAMQPSink(pub, serviceName)
	} else {
		log.Warn("AMQP_URL not set, sms and whatsapp delivery disabled")
	}

	if len(sinks) == 0 {
		log.Warn("no event broker configured, analytics events are dropped")
		bus.events = events.Nop{}
	} else {
		bus.events = sinks
	}
	return bus, nil
}

// setupLLM returns the reply generator and the terminal cascade stage.
// Both are nil when no provider key is configured.
func setupLLM(cfg *config.Config, log *logger.Logger) (nlp.Generator, *nlp.Stage) {
	provider := llm.Provider(cfg.DefaultLLM)
	key := cfg.AnthropicAPIKey
	if provider == llm.ProviderOpenAI {
		key = cfg.OpenAIAPIKey
	}
	if key == "" {
		log.Warn("no LLM API key configured, LLM features disabled", zap.String("provider", string(provider)))
		return nil, nil
	}

	client, err := llm.NewClient(provider, key, cfg.LLMModel)
	if err != nil {
		log.Warn("failed to create LLM client, LLM features disabled", zap.Error(err))
		return nil, nil
	}

	m := nlp.NewLLM(client, cfg.LLMModel, cfg.LLMTemperature)
	return m, &nlp.Stage{
		Name:       client.Name(),
		Classifier: m,
		Timeout:    cfg.LLMTimeout,
		Terminal:   true,
	}
}

// setupCascade orders the classifiers cheapest first: exact phrases, then
// Rasa and Dialogflow when configured, then the LLM.
func setupCascade(ctx context.Context, cfg *config.Config, llmStage *nlp.Stage, log *logger.Logger) *nlp.Cascade {
	stages := []nlp.Stage{
		{Name: "exact", Classifier: nlp.NewExactMatcher(nil)},
	}

	httpClient := tracing.HTTPClient(cfg.ProviderTimeout)
	if cfg.RasaURL != "" {
		stages = append(stages, nlp.Stage{
			Name:       "rasa",
			Classifier: nlp.NewRasaClassifier(cfg.RasaURL, cfg.RasaToken, httpClient),
			Threshold:  cfg.RasaThreshold,
			Timeout:    cfg.ProviderTimeout,
		})
	}
	if cfg.DialogflowProjectID != "" {
		dfClient, err := nlp.NewDialogflowHTTPClient(ctx, httpClient, cfg.DialogflowToken)
		if err != nil {
			log.Warn("dialogflow disabled", zap.Error(err))
		} else {
			stages = append(stages, nlp.Stage{
				Name: "dialogflow",
				Classifier: nlp.NewDialogflowClassifier(nlp.DialogflowConfig{
					ProjectID:    cfg.DialogflowProjectID,
					LanguageCode: cfg.DialogflowLanguage,
				}, dfClient),
				Threshold: cfg.DialogflowThreshold,
				Timeout:   cfg.ProviderTimeout,
			})
		}
	}
	if llmStage != nil {
		stages = append(stages, *llmStage)
	}

	cascade := nlp.NewCascade(log, stages...)
	log.Info("classification cascade ready", zap.Strings("stages", cascade.Stages()))
	return cascade
}

// setupRetriever uses Elasticsearch kNN search when it and an embedding
// key are configured, otherwise keyword search over the store.
func setupRetriever(ctx context.Context, cfg *config.Config, st store.Store, log *logger.Logger) knowledge.Retriever {
	fallback := knowledge.NewStoreRetriever(st, knowledge.DefaultTopK)
	if len(cfg.ElasticAddresses) == 0 || cfg.OpenAIAPIKey == "" {
		return fallback
	}

	embedder, err := knowledge.NewOpenAIEmbedder(cfg.OpenAIAPIKey, cfg.EmbeddingModel)
	if err != nil {
		log.Warn("failed to create embedder, using store search", zap.Error(err))
		return fallback
	}
	es, err := knowledge.NewElasticRetriever(knowledge.ElasticConfig{
		Addresses: cfg.ElasticAddresses,
		Username:  cfg.ElasticUsername,
		Password:  cfg.ElasticPassword,
		Index:     cfg.ElasticIndex,
	}, embedder)
	if err != nil {
		log.Warn("failed to create elasticsearch client, using store search", zap.Error(err))
		return fallback
	}
	if err := es.EnsureIndex(ctx); err != nil {
		log.Warn("failed to ensure knowledge index, using store search", zap.Error(err))
		return fallback
	}
	return es
}

// originPatterns turns CORS origins into the host patterns the WebSocket
// origin check expects.
func originPatterns(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			out = append(out, u.Host)
			continue
		}
		out = append(out, strings.TrimPrefix(strings.TrimPrefix(o, "https://"), "http://"))
	}
	return out
}
