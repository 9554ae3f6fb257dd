package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/mbeoliero/kit/log"
	"github.com/mbeoliero/smsdesk/internal/carrier"
	"github.com/mbeoliero/smsdesk/internal/config"
	"github.com/mbeoliero/smsdesk/internal/gateway"
	"github.com/mbeoliero/smsdesk/internal/handler"
	"github.com/mbeoliero/smsdesk/internal/metrics"
	"github.com/mbeoliero/smsdesk/internal/presence"
	"github.com/mbeoliero/smsdesk/internal/relay"
	"github.com/mbeoliero/smsdesk/internal/router"
	"github.com/mbeoliero/smsdesk/pkg/constant"
	"github.com/mbeoliero/smsdesk/pkg/idgen"
	"github.com/redis/go-redis/v9"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the config file")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.CtxError(ctx, "failed to load config: %v", err)
		panic(err)
	}

	log.CtxInfo(ctx, "config loaded: mode=%s, carrier=%s, delivery_policy=%s", cfg.Server.Mode, cfg.Carrier.Driver, cfg.Relay.DeliveryPolicy)

	constant.InitRedisKeyPrefix(cfg.Redis.KeyPrefix)

	rdb := newRedis(ctx, cfg)
	if rdb != nil {
		defer rdb.Close()
	}

	m := metrics.New()
	registry := presence.NewRegistry(rdb, cfg.Redis.PresenceTTL)

	submitter, err := newSubmitter(cfg)
	if err != nil {
		log.CtxError(ctx, "failed to create carrier: %v", err)
		panic(err)
	}

	msgRelay := relay.New(submitter, registry, m, relay.Options{
		From:           cfg.Carrier.From,
		DefaultRegion:  cfg.Carrier.DefaultRegion,
		SubmitTimeout:  cfg.Carrier.SubmitTimeout,
		DeliveryPolicy: cfg.Relay.DeliveryPolicy,
	})

	wsServer := gateway.NewWsServer(cfg, registry, msgRelay, m)
	msgRelay.SetBroadcaster(wsServer)
	wsServer.Run(ctx)

	handlers := &router.Handlers{
		Message:  handler.NewMessageHandler(msgRelay),
		Webhook:  handler.NewWebhookHandler(msgRelay),
		Presence: handler.NewPresenceHandler(registry, wsServer),
	}

	h := server.Default(
		server.WithHostPorts(fmt.Sprintf(":%d", cfg.Server.HTTPPort)),
	)

	router.SetupRouter(h, cfg, handlers, wsServer, m)

	log.CtxInfo(ctx, "server starting on port %d", cfg.Server.HTTPPort)

	go func() {
		h.Spin()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.CtxInfo(ctx, "shutting down server...")

	wsServer.CloseAll()
	if err := h.Shutdown(ctx); err != nil {
		log.CtxError(ctx, "server shutdown error: %v", err)
	}

	log.CtxInfo(ctx, "server stopped")
}

// newRedis connects the optional presence mirror. A failed ping disables it.
func newRedis(ctx context.Context, cfg *config.Config) *redis.Client {
	if !cfg.Redis.Enabled {
		return nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.CtxWarn(ctx, "redis unavailable, presence mirror disabled: addr=%s, error=%v", cfg.Redis.Addr(), err)
		rdb.Close()
		return nil
	}

	log.CtxInfo(ctx, "presence mirror enabled: addr=%s, prefix=%s", cfg.Redis.Addr(), constant.GetRedisKeyPrefix())
	return rdb
}

// newSubmitter builds the configured carrier driver behind the rate limiter and breaker
func newSubmitter(cfg *config.Config) (carrier.Submitter, error) {
	var next carrier.Submitter
	switch cfg.Carrier.Driver {
	case constant.CarrierTwilio:
		client, err := carrier.NewTwilioClient(carrier.TwilioConfig{
			BaseURL:           cfg.Carrier.BaseURL,
			AccountSid:        cfg.Carrier.AccountSid,
			AuthToken:         cfg.Carrier.AuthToken,
			StatusCallbackURL: cfg.Carrier.StatusCallbackURL,
		})
		if err != nil {
			return nil, err
		}
		next = client
	default:
		ids, err := idgen.NewSonyflakeGenerator(cfg.Carrier.MachineId, "SM")
		if err != nil {
			return nil, err
		}
		next = carrier.NewLoopback(ids)
	}

	return carrier.NewGuarded(next, carrier.GuardConfig{
		RatePerSecond:   cfg.Carrier.RatePerSecond,
		RateBurst:       cfg.Carrier.RateBurst,
		BreakerFailures: cfg.Carrier.BreakerFailures,
		BreakerOpenFor:  cfg.Carrier.BreakerOpenFor,
	}), nil
}
