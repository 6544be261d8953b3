package main

import (
	"context"

	bookingshandler "smartpark/internal/bookings/handler"
	bookingsrepository "smartpark/internal/bookings/repository"
	bookingsservice "smartpark/internal/bookings/service"
	bookingsvalidator "smartpark/internal/bookings/validator"
	chathandler "smartpark/internal/chat/handler"
	chatrepository "smartpark/internal/chat/repository"
	chatservice "smartpark/internal/chat/service"
	"smartpark/internal/chat/room"
	"smartpark/internal/chat/ws"
	"smartpark/internal/events"
	lotshandler "smartpark/internal/lots/handler"
	lotsrepository "smartpark/internal/lots/repository"
	lotsservice "smartpark/internal/lots/service"
	lotsvalidator "smartpark/internal/lots/validator"
	"smartpark/pkg/app"
	"smartpark/pkg/client"
	"smartpark/pkg/config"
	"smartpark/pkg/contracts"
	"smartpark/pkg/kafka"
	kafka_config "smartpark/pkg/kafka/config"
	kafka_middleware "smartpark/pkg/kafka/middleware"

	"github.com/julienschmidt/httprouter"
)

const ServiceName = "smartpark"

// apiRoutes groups the REST handlers into one registration unit.
type apiRoutes struct {
	handlers []contracts.Handler
}

func (a apiRoutes) RegisterRoutes(router *httprouter.Router) {
	for _, h := range a.handlers {
		h.RegisterRoutes(router)
	}
}

func main() {
	cfg := config.Load(ServiceName)

	cfg.Log.Info("Starting smartpark service")

	cfg.SetMongo()
	defer cfg.GracefulShutdown()

	publisher, producer := initPublisher(cfg)

	lotRepo := lotsrepository.NewMongoLotRepository(cfg)
	bookingRepo := bookingsrepository.NewMongoBookingRepository(cfg)
	lockRepo := bookingsrepository.NewBookingLockRepository(cfg)
	messageRepo := chatrepository.NewMongoMessageRepository(cfg)

	if err := lockRepo.EnsureIndexes(context.Background()); err != nil {
		cfg.Log.Fatal("Failed to create booking lock indexes", "error", err)
	}

	lotService := lotsservice.NewLotService(lotRepo, bookingRepo, lotsvalidator.NewLotValidator(), cfg)
	bookingService := bookingsservice.NewBookingService(
		bookingRepo,
		lockRepo,
		lotService,
		publisher,
		bookingsvalidator.NewBookingValidator(),
		cfg,
	)

	router := room.NewRouter(cfg.WSSendBuffer, cfg.Log)
	chatService := chatservice.NewChatService(messageRepo, bookingRepo, router, cfg)

	cfg.Log.Info("Services initialized", "database", cfg.MongoDatabaseName)

	api := apiRoutes{handlers: []contracts.Handler{
		lotshandler.NewLotHandler(lotService, cfg.Log),
		bookingshandler.NewBookingHandler(bookingService, cfg.Log),
		chathandler.NewChatHandler(chatService, cfg.Log),
	}}
	wsHandler := ws.NewHandler(chatService, router, cfg)
	verifier := client.NewIdentityClient(cfg.IdentityServiceURL)

	serverApp := app.NewApplication()
	serverApp.SetApp(cfg, verifier, api, wsHandler)
	if producer != nil {
		serverApp.OnShutdown(func() {
			if err := producer.Close(); err != nil {
				cfg.Log.Error("Failed to close Kafka producer", "error", err)
			}
		})
	}
	serverApp.Run()
}

// initPublisher returns the booking event publisher: Kafka-backed when
// enabled, otherwise a no-op.
func initPublisher(cfg *config.Config) (events.Publisher, *kafka.Producer) {
	if !cfg.KafkaEnabled {
		cfg.Log.Info("Kafka disabled, booking events will not be published")
		return events.NoopPublisher{}, nil
	}

	kafkaCfg := kafka_config.Load()
	if err := kafkaCfg.Validate(); err != nil {
		cfg.Log.Fatal("Invalid Kafka configuration", "error", err)
	}

	producer, err := kafka.NewProducer(kafkaCfg, cfg.BookingEventsTopic, kafkaCfg.DLQTopic)
	if err != nil {
		cfg.Log.Fatal("Failed to create Kafka producer", "error", err)
	}
	producer.Use(kafka_middleware.LoggingProducerMiddleware(cfg.Log))

	cfg.Log.Info("Kafka producer initialized",
		"brokers", kafkaCfg.Brokers,
		"topic", cfg.BookingEventsTopic,
	)
	return events.NewKafkaPublisher(producer, cfg.Log), producer
}
