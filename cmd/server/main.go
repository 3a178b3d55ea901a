package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/durantgrace/phoneotp/internal/config"
	"github.com/durantgrace/phoneotp/internal/handlers"
	"github.com/durantgrace/phoneotp/internal/middleware"
	"github.com/durantgrace/phoneotp/internal/repository"
	"github.com/durantgrace/phoneotp/internal/service"
	"github.com/durantgrace/phoneotp/internal/sms"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.InfoLevel)

	if err := godotenv.Load(); err != nil {
		logger.Debug("No .env file found, using process environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}
	configureLogger(logger, cfg.Log)

	ctx := context.Background()

	store, closeStore, err := initStore(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize OTP store")
	}
	defer closeStore()

	sender, err := initSender(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize SMS provider")
	}

	// Verification tokens are optional
	var jwtService *service.JWTService
	var verification *middleware.VerificationMiddleware
	if cfg.JWT.SecretKey != "" {
		jwtService, err = service.NewJWTService(&cfg.JWT, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to initialize JWT service")
		}
		verification = middleware.NewVerificationMiddleware(jwtService, logger)
	}

	otpService, err := service.NewOTPService(store, sender, jwtService, &cfg.OTP, &cfg.SMS, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize OTP service")
	}

	router := handlers.NewRouter(
		handlers.NewOTPHandlers(otpService, store, logger),
		verification,
		cfg.Server.AllowedOrigins,
		logger,
	)

	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.WithFields(logrus.Fields{
			"addr":         srv.Addr,
			"store":        cfg.Store.Backend,
			"sms_provider": cfg.SMS.Provider,
			"code_source":  cfg.OTP.CodeSource,
		}).Info("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}

	logger.Info("Server exited")
}

func configureLogger(logger *logrus.Logger, cfg config.LogConfig) {
	if cfg.Format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		logger.WithField("level", cfg.Level).Warn("Unknown log level, using info")
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
}

func initStore(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (repository.Store, func(), error) {
	switch cfg.Store.Backend {
	case config.StoreDynamoDB:
		client, err := initDynamoDB(ctx, cfg, logger)
		if err != nil {
			return nil, nil, err
		}
		return repository.NewDynamoStore(client, cfg.DynamoDB.TableName, logger), func() {}, nil
	default:
		client, err := repository.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("Redis client initialized")
		return repository.NewRedisStore(client, logger), func() { client.Close() }, nil
	}
}

func initDynamoDB(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*dynamodb.Client, error) {
	var awsCfg aws.Config
	var err error

	if cfg.DynamoDB.Endpoint != "" {
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(cfg.DynamoDB.Region),
			awsconfig.WithEndpointResolverWithOptions(aws.EndpointResolverWithOptionsFunc(
				func(service, region string, options ...interface{}) (aws.Endpoint, error) {
					return aws.Endpoint{
						URL:           cfg.DynamoDB.Endpoint,
						SigningRegion: cfg.DynamoDB.Region,
					}, nil
				})),
		)
	} else {
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.DynamoDB.Region))
	}

	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := dynamodb.NewFromConfig(awsCfg)
	logger.WithField("table", cfg.DynamoDB.TableName).Info("DynamoDB client initialized")
	return client, nil
}

func initSender(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (sms.Sender, error) {
	switch cfg.SMS.Provider {
	case config.ProviderSemaphore:
		return sms.NewSemaphoreSender(cfg.SMS.SemaphoreBaseURL, cfg.SMS.SemaphoreAPIKey, logger), nil
	case config.ProviderSNS:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.SMS.SNSRegion))
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		return sms.NewSNSSender(sns.NewFromConfig(awsCfg), logger), nil
	default:
		logger.Warn("SMS provider is console, codes are written to the log")
		return sms.NewConsoleSender(logger), nil
	}
}
