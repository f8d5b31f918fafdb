package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"teamchat-backend/internal/config"
	"teamchat-backend/internal/handlers"
	"teamchat-backend/internal/hub"
	"teamchat-backend/internal/identity"
	"teamchat-backend/internal/keyValue"
	"teamchat-backend/internal/models"
	"teamchat-backend/internal/presence"
	"teamchat-backend/internal/snowflake"
	"teamchat-backend/internal/store"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func setupLogger(logToFile bool) (*zap.SugaredLogger, error) {
	config := zap.NewProductionConfig()
	if logToFile {
		config.OutputPaths = []string{"app.log", "stdout"}
	}
	config.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	logger, err := config.Build()
	if err != nil {
		return nil, err
	}

	return logger.Sugar(), nil
}

func setupRedis(cfg models.ConfigFile) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddress,
		Password: cfg.RedisPassword,
		DB:       0,
	})

	err := rdb.Ping(context.Background()).Err()
	if err != nil {
		return nil, err
	}

	return rdb, nil
}

func main() {
	fmt.Println("Reading config file...")
	cfg, err := config.Read("config.json")
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	fmt.Println("Setting up logger...")
	sugar, err := setupLogger(cfg.LogToFile)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	fmt.Println("Connecting to database...")
	db, err := store.Setup(&cfg, sugar)
	if err != nil {
		sugar.Fatal(err)
	}

	var redisClient *redis.Client
	if !cfg.SelfContained {
		fmt.Println("Connecting to redis...")
		redisClient, err = setupRedis(cfg)
		if err != nil {
			sugar.Fatal(err)
		}
	}

	keyValue.Setup(sugar, redisClient, cfg.SelfContained)

	tracker := presence.New(time.Duration(cfg.PresenceGraceSec)*time.Second, sugar)
	hub.Setup(sugar, redisClient, cfg.SelfContained, tracker)

	err = snowflake.Setup(cfg.SnowflakeWorkerID)
	if err != nil {
		sugar.Fatal(err)
	}

	isHttps := cfg.TlsCert != "" && cfg.TlsKey != ""
	identity.Setup(cfg.JwtSecret, isHttps)

	var httpProtocol string
	if isHttps {
		httpProtocol = "https"
	} else {
		httpProtocol = "http"
	}

	router := handlers.Setup(&cfg, sugar, db, tracker)

	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%s", cfg.Address, cfg.Port),
		Handler: router,
	}

	go func() {
		var err error
		if isHttps {
			err = server.ListenAndServeTLS(cfg.TlsCert, cfg.TlsKey)
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			sugar.Fatal(err)
		}
	}()

	fmt.Printf("Server is running on %s://%s:%s\n", httpProtocol, cfg.Address, cfg.Port)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	sugar.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		sugar.Error(err)
	}
	if err := db.Close(); err != nil {
		sugar.Error(err)
	}
}
