package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/nrednav/cuid2"

	"github.com/chatmirror/chatmirror/internal/boot"
	"github.com/chatmirror/chatmirror/internal/handlers"
	"github.com/chatmirror/chatmirror/internal/ingest"
	"github.com/chatmirror/chatmirror/internal/realtime"
	"github.com/chatmirror/chatmirror/internal/service/conversation"
	"github.com/chatmirror/chatmirror/internal/store"
)

func main() {
	config, err := boot.Load()
	if err != nil {
		log.Fatalf("boot: %+v", err)
	}

	messageStore, err := store.New(config.Database.DSN)
	if err != nil {
		log.Fatalf("opening message store: %+v", err)
	}
	defer messageStore.Close()

	hub := realtime.NewHub()
	pipeline := ingest.New(messageStore, hub)
	conversations := conversation.New(messageStore)

	server := echo.New()
	server.Use(middleware.BodyLimit("5M"))
	server.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: func() string {
			return cuid2.Generate()
		},
	}))
	server.Use(echoprometheus.NewMiddleware("chatmirror"))
	server.Use(middleware.Recover())

	server.Logger.SetLevel(log.INFO)

	headers := []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept}
	server.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{config.Server.Origins},
		AllowHeaders: headers,
	}))

	server.GET("/", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"ok": true, "msg": "chatmirror backend"})
	})

	// both webhook entry points feed the same pipeline
	server.POST("/webhook", handlers.Webhook(pipeline))
	server.POST("/api/webhook", handlers.Webhook(pipeline))

	server.GET("/api/conversations", handlers.Conversations(conversations))
	server.GET("/api/messages/:waID", handlers.Messages(conversations))
	server.POST("/api/messages/send", handlers.SendMessage(pipeline))

	server.GET("/ws", handlers.Subscribe(hub))

	go func() {
		metrics := echo.New()
		metrics.GET("/metrics", echoprometheus.NewHandler())
		if err := metrics.Start(":" + config.Metrics.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	go func() {
		if err := server.Start(":" + config.Server.Port); err != nil && err != http.ErrServerClosed {
			server.Logger.Fatal("shutting down the server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		server.Logger.Fatal(err)
	}
}
