package main

import (
	"log"
	"strings"
	"time"

	"chat-widget-engine/internal/database"
	"chat-widget-engine/internal/devserver"
	"chat-widget-engine/internal/env"
	"chat-widget-engine/internal/httpserver"
	"chat-widget-engine/internal/queue"
	"chat-widget-engine/internal/session"
	"chat-widget-engine/internal/transport"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded: %v", err)
	}

	listenAddr := env.GetOrDefault(env.ListenAddr, ":8080")
	queueManager := queue.NewRequestQueueManager(10, 10)

	var redisClient *redis.Client
	if url := env.Get(env.ChatRedisURL); url != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     url,
			Password: env.Get(env.ChatRedisPass),
			DB:       0,
		})
	}

	var repo devserver.Repository
	if env.Get(env.DynamoDBEndpoint) != "" || env.Get(env.AWSRegion) != "" {
		db, err := database.NewDatabase()
		if err != nil {
			log.Fatalf("db init failed: %v", err)
		}
		repo = devserver.NewDynamoRepository(db, env.GetOrDefault(env.ConversationsTable, "widget_conversations"))
	} else {
		log.Printf("no DynamoDB configured, using in-memory repository")
		repo = devserver.NewMemoryRepository()
	}

	sessions := session.New(env.GetOrDefault(env.SessionSecret, "dev-secret"), session.DefaultTTL, redisClient)

	hub := devserver.NewHub()
	go hub.Run()
	handler := devserver.NewHandler(hub, redisClient)
	go handler.SubscribeToEventChannels()

	responder := devserver.NewResponder(repo, handler, "Sam", 800*time.Millisecond)

	config := devserver.BusinessConfig{
		BusinessID: env.GetOrDefault(env.BusinessID, "demo-business"),
		AgentName:  env.GetOrDefault(env.AgentName, "Nova"),
		Workflow: &transport.BootstrapResult{
			WorkflowActive:  true,
			WorkflowTrigger: "first_message",
			FirstStep: &transport.WorkflowStepPayload{
				Prompt: "Hi! What would you like help with?",
				Options: []transport.OptionPayload{
					{Value: "topic_orders", Label: "My order"},
					{Value: "topic_billing", Label: "Billing"},
					{Value: "topic_other", Label: "Something else"},
				},
			},
		},
		FAQs: []transport.FAQEntry{
			{Question: "What are your opening hours?", Answer: "We are open Monday to Friday, 9:00 to 17:00."},
			{Question: "How much does it cost?", Answer: "Pricing depends on the plan, the starter tier is free."},
		},
	}

	endpoints := devserver.NewWidgetEndpoints(repo, sessions, handler, responder, config)

	allowedOrigins := strings.Split(env.GetOrDefault(env.AllowedOrigins, "*"), ",")
	server := httpserver.NewServer(
		listenAddr,
		queueManager,
		allowedOrigins,
		devserver.Routes("/api/v1", endpoints, handler, sessions),
	)

	server.Run()
}
