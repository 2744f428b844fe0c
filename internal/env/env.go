package env

import (
	"os"
)

// Keys read by the widget binary.
const (
	APIBaseURL = "API_BASE_URL"
	SocketURL  = "SOCKET_URL"
	BusinessID = "WIDGET_BUSINESS_ID"
	AgentName  = "WIDGET_AGENT_NAME"
	StatePath  = "WIDGET_STATE_PATH"
)

// Keys read by the devserver binary.
const (
	ListenAddr         = "LISTEN_ADDR"
	AllowedOrigins     = "ALLOWED_ORIGINS"
	SessionSecret      = "SESSION_SECRET"
	ChatRedisURL       = "CHAT_REDIS_URL"
	ChatRedisPass      = "CHAT_REDIS_PASS"
	AWSRegion          = "AWS_REGION"
	AWSID              = "AWS_ID"
	AWSSecret          = "AWS_SECRET"
	AWSToken           = "AWS_TOKEN"
	DynamoDBEndpoint   = "DYNAMODB_ENDPOINT"
	ConversationsTable = "CONVERSATIONS_TABLE"
)

func Get(key string) string {
	return os.Getenv(key)
}

func GetOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func MustGet(key string) string {
	val := os.Getenv(key)
	if val == "" {
		panic("env: required environment variable not set: " + key)
	}
	return val
}
