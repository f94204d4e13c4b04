package handlers

const (
	StatusMessage = "Mint Sentry is running. Watcher active!"
	HealthMessage = "API Service is running"
	PongMessage   = "pong"
	AwakeMessage  = "Bot is awake"
)
