package env

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

var (
	TelegramBotToken string
	TelegramGroupID  int64

	SolanaRPCURL string
	HeliusAPIKey string

	MarketplaceAPIURL string

	WatchCollectionSymbol string
	WatchChatID           int64

	Port string
)

func loadEnvVariable(key string, isRequired bool) string {
	value := os.Getenv(key)
	if isRequired && value == "" {
		log.Fatalf("FATAL: Environment variable %s is required but not set.", key)
	}
	isHidden := key == "TELEGRAM_BOT_TOKEN" || key == "HELIUS_API_KEY" || key == "SOLANA_RPC_URL"
	if value == "" {
		if !isRequired {
			log.Printf("INFO: Environment variable %s is not set.", key)
		}
	} else if isHidden {
		log.Printf("INFO: Loaded %s (value hidden)", key)
	} else {
		log.Printf("INFO: Loaded %s = %s", key, value)
	}
	return value
}

func loadInt64Env(key string, required bool) int64 {
	strValue := loadEnvVariable(key, required)
	if strValue == "" {
		return 0
	}
	id, err := strconv.ParseInt(strValue, 10, 64)
	if err != nil {
		log.Fatalf("FATAL: Failed to parse int64 environment variable %s='%s': %v", key, strValue, err)
	}
	return id
}

// LoadEnv pulls the process environment (plus .env when present) into the
// package variables above. Only the bot token is hard-required; everything
// else degrades a feature rather than the process.
func LoadEnv() error {
	err := godotenv.Load()
	if err != nil {
		log.Println("INFO: .env file not found or error loading, relying on system environment variables.")
	} else {
		log.Println("INFO: .env file loaded successfully.")
	}

	TelegramBotToken = loadEnvVariable("TELEGRAM_BOT_TOKEN", true)
	TelegramGroupID = loadInt64Env("TELEGRAM_GROUP_ID", false)

	SolanaRPCURL = loadEnvVariable("SOLANA_RPC_URL", false)
	HeliusAPIKey = loadEnvVariable("HELIUS_API_KEY", false)

	MarketplaceAPIURL = loadEnvVariable("MARKETPLACE_API_URL", false)
	if MarketplaceAPIURL == "" {
		MarketplaceAPIURL = "https://api-mainnet.magiceden.dev/v2"
		log.Printf("INFO: MARKETPLACE_API_URL not set, defaulting to %s", MarketplaceAPIURL)
	}

	WatchCollectionSymbol = loadEnvVariable("WATCH_COLLECTION_SYMBOL", false)
	WatchChatID = loadInt64Env("WATCH_CHAT_ID", false)

	Port = loadEnvVariable("PORT", false)
	if Port == "" {
		Port = "8080"
		log.Printf("INFO: PORT not set, defaulting to %s", Port)
	}

	if TelegramGroupID == 0 {
		log.Println("WARN: TELEGRAM_GROUP_ID is missing or zero. Telegram log mirroring is unavailable.")
	}
	if SolanaRPCURL == "" {
		log.Println("INFO: SOLANA_RPC_URL not set. On-chain mint verification is disabled.")
	}
	if HeliusAPIKey == "" {
		log.Println("INFO: HELIUS_API_KEY not set. Asset metadata will come from the marketplace API.")
	}
	if WatchCollectionSymbol == "" || WatchChatID == 0 {
		log.Println("INFO: WATCH_COLLECTION_SYMBOL/WATCH_CHAT_ID not set. The scheduled sale feed is disabled.")
	}

	log.Println("INFO: Environment variables loading process complete.")
	return nil
}
