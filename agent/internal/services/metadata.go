package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"mint-sentry/agent/internal/models"
	"mint-sentry/shared/env"
	"mint-sentry/shared/logger"
)

const dasHTTPTimeout = 25 * time.Second

type dasRequest struct {
	JsonRPC string                 `json:"jsonrpc"`
	ID      string                 `json:"id"`
	Method  string                 `json:"method"`
	Params  map[string]interface{} `json:"params"`
}

type dasAssetResponse struct {
	Result struct {
		ID      string `json:"id"`
		Content struct {
			Metadata struct {
				Name   string `json:"name"`
				Symbol string `json:"symbol"`
			} `json:"metadata"`
			Links struct {
				Image string `json:"image"`
			} `json:"links"`
		} `json:"content"`
		Grouping []struct {
			GroupKey   string `json:"group_key"`
			GroupValue string `json:"group_value"`
		} `json:"grouping"`
	} `json:"result"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// MetadataService resolves NFT display metadata and validates mint
// addresses. Helius DAS is preferred when an API key is configured, with the
// marketplace token endpoint as fallback. On-chain verification runs only
// when an RPC endpoint is configured; without one, tracking proceeds on
// format validation alone.
type MetadataService struct {
	market    *MarketplaceClient
	heliusKey string
	rpcClient *rpc.Client
	http      *http.Client
	appLogger *logger.Logger
}

func NewMetadataService(market *MarketplaceClient, appLogger *logger.Logger) *MetadataService {
	svc := &MetadataService{
		market:    market,
		heliusKey: env.HeliusAPIKey,
		http:      &http.Client{Timeout: dasHTTPTimeout},
		appLogger: appLogger,
	}

	if env.SolanaRPCURL != "" {
		client := rpc.New(env.SolanaRPCURL)
		if _, err := client.GetHealth(context.Background()); err != nil {
			appLogger.Warn("Solana RPC health check failed, on-chain mint verification disabled", "url", sanitizeRPCURL(env.SolanaRPCURL), "error", err)
		} else {
			svc.rpcClient = client
			appLogger.Info("Solana RPC client initialized", "url", sanitizeRPCURL(env.SolanaRPCURL))
		}
	}

	return svc
}

func sanitizeRPCURL(rawURL string) string {
	if idx := strings.Index(rawURL, "api-key="); idx != -1 {
		return rawURL[:idx+len("api-key=")] + "HIDDEN_FOR_LOGS"
	}
	return rawURL
}

// ValidateMint checks that mint is a well-formed base58 Solana public key.
func (ms *MetadataService) ValidateMint(mint string) error {
	if _, err := solana.PublicKeyFromBase58(mint); err != nil {
		return fmt.Errorf("invalid mint address %q: %w", mint, err)
	}
	return nil
}

// VerifyMintOnChain checks that an account exists for the mint. Without a
// configured RPC endpoint the check is skipped and the mint is accepted.
// RPC failures are reported as acceptance too; a flaky endpoint must not
// block tracking.
func (ms *MetadataService) VerifyMintOnChain(ctx context.Context, mint string) bool {
	if ms.rpcClient == nil {
		return true
	}

	pubKey, err := solana.PublicKeyFromBase58(mint)
	if err != nil {
		return false
	}

	out, err := ms.rpcClient.GetAccountInfo(ctx, pubKey)
	if err != nil {
		ms.appLogger.Warn("On-chain mint lookup failed, accepting mint without verification", "mint", mint, "error", err)
		return true
	}
	return out != nil && out.Value != nil
}

// TokenMetadata resolves name, image and collection for a mint. DAS results
// win when available; any DAS failure falls through to the marketplace.
func (ms *MetadataService) TokenMetadata(ctx context.Context, mint string) (models.TokenMetadata, error) {
	if ms.heliusKey != "" {
		meta, err := ms.fetchAssetViaDAS(ctx, mint)
		if err == nil {
			return meta, nil
		}
		ms.appLogger.Debug("DAS metadata lookup failed, falling back to marketplace", "mint", mint, "error", err)
	}
	return ms.market.TokenMetadata(ctx, mint)
}

func (ms *MetadataService) fetchAssetViaDAS(ctx context.Context, mint string) (models.TokenMetadata, error) {
	heliusURL := fmt.Sprintf("https://mainnet.helius-rpc.com/?api-key=%s", ms.heliusKey)

	payload := dasRequest{
		JsonRPC: "2.0",
		ID:      "mint-sentry-get-asset",
		Method:  "getAsset",
		Params: map[string]interface{}{
			"id": mint,
			"displayOptions": map[string]bool{
				"showUnverifiedCollections": false,
				"showCollectionMetadata":    false,
				"showFungible":              false,
				"showInscription":           false,
			},
		},
	}

	bodyBytes, err := json.Marshal(payload)
	if err != nil {
		return models.TokenMetadata{}, fmt.Errorf("marshal DAS request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, heliusURL, bytes.NewBuffer(bodyBytes))
	if err != nil {
		return models.TokenMetadata{}, fmt.Errorf("create DAS request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := ms.http.Do(req)
	if err != nil {
		return models.TokenMetadata{}, fmt.Errorf("call DAS API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.TokenMetadata{}, fmt.Errorf("DAS API returned status %d", resp.StatusCode)
	}

	var apiResp dasAssetResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return models.TokenMetadata{}, fmt.Errorf("decode DAS response: %w", err)
	}
	if apiResp.Error != nil {
		return models.TokenMetadata{}, fmt.Errorf("DAS API error %d: %s", apiResp.Error.Code, apiResp.Error.Message)
	}
	if apiResp.Result.ID == "" {
		return models.TokenMetadata{}, fmt.Errorf("DAS API returned no asset for %s", mint)
	}

	meta := models.TokenMetadata{
		Mint:  mint,
		Name:  apiResp.Result.Content.Metadata.Name,
		Image: apiResp.Result.Content.Links.Image,
	}
	for _, g := range apiResp.Result.Grouping {
		if g.GroupKey == "collection" {
			meta.Collection = g.GroupValue
			break
		}
	}
	return meta, nil
}
