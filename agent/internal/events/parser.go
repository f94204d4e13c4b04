package events

import "mint-sentry/agent/internal/models"

// buyActivityType is the marketplace's label for a completed purchase.
const buyActivityType = "buyNow"

// ParseBuyActivity attempts to extract a completed sale from one raw
// marketplace activity entry. The activity feed's shape drifts upstream, so
// entries are decoded loosely and validated here: anything that is not a buy,
// or that is missing the signature, a positive price, or a block timestamp,
// is rejected. It returns the sale and true if the entry qualifies,
// otherwise a zero value and false.
func ParseBuyActivity(raw map[string]interface{}) (models.SaleActivity, bool) {
	if raw == nil {
		return models.SaleActivity{}, false
	}

	activityType, ok := raw["type"].(string)
	if !ok || activityType != buyActivityType {
		return models.SaleActivity{}, false
	}

	signature, ok := raw["signature"].(string)
	if !ok || signature == "" {
		return models.SaleActivity{}, false
	}

	price, ok := raw["price"].(float64)
	if !ok || price <= 0 {
		return models.SaleActivity{}, false
	}

	blockTime, ok := raw["blockTime"].(float64)
	if !ok || blockTime <= 0 {
		return models.SaleActivity{}, false
	}

	sale := models.SaleActivity{
		Signature: signature,
		PriceSOL:  price,
		BlockTime: int64(blockTime),
	}

	if mint, ok := raw["tokenMint"].(string); ok {
		sale.TokenMint = mint
	}
	if collection, ok := raw["collection"].(string); ok {
		sale.Collection = collection
	}
	if buyer, ok := raw["buyer"].(string); ok {
		sale.Buyer = buyer
	}
	if seller, ok := raw["seller"].(string); ok {
		sale.Seller = seller
	}
	if image, ok := raw["image"].(string); ok {
		sale.Image = image
	}

	return sale, true
}
