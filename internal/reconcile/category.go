package reconcile

import (
	"strings"

	"github.com/atinyakov/LoginKeeper/internal/models"
)

type categoryRule struct {
	category models.Category
	keywords []string
}

// categoryTable is matched in order; the first category with a keyword
// contained in the site name wins.
var categoryTable = []categoryRule{
	{models.SocialMedia, []string{"facebook", "twitter", "instagram", "linkedin", "tiktok", "reddit", "snapchat", "youtube", "pinterest", "whatsapp"}},
	{models.Email, []string{"gmail", "outlook", "yahoo", "protonmail", "mail", "icloud"}},
	{models.Banking, []string{"bank", "paypal", "stripe", "square", "wise", "revolut", "crypto", "binance", "coinbase", "kraken"}},
	{models.Shopping, []string{"amazon", "ebay", "etsy", "shopify", "target", "walmart", "aliexpress", "alibaba", "wish"}},
	{models.Work, []string{"github", "gitlab", "bitbucket", "jira", "slack", "asana", "trello", "notion", "confluence", "monday"}},
	{models.Entertainment, []string{"netflix", "hulu", "disney", "spotify", "twitch", "discord", "steam", "epicgames", "xbox", "playstation"}},
}

// DetectCategory classifies a website by keyword.
func DetectCategory(website string) models.Category {
	site := strings.ToLower(website)
	for _, rule := range categoryTable {
		for _, kw := range rule.keywords {
			if strings.Contains(site, kw) {
				return rule.category
			}
		}
	}
	return models.General
}
