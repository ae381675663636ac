// Package provider implements the read-only client for the external data
// provider: follower counts from the follower-graph API and holder counts
// from the board API.
package provider

import "context"

// Client is the capability the poller consumes. Both calls fail with a
// *domain.ProviderError carrying the failure classification.
type Client interface {
	// FetchFollowerCount returns the current follower count of a wallet.
	FetchFollowerCount(ctx context.Context, wallet string) (int, error)

	// FetchTokenHolders returns the holder count of a wallet's creator token.
	FetchTokenHolders(ctx context.Context, wallet string) (int, error)
}

// Config holds provider endpoint settings.
type Config struct {
	FollowersURL string `yaml:"followers_url"`
	BoardsURL    string `yaml:"boards_url"`
}
