// Package tasks holds the concrete task_impl registrations the job
// execution platform discovers at startup (spec §4.1, §9). Each file in
// this package calls platform.MustRegisterDescriptor from its own init(),
// the Go stand-in for the source's decorator-based discovery: the explicit
// registration list lives in the set of init() functions the Go compiler
// already orders deterministically within the package.
//
// External collaborators (blockchain RPC, AI summarization, social
// posting, the queue-message store) cannot be constructed until
// internal/common.Config has been loaded, which happens after every
// task's init() has already run. Configure bridges that gap: main calls it
// once, after config load and before platform.FinalizeDiscovery, to wire
// the package-level collaborators every task_impl reads at Validate/Execute
// time.
package tasks

import (
	"github.com/aibtcdev/daoctl/internal/clients"
	"github.com/aibtcdev/daoctl/internal/storage/queuestore"
)

var (
	blockchainClient clients.BlockchainClient
	aiClient         clients.AIClient
	socialClient     clients.SocialClient
	queueStore       queuestore.Store

	treasuryWallet string
)

// Configure wires the package's external collaborators. Must be called
// before the Manager built from platform.DefaultRegistry() is started;
// calling it after is a programming error since tasks may already be
// running against nil collaborators.
func Configure(blockchain clients.BlockchainClient, ai clients.AIClient, social clients.SocialClient, store queuestore.Store, wallet string) {
	blockchainClient = blockchain
	aiClient = ai
	socialClient = social
	queueStore = store
	treasuryWallet = wallet
}
