package tasks

// The registration list below documents every job_type this package wires
// into platform.DefaultRegistry() via its files' init() functions. cmd's
// entry point imports this package, which runs those init() functions, and
// calls Configure once config has loaded:
//
//	treasury_eod         treasury_eod.go         end-of-day treasury balance poll
//	proposal_filing       proposal_filing.go      PDF ingestion for queued filings
//	proposal_summary      proposal_summary.go     AI summary of a single proposal (enqueue-only)
//	social_digest         social_digest.go        posts a queued governance digest
//	governance_report     governance_report.go    renders a treasury chart (enqueue-only)
//	queue_relay_monitor    queue_relay.go          queuestore backlog relay (monitoring set)
//	heartbeat_monitor      heartbeat_monitor.go    trivial liveness probe (monitoring set)
