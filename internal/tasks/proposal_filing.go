package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"

	"github.com/aibtcdev/daoctl/internal/platform"
)

// ProposalFilingJobType ingests governance-proposal filing PDFs queued by an
// out-of-scope upstream ingestion step. It is a queue-processing task in
// the sense of spec §9: Validate reads queuestore.Store to decide whether
// there is a filing to ingest, Execute consumes the row.
const ProposalFilingJobType = "proposal_filing"

// proposalFilingPayload is the JSON body queuestore.Message.Payload carries
// for this job type.
type proposalFilingPayload struct {
	ProposalID string `json:"proposal_id"`
	PDFPath    string `json:"pdf_path"`
}

type proposalFilingTask struct{}

func (proposalFilingTask) Validate(ctx context.Context, _ *platform.Invocation) (bool, string) {
	if queueStore == nil {
		return false, "queue store not configured"
	}
	n, err := queueStore.CountPendingByType(ctx, ProposalFilingJobType)
	if err != nil {
		return false, fmt.Sprintf("count pending filings: %v", err)
	}
	if n == 0 {
		return false, "no pending proposal filings"
	}
	return true, ""
}

func (proposalFilingTask) Execute(ctx context.Context, _ *platform.Invocation) (int, error) {
	msg, err := queueStore.DequeueByType(ctx, ProposalFilingJobType)
	if err != nil {
		return 0, fmt.Errorf("tasks: proposal_filing: dequeue: %w", err)
	}
	if msg == nil {
		return 0, nil
	}

	start := time.Now()
	items, execErr := ingestFiling(msg.Payload)
	if completeErr := queueStore.Complete(ctx, msg.ID, execErr, time.Since(start).Milliseconds()); completeErr != nil {
		return items, fmt.Errorf("tasks: proposal_filing: complete: %w", completeErr)
	}
	return items, execErr
}

func ingestFiling(payload string) (int, error) {
	var p proposalFilingPayload
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return 0, fmt.Errorf("decode proposal_filing payload: %w", err)
	}
	if p.PDFPath == "" {
		return 0, fmt.Errorf("proposal_filing payload missing pdf_path")
	}
	if _, err := os.Stat(p.PDFPath); err != nil {
		return 0, fmt.Errorf("filing pdf %s: %w", p.PDFPath, err)
	}

	_, pages, err := extractPDFText(p.PDFPath)
	if err != nil {
		return 0, err
	}
	return pages, nil
}

// extractPDFText reads every page of the PDF at path and concatenates its
// plain text, returning the page count processed.
func extractPDFText(path string) (string, int, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	var buf strings.Builder
	numPages := r.NumPage()
	for i := 1; i <= numPages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		buf.WriteString(text)
	}
	return buf.String(), numPages, nil
}

func init() {
	d := platform.NewTaskDescriptor(ProposalFilingJobType, proposalFilingTask{})
	d.DisplayName = "Governance Proposal Filing Ingestion"
	d.Description = "Extracts plaintext from queued governance-proposal filing PDFs."
	d.Interval = 2 * time.Minute
	d.Priority = platform.PriorityHigh
	d.Requires = []string{"queue"}
	d.MaxRetries = 2
	d.RetryBackoffBase = 15 * time.Second
	d.Idempotent = true
	platform.MustRegisterDescriptor(d)
}
