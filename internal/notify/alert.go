package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/niftyarb/internal/domain"
)

// OpportunityAlert renders one qualifying scraped item as a notification.
func OpportunityAlert(item domain.ScrapedItem) Message {
	name := item.Identity.Name
	if name == "" {
		name = item.Ref.Contract
	}

	var b strings.Builder
	fmt.Fprintf(&b, "List price: $%.2f\n", item.Listing.ListPriceUSD)
	if item.Offer != nil {
		fmt.Fprintf(&b, "Best offer: $%.2f (%.4f ETH)\n",
			item.Offer.PerUnitUSD, item.Offer.PerUnitETH)
		if item.Offer.Quantity > 1 {
			fmt.Fprintf(&b, "Offer covers %d editions\n", item.Offer.Quantity)
		}
	}
	fmt.Fprintf(&b, "Spread: %+.1f%% ($%+.2f)", item.Verdict.ProfitPercent, item.Verdict.ProfitUSD)
	if item.OpenSeaURL != "" {
		fmt.Fprintf(&b, "\nOpenSea: %s", item.OpenSeaURL)
	}

	return Message{
		Event: EventOpportunity,
		Title: fmt.Sprintf("[%s] %s #%s", item.Verdict.Flag, name, item.Listing.TokenID),
		Body:  b.String(),
		Tier:  item.Verdict.Flag,
		URL:   item.ItemURL,
	}
}

// RunStarted renders the scan-start announcement.
func RunStarted(runID, startURL string) Message {
	return Message{
		Event: EventRunStarted,
		Title: "Scan started",
		Body:  fmt.Sprintf("Run %s\nTarget: %s", runID, startURL),
	}
}

// RunSummary renders the end-of-run roll-up.
func RunSummary(run domain.ScanRun) Message {
	dur := run.FinishedAt.Sub(run.StartedAt).Round(time.Second)
	return Message{
		Event: EventRunSummary,
		Title: "Scan complete",
		Body: fmt.Sprintf(
			"Run %s finished in %s\nCollections: %d discovered, %d scanned, %d skipped, %d failed\nOpportunities: %d",
			run.ID, dur, run.References, run.Admitted, run.Skipped, run.Failed, run.Opportunities),
	}
}
