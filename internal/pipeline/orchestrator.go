// Package pipeline orchestrates one end-to-end scan: discover collections,
// extract the cheapest listing of each, resolve OpenSea identities and best
// offers, classify the spread, and fan out alerts and artifacts.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/niftyarb/internal/arbitrage"
	"github.com/alanyoungcy/niftyarb/internal/discovery"
	"github.com/alanyoungcy/niftyarb/internal/domain"
	"github.com/alanyoungcy/niftyarb/internal/notify"
)

// Discoverer walks the marketplace and yields collection references.
type Discoverer interface {
	Collect(ctx context.Context, startURL string) (discovery.Result, error)
}

// ListingExtractor reads the cheapest listing off a collection page.
type ListingExtractor interface {
	CheapestListing(ctx context.Context, ref domain.CollectionRef) (domain.ListingSnapshot, error)
}

// IdentityResolver maps a contract to its OpenSea identity.
type IdentityResolver interface {
	Resolve(ctx context.Context, contract string) (domain.CollectionIdentity, error)
}

// OfferResolver fetches the per-unit best offer for a token.
type OfferResolver interface {
	BestOffer(ctx context.Context, identity domain.CollectionIdentity, tokenID string) (*domain.OfferQuote, error)
}

// Archiver uploads the artifacts of a finished run.
type Archiver interface {
	ArchiveRun(ctx context.Context, run domain.ScanRun, items []domain.ScrapedItem) error
}

// Config holds the per-scan knobs.
type Config struct {
	// StartURL is the marketplace page discovery begins from.
	StartURL string
	// MaxItems caps how many collections are admitted into the result.
	// Zero means no cap.
	MaxItems int
	// RequireOffer drops items without a standing offer from the result.
	RequireOffer bool
}

// Sinks are the optional persistence and archival targets of a run. Any nil
// field is skipped; sink failures are logged, never fatal to the scan.
type Sinks struct {
	Runs     domain.RunStore
	Items    domain.ItemStore
	Archiver Archiver
}

// Result is the outcome of one scan.
type Result struct {
	Run   domain.ScanRun
	Items []domain.ScrapedItem
}

// Orchestrator runs the scan pipeline. Stages run sequentially per
// collection: the document provider behind discovery and extraction is a
// single browser session and cannot be driven concurrently.
type Orchestrator struct {
	cfg        Config
	discoverer Discoverer
	extractor  ListingExtractor
	identities IdentityResolver
	offers     OfferResolver
	notifier   *notify.Notifier
	sinks      Sinks
	logger     *slog.Logger
}

// NewOrchestrator creates an orchestrator. notifier may be nil when no
// channels are configured.
func NewOrchestrator(cfg Config, discoverer Discoverer, extractor ListingExtractor,
	identities IdentityResolver, offers OfferResolver, notifier *notify.Notifier,
	sinks Sinks, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:        cfg,
		discoverer: discoverer,
		extractor:  extractor,
		identities: identities,
		offers:     offers,
		notifier:   notifier,
		sinks:      sinks,
		logger:     logger.With(slog.String("component", "pipeline")),
	}
}

// RunScan executes one full scan. On context cancellation it returns the
// partial result accumulated so far along with the context error; the run
// record is finalized either way. A panic anywhere in the pipeline is
// recovered and reported as an error rather than taking down the process.
func (o *Orchestrator) RunScan(ctx context.Context) (result Result, err error) {
	run := domain.ScanRun{
		ID:        uuid.NewString(),
		StartURL:  o.cfg.StartURL,
		StartedAt: time.Now().UTC(),
	}
	result.Run = run

	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("scan panicked", slog.Any("panic", r))
			err = fmt.Errorf("pipeline: scan %s panicked: %v", run.ID, r)
		}
	}()

	o.logger.Info("scan starting",
		slog.String("run_id", run.ID),
		slog.String("start_url", run.StartURL))
	o.send(ctx, notify.RunStarted(run.ID, run.StartURL))

	if o.sinks.Runs != nil {
		if serr := o.sinks.Runs.CreateRun(ctx, run); serr != nil {
			o.logger.Warn("run record not created", slog.Any("error", serr))
		}
	}

	disc, err := o.discoverer.Collect(ctx, o.cfg.StartURL)
	if err != nil {
		result.Run = o.finalize(ctx, run, result.Items)
		return result, fmt.Errorf("pipeline: discovery: %w", err)
	}
	run.References = len(disc.References)
	o.logger.Info("discovery finished",
		slog.Int("collections", run.References),
		slog.Int("rounds", disc.Rounds),
		slog.String("termination", string(disc.Termination)))

	seen := make(map[string]bool, len(disc.References))
	for _, ref := range disc.References {
		// Discovery already dedups by normalized URL; guard again so a
		// misbehaving discoverer cannot double-scan a collection.
		if seen[ref.URL] {
			continue
		}
		seen[ref.URL] = true

		if ctx.Err() != nil {
			o.logger.Warn("scan cancelled, returning partial results",
				slog.Int("admitted", run.Admitted))
			result.Run = o.finalize(ctx, run, result.Items)
			return result, fmt.Errorf("pipeline: scan %s: %w", run.ID, ctx.Err())
		}
		if o.cfg.MaxItems > 0 && run.Admitted >= o.cfg.MaxItems {
			o.logger.Info("item cap reached", slog.Int("max_items", o.cfg.MaxItems))
			break
		}

		item, outcome := o.scanCollection(ctx, ref)
		switch outcome {
		case outcomeAborted:
			result.Run = o.finalize(ctx, run, result.Items)
			return result, fmt.Errorf("pipeline: scan %s: document provider lost", run.ID)
		case outcomeFailed:
			run.Failed++
			continue
		case outcomeSkipped:
			run.Skipped++
			continue
		}

		if o.cfg.RequireOffer && item.Offer == nil {
			run.Skipped++
			continue
		}

		result.Items = append(result.Items, item)
		run.Admitted++

		if item.Verdict.Flag.Qualifies() {
			run.Opportunities++
			o.send(ctx, notify.OpportunityAlert(item))
		}
	}

	result.Run = o.finalize(ctx, run, result.Items)
	o.send(ctx, notify.RunSummary(result.Run))
	return result, nil
}

// scanCollection outcomes.
type outcome int

const (
	outcomeAdmitted outcome = iota
	outcomeSkipped
	outcomeFailed
	outcomeAborted
)

// scanCollection runs the per-collection stages: extract, resolve identity,
// fetch the offer, classify. A malformed page fails only that collection; a
// lost document provider aborts the whole run, since every later extraction
// would fail the same way.
func (o *Orchestrator) scanCollection(ctx context.Context, ref domain.CollectionRef) (domain.ScrapedItem, outcome) {
	logger := o.logger.With(slog.String("contract", ref.Contract))

	listing, err := o.extractor.CheapestListing(ctx, ref)
	if err != nil {
		if errors.Is(err, domain.ErrResourceUnavailable) {
			logger.Error("document provider lost", slog.Any("error", err))
			return domain.ScrapedItem{}, outcomeAborted
		}
		logger.Warn("extraction failed", slog.Any("error", err))
		return domain.ScrapedItem{}, outcomeFailed
	}
	if listing.State != domain.ListingActive {
		logger.Debug("no active listing", slog.String("state", string(listing.State)))
		return domain.ScrapedItem{}, outcomeSkipped
	}

	identity, err := o.identities.Resolve(ctx, ref.Contract)
	if err != nil {
		return domain.ScrapedItem{}, outcomeFailed
	}

	offer, err := o.offers.BestOffer(ctx, identity, listing.TokenID)
	if err != nil {
		logger.Warn("offer lookup failed", slog.Any("error", err))
		return domain.ScrapedItem{}, outcomeFailed
	}

	item := domain.ScrapedItem{
		Ref:       ref,
		Listing:   listing,
		Identity:  identity,
		Offer:     offer,
		Verdict:   arbitrage.Classify(listing, offer),
		ItemURL:   listing.ItemURL,
		ScrapedAt: listing.ScrapedAt,
	}
	if identity.Status == domain.IdentityResolved {
		item.OpenSeaURL = openSeaAssetURL(ref.Contract, listing.TokenID)
	}

	logger.Info("collection scanned",
		slog.String("token", listing.TokenID),
		slog.Float64("list_usd", listing.ListPriceUSD),
		slog.String("flag", string(item.Verdict.Flag)))
	return item, outcomeAdmitted
}

// finalize stamps the run, persists it, and archives artifacts. It uses a
// cancellation-detached context so a cancelled scan can still flush its
// partial results.
func (o *Orchestrator) finalize(ctx context.Context, run domain.ScanRun, items []domain.ScrapedItem) domain.ScanRun {
	run.FinishedAt = time.Now().UTC()
	flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	if o.sinks.Items != nil {
		if err := o.sinks.Items.InsertBatch(flushCtx, run.ID, items); err != nil {
			o.logger.Warn("item batch not persisted", slog.Any("error", err))
		}
	}
	if o.sinks.Runs != nil {
		if err := o.sinks.Runs.FinishRun(flushCtx, run); err != nil {
			o.logger.Warn("run record not finalized", slog.Any("error", err))
		}
	}
	if o.sinks.Archiver != nil {
		if err := o.sinks.Archiver.ArchiveRun(flushCtx, run, items); err != nil {
			o.logger.Warn("run not archived", slog.Any("error", err))
		}
	}

	o.logger.Info("scan finished",
		slog.String("run_id", run.ID),
		slog.Int("references", run.References),
		slog.Int("admitted", run.Admitted),
		slog.Int("skipped", run.Skipped),
		slog.Int("failed", run.Failed),
		slog.Int("opportunities", run.Opportunities),
		slog.Duration("elapsed", run.FinishedAt.Sub(run.StartedAt)))
	return run
}

// send delivers a notification synchronously; delivery failures are logged
// and never fail the scan.
func (o *Orchestrator) send(ctx context.Context, msg notify.Message) {
	if o.notifier == nil {
		return
	}
	if err := o.notifier.Notify(ctx, msg); err != nil {
		o.logger.Warn("notification failed",
			slog.String("event", msg.Event),
			slog.Any("error", err))
	}
}

// openSeaAssetURL builds the public asset page URL for a token.
func openSeaAssetURL(contract, tokenID string) string {
	return fmt.Sprintf("https://opensea.io/assets/ethereum/%s/%s",
		strings.ToLower(contract), tokenID)
}
