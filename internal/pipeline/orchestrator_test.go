package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alanyoungcy/niftyarb/internal/discovery"
	"github.com/alanyoungcy/niftyarb/internal/domain"
	"github.com/alanyoungcy/niftyarb/internal/notify"
)

func contractN(n int) string {
	return fmt.Sprintf("0x%040d", n)
}

func refN(n int) domain.CollectionRef {
	return domain.CollectionRef{
		Contract: contractN(n),
		URL:      fmt.Sprintf("https://niftygateway.com/marketplace/collection/%s", contractN(n)),
	}
}

type fakeDiscoverer struct {
	refs []domain.CollectionRef
	err  error
}

func (f *fakeDiscoverer) Collect(ctx context.Context, startURL string) (discovery.Result, error) {
	if f.err != nil {
		return discovery.Result{}, f.err
	}
	return discovery.Result{
		References:  f.refs,
		Rounds:      3,
		Termination: discovery.TerminationConverged,
	}, nil
}

type fakeExtractor struct {
	// snapshots and errors keyed by contract.
	snapshots map[string]domain.ListingSnapshot
	errs      map[string]error
}

func (f *fakeExtractor) CheapestListing(ctx context.Context, ref domain.CollectionRef) (domain.ListingSnapshot, error) {
	if err := f.errs[ref.Contract]; err != nil {
		return domain.ListingSnapshot{}, err
	}
	snap, ok := f.snapshots[ref.Contract]
	if !ok {
		snap = domain.ListingSnapshot{
			Ref: ref, TokenID: "1", ListPriceUSD: 100,
			State: domain.ListingActive, ScrapedAt: time.Now().UTC(),
		}
	}
	return snap, nil
}

type fakeIdentities struct{}

func (fakeIdentities) Resolve(ctx context.Context, contract string) (domain.CollectionIdentity, error) {
	return domain.CollectionIdentity{
		Contract: contract, Name: "Collection", Slug: "collection",
		Status: domain.IdentityResolved,
	}, nil
}

type fakeOffers struct {
	// perUnitUSD keyed by contract; missing key means no offer.
	perUnitUSD map[string]float64
}

func (f *fakeOffers) BestOffer(ctx context.Context, identity domain.CollectionIdentity, tokenID string) (*domain.OfferQuote, error) {
	usd, ok := f.perUnitUSD[identity.Contract]
	if !ok {
		return nil, nil
	}
	return &domain.OfferQuote{PerUnitUSD: usd, Quantity: 1}, nil
}

type captureSender struct {
	msgs []notify.Message
}

func (c *captureSender) Send(ctx context.Context, msg notify.Message) error {
	c.msgs = append(c.msgs, msg)
	return nil
}

func (c *captureSender) Name() string { return "capture" }

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newOrchestrator(cfg Config, d Discoverer, e ListingExtractor, of OfferResolver,
	sender notify.Sender) *Orchestrator {
	var notifier *notify.Notifier
	if sender != nil {
		notifier = notify.NewNotifier([]notify.Sender{sender}, nil, testLogger())
	}
	return NewOrchestrator(cfg, d, e, fakeIdentities{}, of, notifier, Sinks{}, testLogger())
}

func TestRunScanHappyPath(t *testing.T) {
	refs := []domain.CollectionRef{refN(1), refN(2), refN(3)}
	sender := &captureSender{}

	o := newOrchestrator(
		Config{StartURL: "https://niftygateway.com/marketplace"},
		&fakeDiscoverer{refs: refs},
		&fakeExtractor{snapshots: map[string]domain.ListingSnapshot{}, errs: map[string]error{}},
		&fakeOffers{perUnitUSD: map[string]float64{
			contractN(1): 120, // INSTANT
			contractN(2): 85,  // MODERATE
			contractN(3): 50,  // WEAK
		}},
		sender,
	)

	result, err := o.RunScan(context.Background())
	if err != nil {
		t.Fatalf("RunScan: %v", err)
	}
	if result.Run.References != 3 || result.Run.Admitted != 3 {
		t.Errorf("run = %+v, want 3 references and 3 admitted", result.Run)
	}
	if result.Run.Opportunities != 2 {
		t.Errorf("opportunities = %d, want 2 (INSTANT + MODERATE)", result.Run.Opportunities)
	}
	if len(result.Items) != 3 {
		t.Fatalf("items = %d, want 3", len(result.Items))
	}
	if result.Items[0].Verdict.Flag != domain.FlagInstant {
		t.Errorf("first flag = %v, want INSTANT", result.Items[0].Verdict.Flag)
	}

	// run_started + 2 opportunity alerts + run_summary.
	var opportunities int
	for _, msg := range sender.msgs {
		if msg.Event == notify.EventOpportunity {
			opportunities++
		}
	}
	if opportunities != 2 {
		t.Errorf("alerts = %d, want 2", opportunities)
	}
	if sender.msgs[0].Event != notify.EventRunStarted {
		t.Errorf("first event = %q, want run_started", sender.msgs[0].Event)
	}
	if sender.msgs[len(sender.msgs)-1].Event != notify.EventRunSummary {
		t.Errorf("last event = %q, want run_summary", sender.msgs[len(sender.msgs)-1].Event)
	}
}

func TestRunScanSkipsFailedCollections(t *testing.T) {
	refs := []domain.CollectionRef{refN(1), refN(2), refN(3)}

	o := newOrchestrator(
		Config{StartURL: "x"},
		&fakeDiscoverer{refs: refs},
		&fakeExtractor{
			snapshots: map[string]domain.ListingSnapshot{},
			errs: map[string]error{
				contractN(2): fmt.Errorf("%w: no listing rows", domain.ErrMalformedData),
			},
		},
		&fakeOffers{perUnitUSD: map[string]float64{}},
		nil,
	)

	result, err := o.RunScan(context.Background())
	if err != nil {
		t.Fatalf("RunScan: %v", err)
	}
	if result.Run.Failed != 1 {
		t.Errorf("failed = %d, want 1", result.Run.Failed)
	}
	if result.Run.Admitted != 2 {
		t.Errorf("admitted = %d, want 2 (failure skips only that collection)", result.Run.Admitted)
	}
}

func TestRunScanAbortsWhenProviderLost(t *testing.T) {
	refs := []domain.CollectionRef{refN(1), refN(2), refN(3)}

	o := newOrchestrator(
		Config{StartURL: "x"},
		&fakeDiscoverer{refs: refs},
		&fakeExtractor{
			snapshots: map[string]domain.ListingSnapshot{},
			errs: map[string]error{
				contractN(2): fmt.Errorf("%w: session closed", domain.ErrResourceUnavailable),
			},
		},
		&fakeOffers{perUnitUSD: map[string]float64{contractN(1): 120}},
		nil,
	)

	result, err := o.RunScan(context.Background())
	if err == nil {
		t.Fatal("expected abort error")
	}
	// Collection 1 was scanned before the provider died.
	if len(result.Items) != 1 {
		t.Errorf("partial items = %d, want 1", len(result.Items))
	}
}

func TestRunScanRequireOfferFilters(t *testing.T) {
	refs := []domain.CollectionRef{refN(1), refN(2)}

	o := newOrchestrator(
		Config{StartURL: "x", RequireOffer: true},
		&fakeDiscoverer{refs: refs},
		&fakeExtractor{snapshots: map[string]domain.ListingSnapshot{}, errs: map[string]error{}},
		&fakeOffers{perUnitUSD: map[string]float64{contractN(1): 90}},
		nil,
	)

	result, err := o.RunScan(context.Background())
	if err != nil {
		t.Fatalf("RunScan: %v", err)
	}
	if result.Run.Admitted != 1 || result.Run.Skipped != 1 {
		t.Errorf("run = %+v, want 1 admitted / 1 skipped", result.Run)
	}
}

func TestRunScanMaxItemsCap(t *testing.T) {
	var refs []domain.CollectionRef
	for i := 1; i <= 10; i++ {
		refs = append(refs, refN(i))
	}

	o := newOrchestrator(
		Config{StartURL: "x", MaxItems: 4},
		&fakeDiscoverer{refs: refs},
		&fakeExtractor{snapshots: map[string]domain.ListingSnapshot{}, errs: map[string]error{}},
		&fakeOffers{perUnitUSD: map[string]float64{}},
		nil,
	)

	result, err := o.RunScan(context.Background())
	if err != nil {
		t.Fatalf("RunScan: %v", err)
	}
	if result.Run.Admitted != 4 {
		t.Errorf("admitted = %d, want 4", result.Run.Admitted)
	}
}

func TestRunScanCancelReturnsPartial(t *testing.T) {
	refs := []domain.CollectionRef{refN(1), refN(2), refN(3)}
	ctx, cancel := context.WithCancel(context.Background())

	cancelling := &cancellingExtractor{cancel: cancel, after: 1}
	o := newOrchestrator(
		Config{StartURL: "x"},
		&fakeDiscoverer{refs: refs},
		cancelling,
		&fakeOffers{perUnitUSD: map[string]float64{}},
		nil,
	)

	result, err := o.RunScan(ctx)
	if err == nil {
		t.Fatal("expected context error")
	}
	if len(result.Items) != 1 {
		t.Errorf("partial items = %d, want 1", len(result.Items))
	}
	if result.Run.FinishedAt.IsZero() {
		t.Error("cancelled run was not finalized")
	}
}

// cancellingExtractor cancels the scan context after a number of successful
// extractions.
type cancellingExtractor struct {
	cancel context.CancelFunc
	after  int
	seen   int
}

func (c *cancellingExtractor) CheapestListing(ctx context.Context, ref domain.CollectionRef) (domain.ListingSnapshot, error) {
	c.seen++
	if c.seen >= c.after {
		c.cancel()
	}
	return domain.ListingSnapshot{
		Ref: ref, TokenID: "1", ListPriceUSD: 100,
		State: domain.ListingActive, ScrapedAt: time.Now().UTC(),
	}, nil
}

func TestRunScanDiscoveryFailure(t *testing.T) {
	o := newOrchestrator(
		Config{StartURL: "x"},
		&fakeDiscoverer{err: fmt.Errorf("%w: devtools endpoint", domain.ErrResourceUnavailable)},
		&fakeExtractor{snapshots: map[string]domain.ListingSnapshot{}, errs: map[string]error{}},
		&fakeOffers{perUnitUSD: map[string]float64{}},
		nil,
	)

	result, err := o.RunScan(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if len(result.Items) != 0 {
		t.Errorf("items = %d, want 0", len(result.Items))
	}
	if result.Run.FinishedAt.IsZero() {
		t.Error("failed run was not finalized")
	}
}

type countingExtractor struct {
	fakeExtractor
	calls map[string]int
}

func (c *countingExtractor) CheapestListing(ctx context.Context, ref domain.CollectionRef) (domain.ListingSnapshot, error) {
	c.calls[ref.URL]++
	return c.fakeExtractor.CheapestListing(ctx, ref)
}

func TestRunScanDedupsRepeatedReferences(t *testing.T) {
	extractor := &countingExtractor{
		fakeExtractor: fakeExtractor{snapshots: map[string]domain.ListingSnapshot{}, errs: map[string]error{}},
		calls:         map[string]int{},
	}
	o := newOrchestrator(
		Config{StartURL: "https://niftygateway.com/marketplace"},
		&fakeDiscoverer{refs: []domain.CollectionRef{refN(1), refN(2), refN(1), refN(2), refN(1)}},
		extractor,
		&fakeOffers{perUnitUSD: map[string]float64{}},
		nil,
	)

	result, err := o.RunScan(context.Background())
	if err != nil {
		t.Fatalf("RunScan: %v", err)
	}
	if len(result.Items) != 2 {
		t.Errorf("items = %d, want 2", len(result.Items))
	}
	for url, n := range extractor.calls {
		if n != 1 {
			t.Errorf("collection %s scanned %d times, want 1", url, n)
		}
	}
}
