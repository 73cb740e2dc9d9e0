package discovery

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/alanyoungcy/niftyarb/internal/domain"
)

const contractA = "0x1a2b3c4d5e6f7a8b9c0d1e2f3a4b5c6d7e8f9a0b"
const contractB = "0xabcdefabcdefabcdefabcdefabcdefabcdefabcd"

// fakeDoc serves a scripted sequence of element snapshots: rounds[0] is the
// first-paint content, each Advance moves to the next entry.
type fakeDoc struct {
	rounds [][]domain.Element
	pos    int
}

func (f *fakeDoc) Navigate(ctx context.Context, url string) error { return nil }

func (f *fakeDoc) QuerySelectorAll(ctx context.Context, selector string) ([]domain.Element, error) {
	return f.rounds[f.pos], nil
}

func (f *fakeDoc) Advance(ctx context.Context) error {
	if f.pos < len(f.rounds)-1 {
		f.pos++
	}
	return nil
}

func anchor(href string) domain.Element {
	return domain.Element{Attrs: map[string]string{"href": href}}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCollectConverges(t *testing.T) {
	first := []domain.Element{
		anchor("https://niftygateway.com/marketplace/collection/" + contractA + "/1?filters[onSale]=true"),
	}
	grown := append(first,
		anchor("https://niftygateway.com/marketplace/collectible/"+contractB+"/2"))

	doc := &fakeDoc{rounds: [][]domain.Element{first, grown, grown, grown, grown}}
	engine := New(doc, "a", 3, 50, testLogger())

	res, err := engine.Collect(context.Background(), "https://niftygateway.com/marketplace")
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if res.Termination != TerminationConverged {
		t.Errorf("termination = %v, want converged", res.Termination)
	}
	if len(res.References) != 2 {
		t.Fatalf("got %d references, want 2", len(res.References))
	}
	// First-seen order.
	if res.References[0].URL != "https://niftygateway.com/marketplace/collection/"+contractA+"/1" {
		t.Errorf("first ref URL = %q", res.References[0].URL)
	}
	// Growth round resets the strike counter, then three empty rounds.
	if res.Rounds != 4 {
		t.Errorf("rounds = %d, want 4", res.Rounds)
	}
}

func TestCollectDeduplicatesByNormalizedURL(t *testing.T) {
	base := "https://niftygateway.com/marketplace/collection/" + contractA
	page := []domain.Element{
		anchor(base),
		anchor(base + "?filters[onSale]=true"),
		anchor(base + "#top"),
		anchor(base + "/"),
	}

	doc := &fakeDoc{rounds: [][]domain.Element{page}}
	engine := New(doc, "a", 3, 50, testLogger())

	res, err := engine.Collect(context.Background(), "https://niftygateway.com/marketplace")
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(res.References) != 1 {
		t.Fatalf("got %d references, want 1 after normalization", len(res.References))
	}
	if res.References[0].URL != base {
		t.Errorf("URL = %q, want %q", res.References[0].URL, base)
	}
}

func TestCollectSkipsNonCollectionLinks(t *testing.T) {
	page := []domain.Element{
		anchor("https://niftygateway.com/about"),
		anchor("https://niftygateway.com/marketplace/collection/not-a-contract"),
		anchor("https://niftygateway.com/marketplace/item/foo/42"),
		{Text: "no href"},
	}

	doc := &fakeDoc{rounds: [][]domain.Element{page}}
	engine := New(doc, "a", 3, 50, testLogger())

	res, err := engine.Collect(context.Background(), "https://niftygateway.com/marketplace")
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(res.References) != 0 {
		t.Errorf("got %d references, want 0", len(res.References))
	}
}

func TestCollectExhaustsRoundCap(t *testing.T) {
	// A page that grows by one new collection every round never converges.
	growing := &growingDoc{}
	engine := New(growing, "a", 3, 5, testLogger())

	res, err := engine.Collect(context.Background(), "https://niftygateway.com/marketplace")
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if res.Termination != TerminationExhausted {
		t.Errorf("termination = %v, want exhausted", res.Termination)
	}
	if res.Rounds != 5 {
		t.Errorf("rounds = %d, want 5", res.Rounds)
	}
	if len(res.References) != 6 {
		t.Errorf("got %d references, want 6", len(res.References))
	}
}

type growingDoc struct {
	elements []domain.Element
}

func (g *growingDoc) Navigate(ctx context.Context, url string) error {
	g.elements = []domain.Element{anchor(syntheticURL(0))}
	return nil
}

func (g *growingDoc) QuerySelectorAll(ctx context.Context, selector string) ([]domain.Element, error) {
	return g.elements, nil
}

func (g *growingDoc) Advance(ctx context.Context) error {
	g.elements = append(g.elements, anchor(syntheticURL(len(g.elements))))
	return nil
}

func syntheticURL(n int) string {
	addr := []byte("0x0000000000000000000000000000000000000000")
	hex := "0123456789abcdef"
	addr[len(addr)-1] = hex[n%16]
	addr[len(addr)-2] = hex[(n/16)%16]
	return "https://niftygateway.com/marketplace/collection/" + string(addr)
}

func TestContractChecksummed(t *testing.T) {
	ref, ok := parseCollectionURL("https://niftygateway.com/marketplace/collection/" + contractA)
	if !ok {
		t.Fatal("parseCollectionURL rejected a valid URL")
	}
	// EIP-55 form mixes case; it must still carry the same address bytes.
	if got := strings.ToLower(ref.Contract); got != contractA {
		t.Errorf("contract = %q, lowercase %q, want %q", ref.Contract, got, contractA)
	}
}
