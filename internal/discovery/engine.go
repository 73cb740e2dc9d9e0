// Package discovery walks a marketplace listing page and collects collection
// URLs incrementally. The page reveals more collections as it is advanced
// (scrolled or paged); the engine keeps advancing until three consecutive
// rounds yield nothing new, or a round cap is hit.
package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/niftyarb/internal/domain"
)

// Termination reports why a discovery pass stopped.
type Termination string

const (
	// TerminationConverged means the page stopped yielding new collections.
	TerminationConverged Termination = "converged"
	// TerminationExhausted means the round cap was reached before convergence.
	TerminationExhausted Termination = "exhausted"
)

// Result is the outcome of one discovery pass.
type Result struct {
	References  []domain.CollectionRef
	Rounds      int
	Termination Termination
}

// collectionPathPattern extracts the contract address out of a collection URL
// path. Both /marketplace/collectible/ and /marketplace/collection/ routes
// carry the contract as the next segment.
var collectionPathPattern = regexp.MustCompile(`/marketplace/(?:collectible|collection)/(0x[a-fA-F0-9]{40})`)

// Engine discovers collection references from a live listing page.
type Engine struct {
	doc       domain.DocumentProvider
	selector  string
	strikes   int
	maxRounds int
	logger    *slog.Logger
}

// New creates a discovery engine.
//
// selector matches the anchor elements whose hrefs point at collections.
// strikes is the number of consecutive zero-growth rounds that count as
// convergence, and maxRounds caps the total number of advance rounds.
func New(doc domain.DocumentProvider, selector string, strikes, maxRounds int, logger *slog.Logger) *Engine {
	if strikes <= 0 {
		strikes = 3
	}
	if maxRounds <= 0 {
		maxRounds = 50
	}
	return &Engine{
		doc:       doc,
		selector:  selector,
		strikes:   strikes,
		maxRounds: maxRounds,
		logger:    logger.With(slog.String("component", "discovery")),
	}
}

// Collect navigates to startURL and gathers collection references until the
// page converges. References are returned in first-seen order, deduplicated
// by normalized URL.
func (e *Engine) Collect(ctx context.Context, startURL string) (Result, error) {
	if err := e.doc.Navigate(ctx, startURL); err != nil {
		return Result{}, fmt.Errorf("discovery: navigate %s: %w", startURL, err)
	}

	seen := make(map[string]struct{})
	var refs []domain.CollectionRef

	harvest := func() (int, error) {
		elements, err := e.doc.QuerySelectorAll(ctx, e.selector)
		if err != nil {
			return 0, fmt.Errorf("discovery: query %q: %w", e.selector, err)
		}
		added := 0
		for _, el := range elements {
			href, ok := el.Attr("href")
			if !ok {
				continue
			}
			ref, ok := parseCollectionURL(href)
			if !ok {
				continue
			}
			if _, dup := seen[ref.URL]; dup {
				continue
			}
			seen[ref.URL] = struct{}{}
			refs = append(refs, ref)
			added++
		}
		return added, nil
	}

	// Initial harvest before any advance so a page that never grows still
	// yields its first-paint collections.
	if _, err := harvest(); err != nil {
		return Result{}, err
	}

	strikes := 0
	rounds := 0
	for rounds < e.maxRounds {
		if err := ctx.Err(); err != nil {
			return Result{}, fmt.Errorf("discovery: %w", err)
		}

		if err := e.doc.Advance(ctx); err != nil {
			return Result{}, fmt.Errorf("discovery: advance round %d: %w", rounds+1, err)
		}
		rounds++

		added, err := harvest()
		if err != nil {
			return Result{}, err
		}

		if added == 0 {
			strikes++
			if strikes >= e.strikes {
				e.logger.Info("discovery converged",
					slog.Int("rounds", rounds),
					slog.Int("collections", len(refs)))
				return Result{References: refs, Rounds: rounds, Termination: TerminationConverged}, nil
			}
		} else {
			strikes = 0
			e.logger.Debug("discovery round",
				slog.Int("round", rounds),
				slog.Int("added", added),
				slog.Int("total", len(refs)))
		}
	}

	e.logger.Warn("discovery hit round cap before converging",
		slog.Int("rounds", rounds),
		slog.Int("collections", len(refs)))
	return Result{References: refs, Rounds: rounds, Termination: TerminationExhausted}, nil
}

// parseCollectionURL normalizes a collection href and extracts its contract
// address. Hrefs without a valid 0x-prefixed 40-hex contract segment are
// rejected. The contract is canonicalized to its EIP-55 checksum form and the
// URL is stripped of query and fragment so dedup is stable across views of
// the same collection.
func parseCollectionURL(href string) (domain.CollectionRef, bool) {
	u, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return domain.CollectionRef{}, false
	}
	u.RawQuery = ""
	u.Fragment = ""
	normalized := strings.TrimSuffix(u.String(), "/")

	m := collectionPathPattern.FindStringSubmatch(u.Path)
	if m == nil {
		return domain.CollectionRef{}, false
	}
	if !common.IsHexAddress(m[1]) {
		return domain.CollectionRef{}, false
	}

	return domain.CollectionRef{
		Contract: common.HexToAddress(m[1]).Hex(),
		URL:      normalized,
	}, true
}
