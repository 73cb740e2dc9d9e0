// Package extract pulls the cheapest listing off a collection page. The page
// renders its listings as a table sorted by price, so the first row is the
// floor item; the work is locating that row across markup variants and
// telling the list-price column apart from the last-sale column.
package extract

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/niftyarb/internal/domain"
)

var (
	// itemPathPattern pulls the token ID out of an item link href.
	itemPathPattern = regexp.MustCompile(`/marketplace/item/[^/]+/(\d+)`)
	// editionTextPattern matches "#12 / 100" style edition labels in row text.
	editionTextPattern = regexp.MustCompile(`#(\d+)\s*/\s*\d+`)
	// pricePattern matches a dollar amount, optionally comma-grouped.
	pricePattern = regexp.MustCompile(`\$([0-9,]+\.?[0-9]*)`)
)

// noValueSentinels are the placeholder strings the page renders in a price
// column when the item carries no value for it.
var noValueSentinels = map[string]struct{}{
	"--":  {},
	"-":   {},
	"":    {},
	"N/A": {},
	"n/a": {},
}

// rowSelectors is the ladder of selectors tried for listing rows, from the
// semantic markup down to the framework class names the page actually ships.
var rowSelectors = []string{
	"table tbody tr",
	".MuiTableBody-root tr",
	"[role='table'] [role='row']",
}

// Extractor reads the cheapest listing from a collection page.
type Extractor struct {
	doc    domain.DocumentProvider
	logger *slog.Logger
}

// New creates an extractor over the given document provider.
func New(doc domain.DocumentProvider, logger *slog.Logger) *Extractor {
	return &Extractor{
		doc:    doc,
		logger: logger.With(slog.String("component", "extract")),
	}
}

// CheapestListing navigates to the collection page and reads its first
// listing row. A page with no recognizable listing table is malformed; a
// recognizable row whose price column holds a no-value placeholder yields an
// UNLISTED snapshot, and a row whose price cannot be read at all yields
// UNKNOWN.
func (e *Extractor) CheapestListing(ctx context.Context, ref domain.CollectionRef) (domain.ListingSnapshot, error) {
	if err := e.doc.Navigate(ctx, ref.URL); err != nil {
		return domain.ListingSnapshot{}, fmt.Errorf("extract: navigate %s: %w", ref.URL, err)
	}

	rows, selector, err := e.findRows(ctx)
	if err != nil {
		return domain.ListingSnapshot{}, err
	}
	if len(rows) == 0 {
		return domain.ListingSnapshot{}, fmt.Errorf("extract: %w: no listing rows on %s",
			domain.ErrMalformedData, ref.URL)
	}

	snapshot := domain.ListingSnapshot{
		Ref:       ref,
		State:     domain.ListingUnknown,
		ScrapedAt: time.Now().UTC(),
	}

	tokenID, itemURL, err := e.firstRowToken(ctx, rows[0])
	if err != nil {
		return domain.ListingSnapshot{}, err
	}
	if tokenID == "" {
		return domain.ListingSnapshot{}, fmt.Errorf("extract: %w: no token id in first row of %s",
			domain.ErrMalformedData, ref.URL)
	}
	snapshot.TokenID = tokenID
	snapshot.ItemURL = itemURL

	cells, err := e.doc.QuerySelectorAll(ctx, selector+":first-child td")
	if err != nil {
		return domain.ListingSnapshot{}, fmt.Errorf("extract: query cells: %w", err)
	}
	if len(cells) == 0 {
		// Row-based markup without td cells; fall back to the row text.
		e.priceFromText(&snapshot, rows[0].Text)
		return snapshot, nil
	}

	priceIdx, unlisted := e.listPriceColumn(ctx, cells)
	if unlisted {
		snapshot.State = domain.ListingUnlisted
	} else if priceIdx >= 0 {
		applyPriceCell(&snapshot, cells[priceIdx].Text)
	}
	return snapshot, nil
}

// findRows walks the row selector ladder and returns the first non-empty
// match along with the selector that produced it.
func (e *Extractor) findRows(ctx context.Context) ([]domain.Element, string, error) {
	for _, sel := range rowSelectors {
		rows, err := e.doc.QuerySelectorAll(ctx, sel)
		if err != nil {
			return nil, "", fmt.Errorf("extract: query %q: %w", sel, err)
		}
		if len(rows) > 0 {
			return rows, sel, nil
		}
	}
	return nil, "", nil
}

// firstRowToken resolves the token ID of the first row, preferring the item
// link href and falling back to "#n / total" edition text.
func (e *Extractor) firstRowToken(ctx context.Context, row domain.Element) (tokenID, itemURL string, err error) {
	links, err := e.doc.QuerySelectorAll(ctx, "a[href*='/marketplace/item/']")
	if err != nil {
		return "", "", fmt.Errorf("extract: query item links: %w", err)
	}
	for _, link := range links {
		href, ok := link.Attr("href")
		if !ok {
			continue
		}
		if m := itemPathPattern.FindStringSubmatch(href); m != nil {
			return m[1], href, nil
		}
	}

	if m := editionTextPattern.FindStringSubmatch(row.Text); m != nil {
		return m[1], "", nil
	}
	return "", "", nil
}

// listPriceColumn picks the cell index holding the list price, or reports
// that the row has nothing listed. It reads the table headers first; when a
// header names the list price that column wins. Headerless tables fall back
// to the positional convention: the last two columns are the last sale and
// the list price, and a price cell whose right neighbor holds a no-value
// placeholder is a last sale on an item with nothing listed.
func (e *Extractor) listPriceColumn(ctx context.Context, cells []domain.Element) (idx int, unlisted bool) {
	headers, err := e.doc.QuerySelectorAll(ctx, "table th")
	if err == nil {
		lastSaleIdx := -1
		for i, h := range headers {
			label := strings.ToLower(strings.TrimSpace(h.Text))
			switch {
			case strings.Contains(label, "list price"), strings.Contains(label, "listing price"),
				strings.Contains(label, "buy now"):
				if i < len(cells) {
					return i, false
				}
			case strings.Contains(label, "last sale"), strings.Contains(label, "sold"):
				lastSaleIdx = i
			}
		}
		// A named last-sale column still pins the layout: the list price
		// sits in the column to its right.
		if lastSaleIdx >= 0 && lastSaleIdx+1 < len(cells) {
			return lastSaleIdx + 1, false
		}
	}

	start := len(cells) - 2
	if start < 0 {
		start = 0
	}
	for i := start; i < len(cells); i++ {
		text := strings.TrimSpace(cells[i].Text)
		if _, ok := noValueSentinels[text]; ok {
			continue
		}
		if !pricePattern.MatchString(text) {
			continue
		}
		if i+1 < len(cells) {
			next := strings.TrimSpace(cells[i+1].Text)
			if _, ok := noValueSentinels[next]; ok {
				return -1, true
			}
		}
		return i, false
	}
	return -1, false
}

// priceFromText scans free-form row text for a dollar amount when no cell
// structure is available.
func (e *Extractor) priceFromText(snapshot *domain.ListingSnapshot, text string) {
	if price, ok := parsePrice(text); ok {
		snapshot.ListPriceUSD = price
		snapshot.State = domain.ListingActive
	}
}

// applyPriceCell interprets a price cell's text onto the snapshot.
func applyPriceCell(snapshot *domain.ListingSnapshot, text string) {
	trimmed := strings.TrimSpace(text)
	if _, unlisted := noValueSentinels[trimmed]; unlisted {
		snapshot.State = domain.ListingUnlisted
		return
	}
	if price, ok := parsePrice(trimmed); ok {
		snapshot.ListPriceUSD = price
		snapshot.State = domain.ListingActive
	}
}

// parsePrice extracts a dollar amount from text, tolerating comma grouping.
func parsePrice(text string) (float64, bool) {
	m := pricePattern.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	value, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
	if err != nil {
		return 0, false
	}
	return value, true
}
