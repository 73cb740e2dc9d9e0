// Package export serializes scan results to CSV and JSON artifacts.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/alanyoungcy/niftyarb/internal/domain"
)

// Record is one scraped item flattened for export. Offer fields are empty
// strings / zeros when no offer exists.
type Record struct {
	Contract      string  `json:"contract"`
	CollectionURL string  `json:"collection_url"`
	Name          string  `json:"name"`
	Slug          string  `json:"slug"`
	TokenID       string  `json:"token_id"`
	ItemURL       string  `json:"item_url"`
	ListingState  string  `json:"listing_state"`
	ListPriceUSD  float64 `json:"list_price_usd"`
	OfferWei      string  `json:"offer_wei,omitempty"`
	OfferETH      float64 `json:"offer_eth,omitempty"`
	OfferUSD      float64 `json:"offer_usd,omitempty"`
	OfferQuantity int     `json:"offer_quantity,omitempty"`
	Flag          string  `json:"flag"`
	ProfitPercent float64 `json:"profit_percent"`
	ProfitUSD     float64 `json:"profit_usd"`
	ScrapedAt     string  `json:"scraped_at"`
}

// Flatten converts a scraped item to its export record.
func Flatten(item domain.ScrapedItem) Record {
	rec := Record{
		Contract:      item.Ref.Contract,
		CollectionURL: item.Ref.URL,
		Name:          item.Identity.Name,
		Slug:          item.Identity.Slug,
		TokenID:       item.Listing.TokenID,
		ItemURL:       item.ItemURL,
		ListingState:  string(item.Listing.State),
		ListPriceUSD:  item.Listing.ListPriceUSD,
		Flag:          string(item.Verdict.Flag),
		ProfitPercent: item.Verdict.ProfitPercent,
		ProfitUSD:     item.Verdict.ProfitUSD,
		ScrapedAt:     item.ScrapedAt.UTC().Format(time.RFC3339),
	}
	if item.Offer != nil {
		rec.OfferWei = item.Offer.PerUnitWei.String()
		rec.OfferETH = item.Offer.PerUnitETH
		rec.OfferUSD = item.Offer.PerUnitUSD
		rec.OfferQuantity = item.Offer.Quantity
	}
	return rec
}

// csvHeader is the column order of the CSV artifact.
var csvHeader = []string{
	"contract", "collection_url", "name", "slug", "token_id", "item_url",
	"listing_state", "list_price_usd", "offer_wei", "offer_eth", "offer_usd",
	"offer_quantity", "flag", "profit_percent", "profit_usd", "scraped_at",
}

// WriteCSV writes the items as a CSV document with a header row.
func WriteCSV(w io.Writer, items []domain.ScrapedItem) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("export: write csv header: %w", err)
	}

	for _, item := range items {
		rec := Flatten(item)
		row := []string{
			rec.Contract,
			rec.CollectionURL,
			rec.Name,
			rec.Slug,
			rec.TokenID,
			rec.ItemURL,
			rec.ListingState,
			formatFloat(rec.ListPriceUSD),
			rec.OfferWei,
			formatFloat(rec.OfferETH),
			formatFloat(rec.OfferUSD),
			strconv.Itoa(rec.OfferQuantity),
			rec.Flag,
			formatFloat(rec.ProfitPercent),
			formatFloat(rec.ProfitUSD),
			rec.ScrapedAt,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("export: write csv row: %w", err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("export: flush csv: %w", err)
	}
	return nil
}

// Manifest is the JSON artifact: run metadata plus every record.
type Manifest struct {
	RunID      string   `json:"run_id"`
	StartURL   string   `json:"start_url"`
	StartedAt  string   `json:"started_at"`
	FinishedAt string   `json:"finished_at"`
	Records    []Record `json:"records"`
}

// WriteJSON writes the run and its items as an indented JSON document.
func WriteJSON(w io.Writer, run domain.ScanRun, items []domain.ScrapedItem) error {
	m := Manifest{
		RunID:      run.ID,
		StartURL:   run.StartURL,
		StartedAt:  run.StartedAt.UTC().Format(time.RFC3339),
		FinishedAt: run.FinishedAt.UTC().Format(time.RFC3339),
		Records:    make([]Record, 0, len(items)),
	}
	for _, item := range items {
		m.Records = append(m.Records, Flatten(item))
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(m); err != nil {
		return fmt.Errorf("export: encode json: %w", err)
	}
	return nil
}

// Filename builds a timestamped artifact name, e.g.
// "niftyarb_20260830_153000.csv".
func Filename(prefix, ext string, ts time.Time) string {
	return fmt.Sprintf("%s_%s.%s", prefix, ts.UTC().Format("20060102_150405"), ext)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
