package postgres

import (
	"context"
	"fmt"
	"math/big"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/niftyarb/internal/domain"
)

// ItemStore implements domain.ItemStore using PostgreSQL.
type ItemStore struct {
	pool *pgxpool.Pool
}

// NewItemStore creates a new ItemStore backed by the given connection pool.
func NewItemStore(pool *pgxpool.Pool) *ItemStore {
	return &ItemStore{pool: pool}
}

const insertItemQuery = `
	INSERT INTO scraped_items (
		run_id, contract, collection_url, collection_name, collection_slug,
		identity_status, token_id, item_url, opensea_url,
		listing_state, list_price_usd,
		offer_total_wei, offer_unit_wei, offer_unit_eth, offer_unit_usd,
		offer_quantity, offer_hash,
		flag, profit_percent, profit_usd, scraped_at
	) VALUES (
		$1, $2, $3, $4, $5,
		$6, $7, $8, $9,
		$10, $11,
		$12, $13, $14, $15,
		$16, $17,
		$18, $19, $20, $21
	)`

// InsertBatch writes the items of one run in a single pgx batch.
func (s *ItemStore) InsertBatch(ctx context.Context, runID string, items []domain.ScrapedItem) error {
	if len(items) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, item := range items {
		var (
			totalWei, unitWei   *string
			unitETH, unitUSD    *float64
			quantity            *int
			orderHash           *string
		)
		if item.Offer != nil {
			totalWei = bigIntString(item.Offer.TotalWei)
			unitWei = bigIntString(item.Offer.PerUnitWei)
			unitETH = &item.Offer.PerUnitETH
			unitUSD = &item.Offer.PerUnitUSD
			quantity = &item.Offer.Quantity
			orderHash = &item.Offer.OrderHash
		}

		batch.Queue(insertItemQuery,
			runID, item.Ref.Contract, item.Ref.URL,
			item.Identity.Name, item.Identity.Slug, string(item.Identity.Status),
			item.Listing.TokenID, item.ItemURL, item.OpenSeaURL,
			string(item.Listing.State), item.Listing.ListPriceUSD,
			totalWei, unitWei, unitETH, unitUSD,
			quantity, orderHash,
			string(item.Verdict.Flag), item.Verdict.ProfitPercent, item.Verdict.ProfitUSD,
			item.ScrapedAt,
		)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range items {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("postgres: insert items for run %s: %w", runID, err)
		}
	}
	return nil
}

// ListByRun returns every item recorded for a run, in insertion order.
func (s *ItemStore) ListByRun(ctx context.Context, runID string) ([]domain.ScrapedItem, error) {
	const query = `
		SELECT contract, collection_url, collection_name, collection_slug,
		       identity_status, token_id, item_url, opensea_url,
		       listing_state, list_price_usd,
		       offer_total_wei::text, offer_unit_wei::text, offer_unit_eth,
		       offer_unit_usd, offer_quantity, offer_hash,
		       flag, profit_percent, profit_usd, scraped_at
		FROM scraped_items
		WHERE run_id = $1
		ORDER BY id`

	rows, err := s.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list items for run %s: %w", runID, err)
	}
	defer rows.Close()

	var items []domain.ScrapedItem
	for rows.Next() {
		var (
			item                domain.ScrapedItem
			identityStatus      string
			listingState        string
			flag                string
			totalWei, unitWei   *string
			unitETH, unitUSD    *float64
			quantity            *int
			orderHash           *string
		)
		err := rows.Scan(
			&item.Ref.Contract, &item.Ref.URL,
			&item.Identity.Name, &item.Identity.Slug, &identityStatus,
			&item.Listing.TokenID, &item.ItemURL, &item.OpenSeaURL,
			&listingState, &item.Listing.ListPriceUSD,
			&totalWei, &unitWei, &unitETH, &unitUSD, &quantity, &orderHash,
			&flag, &item.Verdict.ProfitPercent, &item.Verdict.ProfitUSD,
			&item.ScrapedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan item: %w", err)
		}

		item.Identity.Contract = item.Ref.Contract
		item.Identity.Status = domain.IdentityStatus(identityStatus)
		item.Listing.Ref = item.Ref
		item.Listing.ItemURL = item.ItemURL
		item.Listing.State = domain.ListingState(listingState)
		item.Listing.ScrapedAt = item.ScrapedAt
		item.Verdict.Flag = domain.Flag(flag)

		if totalWei != nil && unitWei != nil {
			offer := &domain.OfferQuote{}
			offer.TotalWei, _ = new(big.Int).SetString(*totalWei, 10)
			offer.PerUnitWei, _ = new(big.Int).SetString(*unitWei, 10)
			if unitETH != nil {
				offer.PerUnitETH = *unitETH
			}
			if unitUSD != nil {
				offer.PerUnitUSD = *unitUSD
			}
			if quantity != nil {
				offer.Quantity = *quantity
			}
			if orderHash != nil {
				offer.OrderHash = *orderHash
			}
			item.Offer = offer
		}

		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate items: %w", err)
	}
	return items, nil
}

func bigIntString(v *big.Int) *string {
	if v == nil {
		return nil
	}
	s := v.String()
	return &s
}

// Compile-time interface check.
var _ domain.ItemStore = (*ItemStore)(nil)
