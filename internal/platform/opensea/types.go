package opensea

import (
	"fmt"
	"math/big"
	"strconv"

	"github.com/alanyoungcy/niftyarb/internal/domain"
)

// considerationItemTypeEdition marks a consideration entry as a multi-edition
// (fractionalizable) asset whose startAmount carries the offer quantity.
// Single-edition considerations use other item types and always imply
// quantity 1.
const considerationItemTypeEdition = 4

// apiContract is the wire shape of a contract lookup response.
type apiContract struct {
	Address    string `json:"address"`
	Name       string `json:"name"`
	Collection string `json:"collection"`
}

// apiBestOffer is the wire shape of a best-offer response. Only the fields the
// scanner needs are mapped; the protocol data carries the Seaport order.
type apiBestOffer struct {
	OrderHash    string `json:"order_hash"`
	ProtocolData *struct {
		Parameters struct {
			Offer []struct {
				StartAmount string `json:"startAmount"`
			} `json:"offer"`
			Consideration []struct {
				ItemType    int    `json:"itemType"`
				StartAmount string `json:"startAmount"`
			} `json:"consideration"`
		} `json:"parameters"`
	} `json:"protocol_data"`
}

// BestOffer is the normalized result of a best-offer query: the raw total
// amount in wei, the edition quantity it covers, and the order hash.
type BestOffer struct {
	TotalWei  *big.Int
	Quantity  int
	OrderHash string
}

// toBestOffer extracts the offer amount and quantity from the protocol data.
// A response without protocol data or without offer entries is a valid
// "no offer" result and yields (nil, nil).
func (a *apiBestOffer) toBestOffer() (*BestOffer, error) {
	if a.ProtocolData == nil || len(a.ProtocolData.Parameters.Offer) == 0 {
		return nil, nil
	}

	totalWei, ok := new(big.Int).SetString(a.ProtocolData.Parameters.Offer[0].StartAmount, 10)
	if !ok {
		return nil, fmt.Errorf("%w: bad offer amount %q",
			domain.ErrMalformedData, a.ProtocolData.Parameters.Offer[0].StartAmount)
	}

	quantity := 1
	for _, item := range a.ProtocolData.Parameters.Consideration {
		if item.ItemType != considerationItemTypeEdition {
			continue
		}
		if q, err := strconv.Atoi(item.StartAmount); err == nil && q >= 1 {
			quantity = q
			break
		}
	}

	return &BestOffer{
		TotalWei:  totalWei,
		Quantity:  quantity,
		OrderHash: a.OrderHash,
	}, nil
}
