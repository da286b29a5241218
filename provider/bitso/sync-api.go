package bitso

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/spooky-finn/go-bitso-bridge/domain"
)

var logger = log.New(log.Writer(), "[bitso] ", log.LstdFlags)

// SyncAPI is the bitso REST client, the non-streaming half of the transport.
type SyncAPI struct {
	endpoint string
	client   *http.Client
}

func NewSyncAPI(endpoint string) *SyncAPI {
	return &SyncAPI{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 15 * time.Second},
	}
}

type restEnvelope[T any] struct {
	Success bool            `json:"success"`
	Payload T               `json:"payload"`
	Error   json.RawMessage `json:"error"`
}

type restBookLevel struct {
	Book   string `json:"book"`
	Price  string `json:"price"`
	Amount string `json:"amount"`
	OID    string `json:"oid"`
}

type restOrderBook struct {
	Sequence string          `json:"sequence"`
	Asks     []restBookLevel `json:"asks"`
	Bids     []restBookLevel `json:"bids"`
}

type restTrade struct {
	Book      string `json:"book"`
	TID       int64  `json:"tid"`
	CreatedAt string `json:"created_at"`
	Amount    string `json:"amount"`
	MakerSide string `json:"maker_side"`
	Price     string `json:"price"`
}

// OrderBookSnapshot fetches the full unaggregated book, order ids included.
func (api *SyncAPI) OrderBookSnapshot(symbol *domain.MarketSymbol) (*domain.OrderBookSnapshot, error) {
	query := url.Values{}
	query.Set("book", symbol.String())
	query.Set("aggregate", "false")

	var book restOrderBook
	if err := api.getJSON("/v3/order_book/", query, &book); err != nil {
		return nil, fmt.Errorf("failed to get order book snapshot: %w", err)
	}

	sequence, err := strconv.ParseInt(book.Sequence, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse snapshot sequence %q: %w", book.Sequence, err)
	}

	return &domain.OrderBookSnapshot{
		Sequence: sequence,
		Asks:     toDomainOrders(book.Asks),
		Bids:     toDomainOrders(book.Bids),
	}, nil
}

// Trades pages through the trade history relative to markerID.
func (api *SyncAPI) Trades(symbol *domain.MarketSymbol, markerID string, sort domain.TradesSort, limit int) ([]*domain.Trade, error) {
	query := url.Values{}
	query.Set("book", symbol.String())
	query.Set("sort", string(sort))
	query.Set("limit", strconv.Itoa(limit))
	if markerID != "" {
		query.Set("marker", markerID)
	}

	var trades []restTrade
	if err := api.getJSON("/v3/trades/", query, &trades); err != nil {
		return nil, fmt.Errorf("failed to get trades page: %w", err)
	}
	return toDomainTrades(trades), nil
}

// NewestTrade returns the single most recent trade of the book.
func (api *SyncAPI) NewestTrade(symbol *domain.MarketSymbol) (*domain.Trade, error) {
	trades, err := api.Trades(symbol, "", domain.TradesSort_Desc, 1)
	if err != nil {
		return nil, err
	}
	if len(trades) == 0 {
		return nil, fmt.Errorf("book %s has no trades yet", symbol)
	}
	return trades[0], nil
}

func (api *SyncAPI) getJSON(path string, query url.Values, payload interface{}) error {
	resp, err := api.client.Get(api.endpoint + path + "?" + query.Encode())
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	envelope := restEnvelope[json.RawMessage]{}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("failed to unmarshal response body: %w", err)
	}
	if !envelope.Success {
		return fmt.Errorf("exchange reported failure: %s", envelope.Error)
	}
	return json.Unmarshal(envelope.Payload, payload)
}

func toDomainOrders(levels []restBookLevel) []domain.Order {
	orders := make([]domain.Order, len(levels))
	for i, level := range levels {
		orders[i] = domain.Order{
			ID:     level.OID,
			Price:  level.Price,
			Amount: level.Amount,
		}
	}
	return orders
}

func toDomainTrades(trades []restTrade) []*domain.Trade {
	result := make([]*domain.Trade, len(trades))
	for i, t := range trades {
		createdAt, err := time.Parse(time.RFC3339, t.CreatedAt)
		if err != nil {
			logger.Printf("unparsable trade creation time %q for trade %d", t.CreatedAt, t.TID)
		}
		result[i] = &domain.Trade{
			TradeID:   strconv.FormatInt(t.TID, 10),
			CreatedAt: createdAt,
			Amount:    t.Amount,
			Side:      makerSideToOrderSide(t.MakerSide),
			Price:     t.Price,
		}
	}
	return result
}

func makerSideToOrderSide(side string) domain.OrderSide {
	if side == "sell" {
		return domain.OrderSide_Sell
	}
	return domain.OrderSide_Buy
}
