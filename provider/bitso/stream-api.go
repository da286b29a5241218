package bitso

import (
	"encoding/json"
	"fmt"

	"github.com/spooky-finn/go-bitso-bridge/domain"
)

const diffOrdersChannel = "diff-orders"

// StreamAPI turns raw websocket frames into typed domain messages.
type StreamAPI struct {
	client *StreamClient
}

func NewStreamAPI(client *StreamClient) *StreamAPI {
	return &StreamAPI{client: client}
}

type diffOrdersFrame struct {
	Type     string          `json:"type"`
	Book     string          `json:"book"`
	Sequence int64           `json:"sequence"`
	Payload  []diffOrderItem `json:"payload"`
}

// diffOrderItem uses the exchange's single-letter wire names: o is the order
// id, r the rate (price), a the amount, t the side (0 buy, 1 sell), d the
// order timestamp. A missing or empty amount means the order left the book.
type diffOrderItem struct {
	OID       string `json:"o"`
	Rate      string `json:"r"`
	Side      int    `json:"t"`
	Amount    string `json:"a"`
	Value     string `json:"v"`
	Timestamp int64  `json:"d"`
}

// DiffOrdersStream subscribes to the incremental order book updates of one
// book. Messages arrive one at a time, in receive order.
func (s *StreamAPI) DiffOrdersStream(symbol *domain.MarketSymbol) (*domain.Subscription[*domain.DiffMessage], error) {
	subscription, err := s.client.Subscribe(symbol.String(), diffOrdersChannel)
	if err != nil {
		return nil, err
	}

	out := make(chan *domain.DiffMessage)
	go func() {
		defer close(out)
		for msg := range subscription.Stream {
			diff, err := parseDiffOrders(msg)
			if err != nil {
				logger.Printf("dropping unparsable diff-orders message: %s", err)
				continue
			}
			out <- diff
		}
	}()

	return &domain.Subscription[*domain.DiffMessage]{
		Stream:      out,
		Topic:       subscription.Topic,
		Unsubscribe: subscription.Unsubscribe,
	}, nil
}

func parseDiffOrders(msg []byte) (*domain.DiffMessage, error) {
	var frame diffOrdersFrame
	if err := json.Unmarshal(msg, &frame); err != nil {
		return nil, err
	}
	if frame.Type != diffOrdersChannel {
		return nil, fmt.Errorf("unexpected frame type %q", frame.Type)
	}

	entries := make([]domain.DiffEntry, len(frame.Payload))
	for i, item := range frame.Payload {
		entries[i] = domain.DiffEntry{
			Side:   wireSideToOrderSide(item.Side),
			ID:     item.OID,
			Price:  item.Rate,
			Amount: item.Amount,
		}
	}

	return &domain.DiffMessage{
		Sequence: frame.Sequence,
		Entries:  entries,
	}, nil
}

func wireSideToOrderSide(side int) domain.OrderSide {
	if side == 1 {
		return domain.OrderSide_Sell
	}
	return domain.OrderSide_Buy
}
