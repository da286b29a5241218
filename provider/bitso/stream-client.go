package bitso

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/recws-org/recws"
	"github.com/spooky-finn/go-bitso-bridge/domain"
)

// readErrorDelay paces the read loop while the underlying connection is down.
const readErrorDelay = 250 * time.Millisecond

// StreamClient is a reconnecting websocket session against the exchange push
// API. Subscriptions survive reconnects: the subscribe messages are replayed
// whenever the underlying connection is re-established.
type StreamClient struct {
	endpoint string
	conn     *recws.RecConn

	mu            sync.Mutex
	subscriptions map[string]*subscriptionEntry

	done     chan struct{}
	stopOnce sync.Once
}

type subscriptionEntry struct {
	ch              chan []byte
	subscriberCount int

	// done aborts in-flight deliveries once the last subscriber left;
	// senders tracks them so ch is closed only after they drained.
	done    chan struct{}
	senders sync.WaitGroup
}

type subscribeMessage struct {
	Action string `json:"action"`
	Book   string `json:"book"`
	Type   string `json:"type"`
}

// streamFrame is the part of every websocket frame needed for routing.
type streamFrame struct {
	Type     string `json:"type"`
	Book     string `json:"book"`
	Action   string `json:"action"`
	Response string `json:"response"`
}

func NewStreamClient(endpoint string) *StreamClient {
	return &StreamClient{
		endpoint:      endpoint,
		subscriptions: make(map[string]*subscriptionEntry),
		done:          make(chan struct{}),
	}
}

func (c *StreamClient) Connect() error {
	conn := &recws.RecConn{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: 5 * time.Second,
		NonVerbose:       false,
	}
	conn.SubscribeHandler = c.resubscribeAll
	conn.Dial(c.endpoint, nil)
	c.conn = conn

	go c.read()
	logger.Printf("connected to the stream websocket at %s", c.endpoint)
	return nil
}

// Subscribe opens a channel subscription for one (book, type) topic. Repeated
// subscriptions to the same topic share one websocket subscription.
func (c *StreamClient) Subscribe(book string, channelType string) (*domain.Subscription[[]byte], error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	topic := topicKey(book, channelType)
	entry, ok := c.subscriptions[topic]
	if ok {
		entry.subscriberCount++
	} else {
		entry = &subscriptionEntry{
			ch:              make(chan []byte),
			subscriberCount: 1,
			done:            make(chan struct{}),
		}
		c.subscriptions[topic] = entry

		logger.Printf("subscribing to %s", topic)
		if err := c.conn.WriteJSON(subscribeMessage{Action: "subscribe", Book: book, Type: channelType}); err != nil {
			delete(c.subscriptions, topic)
			return nil, fmt.Errorf("failed to send subscribe message for topic %s: %w", topic, err)
		}
	}

	return &domain.Subscription[[]byte]{
		Stream: entry.ch,
		Topic:  topic,
		Unsubscribe: func() {
			c.unsubscribe(book, channelType)
		},
	}, nil
}

func (c *StreamClient) unsubscribe(book string, channelType string) {
	topic := topicKey(book, channelType)

	c.mu.Lock()
	entry, ok := c.subscriptions[topic]
	if !ok {
		c.mu.Unlock()
		return
	}
	if entry.subscriberCount > 1 {
		entry.subscriberCount--
		c.mu.Unlock()
		return
	}
	delete(c.subscriptions, topic)
	close(entry.done)
	c.mu.Unlock()

	// The router may be mid-delivery on this entry; closing done aborts it,
	// and ch is only closed once every in-flight send has drained.
	entry.senders.Wait()
	close(entry.ch)
	logger.Printf("unsubscribed from %s", topic)
}

// Close terminates the session and stops reconnecting. Safe to call twice and
// safe to call on a client that never connected.
func (c *StreamClient) Close() error {
	c.stopOnce.Do(func() {
		close(c.done)
		if c.conn != nil {
			c.conn.Close()
		}
	})
	return nil
}

// resubscribeAll is invoked by the reconnecting websocket after every
// re-established connection.
func (c *StreamClient) resubscribeAll() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for topic := range c.subscriptions {
		book, channelType := splitTopicKey(topic)
		logger.Printf("resubscribing to %s after reconnect", topic)
		if err := c.conn.WriteJSON(subscribeMessage{Action: "subscribe", Book: book, Type: channelType}); err != nil {
			return err
		}
	}
	return nil
}

func (c *StreamClient) read() {
	for {
		select {
		case <-c.done:
			return
		default:
		}

		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
				return
			default:
			}
			logger.Printf("error while reading from the stream connection: %s", err)

			// While a reconnect is pending ReadMessage fails without
			// blocking, so pause instead of spinning on a dead connection.
			select {
			case <-c.done:
				return
			case <-time.After(readErrorDelay):
			}
			continue
		}
		c.route(msg)
	}
}

func (c *StreamClient) route(msg []byte) {
	var frame streamFrame
	if err := json.Unmarshal(msg, &frame); err != nil {
		logger.Printf("dropping unparsable stream frame: %s", err)
		return
	}

	switch {
	case frame.Action == "subscribe":
		if frame.Response != "ok" {
			logger.Printf("subscribe request was not accepted: %s", string(msg))
		}
	case frame.Type == "ka":
		// keep-alive, nothing to do
	default:
		c.mu.Lock()
		entry, ok := c.subscriptions[topicKey(frame.Book, frame.Type)]
		if ok {
			entry.senders.Add(1)
		}
		c.mu.Unlock()
		if !ok {
			return
		}

		select {
		case entry.ch <- msg:
		case <-entry.done:
		}
		entry.senders.Done()
	}
}

func topicKey(book string, channelType string) string {
	return book + ":" + channelType
}

func splitTopicKey(topic string) (book string, channelType string) {
	for i := 0; i < len(topic); i++ {
		if topic[i] == ':' {
			return topic[:i], topic[i+1:]
		}
	}
	return topic, ""
}
