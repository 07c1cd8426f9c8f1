package ws

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ariefcatur/go-tour-booking/internal/orders"
)

// Update is what subscribers of one order receive.
type Update struct {
	OrderID       string               `json:"order_id"`
	Status        orders.Status        `json:"status"`
	PaymentStatus orders.PaymentStatus `json:"payment_status"`
	UpdatedAt     time.Time            `json:"updated_at"`
}

func UpdateOf(o *orders.Order) Update {
	return Update{OrderID: o.OrderID, Status: o.Status, PaymentStatus: o.PaymentStatus, UpdatedAt: o.UpdatedAt}
}

type client struct {
	hub     *Hub
	conn    *Conn
	send    chan []byte
	orderID string
}

// Hub fans order updates out to websocket subscribers, grouped by order id.
// All map access happens on the Run goroutine.
type Hub struct {
	register   chan *client
	unregister chan *client
	broadcast  chan Update
	done       chan struct{}
	clients    map[string]map[*client]bool
}

func NewHub() *Hub {
	return &Hub{
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan Update, 256),
		done:       make(chan struct{}),
		clients:    make(map[string]map[*client]bool),
	}
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case c := <-h.register:
			set, ok := h.clients[c.orderID]
			if !ok {
				set = make(map[*client]bool)
				h.clients[c.orderID] = set
			}
			set[c] = true
		case c := <-h.unregister:
			h.drop(c)
		case upd := <-h.broadcast:
			msg, err := json.Marshal(upd)
			if err != nil {
				continue
			}
			for c := range h.clients[upd.OrderID] {
				select {
				case c.send <- msg:
				default:
					// slow reader
					h.drop(c)
				}
			}
		case <-ctx.Done():
			for _, set := range h.clients {
				for c := range set {
					close(c.send)
				}
			}
			h.clients = map[string]map[*client]bool{}
			return
		}
	}
}

func (h *Hub) drop(c *client) {
	set, ok := h.clients[c.orderID]
	if !ok {
		return
	}
	if set[c] {
		delete(set, c)
		close(c.send)
	}
	if len(set) == 0 {
		delete(h.clients, c.orderID)
	}
}

// Broadcast never blocks the caller; updates are dropped when the hub is
// stopped or its queue is full.
func (h *Hub) Broadcast(u Update) {
	select {
	case h.broadcast <- u:
	case <-h.done:
	default:
	}
}

// OrderChanged pushes every committed order change to its subscribers.
func (h *Hub) OrderChanged(_ context.Context, o *orders.Order, _ orders.Status) {
	h.Broadcast(UpdateOf(o))
}

func (h *Hub) join(c *client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) leave(c *client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}
