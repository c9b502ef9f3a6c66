package websocket

import (
	"context"

	"collabhub/internal/metrics"

	"go.uber.org/zap"
)

type commandKind int

const (
	cmdRegister commandKind = iota
	cmdUnregister
	cmdSubscribe
	cmdUnsubscribe
	cmdBroadcast
	cmdBroadcastAll
	cmdSend
	cmdCount
)

type command struct {
	kind    commandKind
	client  *Client
	rooms   []string
	exclude *Client
	frame   []byte
	reply   chan int
}

// Hub owns every live client and the room subscriptions. All state is
// touched only by the Run goroutine; callers submit commands, which are
// applied in the order they are received.
type Hub struct {
	clients  map[*Client]map[string]struct{}
	rooms    map[string]map[*Client]struct{}
	commands chan command
	done     chan struct{}
	metrics  *metrics.Metrics
	log      *zap.SugaredLogger
}

func NewHub(m *metrics.Metrics, log *zap.SugaredLogger) *Hub {
	return &Hub{
		clients:  make(map[*Client]map[string]struct{}),
		rooms:    make(map[string]map[*Client]struct{}),
		commands: make(chan command),
		done:     make(chan struct{}),
		metrics:  m,
		log:      log,
	}
}

// Run applies commands until ctx is cancelled, then closes every client's
// send channel.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				close(client.send)
			}
			h.clients = nil
			h.rooms = nil
			h.log.Info("Hub stopped")
			return

		case cmd := <-h.commands:
			h.apply(cmd)
		}
	}
}

func (h *Hub) apply(cmd command) {
	switch cmd.kind {
	case cmdRegister:
		h.clients[cmd.client] = make(map[string]struct{})
		h.join(cmd.client, cmd.rooms)

	case cmdUnregister:
		h.remove(cmd.client)

	case cmdSubscribe:
		if _, ok := h.clients[cmd.client]; ok {
			h.join(cmd.client, cmd.rooms)
		}

	case cmdUnsubscribe:
		subs, ok := h.clients[cmd.client]
		if !ok {
			return
		}
		for _, room := range cmd.rooms {
			delete(subs, room)
			h.leave(cmd.client, room)
		}

	case cmdBroadcast:
		seen := make(map[*Client]struct{})
		var targets []*Client
		for _, room := range cmd.rooms {
			for client := range h.rooms[room] {
				if client == cmd.exclude {
					continue
				}
				if _, dup := seen[client]; dup {
					continue
				}
				seen[client] = struct{}{}
				targets = append(targets, client)
			}
		}
		h.deliver(targets, cmd.frame)

	case cmdBroadcastAll:
		targets := make([]*Client, 0, len(h.clients))
		for client := range h.clients {
			targets = append(targets, client)
		}
		h.deliver(targets, cmd.frame)

	case cmdSend:
		h.deliver([]*Client{cmd.client}, cmd.frame)

	case cmdCount:
		if len(cmd.rooms) == 0 {
			cmd.reply <- len(h.clients)
		} else {
			cmd.reply <- len(h.rooms[cmd.rooms[0]])
		}
	}
}

func (h *Hub) join(client *Client, rooms []string) {
	for _, room := range rooms {
		h.clients[client][room] = struct{}{}
		members, ok := h.rooms[room]
		if !ok {
			members = make(map[*Client]struct{})
			h.rooms[room] = members
		}
		members[client] = struct{}{}
	}
}

func (h *Hub) leave(client *Client, room string) {
	members, ok := h.rooms[room]
	if !ok {
		return
	}
	delete(members, client)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
}

func (h *Hub) remove(client *Client) {
	subs, ok := h.clients[client]
	if !ok {
		return
	}
	for room := range subs {
		h.leave(client, room)
	}
	delete(h.clients, client)
	close(client.send)
}

// deliver queues frame for each target still registered. A client whose
// send buffer is full is dropped.
func (h *Hub) deliver(targets []*Client, frame []byte) {
	for _, client := range targets {
		if _, ok := h.clients[client]; !ok {
			continue
		}
		select {
		case client.send <- frame:
		default:
			h.log.Warnw("Dropping slow client", "userId", client.user.ID, "connId", client.connID)
			h.metrics.SlowClients.Inc()
			h.remove(client)
		}
	}
}

func (h *Hub) submit(cmd command) {
	select {
	case h.commands <- cmd:
	case <-h.done:
	}
}

func (h *Hub) register(client *Client, rooms ...string) {
	h.submit(command{kind: cmdRegister, client: client, rooms: rooms})
}

func (h *Hub) unregister(client *Client) {
	h.submit(command{kind: cmdUnregister, client: client})
}

func (h *Hub) subscribe(client *Client, rooms ...string) {
	h.submit(command{kind: cmdSubscribe, client: client, rooms: rooms})
}

// unsubscribe is a no-op for rooms the client never joined.
func (h *Hub) unsubscribe(client *Client, rooms ...string) {
	h.submit(command{kind: cmdUnsubscribe, client: client, rooms: rooms})
}

// broadcast sends frame once to every client in any of rooms, except exclude.
func (h *Hub) broadcast(rooms []string, exclude *Client, frame []byte) {
	h.submit(command{kind: cmdBroadcast, rooms: rooms, exclude: exclude, frame: frame})
}

func (h *Hub) broadcastAll(frame []byte) {
	h.submit(command{kind: cmdBroadcastAll, frame: frame})
}

func (h *Hub) send(client *Client, frame []byte) {
	h.submit(command{kind: cmdSend, client: client, frame: frame})
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int {
	return h.count(nil)
}

// RoomSize returns the number of clients subscribed to room.
func (h *Hub) RoomSize(room string) int {
	return h.count([]string{room})
}

func (h *Hub) count(rooms []string) int {
	reply := make(chan int, 1)
	h.submit(command{kind: cmdCount, rooms: rooms, reply: reply})
	select {
	case n := <-reply:
		return n
	case <-h.done:
		return 0
	}
}
