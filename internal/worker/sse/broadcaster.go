// Package sse provides Server-Sent Events broadcasting for the console worker.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Event is the envelope pushed to dashboard clients.
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// Client represents a connected SSE client.
type Client struct {
	ID      string
	Writer  http.ResponseWriter
	Flusher http.Flusher
	Done    chan struct{}
}

// Broadcaster manages SSE client connections and event broadcasting.
type Broadcaster struct {
	clients map[string]*Client
	mu      sync.RWMutex
}

// NewBroadcaster creates a new SSE broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		clients: make(map[string]*Client),
	}
}

// AddClient registers a new SSE client connection.
func (b *Broadcaster) AddClient(w http.ResponseWriter) (*Client, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported")
	}

	client := &Client{
		ID:      uuid.NewString(),
		Writer:  w,
		Flusher: flusher,
		Done:    make(chan struct{}),
	}

	b.mu.Lock()
	b.clients[client.ID] = client
	clientCount := len(b.clients)
	b.mu.Unlock()

	log.Debug().
		Str("clientId", client.ID).
		Int("totalClients", clientCount).
		Msg("SSE client connected")

	return client, nil
}

// RemoveClient removes a client connection.
func (b *Broadcaster) RemoveClient(client *Client) {
	b.mu.Lock()
	delete(b.clients, client.ID)
	clientCount := len(b.clients)
	b.mu.Unlock()

	close(client.Done)

	log.Debug().
		Str("clientId", client.ID).
		Int("totalClients", clientCount).
		Msg("SSE client disconnected")
}

// removeClientByID removes a client by ID (for dead client cleanup).
func (b *Broadcaster) removeClientByID(id string) {
	b.mu.Lock()
	client, exists := b.clients[id]
	if exists {
		delete(b.clients, id)
	}
	b.mu.Unlock()

	if exists && client.Done != nil {
		select {
		case <-client.Done:
		default:
			close(client.Done)
		}
	}
}

// Broadcast sends an event to all connected clients. Fire-and-forget:
// write failures drop the dead client but never surface to the caller.
func (b *Broadcaster) Broadcast(eventType string, data interface{}) {
	jsonData, err := json.Marshal(Event{Type: eventType, Data: data})
	if err != nil {
		log.Error().Err(err).Str("eventType", eventType).Msg("Failed to marshal SSE event")
		return
	}

	message := fmt.Sprintf("data: %s\n\n", jsonData)

	b.mu.RLock()
	clients := make([]*Client, 0, len(b.clients))
	for _, client := range b.clients {
		clients = append(clients, client)
	}
	b.mu.RUnlock()

	var deadClients []*Client

	for _, client := range clients {
		select {
		case <-client.Done:
			continue
		default:
			if _, err := client.Writer.Write([]byte(message)); err != nil {
				deadClients = append(deadClients, client)
				continue
			}
			client.Flusher.Flush()
		}
	}

	for _, client := range deadClients {
		b.removeClientByID(client.ID)
	}
}

// ClientCount returns the number of connected clients.
func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// HandleSSE handles an SSE connection request.
func (b *Broadcaster) HandleSSE(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	client, err := b.AddClient(w)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer b.RemoveClient(client)

	fmt.Fprintf(w, "data: {\"type\":\"connected\",\"clientId\":\"%s\"}\n\n", client.ID)
	client.Flusher.Flush()

	<-r.Context().Done()
}
