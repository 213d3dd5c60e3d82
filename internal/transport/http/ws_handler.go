package http

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"wildlife-rewards-service/internal/app"
	"wildlife-rewards-service/internal/domain"
	"github.com/gorilla/websocket"
)

// WSHandler streams live leaderboard frames to connected clients and
// answers leaderboard, balance and allowance queries over the same socket.
type WSHandler struct {
	service  *app.RewardService
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.RewardService) *WSHandler {
	return &WSHandler{
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type allowancePayload struct {
	ActivityType string `json:"activityType"`
}

type leaderboardPayload struct {
	Window       string `json:"window"`
	ActivityType string `json:"activityType"`
	TopN         int    `json:"topN"`
}

type allowanceResult struct {
	ActivityType string `json:"activityType"`
	Points       int    `json:"points"`
	Credits      int    `json:"credits"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades HTTP requests to websockets and wires them into the
// leaderboard feed. The authenticated user id arrives from the identity
// layer; this handler only passes it through.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		http.Error(w, "missing userId", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	updates, cancel := h.service.SubscribeLeaderboard()
	defer cancel()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case update, ok := <-updates:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage[any]{Type: "leaderboard", Payload: update}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	if lb, err := h.service.GetLeaderboard(r.Context(), domain.WindowWeekly, "", 0); err == nil {
		send <- outboundMessage[any]{Type: "leaderboard", Payload: lb}
	}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "balance":
			balance, err := h.service.GetBalance(r.Context(), userID)
			if err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
				continue
			}
			send <- outboundMessage[any]{Type: "balance", Payload: balance}
		case "leaderboard":
			var payload leaderboardPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid leaderboard payload"}}
				continue
			}
			window := domain.Window(payload.Window)
			if window == "" {
				window = domain.WindowWeekly
			}
			lb, err := h.service.GetLeaderboard(r.Context(), window, domain.ActivityType(payload.ActivityType), payload.TopN)
			if err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
				continue
			}
			send <- outboundMessage[any]{Type: "leaderboard", Payload: lb}
		case "allowance":
			var payload allowancePayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid allowance payload"}}
				continue
			}
			points, credits, err := h.service.GetDailyAllowanceRemaining(
				r.Context(), userID, domain.ActivityType(payload.ActivityType), time.Now())
			if err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
				continue
			}
			send <- outboundMessage[any]{Type: "allowance", Payload: allowanceResult{
				ActivityType: payload.ActivityType,
				Points:       points,
				Credits:      credits,
			}}
		default:
			send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}}
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}
