package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"wildlife-rewards-service/internal/app"
	"wildlife-rewards-service/internal/domain"
	"wildlife-rewards-service/internal/infra/memory"
	"github.com/gorilla/websocket"
)

func newTestService(t *testing.T) (*app.RewardService, *memory.LedgerStore) {
	t.Helper()
	ledger := memory.NewLedgerStore()
	activity := memory.NewActivityLog()
	loader := memory.NewStaticSettingsLoader(domain.DefaultRewardConfig())
	return app.NewRewardService(ledger, activity, loader), ledger
}

func dialWS(t *testing.T, server *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	u := "ws" + server.URL[len("http"):] + "/ws/leaderboard" + query
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func readNext(conn *websocket.Conn, t *testing.T, expect string) (string, map[string]any) {
	t.Helper()
	var msg struct {
		Type    string         `json:"type"`
		Payload map[string]any `json:"payload"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read json: %v", err)
	}
	if expect != "" && msg.Type != expect {
		t.Fatalf("expected type %s, got %s", expect, msg.Type)
	}
	return msg.Type, msg.Payload
}

func TestWebSocketLeaderboardAndQueries(t *testing.T) {
	service, _ := newTestService(t)
	completion := domain.ActivityCompletion{
		UserID:          "u1",
		ActivityType:    domain.ActivityQuiz,
		CompletionRef:   "ref-1",
		ScorePercentage: 90,
		TimeTakenSec:    600,
		CompletedAt:     time.Now().UTC(),
	}
	if _, err := service.CalculateAndRecordReward(context.Background(), completion); err != nil {
		t.Fatalf("seed completion: %v", err)
	}

	wsHandler := NewWSHandler(service)
	mux := http.NewServeMux()
	mux.HandleFunc("/ws/leaderboard", wsHandler.ServeWS)
	server := httptest.NewServer(mux)
	defer server.Close()

	conn := dialWS(t, server, "?userId=u1")
	defer conn.Close()

	// The current projection arrives first.
	_, payload := readNext(conn, t, "leaderboard")
	entries, ok := payload["entries"].([]any)
	if !ok || len(entries) != 1 {
		t.Fatalf("expected one leaderboard entry, got %v", payload["entries"])
	}

	if err := conn.WriteJSON(map[string]any{"type": "balance"}); err != nil {
		t.Fatalf("write balance query: %v", err)
	}
	_, payload = readNext(conn, t, "balance")
	if payload["points"].(float64) != 30 || payload["credits"].(float64) != 7 {
		t.Fatalf("unexpected balance payload %v", payload)
	}

	if err := conn.WriteJSON(map[string]any{
		"type":    "allowance",
		"payload": map[string]any{"activityType": "quiz"},
	}); err != nil {
		t.Fatalf("write allowance query: %v", err)
	}
	_, payload = readNext(conn, t, "allowance")
	if payload["points"].(float64) != 270 || payload["credits"].(float64) != 43 {
		t.Fatalf("unexpected allowance payload %v", payload)
	}

	// Explicit leaderboard request with a category filter.
	if err := conn.WriteJSON(map[string]any{
		"type":    "leaderboard",
		"payload": map[string]any{"window": "category", "activityType": "myths_facts_game"},
	}); err != nil {
		t.Fatalf("write leaderboard query: %v", err)
	}
	_, payload = readNext(conn, t, "leaderboard")
	if entries, ok := payload["entries"].([]any); ok && len(entries) != 0 {
		t.Fatalf("no myths-facts earnings expected, got %v", entries)
	}

	if err := conn.WriteJSON(map[string]any{"type": "bogus"}); err != nil {
		t.Fatalf("write bogus: %v", err)
	}
	readNext(conn, t, "error")
}

func TestWebSocketRejectsMissingUser(t *testing.T) {
	service, _ := newTestService(t)
	wsHandler := NewWSHandler(service)
	mux := http.NewServeMux()
	mux.HandleFunc("/ws/leaderboard", wsHandler.ServeWS)
	server := httptest.NewServer(mux)
	defer server.Close()

	u := "ws" + server.URL[len("http"):] + "/ws/leaderboard"
	_, resp, err := websocket.DefaultDialer.Dial(u, nil)
	if err == nil {
		t.Fatalf("expected handshake failure without userId")
	}
	if resp == nil || resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %+v", resp)
	}
}

func TestWebSocketReceivesLiveUpdates(t *testing.T) {
	service, _ := newTestService(t)
	wsHandler := NewWSHandler(service)
	mux := http.NewServeMux()
	mux.HandleFunc("/ws/leaderboard", wsHandler.ServeWS)
	server := httptest.NewServer(mux)
	defer server.Close()

	conn := dialWS(t, server, "?userId=u2")
	defer conn.Close()

	// Initial empty projection.
	_, payload := readNext(conn, t, "leaderboard")
	if entries, ok := payload["entries"].([]any); ok && len(entries) != 0 {
		t.Fatalf("expected empty board, got %v", entries)
	}

	completion := domain.ActivityCompletion{
		UserID:          "u2",
		ActivityType:    domain.ActivityQuiz,
		CompletionRef:   "ref-live",
		ScorePercentage: 95,
		TimeTakenSec:    600,
		CompletedAt:     time.Now().UTC(),
	}
	if _, err := service.CalculateAndRecordReward(context.Background(), completion); err != nil {
		t.Fatalf("completion: %v", err)
	}

	_, payload = readNext(conn, t, "leaderboard")
	entries, ok := payload["entries"].([]any)
	if !ok || len(entries) != 1 {
		t.Fatalf("expected a live frame with one entry, got %v", payload["entries"])
	}
}
