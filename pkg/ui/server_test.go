package ui

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/anonchat/anonchat/pkg/anonchat"
	"github.com/anonchat/anonchat/pkg/config"
)

// newTestServer brings up a started node on loopback and an httptest
// server around the API handler.
func newTestServer(t *testing.T, port int) (*anonchat.Node, *httptest.Server) {
	t.Helper()

	settings := config.Default()
	settings.InterfaceIP = "127.0.0.1"
	settings.BroadcastIP = "127.0.0.1"
	settings.Port = port

	node, err := anonchat.New(anonchat.Config{Settings: settings})
	if err != nil {
		t.Fatalf("anonchat.New() error = %v", err)
	}
	if err := node.Start(); err != nil {
		t.Fatalf("node Start() error = %v", err)
	}

	srv := httptest.NewServer(New(Config{Node: node}).Handler())
	t.Cleanup(func() {
		srv.Close()
		node.Stop()
	})
	return node, srv
}

func getJSON(t *testing.T, url string, wantStatus int) map[string]interface{} {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s error = %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != wantStatus {
		t.Fatalf("GET %s status = %d, want %d", url, resp.StatusCode, wantStatus)
	}
	var out map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func postJSON(t *testing.T, url string, body interface{}, wantStatus int) map[string]interface{} {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("POST %s error = %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != wantStatus {
		t.Fatalf("POST %s status = %d, want %d", url, resp.StatusCode, wantStatus)
	}
	var out map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func TestStateEndpoint(t *testing.T) {
	node, srv := newTestServer(t, 55701)

	state := getJSON(t, srv.URL+"/api/state", http.StatusOK)

	me, ok := state["me"].(map[string]interface{})
	if !ok || me["id"] != node.Identity().AnonID() {
		t.Errorf("me = %v", state["me"])
	}
	iface, ok := state["interface"].(map[string]interface{})
	if !ok || iface["current"] != "127.0.0.1" {
		t.Errorf("interface = %v", state["interface"])
	}
	if _, ok := state["messages"]; !ok {
		t.Errorf("state missing messages: %v", state)
	}
}

func TestStateMessageFilter(t *testing.T) {
	node, srv := newTestServer(t, 55702)

	if _, err := node.Send("all", "first"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if _, err := node.Send("all", "second"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	state := getJSON(t, srv.URL+"/api/state?after=1", http.StatusOK)
	msgs, ok := state["messages"].([]interface{})
	if !ok || len(msgs) != 1 {
		t.Fatalf("messages = %v", state["messages"])
	}
	msg := msgs[0].(map[string]interface{})
	if msg["text"] != "second" || msg["direction"] != "out" {
		t.Errorf("message = %v", msg)
	}
	if _, ok := msg["iso"].(string); !ok {
		t.Errorf("message missing iso timestamp: %v", msg)
	}
}

func TestSendValidation(t *testing.T) {
	_, srv := newTestServer(t, 55703)

	resp := postJSON(t, srv.URL+"/api/send", map[string]string{"room": "all", "text": "  "}, http.StatusBadRequest)
	if resp["error"] != "Message is empty" {
		t.Errorf("error = %v", resp["error"])
	}

	resp = postJSON(t, srv.URL+"/api/send", map[string]string{"room": "anon-ffffffff", "text": "hi"}, http.StatusBadRequest)
	if !strings.HasPrefix(resp["error"].(string), "Unknown peer:") {
		t.Errorf("error = %v", resp["error"])
	}

	resp = postJSON(t, srv.URL+"/api/send", map[string]string{"room": "all", "text": "hello"}, http.StatusOK)
	if resp["ok"] != true || resp["sent"] != float64(0) {
		t.Errorf("response = %v", resp)
	}
}

func TestNicknameEndpoint(t *testing.T) {
	node, srv := newTestServer(t, 55704)

	resp := postJSON(t, srv.URL+"/api/nickname", map[string]string{"nickname": "Alice"}, http.StatusOK)
	if resp["nickname"] != "Alice" {
		t.Errorf("response = %v", resp)
	}
	if node.Identity().Nickname() != "Alice" {
		t.Errorf("nickname not applied: %q", node.Identity().Nickname())
	}

	long := strings.Repeat("x", 33)
	resp = postJSON(t, srv.URL+"/api/nickname", map[string]string{"nickname": long}, http.StatusBadRequest)
	if resp["error"] != "Nickname too long (max 32)" {
		t.Errorf("error = %v", resp["error"])
	}
}

func TestInterfacesEndpoint(t *testing.T) {
	_, srv := newTestServer(t, 55705)

	resp := getJSON(t, srv.URL+"/api/interfaces", http.StatusOK)
	if _, ok := resp["interfaces"].([]interface{}); !ok {
		t.Errorf("interfaces = %v", resp["interfaces"])
	}

	bad := postJSON(t, srv.URL+"/api/interface", map[string]string{}, http.StatusBadRequest)
	if bad["error"] != "Missing ip" {
		t.Errorf("error = %v", bad["error"])
	}
}

func TestRoomEndpoints(t *testing.T) {
	node, srv := newTestServer(t, 55706)

	// Validation errors.
	resp := postJSON(t, srv.URL+"/api/rooms", map[string]interface{}{"name": ""}, http.StatusBadRequest)
	if resp["error"] != "Room name required" {
		t.Errorf("error = %v", resp["error"])
	}
	resp = postJSON(t, srv.URL+"/api/rooms", map[string]interface{}{"name": "vault", "password": "abc"}, http.StatusBadRequest)
	if resp["error"] != "Password too short (min 4)" {
		t.Errorf("error = %v", resp["error"])
	}

	// Create.
	resp = postJSON(t, srv.URL+"/api/rooms", map[string]interface{}{"name": "lounge"}, http.StatusOK)
	room, ok := resp["room"].(map[string]interface{})
	if !ok || room["name"] != "lounge" || room["is_owner"] != true {
		t.Fatalf("room = %v", resp["room"])
	}
	roomID := room["id"].(string)

	// Owner self-join short-circuits.
	resp = postJSON(t, srv.URL+"/api/rooms/join", map[string]string{"room_id": roomID}, http.StatusOK)
	if resp["ok"] != true {
		t.Errorf("join response = %v", resp)
	}

	// Unknown room paths.
	resp = postJSON(t, srv.URL+"/api/rooms/join", map[string]string{"room_id": "room_missing"}, http.StatusNotFound)
	if resp["error"] != "Room not found" {
		t.Errorf("error = %v", resp["error"])
	}
	postJSON(t, srv.URL+"/api/rooms/join", map[string]string{}, http.StatusBadRequest)

	// Owner cannot leave or kick itself.
	resp = postJSON(t, srv.URL+"/api/rooms/leave", map[string]string{"room_id": roomID}, http.StatusBadRequest)
	if resp["error"] != "Owner cannot leave the room" {
		t.Errorf("error = %v", resp["error"])
	}
	resp = postJSON(t, srv.URL+"/api/rooms/kick",
		map[string]string{"room_id": roomID, "member_id": node.Identity().AnonID()}, http.StatusBadRequest)
	if resp["error"] != "Owner cannot kick self" {
		t.Errorf("error = %v", resp["error"])
	}
	resp = postJSON(t, srv.URL+"/api/rooms/kick",
		map[string]string{"room_id": roomID, "member_id": "anon-ffffffff"}, http.StatusNotFound)
	if resp["error"] != "Member not found" {
		t.Errorf("error = %v", resp["error"])
	}

	// The room shows up in state.
	state := getJSON(t, srv.URL+"/api/state", http.StatusOK)
	roomsList, ok := state["rooms"].([]interface{})
	if !ok || len(roomsList) != 1 {
		t.Errorf("state rooms = %v", state["rooms"])
	}
}

func TestMethodNotAllowed(t *testing.T) {
	_, srv := newTestServer(t, 55707)

	resp, err := http.Post(srv.URL+"/api/state", "application/json", nil)
	if err != nil {
		t.Fatalf("POST error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("POST /api/state status = %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/api/send")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("GET /api/send status = %d", resp.StatusCode)
	}
}
