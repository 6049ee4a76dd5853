package signaling

import (
	"strings"
	"testing"
)

func TestParseMessage_ValidInbound(t *testing.T) {
	for _, tc := range []struct {
		name string
		raw  string
		want MessageType
	}{
		{"check-room", `{"type":"check-room","roomId":"r1"}`, TypeCheckRoom},
		{"auto-match", `{"type":"auto-match"}`, TypeAutoMatch},
		{"join-room with id", `{"type":"join-room","roomId":"r1"}`, TypeJoinRoom},
		{"join-room without id", `{"type":"join-room"}`, TypeJoinRoom},
		{"leave-room", `{"type":"leave-room","roomId":"r1"}`, TypeLeaveRoom},
		{"offer", `{"type":"offer","roomId":"r1","sdp":{"type":"offer","sdp":"v=0"}}`, TypeOffer},
		{"answer", `{"type":"answer","roomId":"r1","sdp":{"type":"answer","sdp":"v=0"}}`, TypeAnswer},
		{"ice-candidate", `{"type":"ice-candidate","roomId":"r1","candidate":{"candidate":"candidate:1"}}`, TypeICECandidate},
	} {
		t.Run(tc.name, func(t *testing.T) {
			msg, err := ParseMessage([]byte(tc.raw))
			if err != nil {
				t.Fatalf("ParseMessage: %v", err)
			}
			if msg.Type != tc.want {
				t.Fatalf("type = %q, want %q", msg.Type, tc.want)
			}
		})
	}
}

func TestParseMessage_PayloadIsKeptVerbatim(t *testing.T) {
	raw := `{"type":"offer","roomId":"r1","sdp":{"type":"offer","sdp":"v=0\r\no=- 1 1 IN IP4 0.0.0.0"}}`
	msg, err := ParseMessage([]byte(raw))
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	if !strings.Contains(string(msg.SDP), `"v=0\r\no=- 1 1 IN IP4 0.0.0.0"`) {
		t.Fatalf("sdp payload was altered: %s", msg.SDP)
	}
}

func TestParseMessage_Rejects(t *testing.T) {
	for _, tc := range []struct {
		name string
		raw  string
	}{
		{"not json", `hello`},
		{"trailing data", `{"type":"auto-match"}{"type":"auto-match"}`},
		{"unknown field", `{"type":"auto-match","bogus":1}`},
		{"unknown type", `{"type":"shout","roomId":"r1"}`},
		{"server-only type", `{"type":"room-status","roomId":"r1"}`},
		{"check-room without roomId", `{"type":"check-room"}`},
		{"leave-room without roomId", `{"type":"leave-room"}`},
		{"auto-match with roomId", `{"type":"auto-match","roomId":"r1"}`},
		{"offer without sdp", `{"type":"offer","roomId":"r1"}`},
		{"offer without roomId", `{"type":"offer","sdp":{"type":"offer"}}`},
		{"offer with candidate", `{"type":"offer","roomId":"r1","sdp":{},"candidate":{}}`},
		{"candidate without payload", `{"type":"ice-candidate","roomId":"r1"}`},
		{"candidate with sdp", `{"type":"ice-candidate","roomId":"r1","candidate":{},"sdp":{}}`},
		{"client sends success", `{"type":"join-room","roomId":"r1","success":true}`},
		{"client sends from", `{"type":"offer","roomId":"r1","sdp":{},"from":{"id":"u1"}}`},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParseMessage([]byte(tc.raw)); err == nil {
				t.Fatalf("ParseMessage accepted %s", tc.raw)
			}
		})
	}
}
