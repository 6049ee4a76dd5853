package httpserver

import (
	"net/http"
	"strings"

	"github.com/pion/webrtc/v4"
)

// handleICEServers hands clients the ICE server list to use for their peer
// connection. With TURN REST enabled, each response carries a freshly minted
// ephemeral credential pair scoped to that caller.
func (s *Server) handleICEServers(w http.ResponseWriter, r *http.Request) {
	servers := s.cfg.ICEServers()
	if servers == nil {
		servers = []webrtc.ICEServer{}
	}

	if s.turn != nil {
		creds, err := s.turn.GenerateRandom()
		if err != nil {
			s.log.Error().Err(err).Msg("turn credential generation failed")
			WriteJSON(w, http.StatusInternalServerError, map[string]any{"error": "credential generation failed"})
			return
		}
		servers = withTURNCredentials(servers, creds.Username, creds.Credential)
	}

	WriteJSON(w, http.StatusOK, map[string]any{"iceServers": servers})
}

func withTURNCredentials(servers []webrtc.ICEServer, username, credential string) []webrtc.ICEServer {
	if len(servers) == 0 {
		// Preserve empty (non-nil) slices so the response encodes as `[]`
		// rather than `null`.
		return servers
	}
	out := make([]webrtc.ICEServer, len(servers))
	for i, server := range servers {
		out[i] = server
		if iceServerHasTURNURL(server) {
			out[i].Username = username
			out[i].Credential = credential
		}
	}
	return out
}

func iceServerHasTURNURL(server webrtc.ICEServer) bool {
	for _, raw := range server.URLs {
		url := strings.TrimSpace(raw)
		if asciiHasPrefixFold(url, "turn:") || asciiHasPrefixFold(url, "turns:") {
			return true
		}
	}
	return false
}

func asciiHasPrefixFold(s, prefix string) bool {
	if len(s) < len(prefix) {
		return false
	}
	for i := 0; i < len(prefix); i++ {
		c := s[i]
		if c >= 'A' && c <= 'Z' {
			c = c + ('a' - 'A')
		}
		if c != prefix[i] {
			return false
		}
	}
	return true
}
