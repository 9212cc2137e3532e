// Package rtc builds the WebRTC configuration handed to clients. Media never
// flows through this server; peers use these servers to connect directly.
package rtc

import (
	"strings"

	"github.com/pion/webrtc/v4"
)

const defaultSTUN = "stun:stun.l.google.com:19302"

// ICEServers turns config URLs into pion ICE servers. Credentials may be
// embedded as "turn:user:pass@host:port".
func ICEServers(urls []string) []webrtc.ICEServer {
	if len(urls) == 0 {
		urls = []string{defaultSTUN}
	}
	out := make([]webrtc.ICEServer, 0, len(urls))
	for _, raw := range urls {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		out = append(out, parseICEServer(raw))
	}
	return out
}

func parseICEServer(raw string) webrtc.ICEServer {
	scheme, rest, ok := strings.Cut(raw, ":")
	if !ok || (scheme != "turn" && scheme != "turns") {
		return webrtc.ICEServer{URLs: []string{raw}}
	}
	creds, host, ok := strings.Cut(rest, "@")
	if !ok {
		return webrtc.ICEServer{URLs: []string{raw}}
	}
	user, pass, _ := strings.Cut(creds, ":")
	return webrtc.ICEServer{
		URLs:       []string{scheme + ":" + host},
		Username:   user,
		Credential: pass,
	}
}

// Configuration is the client-side peer connection config.
func Configuration(urls []string) webrtc.Configuration {
	return webrtc.Configuration{ICEServers: ICEServers(urls)}
}
