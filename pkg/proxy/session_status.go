package proxy

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/png"
	"os"
	"strings"

	"github.com/nfnt/resize"

	"github.com/fleetgate/fleetgate/pkg/proto"
	"github.com/fleetgate/fleetgate/pkg/proto/packet"
)

// faviconSize is the fixed 64x64 the vanilla client's server-list ping
// renders server-icon.png at; anything else is silently letterboxed by
// the client, so the proxy resizes once at load time instead.
const faviconSize = 64

// statusSessionHandler answers a single StatusRequest/PingRequest pair
// then closes, per spec §4.3 STATUS: "Close after PingResponse echo."
type statusSessionHandler struct {
	conn    *minecraftConn
	inbound *inboundIdentity
}

func newStatusSessionHandler(conn *minecraftConn, inbound *inboundIdentity) *statusSessionHandler {
	return &statusSessionHandler{conn: conn, inbound: inbound}
}

func (h *statusSessionHandler) handlePacket(_ context.Context, p proto.Packet) {
	switch pk := p.(type) {
	case *packet.StatusRequest:
		_ = h.conn.WritePacket(&packet.StatusResponse{JSON: h.composePing()})
	case *packet.PingRequest:
		_ = h.conn.WritePacket(&packet.PingResponse{Payload: pk.Payload})
		_ = h.conn.close()
	}
}

func (h *statusSessionHandler) handleUnknownPacket(*proto.PacketContext) {}
func (h *statusSessionHandler) disconnected()                           {}
func (h *statusSessionHandler) activated()                              {}
func (h *statusSessionHandler) deactivated()                            {}

type pingVersion struct {
	Name     string `json:"name"`
	Protocol int    `json:"protocol"`
}

type pingPlayers struct {
	Max    int           `json:"max"`
	Online int           `json:"online"`
	Sample []pingPlayer  `json:"sample,omitempty"`
}

type pingPlayer struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

type pingDescription struct {
	Text string `json:"text"`
}

type pingResponse struct {
	Version     pingVersion     `json:"version"`
	Players     pingPlayers     `json:"players"`
	Description pingDescription `json:"description"`
	Favicon     string          `json:"favicon,omitempty"`
}

// composePing builds the server-list ping JSON, honoring the
// virtual-host forced-host MOTD override (spec §4.3).
func (h *statusSessionHandler) composePing() string {
	cfg := h.conn.config()
	motd := cfg.Motd
	if vh, ok := cfg.ForcedHosts[strings.ToLower(hostOf(h.inbound.VirtualHost().String()))]; ok && len(vh) > 0 {
		motd = strings.Join(vh, ", ")
	}
	resp := pingResponse{
		Version:     pingVersion{Name: "Fleetgate 1.7-1.21", Protocol: int(h.inbound.Protocol())},
		Players:     pingPlayers{Max: cfg.ShowMaxPlayers, Online: h.conn.proxy.PlayerCount()},
		Description: pingDescription{Text: motd},
		Favicon:     loadFavicon(cfg.FaviconPath),
	}
	b, err := json.Marshal(resp)
	if err != nil {
		return `{"version":{"name":"Fleetgate","protocol":0},"players":{"max":0,"online":0},"description":{"text":"error"}}`
	}
	return string(b)
}

func hostOf(addr string) string {
	if i := strings.LastIndex(addr, ":"); i >= 0 {
		return addr[:i]
	}
	return addr
}

// loadFavicon reads path, resizing it to the 64x64 vanilla clients
// expect before encoding it as the ping response's data URI. A favicon
// already the right size round-trips through decode/encode unchanged
// in content, just normalized to PNG.
func loadFavicon(path string) string {
	if path == "" {
		return ""
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	img, _, err := image.Decode(bytes.NewReader(b))
	if err != nil {
		return "data:image/png;base64," + base64.StdEncoding.EncodeToString(b)
	}
	bounds := img.Bounds()
	if bounds.Dx() != faviconSize || bounds.Dy() != faviconSize {
		img = resize.Resize(faviconSize, faviconSize, img, resize.Lanczos3)
	}
	var out bytes.Buffer
	if err := png.Encode(&out, img); err != nil {
		return "data:image/png;base64," + base64.StdEncoding.EncodeToString(b)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(out.Bytes())
}
