package dispatch

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"sync"

	"github.com/gorilla/websocket"
)

// ChatConfig points at the chat relay carrying group-chat rooms.
type ChatConfig struct {
	// JID is the identity notifications are sent as.
	JID string `yaml:"jid"`

	// PasswordEnv names the environment variable holding the relay
	// password.
	PasswordEnv string `yaml:"password_env"`

	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// GroupChat posts to rooms rather than individual users.
	GroupChat bool `yaml:"group_chat"`

	// LegacyTLS dials wss:// instead of ws://.
	LegacyTLS bool `yaml:"legacy_tls"`
}

// Password returns the relay password resolved from the environment.
func (c ChatConfig) Password() string {
	if c.PasswordEnv == "" {
		return ""
	}
	return os.Getenv(c.PasswordEnv)
}

// roomConn is one live connection to a chat room.
type roomConn interface {
	WriteJSON(v any) error
	Close() error
}

// chatMessage is the frame posted into a room.
type chatMessage struct {
	From string `json:"from"`
	Room string `json:"room"`
	Body string `json:"body"`
}

// Chat notifies contacts whose medium ends in "xmpp". Connections are
// dialed lazily per room and kept for reuse; a failed write drops the
// connection so the next notification dials fresh.
type Chat struct {
	cfg        ChatConfig
	datacenter string

	mu    sync.Mutex
	rooms map[string]roomConn

	// dial opens a connection to one room; tests swap it out.
	dial func(room string) (roomConn, error)
}

func NewChat(cfg ChatConfig, datacenter string) (*Chat, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("dispatch: chat: host is required")
	}
	if cfg.Port == 0 {
		return nil, fmt.Errorf("dispatch: chat: port is required")
	}
	c := &Chat{
		cfg:        cfg,
		datacenter: datacenter,
		rooms:      make(map[string]roomConn),
	}
	c.dial = c.dialRoom
	return c, nil
}

func (c *Chat) Name() string { return "chat" }

func (c *Chat) AcceptsMedium(medium string) bool {
	return mediumHasSuffix(medium, "xmpp")
}

// SanitizeAddress accepts a room (or user) identifier of the form
// name@service.
func (c *Chat) SanitizeAddress(address string) (string, error) {
	if address == "" {
		return "", fmt.Errorf("empty chat address")
	}
	return address, nil
}

func (c *Chat) dialRoom(room string) (roomConn, error) {
	scheme := "ws"
	if c.cfg.LegacyTLS {
		scheme = "wss"
	}
	u := url.URL{
		Scheme: scheme,
		Host:   c.cfg.Host + ":" + strconv.Itoa(c.cfg.Port),
		Path:   "/rooms/" + url.PathEscape(room),
	}
	hdr := make(map[string][]string)
	if pw := c.cfg.Password(); pw != "" {
		hdr["Authorization"] = []string{"Bearer " + pw}
	}
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), hdr)
	if err != nil {
		return nil, fmt.Errorf("dial room %s: %w", room, err)
	}
	return conn, nil
}

// conn returns the live connection for a room, dialing when needed.
func (c *Chat) conn(room string) (roomConn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if rc, ok := c.rooms[room]; ok {
		return rc, nil
	}
	rc, err := c.dial(room)
	if err != nil {
		return nil, err
	}
	c.rooms[room] = rc
	return rc, nil
}

// drop forgets a room's connection after a failure.
func (c *Chat) drop(room string, rc roomConn) {
	rc.Close()
	c.mu.Lock()
	if c.rooms[room] == rc {
		delete(c.rooms, room)
	}
	c.mu.Unlock()
}

func (c *Chat) Notify(ctx context.Context, n Notification) error {
	room := n.Contact.Address
	rc, err := c.conn(room)
	if err != nil {
		return err
	}

	m := renderMessage(c.datacenter, n)
	msg := chatMessage{From: c.cfg.JID, Room: room, Body: m.Subject + "\n" + m.Body}
	if err := rc.WriteJSON(msg); err != nil {
		c.drop(room, rc)
		return fmt.Errorf("write to room %s: %w", room, err)
	}
	return nil
}

// Close drops every open room connection.
func (c *Chat) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for room, rc := range c.rooms {
		rc.Close()
		delete(c.rooms, room)
	}
}
