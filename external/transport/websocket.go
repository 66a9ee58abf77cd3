package transport

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/foxseedlab/voicedesk/internal/transport"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
)

const (
	writeTimeout   = 5 * time.Second
	speakingHold   = 300 * time.Millisecond
	inputLevelHold = 300 * time.Millisecond

	typeInitiationMetadata = "conversation_initiation_metadata"
	typeInitiationClient   = "conversation_initiation_client_data"
	typePing               = "ping"
	typePong               = "pong"
	typeAudio              = "audio"
	typeInterruption       = "interruption"
)

var ErrConversationClosed = errors.New("conversation is closed")

// WebSocketTransport speaks the conversational gateway's JSON-over-websocket protocol.
type WebSocketTransport struct {
	baseURL string
	dialer  *websocket.Dialer
	now     func() time.Time
}

func NewWebSocketTransport(baseURL string) transport.Transport {
	return &WebSocketTransport{
		baseURL: baseURL,
		dialer:  websocket.DefaultDialer,
		now:     time.Now,
	}
}

func (t *WebSocketTransport) Connect(ctx context.Context, credential string, handlers transport.Handlers) (transport.Conversation, error) {
	wsURL, err := t.conversationURL(credential)
	if err != nil {
		return nil, err
	}
	conn, _, err := t.dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial conversation: %w", err)
	}
	c := &wsConversation{
		conn:     conn,
		handlers: handlers,
		now:      t.now,
		closed:   make(chan struct{}),
	}
	if err := c.writeJSON(map[string]any{"type": typeInitiationClient}); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("send initiation: %w", err)
	}
	go c.readLoop()
	return c, nil
}

// conversationURL accepts either a signed websocket URL or an opaque token
// that is appended to the configured base URL.
func (t *WebSocketTransport) conversationURL(credential string) (string, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return "", fmt.Errorf("credential is empty")
	}
	if strings.HasPrefix(credential, "ws://") || strings.HasPrefix(credential, "wss://") {
		return credential, nil
	}
	u, err := url.Parse(t.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid transport url: %w", err)
	}
	q := u.Query()
	q.Set("token", credential)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

type wsConversation struct {
	conn     *websocket.Conn
	handlers transport.Handlers
	now      func() time.Time

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    chan struct{}
	byClient  atomic.Bool

	id                atomic.Value
	outputLevel       atomic.Uint64
	inputLevel        atomic.Uint64
	lastAgentAudioNs  atomic.Int64
	lastInputAudioNs  atomic.Int64
	disconnectHandled atomic.Bool
}

func (c *wsConversation) ID() string {
	if v, ok := c.id.Load().(string); ok {
		return v
	}
	return ""
}

func (c *wsConversation) Disconnect() error {
	var err error
	c.closeOnce.Do(func() {
		c.byClient.Store(true)
		close(c.closed)
		c.writeMu.Lock()
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client disconnect"))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}

func (c *wsConversation) InputVolume() (float64, error) {
	if c.isClosed() {
		return 0, ErrConversationClosed
	}
	if c.now().Sub(time.Unix(0, c.lastInputAudioNs.Load())) > inputLevelHold {
		return 0, nil
	}
	return math.Float64frombits(c.inputLevel.Load()), nil
}

func (c *wsConversation) OutputVolume() (float64, error) {
	if c.isClosed() {
		return 0, ErrConversationClosed
	}
	if !c.IsSpeaking() {
		return 0, nil
	}
	return math.Float64frombits(c.outputLevel.Load()), nil
}

func (c *wsConversation) IsSpeaking() bool {
	last := c.lastAgentAudioNs.Load()
	if last == 0 {
		return false
	}
	return c.now().Sub(time.Unix(0, last)) <= speakingHold
}

func (c *wsConversation) SendAudio(pcm []byte) error {
	if c.isClosed() {
		return ErrConversationClosed
	}
	c.inputLevel.Store(math.Float64bits(rmsLevel(pcm)))
	c.lastInputAudioNs.Store(c.now().UnixNano())
	return c.writeJSON(map[string]any{
		"user_audio_chunk": base64.StdEncoding.EncodeToString(pcm),
	})
}

func (c *wsConversation) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *wsConversation) writeJSON(payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, b)
}

func (c *wsConversation) readLoop() {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.handleReadError(err)
			return
		}
		var msg map[string]any
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Debug("ignoring undecodable gateway message", "error", err, "bytes", len(data))
			continue
		}
		c.dispatch(msg)
	}
}

func (c *wsConversation) handleReadError(err error) {
	c.closeOnce.Do(func() {
		close(c.closed)
		_ = c.conn.Close()
	})
	reason := "client disconnect"
	if !c.byClient.Load() {
		var closeErr *websocket.CloseError
		if errors.As(err, &closeErr) && (closeErr.Code == websocket.CloseNormalClosure || closeErr.Code == websocket.CloseGoingAway) {
			reason = fmt.Sprintf("remote closed: code=%d %s", closeErr.Code, strings.TrimSpace(closeErr.Text))
		} else {
			reason = "transport failure: " + err.Error()
			if c.handlers.OnError != nil {
				c.handlers.OnError(err)
			}
		}
	}
	if c.disconnectHandled.CompareAndSwap(false, true) && c.handlers.OnDisconnect != nil {
		c.handlers.OnDisconnect(reason)
	}
}

func (c *wsConversation) dispatch(msg map[string]any) {
	msgType, _ := msg["type"].(string)
	switch msgType {
	case typeInitiationMetadata:
		meta, _ := msg[typeInitiationMetadata+"_event"].(map[string]any)
		id, _ := meta["conversation_id"].(string)
		c.id.Store(id)
		if c.handlers.OnConnect != nil {
			c.handlers.OnConnect(id)
		}
	case typePing:
		ping, _ := msg["ping_event"].(map[string]any)
		if err := c.writeJSON(map[string]any{"type": typePong, "event_id": ping["event_id"]}); err != nil {
			slog.Debug("failed to answer gateway ping", "error", err)
		}
	case typeAudio:
		c.handleAgentAudio(msg)
	case typeInterruption:
		c.lastAgentAudioNs.Store(0)
		c.emit(flattenEvent(msg))
	default:
		c.emit(flattenEvent(msg))
	}
}

func (c *wsConversation) handleAgentAudio(msg map[string]any) {
	ev, _ := msg["audio_event"].(map[string]any)
	b64, _ := ev["audio_base_64"].(string)
	if b64 == "" {
		return
	}
	pcm, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		slog.Debug("ignoring agent audio with invalid base64", "error", err)
		return
	}
	c.outputLevel.Store(math.Float64bits(rmsLevel(pcm)))
	c.lastAgentAudioNs.Store(c.now().UnixNano())
}

func (c *wsConversation) emit(ev transport.Event) {
	if c.handlers.OnEvent != nil {
		c.handlers.OnEvent(ev)
	}
}

// flattenEvent lifts the fields of "*_event" envelopes (for example
// agent_response_event or user_transcription_event) to the top level.
func flattenEvent(msg map[string]any) transport.Event {
	ev := transport.Event{}
	for k, v := range msg {
		if inner, ok := v.(map[string]any); ok && strings.HasSuffix(k, "_event") {
			for ik, iv := range inner {
				ev[ik] = iv
			}
			continue
		}
		ev[k] = v
	}
	return ev
}

func rmsLevel(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		s := float64(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
		sum += s * s
	}
	level := math.Sqrt(sum/float64(n)) / 32768
	if level > 1 {
		return 1
	}
	return level
}
