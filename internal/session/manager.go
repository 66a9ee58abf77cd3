package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/foxseedlab/voicedesk/internal/audio"
	"github.com/foxseedlab/voicedesk/internal/config"
	"github.com/foxseedlab/voicedesk/internal/metrics"
	"github.com/foxseedlab/voicedesk/internal/repository"
	"github.com/foxseedlab/voicedesk/internal/token"
	"github.com/foxseedlab/voicedesk/internal/transport"
	"github.com/foxseedlab/voicedesk/internal/webhook"
	"github.com/google/uuid"
)

var (
	ErrSessionActive       = errors.New("a session is already active")
	ErrNoActiveSession     = errors.New("no active session")
	ErrStartCancelled      = errors.New("session start was cancelled")
	ErrClosedBeforeConnect = errors.New("transport closed before the session connected")
)

type State string

const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StateConnected  State = "connected"
	StateEnding     State = "ending"
	StateSaving     State = "saving"
	StateSaved      State = "saved"
	StateSaveFailed State = "save_failed"
)

// acceptsStart reports whether a new session may begin. The terminal save
// states hand control back just like idle.
func (st State) acceptsStart() bool {
	switch st {
	case StateIdle, StateSaved, StateSaveFailed:
		return true
	default:
		return false
	}
}

type OutcomeKind string

const (
	OutcomeNone       OutcomeKind = ""
	OutcomeAborted    OutcomeKind = "aborted"
	OutcomeSaved      OutcomeKind = "saved"
	OutcomeSaveFailed OutcomeKind = "save_failed"
	OutcomeDropped    OutcomeKind = "dropped"
	OutcomeCancelled  OutcomeKind = "cancelled"
)

// Outcome is how a session that was started ended up.
type Outcome struct {
	Kind            OutcomeKind
	SessionID       string
	ConversationID  string
	RecordID        string
	DurationSeconds int64
	MessageCount    int
	Err             error
}

type Dependencies struct {
	Microphone audio.Microphone
	NewCodec   audio.CodecFactory
	Issuer     token.Issuer
	Transport  transport.Transport
	Repository repository.Repository
	Webhook    webhook.Sender
	Metrics    *metrics.Metrics
	Listener   Listener
}

// Manager runs at most one session at a time. All exported methods are safe
// for concurrent use.
type Manager struct {
	cfg       *config.Config
	mic       audio.Microphone
	newCodec  audio.CodecFactory
	issuer    token.Issuer
	transport transport.Transport
	repo      repository.Repository
	webhook   webhook.Sender
	metrics   *metrics.Metrics
	listener  Listener

	now        func() time.Time
	drainGrace time.Duration

	mu          sync.Mutex
	state       State
	current     *activeSession
	transcript  *transcriptAssembler
	lastOutcome Outcome

	levelsMu sync.Mutex
	levels   Levels
}

type activeSession struct {
	id      string
	agentID string
	ctx     context.Context
	cancel  context.CancelFunc
	codec   audio.Codec

	// guarded by Manager.mu
	recorder         *audio.Recorder
	conv             transport.Conversation
	sink             transport.AudioSink
	meter            *levelMeter
	conversationID   string
	startedAt        time.Time
	connectSignalled bool
	remoteClosed     bool
	cancelled        bool

	transcript *transcriptAssembler

	chunkMu sync.Mutex
	chunks  []audio.Chunk
	frozen  bool

	finished chan struct{}
	outcome  Outcome
}

func NewManager(cfg *config.Config, deps Dependencies) *Manager {
	listener := deps.Listener
	if listener == nil {
		listener = NopListener{}
	}
	mt := deps.Metrics
	if mt == nil {
		mt = metrics.New()
	}
	return &Manager{
		cfg:        cfg,
		mic:        deps.Microphone,
		newCodec:   deps.NewCodec,
		issuer:     deps.Issuer,
		transport:  deps.Transport,
		repo:       deps.Repository,
		webhook:    deps.Webhook,
		metrics:    mt,
		listener:   listener,
		now:        time.Now,
		drainGrace: cfg.DrainGrace(),
		state:      StateIdle,
		transcript: newTranscriptAssembler(time.Now),
	}
}

// StartSession opens the microphone, obtains a credential and connects the
// transport. It returns once the transport is dialled; the session becomes
// connected when the transport reports it.
func (m *Manager) StartSession(ctx context.Context) error {
	s, err := m.beginSession(ctx)
	if err != nil {
		m.notify(Notice{Kind: NoticeConnection, Message: messageSessionAlreadyActive, Err: err})
		return err
	}
	slog.Info("session start requested", "session_id", s.id, "agent_id", s.agentID)

	stream, err := m.mic.Open(s.ctx)
	if err != nil {
		if !m.abandon(s) {
			return ErrStartCancelled
		}
		slog.Warn("failed to open microphone", "error", err, "session_id", s.id)
		m.notify(Notice{Kind: NoticeCapture, Message: captureMessage(err), Err: err})
		return fmt.Errorf("open microphone: %w", err)
	}
	rec := audio.NewRecorder(stream, s.codec, audio.RecorderOptions{
		Interval: m.cfg.ChunkInterval(),
		OnChunk:  func(c audio.Chunk) { m.handleChunk(s, c) },
		OnError:  func(err error) { m.handleCaptureError(s, err) },
		Tap:      func(pcm []byte) { m.forwardAudio(s, pcm) },
		Now:      m.now,
	})
	if !m.attach(s, func() { s.recorder = rec }) {
		rec.Stop()
		return ErrStartCancelled
	}

	credential, err := m.issuer.IssueCredential(s.ctx, m.cfg.TransportAgentID())
	if err != nil {
		if !m.abandon(s) {
			return ErrStartCancelled
		}
		slog.Error("failed to issue credential", "error", err, "session_id", s.id)
		m.notify(Notice{Kind: NoticeConnection, Message: messageCredentialFailed, Err: err})
		return fmt.Errorf("issue credential: %w", err)
	}

	conv, err := m.transport.Connect(s.ctx, credential, m.handlersFor(s))
	if err != nil {
		if !m.abandon(s) {
			return ErrStartCancelled
		}
		slog.Error("failed to connect transport", "error", err, "session_id", s.id)
		m.notify(Notice{Kind: NoticeConnection, Message: messageConnectFailed, Err: err})
		return fmt.Errorf("connect transport: %w", err)
	}
	return m.attachConversation(s, conv)
}

// EndSession ends the current session and returns how it ended. A session
// still connecting is cancelled without persistence.
func (m *Manager) EndSession(ctx context.Context) (Outcome, error) {
	m.mu.Lock()
	s := m.current
	if s == nil {
		m.mu.Unlock()
		return Outcome{}, ErrNoActiveSession
	}
	switch m.state {
	case StateConnecting:
		release := m.abortConnectingLocked(s, OutcomeCancelled)
		m.mu.Unlock()
		slog.Info("session cancelled while connecting", "session_id", s.id)
		m.finishAbort(s, release)
		return s.outcome, nil
	case StateConnected:
		m.mu.Unlock()
		m.endConnected(s)
	default:
		m.mu.Unlock()
	}

	select {
	case <-s.finished:
		return s.outcome, nil
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) IsConnecting() bool {
	return m.State() == StateConnecting
}

func (m *Manager) IsConnected() bool {
	return m.State() == StateConnected
}

func (m *Manager) IsSaving() bool {
	return m.State() == StateSaving
}

func (m *Manager) IsSpeaking() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateConnected || m.current == nil || m.current.conv == nil {
		return false
	}
	return m.current.conv.IsSpeaking()
}

// Transcript returns a copy of the live transcript. It keeps the last
// session's messages until the next start.
func (m *Manager) Transcript() []Message {
	m.mu.Lock()
	t := m.transcript
	m.mu.Unlock()
	return t.Messages()
}

func (m *Manager) Levels() Levels {
	m.levelsMu.Lock()
	defer m.levelsMu.Unlock()
	return m.levels
}

func (m *Manager) LastOutcome() Outcome {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastOutcome
}

func (m *Manager) ConversationID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return m.lastOutcome.ConversationID
	}
	return m.current.conversationID
}

func (m *Manager) beginSession(ctx context.Context) (*activeSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.state.acceptsStart() {
		return nil, ErrSessionActive
	}
	sctx, cancel := context.WithCancel(ctx)
	s := &activeSession{
		id:         uuid.NewString(),
		agentID:    m.cfg.AgentID,
		ctx:        sctx,
		cancel:     cancel,
		codec:      m.newCodec(),
		transcript: newTranscriptAssembler(m.now),
		finished:   make(chan struct{}),
	}
	m.current = s
	m.state = StateConnecting
	m.transcript = s.transcript
	m.lastOutcome = Outcome{}
	m.setLevels(Levels{})
	m.metrics.SessionsStarted.Inc()
	m.metrics.ActiveSession.Set(1)
	return s, nil
}

// attach runs fn under the lock unless the start attempt was already abandoned.
func (m *Manager) attach(s *activeSession, fn func()) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.cancelled {
		return false
	}
	fn()
	return true
}

func (m *Manager) attachConversation(s *activeSession, conv transport.Conversation) error {
	m.mu.Lock()
	if s.cancelled {
		m.mu.Unlock()
		_ = conv.Disconnect()
		return ErrStartCancelled
	}
	if s.remoteClosed {
		release := m.abortConnectingLocked(s, OutcomeAborted)
		m.mu.Unlock()
		_ = conv.Disconnect()
		m.finishAbort(s, release)
		slog.Warn("transport closed before connecting", "session_id", s.id)
		m.notify(Notice{Kind: NoticeConnection, Message: messageClosedBeforeConnect, Err: ErrClosedBeforeConnect})
		return ErrClosedBeforeConnect
	}
	s.conv = conv
	if sink, ok := conv.(transport.AudioSink); ok {
		s.sink = sink
	}
	if s.connectSignalled {
		m.promoteLocked(s)
	}
	m.mu.Unlock()
	return nil
}

// abandon tears down a start attempt that failed. It reports false when the
// attempt had already been cancelled by someone else or by the caller's
// context; the outcome is then cancelled rather than aborted.
func (m *Manager) abandon(s *activeSession) bool {
	m.mu.Lock()
	if s.cancelled {
		m.mu.Unlock()
		return false
	}
	kind := OutcomeAborted
	if s.ctx.Err() != nil {
		kind = OutcomeCancelled
	}
	release := m.abortConnectingLocked(s, kind)
	m.mu.Unlock()
	m.finishAbort(s, release)
	return kind == OutcomeAborted
}

type startResources struct {
	recorder *audio.Recorder
	conv     transport.Conversation
}

func (m *Manager) abortConnectingLocked(s *activeSession, kind OutcomeKind) startResources {
	s.cancelled = true
	s.cancel()
	release := startResources{recorder: s.recorder, conv: s.conv}
	s.outcome = Outcome{Kind: kind, SessionID: s.id}
	m.lastOutcome = s.outcome
	m.current = nil
	m.state = StateIdle
	m.metrics.ActiveSession.Set(0)
	m.metrics.SessionsEnded.WithLabelValues(string(kind)).Inc()
	return release
}

func (m *Manager) finishAbort(s *activeSession, release startResources) {
	if release.conv != nil {
		_ = release.conv.Disconnect()
	}
	if release.recorder != nil {
		release.recorder.Stop()
	}
	close(s.finished)
	m.listener.OnOutcome(s.outcome)
}

// promoteLocked marks the authoritative start of the call.
func (m *Manager) promoteLocked(s *activeSession) {
	s.startedAt = m.now()
	m.state = StateConnected
	m.metrics.SessionsConnected.Inc()
	if err := s.recorder.Start(); err != nil {
		slog.Warn("failed to start recorder", "error", err, "session_id", s.id)
	}
	s.meter = startLevelMeter(s.conv, m.cfg.LevelSampleInterval(), m.setLevels)
	slog.Info("session connected", "session_id", s.id, "conversation_id", s.conversationID)
}

func (m *Manager) handlersFor(s *activeSession) transport.Handlers {
	return transport.Handlers{
		OnConnect:    func(id string) { m.handleConnect(s, id) },
		OnDisconnect: func(reason string) { m.handleDisconnect(s, reason) },
		OnEvent:      func(ev transport.Event) { m.handleEvent(s, ev) },
		OnError:      func(err error) { m.handleTransportError(s, err) },
	}
}

func (m *Manager) handleConnect(s *activeSession, conversationID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != s || m.state != StateConnecting {
		return
	}
	if conversationID != "" {
		s.conversationID = conversationID
	}
	s.connectSignalled = true
	if s.conv == nil {
		return
	}
	m.promoteLocked(s)
}

func (m *Manager) handleDisconnect(s *activeSession, reason string) {
	m.mu.Lock()
	if m.current != s {
		m.mu.Unlock()
		return
	}
	switch m.state {
	case StateConnecting:
		s.remoteClosed = true
		if s.conv == nil {
			m.mu.Unlock()
			return
		}
		release := m.abortConnectingLocked(s, OutcomeAborted)
		m.mu.Unlock()
		slog.Warn("transport closed before connecting", "session_id", s.id, "reason", reason)
		m.finishAbort(s, release)
		m.notify(Notice{Kind: NoticeConnection, Message: messageClosedBeforeConnect, Err: ErrClosedBeforeConnect})
	case StateConnected:
		m.mu.Unlock()
		slog.Info("transport disconnected", "session_id", s.id, "reason", reason)
		go m.endConnected(s)
	default:
		m.mu.Unlock()
	}
}

func (m *Manager) handleTransportError(s *activeSession, err error) {
	m.mu.Lock()
	current, state := m.current == s, m.state
	m.mu.Unlock()
	switch {
	case !current:
		slog.Debug("transport error after session finished", "error", err, "session_id", s.id)
		return
	case state == StateConnecting:
		slog.Warn("transport error before session connected", "error", err, "session_id", s.id)
		m.handleDisconnect(s, err.Error())
		return
	case state != StateConnected:
		slog.Debug("transport error while session is ending", "error", err, "session_id", s.id, "state", state)
		return
	}
	slog.Warn("transport error during session", "error", err, "session_id", s.id)
	m.notify(Notice{Kind: NoticeTransport, Message: messageTransportError, Err: err})
	go m.endConnected(s)
}

func (m *Manager) handleEvent(s *activeSession, ev transport.Event) {
	m.mu.Lock()
	if m.current != s || m.state != StateConnected {
		m.mu.Unlock()
		return
	}
	msg, ok := s.transcript.Consume(ev)
	m.mu.Unlock()
	if !ok {
		return
	}
	m.metrics.TranscriptMessages.WithLabelValues(string(msg.Role)).Inc()
	m.listener.OnMessage(msg)
}

func (m *Manager) handleChunk(s *activeSession, c audio.Chunk) {
	s.chunkMu.Lock()
	defer s.chunkMu.Unlock()
	if s.frozen {
		slog.Warn("dropping audio chunk after recording was frozen", "session_id", s.id, "seq", c.Seq)
		return
	}
	s.chunks = append(s.chunks, c)
	m.metrics.ChunksCaptured.Inc()
	m.metrics.ChunkSize.Observe(float64(len(c.Data)))
}

// handleCaptureError keeps the call running without audio.
func (m *Manager) handleCaptureError(s *activeSession, err error) {
	slog.Warn("capture stopped during session", "error", err, "session_id", s.id)
	m.notify(Notice{Kind: NoticeCapture, Message: messageCaptureStopped, Err: err})
}

func (m *Manager) forwardAudio(s *activeSession, pcm []byte) {
	if s.sink == nil {
		return
	}
	if err := s.sink.SendAudio(pcm); err != nil {
		slog.Debug("failed to forward audio", "error", err, "session_id", s.id)
	}
}

// endConnected runs the ending path once per session; later callers return
// immediately.
func (m *Manager) endConnected(s *activeSession) {
	m.mu.Lock()
	if m.current != s || m.state != StateConnected {
		m.mu.Unlock()
		return
	}
	m.state = StateEnding
	endedAt := m.now()
	conv, meter, recorder := s.conv, s.meter, s.recorder
	startedAt, conversationID := s.startedAt, s.conversationID
	m.mu.Unlock()

	// The meter reads volumes from conv, so it stops before the teardown.
	meter.Stop()
	m.setLevels(Levels{})
	_ = conv.Disconnect()
	recorder.Stop()
	duration := durationSeconds(startedAt, endedAt)
	m.awaitDrain(recorder)
	chunks := s.freezeChunks()
	messages := s.transcript.Messages()
	slog.Info("session ended", "session_id", s.id, "conversation_id", conversationID, "duration_seconds", duration, "messages", len(messages), "chunks", len(chunks))
	m.metrics.SessionDuration.Observe(float64(duration))

	var outcome Outcome
	if !isSaveWorthy(messages, duration) {
		slog.Info("dropping empty session", "session_id", s.id)
		m.metrics.SessionsDropped.Inc()
		outcome = Outcome{Kind: OutcomeDropped, SessionID: s.id, ConversationID: conversationID}
	} else {
		m.setState(StateSaving)
		outcome = m.handOff(s, handoffInput{
			agentID:         s.agentID,
			conversationID:  conversationID,
			phoneNumber:     m.cfg.CallerPhoneNumber,
			messages:        messages,
			chunks:          chunks,
			codec:           s.codec,
			durationSeconds: duration,
		})
	}
	m.complete(s, outcome)
}

// awaitDrain gives the recorder a bounded window to deliver its last chunk.
func (m *Manager) awaitDrain(recorder *audio.Recorder) {
	if m.drainGrace <= 0 {
		return
	}
	timer := time.NewTimer(m.drainGrace)
	defer timer.Stop()
	select {
	case <-recorder.Done():
	case <-timer.C:
		slog.Warn("recorder did not drain within grace period", "grace", m.drainGrace)
	}
}

func (m *Manager) complete(s *activeSession, outcome Outcome) {
	m.mu.Lock()
	switch outcome.Kind {
	case OutcomeSaved:
		m.state = StateSaved
	case OutcomeSaveFailed:
		m.state = StateSaveFailed
	default:
		m.state = StateIdle
	}
	s.outcome = outcome
	m.lastOutcome = outcome
	m.current = nil
	m.metrics.ActiveSession.Set(0)
	m.metrics.SessionsEnded.WithLabelValues(string(outcome.Kind)).Inc()
	m.mu.Unlock()

	s.cancel()
	close(s.finished)
	switch outcome.Kind {
	case OutcomeSaved:
		m.notify(Notice{Kind: NoticeSaved, Message: savedMessage(outcome.RecordID)})
	case OutcomeSaveFailed:
		m.notify(Notice{Kind: NoticeSave, Message: messageSaveFailed, Err: outcome.Err})
	}
	m.listener.OnOutcome(outcome)
}

func (m *Manager) setState(state State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = state
}

func (m *Manager) setLevels(levels Levels) {
	m.levelsMu.Lock()
	defer m.levelsMu.Unlock()
	m.levels = levels
}

func (m *Manager) notify(n Notice) {
	m.listener.OnNotice(n)
}

func (s *activeSession) freezeChunks() []audio.Chunk {
	s.chunkMu.Lock()
	defer s.chunkMu.Unlock()
	s.frozen = true
	out := make([]audio.Chunk, len(s.chunks))
	copy(out, s.chunks)
	return out
}

func captureMessage(err error) string {
	if errors.Is(err, audio.ErrPermissionDenied) {
		return messageMicrophoneDenied
	}
	return messageMicrophoneMissing
}
