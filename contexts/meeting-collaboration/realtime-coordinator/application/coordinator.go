package application

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	eventsv1 "parley/contracts/gen/events/v1"
	"parley/contexts/meeting-collaboration/realtime-coordinator/domain/entities"
	domainerrors "parley/contexts/meeting-collaboration/realtime-coordinator/domain/errors"
	"parley/contexts/meeting-collaboration/realtime-coordinator/ports"
)

const moduleName = "meeting-collaboration/realtime-coordinator"

const defaultPresenceTimeout = 5 * time.Second

type Dependencies struct {
	Bus             ports.Bus
	Clock           ports.Clock
	IDGen           ports.IDGenerator
	Metrics         ports.Metrics
	PresenceTimeout time.Duration
	Logger          *slog.Logger
}

type session struct {
	entities.Session
	conn ports.Conn
}

// Coordinator owns the registry of live connections. A connection is inserted
// by Register, bound by Authenticate and Join, and removed by Leave; lookups
// never outlive that lifecycle.
type Coordinator struct {
	bus             ports.Bus
	clock           ports.Clock
	idGen           ports.IDGenerator
	metrics         ports.Metrics
	presenceTimeout time.Duration
	logger          *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*session
	channels map[string]map[string]*session
	pending  map[string]*presenceRequest
	closed   bool
}

func NewCoordinator(deps Dependencies) *Coordinator {
	timeout := deps.PresenceTimeout
	if timeout <= 0 {
		timeout = defaultPresenceTimeout
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = noopMetrics{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		bus:             deps.Bus,
		clock:           deps.Clock,
		idGen:           deps.IDGen,
		metrics:         metrics,
		presenceTimeout: timeout,
		logger:          logger,
		sessions:        make(map[string]*session),
		channels:        make(map[string]map[string]*session),
		pending:         make(map[string]*presenceRequest),
	}
}

// Start subscribes to the bus when one is configured. Without a bus,
// broadcasts are delivered in process.
func (c *Coordinator) Start(ctx context.Context) error {
	if c.bus == nil {
		return nil
	}
	c.logger.Info("realtime coordinator subscribed to bus",
		"event", "realtime_bus_subscribed",
		"module", moduleName,
		"layer", "application",
	)
	return c.bus.Subscribe(ctx, c.Deliver)
}

func (c *Coordinator) Register(conn ports.Conn) error {
	connID := strings.TrimSpace(conn.ID())
	if connID == "" {
		return domainerrors.ErrInvalidRequest
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return domainerrors.ErrCoordinatorClosed
	}
	if _, exists := c.sessions[connID]; exists {
		return domainerrors.ErrAlreadyRegistered
	}
	c.sessions[connID] = &session{
		Session: entities.Session{ConnID: connID, ConnectedAt: c.now()},
		conn:    conn,
	}
	c.metrics.ConnectionOpened()
	return nil
}

func (c *Coordinator) Authenticate(connID string, participantID string) error {
	participantID = strings.TrimSpace(participantID)
	if participantID == "" {
		return domainerrors.ErrInvalidRequest
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[strings.TrimSpace(connID)]
	if !ok {
		return domainerrors.ErrUnknownConnection
	}
	s.ParticipantID = participantID
	return nil
}

// Join binds the connection to a meeting channel, leaving its previous
// channel if any.
func (c *Coordinator) Join(connID string, meetingID string) error {
	meetingID = strings.TrimSpace(meetingID)
	if meetingID == "" {
		return domainerrors.ErrInvalidRequest
	}
	c.mu.Lock()
	s, ok := c.sessions[strings.TrimSpace(connID)]
	if !ok {
		c.mu.Unlock()
		return domainerrors.ErrUnknownConnection
	}
	if s.MeetingID != "" && s.MeetingID != meetingID {
		c.unbindLocked(s)
	}
	s.MeetingID = meetingID
	members, ok := c.channels[meetingID]
	if !ok {
		members = make(map[string]*session)
		c.channels[meetingID] = members
	}
	members[s.ConnID] = s
	participantID := s.ParticipantID
	c.mu.Unlock()

	c.logger.Info("realtime connection joined channel",
		"event", "realtime_channel_joined",
		"module", moduleName,
		"layer", "application",
		"conn_id", s.ConnID,
		"meeting_id", meetingID,
		"participant_id", participantID,
	)
	return nil
}

// Leave removes the connection from the registry, abandons the presence
// requests it started and stops waiting for its answers elsewhere.
func (c *Coordinator) Leave(connID string, reason string) {
	connID = strings.TrimSpace(connID)
	c.mu.Lock()
	s, ok := c.sessions[connID]
	if !ok {
		c.mu.Unlock()
		return
	}
	delete(c.sessions, connID)
	meetingID := s.MeetingID
	c.unbindLocked(s)
	completed := c.abandonPresenceLocked(s)
	c.mu.Unlock()

	c.metrics.ConnectionClosed(reason)
	c.logger.Info("realtime connection left",
		"event", "realtime_connection_left",
		"module", moduleName,
		"layer", "application",
		"conn_id", connID,
		"meeting_id", meetingID,
		"participant_id", s.ParticipantID,
		"reason", reason,
	)
	for _, requestID := range completed {
		c.finishPresence(requestID, false)
	}
}

func (c *Coordinator) ResolveChannel(connID string) (string, error) {
	s, err := c.lookup(connID)
	if err != nil {
		return "", err
	}
	if !s.Joined() {
		return "", domainerrors.ErrNotJoined
	}
	return s.MeetingID, nil
}

func (c *Coordinator) ResolveUser(connID string) (string, error) {
	s, err := c.lookup(connID)
	if err != nil {
		return "", err
	}
	if !s.Authenticated() {
		return "", domainerrors.ErrNotAuthenticated
	}
	return s.ParticipantID, nil
}

// Resolve returns the connection's session once it is both joined and
// authenticated.
func (c *Coordinator) Resolve(connID string) (entities.Session, error) {
	s, err := c.lookup(connID)
	if err != nil {
		return entities.Session{}, err
	}
	if !s.Authenticated() {
		return entities.Session{}, domainerrors.ErrNotAuthenticated
	}
	if !s.Joined() {
		return entities.Session{}, domainerrors.ErrNotJoined
	}
	return s, nil
}

// Participants lists the distinct participants connected to a channel on
// this instance.
func (c *Coordinator) Participants(meetingID string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	seen := make(map[string]bool)
	out := make([]string, 0)
	for _, s := range c.channels[strings.TrimSpace(meetingID)] {
		if s.ParticipantID == "" || seen[s.ParticipantID] {
			continue
		}
		seen[s.ParticipantID] = true
		out = append(out, s.ParticipantID)
	}
	sort.Strings(out)
	return out
}

func (c *Coordinator) ConnectionCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.sessions)
}

// Broadcast delivers an event to every connection bound to the channel, the
// sender included. With a bus the event reaches all instances.
func (c *Coordinator) Broadcast(ctx context.Context, channel string, event eventsv1.Envelope) error {
	channel = strings.TrimSpace(channel)
	if channel == "" {
		return domainerrors.ErrInvalidRequest
	}
	if c.bus != nil {
		return c.bus.Publish(ctx, channel, event)
	}
	c.Deliver(channel, event)
	return nil
}

// Deliver fans an event out to the local connections of a channel.
// Connections that cannot take the event are dropped.
func (c *Coordinator) Deliver(channel string, event eventsv1.Envelope) {
	if event.EventType == eventsv1.EventTypeProtocolUserState {
		c.observeUserState(event)
	}

	c.mu.RLock()
	targets := make([]*session, 0, len(c.channels[channel]))
	for _, s := range c.channels[channel] {
		targets = append(targets, s)
	}
	c.mu.RUnlock()

	for _, s := range targets {
		if err := s.conn.Send(event); err != nil {
			c.drop(s, err)
			continue
		}
		c.metrics.EventDelivered(event.EventType)
	}
}

// SendTo delivers an event to one connection only.
func (c *Coordinator) SendTo(connID string, event eventsv1.Envelope) error {
	c.mu.RLock()
	s, ok := c.sessions[strings.TrimSpace(connID)]
	c.mu.RUnlock()
	if !ok {
		return domainerrors.ErrUnknownConnection
	}
	if err := s.conn.Send(event); err != nil {
		c.drop(s, err)
		return err
	}
	c.metrics.EventDelivered(event.EventType)
	return nil
}

// Close stops pending presence requests and closes every connection.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	for id, request := range c.pending {
		request.stop()
		delete(c.pending, id)
	}
	conns := make([]ports.Conn, 0, len(c.sessions))
	for _, s := range c.sessions {
		conns = append(conns, s.conn)
	}
	c.mu.Unlock()

	for _, conn := range conns {
		_ = conn.Close()
	}
}

func (c *Coordinator) drop(s *session, cause error) {
	c.logger.Warn("realtime connection dropped",
		"event", "realtime_connection_dropped",
		"module", moduleName,
		"layer", "application",
		"conn_id", s.ConnID,
		"meeting_id", s.MeetingID,
		"error", cause.Error(),
	)
	reason := "send_failed"
	if errors.Is(cause, domainerrors.ErrSlowConsumer) {
		reason = "slow_consumer"
	}
	c.Leave(s.ConnID, reason)
	_ = s.conn.Close()
}

func (c *Coordinator) lookup(connID string) (entities.Session, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.sessions[strings.TrimSpace(connID)]
	if !ok {
		return entities.Session{}, domainerrors.ErrUnknownConnection
	}
	return s.Session, nil
}

func (c *Coordinator) unbindLocked(s *session) {
	members, ok := c.channels[s.MeetingID]
	if !ok {
		return
	}
	delete(members, s.ConnID)
	if len(members) == 0 {
		delete(c.channels, s.MeetingID)
	}
}

func (c *Coordinator) newEnvelope(ctx context.Context, channel string, eventType string, traceID string, payload any) (eventsv1.Envelope, error) {
	eventID, err := c.idGen.NewID(ctx)
	if err != nil {
		return eventsv1.Envelope{}, err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return eventsv1.Envelope{}, err
	}
	if strings.TrimSpace(traceID) == "" {
		traceID = eventID
	}
	return eventsv1.Envelope{
		EventID:          eventID,
		EventType:        eventType,
		OccurredAt:       c.now(),
		SourceService:    "realtime-coordinator",
		TraceID:          traceID,
		SchemaVersion:    1,
		PartitionKeyPath: "meeting_id",
		PartitionKey:     channel,
		Data:             data,
	}, nil
}

func (c *Coordinator) now() time.Time {
	if c.clock != nil {
		return c.clock.Now().UTC()
	}
	return time.Now().UTC()
}

type noopMetrics struct{}

func (noopMetrics) ConnectionOpened() {}

func (noopMetrics) ConnectionClosed(string) {}

func (noopMetrics) EventDelivered(string) {}

func (noopMetrics) PresenceCompleted(bool) {}
