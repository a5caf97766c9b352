package application

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	eventsv1 "parley/contracts/gen/events/v1"
	"parley/contexts/meeting-collaboration/realtime-coordinator/domain/entities"
	domainerrors "parley/contexts/meeting-collaboration/realtime-coordinator/domain/errors"
)

// presenceRequest tracks one outstanding "who is done" poll. Answers are
// collected from ProtocolUserState events seen on the channel.
type presenceRequest struct {
	id          string
	sessionID   string
	protocolID  string
	channel     string
	requesterID string
	connID      string
	expected    map[string]bool
	states      map[string]entities.UserState
	timer       *time.Timer
}

func (r *presenceRequest) stop() {
	if r.timer != nil {
		r.timer.Stop()
	}
}

func (r *presenceRequest) complete() bool {
	for participantID := range r.expected {
		if _, answered := r.states[participantID]; !answered {
			return false
		}
	}
	return true
}

// EmitDone broadcasts the participant's done flag for a protocol. Nothing is
// stored.
func (c *Coordinator) EmitDone(ctx context.Context, connID string, protocolID string, isDone bool) error {
	s, err := c.Resolve(connID)
	if err != nil {
		return err
	}
	protocolID = strings.TrimSpace(protocolID)
	if protocolID == "" {
		return domainerrors.ErrInvalidRequest
	}
	event, err := c.newEnvelope(ctx, s.MeetingID, eventsv1.EventTypeProtocolUserActivity, "", entities.UserActivity{
		ParticipantID: s.ParticipantID,
		ProtocolID:    protocolID,
		IsDone:        isDone,
	})
	if err != nil {
		return err
	}
	return c.Broadcast(ctx, s.MeetingID, event)
}

// RequestPeerStates polls every other participant on the channel for their
// done state. The requester receives one ProtocolUserStateSummary once all
// peers answered or the presence timeout elapsed; nothing is sent if the
// requester disconnects first.
func (c *Coordinator) RequestPeerStates(ctx context.Context, connID string, sessionID string, protocolID string) (string, error) {
	s, err := c.Resolve(connID)
	if err != nil {
		return "", err
	}
	protocolID = strings.TrimSpace(protocolID)
	if protocolID == "" {
		return "", domainerrors.ErrInvalidRequest
	}
	requestID, err := c.idGen.NewID(ctx)
	if err != nil {
		return "", err
	}

	request := &presenceRequest{
		id:          requestID,
		sessionID:   strings.TrimSpace(sessionID),
		protocolID:  protocolID,
		channel:     s.MeetingID,
		requesterID: s.ParticipantID,
		connID:      s.ConnID,
		expected:    make(map[string]bool),
		states:      make(map[string]entities.UserState),
	}
	// Participants lists connections held by this node only. With a shared bus
	// the peers on other nodes are not awaited, so the summary can complete
	// before they answer and will not list them as missing.
	for _, participantID := range c.Participants(s.MeetingID) {
		if participantID != s.ParticipantID {
			request.expected[participantID] = true
		}
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return "", domainerrors.ErrCoordinatorClosed
	}
	c.pending[requestID] = request
	c.mu.Unlock()

	if len(request.expected) == 0 {
		c.finishPresence(requestID, false)
		return requestID, nil
	}

	event, err := c.newEnvelope(ctx, s.MeetingID, eventsv1.EventTypeProtocolUserStateReq, requestID, entities.UserStateRequest{
		RequestID:   requestID,
		SessionID:   request.sessionID,
		ProtocolID:  protocolID,
		RequesterID: s.ParticipantID,
	})
	if err == nil {
		err = c.Broadcast(ctx, s.MeetingID, event)
	}
	if err != nil {
		c.cancelPresence(requestID)
		return "", err
	}

	c.mu.Lock()
	if _, still := c.pending[requestID]; still {
		request.timer = time.AfterFunc(c.presenceTimeout, func() {
			c.finishPresence(requestID, true)
		})
	}
	c.mu.Unlock()

	c.logger.Debug("realtime presence request started",
		"event", "realtime_presence_requested",
		"module", moduleName,
		"layer", "application",
		"request_id", requestID,
		"meeting_id", s.MeetingID,
		"protocol_id", protocolID,
		"expected_count", len(request.expected),
	)
	return requestID, nil
}

// HandleUserState broadcasts a peer's answer to a presence request.
func (c *Coordinator) HandleUserState(ctx context.Context, connID string, requestID string, protocolID string, isDone bool) error {
	s, err := c.Resolve(connID)
	if err != nil {
		return err
	}
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return domainerrors.ErrInvalidRequest
	}
	event, err := c.newEnvelope(ctx, s.MeetingID, eventsv1.EventTypeProtocolUserState, requestID, entities.UserState{
		RequestID:     requestID,
		ParticipantID: s.ParticipantID,
		ProtocolID:    strings.TrimSpace(protocolID),
		IsDone:        isDone,
	})
	if err != nil {
		return err
	}
	return c.Broadcast(ctx, s.MeetingID, event)
}

func (c *Coordinator) observeUserState(event eventsv1.Envelope) {
	var state entities.UserState
	if err := json.Unmarshal(event.Data, &state); err != nil {
		return
	}
	c.mu.Lock()
	request, ok := c.pending[state.RequestID]
	if !ok || state.ParticipantID == request.requesterID {
		c.mu.Unlock()
		return
	}
	request.states[state.ParticipantID] = state
	done := request.complete()
	c.mu.Unlock()

	if done {
		c.finishPresence(state.RequestID, false)
	}
}

// abandonPresenceLocked drops requests started by the leaving connection and
// stops expecting answers from a participant that has no connection left on
// the channel. It returns the requests that became complete.
func (c *Coordinator) abandonPresenceLocked(s *session) []string {
	stillConnected := false
	for _, other := range c.channels[s.MeetingID] {
		if other.ParticipantID == s.ParticipantID {
			stillConnected = true
			break
		}
	}

	completed := make([]string, 0)
	for id, request := range c.pending {
		if request.connID == s.ConnID {
			request.stop()
			delete(c.pending, id)
			continue
		}
		if stillConnected || request.channel != s.MeetingID || !request.expected[s.ParticipantID] {
			continue
		}
		delete(request.expected, s.ParticipantID)
		if request.complete() {
			completed = append(completed, id)
		}
	}
	return completed
}

func (c *Coordinator) cancelPresence(requestID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if request, ok := c.pending[requestID]; ok {
		request.stop()
		delete(c.pending, requestID)
	}
}

func (c *Coordinator) finishPresence(requestID string, timedOut bool) {
	c.mu.Lock()
	request, ok := c.pending[requestID]
	if !ok {
		c.mu.Unlock()
		return
	}
	delete(c.pending, requestID)
	request.stop()

	summary := entities.UserStateSummary{
		RequestID:  request.id,
		SessionID:  request.sessionID,
		ProtocolID: request.protocolID,
		States:     make([]entities.UserState, 0, len(request.states)),
		Missing:    make([]string, 0),
		TimedOut:   timedOut,
	}
	for _, state := range request.states {
		summary.States = append(summary.States, state)
		if state.IsDone {
			summary.DoneCount++
		}
	}
	for participantID := range request.expected {
		if _, answered := request.states[participantID]; !answered {
			summary.Missing = append(summary.Missing, participantID)
		}
	}
	c.mu.Unlock()

	sort.Slice(summary.States, func(i, j int) bool {
		return summary.States[i].ParticipantID < summary.States[j].ParticipantID
	})
	sort.Strings(summary.Missing)

	c.metrics.PresenceCompleted(timedOut)
	event, err := c.newEnvelope(context.Background(), request.channel, eventsv1.EventTypeProtocolUserStateResult, request.id, summary)
	if err != nil {
		c.logger.Error("realtime presence summary encode failed",
			"event", "realtime_presence_summary_failed",
			"module", moduleName,
			"layer", "application",
			"request_id", request.id,
			"error", err.Error(),
		)
		return
	}
	if err := c.SendTo(request.connID, event); err != nil {
		c.logger.Warn("realtime presence summary undeliverable",
			"event", "realtime_presence_summary_undeliverable",
			"module", moduleName,
			"layer", "application",
			"request_id", request.id,
			"conn_id", request.connID,
			"error", err.Error(),
		)
		return
	}
	c.logger.Debug("realtime presence request completed",
		"event", "realtime_presence_completed",
		"module", moduleName,
		"layer", "application",
		"request_id", request.id,
		"answered_count", len(summary.States),
		"missing_count", len(summary.Missing),
		"timed_out", timedOut,
	)
}
