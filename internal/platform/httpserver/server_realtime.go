package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	enginehttp "parley/contexts/meeting-collaboration/protocol-engine/transport/http"
	websocketadapter "parley/contexts/meeting-collaboration/realtime-coordinator/adapters/websocket"
	realtimeerrors "parley/contexts/meeting-collaboration/realtime-coordinator/domain/errors"
)

var (
	errUnknownMessage = errors.New("unknown message type")
	errInvalidPayload = errors.New("message payload is invalid")
)

type requestFrame struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id"`
	Payload   json.RawMessage `json:"payload"`
}

type responseFrame struct {
	Type      string                    `json:"type"`
	RequestID string                    `json:"request_id,omitempty"`
	OK        bool                      `json:"ok"`
	Error     *enginehttp.ErrorResponse `json:"error,omitempty"`
	Data      any                       `json:"data,omitempty"`
}

type authenticatePayload struct {
	ParticipantID string `json:"participant_id"`
}

type joinMeetingPayload struct {
	MeetingID string `json:"meeting_id"`
}

type userActivityPayload struct {
	ProtocolID string `json:"protocol_id"`
	IsDone     bool   `json:"is_done"`
}

type requestUserStatePayload struct {
	SessionID  string `json:"session_id"`
	ProtocolID string `json:"protocol_id"`
}

type userStatePayload struct {
	RequestID  string `json:"request_id"`
	ProtocolID string `json:"protocol_id"`
	IsDone     bool   `json:"is_done"`
}

type requestStartedData struct {
	RequestID string `json:"request_id"`
}

// handleLive upgrades to a websocket bound to the meeting in the path. The
// participant comes from X-User-Id (or the participant_id query parameter for
// browsers) or from a later Authenticate message.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	meetingID := strings.TrimSpace(r.PathValue("meeting_id"))
	if meetingID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "meeting_id is required")
		return
	}
	participantID := strings.TrimSpace(r.Header.Get("X-User-Id"))
	if participantID == "" {
		participantID = strings.TrimSpace(r.URL.Query().Get("participant_id"))
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed",
			"event", "realtime_ws_upgrade_failed",
			"module", moduleName,
			"layer", "platform",
			"meeting_id", meetingID,
			"error", err.Error(),
		)
		return
	}

	conn := websocketadapter.NewConn(uuid.NewString(), ws, s.opts.Conn)
	coordinator := s.realtime.Coordinator
	if err := coordinator.Register(conn); err != nil {
		_ = conn.Reply(s.errorFrame("", err))
		_ = ws.Close()
		return
	}
	if participantID != "" {
		_ = coordinator.Authenticate(conn.ID(), participantID)
	}
	_ = coordinator.Join(conn.ID(), meetingID)

	go func() {
		_ = conn.WritePump()
	}()

	ctx := r.Context()
	err = conn.ReadPump(ctx, func(ctx context.Context, message []byte) {
		s.handleFrame(ctx, conn, message)
	})
	reason := "client_closed"
	if err != nil {
		reason = "read_error"
	}
	coordinator.Leave(conn.ID(), reason)
	_ = conn.Close()
}

func (s *Server) handleFrame(ctx context.Context, conn *websocketadapter.Conn, message []byte) {
	var frame requestFrame
	if err := json.Unmarshal(message, &frame); err != nil {
		s.metrics.SocketRequest("invalid", "invalid_json")
		_ = conn.Reply(responseFrame{
			Type:  "Response",
			Error: &enginehttp.ErrorResponse{Code: "invalid_json", Message: "message must be valid JSON"},
		})
		return
	}
	if !conn.Allow() {
		s.metrics.SocketRequest(frame.Type, "rate_limited")
		_ = conn.Reply(s.errorFrame(frame.RequestID, realtimeerrors.ErrRateLimited))
		return
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.RequestTimeout)
	defer cancel()

	data, err := s.route(ctx, conn.ID(), frame)
	if err != nil {
		reply := s.errorFrame(frame.RequestID, err)
		s.metrics.SocketRequest(frame.Type, reply.Error.Code)
		_ = conn.Reply(reply)
		return
	}
	s.metrics.SocketRequest(frame.Type, "ok")
	_ = conn.Reply(responseFrame{
		Type:      "Response",
		RequestID: frame.RequestID,
		OK:        true,
		Data:      data,
	})
}

func (s *Server) route(ctx context.Context, connID string, frame requestFrame) (any, error) {
	coordinator := s.realtime.Coordinator
	switch frame.Type {
	case "Authenticate":
		payload, err := decodePayload[authenticatePayload](frame.Payload)
		if err != nil {
			return nil, err
		}
		return nil, coordinator.Authenticate(connID, payload.ParticipantID)
	case "JoinMeeting":
		payload, err := decodePayload[joinMeetingPayload](frame.Payload)
		if err != nil {
			return nil, err
		}
		return nil, coordinator.Join(connID, payload.MeetingID)
	case "UserActivity":
		payload, err := decodePayload[userActivityPayload](frame.Payload)
		if err != nil {
			return nil, err
		}
		return nil, coordinator.EmitDone(ctx, connID, payload.ProtocolID, payload.IsDone)
	case "RequestUserState":
		payload, err := decodePayload[requestUserStatePayload](frame.Payload)
		if err != nil {
			return nil, err
		}
		requestID, err := coordinator.RequestPeerStates(ctx, connID, payload.SessionID, payload.ProtocolID)
		if err != nil {
			return nil, err
		}
		return requestStartedData{RequestID: requestID}, nil
	case "UserState":
		payload, err := decodePayload[userStatePayload](frame.Payload)
		if err != nil {
			return nil, err
		}
		return nil, coordinator.HandleUserState(ctx, connID, payload.RequestID, payload.ProtocolID, payload.IsDone)
	}

	session, err := coordinator.Resolve(connID)
	if err != nil {
		return nil, err
	}
	caller := enginehttp.Caller{
		ParticipantID: session.ParticipantID,
		MeetingID:     session.MeetingID,
		RequestID:     frame.RequestID,
	}
	h := s.engine.Handler

	switch frame.Type {
	case "CreateProtocol":
		return dispatch(ctx, caller, frame.Payload, h.CreateProtocolHandler)
	case "AdvancePhase":
		return dispatch(ctx, caller, frame.Payload, h.AdvancePhaseHandler)
	case "RetreatPhase":
		return dispatch(ctx, caller, frame.Payload, h.RetreatPhaseHandler)
	case "SetReadyForNextPhase":
		return dispatch(ctx, caller, frame.Payload, h.SetReadyForNextPhaseHandler)
	case "CreateItem":
		return dispatch(ctx, caller, frame.Payload, h.CreateItemHandler)
	case "CreateItemGroup":
		return dispatch(ctx, caller, frame.Payload, h.CreateItemGroupHandler)
	case "UpdateItem":
		return dispatch(ctx, caller, frame.Payload, h.UpdateItemHandler)
	case "SetItemParent":
		return dispatchNoData(ctx, caller, frame.Payload, h.SetItemParentHandler)
	case "SetItemsParent":
		return dispatchNoData(ctx, caller, frame.Payload, h.SetItemsParentHandler)
	case "PrioritizeItem":
		return dispatch(ctx, caller, frame.Payload, h.PrioritizeItemHandler)
	case "DeleteItem":
		return dispatch(ctx, caller, frame.Payload, h.DeleteItemHandler)
	case "DeleteItemGroup":
		return dispatch(ctx, caller, frame.Payload, h.DeleteItemGroupHandler)
	case "CreateItemAction":
		return dispatch(ctx, caller, frame.Payload, h.CreateItemActionHandler)
	case "DeleteItemAction":
		return dispatch(ctx, caller, frame.Payload, h.DeleteItemActionHandler)
	case "ReviewResults":
		payload, err := decodePayload[enginehttp.ReviewResultsRequest](frame.Payload)
		if err != nil {
			return nil, err
		}
		return h.ReviewResultsHandler(ctx, caller.MeetingID, payload.ProtocolID)
	default:
		return nil, errUnknownMessage
	}
}

func dispatch[Req any, Resp any](
	ctx context.Context,
	caller enginehttp.Caller,
	raw json.RawMessage,
	call func(context.Context, enginehttp.Caller, Req) (Resp, error),
) (any, error) {
	req, err := decodePayload[Req](raw)
	if err != nil {
		return nil, err
	}
	return call(ctx, caller, req)
}

func dispatchNoData[Req any](
	ctx context.Context,
	caller enginehttp.Caller,
	raw json.RawMessage,
	call func(context.Context, enginehttp.Caller, Req) error,
) (any, error) {
	req, err := decodePayload[Req](raw)
	if err != nil {
		return nil, err
	}
	return nil, call(ctx, caller, req)
}

func decodePayload[T any](raw json.RawMessage) (T, error) {
	var payload T
	if len(raw) == 0 || string(raw) == "null" {
		return payload, errInvalidPayload
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return payload, errInvalidPayload
	}
	return payload, nil
}

func (s *Server) errorFrame(requestID string, err error) responseFrame {
	var code, message string
	switch {
	case errors.Is(err, errUnknownMessage):
		code, message = "unknown_message", err.Error()
	case errors.Is(err, errInvalidPayload):
		code, message = "invalid_payload", err.Error()
	default:
		_, code, message = s.classify(err)
	}
	return responseFrame{
		Type:      "Response",
		RequestID: requestID,
		Error:     &enginehttp.ErrorResponse{Code: code, Message: message},
	}
}
