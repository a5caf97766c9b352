package httpadapter

import (
	"context"
	"log/slog"

	"parley/contexts/meeting-collaboration/protocol-engine/application/commands"
	"parley/contexts/meeting-collaboration/protocol-engine/application/queries"
	"parley/contexts/meeting-collaboration/protocol-engine/domain/entities"
	httptransport "parley/contexts/meeting-collaboration/protocol-engine/transport/http"
)

type Handler struct {
	Protocols commands.ProtocolUseCase
	Items     commands.ItemUseCase
	Votes     commands.VoteUseCase
	Queries   queries.QueryUseCase
	Logger    *slog.Logger
}

func (h Handler) CreateProtocolHandler(
	ctx context.Context,
	caller httptransport.Caller,
	req httptransport.CreateProtocolRequest,
) (httptransport.ProtocolResponse, error) {
	protocol, err := h.Protocols.CreateProtocol(ctx, actorFrom(caller), commands.CreateProtocolCommand{
		ProtocolTypeID: req.ProtocolTypeID,
		Title:          req.Title,
		Data:           req.Data,
	})
	if err != nil {
		return httptransport.ProtocolResponse{}, err
	}
	return mapProtocol(protocol, nil), nil
}

func (h Handler) AdvancePhaseHandler(
	ctx context.Context,
	caller httptransport.Caller,
	req httptransport.PhaseRequest,
) (httptransport.ProtocolResponse, error) {
	protocol, err := h.Protocols.AdvancePhase(ctx, actorFrom(caller), commands.AdvancePhaseCommand{
		ProtocolID: req.ProtocolID,
		Force:      req.Force,
	})
	if err != nil {
		return httptransport.ProtocolResponse{}, err
	}
	return mapProtocol(protocol, nil), nil
}

func (h Handler) RetreatPhaseHandler(
	ctx context.Context,
	caller httptransport.Caller,
	req httptransport.PhaseRequest,
) (httptransport.ProtocolResponse, error) {
	protocol, err := h.Protocols.RetreatPhase(ctx, actorFrom(caller), req.ProtocolID)
	if err != nil {
		return httptransport.ProtocolResponse{}, err
	}
	return mapProtocol(protocol, nil), nil
}

func (h Handler) SetReadyForNextPhaseHandler(
	ctx context.Context,
	caller httptransport.Caller,
	req httptransport.SetReadyRequest,
) (httptransport.ProtocolResponse, error) {
	protocol, err := h.Protocols.SetReadyForNextPhase(ctx, actorFrom(caller), commands.SetReadyCommand{
		ProtocolID: req.ProtocolID,
		Ready:      req.Ready,
	})
	if err != nil {
		return httptransport.ProtocolResponse{}, err
	}
	return mapProtocol(protocol, nil), nil
}

func (h Handler) CreateItemHandler(
	ctx context.Context,
	caller httptransport.Caller,
	req httptransport.CreateItemRequest,
) (httptransport.ItemResponse, error) {
	item, err := h.Items.CreateItem(ctx, actorFrom(caller), commands.CreateItemCommand{
		ProtocolID: req.ProtocolID,
		Text:       req.Text,
		Tags:       req.Tags,
		Data:       req.Data,
		ParentID:   req.ParentID,
	})
	if err != nil {
		return httptransport.ItemResponse{}, err
	}
	return mapItem(item, 0), nil
}

func (h Handler) CreateItemGroupHandler(
	ctx context.Context,
	caller httptransport.Caller,
	req httptransport.CreateItemGroupRequest,
) (httptransport.ItemResponse, error) {
	group, err := h.Items.CreateGroup(ctx, actorFrom(caller), commands.CreateGroupCommand{
		ProtocolID: req.ProtocolID,
		Text:       req.Text,
		Tags:       req.Tags,
		Data:       req.Data,
		MemberIDs:  req.ItemIDs,
	})
	if err != nil {
		return httptransport.ItemResponse{}, err
	}
	return mapItem(group, 0), nil
}

func (h Handler) UpdateItemHandler(
	ctx context.Context,
	caller httptransport.Caller,
	req httptransport.UpdateItemRequest,
) (httptransport.ItemResponse, error) {
	item, err := h.Items.UpdateItem(ctx, actorFrom(caller), commands.UpdateItemCommand{
		ItemID: req.ItemID,
		Text:   req.Text,
		Tags:   req.Tags,
	})
	if err != nil {
		return httptransport.ItemResponse{}, err
	}
	return mapItem(item, 0), nil
}

func (h Handler) SetItemParentHandler(
	ctx context.Context,
	caller httptransport.Caller,
	req httptransport.SetItemParentRequest,
) error {
	return h.Items.SetItemParent(ctx, actorFrom(caller), req.ItemID, req.ParentID)
}

func (h Handler) SetItemsParentHandler(
	ctx context.Context,
	caller httptransport.Caller,
	req httptransport.SetItemsParentRequest,
) error {
	return h.Items.SetItemsParent(ctx, actorFrom(caller), commands.SetItemsParentCommand{
		ItemIDs:  req.ItemIDs,
		ParentID: req.ParentID,
	})
}

func (h Handler) PrioritizeItemHandler(
	ctx context.Context,
	caller httptransport.Caller,
	req httptransport.PrioritizeItemRequest,
) (httptransport.ItemResponse, error) {
	override, err := resolveOverride(req)
	if err != nil {
		return httptransport.ItemResponse{}, err
	}
	item, err := h.Items.PrioritizeItem(ctx, actorFrom(caller), commands.PrioritizeItemCommand{
		ItemID:   req.ItemID,
		Override: override,
	})
	if err != nil {
		return httptransport.ItemResponse{}, err
	}
	return mapItem(item, 0), nil
}

func (h Handler) DeleteItemHandler(
	ctx context.Context,
	caller httptransport.Caller,
	req httptransport.DeleteItemRequest,
) (httptransport.DeletedResponse, error) {
	if err := h.Items.DeleteItem(ctx, actorFrom(caller), req.ItemID); err != nil {
		return httptransport.DeletedResponse{}, err
	}
	return httptransport.DeletedResponse{ID: req.ItemID, Deleted: true}, nil
}

func (h Handler) DeleteItemGroupHandler(
	ctx context.Context,
	caller httptransport.Caller,
	req httptransport.DeleteItemRequest,
) (httptransport.DeletedResponse, error) {
	if err := h.Items.DeleteGroup(ctx, actorFrom(caller), req.ItemID); err != nil {
		return httptransport.DeletedResponse{}, err
	}
	return httptransport.DeletedResponse{ID: req.ItemID, Deleted: true}, nil
}

func (h Handler) CreateItemActionHandler(
	ctx context.Context,
	caller httptransport.Caller,
	req httptransport.CreateItemActionRequest,
) (httptransport.ActionResponse, error) {
	action, err := h.Votes.CastVote(ctx, actorFrom(caller), commands.CastVoteCommand{
		ItemID:     req.ItemID,
		ActionType: entities.ActionType(req.ActionType),
	})
	if err != nil {
		return httptransport.ActionResponse{}, err
	}
	return httptransport.ActionResponse{
		ID:              action.ID,
		Type:            string(action.Type),
		CreatorID:       action.CreatorID,
		ProtocolItemID:  action.ProtocolItemID,
		ProtocolPhaseID: action.ProtocolPhaseID,
		CreatedAt:       action.CreatedAt.UTC(),
	}, nil
}

func (h Handler) DeleteItemActionHandler(
	ctx context.Context,
	caller httptransport.Caller,
	req httptransport.DeleteItemActionRequest,
) (httptransport.DeletedResponse, error) {
	if err := h.Votes.RetractVote(ctx, actorFrom(caller), req.ActionID); err != nil {
		return httptransport.DeletedResponse{}, err
	}
	return httptransport.DeletedResponse{ID: req.ActionID, Deleted: true}, nil
}

// ReviewResultsHandler serves results scoped to meetingID; an empty meetingID
// reads without meeting scoping.
func (h Handler) ReviewResultsHandler(
	ctx context.Context,
	meetingID string,
	protocolID string,
) (httptransport.ReviewResultsResponse, error) {
	result, err := h.Queries.ReviewResults(ctx, meetingID, protocolID)
	if err != nil {
		return httptransport.ReviewResultsResponse{}, err
	}
	resp := httptransport.ReviewResultsResponse{
		ProtocolID: result.ProtocolID,
		Strategy:   string(result.Strategy),
		Items:      make([]httptransport.ResultRowResponse, 0, len(result.Rows)),
	}
	for _, row := range result.Rows {
		resp.Items = append(resp.Items, httptransport.ResultRowResponse{
			ItemResponse:    mapItem(row.Item, row.Votes),
			IsPrioritized:   row.IsPrioritized,
			IsReprioritized: row.IsReprioritized,
			IsDeprioritized: row.IsDeprioritized,
			Bucket:          string(row.Bucket),
		})
	}
	return resp, nil
}

func (h Handler) GetProtocolHandler(ctx context.Context, meetingID string, protocolID string) (httptransport.ProtocolResponse, error) {
	details, err := h.Queries.GetProtocol(ctx, meetingID, protocolID)
	if err != nil {
		return httptransport.ProtocolResponse{}, err
	}
	var phase *httptransport.PhaseResponse
	if details.CurrentPhase.ID != "" {
		mapped := mapPhase(details.CurrentPhase)
		phase = &mapped
	}
	return mapProtocol(details.Protocol, phase), nil
}

func (h Handler) ListItemsHandler(ctx context.Context, meetingID string, protocolID string) (httptransport.ItemsResponse, error) {
	items, err := h.Queries.ListItems(ctx, meetingID, protocolID)
	if err != nil {
		return httptransport.ItemsResponse{}, err
	}
	resp := httptransport.ItemsResponse{
		ProtocolID: protocolID,
		Items:      make([]httptransport.ItemResponse, 0, len(items)),
	}
	for _, item := range items {
		resp.Items = append(resp.Items, mapItem(item.Item, item.Votes))
	}
	return resp, nil
}

func (h Handler) GetProtocolTypeHandler(ctx context.Context, typeID string) (httptransport.ProtocolTypeResponse, error) {
	protocolType, err := h.Queries.GetProtocolType(ctx, typeID)
	if err != nil {
		return httptransport.ProtocolTypeResponse{}, err
	}
	resp := httptransport.ProtocolTypeResponse{
		ID:       protocolType.ID,
		Name:     protocolType.Name,
		Strategy: string(protocolType.Strategy),
		Phases:   make([]httptransport.PhaseResponse, 0, len(protocolType.Phases)),
	}
	for _, phase := range protocolType.Phases {
		resp.Phases = append(resp.Phases, mapPhase(phase))
	}
	return resp, nil
}

func resolveOverride(req httptransport.PrioritizeItemRequest) (entities.PriorityOverride, error) {
	if req.ShouldPrioritize != nil {
		if *req.ShouldPrioritize {
			return entities.OverridePrioritize, nil
		}
		return entities.OverrideDeprioritize, nil
	}
	return entities.OverrideFromFlags(req.IsForcefullyPrioritized, req.IsForcefullyDeprioritized)
}

func actorFrom(caller httptransport.Caller) commands.Actor {
	return commands.Actor{
		ParticipantID: caller.ParticipantID,
		MeetingID:     caller.MeetingID,
		RequestID:     caller.RequestID,
	}
}

func mapProtocol(protocol entities.Protocol, phase *httptransport.PhaseResponse) httptransport.ProtocolResponse {
	return httptransport.ProtocolResponse{
		ID:                  protocol.ID,
		MeetingID:           protocol.MeetingID,
		TypeID:              protocol.TypeID,
		CreatorID:           protocol.CreatorID,
		Title:               protocol.Title,
		CurrentPhaseIndex:   protocol.CurrentPhaseIndex,
		CurrentPhase:        phase,
		IsCompleted:         protocol.IsCompleted,
		ReadyForNextPhase:   protocol.ReadyForNextPhase,
		LastPhaseChangeDate: protocol.LastPhaseChangeDate.UTC(),
		Data:                protocol.Data,
	}
}

func mapPhase(phase entities.ProtocolPhase) httptransport.PhaseResponse {
	return httptransport.PhaseResponse{
		ID:           phase.ID,
		Name:         phase.Name,
		Description:  phase.Description,
		Index:        phase.Index,
		Kind:         string(phase.Kind),
		IsCollective: phase.IsCollective,
		Data:         phase.Data,
	}
}

func mapItem(item entities.ProtocolItem, votes int) httptransport.ItemResponse {
	tags := item.Tags
	if tags == nil {
		tags = []string{}
	}
	return httptransport.ItemResponse{
		ID:                        item.ID,
		Kind:                      string(item.Kind),
		CreatorID:                 item.CreatorID,
		ProtocolID:                item.ProtocolID,
		ProtocolPhaseID:           item.ProtocolPhaseID,
		Text:                      item.Text,
		Tags:                      tags,
		Data:                      item.Data,
		ParentID:                  item.ParentID,
		IsForcefullyPrioritized:   item.IsForcefullyPrioritized,
		IsForcefullyDeprioritized: item.IsForcefullyDeprioritized,
		VoteCount:                 votes,
		CreatedAt:                 item.CreatedAt.UTC(),
	}
}
