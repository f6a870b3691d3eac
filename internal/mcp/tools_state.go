package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"flowedit/internal/domain"
)

func (s *Server) registerStateTools() {
	// ── add_state ──────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("add_state",
		mcp.WithDescription("Add a state (node) to the active solution. Without x and y it is placed on the first free grid cell."),
		mcp.WithString("name", mcp.Description("Unique state name"), mcp.Required()),
		mcp.WithString("kind", mcp.Description("Shape: circle, rectangle or diamond"), mcp.Required()),
		mcp.WithNumber("x", mcp.Description("Centre X")),
		mcp.WithNumber("y", mcp.Description("Centre Y")),
		mcp.WithNumber("radius", mcp.Description("Circle radius")),
		mcp.WithNumber("width", mcp.Description("Rectangle width")),
		mcp.WithNumber("height", mcp.Description("Rectangle height")),
		mcp.WithNumber("cornerRadius", mcp.Description("Rectangle corner radius")),
		mcp.WithNumber("halfDiagonal", mcp.Description("Diamond half diagonal")),
		mcp.WithString("slots", mcp.Description(`JSON array of slots, e.g. [{"index":0,"input":true},{"index":1,"output":true,"angle":180}]`)),
	), s.handleAddState)

	// ── move_state ─────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("move_state",
		mcp.WithDescription("Move a state. The drop is resolved against overlapping states like a user drag: it may be pushed aside or reverted."),
		mcp.WithString("name", mcp.Description("State name"), mcp.Required()),
		mcp.WithNumber("x", mcp.Description("Target centre X"), mcp.Required()),
		mcp.WithNumber("y", mcp.Description("Target centre Y"), mcp.Required()),
	), s.handleMoveState)

	// ── delete_state ───────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("delete_state",
		mcp.WithDescription("Delete a state with its slots and connectors. Requires user approval."),
		mcp.WithString("name", mcp.Description("State name"), mcp.Required()),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{DestructiveHint: boolPtr(true)}),
	), s.handleDeleteState)

	// ── add_slot ───────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("add_slot",
		mcp.WithDescription("Add a connection slot to a state. angle is the position along the perimeter in degrees (0-360)."),
		mcp.WithString("state", mcp.Description("Owning state"), mcp.Required()),
		mcp.WithNumber("index", mcp.Description("Slot index, unique within the state"), mcp.Required()),
		mcp.WithBoolean("input", mcp.Description("Slot accepts incoming connectors")),
		mcp.WithBoolean("output", mcp.Description("Slot starts outgoing connectors")),
		mcp.WithNumber("angle", mcp.Description("Perimeter position in degrees")),
		mcp.WithString("color", mcp.Description("Hex colour override, e.g. #ff8800")),
		mcp.WithString("label", mcp.Description("Label override")),
	), s.handleAddSlot)

	// ── connect_slots ──────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("connect_slots",
		mcp.WithDescription("Connect a source slot to a sink slot"),
		mcp.WithString("sourceState", mcp.Required()),
		mcp.WithNumber("sourceSlot", mcp.Required()),
		mcp.WithString("sinkState", mcp.Required()),
		mcp.WithNumber("sinkSlot", mcp.Required()),
	), s.handleConnectSlots)
}

func (s *Server) activeName() string {
	if ed, err := s.solutions.Active(); err == nil {
		return ed.Solution()
	}
	return ""
}

func (s *Server) handleAddState(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	kind, err := domain.ParseShapeKind(req.GetString("kind", ""))
	if err != nil {
		return nil, err
	}
	st := domain.State{
		Name:         req.GetString("name", ""),
		Kind:         kind,
		X:            req.GetFloat("x", 0),
		Y:            req.GetFloat("y", 0),
		Radius:       req.GetFloat("radius", 0),
		Width:        req.GetFloat("width", 0),
		Height:       req.GetFloat("height", 0),
		CornerRadius: req.GetFloat("cornerRadius", 0),
		HalfDiagonal: req.GetFloat("halfDiagonal", 0),
	}
	if raw := req.GetString("slots", ""); raw != "" {
		if err := parseJSON(raw, &st.Slots); err != nil {
			return nil, fmt.Errorf("slots must be a JSON array: %w", err)
		}
	}
	autoPlace := !has(args, "x") || !has(args, "y")
	added, err := s.solutions.AddState(st, autoPlace)
	if err != nil {
		return nil, fmt.Errorf("add state: %w", err)
	}
	s.emitSolutionChanged(ctx, s.activeName())
	return jsonResult(added)
}

func (s *Server) handleMoveState(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := req.GetString("name", "")
	if name == "" {
		return nil, fmt.Errorf("name is required")
	}
	res, err := s.solutions.MoveState(name, req.GetFloat("x", 0), req.GetFloat("y", 0))
	if err != nil {
		return nil, fmt.Errorf("move state: %w", err)
	}
	s.emitSolutionChanged(ctx, s.activeName())
	return jsonResult(map[string]any{
		"state":    name,
		"x":        res.Position.X,
		"y":        res.Position.Y,
		"outcome":  res.Outcome,
		"neighbor": res.Neighbor,
	})
}

func (s *Server) handleDeleteState(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := req.GetString("name", "")
	if name == "" {
		return nil, fmt.Errorf("name is required")
	}
	ed, err := s.solutions.Active()
	if err != nil {
		return nil, err
	}
	st, ok := ed.State(name)
	if !ok {
		return nil, fmt.Errorf("state %q: %w", name, domain.ErrStateNotFound)
	}

	meta, _ := json.Marshal(map[string][]string{"states": {name}})
	approved, err := s.approval.Request(ctx, "delete_state",
		fmt.Sprintf("Delete %s state %s and its connectors", st.Kind, name), string(meta))
	if err != nil || !approved {
		return textResult("Action rejected by user"), nil
	}
	if err := s.solutions.DeleteState(name); err != nil {
		return nil, fmt.Errorf("delete state: %w", err)
	}
	s.emitSolutionChanged(ctx, ed.Solution())
	return textResult(fmt.Sprintf("Deleted state %s", name)), nil
}

func (s *Server) handleAddSlot(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	slot := domain.Slot{
		State:  req.GetString("state", ""),
		Index:  req.GetInt("index", -1),
		Input:  req.GetBool("input", false),
		Output: req.GetBool("output", false),
		Angle:  req.GetFloat("angle", 0),
		Color:  req.GetString("color", ""),
		Label:  req.GetString("label", ""),
	}
	if slot.State == "" {
		return nil, fmt.Errorf("state is required")
	}
	if err := s.solutions.AddSlot(slot); err != nil {
		return nil, fmt.Errorf("add slot: %w", err)
	}
	s.emitSolutionChanged(ctx, s.activeName())
	return textResult(fmt.Sprintf("Added slot %d to %s", slot.Index, slot.State)), nil
}

func (s *Server) handleConnectSlots(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	c, err := s.solutions.Connect(domain.Connector{
		SourceState: req.GetString("sourceState", ""),
		SourceSlot:  req.GetInt("sourceSlot", -1),
		SinkState:   req.GetString("sinkState", ""),
		SinkSlot:    req.GetInt("sinkSlot", -1),
	})
	if err != nil {
		return nil, fmt.Errorf("connect slots: %w", err)
	}
	s.emitSolutionChanged(ctx, s.activeName())
	return jsonResult(c)
}
