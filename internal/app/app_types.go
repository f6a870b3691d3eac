package app

import (
	"time"

	"flowedit/internal/canvas"
	mcpserver "flowedit/internal/mcp"
	"flowedit/internal/storage"
)

// SceneView is what the frontend draws.
type SceneView struct {
	Solution string           `json:"solution"`
	Version  uint64           `json:"version"`
	Elements []canvas.Element `json:"elements"`
}

// MoveResult reports where a moved state settled.
type MoveResult struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Outcome  string  `json:"outcome"`
	Neighbor string  `json:"neighbor,omitempty"`
}

type OverlapView struct {
	A string `json:"a"`
	B string `json:"b"`
}

// PendingApproval is an MCP action waiting on the user.
type PendingApproval = mcpserver.PendingAction

func toPendingApproval(a storage.Approval) PendingApproval {
	return PendingApproval{
		ID:          a.ID,
		Tool:        a.Tool,
		Description: a.Description,
		CreatedAt:   a.CreatedAt.Format(time.RFC3339),
		Metadata:    a.Metadata,
	}
}
