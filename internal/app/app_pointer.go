package app

import (
	"flowedit/internal/canvas"
	"flowedit/internal/interaction"
	"flowedit/internal/service"
)

// ── Scene ──────────────────────────────────────────────────

// Scene returns the mounted scene graph for the frontend to draw.
func (a *App) Scene() SceneView {
	view := SceneView{Elements: []canvas.Element{}}
	if ed, err := a.solutions.Active(); err == nil {
		view.Solution = ed.Solution()
	}
	if scene, ok := a.provider.Current().(*canvas.Scene); ok {
		view.Version = scene.Version()
		view.Elements = scene.Snapshot()
	}
	return view
}

// sceneChanged emits the scene when its version moved since the last emit.
func (a *App) sceneChanged() {
	view := a.Scene()
	a.sceneMu.Lock()
	changed := view.Version != a.lastVersion || view.Solution != a.lastSolution
	a.lastVersion, a.lastSolution = view.Version, view.Solution
	a.sceneMu.Unlock()
	if changed {
		a.Emit(a.ctx, service.EventSceneChanged, view)
	}
}

// ── Pointer ────────────────────────────────────────────────

// PointerDown starts a drag on the element with targetID. It reports whether
// a layer took the press.
func (a *App) PointerDown(targetID string, x, y float64) bool {
	ed, err := a.solutions.Active()
	if err != nil {
		return false
	}
	handled := ed.PointerDown(targetID, x, y)
	a.sceneChanged()
	return handled
}

func (a *App) PointerMove(x, y float64) {
	ed, err := a.solutions.Active()
	if err != nil {
		return
	}
	ed.PointerMove(x, y)
	a.sceneChanged()
}

func (a *App) PointerUp(targetID string, x, y float64) {
	ed, err := a.solutions.Active()
	if err != nil {
		return
	}
	ed.PointerUp(targetID, x, y)
	a.sceneChanged()
}

func (a *App) ContextMenu(targetID string, x, y float64) bool {
	ed, err := a.solutions.Active()
	if err != nil {
		return false
	}
	return ed.ContextMenu(targetID, x, y)
}

func (a *App) SetConnectorMode(on bool) {
	if ed, err := a.solutions.Active(); err == nil {
		ed.SetConnectorMode(on)
	}
}

func (a *App) ConnectorMode() bool {
	ed, err := a.solutions.Active()
	return err == nil && ed.ConnectorMode()
}

// DragMode names the gesture in progress, "idle" when none.
func (a *App) DragMode() string {
	ed, err := a.solutions.Active()
	if err != nil {
		return interaction.Idle.String()
	}
	return ed.DragMode().String()
}
