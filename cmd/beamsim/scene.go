package main

import (
	"fmt"
	"strconv"

	"github.com/beamsim/beamsim/internal/ai"
	"github.com/beamsim/beamsim/internal/geo"
	"github.com/beamsim/beamsim/internal/world"
	"github.com/beamsim/beamsim/pkg/core"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/spf13/viper"
)

// sceneActor is one entry of the "scene" config list, spawned at startup.
type sceneActor struct {
	Definition string     `mapstructure:"definition"`
	Config     string     `mapstructure:"config"`
	Position   [3]float32 `mapstructure:"position"`
	// Heading rotates the actor about +Y, in degrees.
	Heading float32 `mapstructure:"heading"`
	// Route is a JSON array of waypoints; a non-empty route attaches an AI.
	Route string    `mapstructure:"route"`
	AI    ai.Config `mapstructure:"ai"`
}

func loadScene() ([]sceneActor, error) {
	var scene []sceneActor
	if err := viper.UnmarshalKey("scene", &scene); err != nil {
		return nil, fmt.Errorf("parse scene: %w", err)
	}
	return scene, nil
}

// spawnScene queues every scene actor. AI followers are attached right
// behind their spawn so they start on the same tick.
func spawnScene(w *world.World, scene []sceneActor) ([]core.ActorID, error) {
	ids := make([]core.ActorID, 0, len(scene))
	for i, s := range scene {
		id, err := w.Spawn(core.SpawnRequest{
			Definition: s.Definition,
			Config:     s.Config,
			Position:   mgl32.Vec3(s.Position),
			Rotation:   mgl32.QuatRotate(mgl32.DegToRad(s.Heading), mgl32.Vec3{0, 1, 0}),
		})
		if err != nil {
			return ids, fmt.Errorf("scene actor %d: %w", i, err)
		}
		ids = append(ids, id)
		if s.Route == "" {
			continue
		}

		route, err := geo.ParseRoute(s.Route)
		if err != nil {
			return ids, fmt.Errorf("scene actor %d: %w", i, err)
		}
		follower := ai.New(s.AI)
		for j, p := range route {
			follower.AddWaypoint(ai.Waypoint{ID: strconv.Itoa(j), Position: p})
		}
		if err := w.AttachAI(id, follower); err != nil {
			return ids, fmt.Errorf("scene actor %d: %w", i, err)
		}
	}
	return ids, nil
}
