package server

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/pthm-cable/plume/config"
	"github.com/pthm-cable/plume/display"
	"github.com/pthm-cable/plume/sim"
)

// Message types accepted from clients.
const (
	TypePointer = "pointer"
	TypeConfig  = "config"
	TypeReset   = "reset"
	TypeResize  = "resize"
)

// Message is a client request. Pointer coordinates are in normalized device
// coordinates with +y up. Config sections are partial and use the same keys
// as the YAML config file; unspecified keys keep their current values.
type Message struct {
	Type string `json:"type"`

	X    float32 `json:"x"`
	Y    float32 `json:"y"`
	Down bool    `json:"down"`

	Resolution int     `json:"resolution,omitempty"`
	Aspect     float64 `json:"aspect,omitempty"`

	Simulation    json.RawMessage `json:"simulation,omitempty"`
	Visualization json.RawMessage `json:"visualization,omitempty"`
}

// Status is sent to a client as a text message on connect and after each
// rejected request.
type Status struct {
	Type  string `json:"type"`
	GridW int    `json:"grid_w"`
	GridH int    `json:"grid_h"`
	Mode  string `json:"mode"`
	Frame int32  `json:"frame"`
	Error string `json:"error,omitempty"`
}

// mergeSection overlays a partial JSON section onto dst. JSON is valid YAML,
// so the yaml tags of the config structs name the accepted keys.
func mergeSection(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := yaml.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decoding section: %w", err)
	}
	return nil
}

// applyConfig merges a config message into the working snapshot. Invalid
// simulation settings are rejected as a whole and the previous snapshot
// stays in force.
func (s *Server) applyConfig(msg Message) error {
	next := s.cfg.Simulation
	if err := mergeSection(msg.Simulation, &next); err != nil {
		return err
	}
	vis := s.cfg.Visualization
	if err := mergeSection(msg.Visualization, &vis); err != nil {
		return err
	}

	if len(msg.Simulation) > 0 {
		resized := next.Resolution != s.cfg.Simulation.Resolution || next.Aspect != s.cfg.Simulation.Aspect
		if err := s.sim.Configure(next); err != nil {
			return err
		}
		s.cfg.Simulation = next
		if resized {
			s.requestGridResize()
		}
	}
	if len(msg.Visualization) > 0 {
		if err := vis.Validate(); err != nil {
			return err
		}
		params, err := display.ParamsFromConfig(vis)
		if err != nil {
			return err
		}
		s.cfg.Visualization = vis
		s.params = params
	}
	return nil
}

// applyResize switches the nominal resolution and, when given, the aspect.
func (s *Server) applyResize(msg Message) error {
	next := s.cfg.Simulation
	if msg.Resolution != 0 {
		next.Resolution = msg.Resolution
	}
	if msg.Aspect > 0 {
		next.Aspect = msg.Aspect
	}
	if err := s.sim.Configure(next); err != nil {
		return err
	}
	s.cfg.Simulation = next
	s.requestGridResize()
	return nil
}

func (s *Server) requestGridResize() {
	w, h := config.GridSize(s.cfg.Simulation.Resolution, s.cfg.Simulation.Aspect)
	s.logger.Info("grid resize requested", "resolution", s.cfg.Simulation.Resolution, "grid_w", w, "grid_h", h)
	s.sim.RequestResize(w, h)
}

// handle applies a message on the stepping goroutine.
func (s *Server) handle(msg Message) error {
	switch msg.Type {
	case TypePointer:
		s.sim.PostPointer(sim.Pointer{X: msg.X, Y: msg.Y, Down: msg.Down})
	case TypeReset:
		s.sim.RequestReset()
	case TypeConfig:
		return s.applyConfig(msg)
	case TypeResize:
		return s.applyResize(msg)
	default:
		return fmt.Errorf("unknown message type %q", msg.Type)
	}
	return nil
}
