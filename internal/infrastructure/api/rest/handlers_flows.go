package rest

import (
	"net/http"

	"github.com/mbflowrt/flowengine/internal/domain"
)

// NodeRequest is one node in a CreateFlowRequest.
type NodeRequest struct {
	ID      string         `json:"id"`
	Type    string         `json:"type"`
	Subtype string         `json:"subtype"`
	Name    string         `json:"name"`
	Config  map[string]any `json:"config"`
}

// EdgeRequest is one edge in a CreateFlowRequest.
type EdgeRequest struct {
	ID        string `json:"id"`
	From      string `json:"from"`
	To        string `json:"to"`
	Label     string `json:"label"`
	Condition string `json:"condition"`
}

// TriggerRequest is one trigger in a CreateFlowRequest.
type TriggerRequest struct {
	ID     string         `json:"id"`
	Type   string         `json:"type"`
	Config map[string]any `json:"config"`
}

// CreateFlowRequest is the wire shape for registering a flow (§3, §4.10).
type CreateFlowRequest struct {
	ID       string           `json:"id"`
	Name     string           `json:"name"`
	Version  string           `json:"version"`
	Nodes    []NodeRequest    `json:"nodes"`
	Edges    []EdgeRequest    `json:"edges"`
	Triggers []TriggerRequest `json:"triggers"`
}

// FlowResponse mirrors a stored domain.Flow back out as JSON.
type FlowResponse struct {
	ID       string           `json:"id"`
	Name     string           `json:"name"`
	Version  string           `json:"version"`
	Nodes    []NodeRequest    `json:"nodes"`
	Edges    []EdgeRequest    `json:"edges"`
	Triggers []TriggerRequest `json:"triggers"`
}

func toFlowResponse(f *domain.Flow) FlowResponse {
	resp := FlowResponse{ID: f.ID(), Name: f.Name(), Version: f.Version()}
	for _, n := range f.Nodes() {
		resp.Nodes = append(resp.Nodes, NodeRequest{ID: n.ID(), Type: n.Type(), Subtype: n.Subtype(), Name: n.Name(), Config: n.Config()})
	}
	for _, e := range f.Edges() {
		resp.Edges = append(resp.Edges, EdgeRequest{ID: e.ID(), From: e.FromID(), To: e.ToID(), Label: e.Label(), Condition: e.Condition()})
	}
	for _, t := range f.Triggers() {
		resp.Triggers = append(resp.Triggers, TriggerRequest{ID: t.ID(), Type: t.Type(), Config: t.Config()})
	}
	return resp
}

func (s *Server) handleListFlows(w http.ResponseWriter, r *http.Request) {
	flows, err := s.store.ListFlows(r.Context())
	if err != nil {
		s.logger.Error("failed to list flows", "error", err)
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	out := make([]FlowResponse, 0, len(flows))
	for _, f := range flows {
		out = append(out, toFlowResponse(f))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetFlow(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	f, err := s.store.LoadFlow(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusNotFound, "flow not found")
		return
	}
	writeJSON(w, http.StatusOK, toFlowResponse(f))
}

func (s *Server) handleCreateFlow(w http.ResponseWriter, r *http.Request) {
	var req CreateFlowRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ID == "" {
		respondError(w, http.StatusBadRequest, "flow id is required")
		return
	}

	b := domain.NewBuilder(req.ID, req.Name, req.Version)
	for _, n := range req.Nodes {
		b.AddNode(domain.NewNode(n.ID, req.ID, n.Type, n.Subtype, n.Name, n.Config))
	}
	for _, e := range req.Edges {
		b.AddEdge(domain.NewEdge(e.ID, req.ID, e.From, e.To, e.Label, e.Condition))
	}
	for _, t := range req.Triggers {
		b.AddTrigger(domain.NewTrigger(t.ID, req.ID, t.Type, t.Config))
	}

	flow, err := b.Build()
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := flow.ValidateForExecution(); err != nil {
		s.logger.Warn("flow saved without a trigger", "flow_id", flow.ID(), "error", err)
	}

	if err := s.store.SaveFlow(r.Context(), flow); err != nil {
		s.logger.Error("failed to save flow", "error", err)
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusCreated, toFlowResponse(flow))
}
