package server

import "net/http"

type endpointInfo struct {
	Path        string   `json:"path"`
	Methods     []string `json:"methods"`
	Description string   `json:"description"`
}

type discoveryResponse struct {
	Name        string         `json:"name"`
	Version     string         `json:"version"`
	Description string         `json:"description"`
	Endpoints   []endpointInfo `json:"endpoints"`
}

func (s *Server) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	respondOK(w, reqID, discoveryResponse{
		Name:        "kthread API",
		Version:     "v1",
		Description: "Recorded runs of the simulated kernel scheduler",
		Endpoints: []endpointInfo{
			{"/api/v1/runs", []string{"GET", "POST"}, "List runs; POST a scenario YAML to execute it"},
			{"/api/v1/runs/{id}", []string{"GET", "DELETE"}, "Single run"},
			{"/api/v1/runs/{id}/events", []string{"GET"}, "Context switch trace of a run"},
			{"/api/v1/runs/{id}/tasks", []string{"GET"}, "Task registry snapshot taken when the run ended"},
			{"/api/v1/health", []string{"GET"}, "Server health and version"},
		},
	})
}
