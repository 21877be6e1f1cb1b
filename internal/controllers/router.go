package controllers

import "net/http"

// RegisterRoutes wires the HTTP routes for this controller.
func (c *WorkflowsController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/workflows", c.RequireAuth(c.handleCreateWorkflow))
	mux.HandleFunc("GET /api/workflows", c.RequireAuth(c.handleListWorkflows))
	mux.HandleFunc("GET /api/workflows/{id}", c.RequireAuth(c.handleGetWorkflow))
	mux.HandleFunc("PUT /api/workflows/{id}", c.RequireAuth(c.handleUpdateWorkflow))
	mux.HandleFunc("DELETE /api/workflows/{id}", c.RequireAuth(c.handleDeleteWorkflow))
	mux.HandleFunc("POST /api/workflows/{id}/execute", c.RequireAuth(c.handleExecuteWorkflow))
	mux.HandleFunc("GET /api/workflows/{id}/executions", c.RequireAuth(c.handleListExecutions))
	mux.HandleFunc("GET /api/executions", c.RequireAuth(c.handleRecentExecutions))
	mux.HandleFunc("GET /api/executions/{id}", c.RequireAuth(c.handleGetExecution))
	mux.HandleFunc("POST /api/executions/{id}/cancel", c.RequireAuth(c.handleCancelExecution))
}

func (c *SchedulesController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/schedules", c.RequireAuth(c.handleCreateSchedule))
	mux.HandleFunc("GET /api/schedules", c.RequireAuth(c.handleListSchedules))
	mux.HandleFunc("GET /api/schedules/{id}", c.RequireAuth(c.handleGetSchedule))
	mux.HandleFunc("PUT /api/schedules/{id}", c.RequireAuth(c.handleUpdateSchedule))
	mux.HandleFunc("DELETE /api/schedules/{id}", c.RequireAuth(c.handleDeleteSchedule))
	mux.HandleFunc("POST /api/schedules/{id}/toggle", c.RequireAuth(c.handleToggleSchedule))
	mux.HandleFunc("POST /api/schedules/{id}/execute", c.RequireAuth(c.handleExecuteSchedule))
}

func (c *EventsController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/events", c.RequireAuth(c.handleReplayEvents))
	mux.HandleFunc("GET /api/events/sequence", c.RequireAuth(c.handleEventSequence))
}
