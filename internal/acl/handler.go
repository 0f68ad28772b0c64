package acl

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/gatekeep/gatekeep/internal/platform/httpx"
)

// Handler exposes the active graph for inspection and lets an operator
// trigger a re-import. Reachability of these routes is governed by the
// graph itself; the example dataset binds them to the admin role.
type Handler struct {
	logger     *slog.Logger
	graph      *Graph
	importer   *Importer
	importFile string
}

// NewHandler constructs a Handler. importFile is the configured import
// source used when a re-import request names no file.
func NewHandler(logger *slog.Logger, graph *Graph, importer *Importer, importFile string) *Handler {
	return &Handler{logger: logger, graph: graph, importer: importer, importFile: importFile}
}

// MountRoutes registers acl routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/acl/roles", h.listRoles)
	r.Get("/acl/permissions", h.listPermissions)
	r.Post("/acl/import", h.runImport)
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": h.graph.Roles()})
}

func (h *Handler) listPermissions(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, map[string]any{"permissions": h.graph.Permissions()})
}

type importRequest struct {
	File string `json:"file"`
}

func (h *Handler) runImport(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if r.ContentLength > 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid import request body")
			return
		}
	}
	file := req.File
	if file == "" {
		file = h.importFile
	}
	result, err := h.importer.ImportFrom(r.Context(), file)
	if err != nil {
		h.logger.Error("acl import", slog.Any("error", err))
		httpx.Problem(w, http.StatusUnprocessableEntity, "Import Failed", err.Error())
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}
