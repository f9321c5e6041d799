package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/lumenhr/lumenhr/modules/directory/domain/ports"
)

type TenantIDGetter func(ctx context.Context) (tenantID string, ok bool)

type DirectoryController struct {
	TenantID TenantIDGetter
	Store    ports.DirectoryStore
}

func parseLimit(r *http.Request) int {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

type namedCreateRequest struct {
	Name       string `json:"name"`
	BranchUUID string `json:"branch_uuid"`
	ClientUUID string `json:"client_uuid"`
}

type createUserAPIRequest struct {
	Email          string `json:"email"`
	FullName       string `json:"full_name"`
	RoleSlug       string `json:"role_slug"`
	DepartmentUUID string `json:"department_uuid"`
	ClientUUID     string `json:"client_uuid"`
	ProjectUUID    string `json:"project_uuid"`
}

func (c DirectoryController) HandleBranchesAPI(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := c.TenantID(r.Context())
	if !ok {
		writeError(w, r, http.StatusInternalServerError, "tenant_missing", "tenant missing")
		return
	}

	switch r.Method {
	case http.MethodGet:
		branches, err := c.Store.ListBranches(r.Context(), tenantID, parseLimit(r))
		if err != nil {
			writeError(w, r, http.StatusInternalServerError, "store_error", "list failed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"tenant": tenantID, "branches": emptyIfNil(branches)})

	case http.MethodPost:
		var req namedCreateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, r, http.StatusBadRequest, "bad_json", "bad json")
			return
		}
		if strings.TrimSpace(req.Name) == "" {
			writeError(w, r, http.StatusBadRequest, "missing_name", "name is required")
			return
		}
		b, err := c.Store.CreateBranch(r.Context(), tenantID, req.Name)
		if err != nil {
			writeError(w, r, http.StatusInternalServerError, "store_error", "create failed")
			return
		}
		writeJSON(w, http.StatusCreated, b)

	default:
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	}
}

func (c DirectoryController) HandleDepartmentsAPI(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := c.TenantID(r.Context())
	if !ok {
		writeError(w, r, http.StatusInternalServerError, "tenant_missing", "tenant missing")
		return
	}

	switch r.Method {
	case http.MethodGet:
		departments, err := c.Store.ListDepartments(r.Context(), tenantID, parseLimit(r))
		if err != nil {
			writeError(w, r, http.StatusInternalServerError, "store_error", "list failed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"tenant": tenantID, "departments": emptyIfNil(departments)})

	case http.MethodPost:
		var req namedCreateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, r, http.StatusBadRequest, "bad_json", "bad json")
			return
		}
		if strings.TrimSpace(req.Name) == "" {
			writeError(w, r, http.StatusBadRequest, "missing_name", "name is required")
			return
		}
		// branch_uuid is optional: a department may exist before its branch
		// is decided, and scope resolution tolerates the gap.
		d, err := c.Store.CreateDepartment(r.Context(), tenantID, req.Name, req.BranchUUID)
		if err != nil {
			writeError(w, r, http.StatusInternalServerError, "store_error", "create failed")
			return
		}
		writeJSON(w, http.StatusCreated, d)

	default:
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	}
}

func (c DirectoryController) HandleClientsAPI(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := c.TenantID(r.Context())
	if !ok {
		writeError(w, r, http.StatusInternalServerError, "tenant_missing", "tenant missing")
		return
	}

	switch r.Method {
	case http.MethodGet:
		clients, err := c.Store.ListClients(r.Context(), tenantID, parseLimit(r))
		if err != nil {
			writeError(w, r, http.StatusInternalServerError, "store_error", "list failed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"tenant": tenantID, "clients": emptyIfNil(clients)})

	case http.MethodPost:
		var req namedCreateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, r, http.StatusBadRequest, "bad_json", "bad json")
			return
		}
		if strings.TrimSpace(req.Name) == "" {
			writeError(w, r, http.StatusBadRequest, "missing_name", "name is required")
			return
		}
		cl, err := c.Store.CreateClient(r.Context(), tenantID, req.Name)
		if err != nil {
			writeError(w, r, http.StatusInternalServerError, "store_error", "create failed")
			return
		}
		writeJSON(w, http.StatusCreated, cl)

	default:
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	}
}

func (c DirectoryController) HandleProjectsAPI(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := c.TenantID(r.Context())
	if !ok {
		writeError(w, r, http.StatusInternalServerError, "tenant_missing", "tenant missing")
		return
	}

	switch r.Method {
	case http.MethodGet:
		projects, err := c.Store.ListProjects(r.Context(), tenantID, parseLimit(r))
		if err != nil {
			writeError(w, r, http.StatusInternalServerError, "store_error", "list failed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"tenant": tenantID, "projects": emptyIfNil(projects)})

	case http.MethodPost:
		var req namedCreateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, r, http.StatusBadRequest, "bad_json", "bad json")
			return
		}
		if strings.TrimSpace(req.Name) == "" {
			writeError(w, r, http.StatusBadRequest, "missing_name", "name is required")
			return
		}
		p, err := c.Store.CreateProject(r.Context(), tenantID, req.ClientUUID, req.Name)
		if err != nil {
			writeError(w, r, http.StatusInternalServerError, "store_error", "create failed")
			return
		}
		writeJSON(w, http.StatusCreated, p)

	default:
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	}
}

func (c DirectoryController) HandleUsersAPI(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := c.TenantID(r.Context())
	if !ok {
		writeError(w, r, http.StatusInternalServerError, "tenant_missing", "tenant missing")
		return
	}

	switch r.Method {
	case http.MethodGet:
		if userUUID := strings.TrimSpace(r.URL.Query().Get("user_uuid")); userUUID != "" {
			u, found, err := c.Store.GetUser(r.Context(), tenantID, userUUID)
			if err != nil {
				writeError(w, r, http.StatusInternalServerError, "store_error", "get failed")
				return
			}
			if !found {
				writeError(w, r, http.StatusNotFound, "unknown_user", "user not found")
				return
			}
			writeJSON(w, http.StatusOK, u)
			return
		}
		users, err := c.Store.ListUsers(r.Context(), tenantID, parseLimit(r))
		if err != nil {
			writeError(w, r, http.StatusInternalServerError, "store_error", "list failed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"tenant": tenantID, "users": emptyIfNil(users)})

	case http.MethodPost:
		var req createUserAPIRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, r, http.StatusBadRequest, "bad_json", "bad json")
			return
		}
		if strings.TrimSpace(req.Email) == "" {
			writeError(w, r, http.StatusBadRequest, "missing_email", "email is required")
			return
		}
		u, err := c.Store.CreateUser(r.Context(), tenantID, ports.CreateUserParams{
			Email:        req.Email,
			FullName:     req.FullName,
			RoleSlug:     req.RoleSlug,
			DepartmentID: req.DepartmentUUID,
			ClientID:     req.ClientUUID,
			ProjectID:    req.ProjectUUID,
		})
		if err != nil {
			writeError(w, r, http.StatusInternalServerError, "store_error", "create failed")
			return
		}
		writeJSON(w, http.StatusCreated, u)

	default:
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	}
}

// HandleUserScopesAPI exposes the resolved scope view the policy engine
// sees for a user, mostly for admins debugging why a policy applies.
func (c DirectoryController) HandleUserScopesAPI(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := c.TenantID(r.Context())
	if !ok {
		writeError(w, r, http.StatusInternalServerError, "tenant_missing", "tenant missing")
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	userUUID := strings.TrimSpace(r.URL.Query().Get("user_uuid"))
	if userUUID == "" {
		writeError(w, r, http.StatusBadRequest, "missing_user_uuid", "user_uuid is required")
		return
	}

	scopes, found, err := c.Store.ResolveUserScopes(r.Context(), tenantID, userUUID)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "store_error", "resolve failed")
		return
	}
	if !found {
		writeError(w, r, http.StatusNotFound, "unknown_user", "user not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user_uuid":       scopes.UserID,
		"department_uuid": scopes.DepartmentID,
		"branch_uuid":     scopes.BranchID,
		"client_uuid":     scopes.ClientID,
		"project_uuid":    scopes.ProjectID,
	})
}

func emptyIfNil[T any](in []T) []T {
	if in == nil {
		return make([]T, 0)
	}
	return in
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorEnvelope struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	TraceID string            `json:"trace_id"`
	Meta    errorEnvelopeMeta `json:"meta"`
}

type errorEnvelopeMeta struct {
	Path   string `json:"path"`
	Method string `json:"method"`
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code string, message string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorEnvelope{
		Code:    code,
		Message: message,
		TraceID: traceIDFromRequest(r),
		Meta: errorEnvelopeMeta{
			Path:   r.URL.Path,
			Method: r.Method,
		},
	})
}

func traceIDFromRequest(r *http.Request) string {
	traceparent := strings.TrimSpace(r.Header.Get("traceparent"))
	if traceparent == "" {
		return ""
	}
	parts := strings.Split(traceparent, "-")
	if len(parts) != 4 {
		return ""
	}
	traceID := strings.ToLower(parts[1])
	if len(traceID) != 32 || traceID == "00000000000000000000000000000000" {
		return ""
	}
	for _, ch := range traceID {
		if (ch < '0' || ch > '9') && (ch < 'a' || ch > 'f') {
			return ""
		}
	}
	return traceID
}
