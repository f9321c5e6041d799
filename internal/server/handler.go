package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/lumenhr/lumenhr/internal/routing"
	directoryports "github.com/lumenhr/lumenhr/modules/directory/domain/ports"
	directorypersistence "github.com/lumenhr/lumenhr/modules/directory/infrastructure/persistence"
	directorycontrollers "github.com/lumenhr/lumenhr/modules/directory/presentation/controllers"
	policyports "github.com/lumenhr/lumenhr/modules/policy/domain/ports"
	policycache "github.com/lumenhr/lumenhr/modules/policy/infrastructure/cache"
	policypersistence "github.com/lumenhr/lumenhr/modules/policy/infrastructure/persistence"
	policycontrollers "github.com/lumenhr/lumenhr/modules/policy/presentation/controllers"
	policyservices "github.com/lumenhr/lumenhr/modules/policy/services"
)

func NewHandler() (http.Handler, error) {
	return NewHandlerWithOptions(HandlerOptions{})
}

// HandlerOptions lets tests swap the backing stores for in-memory twins.
// Every nil field gets a production default: PG-backed stores over one
// shared pool, the yaml tenant registry, redis-or-memory selection cache.
type HandlerOptions struct {
	TenancyResolver TenancyResolver
	DirectoryStore  directoryports.DirectoryStore
	PolicyStore     policyports.PolicyStore
	PunchStore      PunchStore
	LeaveStore      LeaveStore
	SelectionKV     policycache.KV
	Logger          *zap.Logger
	JWTSecret       []byte
}

func NewHandlerWithOptions(opts HandlerOptions) (http.Handler, error) {
	allowlistPath := os.Getenv("ALLOWLIST_PATH")
	if allowlistPath == "" {
		p, err := defaultAllowlistPath()
		if err != nil {
			return nil, err
		}
		allowlistPath = p
	}

	a, err := routing.LoadAllowlist(allowlistPath)
	if err != nil {
		return nil, err
	}

	classifier, err := routing.NewClassifier(a, "server")
	if err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	directoryStore := opts.DirectoryStore
	var pgPool *pgxpool.Pool
	if directoryStore == nil {
		pool, err := pgxpool.New(context.Background(), dbDSNFromEnv())
		if err != nil {
			return nil, err
		}
		pgPool = pool
		directoryStore = directorypersistence.NewDirectoryPGStore(pgPool)
	}

	policyStore := opts.PolicyStore
	if policyStore == nil {
		if pgPool != nil {
			policyStore = policypersistence.NewPolicyPGStore(pgPool)
		} else {
			policyStore = policypersistence.NewPolicyMemoryStore(directoryStore.ResolveUserScopes)
		}
	}

	punchStore := opts.PunchStore
	if punchStore == nil {
		if pgPool != nil {
			punchStore = newPunchPGStore(pgPool)
		} else {
			punchStore = newPunchMemoryStore()
		}
	}

	leaveStore := opts.LeaveStore
	if leaveStore == nil {
		if pgPool != nil {
			leaveStore = newLeavePGStore(pgPool)
		} else {
			leaveStore = newLeaveMemoryStore()
		}
	}

	kv := opts.SelectionKV
	if kv == nil {
		var client *redis.Client
		if addr := os.Getenv("REDIS_ADDR"); addr != "" {
			client = redis.NewClient(&redis.Options{Addr: addr})
		}
		kv = policycache.NewKV(context.Background(), client)
	}
	resolution := policyservices.NewResolutionService(policyStore, policycache.NewSelectionCache(kv, policycache.DefaultTTL), logger)

	tenancyResolver := opts.TenancyResolver
	if tenancyResolver == nil {
		tenants, err := loadTenants()
		if err != nil {
			return nil, err
		}
		tenancyResolver = newStaticTenancyResolver(tenants)
	}

	jwtSecret := opts.JWTSecret
	if len(jwtSecret) == 0 {
		secret, err := jwtSecretFromEnv()
		if err != nil {
			return nil, err
		}
		jwtSecret = secret
	}

	authorizer, err := loadAuthorizer()
	if err != nil {
		return nil, err
	}

	policies := policycontrollers.PoliciesController{
		TenantID: func(ctx context.Context) (string, bool) {
			t, ok := currentTenant(ctx)
			return t.ID, ok
		},
		Location: func(ctx context.Context) *time.Location {
			t, ok := currentTenant(ctx)
			if !ok {
				return time.UTC
			}
			return t.Location()
		},
		NowUTC:  func() time.Time { return time.Now().UTC() },
		Service: resolution,
	}
	directory := directorycontrollers.DirectoryController{
		TenantID: func(ctx context.Context) (string, bool) {
			t, ok := currentTenant(ctx)
			return t.ID, ok
		},
		Store: directoryStore,
	}

	router := routing.NewRouter(classifier)

	router.Handle(routing.RouteClassOps, http.MethodGet, "/health", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	}))
	router.Handle(routing.RouteClassOps, http.MethodGet, "/healthz", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	}))

	router.Handle(routing.RouteClassInternalAPI, http.MethodGet, "/policy/api/policies", http.HandlerFunc(policies.HandlePoliciesAPI))
	router.Handle(routing.RouteClassInternalAPI, http.MethodPost, "/policy/api/policies", http.HandlerFunc(policies.HandlePoliciesAPI))
	router.Handle(routing.RouteClassInternalAPI, http.MethodPost, "/policy/api/policies:deactivate", http.HandlerFunc(policies.HandlePolicyDeactivateAPI))
	router.Handle(routing.RouteClassInternalAPI, http.MethodGet, "/policy/api/assignments", http.HandlerFunc(policies.HandlePolicyAssignmentsAPI))
	router.Handle(routing.RouteClassInternalAPI, http.MethodPost, "/policy/api/assignments", http.HandlerFunc(policies.HandlePolicyAssignmentsAPI))
	router.Handle(routing.RouteClassInternalAPI, http.MethodPost, "/policy/api/assignments:delete", http.HandlerFunc(policies.HandleAssignmentDeleteAPI))
	router.Handle(routing.RouteClassInternalAPI, http.MethodGet, "/policy/api/policies:effective", http.HandlerFunc(policies.HandleEffectivePolicyAPI))
	router.Handle(routing.RouteClassInternalAPI, http.MethodPost, "/policy/api/evaluate", http.HandlerFunc(policies.HandleEvaluateAPI))

	router.Handle(routing.RouteClassInternalAPI, http.MethodGet, "/org/api/branches", http.HandlerFunc(directory.HandleBranchesAPI))
	router.Handle(routing.RouteClassInternalAPI, http.MethodPost, "/org/api/branches", http.HandlerFunc(directory.HandleBranchesAPI))
	router.Handle(routing.RouteClassInternalAPI, http.MethodGet, "/org/api/departments", http.HandlerFunc(directory.HandleDepartmentsAPI))
	router.Handle(routing.RouteClassInternalAPI, http.MethodPost, "/org/api/departments", http.HandlerFunc(directory.HandleDepartmentsAPI))
	router.Handle(routing.RouteClassInternalAPI, http.MethodGet, "/org/api/clients", http.HandlerFunc(directory.HandleClientsAPI))
	router.Handle(routing.RouteClassInternalAPI, http.MethodPost, "/org/api/clients", http.HandlerFunc(directory.HandleClientsAPI))
	router.Handle(routing.RouteClassInternalAPI, http.MethodGet, "/org/api/projects", http.HandlerFunc(directory.HandleProjectsAPI))
	router.Handle(routing.RouteClassInternalAPI, http.MethodPost, "/org/api/projects", http.HandlerFunc(directory.HandleProjectsAPI))
	router.Handle(routing.RouteClassInternalAPI, http.MethodGet, "/org/api/users", http.HandlerFunc(directory.HandleUsersAPI))
	router.Handle(routing.RouteClassInternalAPI, http.MethodPost, "/org/api/users", http.HandlerFunc(directory.HandleUsersAPI))
	router.Handle(routing.RouteClassInternalAPI, http.MethodGet, "/org/api/users:scopes", http.HandlerFunc(directory.HandleUserScopesAPI))

	router.Handle(routing.RouteClassInternalAPI, http.MethodGet, "/attendance/api/punches", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlePunchesAPI(w, r, punchStore, resolution)
	}))
	router.Handle(routing.RouteClassInternalAPI, http.MethodPost, "/attendance/api/punches", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlePunchesAPI(w, r, punchStore, resolution)
	}))
	router.Handle(routing.RouteClassInternalAPI, http.MethodGet, "/leave/api/requests", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handleLeaveRequestsAPI(w, r, leaveStore, resolution)
	}))
	router.Handle(routing.RouteClassInternalAPI, http.MethodPost, "/leave/api/requests", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handleLeaveRequestsAPI(w, r, leaveStore, resolution)
	}))

	return withTenantAndPrincipal(classifier, tenancyResolver, jwtSecret, withAuthz(classifier, authorizer, router)), nil
}

func MustNewHandler() http.Handler {
	h, err := NewHandler()
	if err != nil {
		panic(errors.New("server: failed to build handler: " + err.Error()))
	}
	return h
}

func defaultAllowlistPath() (string, error) {
	path := "config/routing/allowlist.yaml"
	for i := 0; i < 8; i++ {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
		path = filepath.Join("..", path)
	}
	return "", errors.New("server: allowlist not found")
}

// withTenantAndPrincipal resolves the tenant from the request host and then
// verifies the bearer token against it. Health endpoints stay open; every
// other route requires a valid token for the resolved tenant.
func withTenantAndPrincipal(classifier *routing.Classifier, tenants TenancyResolver, jwtSecret []byte, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		rc := routing.RouteClassInternalAPI
		if classifier != nil {
			rc = classifier.Classify(path)
		}

		if path == "/health" || path == "/healthz" {
			next.ServeHTTP(w, r)
			return
		}

		tenantDomain := effectiveHost(r)
		t, ok, err := tenants.ResolveTenant(r.Context(), tenantDomain)
		if err != nil {
			routing.WriteError(w, r, rc, http.StatusInternalServerError, "tenant_resolve_error", "tenant resolve error")
			return
		}
		if !ok {
			routing.WriteError(w, r, rc, http.StatusNotFound, "tenant_not_found", "tenant not found")
			return
		}
		r = r.WithContext(withTenant(r.Context(), t))

		p, err := principalFromRequest(r, jwtSecret, t)
		if err != nil {
			routing.WriteError(w, r, rc, http.StatusUnauthorized, "unauthorized", "unauthorized")
			return
		}
		r = r.WithContext(withPrincipal(r.Context(), p))

		next.ServeHTTP(w, r)
	})
}
