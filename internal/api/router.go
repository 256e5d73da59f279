// internal/api/router.go
//
// Thin HTTP surface over the profile engine.
//
// Context
// -------
//
//	POST /api/blocks                       save one block (editor)
//	POST /api/blocks/{id}/duplicate        copy a soft block (editor)
//	POST /api/blocks/bulk-delete           delete soft blocks (editor)
//	GET  /api/profiles/{slug}              merged profile
//	GET  /api/profiles/{slug}/{tag}        one cache partition
//	GET  /api/universities/{id}/claims     pending change requests (reviewer)
//	POST /api/claims/{id}/approve          promote a draft (reviewer)
//	POST /api/claims/{id}/reject           discard a draft (reviewer)
//	GET  /metrics                          Prometheus
//
// Editors are identified by acl.Identify from a trusted header.  Reviewer
// routes additionally require a privileged role.
//
// Notes
// -----
//   - Handlers decode, call one facade method, and encode.  No rule lives
//     here; errors map to status codes in errors.go.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/yanizio/uniprofile/internal/acl"
	"github.com/yanizio/uniprofile/internal/auth"
	"github.com/yanizio/uniprofile/internal/block"
	"github.com/yanizio/uniprofile/internal/claim"
	"github.com/yanizio/uniprofile/internal/content"
	"github.com/yanizio/uniprofile/internal/middleware"
	"github.com/yanizio/uniprofile/internal/profile"
	"github.com/yanizio/uniprofile/internal/registry"
)

// maxBody caps request bodies.
const maxBody = 1 << 20

/*──────────────────────────── collaborators ───────────────────────────────*/

// Content is the caller facade.
type Content interface {
	SubmitBlock(ctx context.Context, ed auth.Editor, sub content.Submission) (*content.Outcome, error)
	GetMergedProfile(ctx context.Context, slug string) (*profile.Profile, error)
	GetPartition(ctx context.Context, slug string, tag registry.Tag) (*profile.Partition, error)
	DuplicateBlock(ctx context.Context, sourceID uint64, targets []uint64) ([]block.Block, error)
	BulkDeleteBlocks(ctx context.Context, ids []uint64) (int64, error)
}

// Reviewer decides change requests.
type Reviewer interface {
	Approve(ctx context.Context, id uint64, approver int64) (*claim.Request, error)
	Reject(ctx context.Context, id uint64, reviewer int64) (*claim.Request, error)
}

// Queue lists pending change requests.
type Queue interface {
	Pending(ctx context.Context, universityID uint64) ([]claim.Request, error)
}

// Deps gathers what the router needs.
type Deps struct {
	Content      Content
	Reviewer     Reviewer
	Queue        Queue
	Roles        acl.RoleSource
	Origins      acl.OriginSource
	EditorHeader string
	Log          *zap.Logger
}

type handler struct {
	Deps
}

// NewRouter builds the chi router.
func NewRouter(d Deps) http.Handler {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.EditorHeader == "" {
		d.EditorHeader = "X-Editor-ID"
	}
	h := &handler{Deps: d}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(middleware.Security)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(acl.Identify(d.EditorHeader, d.Roles, d.Origins))

		r.Get("/profiles/{slug}", h.getProfile)
		r.Get("/profiles/{slug}/{tag}", h.getPartition)

		r.Group(func(r chi.Router) {
			r.Use(acl.RequireEditor)
			r.Post("/blocks", h.submitBlock)
			r.Post("/blocks/{id}/duplicate", h.duplicateBlock)
			r.Post("/blocks/bulk-delete", h.bulkDelete)
		})

		r.Group(func(r chi.Router) {
			r.Use(acl.RequirePrivileged)
			r.Get("/universities/{id}/claims", h.pendingClaims)
			r.Post("/claims/{id}/approve", h.approveClaim)
			r.Post("/claims/{id}/reject", h.rejectClaim)
		})
	})
	return r
}
