package api

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/yanizio/uniprofile/internal/apperr"
	"github.com/yanizio/uniprofile/internal/auth"
	"github.com/yanizio/uniprofile/internal/block"
	"github.com/yanizio/uniprofile/internal/claim"
	"github.com/yanizio/uniprofile/internal/content"
	"github.com/yanizio/uniprofile/internal/profile"
	"github.com/yanizio/uniprofile/internal/registry"
)

/*──────────────────────────── fakes ───────────────────────────────────────*/

type fakeContent struct {
	lastEditor auth.Editor
	submitErr  error
}

func (f *fakeContent) SubmitBlock(_ context.Context, ed auth.Editor, sub content.Submission) (*content.Outcome, error) {
	f.lastEditor = ed
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	return &content.Outcome{Block: &block.Block{ID: 12, BlockType: sub.BlockType}}, nil
}

func (f *fakeContent) GetMergedProfile(_ context.Context, slug string) (*profile.Profile, error) {
	if slug != "rice" {
		return nil, apperr.NotFound("university", slug)
	}
	return &profile.Profile{
		University: profile.Snapshot{
			Meta:   profile.Meta{ID: 3, Slug: "rice"},
			Fields: registry.Values{registry.FieldTuitionOutState: registry.Int(58000)},
		},
		Blocks: []block.Block{},
	}, nil
}

func (f *fakeContent) GetPartition(_ context.Context, slug string, tag registry.Tag) (*profile.Partition, error) {
	if tag == "bogus" {
		return nil, apperr.Invalid("tag", "unknown partition")
	}
	return &profile.Partition{Tag: tag, Fields: registry.Values{}}, nil
}

func (f *fakeContent) DuplicateBlock(_ context.Context, src uint64, targets []uint64) ([]block.Block, error) {
	return nil, &apperr.PermissionError{Op: "duplicate block", Reason: "canonical", Subjects: []string{"5"}}
}

func (f *fakeContent) BulkDeleteBlocks(_ context.Context, ids []uint64) (int64, error) {
	return int64(len(ids)), nil
}

type fakeReviewer struct{}

func (fakeReviewer) Approve(_ context.Context, id uint64, by int64) (*claim.Request, error) {
	req := &claim.Request{ID: id, Field: "tuitionOutState", NewValue: "61000", Status: claim.StatusStale}
	return req, claim.ErrStale
}

func (fakeReviewer) Reject(_ context.Context, id uint64, by int64) (*claim.Request, error) {
	if id == 9 {
		return nil, claim.ErrDecided
	}
	d := by
	return &claim.Request{ID: id, NewValue: "61000", Status: claim.StatusRejected, DecidedBy: &d}, nil
}

type fakeQueue struct{}

func (fakeQueue) Pending(context.Context, uint64) ([]claim.Request, error) {
	return []claim.Request{{ID: 1, Field: "acceptanceRate", NewValue: "0.1", Status: claim.StatusPending}}, nil
}

type roles map[int64][]string

func (r roles) Roles(_ context.Context, id int64) ([]string, error) { return r[id], nil }

func newServer(t *testing.T) (*httptest.Server, *fakeContent) {
	t.Helper()
	fc := &fakeContent{}
	srv := httptest.NewServer(NewRouter(Deps{
		Content:  fc,
		Reviewer: fakeReviewer{},
		Queue:    fakeQueue{},
		Roles:    roles{1: {"admin"}, 2: {"editor"}},
	}))
	t.Cleanup(srv.Close)
	return srv, fc
}

func do(t *testing.T, srv *httptest.Server, method, path, editor, body string) (int, gjson.Result) {
	t.Helper()
	req, err := http.NewRequest(method, srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if editor != "" {
		req.Header.Set("X-Editor-ID", editor)
	}
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var sb bytes.Buffer
	_, err = sb.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, gjson.Parse(sb.String())
}

/*──────────────────────────── reads ───────────────────────────────────────*/

func TestGetProfile(t *testing.T) {
	srv, _ := newServer(t)

	code, body := do(t, srv, "GET", "/api/profiles/rice", "", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, int64(58000), body.Get("university.fields.tuitionOutState").Int())

	code, body = do(t, srv, "GET", "/api/profiles/nowhere", "", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Contains(t, body.Get("error").String(), "nowhere")

	code, _ = do(t, srv, "GET", "/api/profiles/rice/bogus", "", "")
	assert.Equal(t, http.StatusUnprocessableEntity, code)
}

/*──────────────────────────── writes ──────────────────────────────────────*/

func TestSubmitBlockRequiresEditor(t *testing.T) {
	srv, fc := newServer(t)
	payload := `{"universityId":3,"blockType":"rich_text","rawData":{"html":"x"}}`

	code, _ := do(t, srv, "POST", "/api/blocks", "", payload)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, body := do(t, srv, "POST", "/api/blocks", "2", payload)
	assert.Equal(t, http.StatusCreated, code)
	assert.Equal(t, int64(12), body.Get("block.id").Int())
	assert.Equal(t, int64(2), fc.lastEditor.ID)
	assert.False(t, fc.lastEditor.Privileged)
}

func TestSubmitBlockErrorMapping(t *testing.T) {
	srv, fc := newServer(t)

	code, body := do(t, srv, "POST", "/api/blocks", "2", `{"blockType":"rich_text"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, "universityId", body.Get("fields.0.field").String())

	fc.submitErr = &apperr.ValidationError{Fields: []apperr.FieldError{{Field: "graduationRate", Message: "must be <= 1"}}}
	code, body = do(t, srv, "POST", "/api/blocks", "2", `{"universityId":3,"blockType":"student_outcomes"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, "graduationRate", body.Get("fields.0.field").String())

	fc.submitErr = errors.New("db exploded")
	code, body = do(t, srv, "POST", "/api/blocks", "2", `{"universityId":3,"blockType":"rich_text"}`)
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, "Internal Server Error", body.Get("error").String())
}

func TestDuplicateAndBulkDelete(t *testing.T) {
	srv, _ := newServer(t)

	code, body := do(t, srv, "POST", "/api/blocks/5/duplicate", "2", `{"targetUniversityIds":[1,2]}`)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "5", body.Get("subjects.0").String())

	code, _ = do(t, srv, "POST", "/api/blocks/abc/duplicate", "2", `{"targetUniversityIds":[1]}`)
	assert.Equal(t, http.StatusUnprocessableEntity, code)

	code, _ = do(t, srv, "POST", "/api/blocks/bulk-delete", "2", `{"ids":[]}`)
	assert.Equal(t, http.StatusUnprocessableEntity, code)

	code, body = do(t, srv, "POST", "/api/blocks/bulk-delete", "2", `{"ids":[4,5]}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, int64(2), body.Get("deleted").Int())
}

/*──────────────────────────── claims ──────────────────────────────────────*/

func TestClaimRoutesArePrivileged(t *testing.T) {
	srv, _ := newServer(t)

	code, _ := do(t, srv, "POST", "/api/claims/4/reject", "2", "")
	assert.Equal(t, http.StatusForbidden, code)

	code, body := do(t, srv, "POST", "/api/claims/4/reject", "1", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "rejected", body.Get("status").String())
	assert.Equal(t, int64(1), body.Get("decidedBy").Int())
	assert.Equal(t, "null", body.Get("oldValue").Raw)

	code, _ = do(t, srv, "POST", "/api/claims/9/reject", "1", "")
	assert.Equal(t, http.StatusConflict, code)

	code, body = do(t, srv, "GET", "/api/universities/3/claims", "1", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, 0.1, body.Get("requests.0.newValue").Float())
}

func TestStaleApprovalIsConflict(t *testing.T) {
	srv, _ := newServer(t)

	code, body := do(t, srv, "POST", "/api/claims/4/approve", "1", "")
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "stale", body.Get("request.status").String())
	assert.Equal(t, int64(61000), body.Get("request.newValue").Int())
}

func TestMetricsAndSecurityHeaders(t *testing.T) {
	srv, _ := newServer(t)

	resp, err := srv.Client().Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
}
