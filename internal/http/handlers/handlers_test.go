package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/recycleright-backend/internal/achievement"
	"github.com/yungbote/recycleright-backend/internal/classify"
	"github.com/yungbote/recycleright-backend/internal/domain/gamification"
	"github.com/yungbote/recycleright-backend/internal/domain/waste"
	"github.com/yungbote/recycleright-backend/internal/guidance"
	"github.com/yungbote/recycleright-backend/internal/leaderboard"
	"github.com/yungbote/recycleright-backend/internal/ledger"
	"github.com/yungbote/recycleright-backend/internal/platform/logger"
	"github.com/yungbote/recycleright-backend/internal/taxonomy"
)

type fakeClassifier struct {
	gotImg    []byte
	gotRegion string
	err       error
}

func (f *fakeClassifier) ClassifyInRegion(ctx context.Context, img []byte, region string) (waste.ClassificationResult, error) {
	f.gotImg, f.gotRegion = img, region
	if f.err != nil {
		return waste.ClassificationResult{}, f.err
	}
	return waste.ClassificationResult{Category: "glass_bottle", Confidence: 0.91, Source: waste.SourcePrimary, Region: region}, nil
}

type fakeLedger struct {
	confirm ledger.ConfirmRequest
	err     error
}

func (f *fakeLedger) RegisterUser(ctx context.Context, userID string) (*gamification.UserProgress, error) {
	if f.err != nil {
		return nil, f.err
	}
	return gamification.NewUserProgress(userID, time.Unix(0, 0).UTC()), nil
}

func (f *fakeLedger) Progress(ctx context.Context, userID string) (ledger.Stats, error) {
	if f.err != nil {
		return ledger.Stats{}, f.err
	}
	return ledger.Stats{UserProgress: gamification.NewUserProgress(userID, time.Unix(0, 0).UTC())}, nil
}

func (f *fakeLedger) Events(ctx context.Context, userID string, limit int) ([]gamification.DisposalEvent, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]gamification.DisposalEvent, limit)
	return out, nil
}

func (f *fakeLedger) ConfirmDisposal(ctx context.Context, req ledger.ConfirmRequest) (ledger.ConfirmResult, error) {
	f.confirm = req
	if f.err != nil {
		return ledger.ConfirmResult{}, f.err
	}
	return ledger.ConfirmResult{PointsAwarded: 15, NewTotal: 15, NewLevel: 1}, nil
}

func (f *fakeLedger) Adjust(ctx context.Context, userID string, delta int, reason string) (ledger.AdjustResult, error) {
	if f.err != nil {
		return ledger.AdjustResult{}, f.err
	}
	return ledger.AdjustResult{Applied: delta, NewTotal: delta}, nil
}

type fakeRanker struct {
	gotLimit int
	err      error
}

func (f *fakeRanker) Rank(ctx context.Context, userID string) (leaderboard.RankInfo, error) {
	if f.err != nil {
		return leaderboard.RankInfo{}, f.err
	}
	return leaderboard.RankInfo{UserID: userID, Rank: 2, TotalUsers: 3, PointsToNextRank: 11}, nil
}

func (f *fakeRanker) Top(ctx context.Context, limit int) ([]leaderboard.Entry, error) {
	f.gotLimit = limit
	return []leaderboard.Entry{{Rank: 1, UserID: "a", Points: 10}}, f.err
}

func do(r http.Handler, method, path string, body []byte, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var env struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
	}
	return env.Error.Code
}

func TestClassifyHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	fc := &fakeClassifier{}
	h := NewClassifyHandler(logger.Nop(), fc, 64)
	r := gin.New()
	r.POST("/api/classify", h.Classify)

	rec := do(r, http.MethodPost, "/api/classify?region=urban", []byte("raw-bytes"), "image/png")
	if rec.Code != http.StatusOK || string(fc.gotImg) != "raw-bytes" || fc.gotRegion != "urban" {
		t.Fatalf("raw: status=%d img=%q region=%q", rec.Code, fc.gotImg, fc.gotRegion)
	}
	if !strings.Contains(rec.Body.String(), `"category":"glass_bottle"`) {
		t.Fatalf("body=%s", rec.Body.String())
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, _ := mw.CreateFormFile("image", "scan.png")
	_, _ = fw.Write([]byte("multipart-bytes"))
	_ = mw.Close()
	rec = do(r, http.MethodPost, "/api/classify", buf.Bytes(), mw.FormDataContentType())
	if rec.Code != http.StatusOK || string(fc.gotImg) != "multipart-bytes" {
		t.Fatalf("multipart: status=%d img=%q", rec.Code, fc.gotImg)
	}

	cases := []struct {
		name   string
		body   []byte
		err    error
		status int
		code   string
	}{
		{"empty", nil, nil, http.StatusBadRequest, "missing_image"},
		{"too large", bytes.Repeat([]byte("x"), 65), nil, http.StatusRequestEntityTooLarge, "image_too_large"},
		{"unreadable", []byte("x"), classify.ErrImageUnreadable, http.StatusUnprocessableEntity, "image_unreadable"},
		{"inference", []byte("x"), fmt.Errorf("%w: boom", classify.ErrInferenceFailed), http.StatusServiceUnavailable, "dependency_unavailable"},
		{"unexpected", []byte("x"), errors.New("secret detail"), http.StatusInternalServerError, "internal"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fc.err = tc.err
			rec := do(r, http.MethodPost, "/api/classify", tc.body, "application/octet-stream")
			if rec.Code != tc.status || errorCode(t, rec) != tc.code {
				t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
			}
			if strings.Contains(rec.Body.String(), "secret detail") {
				t.Fatalf("internal error leaked: %s", rec.Body.String())
			}
		})
	}
}

func newTaxonomy(t *testing.T) *taxonomy.Taxonomy {
	t.Helper()
	tax, err := taxonomy.Default()
	if err != nil {
		t.Fatalf("taxonomy: %v", err)
	}
	return tax
}

func TestGuidanceHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tax := newTaxonomy(t)
	h := NewGuidanceHandler(guidance.NewResolver(tax, ""), tax)
	r := gin.New()
	r.GET("/api/guidance/:category", h.GetGuidance)
	r.GET("/api/categories", h.ListCategories)

	rec := do(r, http.MethodGet, "/api/guidance/batteries?region=nowhere", nil, "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"category":"batteries"`) {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	rec = do(r, http.MethodGet, "/api/guidance/moon_rock", nil, "")
	if rec.Code != http.StatusNotFound || errorCode(t, rec) != "unknown_category" {
		t.Fatalf("unknown: status=%d body=%s", rec.Code, rec.Body.String())
	}

	rec = do(r, http.MethodGet, "/api/categories", nil, "")
	var body struct {
		Categories []struct {
			ID string `json:"id"`
		} `json:"categories"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || len(body.Categories) != len(tax.IDs()) {
		t.Fatalf("categories=%d err=%v", len(body.Categories), err)
	}
}

func TestUserHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	fl, fr := &fakeLedger{}, &fakeRanker{}
	h := NewUserHandler(fl, fr)
	r := gin.New()
	r.POST("/api/users", h.Register)
	r.GET("/api/users/:id/progress", h.GetProgress)
	r.GET("/api/users/:id/events", h.ListEvents)
	r.POST("/api/users/:id/disposals", h.ConfirmDisposal)
	r.GET("/api/users/:id/rank", h.GetRank)
	r.GET("/api/leaderboard", h.Leaderboard)
	r.POST("/api/admin/users/:id/adjustments", h.Adjust)

	if rec := do(r, http.MethodPost, "/api/users", []byte(`{"user_id":"u1"}`), "application/json"); rec.Code != http.StatusCreated {
		t.Fatalf("register status=%d", rec.Code)
	}
	rec := do(r, http.MethodPost, "/api/users/u1/disposals", []byte(`{"category":" paper ","confidence":0.8,"source":"Secondary"}`), "application/json")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"points_awarded":15`) {
		t.Fatalf("confirm status=%d body=%s", rec.Code, rec.Body.String())
	}
	want := ledger.ConfirmRequest{UserID: "u1", Category: "paper", Confidence: 0.8, Source: waste.SourceSecondary}
	if fl.confirm != want {
		t.Fatalf("confirm request=%+v", fl.confirm)
	}
	if rec := do(r, http.MethodPost, "/api/users/u1/disposals", []byte(`{"category":"paper"}`), "application/json"); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing confidence status=%d", rec.Code)
	}
	if rec := do(r, http.MethodGet, "/api/leaderboard?limit=25", nil, ""); rec.Code != http.StatusOK || fr.gotLimit != 25 {
		t.Fatalf("leaderboard status=%d limit=%d", rec.Code, fr.gotLimit)
	}
	if rec := do(r, http.MethodGet, "/api/leaderboard", nil, ""); fr.gotLimit != leaderboard.DefaultLimit || rec.Code != http.StatusOK {
		t.Fatalf("default limit=%d", fr.gotLimit)
	}
	if rec := do(r, http.MethodGet, "/api/leaderboard?limit=abc", nil, ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad limit status=%d", rec.Code)
	}
	if rec := do(r, http.MethodGet, "/api/users/u1/rank", nil, ""); !strings.Contains(rec.Body.String(), `"points_to_next_rank":11`) {
		t.Fatalf("rank body=%s", rec.Body.String())
	}
	if rec := do(r, http.MethodPost, "/api/admin/users/u1/adjustments", []byte(`{"delta":-5,"reason":"dup"}`), "application/json"); rec.Code != http.StatusOK {
		t.Fatalf("adjust status=%d", rec.Code)
	}

	errCases := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("%w: %q", ledger.ErrUserNotFound, "u1"), http.StatusNotFound, "user_not_found"},
		{fmt.Errorf("%w: %q", ledger.ErrUserExists, "u1"), http.StatusConflict, "user_exists"},
		{fmt.Errorf("%w: x", ledger.ErrUnknownCategory), http.StatusBadRequest, "unknown_category"},
		{fmt.Errorf("%w: x", ledger.ErrInvalidArgument), http.StatusBadRequest, "validation"},
		{fmt.Errorf("%w: x", ledger.ErrStoreUnavailable), http.StatusServiceUnavailable, "dependency_unavailable"},
	}
	for _, tc := range errCases {
		fl.err = tc.err
		rec := do(r, http.MethodPost, "/api/users", []byte(`{"user_id":"u1"}`), "application/json")
		if rec.Code != tc.status || errorCode(t, rec) != tc.code {
			t.Fatalf("%v: status=%d body=%s", tc.err, rec.Code, rec.Body.String())
		}
	}

	fr.err = fmt.Errorf("%w: %q", leaderboard.ErrUserNotFound, "ghost")
	if rec := do(r, http.MethodGet, "/api/users/ghost/rank", nil, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("ghost rank status=%d", rec.Code)
	}
}

func TestRulesHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tax := newTaxonomy(t)
	rules, err := achievement.Default()
	if err != nil {
		t.Fatalf("rules: %v", err)
	}
	engine, err := achievement.New(rules, tax, time.UTC)
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	now := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	h := NewRulesHandler(engine, func() time.Time { return now })
	r := gin.New()
	r.GET("/api/achievements", h.ListAchievements)
	r.GET("/api/challenges", h.ListChallenges)

	rec := do(r, http.MethodGet, "/api/achievements", nil, "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"id":"first_scan"`) {
		t.Fatalf("achievements body=%s", rec.Body.String())
	}

	rec = do(r, http.MethodGet, "/api/challenges", nil, "")
	var body struct {
		Challenges []struct {
			ID     string `json:"id"`
			Active bool   `json:"active"`
		} `json:"challenges"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	active := map[string]bool{}
	for _, ch := range body.Challenges {
		active[ch.ID] = ch.Active
	}
	if !active["daily_glass_guardian"] || !active["weekly_waste_warrior"] || active["earth_week_2027"] {
		t.Fatalf("active=%v", active)
	}
}

type readiness func(ctx context.Context) error

func (f readiness) Ready(ctx context.Context) error { return f(ctx) }

func TestHealthHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var fail error
	h := NewHealthHandler(map[string]Readiness{
		"primary": readiness(func(ctx context.Context) error { return fail }),
	})
	r := gin.New()
	r.GET("/healthcheck", h.HealthCheck)
	r.GET("/readyz", h.Ready)

	if rec := do(r, http.MethodGet, "/healthcheck", nil, ""); rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("health=%d %q", rec.Code, rec.Body.String())
	}
	if rec := do(r, http.MethodGet, "/readyz", nil, ""); rec.Code != http.StatusOK {
		t.Fatalf("ready=%d", rec.Code)
	}
	fail = classify.ErrModelUnavailable
	if rec := do(r, http.MethodGet, "/readyz", nil, ""); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("not ready=%d", rec.Code)
	}
}
