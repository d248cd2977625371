package service

import (
	"context"
	"errors"
	"sort"
	"sync"

	"astapp/internal/cache"
	"astapp/internal/model"
	"astapp/internal/promotion"
)

type fakeFormRepo struct {
	mu    sync.Mutex
	docs  map[string]*model.FormDocument
	saves int
}

func newFakeFormRepo() *fakeFormRepo {
	return &fakeFormRepo{docs: make(map[string]*model.FormDocument)}
}

func (r *fakeFormRepo) Save(_ context.Context, doc *model.FormDocument) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *doc
	r.docs[doc.AppID] = &cp
	r.saves++
	return nil
}

func (r *fakeFormRepo) GetByID(_ context.Context, appID string) (*model.FormDocument, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[appID]
	if !ok {
		return nil, nil
	}
	cp := *doc
	return &cp, nil
}

func (r *fakeFormRepo) GetByCreatorID(_ context.Context, creatorID string) ([]*model.FormDocument, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.FormDocument
	for _, doc := range r.docs {
		if doc.CreatorID == creatorID {
			cp := *doc
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeFormRepo) Delete(_ context.Context, appID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.docs, appID)
	return nil
}

type fakeFormCache struct {
	mu       sync.Mutex
	forms    map[string]*model.FormConfig
	failSet  bool
	deletes  int
	getCalls int
}

func newFakeFormCache() *fakeFormCache {
	return &fakeFormCache{forms: make(map[string]*model.FormConfig)}
}

func (c *fakeFormCache) SetForm(_ context.Context, appID string, cfg *model.FormConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failSet {
		return errors.New("cache unavailable")
	}
	c.forms[appID] = cfg
	return nil
}

func (c *fakeFormCache) GetForm(_ context.Context, appID string) (*model.FormConfig, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.getCalls++
	return c.forms[appID], nil
}

func (c *fakeFormCache) DeleteForm(_ context.Context, appID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deletes++
	delete(c.forms, appID)
	return nil
}

type fakeSubmissionRepo struct {
	mu      sync.Mutex
	records []*model.SubmissionRecord
	err     error
}

func (r *fakeSubmissionRepo) Create(_ context.Context, rec *model.SubmissionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.records = append(r.records, rec)
	return nil
}

func (r *fakeSubmissionRepo) GetByID(_ context.Context, id string) (*model.SubmissionRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.records {
		if rec.ID == id {
			return rec, nil
		}
	}
	return nil, nil
}

func (r *fakeSubmissionRepo) ListByApp(_ context.Context, appID string, limit int) ([]*model.SubmissionRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.SubmissionRecord
	for i := len(r.records) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if r.records[i].AppID == appID {
			out = append(out, r.records[i])
		}
	}
	return out, nil
}

type fakePromoter struct {
	mu       sync.Mutex
	requests []promotion.Request
	resp     map[string]any
	err      error
}

func (p *fakePromoter) Promote(_ context.Context, req promotion.Request) (map[string]any, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)
	return p.resp, p.err
}

type feedMessage struct {
	appID   string
	msgType string
	payload interface{}
}

type fakeBroadcaster struct {
	mu       sync.Mutex
	messages []feedMessage
}

func (b *fakeBroadcaster) BroadcastToApp(appID, msgType string, payload interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = append(b.messages, feedMessage{appID: appID, msgType: msgType, payload: payload})
}

func (b *fakeBroadcaster) DisconnectApp(string) {}

type fakeRanking struct {
	mu     sync.Mutex
	scores map[string]map[int64]float64
}

func (r *fakeRanking) RecordScore(_ context.Context, appID string, applicantID int64, percent float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.scores == nil {
		r.scores = make(map[string]map[int64]float64)
	}
	if r.scores[appID] == nil {
		r.scores[appID] = make(map[int64]float64)
	}
	if prev, ok := r.scores[appID][applicantID]; !ok || percent > prev {
		r.scores[appID][applicantID] = percent
	}
	return nil
}

func (r *fakeRanking) GetTop(_ context.Context, appID string, limit int) ([]cache.RankingEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []cache.RankingEntry
	for id, pct := range r.scores[appID] {
		out = append(out, cache.RankingEntry{ApplicantID: id, Percent: pct})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Percent > out[j].Percent })
	if len(out) > limit {
		out = out[:limit]
	}
	for i := range out {
		out[i].Rank = i + 1
	}
	return out, nil
}

func (r *fakeRanking) GetRank(ctx context.Context, appID string, applicantID int64) (int64, error) {
	r.mu.Lock()
	n := len(r.scores[appID])
	r.mu.Unlock()
	top, _ := r.GetTop(ctx, appID, n)
	for _, e := range top {
		if e.ApplicantID == applicantID {
			return int64(e.Rank), nil
		}
	}
	return -1, nil
}

func (r *fakeRanking) DeleteApp(_ context.Context, appID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.scores, appID)
	return nil
}
