package handler

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/cybershield/internal/identity"
	"github.com/hitoshi/cybershield/internal/model"
	"github.com/hitoshi/cybershield/internal/repository"
)

// fakeStore はルーター結合テスト用のインメモリストア。
type fakeStore struct {
	mu       sync.Mutex
	users    map[string]model.User
	topics   map[string]model.Topic
	articles map[string]model.Article
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:    make(map[string]model.User),
		topics:   make(map[string]model.Topic),
		articles: make(map[string]model.Article),
	}
}

func (s *fakeStore) articleCount(topicID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, a := range s.articles {
		if a.TopicID == topicID {
			n++
		}
	}
	return n
}

type fakeUserRepo struct{ s *fakeStore }
type fakeTopicRepo struct{ s *fakeStore }
type fakeArticleRepo struct{ s *fakeStore }

var (
	_ repository.UserRepository    = fakeUserRepo{}
	_ repository.TopicRepository   = fakeTopicRepo{}
	_ repository.ArticleRepository = fakeArticleRepo{}
)

// --- users ---

func (r fakeUserRepo) FindByUID(_ context.Context, uid string) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[uid]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (r fakeUserRepo) FindByEmail(_ context.Context, email string) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if strings.EqualFold(u.Email, email) {
			return &u, nil
		}
	}
	return nil, nil
}

func (r fakeUserRepo) UpsertOnLogin(_ context.Context, in *model.User) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[in.UID]
	if !ok {
		u = model.User{ID: uuid.NewString(), UID: in.UID, Role: model.RoleStudent, CreatedAt: in.LastLoginAt}
	}
	if in.Email != "" {
		u.Email = in.Email
	}
	u.DisplayName, u.PhotoURL, u.Provider, u.LastLoginAt = in.DisplayName, in.PhotoURL, in.Provider, in.LastLoginAt
	r.s.users[in.UID] = u
	return &u, nil
}

func (r fakeUserRepo) List(_ context.Context) ([]*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*model.User, 0, len(r.s.users))
	for _, u := range r.s.users {
		copied := u
		out = append(out, &copied)
	}
	return out, nil
}

func (r fakeUserRepo) UpdateRole(_ context.Context, uid string, role model.Role) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[uid]
	if !ok {
		return nil, nil
	}
	u.Role = role
	r.s.users[uid] = u
	return &u, nil
}

func (r fakeUserRepo) DeleteByEmail(_ context.Context, email string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for uid, u := range r.s.users {
		if strings.EqualFold(u.Email, email) {
			delete(r.s.users, uid)
			return true, nil
		}
	}
	return false, nil
}

// --- topics ---

func (r fakeTopicRepo) List(_ context.Context) ([]*model.Topic, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*model.Topic, 0, len(r.s.topics))
	for _, t := range r.s.topics {
		copied := t
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out, nil
}

func (r fakeTopicRepo) FindByID(_ context.Context, id string) (*model.Topic, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.topics[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (r fakeTopicRepo) FindBySlug(_ context.Context, slug string) (*model.Topic, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, t := range r.s.topics {
		if t.Slug == slug {
			return &t, nil
		}
	}
	return nil, nil
}

func (r fakeTopicRepo) MaxOrder(_ context.Context) (float64, bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var maxOrder float64
	found := false
	for _, t := range r.s.topics {
		if !found || t.Order > maxOrder {
			maxOrder, found = t.Order, true
		}
	}
	return maxOrder, found, nil
}

func (r fakeTopicRepo) Create(_ context.Context, t *model.Topic) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.topics {
		if existing.Slug == t.Slug {
			return repository.ErrDuplicate
		}
	}
	r.s.topics[t.ID] = *t
	return nil
}

func (r fakeTopicRepo) Update(_ context.Context, t *model.Topic) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.topics[t.ID]; !ok {
		return repository.ErrNotFound
	}
	r.s.topics[t.ID] = *t
	return nil
}

func (r fakeTopicRepo) DeleteWithArticles(_ context.Context, id string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.topics[id]; !ok {
		return 0, repository.ErrNotFound
	}
	var n int64
	for aid, a := range r.s.articles {
		if a.TopicID == id {
			delete(r.s.articles, aid)
			n++
		}
	}
	delete(r.s.topics, id)
	return n, nil
}

// --- articles ---

func (r fakeArticleRepo) FindByID(_ context.Context, id string) (*model.Article, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.articles[id]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (r fakeArticleRepo) collect(match func(model.Article) bool) []*model.Article {
	out := make([]*model.Article, 0)
	for _, a := range r.s.articles {
		if match(a) {
			copied := a
			if t, ok := r.s.topics[a.TopicID]; ok {
				copied.Topic = &model.TopicRef{ID: t.ID, Title: t.Title, Slug: t.Slug}
			}
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (r fakeArticleRepo) ListByAuthor(_ context.Context, uid string) ([]*model.Article, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.collect(func(a model.Article) bool { return a.AuthorUID == uid }), nil
}

func (r fakeArticleRepo) List(_ context.Context, f model.ArticleFilter) ([]*model.Article, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.collect(func(a model.Article) bool {
		return (f.Status == "" || a.Status == f.Status) && (f.TopicID == "" || a.TopicID == f.TopicID)
	}), nil
}

func (r fakeArticleRepo) ListPublishedByTopic(_ context.Context, topicID string) ([]*model.Article, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := r.collect(func(a model.Article) bool {
		return a.TopicID == topicID && a.Status == model.StatusPublished
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out, nil
}

func (r fakeArticleRepo) FindPublished(_ context.Context, topicID, slug string) (*model.Article, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, a := range r.s.articles {
		if a.TopicID == topicID && a.Slug == slug && a.Status == model.StatusPublished {
			return &a, nil
		}
	}
	return nil, nil
}

func (r fakeArticleRepo) Create(_ context.Context, a *model.Article) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.articles {
		if existing.Slug == a.Slug {
			return repository.ErrDuplicate
		}
	}
	r.s.articles[a.ID] = *a
	return nil
}

func (r fakeArticleRepo) UpdateContent(_ context.Context, a *model.Article) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.articles[a.ID]
	if !ok {
		return repository.ErrNotFound
	}
	cur.Title, cur.TopicID, cur.Content, cur.CoverImage, cur.Tags = a.Title, a.TopicID, a.Content, a.CoverImage, a.Tags
	cur.UpdatedAt = a.UpdatedAt
	r.s.articles[a.ID] = cur
	return nil
}

func (r fakeArticleRepo) UpdateStatus(_ context.Context, a *model.Article, from model.ArticleStatus) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.articles[a.ID]
	if !ok || cur.Status != from {
		return false, nil
	}
	cur.Status, cur.RejectionReason, cur.PublishedAt, cur.UpdatedAt = a.Status, a.RejectionReason, a.PublishedAt, a.UpdatedAt
	r.s.articles[a.ID] = cur
	return true, nil
}

func (r fakeArticleRepo) UpdateOrder(_ context.Context, id string, order float64, updatedAt time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.articles[id]
	if !ok {
		return repository.ErrNotFound
	}
	cur.Order, cur.UpdatedAt = order, updatedAt
	r.s.articles[id] = cur
	return nil
}

func (r fakeArticleRepo) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.articles[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.s.articles, id)
	return nil
}

// tokenVerifier は "token-<uid>" 形式のトークンを受け付けるテスト用Verifier。
type tokenVerifier struct{}

func (tokenVerifier) Verify(_ context.Context, token string) (*identity.Identity, error) {
	uid, ok := strings.CutPrefix(token, "token-")
	if !ok || uid == "" {
		return nil, errors.Join(identity.ErrInvalidToken, errors.New("malformed test token"))
	}
	return &identity.Identity{UID: uid, Email: uid + "@example.com", Name: strings.ToUpper(uid[:1]) + uid[1:]}, nil
}
