package article

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hitoshi/cybershield/internal/model"
	"github.com/hitoshi/cybershield/internal/repository"
)

// memStore はテスト用のインメモリ記事・トピックストア。
type memStore struct {
	mu       sync.Mutex
	articles map[string]model.Article
	topics   map[string]model.Topic

	// statusUpdateHook はUpdateStatusの直前に呼ばれる。競合の再現に使う。
	statusUpdateHook func()
	// writeHook はCreateとUpdateContentの直前に呼ばれる。
	writeHook func()
}

func newMemStore() *memStore {
	return &memStore{
		articles: make(map[string]model.Article),
		topics:   make(map[string]model.Topic),
	}
}

func (m *memStore) addTopic(t model.Topic) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.topics[t.ID] = t
}

func (m *memStore) stored(id string) model.Article {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.articles[id]
}

type memArticleRepo struct{ s *memStore }
type memTopicRepo struct{ s *memStore }

var (
	_ repository.ArticleRepository = memArticleRepo{}
	_ repository.TopicRepository   = memTopicRepo{}
)

func (r memArticleRepo) FindByID(_ context.Context, id string) (*model.Article, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.articles[id]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (r memArticleRepo) collect(match func(model.Article) bool) []*model.Article {
	out := make([]*model.Article, 0)
	for _, a := range r.s.articles {
		if match(a) {
			copied := a
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (r memArticleRepo) ListByAuthor(_ context.Context, uid string) ([]*model.Article, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.collect(func(a model.Article) bool { return a.AuthorUID == uid }), nil
}

func (r memArticleRepo) List(_ context.Context, f model.ArticleFilter) ([]*model.Article, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.collect(func(a model.Article) bool {
		return (f.Status == "" || a.Status == f.Status) && (f.TopicID == "" || a.TopicID == f.TopicID)
	}), nil
}

func (r memArticleRepo) ListPublishedByTopic(_ context.Context, topicID string) ([]*model.Article, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := r.collect(func(a model.Article) bool {
		return a.TopicID == topicID && a.Status == model.StatusPublished
	})
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].PublishedAt.After(*out[j].PublishedAt)
	})
	return out, nil
}

func (r memArticleRepo) FindPublished(_ context.Context, topicID, slug string) (*model.Article, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, a := range r.s.articles {
		if a.TopicID == topicID && a.Slug == slug && a.Status == model.StatusPublished {
			return &a, nil
		}
	}
	return nil, nil
}

func (r memArticleRepo) Create(_ context.Context, a *model.Article) error {
	if r.s.writeHook != nil {
		r.s.writeHook()
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.topics[a.TopicID]; !ok {
		return repository.ErrReferenceMissing
	}
	for _, existing := range r.s.articles {
		if existing.Slug == a.Slug {
			return repository.ErrDuplicate
		}
	}
	r.s.articles[a.ID] = *a
	return nil
}

func (r memArticleRepo) UpdateContent(_ context.Context, a *model.Article) error {
	if r.s.writeHook != nil {
		r.s.writeHook()
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.articles[a.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if _, ok := r.s.topics[a.TopicID]; !ok {
		return repository.ErrReferenceMissing
	}
	cur.Title, cur.TopicID, cur.Content, cur.CoverImage, cur.Tags = a.Title, a.TopicID, a.Content, a.CoverImage, a.Tags
	cur.UpdatedAt = a.UpdatedAt
	r.s.articles[a.ID] = cur
	return nil
}

func (r memArticleRepo) UpdateStatus(_ context.Context, a *model.Article, from model.ArticleStatus) (bool, error) {
	if r.s.statusUpdateHook != nil {
		r.s.statusUpdateHook()
	}
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

func (r memArticleRepo) UpdateOrder(_ context.Context, id string, order float64, updatedAt time.Time) error {
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

func (r memArticleRepo) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.articles[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.s.articles, id)
	return nil
}

func (r memTopicRepo) List(_ context.Context) ([]*model.Topic, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*model.Topic, 0, len(r.s.topics))
	for _, t := range r.s.topics {
		copied := t
		out = append(out, &copied)
	}
	return out, nil
}

func (r memTopicRepo) FindByID(_ context.Context, id string) (*model.Topic, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.topics[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (r memTopicRepo) FindBySlug(_ context.Context, slug string) (*model.Topic, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, t := range r.s.topics {
		if t.Slug == slug {
			return &t, nil
		}
	}
	return nil, nil
}

func (r memTopicRepo) MaxOrder(_ context.Context) (float64, bool, error) {
	return 0, false, nil
}

func (r memTopicRepo) Create(_ context.Context, t *model.Topic) error {
	r.s.addTopic(*t)
	return nil
}

func (r memTopicRepo) Update(_ context.Context, t *model.Topic) error {
	r.s.addTopic(*t)
	return nil
}

func (r memTopicRepo) DeleteWithArticles(_ context.Context, id string) (int64, error) {
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

// removeTopic は記事を残したままトピックだけを消す。
func (m *memStore) removeTopic(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.topics, id)
}
