package handler

import (
	"bytes"
	"encoding/json"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitoshi/cybershield/internal/article"
	"github.com/hitoshi/cybershield/internal/auth"
	"github.com/hitoshi/cybershield/internal/markdown"
	"github.com/hitoshi/cybershield/internal/middleware"
	"github.com/hitoshi/cybershield/internal/model"
	"github.com/hitoshi/cybershield/internal/topic"
	"github.com/hitoshi/cybershield/internal/upload"
	"github.com/hitoshi/cybershield/internal/user"
)

// testEnv は実サービスとインメモリストアで構成したルーター。
type testEnv struct {
	t       *testing.T
	store   *fakeStore
	handler http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := newFakeStore()
	users := fakeUserRepo{store}
	topics := fakeTopicRepo{store}
	articles := fakeArticleRepo{store}

	uploadDir := filepath.Join(t.TempDir(), "ctf-images")
	sink, err := upload.NewDiskSink(uploadDir, "http://localhost:5000"+UploadsPath)
	require.NoError(t, err)

	limiter := middleware.NewRateLimiter(middleware.PerMinuteConfig(10000, 1000))
	t.Cleanup(limiter.Stop)

	articleSvc := article.NewService(articles, topics, article.WithRenderer(markdown.NewRenderer()))
	h := NewRouter(&RouterDeps{
		Verifier:          tokenVerifier{},
		Users:             users,
		CORSAllowedOrigin: "http://localhost:5173",
		RateLimiter:       limiter,
		UploadDir:         uploadDir,
		AuthService:       auth.NewService(users),
		TopicService:      topic.NewService(topics),
		ArticleService:    articleSvc,
		PublishedService:  articleSvc,
		ReviewService:     articleSvc,
		UserService:       user.NewService(users),
		UploadService:     upload.NewService(sink, 0, nil),
	})
	return &testEnv{t: t, store: store, handler: h}
}

func (e *testEnv) do(method, path, uid string, body any) *httptest.ResponseRecorder {
	e.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(e.t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if uid != "" {
		req.Header.Set("Authorization", "Bearer token-"+uid)
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

// login はユーザーをログインさせ、ストア上でロールを設定する。
func (e *testEnv) login(uid string, role model.Role) {
	e.t.Helper()
	w := e.do(http.MethodPost, "/api/auth/login", uid, nil)
	require.Equal(e.t, http.StatusOK, w.Code, w.Body.String())

	e.store.mu.Lock()
	u := e.store.users[uid]
	u.Role = role
	e.store.users[uid] = u
	e.store.mu.Unlock()
}

func decodeMap(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &m), w.Body.String())
	return m
}

func field(t *testing.T, w *httptest.ResponseRecorder, key string) map[string]any {
	t.Helper()
	v, ok := decodeMap(t, w)[key].(map[string]any)
	require.True(t, ok, "missing %q in %s", key, w.Body.String())
	return v
}

func (e *testEnv) createTopic(admin, title string) map[string]any {
	e.t.Helper()
	w := e.do(http.MethodPost, "/api/admin/topics", admin, map[string]any{"title": title})
	require.Equal(e.t, http.StatusCreated, w.Code, w.Body.String())
	return field(e.t, w, "topic")
}

func (e *testEnv) createArticle(author, topicID, title string) map[string]any {
	e.t.Helper()
	w := e.do(http.MethodPost, "/api/articles", author, map[string]any{
		"title":   title,
		"topicId": topicID,
		"content": "# Intro\n\nFlag format is `CTF{...}`.",
		"tags":    []string{"web", " web ", "sqli"},
	})
	require.Equal(e.t, http.StatusCreated, w.Code, w.Body.String())
	return field(e.t, w, "article")
}

func (e *testEnv) setStatus(admin, id, status string) *httptest.ResponseRecorder {
	e.t.Helper()
	return e.do(http.MethodPatch, "/api/admin/articles/"+id+"/status", admin, map[string]any{"status": status})
}

func (e *testEnv) publish(author, admin, id string) {
	e.t.Helper()
	require.Equal(e.t, http.StatusOK, e.do(http.MethodPatch, "/api/articles/"+id+"/submit", author, nil).Code)
	require.Equal(e.t, http.StatusOK, e.setStatus(admin, id, "approved").Code)
	require.Equal(e.t, http.StatusOK, e.setStatus(admin, id, "published").Code)
}

func TestRouter_ArticleWorkflowScenarios(t *testing.T) {
	e := newTestEnv(t)
	e.login("admin", model.RoleAdmin)
	e.login("alice", model.RoleAuthor)
	tp := e.createTopic("admin", "Web Exploitation")
	topicID := tp["_id"].(string)

	// 作成するとdraftになり、スラッグにはタイムスタンプが付く
	created := e.createArticle("alice", topicID, "My First CTF Writeup")
	id := created["_id"].(string)
	assert.Equal(t, "draft", created["status"])
	assert.Regexp(t, `^my-first-ctf-writeup-\d+$`, created["slug"])
	assert.Equal(t, "Alice", created["authorName"])
	assert.Equal(t, []any{"web", "sqli"}, created["tags"])

	// 提出するとpendingになり、差し戻し理由は含まれない
	w := e.do(http.MethodPatch, "/api/articles/"+id+"/submit", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	submitted := field(t, w, "article")
	assert.Equal(t, "pending", submitted["status"])
	assert.NotContains(t, submitted, "rejectionReason")

	// 差し戻すと理由が保存され、著者は再び編集できる
	w = e.do(http.MethodPatch, "/api/admin/articles/"+id+"/status", "admin", map[string]any{
		"status":          "rejected",
		"rejectionReason": "needs more detail",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	rejected := field(t, w, "article")
	assert.Equal(t, "rejected", rejected["status"])
	assert.Equal(t, "needs more detail", rejected["rejectionReason"])
	assert.Equal(t, []any{"pending"}, rejected["allowedTransitions"])

	w = e.do(http.MethodPatch, "/api/articles/"+id, "alice", map[string]any{"content": "more detail"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "more detail", field(t, w, "article")["content"])

	// 再提出後、approvedを経ずにpublishedにはできない
	require.Equal(t, http.StatusOK, e.do(http.MethodPatch, "/api/articles/"+id+"/submit", "alice", nil).Code)
	w = e.setStatus("admin", id, "published")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, model.ErrCodeInvalidTransition, decodeMap(t, w)["code"])

	w = e.do(http.MethodGet, "/api/articles/"+id, "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pending", field(t, w, "article")["status"])

	// pending中の著者は編集・削除できない
	assert.Equal(t, http.StatusBadRequest, e.do(http.MethodPatch, "/api/articles/"+id, "alice", map[string]any{"title": "x"}).Code)
	assert.Equal(t, http.StatusBadRequest, e.do(http.MethodDelete, "/api/articles/"+id, "alice", nil).Code)
}

func TestRouter_DeleteTopicCascades(t *testing.T) {
	e := newTestEnv(t)
	e.login("admin", model.RoleAdmin)
	e.login("alice", model.RoleAuthor)
	doomed := e.createTopic("admin", "Forensics")
	kept := e.createTopic("admin", "Crypto")

	for _, title := range []string{"Disk Images", "Memory Dumps", "PCAP Basics"} {
		a := e.createArticle("alice", doomed["_id"].(string), title)
		e.publish("alice", "admin", a["_id"].(string))
	}
	e.createArticle("alice", kept["_id"].(string), "RSA Basics")

	w := e.do(http.MethodGet, "/api/topics/forensics/articles", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeMap(t, w)["articles"], 3)

	w = e.do(http.MethodDelete, "/api/admin/topics/"+doomed["_id"].(string), "admin", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decodeMap(t, w)
	assert.Equal(t, "Topic and associated articles deleted", body["message"])
	assert.Equal(t, float64(3), body["deletedArticles"])

	assert.Equal(t, 0, e.store.articleCount(doomed["_id"].(string)))
	assert.Equal(t, 1, e.store.articleCount(kept["_id"].(string)))

	w = e.do(http.MethodGet, "/api/topics/forensics/articles", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Topic not found", decodeMap(t, w)["message"])
}

func TestRouter_PublicReads(t *testing.T) {
	e := newTestEnv(t)
	e.login("admin", model.RoleAdmin)
	e.login("alice", model.RoleAuthor)
	tp := e.createTopic("admin", "Web Exploitation")
	topicID := tp["_id"].(string)

	published := e.createArticle("alice", topicID, "SQL Injection 101")
	e.publish("alice", "admin", published["_id"].(string))
	draft := e.createArticle("alice", topicID, "Secret Draft")

	w := e.do(http.MethodGet, "/api/topics", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeMap(t, w)["topics"], 1)

	w = e.do(http.MethodGet, "/api/topics/web-exploitation/articles", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decodeMap(t, w)["articles"].([]any)
	require.Len(t, list, 1)
	item := list[0].(map[string]any)
	assert.Equal(t, published["slug"], item["slug"])
	assert.NotContains(t, item, "content")
	assert.NotContains(t, item, "status")

	w = e.do(http.MethodGet, "/api/topics/web-exploitation/articles/"+published["slug"].(string), "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	single := field(t, w, "article")
	assert.Contains(t, single["contentHtml"], "<h1")
	assert.Contains(t, single["contentHtml"], "<code>CTF{...}</code>")
	assert.Equal(t, "web-exploitation", field(t, w, "topic")["slug"])

	// 下書き・存在しない記事・存在しないトピックは同じ404
	for _, path := range []string{
		"/api/topics/web-exploitation/articles/" + draft["slug"].(string),
		"/api/topics/web-exploitation/articles/no-such-article",
		"/api/topics/no-such-topic/articles/" + published["slug"].(string),
	} {
		w := e.do(http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusNotFound, w.Code, path)
		assert.Equal(t, "Article not found or not published", decodeMap(t, w)["message"], path)
	}
}

func TestRouter_RoleGate(t *testing.T) {
	e := newTestEnv(t)
	e.login("sam", model.RoleStudent)
	e.login("alice", model.RoleAuthor)

	w := e.do(http.MethodGet, "/api/articles/my", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Missing or invalid Authorization header", decodeMap(t, w)["message"])

	w = e.do(http.MethodGet, "/api/articles/my", "sam", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "Access denied. Required role: author", decodeMap(t, w)["message"])

	w = e.do(http.MethodGet, "/api/articles/my", "ghost", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "User not found in database", decodeMap(t, w)["message"])

	assert.Equal(t, http.StatusOK, e.do(http.MethodGet, "/api/articles/my", "alice", nil).Code)
	assert.Equal(t, http.StatusForbidden, e.do(http.MethodGet, "/api/admin/users", "alice", nil).Code)

	// me はロール不要
	w = e.do(http.MethodGet, "/api/auth/me", "sam", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "student", field(t, w, "user")["role"])
}

func TestRouter_AdminPromotesUser(t *testing.T) {
	e := newTestEnv(t)
	e.login("admin", model.RoleAdmin)
	e.login("sam", model.RoleStudent)

	w := e.do(http.MethodPatch, "/api/admin/users/sam/role", "admin", map[string]any{"role": "author"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Role updated", decodeMap(t, w)["message"])

	// 次のリクエストから新しいロールが効く
	assert.Equal(t, http.StatusOK, e.do(http.MethodGet, "/api/articles/my", "sam", nil).Code)

	w = e.do(http.MethodPatch, "/api/admin/users/sam/role", "admin", map[string]any{"role": "root"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid role. Must be: student, author, or admin", decodeMap(t, w)["message"])
}

func TestRouter_UploadAndServeImage(t *testing.T) {
	e := newTestEnv(t)
	e.login("alice", model.RoleAuthor)

	var img bytes.Buffer
	require.NoError(t, png.Encode(&img, image.NewGray(image.Rect(0, 0, 2, 2))))

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", `form-data; name="image"; filename="flag.png"`)
	hdr.Set("Content-Type", "image/png")
	part, err := mw.CreatePart(hdr)
	require.NoError(t, err)
	_, err = part.Write(img.Bytes())
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/upload/image", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer token-alice")
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	url := decodeMap(t, w)["url"].(string)
	require.True(t, strings.HasPrefix(url, "http://localhost:5000/uploads/ctf-images/"), url)

	w = e.do(http.MethodGet, strings.TrimPrefix(url, "http://localhost:5000"), "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, img.Bytes(), w.Body.Bytes())
	assert.Equal(t, "cross-origin", w.Header().Get("Cross-Origin-Resource-Policy"))

	assert.Equal(t, http.StatusNotFound, e.do(http.MethodGet, UploadsPath+"/", "", nil).Code)
}

func TestRouter_Fallbacks(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(http.MethodGet, "/api/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Route not found", decodeMap(t, w)["message"])

	w = e.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decodeMap(t, w)["status"])

	// /metrics は専用リスナーでのみ公開する
	assert.Equal(t, http.StatusNotFound, e.do(http.MethodGet, "/metrics", "", nil).Code)
}
