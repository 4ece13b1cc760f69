package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/hitoshi/cybershield/internal/article"
	"github.com/hitoshi/cybershield/internal/middleware"
	"github.com/hitoshi/cybershield/internal/model"
)

// maxJSONBodyBytes はJSONリクエストボディの上限。
const maxJSONBodyBytes = 1 << 20

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// エラーメッセージにはJSONのフィールド名を使う
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decodeJSON はリクエストボディをdstにデコードし、validateタグで検証する。
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) *model.APIError {
	body := http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return model.NewInvalidRequestError(err)
	}
	if err := validate.Struct(dst); err != nil {
		return model.NewValidationError(validationMessage(err))
	}
	return nil
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "Invalid request"
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "max":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("%s must contain at most %s items", fe.Field(), fe.Param())
		}
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}

// handleServiceError はサービス層のエラーをHTTPレスポンスに変換する。
// APIError以外はfallbackの文言で500を返し、元エラーの文字列をerrorフィールドに含める。
func handleServiceError(w http.ResponseWriter, err error, fallback string) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code == model.ErrCodeInternal {
			slog.Error(fallback, slog.String("error", apiErr.Detail))
		}
		middleware.WriteErrorResponse(w, apiErr)
		return
	}

	slog.Error(fallback, slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w, fallback, err)
}

// callerOrUnauthorized はロールゲートが注入した呼び出し元を返す。
func callerOrUnauthorized(w http.ResponseWriter, r *http.Request) (model.Caller, bool) {
	caller, ok := middleware.CallerFromContext(r.Context())
	if !ok {
		middleware.WriteErrorResponse(w, model.NewUnauthorizedError("Not authenticated"))
	}
	return caller, ok
}

// --- レスポンス型 ---

type messageResponse struct {
	Message string `json:"message"`
}

type userResponse struct {
	ID          string    `json:"_id"`
	UID         string    `json:"uid"`
	Email       string    `json:"email"`
	DisplayName string    `json:"displayName,omitempty"`
	PhotoURL    string    `json:"photoURL,omitempty"`
	Provider    string    `json:"provider"`
	Role        string    `json:"role"`
	CreatedAt   time.Time `json:"createdAt"`
	LastLoginAt time.Time `json:"lastLoginAt"`
}

func toUserResponse(u *model.User) userResponse {
	return userResponse{
		ID:          u.ID,
		UID:         u.UID,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		PhotoURL:    u.PhotoURL,
		Provider:    u.Provider,
		Role:        string(u.Role),
		CreatedAt:   u.CreatedAt,
		LastLoginAt: u.LastLoginAt,
	}
}

func toUserResponses(users []*model.User) []userResponse {
	out := make([]userResponse, len(users))
	for i, u := range users {
		out[i] = toUserResponse(u)
	}
	return out
}

type topicResponse struct {
	ID          string    `json:"_id"`
	Title       string    `json:"title"`
	Slug        string    `json:"slug"`
	Description string    `json:"description"`
	Order       float64   `json:"order"`
	CreatedBy   string    `json:"createdBy,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func toTopicResponse(t *model.Topic) topicResponse {
	return topicResponse{
		ID:          t.ID,
		Title:       t.Title,
		Slug:        t.Slug,
		Description: t.Description,
		Order:       t.Order,
		CreatedBy:   t.CreatedBy,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

func toTopicResponses(topics []*model.Topic) []topicResponse {
	out := make([]topicResponse, len(topics))
	for i, t := range topics {
		out[i] = toTopicResponse(t)
	}
	return out
}

type topicRefResponse struct {
	ID    string `json:"_id"`
	Title string `json:"title"`
	Slug  string `json:"slug"`
}

// articleResponse は著者・管理者向けの記事表現。
type articleResponse struct {
	ID                 string                `json:"_id"`
	Title              string                `json:"title"`
	Slug               string                `json:"slug"`
	TopicID            string                `json:"topicId"`
	Topic              *topicRefResponse     `json:"topic,omitempty"`
	Content            string                `json:"content"`
	CoverImage         string                `json:"coverImage,omitempty"`
	AuthorUID          string                `json:"authorUid"`
	AuthorName         string                `json:"authorName"`
	Status             model.ArticleStatus   `json:"status"`
	RejectionReason    string                `json:"rejectionReason,omitempty"`
	Order              float64               `json:"order"`
	Tags               []string              `json:"tags"`
	CreatedAt          time.Time             `json:"createdAt"`
	UpdatedAt          time.Time             `json:"updatedAt"`
	PublishedAt        *time.Time            `json:"publishedAt,omitempty"`
	AllowedTransitions []model.ArticleStatus `json:"allowedTransitions,omitempty"`
}

func toArticleResponse(a *model.Article) articleResponse {
	resp := articleResponse{
		ID:              a.ID,
		Title:           a.Title,
		Slug:            a.Slug,
		TopicID:         a.TopicID,
		Content:         a.Content,
		CoverImage:      a.CoverImage,
		AuthorUID:       a.AuthorUID,
		AuthorName:      a.AuthorName,
		Status:          a.Status,
		RejectionReason: a.RejectionReason,
		Order:           a.Order,
		Tags:            nonNil(a.Tags),
		CreatedAt:       a.CreatedAt,
		UpdatedAt:       a.UpdatedAt,
		PublishedAt:     a.PublishedAt,
	}
	if a.Topic != nil {
		resp.Topic = &topicRefResponse{ID: a.Topic.ID, Title: a.Topic.Title, Slug: a.Topic.Slug}
	}
	return resp
}

// toAdminArticleResponse は管理画面向けに許可された遷移先を付与する。
func toAdminArticleResponse(a *model.Article) articleResponse {
	resp := toArticleResponse(a)
	resp.AllowedTransitions = article.AllowedTransitions(a)
	return resp
}

func toArticleResponses(articles []*model.Article, conv func(*model.Article) articleResponse) []articleResponse {
	out := make([]articleResponse, len(articles))
	for i, a := range articles {
		out[i] = conv(a)
	}
	return out
}

// publicArticleResponse は公開記事の表現。一覧では本文を含まない。
type publicArticleResponse struct {
	ID          string     `json:"_id"`
	Title       string     `json:"title"`
	Slug        string     `json:"slug"`
	CoverImage  string     `json:"coverImage,omitempty"`
	AuthorName  string     `json:"authorName"`
	Tags        []string   `json:"tags"`
	PublishedAt *time.Time `json:"publishedAt,omitempty"`
	Order       float64    `json:"order"`
	Content     string     `json:"content,omitempty"`
	ContentHTML string     `json:"contentHtml,omitempty"`
}

func toPublicArticleResponse(a *model.Article) publicArticleResponse {
	return publicArticleResponse{
		ID:          a.ID,
		Title:       a.Title,
		Slug:        a.Slug,
		CoverImage:  a.CoverImage,
		AuthorName:  a.AuthorName,
		Tags:        nonNil(a.Tags),
		PublishedAt: a.PublishedAt,
		Order:       a.Order,
	}
}

func nonNil(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}
