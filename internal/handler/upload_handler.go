package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/hitoshi/cybershield/internal/middleware"
	"github.com/hitoshi/cybershield/internal/model"
	"github.com/hitoshi/cybershield/internal/upload"
)

// multipartOverhead はmultipartの境界やヘッダー分としてボディ上限に加える余裕。
const multipartOverhead = 64 << 10

// UploadServiceInterface は画像アップロードに必要なサービスインターフェース。
type UploadServiceInterface interface {
	Upload(ctx context.Context, f upload.File) (*upload.Result, error)
	MaxBytes() int64
}

// UploadHandler は画像アップロードのHTTPハンドラー。
type UploadHandler struct {
	service UploadServiceInterface
}

// NewUploadHandler はUploadHandlerを生成する。
func NewUploadHandler(service UploadServiceInterface) *UploadHandler {
	return &UploadHandler{service: service}
}

type uploadResponse struct {
	URL string `json:"url"`
}

// UploadImage はmultipartのimageフィールドで受け取った画像を保存し、公開URLを返す。
// POST /api/upload/image
func (h *UploadHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.service.MaxBytes()+multipartOverhead)

	file, header, err := r.FormFile("image")
	if err != nil {
		middleware.WriteErrorResponse(w, formFileError(err))
		return
	}
	defer file.Close()

	res, err := h.service.Upload(r.Context(), upload.File{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Body:        file,
	})
	if err != nil {
		handleServiceError(w, err, "Upload failed")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, uploadResponse{URL: res.URL})
}

func formFileError(err error) *model.APIError {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return model.NewUploadRejectedError("Upload error: File too large")
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
		return model.NewUploadRejectedError("No image file provided")
	default:
		return model.NewUploadRejectedError("Upload error: " + err.Error())
	}
}
