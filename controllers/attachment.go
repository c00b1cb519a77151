package controllers

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"path"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cppla/discussion/storage"
	"github.com/cppla/discussion/utils"
)

var errTooLarge = errors.New("file too large")

// uploader puts request files into object storage.
type uploader struct {
	store    storage.Storage
	maxBytes int64
	expiry   time.Duration
}

// formFile returns the named multipart file, or nil when the request has none.
func formFile(ctx *gin.Context, field string) *multipart.FileHeader {
	if ctx.ContentType() != gin.MIMEMultipartPOSTForm {
		return nil
	}
	fh, err := ctx.FormFile(field)
	if err != nil {
		return nil
	}
	return fh
}

// put stores fh under dir and returns its object key.
func (u uploader) put(ctx context.Context, dir string, fh *multipart.FileHeader) (string, error) {
	if u.store == nil {
		return "", storage.ErrStorageDisabled
	}
	if u.maxBytes > 0 && fh.Size > u.maxBytes {
		return "", errTooLarge
	}
	f, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()

	contentType := fh.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	key := storage.ObjectKey(dir, fh.Filename)
	if _, err := u.store.Put(ctx, key, f, storage.PutObjectOptions{
		Size:        fh.Size,
		ContentType: contentType,
		Metadata:    map[string]string{"original-filename": fh.Filename},
	}); err != nil {
		return "", err
	}
	return key, nil
}

// discard removes an object whose database row could not be written.
func (u uploader) discard(ctx context.Context, key string) {
	if key == "" || u.store == nil {
		return
	}
	if err := u.store.Delete(context.WithoutCancel(ctx), key); err != nil {
		utils.Sugar.Warnf("remove orphaned object %s: %v", key, err)
	}
}

// uploadError answers a failed put.
func uploadError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, storage.ErrStorageDisabled):
		utils.Error(ctx, http.StatusServiceUnavailable, 50310, "attachments are not enabled")
	case errors.Is(err, errTooLarge):
		utils.Error(ctx, http.StatusRequestEntityTooLarge, 41301, "attachment too large")
	default:
		utils.Sugar.Errorf("store attachment: %v", err)
		utils.Error(ctx, http.StatusBadGateway, 50210, "failed to store attachment")
	}
}

// redirectToObject answers 302 with a short-lived download URL for key. When
// the store cannot sign a URL the object is streamed through the API instead.
func (u uploader) redirectToObject(ctx *gin.Context, key string) {
	if key == "" {
		utils.Error(ctx, http.StatusNotFound, 40420, "no attachment")
		return
	}
	if u.store == nil {
		utils.Error(ctx, http.StatusServiceUnavailable, 50310, "attachments are not enabled")
		return
	}
	url, err := u.store.PresignGet(ctx.Request.Context(), key, u.expiry)
	if err != nil {
		utils.Sugar.Warnf("presign %s: %v", key, err)
		u.streamObject(ctx, key)
		return
	}
	ctx.Redirect(http.StatusFound, url)
}

func (u uploader) streamObject(ctx *gin.Context, key string) {
	rc, info, err := u.store.Get(ctx.Request.Context(), key)
	if err != nil {
		utils.Sugar.Errorf("get %s: %v", key, err)
		utils.Error(ctx, http.StatusBadGateway, 50211, "failed to prepare download")
		return
	}
	defer rc.Close()

	contentType := info.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	size := info.Size
	if size <= 0 {
		size = -1
	}
	ctx.DataFromReader(http.StatusOK, size, contentType, rc, map[string]string{
		"Content-Disposition": fmt.Sprintf("attachment; filename=%q", path.Base(key)),
	})
}
