package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"net/url"
	"strings"

	"github.com/Dawstr8/polish-peaks/internal/models"
)

// PhotoClient talks to the photo endpoints
type PhotoClient struct {
	c *Client
}

// NewPhotoClient creates a photo client
func NewPhotoClient(c *Client) *PhotoClient {
	return &PhotoClient{c: c}
}

// UploadRequest is a file plus the metadata sent with it
type UploadRequest struct {
	File        io.Reader
	FileName    string
	ContentType string
	Create      *models.SummitPhotoCreate
}

// Upload posts the file as multipart field "file" and the metadata as JSON
// in field "summit_photo_create".
func (p *PhotoClient) Upload(ctx context.Context, upload UploadRequest) (*models.SummitPhoto, error) {
	if upload.File == nil {
		return nil, models.ErrEmptyFile
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	contentType := upload.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, escapeQuotes(upload.FileName)))
	header.Set("Content-Type", contentType)

	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, upload.File); err != nil {
		return nil, fmt.Errorf("copy upload file: %w", err)
	}

	create := upload.Create
	if create == nil {
		create = &models.SummitPhotoCreate{}
	}
	createJSON, err := json.Marshal(create)
	if err != nil {
		return nil, fmt.Errorf("encode summit photo: %w", err)
	}
	if err := writer.WriteField("summit_photo_create", string(createJSON)); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	var photo models.SummitPhoto
	if err := p.c.postMultipart(ctx, pathPhotos, &body, writer.FormDataContentType(), &photo); err != nil {
		return nil, err
	}
	return &photo, nil
}

// List returns all photos in the given order
func (p *PhotoClient) List(ctx context.Context, sortBy, order string) ([]models.SummitPhoto, error) {
	query := url.Values{}
	if sortBy != "" {
		query.Set("sort_by", sortBy)
	}
	if order != "" {
		query.Set("order", order)
	}

	var photos []models.SummitPhoto
	if err := p.c.get(ctx, pathPhotos, query, &photos); err != nil {
		return nil, err
	}
	return photos, nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
