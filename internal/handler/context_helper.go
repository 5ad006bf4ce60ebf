package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/clearance-api/internal/middleware"
	"github.com/noah-isme/clearance-api/internal/models"
	"github.com/noah-isme/clearance-api/internal/service"
	appErrors "github.com/noah-isme/clearance-api/pkg/errors"
)

// receiptReadLimit caps how much of an uploaded receipt is buffered; the image guard
// enforces the real limit with its own message.
const receiptReadLimit = 16 << 20

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	return middleware.Claims(c)
}

func actorFromContext(c *gin.Context) (service.Actor, error) {
	claims := claimsFromContext(c)
	if claims == nil {
		return service.Actor{}, appErrors.ErrUnauthorized
	}
	return service.Actor{
		ID:     claims.UserID,
		Name:   claims.FullName,
		Role:   claims.Role,
		Office: claims.Office,
	}, nil
}

// formList reads a list field sent either as a JSON array or as repeated form values.
func formList(c *gin.Context, key string) []string {
	values := c.PostFormArray(key)
	if len(values) == 0 {
		values = c.PostFormArray(key + "[]")
	}
	if len(values) == 1 && strings.HasPrefix(strings.TrimSpace(values[0]), "[") {
		var decoded []string
		if err := json.Unmarshal([]byte(values[0]), &decoded); err == nil {
			return decoded
		}
	}
	return values
}

// receiptFromForm returns the uploaded receipt image under field, or nil when none was sent.
func receiptFromForm(c *gin.Context, field string) (*service.ReceiptUpload, error) {
	header, err := c.FormFile(field)
	if err != nil {
		return nil, nil
	}
	data, err := readFormFile(header)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "failed to read uploaded file")
	}
	return &service.ReceiptUpload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

func readFormFile(header *multipart.FileHeader) ([]byte, error) {
	file, err := header.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", header.Filename, err)
	}
	defer file.Close()
	return io.ReadAll(io.LimitReader(file, receiptReadLimit))
}
