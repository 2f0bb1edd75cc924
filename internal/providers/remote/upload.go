package remote

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"easel/internal/services"
)

// UploadFile pushes a local reference image to the provider and returns
// the URL the provider assigned to it. Providers either take a multipart
// form with the file bytes or a JSON body carrying the local path, which
// the provider resolves itself.
func (c *Client) UploadFile(ctx context.Context, path string) (string, error) {
	requestURL, err := c.buildURL(c.provider.Endpoints.Upload, nil)
	if err != nil {
		return "", err
	}

	field := c.provider.Upload.Field
	if field == "" {
		field = "file"
	}

	var doc map[string]any
	if c.provider.Upload.Multipart {
		data, readErr := os.ReadFile(path)
		if readErr != nil {
			return "", services.Wrap(services.ErrValidation, "remote", "upload",
				"read reference image "+path, readErr)
		}
		doc, err = c.uploadMultipart(ctx, requestURL, field, filepath.Base(path), data)
	} else {
		abs, absErr := filepath.Abs(path)
		if absErr != nil {
			return "", absErr
		}
		if _, statErr := os.Stat(abs); statErr != nil {
			return "", services.Wrap(services.ErrValidation, "remote", "upload",
				"read reference image "+path, statErr)
		}
		doc, _, err = c.doJSON(ctx, http.MethodPost, requestURL, map[string]any{field: abs})
	}
	if err != nil {
		return "", err
	}

	resultPath := c.provider.Upload.ResultPath
	if resultPath == "" {
		resultPath = "url"
	}
	uploaded, ok := lookupString(doc, resultPath)
	if !ok {
		return "", services.Wrap(services.ErrTransient, "remote", "upload",
			fmt.Sprintf("upload response missing %q", resultPath), nil)
	}
	return uploaded, nil
}

func (c *Client) uploadMultipart(ctx context.Context, requestURL, field, name string, data []byte) (map[string]any, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile(field, name)
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("write form file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, requestURL, &buf)
	if err != nil {
		return nil, fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	c.applyAuth(req)

	doc, _, err := c.execute(req)
	return doc, err
}
