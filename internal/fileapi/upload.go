package fileapi

import (
	"context"
	"fmt"
	"net/http"

	"github.com/cluebotng/trainer/pkg/client"
)

// Upload stores body at url. The file API answers 201 for a
// new file and 200 when the file already existed.
func Upload(ctx context.Context, c *client.Client, url, key string, body []byte) error {
	code, err := c.Post(ctx, url, key, body)
	if err != nil {
		return err
	}

	switch code {
	case http.StatusCreated, http.StatusOK:
		return nil
	default:
		return fmt.Errorf("upload to %v rejected: %v", url, code)
	}
}
