// Package gdrive stores artifacts in a Google Drive folder. The Drive file
// id becomes the object key for later reads and deletes.
package gdrive

import (
	"context"
	"fmt"
	"io"
	"time"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"

	"recap/internal/ports"
	"recap/internal/signing"
)

type Client struct {
	srv      *drive.Service
	folderID string
	signer   *signing.Signer
}

func NewClient(srv *drive.Service, folderID string, signer *signing.Signer) *Client {
	return &Client{srv: srv, folderID: folderID, signer: signer}
}

func (c *Client) Provider() string { return "gdrive" }

func (c *Client) PutObject(ctx context.Context, in ports.PutObjectInput) (ports.PutObjectOutput, error) {
	if in.ObjectKey == "" {
		return ports.PutObjectOutput{}, fmt.Errorf("gdrive: object key is required")
	}

	file := &drive.File{Name: in.ObjectKey}
	if c.folderID != "" {
		file.Parents = []string{c.folderID}
	}

	call := c.srv.Files.Create(file)
	if in.ContentType != "" {
		call = call.Media(in.Reader, googleapi.ContentType(in.ContentType))
	} else {
		call = call.Media(in.Reader)
	}

	created, err := call.Context(ctx).Do()
	if err != nil {
		return ports.PutObjectOutput{}, fmt.Errorf("gdrive: upload: %w", err)
	}

	return ports.PutObjectOutput{ObjectKey: created.Id, Size: in.Size}, nil
}

func (c *Client) GetObject(ctx context.Context, objectKey string) (rc io.ReadCloser, contentType string, size int64, err error) {
	resp, err := c.srv.Files.Get(objectKey).
		SupportsAllDrives(true).
		Download()
	if err != nil {
		return nil, "", 0, err
	}

	contentType = resp.Header.Get("Content-Type")
	size = resp.ContentLength
	return resp.Body, contentType, size, nil
}

func (c *Client) DeleteObject(ctx context.Context, objectKey string) error {
	err := c.srv.Files.Delete(objectKey).
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if gerr, ok := err.(*googleapi.Error); ok && gerr.Code == 404 {
		return nil
	}
	return err
}

// GetSignedURL points at the API's artifact route rather than Drive itself;
// the route verifies the signature and streams the object through GetObject.
func (c *Client) GetSignedURL(ctx context.Context, objectKey string, expiresIn time.Duration) (ports.SignedURLOutput, error) {
	if c.signer == nil {
		return ports.SignedURLOutput{}, fmt.Errorf("gdrive: no signer configured")
	}
	url, expiresAt := c.signer.SignFor(objectKey, time.Now().UTC(), expiresIn)
	return ports.SignedURLOutput{URL: url, ExpiresAt: expiresAt}, nil
}
