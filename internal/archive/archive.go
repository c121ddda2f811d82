// Package archive talks to the remote content-archival service.
//
// The rest of arcup depends only on the narrow Client interface; the concrete
// implementation speaks the service's S3-compatible upload API over HTTP.
package archive

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

// Metadata describes the remote item a file is uploaded into. It is attached
// as item metadata headers on the first upload, which creates the item.
type Metadata struct {
	Title       string
	MediaType   string
	Collection  string
	Description string
	Creator     string
	Subject     string
	LicenseURL  string
}

// Client uploads a single local file into a remote item. Implementations
// must return a non-nil error for any attempt that did not durably land.
type Client interface {
	Put(ctx context.Context, itemID, remotePath, localPath string, meta Metadata) error
}

// S3Client implements Client against an S3-compatible archive endpoint
type S3Client struct {
	endpoint  string
	accessKey string
	secretKey string
	httpc     *http.Client
}

// NewS3Client creates a client for the given endpoint. accessKey and
// secretKey may be empty for unauthenticated test endpoints.
func NewS3Client(endpoint, accessKey, secretKey string) *S3Client {
	return &S3Client{
		endpoint:  strings.TrimRight(endpoint, "/"),
		accessKey: accessKey,
		secretKey: secretKey,
		// Uploads of multi-hundred-MB files need a generous timeout.
		httpc: &http.Client{Timeout: 30 * time.Minute},
	}
}

// Put uploads localPath to <endpoint>/<itemID>/<remotePath>. The item is
// created by the service on the first upload carrying metadata headers.
func (c *S3Client) Put(ctx context.Context, itemID, remotePath, localPath string, meta Metadata) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer func() {
		_ = f.Close()
	}()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", localPath, err)
	}

	target := c.endpoint + "/" + url.PathEscape(itemID) + "/" + escapePath(remotePath)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, target, f)
	if err != nil {
		return fmt.Errorf("failed to build upload request: %w", err)
	}
	req.ContentLength = info.Size()

	if c.accessKey != "" {
		req.Header.Set("Authorization", fmt.Sprintf("LOW %s:%s", c.accessKey, c.secretKey))
	}
	req.Header.Set("x-amz-auto-make-bucket", "1")
	setMetaHeaders(req.Header, meta)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("upload request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("upload rejected: %s", resp.Status)
	}
	return nil
}

// setMetaHeaders attaches item metadata in the service's header convention
func setMetaHeaders(h http.Header, meta Metadata) {
	set := func(key, value string) {
		if value != "" {
			h.Set("x-archive-meta-"+key, value)
		}
	}
	set("title", meta.Title)
	set("mediatype", meta.MediaType)
	set("collection", meta.Collection)
	set("description", meta.Description)
	set("creator", meta.Creator)
	set("subject", meta.Subject)
	set("licenseurl", meta.LicenseURL)
}

// escapePath escapes each segment of a forward-slash remote path while
// preserving the separators.
func escapePath(p string) string {
	segments := strings.Split(p, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}

// LoadCredentials reads an "accesskey:secretkey" pair from a file
func LoadCredentials(path string) (access, secret string, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", "", fmt.Errorf("failed to read credential file: %w", err)
	}
	line := strings.TrimSpace(string(data))
	access, secret, ok := strings.Cut(line, ":")
	if !ok || access == "" || secret == "" {
		return "", "", fmt.Errorf("credential file must contain accesskey:secretkey")
	}
	return access, secret, nil
}
