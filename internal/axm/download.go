package axm

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"path"
	"strings"
)

// maxArtifactSize bounds an activity log download.
const maxArtifactSize = 64 << 20

// Download fetches a pre-signed URL without authentication and returns the
// content and a local file name. The name comes from Content-Disposition,
// reduced to its base name; fallback is used when the header has none.
func (c *Client) Download(ctx context.Context, rawURL, fallback string) ([]byte, string, error) {
	resp, err := c.ExecuteUnauthenticated(ctx, rawURL)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxArtifactSize+1))
	if err != nil {
		return nil, "", fmt.Errorf("axm: reading download: %w", err)
	}

	if len(data) > maxArtifactSize {
		return nil, "", fmt.Errorf("axm: download exceeds %d bytes", maxArtifactSize)
	}

	name := filenameFromDisposition(resp.Header.Get("Content-Disposition"))
	if name == "" {
		name = fallback
	}

	c.logger.Debug("download complete",
		slog.String("filename", name),
		slog.Int("bytes", len(data)),
	)

	return data, name, nil
}

// filenameFromDisposition extracts a safe base file name from a
// Content-Disposition header value. It returns "" if there is none.
func filenameFromDisposition(header string) string {
	if header == "" {
		return ""
	}

	_, params, err := mime.ParseMediaType(header)
	if err != nil {
		return ""
	}

	name := strings.ReplaceAll(params["filename"], `\`, "/")
	name = path.Base(strings.TrimSpace(name))

	switch name {
	case "", ".", "/", "..":
		return ""
	}

	return name
}
