// Package attachments persists incoming attachments to durable storage and
// produces transport-ready files for direct re-upload.
package attachments

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/modmailhq/go-modmail-backend/internal/transport"
)

// Saved describes where an attachment ended up.
type Saved struct {
	URL string
}

// Pipeline is the attachment surface the relay consumes.
type Pipeline interface {
	// Save persists the attachment and returns its durable URL.
	Save(ctx context.Context, att transport.Attachment) (Saved, error)
	// TransportFile fetches the attachment into a transport-ready file.
	TransportFile(ctx context.Context, att transport.Attachment) (transport.File, error)
}

// DiskStore saves attachments under BaseDir and serves them at BaseURL.
type DiskStore struct {
	BaseDir string
	BaseURL string
	// HTTPClient fetches the source URL; http.DefaultClient when nil.
	HTTPClient *http.Client
}

func (d *DiskStore) client() *http.Client {
	if d.HTTPClient != nil {
		return d.HTTPClient
	}
	return http.DefaultClient
}

func (d *DiskStore) fetch(ctx context.Context, srcURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srcURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := d.client().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch attachment: unexpected status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// Save downloads the attachment and writes it under BaseDir, returning the
// public URL it will be served at.
func (d *DiskStore) Save(ctx context.Context, att transport.Attachment) (Saved, error) {
	data, err := d.fetch(ctx, att.URL)
	if err != nil {
		return Saved{}, err
	}

	id := uuid.NewString()
	dir := filepath.Join(d.BaseDir, id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Saved{}, err
	}
	name := filepath.Base(att.Name)
	if name == "" || name == "." {
		name = "attachment"
	}
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		return Saved{}, err
	}

	log.Debug().Str("attachment_id", id).Int("bytes", len(data)).Msg("attachment saved")
	return Saved{URL: d.BaseURL + "/" + id + "/" + url.PathEscape(name)}, nil
}

// TransportFile fetches the attachment into memory for direct re-upload.
func (d *DiskStore) TransportFile(ctx context.Context, att transport.Attachment) (transport.File, error) {
	data, err := d.fetch(ctx, att.URL)
	if err != nil {
		return transport.File{}, err
	}
	name := att.Name
	if name == "" {
		name = "attachment"
	}
	return transport.File{Name: name, Data: data}, nil
}
