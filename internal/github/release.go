package github

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"github.com/google/go-github/v81/github"

	"elemforge/internal/settle"
)

// maxParallelUploads bounds concurrent asset uploads for one release.
const maxParallelUploads = 3

// Release describes a GitHub release to create.
type Release struct {
	Repository string // OWNER/REPO
	Tag        string
	Name       string
	Body       string
	// Target is the branch or commit the tag is created from when it does
	// not exist yet.
	Target     string
	Draft      bool
	Prerelease bool
	// Assets are local files uploaded to the release.
	Assets []string
}

// PublishedRelease is what GitHub reported back.
type PublishedRelease struct {
	ID     int64
	URL    string
	Assets []string
}

// Publisher creates releases and uploads their assets.
type Publisher struct {
	client *Client
}

func NewPublisher(c *Client) (*Publisher, error) {
	if c == nil || c.Client == nil {
		return nil, errors.New("github publisher: client is nil")
	}
	return &Publisher{client: c}, nil
}

// ReleaseExists reports whether repository already has a release for tag.
func (p *Publisher) ReleaseExists(ctx context.Context, repository, tag string) (bool, error) {
	owner, repo, err := SplitRepository(repository)
	if err != nil {
		return false, err
	}
	_, _, err = p.client.Client.Repositories.GetReleaseByTag(ctx, owner, repo, tag)
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, fmt.Errorf("get release %s: %w", tag, err)
}

// Publish creates the release and uploads its assets. Uploads run
// concurrently; if any fail, the error lists every failed upload and the
// release is left in place so the uploads can be retried.
func (p *Publisher) Publish(ctx context.Context, r Release) (PublishedRelease, error) {
	owner, repo, err := SplitRepository(r.Repository)
	if err != nil {
		return PublishedRelease{}, err
	}
	if r.Tag == "" {
		return PublishedRelease{}, errors.New("release tag is required")
	}
	name := r.Name
	if name == "" {
		name = r.Tag
	}

	req := &github.RepositoryRelease{
		TagName:    github.Ptr(r.Tag),
		Name:       github.Ptr(name),
		Body:       github.Ptr(r.Body),
		Draft:      github.Ptr(r.Draft),
		Prerelease: github.Ptr(r.Prerelease),
	}
	if r.Target != "" {
		req.TargetCommitish = github.Ptr(r.Target)
	}

	created, _, err := p.client.Client.Repositories.CreateRelease(ctx, owner, repo, req)
	if err != nil {
		return PublishedRelease{}, fmt.Errorf("create release %s: %w", r.Tag, err)
	}
	out := PublishedRelease{ID: created.GetID(), URL: created.GetHTMLURL()}

	ops := make([]settle.Op[string], 0, len(r.Assets))
	for _, path := range r.Assets {
		ops = append(ops, func(ctx context.Context) (string, error) {
			return p.upload(ctx, owner, repo, out.ID, path)
		})
	}
	urls, err := settle.AllWithLimit(ctx, maxParallelUploads, ops...)
	if err != nil {
		return out, fmt.Errorf("upload assets for %s: %w", r.Tag, err)
	}
	out.Assets = urls
	return out, nil
}

func (p *Publisher) upload(ctx context.Context, owner, repo string, id int64, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open asset: %w", err)
	}
	defer f.Close()

	name := filepath.Base(path)
	opts := &github.UploadOptions{Name: name, MediaType: assetMediaType(name)}
	asset, _, err := p.client.Client.Repositories.UploadReleaseAsset(ctx, owner, repo, id, opts, f)
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", name, err)
	}
	return asset.GetBrowserDownloadURL(), nil
}

func assetMediaType(name string) string {
	switch filepath.Ext(name) {
	case ".tgz", ".gz":
		return "application/gzip"
	}
	if t := mime.TypeByExtension(filepath.Ext(name)); t != "" {
		return t
	}
	return "application/octet-stream"
}

func isNotFound(err error) bool {
	var er *github.ErrorResponse
	return errors.As(err, &er) && er.Response != nil && er.Response.StatusCode == http.StatusNotFound
}
