// Package hub downloads model snapshots from a Hugging Face compatible hub
// into a local cache directory.
package hub

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/samcharles93/ferry/internal/logger"
	"github.com/samcharles93/ferry/internal/version"
)

const (
	DefaultEndpoint    = "https://huggingface.co"
	DefaultRevision    = "main"
	DefaultConcurrency = 4
)

// ErrAuthorizationRequired is returned when the hub rejects the request as
// unauthenticated or forbidden.
var ErrAuthorizationRequired = errors.New("hub: authorization required")

// StatusError is a non-2xx response other than an authorization failure.
type StatusError struct {
	Status  int
	URL     string
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("hub: %s: %d %s", e.URL, e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("hub: %s: %d %s", e.URL, e.Status, e.Message)
}

// Progress describes a snapshot transfer. Completed and Total are byte
// counts across all selected files; File names the file that advanced.
type Progress struct {
	File      string
	Completed int64
	Total     int64
}

type ProgressFunc func(Progress)

// Client talks to the hub and owns the on-disk cache layout
// <CacheDir>/models/<repo>.
type Client struct {
	Endpoint    string
	Token       string
	Revision    string
	CacheDir    string
	Concurrency int
	HTTPClient  *http.Client
}

func New(cacheDir string) *Client {
	return &Client{
		Endpoint:    DefaultEndpoint,
		Revision:    DefaultRevision,
		CacheDir:    cacheDir,
		Concurrency: DefaultConcurrency,
	}
}

// LocalCachePath is where Snapshot stores repo.
func (c *Client) LocalCachePath(repo string) string {
	return filepath.Join(c.CacheDir, "models", filepath.FromSlash(repo))
}

type sibling struct {
	Name string `json:"rfilename"`
	Size int64  `json:"size"`
}

// Snapshot downloads every file of repo matching one of globs into the
// local cache and returns the directory. Files already cached at the
// advertised size are not fetched again.
func (c *Client) Snapshot(ctx context.Context, repo string, globs []string, progress ProgressFunc) (string, error) {
	log := logger.FromContext(ctx).With("repo", repo)

	files, err := c.listFiles(ctx, repo)
	if err != nil {
		return "", err
	}
	selected := filterGlobs(files, globs)
	dir := c.LocalCachePath(repo)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	var total int64
	for _, f := range selected {
		total += f.Size
	}
	rep := newReporter(progress)
	defer rep.close()

	var completed atomic.Int64
	advance := func(file string, n int64) {
		rep.send(Progress{File: file, Completed: completed.Add(n), Total: total})
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency())
	for _, f := range selected {
		dest := filepath.Join(dir, filepath.FromSlash(f.Name))
		if st, err := os.Stat(dest); err == nil && f.Size > 0 && st.Size() == f.Size {
			log.Debug("cached", "file", f.Name)
			advance(f.Name, f.Size)
			continue
		}
		g.Go(func() error {
			return c.download(gctx, repo, f.Name, dest, func(n int64) { advance(f.Name, n) })
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}
	log.Debug("snapshot complete", "files", len(selected), "dir", dir)
	return dir, nil
}

func (c *Client) listFiles(ctx context.Context, repo string) ([]sibling, error) {
	// Sibling sizes are only reported with blobs=true.
	u := fmt.Sprintf("%s/api/models/%s/revision/%s?blobs=true", c.endpoint(), repo, url.PathEscape(c.revision()))
	res, err := c.doOK(ctx, u)
	if err != nil {
		return nil, err
	}
	defer func() { _ = res.Body.Close() }()

	var info struct {
		Siblings []sibling `json:"siblings"`
	}
	if err := json.NewDecoder(res.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("hub: decode %s: %w", u, err)
	}
	out := info.Siblings[:0]
	for _, s := range info.Siblings {
		if !filepath.IsLocal(filepath.FromSlash(s.Name)) {
			return nil, fmt.Errorf("hub: %s: unsafe file name %q", repo, s.Name)
		}
		out = append(out, s)
	}
	return out, nil
}

func (c *Client) download(ctx context.Context, repo, name, dest string, advance func(int64)) (err error) {
	u := fmt.Sprintf("%s/%s/resolve/%s/%s", c.endpoint(), repo, url.PathEscape(c.revision()), name)
	res, err := c.doOK(ctx, u)
	if err != nil {
		return err
	}
	defer func() { _ = res.Body.Close() }()

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	tmp := dest + ".partial-" + uuid.NewString()
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(tmp)
		}
	}()

	if _, err = io.Copy(f, &countingReader{r: res.Body, advance: advance}); err != nil {
		return fmt.Errorf("hub: download %s: %w", name, err)
	}
	if err = f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, dest)
}

// doOK issues a GET and returns the response if the status is 2xx.
func (c *Client) doOK(ctx context.Context, u string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "ferry/"+version.String())
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	res, err := c.client().Do(req)
	if err != nil {
		return nil, err
	}
	if res.StatusCode/100 == 2 {
		return res, nil
	}
	defer func() { _ = res.Body.Close() }()
	body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
	if res.StatusCode == http.StatusUnauthorized || res.StatusCode == http.StatusForbidden {
		return nil, fmt.Errorf("%w: %s", ErrAuthorizationRequired, u)
	}
	var msg struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &msg) != nil || msg.Error == "" {
		msg.Error = strings.TrimSpace(string(body))
	}
	return nil, &StatusError{Status: res.StatusCode, URL: u, Message: msg.Error}
}

func (c *Client) client() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) endpoint() string {
	if c.Endpoint == "" {
		return DefaultEndpoint
	}
	return strings.TrimRight(c.Endpoint, "/")
}

func (c *Client) revision() string {
	if c.Revision == "" {
		return DefaultRevision
	}
	return c.Revision
}

func (c *Client) concurrency() int {
	if c.Concurrency <= 0 {
		return DefaultConcurrency
	}
	return c.Concurrency
}

// filterGlobs keeps files whose full name or base name matches a glob.
func filterGlobs(files []sibling, globs []string) []sibling {
	if len(globs) == 0 {
		return files
	}
	var out []sibling
	for _, f := range files {
		for _, g := range globs {
			full, _ := path.Match(g, f.Name)
			base, _ := path.Match(g, path.Base(f.Name))
			if full || base {
				out = append(out, f)
				break
			}
		}
	}
	return out
}

type countingReader struct {
	r       io.Reader
	advance func(int64)
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		c.advance(int64(n))
	}
	return n, err
}
