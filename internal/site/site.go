// Package site renders the upload ledger into a static, browsable HTML
// listing and an Atom feed.
package site

import (
	"bytes"
	"fmt"
	"html/template"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gorilla/feeds"
	"github.com/tdewolff/minify/v2"
	mhtml "github.com/tdewolff/minify/v2/html"

	"github.com/schaermu/arcup/internal/ledger"
	"github.com/schaermu/arcup/internal/publish"
)

// Builder renders ledger entries to the site and feed files. A successful
// render marks the publish state pending until a push confirms it.
type Builder struct {
	downloadBase string
	sitePath     string
	feedPath     string
	store        publish.Store
	logger       *slog.Logger
	minifier     *minify.M
}

// NewBuilder creates a site builder writing to sitePath and feedPath
func NewBuilder(downloadBase, sitePath, feedPath string, store publish.Store, logger *slog.Logger) *Builder {
	m := minify.New()
	m.AddFunc("text/html", mhtml.Minify)
	return &Builder{
		downloadBase: strings.TrimRight(downloadBase, "/"),
		sitePath:     sitePath,
		feedPath:     feedPath,
		store:        store,
		logger:       logger,
		minifier:     m,
	}
}

// Render regenerates the site and feed from the full ledger. It returns
// false without touching any file when the ledger is empty, so an existing
// page is never replaced by an empty one.
func (b *Builder) Render(entries []ledger.Entry) (bool, error) {
	if len(entries) == 0 {
		b.logger.Info("ledger is empty, skipping site generation")
		return false, nil
	}

	page, err := b.renderPage(entries)
	if err != nil {
		return false, err
	}
	if err := writeFileAtomic(b.sitePath, page); err != nil {
		return false, fmt.Errorf("failed to write site file: %w", err)
	}

	feed, err := b.renderFeed(entries)
	if err != nil {
		return false, err
	}
	if err := writeFileAtomic(b.feedPath, feed); err != nil {
		return false, fmt.Errorf("failed to write feed file: %w", err)
	}

	// New rendered content exists that nobody has pushed yet.
	if err := b.store.Set(publish.PendingPublish); err != nil {
		return false, err
	}

	b.logger.Info("site rendered", "site", b.sitePath, "feed", b.feedPath, "entries", len(entries))
	return true, nil
}

// DownloadURL returns the public URL of one uploaded file
func (b *Builder) DownloadURL(e ledger.Entry) string {
	return b.downloadBase + "/" + e.ItemID + "/" + e.RemotePath
}

func (b *Builder) renderPage(entries []ledger.Entry) ([]byte, error) {
	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, b.buildView(entries)); err != nil {
		return nil, fmt.Errorf("failed to render site template: %w", err)
	}

	var out bytes.Buffer
	if err := b.minifier.Minify("text/html", &out, &buf); err != nil {
		return nil, fmt.Errorf("failed to minify site: %w", err)
	}
	return out.Bytes(), nil
}

func (b *Builder) renderFeed(entries []ledger.Entry) ([]byte, error) {
	feed := &feeds.Feed{
		Title:       "Archived Files",
		Link:        &feeds.Link{Href: b.downloadBase},
		Description: "Files uploaded to the archive",
	}

	// Newest first; the ledger is append-only and therefore oldest first.
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		ts, err := time.Parse(time.RFC3339, e.Timestamp)
		if err != nil {
			ts = time.Time{}
		}
		feed.Items = append(feed.Items, &feeds.Item{
			Title:       e.RemotePath,
			Link:        &feeds.Link{Href: b.DownloadURL(e)},
			Author:      &feeds.Author{Name: e.Uploader},
			Description: fmt.Sprintf("Uploaded by %s into %s", e.Uploader, e.ItemID),
			Id:          e.Hash,
			Created:     ts,
		})
		if feed.Created.IsZero() || ts.After(feed.Created) {
			feed.Created = ts
		}
	}

	atom, err := feed.ToAtom()
	if err != nil {
		return nil, fmt.Errorf("failed to render feed: %w", err)
	}
	return []byte(atom), nil
}

// view model: uploaders at the top level, then nested folders, then files

type fileView struct {
	Name string
	URL  string
}

type dirView struct {
	Name  string
	Dirs  []*dirView
	Files []fileView
}

type uploaderView struct {
	Name string
	Root *dirView
}

type pageView struct {
	Uploaders []uploaderView
}

// buildView groups entries by uploader, then nests them by path segment.
// All levels are sorted so regeneration is deterministic.
func (b *Builder) buildView(entries []ledger.Entry) pageView {
	type node struct {
		dirs  map[string]*node
		files map[string]string
	}
	newNode := func() *node {
		return &node{dirs: make(map[string]*node), files: make(map[string]string)}
	}

	uploaders := make(map[string]*node)
	for _, e := range entries {
		root, ok := uploaders[e.Uploader]
		if !ok {
			root = newNode()
			uploaders[e.Uploader] = root
		}

		segments := strings.Split(e.RemotePath, "/")
		cur := root
		for _, seg := range segments[:len(segments)-1] {
			next, ok := cur.dirs[seg]
			if !ok {
				next = newNode()
				cur.dirs[seg] = next
			}
			cur = next
		}
		cur.files[segments[len(segments)-1]] = b.DownloadURL(e)
	}

	var toView func(name string, n *node) *dirView
	toView = func(name string, n *node) *dirView {
		v := &dirView{Name: name}
		for _, dir := range sortedKeys(n.dirs) {
			v.Dirs = append(v.Dirs, toView(dir, n.dirs[dir]))
		}
		for _, file := range sortedKeys(n.files) {
			v.Files = append(v.Files, fileView{Name: file, URL: n.files[file]})
		}
		return v
	}

	var page pageView
	for _, name := range sortedKeys(uploaders) {
		page.Uploaders = append(page.Uploaders, uploaderView{
			Name: name,
			Root: toView("", uploaders[name]),
		})
	}
	return page
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Archived Files</title>
<style>
body { font-family: sans-serif; line-height: 1.6; }
.folder { color: #2c3e50; }
.file { color: #34495e; }
ul { list-style: none; padding-left: 20px; }
li { margin: 5px 0; }
a { color: #2980b9; text-decoration: none; }
a:hover { text-decoration: underline; }
</style>
</head>
<body>
<h1>Archived Files</h1>
{{range .Uploaders}}<h2 class="uploader">{{.Name}}</h2>
{{template "tree" .Root}}
{{end}}</body>
</html>
{{define "tree"}}<ul>{{range .Dirs}}<li class="folder">{{.Name}}{{template "tree" .}}</li>{{end}}{{range .Files}}<li class="file"><a href="{{.URL}}">{{.Name}}</a></li>{{end}}</ul>{{end}}`))

// writeFileAtomic fully regenerates path via a temp file and rename
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".arcup-tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Chmod(0644); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}
