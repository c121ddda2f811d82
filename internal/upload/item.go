package upload

import (
	"fmt"
	"path/filepath"
	"regexp"
	"time"

	"github.com/schaermu/arcup/internal/archive"
)

// itemIDTimestamp is the compact timestamp suffix of generated item ids.
const itemIDTimestamp = "20060102150405"

var unsafeIDChars = regexp.MustCompile(`[^a-zA-Z0-9-]`)

// Item is the remote container one run's files are grouped under. The
// service creates it lazily on the first file upload.
type Item struct {
	ID         string
	Uploader   string
	SourceBase string
}

// NewItem derives a per-run item from the uploader identity and the source
// directory. The id is unique per run through its timestamp component.
func NewItem(uploader, sourceDir string, now time.Time) Item {
	base := filepath.Base(filepath.Clean(sourceDir))
	sanitized := unsafeIDChars.ReplaceAllString(base, "_")
	return Item{
		ID:         fmt.Sprintf("%s_%s_%s", uploader, sanitized, now.Format(itemIDTimestamp)),
		Uploader:   uploader,
		SourceBase: base,
	}
}

// Metadata returns the item metadata attached to every upload,
// parameterized on the configured collection and license.
func (it Item) Metadata(collection, licenseURL string) archive.Metadata {
	return archive.Metadata{
		Title:       fmt.Sprintf("%s's Upload: %s", it.Uploader, it.SourceBase),
		MediaType:   "data",
		Collection:  collection,
		Description: fmt.Sprintf("Uploaded via arcup by %s", it.Uploader),
		Creator:     it.Uploader,
		Subject:     "user-upload",
		LicenseURL:  licenseURL,
	}
}
