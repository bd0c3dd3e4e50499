// Package finalizer turns the artifacts of a finished capture run into a
// validated, stored, and recorded archive.
package finalizer

import (
	"archive/zip"
	"context"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"hash"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	jmespath "github.com/jmespath-community/go-jmespath"

	"github.com/capturelab/scoopd/config"
	"github.com/capturelab/scoopd/internal/core"
	"github.com/capturelab/scoopd/internal/domain/model"
	"github.com/capturelab/scoopd/internal/engine"
	"github.com/capturelab/scoopd/internal/storage"
)

// Metadata query expressions against Scoop's datapackage.json and
// datapackage-digest.json documents.
const (
	exprSoftware = "extras.provenanceInfo.software"
	exprVersion  = "extras.provenanceInfo.version"
	exprDigest   = "hash"
)

// summaryStateComplete is the state label Scoop assigns to a fully
// successful capture. Any other label marks the archive partial.
const summaryStateComplete = "COMPLETE"

// Options bundles the dependencies for constructing a Finalizer.
type Options struct {
	Jobs     core.CaptureJobRepository
	Archives core.ArchiveRepository
	Store    core.ObjectStore
	Config   *config.StorageConfig
	Logger   *slog.Logger
}

// Finalizer validates a produced WACZ container, extracts its metadata,
// uploads it, and records the Archive row. It satisfies engine.Finalizer.
type Finalizer struct {
	jobs     core.CaptureJobRepository
	archives core.ArchiveRepository
	store    core.ObjectStore
	cfg      *config.StorageConfig
	logger   *slog.Logger
}

// New constructs a Finalizer from Options.
func New(opts Options) *Finalizer {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Finalizer{
		jobs:     opts.Jobs,
		archives: opts.Archives,
		store:    opts.Store,
		cfg:      opts.Config,
		logger:   logger,
	}
}

// Finalize implements engine.Finalizer. It returns
// engine.ErrNoArchiveProduced (wrapped) when the artifact file is absent so
// the caller can treat the run as an ordinary capture failure. Any other
// error means the artifact existed but could not be finished.
func (f *Finalizer) Finalize(ctx context.Context, job *model.CaptureJob, in engine.FinalizeInput) (*model.Archive, error) {
	info, err := os.Stat(in.ArchivePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", in.ArchivePath, engine.ErrNoArchiveProduced)
		}
		return nil, fmt.Errorf("stat archive: %w", err)
	}

	f.progress(ctx, job, "Processing archive.")
	meta, err := f.inspectContainer(in.ArchivePath)
	if err != nil {
		return nil, err
	}
	digest, err := hashFile(in.ArchivePath, f.cfg.HashAlgorithm)
	if err != nil {
		return nil, fmt.Errorf("hash archive: %w", err)
	}

	summary, partial, screenshotFile := readSummary(in.SummaryPath)

	f.progress(ctx, job, "Saving archive.")
	objectName := model.ArchiveFilename(job.ID)
	overwrote, err := f.store.Put(ctx, objectName, in.ArchivePath)
	if err != nil {
		return nil, fmt.Errorf("store archive: %w", err)
	}
	if overwrote {
		// Object names derive from the job id, so a collision means a
		// previous run for this job already uploaded. Anomalous, not fatal.
		f.logger.Warn("archive object already existed, overwrote",
			"job_id", job.ID, "object", objectName)
	}
	signedURL, err := f.store.SignedURL(ctx, objectName, f.cfg.ArchiveExpiresAfter)
	if err != nil {
		return nil, fmt.Errorf("sign archive url: %w", err)
	}
	expiry, err := storage.ParseExpiry(signedURL)
	if err != nil {
		return nil, err
	}

	var screenshotName *string
	if job.Options.IncludeScreenshot && screenshotFile != "" {
		screenshotName = f.saveScreenshot(ctx, job, in.OutputDir, screenshotFile)
	}

	f.progress(ctx, job, "Saving summary metadata.")
	archive, err := f.archives.Create(ctx, &model.CreateArchiveRequest{
		CaptureJobID:                job.ID,
		Hash:                        digest,
		HashAlgorithm:               f.cfg.HashAlgorithm,
		Size:                        info.Size(),
		DownloadURL:                 signedURL,
		DownloadExpirationTimestamp: expiry,
		CaptureSoftware:             meta.captureSoftware,
		PartialCapture:              partial,
		Summary:                     summary,
		Datapackage:                 meta.datapackage,
		DatapackageDigest:           meta.datapackageDigest,
		ScreenshotName:              screenshotName,
	})
	if err != nil {
		return nil, fmt.Errorf("record archive: %w", err)
	}
	return archive, nil
}

// containerMetadata holds the fields pulled out of the WACZ container.
type containerMetadata struct {
	captureSoftware   string
	datapackage       json.RawMessage
	datapackageDigest string
}

// inspectContainer opens the artifact as a zip and extracts the provenance
// metadata. A file that cannot be opened as a zip is a corrupt artifact, not
// a missing one.
func (f *Finalizer) inspectContainer(archivePath string) (containerMetadata, error) {
	var meta containerMetadata

	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return meta, fmt.Errorf("open wacz container: %w", err)
	}
	defer zr.Close()

	dp, err := readZipFile(&zr.Reader, "datapackage.json")
	if err != nil {
		return meta, fmt.Errorf("read datapackage.json: %w", err)
	}
	meta.datapackage = dp

	var doc any
	if err := json.Unmarshal(dp, &doc); err != nil {
		return meta, fmt.Errorf("parse datapackage.json: %w", err)
	}
	software := searchString(exprSoftware, doc)
	version := searchString(exprVersion, doc)
	meta.captureSoftware = fmt.Sprintf("%s: %s", software, version)

	digestRaw, err := readZipFile(&zr.Reader, "datapackage-digest.json")
	if err != nil {
		return meta, fmt.Errorf("read datapackage-digest.json: %w", err)
	}
	var digestDoc any
	if err := json.Unmarshal(digestRaw, &digestDoc); err != nil {
		return meta, fmt.Errorf("parse datapackage-digest.json: %w", err)
	}
	meta.datapackageDigest = searchString(exprDigest, digestDoc)

	return meta, nil
}

// saveScreenshot uploads the secondary screenshot object. A missing or
// unreadable screenshot never fails the archive.
func (f *Finalizer) saveScreenshot(ctx context.Context, job *model.CaptureJob, outputDir, screenshotFile string) *string {
	src := filepath.Join(outputDir, filepath.Clean(screenshotFile))
	if _, err := os.Stat(src); err != nil {
		f.logger.Warn("screenshot listed in summary but not on disk", "job_id", job.ID, "path", src)
		return nil
	}

	f.progress(ctx, job, "Saving screenshot.")
	name := "archives/" + job.ID + filepath.Ext(screenshotFile)
	if _, err := f.store.Put(ctx, name, src); err != nil {
		f.logger.Warn("failed to store screenshot", "job_id", job.ID, "err", err)
		return nil
	}
	return &name
}

func (f *Finalizer) progress(ctx context.Context, job *model.CaptureJob, description string) {
	job.IncProgress(1, description)
	if err := f.jobs.Save(ctx, job); err != nil {
		f.logger.Error("failed to persist progress", "job_id", job.ID, "err", err)
	}
}

// readSummary parses Scoop's summary.json sidecar. The summary is advisory:
// when it is missing or malformed the archive is recorded as partial with no
// summary document, and the capture still completes.
func readSummary(summaryPath string) (summary json.RawMessage, partial bool, screenshotFile string) {
	raw, err := os.ReadFile(summaryPath)
	if err != nil {
		return nil, true, ""
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, true, ""
	}

	stateName := ""
	idx, idxOK := mustSearch("state", doc).(float64)
	states, statesOK := mustSearch("states", doc).([]any)
	if idxOK && statesOK && int(idx) >= 0 && int(idx) < len(states) {
		stateName, _ = states[int(idx)].(string)
	}

	return raw, stateName != summaryStateComplete, searchString("attachments.screenshot", doc)
}

func readZipFile(zr *zip.Reader, name string) ([]byte, error) {
	rc, err := zr.Open(name)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func hashFile(path, algorithm string) (string, error) {
	var h hash.Hash
	switch algorithm {
	case "sha512":
		h = sha512.New()
	default:
		h = sha256.New()
	}

	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	if _, err := io.Copy(h, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func searchString(expr string, doc any) string {
	v, _ := jmespath.Search(expr, doc)
	s, _ := v.(string)
	return s
}

func mustSearch(expr string, doc any) any {
	v, _ := jmespath.Search(expr, doc)
	return v
}
