package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/svtfetch/backend/internal/download"
	apperrors "github.com/svtfetch/backend/internal/errors"
	"github.com/svtfetch/backend/internal/logger"
)

const defaultArchiveTimeout = 30 * time.Minute

// ObjectStore is the part of Client the archive needs
type ObjectStore interface {
	StatObject(ctx context.Context, key string) (*ObjectInfo, error)
	PutObject(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error
}

// Archive copies the output files of completed jobs to object storage under
// jobs/<job id>/, next to a job.json snapshot of the finished job.
type Archive struct {
	store   ObjectStore
	retry   *apperrors.RetryConfig
	timeout time.Duration
	log     *logger.Logger
	wg      sync.WaitGroup
}

// ArchiveResult summarises one archived job
type ArchiveResult struct {
	Uploaded []string
	Skipped  []string
	Missing  []string
}

func NewArchive(store ObjectStore) *Archive {
	return &Archive{
		store:   store,
		retry:   apperrors.StorageRetryConfig(),
		timeout: defaultArchiveTimeout,
		log:     logger.Default().WithComponent("archive"),
	}
}

// Hook returns a completion hook that archives in the background. Failures
// are logged and never touch the job record.
func (a *Archive) Hook() download.CompletionHook {
	return func(ctx context.Context, job *download.Job) {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()

			ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.timeout)
			defer cancel()

			res, err := a.ArchiveJob(ctx, job)
			if err != nil {
				a.log.Error(ctx, "failed to archive job", err, map[string]interface{}{"job_id": job.ID})
				return
			}
			a.log.Info(ctx, "job archived", map[string]interface{}{
				"job_id":   job.ID,
				"uploaded": len(res.Uploaded),
				"skipped":  len(res.Skipped),
				"missing":  len(res.Missing),
			})
		}()
	}
}

// Wait blocks until background uploads have finished or ctx expires
func (a *Archive) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ArchiveJob uploads the job's files and its snapshot. Files already stored
// with the same size are skipped.
func (a *Archive) ArchiveJob(ctx context.Context, job *download.Job) (*ArchiveResult, error) {
	res := &ArchiveResult{}

	for _, local := range OutputFiles(job) {
		info, err := os.Stat(local)
		if errors.Is(err, os.ErrNotExist) {
			res.Missing = append(res.Missing, local)
			continue
		}
		if err != nil {
			return res, fmt.Errorf("failed to stat %s: %w", local, err)
		}

		key := objectKey(job.ID, filepath.Base(local))

		existing, err := a.store.StatObject(ctx, key)
		if err == nil && existing.Size == info.Size() {
			res.Skipped = append(res.Skipped, key)
			continue
		}
		if err != nil && !errors.Is(err, ErrObjectNotFound) {
			return res, err
		}

		err = apperrors.Retry(ctx, a.retry, func(ctx context.Context) error {
			return a.uploadFile(ctx, key, local, info.Size())
		})
		if err != nil {
			return res, err
		}
		res.Uploaded = append(res.Uploaded, key)
	}

	snapshot, err := json.MarshalIndent(job, "", "  ")
	if err != nil {
		return res, fmt.Errorf("failed to marshal job: %w", err)
	}
	key := objectKey(job.ID, "job.json")
	err = apperrors.Retry(ctx, a.retry, func(ctx context.Context) error {
		return a.store.PutObject(ctx, key, bytes.NewReader(snapshot), int64(len(snapshot)), "application/json")
	})
	if err != nil {
		return res, err
	}

	return res, nil
}

func (a *Archive) uploadFile(ctx context.Context, key, local string, size int64) error {
	f, err := os.Open(local)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", local, err)
	}
	defer f.Close()

	return a.store.PutObject(ctx, key, f, size, contentType(local))
}

// OutputFiles lists the local files a completed job produced. Skipped
// episodes existed before the job ran and are left out.
func OutputFiles(job *download.Job) []string {
	var names []string
	switch job.Kind {
	case download.KindSingle:
		if job.OutputFile != "" {
			names = append(names, job.OutputFile)
		}
	case download.KindSeason:
		for _, ep := range job.SortedEpisodes() {
			if ep.Status == download.EpisodeCompleted && ep.Filename != "" {
				names = append(names, ep.Filename)
			}
		}
	}

	out := make([]string, 0, len(names))
	for _, name := range names {
		if !filepath.IsAbs(name) {
			name = filepath.Join(job.DownloadDir, name)
		}
		out = append(out, name)
	}
	return out
}

func objectKey(jobID, name string) string {
	return path.Join("jobs", jobID, name)
}

func contentType(name string) string {
	if ct := mime.TypeByExtension(filepath.Ext(name)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
