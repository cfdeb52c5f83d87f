package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"time"

	"papila/internal/blob"
	"papila/internal/imaging"
	"papila/pkg/domain"
)

// ImageStore owns the image metadata collection and the managed image
// directory. Each image is stored as RET<patient><eye>.jpg, the patient being
// resolved through the referenced diagnosis.
type ImageStore struct {
	table     *table[domain.Image]
	diagnoses domain.DiagnosisLookup
	blobs     blob.Store
	opts      options
}

// NewImageStore loads the image metadata saved at path.
func NewImageStore(path string, diagnoses domain.DiagnosisLookup, blobs blob.Store, opts ...Option) (*ImageStore, error) {
	if diagnoses == nil {
		return nil, errors.New("image store requires a diagnosis lookup")
	}
	if blobs == nil {
		return nil, errors.New("image store requires a blob store")
	}
	t, err := openTable[domain.Image](domain.EntityImage, path)
	if err != nil {
		return nil, err
	}
	s := &ImageStore{table: t, diagnoses: diagnoses, blobs: blobs, opts: applyOptions(opts)}
	s.opts.logger.Debug("image store loaded", "path", path, "records", t.len(), "blob_driver", blobs.Driver())
	return s, nil
}

// Path returns the backing file.
func (s *ImageStore) Path() string { return s.table.path }

// Len returns the number of image records.
func (s *ImageStore) Len() int { return s.table.len() }

// Register validates the eye side, the diagnosis, the source file and the
// collision policy, in that order, then copies the file and stores the
// record under the next free id. The source is read in full before the
// managed directory is touched, and a stored file that was replaced is put
// back when the record cannot be saved.
func (s *ImageStore) Register(ctx context.Context, in domain.NewImage) (domain.Image, error) {
	return instrument(ctx, &s.opts, "register_image", func(ctx context.Context) (domain.Image, error) {
		if !in.Eye.Valid() {
			return domain.Image{}, domain.ErrInvalidEyeSide
		}
		diag, err := s.diagnoses.FindDiagnosis(ctx, in.DiagnosisID)
		if err != nil {
			return domain.Image{}, err
		}
		src, err := readSource(in.SourcePath)
		if err != nil {
			return domain.Image{}, err
		}
		if src.probe.Format == "" {
			s.opts.logger.Warn("source is not a recognised image, copying as is", "source", in.SourcePath)
		} else {
			s.opts.logger.Debug("source image", "format", src.probe.Format, "width", src.probe.Width, "height", src.probe.Height)
		}
		key := domain.ImageFileName(diag.PatientID, in.Eye)
		var undo func()
		img, err := s.table.insert(func(id string) (domain.Image, error) {
			u, err := s.store(ctx, key, src)
			if err != nil {
				return domain.Image{}, err
			}
			undo = u
			return domain.Image{
				ID:          id,
				DiagnosisID: in.DiagnosisID,
				File:        key,
				Description: in.Description,
				Eye:         in.Eye,
				CaptureDate: in.CaptureDate,
			}, nil
		})
		if err != nil {
			if undo != nil {
				undo()
			}
			return domain.Image{}, err
		}
		s.opts.logger.Info("image registered", "id", img.ID, "diagnosis", img.DiagnosisID, "file", img.File)
		return img, nil
	})
}

// source is an image file read into memory.
type source struct {
	path  string
	data  []byte
	probe imaging.Probe
}

func readSource(path string) (source, error) {
	st, err := os.Stat(path)
	if err != nil {
		return source{}, fmt.Errorf("%w: %v", domain.ErrSourceUnreadable, err)
	}
	if st.IsDir() {
		return source{}, fmt.Errorf("%w: %s is a directory", domain.ErrSourceUnreadable, path)
	}
	data, probe, err := imaging.ReadFile(path)
	if err != nil && !errors.Is(err, imaging.ErrUnknownFormat) {
		return source{}, fmt.Errorf("%w: %v", domain.ErrSourceUnreadable, err)
	}
	return source{path: path, data: data, probe: probe}, nil
}

// stored is a blob kept in memory so it can be put back.
type stored struct {
	data []byte
	info blob.Info
}

// store applies the collision policy and writes src under key. The returned
// undo removes what was written and restores the file it replaced. Callers
// hold the table lock.
func (s *ImageStore) store(ctx context.Context, key string, src source) (func(), error) {
	var prior []string
	for _, img := range s.table.rows.All() {
		if img.File == key {
			prior = append(prior, img.ID)
		}
	}
	_, headErr := s.blobs.Head(ctx, key)
	exists := headErr == nil
	if headErr != nil && !errors.Is(headErr, blob.ErrNotExist) {
		return nil, fmt.Errorf("check %s: %w", key, headErr)
	}
	var previous *stored
	if exists || len(prior) > 0 {
		if s.opts.collision == CollisionReject {
			return nil, fmt.Errorf("%w: %s (records %v)", domain.ErrImageConflict, key, prior)
		}
		s.opts.logger.Warn("replacing stored image", "file", key, "prior_records", prior)
		if exists {
			prev, err := s.fetch(ctx, key)
			if err != nil {
				return nil, fmt.Errorf("replace %s: %w", key, err)
			}
			if _, err := s.blobs.Delete(ctx, key); err != nil {
				return nil, fmt.Errorf("replace %s: %w", key, err)
			}
			previous = &prev
		}
	}

	md := src.probe.Metadata()
	if md == nil {
		md = map[string]string{}
	}
	md["source"] = src.path
	if _, err := s.blobs.Put(ctx, key, bytes.NewReader(src.data), blob.PutOptions{ContentType: src.probe.ContentType, Metadata: md}); err != nil {
		s.restore(ctx, key, previous)
		return nil, fmt.Errorf("copy %s: %w", key, err)
	}
	return func() {
		if _, err := s.blobs.Delete(context.WithoutCancel(ctx), key); err != nil {
			s.opts.logger.Error("stored image not rolled back", "file", key, "error", err)
			return
		}
		s.restore(ctx, key, previous)
	}, nil
}

func (s *ImageStore) fetch(ctx context.Context, key string) (stored, error) {
	info, rc, err := s.blobs.Get(ctx, key)
	if err != nil {
		return stored{}, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return stored{}, err
	}
	return stored{data: data, info: info}, nil
}

// restore puts prev back under key. A nil prev means there was nothing there.
func (s *ImageStore) restore(ctx context.Context, key string, prev *stored) {
	if prev == nil {
		return
	}
	opts := blob.PutOptions{ContentType: prev.info.ContentType, Metadata: prev.info.Metadata}
	if _, err := s.blobs.Put(context.WithoutCancel(ctx), key, bytes.NewReader(prev.data), opts); err != nil {
		s.opts.logger.Error("replaced image not restored", "file", key, "error", err)
		return
	}
	s.opts.logger.Warn("replaced image restored", "file", key)
}

// Delete removes image id and then its stored file. The file is kept while
// another record still points at it, which happens after a replacing
// registration under the replace collision policy; it goes with the last
// such record. A file that is already gone is only logged.
func (s *ImageStore) Delete(ctx context.Context, id string) error {
	_, err := instrument(ctx, &s.opts, "delete_image", func(ctx context.Context) (domain.Image, error) {
		img, err := s.table.remove(id)
		if err != nil {
			return domain.Image{}, err
		}
		s.opts.logger.Info("image deleted", "id", id, "file", img.File)
		for other := range s.table.scan(func(o domain.Image) bool { return o.File == img.File }) {
			s.opts.logger.Info("stored file kept, still referenced", "file", img.File, "record", other.ID)
			return img, nil
		}
		removed, err := s.blobs.Delete(ctx, img.File)
		switch {
		case err != nil:
			s.opts.logger.Warn("stored file not removed", "file", img.File, "error", err)
		case !removed:
			s.opts.logger.Warn("stored file already missing", "file", img.File)
		}
		return img, nil
	})
	return err
}

// Get returns image id or domain.ErrNotFound.
func (s *ImageStore) Get(ctx context.Context, id string) (domain.Image, error) {
	return s.table.get(id)
}

// List yields the images of diagnosisID, or all of them when diagnosisID is
// empty.
func (s *ImageStore) List(ctx context.Context, diagnosisID string) iter.Seq[domain.Image] {
	if diagnosisID == "" {
		return s.table.scan(nil)
	}
	return s.table.scan(func(img domain.Image) bool { return img.DiagnosisID == diagnosisID })
}

// Locate returns a URL for the stored file of image id.
func (s *ImageStore) Locate(ctx context.Context, id string) (string, error) {
	img, err := s.table.get(id)
	if err != nil {
		return "", err
	}
	if _, err := s.blobs.Head(ctx, img.File); err != nil {
		return "", fmt.Errorf("image %s: %w", id, err)
	}
	return s.blobs.PresignURL(ctx, img.File, blob.SignedURLOptions{Expiry: time.Hour})
}
