package mediaapp

import (
	"bytes"
	"context"
	"errors"
	"image"
	"net/http"
	"strings"

	"feedcore/internal/core/errs"
	"feedcore/internal/core/media"
	"feedcore/internal/core/task"
	postPort "feedcore/internal/ports/post"
	storagePort "feedcore/internal/ports/storage"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"
)

type MediaService struct {
	ObjectStore    storagePort.ObjectStore
	PostRepository postPort.PostRepository
	variants       []media.Variant
	maxUpload      int64
	logger         *zap.Logger
}

// NewMediaService builds the service. The first variant is the one a post
// references once processing finishes.
func NewMediaService(store storagePort.ObjectStore, postRepo postPort.PostRepository, variants []media.Variant, maxUpload int64, logger *zap.Logger) *MediaService {
	return &MediaService{
		ObjectStore:    store,
		PostRepository: postRepo,
		variants:       variants,
		maxUpload:      maxUpload,
		logger:         logger,
	}
}

// StoreUpload saves an uploaded image under its content hash and returns the key.
func (s *MediaService) StoreUpload(ctx context.Context, data []byte) (string, error) {
	if len(data) == 0 {
		return "", errs.Validation("empty upload")
	}
	if s.maxUpload > 0 && int64(len(data)) > s.maxUpload {
		return "", errs.Validation("upload of %d bytes exceeds %d", len(data), s.maxUpload)
	}
	contentType := http.DetectContentType(data)
	if !strings.HasPrefix(contentType, "image/") {
		return "", errs.Validation("unsupported upload type %s", contentType)
	}

	key := media.UploadKey(data)
	if _, err := s.ObjectStore.PutIfAbsent(ctx, key, data, contentType); err != nil {
		return "", err
	}
	return key, nil
}

// Process decodes source and writes every variant under a key derived from
// the source bytes and the variant. Processing the same input again writes
// nothing. A source that cannot be decoded is a validation error.
func (s *MediaService) Process(ctx context.Context, source []byte, variants []media.Variant) ([]media.Derivative, error) {
	if len(variants) == 0 {
		return nil, errs.Validation("no media variants configured")
	}
	img, err := imaging.Decode(bytes.NewReader(source), imaging.AutoOrientation(true))
	if err != nil {
		return nil, errs.Validation("decode image: %v", err)
	}
	digest := media.Digest(source)

	out := make([]media.Derivative, 0, len(variants))
	for _, v := range variants {
		key := media.DerivativeKey(digest, v)
		exists, err := s.ObjectStore.Exists(ctx, key)
		if err != nil {
			return nil, err
		}
		if exists {
			out = append(out, media.Derivative{Key: key, Variant: v.Name})
			continue
		}

		data, err := render(img, v)
		if err != nil {
			return nil, err
		}
		created, err := s.ObjectStore.PutIfAbsent(ctx, key, data, v.ContentType())
		if err != nil {
			return nil, err
		}
		out = append(out, media.Derivative{Key: key, Variant: v.Name, Created: created})
	}
	return out, nil
}

func render(img image.Image, v media.Variant) ([]byte, error) {
	var dst image.Image = img
	if v.Width > 0 && v.Height > 0 {
		switch v.Mode {
		case media.ModeFill:
			dst = imaging.Fill(img, v.Width, v.Height, imaging.Center, imaging.Lanczos)
		default:
			b := img.Bounds()
			if b.Dx() > v.Width || b.Dy() > v.Height {
				dst = imaging.Fit(img, v.Width, v.Height, imaging.Lanczos)
			}
		}
	}

	format := imaging.JPEG
	if v.Format == media.FormatPNG {
		format = imaging.PNG
	}
	quality := v.Quality
	if quality <= 0 {
		quality = 85
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, dst, format, imaging.JPEGQuality(quality)); err != nil {
		return nil, errs.Validation("encode %s: %v", v.Name, err)
	}
	return buf.Bytes(), nil
}

// HandleMediaTask runs a media.process task: it renders the post's source
// image and points the post at the primary derivative. An undecodable source
// clears the post's media so it never references a missing object.
func (s *MediaService) HandleMediaTask(ctx context.Context, t *task.Task) error {
	var payload task.MediaPayload
	if err := t.Decode(&payload); err != nil {
		return err
	}
	if payload.PostID == "" || payload.SourceKey == "" {
		return errs.Validation("media task %s needs post id and source key", t.ID)
	}
	log := s.logger.With(zap.String("postID", payload.PostID), zap.String("source", payload.SourceKey))

	p, err := s.PostRepository.FindByID(ctx, payload.PostID)
	if err != nil {
		return err
	}
	if p.IsDeleted() {
		return nil
	}

	source, err := s.ObjectStore.Get(ctx, payload.SourceKey)
	if errors.Is(err, errs.ErrNotFound) || errors.Is(err, errs.ErrValidation) {
		log.Warn("media source unusable, clearing", zap.Error(err))
		if cerr := s.PostRepository.ClearMedia(ctx, payload.PostID); cerr != nil {
			return cerr
		}
		return errs.Validation("media source %s: %v", payload.SourceKey, err)
	}
	if err != nil {
		return err
	}

	derivatives, err := s.Process(ctx, source, s.variants)
	if errors.Is(err, errs.ErrValidation) {
		log.Warn("media transform failed, clearing", zap.Error(err))
		if cerr := s.PostRepository.ClearMedia(ctx, payload.PostID); cerr != nil {
			return cerr
		}
		return err
	}
	if err != nil {
		return err
	}

	if err := s.PostRepository.SetMediaRef(ctx, payload.PostID, derivatives[0].Key); err != nil {
		return err
	}
	log.Info("media processed", zap.String("ref", derivatives[0].Key), zap.Int("variants", len(derivatives)))
	return nil
}
