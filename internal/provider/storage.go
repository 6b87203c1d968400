package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"google.golang.org/api/option"

	"narration-service/internal/entity"
)

// LocalAudioStore keeps chunk audio and merged files on local disk:
//
//	<dir>/<item_id>/chunk-0000.mp3
//	<dir>/<item_id>/merged.mp3
type LocalAudioStore struct {
	Dir string
}

func (s LocalAudioStore) itemDir(itemID uuid.UUID) (string, error) {
	dir := filepath.Join(s.Dir, itemID.String())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", &Error{Code: entity.CodeUnknown, Op: "prepare audio dir", Err: err}
	}
	return dir, nil
}

func (s LocalAudioStore) WriteChunk(_ context.Context, itemID uuid.UUID, index int, audio []byte) (string, int64, error) {
	dir, err := s.itemDir(itemID)
	if err != nil {
		return "", 0, err
	}
	p := filepath.Join(dir, fmt.Sprintf("chunk-%04d.mp3", index))
	if err := os.WriteFile(p, audio, 0o644); err != nil {
		return "", 0, &Error{Code: entity.CodeUnknown, Op: "write chunk", Err: err}
	}
	return p, int64(len(audio)), nil
}

// Merge concatenates chunk files in the given order. MP3 frames are self
// delimiting, so byte concatenation yields a playable stream.
func (s LocalAudioStore) Merge(ctx context.Context, itemID uuid.UUID, parts []string) (string, error) {
	if len(parts) == 0 {
		return "", &Error{Code: entity.CodeMergeFailed, Op: "merge", Err: errors.New("no chunks to merge")}
	}
	dir, err := s.itemDir(itemID)
	if err != nil {
		return "", err
	}
	out := filepath.Join(dir, "merged.mp3")
	tmp := out + ".tmp"

	f, err := os.Create(tmp)
	if err != nil {
		return "", &Error{Code: entity.CodeMergeFailed, Op: "merge", Err: err}
	}
	for _, p := range parts {
		if err := ctx.Err(); err != nil {
			f.Close()
			os.Remove(tmp)
			return "", err
		}
		if err := appendFile(f, p); err != nil {
			f.Close()
			os.Remove(tmp)
			return "", &Error{Code: entity.CodeMergeFailed, Op: "merge", Err: err}
		}
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return "", &Error{Code: entity.CodeMergeFailed, Op: "merge", Err: err}
	}
	if err := os.Rename(tmp, out); err != nil {
		return "", &Error{Code: entity.CodeMergeFailed, Op: "merge", Err: err}
	}
	return out, nil
}

func appendFile(dst io.Writer, src string) error {
	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(dst, f)
	return err
}

// Cleanup removes the working directory of an item.
func (s LocalAudioStore) Cleanup(itemID uuid.UUID) error {
	return os.RemoveAll(filepath.Join(s.Dir, itemID.String()))
}

// FileUploader publishes final audio by copying it into a local directory.
type FileUploader struct {
	Dir string
}

func (u FileUploader) Upload(ctx context.Context, localPath, name string) (string, error) {
	if err := os.MkdirAll(u.Dir, 0o755); err != nil {
		return "", &Error{Code: entity.CodeUploadFailed, Op: "upload", Err: err}
	}
	dst := filepath.Join(u.Dir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", &Error{Code: entity.CodeUploadFailed, Op: "upload", Err: err}
	}
	in, err := os.Open(localPath)
	if err != nil {
		return "", &Error{Code: entity.CodeUploadFailed, Op: "upload", Err: err}
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return "", &Error{Code: entity.CodeUploadFailed, Op: "upload", Err: err}
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return "", &Error{Code: entity.CodeUploadFailed, Op: "upload", Err: err}
	}
	if err := out.Close(); err != nil {
		return "", &Error{Code: entity.CodeUploadFailed, Op: "upload", Err: err}
	}
	return dst, ctx.Err()
}

// GCSUploader publishes final audio to a Cloud Storage bucket and returns
// a gs:// URI.
type GCSUploader struct {
	client *storage.Client
	bucket string
	prefix string
}

type GCSConfig struct {
	Bucket       string
	Prefix       string
	EmulatorHost string // e.g. http://localhost:4443, no auth
}

func NewGCSUploader(ctx context.Context, cfg GCSConfig) (*GCSUploader, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, errors.New("gcs: bucket is required")
	}
	var opts []option.ClientOption
	if host := strings.TrimRight(strings.TrimSpace(cfg.EmulatorHost), "/"); host != "" {
		_ = os.Setenv("STORAGE_EMULATOR_HOST", host)
		opts = append(opts, option.WithoutAuthentication())
	} else {
		opts = append(opts, option.WithScopes(storage.ScopeReadWrite))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gcs: create client: %w", err)
	}
	return &GCSUploader{client: client, bucket: cfg.Bucket, prefix: strings.Trim(cfg.Prefix, "/")}, nil
}

func (u *GCSUploader) objectName(name string) string {
	if u.prefix == "" {
		return name
	}
	return path.Join(u.prefix, name)
}

func (u *GCSUploader) Upload(ctx context.Context, localPath, name string) (string, error) {
	in, err := os.Open(localPath)
	if err != nil {
		return "", &Error{Code: entity.CodeUploadFailed, Op: "upload", Err: err}
	}
	defer in.Close()

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	obj := u.objectName(name)
	w := u.client.Bucket(u.bucket).Object(obj).NewWriter(ctx)
	w.ContentType = "audio/mpeg"
	if _, err := io.Copy(w, in); err != nil {
		_ = w.Close()
		return "", uploadError(err)
	}
	if err := w.Close(); err != nil {
		return "", uploadError(err)
	}
	return fmt.Sprintf("gs://%s/%s", u.bucket, obj), nil
}

func uploadError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Code: entity.CodeTimeout, Op: "upload", Err: err}
	}
	return &Error{Code: entity.CodeUploadFailed, Op: "upload", Err: err}
}

func (u *GCSUploader) Close() error { return u.client.Close() }
