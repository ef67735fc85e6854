package minio

import (
	"bytes"
	"context"
	"io"
	"path"
	"strings"
	"time"

	miniogo "github.com/minio/minio-go/v7"

	"github.com/helixforge/helixforge/internal/infrastructure/monitoring/logging"
	"github.com/helixforge/helixforge/pkg/errors"
)

const (
	receptorPrefix = "receptors/"
	runPrefix      = "runs/"

	receptorContentType = "chemical/x-pdbqt"
	poseContentType     = "application/json"
)

var ErrArtifactNotFound = errors.New(errors.ErrCodeNotFound, "artifact not found")

// ArtifactInfo describes one stored artifact.
type ArtifactInfo struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

// ArtifactStore persists receptor structures and docked pose payloads.
// Receptors are shared inputs; poses are per-run, per-candidate outputs.
type ArtifactStore struct {
	client *Client
	logger logging.Logger
}

func NewArtifactStore(client *Client, log logging.Logger) *ArtifactStore {
	return &ArtifactStore{client: client, logger: log.Named("artifacts")}
}

func receptorKey(name string) string {
	return receptorPrefix + name + ".pdbqt"
}

func poseKey(runID, candidateKey string) string {
	return runPrefix + runID + "/poses/" + candidateKey + ".json"
}

// PutReceptor stores a receptor structure under its name.
func (s *ArtifactStore) PutReceptor(ctx context.Context, name string, r io.Reader, size int64) error {
	if s.client.isClosed() {
		return ErrClientClosed
	}
	if name == "" {
		return errors.New(errors.ErrCodeValidation, "receptor name is required")
	}

	_, err := s.client.api.PutObject(ctx, s.client.Bucket(), receptorKey(name), r, size,
		miniogo.PutObjectOptions{ContentType: receptorContentType})
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeExternalService, "failed to store receptor")
	}

	s.logger.Info("receptor stored", logging.String("name", name))
	return nil
}

// GetReceptor streams a stored receptor.  The caller closes the reader.
func (s *ArtifactStore) GetReceptor(ctx context.Context, name string) (io.ReadCloser, error) {
	if s.client.isClosed() {
		return nil, ErrClientClosed
	}

	key := receptorKey(name)
	if _, err := s.client.api.StatObject(ctx, s.client.Bucket(), key, miniogo.StatObjectOptions{}); err != nil {
		if isNotFound(err) {
			return nil, ErrArtifactNotFound
		}
		return nil, errors.Wrap(err, errors.ErrCodeExternalService, "failed to stat receptor")
	}

	obj, err := s.client.api.GetObject(ctx, s.client.Bucket(), key, miniogo.GetObjectOptions{})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeExternalService, "failed to fetch receptor")
	}
	return obj, nil
}

// SavePose stores the oracle's docked pose payload for one candidate.
func (s *ArtifactStore) SavePose(ctx context.Context, runID, candidateKey string, payload []byte) error {
	if s.client.isClosed() {
		return ErrClientClosed
	}
	if len(payload) == 0 {
		return nil
	}

	_, err := s.client.api.PutObject(ctx, s.client.Bucket(), poseKey(runID, candidateKey),
		bytes.NewReader(payload), int64(len(payload)),
		miniogo.PutObjectOptions{ContentType: poseContentType})
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeExternalService, "failed to store pose")
	}
	return nil
}

// GetPose fetches a stored pose payload.
func (s *ArtifactStore) GetPose(ctx context.Context, runID, candidateKey string) ([]byte, error) {
	if s.client.isClosed() {
		return nil, ErrClientClosed
	}

	key := poseKey(runID, candidateKey)
	if _, err := s.client.api.StatObject(ctx, s.client.Bucket(), key, miniogo.StatObjectOptions{}); err != nil {
		if isNotFound(err) {
			return nil, ErrArtifactNotFound
		}
		return nil, errors.Wrap(err, errors.ErrCodeExternalService, "failed to stat pose")
	}

	obj, err := s.client.api.GetObject(ctx, s.client.Bucket(), key, miniogo.GetObjectOptions{})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeExternalService, "failed to fetch pose")
	}
	defer obj.Close()

	payload, err := io.ReadAll(obj)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeExternalService, "failed to read pose")
	}
	return payload, nil
}

// PoseURL returns a presigned download link for one pose.
func (s *ArtifactStore) PoseURL(ctx context.Context, runID, candidateKey string) (string, error) {
	if s.client.isClosed() {
		return "", ErrClientClosed
	}

	u, err := s.client.api.PresignedGetObject(ctx, s.client.Bucket(),
		poseKey(runID, candidateKey), s.client.cfg.PresignExpiry, nil)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeExternalService, "failed to presign pose url")
	}
	return u.String(), nil
}

// ListPoses enumerates the poses stored for one run.
func (s *ArtifactStore) ListPoses(ctx context.Context, runID string) ([]ArtifactInfo, error) {
	if s.client.isClosed() {
		return nil, ErrClientClosed
	}

	prefix := runPrefix + runID + "/poses/"
	var infos []ArtifactInfo
	for obj := range s.client.api.ListObjects(ctx, s.client.Bucket(),
		miniogo.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, errors.Wrap(obj.Err, errors.ErrCodeExternalService, "failed to list poses")
		}
		infos = append(infos, ArtifactInfo{
			Key:          strings.TrimSuffix(path.Base(obj.Key), ".json"),
			Size:         obj.Size,
			LastModified: obj.LastModified,
		})
	}
	return infos, nil
}

// DeleteRunArtifacts removes every artifact a run produced.
func (s *ArtifactStore) DeleteRunArtifacts(ctx context.Context, runID string) error {
	if s.client.isClosed() {
		return ErrClientClosed
	}

	prefix := runPrefix + runID + "/"
	var deleted int
	for obj := range s.client.api.ListObjects(ctx, s.client.Bucket(),
		miniogo.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return errors.Wrap(obj.Err, errors.ErrCodeExternalService, "failed to list run artifacts")
		}
		if err := s.client.api.RemoveObject(ctx, s.client.Bucket(), obj.Key,
			miniogo.RemoveObjectOptions{}); err != nil {
			return errors.Wrap(err, errors.ErrCodeExternalService, "failed to delete run artifact")
		}
		deleted++
	}

	s.logger.Info("run artifacts deleted",
		logging.String("run_id", runID),
		logging.Int("objects", deleted))
	return nil
}

func isNotFound(err error) bool {
	return miniogo.ToErrorResponse(err).Code == "NoSuchKey"
}
