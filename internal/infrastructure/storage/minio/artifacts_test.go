package minio

import (
	"bytes"
	"context"
	"io"
	"net/url"
	"sort"
	"testing"
	"time"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixforge/helixforge/internal/config"
	"github.com/helixforge/helixforge/internal/infrastructure/monitoring/logging"
)

// fakeAPI is an in-memory object store.
type fakeAPI struct {
	buckets map[string]bool
	objects map[string][]byte
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		buckets: map[string]bool{"helixforge": true},
		objects: map[string][]byte{},
	}
}

func (f *fakeAPI) BucketExists(_ context.Context, bucket string) (bool, error) {
	return f.buckets[bucket], nil
}

func (f *fakeAPI) MakeBucket(_ context.Context, bucket string, _ miniogo.MakeBucketOptions) error {
	f.buckets[bucket] = true
	return nil
}

func (f *fakeAPI) PutObject(_ context.Context, bucket, object string, reader io.Reader, _ int64, _ miniogo.PutObjectOptions) (miniogo.UploadInfo, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return miniogo.UploadInfo{}, err
	}
	f.objects[bucket+"/"+object] = data
	return miniogo.UploadInfo{Bucket: bucket, Key: object, Size: int64(len(data))}, nil
}

func (f *fakeAPI) GetObject(_ context.Context, bucket, object string, _ miniogo.GetObjectOptions) (io.ReadCloser, error) {
	data, ok := f.objects[bucket+"/"+object]
	if !ok {
		return nil, miniogo.ErrorResponse{Code: "NoSuchKey"}
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeAPI) StatObject(_ context.Context, bucket, object string, _ miniogo.StatObjectOptions) (miniogo.ObjectInfo, error) {
	data, ok := f.objects[bucket+"/"+object]
	if !ok {
		return miniogo.ObjectInfo{}, miniogo.ErrorResponse{Code: "NoSuchKey"}
	}
	return miniogo.ObjectInfo{Key: object, Size: int64(len(data))}, nil
}

func (f *fakeAPI) RemoveObject(_ context.Context, bucket, object string, _ miniogo.RemoveObjectOptions) error {
	delete(f.objects, bucket+"/"+object)
	return nil
}

func (f *fakeAPI) ListObjects(_ context.Context, bucket string, opts miniogo.ListObjectsOptions) <-chan miniogo.ObjectInfo {
	ch := make(chan miniogo.ObjectInfo)
	go func() {
		defer close(ch)
		var keys []string
		prefix := bucket + "/" + opts.Prefix
		for k := range f.objects {
			if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		for _, k := range keys {
			ch <- miniogo.ObjectInfo{
				Key:          k[len(bucket)+1:],
				Size:         int64(len(f.objects[k])),
				LastModified: time.Now(),
			}
		}
	}()
	return ch
}

func (f *fakeAPI) PresignedGetObject(_ context.Context, bucket, object string, _ time.Duration, _ url.Values) (*url.URL, error) {
	return url.Parse("https://minio.local/" + bucket + "/" + object + "?signed=1")
}

func newTestStore(t *testing.T) (*ArtifactStore, *fakeAPI) {
	t.Helper()
	api := newFakeAPI()
	client := NewClientWithAPI(api, &config.MinIOConfig{Endpoint: "minio.local"}, logging.NewNopLogger())
	return NewArtifactStore(client, logging.NewNopLogger()), api
}

func TestPutGetReceptor(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	pdbqt := []byte("REMARK receptor\nATOM 1\n")
	require.NoError(t, store.PutReceptor(ctx, "ace2", bytes.NewReader(pdbqt), int64(len(pdbqt))))

	rc, err := store.GetReceptor(ctx, "ace2")
	require.NoError(t, err)
	defer rc.Close()
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, pdbqt, got)
}

func TestGetReceptor_NotFound(t *testing.T) {
	store, _ := newTestStore(t)
	_, err := store.GetReceptor(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrArtifactNotFound)
}

func TestPutReceptor_RequiresName(t *testing.T) {
	store, _ := newTestStore(t)
	err := store.PutReceptor(context.Background(), "", bytes.NewReader(nil), 0)
	assert.Error(t, err)
}

func TestSaveGetPose(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	payload := []byte(`{"pose":"docked","affinity":-9.2}`)
	require.NoError(t, store.SavePose(ctx, "run-1", "k1", payload))

	got, err := store.GetPose(ctx, "run-1", "k1")
	require.NoError(t, err)
	assert.JSONEq(t, string(payload), string(got))
}

func TestSavePose_EmptyPayloadIsNoop(t *testing.T) {
	store, api := newTestStore(t)
	require.NoError(t, store.SavePose(context.Background(), "run-1", "k1", nil))
	assert.Empty(t, api.objects)
}

func TestGetPose_NotFound(t *testing.T) {
	store, _ := newTestStore(t)
	_, err := store.GetPose(context.Background(), "run-1", "missing")
	assert.ErrorIs(t, err, ErrArtifactNotFound)
}

func TestPoseURL(t *testing.T) {
	store, _ := newTestStore(t)
	u, err := store.PoseURL(context.Background(), "run-1", "k1")
	require.NoError(t, err)
	assert.Contains(t, u, "runs/run-1/poses/k1.json")
}

func TestListPoses(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SavePose(ctx, "run-1", "k1", []byte(`{"a":1}`)))
	require.NoError(t, store.SavePose(ctx, "run-1", "k2", []byte(`{"b":2}`)))
	require.NoError(t, store.SavePose(ctx, "run-2", "k3", []byte(`{"c":3}`)))

	infos, err := store.ListPoses(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, "k1", infos[0].Key)
	assert.Equal(t, "k2", infos[1].Key)
}

func TestDeleteRunArtifacts(t *testing.T) {
	store, api := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SavePose(ctx, "run-1", "k1", []byte(`{"a":1}`)))
	require.NoError(t, store.SavePose(ctx, "run-2", "k2", []byte(`{"b":2}`)))

	require.NoError(t, store.DeleteRunArtifacts(ctx, "run-1"))
	assert.Len(t, api.objects, 1)

	infos, err := store.ListPoses(ctx, "run-2")
	require.NoError(t, err)
	assert.Len(t, infos, 1)
}

func TestArtifactStore_ClosedClient(t *testing.T) {
	store, _ := newTestStore(t)
	require.NoError(t, store.client.Close())

	err := store.SavePose(context.Background(), "run-1", "k1", []byte("{}"))
	assert.ErrorIs(t, err, ErrClientClosed)
	_, err = store.GetPose(context.Background(), "run-1", "k1")
	assert.ErrorIs(t, err, ErrClientClosed)
}
