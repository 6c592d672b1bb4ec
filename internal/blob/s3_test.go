package blob

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finpasser/internal/config"
	"finpasser/internal/logger"
	apperrors "finpasser/pkg/errors"
)

type fakeS3 struct {
	mu       sync.Mutex
	objects  map[string][]byte
	buckets  map[string]bool
	putErr   error
	getErr   error
	headErr  error
	created  int
	lastType string
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string][]byte{}, buckets: map[string]bool{}}
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Key)] = data
	f.lastType = aws.ToString(in.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &s3types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) HeadBucket(_ context.Context, in *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	if f.headErr != nil {
		return nil, f.headErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.buckets[aws.ToString(in.Bucket)] {
		return nil, &s3types.NotFound{}
	}
	return &s3.HeadBucketOutput{}, nil
}

func (f *fakeS3) CreateBucket(_ context.Context, in *s3.CreateBucketInput, _ ...func(*s3.Options)) (*s3.CreateBucketOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.buckets[aws.ToString(in.Bucket)] {
		return nil, &s3types.BucketAlreadyOwnedByYou{}
	}
	f.buckets[aws.ToString(in.Bucket)] = true
	f.created++
	return &s3.CreateBucketOutput{}, nil
}

func responseError(code int) error {
	return &awshttp.ResponseError{
		ResponseError: &smithyhttp.ResponseError{
			Response: &smithyhttp.Response{Response: &http.Response{StatusCode: code}},
			Err:      errors.New(http.StatusText(code)),
		},
	}
}

func TestS3Store_PutGetRoundTrip(t *testing.T) {
	fake := newFakeS3()
	store := newS3Store(fake, "router-inbound", "us-east-1", logger.NopLogger())
	payload := []byte("<Document>pain.001</Document>")

	ref, err := store.Put(context.Background(), "7654321/abc-sample.xml", bytes.NewReader(payload), int64(len(payload)), "application/xml")
	require.NoError(t, err)
	assert.Equal(t, "7654321/abc-sample.xml", ref)
	assert.Equal(t, "application/xml", fake.lastType)

	body, err := store.Get(context.Background(), ref)
	require.NoError(t, err)
	defer body.Close()
	got, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestS3Store_GetMissing(t *testing.T) {
	store := newS3Store(newFakeS3(), "b", "", logger.NopLogger())
	_, err := store.Get(context.Background(), "nope")
	assert.True(t, apperrors.IsBlobNotFound(err))
}

func TestS3Store_ErrorClassification(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want *apperrors.Error
	}{
		{"rejected write", responseError(http.StatusForbidden), apperrors.ErrWriteFailed},
		{"server error", responseError(http.StatusServiceUnavailable), apperrors.ErrStorageUnavailable},
		{"network error", errors.New("dial tcp 127.0.0.1:9000: connection refused"), apperrors.ErrStorageUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := newFakeS3()
			fake.putErr = tt.err
			store := newS3Store(fake, "b", "", logger.NopLogger())
			_, err := store.Put(context.Background(), "k", strings.NewReader("x"), 1, "")
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestS3Store_CancelledContext(t *testing.T) {
	store := newS3Store(newFakeS3(), "b", "", logger.NopLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := store.Put(ctx, "k", strings.NewReader("x"), 1, "")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestS3Store_EnsureBucketIdempotent(t *testing.T) {
	fake := newFakeS3()
	store := newS3Store(fake, "router-inbound", "us-east-1", logger.NopLogger())

	require.NoError(t, store.EnsureBucket(context.Background()))
	require.NoError(t, store.EnsureBucket(context.Background()))
	assert.Equal(t, 1, fake.created)
	require.NoError(t, store.Ping(context.Background()))
}

func TestS3Store_EnsureBucketUnavailable(t *testing.T) {
	fake := newFakeS3()
	fake.headErr = errors.New("connection refused")
	store := newS3Store(fake, "b", "", logger.NopLogger())

	err := store.EnsureBucket(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrStorageUnavailable)
	assert.Equal(t, 0, fake.created)
}

func TestCircuitBreakerStore_OpensOnOutage(t *testing.T) {
	fake := newFakeS3()
	fake.putErr = errors.New("connection refused")
	store := NewCircuitBreakerStore(
		newS3Store(fake, "b", "", logger.NopLogger()),
		config.CircuitBreakerConfig{Enabled: true, FailureRatio: 0.5, MinRequests: 2},
	)

	for i := 0; i < 2; i++ {
		_, err := store.Put(context.Background(), "k", strings.NewReader("x"), 1, "")
		require.ErrorIs(t, err, apperrors.ErrStorageUnavailable)
	}
	assert.Equal(t, "open", store.State())

	_, err := store.Put(context.Background(), "k", strings.NewReader("x"), 1, "")
	require.ErrorIs(t, err, apperrors.ErrStorageUnavailable)
	assert.Contains(t, err.Error(), "circuit breaker is open")
}

func TestCircuitBreakerStore_NotFoundKeepsClosed(t *testing.T) {
	store := NewCircuitBreakerStore(
		newS3Store(newFakeS3(), "b", "", logger.NopLogger()),
		config.CircuitBreakerConfig{Enabled: true, FailureRatio: 0.5, MinRequests: 2},
	)
	for i := 0; i < 4; i++ {
		_, err := store.Get(context.Background(), "missing")
		require.True(t, apperrors.IsBlobNotFound(err))
	}
	assert.Equal(t, "closed", store.State())
}

func TestCircuitBreakerStore_Disabled(t *testing.T) {
	store := NewCircuitBreakerStore(newS3Store(newFakeS3(), "b", "", logger.NopLogger()), config.CircuitBreakerConfig{})
	assert.Equal(t, "disabled", store.State())
}

func TestSanitizeFilename(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: "7654321_sample_pain001.xml", want: "7654321_sample_pain001.xml"},
		{name: "strips directories", in: "../../etc/passwd", want: "passwd"},
		{name: "windows path", in: `C:\Users\a\pay file.xml`, want: "pay_file.xml"},
		{name: "empty", in: "", want: "payload"},
		{name: "only dots", in: "..", want: "payload"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, SanitizeFilename(tt.in))
		})
	}
}

func TestNewKeyUnique(t *testing.T) {
	a := NewKey("7654321", "sample.xml")
	b := NewKey("7654321", "sample.xml")
	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasPrefix(a, "7654321/"))
	assert.True(t, strings.HasSuffix(a, "-sample.xml"))
}
