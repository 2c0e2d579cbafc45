package s3_test

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	s3aws "github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/swarmcert/swarmcert/integration/storage/s3"
)

// mockClient is an in-memory S3 backend for exercising the store without
// a network.
type mockClient struct {
	mu      sync.Mutex
	objects map[string][]byte

	putErr  error
	getErr  error
	listErr error
}

func newMockClient() *mockClient {
	return &mockClient{objects: map[string][]byte{}}
}

func (m *mockClient) PutObject(ctx context.Context, params *s3aws.PutObjectInput, optFns ...func(*s3aws.Options)) (*s3aws.PutObjectOutput, error) {
	if m.putErr != nil {
		return nil, m.putErr
	}
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[*params.Key] = data
	return &s3aws.PutObjectOutput{}, nil
}

func (m *mockClient) GetObject(ctx context.Context, params *s3aws.GetObjectInput, optFns ...func(*s3aws.Options)) (*s3aws.GetObjectOutput, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[*params.Key]
	if !ok {
		return nil, &s3types.NoSuchKey{}
	}
	return &s3aws.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (m *mockClient) HeadObject(ctx context.Context, params *s3aws.HeadObjectInput, optFns ...func(*s3aws.Options)) (*s3aws.HeadObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[*params.Key]; !ok {
		return nil, &s3types.NotFound{}
	}
	return &s3aws.HeadObjectOutput{}, nil
}

func (m *mockClient) ListObjectsV2(ctx context.Context, params *s3aws.ListObjectsV2Input, optFns ...func(*s3aws.Options)) (*s3aws.ListObjectsV2Output, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var keys []string
	for key := range m.objects {
		if strings.HasPrefix(key, *params.Prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	out := &s3aws.ListObjectsV2Output{}
	for _, key := range keys {
		out.Contents = append(out.Contents, s3types.Object{
			Key:  aws.String(key),
			Size: aws.Int64(int64(len(m.objects[key]))),
		})
	}
	return out, nil
}

// mockPaginator serves a single pre-computed page.
type mockPaginator struct {
	client *mockClient
	params *s3aws.ListObjectsV2Input
	done   bool
}

func (p *mockPaginator) HasMorePages() bool { return !p.done }

func (p *mockPaginator) NextPage(ctx context.Context, optFns ...func(*s3aws.Options)) (*s3aws.ListObjectsV2Output, error) {
	p.done = true
	return p.client.ListObjectsV2(ctx, p.params)
}

func mockPaginatorFactory(mc *mockClient) func(s3.Client, *s3aws.ListObjectsV2Input) s3.ListObjectsV2Paginator {
	return func(_ s3.Client, params *s3aws.ListObjectsV2Input) s3.ListObjectsV2Paginator {
		return &mockPaginator{client: mc, params: params}
	}
}
