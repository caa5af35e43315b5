package s3fetch

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// fakeS3 serves objects from memory. ListObjectsV2 pages through keys in
// sorted order, pageSize at a time.
type fakeS3 struct {
	objects  map[string]map[string][]byte
	pageSize int
	listErr  error

	listCalls int
	getCalls  int
}

func newFakeS3(pageSize int) *fakeS3 {
	return &fakeS3{objects: make(map[string]map[string][]byte), pageSize: pageSize}
}

func (f *fakeS3) put(bucket, key string, body []byte) {
	if f.objects[bucket] == nil {
		f.objects[bucket] = make(map[string][]byte)
	}
	f.objects[bucket][key] = body
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}

	prefix := aws.ToString(in.Prefix)
	var keys []string
	for k := range f.objects[aws.ToString(in.Bucket)] {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	start := 0
	if in.ContinuationToken != nil {
		n, err := strconv.Atoi(*in.ContinuationToken)
		if err != nil {
			return nil, errors.New("bad continuation token")
		}
		start = n
	}
	end := min(start+f.pageSize, len(keys))

	out := &s3.ListObjectsV2Output{KeyCount: aws.Int32(int32(end - start))}
	for _, k := range keys[start:end] {
		out.Contents = append(out.Contents, types.Object{
			Key:  aws.String(k),
			Size: aws.Int64(int64(len(f.objects[aws.ToString(in.Bucket)][k]))),
		})
	}
	if end < len(keys) {
		out.IsTruncated = aws.Bool(true)
		out.NextContinuationToken = aws.String(strconv.Itoa(end))
	} else {
		out.IsTruncated = aws.Bool(false)
	}
	return out, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.getCalls++
	body, ok := f.objects[aws.ToString(in.Bucket)][aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{Message: aws.String("not found")}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(body))}, nil
}
