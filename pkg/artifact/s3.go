package artifact

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

// S3Client abstracts the S3 API operations used by [S3].
// The [s3.Client] type satisfies this interface.
type S3Client interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3 implements Store backed by Amazon S3 or any S3-compatible object store
// (MinIO, R2, etc.). Object keys are refs under an optional prefix. S3 puts
// are atomic at the object level, which satisfies the store's visibility
// contract without extra work.
//
// The caller is responsible for configuring the [s3.Client] with appropriate
// credentials, region, and endpoint.
type S3 struct {
	client S3Client
	bucket string
	prefix string
}

var _ Store = (*S3)(nil)

// NewS3 creates an S3-backed Store.
// Prefix is prepended to all object keys; pass "" for no prefix.
func NewS3(client S3Client, bucket, prefix string) *S3 {
	return &S3{client: client, bucket: bucket, prefix: prefix}
}

// key builds the full S3 object key for the given ref.
func (s *S3) key(ref string) string {
	if s.prefix == "" {
		return ref
	}
	return s.prefix + "/" + ref
}

func (s *S3) Put(ctx context.Context, data []byte) (string, error) {
	ref := Ref(data)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(ref)),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return "", fmt.Errorf("artifact: put %s: %w", ref, err)
	}
	return ref, nil
}

func (s *S3) Get(ctx context.Context, ref string) ([]byte, error) {
	if err := checkRef(ref); err != nil {
		return nil, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(ref)),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
		}
		return nil, err
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

func (s *S3) Exists(ctx context.Context, ref string) (bool, error) {
	if err := checkRef(ref); err != nil {
		return false, err
	}
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(ref)),
	})
	if err != nil {
		if isS3NotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Delete removes the object. S3 DeleteObject is already idempotent.
func (s *S3) Delete(ctx context.Context, ref string) error {
	if err := checkRef(ref); err != nil {
		return err
	}
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(ref)),
	})
	return err
}

// Refs pages through ListObjectsV2 under the prefix.
func (s *S3) Refs(ctx context.Context) iter.Seq2[string, error] {
	var listPrefix *string
	strip := 0
	if s.prefix != "" {
		listPrefix = aws.String(s.prefix + "/")
		strip = len(s.prefix) + 1
	}

	return func(yield func(string, error) bool) {
		var token *string
		for {
			out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
				Bucket:            aws.String(s.bucket),
				Prefix:            listPrefix,
				ContinuationToken: token,
			})
			if err != nil {
				yield("", err)
				return
			}
			for _, obj := range out.Contents {
				key := aws.ToString(obj.Key)
				if len(key) < strip {
					continue
				}
				ref := key[strip:]
				if checkRef(ref) != nil {
					continue
				}
				if !yield(ref, nil) {
					return
				}
			}
			if out.IsTruncated == nil || !*out.IsTruncated {
				return
			}
			token = out.NextContinuationToken
		}
	}
}

// isS3NotFound reports whether err indicates the S3 object does not exist.
func isS3NotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return true
		}
	}
	return false
}
