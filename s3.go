package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/url"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

type S3Client struct {
	Client *s3.Client
}

func (s *S3Client) HeadObject(ctx context.Context, bucket, key string) (*HeadResult, error) {
	head, headErr := s.Client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if headErr != nil {
		if isNotFoundErr(headErr) {
			return &HeadResult{Found: false}, nil
		}
		return nil, headErr
	}

	result := &HeadResult{
		Found:    true,
		Size:     head.ContentLength,
		Metadata: head.Metadata,
	}
	if head.ETag != nil {
		result.ETag = *head.ETag
	}
	return result, nil
}

func (s *S3Client) PutObject(ctx context.Context, bucket, key string, body []byte, metadata map[string]string, contentType string) error {
	putReq := &s3.PutObjectInput{
		Bucket:   aws.String(bucket),
		Key:      aws.String(key),
		Body:     bytes.NewReader(body),
		Metadata: metadata,
	}
	if contentType != "" {
		putReq.ContentType = aws.String(contentType)
	}
	_, putErr := s.Client.PutObject(ctx, putReq)
	return putErr
}

func (s *S3Client) CopyObjectMetadata(ctx context.Context, bucket, key string, metadata map[string]string) error {
	source := bucket + "/" + key
	copyReq := &s3.CopyObjectInput{
		Bucket:            aws.String(bucket),
		CopySource:        aws.String(url.PathEscape(source)),
		Key:               aws.String(key),
		Metadata:          metadata,
		MetadataDirective: types.MetadataDirectiveReplace,
	}
	_, copyErr := s.Client.CopyObject(ctx, copyReq)
	return copyErr
}

func (s *S3Client) ListObjects(ctx context.Context, bucket, prefix string, fn listPageFunc) error {
	listParams := &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
	}
	if prefix != "" {
		listParams.Prefix = aws.String(prefix)
	}
	paginator := s3.NewListObjectsV2Paginator(s.Client, listParams, func(o *s3.ListObjectsV2PaginatorOptions) {})
	for paginator.HasMorePages() {
		currentPage, pageErr := paginator.NextPage(ctx)
		if pageErr != nil {
			return pageErr
		}
		page := make([]RemoteObject, 0, len(currentPage.Contents))
		for _, object := range currentPage.Contents {
			remote := RemoteObject{Key: *object.Key, Size: object.Size}
			if object.ETag != nil {
				remote.ETag = *object.ETag
			}
			page = append(page, remote)
		}
		if !fn(page) {
			return nil
		}
	}
	return nil
}

func (s *S3Client) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	object, getErr := s.Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if getErr != nil {
		return nil, getErr
	}
	return object.Body, nil
}

func (s *S3Client) UploadFile(ctx context.Context, bucket, key string, file *os.File, metadata map[string]string, contentType string, observer ProgressObserver) error {
	// The part size must match the fingerprint chunk size or multipart
	// ETags stop lining up with computed fingerprints.
	uploader := manager.NewUploader(s.Client, func(u *manager.Uploader) {
		u.PartSize = etagPartSize
	})

	var body io.Reader = file
	if observer != nil {
		body = newProgressReader(file, observer)
	}
	putReq := &s3.PutObjectInput{
		Bucket:   aws.String(bucket),
		Key:      aws.String(key),
		Body:     body,
		Metadata: metadata,
	}
	if contentType != "" {
		putReq.ContentType = aws.String(contentType)
	}
	_, putErr := uploader.Upload(ctx, putReq)
	return putErr
}

// isNotFoundErr covers the modeled NotFound error plus the raw error codes
// HeadObject surfaces when the response body is empty.
func isNotFoundErr(err error) bool {
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "NotFound" || code == "NoSuchKey" || code == "404"
	}
	return false
}
