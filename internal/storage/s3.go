package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/knosphere/backend/internal/util"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// NewS3Client builds an S3 client from AWS_* environment variables. Path
// style addressing keeps MinIO and other self-hosted endpoints working.
func NewS3Client(ctx context.Context) (*s3.Client, error) {
	region := util.GetEnvString("AWS_REGION", "us-east-1")
	endpoint := util.GetEnv("AWS_ENDPOINT")
	accessKey := util.GetEnv("AWS_ACCESS_KEY")
	secretKey := util.GetEnv("AWS_SECRET_KEY")

	cfg, err := config.LoadDefaultConfig(
		ctx,
		config.WithRegion(region),
		config.WithBaseEndpoint(endpoint),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			accessKey,
			secretKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load S3 config: %w", err)
	}

	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = true
	}), nil
}

// Archive stores raw document content in an object bucket, keyed by owner
// and document id. The database keeps the working copy; the archive is the
// durable original that re-ingestion reads from.
type Archive struct {
	client *s3.Client
	bucket string
}

// NewArchive creates an archive over an existing S3 client.
func NewArchive(client *s3.Client, bucket string) *Archive {
	return &Archive{client: client, bucket: bucket}
}

func (a *Archive) key(ownerID, documentID string) string {
	return fmt.Sprintf("documents/%s/%s.txt", ownerID, documentID)
}

// PutDocument archives the raw content of a document and returns its key.
func (a *Archive) PutDocument(ctx context.Context, ownerID, documentID string, content []byte) (string, error) {
	key := a.key(ownerID, documentID)
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(content),
		ContentType: aws.String("text/plain; charset=utf-8"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to archive document %s: %w", documentID, err)
	}
	return key, nil
}

// GetDocument reads an archived document back.
func (a *Archive) GetDocument(ctx context.Context, ownerID, documentID string) ([]byte, error) {
	result, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(a.key(ownerID, documentID)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read archived document %s: %w", documentID, err)
	}
	defer result.Body.Close()

	content, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read archive contents: %w", err)
	}
	return content, nil
}

// DeleteDocument removes an archived document.
func (a *Archive) DeleteDocument(ctx context.Context, ownerID, documentID string) error {
	_, err := a.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(a.key(ownerID, documentID)),
	})
	if err != nil {
		return fmt.Errorf("failed to delete archived document %s: %w", documentID, err)
	}
	return nil
}

// ListOwnerDocuments returns the archive keys of one owner's documents.
func (a *Archive) ListOwnerDocuments(ctx context.Context, ownerID string) ([]string, error) {
	prefix := fmt.Sprintf("documents/%s/", ownerID)

	var keys []string
	listInput := &s3.ListObjectsV2Input{
		Bucket: aws.String(a.bucket),
		Prefix: aws.String(prefix),
	}

	for {
		listOutput, err := a.client.ListObjectsV2(ctx, listInput)
		if err != nil {
			return nil, fmt.Errorf("failed to list archive with prefix %s: %w", prefix, err)
		}
		for _, obj := range listOutput.Contents {
			if obj.Key != nil {
				keys = append(keys, *obj.Key)
			}
		}
		if listOutput.IsTruncated != nil && *listOutput.IsTruncated {
			listInput.ContinuationToken = listOutput.NextContinuationToken
		} else {
			break
		}
	}
	return keys, nil
}

// PresignDownload returns a time-limited download URL for an archived
// document. When AWS_PUBLIC_ENDPOINT is set the URL is signed against it,
// so the signature matches the Host header clients will actually send.
func (a *Archive) PresignDownload(ctx context.Context, ownerID, documentID string) (string, error) {
	client := a.client
	publicEndpoint := util.GetEnv("AWS_PUBLIC_ENDPOINT")
	prefix := ""

	if publicEndpoint != "" {
		publicURL, err := url.Parse(publicEndpoint)
		if err != nil || publicURL.Scheme == "" || publicURL.Host == "" {
			return "", fmt.Errorf("invalid AWS_PUBLIC_ENDPOINT: %s", publicEndpoint)
		}
		prefix = strings.TrimSuffix(publicURL.Path, "/")

		client = s3.NewFromConfig(
			aws.Config{
				Region:      a.client.Options().Region,
				Credentials: a.client.Options().Credentials,
				HTTPClient:  a.client.Options().HTTPClient,
			},
			func(o *s3.Options) {
				o.BaseEndpoint = aws.String(fmt.Sprintf("%s://%s", publicURL.Scheme, publicURL.Host))
				o.UsePathStyle = true
			},
		)
	}

	presigner := s3.NewPresignClient(client)
	out, err := presigner.PresignGetObject(
		ctx,
		&s3.GetObjectInput{
			Bucket: aws.String(a.bucket),
			Key:    aws.String(a.key(ownerID, documentID)),
		},
		s3.WithPresignExpires(15*time.Minute),
	)
	if err != nil {
		return "", fmt.Errorf("failed to presign download: %w", err)
	}

	if prefix != "" {
		signedURL, parseErr := url.Parse(out.URL)
		if parseErr != nil {
			return "", fmt.Errorf("failed to parse presigned url: %w", parseErr)
		}
		signedURL.Path = prefix + signedURL.Path
		return signedURL.String(), nil
	}
	return out.URL, nil
}
