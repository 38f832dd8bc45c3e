package awss3

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/url"
	"os"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	"github.com/terrycain/blob-config-sync/pkg/e"
	"github.com/terrycain/blob-config-sync/pkg/s"
)

func TestLocationFromURL(t *testing.T) {
	tables := []struct {
		name      string
		url       string
		expected  s.RemoteLocation
		expectErr bool
	}{
		{
			"bucket with prefix",
			"s3://configs/litellm/prod",
			s.RemoteLocation{Backend: "s3", Container: "configs", BlobPath: "litellm/prod/config.yaml", Auth: s.AuthWorkloadIdentity},
			false,
		},
		{
			"bucket only with region and endpoint",
			"s3://configs?region=eu-west-1&endpoint=http://localhost:4566",
			s.RemoteLocation{Backend: "s3", Container: "configs", BlobPath: "config.yaml", Auth: s.AuthWorkloadIdentity, Region: "eu-west-1", Endpoint: "http://localhost:4566"},
			false,
		},
		{"wrong scheme", "https://configs/config", s.RemoteLocation{}, true},
		{"no bucket", "s3:///config", s.RemoteLocation{}, true},
	}

	for _, table := range tables {
		t.Run(table.name, func(t *testing.T) {
			result, err := LocationFromURL(table.url, "config.yaml")
			if table.expectErr && err == nil {
				t.Errorf("Expected error, got nil")
			} else if !table.expectErr && err != nil {
				t.Errorf("Expected no error, got %#v", err)
			}

			if table.expectErr {
				return
			}

			if diff := cmp.Diff(table.expected, result); diff != "" {
				t.Errorf("LocationFromURL() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	tables := []struct {
		name     string
		err      error
		expected error
	}{
		{"404 request failure", awserr.NewRequestFailure(awserr.New(s3.ErrCodeNoSuchKey, "missing", nil), http.StatusNotFound, "req"), e.ErrNotFound},
		{"403 request failure", awserr.NewRequestFailure(awserr.New("AccessDenied", "denied", nil), http.StatusForbidden, "req"), e.ErrUnauthorized},
		{"500 request failure", awserr.NewRequestFailure(awserr.New("InternalError", "oops", nil), http.StatusInternalServerError, "req"), e.ErrTransientNetwork},
		{"no such bucket code", awserr.New(s3.ErrCodeNoSuchBucket, "missing", nil), e.ErrNotFound},
		{"no credentials", awserr.New("NoCredentialProviders", "no creds", nil), e.ErrUnauthorized},
		{"request error", awserr.New("RequestError", "send request failed", nil), e.ErrTransientNetwork},
		{"unknown", errors.New("weird"), e.ErrUnknown},
	}

	for _, table := range tables {
		t.Run(table.name, func(t *testing.T) {
			err := classify("config.yaml", table.err)
			if !errors.Is(err, table.expected) {
				t.Errorf("expected %v, got %v", table.expected, err)
			}
		})
	}
}

func TestNewRequiresBucket(t *testing.T) {
	if _, err := New(s.RemoteLocation{}); err == nil {
		t.Fatal("expected error for empty bucket")
	}
}

// TestLocalstackFetch runs against localstack when STORAGE_S3 holds its endpoint e.g. http://localhost:4566
func TestLocalstackFetch(t *testing.T) {
	localstack := os.Getenv("STORAGE_S3")
	if localstack == "" {
		t.Skip("Skipped s3 as no env var")
	}
	t.Setenv("AWS_ACCESS_KEY_ID", "test")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test")
	bucket := uuid.NewString()

	sess, err := session.NewSession(&aws.Config{
		Region:           aws.String("us-east-1"),
		Endpoint:         aws.String(localstack),
		DisableSSL:       aws.Bool(strings.HasPrefix(localstack, "http://")),
		Credentials:      credentials.NewStaticCredentials("test", "test", ""),
		S3ForcePathStyle: aws.Bool(true),
	})
	if err != nil {
		t.Fatal(err)
	}

	doc := []byte(`{"model_list": []}`)
	s3Client := s3.New(sess, sess.Config)
	if _, err = s3Client.CreateBucket(&s3.CreateBucketInput{Bucket: aws.String(bucket)}); err != nil {
		t.Fatal(err)
	}
	if _, err = s3Client.PutObject(&s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String("someprefix/config.json"),
		Body:   bytes.NewReader(doc),
	}); err != nil {
		t.Fatal(err)
	}

	query := url.Values{}
	query.Add("endpoint", localstack)
	URL := url.URL{Scheme: "s3", Host: bucket, Path: "someprefix", RawQuery: query.Encode()}

	loc, err := LocationFromURL(URL.String(), "config.json")
	if err != nil {
		t.Fatal(err)
	}
	backend, err := New(loc)
	if err != nil {
		t.Fatal(err)
	}
	if err = backend.Setup(); err != nil {
		t.Fatal(err)
	}

	data, err := backend.Fetch(context.Background(), loc.BlobPath)
	if err != nil {
		t.Fatalf("Failed to fetch object: %s", err.Error())
	}
	if diff := cmp.Diff(doc, data); diff != "" {
		t.Fatal(diff)
	}

	if _, err = backend.Fetch(context.Background(), "someprefix/missing.json"); !errors.Is(err, e.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
