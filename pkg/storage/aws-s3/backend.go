package awss3

import (
	"context"
	"errors"
	"io"
	"net/url"
	p "path"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"

	"github.com/terrycain/blob-config-sync/pkg/e"
	"github.com/terrycain/blob-config-sync/pkg/s"
)

const defaultRegion = "us-east-1"

type Backend struct {
	Session *session.Session
	Client  *s3.S3

	bucket   string
	region   string
	endpoint string
}

// LocationFromURL turns s3://bucket/prefix?region=eu-west-1&endpoint=http://localhost:4566 into a RemoteLocation,
// the blob name is appended to the prefix.
func LocationFromURL(bucketURL, blobName string) (s.RemoteLocation, error) {
	parsedURL, err := url.Parse(bucketURL)
	if err != nil {
		return s.RemoteLocation{}, err
	}

	if parsedURL.Scheme != "s3" || parsedURL.Host == "" {
		//goland:noinspection GoErrorStringFormat
		return s.RemoteLocation{}, errors.New("S3 url should be in the format of s3://bucket/prefix")
	}

	query := parsedURL.Query()
	return s.RemoteLocation{
		Backend:   "s3",
		Container: parsedURL.Host,
		BlobPath:  p.Join(strings.TrimPrefix(parsedURL.Path, "/"), blobName),
		Auth:      s.AuthWorkloadIdentity,
		Region:    query.Get("region"),
		Endpoint:  query.Get("endpoint"),
	}, nil
}

// New relies on the ambient AWS credential chain (env, IRSA web identity, instance role).
func New(loc s.RemoteLocation) (*Backend, error) {
	if loc.Container == "" {
		return &Backend{}, errors.New("s3 bucket is required")
	}

	region := loc.Region
	if region == "" {
		region = defaultRegion
	}

	return &Backend{
		bucket:   loc.Container,
		region:   region,
		endpoint: loc.Endpoint,
	}, nil
}

func (b *Backend) Setup() error {
	cfg := &aws.Config{Region: aws.String(b.region)}
	if b.endpoint != "" {
		cfg.Endpoint = aws.String(b.endpoint)
		cfg.DisableSSL = aws.Bool(strings.HasPrefix(b.endpoint, "http://"))
		cfg.S3ForcePathStyle = aws.Bool(true)
	}

	sess, err := session.NewSession(cfg)
	if err != nil {
		return err
	}

	b.Session = sess
	b.Client = s3.New(sess)
	return nil
}

func (b *Backend) Type() string {
	return "s3"
}

func (b *Backend) Fetch(ctx context.Context, blobPath string) ([]byte, error) {
	resp, err := b.Client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(blobPath),
	})
	if err != nil {
		return nil, classify(blobPath, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, e.NewFetchError(e.FetchTransientNetwork, blobPath, err)
	}

	return data, nil
}

func classify(blobPath string, err error) error {
	var reqErr awserr.RequestFailure
	if errors.As(err, &reqErr) && reqErr.StatusCode() != 0 {
		return e.NewFetchError(e.FetchKindFromStatus(reqErr.StatusCode()), blobPath, err)
	}

	var awsErr awserr.Error
	if errors.As(err, &awsErr) {
		switch awsErr.Code() {
		case s3.ErrCodeNoSuchKey, s3.ErrCodeNoSuchBucket:
			return e.NewFetchError(e.FetchNotFound, blobPath, err)
		case "AccessDenied", "NoCredentialProviders", "ExpiredToken", "InvalidAccessKeyId":
			return e.NewFetchError(e.FetchUnauthorized, blobPath, err)
		case request.ErrCodeRequestError, request.ErrCodeResponseTimeout, request.CanceledErrorCode:
			return e.NewFetchError(e.FetchTransientNetwork, blobPath, err)
		}
		if e.IsNetworkError(awsErr.OrigErr()) {
			return e.NewFetchError(e.FetchTransientNetwork, blobPath, err)
		}
	}

	if e.IsNetworkError(err) {
		return e.NewFetchError(e.FetchTransientNetwork, blobPath, err)
	}

	return e.NewFetchError(e.FetchUnknown, blobPath, err)
}
