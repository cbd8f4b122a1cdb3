package s3downl

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type getObjectAPI interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// GetDownloadFunc returns a downloader for fixture urls. Urls of the
// form https://<bucket>.s3.<region>.amazonaws.com/<key> go through the S3
// API, anything else is fetched over plain HTTP.
func GetDownloadFunc(ctx context.Context, region string, logger *slog.Logger) (func(ctx context.Context, url string, path string) error, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}
	return newDownloadFunc(s3.NewFromConfig(cfg), http.DefaultClient, logger), nil
}

func newDownloadFunc(s3Client getObjectAPI, httpClient *http.Client, logger *slog.Logger) func(ctx context.Context, url string, path string) error {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "s3downl")

	return func(ctx context.Context, rawUrl string, path string) error {
		u, err := url.Parse(rawUrl)
		if err != nil {
			return fmt.Errorf("failed to parse url %s: %w", rawUrl, err)
		}
		if u.Scheme != "https" && u.Scheme != "http" {
			return fmt.Errorf("invalid url scheme: %s", u.Scheme)
		}

		var body io.ReadCloser
		if bucket, key, ok := parseS3Url(u); ok {
			logger.Debug("downloading file from s3", "bucket", bucket, "key", key)
			obj, err := s3Client.GetObject(ctx, &s3.GetObjectInput{
				Bucket: aws.String(bucket),
				Key:    aws.String(key),
			})
			if err != nil {
				return fmt.Errorf("failed to download file %s from s3: %w (bucket: %s, key: %s)", rawUrl, err, bucket, key)
			}
			body = obj.Body
		} else {
			logger.Debug("downloading file over http", "url", rawUrl)
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawUrl, nil)
			if err != nil {
				return err
			}
			resp, err := httpClient.Do(req)
			if err != nil {
				return fmt.Errorf("failed to download file %s: %w", rawUrl, err)
			}
			if resp.StatusCode != http.StatusOK {
				resp.Body.Close()
				return fmt.Errorf("failed to download file %s: %s", rawUrl, resp.Status)
			}
			body = resp.Body
		}
		defer body.Close()

		out, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create file %s: %w", path, err)
		}
		defer out.Close()

		if _, err := io.Copy(out, body); err != nil {
			return fmt.Errorf("failed to write file %s: %w", path, err)
		}
		return nil
	}
}

// parseS3Url extracts bucket and key, assuming format bucket.s3.region.amazonaws.com
func parseS3Url(u *url.URL) (bucket string, key string, ok bool) {
	if u.Scheme != "https" {
		return "", "", false
	}
	hostParts := strings.Split(u.Host, ".")
	if len(hostParts) < 4 || hostParts[1] != "s3" || !strings.HasSuffix(u.Host, ".amazonaws.com") {
		return "", "", false
	}
	return hostParts[0], strings.TrimPrefix(u.Path, "/"), true
}
