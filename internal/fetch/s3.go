package fetch

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/horizon-research/AriaDatasetProcessing/internal/utils"
)

// Manifests occasionally point at bucket-hosted mirrors with s3:// URLs;
// those go through the S3 transfer manager instead of plain HTTP.

func IsS3URL(rawURL string) bool {
	return strings.HasPrefix(rawURL, "s3://")
}

func parseS3URL(rawURL string) (string, string, error) {
	parts := strings.SplitN(strings.TrimPrefix(rawURL, "s3://"), "/", 2)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid S3 URL: %s", rawURL)
	}
	return parts[0], parts[1], nil
}

type s3ProgressWriter struct {
	writer     io.WriterAt
	progressCh chan<- int64
}

func (pw *s3ProgressWriter) WriteAt(p []byte, off int64) (int, error) {
	n, err := pw.writer.WriteAt(p, off)
	if n > 0 {
		pw.progressCh <- int64(n)
	}
	return n, err
}

func GetS3Client() (*s3.Client, error) {
	profile := os.Getenv("AWS_PROFILE")
	if profile == "" {
		profile = "default"
	}
	cfg, err := config.LoadDefaultConfig(context.Background(), config.WithSharedConfigProfile(profile), config.WithRetryMode("adaptive"))
	if err != nil {
		return nil, fmt.Errorf("error loading AWS config: %v", err)
	}
	s3Options := func(o *s3.Options) {
		o.DisableLogOutputChecksumValidationSkipped = true
	}
	return s3.NewFromConfig(cfg, s3Options), nil
}

func GetS3ObjectSize(rawURL string, s3Client *s3.Client) (int64, error) {
	bucket, key, err := parseS3URL(rawURL)
	if err != nil {
		return -1, err
	}
	headObj, err := s3Client.HeadObject(context.Background(), &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return -1, fmt.Errorf("error heading S3 object: %v", err)
	}
	if headObj.ContentLength == nil {
		return -1, nil
	}
	return *headObj.ContentLength, nil
}

// PerformS3Download fetches an s3:// object through the same staging-file
// lifecycle as the HTTP path. The transfer manager writes parts out of
// order, so there is no resume; the staging file is rewritten each attempt.
func PerformS3Download(rawURL string, outputPath string, s3Client *s3.Client, progressCh chan<- int64) error {
	bucket, key, err := parseS3URL(rawURL)
	if err != nil {
		return err
	}
	outputDir := filepath.Dir(outputPath)
	stagingPath := outputPath + utils.StagingSuffix
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("error creating output directory: %v", err)
	}
	file, err := os.Create(stagingPath)
	if err != nil {
		return fmt.Errorf("error creating staging file: %v", err)
	}
	defer file.Close()

	downloader := manager.NewDownloader(s3Client, func(d *manager.Downloader) {
		d.PartSize = 2 * utils.DefaultBufferSize
		d.Concurrency = 4
		d.BufferProvider = manager.NewPooledBufferedWriterReadFromProvider(utils.DefaultBufferSize)
	})
	progressWriter := &s3ProgressWriter{
		writer:     file,
		progressCh: progressCh,
	}
	_, err = downloader.Download(context.Background(), progressWriter, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("error downloading S3 object: %v", err)
	}
	if err := os.Rename(stagingPath, outputPath); err != nil {
		return fmt.Errorf("error renaming (finalizing) output file: %v", err)
	}
	return nil
}
