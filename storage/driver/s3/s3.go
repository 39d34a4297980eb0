// Package s3 provides a storagedriver.StorageDriver implementation to store
// blobs in Amazon S3 (or an S3-compatible endpoint).
//
// This package leverages the official aws client library for interfacing
// with S3.
//
// Keep in mind that classic S3 guarantees only read-after-write consistency
// for new objects, but no read-after-update or list-after-write consistency.
// Callers relying on List for coordination must not assume freshness from
// this backend, and the driver exposes no conditional-create capability.
package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"

	storagedriver "github.com/loquia/sessionstore/storage/driver"
	"github.com/loquia/sessionstore/storage/driver/base"
)

// DriverName is the kind this driver is selected by in configuration.
const DriverName = "s3"

// listMax is the largest amount of objects you can request from S3 in a
// single list call.
const listMax = 1000

// DriverParameters encapsulates all of the driver parameters after all
// values have been set.
type DriverParameters struct {
	AccessKey      string
	SecretKey      string
	SessionToken   string
	Bucket         string
	Region         string
	RegionEndpoint string
	ForcePathStyle bool
	Secure         bool
	RootDirectory  string
}

type driver struct {
	S3            *s3.S3
	Bucket        string
	RootDirectory string
}

type baseEmbed struct {
	base.Base
}

// Driver is a storagedriver.StorageDriver implementation backed by Amazon
// S3. Objects are stored at absolute keys in the provided bucket under the
// configured root directory.
type Driver struct {
	baseEmbed
}

// FromParameters constructs a new Driver with the given parameters.
// Required parameters: Bucket, Region (unless RegionEndpoint is set).
func FromParameters(params DriverParameters) (*Driver, error) {
	if params.Bucket == "" {
		return nil, fmt.Errorf("s3: no bucket parameter provided")
	}
	if params.Region == "" && params.RegionEndpoint == "" {
		return nil, fmt.Errorf("s3: no region parameter provided")
	}

	awsConfig := aws.NewConfig()
	if params.AccessKey != "" || params.SecretKey != "" {
		awsConfig.WithCredentials(credentials.NewStaticCredentials(
			params.AccessKey, params.SecretKey, params.SessionToken))
	}
	if params.RegionEndpoint != "" {
		awsConfig.WithEndpoint(params.RegionEndpoint)
		awsConfig.WithS3ForcePathStyle(params.ForcePathStyle)
	}
	if params.Region != "" {
		awsConfig.WithRegion(params.Region)
	}
	awsConfig.WithDisableSSL(!params.Secure)

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, fmt.Errorf("s3: failed to create session: %w", err)
	}

	d := &driver{
		S3:            s3.New(sess),
		Bucket:        params.Bucket,
		RootDirectory: params.RootDirectory,
	}

	return &Driver{
		baseEmbed: baseEmbed{
			Base: base.Base{
				StorageDriver: d,
			},
		},
	}, nil
}

// Implement the storagedriver.StorageDriver interface.

func (d *driver) Name() string {
	return DriverName
}

// GetContent retrieves the content stored at "path" as a []byte.
func (d *driver) GetContent(ctx context.Context, path string) ([]byte, error) {
	resp, err := d.S3.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(d.Bucket),
		Key:    aws.String(d.s3Path(path)),
	})
	if err != nil {
		return nil, parseError(path, err)
	}
	defer resp.Body.Close()

	contents, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, storagedriver.Error{DriverName: DriverName, Detail: err}
	}
	return contents, nil
}

// PutContent stores the []byte content at a location designated by "path".
// S3's PUT is atomic per object, which satisfies the whole-blob replace
// contract.
func (d *driver) PutContent(ctx context.Context, path string, contents []byte) error {
	_, err := d.S3.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(d.Bucket),
		Key:         aws.String(d.s3Path(path)),
		ContentType: aws.String("application/octet-stream"),
		Body:        bytes.NewReader(contents),
	})
	return parseError(path, err)
}

// Stat retrieves the FileInfo for the given path.
func (d *driver) Stat(ctx context.Context, path string) (storagedriver.FileInfo, error) {
	resp, err := d.S3.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(d.Bucket),
		Key:    aws.String(d.s3Path(path)),
	})
	if err != nil {
		return nil, parseError(path, err)
	}

	fi := storagedriver.FileInfoFields{Path: path}
	if resp.ContentLength != nil {
		fi.Size = *resp.ContentLength
	}
	if resp.LastModified != nil {
		fi.ModTime = *resp.LastModified
	}
	return storagedriver.FileInfoInternal{FileInfoFields: fi}, nil
}

// Delete removes the object stored at "path". S3 DeleteObject succeeds on
// absent keys, which matches the idempotence contract directly.
func (d *driver) Delete(ctx context.Context, path string) error {
	_, err := d.S3.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(d.Bucket),
		Key:    aws.String(d.s3Path(path)),
	})
	if err != nil {
		return parseError(path, err)
	}
	return nil
}

// List returns every object path under the given prefix in lexicographic
// order, following continuation tokens until the listing is fully
// materialized.
func (d *driver) List(ctx context.Context, prefix string) ([]string, error) {
	listPrefix := prefix
	if !strings.HasSuffix(listPrefix, "/") {
		listPrefix += "/"
	}

	input := &s3.ListObjectsV2Input{
		Bucket:  aws.String(d.Bucket),
		Prefix:  aws.String(d.s3Path(listPrefix)),
		MaxKeys: aws.Int64(listMax),
	}

	keys := []string{}
	for {
		resp, err := d.S3.ListObjectsV2WithContext(ctx, input)
		if err != nil {
			return nil, parseError(prefix, err)
		}

		for _, obj := range resp.Contents {
			keys = append(keys, d.keyToPath(*obj.Key))
		}

		if resp.IsTruncated == nil || !*resp.IsTruncated {
			break
		}
		input.ContinuationToken = resp.NextContinuationToken
	}

	sort.Strings(keys)
	return keys, nil
}

// s3Path returns the s3 object key for the given storage driver path.
func (d *driver) s3Path(path string) string {
	return strings.TrimLeft(strings.TrimRight(d.RootDirectory, "/")+path, "/")
}

func (d *driver) keyToPath(key string) string {
	root := strings.TrimLeft(strings.TrimRight(d.RootDirectory, "/"), "/")
	return "/" + strings.TrimPrefix(strings.TrimPrefix(key, root), "/")
}

func parseError(path string, err error) error {
	if err == nil {
		return nil
	}
	if s3Err, ok := err.(awserr.Error); ok {
		switch s3Err.Code() {
		case s3.ErrCodeNoSuchKey, "NotFound":
			return storagedriver.PathNotFoundError{Path: path, DriverName: DriverName}
		}
	}
	return storagedriver.Error{DriverName: DriverName, Detail: err}
}
