package s3

import (
	"os"
	"testing"

	storagedriver "github.com/loquia/sessionstore/storage/driver"
	"github.com/loquia/sessionstore/storage/driver/testsuites"
)

// TestS3DriverSuite exercises a live S3 (or compatible) endpoint. Skipped
// unless the bucket and credentials are provided in the environment.
func TestS3DriverSuite(t *testing.T) {
	bucket := os.Getenv("TEST_STORAGE_S3_BUCKET")
	if bucket == "" {
		t.Skip("please set TEST_STORAGE_S3_BUCKET to run s3 driver tests")
	}

	params := DriverParameters{
		AccessKey:      os.Getenv("TEST_STORAGE_S3_ACCESS_KEY"),
		SecretKey:      os.Getenv("TEST_STORAGE_S3_SECRET_KEY"),
		Bucket:         bucket,
		Region:         os.Getenv("TEST_STORAGE_S3_REGION"),
		RegionEndpoint: os.Getenv("TEST_STORAGE_S3_ENDPOINT"),
		ForcePathStyle: os.Getenv("TEST_STORAGE_S3_ENDPOINT") != "",
		Secure:         true,
	}

	testsuites.Run(t, func(t *testing.T) storagedriver.StorageDriver {
		p := params
		p.RootDirectory = "/" + t.Name()
		d, err := FromParameters(p)
		if err != nil {
			t.Fatal(err)
		}
		return d
	})
}

func TestFromParametersValidation(t *testing.T) {
	if _, err := FromParameters(DriverParameters{}); err == nil {
		t.Error("expected error for missing bucket")
	}
	if _, err := FromParameters(DriverParameters{Bucket: "b"}); err == nil {
		t.Error("expected error for missing region")
	}
}

func TestS3PathMapping(t *testing.T) {
	d := &driver{RootDirectory: "/prefix"}

	if got := d.s3Path("/users/1/profile"); got != "prefix/users/1/profile" {
		t.Errorf("unexpected s3 key: %q", got)
	}
	if got := d.keyToPath("prefix/users/1/profile"); got != "/users/1/profile" {
		t.Errorf("unexpected path: %q", got)
	}

	bare := &driver{}
	if got := bare.s3Path("/doc"); got != "doc" {
		t.Errorf("unexpected s3 key without prefix: %q", got)
	}
	if got := bare.keyToPath("doc"); got != "/doc" {
		t.Errorf("unexpected path without prefix: %q", got)
	}
}
