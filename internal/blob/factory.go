package blob

import (
	"context"
	"fmt"

	"mute/internal/config"
)

// Open selects a Store from cfg.Blob. The filesystem driver is rooted at
// cfg.Directory.
func Open(ctx context.Context, cfg config.Config) (Store, error) {
	driver := cfg.Blob.Driver
	if driver == "" {
		driver = string(DriverFilesystem)
	}
	switch Driver(driver) {
	case DriverFilesystem:
		return NewFilesystem(cfg.Directory)
	case DriverS3:
		s3 := cfg.Blob.S3
		return NewS3(ctx, S3Config{
			Bucket:          s3.Bucket,
			Region:          s3.Region,
			Endpoint:        s3.Endpoint,
			PathStyle:       s3.PathStyle,
			AccessKeyID:     s3.AccessKeyID,
			SecretAccessKey: s3.SecretAccessKey,
			SessionToken:    s3.SessionToken,
		})
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", driver)
	}
}
