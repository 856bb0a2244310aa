package proofstorage

import (
	"errors"

	"github.com/ManuelReschke/ConventionPay/internal/pkg/env"
)

const (
	BackendLocal = "local"
	BackendS3    = "s3"
)

// Config selects where uploaded receipts are kept.
type Config struct {
	Backend         string
	LocalDir        string
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	BucketName      string
	EndpointURL     string // Optional for S3-compatible services
}

// LoadConfig reads the storage settings from the environment.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Backend:         env.GetEnv("PROOF_STORAGE", BackendLocal),
		LocalDir:        env.GetEnv("PROOF_LOCAL_DIR", "./uploads/receipts"),
		AccessKeyID:     env.GetEnv("S3_ACCESS_KEY_ID", ""),
		SecretAccessKey: env.GetEnv("S3_SECRET_ACCESS_KEY", ""),
		Region:          env.GetEnv("S3_REGION", "us-east-1"),
		BucketName:      env.GetEnv("S3_BUCKET_NAME", ""),
		EndpointURL:     env.GetEnv("S3_ENDPOINT_URL", ""),
	}

	switch cfg.Backend {
	case BackendLocal:
		if cfg.LocalDir == "" {
			return nil, errors.New("PROOF_LOCAL_DIR is required for local proof storage")
		}
	case BackendS3:
		if cfg.AccessKeyID == "" {
			return nil, errors.New("S3_ACCESS_KEY_ID is required for s3 proof storage")
		}
		if cfg.SecretAccessKey == "" {
			return nil, errors.New("S3_SECRET_ACCESS_KEY is required for s3 proof storage")
		}
		if cfg.BucketName == "" {
			return nil, errors.New("S3_BUCKET_NAME is required for s3 proof storage")
		}
	default:
		return nil, errors.New("PROOF_STORAGE must be local or s3")
	}
	return cfg, nil
}
