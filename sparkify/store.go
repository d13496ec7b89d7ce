package sparkify

import (
	"github.com/pkg/errors"
	"github.com/sparkify/lake"
	"github.com/sparkify/lake/aws/s3"
	"github.com/sparkify/lake/file"
)

// StoreConfig configures the S3 stores opened by OpenStore. It is ignored for
// local paths.
type StoreConfig struct {
	Credentials Credentials
	Anonymous   bool
	Region      string
	Endpoint    string
}

// OpenStore returns a store for uri: an S3 store for s3://, s3a:// and s3n://
// URIs and a local store for anything else.
func OpenStore(uri string, cfg StoreConfig) (lake.Store, error) {
	if !s3.IsURI(uri) {
		s, err := file.NewStore(uri)
		if err != nil {
			return nil, errors.Wrapf(err, "opening %s", uri)
		}
		return s, nil
	}
	opts := []s3.StoreOption{s3.OptStoreURI(uri)}
	if cfg.Region != "" {
		opts = append(opts, s3.OptStoreRegion(cfg.Region))
	}
	if cfg.Endpoint != "" {
		opts = append(opts, s3.OptStoreEndpoint(cfg.Endpoint))
	}
	switch {
	case cfg.Anonymous:
		opts = append(opts, s3.OptStoreAnonymous())
	case !cfg.Credentials.Empty():
		opts = append(opts, s3.OptStoreCredentials(cfg.Credentials.AccessKeyID, cfg.Credentials.SecretAccessKey))
	}
	s, err := s3.NewStore(opts...)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", uri)
	}
	return s, nil
}
