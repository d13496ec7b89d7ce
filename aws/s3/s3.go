// Copyright 2017 Pilosa Corp.
//
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions
// are met:
//
// 1. Redistributions of source code must retain the above copyright
// notice, this list of conditions and the following disclaimer.
//
// 2. Redistributions in binary form must reproduce the above copyright
// notice, this list of conditions and the following disclaimer in the
// documentation and/or other materials provided with the distribution.
//
// 3. Neither the name of the copyright holder nor the names of its
// contributors may be used to endorse or promote products derived
// from this software without specific prior written permission.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND
// CONTRIBUTORS "AS IS" AND ANY EXPRESS OR IMPLIED WARRANTIES,
// INCLUDING, BUT NOT LIMITED TO, THE IMPLIED WARRANTIES OF
// MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE ARE
// DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR
// CONTRIBUTORS BE LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL,
// SPECIAL, EXEMPLARY, OR CONSEQUENTIAL DAMAGES (INCLUDING,
// BUT NOT LIMITED TO, PROCUREMENT OF SUBSTITUTE GOODS OR
// SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS
// INTERRUPTION) HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY,
// WHETHER IN CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING
// NEGLIGENCE OR OTHERWISE) ARISING IN ANY WAY OUT OF THE USE
// OF THIS SOFTWARE, EVEN IF ADVISED OF THE POSSIBILITY OF SUCH
// DAMAGE.

// Package s3 implements lake.Store on Amazon S3 and S3-compatible object
// stores.
package s3

import (
	"io"
	"net/url"
	"sort"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/pkg/errors"
	"github.com/sparkify/lake"
)

var _ lake.Store = &Store{}

// Schemes lists the URI schemes which name an S3 location.
var Schemes = []string{"s3", "s3a", "s3n"}

// IsURI reports whether uri uses one of Schemes.
func IsURI(uri string) bool {
	for _, scheme := range Schemes {
		if strings.HasPrefix(uri, scheme+"://") {
			return true
		}
	}
	return false
}

// ParseURI splits an s3://, s3a:// or s3n:// URI into bucket and key prefix.
// A non-empty prefix always ends in "/".
func ParseURI(uri string) (bucket, prefix string, err error) {
	if !IsURI(uri) {
		return "", "", errors.Errorf("'%s' is not an S3 URI (want one of %v)", uri, Schemes)
	}
	u, err := url.Parse(uri)
	if err != nil {
		return "", "", errors.Wrapf(err, "parsing %s", uri)
	}
	if u.Host == "" {
		return "", "", errors.Errorf("no bucket in '%s'", uri)
	}
	return u.Host, lake.DirKey(u.Path), nil
}

// StoreOption is a functional option type for s3.Store.
type StoreOption func(s *Store)

// OptStoreURI sets the bucket and prefix for a Store from a URI, see
// ParseURI. Errors are reported by NewStore.
func OptStoreURI(uri string) StoreOption {
	return func(s *Store) {
		s.bucket, s.prefix, s.err = ParseURI(uri)
		if s.err == nil {
			s.scheme = uri[:strings.Index(uri, "://")]
		}
	}
}

// OptStoreBucket is a StoreOption which sets the S3 bucket for a Store.
func OptStoreBucket(bucket string) StoreOption {
	return func(s *Store) {
		s.bucket = bucket
	}
}

// OptStorePrefix sets the key prefix under which the Store is rooted.
func OptStorePrefix(prefix string) StoreOption {
	return func(s *Store) {
		s.prefix = lake.DirKey(prefix)
	}
}

// OptStoreRegion is a StoreOption which sets the AWS region for a Store.
func OptStoreRegion(region string) StoreOption {
	return func(s *Store) {
		s.region = region
	}
}

// OptStoreCredentials gives the Store a static access key pair. Without it
// the default AWS credential chain is used. The credentials are scoped to
// this Store's session; nothing is written to the process environment.
func OptStoreCredentials(accessKeyID, secretAccessKey string) StoreOption {
	return func(s *Store) {
		s.creds = credentials.NewStaticCredentials(accessKeyID, secretAccessKey, "")
	}
}

// OptStoreAnonymous makes unsigned requests, for public buckets.
func OptStoreAnonymous() StoreOption {
	return func(s *Store) {
		s.creds = credentials.AnonymousCredentials
	}
}

// OptStoreEndpoint points the Store at an S3-compatible service such as
// MinIO, using path-style addressing.
func OptStoreEndpoint(endpoint string) StoreOption {
	return func(s *Store) {
		s.endpoint = endpoint
	}
}

// Store is a lake.Store backed by a bucket and key prefix in S3.
type Store struct {
	scheme   string
	bucket   string
	prefix   string
	region   string
	endpoint string
	creds    *credentials.Credentials
	err      error

	sess     *session.Session
	s3       *s3.S3
	uploader *s3manager.Uploader
}

// NewStore returns a new Store with the options applied.
func NewStore(opts ...StoreOption) (*Store, error) {
	s := &Store{
		scheme: "s3",
		region: "us-west-2",
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.err != nil {
		return nil, s.err
	}
	if s.bucket == "" {
		return nil, errors.New("no bucket given")
	}

	cfg := &aws.Config{
		Region:      aws.String(s.region),
		Credentials: s.creds,
	}
	if s.endpoint != "" {
		cfg.Endpoint = aws.String(s.endpoint)
		cfg.S3ForcePathStyle = aws.Bool(true)
		cfg.DisableSSL = aws.Bool(strings.HasPrefix(s.endpoint, "http://"))
	}
	var err error
	s.sess, err = session.NewSession(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "getting new session")
	}
	s.s3 = s3.New(s.sess)
	s.uploader = s3manager.NewUploaderWithClient(s.s3)
	return s, nil
}

// URI implements lake.Store.
func (s *Store) URI() string {
	return s.scheme + "://" + s.bucket + "/" + s.prefix
}

// List implements lake.Store.
func (s *Store) List(prefix string) ([]string, error) {
	keys := make([]string, 0)
	err := s.s3.ListObjectsV2Pages(&s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix + prefix),
	}, func(page *s3.ListObjectsV2Output, last bool) bool {
		for _, obj := range page.Contents {
			key := strings.TrimPrefix(aws.StringValue(obj.Key), s.prefix)
			if strings.HasSuffix(key, "/") {
				// zero-length "directory" markers
				continue
			}
			keys = append(keys, key)
		}
		return true
	})
	if err != nil {
		return nil, errors.Wrapf(err, "listing s3://%s/%s%s", s.bucket, s.prefix, prefix)
	}
	sort.Strings(keys)
	return keys, nil
}

// Glob implements lake.Store.
func (s *Store) Glob(pattern string) ([]string, error) {
	keys, err := s.List(lake.GlobPrefix(pattern))
	if err != nil {
		return nil, err
	}
	return lake.MatchKeys(keys, pattern)
}

type objReader struct {
	name string
	body io.ReadCloser
}

func (o *objReader) Read(buf []byte) (n int, err error) {
	return o.body.Read(buf)
}

func (o *objReader) Close() error {
	return o.body.Close()
}

func (o *objReader) Name() string {
	return o.name
}

// Open implements lake.Store.
func (s *Store) Open(key string) (lake.NamedReadCloser, error) {
	result, err := s.s3.GetObject(&s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.prefix + key),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "fetching %v", key)
	}
	return &objReader{name: key, body: result.Body}, nil
}

type uploadWriter struct {
	pw   *io.PipeWriter
	done chan error
	once sync.Once
	err  error
}

func (u *uploadWriter) Write(p []byte) (int, error) {
	return u.pw.Write(p)
}

func (u *uploadWriter) Close() error {
	u.once.Do(func() {
		_ = u.pw.Close()
		u.err = <-u.done
	})
	return u.err
}

// Create implements lake.Store. Data is streamed to a multipart upload as it
// is written; the object exists once Close returns nil.
func (s *Store) Create(key string) (io.WriteCloser, error) {
	pr, pw := io.Pipe()
	u := &uploadWriter{pw: pw, done: make(chan error, 1)}
	go func() {
		_, err := s.uploader.Upload(&s3manager.UploadInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(s.prefix + key),
			Body:   pr,
		})
		err = errors.Wrapf(err, "uploading %s", key)
		// unblock any pending Write if the upload gave up early
		pr.CloseWithError(err)
		u.done <- err
	}()
	return u, nil
}

// RemoveAll implements lake.Store using batched DeleteObjects calls.
func (s *Store) RemoveAll(dir string) error {
	dir = lake.DirKey(dir)
	if dir == "" {
		return errors.New("refusing to remove the store root")
	}
	iter := s3manager.NewDeleteListIterator(s.s3, &s3.ListObjectsInput{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix + dir),
	})
	err := s3manager.NewBatchDeleteWithClient(s.s3).Delete(aws.BackgroundContext(), iter)
	return errors.Wrapf(err, "removing s3://%s/%s%s", s.bucket, s.prefix, dir)
}
