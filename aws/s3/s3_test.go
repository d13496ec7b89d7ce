package s3

import (
	"context"
	"io"
	"reflect"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/minio"
)

func TestParseURI(t *testing.T) {
	tests := []struct {
		uri    string
		bucket string
		prefix string
		err    bool
	}{
		{uri: "s3a://udacity-dend/", bucket: "udacity-dend", prefix: ""},
		{uri: "s3a://udacity-dend", bucket: "udacity-dend", prefix: ""},
		{uri: "s3://aws-udacity-spark/out/run1", bucket: "aws-udacity-spark", prefix: "out/run1/"},
		{uri: "s3n://b/a//b/", bucket: "b", prefix: "a//b/"},
		{uri: "gs://b/", err: true},
		{uri: "s3a:///nobucket", err: true},
	}
	for _, test := range tests {
		bucket, prefix, err := ParseURI(test.uri)
		if test.err {
			if err == nil {
				t.Errorf("%s: expected error", test.uri)
			}
			continue
		}
		if err != nil {
			t.Errorf("%s: unexpected error %v", test.uri, err)
			continue
		}
		if bucket != test.bucket || prefix != test.prefix {
			t.Errorf("%s: expected (%s, %s), got (%s, %s)", test.uri, test.bucket, test.prefix, bucket, prefix)
		}
	}
}

func TestNewStoreOptions(t *testing.T) {
	s, err := NewStore(OptStoreURI("s3a://udacity-dend/data"), OptStoreRegion("us-east-1"), OptStoreAnonymous())
	if err != nil {
		t.Fatalf("getting store: %v", err)
	}
	if s.bucket != "udacity-dend" || s.prefix != "data/" {
		t.Fatalf("wrong bucket/prefix: %s %s", s.bucket, s.prefix)
	}
	if aws.StringValue(s.sess.Config.Region) != "us-east-1" {
		t.Fatalf("wrong region: %s", aws.StringValue(s.sess.Config.Region))
	}
	if s.URI() != "s3a://udacity-dend/data/" {
		t.Fatalf("wrong URI: %s", s.URI())
	}

	if _, err := NewStore(OptStoreURI("http://nope/")); err == nil {
		t.Fatal("expected error for non-S3 URI")
	}
	if _, err := NewStore(); err == nil {
		t.Fatal("expected error without bucket")
	}
}

func TestStoreMinIO(t *testing.T) {
	if testing.Short() {
		t.Skip("needs docker")
	}
	ctx := context.Background()

	container, err := minio.Run(ctx, "minio/minio:latest",
		minio.WithUsername("minioadmin"),
		minio.WithPassword("minioadmin"),
	)
	require.NoError(t, err)
	defer func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to cleanup minio container: %v", err)
		}
	}()
	endpoint, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	store, err := NewStore(
		OptStoreURI("s3a://lake-test/out"),
		OptStoreRegion("us-east-1"),
		OptStoreEndpoint("http://"+endpoint),
		OptStoreCredentials(container.Username, container.Password),
	)
	require.NoError(t, err)
	_, err = store.s3.CreateBucket(&s3.CreateBucketInput{Bucket: aws.String("lake-test")})
	require.NoError(t, err)

	for _, key := range []string{
		"log_data/2018/11/2018-11-01-events.json",
		"log_data/2018/11/2018-11-02-events.json",
		"log_data/2018/12/2018-12-01-events.json",
		"log_data/2018/11/_SUCCESS",
	} {
		w, err := store.Create(key)
		require.NoError(t, err)
		_, err = io.WriteString(w, `{"key": "`+key+`"}`)
		require.NoError(t, err)
		require.NoError(t, w.Close())
	}

	keys, err := store.Glob("log_data/2018/11/*")
	require.NoError(t, err)
	require.Equal(t, []string{
		"log_data/2018/11/2018-11-01-events.json",
		"log_data/2018/11/2018-11-02-events.json",
	}, keys)

	r, err := store.Open(keys[0])
	require.NoError(t, err)
	body, err := io.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	require.True(t, strings.Contains(string(body), keys[0]))

	require.NoError(t, store.RemoveAll("log_data/2018/11"))
	keys, err = store.List("log_data/")
	require.NoError(t, err)
	if !reflect.DeepEqual(keys, []string{"log_data/2018/12/2018-12-01-events.json"}) {
		t.Fatalf("unexpected keys after remove: %v", keys)
	}
}
