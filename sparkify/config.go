package sparkify

import (
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Names of the credential keys, both in the [AWS] section of the
// credentials file and in the environment.
const (
	AccessKeyIDKey     = "AWS_ACCESS_KEY_ID"
	SecretAccessKeyKey = "AWS_SECRET_ACCESS_KEY"
)

// ErrNoCredentials is returned by LoadCredentials when neither the file nor
// the environment provides an access key pair.
var ErrNoCredentials = errors.New("no AWS credentials found")

// Credentials is an AWS access key pair.
type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
}

// Empty reports whether no part of the key pair is set.
func (c Credentials) Empty() bool {
	return c.AccessKeyID == "" && c.SecretAccessKey == ""
}

// LoadCredentials reads the [AWS] section of the INI file at path. Keys
// missing from the file, or the whole file if it does not exist, are taken
// from the environment variables of the same name. Only one half of a key
// pair is an error.
func LoadCredentials(path string) (Credentials, error) {
	var creds Credentials
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v := viper.New()
			v.SetConfigFile(path)
			v.SetConfigType("ini")
			if err := v.ReadInConfig(); err != nil {
				return creds, errors.Wrapf(err, "reading credentials file '%s'", path)
			}
			creds.AccessKeyID = v.GetString("aws." + AccessKeyIDKey)
			creds.SecretAccessKey = v.GetString("aws." + SecretAccessKeyKey)
		} else if !os.IsNotExist(err) {
			return creds, errors.Wrapf(err, "checking credentials file '%s'", path)
		}
	}
	if creds.AccessKeyID == "" {
		creds.AccessKeyID = os.Getenv(AccessKeyIDKey)
	}
	if creds.SecretAccessKey == "" {
		creds.SecretAccessKey = os.Getenv(SecretAccessKeyKey)
	}

	switch {
	case creds.Empty():
		return creds, errors.Wrapf(ErrNoCredentials, "in '%s' or the environment", path)
	case creds.AccessKeyID == "":
		return creds, errors.Errorf("%s is set but %s is not", SecretAccessKeyKey, AccessKeyIDKey)
	case creds.SecretAccessKey == "":
		return creds, errors.Errorf("%s is set but %s is not", AccessKeyIDKey, SecretAccessKeyKey)
	}
	return creds, nil
}
