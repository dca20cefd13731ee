// Package minio provides S3-compatible object storage options.
package minio

import (
	"fmt"
	"os"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/spf13/pflag"
)

// Options defines the object storage connection.
type Options struct {
	Endpoint  string `json:"endpoint" mapstructure:"endpoint"`
	AccessKey string `json:"access-key" mapstructure:"access-key"`
	SecretKey string `json:"-" mapstructure:"secret-key"`
	UseSSL    bool   `json:"use-ssl" mapstructure:"use-ssl"`
	Region    string `json:"region" mapstructure:"region"`
	Bucket    string `json:"bucket" mapstructure:"bucket"`
}

// NewOptions creates a new Options object with default values.
func NewOptions() *Options {
	return &Options{
		Endpoint: "s3.amazonaws.com",
		UseSSL:   true,
		Region:   "us-east-1",
	}
}

// AddFlags adds flags for object storage options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.Endpoint, "minio.endpoint", o.Endpoint, "S3-compatible endpoint (host[:port])")
	fs.StringVar(&o.AccessKey, "minio.access-key", o.AccessKey, "Access key (or AWS_ACCESS_KEY_ID)")
	fs.StringVar(&o.SecretKey, "minio.secret-key", o.SecretKey, "Secret key (prefer AWS_SECRET_ACCESS_KEY env var)")
	fs.BoolVar(&o.UseSSL, "minio.use-ssl", o.UseSSL, "Use TLS for the storage endpoint")
	fs.StringVar(&o.Region, "minio.region", o.Region, "Bucket region")
	fs.StringVar(&o.Bucket, "minio.bucket", o.Bucket, "Bucket holding staged documents")
}

// Complete fills credentials from the standard AWS environment variables.
func (o *Options) Complete() error {
	if o.AccessKey == "" {
		o.AccessKey = os.Getenv("AWS_ACCESS_KEY_ID")
	}
	if o.SecretKey == "" {
		o.SecretKey = os.Getenv("AWS_SECRET_ACCESS_KEY")
	}
	return nil
}

// Validate checks if the options are valid.
func (o *Options) Validate() error {
	if o.Endpoint == "" {
		return fmt.Errorf("minio.endpoint must not be empty")
	}
	if o.Bucket == "" {
		return fmt.Errorf("minio.bucket must not be empty")
	}
	return nil
}

// NewClient creates a minio client. No network call is made.
func (o *Options) NewClient() (*minio.Client, error) {
	return minio.New(o.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(o.AccessKey, o.SecretKey, ""),
		Secure: o.UseSSL,
		Region: o.Region,
	})
}
