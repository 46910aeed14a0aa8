// Copyright (c) 2026 Procura. All rights reserved.
// Author: platform@procura.market

/*
Package blob stores uploaded verification documents in object storage.

The identity core never serves document bytes itself. Suppliers upload
evidence during verification, admins review it through short-lived presigned
URLs. The backing store is any S3-compatible bucket (AWS S3, Cloudflare R2).
*/
package blob

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/procuramarket/procura/pkg/uuid"
)

// Object identifies one stored document.
type Object struct {
	Key string `json:"key"`
	URL string `json:"url"`
}

// Store is the object storage contract used by the verification workflow.
type Store interface {

	/*
		Put stores one document under a generated key.

		Parameters:
		  - context: context.Context
		  - data: []byte (raw document bytes)
		  - contentType: string (MIME type, application/octet-stream when unknown)
		  - pathHint: string (slug-safe prefix, e.g. the company slug)

		Returns:
		  - Object: The stored object's key and public URL.
		  - error: Upload failures.
	*/
	Put(context context.Context, data []byte, contentType, pathHint string) (Object, error)

	/*
		Presign builds a short-lived download URL for a stored object.

		Parameters:
		  - context: context.Context
		  - key: string (object key returned by Put)
		  - ttl: time.Duration (link validity window)

		Returns:
		  - string: The presigned URL.
		  - error: Signing failures.
	*/
	Presign(context context.Context, key string, ttl time.Duration) (string, error)
}

// # S3 Implementation

// S3Config carries the connection settings for an S3-compatible bucket.
type S3Config struct {
	Bucket       string
	Region       string
	Endpoint     string
	AccessKey    string
	SecretKey    string
	PublicDomain string
}

type s3Store struct {
	client  *s3.Client
	presign *s3.PresignClient
	config  S3Config
}

/*
NewS3Store connects to an S3-compatible bucket.

A non-empty Endpoint switches the client to path-style addressing, which
R2 and most S3-compatible providers require.

Parameters:
  - context: context.Context
  - cfg: S3Config

Returns:
  - Store: The connected store.
  - error: Credential or configuration failures.
*/
func NewS3Store(context context.Context, cfg S3Config) (Store, error) {
	if cfg.Bucket == "" || cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("blob_s3_config_incomplete")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context,
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		),
		awsconfig.WithRegion(cfg.Region),
	)
	if err != nil {
		return nil, fmt.Errorf("blob_s3_config_load_failed: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(options *s3.Options) {
		if cfg.Endpoint != "" {
			options.BaseEndpoint = aws.String(cfg.Endpoint)
			options.UsePathStyle = true
		}
	})

	return &s3Store{
		client:  client,
		presign: s3.NewPresignClient(client),
		config:  cfg,
	}, nil
}

func (store *s3Store) Put(ctx context.Context, data []byte, contentType, pathHint string) (Object, error) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	key := fmt.Sprintf("verification/%s/%d-%s", pathHint, time.Now().UTC().Unix(), uuid.Must())

	_, err := store.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(store.config.Bucket),
		Key:          aws.String(key),
		Body:         bytes.NewReader(data),
		ContentType:  aws.String(contentType),
		CacheControl: aws.String("no-cache"),
	})
	if err != nil {
		return Object{}, fmt.Errorf("blob_s3_put_failed: %w", err)
	}

	return Object{Key: key, URL: store.publicURL(key)}, nil
}

func (store *s3Store) Presign(ctx context.Context, key string, ttl time.Duration) (string, error) {
	request, err := store.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(store.config.Bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("blob_s3_presign_failed: %w", err)
	}
	return request.URL, nil
}

func (store *s3Store) publicURL(key string) string {
	domain := strings.TrimRight(store.config.PublicDomain, "/")
	if domain == "" {
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", store.config.Bucket, store.config.Region, key)
	}
	return fmt.Sprintf("%s/%s/%s", domain, store.config.Bucket, key)
}
