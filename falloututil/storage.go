/*
Copyright © 2026 the Fallout authors.
This file is part of Fallout.

Fallout is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

Fallout is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with Fallout.  If not, see <http://www.gnu.org/licenses/>.
*/

package falloututil

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/cenkalti/backoff"
	"github.com/google/go-cloud/blob"
	"github.com/google/go-cloud/blob/fileblob"
	"github.com/google/go-cloud/blob/gcsblob"
	"github.com/google/go-cloud/blob/s3blob"
	"github.com/google/go-cloud/gcp"
	"github.com/sirupsen/logrus"
)

// maxRetries bounds the attempts to reach remote storage.
const maxRetries = 4

// IsBlob returns whether the given filename represents a blob
// (i.e., if it starts with `gs://`, 's3://', or 'file://').
func IsBlob(path string) bool {
	return strings.HasPrefix(path, "gs://") || strings.HasPrefix(path, "s3://") || strings.HasPrefix(path, "file://")
}

// OpenBucket returns the blob storage bucket specified by bucketName,
// where bucketName must be in the format 'provider://name'. The accepted
// providers are "file" for a directory relative to the working directory,
// "gs" for Google Cloud Storage, and "s3" for AWS S3.
func OpenBucket(ctx context.Context, bucketName string) (*blob.Bucket, error) {
	u, err := url.Parse(bucketName)
	if err != nil {
		return nil, fmt.Errorf("falloututil: opening bucket: %w", err)
	}
	switch u.Scheme {
	case "file":
		return fileblob.NewBucket(u.Hostname())
	case "gs":
		creds, err := gcp.DefaultCredentials(ctx)
		if err != nil {
			return nil, err
		}
		c, err := gcp.NewHTTPClient(gcp.DefaultTransport(), gcp.CredentialsTokenSource(creds))
		if err != nil {
			return nil, err
		}
		return gcsblob.OpenBucket(ctx, u.Hostname(), c)
	case "s3":
		// Credentials come from AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY.
		region := os.Getenv("AWS_REGION")
		if region == "" {
			region = "us-east-2"
		}
		s, err := session.NewSession(&aws.Config{
			Region:      aws.String(region),
			Credentials: credentials.NewEnvCredentials(),
		})
		if err != nil {
			return nil, err
		}
		return s3blob.OpenBucket(ctx, s, u.Hostname())
	default:
		return nil, fmt.Errorf("falloututil: invalid storage provider %q", u.Scheme)
	}
}

// expandShp returns the given file plus its .dbf, .shx and .prj companions
// if it is a shapefile, and the given file otherwise.
func expandShp(filename string) []string {
	o := []string{filename}
	if filepath.Ext(filename) != ".shp" {
		return o
	}
	base := strings.TrimSuffix(filename, ".shp")
	for _, ext := range []string{".dbf", ".shx", ".prj"} {
		o = append(o, base+ext)
	}
	return o
}

// storage moves input files from remote locations to a temporary
// directory and output files from the temporary directory to blob
// storage.
type storage struct {
	dir string

	// uploads holds pairs of local paths and the blob URLs they are
	// copied to by upload.
	uploads [][2]string
}

func (s *storage) tempDir() (string, error) {
	if s.dir == "" {
		d, err := os.MkdirTemp("", "fallout")
		if err != nil {
			return "", fmt.Errorf("falloututil: creating temporary directory: %w", err)
		}
		s.dir = d
	}
	return s.dir, nil
}

// maybeDownload returns path unchanged if it is a local file, and
// otherwise downloads it, and its shapefile companions, from an http(s)
// URL or a blob URL and returns the local copy.
func (s *storage) maybeDownload(ctx context.Context, path string) (string, error) {
	if path == "" {
		return "", nil
	}
	var fetch func(ctx context.Context, name string) (io.ReadCloser, error)
	switch {
	case strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://"):
		fetch = fetchHTTP
	case IsBlob(path):
		u, err := url.Parse(path)
		if err != nil {
			return "", fmt.Errorf("falloututil: parsing %s: %w", path, err)
		}
		bucket, err := OpenBucket(ctx, u.Scheme+"://"+u.Host)
		if err != nil {
			return "", err
		}
		fetch = func(ctx context.Context, name string) (io.ReadCloser, error) {
			u, err := url.Parse(name)
			if err != nil {
				return nil, err
			}
			return bucket.NewReader(ctx, strings.TrimPrefix(u.Path, "/"))
		}
	default:
		return path, nil
	}
	dir, err := s.tempDir()
	if err != nil {
		return "", err
	}
	files := expandShp(path)
	for i, f := range files {
		if err := download(ctx, fetch, f, filepath.Join(dir, filepath.Base(f))); err != nil {
			if i > 2 { // The .prj file is optional.
				continue
			}
			return "", err
		}
	}
	return filepath.Join(dir, filepath.Base(files[0])), nil
}

// fetchHTTP gets name, retrying server errors and dropped connections.
func fetchHTTP(ctx context.Context, name string) (io.ReadCloser, error) {
	var body io.ReadCloser
	var permanent error
	err := backoff.RetryNotify(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, name, nil)
		if err != nil {
			permanent = err
			return nil
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				permanent = ctx.Err()
				return nil
			}
			return err
		}
		switch {
		case resp.StatusCode == http.StatusOK:
			body = resp.Body
			return nil
		case resp.StatusCode >= 500:
			resp.Body.Close()
			return fmt.Errorf("%s: %s", name, resp.Status)
		default:
			resp.Body.Close()
			permanent = fmt.Errorf("%s: %s", name, resp.Status)
			return nil
		}
	}, backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxRetries),
		func(err error, d time.Duration) {
			logrus.WithFields(logrus.Fields{"error": err, "wait": d}).Warn("falloututil: retrying download")
		})
	if err != nil {
		return nil, err
	}
	if permanent != nil {
		return nil, permanent
	}
	return body, nil
}

func download(ctx context.Context, fetch func(context.Context, string) (io.ReadCloser, error), from, to string) error {
	r, err := fetch(ctx, from)
	if err != nil {
		return fmt.Errorf("falloututil: downloading %s: %w", from, err)
	}
	defer r.Close()
	w, err := os.Create(to)
	if err != nil {
		return fmt.Errorf("falloututil: creating file for download: %w", err)
	}
	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return fmt.Errorf("falloututil: downloading %s: %w", from, err)
	}
	return w.Close()
}

// maybeUpload returns path unchanged if it is not a blob URL. Otherwise it
// returns a temporary local path and records that the file, and its
// shapefile companions, should be copied to path by upload.
func (s *storage) maybeUpload(path string) (string, error) {
	if !IsBlob(path) {
		return path, nil
	}
	dir, err := s.tempDir()
	if err != nil {
		return "", err
	}
	files := expandShp(path)
	for _, f := range files {
		s.uploads = append(s.uploads, [2]string{filepath.Join(dir, filepath.Base(f)), f})
	}
	return filepath.Join(dir, filepath.Base(files[0])), nil
}

// upload copies the files recorded by maybeUpload to blob storage.
// Files that were never written are skipped.
func (s *storage) upload(ctx context.Context) error {
	for _, f := range s.uploads {
		if _, err := os.Stat(f[0]); os.IsNotExist(err) {
			continue
		}
		if err := uploadFile(ctx, f[0], f[1]); err != nil {
			return err
		}
	}
	return nil
}

func uploadFile(ctx context.Context, from, to string) error {
	r, err := os.Open(from)
	if err != nil {
		return fmt.Errorf("falloututil: opening file '%s' for upload: %w", from, err)
	}
	defer r.Close()
	u, err := url.Parse(to)
	if err != nil {
		return fmt.Errorf("falloututil: parsing url '%s' for upload: %w", to, err)
	}
	bucket, err := OpenBucket(ctx, u.Scheme+"://"+u.Host)
	if err != nil {
		return err
	}
	return backoff.RetryNotify(func() error {
		if _, err := r.Seek(0, io.SeekStart); err != nil {
			return err
		}
		w, err := bucket.NewWriter(ctx, strings.TrimPrefix(u.Path, "/"), &blob.WriterOptions{})
		if err != nil {
			return fmt.Errorf("falloututil: opening writer to upload file '%s': %w", to, err)
		}
		if _, err := io.Copy(w, r); err != nil {
			w.Close()
			return fmt.Errorf("falloututil: uploading file '%s' to '%s': %w", from, to, err)
		}
		return w.Close()
	}, backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxRetries),
		func(err error, d time.Duration) {
			logrus.WithFields(logrus.Fields{"error": err, "wait": d}).Warn("falloututil: retrying upload")
		})
}

// cleanup removes the temporary directory.
func (s *storage) cleanup() {
	if s.dir != "" {
		os.RemoveAll(s.dir)
	}
}
