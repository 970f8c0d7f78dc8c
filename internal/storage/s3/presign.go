package s3

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	gwerrors "github.com/objectfs/gateway/pkg/errors"
	"github.com/objectfs/gateway/pkg/types"
	"github.com/objectfs/gateway/pkg/utils"
)

type presignAPI interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
	PresignPutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

var _ presignAPI = (*s3.PresignClient)(nil)

// PresignURL returns a time-limited URL for direct GET or PUT access to one
// object. A ttl of zero uses the configured default.
func (d *Driver) PresignURL(ctx context.Context, p string, method types.PresignMethod, ttl time.Duration) (types.PresignedURL, error) {
	if d.presign == nil {
		return types.PresignedURL{}, gwerrors.Unsupported("presign", "presigning is not configured for this client")
	}
	key, err := utils.ObjectKey(p)
	if err != nil {
		return types.PresignedURL{}, err
	}
	if key == "" {
		return types.PresignedURL{}, gwerrors.New(gwerrors.KindInvalidArgument, "cannot presign the bucket root").WithOp("presign")
	}
	if ttl <= 0 {
		ttl = d.presignTTL
	}
	if ttl > MaxPresignTTL {
		return types.PresignedURL{}, gwerrors.New(gwerrors.KindInvalidArgument, "ttl %s exceeds the 7 day maximum", ttl).WithOp("presign")
	}

	expires := s3.WithPresignExpires(ttl)
	var req *v4.PresignedHTTPRequest
	switch method {
	case types.PresignGet:
		req, err = d.presign.PresignGetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(d.bucket),
			Key:    aws.String(key),
		}, expires)
	case types.PresignPut:
		req, err = d.presign.PresignPutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(d.bucket),
			Key:    aws.String(key),
		}, expires)
	default:
		return types.PresignedURL{}, gwerrors.New(gwerrors.KindInvalidArgument, "unsupported presign method %q", method).WithOp("presign")
	}
	if err != nil {
		return types.PresignedURL{}, d.translateError(err, "presign", key)
	}

	return types.PresignedURL{
		URL:       req.URL,
		Method:    method,
		ExpiresAt: time.Now().Add(ttl),
	}, nil
}
