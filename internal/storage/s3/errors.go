package s3

import (
	"context"
	"errors"
	"net/http"

	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	gwerrors "github.com/objectfs/gateway/pkg/errors"
)

// errorCode returns the S3 error code and HTTP status of err, if any.
func errorCode(err error) (string, int) {
	var code string
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code = apiErr.ErrorCode()
	}

	var status int
	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		status = respErr.HTTPStatusCode()
	}
	return code, status
}

func isNotFound(err error) bool {
	if isErrorType[*s3types.NoSuchKey](err) || isErrorType[*s3types.NotFound](err) {
		return true
	}
	code, status := errorCode(err)
	if code == "NoSuchBucket" {
		return false
	}
	return code == "NoSuchKey" || code == "NotFound" || status == http.StatusNotFound
}

func isInvalidRange(err error) bool {
	code, status := errorCode(err)
	return code == "InvalidRange" || status == http.StatusRequestedRangeNotSatisfiable
}

func isAccessDenied(err error) bool {
	code, status := errorCode(err)
	return code == "AccessDenied" || status == http.StatusForbidden
}

// translateError classifies an S3 failure into a gateway error kind.
func (d *Driver) translateError(err error, op, path string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return gwerrors.Wrap(err, op, path)
	}

	switch {
	case isErrorType[*s3types.NoSuchBucket](err):
		return gwerrors.New(gwerrors.KindInternal, "bucket %s does not exist", d.bucket).
			WithOp(op).WithPath(path).WithCause(err)
	case isNotFound(err):
		return gwerrors.NotFound(path).WithOp(op).WithCause(err)
	case isAccessDenied(err):
		return gwerrors.PermissionDenied(path, "access denied by object store").WithOp(op).WithCause(err)
	default:
		return gwerrors.New(gwerrors.KindInternal, "%s failed", op).
			WithOp(op).WithPath(path).WithCause(err)
	}
}

// isErrorType checks if an error is of a specific type
func isErrorType[T error](err error) bool {
	var target T
	return errors.As(err, &target)
}
