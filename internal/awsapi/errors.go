package awsapi

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/aws/smithy-go"
)

var (
	notFoundCodes = []string{
		"NoSuchBucket",
		"NoSuchKey",
		"NoSuchHostedZone",
		"LoadBalancerNotFound",
		"AccessPointNotFound",
	}
	notFoundSubstrings = []string{
		"does not exist",
		"not found",
	}
	dependencyCodes = []string{
		"DependencyViolation",
		"ResourceInUse",
		"VolumeInUse",
		"InvalidIPAddress.InUse",
		"InvalidNetworkInterface.InUse",
	}
	credentialErrorSubstrings = []string{
		"no ec2 imds role found",
		"failed to refresh cached credentials",
		"get credentials",
		"expiredtoken",
		"invalidclienttokenid",
		"unrecognizedclientexception",
		"authfailure",
	}
	networkErrorSubstrings = []string{
		"i/o timeout",
		"connection reset",
		"connection refused",
		"no such host",
		"network is unreachable",
		"tls handshake timeout",
	}
)

// ErrorCode returns the AWS API error code carried by err, or "".
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}

// IsNotFound reports whether err means the target is already gone.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}

	if code := ErrorCode(err); code != "" {
		if strings.HasSuffix(code, ".NotFound") || strings.HasSuffix(code, "NotFound") {
			return true
		}
		for _, c := range notFoundCodes {
			if code == c {
				return true
			}
		}
	}

	errText := strings.ToLower(err.Error())
	for _, marker := range notFoundSubstrings {
		if strings.Contains(errText, marker) {
			return true
		}
	}
	return false
}

// IsDependencyViolation reports whether err means the target still has dependents.
func IsDependencyViolation(err error) bool {
	if err == nil {
		return false
	}
	code := ErrorCode(err)
	for _, c := range dependencyCodes {
		if code == c {
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "dependencyviolation")
}

// IsCredentialError reports whether err comes from missing or rejected credentials.
func IsCredentialError(err error) bool {
	if err == nil {
		return false
	}
	switch ErrorCode(err) {
	case "AuthFailure", "UnauthorizedOperation", "ExpiredToken", "InvalidClientTokenId":
		return true
	}
	errText := strings.ToLower(err.Error())
	for _, marker := range credentialErrorSubstrings {
		if strings.Contains(errText, marker) {
			return true
		}
	}
	return false
}

// IsNetworkError reports whether err is a transport level failure.
func IsNetworkError(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	errText := strings.ToLower(err.Error())
	for _, marker := range networkErrorSubstrings {
		if strings.Contains(errText, marker) {
			return true
		}
	}
	return false
}
