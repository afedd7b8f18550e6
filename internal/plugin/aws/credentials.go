package aws

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
)

// Credential failures that stop a run before any category is fetched.
var (
	ErrNoCredentials         = errors.New("no AWS credentials found")
	ErrIncompleteCredentials = errors.New("incomplete AWS credentials configuration")
)

// CheckCredentials resolves the provider once and classifies the result.
// An error from the chain means nothing was found; a key without its
// secret, or the reverse, is incomplete.
func CheckCredentials(ctx context.Context, provider aws.CredentialsProvider) error {
	if provider == nil {
		return ErrNoCredentials
	}

	creds, err := provider.Retrieve(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("retrieve credentials: %w", ctx.Err())
		}
		return fmt.Errorf("%w: %v", ErrNoCredentials, err)
	}

	hasKey := creds.AccessKeyID != ""
	hasSecret := creds.SecretAccessKey != ""
	switch {
	case !hasKey && !hasSecret:
		return ErrNoCredentials
	case !hasKey || !hasSecret:
		return ErrIncompleteCredentials
	}
	return nil
}

// The SDK reports a profile holding only one half of a key pair as a plain
// error string, with no typed error to match.
const partialProfileMessage = "partial credentials found"

func classifyConfigError(err error) error {
	var missingProfile config.SharedConfigProfileNotExistError
	if errors.As(err, &missingProfile) {
		return fmt.Errorf("%w: profile %q not found", ErrNoCredentials, missingProfile.Profile)
	}
	if strings.Contains(err.Error(), partialProfileMessage) {
		return fmt.Errorf("%w: %v", ErrIncompleteCredentials, err)
	}
	return fmt.Errorf("load aws config: %w", err)
}

// CheckEnvCredentials reports a key pair that is only half set in the
// environment. The SDK skips such a pair and falls through the chain.
func CheckEnvCredentials(getenv func(string) string) error {
	if getenv == nil {
		getenv = os.Getenv
	}
	hasKey := getenv("AWS_ACCESS_KEY_ID") != "" || getenv("AWS_ACCESS_KEY") != ""
	hasSecret := getenv("AWS_SECRET_ACCESS_KEY") != "" || getenv("AWS_SECRET_KEY") != ""
	if hasKey != hasSecret {
		return fmt.Errorf("%w: access key and secret key must both be set in the environment", ErrIncompleteCredentials)
	}
	return nil
}
