// SPDX-License-Identifier: MPL-2.0

package container

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryWithBackoff runs op up to maxAttempts times, doubling the wait from
// baseBackoff between attempts.
//
// op returns (retry, err). A nil err ends with success; retry=false ends with
// err. When ctx is cancelled between attempts its error is returned; when the
// attempts are exhausted the last error is returned.
func RetryWithBackoff(
	ctx context.Context,
	maxAttempts int,
	baseBackoff time.Duration,
	op func(attempt int) (retry bool, err error),
) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = baseBackoff
	policy.Multiplier = 2
	policy.RandomizationFactor = 0
	policy.MaxElapsedTime = 0

	attempt := 0
	return backoff.Retry(func() error {
		retry, err := op(attempt)
		attempt++
		if err == nil {
			return nil
		}
		if !retry {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(policy, uint64(maxAttempts-1)), ctx))
}

// RetryTransient runs op with RetryWithBackoff, retrying only errors that
// IsTransientError accepts.
func RetryTransient(ctx context.Context, maxAttempts int, baseBackoff time.Duration, op func() error) error {
	return RetryWithBackoff(ctx, maxAttempts, baseBackoff, func(int) (bool, error) {
		err := op()
		return IsTransientError(err), err
	})
}
