// Package idempotency records which idempotency keys have admitted a payment.
//
// Every Guard offers the same contract: TryMark atomically claims a key and
// reports whether it was already claimed; Release drops a claim whose payment
// did not go through. Keys that completed a payment are never released here.
package idempotency

import "errors"

var ErrEmptyKey = errors.New("idempotency key is empty")
