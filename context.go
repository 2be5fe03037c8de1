// Copyright 2020 New Relic Corporation. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package newrelic

import (
	"context"
	"net/http"
)

type contextKeyType struct{}

var transactionContextKey = contextKeyType{}

// NewContext returns a new context.Context that carries the provided
// transaction.
func NewContext(ctx context.Context, txn *Transaction) context.Context {
	return context.WithValue(ctx, transactionContextKey, txn)
}

// FromContext returns the Transaction from the context if present, and nil
// otherwise.
func FromContext(ctx context.Context) *Transaction {
	if nil == ctx {
		return nil
	}
	txn, _ := ctx.Value(transactionContextKey).(*Transaction)
	return txn
}

// RequestWithTransactionContext adds the Transaction to the request's context.
func RequestWithTransactionContext(req *http.Request, txn *Transaction) *http.Request {
	ctx := NewContext(req.Context(), txn)
	return req.WithContext(ctx)
}
