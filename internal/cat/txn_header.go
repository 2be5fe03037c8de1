// Copyright 2020 New Relic Corporation. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package cat

import (
	"encoding/json"
	"errors"
)

// TxnDataHeader is the decoded X-NewRelic-Transaction header:
// [guid, unused, trip id, path hash].
type TxnDataHeader struct {
	GUID     string
	TripID   string
	PathHash string
}

var errInvalidTxnDataJSON = errors.New("invalid transaction data JSON")

// MarshalJSON encodes the header as a JSON array.
func (h *TxnDataHeader) MarshalJSON() ([]byte, error) {
	return json.Marshal([]interface{}{
		h.GUID,
		false,
		h.TripID,
		h.PathHash,
	})
}

// UnmarshalJSON decodes the header from a JSON array.  Only the guid is
// required.
func (h *TxnDataHeader) UnmarshalJSON(data []byte) error {
	var arr []interface{}
	if err := json.Unmarshal(data, &arr); nil != err {
		return err
	}
	if len(arr) < 2 {
		return errUnexpectedArraySize{
			label:    "unexpected number of transaction data elements",
			expected: 2,
			actual:   len(arr),
		}
	}
	var ok bool
	if h.GUID, ok = arr[0].(string); !ok {
		return errInvalidTxnDataJSON
	}
	if len(arr) > 2 {
		h.TripID, _ = arr[2].(string)
	}
	if len(arr) > 3 {
		h.PathHash, _ = arr[3].(string)
	}
	return nil
}

// EncodeTxnHeaders returns the obfuscated values of the X-NewRelic-ID and
// X-NewRelic-Transaction headers.
func EncodeTxnHeaders(crossProcessID string, h *TxnDataHeader, encodingKey string) (id, txnData string, err error) {
	key := []byte(encodingKey)
	if id, err = Obfuscate([]byte(crossProcessID), key); nil != err {
		return "", "", err
	}
	js, err := json.Marshal(h)
	if nil != err {
		return "", "", err
	}
	if txnData, err = Obfuscate(js, key); nil != err {
		return "", "", err
	}
	return id, txnData, nil
}
