package tx

import (
	"encoding/json"
	"testing"
)

// FuzzTxUnmarshal tests that arbitrary JSON input does not panic
// when unmarshaled into a Transaction struct.
func FuzzTxUnmarshal(f *testing.F) {
	f.Add([]byte(`{"inputs":[{"prevout":{"txid":"0000000000000000000000000000000000000000000000000000000000000000","index":0}}],"outputs":[{"capacity":1000,"lock":{"code_hash":"00","hash_type":0,"args":""}}]}`))
	f.Add([]byte(`{}`))
	f.Add([]byte(`null`))
	f.Add([]byte(`{"inputs":null,"outputs":null}`))
	f.Add([]byte(`{"inputs":[{"prevout":{"txid":"","index":0},"pubkey":"","signature":""}],"outputs":[{"capacity":0}]}`))

	f.Fuzz(func(t *testing.T, data []byte) {
		var transaction Transaction
		if err := json.Unmarshal(data, &transaction); err != nil {
			return
		}
		// If unmarshal succeeded, these must not panic.
		transaction.Hash()
		transaction.SigningBytes()
		transaction.ProposalShortId()
		transaction.Validate()
		transaction.VerifySignatures() // May fail but must not panic.
	})
}
