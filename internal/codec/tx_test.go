package codec

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestDecodeTxEnvelope(t *testing.T) {
	env, err := DecodeTxEnvelope([]byte(`{"type":"poker/act","value":{"player":"alice"},"nonce":"7","signer":"alice"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Type != "poker/act" || env.Nonce != "7" || env.Signer != "alice" {
		t.Fatalf("envelope: %+v", env)
	}
	var v struct {
		Player string `json:"player"`
	}
	if err := json.Unmarshal(env.Value, &v); err != nil || v.Player != "alice" {
		t.Fatalf("value passthrough: %v %+v", err, v)
	}

	if _, err := DecodeTxEnvelope([]byte(`not json`)); err == nil {
		t.Fatalf("invalid json accepted")
	}
	if _, err := DecodeTxEnvelope([]byte(`{"value":{}}`)); err == nil {
		t.Fatalf("missing type accepted")
	}
}

func TestTxSignBytes_BindsEveryField(t *testing.T) {
	base := TxSignBytes("poker/act", []byte(`{"a":1}`), "1", "alice")
	if !bytes.HasPrefix(base, []byte(TxAuthDomain)) {
		t.Fatalf("sign bytes missing domain prefix")
	}
	variants := [][]byte{
		TxSignBytes("poker/fold", []byte(`{"a":1}`), "1", "alice"),
		TxSignBytes("poker/act", []byte(`{"a":2}`), "1", "alice"),
		TxSignBytes("poker/act", []byte(`{"a":1}`), "2", "alice"),
		TxSignBytes("poker/act", []byte(`{"a":1}`), "1", "bob"),
	}
	for i, v := range variants {
		if bytes.Equal(base, v) {
			t.Fatalf("variant %d did not change the signed message", i)
		}
	}
	if !bytes.Equal(base, TxSignBytes("poker/act", []byte(`{"a":1}`), "1", "alice")) {
		t.Fatalf("sign bytes not deterministic")
	}
}
