package types

import "testing"

func TestScript_Equal(t *testing.T) {
	a := Script{CodeHash: Hash{0x01}, HashType: HashTypeType, Args: []byte{0xaa, 0xbb}}
	b := Script{CodeHash: Hash{0x01}, HashType: HashTypeType, Args: []byte{0xaa, 0xbb}}
	if !a.Equal(b) {
		t.Error("identical scripts should be equal")
	}

	c := Script{CodeHash: Hash{0x02}, HashType: HashTypeType, Args: []byte{0xaa, 0xbb}}
	if a.Equal(c) {
		t.Error("scripts with different code hashes should not be equal")
	}

	d := Script{CodeHash: Hash{0x01}, HashType: HashTypeData, Args: []byte{0xaa, 0xbb}}
	if a.Equal(d) {
		t.Error("scripts with different hash types should not be equal")
	}

	e := Script{CodeHash: Hash{0x01}, HashType: HashTypeType, Args: []byte{0xaa}}
	if a.Equal(e) {
		t.Error("scripts with different args should not be equal")
	}
}

func TestScript_JSONRoundtrip(t *testing.T) {
	s := Script{CodeHash: Hash{0xde, 0xad}, HashType: HashTypeData, Args: []byte{0x01, 0x02, 0x03}}

	data, err := s.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON: %v", err)
	}

	var decoded Script
	if err := decoded.UnmarshalJSON(data); err != nil {
		t.Fatalf("UnmarshalJSON: %v", err)
	}
	if !decoded.Equal(s) {
		t.Errorf("roundtrip mismatch: got %+v, want %+v", decoded, s)
	}
}

func TestScript_JSONRoundtrip_EmptyArgs(t *testing.T) {
	s := Script{CodeHash: Hash{0x01}, HashType: HashTypeType}

	data, err := s.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON: %v", err)
	}

	var decoded Script
	if err := decoded.UnmarshalJSON(data); err != nil {
		t.Fatalf("UnmarshalJSON: %v", err)
	}
	if len(decoded.Args) != 0 {
		t.Errorf("expected empty args, got %v", decoded.Args)
	}
}
