package password

import (
	"strings"
	"testing"
)

func testHasher(t *testing.T) *Argon2 {
	t.Helper()

	// Small-but-valid costs keep the test fast.
	a, err := NewArgon2(Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   16,
	})
	if err != nil {
		t.Fatalf("NewArgon2: %v", err)
	}
	return a
}

func TestHashVerify(t *testing.T) {
	a := testHasher(t)

	hash, err := a.Hash("correct horse battery")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$") {
		t.Fatalf("unexpected hash format: %q", hash)
	}

	ok, err := a.Verify("correct horse battery", hash)
	if err != nil || !ok {
		t.Fatalf("Verify: ok=%v err=%v", ok, err)
	}

	ok, err = a.Verify("wrong password!", hash)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if ok {
		t.Fatal("wrong password verified")
	}
}

func TestHashesAreSalted(t *testing.T) {
	a := testHasher(t)

	h1, err := a.Hash("correct horse battery")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	h2, err := a.Hash("correct horse battery")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if h1 == h2 {
		t.Fatal("identical hashes for same password")
	}
}

func TestShortPasswordRejected(t *testing.T) {
	a := testHasher(t)

	if _, err := a.Hash("tiny"); err == nil {
		t.Fatal("short password accepted")
	}
}

func TestMalformedHashRejected(t *testing.T) {
	a := testHasher(t)

	for _, bad := range []string{
		"",
		"not-a-phc-string",
		"$bcrypt$v=19$m=8192,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$aGFzaA",
		"$argon2id$v=19$m=8192,t=1$c2FsdHNhbHRzYWx0c2FsdA$aGFzaA",
	} {
		if _, err := a.Verify("whatever-password", bad); err == nil {
			t.Fatalf("malformed hash accepted: %q", bad)
		}
	}
}
