package main

import (
	"bytes"
	"crypto/sha512"
	"testing"
)

type fakeAccountStore struct {
	added   map[string]bool
	hash    map[string][]byte
	salt    map[string][]byte
	removed string
}

func newFakeAccountStore() *fakeAccountStore {
	return &fakeAccountStore{
		added: make(map[string]bool),
		hash:  make(map[string][]byte),
		salt:  make(map[string][]byte),
	}
}

func (f *fakeAccountStore) AddUser(username string, isAdmin bool, passwordHash, salt []byte, otpSecret string) error {
	f.added[username] = isAdmin
	f.hash[username] = passwordHash
	f.salt[username] = salt
	return nil
}

func (f *fakeAccountStore) RemoveUser(username string) (bool, error) {
	if !f.added[username] {
		return false, nil
	}
	f.removed = username
	delete(f.added, username)
	return true, nil
}

func TestUseraddStoresConsistentHash(t *testing.T) {
	db := newFakeAccountStore()
	var stdout, stderr bytes.Buffer

	if code := useradd(db, "alice", true, &stdout, &stderr); code != 0 {
		t.Fatalf("useradd returned %d, stderr=%s", code, stderr.String())
	}
	if !db.added["alice"] {
		t.Fatalf("expected alice to be added as admin")
	}

	out := stdout.String()
	const prefix = "temporary password: "
	idx := bytes.Index([]byte(out), []byte(prefix))
	if idx < 0 {
		t.Fatalf("output missing temporary password line: %q", out)
	}
	line := out[idx+len(prefix):]
	nl := bytes.IndexByte([]byte(line), '\n')
	plaintext := line[:nl]

	inner := sha512.Sum512([]byte(plaintext))
	outer := sha512.New()
	outer.Write(db.salt["alice"])
	outer.Write(inner[:])
	want := outer.Sum(nil)

	if !bytes.Equal(want, db.hash["alice"]) {
		t.Fatalf("stored hash does not match recomputed hash for the printed password")
	}
}

func TestUserrmRemovesExistingAccount(t *testing.T) {
	db := newFakeAccountStore()
	var stdout, stderr bytes.Buffer
	if code := useradd(db, "bob", false, &stdout, &stderr); code != 0 {
		t.Fatalf("useradd failed: %s", stderr.String())
	}

	stdout.Reset()
	if code := userrm(db, "bob", &stdout, &stderr); code != 0 {
		t.Fatalf("userrm returned %d, stderr=%s", code, stderr.String())
	}
	if db.removed != "bob" {
		t.Fatalf("expected bob to be removed")
	}
}

func TestUserrmUnknownUserFails(t *testing.T) {
	db := newFakeAccountStore()
	var stdout, stderr bytes.Buffer
	if code := userrm(db, "ghost", &stdout, &stderr); code == 0 {
		t.Fatalf("expected non-zero exit for unknown user")
	}
}
